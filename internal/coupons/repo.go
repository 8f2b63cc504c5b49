package coupons

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	"github.com/volna-retail/loyalty-backend/pkg/pagination"
)

// Repository exposes persistence helpers for coupon instances. State
// transitions are conditional updates predicated on the current status,
// so a lost race surfaces as zero updated rows rather than a bad write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, couponID uuid.UUID) (*models.CouponInstance, error)
	MarkUsed(ctx context.Context, couponID, orderID uuid.UUID, now time.Time) (*models.CouponInstance, error)
	FreezeBatch(ctx context.Context, couponIDs []uuid.UUID) ([]models.CouponInstance, error)
	ListUnusedByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CouponInstance, error)
}

type repositoryImpl struct {
	base repo.Base
}

// NewRepository returns a coupons repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: r.base.WithTx(tx)}
}

func (r *repositoryImpl) GetByID(ctx context.Context, couponID uuid.UUID) (*models.CouponInstance, error) {
	var coupon models.CouponInstance
	if err := r.base.DB(ctx).Where("id = ?", couponID).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// MarkUsed transitions UNUSED to USED. A nil result with a nil error
// means the coupon was not in UNUSED state when the update ran.
func (r *repositoryImpl) MarkUsed(ctx context.Context, couponID, orderID uuid.UUID, now time.Time) (*models.CouponInstance, error) {
	rows, err := repo.UpdateWhere[models.CouponInstance](ctx, r.base,
		repo.Where("id = ? AND status = ?", couponID, enums.CouponStatusUnused),
		repo.Patch{
			"status":        enums.CouponStatusUsed,
			"used_at":       now,
			"used_order_id": orderID,
		},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// FreezeBatch transitions every still-UNUSED coupon to FROZEN in one
// transaction with one shared timestamp. Coupons in any other state are
// skipped, not errored.
func (r *repositoryImpl) FreezeBatch(ctx context.Context, couponIDs []uuid.UUID) ([]models.CouponInstance, error) {
	updates := make([]repo.Update, 0, len(couponIDs))
	for _, couponID := range couponIDs {
		updates = append(updates, repo.Update{
			Where: repo.Where("id = ? AND status = ?", couponID, enums.CouponStatusUnused),
			Patch: repo.Patch{"status": enums.CouponStatusFrozen},
		})
	}
	return repo.BatchUpdate[models.CouponInstance](ctx, r.base, updates, repo.BatchOptions{})
}

func (r *repositoryImpl) ListUnusedByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CouponInstance, error) {
	var coupons []models.CouponInstance
	err := r.base.DB(ctx).
		Where("member_id = ? AND status = ?", memberID, enums.CouponStatusUnused).
		Order("created_at ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}
