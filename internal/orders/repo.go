package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/pagination"
)

// Repository exposes persistence helpers for finalized orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	// CountByNumberPrefix reports how many orders carry a number with the
	// given prefix, which drives the per-day sequence.
	CountByNumberPrefix(ctx context.Context, prefix string) (int64, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Order, error)
}

type repositoryImpl struct {
	base repo.Base
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: r.base.WithTx(tx)}
}

func (r *repositoryImpl) Insert(ctx context.Context, order *models.Order) error {
	return repo.Insert(ctx, r.base, order)
}

func (r *repositoryImpl) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.base.DB(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := r.base.DB(ctx).
		Preload("Items").
		Where("order_number = ?", orderNumber).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repositoryImpl) CountByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := r.base.DB(ctx).
		Model(&models.Order{}).
		Where("order_number LIKE ?", prefix+"%").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repositoryImpl) ListByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.base.DB(ctx).
		Where("member_id = ?", memberID).
		Order("created_at DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
