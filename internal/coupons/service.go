package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	"github.com/volna-retail/loyalty-backend/pkg/metrics"
)

// MarkUsedParams identifies the coupon to redeem and the order consuming it.
type MarkUsedParams struct {
	CouponID     uuid.UUID
	OrderID      uuid.UUID
	OperatorID   *uuid.UUID
	OperatorType enums.OperatorType
}

// FreezeResult partitions a freeze batch into transitioned and skipped
// coupons. Skipped holds the ids whose state had already moved on.
type FreezeResult struct {
	Frozen  []models.CouponInstance `json:"frozen"`
	Skipped []uuid.UUID             `json:"skipped"`
}

// Service drives the coupon state machine. UNUSED is the only state a
// coupon leaves; USED, EXPIRED and FROZEN are terminal for redemption.
type Service interface {
	// MarkUsed redeems the coupon for an order. Exactly one caller can
	// win; everyone else gets a state conflict, never a double spend.
	MarkUsed(ctx context.Context, params MarkUsedParams) (*models.CouponInstance, error)
	// BatchFreeze suspends every still-UNUSED coupon in the batch.
	BatchFreeze(ctx context.Context, couponIDs []uuid.UUID, operatorID *uuid.UUID) (*FreezeResult, error)
	GetByID(ctx context.Context, couponID uuid.UUID) (*models.CouponInstance, error)
	ListUnusedByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CouponInstance, error)
}

type service struct {
	repo    Repository
	auditor audit.Service
	log     *logger.Logger
	metrics *metrics.LedgerMetrics
}

// NewService wires coupon dependencies.
func NewService(repository Repository, auditor audit.Service, log *logger.Logger, m *metrics.LedgerMetrics) (Service, error) {
	if repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coupons repository required")
	}
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "coupons logger required")
	}
	return &service{repo: repository, auditor: auditor, log: log, metrics: m}, nil
}

func (s *service) MarkUsed(ctx context.Context, params MarkUsedParams) (*models.CouponInstance, error) {
	if params.CouponID == uuid.Nil || params.OrderID == uuid.Nil {
		s.metrics.IncCouponOperation("mark_used", "validation_error")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon id and order id required")
	}

	coupon, err := s.repo.MarkUsed(ctx, params.CouponID, params.OrderID, time.Now().UTC())
	if err != nil {
		s.metrics.IncCouponOperation("mark_used", "failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marking coupon used")
	}
	if coupon == nil {
		// Zero rows means the predicate failed. Distinguish a missing
		// coupon from one already redeemed, expired or frozen.
		existing, lookupErr := s.repo.GetByID(ctx, params.CouponID)
		if lookupErr != nil {
			if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
				s.metrics.IncCouponOperation("mark_used", "not_found")
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
			}
			s.metrics.IncCouponOperation("mark_used", "failure")
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "loading coupon")
		}
		s.metrics.IncCouponOperation("mark_used", "conflict")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "coupon unavailable").
			WithDetails(map[string]string{"status": string(existing.Status)})
	}

	s.metrics.IncCouponOperation("mark_used", "success")
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			TableName:    models.CouponInstance{}.TableName(),
			RecordID:     coupon.ID.String(),
			Action:       enums.AuditActionUpdate,
			DiffBefore:   map[string]any{"status": enums.CouponStatusUnused},
			DiffAfter:    map[string]any{"status": coupon.Status, "used_order_id": params.OrderID},
			OperatorID:   params.OperatorID,
			OperatorType: params.OperatorType,
		})
	}
	return coupon, nil
}

func (s *service) BatchFreeze(ctx context.Context, couponIDs []uuid.UUID, operatorID *uuid.UUID) (*FreezeResult, error) {
	if len(couponIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon ids required")
	}
	if len(couponIDs) > repo.DefaultMaxBatch {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many coupons in one batch").
			WithDetails(map[string]int{"max": repo.DefaultMaxBatch, "got": len(couponIDs)})
	}

	frozen, err := s.repo.FreezeBatch(ctx, couponIDs)
	if err != nil {
		s.metrics.IncCouponOperation("batch_freeze", "failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freezing coupons")
	}

	frozenSet := make(map[uuid.UUID]struct{}, len(frozen))
	for _, coupon := range frozen {
		frozenSet[coupon.ID] = struct{}{}
	}
	result := &FreezeResult{Frozen: frozen}
	for _, couponID := range couponIDs {
		if _, ok := frozenSet[couponID]; !ok {
			result.Skipped = append(result.Skipped, couponID)
		}
	}

	s.metrics.IncCouponOperation("batch_freeze", "success")
	if len(result.Skipped) > 0 {
		s.log.Info(s.log.WithField(ctx, "skipped", len(result.Skipped)), "freeze batch skipped non-unused coupons")
	}
	if s.auditor != nil {
		for i := range frozen {
			s.auditor.Record(ctx, audit.Entry{
				TableName:    models.CouponInstance{}.TableName(),
				RecordID:     frozen[i].ID.String(),
				Action:       enums.AuditActionUpdate,
				DiffBefore:   map[string]any{"status": enums.CouponStatusUnused},
				DiffAfter:    map[string]any{"status": enums.CouponStatusFrozen},
				OperatorID:   operatorID,
				OperatorType: enums.OperatorTypeAdmin,
			})
		}
	}
	return result, nil
}

func (s *service) GetByID(ctx context.Context, couponID uuid.UUID) (*models.CouponInstance, error) {
	if couponID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon id required")
	}
	coupon, err := s.repo.GetByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading coupon")
	}
	return coupon, nil
}

func (s *service) ListUnusedByMember(ctx context.Context, memberID uuid.UUID, limit int) ([]models.CouponInstance, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	coupons, err := s.repo.ListUnusedByMember(ctx, memberID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing coupons")
	}
	return coupons, nil
}
