package scans

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	"github.com/volna-retail/loyalty-backend/pkg/pagination"
)

// Repository exposes persistence helpers for offline scan events and
// campaign code counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertScan(ctx context.Context, scan *models.OfflineScanLog) error
	GetScanByID(ctx context.Context, scanID uuid.UUID) (*models.OfflineScanLog, error)
	GetScanByClientEventID(ctx context.Context, clientEventID uuid.UUID) (*models.OfflineScanLog, error)
	// BumpDuplicate increments the dup counter on the scan owning the
	// client event id and returns the updated row.
	BumpDuplicate(ctx context.Context, clientEventID uuid.UUID, now time.Time) (*models.OfflineScanLog, error)
	// MarkMatched flips an unmatched scan to matched. A nil result with a
	// nil error means the scan was already matched when the update ran.
	MarkMatched(ctx context.Context, scanID, orderID uuid.UUID, amount decimal.Decimal, method enums.MatchMethod, now time.Time) (*models.OfflineScanLog, error)
	GetCampaignCode(ctx context.Context, campaignCodeID uuid.UUID) (*models.CampaignCode, error)
	IncrementScanCount(ctx context.Context, campaignCodeID uuid.UUID) error
	// RecordMatchedOrder moves the campaign order counter and GMV total
	// together, inside the caller's transaction.
	RecordMatchedOrder(ctx context.Context, campaignCodeID uuid.UUID, amount decimal.Decimal) error
	ListUnmatched(ctx context.Context, storeID uuid.UUID, limit int) ([]models.OfflineScanLog, error)
}

type repositoryImpl struct {
	base repo.Base
}

// NewRepository returns a scans repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{base: repo.NewBase(db)}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{base: r.base.WithTx(tx)}
}

func (r *repositoryImpl) InsertScan(ctx context.Context, scan *models.OfflineScanLog) error {
	return repo.Insert(ctx, r.base, scan)
}

func (r *repositoryImpl) GetScanByID(ctx context.Context, scanID uuid.UUID) (*models.OfflineScanLog, error) {
	var scan models.OfflineScanLog
	if err := r.base.DB(ctx).Where("id = ?", scanID).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

func (r *repositoryImpl) GetScanByClientEventID(ctx context.Context, clientEventID uuid.UUID) (*models.OfflineScanLog, error) {
	var scan models.OfflineScanLog
	if err := r.base.DB(ctx).Where("client_event_id = ?", clientEventID).First(&scan).Error; err != nil {
		return nil, err
	}
	return &scan, nil
}

func (r *repositoryImpl) BumpDuplicate(ctx context.Context, clientEventID uuid.UUID, now time.Time) (*models.OfflineScanLog, error) {
	rows, err := repo.UpdateWhere[models.OfflineScanLog](ctx, r.base,
		repo.Where("client_event_id = ?", clientEventID),
		repo.Patch{
			"dup_count":   gorm.Expr("dup_count + 1"),
			"last_dup_at": now,
		},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &rows[0], nil
}

func (r *repositoryImpl) MarkMatched(ctx context.Context, scanID, orderID uuid.UUID, amount decimal.Decimal, method enums.MatchMethod, now time.Time) (*models.OfflineScanLog, error) {
	rows, err := repo.UpdateWhere[models.OfflineScanLog](ctx, r.base,
		repo.Where("id = ? AND matched = ?", scanID, false),
		repo.Patch{
			"matched":      true,
			"matched_at":   now,
			"match_method": method,
			"order_id":     orderID,
			"order_amount": amount,
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

func (r *repositoryImpl) GetCampaignCode(ctx context.Context, campaignCodeID uuid.UUID) (*models.CampaignCode, error) {
	var code models.CampaignCode
	if err := r.base.DB(ctx).Where("id = ?", campaignCodeID).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repositoryImpl) IncrementScanCount(ctx context.Context, campaignCodeID uuid.UUID) error {
	_, err := repo.UpdateWhere[models.CampaignCode](ctx, r.base,
		repo.Where("id = ?", campaignCodeID),
		repo.Patch{"scan_count": gorm.Expr("scan_count + 1")},
	)
	return err
}

func (r *repositoryImpl) RecordMatchedOrder(ctx context.Context, campaignCodeID uuid.UUID, amount decimal.Decimal) error {
	_, err := repo.UpdateWhere[models.CampaignCode](ctx, r.base,
		repo.Where("id = ?", campaignCodeID),
		repo.Patch{
			"order_count": gorm.Expr("order_count + 1"),
			"total_gmv":   gorm.Expr("total_gmv + ?", amount),
		},
	)
	return err
}

func (r *repositoryImpl) ListUnmatched(ctx context.Context, storeID uuid.UUID, limit int) ([]models.OfflineScanLog, error) {
	query := r.base.DB(ctx).
		Model(&models.OfflineScanLog{}).
		Where("matched = ?", false)
	if storeID != uuid.Nil {
		query = query.Where("store_id = ?", storeID)
	}

	var scans []models.OfflineScanLog
	err := query.Order("scanned_at ASC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&scans).Error
	if err != nil {
		return nil, err
	}
	return scans, nil
}
