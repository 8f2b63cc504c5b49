package scans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	"github.com/volna-retail/loyalty-backend/pkg/metrics"
)

// LogScanParams describes one scan event from an offline channel. The
// client generates ClientEventID once per physical scan and reuses it on
// every retry, which is what makes retries collapse into duplicates.
type LogScanParams struct {
	ClientEventID  uuid.UUID
	CampaignCodeID uuid.UUID
	StoreID        uuid.UUID
	CashierID      *uuid.UUID
	Source         enums.ScanSource
	ScannedAt      time.Time
}

// LogScanResult reports the stored scan and whether this delivery was a
// replay of an already-recorded event.
type LogScanResult struct {
	Scan      *models.OfflineScanLog `json:"scan"`
	Duplicate bool                   `json:"duplicate"`
}

// MatchParams links a recorded scan to the order it produced.
type MatchParams struct {
	ScanID      uuid.UUID
	OrderID     uuid.UUID
	OrderAmount decimal.Decimal
	Method      enums.MatchMethod
	OperatorID  *uuid.UUID
}

// Service ingests offline scan events exactly once and attributes orders
// back to campaign codes.
type Service interface {
	// LogScan records a scan event. Redelivery of a known client event id
	// bumps the duplicate counter instead of creating a second row, and
	// never moves the campaign scan counter twice.
	LogScan(ctx context.Context, params LogScanParams) (*LogScanResult, error)
	// MatchScanToOrder attributes an order to a scan exactly once.
	MatchScanToOrder(ctx context.Context, params MatchParams) (*models.OfflineScanLog, error)
	GetCodeStats(ctx context.Context, campaignCodeID uuid.UUID) (*models.CampaignCode, error)
	ListUnmatched(ctx context.Context, storeID uuid.UUID, limit int) ([]models.OfflineScanLog, error)
}

type service struct {
	conn    *gorm.DB
	repo    Repository
	auditor audit.Service
	log     *logger.Logger
	metrics *metrics.LedgerMetrics
}

// NewService wires scan dependencies.
func NewService(conn *gorm.DB, repository Repository, auditor audit.Service, log *logger.Logger, m *metrics.LedgerMetrics) (Service, error) {
	if conn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scans database required")
	}
	if repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scans repository required")
	}
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "scans logger required")
	}
	return &service{conn: conn, repo: repository, auditor: auditor, log: log, metrics: m}, nil
}

func (s *service) LogScan(ctx context.Context, params LogScanParams) (*LogScanResult, error) {
	if err := validateLogScan(params); err != nil {
		return nil, err
	}

	scannedAt := params.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now().UTC()
	}

	scan := &models.OfflineScanLog{
		ID:             uuid.New(),
		ClientEventID:  params.ClientEventID,
		CampaignCodeID: params.CampaignCodeID,
		StoreID:        params.StoreID,
		CashierID:      params.CashierID,
		ScanSource:     params.Source,
		ScannedAt:      scannedAt.UTC(),
	}

	// Insert and counter move together; a unique violation rolls both
	// back, so a duplicate delivery can never double-count the campaign.
	err := db.RunInTx(ctx, s.conn, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)
		if _, err := repository.GetCampaignCode(ctx, params.CampaignCodeID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "campaign code not found")
			}
			return err
		}
		if err := repository.InsertScan(ctx, scan); err != nil {
			return err
		}
		return repository.IncrementScanCount(ctx, params.CampaignCodeID)
	})
	if err == nil {
		if s.auditor != nil {
			s.auditor.Record(ctx, audit.Entry{
				TableName: models.OfflineScanLog{}.TableName(),
				RecordID:  scan.ID.String(),
				Action:    enums.AuditActionInsert,
				DiffAfter: scan,
			})
		}
		return &LogScanResult{Scan: scan}, nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return nil, typed
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording scan")
	}

	// The violating insert already rolled back, so the original row is
	// the committed one; only its duplicate counter moves now.
	existing, err := s.repo.BumpDuplicate(ctx, params.ClientEventID, time.Now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording duplicate scan")
	}

	s.metrics.IncDuplicateScan()
	s.log.Info(s.log.WithField(ctx, "client_event_id", params.ClientEventID.String()), "duplicate scan absorbed")
	return &LogScanResult{Scan: existing, Duplicate: true}, nil
}

func (s *service) MatchScanToOrder(ctx context.Context, params MatchParams) (*models.OfflineScanLog, error) {
	if params.ScanID == uuid.Nil || params.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan id and order id required")
	}
	if params.OrderAmount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount cannot be negative")
	}
	if !params.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "match method invalid")
	}

	var matched *models.OfflineScanLog
	err := db.RunInTx(ctx, s.conn, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)

		scan, err := repository.MarkMatched(ctx, params.ScanID, params.OrderID, params.OrderAmount, params.Method, time.Now().UTC())
		if err != nil {
			return err
		}
		if scan == nil {
			if _, lookupErr := repository.GetScanByID(ctx, params.ScanID); lookupErr != nil {
				if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "scan not found")
				}
				return lookupErr
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "scan already matched")
		}

		matched = scan
		return repository.RecordMatchedOrder(ctx, scan.CampaignCodeID, params.OrderAmount)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "matching scan to order")
	}

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			TableName:  models.OfflineScanLog{}.TableName(),
			RecordID:   matched.ID.String(),
			Action:     enums.AuditActionUpdate,
			DiffBefore: map[string]any{"matched": false},
			DiffAfter: map[string]any{
				"matched":      true,
				"order_id":     params.OrderID,
				"order_amount": params.OrderAmount,
				"match_method": params.Method,
			},
			OperatorID: params.OperatorID,
		})
	}
	return matched, nil
}

func (s *service) GetCodeStats(ctx context.Context, campaignCodeID uuid.UUID) (*models.CampaignCode, error) {
	if campaignCodeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign code id required")
	}
	code, err := s.repo.GetCampaignCode(ctx, campaignCodeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading campaign code")
	}
	return code, nil
}

func (s *service) ListUnmatched(ctx context.Context, storeID uuid.UUID, limit int) ([]models.OfflineScanLog, error) {
	scans, err := s.repo.ListUnmatched(ctx, storeID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing unmatched scans")
	}
	return scans, nil
}

func validateLogScan(params LogScanParams) error {
	if params.ClientEventID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client event id required")
	}
	if params.CampaignCodeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "campaign code id required")
	}
	if params.StoreID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "store id required")
	}
	if !params.Source.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "scan source invalid")
	}
	return nil
}
