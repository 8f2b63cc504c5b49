package points

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/volna-retail/loyalty-backend/internal/audit"
	"github.com/volna-retail/loyalty-backend/internal/idempotency"
	"github.com/volna-retail/loyalty-backend/internal/repo"
	"github.com/volna-retail/loyalty-backend/pkg/db"
	"github.com/volna-retail/loyalty-backend/pkg/db/models"
	"github.com/volna-retail/loyalty-backend/pkg/enums"
	pkgerrors "github.com/volna-retail/loyalty-backend/pkg/errors"
	"github.com/volna-retail/loyalty-backend/pkg/logger"
	"github.com/volna-retail/loyalty-backend/pkg/metrics"
	"github.com/volna-retail/loyalty-backend/pkg/pagination"
)

const defaultKeyTTL = 24 * time.Hour

// errReplayed aborts the mutation transaction when the idempotency key
// already belongs to an earlier execution. It never escapes the service.
var errReplayed = errors.New("points operation replayed")

// MutateParams describes one balance mutation. Points is always positive;
// the operation decides the sign.
type MutateParams struct {
	MemberID       uuid.UUID
	Points         int64
	Reason         enums.PointsReason
	Description    *string
	OrderID        *uuid.UUID
	IdempotencyKey string
	OperatorID     *uuid.UUID
	OperatorType   enums.OperatorType
}

// Result reports the outcome of a balance mutation. Replayed executions
// return the original outcome, not a fresh one.
type Result struct {
	EntryID      uuid.UUID `json:"entry_id"`
	MemberID     uuid.UUID `json:"member_id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Replayed     bool      `json:"replayed"`
}

// Balance is the read projection of a member's points position.
type Balance struct {
	MemberID          uuid.UUID `json:"member_id"`
	Available         int64     `json:"available"`
	TotalPointsEarned int64     `json:"total_points_earned"`
}

// HistoryParams configures pagination for a member's ledger history.
type HistoryParams struct {
	MemberID uuid.UUID
	Limit    int
	Cursor   string
}

// HistoryResult wraps returned entries and the cursor for the next page.
type HistoryResult struct {
	Items  []models.PointsLedgerEntry `json:"items"`
	Cursor string                     `json:"cursor"`
}

// Service defines points ledger operations. Every mutation locks the
// member row, snapshots the balance into an immutable history entry, and
// commits both in one transaction.
type Service interface {
	Add(ctx context.Context, params MutateParams) (*Result, error)
	Deduct(ctx context.Context, params MutateParams) (*Result, error)
	GetBalance(ctx context.Context, memberID uuid.UUID) (*Balance, error)
	GetHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error)
}

// Options configures the points service.
type Options struct {
	KeyTTL time.Duration
}

type service struct {
	conn    *gorm.DB
	repo    Repository
	idem    idempotency.Store
	auditor audit.Service
	log     *logger.Logger
	metrics *metrics.LedgerMetrics
	keyTTL  time.Duration
}

// NewService wires points dependencies.
func NewService(conn *gorm.DB, repository Repository, idem idempotency.Store, auditor audit.Service, log *logger.Logger, m *metrics.LedgerMetrics, opts Options) (Service, error) {
	if conn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "points database required")
	}
	if repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "points repository required")
	}
	if idem == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "idempotency store required")
	}
	if log == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "points logger required")
	}
	keyTTL := opts.KeyTTL
	if keyTTL <= 0 {
		keyTTL = defaultKeyTTL
	}
	return &service{
		conn:    conn,
		repo:    repository,
		idem:    idem,
		auditor: auditor,
		log:     log,
		metrics: m,
		keyTTL:  keyTTL,
	}, nil
}

func (s *service) Add(ctx context.Context, params MutateParams) (*Result, error) {
	return s.mutate(ctx, "add", params, params.Points)
}

func (s *service) Deduct(ctx context.Context, params MutateParams) (*Result, error) {
	return s.mutate(ctx, "deduct", params, -params.Points)
}

func (s *service) mutate(ctx context.Context, operation string, params MutateParams, delta int64) (*Result, error) {
	if err := validateMutate(params); err != nil {
		s.metrics.IncPointsOperation(operation, "validation_error")
		return nil, err
	}

	start := time.Now()
	var (
		result *Result
		entry  *models.PointsLedgerEntry
		replay *models.IdempotencyRecord
	)

	err := db.RunInTx(ctx, s.conn, func(tx *gorm.DB) error {
		repository := s.repo.WithTx(tx)

		member, err := repository.LockMember(ctx, params.MemberID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
			}
			return err
		}

		if delta < 0 && member.AvailablePointsBalance+delta < 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientBalance, "points balance too low").
				WithDetails(map[string]int64{
					"available": member.AvailablePointsBalance,
					"requested": -delta,
				})
		}

		balanceAfter := member.AvailablePointsBalance + delta
		entry = &models.PointsLedgerEntry{
			ID:           uuid.New(),
			MemberID:     params.MemberID,
			Delta:        delta,
			BalanceAfter: balanceAfter,
			Reason:       params.Reason,
			Description:  params.Description,
			OrderID:      params.OrderID,
		}
		if params.IdempotencyKey != "" {
			entry.IdempotencyKey = &params.IdempotencyKey
		}

		result = &Result{
			EntryID:      entry.ID,
			MemberID:     params.MemberID,
			Delta:        delta,
			BalanceAfter: balanceAfter,
		}

		// The key is claimed inside the mutation transaction, so the
		// claim and the mutation commit or roll back together. Losing
		// the claim means an earlier execution already committed.
		if params.IdempotencyKey != "" {
			begin, err := s.idem.WithTx(tx).TryBegin(ctx, params.IdempotencyKey, result, s.keyTTL)
			if err != nil {
				return err
			}
			if !begin.IsNew {
				replay = begin.Record
				return errReplayed
			}
		}

		patch := repo.Patch{"available_points_balance": balanceAfter}
		if delta > 0 {
			patch["total_points_earned"] = member.TotalPointsEarned + delta
		}
		if _, err := repository.UpdateBalance(ctx, params.MemberID, patch); err != nil {
			return err
		}
		return repository.InsertEntry(ctx, entry)
	})

	if errors.Is(err, errReplayed) {
		stored, decodeErr := decodeReplay(replay)
		if decodeErr != nil {
			s.metrics.IncPointsOperation(operation, "failure")
			return nil, pkgerrors.Wrap(pkgerrors.CodeIdempotency, decodeErr, "decoding replayed result")
		}
		s.metrics.IncPointsOperation(operation, "replayed")
		s.log.Info(s.log.WithField(ctx, "idempotency_key", params.IdempotencyKey), "points operation replayed")
		return stored, nil
	}
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.IncPointsOperation(operation, "rejected")
			return nil, typed
		}
		s.metrics.IncPointsOperation(operation, "failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mutating points balance")
	}

	s.metrics.IncPointsOperation(operation, "success")
	s.metrics.ObserveTransaction("points_"+operation, time.Since(start))

	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			TableName:    models.PointsLedgerEntry{}.TableName(),
			RecordID:     entry.ID.String(),
			Action:       enums.AuditActionInsert,
			DiffAfter:    entry,
			OperatorID:   params.OperatorID,
			OperatorType: params.OperatorType,
		})
	}
	return result, nil
}

func (s *service) GetBalance(ctx context.Context, memberID uuid.UUID) (*Balance, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	member, err := s.repo.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading member")
	}
	return &Balance{
		MemberID:          member.ID,
		Available:         member.AvailablePointsBalance,
		TotalPointsEarned: member.TotalPointsEarned,
	}, nil
}

func (s *service) GetHistory(ctx context.Context, params HistoryParams) (*HistoryResult, error) {
	if params.MemberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}

	query := listEntriesParams{
		MemberID: params.MemberID,
		Limit:    params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	entries, next, err := s.repo.ListEntries(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing points history")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &HistoryResult{Items: entries, Cursor: cursor}, nil
}

func validateMutate(params MutateParams) error {
	if params.MemberID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if params.Points <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	if !params.Reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "points reason invalid")
	}
	return nil
}

func decodeReplay(record *models.IdempotencyRecord) (*Result, error) {
	if record == nil {
		return nil, errors.New("replayed record missing")
	}
	var stored Result
	if err := json.Unmarshal(record.Result, &stored); err != nil {
		return nil, err
	}
	stored.Replayed = true
	return &stored, nil
}
