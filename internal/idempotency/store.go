package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/volna-retail/loyalty-backend/pkg/db/models"
)

// BeginResult reports whether the caller won the right to execute a keyed
// operation. Losers receive the stored outcome of the winning execution.
type BeginResult struct {
	IsNew  bool
	Record *models.IdempotencyRecord
}

// Store persists operation keys so retried requests become no-ops. The
// unique constraint on the key column is the arbitration mechanism: under
// a race, exactly one insert wins and every loser reads the winning row.
type Store interface {
	WithTx(tx *gorm.DB) Store
	TryBegin(ctx context.Context, key string, result any, ttl time.Duration) (BeginResult, error)
	Find(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type store struct {
	db *gorm.DB
}

// NewStore returns an idempotency store bound to the provided database.
func NewStore(conn *gorm.DB) Store {
	return &store{db: conn}
}

func (s *store) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return s
	}
	return &store{db: tx}
}

// TryBegin inserts the key, recording result as the operation's outcome
// payload. When the key already exists the existing record is returned
// with IsNew=false. The insert uses ON CONFLICT DO NOTHING rather than
// catching the constraint violation: callers invoke TryBegin inside their
// own transactions, and postgres aborts a transaction the moment a
// constraint error is raised, which would poison every statement after it.
func (s *store) TryBegin(ctx context.Context, key string, result any, ttl time.Duration) (BeginResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return BeginResult{}, fmt.Errorf("idempotency key is required")
	}
	if ttl <= 0 {
		return BeginResult{}, fmt.Errorf("idempotency ttl must be positive")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return BeginResult{}, fmt.Errorf("encoding idempotency result: %w", err)
	}

	now := time.Now().UTC()
	record := models.IdempotencyRecord{
		ID:        uuid.New(),
		Key:       key,
		Result:    payload,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "key"}}, DoNothing: true}).
		Create(&record)
	if res.Error != nil {
		return BeginResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		existing, findErr := s.Find(ctx, key)
		if findErr != nil {
			return BeginResult{}, findErr
		}
		return BeginResult{IsNew: false, Record: existing}, nil
	}

	return BeginResult{IsNew: true, Record: &record}, nil
}

func (s *store) Find(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// PurgeExpired deletes records past their expiry. Expiry is storage
// hygiene only; correctness never depends on it.
func (s *store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.IdempotencyRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
