package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord stores one caller-supplied operation key. The unique
// constraint on Key is the dedup mechanism: a second insert with the same
// key fails and the caller treats the operation as already executed.
type IdempotencyRecord struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Key       string          `gorm:"column:key;size:255;not null;uniqueIndex:idx_idempotency_key_key"`
	Result    json.RawMessage `gorm:"column:result;type:jsonb"`
	ExpiresAt time.Time       `gorm:"column:expires_at;not null;index"`
	CreatedAt time.Time       `gorm:"column:created_at"`
}

// TableName overrides the default pluralization.
func (IdempotencyRecord) TableName() string {
	return "idempotency_key"
}
