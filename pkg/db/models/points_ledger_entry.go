package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

// PointsLedgerEntry is an immutable record of one balance mutation.
// BalanceAfter is a snapshot taken under the member row lock, never
// recomputed. Rows are never updated or deleted after insert.
type PointsLedgerEntry struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID       uuid.UUID          `gorm:"column:member_id;type:uuid;not null;index"`
	Delta          int64              `gorm:"column:delta;not null"`
	BalanceAfter   int64              `gorm:"column:balance_after;not null"`
	Reason         enums.PointsReason `gorm:"column:reason;size:50;not null"`
	Description    *string            `gorm:"column:description"`
	OrderID        *uuid.UUID         `gorm:"column:order_id;type:uuid;index"`
	IdempotencyKey *string            `gorm:"column:idempotency_key;size:255"`
	CreatedAt      time.Time          `gorm:"column:created_at"`
}

// TableName overrides the default pluralization.
func (PointsLedgerEntry) TableName() string {
	return "member_points_history"
}
