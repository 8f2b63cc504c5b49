package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/volna-retail/loyalty-backend/pkg/enums"
	"github.com/volna-retail/loyalty-backend/pkg/types"
)

// AuditLogEntry is one link of a tamper-evident hash chain. Entries are
// append-only: PreviousHash references the prior entry in the same chain
// and SHA256Hash covers this entry's canonical payload, so any retroactive
// edit breaks the entry itself and every descendant.
type AuditLogEntry struct {
	ID           int64              `gorm:"column:id;primaryKey;autoIncrement"`
	Chain        string             `gorm:"column:chain;size:100;not null;default:global;index:idx_audit_log_chain"`
	EventID      string             `gorm:"column:event_id;size:64;not null;uniqueIndex"`
	TargetTable  string             `gorm:"column:table_name;size:100;not null;index:idx_audit_log_record"`
	RecordID     string             `gorm:"column:record_id;size:100;not null;index:idx_audit_log_record"`
	Action       enums.AuditAction  `gorm:"column:action;size:10;not null"`
	DiffBefore   types.JSONColumn   `gorm:"column:diff_before;type:jsonb"`
	DiffAfter    types.JSONColumn   `gorm:"column:diff_after;type:jsonb"`
	OperatorID   *uuid.UUID         `gorm:"column:operator_id;type:uuid"`
	OperatorType enums.OperatorType `gorm:"column:operator_type;size:20;not null;default:SYSTEM"`
	OperatorName *string            `gorm:"column:operator_name;size:100"`
	PreviousHash *string            `gorm:"column:previous_hash;size:64"`
	SHA256Hash   string             `gorm:"column:sha256_hash;size:64;not null"`
	CreatedAt    time.Time          `gorm:"column:created_at;not null"`
}

// TableName overrides the default pluralization.
func (AuditLogEntry) TableName() string {
	return "audit_log"
}

// AuditChainHead is the serialization point for appends: one row per
// chain, locked FOR UPDATE while the next entry is linked and inserted.
type AuditChainHead struct {
	Chain       string    `gorm:"column:chain;size:100;primaryKey"`
	LastHash    *string   `gorm:"column:last_hash;size:64"`
	LastEntryID *int64    `gorm:"column:last_entry_id"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default pluralization.
func (AuditChainHead) TableName() string {
	return "audit_chain_head"
}
