package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

// OfflineScanLog records one logical scan event from an unreliable offline
// channel. ClientEventID is the caller-generated dedup key: the unique
// constraint turns "insert the same event twice" into "bump DupCount".
type OfflineScanLog struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ClientEventID  uuid.UUID          `gorm:"column:client_event_id;type:uuid;not null;uniqueIndex:idx_offline_scan_log_client_event"`
	CampaignCodeID uuid.UUID          `gorm:"column:campaign_code_id;type:uuid;not null;index"`
	StoreID        uuid.UUID          `gorm:"column:store_id;type:uuid;not null;index"`
	CashierID      *uuid.UUID         `gorm:"column:cashier_id;type:uuid"`
	ScanSource     enums.ScanSource   `gorm:"column:scan_source;size:20;not null"`
	OrderID        *uuid.UUID         `gorm:"column:order_id;type:uuid"`
	OrderAmount    *decimal.Decimal   `gorm:"column:order_amount;type:numeric(12,2)"`
	ScannedAt      time.Time          `gorm:"column:scanned_at;not null"`
	Matched        bool               `gorm:"column:matched;not null;default:false;index:idx_offline_scan_log_matched"`
	MatchedAt      *time.Time         `gorm:"column:matched_at"`
	MatchMethod    *enums.MatchMethod `gorm:"column:match_method;size:20"`
	DupCount       int64              `gorm:"column:dup_count;not null;default:0"`
	LastDupAt      *time.Time         `gorm:"column:last_dup_at"`
	CreatedAt      time.Time          `gorm:"column:created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at"`
}

// TableName overrides the default pluralization.
func (OfflineScanLog) TableName() string {
	return "offline_scan_log"
}
