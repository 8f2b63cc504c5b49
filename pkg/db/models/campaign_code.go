package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignCode aggregates offline-channel stats for one influencer code.
// ScanCount, OrderCount and TotalGMV are counters maintained inside the
// same transaction as the scan mutation that moves them.
type CampaignCode struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code       string          `gorm:"column:code;size:20;not null;uniqueIndex"`
	ScanCount  int64           `gorm:"column:scan_count;not null;default:0"`
	OrderCount int64           `gorm:"column:order_count;not null;default:0"`
	TotalGMV   decimal.Decimal `gorm:"column:total_gmv;type:numeric(12,2);not null;default:0"`
	IsActive   bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

// TableName overrides the default pluralization.
func (CampaignCode) TableName() string {
	return "campaign_code"
}
