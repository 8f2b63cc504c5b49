package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

// CouponInstance is a coupon issued to a single member. It transitions
// exactly once from UNUSED to a terminal state and never reverts; the
// coupon state machine is the only legitimate mutator.
type CouponInstance struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TemplateID  uuid.UUID          `gorm:"column:template_id;type:uuid;not null;index"`
	MemberID    uuid.UUID          `gorm:"column:member_id;type:uuid;not null;index"`
	Status      enums.CouponStatus `gorm:"column:status;size:20;not null;default:UNUSED;index"`
	Value       decimal.Decimal    `gorm:"column:value;type:numeric(12,2);not null;default:0"`
	UsedAt      *time.Time         `gorm:"column:used_at"`
	UsedOrderID *uuid.UUID         `gorm:"column:used_order_id;type:uuid"`
	SourceType  string             `gorm:"column:source_type;size:30;not null"`
	CreatedAt   time.Time          `gorm:"column:created_at"`
	UpdatedAt   time.Time          `gorm:"column:updated_at"`
}

// TableName overrides the default pluralization.
func (CouponInstance) TableName() string {
	return "coupon_instance"
}
