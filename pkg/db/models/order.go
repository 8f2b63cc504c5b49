package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volna-retail/loyalty-backend/pkg/enums"
)

// Order is a finalized customer order. UsedPoints and CouponInstanceID are
// mutually exclusive; the service layer rejects the combination before any
// write and the order_points_coupon_mutual_exclusion CHECK constraint in
// the schema is the last line of defense.
type Order struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber          string          `gorm:"column:order_number;size:30;not null;uniqueIndex"`
	MemberID             uuid.UUID       `gorm:"column:member_id;type:uuid;not null;index"`
	StoreID              uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index"`
	OrderType            enums.OrderType `gorm:"column:order_type;size:20;not null"`
	Subtotal             decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountAmount       decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	DeliveryFee          decimal.Decimal `gorm:"column:delivery_fee;type:numeric(12,2);not null;default:0"`
	TotalAmount          decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	UsedPoints           int64           `gorm:"column:used_points;not null;default:0"`
	PointsDiscountAmount decimal.Decimal `gorm:"column:points_discount_amount;type:numeric(12,2);not null;default:0"`
	CouponInstanceID     *uuid.UUID      `gorm:"column:coupon_instance_id;type:uuid"`
	CouponDiscountAmount decimal.Decimal `gorm:"column:coupon_discount_amount;type:numeric(12,2);not null;default:0"`
	EarnedPoints         int64           `gorm:"column:earned_points;not null;default:0"`
	CampaignCodeID       *uuid.UUID      `gorm:"column:campaign_code_id;type:uuid"`
	CreatedAt            time.Time       `gorm:"column:created_at"`
	UpdatedAt            time.Time       `gorm:"column:updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// TableName overrides the default pluralization.
func (Order) TableName() string {
	return "customer_order"
}

// OrderItem is one line of a finalized order; prices are captured at
// submit time and never recomputed from the catalog afterwards.
type OrderItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string          `gorm:"column:product_name;size:200;not null"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity       int             `gorm:"column:quantity;not null"`
	TotalPrice     decimal.Decimal `gorm:"column:total_price;type:numeric(12,2);not null"`
	IsSpecialPrice bool            `gorm:"column:is_special_price;not null;default:false"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

// TableName overrides the default pluralization.
func (OrderItem) TableName() string {
	return "customer_order_item"
}
