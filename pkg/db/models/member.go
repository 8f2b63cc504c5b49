package models

import (
	"time"

	"github.com/google/uuid"
)

// Member holds the mutable loyalty projection for a customer. The balance
// columns are denormalized from member_points_history and must only change
// in the same transaction as a history insert, under a row lock.
type Member struct {
	ID                     uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Phone                  string    `gorm:"column:phone;size:20"`
	Name                   string    `gorm:"column:name;size:100"`
	AvailablePointsBalance int64     `gorm:"column:available_points_balance;not null;default:0"`
	TotalPointsEarned      int64     `gorm:"column:total_points_earned;not null;default:0"`
	CreatedAt              time.Time `gorm:"column:created_at"`
	UpdatedAt              time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default pluralization.
func (Member) TableName() string {
	return "member"
}
