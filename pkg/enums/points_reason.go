package enums

import "fmt"

// PointsReason explains why a points ledger entry was written.
type PointsReason string

const (
	PointsReasonSignupBonus PointsReason = "SIGNUP_BONUS"
	PointsReasonOrderEarn   PointsReason = "ORDER_EARN"
	PointsReasonOrderRedeem PointsReason = "ORDER_REDEEM"
	PointsReasonAdminAdjust PointsReason = "ADMIN_ADJUST"
	PointsReasonRefund      PointsReason = "REFUND"
	PointsReasonExpired     PointsReason = "EXPIRED"
)

var validPointsReasons = []PointsReason{
	PointsReasonSignupBonus,
	PointsReasonOrderEarn,
	PointsReasonOrderRedeem,
	PointsReasonAdminAdjust,
	PointsReasonRefund,
	PointsReasonExpired,
}

// IsValid reports whether the value matches the canonical points reason enum.
func (r PointsReason) IsValid() bool {
	for _, candidate := range validPointsReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParsePointsReason converts raw input into PointsReason.
func ParsePointsReason(value string) (PointsReason, error) {
	for _, candidate := range validPointsReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid points reason %q", value)
}
