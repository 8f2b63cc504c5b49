package enums

import "fmt"

// CouponStatus maps to the coupon_status_enum enum in Postgres.
type CouponStatus string

const (
	CouponStatusUnused  CouponStatus = "UNUSED"
	CouponStatusUsed    CouponStatus = "USED"
	CouponStatusExpired CouponStatus = "EXPIRED"
	CouponStatusFrozen  CouponStatus = "FROZEN"
)

var validCouponStatuses = []CouponStatus{
	CouponStatusUnused,
	CouponStatusUsed,
	CouponStatusExpired,
	CouponStatusFrozen,
}

// IsValid reports whether the value matches the canonical coupon status enum.
func (s CouponStatus) IsValid() bool {
	for _, candidate := range validCouponStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s CouponStatus) IsTerminal() bool {
	return s == CouponStatusUsed || s == CouponStatusExpired || s == CouponStatusFrozen
}

// ParseCouponStatus converts raw input into CouponStatus.
func ParseCouponStatus(value string) (CouponStatus, error) {
	for _, candidate := range validCouponStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon status %q", value)
}
