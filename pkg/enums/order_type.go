package enums

import "fmt"

// OrderType distinguishes fulfillment modes for an order.
type OrderType string

const (
	OrderTypeDelivery OrderType = "DELIVERY"
	OrderTypePickup   OrderType = "PICKUP"
	OrderTypeDineIn   OrderType = "DINE_IN"
)

var validOrderTypes = []OrderType{
	OrderTypeDelivery,
	OrderTypePickup,
	OrderTypeDineIn,
}

// IsValid reports whether the value matches the canonical order type enum.
func (o OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderType converts raw input into OrderType.
func ParseOrderType(value string) (OrderType, error) {
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
