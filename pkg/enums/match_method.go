package enums

import "fmt"

// MatchMethod records how an offline scan was associated with an order.
type MatchMethod string

const (
	MatchMethodAuto   MatchMethod = "AUTO"
	MatchMethodManual MatchMethod = "MANUAL"
	MatchMethodPOS    MatchMethod = "POS"
)

var validMatchMethods = []MatchMethod{
	MatchMethodAuto,
	MatchMethodManual,
	MatchMethodPOS,
}

// IsValid reports whether the value matches the canonical match method enum.
func (m MatchMethod) IsValid() bool {
	for _, candidate := range validMatchMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMatchMethod converts raw input into MatchMethod.
func ParseMatchMethod(value string) (MatchMethod, error) {
	for _, candidate := range validMatchMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid match method %q", value)
}
