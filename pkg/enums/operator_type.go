package enums

import "fmt"

// OperatorType identifies what kind of actor performed an audited mutation.
type OperatorType string

const (
	OperatorTypeAdmin  OperatorType = "ADMIN"
	OperatorTypeStaff  OperatorType = "STAFF"
	OperatorTypeMember OperatorType = "MEMBER"
	OperatorTypeSystem OperatorType = "SYSTEM"
)

var validOperatorTypes = []OperatorType{
	OperatorTypeAdmin,
	OperatorTypeStaff,
	OperatorTypeMember,
	OperatorTypeSystem,
}

// IsValid reports whether the value matches the canonical operator type enum.
func (o OperatorType) IsValid() bool {
	for _, candidate := range validOperatorTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOperatorType converts raw input into OperatorType.
func ParseOperatorType(value string) (OperatorType, error) {
	for _, candidate := range validOperatorTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator type %q", value)
}
