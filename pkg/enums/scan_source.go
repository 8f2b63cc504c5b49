package enums

import "fmt"

// ScanSource identifies where an offline campaign-code scan originated.
type ScanSource string

const (
	ScanSourcePOS        ScanSource = "POS"
	ScanSourceCashierApp ScanSource = "CASHIER_APP"
	ScanSourceAdmin      ScanSource = "ADMIN"
	ScanSourceQR         ScanSource = "QR"
)

var validScanSources = []ScanSource{
	ScanSourcePOS,
	ScanSourceCashierApp,
	ScanSourceAdmin,
	ScanSourceQR,
}

// IsValid reports whether the value matches the canonical scan source enum.
func (s ScanSource) IsValid() bool {
	for _, candidate := range validScanSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseScanSource converts raw input into ScanSource.
func ParseScanSource(value string) (ScanSource, error) {
	for _, candidate := range validScanSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scan source %q", value)
}
