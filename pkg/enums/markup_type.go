package enums

import "fmt"

// MarkupType describes how markup_value is applied to the supplier price.
type MarkupType string

const (
	MarkupTypeFixed      MarkupType = "fixed"
	MarkupTypePercentage MarkupType = "percentage"
)

var validMarkupTypes = []MarkupType{
	MarkupTypeFixed,
	MarkupTypePercentage,
}

// String implements fmt.Stringer.
func (m MarkupType) String() string {
	return string(m)
}

// IsValid reports whether the markup type is recognized.
func (m MarkupType) IsValid() bool {
	for _, candidate := range validMarkupTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMarkupType converts a raw string into a MarkupType.
func ParseMarkupType(value string) (MarkupType, error) {
	for _, candidate := range validMarkupTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid markup type %q", value)
}
