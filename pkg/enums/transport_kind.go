package enums

import (
	"fmt"
	"strings"
)

// TransportKind selects the supplier gateway adapter family.
type TransportKind string

const (
	TransportKindRESTFlat   TransportKind = "rest_flat"
	TransportKindRESTNested TransportKind = "rest_nested"
	TransportKindSquare     TransportKind = "square"
)

var validTransportKinds = []TransportKind{
	TransportKindRESTFlat,
	TransportKindRESTNested,
	TransportKindSquare,
}

// String implements fmt.Stringer.
func (k TransportKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a registered transport kind.
func (k TransportKind) IsValid() bool {
	for _, candidate := range validTransportKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTransportKind converts raw input into a TransportKind.
func ParseTransportKind(value string) (TransportKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validTransportKinds {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transport kind %q", value)
}
