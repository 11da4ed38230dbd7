package enums

import "fmt"

// SyncStatus tracks the outcome of the latest synchronization attempt for a link.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

var validSyncStatuses = []SyncStatus{
	SyncStatusPending,
	SyncStatusSuccess,
	SyncStatusError,
}

func (s SyncStatus) String() string {
	return string(s)
}

func (s SyncStatus) IsValid() bool {
	for _, candidate := range validSyncStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the attempt has finished.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusError
}

func ParseSyncStatus(value string) (SyncStatus, error) {
	for _, candidate := range validSyncStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync status %q", value)
}
