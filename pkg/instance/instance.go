package instance

import "os"

const envInstanceID = "DROPSYNC_INSTANCE_ID"

// GetID returns the replica identifier used in logs and lock ownership
// diagnostics: DROPSYNC_INSTANCE_ID, then the hostname, then "local".
func GetID() string {
	if id := os.Getenv(envInstanceID); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
