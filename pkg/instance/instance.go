package instance

import (
	"os"
	"strings"
)

// GetID identifies the running process: WORKSHEETS_INSTANCE_ID, then the
// hostname, then a fixed fallback.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("WORKSHEETS_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
