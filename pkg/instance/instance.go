package instance

import (
	"os"
	"strings"
)

// GetID names this process for lock ownership and logs: TITHE_WORKER_ID,
// then the hostname, then a fixed fallback.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("TITHE_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
