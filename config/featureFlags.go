package config

import (
	"os"
	"strings"
)

// UpstreamSyncEnabled gates the upstream fetch in list and stats.
// When disabled every read is served from the local store.
//
// Set via env:
// - ANOMALY_UPSTREAM_SYNC=false
func UpstreamSyncEnabled() bool {
	return envBool("ANOMALY_UPSTREAM_SYNC", true)
}

// CreateEventsTopic creates ANOMALY_EVENTS_TOPIC on startup if it is missing.
//
// Set via env:
// - ANOMALY_EVENTS_CREATE_TOPIC=true
func CreateEventsTopic() bool {
	return envBool("ANOMALY_EVENTS_CREATE_TOPIC", false)
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
