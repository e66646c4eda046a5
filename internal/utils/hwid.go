package utils

import (
	"log/slog"

	"github.com/denisbrodbeck/machineid"
)

// DeviceID returns an app scoped, hashed machine id. It falls back to
// "unknown" when the platform id cannot be read.
func DeviceID(appID string) string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		slog.Debug("machine id unavailable", "error", err)
		return "unknown"
	}
	return id
}
