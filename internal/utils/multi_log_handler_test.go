package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler_RespectsLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debug := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warn := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewMultiLogHandler(debug, warn)).With("component", "sync")
	logger.Debug("reconcile decisions")
	logger.Warn("conflict")

	assert.Contains(t, debugBuf.String(), "reconcile decisions")
	assert.Contains(t, debugBuf.String(), "conflict")
	assert.NotContains(t, warnBuf.String(), "reconcile decisions")
	assert.Contains(t, warnBuf.String(), "component=sync")
}
