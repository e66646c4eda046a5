package cloudsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressReporter_Messages(t *testing.T) {
	var got []string
	p := NewProgressReporter(func(msg string) { got = append(got, msg) })

	p.StartDownload()
	p.StartDownload()
	p.StartUpload()
	p.DoneDownload()
	p.DoneDownload()
	p.DoneUpload()

	assert.Equal(t, []string{
		"Syncing (1 down)",
		"Syncing (2 down)",
		"Syncing (2 down, 1 up)",
		"Syncing (1 down, 1 up)",
		"Syncing (1 up)",
		"All synced",
	}, got)

	up, down := p.InFlight()
	assert.Zero(t, up)
	assert.Zero(t, down)
	assert.Equal(t, "All synced", p.Message())
}

func TestProgressReporter_NilEmit(t *testing.T) {
	p := NewProgressReporter(nil)
	p.StartUpload()
	assert.Equal(t, "Syncing (1 up)", p.Message())
	p.Publish()
	assert.Equal(t, "Syncing (1 up)", p.Message())
}
