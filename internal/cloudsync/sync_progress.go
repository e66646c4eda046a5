package cloudsync

import (
	"fmt"
	"strings"
	"sync"
)

const (
	msgAllSynced   = "All synced"
	msgSyncingDone = "Syncing done"
)

// ProgressReporter counts in flight transfers and publishes a status line on
// every change. It never affects control flow.
type ProgressReporter struct {
	emit  func(string)
	numUp int
	numDn int
	mu    sync.Mutex
}

func NewProgressReporter(emit func(msg string)) *ProgressReporter {
	if emit == nil {
		emit = func(string) {}
	}
	return &ProgressReporter{emit: emit}
}

func (p *ProgressReporter) StartUpload()   { p.update(1, 0) }
func (p *ProgressReporter) DoneUpload()    { p.update(-1, 0) }
func (p *ProgressReporter) StartDownload() { p.update(0, 1) }
func (p *ProgressReporter) DoneDownload()  { p.update(0, -1) }

// Publish emits the current status without changing the counters.
func (p *ProgressReporter) Publish() { p.update(0, 0) }

// Message returns the current status line.
func (p *ProgressReporter) Message() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return progressMessage(p.numUp, p.numDn)
}

// InFlight returns the pending upload and download counts.
func (p *ProgressReporter) InFlight() (up, down int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numUp, p.numDn
}

func (p *ProgressReporter) update(up, down int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numUp += up
	p.numDn += down
	// emitted under the lock so messages arrive in counter order
	p.emit(progressMessage(p.numUp, p.numDn))
}

func progressMessage(up, down int) string {
	if up == 0 && down == 0 {
		return msgAllSynced
	}
	parts := make([]string, 0, 2)
	if down > 0 {
		parts = append(parts, fmt.Sprintf("%d down", down))
	}
	if up > 0 {
		parts = append(parts, fmt.Sprintf("%d up", up))
	}
	return "Syncing (" + strings.Join(parts, ", ") + ")"
}
