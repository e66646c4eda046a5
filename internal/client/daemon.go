package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/openmined/cloudsync/internal/cloudsync"
	"github.com/openmined/cloudsync/internal/fswatch"
	"golang.org/x/sync/errgroup"
)

const defaultResubscribeDelay = 5 * time.Second

// Daemon runs a pass at start, then on every interval and whenever a local
// edit or a remote change is announced.
type Daemon struct {
	client           *Client
	interval         time.Duration
	resubscribeDelay time.Duration
	trigger          chan struct{}
	passes           chan *cloudsync.PassResult
}

func NewDaemon(c *Client) *Daemon {
	return &Daemon{
		client:           c,
		interval:         c.config.Interval(),
		resubscribeDelay: defaultResubscribeDelay,
		trigger:          make(chan struct{}, 1),
	}
}

// Trigger requests an early pass. Requests made while one is pending are
// merged.
func (d *Daemon) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *Daemon) Start(ctx context.Context) error {
	ws := d.client.workspace
	if err := ws.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := ws.Unlock(); err != nil {
			slog.Warn("daemon unlock", "error", err)
		}
	}()

	slog.Info("daemon start", "datadir", ws.Root, "providers", d.client.config.Providers, "interval", d.interval)

	watcher := fswatch.New(ws.MetadataDir, false)
	marker := filepath.Base(ws.ChangeMarker)
	watcher.FilterPaths(func(path string) bool {
		return filepath.Base(path) != marker
	})

	eg, egCtx := errgroup.WithContext(ctx)
	if err := watcher.Start(egCtx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Stop()

	eg.Go(func() error {
		for range watcher.Events() {
			slog.Debug("daemon", "trigger", "local edit")
			d.Trigger()
		}
		return nil
	})

	eg.Go(func() error {
		d.followRemote(egCtx)
		return nil
	})

	eg.Go(func() error {
		return d.syncLoop(egCtx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}

func (d *Daemon) syncLoop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-d.trigger:
		}

		if err := d.runPass(ctx); err != nil {
			return err
		}
		timer.Reset(d.interval)
	}
}

// runPass only fails on errors that a later pass cannot fix.
func (d *Daemon) runPass(ctx context.Context) error {
	result, err := d.client.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrNotSignedIn):
		slog.Warn("sync skipped", "reason", err)
		return nil
	case errors.Is(err, cloudsync.ErrSyncAlreadyRunning):
		slog.Debug("sync skipped", "reason", err)
		return nil
	case ctx.Err() != nil:
		return nil
	case err != nil:
		var iv *cloudsync.InvariantViolation
		if errors.As(err, &iv) {
			return err
		}
		slog.Error("sync", "error", err)
		return nil
	}

	if d.passes != nil {
		select {
		case d.passes <- result:
		default:
		}
	}
	return nil
}

// followRemote subscribes to the change feed of the active provider, if it
// has one, and subscribes again after the feed ends.
func (d *Daemon) followRemote(ctx context.Context) {
	for {
		if err := d.subscribe(ctx); err != nil {
			slog.Debug("change feed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.resubscribeDelay):
		}
	}
}

func (d *Daemon) subscribe(ctx context.Context) error {
	sess, err := d.client.ActiveSession(ctx)
	if err != nil {
		return err
	}
	feed, ok := sess.Provider().(cloudsync.ChangeNotifier)
	if !ok {
		return fmt.Errorf("provider %s has no change feed", sess.Provider().Name())
	}

	changes, err := feed.Changes(ctx)
	if err != nil {
		return err
	}
	slog.Info("change feed subscribed", "provider", sess.Provider().Name())

	for id := range changes {
		slog.Debug("daemon", "trigger", "remote change", "id", id)
		d.Trigger()
	}
	return errors.New("change feed closed")
}
