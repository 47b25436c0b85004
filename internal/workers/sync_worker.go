package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	syncengine "github.com/jsvoboda/goaliesync/internal/sync"
)

// SyncWorker drives the background reconciliation loop: every interval it
// pushes local changes up and pulls remote changes down, independent of user
// interaction. The engine's single-flight guard makes an overlap with an
// opportunistic sync harmless — the later caller just gets an in-flight
// result.
type SyncWorker struct {
	Engine   *syncengine.Engine
	Interval time.Duration
	Logger   *logrus.Logger
}

func (w *SyncWorker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *SyncWorker) processOnce(ctx context.Context) {
	if !w.Engine.Configured() {
		return
	}
	up := w.Engine.Upload(ctx)
	if !up.Success {
		w.Logger.WithField("errors", up.Errors).Warn("scheduled upload finished with errors")
	}
	if len(up.Deferred) > 0 {
		w.Logger.WithField("deferred", len(up.Deferred)).Debug("events held back until their match syncs")
	}
	down := w.Engine.Download(ctx)
	if !down.Success {
		w.Logger.WithField("errors", down.Errors).Warn("scheduled download finished with errors")
	}
}
