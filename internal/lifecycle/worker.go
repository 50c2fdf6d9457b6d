package lifecycle

import (
	"context"
	"log/slog"
	"time"
)

// Advancer moves competitions through their scheduled status changes
type Advancer interface {
	AdvanceLifecycle(ctx context.Context, now time.Time) (int, error)
}

// Worker periodically starts and completes competitions on schedule
type Worker struct {
	advancer Advancer
	interval time.Duration
	now      func() time.Time
}

// NewWorker creates a new lifecycle worker
func NewWorker(advancer Advancer, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}

	return &Worker{
		advancer: advancer,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	slog.Info("lifecycle worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run immediately on start
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	slog.Debug("running lifecycle cycle")

	changed, err := w.advancer.AdvanceLifecycle(ctx, w.now())
	if err != nil {
		slog.Error("failed to advance competitions", "error", err, "changed", changed)
		return
	}

	if changed > 0 {
		slog.Info("competitions advanced", "count", changed)
	}
}
