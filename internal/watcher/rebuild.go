package watcher

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/ssrkit/internal/logging"
)

// Rebuilder turns change batches into full builds.
type Rebuilder struct {
	// Build runs one complete build.
	Build func(ctx context.Context) error
	// After is called with the outcome of every build, typically to
	// broadcast a reload.
	After  func(ctx context.Context, err error)
	Logger logging.Logger

	mu      sync.Mutex
	running bool
	pending int
	builds  atomic.Int64
}

// Builds returns how many builds have completed.
func (r *Rebuilder) Builds() int64 { return r.builds.Load() }

// Handle runs one build for the batch. A batch arriving while a build is
// running is folded into a single trailing build, started by the goroutine
// that owns the running one once it finishes. Handle returns the error of
// the last build it ran, or nil when the batch was deferred.
func (r *Rebuilder) Handle(ctx context.Context, events []ChangeEvent) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	for _, e := range events {
		logger.Debug(ctx, "changed", "path", e.Path, "type", e.Type.String())
	}

	r.mu.Lock()
	if r.running {
		r.pending += len(events)
		if len(events) == 0 {
			r.pending++
		}
		r.mu.Unlock()
		logger.Debug(ctx, "build already running, queued a trailing rebuild", "events", len(events))
		return nil
	}
	r.running = true
	r.mu.Unlock()

	changes := len(events)
	for {
		logger.Info(ctx, "rebuilding", "changes", changes)
		err := r.Build(ctx)
		r.builds.Add(1)
		if r.After != nil {
			r.After(ctx, err)
		}

		r.mu.Lock()
		if r.pending == 0 || ctx.Err() != nil {
			r.pending = 0
			r.running = false
			r.mu.Unlock()
			return err
		}
		changes = r.pending
		r.pending = 0
		r.mu.Unlock()
	}
}
