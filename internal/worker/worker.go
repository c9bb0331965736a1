package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher is the part of the retrieval engine the worker drives.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// Worker keeps a replica's in-memory index in step with the stored snapshot.
// Writes on other instances become visible here within one interval.
type Worker struct {
	refresher Refresher
	logger    *slog.Logger

	// Configuration
	interval time.Duration
	timeout  time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Refresher Refresher
	Logger    *slog.Logger
	Interval  time.Duration // Time between refreshes
	Timeout   time.Duration // Upper bound for a single refresh
}

// NewWorker creates a new refresh worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	timeout := cfg.Timeout
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}

	return &Worker{
		refresher: cfg.Refresher,
		logger:    logger.With("component", "index-refresh"),
		interval:  interval,
		timeout:   timeout,
	}
}

// Start begins the refresh loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting", "interval", w.interval)

	go func() {
		defer close(w.doneCh)
		w.loop(ctx)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}

		if err := w.refreshOnce(ctx); err != nil {
			failures++
			// First failure and every tenth after it, so an outage does not flood the log.
			if failures%10 == 1 {
				w.logger.Warn("index refresh failed", "error", err, "consecutive_failures", failures)
			}
			continue
		}
		if failures > 0 {
			w.logger.Info("index refresh recovered", "after_failures", failures)
			failures = 0
		}
	}
}

func (w *Worker) refreshOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	changed, err := w.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	if changed {
		w.logger.Debug("index refreshed", "duration", time.Since(start))
	}
	return nil
}
