package normalize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"plantkeeper/internal/metrics"
)

const (
	DefaultConcurrency = 2
	DefaultTimeout     = 30 * time.Second
)

// Runner executes normalization jobs in the background after a change has
// been committed. Failures are logged and counted, never returned to the
// submitter.
type Runner struct {
	normalizer Normalizer
	timeout    time.Duration
	logger     *slog.Logger
	sem        chan struct{}

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRunner returns a runner that allows at most concurrency jobs at once,
// each bounded by timeout.
func NewRunner(n Normalizer, concurrency int, timeout time.Duration, logger *slog.Logger) *Runner {
	if n == nil {
		n = Noop{}
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		normalizer: n,
		timeout:    timeout,
		logger:     logger.With("component", "normalize", "backend", n.Name()),
		sem:        make(chan struct{}, concurrency),
	}
}

// Submit schedules path for normalization and returns immediately. It
// reports false when the runner is shut down.
func (r *Runner) Submit(path string) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("normalization skipped: runner is shut down", "path", path)
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.NormalizeStarted()
	go func() {
		defer r.wg.Done()
		defer metrics.NormalizeFinished()

		r.sem <- struct{}{}
		defer func() { <-r.sem }()
		r.run(path)
	}()
	return true
}

func (r *Runner) run(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	err := r.normalizer.Normalize(ctx, path)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.ObserveNormalize(r.normalizer.Name(), "ok", elapsed)
		r.logger.Debug("image normalized", "path", path, "duration", elapsed)
	case errors.Is(err, ErrVanished):
		metrics.ObserveNormalize(r.normalizer.Name(), "discarded", elapsed)
		r.logger.Debug("normalization discarded", "path", path, "reason", err)
	default:
		metrics.ObserveNormalize(r.normalizer.Name(), "error", elapsed)
		r.logger.Warn("image normalization failed", "path", path, "duration", elapsed, "error", err)
	}
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting jobs and waits for in-flight ones until ctx ends.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
