// Package upload transfers changed build outputs to the remote store with a
// bounded, fixed-delay retry policy.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cdnsync/internal/buildout"
	"cdnsync/internal/remote"
)

// Options bounds every upload made by an Executor.
type Options struct {
	MaxAttempts    int
	RetryDelay     time.Duration
	MaxObjectBytes int64
	// Timeout applies to each attempt separately. Zero disables it.
	Timeout time.Duration
}

// Attempt is the state carried from one try to the next.
type Attempt struct {
	Asset     *buildout.Output
	Name      string
	Number    int
	Remaining int
	Delay     time.Duration
	Err       error
}

func (a Attempt) failed(err error) Attempt {
	a.Err = err
	a.Remaining--
	return a
}

func (a Attempt) next() Attempt {
	a.Number++
	a.Err = nil
	return a
}

// Result describes a successful upload.
type Result struct {
	ID       string
	Name     string
	Location string
	Attempts int
}

type Executor struct {
	store   remote.Store
	opts    Options
	logger  *slog.Logger
	metrics Metrics
}

func New(store remote.Store, opts Options, logger *slog.Logger) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if opts.MaxAttempts < 1 {
		return nil, ErrInvalidAttempts
	}
	if opts.MaxObjectBytes <= 0 {
		return nil, fmt.Errorf("max object bytes must be positive")
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, opts: opts, logger: logger}, nil
}

// Upload stores asset under name. Oversized assets fail with *OversizeError
// without touching the network; exhausted retries fail with *UploadError.
func (e *Executor) Upload(ctx context.Context, asset *buildout.Output, name string) (Result, error) {
	if asset == nil {
		return Result{}, fmt.Errorf("asset is required")
	}
	if int64(len(asset.Content)) > e.opts.MaxObjectBytes {
		e.metrics.oversize.Add(1)
		return Result{}, &OversizeError{ID: asset.ID, Size: len(asset.Content), Limit: e.opts.MaxObjectBytes}
	}
	return e.run(ctx, Attempt{
		Asset:     asset,
		Name:      name,
		Number:    1,
		Remaining: e.opts.MaxAttempts,
		Delay:     e.opts.RetryDelay,
	})
}

func (e *Executor) run(ctx context.Context, a Attempt) (Result, error) {
	if a.Remaining < 1 {
		a.Remaining = 1
	}
	total := a.Number - 1 + a.Remaining
	for {
		loc, err := e.try(ctx, a)
		if err == nil {
			e.metrics.successes.Add(1)
			return Result{ID: a.Asset.ID, Name: a.Name, Location: loc, Attempts: a.Number}, nil
		}
		e.metrics.failures.Add(1)
		a = a.failed(err)
		if a.Remaining == 0 {
			return Result{}, &UploadError{ID: a.Asset.ID, Attempts: a.Number, Err: err}
		}
		e.logger.Warn("upload attempt failed",
			"asset", a.Asset.ID, "attempt", fmt.Sprintf("%d/%d", a.Number, total), "retry_in", a.Delay, "err", err)
		if err := wait(ctx, a.Delay); err != nil {
			return Result{}, &UploadError{ID: a.Asset.ID, Attempts: a.Number, Err: err}
		}
		a = a.next()
		e.metrics.retries.Add(1)
		e.logger.Info("retrying upload", "asset", a.Asset.ID, "attempt", fmt.Sprintf("%d/%d", a.Number, total))
	}
}

func (e *Executor) try(ctx context.Context, a Attempt) (string, error) {
	e.metrics.attempts.Add(1)
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}
	loc, err := e.store.Put(ctx, a.Name, a.Asset.Content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(loc) == "" {
		return "", remote.ErrEmptyLocation
	}
	e.metrics.bytesSent.Add(uint64(len(a.Asset.Content)))
	return loc, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Executor) Metrics() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.snapshot()
}
