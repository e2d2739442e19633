// Package pipeline sequences a sync run: load the cache, fingerprint and
// upload changed build outputs, rewrite references, persist and sweep.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cdnsync/internal/buildout"
	"cdnsync/internal/cache"
	"cdnsync/internal/fingerprint"
	"cdnsync/internal/rewrite"
	"cdnsync/internal/upload"
)

// Uploader transfers one asset and reports where it landed.
type Uploader interface {
	Upload(ctx context.Context, asset *buildout.Output, name string) (upload.Result, error)
}

// Rewriter patches references to an uploaded asset in textual outputs.
type Rewriter interface {
	Apply(outputs []*buildout.Output, id, location string) (int, error)
}

type Options struct {
	// Prefix is prepended to every remote object name.
	Prefix          string
	Concurrency     int
	RetentionWindow time.Duration
	// RewriteCached also rewrites references to unchanged assets.
	RewriteCached bool
	Now           func() time.Time
	Logger        *slog.Logger
	// OnState observes every run and per-asset state change.
	OnState func(state State, assetID string)
}

type Orchestrator struct {
	cachePath string
	uploader  Uploader
	rewriter  Rewriter
	opts      Options
	logger    *slog.Logger
	state     atomic.Int32
}

func New(cachePath string, uploader Uploader, rewriter Rewriter, opts Options) (*Orchestrator, error) {
	if strings.TrimSpace(cachePath) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if rewriter == nil {
		return nil, fmt.Errorf("rewriter is required")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RetentionWindow <= 0 {
		return nil, fmt.Errorf("retention window must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cachePath: cachePath,
		uploader:  uploader,
		rewriter:  rewriter,
		opts:      opts,
		logger:    logger,
	}, nil
}

// State returns the run-level stage last entered.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) enter(s State) {
	o.state.Store(int32(s))
	o.logger.Debug("pipeline state", "state", s.String())
	if o.opts.OnState != nil {
		o.opts.OnState(s, "")
	}
}

func (o *Orchestrator) assetState(s State, id string) {
	o.logger.Debug("asset state", "state", s.String(), "asset", id)
	if o.opts.OnState != nil {
		o.opts.OnState(s, id)
	}
}

// assetResult is what a worker hands back to the serial apply pass.
type assetResult struct {
	asset       *buildout.Output
	fingerprint string
	cached      cache.Record
	unchanged   bool
	upload      upload.Result
	err         error
}

// Run syncs outputs. Per-asset failures are collected in the summary; the
// returned error is reserved for failures to write the cache file.
func (o *Orchestrator) Run(ctx context.Context, outputs []*buildout.Output) (*Summary, error) {
	started := time.Now()
	now := o.opts.Now()

	store, res, err := cache.Open(o.cachePath)
	if err != nil {
		return nil, err
	}
	if res.Warning != nil {
		o.logger.Warn("cache degraded to empty", "err", res.Warning)
	}
	if res.Dropped > 0 {
		o.logger.Warn("dropped incomplete cache records", "count", res.Dropped)
	}
	o.enter(Loaded)
	sum := &Summary{CacheStatus: res.Status}

	o.enter(Scanning)
	for _, tier := range buildout.ByTier(outputs) {
		if len(tier) == 0 {
			continue
		}
		for _, r := range o.scan(ctx, store, tier) {
			o.apply(store, outputs, r, now, sum)
		}
	}

	if err := store.Persist(); err != nil {
		return sum, fmt.Errorf("persist cache: %w", err)
	}
	o.enter(Persisted)

	sum.Swept = store.Sweep(now, o.opts.RetentionWindow)
	for _, id := range sum.Swept {
		o.logger.Info("evicted expired cache record", "asset", id)
	}
	if err := store.Persist(); err != nil {
		return sum, fmt.Errorf("persist swept cache: %w", err)
	}
	o.enter(Swept)

	if m, ok := o.uploader.(interface{ Metrics() upload.MetricsSnapshot }); ok {
		sum.Metrics = m.Metrics()
	}
	sum.Duration = time.Since(started)
	o.enter(Done)
	return sum, nil
}

// scan fingerprints and uploads one tier on a bounded worker pool. Results
// keep the tier's build order.
func (o *Orchestrator) scan(ctx context.Context, store *cache.Store, tier []*buildout.Output) []assetResult {
	results := make([]assetResult, len(tier))
	var g errgroup.Group
	g.SetLimit(o.opts.Concurrency)
	for i, asset := range tier {
		g.Go(func() error {
			results[i] = o.process(ctx, store, asset)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) process(ctx context.Context, store *cache.Store, asset *buildout.Output) assetResult {
	fp := fingerprint.Of(asset.Content)
	r := assetResult{asset: asset, fingerprint: fp}
	if rec, ok := store.Lookup(asset.ID); ok && rec.Fingerprint == fp {
		r.cached = rec
		r.unchanged = true
		return r
	}
	o.assetState(Uploading, asset.ID)
	r.upload, r.err = o.uploader.Upload(ctx, asset, o.objectName(asset.ID, fp))
	return r
}

func (o *Orchestrator) objectName(id, fp string) string {
	return strings.TrimPrefix(path.Join(o.opts.Prefix, fingerprint.Short(fp), id), "/")
}

func (o *Orchestrator) apply(store *cache.Store, outputs []*buildout.Output, r assetResult, now time.Time, sum *Summary) {
	id := r.asset.ID
	switch {
	case r.unchanged:
		o.assetState(Unchanged, id)
		rec := r.cached
		rec.LastSeen = now.UnixMilli()
		store.Upsert(id, rec)
		sum.Skipped = append(sum.Skipped, id)
		o.logger.Info("skipping unchanged asset", "asset", id)
		if o.opts.RewriteCached {
			sum.Rewrites += o.rewrite(outputs, id, rec.RemoteLocation)
		}

	case r.err != nil:
		sum.Failed = append(sum.Failed, Failure{ID: id, Err: r.err})
		o.logger.Error("failed to upload asset", "asset", id, "err", r.err)

	default:
		o.assetState(Rewriting, id)
		sum.Rewrites += o.rewrite(outputs, id, r.upload.Location)
		store.Upsert(id, cache.Record{
			Fingerprint:    r.fingerprint,
			RemoteLocation: r.upload.Location,
			LastSeen:       now.UnixMilli(),
		})
		sum.Uploaded = append(sum.Uploaded, Uploaded{ID: id, Location: r.upload.Location, Attempts: r.upload.Attempts})
		o.logger.Info("uploaded asset", "asset", id, "location", r.upload.Location, "attempts", r.upload.Attempts)
	}
}

func (o *Orchestrator) rewrite(outputs []*buildout.Output, id, location string) int {
	n, err := o.rewriter.Apply(outputs, id, location)
	var mismatch *rewrite.MismatchWarning
	switch {
	case errors.As(err, &mismatch):
		o.logger.Debug("no references to rewrite", "asset", id)
	case err != nil:
		o.logger.Warn("rewrite failed", "asset", id, "err", err)
	}
	return n
}
