// Package dispatch turns a batch of texts into per-item embedding results,
// serving vectors from the cache when it can and calling a backend when it
// cannot.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/embedapi/internal/cache"
	"github.com/hyperjump/embedapi/internal/embedding"
	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/internal/observe"
)

// ErrInvalidRequest marks a batch rejected before any cache or backend work.
var ErrInvalidRequest = errors.New("invalid request")

// Archive persists generated embeddings.
type Archive interface {
	SaveEmbedding(ctx context.Context, e *models.ArchivedEmbedding) error
}

// Dispatcher routes texts to backends through the cache.
type Dispatcher struct {
	backends    map[models.Backend]embedding.Backend
	cache       *cache.Cache
	archive     Archive
	metrics     *observe.Metrics
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCache enables caching. A nil cache leaves caching disabled.
func WithCache(c *cache.Cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithArchive records every freshly generated embedding.
func WithArchive(a Archive) Option {
	return func(d *Dispatcher) { d.archive = a }
}

// WithMetrics records cache and backend metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithConcurrency processes up to n items of a batch at once. Values below
// one are treated as one (sequential).
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = max(n, 1) }
}

// New builds a dispatcher over the given backends. At least one is required
// and each backend id may appear only once.
func New(backends []embedding.Backend, opts ...Option) (*Dispatcher, error) {
	if len(backends) == 0 {
		return nil, errors.New("no embedding backend configured")
	}
	d := &Dispatcher{
		backends:    make(map[models.Backend]embedding.Backend, len(backends)),
		logger:      zap.NewNop(),
		concurrency: 1,
		now:         time.Now,
	}
	for _, b := range backends {
		if !b.ID().Valid() {
			return nil, fmt.Errorf("backend %q is not recognized", b.ID())
		}
		if _, dup := d.backends[b.ID()]; dup {
			return nil, fmt.Errorf("backend %q configured twice", b.ID())
		}
		d.backends[b.ID()] = b
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Process embeds every text with the named backend and returns one result
// per text, in input order. Per-item failures are results, not errors; the
// returned error is non-nil only when the whole batch is rejected, and then
// it wraps ErrInvalidRequest.
func (d *Dispatcher) Process(ctx context.Context, texts []string, backend models.Backend) ([]models.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: text must not be empty", ErrInvalidRequest)
	}
	if !backend.Valid() {
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidRequest, backend)
	}
	b, ok := d.backends[backend]
	if !ok {
		return nil, fmt.Errorf("%w: backend %q is not configured", ErrInvalidRequest, backend)
	}

	results := make([]models.EmbeddingResult, len(texts))
	if d.concurrency == 1 || len(texts) == 1 {
		for i, text := range texts {
			results[i] = d.processItem(ctx, b, text)
		}
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			results[i] = d.processItem(ctx, b, text)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (d *Dispatcher) processItem(ctx context.Context, b embedding.Backend, text string) models.EmbeddingResult {
	id := b.ID()
	key := cache.DeriveKey(text, id)

	if d.cache != nil {
		vec, hit := d.cache.Get(key)
		d.metrics.RecordCacheLookup(ctx, id.String(), hit)
		if hit {
			return models.Success(id, b.Model(), vec, 0, true)
		}
	}

	start := d.now()
	out, err := b.Embed(ctx, text)
	if err != nil {
		kind := embedding.KindOf(err)
		d.metrics.RecordBackendCall(ctx, id.String(), string(kind), d.now().Sub(start))
		expired := embedding.CallerEnded(ctx, err)
		d.logger.Warn("embedding failed",
			zap.String("backend", id.String()),
			zap.String("kind", string(kind)),
			zap.Bool("request_expired", expired),
			zap.Error(err))
		msg := embedding.MessageOf(err)
		if expired {
			msg = requestExpiredMessage(ctx, msg)
		}
		return models.Failure(id, b.Model(), kind, msg)
	}
	d.metrics.RecordBackendCall(ctx, id.String(), string(models.StatusSuccess), out.Elapsed)

	if d.cache != nil {
		d.cache.Put(key, out.Vector)
	}
	// The vector is already cached; archive it even if the request has ended.
	d.archiveResult(context.WithoutCancel(ctx), key, b, text, out.Vector)
	return models.Success(id, b.Model(), out.Vector, out.Elapsed, false)
}

// requestExpiredMessage explains a failure caused by the request running out
// of time or being cancelled, so it is not read as a backend fault.
func requestExpiredMessage(ctx context.Context, detail string) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return "request cancelled before the backend answered: " + detail
	}
	return "request deadline expired before the backend answered: " + detail
}

// archiveResult stores a fresh vector. A failed write is logged and never
// changes the item's result.
func (d *Dispatcher) archiveResult(ctx context.Context, key cache.Key, b embedding.Backend, text string, vec []float32) {
	if d.archive == nil {
		return
	}
	err := d.archive.SaveEmbedding(ctx, &models.ArchivedEmbedding{
		Key:       key.String(),
		Backend:   b.ID(),
		Model:     b.Model(),
		Text:      text,
		Vector:    vec,
		CreatedAt: d.now().UTC(),
	})
	d.metrics.RecordArchiveWrite(ctx, err)
	if err != nil {
		d.logger.Warn("archive write failed", zap.String("key", key.String()), zap.Error(err))
	}
}

// Backends describes the configured backends in a stable order.
func (d *Dispatcher) Backends() []models.BackendInfo {
	var infos []models.BackendInfo
	for _, id := range models.Backends {
		if b, ok := d.backends[id]; ok {
			infos = append(infos, models.BackendInfo{ID: id, Model: b.Model(), Dimensions: b.Dimensions()})
		}
	}
	return infos
}

// CacheInfo reports cache state; Enabled is false when no cache is set.
func (d *Dispatcher) CacheInfo() models.CacheInfo {
	if d.cache == nil {
		return models.CacheInfo{}
	}
	s := d.cache.Stats()
	return models.CacheInfo{
		Enabled:   true,
		Size:      s.Size,
		Capacity:  s.Capacity,
		Hits:      s.Hits,
		Misses:    s.Misses,
		Evictions: s.Evictions,
	}
}

// Close releases every backend.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, id := range models.Backends {
		if b, ok := d.backends[id]; ok {
			if err := b.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s backend: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}
