// Package batch splits a long list of texts into fixed-size chunks, sends each
// chunk to the embedding service, and collects the results in input order.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/embedapi/internal/models"
)

// DefaultChunkSize is the number of texts sent per request.
const DefaultChunkSize = 100

// Sender performs one embedding round trip.
type Sender interface {
	Send(ctx context.Context, texts []string, backend models.Backend) ([]models.EmbeddingResult, error)
}

// Progress describes one finished chunk. Chunk is 1-based.
type Progress struct {
	Chunk int
	Total int
	Size  int
	Err   error
}

// Report is the outcome of a run. Records holds the results of every chunk
// that completed, in input order; texts of failed chunks are absent.
type Report struct {
	RunID        string
	Records      []models.Record
	Chunks       int
	FailedChunks int
	FailedItems  int
	Started      time.Time
	Finished     time.Time
}

// Coordinator drives a batch run.
type Coordinator struct {
	sender     Sender
	chunkSize  int
	parallel   int
	logger     *zap.Logger
	onProgress func(Progress)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithChunkSize sets the chunk size. Values below one select DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithParallel keeps up to n chunk requests in flight.
func WithParallel(n int) Option {
	return func(c *Coordinator) { c.parallel = max(n, 1) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgress registers a callback invoked once per finished chunk. Calls
// are serialized.
func WithProgress(fn func(Progress)) Option {
	return func(c *Coordinator) { c.onProgress = fn }
}

// New returns a coordinator sending through s.
func New(s Sender, opts ...Option) *Coordinator {
	c := &Coordinator{
		sender:    s,
		chunkSize: DefaultChunkSize,
		parallel:  1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits lines into consecutive groups of size; the last group holds
// the remainder. The groups share lines' backing array.
func Chunk(lines []string, size int) [][]string {
	if size < 1 {
		size = DefaultChunkSize
	}
	chunks := make([][]string, 0, (len(lines)+size-1)/size)
	for start := 0; start < len(lines); start += size {
		end := min(start+size, len(lines))
		chunks = append(chunks, lines[start:end:end])
	}
	return chunks
}

// Run embeds lines with backend. A chunk whose round trip fails is logged,
// reported through the progress callback and skipped. Run returns an error
// only when ctx ends before every chunk was attempted.
func (c *Coordinator) Run(ctx context.Context, lines []string, backend models.Backend) (*Report, error) {
	chunks := Chunk(lines, c.chunkSize)
	report := &Report{
		RunID:   uuid.NewString(),
		Chunks:  len(chunks),
		Started: time.Now(),
	}
	logger := c.logger.With(zap.String("run_id", report.RunID))
	logger.Info("batch run started",
		zap.Int("texts", len(lines)),
		zap.Int("chunks", len(chunks)),
		zap.String("backend", backend.String()))

	perChunk := make([][]models.Record, len(chunks))
	var (
		mu       sync.Mutex
		finished int
	)
	finish := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		finished++
		if err != nil {
			report.FailedChunks++
			logger.Warn("chunk failed, skipping",
				zap.Int("chunk", i+1),
				zap.Int("size", len(chunks[i])),
				zap.Error(err))
		}
		if c.onProgress != nil {
			c.onProgress(Progress{Chunk: i + 1, Total: len(chunks), Size: len(chunks[i]), Err: err})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, chunk := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := c.sendChunk(gctx, chunk, backend)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			perChunk[i] = records
			finish(i, err)
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil && finished < len(chunks) {
		runErr = ctx.Err()
	}

	for _, records := range perChunk {
		for _, r := range records {
			if r.Metadata.Status != models.StatusSuccess {
				report.FailedItems++
			}
		}
		report.Records = append(report.Records, records...)
	}
	report.Finished = time.Now()
	logger.Info("batch run finished",
		zap.Int("records", len(report.Records)),
		zap.Int("failed_chunks", report.FailedChunks),
		zap.Int("failed_items", report.FailedItems),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)))

	if runErr != nil {
		return report, fmt.Errorf("batch run interrupted: %w", runErr)
	}
	return report, nil
}

func (c *Coordinator) sendChunk(ctx context.Context, chunk []string, backend models.Backend) ([]models.Record, error) {
	results, err := c.sender.Send(ctx, chunk, backend)
	if err != nil {
		return nil, err
	}
	if len(results) != len(chunk) {
		return nil, fmt.Errorf("server returned %d results for %d texts", len(results), len(chunk))
	}
	records := make([]models.Record, len(chunk))
	for i, res := range results {
		records[i] = models.NewRecord(chunk[i], res)
	}
	return records, nil
}
