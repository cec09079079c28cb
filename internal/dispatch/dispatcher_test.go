package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/hyperjump/embedapi/internal/cache"
	"github.com/hyperjump/embedapi/internal/embedding"
	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/internal/observe"
)

// countingBackend wraps the hash backend, counts calls, and fails any text
// listed in failOn.
type countingBackend struct {
	*embedding.HashBackend
	calls  atomic.Int32
	failOn map[string]error
	delay  time.Duration
	after  func()
}

func newCounting(id models.Backend) *countingBackend {
	return &countingBackend{HashBackend: embedding.NewHashBackend(id, 8), failOn: map[string]error{}}
}

func (b *countingBackend) Embed(ctx context.Context, text string) (embedding.Outcome, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if err, ok := b.failOn[text]; ok {
		return embedding.Outcome{}, err
	}
	out, err := b.HashBackend.Embed(ctx, text)
	out.Elapsed = time.Millisecond
	if b.after != nil {
		b.after()
	}
	return out, err
}

type memArchive struct {
	mu    sync.Mutex
	saved []*models.ArchivedEmbedding
	err   error
}

func (a *memArchive) SaveEmbedding(ctx context.Context, e *models.ArchivedEmbedding) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	a.saved = append(a.saved, e)
	return nil
}

func newCache(t *testing.T, capacity int) *cache.Cache {
	t.Helper()
	c, err := cache.New(capacity)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew_RequiresBackend(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error with no backends")
	}
	b := newCounting(models.BackendLocal)
	if _, err := New([]embedding.Backend{b, b}); err == nil {
		t.Fatal("expected error for duplicate backend")
	}
}

func TestProcess_RejectsInvalidRequests(t *testing.T) {
	local := newCounting(models.BackendLocal)
	c := newCache(t, 10)
	d, err := New([]embedding.Backend{local}, WithCache(c), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		texts   []string
		backend models.Backend
	}{
		{"empty batch", nil, models.BackendLocal},
		{"unknown backend", []string{"a"}, models.Backend("bogus")},
		{"unconfigured backend", []string{"a"}, models.BackendRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Process(context.Background(), tt.texts, tt.backend)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
			if res != nil {
				t.Error("rejected batch returned results")
			}
		})
	}
	if local.calls.Load() != 0 {
		t.Error("rejected requests reached the backend")
	}
	if s := c.Stats(); s.Hits+s.Misses != 0 || s.Size != 0 {
		t.Errorf("rejected requests touched the cache: %+v", s)
	}
}

func TestProcess_CacheHitSkipsBackend(t *testing.T) {
	local := newCounting(models.BackendLocal)
	d, _ := New([]embedding.Backend{local}, WithCache(newCache(t, 10)))
	ctx := context.Background()

	first, _ := d.Process(ctx, []string{"hello"}, models.BackendLocal)
	second, _ := d.Process(ctx, []string{"hello"}, models.BackendLocal)

	if local.calls.Load() != 1 {
		t.Fatalf("backend calls = %d, want 1", local.calls.Load())
	}
	if first[0].FromCache() || !second[0].FromCache() {
		t.Errorf("cache flags = %v, %v; want false, true", first[0].FromCache(), second[0].FromCache())
	}
	if second[0].Elapsed() != 0 {
		t.Errorf("cache hit elapsed = %v", second[0].Elapsed())
	}
	v1, _ := first[0].Vector()
	v2, _ := second[0].Vector()
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatal("cached vector differs from generated vector")
		}
	}
}

func TestProcess_DuplicateInBatchHitsOnSecond(t *testing.T) {
	local := newCounting(models.BackendLocal)
	d, _ := New([]embedding.Backend{local}, WithCache(newCache(t, 10)))
	res, err := d.Process(context.Background(), []string{"hello", "hello"}, models.BackendLocal)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].FromCache() || !res[1].FromCache() {
		t.Errorf("cache flags = %v, %v; want false, true", res[0].FromCache(), res[1].FromCache())
	}
	if local.calls.Load() != 1 {
		t.Errorf("backend calls = %d, want 1", local.calls.Load())
	}
}

func TestProcess_DisabledCacheAlwaysCallsBackend(t *testing.T) {
	local := newCounting(models.BackendLocal)
	d, _ := New([]embedding.Backend{local})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, _ := d.Process(ctx, []string{"hello"}, models.BackendLocal)
		if res[0].FromCache() {
			t.Error("disabled cache reported a hit")
		}
	}
	if local.calls.Load() != 2 {
		t.Errorf("backend calls = %d, want 2", local.calls.Load())
	}
	if d.CacheInfo().Enabled {
		t.Error("CacheInfo reports enabled")
	}
}

func TestProcess_MiddleFailureIsolated(t *testing.T) {
	remote := newCounting(models.BackendRemote)
	remote.failOn["b"] = embedding.Upstream(models.BackendRemote, errors.New("status 500"))
	c := newCache(t, 10)
	d, _ := New([]embedding.Backend{remote}, WithCache(c))

	res, err := d.Process(context.Background(), []string{"a", "b", "c"}, models.BackendRemote)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 3 {
		t.Fatalf("results = %d", len(res))
	}
	wantStatus := []models.Status{models.StatusSuccess, models.StatusError, models.StatusSuccess}
	for i, want := range wantStatus {
		if got := res[i].Status(); got != want {
			t.Errorf("result[%d] status = %s, want %s", i, got, want)
		}
	}
	kind, msg, _ := res[1].Err()
	if kind != models.KindUpstream || msg != "status 500" {
		t.Errorf("failure = %s %q", kind, msg)
	}
	if c.Len() != 2 {
		t.Errorf("cache size = %d, want 2", c.Len())
	}
	if _, ok := c.Get(cache.DeriveKey("b", models.BackendRemote)); ok {
		t.Error("failed item was cached")
	}
}

func TestProcess_BackendsHaveSeparateEntries(t *testing.T) {
	local := newCounting(models.BackendLocal)
	remote := newCounting(models.BackendRemote)
	d, _ := New([]embedding.Backend{local, remote}, WithCache(newCache(t, 10)))
	ctx := context.Background()
	_, _ = d.Process(ctx, []string{"hello"}, models.BackendLocal)
	res, _ := d.Process(ctx, []string{"hello"}, models.BackendRemote)
	if res[0].FromCache() {
		t.Error("remote request served from the local entry")
	}
	if res[0].Backend() != models.BackendRemote {
		t.Errorf("backend = %s", res[0].Backend())
	}
}

func TestProcess_ConcurrentPreservesOrder(t *testing.T) {
	local := newCounting(models.BackendLocal)
	local.delay = 2 * time.Millisecond
	d, _ := New([]embedding.Backend{local}, WithConcurrency(4))
	seq, _ := New([]embedding.Backend{embedding.NewHashBackend(models.BackendLocal, 8)})

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	got, err := d.Process(context.Background(), texts, models.BackendLocal)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := seq.Process(context.Background(), texts, models.BackendLocal)
	for i := range texts {
		gv, _ := got[i].Vector()
		wv, _ := want[i].Vector()
		if gv[0] != wv[0] {
			t.Fatalf("result %d out of order", i)
		}
	}
}

func TestProcess_ArchivesFreshVectorsOnly(t *testing.T) {
	local := newCounting(models.BackendLocal)
	local.failOn["bad"] = embedding.Unavailable(models.BackendLocal, errors.New("no model"))
	arch := &memArchive{}
	d, _ := New([]embedding.Backend{local}, WithCache(newCache(t, 10)), WithArchive(arch))

	_, _ = d.Process(context.Background(), []string{"a", "a", "bad"}, models.BackendLocal)
	if len(arch.saved) != 1 {
		t.Fatalf("archived = %d, want 1", len(arch.saved))
	}
	got := arch.saved[0]
	if got.Key != cache.DeriveKey("a", models.BackendLocal).String() || got.Text != "a" {
		t.Errorf("archived %+v", got)
	}
}

func TestProcess_ArchiveFailureDoesNotFailItem(t *testing.T) {
	arch := &memArchive{err: errors.New("disk full")}
	d, _ := New([]embedding.Backend{newCounting(models.BackendLocal)}, WithArchive(arch))
	res, _ := d.Process(context.Background(), []string{"a"}, models.BackendLocal)
	if res[0].Status() != models.StatusSuccess {
		t.Errorf("status = %s", res[0].Status())
	}
}

func TestBackendsAndCacheInfo(t *testing.T) {
	d, _ := New([]embedding.Backend{newCounting(models.BackendRemote), newCounting(models.BackendLocal)},
		WithCache(newCache(t, 5)))
	infos := d.Backends()
	if len(infos) != 2 || infos[0].ID != models.BackendLocal || infos[1].ID != models.BackendRemote {
		t.Errorf("backends = %+v", infos)
	}
	_, _ = d.Process(context.Background(), []string{"a", "a"}, models.BackendLocal)
	ci := d.CacheInfo()
	if !ci.Enabled || ci.Size != 1 || ci.Capacity != 5 || ci.Hits != 1 || ci.Misses != 1 {
		t.Errorf("cache info = %+v", ci)
	}
}

func TestProcess_ArchivesAfterRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	local := newCounting(models.BackendLocal)
	local.after = cancel
	arch := &memArchive{}
	c := newCache(t, 10)
	d, _ := New([]embedding.Backend{local}, WithCache(c), WithArchive(arch))

	res, _ := d.Process(ctx, []string{"a"}, models.BackendLocal)
	if res[0].Status() != models.StatusSuccess {
		t.Fatalf("status = %s", res[0].Status())
	}
	if c.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", c.Len())
	}
	if len(arch.saved) != 1 {
		t.Errorf("archived = %d, want the cached vector archived too", len(arch.saved))
	}
}

func TestProcess_ExpiredRequestIsNamedInMessage(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	d, _ := New([]embedding.Backend{newCounting(models.BackendLocal)})

	res, _ := d.Process(ctx, []string{"a"}, models.BackendLocal)
	kind, msg, _ := res[0].Err()
	if kind != models.KindBackendUnavailable {
		t.Fatalf("kind = %s", kind)
	}
	if !strings.HasPrefix(msg, "request deadline expired") {
		t.Errorf("message = %q, want it to name the expired request deadline", msg)
	}

	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	res, _ = d.Process(cctx, []string{"a"}, models.BackendLocal)
	if _, msg, _ := res[0].Err(); !strings.HasPrefix(msg, "request cancelled") {
		t.Errorf("message = %q, want it to name the cancelled request", msg)
	}
}

func TestProcess_BackendFailureMessageUnchanged(t *testing.T) {
	local := newCounting(models.BackendLocal)
	local.failOn["a"] = embedding.Upstream(models.BackendLocal, errors.New("status 500"))
	d, _ := New([]embedding.Backend{local})
	res, _ := d.Process(context.Background(), []string{"a"}, models.BackendLocal)
	if _, msg, _ := res[0].Err(); msg != "status 500" {
		t.Errorf("message = %q, want %q", msg, "status 500")
	}
}

func TestProcess_FailureLatencyUsesClock(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	local := newCounting(models.BackendLocal)
	local.failOn["a"] = embedding.Upstream(models.BackendLocal, errors.New("status 500"))
	d, _ := New([]embedding.Backend{local}, WithMetrics(m))
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		tick = tick.Add(3 * time.Second)
		return tick
	}
	_, _ = d.Process(context.Background(), []string{"a"}, models.BackendLocal)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var sum float64
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "embedapi.backend.duration" {
				continue
			}
			h, ok := met.Data.(metricdata.Histogram[float64])
			if !ok || len(h.DataPoints) != 1 {
				t.Fatalf("unexpected histogram data %T", met.Data)
			}
			sum, found = h.DataPoints[0].Sum, true
		}
	}
	if !found {
		t.Fatal("backend duration not recorded")
	}
	if sum != 3 {
		t.Errorf("recorded latency = %vs, want 3s from the injected clock", sum)
	}
}
