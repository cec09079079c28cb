package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/hyperjump/embedapi/internal/models"
)

func TestRateLimited_WaitCancelled(t *testing.T) {
	inner := &stubBackend{id: models.BackendRemote}
	r := NewRateLimited(inner, 1)
	if _, err := r.Embed(context.Background(), "first"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Embed(ctx, "second")
	if KindOf(err) != models.KindBackendUnavailable {
		t.Errorf("kind = %s, want backend_unavailable", KindOf(err))
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls.Load())
	}
}
