package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/pkg/utils"
)

// stubBackend returns err for every call when set, otherwise a fixed vector.
type stubBackend struct {
	id    models.Backend
	err   error
	calls atomic.Int32
}

func (s *stubBackend) ID() models.Backend { return s.id }
func (s *stubBackend) Model() string      { return "stub" }
func (s *stubBackend) Dimensions() int    { return 2 }
func (s *stubBackend) Close() error       { return nil }

func (s *stubBackend) Embed(ctx context.Context, text string) (Outcome, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Outcome{}, s.err
	}
	return Outcome{Vector: []float32{1, 0}}, nil
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ErrorKind
	}{
		{"unavailable", Unavailable(models.BackendLocal, errors.New("x")), models.KindBackendUnavailable},
		{"upstream", Upstream(models.BackendRemote, errors.New("x")), models.KindUpstream},
		{"invalid", InvalidInput(models.BackendRemote, errors.New("x")), models.KindInvalidInput},
		{"wrapped", fmt.Errorf("outer: %w", InvalidInput(models.BackendRemote, errors.New("x"))), models.KindInvalidInput},
		{"deadline", context.DeadlineExceeded, models.KindBackendUnavailable},
		{"canceled", fmt.Errorf("call: %w", context.Canceled), models.KindBackendUnavailable},
		{"plain", errors.New("boom"), models.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	err := Upstream(models.BackendRemote, errors.New("status 500"))
	if got := MessageOf(err); got != "status 500" {
		t.Errorf("MessageOf() = %q", got)
	}
	if got := err.Error(); got != "openai backend: upstream_error: status 500" {
		t.Errorf("Error() = %q", got)
	}
	if got := MessageOf(errors.New("plain")); got != "plain" {
		t.Errorf("MessageOf(plain) = %q", got)
	}
}

func TestHashBackend(t *testing.T) {
	b := NewHashBackend(models.BackendLocal, 16)
	ctx := context.Background()
	a1, err := b.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := b.Embed(ctx, "hello")
	other, _ := b.Embed(ctx, "world")
	if len(a1.Vector) != 16 {
		t.Fatalf("dimensions = %d", len(a1.Vector))
	}
	same, diff := true, false
	for i := range a1.Vector {
		if a1.Vector[i] != a2.Vector[i] {
			same = false
		}
		if a1.Vector[i] != other.Vector[i] {
			diff = true
		}
	}
	if !same {
		t.Error("same text produced different vectors")
	}
	if !diff {
		t.Error("different texts produced the same vector")
	}
	if norm := utils.L2Norm(a1.Vector); norm < 0.999 || norm > 1.001 {
		t.Errorf("norm = %f, want 1", norm)
	}
}

func TestHashBackend_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashBackend(models.BackendLocal, 4).Embed(ctx, "x")
	if KindOf(err) != models.KindBackendUnavailable {
		t.Errorf("kind = %s, want backend_unavailable", KindOf(err))
	}
}

func TestCallerEnded(t *testing.T) {
	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()
	upstream := Upstream(models.BackendRemote, errors.New("500"))

	if CallerEnded(live, nil) || CallerEnded(done, nil) {
		t.Error("nil error never counts as the caller ending")
	}
	if CallerEnded(live, upstream) {
		t.Error("upstream failure on a live context blamed on the caller")
	}
	if !CallerEnded(done, upstream) {
		t.Error("failure on a done context not blamed on the caller")
	}
	if !CallerEnded(live, Unavailable(models.BackendRemote, ErrRequestBudget)) {
		t.Error("request budget failure not blamed on the caller")
	}
}
