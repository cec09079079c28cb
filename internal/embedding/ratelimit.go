package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hyperjump/embedapi/internal/models"
)

// RateLimited spaces calls to a Backend to at most perMinute per minute.
// Callers wait for a slot; a cancelled wait, or one that cannot finish before
// the caller's deadline, is reported as backend unavailable.
type RateLimited struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewRateLimited wraps inner. A burst of one keeps requests evenly spaced.
func NewRateLimited(inner Backend, perMinute int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

func (r *RateLimited) ID() models.Backend { return r.inner.ID() }
func (r *RateLimited) Model() string      { return r.inner.Model() }
func (r *RateLimited) Dimensions() int    { return r.inner.Dimensions() }
func (r *RateLimited) Close() error       { return r.inner.Close() }

func (r *RateLimited) Embed(ctx context.Context, text string) (Outcome, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrRequestBudget, err)
		}
		return Outcome{}, Unavailable(r.inner.ID(), fmt.Errorf("rate limit wait: %w", err))
	}
	return r.inner.Embed(ctx, text)
}
