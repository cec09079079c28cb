// Package embedding provides the embedding backends: a local ONNX model and
// the OpenAI embeddings API, plus wrappers that protect remote calls.
package embedding

import (
	"context"
	"time"

	"github.com/hyperjump/embedapi/internal/models"
)

// Backend turns one text into one embedding vector.
type Backend interface {
	ID() models.Backend
	Model() string
	Dimensions() int
	Embed(ctx context.Context, text string) (Outcome, error)
	Close() error
}

// Outcome is a successful embedding and the time the backend spent on it.
type Outcome struct {
	Vector  []float32
	Elapsed time.Duration
}

// timed runs fn and records its wall-clock latency in the outcome.
func timed(fn func() ([]float32, error)) (Outcome, error) {
	start := time.Now()
	vec, err := fn()
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Vector: vec, Elapsed: time.Since(start)}, nil
}
