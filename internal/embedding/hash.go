package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/pkg/utils"
)

// HashModelName is the model name reported by HashBackend.
const HashModelName = "hash-fallback"

// HashBackend produces deterministic unit vectors from a hash of the text.
// The vectors carry no meaning. It stands in for the local model in tests
// and, when explicitly allowed, on hosts without onnxruntime.
type HashBackend struct {
	id         models.Backend
	dimensions int
}

// NewHashBackend returns a hash backend reporting the given backend id.
func NewHashBackend(id models.Backend, dimensions int) *HashBackend {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashBackend{id: id, dimensions: dimensions}
}

func (b *HashBackend) ID() models.Backend { return b.id }
func (b *HashBackend) Model() string      { return HashModelName }
func (b *HashBackend) Dimensions() int    { return b.dimensions }
func (b *HashBackend) Close() error       { return nil }

// Embed returns the same vector for the same text every time.
func (b *HashBackend) Embed(ctx context.Context, text string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, Unavailable(b.id, err)
	}
	return timed(func() ([]float32, error) {
		h := HashString(text)
		emb := make([]float32, b.dimensions)
		for i := range emb {
			emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
		}
		utils.NormalizeL2(emb)
		return emb, nil
	})
}
