//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"

	"github.com/hyperjump/embedapi/internal/models"
)

var errNoCGO = errors.New("local model requires CGO; build with CGO_ENABLED=1 and onnxruntime")

// ONNXBackend is unavailable without CGO (see onnx.go).
type ONNXBackend struct{}

// NewONNXBackend always fails with a backend unavailable error.
func NewONNXBackend(_, _ string, _, _ int) (*ONNXBackend, error) {
	return nil, Unavailable(models.BackendLocal, errNoCGO)
}

func (b *ONNXBackend) ID() models.Backend { return models.BackendLocal }
func (b *ONNXBackend) Model() string      { return "" }
func (b *ONNXBackend) Dimensions() int    { return 0 }
func (b *ONNXBackend) Close() error       { return nil }

func (b *ONNXBackend) Embed(context.Context, string) (Outcome, error) {
	return Outcome{}, Unavailable(models.BackendLocal, errNoCGO)
}
