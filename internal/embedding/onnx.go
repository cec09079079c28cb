//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/embedapi/internal/models"
	"github.com/hyperjump/embedapi/pkg/utils"
)

// ONNXBackend runs a sentence-transformer model through ONNX Runtime. It
// requires CGO and the onnxruntime shared library.
type ONNXBackend struct {
	session    *ort.AdvancedSession
	modelName  string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Tensors are allocated once; Embed overwrites the input data and reads the output.
	inputIDsTensor      *ort.Tensor[int64]
	attentionMaskTensor *ort.Tensor[int64]
	tokenTypeIDsTensor  *ort.Tensor[int64]
	outputTensor        *ort.Tensor[float32]
	mu                  sync.Mutex
}

// NewONNXBackend loads the model at modelPath. Any load failure is reported
// as backend unavailable.
func NewONNXBackend(modelPath, modelName string, dimensions, maxTokens int) (*ONNXBackend, error) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, Unavailable(models.BackendLocal, fmt.Errorf("model file: %w", err))
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, Unavailable(models.BackendLocal, fmt.Errorf("initialize onnx runtime: %w", err))
		}
	}

	tokenizer := &SimpleTokenizer{}
	inputIDs, attentionMask, tokenTypeIDs := tokenizer.Tokenize("", maxTokens)
	shape := ort.NewShape(1, int64(maxTokens))

	b := &ONNXBackend{
		modelName:  modelName,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  tokenizer,
	}
	var err error
	if b.inputIDsTensor, err = ort.NewTensor(shape, inputIDs); err != nil {
		return nil, b.failLoad("input_ids tensor", err)
	}
	if b.attentionMaskTensor, err = ort.NewTensor(shape, attentionMask); err != nil {
		return nil, b.failLoad("attention_mask tensor", err)
	}
	if b.tokenTypeIDsTensor, err = ort.NewTensor(shape, tokenTypeIDs); err != nil {
		return nil, b.failLoad("token_type_ids tensor", err)
	}
	if b.outputTensor, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions)); err != nil {
		return nil, b.failLoad("output tensor", err)
	}

	b.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{b.inputIDsTensor, b.attentionMaskTensor, b.tokenTypeIDsTensor},
		[]ort.ArbitraryTensor{b.outputTensor},
		nil,
	)
	if err != nil {
		return nil, b.failLoad("session "+modelPath, err)
	}
	return b, nil
}

func (b *ONNXBackend) failLoad(what string, err error) error {
	_ = b.Close()
	return Unavailable(models.BackendLocal, fmt.Errorf("create %s: %w", what, err))
}

func (b *ONNXBackend) ID() models.Backend { return models.BackendLocal }
func (b *ONNXBackend) Model() string      { return b.modelName }
func (b *ONNXBackend) Dimensions() int    { return b.dimensions }

// Embed tokenizes text, truncating past maxTokens, and runs the model.
// The session is not reentrant, so calls are serialized.
func (b *ONNXBackend) Embed(ctx context.Context, text string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, Unavailable(models.BackendLocal, err)
	}
	return timed(func() ([]float32, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.session == nil {
			return nil, Unavailable(models.BackendLocal, errors.New("model is closed"))
		}

		inputIDs, attentionMask, tokenTypeIDs := b.tokenizer.Tokenize(text, b.maxTokens)
		copy(b.inputIDsTensor.GetData(), inputIDs)
		copy(b.attentionMaskTensor.GetData(), attentionMask)
		copy(b.tokenTypeIDsTensor.GetData(), tokenTypeIDs)

		if err := b.session.Run(); err != nil {
			return nil, Unavailable(models.BackendLocal, fmt.Errorf("inference: %w", err))
		}

		vec := make([]float32, b.dimensions)
		copy(vec, b.outputTensor.GetData())
		utils.NormalizeL2(vec)
		return vec, nil
	})
}

// Close destroys the session and tensors. It is safe to call more than once.
func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.session != nil {
		err = b.session.Destroy()
		b.session = nil
	}
	if b.inputIDsTensor != nil {
		_ = b.inputIDsTensor.Destroy()
		b.inputIDsTensor = nil
	}
	if b.attentionMaskTensor != nil {
		_ = b.attentionMaskTensor.Destroy()
		b.attentionMaskTensor = nil
	}
	if b.tokenTypeIDsTensor != nil {
		_ = b.tokenTypeIDsTensor.Destroy()
		b.tokenTypeIDsTensor = nil
	}
	if b.outputTensor != nil {
		_ = b.outputTensor.Destroy()
		b.outputTensor = nil
	}
	return err
}
