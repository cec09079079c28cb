package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/hyperjump/embedapi/internal/models"
)

// DefaultOpenAIModel is the remote model used when none is configured.
const DefaultOpenAIModel = oai.EmbeddingModelTextEmbeddingAda002

// OpenAIBackend embeds text through the OpenAI embeddings API. The SDK's own
// retries are disabled; one Embed call is one HTTP request.
type OpenAIBackend struct {
	client     oai.Client
	model      string
	counter    TokenCounter
	tokenLimit int
}

type openAIConfig struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	counter    TokenCounter
	tokenLimit int
}

// OpenAIOption configures an OpenAIBackend.
type OpenAIOption func(*openAIConfig)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) { c.baseURL = url }
}

// WithTimeout sets the HTTP timeout for each request.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openAIConfig) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client. It takes precedence over WithTimeout.
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *openAIConfig) { c.httpClient = hc }
}

// WithTokenLimit rejects texts longer than limit tokens, as counted by counter,
// before any request is made.
func WithTokenLimit(counter TokenCounter, limit int) OpenAIOption {
	return func(c *openAIConfig) {
		c.counter = counter
		c.tokenLimit = limit
	}
}

// NewOpenAIBackend builds the remote backend. An empty model selects
// DefaultOpenAIModel.
func NewOpenAIBackend(apiKey, model string, opts ...OpenAIOption) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("openai backend: api key must not be empty")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	cfg := &openAIConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	switch {
	case cfg.httpClient != nil:
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	case cfg.timeout > 0:
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAIBackend{
		client:     oai.NewClient(reqOpts...),
		model:      model,
		counter:    cfg.counter,
		tokenLimit: cfg.tokenLimit,
	}, nil
}

func (b *OpenAIBackend) ID() models.Backend { return models.BackendRemote }
func (b *OpenAIBackend) Model() string      { return b.model }
func (b *OpenAIBackend) Dimensions() int    { return modelDimensions(b.model) }
func (b *OpenAIBackend) Close() error       { return nil }

// Embed sends one embeddings request for text.
func (b *OpenAIBackend) Embed(ctx context.Context, text string) (Outcome, error) {
	if b.counter != nil && b.tokenLimit > 0 {
		if n := b.counter.CountTokens(text); n > b.tokenLimit {
			return Outcome{}, InvalidInput(models.BackendRemote,
				fmt.Errorf("input is %d tokens, limit is %d", n, b.tokenLimit))
		}
	}
	return timed(func() ([]float32, error) {
		resp, err := b.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
			Model: b.model,
			Input: oai.EmbeddingNewParamsInputUnion{
				OfString: param.NewOpt(text),
			},
		})
		if err != nil {
			return nil, classifyOpenAIError(err)
		}
		if len(resp.Data) == 0 {
			return nil, Upstream(models.BackendRemote, errors.New("empty response"))
		}
		return float64ToFloat32(resp.Data[0].Embedding), nil
	})
}

// classifyOpenAIError maps an SDK error to an error kind. Request-shape
// statuses mean the text was rejected; any other status is an upstream
// failure; no status at all means the API was not reached.
func classifyOpenAIError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
			return InvalidInput(models.BackendRemote, err)
		default:
			return Upstream(models.BackendRemote, err)
		}
	}
	return Unavailable(models.BackendRemote, err)
}

func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	default:
		return 1536
	}
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
