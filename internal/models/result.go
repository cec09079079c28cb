package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Status is the outcome of embedding one text item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// EmbeddingResult is the per-item outcome of a dispatch. It is either a
// success carrying a vector or a failure carrying an error kind and message,
// never both. Build one with Success or Failure.
type EmbeddingResult struct {
	backend Backend
	model   string
	ok      *successPayload
	fail    *failurePayload
}

type successPayload struct {
	vector    []float32
	elapsed   time.Duration
	fromCache bool
}

type failurePayload struct {
	kind    ErrorKind
	message string
}

// Success returns a successful result. The vector is copied.
func Success(backend Backend, model string, vector []float32, elapsed time.Duration, fromCache bool) EmbeddingResult {
	return EmbeddingResult{
		backend: backend,
		model:   model,
		ok: &successPayload{
			vector:    slices.Clone(vector),
			elapsed:   elapsed,
			fromCache: fromCache,
		},
	}
}

// Failure returns a failed result.
func Failure(backend Backend, model string, kind ErrorKind, message string) EmbeddingResult {
	return EmbeddingResult{
		backend: backend,
		model:   model,
		fail:    &failurePayload{kind: kind, message: message},
	}
}

// Status reports success or error. The zero value is an error.
func (r EmbeddingResult) Status() Status {
	if r.ok != nil {
		return StatusSuccess
	}
	return StatusError
}

// Backend returns the backend that produced (or failed to produce) the result.
func (r EmbeddingResult) Backend() Backend { return r.backend }

// Model returns the backend's model name.
func (r EmbeddingResult) Model() string { return r.model }

// Vector returns a copy of the embedding and true on success.
func (r EmbeddingResult) Vector() ([]float32, bool) {
	if r.ok == nil {
		return nil, false
	}
	return slices.Clone(r.ok.vector), true
}

// Elapsed is the backend latency; zero for cache hits and failures.
func (r EmbeddingResult) Elapsed() time.Duration {
	if r.ok == nil {
		return 0
	}
	return r.ok.elapsed
}

// FromCache reports whether the vector was served from the cache.
func (r EmbeddingResult) FromCache() bool {
	return r.ok != nil && r.ok.fromCache
}

// Err returns the error kind and message and true when the result is a failure.
func (r EmbeddingResult) Err() (ErrorKind, string, bool) {
	if r.fail == nil {
		if r.ok == nil {
			return "", "empty result", true
		}
		return "", "", false
	}
	return r.fail.kind, r.fail.message, true
}

// resultJSON is the wire shape. Elapsed is in milliseconds.
type resultJSON struct {
	Status    Status    `json:"status"`
	Backend   Backend   `json:"backend"`
	Model     string    `json:"model,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Elapsed   *float64  `json:"elapsed,omitempty"`
	Cache     *bool     `json:"cache,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r EmbeddingResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Status:  r.Status(),
		Backend: r.backend,
		Model:   r.model,
	}
	if r.ok != nil {
		ms := float64(r.ok.elapsed) / float64(time.Millisecond)
		cached := r.ok.fromCache
		out.Embedding = r.ok.vector
		if out.Embedding == nil {
			out.Embedding = []float32{}
		}
		out.Elapsed = &ms
		out.Cache = &cached
	} else {
		out.ErrorKind, out.Message, _ = r.Err()
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *EmbeddingResult) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Status {
	case StatusSuccess:
		var elapsed time.Duration
		if in.Elapsed != nil {
			elapsed = time.Duration(*in.Elapsed * float64(time.Millisecond))
		}
		*r = Success(in.Backend, in.Model, in.Embedding, elapsed, in.Cache != nil && *in.Cache)
	case StatusError:
		*r = Failure(in.Backend, in.Model, in.ErrorKind, in.Message)
	default:
		return fmt.Errorf("unknown result status %q", in.Status)
	}
	return nil
}

// TextInput is the "text" request field. It accepts a single string or an
// array of strings; a single string becomes a one-element batch. A missing or
// null field leaves it nil.
type TextInput []string

var errTextNotString = errors.New("text must be a string or an array of strings")

// UnmarshalJSON implements json.Unmarshaler.
func (t *TextInput) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TextInput{single}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errTextNotString
	}
	items := make(TextInput, 0, len(raw))
	for i, item := range raw {
		var s string
		if len(item) == 0 || item[0] != '"' {
			return fmt.Errorf("text[%d]: %w", i, errTextNotString)
		}
		if err := json.Unmarshal(item, &s); err != nil {
			return fmt.Errorf("text[%d]: %w", i, err)
		}
		items = append(items, s)
	}
	*t = items
	return nil
}

// EmbedRequest is the body of POST /api/v1/embeddings.
type EmbedRequest struct {
	Text  TextInput `json:"text"`
	Model string    `json:"model,omitempty"`
}
