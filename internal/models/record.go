package models

import "time"

// Record is one line of the batching client's output file.
type Record struct {
	Text      string         `json:"text"`
	Embedding []float32      `json:"embedding"`
	Metadata  RecordMetadata `json:"metadata"`
}

// RecordMetadata describes how a Record's embedding was produced.
type RecordMetadata struct {
	Status  Status    `json:"status"`
	Elapsed float64   `json:"elapsed"` // milliseconds
	Model   string    `json:"model"`
	Backend Backend   `json:"backend"`
	Cache   bool      `json:"cache"`
	Kind    ErrorKind `json:"error_kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// NewRecord pairs text with its dispatch result.
func NewRecord(text string, res EmbeddingResult) Record {
	rec := Record{
		Text: text,
		Metadata: RecordMetadata{
			Status:  res.Status(),
			Model:   res.Model(),
			Backend: res.Backend(),
			Cache:   res.FromCache(),
			Elapsed: float64(res.Elapsed()) / float64(time.Millisecond),
		},
	}
	if vec, ok := res.Vector(); ok {
		rec.Embedding = vec
	} else {
		rec.Embedding = []float32{}
		rec.Metadata.Kind, rec.Metadata.Message, _ = res.Err()
	}
	return rec
}

// ArchivedEmbedding is a generated vector persisted to the embedding archive.
type ArchivedEmbedding struct {
	Key       string    `json:"key"`
	Backend   Backend   `json:"backend"`
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}
