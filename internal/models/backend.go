// Package models defines the request, result, and record types shared by the
// server, the dispatcher, and the batching client.
package models

import (
	"fmt"
	"strings"
)

// Backend identifies one of the two embedding providers. The value doubles as
// part of the cache key and as the "model" field on the wire.
type Backend string

const (
	// BackendLocal is the locally loaded sentence-transformer model.
	BackendLocal Backend = "local"
	// BackendRemote is the OpenAI embeddings API.
	BackendRemote Backend = "openai"
)

// Backends lists every recognized backend in a stable order.
var Backends = []Backend{BackendLocal, BackendRemote}

// ParseBackend normalizes s and returns the matching Backend. An empty string
// selects BackendLocal, which existing clients rely on.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(BackendLocal):
		return BackendLocal, nil
	case string(BackendRemote):
		return BackendRemote, nil
	default:
		return "", fmt.Errorf("model field must be one of: %s, %s", BackendLocal, BackendRemote)
	}
}

// Valid reports whether b is a recognized backend.
func (b Backend) Valid() bool {
	return b == BackendLocal || b == BackendRemote
}

func (b Backend) String() string {
	return string(b)
}

// ErrorKind classifies a per-item backend failure.
type ErrorKind string

const (
	// KindBackendUnavailable means the model could not be loaded or the remote
	// service could not be reached.
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	// KindUpstream means the remote API answered with an error status.
	KindUpstream ErrorKind = "upstream_error"
	// KindInvalidInput means the backend rejected the text itself.
	KindInvalidInput ErrorKind = "invalid_input"
)
