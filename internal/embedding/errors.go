package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/embedapi/internal/models"
)

// Error is a classified backend failure.
type Error struct {
	Kind    models.ErrorKind
	Backend models.Backend
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable reports that the backend could not be reached or was not loaded.
func Unavailable(backend models.Backend, err error) error {
	return &Error{Kind: models.KindBackendUnavailable, Backend: backend, Err: err}
}

// Upstream reports that the backend answered with an error.
func Upstream(backend models.Backend, err error) error {
	return &Error{Kind: models.KindUpstream, Backend: backend, Err: err}
}

// InvalidInput reports that the backend rejected the text itself.
func InvalidInput(backend models.Backend, err error) error {
	return &Error{Kind: models.KindInvalidInput, Backend: backend, Err: err}
}

// KindOf classifies err. Context cancellation and deadlines count as the
// backend being unavailable; anything unclassified is an upstream error.
func KindOf(err error) models.ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.KindBackendUnavailable
	}
	return models.KindUpstream
}

// MessageOf returns the human-readable part of err without the backend prefix.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}

// ErrRequestBudget marks a call abandoned because the caller's deadline
// would pass before it could start.
var ErrRequestBudget = errors.New("request deadline too close to start backend call")

// CallerEnded reports whether err stems from the caller giving up rather
// than from the backend: ctx is already done, or the call was abandoned for
// lack of time left on ctx.
func CallerEnded(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return ctx.Err() != nil || errors.Is(err, ErrRequestBudget)
}
