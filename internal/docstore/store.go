package docstore

import (
	"context"
	"errors"
	"fmt"
)

// DocumentID is an opaque, backend-specific handle. The zero value means no
// document has been created yet.
type DocumentID string

func (id DocumentID) IsZero() bool { return id == "" }

// ErrNotFound reports a name or handle the backend does not know.
var ErrNotFound = errors.New("document not found")

// Backend is implemented by every concrete store.
type Backend interface {
	// FindByName returns the first document called name, or ErrNotFound.
	FindByName(ctx context.Context, name string) (DocumentID, error)
	// Fetch returns the full content of id, or ErrNotFound.
	Fetch(ctx context.Context, id DocumentID) ([]byte, error)
	// Replace overwrites the full content of id, or returns ErrNotFound when
	// the handle no longer exists.
	Replace(ctx context.Context, id DocumentID, content []byte) error
	// Create stores a new document and returns its handle.
	Create(ctx context.Context, name string, content []byte) (DocumentID, error)
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. It returns nil for a nil err.
func Transient(err error) error {
	if err == nil || IsTransient(err) {
		return err
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Op names a store operation in errors and logs.
type Op string

const (
	OpFind    Op = "find"
	OpFetch   Op = "fetch"
	OpReplace Op = "replace"
	OpCreate  Op = "create"
)

// OpError is a store failure that survived the client's retries.
type OpError struct {
	Op       Op
	Target   string
	Attempts int
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("docstore %s %q failed after %d attempt(s): %v", e.Op, e.Target, e.Attempts, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
