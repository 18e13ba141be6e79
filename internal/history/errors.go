package history

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned by RecordTurn before Load has succeeded.
	ErrNotLoaded = errors.New("history: not loaded")
	// ErrAlreadyLoaded is returned by a second Load.
	ErrAlreadyLoaded = errors.New("history: already loaded")
	// ErrUnverified means the remote document exists but its content could
	// not be read, so writing would overwrite turns this session never saw.
	ErrUnverified = errors.New("history: remote document could not be read")
)

// PersistError reports that a recorded turn is held in memory but was not
// written this time.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persistence failed this turn: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
