package turn

import "fmt"

// ModelError reports a completion-engine failure or malformed operation
// arguments on the primary call. It is fatal for the turn: nothing is merged
// or persisted.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("completion engine: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a state-store failure. It is never swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
