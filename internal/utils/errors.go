package utils

import "fmt"

// AppError carries the failing operation alongside a human-facing message.
// The wrapped cause stays reachable through errors.Is/As.
type AppError struct {
	Op  string
	Msg string
	Err error
}

// NewAppError builds an AppError. err may be nil when the operation itself is
// the whole story.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Msg
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }
