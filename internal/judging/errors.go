package judging

import (
	"errors"
	"fmt"
	"log/slog"
)

// Error kinds. Every error returned by Service matches exactly one of these
// through errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Error carries a caller-facing message alongside its kind
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func validationError(err error) *Error {
	return &Error{Kind: ErrValidation, Message: err.Error()}
}

// storageError hides the driver error from callers and logs it instead
func storageError(op string, err error) *Error {
	slog.Error("storage operation failed", "op", op, "error", err)
	return &Error{Kind: ErrStorageUnavailable, Message: "storage temporarily unavailable"}
}

// Message returns the caller-facing message of err
func Message(err error) string {
	var je *Error
	if errors.As(err, &je) {
		return je.Message
	}
	return err.Error()
}
