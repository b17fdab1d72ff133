package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and transports.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Kind sentinels. errors.Is(err, ErrValidation) holds for any AppError of that kind.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrUpstream   = errors.New("upstream error")
)

// Specific causes wrapped inside AppErrors.
var (
	ErrInvalidRange  = errors.New("invalid date range")
	ErrEmptyQuery    = errors.New("empty search query")
	ErrNoResults     = errors.New("no matching entities")
	ErrUnknownEntity = errors.New("unknown entity")
)

// AppError wraps an operation, human-facing message, failure kind, and underlying error.
type AppError struct {
	Op   string
	Msg  string
	Kind Kind
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *AppError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUpstream:
		return e.Kind == KindUpstream
	}
	return false
}

// NewValidationError constructs a validation failure; it is reported immediately and never retried.
func NewValidationError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: KindValidation, Err: err}
}

// NewNotFoundError constructs a non-fatal "nothing matched" outcome.
func NewNotFoundError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: KindNotFound, Err: err}
}

// NewUpstreamError constructs a remote-service failure scoped to a single call.
func NewUpstreamError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Kind: KindUpstream, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
