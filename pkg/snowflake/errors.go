package snowflake

import (
	"errors"
	"fmt"

	sf "github.com/snowflakedb/gosnowflake"
)

// Kind classifies errors returned by this package
type Kind int

const (
	KindConnection Kind = iota + 1
	KindExecution
	KindValidation
	KindConfig
	KindLoad
)

// Sentinel errors matched by errors.Is against any *Error of the same kind.
var (
	ErrConnection = errors.New("snowflake: connection error")
	ErrExecution  = errors.New("snowflake: execution error")
	ErrValidation = errors.New("snowflake: validation error")
	ErrConfig     = errors.New("snowflake: configuration error")
	ErrLoad       = errors.New("snowflake: load error")
)

var (
	// ErrNotConnected is returned by operations on a session that has not been
	// opened or has already been closed.
	ErrNotConnected = &Error{Kind: KindConnection, Message: "session is not connected"}

	// ErrStagingBusy is returned when another reconciliation holds the lock
	// on the same staging table.
	ErrStagingBusy = &Error{Kind: KindValidation, Message: "staging table is locked by another reconciliation"}
)

func (k Kind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindExecution:
		return ErrExecution
	case KindValidation:
		return ErrValidation
	case KindConfig:
		return ErrConfig
	case KindLoad:
		return ErrLoad
	}
	return nil
}

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindExecution:
		return "execution"
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindLoad:
		return "load"
	}
	return "unknown"
}

// Error is the error type returned by every operation in this package
type Error struct {
	Kind    Kind
	Message string
	// Query is the statement that failed, if any
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of e's kind
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

const errObjectDoesNotExist = 2003

// IsObjectNotFound reports whether err carries the warehouse "object does not
// exist or not authorized" error.
func IsObjectNotFound(err error) bool {
	var sfErr *sf.SnowflakeError
	return errors.As(err, &sfErr) && sfErr.Number == errObjectDoesNotExist
}
