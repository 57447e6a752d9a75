package engine

import (
	"errors"
	"fmt"
)

// errorKindChoices backs Kind via the Enum/Choices idiom.
type errorKindChoices struct{}

func (errorKindChoices) Choices() []string {
	return []string{
		KindArgument:       "Argument",
		KindNotOpen:        "NotOpen",
		KindNotFound:       "NotFound",
		KindReadIO:         "ReadIO",
		KindSchemaMismatch: "SchemaMismatch",
		KindUnicode:        "Unicode",
		KindCorruptFs:      "CorruptFs",
		KindCancelled:      "Cancelled",
		KindTransaction:    "Transaction",
		KindUnsupported:    "Unsupported",
	}
}

// Kind is the closed taxonomy of error kinds from the error-handling
// design (spec.md §7). It is not itself an error; wrap it in an Error.
type Kind = Enum[errorKindChoices]

// The recognized error kinds.
const (
	KindArgument Kind = iota
	KindNotOpen
	KindNotFound
	KindReadIO
	KindSchemaMismatch
	KindUnicode
	KindCorruptFs
	KindCancelled
	KindTransaction
	KindUnsupported
)

// Error is the engine's typed error: a kind, a primary message, and an
// optional secondary context string, exactly as specified for
// error_list() entries (spec.md §7 "User-visible behaviour").
type Error struct {
	Kind    Kind
	Message string
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithContext attaches a secondary context string and returns the
// receiver, for fluent construction at the call site.
func (e *Error) WithContext(context string) *Error {
	e.Context = context
	return e
}

// WithCause attaches a wrapped cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, engine.NewError(engine.KindCancelled, "")) works
// without requiring the message to match.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel kind-only errors for errors.Is comparisons at call sites
// that don't need a message (e.g. "is this a cancellation?").
var (
	ErrCancelled   = &Error{Kind: KindCancelled, Message: "cancelled"}
	ErrUnsupported = &Error{Kind: KindUnsupported, Message: "not implemented for this backend"}
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNotOpen     = &Error{Kind: KindNotOpen, Message: "not open"}
)
