// Package errdefs defines the error taxonomy shared by the download, provider,
// archive and loader packages.
//
// Every caller-visible failure is an *Error carrying exactly one Kind. Lower
// level errors (net/http, archive/zip, encoding/json) are translated into a
// Kind at the package boundary where they occur.
package errdefs

import (
	"context"
	"errors"
	"fmt"
)

// Kind enumerates the failure classes surfaced to callers.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork is a transient transport failure; it is the only retryable kind.
	KindNetwork
	// KindIntegrity is a checksum or size mismatch on received bytes.
	KindIntegrity
	// KindParse is a malformed provider or package payload.
	KindParse
	// KindExtraction is a failure writing a single archive entry.
	KindExtraction
	// KindAuth is a missing or rejected credential.
	KindAuth
	// KindRateLimit is a provider refusing requests because of request volume.
	KindRateLimit
	// KindProvider is any other non-success answer from a remote API.
	KindProvider
	// KindCanceled marks work abandoned because its batch failed or was cancelled.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "NetworkError"
	case KindIntegrity:
		return "IntegrityError"
	case KindParse:
		return "ParseError"
	case KindExtraction:
		return "ExtractionError"
	case KindAuth:
		return "AuthError"
	case KindRateLimit:
		return "RateLimitError"
	case KindProvider:
		return "ProviderError"
	case KindCanceled:
		return "Canceled"
	default:
		return "UnknownError"
	}
}

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Op      string // operation or subject, e.g. a URL or archive entry
	Code    int    // remote status code, when there is one
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with a formatted message.
func New(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. Wrapping an existing *Error keeps its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Status builds a remote-API error with a status code.
func Status(kind Kind, op string, code int, message string) *Error {
	return &Error{Kind: kind, Op: op, Code: code, Message: message}
}

// KindOf reports the kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err is a transient failure worth another attempt.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}
