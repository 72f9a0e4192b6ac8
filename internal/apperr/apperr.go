// Package apperr defines the error taxonomy surfaced by the query and
// ingestion services. Every error returned to an HTTP caller is mapped to a
// status code and a human-readable detail string through this package.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnsupportedFormat
	KindEmbeddingUnavailable
	KindGenerationTimeout
	KindDimensionMismatch
	KindProvider
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindEmbeddingUnavailable:
		return "embedding_unavailable"
	case KindGenerationTimeout:
		return "generation_timeout"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	case KindProvider:
		return "provider"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error carries a Kind, a caller-safe Detail and an optional wrapped cause.
// The cause is never shown to callers.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, apperr.ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidation           = &Error{Kind: KindValidation, Detail: "invalid request"}
	ErrUnsupportedFormat    = &Error{Kind: KindUnsupportedFormat, Detail: "unsupported file format"}
	ErrEmbeddingUnavailable = &Error{Kind: KindEmbeddingUnavailable, Detail: "embedding service unavailable"}
	ErrGenerationTimeout    = &Error{Kind: KindGenerationTimeout, Detail: "language model timed out"}
	ErrDimensionMismatch    = &Error{Kind: KindDimensionMismatch, Detail: "vector dimension mismatch"}
	ErrProvider             = &Error{Kind: KindProvider, Detail: "upstream provider failure"}
	ErrNotFound             = &Error{Kind: KindNotFound, Detail: "not found"}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Detail: "unauthorized"}
)

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: cause}
}

func Validation(format string, args ...any) error {
	return newf(KindValidation, nil, format, args...)
}

func UnsupportedFormat(format string, args ...any) error {
	return newf(KindUnsupportedFormat, nil, format, args...)
}

func NotFound(format string, args ...any) error {
	return newf(KindNotFound, nil, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return newf(KindUnauthorized, nil, format, args...)
}

func DimensionMismatch(want, got int) error {
	return newf(KindDimensionMismatch, nil, "vector has %d dimensions, index expects %d", got, want)
}

func EmbeddingUnavailable(cause error) error {
	return newf(KindEmbeddingUnavailable, cause, "embedding service unavailable")
}

// EmbeddingTimeout reports an embedding call cut off by the caller's
// deadline.
func EmbeddingTimeout(cause error) error {
	return newf(KindEmbeddingUnavailable, cause, "embedding service did not respond in time")
}

func GenerationTimeout(cause error) error {
	return newf(KindGenerationTimeout, cause, "language model did not respond in time")
}

func Provider(cause error, format string, args ...any) error {
	return newf(KindProvider, cause, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StatusCode maps an error to the HTTP status returned to callers.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation, KindUnsupportedFormat:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindEmbeddingUnavailable:
		return http.StatusServiceUnavailable
	case KindProvider:
		return http.StatusBadGateway
	case KindGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the caller-safe message for err. Errors outside the
// taxonomy are reported generically so internals never leak.
func Detail(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Detail != "" {
		return e.Detail
	}
	return "internal server error"
}
