// Package errors defines the error kinds used across mvirt and how they map
// onto gRPC status codes (spec §6, §7).
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an mvirt error into one of the categories spec §7 names.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindConflict           Kind = "conflict"
	KindInvalidArgument    Kind = "invalid_argument"
	KindFailedPrecondition Kind = "failed_precondition"
	KindResourceExhausted  Kind = "resource_exhausted"
	KindUnavailable        Kind = "unavailable"
	KindDeadlineExceeded   Kind = "deadline_exceeded"
	KindInternal           Kind = "internal"
)

var kindToCode = map[Kind]codes.Code{
	KindNotFound:           codes.NotFound,
	KindAlreadyExists:      codes.AlreadyExists,
	KindConflict:           codes.Aborted,
	KindInvalidArgument:    codes.InvalidArgument,
	KindFailedPrecondition: codes.FailedPrecondition,
	KindResourceExhausted:  codes.ResourceExhausted,
	KindUnavailable:        codes.Unavailable,
	KindDeadlineExceeded:   codes.DeadlineExceeded,
	KindInternal:           codes.Internal,
}

// Error is an mvirt error carrying a Kind alongside the usual message/cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus implements the interface status.FromError looks for, so gRPC
// handlers can simply `return nil, err` and have the right code surfaced.
func (e *Error) GRPCStatus() *status.Status {
	code, ok := kindToCode[e.Kind]
	if !ok {
		code = codes.Unknown
	}

	return status.New(code, e.Error())
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound, Conflict, FailedPrecondition etc. are sugar over New for the
// kinds pkg/control and pkg/supervisor raise most often.
func NotFound(format string, args ...interface{}) error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func AlreadyExists(format string, args ...interface{}) error {
	return New(KindAlreadyExists, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...interface{}) error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func InvalidArgument(format string, args ...interface{}) error {
	return New(KindInvalidArgument, fmt.Sprintf(format, args...))
}

func FailedPrecondition(format string, args ...interface{}) error {
	return New(KindFailedPrecondition, fmt.Sprintf(format, args...))
}

func ResourceExhausted(format string, args ...interface{}) error {
	return New(KindResourceExhausted, fmt.Sprintf(format, args...))
}

func Unavailable(format string, args ...interface{}) error {
	return New(KindUnavailable, fmt.Sprintf(format, args...))
}

func Internal(cause error, format string, args ...interface{}) error {
	return Wrap(KindInternal, fmt.Sprintf(format, args...), cause)
}

// KindOf extracts the Kind from err, walking the Unwrap chain, defaulting to
// KindInternal when err carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// Is reports whether err (or any error it wraps) is of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Sentinel errors for validation conditions checked well before any gRPC
// boundary (mirrors the teacher's pkg/errors sentinel-var idiom).
var (
	ErrSpecRequired            = errors.New("vm spec is required")
	ErrVMIDRequired            = errors.New("id for vm is required")
	ErrNameRequired            = errors.New("name is required")
	ErrKernelImageRequired     = errors.New("kernel image is required")
	ErrRootVolumeRequired      = errors.New("a root volume is required")
	ErrGuestDeviceNameRequired = errors.New("a guest device name is required")
	ErrIfaceNotFound           = errors.New("network interface not found")
)

// IncorrectVMIDFormatError reports a malformed VM id.
type IncorrectVMIDFormatError struct {
	ActualID string
}

func (e IncorrectVMIDFormatError) Error() string {
	return fmt.Sprintf("unexpected vm id format: %s", e.ActualID)
}
