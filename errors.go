package tinyrpc

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an RPC failure.
type Kind string

// Error kinds.
const (
	KindValidation           Kind = "validation"
	KindBadRequest           Kind = "bad_request"
	KindNotFound             Kind = "not_found"
	KindMethodNotAllowed     Kind = "method_not_allowed"
	KindUnsupportedMediaType Kind = "unsupported_media_type"
	KindDecode               Kind = "decode"
	KindBodyTooLarge         Kind = "body_too_large"
	KindHandler              Kind = "handler"
)

// Error represents a failure that is reported to the client.
// Status is the HTTP status used by codecs that report errors out of band.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error of the given kind.
func NewError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// ErrValidation returns a validation error. details may carry a serialized
// description of the expected input shape.
func ErrValidation(reason, details string) *Error {
	return &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Message: "invalid input: " + reason,
		Details: details,
	}
}

// ErrBadRequest returns an error for a missing or malformed procedure name.
func ErrBadRequest(reason string) *Error {
	return NewError(KindBadRequest, http.StatusBadRequest, reason)
}

// ErrNotFound returns a procedure not found error.
func ErrNotFound(procedure string) *Error {
	return NewError(KindNotFound, http.StatusNotFound, fmt.Sprintf("procedure not found: %s", procedure))
}

// ErrMethodNotAllowed returns an error for a request method other than POST.
func ErrMethodNotAllowed(method string) *Error {
	return NewError(KindMethodNotAllowed, http.StatusMethodNotAllowed, fmt.Sprintf("method not allowed: %s", method))
}

// ErrUnsupportedMediaType returns an error for a content type the codec does not accept.
func ErrUnsupportedMediaType(contentType string) *Error {
	return NewError(KindUnsupportedMediaType, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type: %q", contentType))
}

// ErrDecode returns an error for a body the codec could not decode.
func ErrDecode(cause error) *Error {
	return &Error{Kind: KindDecode, Status: http.StatusBadRequest, Message: "malformed request body", Cause: cause}
}

// ErrBodyTooLarge returns an error for a body exceeding the configured limit.
func ErrBodyTooLarge(limit int64) *Error {
	return NewError(KindBodyTooLarge, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
}

// ErrHandler wraps a failure raised by middleware or a handler. Its message
// is the text of cause.
func ErrHandler(cause error) *Error {
	return &Error{Kind: KindHandler, Status: http.StatusInternalServerError, Cause: cause}
}

// KindOf returns the kind of err, or KindHandler if err is not an *Error.
func KindOf(err error) Kind {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return KindHandler
}

// asError converts any error into an *Error, treating unknown errors as
// handler failures.
func asError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return ErrHandler(err)
}
