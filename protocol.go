package tinyrpc

import "net/http"

// Content types used on the wire.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
	ContentTypeText = "text/plain; charset=utf-8"
)

// CallEnvelope is the decoded form of an inbound call.
type CallEnvelope struct {
	Procedure string
	Input     any
}

// ResultEnvelope is the outcome of a call. On success Result holds the
// handler's value; on failure Error (and optionally Details) is set.
//
// After DecodeResult, Result is either a string (plain-text or binary result
// field) or a jsontext.Value (structured result).
type ResultEnvelope struct {
	Result  any
	Error   string
	Details string
}

// failed reports whether the envelope carries an error.
func (r *ResultEnvelope) failed() bool {
	return r.Error != ""
}

// errorEnvelope builds the envelope of a failed call. The error text is never
// empty, since an empty text reads as success on the wire.
func errorEnvelope(err *Error) *ResultEnvelope {
	msg := err.Error()
	if msg == "" {
		msg = http.StatusText(err.Status)
	}
	if msg == "" {
		msg = "internal error"
	}
	return &ResultEnvelope{Error: msg, Details: err.Details}
}
