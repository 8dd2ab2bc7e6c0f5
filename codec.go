package tinyrpc

import (
	"fmt"
	"mime"
	"strings"
)

// Codec encodes and decodes the call and result envelopes for one wire
// format. A deployment selects exactly one codec; it is never switched per call.
type Codec interface {
	// Name identifies the codec in configuration ("json", "cbor").
	Name() string
	// ContentType is sent with encoded calls and results.
	ContentType() string
	// Accepts reports whether a declared request content type belongs to
	// this codec.
	Accepts(contentType string) bool

	DecodeCall(body []byte) (*CallEnvelope, error)
	EncodeCall(env *CallEnvelope) ([]byte, error)
	EncodeResult(env *ResultEnvelope) (body []byte, contentType string, err error)
	DecodeResult(body []byte, contentType string) (*ResultEnvelope, error)

	// InBandErrors reports whether failures after procedure lookup are
	// carried only inside the result envelope with status 200.
	InBandErrors() bool
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// mediaType returns the lower-cased media type of a Content-Type header
// value without parameters, or "" if it cannot be parsed.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
