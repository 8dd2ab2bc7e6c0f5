package tinyrpc

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-json-experiment/json"
)

// CBOR is the fixed-binary-schema codec. Calls are {procedure, input} and
// results are {result, error}, all CBOR text strings. The input and
// non-string results are carried as JSON text inside those strings.
var CBOR Codec = newCBORCodec()

// cborCall is the binary call envelope.
type cborCall struct {
	Procedure string `cbor:"procedure"`
	Input     string `cbor:"input"`
}

// cborResult is the binary result envelope. Both fields are always present.
type cborResult struct {
	Result string `cbor:"result"`
	Error  string `cbor:"error"`
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() *cborCodec {
	// Core Deterministic Encoding: same envelope, same bytes.
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tinyrpc: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("tinyrpc: CBOR decoder initialization failed: " + err.Error())
	}
	return &cborCodec{enc: enc, dec: dec}
}

func (*cborCodec) Name() string        { return "cbor" }
func (*cborCodec) ContentType() string { return ContentTypeCBOR }
func (*cborCodec) InBandErrors() bool  { return true }

func (*cborCodec) Accepts(contentType string) bool {
	return mediaType(contentType) == ContentTypeCBOR
}

func (c *cborCodec) DecodeCall(body []byte) (*CallEnvelope, error) {
	var msg cborCall
	if err := c.dec.Unmarshal(body, &msg); err != nil {
		return nil, ErrDecode(err)
	}
	env := &CallEnvelope{Procedure: msg.Procedure}
	if msg.Input != "" {
		if err := json.Unmarshal([]byte(msg.Input), &env.Input); err != nil {
			return nil, ErrDecode(fmt.Errorf("input: %w", err))
		}
	}
	return env, nil
}

func (c *cborCodec) EncodeCall(env *CallEnvelope) ([]byte, error) {
	msg := cborCall{Procedure: env.Procedure}
	if env.Input != nil {
		input, err := json.Marshal(env.Input, json.Deterministic(true))
		if err != nil {
			return nil, fmt.Errorf("encoding input: %w", err)
		}
		msg.Input = string(input)
	}
	return c.enc.Marshal(msg)
}

func (c *cborCodec) EncodeResult(env *ResultEnvelope) ([]byte, string, error) {
	var msg cborResult
	if env.failed() {
		msg.Error = env.Error
		if env.Details != "" {
			msg.Error += " (expected " + env.Details + ")"
		}
	} else {
		result, err := resultText(env.Result)
		if err != nil {
			return nil, "", err
		}
		msg.Result = result
	}
	data, err := c.enc.Marshal(msg)
	if err != nil {
		return nil, "", err
	}
	return data, ContentTypeCBOR, nil
}

func (c *cborCodec) DecodeResult(body []byte, _ string) (*ResultEnvelope, error) {
	var msg cborResult
	if err := c.dec.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if msg.Error != "" {
		return &ResultEnvelope{Error: msg.Error}, nil
	}
	return &ResultEnvelope{Result: msg.Result}, nil
}

// resultText converts a handler result to the string carried in the binary
// envelope. Strings pass through; everything else is JSON-encoded.
func resultText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v, json.Deterministic(true))
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(data), nil
}
