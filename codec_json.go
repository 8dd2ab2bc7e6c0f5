package tinyrpc

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// JSON is the structured-text codec. Inputs and results travel as JSON
// values; string results are written as raw plain text.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

// jsonCall is the JSON body of a call.
type jsonCall struct {
	Procedure jsontext.Value `json:"procedure"`
	Input     jsontext.Value `json:"input,omitempty"`
}

// jsonResult is the JSON body of a structured result.
type jsonResult struct {
	Result any `json:"result"`
}

// jsonError is the JSON body of a failed call.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// jsonResultIn is used when decoding either a result or an error body.
type jsonResultIn struct {
	Result  jsontext.Value `json:"result"`
	Error   string         `json:"error"`
	Details string         `json:"details"`
}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return ContentTypeJSON }
func (jsonCodec) InBandErrors() bool  { return false }

func (jsonCodec) Accepts(contentType string) bool {
	return mediaType(contentType) == ContentTypeJSON
}

func (jsonCodec) DecodeCall(body []byte) (*CallEnvelope, error) {
	var msg jsonCall
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, ErrDecode(err)
	}

	env := &CallEnvelope{}
	switch msg.Procedure.Kind() {
	case 0, 'n':
		// Missing; rejected by the name check.
	case '"':
		if err := json.Unmarshal(msg.Procedure, &env.Procedure); err != nil {
			return nil, ErrDecode(err)
		}
	default:
		return nil, ErrBadRequest("procedure must be a string")
	}

	if len(msg.Input) > 0 {
		if err := json.Unmarshal(msg.Input, &env.Input); err != nil {
			return nil, ErrDecode(err)
		}
	}
	return env, nil
}

func (jsonCodec) EncodeCall(env *CallEnvelope) ([]byte, error) {
	return json.Marshal(struct {
		Procedure string `json:"procedure"`
		Input     any    `json:"input"`
	}{env.Procedure, env.Input})
}

func (jsonCodec) EncodeResult(env *ResultEnvelope) ([]byte, string, error) {
	if env.failed() {
		data, err := json.Marshal(jsonError{Error: env.Error, Details: env.Details})
		return data, ContentTypeJSON, err
	}
	if s, ok := env.Result.(string); ok {
		return []byte(s), ContentTypeText, nil
	}
	data, err := json.Marshal(jsonResult{Result: env.Result})
	if err != nil {
		return nil, "", fmt.Errorf("encoding result: %w", err)
	}
	return data, ContentTypeJSON, nil
}

func (jsonCodec) DecodeResult(body []byte, contentType string) (*ResultEnvelope, error) {
	if mediaType(contentType) == "text/plain" {
		return &ResultEnvelope{Result: string(body)}, nil
	}
	var msg jsonResultIn
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if msg.Error != "" {
		return &ResultEnvelope{Error: msg.Error, Details: msg.Details}, nil
	}
	return &ResultEnvelope{Result: msg.Result}, nil
}
