package tinyrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/klauspost/compress/gzip"
)

// ErrTimeout is returned (wrapped) when a call exceeds the client timeout.
var ErrTimeout = errors.New("tinyrpc: call timed out")

// RemoteError is a failure reported by the server, either through a
// non-200 status or inside the result envelope.
type RemoteError struct {
	Status  int
	Message string
	Details string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("rpc error (status %d): %s", e.Status, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Endpoint is the URL of the RPC endpoint. Required.
	Endpoint string
	// Codec must match the server's codec. Default: JSON
	Codec Codec
	// Headers are added to every request.
	Headers map[string]string
	// Timeout bounds each call, including reading the response. Zero means
	// no timeout beyond the caller's context.
	Timeout time.Duration
	// Compress sends gzip-encoded request bodies.
	Compress bool
	// HTTPClient performs the requests. Default: http.DefaultClient
	HTTPClient *http.Client
	// Hooks observe each call.
	Hooks Hooks
}

// Client calls procedures on a remote server.
type Client struct {
	endpoint string
	codec    Codec
	headers  http.Header
	timeout  time.Duration
	compress bool
	http     *http.Client
	hooks    Hooks
}

// NewClient creates a client for the given endpoint.
func NewClient(opts ClientOptions) (*Client, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", opts.Endpoint)
	}

	c := &Client{
		endpoint: u.String(),
		codec:    opts.Codec,
		headers:  make(http.Header, len(opts.Headers)),
		timeout:  opts.Timeout,
		compress: opts.Compress,
		http:     opts.HTTPClient,
		hooks:    opts.Hooks,
	}
	if c.codec == nil {
		c.codec = JSON
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	for k, v := range opts.Headers {
		c.headers.Set(k, v)
	}
	return c, nil
}

// Call invokes procedure with input and decodes the result into out, which
// must be a pointer or nil. String results are assigned directly to a
// *string; other results are decoded as JSON.
func (c *Client) Call(ctx context.Context, procedure string, input, out any) error {
	c.hooks.before(ctx, procedure, input)

	result, err := c.call(ctx, procedure, input, out)
	if err != nil {
		c.hooks.failure(ctx, procedure, err)
		return err
	}
	c.hooks.success(ctx, procedure, result)
	return nil
}

func (c *Client) call(ctx context.Context, procedure string, input, out any) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, c.timeout, ErrTimeout)
		defer cancel()
	}

	env, err := c.roundTrip(ctx, &CallEnvelope{Procedure: procedure, Input: input})
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return nil, fmt.Errorf("%w: %s after %s", ErrTimeout, procedure, c.timeout)
		}
		return nil, err
	}

	if out == nil {
		return env.Result, nil
	}
	if err := decodeResultInto(env.Result, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, call *CallEnvelope) (*ResultEnvelope, error) {
	body, err := c.codec.EncodeCall(call)
	if err != nil {
		return nil, fmt.Errorf("encoding call: %w", err)
	}
	if c.compress {
		if body, err = gzipBytes(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", c.codec.ContentType())
	if c.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode != http.StatusOK {
		rerr := &RemoteError{Status: resp.StatusCode}
		if mediaType(contentType) != "text/plain" {
			if env, derr := c.codec.DecodeResult(data, contentType); derr == nil && env.failed() {
				rerr.Message, rerr.Details = env.Error, env.Details
			}
		}
		if rerr.Message == "" {
			rerr.Message = strings.TrimSpace(string(data))
		}
		if rerr.Message == "" {
			rerr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, rerr
	}

	env, err := c.codec.DecodeResult(data, contentType)
	if err != nil {
		return nil, err
	}
	if env.failed() {
		return nil, &RemoteError{Status: resp.StatusCode, Message: env.Error, Details: env.Details}
	}
	return env, nil
}

// decodeResultInto stores a decoded result in out.
func decodeResultInto(result, out any) error {
	switch r := result.(type) {
	case string:
		switch dst := out.(type) {
		case *string:
			*dst = r
			return nil
		case *any:
			var v any
			if err := json.Unmarshal([]byte(r), &v); err != nil {
				v = r
			}
			*dst = v
			return nil
		}
		if err := json.Unmarshal([]byte(r), out); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	case jsontext.Value:
		if err := json.Unmarshal(r, out); err != nil {
			return fmt.Errorf("decoding result: %w", err)
		}
	default:
		return fmt.Errorf("decoding result: unexpected %T", result)
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
