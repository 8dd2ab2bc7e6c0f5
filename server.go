package tinyrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// DefaultMaxBodyBytes is the request body limit used when ServerOptions
// leaves MaxBodyBytes at zero.
const DefaultMaxBodyBytes int64 = 1 << 20

// ServerOptions configures the server behavior.
type ServerOptions struct {
	// Codec is the wire format of the deployment. Default: JSON
	Codec Codec
	// Context is the global context merged into every call. It is copied.
	Context ContextMap
	// DeriveContext computes per-call context values. Optional.
	DeriveContext DeriveFunc
	// MaxBodyBytes limits the (decompressed) request body. Negative means
	// unlimited. Default: DefaultMaxBodyBytes
	MaxBodyBytes int64
	// Logger receives call failures and rejected requests. Default: no-op
	Logger *zerolog.Logger
}

func defaultServerOptions() ServerOptions {
	nop := zerolog.Nop()
	return ServerOptions{
		Codec:        JSON,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Logger:       &nop,
	}
}

// Server is the HTTP transport adapter: it turns a POST body into a
// dispatched call and writes the encoded outcome.
type Server struct {
	router     *Router
	codec      Codec
	engine     *Engine
	middleware []Middleware
	options    ServerOptions
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a server dispatching to router.
// An optional ServerOptions can be passed to configure server behavior.
func NewServer(router *Router, opts ...ServerOptions) *Server {
	options := defaultServerOptions()
	if len(opts) > 0 {
		// Merge provided options with defaults
		opt := opts[0]
		if opt.Codec != nil {
			options.Codec = opt.Codec
		}
		if opt.Context != nil {
			options.Context = opt.Context
		}
		if opt.DeriveContext != nil {
			options.DeriveContext = opt.DeriveContext
		}
		if opt.MaxBodyBytes != 0 {
			options.MaxBodyBytes = opt.MaxBodyBytes
		}
		if opt.Logger != nil {
			options.Logger = opt.Logger
		}
	}

	s := &Server{
		router:  router,
		codec:   options.Codec,
		options: options,
		logger:  options.Logger.With().Str("codec", options.Codec.Name()).Logger(),
		// A nil CheckOrigin rejects cross-origin upgrades.
		upgrader: websocket.Upgrader{},
	}
	s.engine = NewEngine(options.Context, options.DeriveContext)
	return s
}

// Use adds server-wide middleware, executed in the order it is added and
// before any procedure middleware. Use must be called before the server
// starts handling requests.
func (s *Server) Use(mw ...Middleware) {
	s.middleware = append(s.middleware, mw...)
	s.engine = NewEngine(s.options.Context, s.options.DeriveContext, s.middleware...)
}

// Router returns the server's procedure router.
func (s *Server) Router() *Router {
	return s.router
}

// Codec returns the server's wire codec.
func (s *Server) Codec() Codec {
	return s.codec
}

// SetCheckOrigin sets the origin check function for the WebSocket upgrader.
// By default only same-origin upgrades (or requests without an Origin
// header) are accepted.
func (s *Server) SetCheckOrigin(f func(r *http.Request) bool) {
	s.upgrader.CheckOrigin = f
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = s.Dispatch(w, r)
}

// Dispatch handles one call and writes the response. Checks run in a fixed
// order and stop at the first failure: method, content type, body, decode,
// procedure name, lookup, execution. After the response is written, an error
// raised by middleware or the handler is returned to the caller; every other
// failure is fully answered by the response and yields nil.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.reject(w, ErrMethodNotAllowed(r.Method))
		return nil
	}

	contentType := r.Header.Get("Content-Type")
	if !s.codec.Accepts(contentType) {
		s.reject(w, ErrUnsupportedMediaType(contentType))
		return nil
	}

	body, err := s.readBody(w, r)
	if err != nil {
		rpcErr := asError(err)
		if rpcErr.Kind == KindDecode {
			s.writeEnvelope(w, rpcErr.Status, errorEnvelope(rpcErr))
		} else {
			s.reject(w, rpcErr)
		}
		return nil
	}

	status, env, handlerErr := s.dispatch(r.Context(), body, Handles{Request: r, Writer: w})
	if err := s.writeEnvelope(w, status, env); err != nil && handlerErr == nil {
		return err
	}
	return handlerErr
}

// readBody accumulates the whole request body, inflating gzip bodies.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body := r.Body
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, ErrDecode(fmt.Errorf("gzip: %w", err))
		}
		defer zr.Close()
		body = zr
	default:
		return nil, ErrUnsupportedMediaType("content-encoding " + enc)
	}

	if s.options.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, body, s.options.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrBodyTooLarge(maxErr.Limit)
		}
		return nil, ErrDecode(err)
	}
	return data, nil
}

// dispatch decodes a call, looks up its procedure and executes it. It
// returns the HTTP status and envelope to send, plus any error raised by
// middleware or the handler.
func (s *Server) dispatch(ctx context.Context, body []byte, h Handles) (int, *ResultEnvelope, error) {
	call, err := s.codec.DecodeCall(body)
	if err != nil {
		rpcErr := asError(err)
		s.logger.Debug().Err(rpcErr).Msg("undecodable call")
		return rpcErr.Status, errorEnvelope(rpcErr), nil
	}
	if call.Procedure == "" {
		rpcErr := ErrBadRequest("missing procedure name")
		return rpcErr.Status, errorEnvelope(rpcErr), nil
	}

	p, ok := s.router.Lookup(call.Procedure)
	if !ok {
		rpcErr := ErrNotFound(call.Procedure)
		s.logger.Debug().Str("procedure", call.Procedure).Msg("unknown procedure")
		return rpcErr.Status, errorEnvelope(rpcErr), nil
	}

	result, err := s.execute(ctx, call, p, h)
	if err == nil {
		return http.StatusOK, &ResultEnvelope{Result: result}, nil
	}

	// Only the validation step picks its own kind; anything raised by
	// middleware or the handler is a handler failure.
	rpcErr := ErrHandler(err)
	isInput := IsInputError(err)
	if isInput {
		rpcErr = asError(err)
	}
	status := rpcErr.Status
	if s.codec.InBandErrors() {
		status = http.StatusOK
	}
	if isInput {
		s.logger.Debug().Str("procedure", call.Procedure).Err(rpcErr).Msg("invalid input")
		return status, errorEnvelope(rpcErr), nil
	}
	s.logger.Error().Str("procedure", call.Procedure).Int("status", rpcErr.Status).Err(err).Msg("procedure failed")
	return status, errorEnvelope(rpcErr), err
}

// execute runs the engine, converting a panic in middleware or the handler
// into an error.
func (s *Server) execute(ctx context.Context, call *CallEnvelope, p *Procedure, h Handles) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in procedure %s: %v", call.Procedure, rec)
		}
	}()
	return s.engine.Execute(ctx, call.Procedure, p, call.Input, h)
}

// encode encodes env, falling back to an error envelope when the result
// cannot be encoded.
func (s *Server) encode(status int, env *ResultEnvelope) (int, []byte, string, error) {
	body, contentType, err := s.codec.EncodeResult(env)
	if err == nil {
		return status, body, contentType, nil
	}
	rpcErr := ErrHandler(err)
	status = rpcErr.Status
	if s.codec.InBandErrors() {
		status = http.StatusOK
	}
	s.logger.Error().Err(err).Msg("result encoding failed")
	body, contentType, _ = s.codec.EncodeResult(errorEnvelope(rpcErr))
	return status, body, contentType, err
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env *ResultEnvelope) error {
	status, body, contentType, err := s.encode(status, env)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
	return err
}

// reject answers a request that failed before its body was decoded. Codecs
// with in-band errors only ever carry envelopes for decodable calls, so they
// get a plain-text response here.
func (s *Server) reject(w http.ResponseWriter, rpcErr *Error) {
	s.logger.Debug().Str("kind", string(rpcErr.Kind)).Int("status", rpcErr.Status).Msg("request rejected")
	if s.codec.InBandErrors() {
		http.Error(w, rpcErr.Error(), rpcErr.Status)
		return
	}
	s.writeEnvelope(w, rpcErr.Status, errorEnvelope(rpcErr))
}
