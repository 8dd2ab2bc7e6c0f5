package tinyrpc

import (
	"context"
	"errors"
	"sync/atomic"
)

// errNextReused is returned when a middleware invokes its continuation more
// than once for the same call.
var errNextReused = errors.New("tinyrpc: middleware called next more than once")

// Engine executes procedures: it validates input, merges context and drives
// the middleware chain to the handler.
type Engine struct {
	global     ContextMap
	derive     DeriveFunc
	middleware []Middleware
}

// NewEngine creates an engine with a global context, an optional per-call
// derivation function and global middleware. Global middleware runs before
// procedure middleware. The global context is copied.
func NewEngine(global ContextMap, derive DeriveFunc, mw ...Middleware) *Engine {
	g := make(ContextMap, len(global))
	for k, v := range global {
		g[k] = v
	}
	return &Engine{
		global:     g,
		derive:     derive,
		middleware: append([]Middleware(nil), mw...),
	}
}

// Execute runs p for a single call. A validation failure returns an *Error of
// KindValidation without invoking any middleware or the handler; IsInputError
// reports true for it. All other errors are returned unmodified.
func (e *Engine) Execute(ctx context.Context, name string, p *Procedure, raw any, h Handles) (any, error) {
	input := raw
	if p.validator != nil {
		v, err := p.validator.Validate(raw)
		if err != nil {
			return nil, validationFailure(err)
		}
		input = v
	}

	callCtx, err := MergeContext(e.global, e.derive, h)
	if err != nil {
		return nil, err
	}

	call := &Call{
		Procedure: name,
		Input:     input,
		Context:   callCtx,
		Handles:   h,
	}
	return e.buildHandler(p)(ctx, call)
}

// buildHandler creates the middleware chain for a procedure.
// The chain is: engine middleware -> procedure middleware -> handler.
func (e *Engine) buildHandler(p *Procedure) Handler {
	stages := make([]Middleware, 0, len(e.middleware)+len(p.middleware))
	stages = append(stages, e.middleware...)
	stages = append(stages, p.middleware...)

	handler := p.handler
	for i := len(stages) - 1; i >= 0; i-- {
		handler = stages[i](once(handler))
	}
	return handler
}

// once guards a continuation so each stage runs at most once per call.
func once(next Handler) Handler {
	var called atomic.Bool
	return func(ctx context.Context, call *Call) (any, error) {
		if !called.CompareAndSwap(false, true) {
			return nil, errNextReused
		}
		return next(ctx, call)
	}
}

// inputError marks a failure of the validation step. Errors of any kind
// returned by a validator are reported as validation errors.
type inputError struct {
	err *Error
}

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func validationFailure(err error) error {
	var rpcErr *Error
	switch {
	case errors.As(err, &rpcErr) && rpcErr.Kind == KindValidation:
	case rpcErr != nil:
		rpcErr = ErrValidation(rpcErr.Error(), rpcErr.Details)
	default:
		rpcErr = ErrValidation(err.Error(), "")
	}
	return &inputError{err: rpcErr}
}

// IsInputError reports whether err was produced by the validation step of
// Engine.Execute, as opposed to middleware or the handler.
func IsInputError(err error) bool {
	var ie *inputError
	return errors.As(err, &ie)
}
