package tinyrpc

import (
	"context"
	"net/http"
)

// Handles are the transport handles of the call being served. Writer is nil
// when the call did not arrive over plain HTTP.
type Handles struct {
	Request *http.Request
	Writer  http.ResponseWriter
}

// Call contains everything a middleware or handler may read about a call.
// It is built fresh for every invocation.
type Call struct {
	Procedure string     // Procedure name being called
	Input     any        // Validated input (raw input when no validator is set)
	Context   ContextMap // Merged global and per-call context
	Handles   Handles
}

// Handler represents the next step in the middleware chain.
type Handler func(ctx context.Context, call *Call) (any, error)

// Middleware wraps a Handler to add cross-cutting behavior. A middleware
// that returns without calling next short-circuits the rest of the chain.
type Middleware func(next Handler) Handler
