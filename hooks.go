package tinyrpc

import "context"

// Hooks observe the lifecycle of a client call. They are called for their
// side effects only and cannot change the outcome of the call. Any hook may
// be nil.
type Hooks struct {
	// BeforeCall is called before the call is sent.
	BeforeCall func(ctx context.Context, procedure string, input any)
	// OnSuccess is called after a successful response has been decoded.
	// result is the decoded value, or the raw result when the call had no
	// destination.
	OnSuccess func(ctx context.Context, procedure string, result any)
	// OnError is called once for any failure, including timeouts.
	OnError func(ctx context.Context, procedure string, err error)
}

func (h Hooks) before(ctx context.Context, procedure string, input any) {
	if h.BeforeCall != nil {
		h.BeforeCall(ctx, procedure, input)
	}
}

func (h Hooks) success(ctx context.Context, procedure string, result any) {
	if h.OnSuccess != nil {
		h.OnSuccess(ctx, procedure, result)
	}
}

func (h Hooks) failure(ctx context.Context, procedure string, err error) {
	if h.OnError != nil {
		h.OnError(ctx, procedure, err)
	}
}
