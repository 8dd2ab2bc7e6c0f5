package tinyrpc

// Procedure is an immutable unit of optional input validation, ordered
// middleware and a terminal handler.
type Procedure struct {
	validator  Validator
	middleware []Middleware
	handler    Handler
}

// Validator returns the procedure's validator, or nil when input is passed
// through unchecked.
func (p *Procedure) Validator() Validator {
	return p.validator
}

// Builder assembles a Procedure. A Builder may be reused; procedures already
// built are not affected by later calls.
type Builder struct {
	validator  Validator
	middleware []Middleware
}

// NewBuilder returns an empty procedure builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithValidation starts a builder whose procedures validate input with v.
func WithValidation(v Validator) *Builder {
	return NewBuilder().WithValidation(v)
}

// Use builds a procedure without a validator. Raw input is passed to the
// handler unchanged.
func Use(h Handler) *Procedure {
	return NewBuilder().Use(h)
}

// WithValidation sets the validator.
func (b *Builder) WithValidation(v Validator) *Builder {
	b.validator = v
	return b
}

// AddMiddleware appends procedure-specific middleware. Middleware runs in the
// order it is added, after any server-wide middleware.
func (b *Builder) AddMiddleware(mw ...Middleware) *Builder {
	b.middleware = append(b.middleware, mw...)
	return b
}

// Use finalizes the procedure with h as the terminal handler.
func (b *Builder) Use(h Handler) *Procedure {
	if h == nil {
		panic("tinyrpc: nil handler")
	}
	mw := make([]Middleware, len(b.middleware))
	copy(mw, b.middleware)
	return &Procedure{
		validator:  b.validator,
		middleware: mw,
		handler:    h,
	}
}
