package tinyrpc

import (
	"fmt"
	"sort"
)

// Router maps procedure names to procedures. It is built once and is safe
// for concurrent use.
type Router struct {
	procedures map[string]*Procedure
}

// NewRouter registers the given procedures. Names must be non-empty and are
// matched exactly, case-sensitively.
func NewRouter(procedures map[string]*Procedure) (*Router, error) {
	r := &Router{procedures: make(map[string]*Procedure, len(procedures))}
	for name, p := range procedures {
		if name == "" {
			return nil, fmt.Errorf("procedure name must not be empty")
		}
		if p == nil {
			return nil, fmt.Errorf("procedure %q is nil", name)
		}
		r.procedures[name] = p
	}
	return r, nil
}

// MustRouter is like NewRouter but panics on error.
func MustRouter(procedures map[string]*Procedure) *Router {
	r, err := NewRouter(procedures)
	if err != nil {
		panic("tinyrpc: " + err.Error())
	}
	return r
}

// Lookup returns the procedure registered under name.
func (r *Router) Lookup(name string) (*Procedure, bool) {
	p, ok := r.procedures[name]
	return p, ok
}

// Names returns all registered procedure names in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
