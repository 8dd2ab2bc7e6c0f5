package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marrasen/tinyrpc"
)

// GreetInput is the input of the greet procedure.
type GreetInput struct {
	Name string `json:"name" validate:"required"`
}

// AddInput is the input of the add procedure.
type AddInput struct {
	A int `json:"a"`
	B int `json:"b"`
}

// userHeader carries the caller identity. Policy is left to middleware.
const userHeader = "X-Tinyrpc-User"

func procedures() map[string]*tinyrpc.Procedure {
	return map[string]*tinyrpc.Procedure{
		"greet":  tinyrpc.WithValidation(tinyrpc.Struct[GreetInput]()).Use(greet),
		"add":    tinyrpc.WithValidation(tinyrpc.Struct[AddInput]()).Use(add),
		"echo":   tinyrpc.Use(echo),
		"upper":  tinyrpc.WithValidation(tinyrpc.Check(nonEmptyString)).Use(upper),
		"whoami": tinyrpc.NewBuilder().AddMiddleware(requireUser).Use(whoami),
	}
}

func greet(_ context.Context, call *tinyrpc.Call) (any, error) {
	in := call.Input.(GreetInput)
	return fmt.Sprintf("Hello, %s!", in.Name), nil
}

func add(_ context.Context, call *tinyrpc.Call) (any, error) {
	in := call.Input.(AddInput)
	return in.A + in.B, nil
}

func echo(_ context.Context, call *tinyrpc.Call) (any, error) {
	return call.Input, nil
}

func upper(_ context.Context, call *tinyrpc.Call) (any, error) {
	return strings.ToUpper(call.Input.(string)), nil
}

func whoami(_ context.Context, call *tinyrpc.Call) (any, error) {
	user, _ := call.Context.GetString("user")
	return map[string]any{
		"user":        user,
		"environment": call.Context["environment"],
	}, nil
}

// nonEmptyString accepts a non-blank string and trims it.
func nonEmptyString(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string, got %T", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("string must not be blank")
	}
	return s, nil
}

// requireUser short-circuits calls that carry no caller identity.
func requireUser(next tinyrpc.Handler) tinyrpc.Handler {
	return func(ctx context.Context, call *tinyrpc.Call) (any, error) {
		if _, ok := call.Context.GetString("user"); !ok {
			return nil, errors.New("missing " + userHeader + " header")
		}
		return next(ctx, call)
	}
}

// callerContext derives the per-call context from request headers.
func callerContext(h tinyrpc.Handles) (tinyrpc.ContextMap, error) {
	if h.Request == nil {
		return nil, nil
	}
	user := strings.TrimSpace(h.Request.Header.Get(userHeader))
	if user == "" {
		return nil, nil
	}
	return tinyrpc.ContextMap{"user": user}, nil
}
