package tinyrpc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-playground/validator/v10"
)

// Validator checks raw call input before any middleware or handler runs.
// The returned value replaces the raw input for the rest of the call.
type Validator interface {
	Validate(raw any) (any, error)
}

// Shaper is implemented by validators that can describe the input they
// expect.
type Shaper interface {
	Shape() string
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(raw any) (any, error)

// Validate calls f(raw).
func (f ValidatorFunc) Validate(raw any) (any, error) {
	return f(raw)
}

// Check returns a predicate/normalizer validator. Any error returned by fn
// that is not already an *Error is reported as a validation error.
func Check(fn func(raw any) (any, error)) Validator {
	return ValidatorFunc(func(raw any) (any, error) {
		v, err := fn(raw)
		if err != nil {
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				return nil, rpcErr
			}
			return nil, ErrValidation(err.Error(), "")
		}
		return v, nil
	})
}

var structValidate = newStructValidate()

func newStructValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

// structValidator decodes raw input into T and checks its validate tags.
type structValidator[T any] struct {
	shape string
}

// Struct returns a declarative validator for the struct type T. Field names
// and types come from T's json tags and Go types; constraints come from its
// validate tags, e.g.
//
//	type GreetInput struct {
//		Name string `json:"name" validate:"required"`
//	}
//
// The validated input handed to the handler is a T value. Struct panics if T
// is not a struct type.
func Struct[T any]() Validator {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("tinyrpc: Struct requires a struct type, got %s", t))
	}
	return &structValidator[T]{shape: describeShape(t)}
}

func (v *structValidator[T]) Validate(raw any) (any, error) {
	if typed, ok := raw.(T); ok {
		return v.check(typed)
	}

	var out T
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, ErrValidation(err.Error(), v.shape)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, ErrValidation(decodeReason(err), v.shape)
	}
	return v.check(out)
}

func (v *structValidator[T]) check(in T) (any, error) {
	if err := structValidate.Struct(in); err != nil {
		return nil, ErrValidation(fieldErrors(err), v.shape)
	}
	return in, nil
}

// Shape returns the serialized description of the expected input.
func (v *structValidator[T]) Shape() string {
	return v.shape
}

func decodeReason(err error) string {
	var semErr *json.SemanticError
	if errors.As(err, &semErr) && semErr.JSONPointer != "" {
		return fmt.Sprintf("field %s: %v", strings.TrimPrefix(string(semErr.JSONPointer), "/"), semErr.Err)
	}
	return err.Error()
}

func fieldErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// describeShape serializes the fields of t as {"name":"type"}; optional
// fields carry a trailing "?".
func describeShape(t reflect.Type) string {
	shape := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonFieldName(f)
		if name == "" {
			continue
		}
		kind := primitiveName(f.Type)
		if !isRequired(f) {
			kind += "?"
		}
		shape[name] = kind
	}
	data, err := json.Marshal(shape, json.Deterministic(true))
	if err != nil {
		return ""
	}
	return string(data)
}

func isRequired(f reflect.StructField) bool {
	for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
		if rule == "required" {
			return true
		}
	}
	return false
}

func primitiveName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return "any"
	}
}
