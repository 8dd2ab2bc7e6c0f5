package tinyrpc

import (
	"context"
	"reflect"
	"testing"
)

func noop(ctx context.Context, call *Call) (any, error) { return nil, nil }

func TestRouterLookup(t *testing.T) {
	router, err := NewRouter(map[string]*Procedure{
		"greet":      Use(noop),
		"users.list": Use(noop),
		"users.get":  Use(noop),
	})
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	if _, ok := router.Lookup("greet"); !ok {
		t.Error("expected greet to be registered")
	}
	if _, ok := router.Lookup("Greet"); ok {
		t.Error("lookup must be case-sensitive")
	}
	if _, ok := router.Lookup("users"); ok {
		t.Error("lookup must match whole names only")
	}

	want := []string{"greet", "users.get", "users.list"}
	if got := router.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected names %v, got %v", want, got)
	}
}

func TestRouterRejectsInvalidEntries(t *testing.T) {
	if _, err := NewRouter(map[string]*Procedure{"": Use(noop)}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := NewRouter(map[string]*Procedure{"nil": nil}); err == nil {
		t.Error("expected error for nil procedure")
	}

	defer func() {
		if recover() == nil {
			t.Error("MustRouter should panic on invalid entries")
		}
	}()
	MustRouter(map[string]*Procedure{"": Use(noop)})
}

func TestRouterCopiesRegistrations(t *testing.T) {
	procs := map[string]*Procedure{"a": Use(noop)}
	router := MustRouter(procs)
	procs["b"] = Use(noop)

	if _, ok := router.Lookup("b"); ok {
		t.Error("router must not observe later changes to the source map")
	}
}

func TestMergeContext(t *testing.T) {
	global := ContextMap{"env": "prod", "admin": false}

	merged, err := MergeContext(global, nil, Handles{})
	if err != nil {
		t.Fatalf("MergeContext failed: %v", err)
	}
	merged["extra"] = 1
	if _, ok := global["extra"]; ok {
		t.Error("merged map must be a copy")
	}

	merged, err = MergeContext(global, func(Handles) (ContextMap, error) {
		return ContextMap{"admin": true, "user": "ada"}, nil
	}, Handles{})
	if err != nil {
		t.Fatalf("MergeContext failed: %v", err)
	}
	if !merged.GetBool("admin") {
		t.Error("per-call value should win over global value")
	}
	if user, ok := merged.GetString("user"); !ok || user != "ada" {
		t.Errorf("expected user ada, got %q", user)
	}
	if env, _ := merged.GetString("env"); env != "prod" {
		t.Errorf("expected env prod, got %q", env)
	}
	if _, ok := merged.GetString("admin"); ok {
		t.Error("String must report false for non-string values")
	}
}
