package tinyrpc_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/marrasen/tinyrpc"
)

// Request types
type CreateUserRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type CreateUserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// requireAdmin rejects callers without the admin flag.
func requireAdmin(next tinyrpc.Handler) tinyrpc.Handler {
	return func(ctx context.Context, call *tinyrpc.Call) (any, error) {
		if !call.Context.GetBool("admin") {
			return nil, errors.New("admin only")
		}
		return next(ctx, call)
	}
}

func Example() {
	router := tinyrpc.MustRouter(map[string]*tinyrpc.Procedure{
		"users.create": tinyrpc.WithValidation(tinyrpc.Struct[CreateUserRequest]()).
			AddMiddleware(requireAdmin).
			Use(func(ctx context.Context, call *tinyrpc.Call) (any, error) {
				req := call.Input.(CreateUserRequest)
				return CreateUserResponse{ID: "u1", Name: req.Name}, nil
			}),
	})

	server := tinyrpc.NewServer(router, tinyrpc.ServerOptions{
		DeriveContext: func(h tinyrpc.Handles) (tinyrpc.ContextMap, error) {
			return tinyrpc.ContextMap{"admin": h.Request.Header.Get("X-Admin") == "yes"}, nil
		},
	})
	ts := httptest.NewServer(server)
	defer ts.Close()

	client, err := tinyrpc.NewClient(tinyrpc.ClientOptions{
		Endpoint: ts.URL,
		Headers:  map[string]string{"X-Admin": "yes"},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	var user CreateUserResponse
	err = client.Call(context.Background(), "users.create", CreateUserRequest{Name: "Ada", Email: "ada@example.com"}, &user)
	fmt.Println(user.ID, user.Name, err)

	err = client.Call(context.Background(), "users.create", CreateUserRequest{Name: "Ada"}, &user)
	var remote *tinyrpc.RemoteError
	if errors.As(err, &remote) {
		fmt.Println(remote.Status)
	}

	// Output:
	// u1 Ada <nil>
	// 400
}

func ExampleServer_WebSocket() {
	router := tinyrpc.MustRouter(map[string]*tinyrpc.Procedure{
		"ping": tinyrpc.Use(func(ctx context.Context, call *tinyrpc.Call) (any, error) {
			return "pong", nil
		}),
	})
	server := tinyrpc.NewServer(router)

	mux := http.NewServeMux()
	mux.Handle("/rpc", server)
	mux.Handle("/ws", server.WebSocket())
	_ = mux
}
