// Command tinyrpcd serves the demo procedures over a single RPC endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/marrasen/tinyrpc"
	"github.com/marrasen/tinyrpc/config"
	"github.com/marrasen/tinyrpc/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, addr, codecName, logLevel string
	var list bool

	flagSet := pflag.NewFlagSet("tinyrpcd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a .toml, .yaml or .jsonc config file")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flagSet.StringVar(&codecName, "codec", "", "wire codec: json or cbor (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	flagSet.BoolVar(&list, "list", false, "print the registered procedures and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if list {
		router, err := tinyrpc.NewRouter(procedures())
		if err != nil {
			return err
		}
		return listProcedures(os.Stdout, router)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if codecName != "" {
		cfg.Codec = codecName
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New("tinyrpcd", cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := newHandler(cfg, logger)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, handler, logger)
}

// newHandler builds the RPC server for cfg and mounts it.
func newHandler(cfg config.Config, logger zerolog.Logger) (http.Handler, error) {
	codec, err := tinyrpc.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	router, err := tinyrpc.NewRouter(procedures())
	if err != nil {
		return nil, err
	}

	server := tinyrpc.NewServer(router, tinyrpc.ServerOptions{
		Codec:         codec,
		Context:       cfg.Context,
		DeriveContext: callerContext,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		Logger:        &logger,
	})
	server.Use(tinyrpc.LoggingMiddleware(logger))
	if len(cfg.AllowedOrigins) > 0 {
		server.SetCheckOrigin(originChecker(cfg.AllowedOrigins))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, server)
	if cfg.WebSocketPath != "" {
		mux.Handle(cfg.WebSocketPath, server.WebSocket())
	}
	logger.Info().
		Strs("procedures", server.Router().Names()).
		Str("path", cfg.Path).
		Str("codec", server.Codec().Name()).
		Msg("procedures registered")
	return mux, nil
}

// originChecker accepts same-origin upgrades and those from the listed
// origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

// listProcedures writes one line per procedure with its expected input.
func listProcedures(w io.Writer, router *tinyrpc.Router) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range router.Names() {
		p, _ := router.Lookup(name)
		input := "any"
		switch v := p.Validator().(type) {
		case nil:
		case tinyrpc.Shaper:
			input = v.Shape()
		default:
			input = "checked"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, input)
	}
	return tw.Flush()
}

// serve blocks until ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, cfg config.Config, handler http.Handler, logger zerolog.Logger) error {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("address", listener.Addr().String()).Str("codec", cfg.Codec).Msg("http server listening")

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tinyrpcd: serve RPC procedures over HTTP.

Usage:
  tinyrpcd [flags]

Flags:
%s`, flagSet.FlagUsages())
}
