// Command tinyrpc calls a procedure on a tinyrpc endpoint and prints the
// result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/marrasen/tinyrpc"
	"github.com/marrasen/tinyrpc/config"
	"github.com/marrasen/tinyrpc/internal/logging"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		endpoint  string
		codecName string
		timeout   time.Duration
		headers   map[string]string
		compress  bool
		verbose   bool
	)

	flagSet := pflag.NewFlagSet("tinyrpc", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&endpoint, "endpoint", "http://localhost:8080/rpc", "RPC endpoint URL")
	flagSet.StringVar(&codecName, "codec", "json", "wire codec: json or cbor")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "call timeout (0 disables)")
	flagSet.StringToStringVarP(&headers, "header", "H", nil, "extra request header as name=value (repeatable)")
	flagSet.BoolVar(&compress, "gzip", false, "gzip the request body")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log call lifecycle to stderr")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) < 1 || len(rest) > 2 {
		return fmt.Errorf("usage: tinyrpc [flags] <procedure> [input-json]")
	}
	procedure := rest[0]

	var input any
	if len(rest) == 2 {
		if err := json.Unmarshal([]byte(rest[1]), &input); err != nil {
			return fmt.Errorf("input is not valid JSON: %w", err)
		}
	}

	codec, err := tinyrpc.CodecByName(codecName)
	if err != nil {
		return err
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.NewWriter(stderr, "tinyrpc", config.LogConfig{Level: level, Console: true})

	client, err := tinyrpc.NewClient(tinyrpc.ClientOptions{
		Endpoint: endpoint,
		Codec:    codec,
		Headers:  headers,
		Timeout:  timeout,
		Compress: compress,
		Hooks:    logHooks(logger),
	})
	if err != nil {
		return err
	}

	var result any
	if err := client.Call(ctx, procedure, input, &result); err != nil {
		return err
	}
	return printResult(stdout, result)
}

// logHooks reports the call lifecycle through logger.
func logHooks(logger zerolog.Logger) tinyrpc.Hooks {
	var start time.Time
	return tinyrpc.Hooks{
		BeforeCall: func(_ context.Context, procedure string, _ any) {
			start = time.Now()
			logger.Debug().Str("procedure", procedure).Msg("calling")
		},
		OnSuccess: func(_ context.Context, procedure string, _ any) {
			logger.Debug().Str("procedure", procedure).Dur("duration", time.Since(start)).Msg("call succeeded")
		},
		OnError: func(_ context.Context, procedure string, err error) {
			logger.Debug().Str("procedure", procedure).Dur("duration", time.Since(start)).Err(err).Msg("call failed")
		},
	}
}

func printResult(w io.Writer, result any) error {
	if s, ok := result.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	data, err := json.Marshal(result, json.Deterministic(true), jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
