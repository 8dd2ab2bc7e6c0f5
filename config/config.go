// Package config loads tinyrpc server configuration.
//
// A configuration file is optional; when given, its format is chosen by
// extension: .toml, .yaml/.yml, or .json/.jsonc (JSON with comments and
// trailing commas). Keys absent from the file keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-json-experiment/json"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvLogLevel overrides Log.Level when set.
const EnvLogLevel = "TINYRPC_LOG_LEVEL"

// Config is the server configuration.
type Config struct {
	// Addr is the TCP listen address. Default: :8080
	Addr string `toml:"addr" yaml:"addr" json:"addr"`

	// Path is the URL path of the RPC endpoint. Default: /rpc
	Path string `toml:"path" yaml:"path" json:"path"`

	// WebSocketPath serves the WebSocket adapter when non-empty.
	WebSocketPath string `toml:"websocket_path" yaml:"websocket_path" json:"websocket_path"`

	// AllowedOrigins lists the extra origins allowed to open WebSocket
	// connections. "*" allows any origin. Same-origin is always allowed.
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`

	// Codec is the wire format: "json" or "cbor". Default: json
	Codec string `toml:"codec" yaml:"codec" json:"codec"`

	// MaxBodyBytes limits request bodies. Negative disables the limit.
	// Default: 1 MiB
	MaxBodyBytes int64 `toml:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Log configures logging.
	Log LogConfig `toml:"log" yaml:"log" json:"log"`

	// Context is the global context handed to every call.
	Context map[string]any `toml:"context" yaml:"context" json:"context"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error, disabled. Default: info
	Level string `toml:"level" yaml:"level" json:"level"`

	// Console selects human-readable output instead of JSON lines.
	Console bool `toml:"console" yaml:"console" json:"console"`
}

// Duration is a time.Duration that decodes from strings such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Addr:            ":8080",
		Path:            "/rpc",
		Codec:           "json",
		MaxBodyBytes:    1 << 20,
		ShutdownTimeout: Duration{10 * time.Second},
		Log:             LogConfig{Level: "info", Console: true},
	}
}

// Load reads the file at path on top of Default, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = decodeTOML(data, &cfg)
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &cfg, json.RejectUnknownMembers(true))
	default:
		return Config{}, fmt.Errorf("config load failed (%s): unsupported extension %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte, cfg *Config) error {
	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			// Anything below [context] is free-form.
			if len(key) > 1 && key[0] == "context" {
				continue
			}
			keys = append(keys, key.String())
		}
		if len(keys) > 0 {
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Log.Level = level
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if !strings.HasPrefix(c.Path, "/") {
		errs = append(errs, fmt.Errorf("path %q must start with /", c.Path))
	}
	if c.WebSocketPath != "" && !strings.HasPrefix(c.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("websocket_path %q must start with /", c.WebSocketPath))
	}
	if c.WebSocketPath != "" && c.WebSocketPath == c.Path {
		errs = append(errs, errors.New("websocket_path must differ from path"))
	}
	switch strings.ToLower(c.Codec) {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("codec %q must be json or cbor", c.Codec))
	}
	for _, origin := range c.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			errs = append(errs, errors.New("allowed_origins must not contain empty entries"))
			break
		}
	}
	if c.ShutdownTimeout.Duration < 0 {
		errs = append(errs, errors.New("shutdown_timeout must not be negative"))
	}
	return errors.Join(errs...)
}
