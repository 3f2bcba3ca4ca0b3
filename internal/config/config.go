// Package config loads shopsync settings.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional YAML file, and SHOPSYNC_* environment variables. The merged
// result is checked against an embedded CUE schema before use.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the full settings tree.
type Config struct {
	Backend   Backend   `yaml:"backend" json:"backend"`
	Storage   Storage   `yaml:"storage" json:"storage"`
	Log       Log       `yaml:"log" json:"log"`
	Telemetry Telemetry `yaml:"telemetry" json:"telemetry"`
	Server    Server    `yaml:"server" json:"server"`
}

// Backend locates the shop API.
type Backend struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Storage selects the session storage engine.
type Storage struct {
	Driver   string        `yaml:"driver" json:"driver"`
	Path     string        `yaml:"path" json:"path"`
	RedisURL string        `yaml:"redis_url" json:"redis_url"`
	RedisTTL time.Duration `yaml:"redis_ttl" json:"redis_ttl"`
	Session  string        `yaml:"session" json:"session"`
}

// Log configures the default slog handler.
type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Telemetry toggles span export.
type Telemetry struct {
	Trace bool `yaml:"trace" json:"trace"`
}

// Server configures `shopsync serve`.
type Server struct {
	Addr           string        `yaml:"addr" json:"addr"`
	JWTSecret      string        `yaml:"jwt_secret" json:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl" json:"token_ttl"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Backend: Backend{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Storage: Storage{
			Driver:  "sqlite",
			Path:    defaultStatePath(),
			Session: "default",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Server: Server{
			Addr:           ":8080",
			TokenTTL:       24 * time.Hour,
			AllowedOrigins: []string{"http://localhost:4200"},
		},
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".shopsync", "state.db")
	}
	return filepath.Join(dir, "shopsync", "state.db")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("config loaded",
		"file", path,
		"backend", cfg.Backend.BaseURL,
		"storage", cfg.Storage.Driver,
		"session", cfg.Storage.Session,
	)
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	// Unknown keys are rejected so typos don't silently fall back to defaults.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Environment variables recognised by Load.
const (
	EnvBackendURL     = "SHOPSYNC_BACKEND_URL"
	EnvBackendTimeout = "SHOPSYNC_BACKEND_TIMEOUT"
	EnvStorageDriver  = "SHOPSYNC_STORAGE_DRIVER"
	EnvStoragePath    = "SHOPSYNC_STORAGE_PATH"
	EnvRedisURL       = "SHOPSYNC_REDIS_URL"
	EnvSession        = "SHOPSYNC_SESSION"
	EnvLogLevel       = "SHOPSYNC_LOG_LEVEL"
	EnvLogFormat      = "SHOPSYNC_LOG_FORMAT"
	EnvTrace          = "SHOPSYNC_TRACE"
	EnvServerAddr     = "SHOPSYNC_SERVER_ADDR"
	EnvJWTSecret      = "SHOPSYNC_JWT_SECRET"
	EnvAllowedOrigins = "SHOPSYNC_ALLOWED_ORIGINS"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvBackendURL, &c.Backend.BaseURL)
	str(EnvStorageDriver, &c.Storage.Driver)
	str(EnvStoragePath, &c.Storage.Path)
	str(EnvRedisURL, &c.Storage.RedisURL)
	str(EnvSession, &c.Storage.Session)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)
	str(EnvServerAddr, &c.Server.Addr)
	str(EnvJWTSecret, &c.Server.JWTSecret)

	if v, ok := lookup(EnvBackendTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBackendTimeout, err)
		}
		c.Backend.Timeout = d
	}
	if v, ok := lookup(EnvTrace); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTrace, err)
		}
		c.Telemetry.Trace = b
	}
	if v, ok := lookup(EnvAllowedOrigins); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = []string{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ErrInvalid wraps schema violations.
var ErrInvalid = errors.New("invalid config")

// SlogLevel maps Log.Level to a slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
