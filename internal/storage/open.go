package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Options selects and configures a storage engine.
type Options struct {
	Driver   string
	Path     string        // sqlite database file
	RedisURL string        // redis connection URL
	RedisTTL time.Duration // zero keeps values until removed
	Session  string        // namespace, one per client session
}

// Open returns a Storage for opts.Session and a function releasing the engine.
func Open(ctx context.Context, opts Options) (Storage, func() error, error) {
	noop := func() error { return nil }

	switch opts.Driver {
	case DriverMemory, "":
		return NewMemory(), noop, nil

	case DriverSQLite:
		if dir := filepath.Dir(opts.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		db, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, nil, err
		}
		return db.Session(opts.Session), db.Close, nil

	case DriverRedis:
		client, err := DialRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedis(client, opts.Session, opts.RedisTTL), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
