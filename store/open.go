package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xraph/enrich/kv"
	"github.com/xraph/enrich/store/badger"
	"github.com/xraph/enrich/store/memory"
	"github.com/xraph/enrich/store/postgres"
)

// Backend names a kv.Store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendBadger   Backend = "badger"
	BackendPostgres Backend = "postgres"
)

type options struct {
	syncWrites bool
	logger     *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithSyncWrites controls fsync on commit for the badger backend.
func WithSyncWrites(sync bool) Option {
	return func(o *options) { o.syncWrites = sync }
}

// WithLogger sets the logger handed to the backend.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Parse splits location into its backend and the backend-specific target.
func Parse(location string) (Backend, string, error) {
	switch {
	case location == "":
		return "", "", fmt.Errorf("store: empty location")
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return BackendPostgres, location, nil
	case location == "memory:" || location == "memory://":
		return BackendMemory, "", nil
	}
	if dir, ok := strings.CutPrefix(location, "badger:"); ok {
		if dir == "" {
			return "", "", fmt.Errorf("store: badger location needs a directory")
		}
		return BackendBadger, dir, nil
	}
	if i := strings.Index(location, "://"); i > 0 {
		return "", "", fmt.Errorf("store: unsupported scheme %q", location[:i])
	}
	return BackendBadger, location, nil
}

// Open opens the backend named by location.
func Open(ctx context.Context, location string, opts ...Option) (kv.Store, error) {
	o := options{syncWrites: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	backend, target, err := Parse(location)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendMemory:
		return memory.New(), nil
	case BackendPostgres:
		return postgres.Open(ctx, target, postgres.WithLogger(o.logger))
	default:
		return badger.Open(target,
			badger.WithSyncWrites(o.syncWrites),
			badger.WithLogger(o.logger),
		)
	}
}
