package badger

import "log/slog"

type config struct {
	inMemory   bool
	syncWrites bool
	logger     *slog.Logger
}

// Option configures the badger store.
type Option func(*config)

// WithInMemory keeps all data in memory. Nothing survives Close.
func WithInMemory(inMemory bool) Option {
	return func(c *config) { c.inMemory = inMemory }
}

// WithSyncWrites controls whether each commit waits for fsync. The default
// is true. With false, a commit returns once the write is in the memtable
// and the last few transactions may be lost on a crash; atomicity and
// ordering are unchanged.
func WithSyncWrites(sync bool) Option {
	return func(c *config) { c.syncWrites = sync }
}

// WithLogger sets the logger Badger's internal messages are routed to.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}
