// Package badger provides a durable kv.Store backed by BadgerDB.
//
// Tables are key prefixes: a record lives under "<table>\x00<key>". Badger
// transactions are optimistic, so Update additionally holds a process-wide
// write mutex; write transactions therefore never conflict and run strictly
// one after another.
//
// Badger takes an exclusive lock on its directory. Two processes cannot
// open the same data directory; run every role that shares it in one
// process.
//
// Usage:
//
//	s, err := badger.Open("/var/lib/enrich", badger.WithSyncWrites(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/kv"
)

// Ensure Store implements kv.Store at compile time.
var _ kv.Store = (*Store)(nil)

const tableSep = 0x00

// Store is a BadgerDB implementation of kv.Store.
type Store struct {
	db      *badgerdb.DB
	writeMu sync.Mutex
	closed  atomic.Bool
	logger  *slog.Logger
}

// Open opens (or creates) the database in dir. dir is ignored when
// WithInMemory(true) is given.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := config{syncWrites: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	bopts := badgerdb.DefaultOptions(dir)
	if cfg.inMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.
		WithSyncWrites(cfg.syncWrites).
		WithLogger(newLogger(cfg.logger))

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", dir, err)
	}

	cfg.logger.Debug("badger store opened",
		slog.String("dir", dir),
		slog.Bool("in_memory", cfg.inMemory),
		slog.Bool("sync_writes", cfg.syncWrites),
	)

	return &Store{db: db, logger: cfg.logger}, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Close flushes pending writes and releases the directory lock.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// View runs fn inside a Badger read-only transaction.
func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return enrich.ErrStoreClosed
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		return fn(&tx{txn: txn, readOnly: true})
	})
}

// Update runs fn inside a Badger read-write transaction while holding the
// write mutex.
func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return enrich.ErrStoreClosed
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// ──────────────────────────────────────────────────
// Tx
// ──────────────────────────────────────────────────

type tx struct {
	txn      *badgerdb.Txn
	readOnly bool
}

func prefix(table string) []byte {
	p := make([]byte, 0, len(table)+1)
	p = append(p, table...)
	return append(p, tableSep)
}

func fullKey(table string, key []byte) []byte {
	return append(prefix(table), key...)
}

func (t *tx) Get(table string, key []byte) ([]byte, error) {
	item, err := t.txn.Get(fullKey(table, key))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger: get %s: %w", table, err)
	}
	return item.ValueCopy(nil)
}

func (t *tx) Put(table string, key, value []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := t.txn.Set(fullKey(table, key), bytes.Clone(value)); err != nil {
		return fmt.Errorf("badger: put %s: %w", table, err)
	}
	return nil
}

func (t *tx) Delete(table string, key []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := t.txn.Delete(fullKey(table, key)); err != nil {
		return fmt.Errorf("badger: delete %s: %w", table, err)
	}
	return nil
}

type pair struct {
	key, value []byte
}

func (t *tx) Range(table string, fn func(key, value []byte) error) error {
	pairs, err := t.snapshot(table)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := fn(p.key, p.value); err != nil {
			if errors.Is(err, kv.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Seek opens a keys-only iterator, positions it on from, and copies out the
// one entry it lands on. The iterator is closed before returning, so callers
// may write between Seeks.
func (t *tx) Seek(table string, from []byte) ([]byte, []byte, error) {
	p := prefix(table)
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = p
	opts.PrefetchValues = false

	it := t.txn.NewIterator(opts)
	defer it.Close()

	it.Seek(fullKey(table, from))
	if !it.ValidForPrefix(p) {
		return nil, nil, kv.ErrNotFound
	}
	item := it.Item()
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("badger: seek %s: %w", table, err)
	}
	return item.KeyCopy(nil)[len(p):], value, nil
}

// snapshot copies the table out so the iterator is closed before fn runs;
// a read-write Badger transaction allows one open iterator and fn may write.
func (t *tx) snapshot(table string) ([]pair, error) {
	p := prefix(table)
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = p

	it := t.txn.NewIterator(opts)
	defer it.Close()

	var pairs []pair
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("badger: range %s: %w", table, err)
		}
		pairs = append(pairs, pair{key: item.KeyCopy(nil)[len(p):], value: value})
	}
	return pairs, nil
}
