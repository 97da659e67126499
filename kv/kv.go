// Package kv defines the embedded, transactional, ordered key-value contract
// every enrich repository is written against.
//
// A [Store] exposes two kinds of transaction. View runs a function against a
// consistent read snapshot. Update runs a function as one write transaction:
// all writes it makes commit together or not at all, and no two Update
// bodies ever run at the same time within a process. Repositories rely on
// that serialization for atomic claiming; there is no lock above the store.
// Backends shared between processes serialize Update across them too.
//
// Keys are grouped into named tables. Within a table, [Tx.Range] visits keys
// in ascending byte order over a snapshot; [Tx.Seek] positions on a single
// key and is the primitive for cursors that must not scan the whole table.
//
// Backends:
//
//   - store/badger — durable, on-disk (or in-memory) Badger database
//   - store/postgres — PostgreSQL relation shared between processes
//   - store/memory — ordered in-memory maps for tests and development
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Tx.Get when the key is absent.
	ErrNotFound = errors.New("kv: key not found")

	// ErrStop may be returned from a Range callback to end iteration early.
	// Range itself then returns nil.
	ErrStop = errors.New("kv: stop iteration")

	// ErrReadOnly is returned by writes attempted inside View.
	ErrReadOnly = errors.New("kv: write in read-only transaction")
)

// Store is an embedded transactional key-value engine.
type Store interface {
	// View runs fn against a consistent read snapshot.
	View(ctx context.Context, fn func(Tx) error) error

	// Update runs fn as a single serialized write transaction. If fn
	// returns an error nothing it wrote is kept.
	Update(ctx context.Context, fn func(Tx) error) error

	// Close flushes and releases the store.
	Close() error
}

// Tx is the handle passed to View and Update bodies. It must not be used
// after the body returns.
type Tx interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(table string, key []byte) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(table string, key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(table string, key []byte) error

	// Range calls fn for every key of table in ascending byte order. The
	// iteration runs over a snapshot taken when Range starts, so fn may
	// mutate table freely. Returning ErrStop ends iteration without error;
	// any other error is returned as is.
	Range(table string, fn func(key, value []byte) error) error

	// Seek returns the first key of table that is greater than or equal to
	// from, with its value, or ErrNotFound when there is none. Writes made
	// earlier in the same transaction are visible. Seek reads only the
	// entry it returns, so its cost does not depend on the table size.
	Seek(table string, from []byte) (key, value []byte, err error)
}

// Successor returns the smallest key that sorts after key.
func Successor(key []byte) []byte {
	next := make([]byte, len(key)+1)
	copy(next, key)
	return next
}
