// Package memory provides an in-memory kv.Store for tests and development.
//
// Each table is a map. Writes made inside Update are staged and applied
// under the write lock on commit, so readers never observe a partial
// transaction. A sorted key index per table, maintained on commit, serves
// Seek by binary search; Range sorts a merged snapshot on demand.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/kv"
)

// Ensure Store implements kv.Store at compile time.
var _ kv.Store = (*Store)(nil)

// Store is a fully in-memory implementation of kv.Store.
// Safe for concurrent access. Contents are lost on Close.
type Store struct {
	// writeMu serializes Update bodies.
	writeMu sync.Mutex

	// mu guards tables, order, and closed.
	mu     sync.RWMutex
	tables map[string]map[string][]byte
	order  map[string][]string // sorted keys of each table
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tables: make(map[string]map[string][]byte),
		order:  make(map[string][]string),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Close discards all data. Subsequent transactions return
// enrich.ErrStoreClosed.
func (m *Store) Close() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tables = nil
	m.order = nil
	return nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

// View runs fn with a read lock held for its whole duration.
func (m *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return enrich.ErrStoreClosed
	}
	return fn(&tx{base: m.tables, order: m.order, readOnly: true})
}

// Update runs fn as the only writer and applies its staged writes when it
// returns nil.
func (m *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// Only the holder of writeMu mutates tables, so reading them here
	// without mu is safe.
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return enrich.ErrStoreClosed
	}

	t := &tx{base: m.tables, order: m.order, staged: make(map[string]map[string]*[]byte)}
	if err := fn(t); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t.commit(m.tables, m.order)
	return nil
}

// ──────────────────────────────────────────────────
// Tx
// ──────────────────────────────────────────────────

type tx struct {
	base     map[string]map[string][]byte
	order    map[string][]string
	staged   map[string]map[string]*[]byte // nil value pointer marks a delete
	readOnly bool
}

func (t *tx) Get(table string, key []byte) ([]byte, error) {
	if s, ok := t.staged[table][string(key)]; ok {
		if s == nil {
			return nil, kv.ErrNotFound
		}
		return clone(*s), nil
	}
	v, ok := t.base[table][string(key)]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return clone(v), nil
}

func (t *tx) Put(table string, key, value []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	v := clone(value)
	t.stage(table)[string(key)] = &v
	return nil
}

func (t *tx) Delete(table string, key []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	t.stage(table)[string(key)] = nil
	return nil
}

func (t *tx) Range(table string, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte, len(t.base[table]))
	for k, v := range t.base[table] {
		merged[k] = v
	}
	for k, s := range t.staged[table] {
		if s == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *s
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := fn([]byte(k), clone(merged[k])); err != nil {
			if errors.Is(err, kv.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Seek takes the first committed key at or after from that this
// transaction has not deleted, and the smallest staged key at or after
// from, and returns the lower of the two.
func (t *tx) Seek(table string, from []byte) ([]byte, []byte, error) {
	f := string(from)
	staged := t.staged[table]

	var (
		best  string
		found bool
	)
	keys := t.order[table]
	for i := sort.SearchStrings(keys, f); i < len(keys); i++ {
		if s, ok := staged[keys[i]]; ok && s == nil {
			continue
		}
		best, found = keys[i], true
		break
	}
	for k, s := range staged {
		if s != nil && k >= f && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return nil, nil, kv.ErrNotFound
	}

	value, err := t.Get(table, []byte(best))
	if err != nil {
		return nil, nil, err
	}
	return []byte(best), value, nil
}

func (t *tx) stage(table string) map[string]*[]byte {
	s, ok := t.staged[table]
	if !ok {
		s = make(map[string]*[]byte)
		t.staged[table] = s
	}
	return s
}

func (t *tx) commit(tables map[string]map[string][]byte, order map[string][]string) {
	for table, writes := range t.staged {
		dst, ok := tables[table]
		if !ok {
			dst = make(map[string][]byte, len(writes))
			tables[table] = dst
		}
		keys := order[table]
		for k, s := range writes {
			_, existed := dst[k]
			if s == nil {
				if existed {
					delete(dst, k)
					keys = removeKey(keys, k)
				}
				continue
			}
			if !existed {
				keys = insertKey(keys, k)
			}
			dst[k] = *s
		}
		order[table] = keys
	}
}

func insertKey(keys []string, k string) []string {
	i := sort.SearchStrings(keys, k)
	keys = append(keys, "")
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	return keys
}

func removeKey(keys []string, k string) []string {
	i := sort.SearchStrings(keys, k)
	if i < len(keys) && keys[i] == k {
		keys = append(keys[:i], keys[i+1:]...)
	}
	return keys
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
