package kv

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Table is a typed view over one named table. Values are encoded with
// MessagePack.
type Table[T any] struct {
	name string
}

// NewTable returns a typed handle for the named table.
func NewTable[T any](name string) Table[T] {
	return Table[T]{name: name}
}

// Name returns the table name.
func (t Table[T]) Name() string { return t.name }

// Get decodes the record stored under key. It returns nil, nil when the key
// is absent.
func (t Table[T]) Get(tx Tx, key []byte) (*T, error) {
	data, err := tx.Get(t.name, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("kv: decode %s/%s: %w", t.name, key, err)
	}
	return &v, nil
}

// Put encodes v and stores it under key.
func (t Table[T]) Put(tx Tx, key []byte, v *T) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s/%s: %w", t.name, key, err)
	}
	return tx.Put(t.name, key, data)
}

// Delete removes key from the table.
func (t Table[T]) Delete(tx Tx, key []byte) error {
	return tx.Delete(t.name, key)
}

// Each decodes and visits every record in key order. fn may return ErrStop.
func (t Table[T]) Each(tx Tx, fn func(key []byte, v *T) error) error {
	return tx.Range(t.name, func(key, data []byte) error {
		var v T
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("kv: decode %s/%s: %w", t.name, key, err)
		}
		return fn(key, &v)
	})
}

// Walk visits records in key order one Seek at a time. Unlike Each it
// reads the live table, so records fn writes after the current key are
// visited too, and stopping early costs only the entries already visited.
// fn may return ErrStop.
func (t Table[T]) Walk(tx Tx, fn func(key []byte, v *T) error) error {
	var from []byte
	for {
		key, data, err := tx.Seek(t.name, from)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var v T
		if err := msgpack.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("kv: decode %s/%s: %w", t.name, key, err)
		}
		if err := fn(key, &v); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
		from = Successor(key)
	}
}
