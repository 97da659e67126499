// Package kvtest is a conformance suite run against every kv backend.
package kvtest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/xraph/enrich/kv"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) kv.Store

// Run exercises the kv.Store contract against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s kv.Store)
	}{
		{"GetMissing", testGetMissing},
		{"PutThenView", testPutThenView},
		{"UpdateRollsBackOnError", testRollback},
		{"DeleteAbsentIsNoop", testDeleteAbsent},
		{"RangeOrdered", testRangeOrdered},
		{"RangeStop", testRangeStop},
		{"RangeSeesOwnWrites", testRangeSeesOwnWrites},
		{"RangeMutateDuringIteration", testRangeMutate},
		{"TablesIsolated", testTablesIsolated},
		{"Seek", testSeek},
		{"SeekSeesOwnWrites", testSeekSeesOwnWrites},
		{"WalkLive", testWalkLive},
		{"ViewIsReadOnly", testViewReadOnly},
		{"UpdatesSerialized", testUpdatesSerialized},
		{"TypedTable", testTypedTable},
		{"CancelledContext", testCancelledContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func put(t *testing.T, s kv.Store, table, key, value string) {
	t.Helper()
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		return tx.Put(table, []byte(key), []byte(value))
	})
	if err != nil {
		t.Fatalf("Put(%s/%s): %v", table, key, err)
	}
}

func keys(t *testing.T, s kv.Store, table string) []string {
	t.Helper()
	var out []string
	err := s.View(context.Background(), func(tx kv.Tx) error {
		return tx.Range(table, func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Range(%s): %v", table, err)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testGetMissing(t *testing.T, s kv.Store) {
	err := s.View(context.Background(), func(tx kv.Tx) error {
		_, err := tx.Get("t", []byte("missing"))
		return err
	})
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testPutThenView(t *testing.T, s kv.Store) {
	put(t, s, "t", "k", "v")

	var got []byte
	err := s.View(context.Background(), func(tx kv.Tx) error {
		var err error
		got, err = tx.Get("t", []byte("k"))
		return err
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected %q, got %q", "v", got)
	}
}

func testRollback(t *testing.T, s kv.Store) {
	put(t, s, "t", "keep", "1")

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		if err := tx.Put("t", []byte("lost"), []byte("1")); err != nil {
			return err
		}
		if err := tx.Delete("t", []byte("keep")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if got := keys(t, s, "t"); !equal(got, []string{"keep"}) {
		t.Errorf("expected only [keep] after rollback, got %v", got)
	}
}

func testDeleteAbsent(t *testing.T, s kv.Store) {
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		return tx.Delete("t", []byte("nothing"))
	})
	if err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

func testRangeOrdered(t *testing.T, s kv.Store) {
	for _, k := range []string{"c", "a", "b", "aa"} {
		put(t, s, "t", k, k)
	}
	if got := keys(t, s, "t"); !equal(got, []string{"a", "aa", "b", "c"}) {
		t.Errorf("expected ascending order, got %v", got)
	}
}

func testRangeStop(t *testing.T, s kv.Store) {
	for _, k := range []string{"a", "b", "c"} {
		put(t, s, "t", k, k)
	}

	var seen []string
	err := s.View(context.Background(), func(tx kv.Tx) error {
		return tx.Range("t", func(k, _ []byte) error {
			seen = append(seen, string(k))
			return kv.ErrStop
		})
	})
	if err != nil {
		t.Fatalf("Range with ErrStop returned %v", err)
	}
	if !equal(seen, []string{"a"}) {
		t.Errorf("expected [a], got %v", seen)
	}
}

func testRangeSeesOwnWrites(t *testing.T, s kv.Store) {
	put(t, s, "t", "b", "b")

	var seen []string
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		if err := tx.Put("t", []byte("a"), []byte("a")); err != nil {
			return err
		}
		if err := tx.Delete("t", []byte("b")); err != nil {
			return err
		}
		return tx.Range("t", func(k, _ []byte) error {
			seen = append(seen, string(k))
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !equal(seen, []string{"a"}) {
		t.Errorf("expected staged view [a], got %v", seen)
	}
}

func testRangeMutate(t *testing.T, s kv.Store) {
	for _, k := range []string{"a", "b", "c"} {
		put(t, s, "t", k, k)
	}

	var seen []string
	err := s.Update(context.Background(), func(tx kv.Tx) error {
		return tx.Range("t", func(k, _ []byte) error {
			seen = append(seen, string(k))
			if err := tx.Delete("t", k); err != nil {
				return err
			}
			return tx.Put("t", append([]byte("z"), k...), k)
		})
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !equal(seen, []string{"a", "b", "c"}) {
		t.Errorf("expected to visit the snapshot [a b c], got %v", seen)
	}
	if got := keys(t, s, "t"); !equal(got, []string{"za", "zb", "zc"}) {
		t.Errorf("expected [za zb zc] after mutation, got %v", got)
	}
}

func testSeek(t *testing.T, s kv.Store) {
	for _, k := range []string{"b", "d", "f"} {
		put(t, s, "t", k, "v"+k)
	}
	put(t, s, "tt", "a", "other")

	tests := []struct {
		from string
		want string
	}{
		{"", "b"},
		{"a", "b"},
		{"b", "b"},
		{"c", "d"},
		{"f", "f"},
	}
	err := s.View(context.Background(), func(tx kv.Tx) error {
		for _, tt := range tests {
			k, v, err := tx.Seek("t", []byte(tt.from))
			if err != nil {
				return err
			}
			if string(k) != tt.want || string(v) != "v"+tt.want {
				t.Errorf("Seek(%q) = %q/%q, want %q", tt.from, k, v, tt.want)
			}
		}
		if _, _, err := tx.Seek("t", []byte("g")); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Seek past end: expected ErrNotFound, got %v", err)
		}
		if _, _, err := tx.Seek("t", kv.Successor([]byte("f"))); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Seek after last key: expected ErrNotFound, got %v", err)
		}
		if _, _, err := tx.Seek("empty", nil); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Seek on empty table: expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func testSeekSeesOwnWrites(t *testing.T, s kv.Store) {
	for _, k := range []string{"b", "d"} {
		put(t, s, "t", k, k)
	}

	err := s.Update(context.Background(), func(tx kv.Tx) error {
		if err := tx.Delete("t", []byte("b")); err != nil {
			return err
		}
		if err := tx.Put("t", []byte("c"), []byte("c")); err != nil {
			return err
		}
		k, _, err := tx.Seek("t", nil)
		if err != nil {
			return err
		}
		if string(k) != "c" {
			t.Errorf("Seek after staged writes = %q, want c", k)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

// Walk consumes entries as it goes, the way a claim drains a queue index.
func testWalkLive(t *testing.T, s kv.Store) {
	tbl := kv.NewTable[bool]("queue")
	ctx := context.Background()

	err := s.Update(ctx, func(tx kv.Tx) error {
		v := true
		for _, k := range []string{"a", "b", "c", "d"} {
			if err := tbl.Put(tx, []byte(k), &v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	var seen []string
	err = s.Update(ctx, func(tx kv.Tx) error {
		return tbl.Walk(tx, func(k []byte, _ *bool) error {
			seen = append(seen, string(k))
			if err := tbl.Delete(tx, k); err != nil {
				return err
			}
			if string(k) == "c" {
				return kv.ErrStop
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if !equal(seen, []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", seen)
	}
	if got := keys(t, s, "queue"); !equal(got, []string{"d"}) {
		t.Errorf("expected [d] left, got %v", got)
	}
}

func testTablesIsolated(t *testing.T, s kv.Store) {
	put(t, s, "a", "k", "1")
	put(t, s, "ab", "k", "2")

	if got := keys(t, s, "a"); !equal(got, []string{"k"}) {
		t.Errorf("table a: expected [k], got %v", got)
	}
	if got := keys(t, s, "ab"); !equal(got, []string{"k"}) {
		t.Errorf("table ab: expected [k], got %v", got)
	}
	if got := keys(t, s, "b"); len(got) != 0 {
		t.Errorf("table b: expected empty, got %v", got)
	}
}

func testViewReadOnly(t *testing.T, s kv.Store) {
	err := s.View(context.Background(), func(tx kv.Tx) error {
		return tx.Put("t", []byte("k"), []byte("v"))
	})
	if !errors.Is(err, kv.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

// Read-modify-write increments from many goroutines must never lose an
// update when writers are serialized.
func testUpdatesSerialized(t *testing.T, s kv.Store) {
	const n = 50
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, func(tx kv.Tx) error {
				cur := 0
				data, err := tx.Get("t", []byte("counter"))
				switch {
				case errors.Is(err, kv.ErrNotFound):
				case err != nil:
					return err
				default:
					cur, err = strconv.Atoi(string(data))
					if err != nil {
						return err
					}
				}
				return tx.Put("t", []byte("counter"), []byte(strconv.Itoa(cur+1)))
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	var got []byte
	err := s.View(ctx, func(tx kv.Tx) error {
		var err error
		got, err = tx.Get("t", []byte("counter"))
		return err
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != strconv.Itoa(n) {
		t.Errorf("expected counter %d, got %s", n, got)
	}
}

type record struct {
	Name  string `msgpack:"name"`
	Count int    `msgpack:"count"`
}

func testTypedTable(t *testing.T, s kv.Store) {
	tbl := kv.NewTable[record]("records")
	ctx := context.Background()

	err := s.Update(ctx, func(tx kv.Tx) error {
		if err := tbl.Put(tx, []byte("b"), &record{Name: "bee", Count: 2}); err != nil {
			return err
		}
		return tbl.Put(tx, []byte("a"), &record{Name: "ant", Count: 1})
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	err = s.View(ctx, func(tx kv.Tx) error {
		got, err := tbl.Get(tx, []byte("a"))
		if err != nil {
			return err
		}
		if got == nil || got.Name != "ant" || got.Count != 1 {
			t.Errorf("unexpected record %+v", got)
		}

		missing, err := tbl.Get(tx, []byte("zzz"))
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("expected nil for missing key, got %+v", missing)
		}

		var names []string
		if err := tbl.Each(tx, func(_ []byte, r *record) error {
			names = append(names, r.Name)
			return nil
		}); err != nil {
			return err
		}
		if !equal(names, []string{"ant", "bee"}) {
			t.Errorf("expected [ant bee], got %v", names)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func testCancelledContext(t *testing.T, s kv.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Update(ctx, func(kv.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("body ran under a cancelled context")
	}
}
