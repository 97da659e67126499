package badger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/kv"
	"github.com/xraph/enrich/kv/kvtest"
	"github.com/xraph/enrich/store/badger"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConformanceInMemory(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := badger.Open("", badger.WithInMemory(true), badger.WithLogger(quiet()))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestConformanceOnDisk(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := badger.Open(t.TempDir(), badger.WithSyncWrites(false), badger.WithLogger(quiet()))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestDurableAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	tests := []struct {
		name string
		sync bool
	}{
		{"sync", true},
		{"async", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := dir + "/" + tt.name

			s, err := badger.Open(path, badger.WithSyncWrites(tt.sync), badger.WithLogger(quiet()))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			err = s.Update(ctx, func(tx kv.Tx) error {
				if err := tx.Put("tickets", []byte("a"), []byte("1")); err != nil {
					return err
				}
				return tx.Put("tickets", []byte("b"), []byte("2"))
			})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			reopened, err := badger.Open(path, badger.WithLogger(quiet()))
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer reopened.Close()

			var got []string
			err = reopened.View(ctx, func(tx kv.Tx) error {
				return tx.Range("tickets", func(k, v []byte) error {
					got = append(got, string(k)+"="+string(v))
					return nil
				})
			})
			if err != nil {
				t.Fatalf("View: %v", err)
			}
			if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
				t.Errorf("expected [a=1 b=2] after reopen, got %v", got)
			}
		})
	}
}

func TestClosed(t *testing.T) {
	t.Parallel()
	s, err := badger.Open("", badger.WithInMemory(true), badger.WithLogger(quiet()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	err = s.Update(context.Background(), func(kv.Tx) error { return nil })
	if !errors.Is(err, enrich.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
