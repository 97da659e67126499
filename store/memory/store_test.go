package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/kv"
	"github.com/xraph/enrich/kv/kvtest"
	"github.com/xraph/enrich/store/memory"
)

func TestConformance(t *testing.T) {
	kvtest.Run(t, func(*testing.T) kv.Store { return memory.New() })
}

func TestClosed(t *testing.T) {
	t.Parallel()
	s := memory.New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx := context.Background()
	noop := func(kv.Tx) error { return nil }

	if err := s.View(ctx, noop); !errors.Is(err, enrich.ErrStoreClosed) {
		t.Errorf("View after Close: expected ErrStoreClosed, got %v", err)
	}
	if err := s.Update(ctx, noop); !errors.Is(err, enrich.ErrStoreClosed) {
		t.Errorf("Update after Close: expected ErrStoreClosed, got %v", err)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	if err := s.Update(ctx, func(tx kv.Tx) error {
		return tx.Put("t", []byte("k"), []byte("value"))
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	_ = s.View(ctx, func(tx kv.Tx) error {
		v, _ := tx.Get("t", []byte("k"))
		v[0] = 'X'
		return nil
	})

	_ = s.View(ctx, func(tx kv.Tx) error {
		v, err := tx.Get("t", []byte("k"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(v) != "value" {
			t.Errorf("stored value was mutated through a returned slice: %q", v)
		}
		return nil
	})
}
