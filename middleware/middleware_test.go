package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/middleware"
	"github.com/xraph/enrich/ticket"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAttempt(number, maxAttempts int) *middleware.Attempt {
	tk := ticket.New(id.NewEntityID(), "trace123")
	tk.RetryCount = 2
	return &middleware.Attempt{Ticket: tk, Number: number, Max: maxAttempts, WorkerID: "wkr-1"}
}

func ok(_ context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":true}`), nil
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *middleware.Attempt, next middleware.Handler) (json.RawMessage, error) {
		order = append(order, "mw1-before")
		res, err := next(ctx)
		order = append(order, "mw1-after")
		return res, err
	}
	mw2 := func(ctx context.Context, _ *middleware.Attempt, next middleware.Handler) (json.RawMessage, error) {
		order = append(order, "mw2-before")
		res, err := next(ctx)
		order = append(order, "mw2-after")
		return res, err
	}

	chain := middleware.Chain(mw1, mw2)
	res, err := chain(context.Background(), newAttempt(1, 3), func(ctx context.Context) (json.RawMessage, error) {
		order = append(order, "handler")
		return ok(ctx)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res) != `{"ok":true}` {
		t.Errorf("result = %s", res)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	_, err := middleware.Chain()(context.Background(), newAttempt(1, 1), func(ctx context.Context) (json.RawMessage, error) {
		called = true
		return ok(ctx)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *middleware.Attempt, next middleware.Handler) (json.RawMessage, error) {
		return next(ctx)
	}
	want := errors.New("handler error")

	_, err := middleware.Chain(pass)(context.Background(), newAttempt(1, 1), func(context.Context) (json.RawMessage, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestAttempt_Last(t *testing.T) {
	tests := []struct {
		number, max int
		want        bool
	}{
		{1, 3, false},
		{2, 3, false},
		{3, 3, true},
		{1, 1, true},
	}
	for _, tt := range tests {
		if got := newAttempt(tt.number, tt.max).Last(); got != tt.want {
			t.Errorf("Attempt{%d/%d}.Last() = %v, want %v", tt.number, tt.max, got, tt.want)
		}
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	a := newAttempt(1, 3)
	res, err := middleware.Recover(quiet())(context.Background(), a, func(context.Context) (json.RawMessage, error) {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if res != nil {
		t.Errorf("expected nil result, got %s", res)
	}
	want := "panic in handler for ticket " + a.Ticket.ID.String() + ": test panic"
	if got := err.Error(); got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	res, err := middleware.Recover(quiet())(context.Background(), newAttempt(1, 3), ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res) != `{"ok":true}` {
		t.Errorf("result = %s", res)
	}
}

func TestLogging_Outcomes(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	mw := middleware.Logging(logger)
	boom := errors.New("fail")
	fail := func(context.Context) (json.RawMessage, error) { return nil, boom }

	if _, err := mw(context.Background(), newAttempt(1, 3), ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mw(context.Background(), newAttempt(1, 3), fail); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	if _, err := mw(context.Background(), newAttempt(3, 3), fail); !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}

	out := buf.String()
	for _, want := range []string{
		"attempt succeeded",
		"level=WARN msg=\"attempt failed, retrying\"",
		"level=ERROR msg=\"attempt failed\"",
		"trace_id=trace123",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	_, err := middleware.Timeout(10*time.Millisecond)(context.Background(), newAttempt(1, 1), func(ctx context.Context) (json.RawMessage, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("expected a deadline on the attempt context")
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroIsUnbounded(t *testing.T) {
	_, err := middleware.Timeout(0)(context.Background(), newAttempt(1, 1), func(ctx context.Context) (json.RawMessage, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline with zero timeout")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
