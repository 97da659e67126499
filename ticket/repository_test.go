package ticket_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/xraph/enrich"
	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/kv"
	"github.com/xraph/enrich/store/badger"
	"github.com/xraph/enrich/store/memory"
	"github.com/xraph/enrich/ticket"
)

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name string
	open func(t *testing.T) kv.Store
}

func backends() []backend {
	return []backend{
		{"memory", func(*testing.T) kv.Store { return memory.New() }},
		{"badger", func(t *testing.T) kv.Store {
			s, err := badger.Open("", badger.WithInMemory(true),
				badger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			return s
		}},
	}
}

// forEachBackend runs fn once per kv backend with a fresh repository.
func forEachBackend(t *testing.T, fn func(t *testing.T, repo *ticket.Repository, clk *clock)) {
	t.Helper()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			s := b.open(t)
			t.Cleanup(func() { _ = s.Close() })
			clk := newClock()
			fn(t, ticket.NewRepository(s, ticket.WithClock(clk.Now)), clk)
		})
	}
}

func mustCreate(t *testing.T, repo *ticket.Repository) *ticket.Ticket {
	t.Helper()
	tk := ticket.New(id.NewEntityID(), "")
	if err := repo.Create(context.Background(), tk); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return tk
}

func mustClaim(t *testing.T, repo *ticket.Repository, worker string) *ticket.Ticket {
	t.Helper()
	tk, err := repo.ClaimNextQueued(context.Background(), worker)
	if err != nil {
		t.Fatalf("ClaimNextQueued: %v", err)
	}
	if tk == nil {
		t.Fatal("ClaimNextQueued returned no ticket")
	}
	return tk
}

// ──────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────

func TestCreateAndFind(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		ctx := context.Background()
		entityID := id.NewEntityID()
		tk := ticket.New(entityID, "abcd1234")
		if err := repo.Create(ctx, tk); err != nil {
			t.Fatalf("Create: %v", err)
		}

		got, err := repo.FindByID(ctx, tk.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if got == nil || got.Status != enrich.StatusQueued || got.TraceID != "abcd1234" {
			t.Fatalf("unexpected ticket %+v", got)
		}

		byEntity, err := repo.FindByEntityID(ctx, entityID)
		if err != nil {
			t.Fatalf("FindByEntityID: %v", err)
		}
		if byEntity == nil || byEntity.ID.String() != tk.ID.String() {
			t.Errorf("FindByEntityID returned %+v", byEntity)
		}

		if missing, err := repo.FindByID(ctx, id.NewTicketID()); err != nil || missing != nil {
			t.Errorf("FindByID(unknown) = %+v, %v; want nil, nil", missing, err)
		}
		if missing, err := repo.FindByEntityID(ctx, id.NewEntityID()); err != nil || missing != nil {
			t.Errorf("FindByEntityID(unknown) = %+v, %v; want nil, nil", missing, err)
		}
	})
}

func TestCreateRejectsInvalid(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		ctx := context.Background()
		taken := mustCreate(t, repo)

		processing := ticket.New(id.NewEntityID(), "")
		processing.Status = enrich.StatusProcessing
		retried := ticket.New(id.NewEntityID(), "")
		retried.RetryCount = 1

		tests := []struct {
			name string
			tk   *ticket.Ticket
		}{
			{"no entity", &ticket.Ticket{ID: id.NewTicketID(), Status: enrich.StatusQueued}},
			{"no id", &ticket.Ticket{EntityID: id.NewEntityID(), Status: enrich.StatusQueued}},
			{"not queued", processing},
			{"retried", retried},
			{"second ticket for entity", ticket.New(taken.EntityID, "")},
		}

		for _, tt := range tests {
			if err := repo.Create(ctx, tt.tk); !errors.Is(err, enrich.ErrInvalidTicket) {
				t.Errorf("%s: expected ErrInvalidTicket, got %v", tt.name, err)
			}
		}

		counts, err := repo.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		if counts.Total != 1 {
			t.Errorf("expected 1 ticket after rejected creates, got %d", counts.Total)
		}
	})
}

// ──────────────────────────────────────────────────
// Claiming
// ──────────────────────────────────────────────────

func TestClaimEmptyQueue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		tk, err := repo.ClaimNextQueued(context.Background(), "w-1")
		if err != nil {
			t.Fatalf("ClaimNextQueued: %v", err)
		}
		if tk != nil {
			t.Errorf("expected no ticket, got %+v", tk)
		}
	})
}

func TestClaimSetsLease(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, clk *clock) {
		created := mustCreate(t, repo)
		claimed := mustClaim(t, repo, "w-1")

		if claimed.ID.String() != created.ID.String() {
			t.Fatalf("claimed %s, want %s", claimed.ID, created.ID)
		}
		if claimed.Status != enrich.StatusProcessing || claimed.WorkerID != "w-1" {
			t.Errorf("unexpected claim %+v", claimed)
		}
		if claimed.ClaimedAt == nil || !claimed.ClaimedAt.Equal(clk.Now()) {
			t.Errorf("ClaimedAt = %v, want %v", claimed.ClaimedAt, clk.Now())
		}

		again, err := repo.ClaimNextQueued(context.Background(), "w-2")
		if err != nil {
			t.Fatalf("second claim: %v", err)
		}
		if again != nil {
			t.Errorf("a processing ticket was claimed twice: %+v", again)
		}
	})
}

func TestClaimOrder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		var want []string
		for range 3 {
			want = append(want, mustCreate(t, repo).ID.String())
			time.Sleep(2 * time.Millisecond)
		}
		for i, w := range want {
			if got := mustClaim(t, repo, "w").ID.String(); got != w {
				t.Errorf("claim %d = %s, want %s", i, got, w)
			}
		}
	})
}

// An index entry whose ticket is gone or no longer queued is skipped and
// removed by the next claim.
func TestClaimSkipsStaleIndexEntries(t *testing.T) {
	t.Parallel()
	s := memory.New()
	defer s.Close()
	ctx := context.Background()
	repo := ticket.NewRepository(s)

	done := mustCreate(t, repo)
	mustClaim(t, repo, "w")
	if _, err := repo.Complete(ctx, done.ID, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	phantom := id.NewTicketID()
	time.Sleep(2 * time.Millisecond)
	live := mustCreate(t, repo)

	index := kv.NewTable[bool]("ticket-queue-index")
	err := s.Update(ctx, func(tx kv.Tx) error {
		v := true
		if err := index.Put(tx, done.ID.Key(), &v); err != nil {
			return err
		}
		return index.Put(tx, phantom.Key(), &v)
	})
	if err != nil {
		t.Fatalf("seed stale entries: %v", err)
	}

	next := mustClaim(t, repo, "w")
	if next.ID.String() != live.ID.String() {
		t.Errorf("claimed %s, want %s", next.ID, live.ID)
	}

	var left int
	err = s.View(ctx, func(tx kv.Tx) error {
		return index.Each(tx, func([]byte, *bool) error {
			left++
			return nil
		})
	})
	if err != nil {
		t.Fatalf("scan index: %v", err)
	}
	if left != 0 {
		t.Errorf("%d stale index entries survived the claim", left)
	}
}

// N tickets claimed by M concurrent callers: every ticket exactly once.
func TestClaimAtMostOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		const (
			tickets = 40
			workers = 8
		)
		for range tickets {
			mustCreate(t, repo)
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]string)
			dup  []string
			wg   sync.WaitGroup
		)
		errs := make(chan error, workers)

		for w := range workers {
			wg.Add(1)
			go func(worker string) {
				defer wg.Done()
				for {
					tk, err := repo.ClaimNextQueued(context.Background(), worker)
					if err != nil {
						errs <- err
						return
					}
					if tk == nil {
						return
					}
					mu.Lock()
					if prev, ok := seen[tk.ID.String()]; ok {
						dup = append(dup, tk.ID.String()+" by "+prev+" and "+worker)
					}
					seen[tk.ID.String()] = worker
					mu.Unlock()
				}
			}(string(rune('a' + w)))
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Fatalf("claim error: %v", err)
		}
		if len(dup) > 0 {
			t.Fatalf("tickets claimed more than once: %v", dup)
		}
		if len(seen) != tickets {
			t.Errorf("claimed %d distinct tickets, want %d", len(seen), tickets)
		}
	})
}

// ──────────────────────────────────────────────────
// Write-back
// ──────────────────────────────────────────────────

func TestCompleteRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, clk *clock) {
		ctx := context.Background()
		created := mustCreate(t, repo)
		mustClaim(t, repo, "w")
		clk.Advance(time.Second)

		result := json.RawMessage(`{"title":"Sparrow","extract":"A small bird."}`)
		done, err := repo.Complete(ctx, created.ID, result)
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if done.Status != enrich.StatusCompleted {
			t.Errorf("status = %s, want completed", done.Status)
		}

		got, err := repo.FindByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if string(got.Result) != string(result) {
			t.Errorf("Result = %s, want %s", got.Result, result)
		}
		if got.CompletedAt == nil || !got.CompletedAt.Equal(clk.Now()) {
			t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, clk.Now())
		}

		// Re-completing overwrites.
		if _, err := repo.Complete(ctx, created.ID, json.RawMessage(`"second"`)); err != nil {
			t.Fatalf("re-Complete: %v", err)
		}
		got, _ = repo.FindByID(ctx, created.ID)
		if string(got.Result) != `"second"` {
			t.Errorf("Result after re-complete = %s", got.Result)
		}
	})
}

func TestWriteBackTransitions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		ctx := context.Background()

		queued := mustCreate(t, repo)
		if _, err := repo.Complete(ctx, queued.ID, nil); !errors.Is(err, enrich.ErrInvalidTransition) {
			t.Errorf("Complete(queued): expected ErrInvalidTransition, got %v", err)
		}

		mustClaim(t, repo, "w")
		failed, err := repo.Fail(ctx, queued.ID)
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if failed.Status != enrich.StatusFailed || failed.RetryCount != 0 || failed.CompletedAt == nil {
			t.Errorf("unexpected failed ticket %+v", failed)
		}
		if _, err := repo.Complete(ctx, queued.ID, nil); !errors.Is(err, enrich.ErrInvalidTransition) {
			t.Errorf("Complete(failed): expected ErrInvalidTransition, got %v", err)
		}
		if _, err := repo.Fail(ctx, queued.ID); err != nil {
			t.Errorf("repeating Fail should succeed, got %v", err)
		}

		if tk, err := repo.Complete(ctx, id.NewTicketID(), nil); err != nil || tk != nil {
			t.Errorf("Complete(unknown) = %+v, %v; want nil, nil", tk, err)
		}
		if tk, err := repo.Fail(ctx, id.NewTicketID()); err != nil || tk != nil {
			t.Errorf("Fail(unknown) = %+v, %v; want nil, nil", tk, err)
		}
	})
}

// ──────────────────────────────────────────────────
// Reclamation
// ──────────────────────────────────────────────────

const lease = 30 * time.Second

func TestReclaimRetryPath(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, clk *clock) {
		ctx := context.Background()
		created := mustCreate(t, repo)
		mustClaim(t, repo, "crashed-worker")

		clk.Advance(lease)
		n, err := repo.ReclaimStaleTickets(ctx, lease, 3)
		if err != nil {
			t.Fatalf("ReclaimStaleTickets: %v", err)
		}
		if n != 1 {
			t.Fatalf("requeued %d, want 1", n)
		}

		got, _ := repo.FindByID(ctx, created.ID)
		if got.Status != enrich.StatusQueued || got.RetryCount != 1 {
			t.Errorf("after reclaim: status %s retry %d, want queued 1", got.Status, got.RetryCount)
		}
		if got.WorkerID != "" || got.ClaimedAt != nil {
			t.Errorf("claim not cleared: worker %q claimedAt %v", got.WorkerID, got.ClaimedAt)
		}

		again := mustClaim(t, repo, "healthy-worker")
		if again.ID.String() != created.ID.String() {
			t.Errorf("reclaimed ticket not claimable again, got %s", again.ID)
		}
	})
}

func TestReclaimExhaustion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, clk *clock) {
		ctx := context.Background()
		created := mustCreate(t, repo)

		const maxRetries = 2
		for i := range maxRetries {
			mustClaim(t, repo, "w")
			clk.Advance(lease)
			n, err := repo.ReclaimStaleTickets(ctx, lease, maxRetries)
			if err != nil {
				t.Fatalf("reclaim %d: %v", i, err)
			}
			if n != 1 {
				t.Fatalf("reclaim %d requeued %d, want 1", i, n)
			}
		}

		mustClaim(t, repo, "w")
		clk.Advance(lease)
		res, err := repo.Sweep(ctx, lease, maxRetries)
		if err != nil {
			t.Fatalf("Sweep: %v", err)
		}
		if len(res.Requeued) != 0 || len(res.Exhausted) != 1 {
			t.Fatalf("sweep requeued %d exhausted %d, want 0 and 1", len(res.Requeued), len(res.Exhausted))
		}

		got, _ := repo.FindByID(ctx, created.ID)
		if got.Status != enrich.StatusFailed || got.RetryCount != maxRetries || got.CompletedAt == nil {
			t.Errorf("after exhaustion: %+v", got)
		}
		if tk, _ := repo.ClaimNextQueued(ctx, "w"); tk != nil {
			t.Errorf("exhausted ticket was requeued: %+v", tk)
		}
	})
}

func TestReclaimIgnoresFreshAndIdle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, clk *clock) {
		ctx := context.Background()
		claimed := mustCreate(t, repo)
		mustClaim(t, repo, "w")
		queued := mustCreate(t, repo)

		clk.Advance(lease - time.Millisecond)
		n, err := repo.ReclaimStaleTickets(ctx, lease, 3)
		if err != nil {
			t.Fatalf("ReclaimStaleTickets: %v", err)
		}
		if n != 0 {
			t.Errorf("requeued %d, want 0", n)
		}

		got, _ := repo.FindByID(ctx, claimed.ID)
		if got.Status != enrich.StatusProcessing || got.RetryCount != 0 {
			t.Errorf("fresh claim disturbed: %+v", got)
		}
		got, _ = repo.FindByID(ctx, queued.ID)
		if got.Status != enrich.StatusQueued || got.RetryCount != 0 {
			t.Errorf("queued ticket disturbed: %+v", got)
		}
	})
}

func TestCounts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *ticket.Repository, _ *clock) {
		ctx := context.Background()
		for range 4 {
			mustCreate(t, repo)
		}
		done := mustClaim(t, repo, "w")
		if _, err := repo.Complete(ctx, done.ID, nil); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		bad := mustClaim(t, repo, "w")
		if _, err := repo.Fail(ctx, bad.ID); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		mustClaim(t, repo, "w")

		got, err := repo.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		want := ticket.Counts{Queued: 1, Processing: 1, Completed: 1, Failed: 1, Total: 4}
		if got != want {
			t.Errorf("Counts = %+v, want %+v", got, want)
		}
	})
}

func TestDurableAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	quiet := badger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	s, err := badger.Open(dir, quiet)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	repo := ticket.NewRepository(s)
	for range 3 {
		mustCreate(t, repo)
		time.Sleep(2 * time.Millisecond)
	}
	completed := mustClaim(t, repo, "w-0")
	if _, err := repo.Complete(ctx, completed.ID, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	processing := mustClaim(t, repo, "w-1")

	before, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(before) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(before))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = badger.Open(dir, quiet)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	repo = ticket.NewRepository(s)

	var queued *ticket.Ticket
	for _, want := range before {
		got, err := repo.FindByID(ctx, want.ID)
		if err != nil || got == nil {
			t.Fatalf("FindByID(%s) after reopen: %+v, %v", want.ID, got, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s ticket changed across reopen:\n got %+v\nwant %+v", want.Status, got, want)
		}
		if want.Status == enrich.StatusQueued {
			queued = want
		}
	}

	got, _ := repo.FindByID(ctx, processing.ID)
	if got.Status != enrich.StatusProcessing || got.WorkerID != "w-1" || got.ClaimedAt == nil ||
		!got.ClaimedAt.Equal(*processing.ClaimedAt) {
		t.Errorf("processing claim not durable: %+v", got)
	}

	next := mustClaim(t, repo, "w-2")
	if queued == nil || next.ID.String() != queued.ID.String() {
		t.Errorf("queue index not durable: claimed %s, want %v", next.ID, queued)
	}
}

// countingStore records how many entries each transaction reads.
type countingStore struct {
	kv.Store
	mu     sync.Mutex
	reads  int
	ranges int
}

func (c *countingStore) Update(ctx context.Context, fn func(kv.Tx) error) error {
	return c.Store.Update(ctx, func(tx kv.Tx) error {
		return fn(&countingTx{Tx: tx, c: c})
	})
}

func (c *countingStore) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads, c.ranges = 0, 0
}

func (c *countingStore) counts() (reads, ranges int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads, c.ranges
}

type countingTx struct {
	kv.Tx
	c *countingStore
}

func (t *countingTx) add(reads, ranges int) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.c.reads += reads
	t.c.ranges += ranges
}

func (t *countingTx) Get(table string, key []byte) ([]byte, error) {
	t.add(1, 0)
	return t.Tx.Get(table, key)
}

func (t *countingTx) Seek(table string, from []byte) ([]byte, []byte, error) {
	t.add(1, 0)
	return t.Tx.Seek(table, from)
}

func (t *countingTx) Range(table string, fn func(key, value []byte) error) error {
	t.add(0, 1)
	return t.Tx.Range(table, func(key, value []byte) error {
		t.add(1, 0)
		return fn(key, value)
	})
}

func TestClaimCostIndependentOfQueueDepth(t *testing.T) {
	t.Parallel()
	const depth = 2000

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			inner := b.open(t)
			t.Cleanup(func() { _ = inner.Close() })
			s := &countingStore{Store: inner}
			repo := ticket.NewRepository(s)

			for range depth {
				mustCreate(t, repo)
			}

			for i := range 5 {
				s.reset()
				mustClaim(t, repo, "w")
				reads, ranges := s.counts()
				if ranges != 0 {
					t.Errorf("claim %d ran %d full-table ranges", i, ranges)
				}
				if reads > 4 {
					t.Errorf("claim %d read %d entries from a queue of %d", i, reads, depth-i)
				}
			}

			c, err := repo.Counts(ctx)
			if err != nil {
				t.Fatalf("Counts: %v", err)
			}
			if c.Processing != 5 || c.Queued != depth-5 {
				t.Errorf("unexpected counts %+v", c)
			}
		})
	}
}
