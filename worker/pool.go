package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/enrich/entity"
	"github.com/xraph/enrich/id"
	"github.com/xraph/enrich/job"
	"github.com/xraph/enrich/ticket"
)

// Pool runs a fixed number of independent loops. Loops share nothing but
// the store; claim correctness comes from the store's write serialization.
type Pool struct {
	workerID id.WorkerID
	loops    []*Loop
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	abort   context.CancelFunc
	done    chan struct{}
	err     error
}

// NewPool creates a pool of loops named "<pool-id>-<n>".
func NewPool(
	tickets *ticket.Repository,
	entities *entity.Repository,
	handler job.HandlerFunc,
	opts ...Option,
) *Pool {
	s := defaultSettings()
	s.apply(opts)

	p := &Pool{
		workerID: id.NewWorkerID(),
		logger:   s.logger,
	}
	for n := range s.concurrency {
		name := fmt.Sprintf("%s-%d", p.workerID, n)
		p.loops = append(p.loops, newLoop(name, tickets, entities, handler, s))
	}
	return p
}

// WorkerID returns the pool's identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Loops returns the pool's loops.
func (p *Pool) Loops() []*Loop { return p.loops }

// Start launches the loops and returns immediately. Cancelling ctx stops
// the loops the same way Stop does, without a deadline.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", len(p.loops)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	abortCtx, abort := context.WithCancel(context.Background())
	p.cancel, p.abort = cancel, abort
	p.done = make(chan struct{})
	p.err = nil

	g, gctx := errgroup.WithContext(runCtx)
	for _, l := range p.loops {
		g.Go(func() error { return l.run(gctx, abortCtx) })
	}

	done := p.done
	go func() {
		err := g.Wait()
		if err != nil {
			p.logger.Error("worker pool stopped on storage failure",
				slog.String("worker_id", p.workerID.String()),
				slog.String("error", err.Error()),
			)
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		cancel()
		abort()
		close(done)
	}()

	return nil
}

// Stop signals every loop to stop after its current ticket and waits for
// them. If ctx expires first, in-flight attempts are cancelled and their
// tickets are left processing for lease reclamation. Stop returns the
// storage error that stopped a loop, if any.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, abort, done := p.cancel, p.abort, p.done
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	cancel()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling in-flight tickets")
		abort()
		<-done
	}

	return p.Err()
}

// Wait blocks until every loop has returned and reports the storage error
// that stopped the pool, if any. It returns nil immediately when the pool
// was never started.
func (p *Pool) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	return p.Err()
}

// Err returns the error that stopped the last run, if any.
func (p *Pool) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
