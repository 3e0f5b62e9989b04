package crawler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/scopecrawl/internal/frontier"
	"github.com/nao1215/scopecrawl/internal/model"
)

// noticeBuffer is the per-worker capacity of the discovery queue.
const noticeBuffer = 64

// Observer is called once for every newly discovered address, always from the
// scheduler's own goroutine. It should return quickly.
type Observer func(model.Address)

// Task processes one claimed address. It reports each new discovery through
// notify and must leave the address in the frontier's bookkeeping (success or
// failure) before returning.
type Task func(ctx context.Context, addr model.Address, notify func(model.Address))

// Scheduler drains a Frontier with at most N concurrent workers.
//
// The main loop claims work while slots are free, then blocks until a worker
// finishes or reports a discovery, and forwards every queued discovery to the
// observer without blocking. It ends when nothing is pending and no worker is
// running, or, after Stop, when the running workers have finished.
type Scheduler struct {
	frontier *frontier.Frontier
	workers  int
	task     Task
	logger   *slog.Logger
	stopped  atomic.Bool
}

// NewScheduler creates a scheduler. workers below 1 is treated as 1.
func NewScheduler(f *frontier.Frontier, workers int, task Task, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		frontier: f,
		workers:  workers,
		task:     task,
		logger:   logger,
	}
}

// Stop prevents new work from being dispatched. Workers already running are
// not interrupted and finish their address.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Stopped reports whether Stop was called.
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}

// Run drives the crawl until the frontier is quiescent or the scheduler is
// stopped. Cancelling ctx has the same effect as Stop; workers run with a
// context detached from ctx so they complete their bookkeeping.
func (s *Scheduler) Run(ctx context.Context, observer Observer) {
	if observer == nil {
		observer = func(model.Address) {}
	}

	workCtx := context.WithoutCancel(ctx)

	notices := make(chan model.Address, s.workers*noticeBuffer)
	done := make(chan struct{}, s.workers)
	notify := func(addr model.Address) { notices <- addr }

	var g errgroup.Group
	g.SetLimit(s.workers)

	active := 0
	for {
		for active < s.workers && !s.halted(ctx) {
			addr, ok := s.frontier.ClaimNext()
			if !ok {
				break
			}
			active++
			s.logger.Debug("dispatch", "url", addr.URL(), "active", active)
			g.Go(func() error {
				defer func() { done <- struct{}{} }()
				s.task(workCtx, addr, notify)
				return nil
			})
		}

		if active == 0 && (s.halted(ctx) || s.frontier.IsQuiescent(active)) {
			break
		}

		// Workers only block on a full notices queue, which this select drains.
		select {
		case <-done:
			active--
		case addr := <-notices:
			observer(addr)
		}
		drain(notices, observer)
	}

	_ = g.Wait() //nolint:errcheck // tasks never return errors
	drain(notices, observer)
}

// halted reports whether dispatch must end, turning a cancelled ctx into Stop.
func (s *Scheduler) halted(ctx context.Context) bool {
	if ctx.Err() != nil {
		s.Stop()
	}
	return s.stopped.Load()
}

// drain forwards every queued discovery without blocking.
func drain(notices <-chan model.Address, observer Observer) {
	for {
		select {
		case addr := <-notices:
			observer(addr)
		default:
			return
		}
	}
}
