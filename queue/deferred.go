package queue

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/internal/hazard"
	"github.com/gogpu/cmdemu/internal/statecache"
	"github.com/gogpu/cmdemu/native"
)

// worker is a deferred context with its own state cache.
type worker struct {
	ctx   native.DeferredContext
	cache *statecache.Cache
}

// job is a replayed submission waiting for execution.
type job struct {
	id    hazard.SubmissionID
	lists []native.CommandList
}

func (q *Queue) startDeferred() error {
	n := q.cfg.Deferred
	q.workers = make(chan *worker, n)
	for range n {
		dc, err := q.cfg.Context.NewDeferred()
		if err != nil {
			return fmt.Errorf("queue: deferred context: %w", err)
		}
		q.workers <- &worker{ctx: dc, cache: statecache.New(dc, q.cfg.Limits)}
	}
	limit := q.cfg.MaxInFlight
	if limit <= 0 {
		limit = 2 * n
	}
	q.inflight = semaphore.NewWeighted(int64(limit))
	q.jobs = make(chan *job, limit)
	q.done = make(chan struct{})
	go q.execute()
	return nil
}

// submitDeferred replays the buffers of a tracked submission into command
// lists and hands them to the executor. The caller holds submitMu and one
// inflight unit.
func (q *Queue) submitDeferred(ctx context.Context, id hazard.SubmissionID, s Submission, plans []*hazard.Plan) error {
	lists := make([]native.CommandList, len(s.Buffers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.cfg.Deferred)
	for i, cb := range s.Buffers {
		g.Go(func() error {
			var w *worker
			select {
			case w = <-q.workers:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { q.workers <- w }()

			replay(w.cache, q.cfg.Table, q.cfg.Barriers, cb, plans[i])
			list, err := w.ctx.FinishCommandList(cb.Label())
			w.cache.Invalidate()
			if err != nil {
				return fmt.Errorf("queue: finish %q: %w", cb.Label(), err)
			}
			lists[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		q.inflight.Release(1)
		if errors.Is(err, hal.ErrDeviceLost) {
			q.health.Fail(err)
			return q.health.Err()
		}
		q.fail(id, err)
		logger().Warn("queue: deferred replay failed", "queue", q.cfg.ID, "submission", id, "err", err)
		return err
	}
	q.jobs <- &job{id: id, lists: lists}
	return nil
}

// execute runs command lists on the immediate context in submission order.
func (q *Queue) execute() {
	defer close(q.done)
	for j := range q.jobs {
		q.run(j)
		q.inflight.Release(1)
	}
}

func (q *Queue) run(j *job) {
	if q.health.Err() != nil {
		return
	}
	q.ctxMu.Lock()
	var lost error
	for _, l := range j.lists {
		if err := q.cfg.Context.ExecuteCommandList(l); err != nil {
			lost = err
			break
		}
		if lost = q.cfg.Context.Status(); lost != nil {
			break
		}
	}
	// Executing a list leaves the immediate context's bindings undefined.
	q.cache.Invalidate()
	q.ctxMu.Unlock()

	if lost != nil {
		q.health.Fail(lost)
		return
	}
	if err := q.finish(j.id); err != nil {
		logger().Error("queue: complete submission", "queue", q.cfg.ID, "submission", j.id, "err", err)
	}
}
