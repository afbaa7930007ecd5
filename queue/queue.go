package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/fence"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/internal/hazard"
	"github.com/gogpu/cmdemu/internal/statecache"
	"github.com/gogpu/cmdemu/native"
	"github.com/gogpu/cmdemu/recording"
	"github.com/gogpu/cmdemu/resource"
)

var (
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("queue: closed")

	// ErrNoContext is returned by New without a native context.
	ErrNoContext = errors.New("queue: native context is nil")
)

// Config configures a queue.
type Config struct {
	ID    resource.QueueID
	Label string

	// Context is the native immediate context the queue replays into.
	Context native.Immediate
	Table   *resource.Table
	// Arena is shared by all queues of a device.
	Arena *hazard.Arena
	// Health is shared by all queues of a device. Nil gives the queue its
	// own.
	Health *Health

	// Barriers realizes state transitions. Nil uses
	// native.DefaultBarrierTable.
	Barriers *native.BarrierTable
	// Limits sizes the state cache slot tables.
	Limits descriptor.Limits

	// Deferred is the number of deferred contexts replaying buffers
	// concurrently. Zero replays on the immediate context.
	Deferred int
	// MaxInFlight bounds deferred submissions waiting for execution.
	// Zero means twice Deferred.
	MaxInFlight int
}

// Submission is one call to Submit.
type Submission struct {
	Buffers []*recording.CommandBuffer
	// Wait semaphores are consumed before replay starts.
	Wait []*fence.Semaphore
	// Signal is signaled after all buffers executed.
	Signal *fence.Semaphore
	// Fence is signaled after all buffers executed.
	Fence *fence.Fence
}

// Presenter is the swapchain collaborator.
type Presenter interface {
	Present(image resource.Handle, object resource.Native) error
}

// Queue is a submission engine bound to one native immediate context.
type Queue struct {
	cfg    Config
	health *Health

	// submitMu orders submissions from planning to replay or enqueue.
	submitMu sync.Mutex
	// ctxMu guards the immediate context and its cache.
	ctxMu sync.Mutex
	cache *statecache.Cache

	mu      sync.Mutex
	refs    map[resource.Handle]int
	pending map[hazard.SubmissionID]Submission
	closed  bool
	idle    sync.WaitGroup

	// Deferred mode.
	workers  chan *worker
	inflight *semaphore.Weighted
	jobs     chan *job
	done     chan struct{}
}

// New creates a queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Context == nil {
		return nil, ErrNoContext
	}
	if cfg.Table == nil {
		return nil, recording.ErrNilTable
	}
	if cfg.Arena == nil {
		cfg.Arena = hazard.NewArena(cfg.Table)
	}
	if cfg.Health == nil {
		cfg.Health = new(Health)
	}
	if cfg.Barriers == nil {
		cfg.Barriers = native.DefaultBarrierTable()
	}
	if cfg.Limits == (descriptor.Limits{}) {
		cfg.Limits = descriptor.DefaultLimits()
	}
	if cfg.ID == resource.NoQueue {
		cfg.ID = 1
	}
	q := &Queue{
		cfg:     cfg,
		health:  cfg.Health,
		cache:   statecache.New(cfg.Context, cfg.Limits),
		refs:    make(map[resource.Handle]int),
		pending: make(map[hazard.SubmissionID]Submission),
	}
	if cfg.Deferred > 0 {
		if err := q.startDeferred(); err != nil {
			return nil, err
		}
	}
	q.health.OnLoss(q.lose)
	logger().Info("queue: created", "queue", cfg.ID, "label", cfg.Label, "deferred", cfg.Deferred)
	return q, nil
}

// ID returns the queue ID.
func (q *Queue) ID() resource.QueueID { return q.cfg.ID }

// Label returns the debug label.
func (q *Queue) Label() string { return q.cfg.Label }

// Context returns the native immediate context.
func (q *Queue) Context() native.Immediate { return q.cfg.Context }

// Health returns the device health shared by the queue.
func (q *Queue) Health() *Health { return q.health }

// CacheStats returns the immediate context's state cache counters.
func (q *Queue) CacheStats() statecache.Stats {
	q.ctxMu.Lock()
	defer q.ctxMu.Unlock()
	return q.cache.Stats()
}

// Submit submits buffers for execution. See the package documentation for
// the failure model.
func (q *Queue) Submit(ctx context.Context, s Submission) error {
	if err := q.health.Err(); err != nil {
		return err
	}
	if q.isClosed() {
		return ErrClosed
	}
	if err := q.admit(s.Buffers); err != nil {
		return err
	}
	if s.Fence != nil {
		if err := s.Fence.Arm(); err != nil {
			return err
		}
	}
	reject := func(err error) error {
		if s.Fence != nil {
			s.Fence.Disarm()
		}
		return err
	}

	q.submitMu.Lock()
	defer q.submitMu.Unlock()
	if q.isClosed() {
		return reject(ErrClosed)
	}

	// Waits come first so that the plan sees the work they order after.
	if err := waitAll(ctx, s.Wait); err != nil {
		return reject(err)
	}
	unwait := func(err error) error {
		return reject(errors.Join(err, signalAll(s.Wait)))
	}

	seqs := make([]hazard.Sequence, len(s.Buffers))
	for i, cb := range s.Buffers {
		seqs[i] = cb
	}
	id, plans, err := q.cfg.Arena.Plan(q.cfg.ID, seqs...)
	if err != nil {
		for i, p := range plans {
			if p == nil {
				s.Buffers[i].Invalidate(err, false)
			}
		}
		logger().Warn("queue: submission rejected", "queue", q.cfg.ID, "err", err)
		return unwait(err)
	}
	abort := func(err error) error {
		q.cfg.Arena.Retire(id)
		return unwait(err)
	}

	if q.inflight != nil {
		if err := q.inflight.Acquire(ctx, 1); err != nil {
			return abort(fmt.Errorf("queue: %w: %w", hal.ErrTimeout, err))
		}
	}
	for i, cb := range s.Buffers {
		if err := cb.MarkPending(); err != nil {
			// Raced with another submission of the same buffer.
			for _, done := range s.Buffers[:i] {
				done.Unmark()
			}
			if q.inflight != nil {
				q.inflight.Release(1)
			}
			return abort(err)
		}
	}
	q.track(id, s)

	if q.inflight != nil {
		return q.submitDeferred(ctx, id, s, plans)
	}

	q.ctxMu.Lock()
	var lost error
	for i, cb := range s.Buffers {
		replay(q.cache, q.cfg.Table, q.cfg.Barriers, cb, plans[i])
		if lost = q.cfg.Context.Status(); lost != nil {
			break
		}
	}
	q.ctxMu.Unlock()
	if lost != nil {
		q.health.Fail(lost)
		return q.health.Err()
	}
	return q.finish(id)
}

// waitAll consumes every semaphore in sems. On failure the signals already
// consumed are restored.
func waitAll(ctx context.Context, sems []*fence.Semaphore) error {
	for i, sem := range sems {
		if err := sem.Wait(ctx); err != nil {
			return errors.Join(err, signalAll(sems[:i]))
		}
	}
	return nil
}

// signalAll signals every semaphore in sems.
func signalAll(sems []*fence.Semaphore) error {
	var errs []error
	for _, sem := range sems {
		if err := sem.Signal(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// admit checks the buffers of a submission before anything is changed.
func (q *Queue) admit(buffers []*recording.CommandBuffer) error {
	var errs []error
	seen := make(map[*recording.CommandBuffer]bool, len(buffers))
	for _, cb := range buffers {
		if seen[cb] {
			errs = append(errs, fmt.Errorf("queue: %q submitted twice: %w", cb.Label(), hal.ErrInvalidState))
			continue
		}
		seen[cb] = true
		if st := cb.Status(); st != recording.StatusExecutable {
			errs = append(errs, fmt.Errorf("queue: %q is %s: %w", cb.Label(), st, hal.ErrInvalidState))
			continue
		}
		if err := cb.Validate(); err != nil {
			cb.Invalidate(err, false)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// track records an accepted submission as pending.
func (q *Queue) track(id hazard.SubmissionID, s Submission) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cb := range s.Buffers {
		for _, h := range cb.Resources() {
			q.refs[h]++
		}
	}
	q.pending[id] = s
	q.idle.Add(1)
}

// untrack removes a pending submission. It reports false if the
// submission was already resolved.
func (q *Queue) untrack(id hazard.SubmissionID) (Submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.pending[id]
	if !ok {
		return Submission{}, false
	}
	delete(q.pending, id)
	q.release(s)
	q.idle.Done()
	return s, true
}

func (q *Queue) release(s Submission) {
	for _, cb := range s.Buffers {
		for _, h := range cb.Resources() {
			if q.refs[h]--; q.refs[h] <= 0 {
				delete(q.refs, h)
			}
		}
	}
}

// finish commits an executed submission and resolves its primitives.
func (q *Queue) finish(id hazard.SubmissionID) error {
	s, ok := q.untrack(id)
	if !ok {
		return q.health.Err()
	}
	err := q.cfg.Arena.Complete(id)
	for _, cb := range s.Buffers {
		cb.Complete()
	}
	if s.Signal != nil {
		err = errors.Join(err, s.Signal.Signal())
	}
	if s.Fence != nil {
		s.Fence.Signal()
	}
	logger().Debug("queue: submission complete", "queue", q.cfg.ID, "submission", id, "buffers", len(s.Buffers))
	return err
}

// fail resolves a pending submission that could not be executed.
func (q *Queue) fail(id hazard.SubmissionID, err error) {
	s, ok := q.untrack(id)
	if !ok {
		return
	}
	q.cfg.Arena.Retire(id)
	for _, cb := range s.Buffers {
		cb.Invalidate(err, true)
	}
	if s.Fence != nil {
		s.Fence.Disarm()
	}
}

// lose resolves everything pending on the queue after device loss.
func (q *Queue) lose(err error) {
	q.cfg.Arena.RetireAll()

	q.mu.Lock()
	pending := q.pending
	q.pending = make(map[hazard.SubmissionID]Submission)
	clear(q.refs)
	for range pending {
		q.idle.Done()
	}
	q.mu.Unlock()

	for _, s := range pending {
		if s.Fence != nil {
			s.Fence.Lose()
		}
		for _, cb := range s.Buffers {
			cb.Invalidate(err, true)
		}
	}
	logger().Warn("queue: device lost", "queue", q.cfg.ID, "err", err, "pending", len(pending))
}

// InUse reports whether h is referenced by a pending submission.
func (q *Queue) InUse(h resource.Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.refs[h] > 0
}

// WaitIdle blocks until every accepted submission has executed.
func (q *Queue) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.idle.Wait()
		close(done)
	}()
	select {
	case <-done:
		return q.health.Err()
	case <-ctx.Done():
		return fmt.Errorf("queue: wait idle: %w: %w", hal.ErrTimeout, ctx.Err())
	}
}

// Present transitions image to the Present state and hands it to p once
// the queue is idle.
func (q *Queue) Present(ctx context.Context, p Presenter, image resource.Handle) error {
	if err := q.health.Err(); err != nil {
		return err
	}
	info, err := q.cfg.Table.Lookup(image)
	if err != nil {
		return fmt.Errorf("queue: present: %w", err)
	}
	if info.Kind != resource.KindImage {
		return fmt.Errorf("queue: present %s: %w", info.Kind, resource.ErrWrongKind)
	}
	if err := q.WaitIdle(ctx); err != nil {
		return err
	}

	q.submitMu.Lock()
	defer q.submitMu.Unlock()
	id, plans, err := q.cfg.Arena.Plan(q.cfg.ID, presentSequence(image))
	if err != nil {
		return err
	}
	q.ctxMu.Lock()
	for _, b := range plans[0].Pre[0] {
		realize(q.cache, q.cfg.Table, q.cfg.Barriers, b)
	}
	status := q.cfg.Context.Status()
	q.ctxMu.Unlock()
	if status != nil {
		q.health.Fail(status)
		return q.health.Err()
	}
	if err := q.cfg.Arena.Complete(id); err != nil {
		return err
	}
	logger().Debug("queue: present", "queue", q.cfg.ID, "image", image)
	return p.Present(image, info.Native)
}

// Close waits for pending work and stops the deferred worker.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	q.idle.Wait()
	if q.jobs != nil {
		q.submitMu.Lock()
		close(q.jobs)
		q.submitMu.Unlock()
		<-q.done
	}
	logger().Info("queue: closed", "queue", q.cfg.ID)
	return nil
}

// presentSequence is a one-command sequence reading an image in the
// Present state.
type presentSequence resource.Handle

func (presentSequence) Label() string { return "present" }
func (presentSequence) Len() int      { return 1 }

func (presentSequence) Command(int) recording.Command {
	return recording.InsertDebugMarker{Label: "present"}
}

func (p presentSequence) Uses(int) []recording.Use {
	return []recording.Use{{
		Resource: resource.Handle(p),
		State:    hal.StatePresent,
		Access:   hal.AccessRead,
		Stage:    hal.StageBottomOfPipe,
	}}
}

func (presentSequence) Barriers(int) []recording.Barrier { return nil }
