// Package pool runs per-file match jobs on a bounded goroutine pool with a
// deadline per job.
package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/michaelscutari/seek/internal/entry"
)

const (
	MinWorkers = 1
	MaxWorkers = 32
)

var (
	ErrPoolClosed    = errors.New("worker pool is shut down")
	ErrTaskTimeout   = errors.New("task exceeded its deadline")
	ErrTaskCancelled = errors.New("task cancelled before start")
)

// TaskFunc does the work for one file. It should honour ctx where it can;
// when it does not, the pool abandons it at the deadline.
type TaskFunc func(ctx context.Context) (*entry.MatchResult, error)

// Job is one unit submitted to the pool.
type Job struct {
	Path    string
	Timeout time.Duration
	Run     TaskFunc
}

type pending struct {
	job    Job
	future *Future
}

// Pool dispatches jobs to an ants pool. Submit never blocks: jobs wait in an
// unbounded backlog until a worker is free, and that backlog is what
// Shutdown(true) cancels.
type Pool struct {
	workers *ants.Pool
	size    int

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []*pending
	closed  bool

	cancelled atomic.Bool
	timedOut  atomic.Int64

	doneMu    sync.Mutex
	completed []*Future
	ready     chan struct{}

	running        sync.WaitGroup
	dispatcherDone chan struct{}
	releaseOnce    sync.Once
}

// ClampWorkers bounds n to [MinWorkers, MaxWorkers].
func ClampWorkers(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// New creates a pool of size workers, clamped to [1,32].
func New(size int) (*Pool, error) {
	size = ClampWorkers(size)
	workers, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logrus.WithField("panic", v).Error("worker panic")
	}))
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	p := &Pool{
		workers:        workers,
		size:           size,
		ready:          make(chan struct{}, 1),
		dispatcherDone: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.dispatch()
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// TimedOut returns how many jobs were abandoned at their deadline.
func (p *Pool) TimedOut() int64 {
	return p.timedOut.Load()
}

// Submit queues job and returns its future. It fails with ErrPoolClosed
// after Shutdown.
func (p *Pool) Submit(job Job) (*Future, error) {
	f := newFuture(job.Path)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.backlog = append(p.backlog, &pending{job: job, future: f})
	p.mu.Unlock()
	p.cond.Signal()
	return f, nil
}

// Shutdown stops accepting jobs. With cancelPending, queued jobs that have
// not started resolve with ErrTaskCancelled; running jobs continue until
// they finish or hit their deadline. Shutdown does not wait.
func (p *Pool) Shutdown(cancelPending bool) {
	p.mu.Lock()
	p.closed = true
	var dropped []*pending
	if cancelPending {
		p.cancelled.Store(true)
		dropped = p.backlog
		p.backlog = nil
	}
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, pd := range dropped {
		p.finish(pd.future, nil, ErrTaskCancelled)
	}
}

// Release shuts the pool down, waits for dispatched jobs to settle and frees
// the ants workers.
func (p *Pool) Release() {
	p.Shutdown(false)
	<-p.dispatcherDone
	p.running.Wait()
	p.releaseOnce.Do(p.workers.Release)
}

// Ready is signalled whenever futures have completed since the last call to
// Completed.
func (p *Pool) Ready() <-chan struct{} {
	return p.ready
}

// Completed returns and clears the futures resolved so far, in completion order.
func (p *Pool) Completed() []*Future {
	p.doneMu.Lock()
	defer p.doneMu.Unlock()
	out := p.completed
	p.completed = nil
	return out
}

func (p *Pool) dispatch() {
	defer close(p.dispatcherDone)
	for {
		p.mu.Lock()
		for len(p.backlog) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.backlog) == 0 {
			p.mu.Unlock()
			return
		}
		next := p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		p.running.Add(1)
		// ants blocks here while every worker is busy.
		if err := p.workers.Submit(func() {
			defer p.running.Done()
			p.run(next)
		}); err != nil {
			p.running.Done()
			p.finish(next.future, nil, fmt.Errorf("%w: %v", ErrPoolClosed, err))
		}
	}
}

func (p *Pool) run(pd *pending) {
	if p.cancelled.Load() {
		p.finish(pd.future, nil, ErrTaskCancelled)
		return
	}
	r, err := execute(pd.job)
	if errors.Is(err, ErrTaskTimeout) {
		p.timedOut.Add(1)
	}
	p.finish(pd.future, r, err)
}

func (p *Pool) finish(f *Future, r *entry.MatchResult, err error) {
	if !f.resolve(r, err) {
		return
	}
	p.doneMu.Lock()
	p.completed = append(p.completed, f)
	p.doneMu.Unlock()
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// RunInline executes job on the calling goroutine with the same deadline
// handling the pool applies. It is the fallback when no pool is available.
func RunInline(job Job) (*entry.MatchResult, error) {
	return execute(job)
}

type outcome struct {
	result *entry.MatchResult
	err    error
}

func execute(job Job) (*entry.MatchResult, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if job.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				ch <- outcome{err: fmt.Errorf("task panic on %s: %v", job.Path, v)}
			}
		}()
		r, err := job.Run(ctx)
		ch <- outcome{result: r, err: err}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-ctx.Done():
		logrus.WithFields(logrus.Fields{
			"file":    filepath.Clean(job.Path),
			"timeout": job.Timeout,
		}).Warn("file task timed out, abandoning")
		return nil, fmt.Errorf("%s: %w", job.Path, ErrTaskTimeout)
	}
}
