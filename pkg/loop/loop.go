// Package loop provides the single-threaded event loop every page-side
// component runs on. All DOM mutation happens inside tasks executed one at a
// time by one goroutine, so components never need their own locking.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// Timer is a cancellable delayed task.
type Timer interface {
	// Stop cancels the task. It reports whether the task was still pending.
	Stop() bool
}

// Scheduler is what page components need from the loop: a way to run work
// after the current task (the next frame) and a way to run work later.
type Scheduler interface {
	Defer(Task)
	AfterFunc(d time.Duration, t Task) Timer
}

// Loop runs tasks serially on a single goroutine.
type Loop struct {
	tasks   chan Task
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
	wg      sync.WaitGroup

	// frame holds tasks deferred to the next frame. Only touched on the loop goroutine.
	frame []Task

	logger *zap.Logger
}

// New creates a loop with the given queue capacity. Call Start before posting.
func New(queue int, logger *zap.Logger) *Loop {
	if queue <= 0 {
		queue = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		tasks:  make(chan Task, queue),
		done:   make(chan struct{}),
		logger: logger.Named("loop"),
	}
}

// Start launches the loop goroutine. It runs until ctx is done or Close is called.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.done:
				l.drain()
				return
			case task := <-l.tasks:
				l.run(task)
				l.flushFrame()
			}
		}
	}()
}

func (l *Loop) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", zap.Any("panic", r))
		}
	}()
	task()
}

// drain runs whatever was queued before Close.
func (l *Loop) drain() {
	for {
		select {
		case task := <-l.tasks:
			l.run(task)
			l.flushFrame()
		default:
			return
		}
	}
}

// flushFrame runs tasks deferred by the task that just finished. Tasks deferred
// while flushing run in the same pass, like chained animation frames.
func (l *Loop) flushFrame() {
	for len(l.frame) > 0 {
		pending := l.frame
		l.frame = nil
		for _, t := range pending {
			l.run(t)
		}
	}
}

// Post enqueues a task. Returns ErrLoopClosed if the loop is closed.
// Post must not be called from the loop goroutine when the queue may be full; use Defer there.
func (l *Loop) Post(t Task) error {
	return l.PostCtx(context.Background(), t)
}

// PostCtx enqueues a task but returns promptly if ctx is canceled or the loop closes.
func (l *Loop) PostCtx(ctx context.Context, t Task) error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return ErrLoopClosed
	}
	// Hold the lock only for the non-blocking attempt so Close is never stuck behind a full queue.
	select {
	case l.tasks <- t:
		l.closeMu.Unlock()
		return nil
	default:
	}
	l.closeMu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopClosed
	case l.tasks <- t:
		return nil
	}
}

// Do posts t and waits until it has run, including any frame work it deferred.
func (l *Loop) Do(ctx context.Context, t Task) error {
	if err := l.PostCtx(ctx, t); err != nil {
		return err
	}
	// Frames are flushed before the next task, so a sentinel task marks completion.
	ran := make(chan struct{})
	if err := l.PostCtx(ctx, func() { close(ran) }); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// Close drains queued tasks, so the sentinel may still have run.
		select {
		case <-ran:
			return nil
		default:
			return ErrLoopClosed
		}
	}
}

// Defer schedules t to run after the current task. Only call it from the loop goroutine.
func (l *Loop) Defer(t Task) {
	l.frame = append(l.frame, t)
}

// AfterFunc posts t to the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, t Task) Timer {
	lt := &timer{}
	lt.t = time.AfterFunc(d, func() {
		err := l.Post(func() {
			// Stop may have been called after the timer fired but before the task ran.
			if lt.stopped.Load() {
				return
			}
			t()
		})
		if err != nil {
			l.logger.Debug("dropping timer task", zap.Error(err))
		}
	})
	return lt
}

type timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (t *timer) Stop() bool {
	wasPending := !t.stopped.Swap(true)
	return t.t.Stop() && wasPending
}

// Close stops accepting tasks, runs the tasks already queued and waits for the loop goroutine.
// The task channel is never closed, so a concurrent PostCtx cannot panic.
func (l *Loop) Close() {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.closeMu.Unlock()
	l.wg.Wait()
}

// ErrLoopClosed is returned if a task is posted after Close.
var ErrLoopClosed = &LoopError{"event loop closed"}

// LoopError provides a simple typed error for loop operations.
type LoopError struct{ msg string }

func (e *LoopError) Error() string { return e.msg }
