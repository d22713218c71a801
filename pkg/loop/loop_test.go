package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	l := New(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		if err := l.Post(func() { got = append(got, i) }); err != nil {
			t.Fatalf("post failed: %v", err)
		}
	}
	// close and wait
	l.Close()

	if len(got) != 50 {
		t.Fatalf("expected 50 tasks executed, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order (got %d)", i, v)
		}
	}
}

func TestDeferRunsAfterCurrentTask(t *testing.T) {
	l := New(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	var order []string
	err := l.Do(ctx, func() {
		l.Defer(func() {
			order = append(order, "frame")
			l.Defer(func() { order = append(order, "nested frame") })
		})
		order = append(order, "task")
	})
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	want := []string{"task", "frame", "nested frame"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestPostAfterClose(t *testing.T) {
	l := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	l.Close()
	cancel()
	if err := l.Post(func() {}); err != ErrLoopClosed {
		t.Fatalf("expected ErrLoopClosed, got %v", err)
	}
}

func TestBlockedPostReturnsOnClose(t *testing.T) {
	l := New(1, nil)
	// don't start the loop so the second Post blocks when the queue is full
	if err := l.Post(func() {}); err != nil {
		t.Fatalf("setup post failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.Post(func() {})
	}()

	// give the goroutine time to block on the full queue
	time.Sleep(10 * time.Millisecond)
	l.Close()

	if err := <-done; err != ErrLoopClosed {
		t.Fatalf("expected ErrLoopClosed, got %v", err)
	}
}

func TestAfterFuncStop(t *testing.T) {
	l := New(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	var fired int32
	tm := l.AfterFunc(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	if !tm.Stop() {
		t.Fatal("expected Stop to report a pending timer")
	}
	if tm.Stop() {
		t.Fatal("second Stop should report nothing pending")
	}

	ran := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("timer task never ran")
	}
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("stopped timer fired")
	}
}

func TestPanickingTaskDoesNotStopLoop(t *testing.T) {
	l := New(4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if err := l.Do(ctx, func() { panic("boom") }); err != nil {
		t.Fatalf("do failed: %v", err)
	}
	ok := false
	if err := l.Do(ctx, func() { ok = true }); err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if !ok {
		t.Fatal("loop stopped after a panicking task")
	}
}

func TestContextCancellationStopsLoop(t *testing.T) {
	l := New(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)

	cancel()
	done := make(chan struct{}, 1)
	go func() {
		l.Close()
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("Close blocked after context cancellation")
	}
}
