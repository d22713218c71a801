// Package looptest provides a deterministic Scheduler for tests.
package looptest

import (
	"sort"
	"time"

	"github.com/japaniel/annotator/pkg/loop"
)

// Manual is a loop.Scheduler driven by the test: deferred tasks run on Flush
// and timers fire on Advance. It is not safe for concurrent use.
type Manual struct {
	now    time.Duration
	frame  []loop.Task
	timers []*manualTimer
	seq    int
}

var _ loop.Scheduler = (*Manual)(nil)

type manualTimer struct {
	at      time.Duration
	seq     int
	task    loop.Task
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// Defer queues t for the next Flush.
func (m *Manual) Defer(t loop.Task) {
	m.frame = append(m.frame, t)
}

// AfterFunc schedules t to fire once the clock has advanced by d.
func (m *Manual) AfterFunc(d time.Duration, t loop.Task) loop.Timer {
	m.seq++
	mt := &manualTimer{at: m.now + d, seq: m.seq, task: t}
	m.timers = append(m.timers, mt)
	return mt
}

// Flush runs deferred tasks until none remain.
func (m *Manual) Flush() {
	for len(m.frame) > 0 {
		pending := m.frame
		m.frame = nil
		for _, t := range pending {
			t()
		}
	}
}

// Advance moves the clock forward, firing due timers in deadline order and
// flushing deferred work after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.at
		next.fired = true
		next.task()
		m.Flush()
	}
	m.now = target
}

func (m *Manual) nextDue(limit time.Duration) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at != m.timers[j].at {
			return m.timers[i].at < m.timers[j].at
		}
		return m.timers[i].seq < m.timers[j].seq
	})
	if len(m.timers) == 0 || m.timers[0].at > limit {
		return nil
	}
	return m.timers[0]
}

// PendingTimers reports how many timers are still armed.
func (m *Manual) PendingTimers() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}
