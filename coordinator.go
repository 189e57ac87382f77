// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"container/heap"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/actor-framework/actor-framework-sub007/internal/fclock"
	"github.com/actor-framework/actor-framework-sub007/internal/fsync"
)

var (
	coordinatorQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flow_coordinator_queue_depth",
			Help: "Number of actions currently queued on a coordinator, by queue kind.",
		},
		[]string{"coordinator", "queue"},
	)

	coordinatorWatchedDisposables = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flow_coordinator_watched_disposables",
			Help: "Number of disposables a coordinator is watching to stay alive.",
		},
		[]string{"coordinator"},
	)
)

func init() {
	prometheus.MustRegister(coordinatorQueueDepth)
	prometheus.MustRegister(coordinatorWatchedDisposables)
}

// timer is one entry of the coordinator's delayed priority queue, ordered by
// deadline (§3 "priority queue of delayed actions (by deadline)").
type timer struct {
	deadline time.Time
	action   *Action
	index    int
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }
func (q timerQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }
func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]

	return t
}

// Coordinator is the single-threaded cooperative execution context described
// in §3/§4.1: one per actor, it owns a monotonic clock, an immediate action
// queue, a deadline-ordered delayed queue, and a set of watched disposables
// that keep the event loop alive. Every callback into an operator (on_next,
// on_error, on_complete, request, cancel) runs on whichever goroutine drives
// Drain; Schedule is the only entry point safe to call from another thread.
type Coordinator struct {
	name  string
	clock fclock.Clock

	crossThread fsync.Mutex
	inbox       []*Action // filled by Schedule from any goroutine, drained into immediate

	immediate []*Action // same-thread queue: post_internally, delay
	timers    timerQueue

	watched []Disposable

	stopped atomic.Bool
}

// NewCoordinator creates a Coordinator driven by clock. name identifies it in
// metrics and should be stable and low-cardinality (e.g. the owning actor's
// type name), not a per-instance unique id.
func NewCoordinator(name string, clock fclock.Clock) *Coordinator {
	if clock == nil {
		clock = fclock.System{}
	}

	return &Coordinator{
		name:        name,
		clock:       clock,
		crossThread: fsync.NewStdMutex(),
	}
}

// SteadyTime returns the coordinator's current monotonic reading, used by
// timing operators (debounce, sample, interval) to compute deadlines.
func (c *Coordinator) SteadyTime() time.Time { return c.clock.Now() }

// Schedule enqueues action for execution on this coordinator's thread of
// control. Safe to call from any goroutine; this is the only entry point
// async resources and other coordinators may use to cross into this one.
func (c *Coordinator) Schedule(action func()) Disposable {
	a := NewAction(action)

	if c.stopped.Load() {
		a.Dispose()
		return a
	}

	c.crossThread.Lock()
	c.inbox = append(c.inbox, a)
	depth := len(c.inbox)
	c.crossThread.Unlock()

	coordinatorQueueDepth.WithLabelValues(c.name, "inbox").Set(float64(depth))

	return a
}

// PostInternally is the fast path for same-thread posting: it must only be
// called from inside a callback already running on this coordinator.
func (c *Coordinator) PostInternally(action func()) Disposable {
	a := NewAction(action)
	c.immediate = append(c.immediate, a)
	coordinatorQueueDepth.WithLabelValues(c.name, "immediate").Set(float64(len(c.immediate)))

	return a
}

// Delay is the same as PostInternally but documents the intent: break
// re-entrancy by guaranteeing action runs only after the current callback has
// returned to Drain. Operators use this to call on_error/on_complete on an
// observer without re-entering the observer's own stack frame.
func (c *Coordinator) Delay(action func()) Disposable {
	return c.PostInternally(action)
}

// DelayFn is an alias of Delay used by operators that trampoline
// continuation-style logic (retry, prefix_and_tail) instead of recursing.
func (c *Coordinator) DelayFn(fn func()) Disposable {
	return c.Delay(fn)
}

// DelayUntil schedules action to run once the coordinator's clock reaches
// deadline. Disposing the returned Disposable before the deadline cancels it.
func (c *Coordinator) DelayUntil(deadline time.Time, action func()) Disposable {
	a := NewAction(action)

	if c.stopped.Load() {
		a.Dispose()
		return a
	}

	heap.Push(&c.timers, &timer{deadline: deadline, action: a})
	coordinatorQueueDepth.WithLabelValues(c.name, "timers").Set(float64(c.timers.Len()))

	return a
}

// Watch keeps the coordinator's Drain loop reporting work available until d
// becomes disposed (§4.1 "watch(disposable): keeps the event loop alive until
// d.disposed()"). Used by sources and sinks so the owning actor's event loop
// knows not to go idle while a subscription is still live.
func (c *Coordinator) Watch(d Disposable) {
	if d == nil || d.Disposed() {
		return
	}

	c.watched = append(c.watched, d)
	coordinatorWatchedDisposables.WithLabelValues(c.name).Set(float64(len(c.watched)))
}

// AddChild allocates an operator owned by this coordinator. Go forbids
// additional type parameters on methods, so unlike the spec's
// add_child<Op>(args...) this is expressed the idiomatic way: operator
// constructors (NewMapObservable, NewMergeObservable, ...) simply take the
// Coordinator as their first argument. AddChild exists for the subset of
// construction that also needs lifecycle tracking: it both returns d and
// starts watching it.
func (c *Coordinator) AddChild(d Disposable) Disposable {
	c.Watch(d)
	return d
}

// HasPendingWork reports whether Drain would have anything to do right now or
// in the future: a non-empty queue, a pending timer, or a watched disposable
// still alive. The owning actor's event loop uses this to decide whether it
// may go idle.
func (c *Coordinator) HasPendingWork() bool {
	if len(c.immediate) > 0 || c.timers.Len() > 0 {
		return true
	}

	c.crossThread.Lock()
	pendingInbox := len(c.inbox) > 0
	c.crossThread.Unlock()

	if pendingInbox {
		return true
	}

	for _, d := range c.watched {
		if !d.Disposed() {
			return true
		}
	}

	return false
}

// Drain runs one pass of the coordinator's event loop: it pulls everything
// queued via Schedule into the same-thread queue, runs every immediately
// runnable action (including ones enqueued by actions that ran earlier in
// this same pass, so Delay-posted continuations execute promptly), fires
// every timer whose deadline has elapsed, and prunes disposed watches. It
// must only ever be invoked from the coordinator's own thread of control,
// typically by the owning actor between processing mailbox messages.
func (c *Coordinator) Drain() {
	c.crossThread.Lock()
	inbox := c.inbox
	c.inbox = nil
	c.crossThread.Unlock()

	if len(inbox) > 0 {
		c.immediate = append(c.immediate, inbox...)
	}

	for len(c.immediate) > 0 {
		batch := c.immediate
		c.immediate = nil

		for _, a := range batch {
			a.Run()
		}
	}

	coordinatorQueueDepth.WithLabelValues(c.name, "immediate").Set(0)
	coordinatorQueueDepth.WithLabelValues(c.name, "inbox").Set(0)

	now := c.clock.Now()

	for c.timers.Len() > 0 && !c.timers[0].deadline.After(now) {
		t := heap.Pop(&c.timers).(*timer)
		t.action.Run()
	}

	coordinatorQueueDepth.WithLabelValues(c.name, "timers").Set(float64(c.timers.Len()))

	if len(c.watched) > 0 {
		alive := c.watched[:0]

		for _, d := range c.watched {
			if !d.Disposed() {
				alive = append(alive, d)
			}
		}

		c.watched = alive
		coordinatorWatchedDisposables.WithLabelValues(c.name).Set(float64(len(c.watched)))
	}
}

// Stop disposes every pending immediate, inbox and timer action and clears
// the watch set, then refuses further scheduling. Bound to the owning
// actor's lifetime: Stop runs when the actor is destroyed (§3 Coordinator
// "Lifetime: bound to the owning actor; destroyed with it").
func (c *Coordinator) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	c.crossThread.Lock()
	inbox := c.inbox
	c.inbox = nil
	c.crossThread.Unlock()

	for _, a := range inbox {
		a.Dispose()
	}

	for _, a := range c.immediate {
		a.Dispose()
	}

	c.immediate = nil

	for c.timers.Len() > 0 {
		t := heap.Pop(&c.timers).(*timer)
		t.action.Dispose()
	}

	for _, d := range c.watched {
		d.Dispose()
	}

	c.watched = nil

	coordinatorQueueDepth.WithLabelValues(c.name, "inbox").Set(0)
	coordinatorQueueDepth.WithLabelValues(c.name, "immediate").Set(0)
	coordinatorQueueDepth.WithLabelValues(c.name, "timers").Set(0)
	coordinatorWatchedDisposables.WithLabelValues(c.name).Set(0)
}

// Stopped reports whether Stop has run.
func (c *Coordinator) Stopped() bool { return c.stopped.Load() }
