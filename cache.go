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
	"context"
	"math"
)

// DefaultCacheCapacity is cache's initial upstream request window when the
// caller passes 0 (§4.4.4 "cache" — "default initial capacity 64").
const DefaultCacheCapacity = 64

type historySubscriber[T any] struct {
	sub      *subscription
	observer Observer[T]
	ctx      context.Context
	replayed int
}

// historyObservable backs both cache and replay: it subscribes to source at
// most once, appends every event (on_next, on_error, on_complete) to an
// append-only history, and replays that history from index 0 to every new
// subscriber before switching them to live delivery (§4.4.4 "cache",
// "replay").
type historyObservable[T any] struct {
	coordinator *Coordinator
	source      Observable[T]
	windowed    bool // true for cache (bounded request window), false for replay (unbounded)
	window      int

	subscribed bool
	upstream   Subscription

	history []Notification[T]
	done    bool

	subscribers []*historySubscriber[T]
}

func newHistoryObservable[T any](coordinator *Coordinator, source Observable[T], windowed bool, window int) *historyObservable[T] {
	return &historyObservable[T]{coordinator: coordinator, source: source, windowed: windowed, window: window}
}

// Cache appends every event from source into an unbounded, append-only
// history, requesting capacity items at a time from source (0 uses
// DefaultCacheCapacity) rather than asking for everything up front. New
// subscribers replay the full recorded history honoring their own demand,
// then receive live events; a subscriber that disposes stops receiving
// without affecting any other subscriber.
func Cache[T any](coordinator *Coordinator, source Observable[T], capacity int) Observable[T] {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}

	h := newHistoryObservable[T](coordinator, source, true, capacity)

	return FromSubscribeFunc(h.Subscribe)
}

// Replay behaves like Cache but is always eagerly subscribed (subscribing to
// the returned Observable is not what triggers the upstream subscription)
// and requests everything from source up front. Once a terminal event has
// been recorded, Done reports true and every future subscriber receives the
// full history followed immediately by that terminal (§4.4.4 "replay").
func Replay[T any](coordinator *Coordinator, source Observable[T]) *ReplayObservable[T] {
	h := newHistoryObservable[T](coordinator, source, false, 0)
	h.ensureSubscribed()

	return &ReplayObservable[T]{h: h}
}

// ReplayObservable is the handle Replay returns; unlike Cache's plain
// Observable[T] it exposes Done so callers can check whether the terminal
// event has already landed without subscribing.
type ReplayObservable[T any] struct {
	h *historyObservable[T]
}

func (r *ReplayObservable[T]) Subscribe(destination Observer[T]) Disposable {
	return r.h.Subscribe(context.Background(), destination)
}

func (r *ReplayObservable[T]) SubscribeWithContext(ctx context.Context, destination Observer[T]) Disposable {
	return r.h.Subscribe(ctx, destination)
}

// Done reports whether the underlying source has already reached a terminal
// event.
func (r *ReplayObservable[T]) Done() bool { return r.h.done }

var _ Observable[int] = (*ReplayObservable[int])(nil)

func (h *historyObservable[T]) ensureSubscribed() {
	if h.subscribed {
		return
	}

	h.subscribed = true

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) { h.record(ctx, NewNotificationNext(v)) },
		func(ctx context.Context, err error) { h.record(ctx, NewNotificationError[T](err)) },
		func(ctx context.Context) { h.record(ctx, NewNotificationComplete[T]()) },
	)

	d := h.source.SubscribeWithContext(context.Background(), observer)

	u, ok := d.(Subscription)
	if !ok {
		return
	}

	h.upstream = u

	if h.windowed {
		u.Request(uint64(h.window))
	} else {
		u.Request(math.MaxUint64)
	}
}

func (h *historyObservable[T]) record(ctx context.Context, n Notification[T]) {
	if h.done {
		return
	}

	h.history = append(h.history, n)

	if n.IsTerminal() {
		h.done = true
	} else if h.windowed && h.upstream != nil {
		h.upstream.Request(1)
	}

	for _, s := range h.subscribers {
		h.drainOne(s)
	}
}

func (h *historyObservable[T]) Subscribe(ctx context.Context, destination Observer[T]) Disposable {
	h.ensureSubscribed()

	state := &historySubscriber[T]{observer: destination, ctx: ctx}

	sub := NewSubscription(h.coordinator, SubscriptionCallbacks{
		OnDemand: func(n uint64) { h.drainOne(state) },
		OnCancel: func() { h.remove(state) },
		OnDispose: func() {
			h.remove(state)
			destination.OnErrorWithContext(ctx, ErrDisposed)
		},
	})

	state.sub, _ = sub.(*subscription)
	destination.OnSubscribeWithContext(ctx, sub)

	h.subscribers = append(h.subscribers, state)
	h.drainOne(state)

	return sub
}

func (h *historyObservable[T]) remove(state *historySubscriber[T]) {
	for i, s := range h.subscribers {
		if s == state {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

func (h *historyObservable[T]) drainOne(s *historySubscriber[T]) {
	if s.sub == nil {
		return
	}

	for s.replayed < len(h.history) {
		n := h.history[s.replayed]

		if !n.IsTerminal() && s.sub.Demand() == 0 {
			break
		}

		s.replayed++

		if !n.IsTerminal() {
			s.sub.Consume(1)
		}

		n.deliverToWithContext(s.ctx, s.observer)

		if n.IsTerminal() {
			return
		}
	}
}
