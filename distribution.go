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

import "context"

/*********
 * Ucast *
 *********/

// UnicastCallbacks notifies a composite operator (publish, a multicaster
// wrapper, ...) of the three events it needs to request more upstream work
// (§4.4.4 "ucast" — "notifies a listener on {disposed, demand_changed,
// consumed_some(old, new)}").
type UnicastCallbacks struct {
	OnDisposed      func()
	OnDemandChanged func(old, new uint64)
	OnConsumedSome  func(old, new uint64)
}

// Unicast is a single-subscriber hot source with a buffered queue: Push
// either delivers immediately (demand available) or buffers, and a second
// Subscribe is refused with ErrTooManyObservers rather than replacing the
// first (§4.4.4 "ucast").
type Unicast[T any] struct {
	coordinator *Coordinator
	callbacks   UnicastCallbacks

	subscribed  bool
	observer    Observer[T]
	ctx         context.Context
	sub         *subscription
	disposedRan bool

	buffer    []T
	terminal  bool
	completed bool
	err       error
}

// NewUnicast builds an empty Unicast bound to coordinator.
func NewUnicast[T any](coordinator *Coordinator, callbacks UnicastCallbacks) *Unicast[T] {
	return &Unicast[T]{coordinator: coordinator, callbacks: callbacks}
}

// Subscribe implements the func(ctx, Observer[T]) Disposable shape expected
// by NewObservable, so u.Subscribe can be passed straight to
// FromSubscribeFunc (see AsObservable).
func (u *Unicast[T]) Subscribe(ctx context.Context, destination Observer[T]) Disposable {
	if u.subscribed {
		sub := NewNoopSubscription()
		destination.OnSubscribeWithContext(ctx, sub)
		u.coordinator.Delay(func() { destination.OnErrorWithContext(ctx, ErrTooManyObservers) })

		return sub
	}

	u.subscribed = true
	u.observer = destination
	u.ctx = ctx

	sub := NewSubscription(u.coordinator, SubscriptionCallbacks{
		OnDemand: func(n uint64) { u.onDemandChanged(n) },
		OnCancel: func() { u.runDisposedCallback() },
		OnDispose: func() {
			u.runDisposedCallback()
			destination.OnErrorWithContext(ctx, ErrDisposed)
		},
	})

	u.sub, _ = sub.(*subscription)
	destination.OnSubscribeWithContext(ctx, sub)
	u.drain()

	return sub
}

// AsObservable exposes this Unicast as a cold-looking Observable; subscribing
// twice still only ever serves the first caller.
func (u *Unicast[T]) AsObservable() Observable[T] { return FromSubscribeFunc(u.Subscribe) }

// Push enqueues item, delivering it immediately if the subscriber already has
// outstanding demand.
func (u *Unicast[T]) Push(item T) {
	if u.terminal {
		return
	}

	u.buffer = append(u.buffer, item)
	u.drain()
}

// Close terminates the source with a normal completion once the buffer has
// drained.
func (u *Unicast[T]) Close() {
	if u.terminal {
		return
	}

	u.terminal = true
	u.completed = true
	u.drain()
}

// Abort terminates the source with err once the buffer has drained.
func (u *Unicast[T]) Abort(err error) {
	if u.terminal {
		return
	}

	u.terminal = true
	u.err = err
	u.drain()
}

func (u *Unicast[T]) onDemandChanged(n uint64) {
	if u.sub != nil && u.callbacks.OnDemandChanged != nil {
		newDemand := u.sub.Demand()
		u.callbacks.OnDemandChanged(newDemand-n, newDemand)
	}

	u.drain()
}

func (u *Unicast[T]) runDisposedCallback() {
	if u.disposedRan {
		return
	}

	u.disposedRan = true

	if u.callbacks.OnDisposed != nil {
		u.callbacks.OnDisposed()
	}
}

func (u *Unicast[T]) drain() {
	if u.sub == nil {
		return
	}

	before := len(u.buffer)

	for len(u.buffer) > 0 && u.sub.Demand() > 0 {
		v := u.buffer[0]
		u.buffer = u.buffer[1:]
		u.sub.Consume(1)
		u.observer.OnNextWithContext(u.ctx, v)
	}

	if after := len(u.buffer); before != after && u.callbacks.OnConsumedSome != nil {
		u.callbacks.OnConsumedSome(uint64(before), uint64(after))
	}

	if len(u.buffer) == 0 && u.terminal {
		u.terminal = false // emit exactly once

		if u.err != nil {
			err := u.err
			u.coordinator.Delay(func() { u.observer.OnErrorWithContext(u.ctx, err) })
		} else if u.completed {
			u.coordinator.Delay(func() { u.observer.OnCompleteWithContext(u.ctx) })
		}
	}
}

/*********
 * Mcast *
 *********/

type mcastSubscriber[T any] struct {
	sub       *subscription
	observer  Observer[T]
	ctx       context.Context
	queue     []T
	terminal  bool
	completed bool
	err       error
}

// Multicast is mcast<T>: every subscriber owns its own deque, demand counter
// and terminal state; PushAll fans an item out to every currently-attached
// subscriber independently (§4.4.4 "mcast").
type Multicast[T any] struct {
	coordinator *Coordinator
	subscribers []*mcastSubscriber[T]
	closed      bool
	err         error
}

// NewMulticast builds an empty Multicast bound to coordinator.
func NewMulticast[T any](coordinator *Coordinator) *Multicast[T] {
	return &Multicast[T]{coordinator: coordinator}
}

func (m *Multicast[T]) Subscribe(ctx context.Context, destination Observer[T]) Disposable {
	state := &mcastSubscriber[T]{observer: destination, ctx: ctx}

	sub := NewSubscription(m.coordinator, SubscriptionCallbacks{
		OnDemand: func(n uint64) { m.drainOne(state) },
		OnCancel: func() { m.remove(state) },
		OnDispose: func() {
			m.remove(state)
			destination.OnErrorWithContext(ctx, ErrDisposed)
		},
	})

	state.sub, _ = sub.(*subscription)
	destination.OnSubscribeWithContext(ctx, sub)

	if m.closed || m.err != nil {
		state.terminal = true
		state.completed = m.closed
		state.err = m.err
	} else {
		m.subscribers = append(m.subscribers, state)
	}

	m.drainOne(state)

	return sub
}

// AsObservable exposes this Multicast as an Observable; every Subscribe call
// attaches a new independent subscriber.
func (m *Multicast[T]) AsObservable() Observable[T] { return FromSubscribeFunc(m.Subscribe) }

// PushAll enqueues item on every currently-attached subscriber.
func (m *Multicast[T]) PushAll(item T) {
	if m.closed || m.err != nil {
		return
	}

	for _, s := range m.subscribers {
		s.queue = append(s.queue, item)
		m.drainOne(s)
	}
}

// Close terminates every attached subscriber (and all future ones) with a
// normal completion.
func (m *Multicast[T]) Close() {
	if m.closed || m.err != nil {
		return
	}

	m.closed = true

	for _, s := range m.subscribers {
		s.terminal = true
		s.completed = true
		m.drainOne(s)
	}
}

// Abort terminates every attached subscriber (and all future ones) with err.
func (m *Multicast[T]) Abort(err error) {
	if m.closed || m.err != nil {
		return
	}

	m.err = err

	for _, s := range m.subscribers {
		s.terminal = true
		s.err = err
		m.drainOne(s)
	}
}

// CountObservers reports how many subscribers are currently attached.
func (m *Multicast[T]) CountObservers() int { return len(m.subscribers) }

func (m *Multicast[T]) remove(state *mcastSubscriber[T]) {
	for i, s := range m.subscribers {
		if s == state {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

func (m *Multicast[T]) drainOne(s *mcastSubscriber[T]) {
	if s.sub == nil {
		return
	}

	for len(s.queue) > 0 && s.sub.Demand() > 0 {
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.sub.Consume(1)
		s.observer.OnNextWithContext(s.ctx, v)
	}

	if len(s.queue) == 0 && s.terminal {
		s.terminal = false

		if s.err != nil {
			err := s.err
			m.coordinator.Delay(func() { s.observer.OnErrorWithContext(s.ctx, err) })
		} else if s.completed {
			m.coordinator.Delay(func() { s.observer.OnCompleteWithContext(s.ctx) })
		}
	}
}

/***************
 * Multicaster *
 ***************/

// Multicaster is the ergonomic handle of §4.4.4 ("multicaster<T>: an
// ergonomic handle owning an mcast; closes on destruction"). Go has no
// destructors, so the owner is expected to call Dispose explicitly (e.g. from
// its own DoFinally/teardown) instead of relying on GC finalization.
type Multicaster[T any] struct {
	mcast *Multicast[T]
}

// NewMulticaster builds a Multicaster bound to coordinator.
func NewMulticaster[T any](coordinator *Coordinator) *Multicaster[T] {
	return &Multicaster[T]{mcast: NewMulticast[T](coordinator)}
}

// Observable exposes the underlying broadcast stream.
func (m *Multicaster[T]) Observable() Observable[T] { return m.mcast.AsObservable() }

// Push broadcasts item to every current subscriber.
func (m *Multicaster[T]) Push(item T) { m.mcast.PushAll(item) }

// CountObservers reports how many subscribers are currently attached.
func (m *Multicaster[T]) CountObservers() int { return m.mcast.CountObservers() }

// Dispose closes the underlying mcast with a normal completion.
func (m *Multicaster[T]) Dispose() { m.mcast.Close() }

// Disposed reports whether the multicaster has already been closed or
// aborted.
func (m *Multicaster[T]) Disposed() bool { return m.mcast.closed || m.mcast.err != nil }

var _ Disposable = (*Multicaster[int])(nil)
