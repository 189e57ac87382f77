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

// DefaultPublishBuffer is publish's internal credit ceiling when the caller
// passes 0 for maxBuf.
const DefaultPublishBuffer = 64

// ConnectableObservable is publish<T>'s shape (§4.4.4 "publish"): subscribing
// only registers an observer, Connect subscribes the operator itself to the
// underlying source.
type ConnectableObservable[T any] interface {
	Observable[T]
	// Connect subscribes to the underlying source, if it hasn't already.
	// Repeated calls are no-ops that return the same Disposable.
	Connect() Disposable
}

type connectableObservable[T any] struct {
	coordinator *Coordinator
	source      Observable[T]
	maxBuf      int
	threshold   int

	subscribers []*mcastSubscriber[T]
	closed      bool
	err         error

	connected bool
	upstream  Subscription
	inFlight  uint64
}

// Publish wraps source so that subscribing only attaches an observer; the
// source itself is subscribed once, on the first Connect call. Input flow
// from source is bounded by maxBuf (0 uses DefaultPublishBuffer) and topped
// up once at least threshold slots are free (0 uses a quarter of maxBuf). Free
// slots are counted against the subscriber with the most items still queued,
// so the slowest subscriber gates the input (§4.4.4 "publish").
func Publish[T any](coordinator *Coordinator, source Observable[T], maxBuf int, threshold int) ConnectableObservable[T] {
	if maxBuf <= 0 {
		maxBuf = DefaultPublishBuffer
	}

	if threshold <= 0 {
		threshold = maxBuf / 4
		if threshold == 0 {
			threshold = 1
		}
	}

	return &connectableObservable[T]{coordinator: coordinator, source: source, maxBuf: maxBuf, threshold: threshold}
}

func (c *connectableObservable[T]) Subscribe(destination Observer[T]) Disposable {
	return c.SubscribeWithContext(context.Background(), destination)
}

func (c *connectableObservable[T]) SubscribeWithContext(ctx context.Context, destination Observer[T]) Disposable {
	state := &mcastSubscriber[T]{observer: destination, ctx: ctx}

	sub := NewSubscription(c.coordinator, SubscriptionCallbacks{
		OnDemand: func(n uint64) {
			c.drainOne(state)
			c.maybeRequestMore()
		},
		OnCancel: func() { c.remove(state) },
		OnDispose: func() {
			c.remove(state)
			destination.OnErrorWithContext(ctx, ErrDisposed)
		},
	})

	state.sub, _ = sub.(*subscription)
	destination.OnSubscribeWithContext(ctx, sub)

	if c.closed || c.err != nil {
		state.terminal = true
		state.completed = c.closed
		state.err = c.err
	} else {
		c.subscribers = append(c.subscribers, state)
	}

	c.drainOne(state)

	return sub
}

// Connect subscribes the publish operator to its source, if it hasn't
// already. The returned Disposable also satisfies Subscription, so callers
// composing publish with other operators can still forward demand through it.
func (c *connectableObservable[T]) Connect() Disposable {
	if c.connected {
		if c.upstream != nil {
			return c.upstream
		}

		return NoopDisposable()
	}

	c.connected = true

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			if c.inFlight > 0 {
				c.inFlight--
			}

			c.pushAll(v)
			c.maybeRequestMore()
		},
		func(ctx context.Context, err error) {
			c.err = err
			for _, s := range c.subscribers {
				s.terminal = true
				s.err = err
				c.drainOne(s)
			}
		},
		func(ctx context.Context) {
			c.closed = true
			for _, s := range c.subscribers {
				s.terminal = true
				s.completed = true
				c.drainOne(s)
			}
		},
	)

	d := c.source.SubscribeWithContext(context.Background(), observer)

	u, ok := d.(Subscription)
	if !ok {
		return NoopDisposable()
	}

	c.upstream = u
	c.maybeRequestMore()

	return u
}

func (c *connectableObservable[T]) pushAll(item T) {
	for _, s := range c.subscribers {
		s.queue = append(s.queue, item)
		c.drainOne(s)
	}
}

func (c *connectableObservable[T]) remove(state *mcastSubscriber[T]) {
	for i, s := range c.subscribers {
		if s == state {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

func (c *connectableObservable[T]) maybeRequestMore() {
	if c.upstream == nil {
		return
	}

	buffered := 0
	for _, s := range c.subscribers {
		if len(s.queue) > buffered {
			buffered = len(s.queue)
		}
	}

	available := c.maxBuf - buffered - int(c.inFlight)
	if available >= c.threshold && available > 0 {
		c.upstream.Request(uint64(available))
		c.inFlight += uint64(available)
	}
}

func (c *connectableObservable[T]) drainOne(s *mcastSubscriber[T]) {
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
			c.coordinator.Delay(func() { s.observer.OnErrorWithContext(s.ctx, err) })
		} else if s.completed {
			c.coordinator.Delay(func() { s.observer.OnCompleteWithContext(s.ctx) })
		}
	}
}

/***************
 * AutoConnect *
 ***************/

type autoConnectState[T any] struct {
	connectable ConnectableObservable[T]
	threshold   int
	count       int
	connection  Disposable
}

// AutoConnect wraps connectable so that the threshold-th subscription
// triggers Connect automatically; subscribers registered before the
// threshold are already attached (publish accepts subscribers before
// Connect) and simply start receiving once the connection opens (§4.4.4
// "auto_connect").
func AutoConnect[T any](connectable ConnectableObservable[T], threshold int) Observable[T] {
	if threshold <= 0 {
		threshold = 1
	}

	state := &autoConnectState[T]{connectable: connectable, threshold: threshold}

	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		d := connectable.SubscribeWithContext(ctx, destination)

		state.count++
		if state.count >= state.threshold && state.connection == nil {
			state.connection = connectable.Connect()
		}

		return d
	})
}

/************
 * RefCount *
 ************/

type refCountState[T any] struct {
	connectable ConnectableObservable[T]
	threshold   int
	count       int
	connection  Disposable
}

func (s *refCountState[T]) acquire() {
	s.count++
	if s.count >= s.threshold && s.connection == nil {
		s.connection = s.connectable.Connect()
	}
}

func (s *refCountState[T]) release() {
	if s.count == 0 {
		return
	}

	s.count--
	if s.count == 0 && s.connection != nil {
		s.connection.Dispose()
		s.connection = nil
	}
}

type refCountSubscription[T any] struct {
	inner Subscription
	state *refCountState[T]
}

func (s *refCountSubscription[T]) Request(n uint64) { s.inner.Request(n) }
func (s *refCountSubscription[T]) Cancel() {
	s.inner.Cancel()
	s.state.release()
}
func (s *refCountSubscription[T]) Dispose() {
	s.inner.Dispose()
	s.state.release()
}
func (s *refCountSubscription[T]) Disposed() bool { return s.inner.Disposed() }

var _ Subscription = (*refCountSubscription[int])(nil)

// RefCount specializes AutoConnect with auto-disconnect: once the last
// subscriber cancels or disposes, the connection is torn down; a later
// subscriber reconnects from scratch, without replaying anything the source
// already emitted (§4.4.4 "ref_count").
func RefCount[T any](connectable ConnectableObservable[T], threshold int) Observable[T] {
	if threshold <= 0 {
		threshold = 1
	}

	state := &refCountState[T]{connectable: connectable, threshold: threshold}

	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		d := connectable.SubscribeWithContext(ctx, destination)

		u, ok := d.(Subscription)
		if !ok {
			return d
		}

		state.acquire()

		return &refCountSubscription[T]{inner: u, state: state}
	})
}

// Share is the convenience form of §4.4.4 "share(n)": publish().ref_count(n).
func Share[T any](coordinator *Coordinator, source Observable[T], n int) Observable[T] {
	return RefCount[T](Publish[T](coordinator, source, 0, 0), n)
}
