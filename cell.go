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

type cellSubscriber[T any] struct {
	sub      *subscription
	observer Observer[T]
	ctx      context.Context
	done     bool
}

// Cell is the write-once multicaster of §4.4.4 "cell": it carries either
// null, exactly one T, or an error, set at most once. Listeners attached
// before the outcome is set receive it as soon as it lands; listeners
// attached after receive the cached outcome immediately.
type Cell[T any] struct {
	coordinator *Coordinator

	set      bool
	hasValue bool
	value    T
	err      error

	subscribers []*cellSubscriber[T]
}

// NewCell builds an unset Cell bound to coordinator.
func NewCell[T any](coordinator *Coordinator) *Cell[T] {
	return &Cell[T]{coordinator: coordinator}
}

// SetValue sets the outcome to v, broadcasting it to every listener and then
// terminating each with on_complete. A no-op once the cell is already set.
func (c *Cell[T]) SetValue(v T) {
	if c.set {
		return
	}

	c.set = true
	c.hasValue = true
	c.value = v
	c.broadcast()
}

// SetNull sets the outcome to null: listeners are terminated with
// on_complete without ever receiving a value.
func (c *Cell[T]) SetNull() {
	if c.set {
		return
	}

	c.set = true
	c.broadcast()
}

// SetError sets the outcome to err, broadcasting on_error to every listener.
func (c *Cell[T]) SetError(err error) {
	if c.set {
		return
	}

	c.set = true
	c.err = err
	c.broadcast()
}

func (c *Cell[T]) broadcast() {
	for _, s := range c.subscribers {
		c.deliverOne(s)
	}
}

// Subscribe attaches a new listener.
func (c *Cell[T]) Subscribe(ctx context.Context, destination Observer[T]) Disposable {
	state := &cellSubscriber[T]{observer: destination, ctx: ctx}

	sub := NewSubscription(c.coordinator, SubscriptionCallbacks{
		OnDemand: func(n uint64) { c.deliverOne(state) },
		OnCancel: func() { c.remove(state) },
		OnDispose: func() {
			c.remove(state)
			destination.OnErrorWithContext(ctx, ErrDisposed)
		},
	})

	state.sub, _ = sub.(*subscription)
	destination.OnSubscribeWithContext(ctx, sub)

	c.subscribers = append(c.subscribers, state)
	c.deliverOne(state)

	return sub
}

// AsObservable exposes the cell's outcome as a plain Observable.
func (c *Cell[T]) AsObservable() Observable[T] { return FromSubscribeFunc(c.Subscribe) }

// Set reports whether an outcome has been written yet.
func (c *Cell[T]) Set() bool { return c.set }

func (c *Cell[T]) remove(state *cellSubscriber[T]) {
	for i, s := range c.subscribers {
		if s == state {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

func (c *Cell[T]) deliverOne(s *cellSubscriber[T]) {
	if !c.set || s.done || s.sub == nil {
		return
	}

	if c.err != nil {
		s.done = true
		c.coordinator.Delay(func() { s.observer.OnErrorWithContext(s.ctx, c.err) })

		return
	}

	if c.hasValue {
		if s.sub.Demand() == 0 {
			return
		}

		s.sub.Consume(1)
		s.observer.OnNextWithContext(s.ctx, c.value)
	}

	s.done = true
	c.coordinator.Delay(func() { s.observer.OnCompleteWithContext(s.ctx) })
}
