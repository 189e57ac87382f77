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
	"time"
)

// DefaultGeneratorBuffer is ToResource's default bufferSize, used when the
// caller passes 0 or less. FromGenerator does not use it: it keeps no local
// buffer and calls the generator only while downstream demand is outstanding.
const DefaultGeneratorBuffer = 32

// Empty completes immediately without ever emitting (§4.4.1 "empty").
func Empty[T any](coordinator *Coordinator) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		sub := NewNoopSubscription()
		destination.OnSubscribeWithContext(ctx, sub)
		coordinator.Delay(func() { destination.OnCompleteWithContext(ctx) })

		return sub
	})
}

// Never hands the destination a live subscription and then emits nothing
// further; Dispose delivers on_complete rather than the usual
// on_error(ErrDisposed) (§4.4.1 "never").
func Never[T any](coordinator *Coordinator) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDispose: func() { destination.OnCompleteWithContext(ctx) },
		})
		destination.OnSubscribeWithContext(ctx, sub)
		coordinator.Watch(sub)

		return sub
	})
}

// Fail emits on_error(err) immediately on subscribe (§4.4.1 "fail").
func Fail[T any](coordinator *Coordinator, err error) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		sub := NewNoopSubscription()
		destination.OnSubscribeWithContext(ctx, sub)
		coordinator.Delay(func() { destination.OnErrorWithContext(ctx, err) })

		return sub
	})
}

// Defer calls factory() on every subscribe and delegates to the freshly built
// observable, so each subscriber gets an independently constructed source
// (§4.4.1 "defer").
func Defer[T any](coordinator *Coordinator, factory func() Observable[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		return factory().SubscribeWithContext(ctx, destination)
	})
}

/*****************
 * from_generator *
 *****************/

// Generator is pulled by FromGenerator to produce one item at a time. It
// returns (value, hasValue, err): hasValue false with a nil err means the
// generator is exhausted (emit on_complete); a non-nil err ends the stream
// with on_error.
type Generator[T any] func() (value T, hasValue bool, err error)

type generatorRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	ctx         context.Context
	gen         Generator[T]

	running    bool
	terminated bool
	completed  bool
	err        error
}

// FromGenerator owns a fresh pull-based subscription per subscribe: on
// request(n) it invokes gen once per unit of outstanding demand and emits
// each value directly, with no read-ahead buffer, until demand is satisfied
// or completion/error is observed. Delivery is
// serialized through a running flag and trampolined via the coordinator so a
// downstream Request call made from inside on_next cannot recurse back into
// gen (§4.4.1 "from_generator").
func FromGenerator[T any](coordinator *Coordinator, gen Generator[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &generatorRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx, gen: gen}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.pull() },
			OnCancel: func() { r.terminated = true },
			OnDispose: func() {
				r.terminated = true
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		return sub
	})
}

func (r *generatorRunner[T]) pull() {
	if r.running || r.terminated {
		return
	}

	r.running = true
	r.coordinator.Delay(r.drain)
}

func (r *generatorRunner[T]) drain() {
	r.running = false

	if r.terminated || r.concreteSub == nil {
		return
	}

	for r.concreteSub.Demand() > 0 {
		v, hasValue, err := r.gen()

		if err != nil {
			r.terminated = true
			r.destination.OnErrorWithContext(r.ctx, err)

			return
		}

		if !hasValue {
			r.terminated = true
			r.destination.OnCompleteWithContext(r.ctx)

			return
		}

		r.concreteSub.Consume(1)
		r.destination.OnNextWithContext(r.ctx, v)

		if r.terminated {
			return
		}
	}
}

/************
 * Interval *
 ************/

// Interval schedules a delay_until to emit monotonically increasing integers
// starting at initial, spaced period apart, stopping after max emissions (max
// <= 0 means unbounded). Each emission reschedules the next tick; the
// subscription is watched so the coordinator stays alive until the interval
// is cancelled, disposed, or exhausts max (§4.4.1 "interval").
func Interval(coordinator *Coordinator, initial int64, period time.Duration, max int64) Observable[int64] {
	return NewObservable(func(ctx context.Context, destination Observer[int64]) Disposable {
		r := &intervalRunner{coordinator: coordinator, destination: destination, ctx: ctx, next: initial, period: period, max: max}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) {},
			OnCancel: func() { r.cancelTimer() },
			OnDispose: func() {
				r.cancelTimer()
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		destination.OnSubscribeWithContext(ctx, sub)
		coordinator.Watch(sub)

		r.scheduleNext()

		return sub
	})
}

type intervalRunner struct {
	coordinator *Coordinator
	destination Observer[int64]
	downstream  Subscription
	ctx         context.Context

	next   int64
	period time.Duration
	max    int64
	count  int64
	timer  Disposable
}

func (r *intervalRunner) scheduleNext() {
	if r.downstream.Disposed() {
		return
	}

	r.timer = r.coordinator.DelayUntil(r.coordinator.SteadyTime().Add(r.period), r.tick)
}

func (r *intervalRunner) tick() {
	if r.downstream.Disposed() {
		return
	}

	r.destination.OnNextWithContext(r.ctx, r.next)
	r.next++
	r.count++

	if r.max > 0 && r.count >= r.max {
		r.downstream.Cancel()
		r.destination.OnCompleteWithContext(r.ctx)

		return
	}

	r.scheduleNext()
}

func (r *intervalRunner) cancelTimer() {
	if r.timer != nil {
		r.timer.Dispose()
		r.timer = nil
	}
}
