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
	"time"
)

/*************************
 * on_backpressure_buffer *
 *************************/

// BackpressureStrategy selects what on_backpressure_buffer does when its
// internal buffer is full and another item arrives (§4.4.5
// "on_backpressure_buffer").
type BackpressureStrategy int

const (
	BackpressureDropNewest BackpressureStrategy = iota
	BackpressureDropOldest
	BackpressureFail
)

type backpressureBufferRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	upstream    Subscription
	ctx         context.Context
	size        int
	strategy    BackpressureStrategy

	buffer     []T
	terminated bool
	completed  bool
	err        error
}

// OnBackpressureBuffer requests size items from source up front and buffers
// whatever the downstream hasn't yet consumed; once the buffer holds size
// items, further arrivals are handled per strategy. A non-empty buffer at
// source completion/error defers the terminal event until it drains
// (§4.4.5 "on_backpressure_buffer").
func OnBackpressureBuffer[T any](coordinator *Coordinator, source Observable[T], size int, strategy BackpressureStrategy) Observable[T] {
	if size <= 0 {
		panic(ErrOnBackpressureBufferWrongSize)
	}

	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &backpressureBufferRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx, size: size, strategy: strategy}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.drain() },
			OnCancel: func() {
				if r.upstream != nil {
					r.upstream.Cancel()
				}
			},
			OnDispose: func() {
				if r.upstream != nil {
					r.upstream.Dispose()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		observer := NewObserverWithContext(
			func(ctx context.Context, v T) { r.onNext(v) },
			func(ctx context.Context, err error) { r.onError(err) },
			func(ctx context.Context) { r.onComplete() },
		)

		d := source.SubscribeWithContext(ctx, observer)
		if u, ok := d.(Subscription); ok {
			r.upstream = u
			u.Request(uint64(size))
		}

		return sub
	})
}

func (r *backpressureBufferRunner[T]) onNext(v T) {
	if r.terminated {
		return
	}

	if len(r.buffer) >= r.size {
		switch r.strategy {
		case BackpressureDropNewest:
			if r.upstream != nil {
				r.upstream.Request(1)
			}
		case BackpressureDropOldest:
			r.buffer = r.buffer[1:]
			r.buffer = append(r.buffer, v)
		case BackpressureFail:
			if r.upstream != nil {
				r.upstream.Cancel()
			}
			r.buffer = nil
			r.terminated = true
			r.err = ErrBackpressureOverflow
		}

		r.drain()

		return
	}

	r.buffer = append(r.buffer, v)
	r.drain()
}

func (r *backpressureBufferRunner[T]) onError(err error) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err
	r.drain()
}

func (r *backpressureBufferRunner[T]) onComplete() {
	if r.terminated {
		return
	}

	r.terminated = true
	r.completed = true
	r.drain()
}

func (r *backpressureBufferRunner[T]) drain() {
	if r.concreteSub == nil {
		return
	}

	for len(r.buffer) > 0 && r.concreteSub.Demand() > 0 {
		v := r.buffer[0]
		r.buffer = r.buffer[1:]
		r.concreteSub.Consume(1)
		r.destination.OnNextWithContext(r.ctx, v)

		if r.upstream != nil && !r.terminated {
			r.upstream.Request(1)
		}
	}

	if len(r.buffer) == 0 && r.terminated {
		r.terminated = false

		if r.err != nil {
			err := r.err
			r.coordinator.Delay(func() { r.destination.OnErrorWithContext(r.ctx, err) })
		} else if r.completed {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

/********************************
 * prefix_and_tail / head_and_tail *
 ********************************/

// PrefixAndTail is prefix_and_tail(n)'s single emitted value: the buffered
// first n items plus an Observable forwarding everything after them.
type PrefixAndTail[T any] struct {
	Prefix []T
	Tail   Observable[T]
}

// PrefixAndTailOp buffers the first n items of source; once it has them, it
// emits exactly one PrefixAndTail through a cell. If source completes having
// produced fewer than n items, the returned observable completes without
// ever emitting (§4.4.5 "prefix_and_tail").
func PrefixAndTailOp[T any](coordinator *Coordinator, source Observable[T], n int) Observable[PrefixAndTail[T]] {
	if n < 0 {
		n = 0
	}

	cell := NewCell[PrefixAndTail[T]](coordinator)
	tail := NewUnicast[T](coordinator, UnicastCallbacks{})

	var prefix []T
	delivered := false

	emitIfReady := func() {
		if !delivered && len(prefix) >= n {
			delivered = true
			cell.SetValue(PrefixAndTail[T]{Prefix: prefix, Tail: tail.AsObservable()})
		}
	}

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			if !delivered {
				prefix = append(prefix, v)
				emitIfReady()

				return
			}

			tail.Push(v)
		},
		func(ctx context.Context, err error) {
			if !delivered {
				cell.SetError(err)
			}
			tail.Abort(err)
		},
		func(ctx context.Context) {
			if !delivered {
				cell.SetNull()
			}
			tail.Close()
		},
	)

	emitIfReady()

	d := source.SubscribeWithContext(context.Background(), observer)
	if u, ok := d.(Subscription); ok {
		u.Request(math.MaxUint64)
	}

	return cell.AsObservable()
}

// HeadAndTail is prefix_and_tail(1) with the single-element prefix unwrapped.
type HeadAndTail[T any] struct {
	Head T
	Tail Observable[T]
}

// HeadAndTailOp is PrefixAndTailOp(source, 1) with the prefix unwrapped
// (§4.4.5 "head_and_tail").
func HeadAndTailOp[T any](coordinator *Coordinator, source Observable[T]) Observable[HeadAndTail[T]] {
	return Map(coordinator, PrefixAndTailOp(coordinator, source, 1), func(p PrefixAndTail[T]) HeadAndTail[T] {
		var head T
		if len(p.Prefix) > 0 {
			head = p.Prefix[0]
		}

		return HeadAndTail[T]{Head: head, Tail: p.Tail}
	})
}

/**********
 * Buffer *
 **********/

type bufferRunner[T, C any] struct {
	coordinator *Coordinator
	destination Observer[[]T]
	downstream  Subscription
	concreteSub *subscription
	ctx         context.Context
	max         int
	skipEmpty   bool

	valuesUpstream  Subscription
	controlUpstream Subscription

	current   []T
	outBuffer [][]T

	terminated bool
	completed  bool
	err        error
}

// Buffer groups items from values into batches, emitting a batch whenever
// either max items have accumulated or control produces a token (an empty
// batch on a control token is suppressed when skipEmpty is set). values
// completing emits one final partial batch and then completes; control
// completing unexpectedly fails the buffer with ErrEndOfStream (§4.4.5
// "buffer").
func Buffer[T, C any](coordinator *Coordinator, values Observable[T], control Observable[C], max int, skipEmpty bool) Observable[[]T] {
	if max <= 0 {
		panic(ErrBufferWrongSize)
	}

	return NewObservable(func(ctx context.Context, destination Observer[[]T]) Disposable {
		r := &bufferRunner[T, C]{coordinator: coordinator, destination: destination, ctx: ctx, max: max, skipEmpty: skipEmpty}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.drain() },
			OnCancel: func() {
				if r.valuesUpstream != nil {
					r.valuesUpstream.Cancel()
				}
				if r.controlUpstream != nil {
					r.controlUpstream.Cancel()
				}
			},
			OnDispose: func() {
				if r.valuesUpstream != nil {
					r.valuesUpstream.Dispose()
				}
				if r.controlUpstream != nil {
					r.controlUpstream.Dispose()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		valueObserver := NewObserverWithContext(
			func(ctx context.Context, v T) { r.onValue(v) },
			func(ctx context.Context, err error) { r.fail(err) },
			func(ctx context.Context) { r.onValuesDone() },
		)

		if u, ok := values.SubscribeWithContext(ctx, valueObserver).(Subscription); ok {
			r.valuesUpstream = u
			u.Request(math.MaxUint64)
		}

		controlObserver := NewObserverWithContext(
			func(ctx context.Context, _ C) { r.onControlTick() },
			func(ctx context.Context, err error) { r.fail(err) },
			func(ctx context.Context) { r.fail(ErrEndOfStream) },
		)

		if u, ok := control.SubscribeWithContext(ctx, controlObserver).(Subscription); ok {
			r.controlUpstream = u
			u.Request(math.MaxUint64)
		}

		return sub
	})
}

func (r *bufferRunner[T, C]) onValue(v T) {
	if r.terminated {
		return
	}

	r.current = append(r.current, v)
	if len(r.current) >= r.max {
		r.flushBatch()
	}

	r.drain()
}

func (r *bufferRunner[T, C]) onControlTick() {
	if r.terminated {
		return
	}

	if len(r.current) > 0 || !r.skipEmpty {
		r.flushBatch()
	}

	r.drain()
}

func (r *bufferRunner[T, C]) flushBatch() {
	batch := r.current
	r.current = nil
	r.outBuffer = append(r.outBuffer, batch)
}

func (r *bufferRunner[T, C]) onValuesDone() {
	if r.terminated {
		return
	}

	if len(r.current) > 0 {
		r.flushBatch()
	}

	r.terminated = true
	r.completed = true

	if r.controlUpstream != nil {
		r.controlUpstream.Cancel()
	}

	r.drain()
}

func (r *bufferRunner[T, C]) fail(err error) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err

	if r.valuesUpstream != nil {
		r.valuesUpstream.Cancel()
	}
	if r.controlUpstream != nil {
		r.controlUpstream.Cancel()
	}

	r.drain()
}

func (r *bufferRunner[T, C]) drain() {
	if r.concreteSub == nil {
		return
	}

	for len(r.outBuffer) > 0 && r.concreteSub.Demand() > 0 {
		v := r.outBuffer[0]
		r.outBuffer = r.outBuffer[1:]
		r.concreteSub.Consume(1)
		r.destination.OnNextWithContext(r.ctx, v)
	}

	if len(r.outBuffer) == 0 && r.terminated {
		r.terminated = false

		if r.err != nil {
			err := r.err
			r.coordinator.Delay(func() { r.destination.OnErrorWithContext(r.ctx, err) })
		} else if r.completed {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

/************
 * Debounce *
 ************/

type debounceRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	upstream    Subscription
	ctx         context.Context
	period      time.Duration

	hasPending bool
	pending    T
	timer      Disposable
	expired    bool

	terminated bool
	completed  bool
	err        error
}

// Debounce caches the latest item and (re)starts a period timer on every
// on_next; when the timer expires, the cached value is emitted, consuming
// one unit of downstream demand. A pending value at completion/error holds
// the terminal event back until demand is available to flush it (§4.4.5
// "debounce").
func Debounce[T any](coordinator *Coordinator, source Observable[T], period time.Duration) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &debounceRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx, period: period}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.drain() },
			OnCancel: func() {
				if r.upstream != nil {
					r.upstream.Cancel()
				}
				r.cancelTimer()
			},
			OnDispose: func() {
				if r.upstream != nil {
					r.upstream.Dispose()
				}
				r.cancelTimer()
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		observer := NewObserverWithContext(
			func(ctx context.Context, v T) { r.onNext(v) },
			func(ctx context.Context, err error) { r.onTerminal(err, false) },
			func(ctx context.Context) { r.onTerminal(nil, true) },
		)

		d := source.SubscribeWithContext(ctx, observer)
		if u, ok := d.(Subscription); ok {
			r.upstream = u
			u.Request(math.MaxUint64)
		}

		return sub
	})
}

func (r *debounceRunner[T]) onNext(v T) {
	if r.terminated {
		return
	}

	r.pending = v
	r.hasPending = true
	r.expired = false
	r.resetTimer()
}

func (r *debounceRunner[T]) resetTimer() {
	r.cancelTimer()
	r.timer = r.coordinator.DelayUntil(r.coordinator.SteadyTime().Add(r.period), func() {
		r.expired = true
		r.drain()
	})
}

func (r *debounceRunner[T]) cancelTimer() {
	if r.timer != nil {
		r.timer.Dispose()
		r.timer = nil
	}
}

func (r *debounceRunner[T]) onTerminal(err error, completed bool) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err
	r.completed = completed
	r.drain()
}

func (r *debounceRunner[T]) drain() {
	if r.concreteSub == nil {
		return
	}

	if r.hasPending && (r.expired || r.terminated) && r.concreteSub.Demand() > 0 {
		v := r.pending
		r.hasPending = false
		r.concreteSub.Consume(1)
		r.destination.OnNextWithContext(r.ctx, v)
	}

	if r.terminated && !r.hasPending {
		r.terminated = false

		if r.err != nil {
			err := r.err
			r.coordinator.Delay(func() { r.destination.OnErrorWithContext(r.ctx, err) })
		} else if r.completed {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

/**********
 * Sample *
 **********/

type sampleRunner[T, C any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	ctx         context.Context

	valueUpstream   Subscription
	controlUpstream Subscription

	hasPending bool
	pending    T
	outBuffer  []T

	valueDone  bool
	terminated bool
	completed  bool
	err        error
}

// Sample emits the latest value buffered since the last control token every
// time control produces one. Unexpected completion of control is an
// ErrEndOfStream failure; values completing with a pending value defers the
// terminal until the next control tick flushes it (§4.4.5 "sample").
func Sample[T, C any](coordinator *Coordinator, values Observable[T], control Observable[C]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &sampleRunner[T, C]{coordinator: coordinator, destination: destination, ctx: ctx}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.drain() },
			OnCancel: func() {
				if r.valueUpstream != nil {
					r.valueUpstream.Cancel()
				}
				if r.controlUpstream != nil {
					r.controlUpstream.Cancel()
				}
			},
			OnDispose: func() {
				if r.valueUpstream != nil {
					r.valueUpstream.Dispose()
				}
				if r.controlUpstream != nil {
					r.controlUpstream.Dispose()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		valueObserver := NewObserverWithContext(
			func(ctx context.Context, v T) {
				r.pending = v
				r.hasPending = true
			},
			func(ctx context.Context, err error) { r.fail(err) },
			func(ctx context.Context) { r.onValueDone() },
		)

		if u, ok := values.SubscribeWithContext(ctx, valueObserver).(Subscription); ok {
			r.valueUpstream = u
			u.Request(math.MaxUint64)
		}

		controlObserver := NewObserverWithContext(
			func(ctx context.Context, _ C) { r.onTick() },
			func(ctx context.Context, err error) { r.fail(err) },
			func(ctx context.Context) { r.fail(ErrEndOfStream) },
		)

		if u, ok := control.SubscribeWithContext(ctx, controlObserver).(Subscription); ok {
			r.controlUpstream = u
			u.Request(math.MaxUint64)
		}

		return sub
	})
}

func (r *sampleRunner[T, C]) onTick() {
	if r.terminated {
		return
	}

	if r.hasPending {
		r.outBuffer = append(r.outBuffer, r.pending)
		r.hasPending = false
	}

	if r.valueDone && !r.hasPending {
		r.terminated = true
		r.completed = true
	}

	r.drain()
}

func (r *sampleRunner[T, C]) onValueDone() {
	if r.terminated {
		return
	}

	r.valueDone = true

	if !r.hasPending {
		r.terminated = true
		r.completed = true
		r.drain()
	}
}

func (r *sampleRunner[T, C]) fail(err error) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err

	if r.valueUpstream != nil {
		r.valueUpstream.Cancel()
	}
	if r.controlUpstream != nil {
		r.controlUpstream.Cancel()
	}

	r.drain()
}

func (r *sampleRunner[T, C]) drain() {
	if r.concreteSub == nil {
		return
	}

	for len(r.outBuffer) > 0 && r.concreteSub.Demand() > 0 {
		v := r.outBuffer[0]
		r.outBuffer = r.outBuffer[1:]
		r.concreteSub.Consume(1)
		r.destination.OnNextWithContext(r.ctx, v)
	}

	if len(r.outBuffer) == 0 && r.terminated {
		r.terminated = false

		if r.err != nil {
			err := r.err
			r.coordinator.Delay(func() { r.destination.OnErrorWithContext(r.ctx, err) })
		} else if r.completed {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

/***************************
 * on_error_resume_next *
 ***************************/

type resumeRunner[T any] struct {
	coordinator  *Coordinator
	destination  Observer[T]
	downstream   Subscription
	concreteSub  *subscription
	ctx          context.Context
	predicate    func(error) bool
	fallback     Observable[T]
	current      Subscription
	usedFallback bool
}

// OnErrorResumeNext subscribes to fallback, carrying forward whatever demand
// is outstanding, when source errors and predicate(err) holds; otherwise the
// error is forwarded as-is (§4.4.5 "on_error_resume_next").
func OnErrorResumeNext[T any](coordinator *Coordinator, source Observable[T], predicate func(error) bool, fallback Observable[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &resumeRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx, predicate: predicate, fallback: fallback}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) {
				if r.current != nil {
					r.current.Request(n)
				}
			},
			OnCancel: func() {
				if r.current != nil {
					r.current.Cancel()
				}
			},
			OnDispose: func() {
				if r.current != nil {
					r.current.Dispose()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		r.subscribeTo(source)

		return sub
	})
}

func (r *resumeRunner[T]) subscribeTo(source Observable[T]) {
	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			if r.concreteSub != nil {
				r.concreteSub.Consume(1)
			}
			r.destination.OnNextWithContext(ctx, v)
		},
		func(ctx context.Context, err error) {
			if !r.usedFallback && r.predicate != nil && r.predicate(err) {
				r.usedFallback = true
				r.current = nil
				r.subscribeTo(r.fallback)

				return
			}

			r.destination.OnErrorWithContext(ctx, err)
		},
		func(ctx context.Context) { r.destination.OnCompleteWithContext(ctx) },
	)

	d := source.SubscribeWithContext(r.ctx, observer)
	if u, ok := d.(Subscription); ok {
		r.current = u

		if r.concreteSub != nil {
			if demand := r.concreteSub.Demand(); demand > 0 {
				u.Request(demand)
			}
		}
	}
}

/*********
 * Retry *
 *********/

type retryRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	ctx         context.Context
	source      Observable[T]
	predicate   func(error) bool
	current     Subscription
}

// Retry re-subscribes to source, with its remaining demand preserved, when
// an error satisfies predicate; otherwise the error is forwarded (§4.4.5
// "retry").
func Retry[T any](coordinator *Coordinator, source Observable[T], predicate func(error) bool) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &retryRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx, source: source, predicate: predicate}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) {
				if r.current != nil {
					r.current.Request(n)
				}
			},
			OnCancel: func() {
				if r.current != nil {
					r.current.Cancel()
				}
			},
			OnDispose: func() {
				if r.current != nil {
					r.current.Dispose()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		r.subscribe()

		return sub
	})
}

func (r *retryRunner[T]) subscribe() {
	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			if r.concreteSub != nil {
				r.concreteSub.Consume(1)
			}
			r.destination.OnNextWithContext(ctx, v)
		},
		func(ctx context.Context, err error) {
			if r.predicate != nil && r.predicate(err) {
				r.current = nil
				r.subscribe()

				return
			}

			r.destination.OnErrorWithContext(ctx, err)
		},
		func(ctx context.Context) { r.destination.OnCompleteWithContext(ctx) },
	)

	d := r.source.SubscribeWithContext(r.ctx, observer)
	if u, ok := d.(Subscription); ok {
		r.current = u

		if r.concreteSub != nil {
			if demand := r.concreteSub.Demand(); demand > 0 {
				u.Request(demand)
			}
		}
	}
}
