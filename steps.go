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

	"github.com/samber/lo"
)

// StepSink is the terminal step's output buffer (§4.4.2 "the terminal step
// buffers output into the subscription's deque"). A Step appends zero or more
// values per upstream item or per completion.
type StepSink[Out any] struct {
	buffer []Out
}

// Emit appends v to the buffered output.
func (s *StepSink[Out]) Emit(v Out) { s.buffer = append(s.buffer, v) }

// Step is one stage of a from_steps chain (§4.4.2). Unlike the spec's
// compile-time-fixed step chain, Go has no heterogeneous generic chain type,
// so each linear operator (map, filter, take, ...) is its own Step wired
// through the shared runStep machinery below instead of being linked
// in-process with its neighbours; composing several still reads as
// source.Pipe(Map(...), Filter(...), Take(...)).
type Step[In, Out any] interface {
	// OnNext processes one upstream item. Returning false is the only
	// supported way to cancel the upstream subscription mid-item; the step
	// must not call any terminal behavior inline when doing so, it must only
	// stop wanting more items. sink may still have been written to.
	OnNext(item In, sink *StepSink[Out]) bool
	// OnComplete runs once, when the upstream completes normally. It may
	// still emit a final value (reduce's accumulator).
	OnComplete(sink *StepSink[Out])
}

// StepFunc adapts two plain functions into a Step; a nil Complete does
// nothing.
type StepFunc[In, Out any] struct {
	Next     func(item In, sink *StepSink[Out]) bool
	Complete func(sink *StepSink[Out])
}

func (f StepFunc[In, Out]) OnNext(item In, sink *StepSink[Out]) bool {
	return f.Next(item, sink)
}

func (f StepFunc[In, Out]) OnComplete(sink *StepSink[Out]) {
	if f.Complete != nil {
		f.Complete(sink)
	}
}

// runStep builds the Observable[Out] that applies step to every item from
// source. It owns the downstream Subscription, a local output buffer, and the
// upstream subscription: downstream Request(n) both drains the local buffer
// and forwards n upstream (most steps emit at most one output per input, so
// over-requesting upstream is harmless; the buffer absorbs any excess).
// Terminal events are always delayed through the coordinator so that a step
// triggered from inside OnNext never recurses into the destination's own
// stack frame (§5 "direct on_error inside on_next is forbidden").
func runStep[In, Out any](coordinator *Coordinator, source Observable[In], step Step[In, Out]) Observable[Out] {
	return NewObservable(func(ctx context.Context, destination Observer[Out]) Disposable {
		r := &stepRunner[In, Out]{
			coordinator: coordinator,
			destination: destination,
			step:        step,
		}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) {
				if r.upstream != nil {
					r.upstream.Request(n)
				}
				r.drain()
			},
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

		concreteSub := sub.(*subscription)

		r.downstream = sub
		destination.OnSubscribeWithContext(ctx, sub)

		upstreamObserver := NewObserverWithContext(
			func(ctx context.Context, item In) {
				r.onUpstreamNext(ctx, item)
			},
			func(ctx context.Context, err error) {
				r.onUpstreamError(ctx, err)
			},
			func(ctx context.Context) {
				r.onUpstreamComplete(ctx)
			},
		)

		upstreamDisposable := source.SubscribeWithContext(ctx, upstreamObserver)
		if u, ok := upstreamDisposable.(Subscription); ok {
			r.upstream = u

			if d := concreteSub.Demand(); d > 0 {
				u.Request(d)
			}
		}

		return sub
	})
}

type stepRunner[In, Out any] struct {
	coordinator *Coordinator
	destination Observer[Out]
	downstream  Subscription
	upstream    Subscription
	step        Step[In, Out]

	buffer     []Out
	completed  bool
	errored    error
	terminated bool
}

func (r *stepRunner[In, Out]) onUpstreamNext(ctx context.Context, item In) {
	if r.downstream.Disposed() || r.completed {
		return
	}

	sink := &StepSink[Out]{}
	keepGoing := true

	lo.TryCatchWithErrorValue(
		func() error {
			keepGoing = r.step.OnNext(item, sink)
			return nil
		},
		func(e any) {
			keepGoing = false
			r.errored = newRuntimeError(recoverValueToError(e))
			r.terminated = true
		},
	)

	r.buffer = append(r.buffer, sink.buffer...)
	r.drainWithContext(ctx)

	if !keepGoing {
		if r.upstream != nil {
			r.upstream.Cancel()
		}

		if r.errored == nil {
			r.completed = true
			r.terminated = true
			r.flushTerminal(ctx)
		}
	}
}

func (r *stepRunner[In, Out]) onUpstreamError(ctx context.Context, err error) {
	if r.downstream.Disposed() || r.terminated {
		return
	}

	r.errored = err
	r.terminated = true
	r.flushTerminal(ctx)
}

func (r *stepRunner[In, Out]) onUpstreamComplete(ctx context.Context) {
	if r.downstream.Disposed() || r.terminated {
		return
	}

	sink := &StepSink[Out]{}
	r.step.OnComplete(sink)
	r.buffer = append(r.buffer, sink.buffer...)
	r.completed = true
	r.terminated = true
	r.flushTerminal(ctx)
}

func (r *stepRunner[In, Out]) flushTerminal(ctx context.Context) {
	r.drainWithContext(ctx)
}

func (r *stepRunner[In, Out]) drain() {
	r.drainWithContext(context.Background())
}

func (r *stepRunner[In, Out]) drainWithContext(ctx context.Context) {
	sub, ok := r.downstream.(*subscription)
	if !ok {
		return
	}

	for len(r.buffer) > 0 && sub.Demand() > 0 {
		v := r.buffer[0]
		r.buffer = r.buffer[1:]
		sub.Consume(1)
		r.destination.OnNextWithContext(ctx, v)
	}

	if len(r.buffer) == 0 && r.terminated {
		r.terminated = false // only emit the terminal once

		if r.errored != nil {
			r.coordinator.Delay(func() { r.destination.OnErrorWithContext(ctx, r.errored) })
		} else if r.completed {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(ctx) })
		}
	}
}


/**********************
 * Concrete operators *
 **********************/

// Map transforms every item with fn.
func Map[In, Out any](coordinator *Coordinator, source Observable[In], fn func(In) Out) Observable[Out] {
	return runStep[In, Out](coordinator, source, StepFunc[In, Out]{
		Next: func(item In, sink *StepSink[Out]) bool {
			sink.Emit(fn(item))
			return true
		},
	})
}

// Filter keeps only items for which pred returns true.
func Filter[T any](coordinator *Coordinator, source Observable[T], pred func(T) bool) Observable[T] {
	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			if pred(item) {
				sink.Emit(item)
			}

			return true
		},
	})
}

// Take completes after the n-th item, signalling upstream to stop.
func Take[T any](coordinator *Coordinator, source Observable[T], n int) Observable[T] {
	if n < 0 {
		panic(ErrTakeNegativeCount)
	}

	seen := 0

	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			if n == 0 {
				return false
			}

			seen++
			sink.Emit(item)

			return seen < n
		},
	})
}

// TakeWhile emits items while pred holds, then stops (without emitting the
// first item that fails pred).
func TakeWhile[T any](coordinator *Coordinator, source Observable[T], pred func(T) bool) Observable[T] {
	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			if !pred(item) {
				return false
			}

			sink.Emit(item)

			return true
		},
	})
}

// Reduce folds every item with op, starting from init, emitting exactly one
// final value on completion.
func Reduce[T, Acc any](coordinator *Coordinator, source Observable[T], init Acc, op func(Acc, T) Acc) Observable[Acc] {
	acc := init

	return runStep[T, Acc](coordinator, source, StepFunc[T, Acc]{
		Next: func(item T, sink *StepSink[Acc]) bool {
			acc = op(acc, item)
			return true
		},
		Complete: func(sink *StepSink[Acc]) {
			sink.Emit(acc)
		},
	})
}

// Distinct suppresses items equal (via comparable ==) to an item already
// seen on this subscription.
func Distinct[T comparable](coordinator *Coordinator, source Observable[T]) Observable[T] {
	return Defer(coordinator, func() Observable[T] { return distinctOnce(coordinator, source) })
}

func distinctOnce[T comparable](coordinator *Coordinator, source Observable[T]) Observable[T] {
	seen := make(map[T]struct{})

	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			if _, ok := seen[item]; ok {
				return true
			}

			seen[item] = struct{}{}
			sink.Emit(item)

			return true
		},
	})
}

// DistinctBy suppresses items whose key(item) has already been seen.
func DistinctBy[T any, K comparable](coordinator *Coordinator, source Observable[T], key func(T) K) Observable[T] {
	seen := make(map[K]struct{})

	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			k := key(item)
			if _, ok := seen[k]; ok {
				return true
			}

			seen[k] = struct{}{}
			sink.Emit(item)

			return true
		},
	})
}

// DoOnNext runs fn for its side effect on every item, without altering it.
func DoOnNext[T any](coordinator *Coordinator, source Observable[T], fn func(T)) Observable[T] {
	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			fn(item)
			sink.Emit(item)

			return true
		},
	})
}

// DoOnComplete runs fn when the source completes, before forwarding the
// completion.
func DoOnComplete[T any](coordinator *Coordinator, source Observable[T], fn func()) Observable[T] {
	return runStep[T, T](coordinator, source, StepFunc[T, T]{
		Next: func(item T, sink *StepSink[T]) bool {
			sink.Emit(item)
			return true
		},
		Complete: func(sink *StepSink[T]) {
			fn()
		},
	})
}

// DoOnError runs fn when the source errors, before forwarding the error.
// This is implemented outside the Step framework because Step has no error
// hook: forwarding is the default behavior of runStep's terminal flush, so
// DoOnError wraps the observer directly instead.
func DoOnError[T any](coordinator *Coordinator, source Observable[T], fn func(error)) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		return source.SubscribeWithContext(ctx, newForwardingObserver(
			destination,
			nil,
			func(ctx context.Context, err error, destination Observer[T]) {
				fn(err)
				destination.OnErrorWithContext(ctx, err)
			},
			nil,
		))
	})
}

// DoFinally runs fn exactly once, whether the source completes, errors, or
// is cancelled/disposed downstream.
func DoFinally[T any](coordinator *Coordinator, source Observable[T], fn func()) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		ran := false

		runOnce := func() {
			if !ran {
				ran = true
				fn()
			}
		}

		disposable := source.SubscribeWithContext(ctx, newForwardingObserver(
			destination,
			nil,
			func(ctx context.Context, err error, destination Observer[T]) {
				destination.OnErrorWithContext(ctx, err)
				runOnce()
			},
			func(ctx context.Context, destination Observer[T]) {
				destination.OnCompleteWithContext(ctx)
				runOnce()
			},
		))

		return NewDisposable(func() {
			disposable.Dispose()
			runOnce()
		})
	})
}

// OnErrorComplete maps any upstream error to a silent completion instead of
// forwarding it.
func OnErrorComplete[T any](coordinator *Coordinator, source Observable[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		return source.SubscribeWithContext(ctx, newForwardingObserver(
			destination,
			nil,
			func(ctx context.Context, err error, destination Observer[T]) {
				destination.OnCompleteWithContext(ctx)
			},
			nil,
		))
	})
}
