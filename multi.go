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

	"github.com/samber/lo"
)

// DefaultMaxPendingPerInput is merge's per-input pending budget when the
// caller passes 0 (§4.4.3 "max_pending_per_input, default 8").
const DefaultMaxPendingPerInput = 8

/*********
 * Merge *
 *********/

type mergeInput[T any] struct {
	sub   Subscription
	queue []T
	done  bool
}

// Merge subscribes to up to maxConcurrent inputs at a time (0 means all of
// them at once), interleaving their items in arrival order across a
// round-robin of per-input queues capped at maxPendingPerInput (0 falls back
// to DefaultMaxPendingPerInput). A terminal error from any input cancels the
// rest and propagates; completion waits for every input (§4.4.3 "merge").
func Merge[T any](coordinator *Coordinator, maxConcurrent int, maxPendingPerInput int, sources ...Observable[T]) Observable[T] {
	if maxPendingPerInput <= 0 {
		maxPendingPerInput = DefaultMaxPendingPerInput
	}

	if maxConcurrent <= 0 || maxConcurrent > len(sources) {
		maxConcurrent = len(sources)
	}

	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &mergeRunner[T]{
			coordinator:        coordinator,
			destination:        destination,
			ctx:                ctx,
			sources:            sources,
			maxPendingPerInput: maxPendingPerInput,
		}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.drain() },
			OnCancel: func() { r.cancelAll() },
			OnDispose: func() {
				r.cancelAll()
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		if len(sources) == 0 {
			coordinator.Delay(func() { destination.OnCompleteWithContext(ctx) })
			return sub
		}

		r.inputs = make([]*mergeInput[T], len(sources))
		for i := range r.inputs {
			r.inputs[i] = &mergeInput[T]{}
		}

		start := maxConcurrent
		if start > len(sources) {
			start = len(sources)
		}

		for i := 0; i < start; i++ {
			r.startInput(i)
		}

		r.nextToStart = start

		return sub
	})
}

type mergeRunner[T any] struct {
	coordinator        *Coordinator
	destination        Observer[T]
	ctx                context.Context
	downstream         Subscription
	concreteSub        *subscription
	sources            []Observable[T]
	maxPendingPerInput int
	inputs             []*mergeInput[T]
	nextToStart        int
	cursor             int
	terminated         bool
	completed          bool
	err                error
}

func (r *mergeRunner[T]) startInput(i int) {
	input := r.inputs[i]

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) { r.onInputNext(i, v) },
		func(ctx context.Context, err error) { r.onInputError(i, err) },
		func(ctx context.Context) { r.onInputComplete(i) },
	)

	d := r.sources[i].SubscribeWithContext(r.ctx, observer)
	if u, ok := d.(Subscription); ok {
		input.sub = u
		u.Request(uint64(r.maxPendingPerInput))
	} else {
		input.done = true
	}
}

func (r *mergeRunner[T]) onInputNext(i int, v T) {
	if r.downstream.Disposed() || r.terminated {
		return
	}

	r.inputs[i].queue = append(r.inputs[i].queue, v)
	r.drain()
}

func (r *mergeRunner[T]) onInputError(i int, err error) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err
	r.cancelAllExcept(i)
	r.drain()
}

func (r *mergeRunner[T]) onInputComplete(i int) {
	if r.terminated {
		return
	}

	r.inputs[i].done = true

	if r.nextToStart < len(r.sources) {
		next := r.nextToStart
		r.nextToStart++
		r.startInput(next)
	}

	allDone := true
	for _, input := range r.inputs {
		if !input.done {
			allDone = false
			break
		}
	}

	if allDone {
		r.terminated = true
		r.completed = true
	}

	r.drain()
}

func (r *mergeRunner[T]) drain() {
	if r.concreteSub == nil {
		return
	}

	for r.concreteSub.Demand() > 0 {
		v, idx, ok := r.nextQueued()
		if !ok {
			break
		}

		r.concreteSub.Consume(1)
		r.destination.OnNextWithContext(r.ctx, v)

		if input := r.inputs[idx]; input.sub != nil && !input.done {
			input.sub.Request(1)
		}
	}

	if r.terminated && r.allQueuesEmpty() {
		r.terminated = false

		if r.err != nil {
			err := r.err
			r.coordinator.Delay(func() { r.destination.OnErrorWithContext(r.ctx, err) })
		} else if r.completed {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

func (r *mergeRunner[T]) nextQueued() (T, int, bool) {
	n := len(r.inputs)

	for k := 0; k < n; k++ {
		idx := (r.cursor + k) % n
		input := r.inputs[idx]

		if len(input.queue) > 0 {
			v := input.queue[0]
			input.queue = input.queue[1:]
			r.cursor = (idx + 1) % n

			return v, idx, true
		}
	}

	var zero T
	return zero, -1, false
}

func (r *mergeRunner[T]) allQueuesEmpty() bool {
	for _, input := range r.inputs {
		if len(input.queue) > 0 {
			return false
		}
	}

	return true
}

func (r *mergeRunner[T]) cancelAll() { r.cancelAllExcept(-1) }

func (r *mergeRunner[T]) cancelAllExcept(skip int) {
	for i, input := range r.inputs {
		if i != skip && input.sub != nil {
			input.sub.Cancel()
		}
	}
}

/**********
 * Concat *
 **********/

type concatRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	sources     []Observable[T]
	ctx         context.Context
	index       int
	current     Subscription
}

// Concat subscribes to sources sequentially, never starting input k+1 before
// input k completes, carrying forward whatever downstream demand is still
// outstanding (§4.4.3 "concat").
func Concat[T any](coordinator *Coordinator, sources ...Observable[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &concatRunner[T]{coordinator: coordinator, destination: destination, sources: sources, ctx: ctx}

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

		if len(sources) == 0 {
			coordinator.Delay(func() { destination.OnCompleteWithContext(ctx) })
			return sub
		}

		r.subscribeNext()

		return sub
	})
}

func (r *concatRunner[T]) subscribeNext() {
	if r.downstream.Disposed() {
		return
	}

	if r.index >= len(r.sources) {
		r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		return
	}

	source := r.sources[r.index]
	r.index++

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			if r.concreteSub != nil {
				r.concreteSub.Consume(1)
			}
			r.destination.OnNextWithContext(ctx, v)
		},
		func(ctx context.Context, err error) { r.destination.OnErrorWithContext(ctx, err) },
		func(ctx context.Context) {
			r.current = nil
			r.subscribeNext()
		},
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

/**************
 * Flatconcat *
 **************/

// FlatConcat is concat's meta-observable form: sources itself produces
// observables, consumed eagerly, concatenated in arrival order as each inner
// observable completes (§4.4.3 "a meta-observable producing observables
// (flat_concat)").
func FlatConcat[T any](coordinator *Coordinator, sources Observable[Observable[T]]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &flatConcatRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) {
				if r.current != nil {
					r.current.Request(n)
				}
			},
			OnCancel: func() {
				if r.outer != nil {
					r.outer.Cancel()
				}
				if r.current != nil {
					r.current.Cancel()
				}
			},
			OnDispose: func() {
				if r.outer != nil {
					r.outer.Dispose()
				}
				if r.current != nil {
					r.current.Dispose()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		outerObserver := NewObserverWithContext(
			func(ctx context.Context, inner Observable[T]) { r.enqueue(inner) },
			func(ctx context.Context, err error) { r.destination.OnErrorWithContext(ctx, err) },
			func(ctx context.Context) {
				r.outerDone = true
				r.maybeComplete()
			},
		)

		d := sources.SubscribeWithContext(ctx, outerObserver)
		if u, ok := d.(Subscription); ok {
			r.outer = u
			u.Request(math.MaxUint64)
		}

		return sub
	})
}

type flatConcatRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	ctx         context.Context

	outer     Subscription
	outerDone bool
	pending   []Observable[T]
	current   Subscription
}

func (r *flatConcatRunner[T]) enqueue(inner Observable[T]) {
	r.pending = append(r.pending, inner)
	r.maybeStartNext()
}

func (r *flatConcatRunner[T]) maybeStartNext() {
	if r.current != nil || len(r.pending) == 0 {
		return
	}

	next := r.pending[0]
	r.pending = r.pending[1:]

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			if r.concreteSub != nil {
				r.concreteSub.Consume(1)
			}
			r.destination.OnNextWithContext(ctx, v)
		},
		func(ctx context.Context, err error) { r.destination.OnErrorWithContext(ctx, err) },
		func(ctx context.Context) {
			r.current = nil
			r.maybeStartNext()
			r.maybeComplete()
		},
	)

	d := next.SubscribeWithContext(r.ctx, observer)
	if u, ok := d.(Subscription); ok {
		r.current = u

		if r.concreteSub != nil {
			if demand := r.concreteSub.Demand(); demand > 0 {
				u.Request(demand)
			}
		}
	}
}

func (r *flatConcatRunner[T]) maybeComplete() {
	if r.outerDone && r.current == nil && len(r.pending) == 0 {
		r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
	}
}

/************
 * ZipWith  *
 ************/

type zipInput[T any] struct {
	sub   Subscription
	queue []T
	done  bool
}

type zipRunner[T, R any] struct {
	coordinator *Coordinator
	destination Observer[R]
	downstream  Subscription
	concreteSub *subscription
	fn          func([]T) R
	inputs      []*zipInput[T]
	ctx         context.Context
	terminated  bool
	err         error
	outBuffer   []R
}

// ZipWith buffers one pending item per input and emits fn applied to the
// buffered tuple as soon as every input has one, dropping the consumed items.
// An input that completes with its queue empty completes the zip (§4.4.3
// "zip_with").
func ZipWith[T, R any](coordinator *Coordinator, fn func([]T) R, sources ...Observable[T]) Observable[R] {
	return NewObservable(func(ctx context.Context, destination Observer[R]) Disposable {
		if len(sources) == 0 {
			sub := NewNoopSubscription()
			destination.OnSubscribeWithContext(ctx, sub)
			coordinator.Delay(func() { destination.OnErrorWithContext(ctx, ErrCannotCombineEmptyObservables) })

			return sub
		}

		r := &zipRunner[T, R]{coordinator: coordinator, destination: destination, fn: fn, ctx: ctx}
		r.inputs = make([]*zipInput[T], len(sources))
		for i := range r.inputs {
			r.inputs[i] = &zipInput[T]{}
		}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) {
				for _, input := range r.inputs {
					if input.sub != nil {
						input.sub.Request(n)
					}
				}
				r.drain()
			},
			OnCancel: func() { r.cancelAll() },
			OnDispose: func() {
				r.cancelAll()
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		for i, source := range sources {
			i := i

			observer := NewObserverWithContext(
				func(ctx context.Context, v T) { r.onInputNext(i, v) },
				func(ctx context.Context, err error) { r.onInputError(err) },
				func(ctx context.Context) { r.onInputComplete(i) },
			)

			d := source.SubscribeWithContext(ctx, observer)
			if u, ok := d.(Subscription); ok {
				r.inputs[i].sub = u
				u.Request(1)

				if r.concreteSub != nil {
					if demand := r.concreteSub.Demand(); demand > 1 {
						u.Request(demand - 1)
					}
				}
			}
		}

		return sub
	})
}

func (r *zipRunner[T, R]) onInputNext(i int, v T) {
	if r.downstream.Disposed() || r.terminated {
		return
	}

	r.inputs[i].queue = append(r.inputs[i].queue, v)
	r.combine()
	r.drain()
}

func (r *zipRunner[T, R]) combine() {
	for {
		ready := true
		for _, input := range r.inputs {
			if len(input.queue) == 0 {
				ready = false
				break
			}
		}

		if !ready {
			break
		}

		values := make([]T, len(r.inputs))
		for i, input := range r.inputs {
			values[i] = input.queue[0]
			input.queue = input.queue[1:]
		}

		var out R
		errored := false

		lo.TryCatchWithErrorValue(
			func() error { out = r.fn(values); return nil },
			func(e any) {
				r.err = newRuntimeError(recoverValueToError(e))
				r.terminated = true
				errored = true
			},
		)

		if errored {
			return
		}

		r.outBuffer = append(r.outBuffer, out)
	}

	for _, input := range r.inputs {
		if input.done && len(input.queue) == 0 {
			r.terminated = true
			break
		}
	}
}

func (r *zipRunner[T, R]) onInputError(err error) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err
	r.cancelAll()
	r.drain()
}

func (r *zipRunner[T, R]) onInputComplete(i int) {
	if r.terminated {
		return
	}

	r.inputs[i].done = true
	r.combine()
	r.drain()
}

func (r *zipRunner[T, R]) drain() {
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
		} else {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

func (r *zipRunner[T, R]) cancelAll() {
	for _, input := range r.inputs {
		if input.sub != nil {
			input.sub.Cancel()
		}
	}
}

/*****************
 * CombineLatest *
 *****************/

type combineLatestInput[T any] struct {
	sub   Subscription
	value T
	has   bool
	done  bool
}

type combineLatestRunner[T, R any] struct {
	coordinator *Coordinator
	destination Observer[R]
	downstream  Subscription
	concreteSub *subscription
	fn          func([]T) R
	inputs      []*combineLatestInput[T]
	ctx         context.Context
	terminated  bool
	err         error
	outBuffer   []R
}

// CombineLatest keeps the latest value of every input and emits fn applied to
// the tuple of latest values on every arrival once every input has produced
// at least one. An input completing having never emitted fails the whole
// combination with ErrCannotCombineEmptyObservables; a source whose Subscribe
// does not hand back a Subscription is treated as the "single invalid input"
// case and fails with ErrInvalidObservable (§4.4.3 "combine_latest").
func CombineLatest[T, R any](coordinator *Coordinator, fn func([]T) R, sources ...Observable[T]) Observable[R] {
	return NewObservable(func(ctx context.Context, destination Observer[R]) Disposable {
		if len(sources) == 0 {
			sub := NewNoopSubscription()
			destination.OnSubscribeWithContext(ctx, sub)
			coordinator.Delay(func() { destination.OnErrorWithContext(ctx, ErrCannotCombineEmptyObservables) })

			return sub
		}

		r := &combineLatestRunner[T, R]{coordinator: coordinator, destination: destination, fn: fn, ctx: ctx}
		r.inputs = make([]*combineLatestInput[T], len(sources))
		for i := range r.inputs {
			r.inputs[i] = &combineLatestInput[T]{}
		}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.drain() },
			OnCancel: func() { r.cancelAll() },
			OnDispose: func() {
				r.cancelAll()
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		for i, source := range sources {
			i := i

			observer := NewObserverWithContext(
				func(ctx context.Context, v T) { r.onInputNext(i, v) },
				func(ctx context.Context, err error) { r.onInputError(err) },
				func(ctx context.Context) { r.onInputComplete(i) },
			)

			d := source.SubscribeWithContext(ctx, observer)

			u, ok := d.(Subscription)
			if !ok {
				r.terminated = true
				r.err = ErrInvalidObservable
				r.cancelAll()
				r.drain()

				continue
			}

			r.inputs[i].sub = u
			u.Request(math.MaxUint64)
		}

		return sub
	})
}

func (r *combineLatestRunner[T, R]) onInputNext(i int, v T) {
	if r.downstream.Disposed() || r.terminated {
		return
	}

	input := r.inputs[i]
	input.value = v
	input.has = true

	allHave := true
	values := make([]T, len(r.inputs))

	for idx, in := range r.inputs {
		if !in.has {
			allHave = false
			break
		}
		values[idx] = in.value
	}

	if allHave {
		var out R
		errored := false

		lo.TryCatchWithErrorValue(
			func() error { out = r.fn(values); return nil },
			func(e any) {
				r.err = newRuntimeError(recoverValueToError(e))
				r.terminated = true
				errored = true
			},
		)

		if !errored {
			r.outBuffer = append(r.outBuffer, out)
		}
	}

	r.drain()
}

func (r *combineLatestRunner[T, R]) onInputError(err error) {
	if r.terminated {
		return
	}

	r.terminated = true
	r.err = err
	r.cancelAll()
	r.drain()
}

func (r *combineLatestRunner[T, R]) onInputComplete(i int) {
	if r.terminated {
		return
	}

	if !r.inputs[i].has {
		r.terminated = true
		r.err = ErrCannotCombineEmptyObservables
		r.cancelAll()
	}

	r.inputs[i].done = true

	if !r.terminated {
		allDone := true
		for _, in := range r.inputs {
			if !in.done {
				allDone = false
				break
			}
		}

		if allDone {
			r.terminated = true
		}
	}

	r.drain()
}

func (r *combineLatestRunner[T, R]) drain() {
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
		} else {
			r.coordinator.Delay(func() { r.destination.OnCompleteWithContext(r.ctx) })
		}
	}
}

func (r *combineLatestRunner[T, R]) cancelAll() {
	for _, input := range r.inputs {
		if input.sub != nil {
			input.sub.Cancel()
		}
	}
}
