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

// ObservableBuilder is the coordinator-bound factory of §4.6: "an observable
// builder attached to a coordinator exposes factory methods... each factory
// returns an observable whose ctx() is the builder's coordinator". Go
// forbids additional type parameters on methods (the same restriction noted
// on Coordinator.AddChild), so the factories themselves — Empty, Just,
// Repeat, Iota, Range, Fail, Never, Defer, FromContainer, FromGenerator,
// FromResource, FromCallable — are package-level generic functions taking a
// *Coordinator as their first argument; ObservableBuilder exists to hand
// that coordinator around as a single bound value instead of threading it
// through every call site.
type ObservableBuilder struct {
	coordinator *Coordinator
}

// NewObservableBuilder binds a builder to coordinator.
func NewObservableBuilder(coordinator *Coordinator) *ObservableBuilder {
	return &ObservableBuilder{coordinator: coordinator}
}

// Coordinator returns the coordinator every observable built through b is
// bound to.
func (b *ObservableBuilder) Coordinator() *Coordinator { return b.coordinator }

func fromGeneratorFactory[T any](coordinator *Coordinator, factory func() Generator[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		return FromGenerator(coordinator, factory()).SubscribeWithContext(ctx, destination)
	})
}

// Just emits x once, then completes (§4.6 "just(x)").
func Just[T any](coordinator *Coordinator, x T) Observable[T] {
	return fromGeneratorFactory(coordinator, func() Generator[T] {
		done := false

		return func() (T, bool, error) {
			if done {
				var zero T
				return zero, false, nil
			}

			done = true

			return x, true, nil
		}
	})
}

// Repeat emits x forever, bounded only by downstream demand (§4.6
// "repeat(x)").
func Repeat[T any](coordinator *Coordinator, x T) Observable[T] {
	return fromGeneratorFactory(coordinator, func() Generator[T] {
		return func() (T, bool, error) { return x, true, nil }
	})
}

// Iota emits an unbounded, monotonically increasing sequence of int64
// starting at start (§4.6 "iota(start)").
func Iota(coordinator *Coordinator, start int64) Observable[int64] {
	return fromGeneratorFactory(coordinator, func() Generator[int64] {
		next := start

		return func() (int64, bool, error) {
			v := next
			next++

			return v, true, nil
		}
	})
}

// Range emits n consecutive int64 starting at start, then completes (§4.6
// "range(start, n)").
func Range(coordinator *Coordinator, start int64, n int64) Observable[int64] {
	return fromGeneratorFactory(coordinator, func() Generator[int64] {
		next := start
		remaining := n

		return func() (int64, bool, error) {
			if remaining <= 0 {
				return 0, false, nil
			}

			v := next
			next++
			remaining--

			return v, true, nil
		}
	})
}

// FromContainer emits every element of items, in order, then completes
// (§4.6 "from_container(c)").
func FromContainer[T any](coordinator *Coordinator, items []T) Observable[T] {
	return fromGeneratorFactory(coordinator, func() Generator[T] {
		idx := 0

		return func() (T, bool, error) {
			if idx >= len(items) {
				var zero T
				return zero, false, nil
			}

			v := items[idx]
			idx++

			return v, true, nil
		}
	})
}

// FromCallable calls fn once per subscription, emitting its result or
// forwarding its error (§4.6 "from_callable(f)").
func FromCallable[T any](coordinator *Coordinator, fn func() (T, error)) Observable[T] {
	return fromGeneratorFactory(coordinator, func() Generator[T] {
		done := false

		return func() (T, bool, error) {
			if done {
				var zero T
				return zero, false, nil
			}

			done = true

			v, err := fn()
			if err != nil {
				var zero T
				return zero, false, err
			}

			return v, true, nil
		}
	})
}
