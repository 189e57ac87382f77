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

// DefaultForEachBuffer is the demand for_each requests up front and
// replenishes by, one item at a time, as it consumes them.
const DefaultForEachBuffer = 16

// ForEach subscribes to source with an observer that requests
// DefaultForEachBuffer items up front, invokes onNext for each item and
// re-requests one to keep that window full, and forwards the terminal event
// to onError/onComplete (either may be nil, in which case that event is
// silently swallowed) (§4.4.6 "for_each").
func ForEach[T any](source Observable[T], onNext func(T), onError func(error), onComplete func()) Disposable {
	return ForEachWithContext(
		context.Background(),
		source,
		func(_ context.Context, v T) { onNext(v) },
		func(_ context.Context, err error) {
			if onError != nil {
				onError(err)
			}
		},
		func(_ context.Context) {
			if onComplete != nil {
				onComplete()
			}
		},
	)
}

// ForEachWithContext is ForEach's context-propagating twin.
func ForEachWithContext[T any](
	ctx context.Context,
	source Observable[T],
	onNext func(ctx context.Context, value T),
	onError func(ctx context.Context, err error),
	onComplete func(ctx context.Context),
) Disposable {
	var sub Subscription

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			onNext(ctx, v)

			if sub != nil {
				sub.Request(1)
			}
		},
		func(ctx context.Context, err error) {
			if onError != nil {
				onError(ctx, err)
			}
		},
		func(ctx context.Context) {
			if onComplete != nil {
				onComplete(ctx)
			}
		},
	)

	d := source.SubscribeWithContext(ctx, observer)
	if u, ok := d.(Subscription); ok {
		sub = u
		sub.Request(DefaultForEachBuffer)
	}

	return d
}
