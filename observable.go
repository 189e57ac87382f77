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

// Observable is a multi- or single-source producer (§3 "Observable
// (operator)"): a factory for streams, not a stream itself. Subscribe either
// hands the destination observer a live Subscription through OnSubscribe and
// returns it as a Disposable, or calls OnError on the destination and returns
// an already-disposed Disposable.
//
// Cold operators build fresh per-subscriber state on every Subscribe; hot
// operators share state and broadcast to whichever observers are currently
// attached. Both kinds carry the Coordinator their subscribe function runs
// under.
type Observable[T any] interface {
	Subscribe(destination Observer[T]) Disposable
	SubscribeWithContext(ctx context.Context, destination Observer[T]) Disposable
}

var _ Observable[int] = (*observableImpl[int])(nil)

// NewObservable builds an Observable from a subscribe function. subscribe is
// responsible for calling destination.OnSubscribeWithContext exactly once
// before any OnNext, and for returning the Disposable that governs this
// subscription's lifetime (typically the very Subscription it handed to
// destination).
func NewObservable[T any](subscribe func(ctx context.Context, destination Observer[T]) Disposable) Observable[T] {
	return &observableImpl[T]{subscribe: subscribe}
}

type observableImpl[T any] struct {
	subscribe func(ctx context.Context, destination Observer[T]) Disposable
}

func (o *observableImpl[T]) Subscribe(destination Observer[T]) Disposable {
	return o.SubscribeWithContext(context.Background(), destination)
}

func (o *observableImpl[T]) SubscribeWithContext(ctx context.Context, destination Observer[T]) Disposable {
	var result Disposable

	lo.TryCatchWithErrorValue(
		func() error {
			result = o.subscribe(ctx, destination)
			return nil
		},
		func(e any) {
			err := newRuntimeError(recoverValueToError(e))
			destination.OnErrorWithContext(ctx, err)
			result = NoopDisposable()
		},
	)

	if result == nil {
		result = NoopDisposable()
	}

	return result
}

// FromSubscribeFunc is an alias of NewObservable kept for operators that read
// more naturally constructing an Observable from an already-named function
// value instead of a literal.
func FromSubscribeFunc[T any](subscribe func(ctx context.Context, destination Observer[T]) Disposable) Observable[T] {
	return NewObservable(subscribe)
}
