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
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
)

// Observer is the consumer capability of §3/§4.3: it receives exactly one
// OnSubscribe before any data event, zero or more OnNext, and exactly one of
// OnComplete or OnError. A second OnSubscribe must be refused and the extra
// subscription cancelled; events delivered after a terminal event are
// dropped, not delivered.
type Observer[T any] interface {
	// OnSubscribe hands the observer its Subscription. Called at most once;
	// a second call cancels the new subscription instead of replacing the
	// first one.
	OnSubscribe(subscription Subscription)
	OnSubscribeWithContext(ctx context.Context, subscription Subscription)

	// OnNext delivers the next item. Never called before OnSubscribe, never
	// after a terminal event, and never more times than the sum of
	// Request(n) issued on the subscription.
	OnNext(value T)
	OnNextWithContext(ctx context.Context, value T)

	// OnError delivers the (at most one) terminal error.
	OnError(err error)
	OnErrorWithContext(ctx context.Context, err error)

	// OnComplete delivers the (at most one) terminal completion.
	OnComplete()
	OnCompleteWithContext(ctx context.Context)

	// Disposed reports whether a terminal event has already been delivered.
	Disposed() bool
	// HasThrown reports whether the terminal event was OnError.
	HasThrown() bool
	// IsCompleted reports whether the terminal event was OnComplete.
	IsCompleted() bool
}

const (
	observerUnsubscribed int32 = iota
	observerActive
	observerErrored
	observerCompleted
)

var _ Observer[int] = (*observerImpl[int])(nil)

// NewObserver creates an Observer from plain callbacks, with no context
// propagation.
func NewObserver[T any](onNext func(value T), onError func(err error), onComplete func()) Observer[T] {
	return NewObserverWithContext(
		func(_ context.Context, value T) { onNext(value) },
		func(_ context.Context, err error) { onError(err) },
		func(_ context.Context) { onComplete() },
	)
}

// NewObserverWithContext creates an Observer whose callbacks receive the
// context passed to the XWithContext call that triggered them.
func NewObserverWithContext[T any](
	onNext func(ctx context.Context, value T),
	onError func(ctx context.Context, err error),
	onComplete func(ctx context.Context),
) Observer[T] {
	return &observerImpl[T]{
		onNext:     onNext,
		onError:    onError,
		onComplete: onComplete,
	}
}

type observerImpl[T any] struct {
	status       atomic.Int32
	subscription Subscription
	onNext       func(context.Context, T)
	onError      func(context.Context, error)
	onComplete   func(context.Context)
}

func (o *observerImpl[T]) OnSubscribe(subscription Subscription) {
	o.OnSubscribeWithContext(context.Background(), subscription)
}

func (o *observerImpl[T]) OnSubscribeWithContext(ctx context.Context, subscription Subscription) {
	if !o.status.CompareAndSwap(observerUnsubscribed, observerActive) {
		if subscription != nil {
			subscription.Cancel()
		}

		return
	}

	o.subscription = subscription
}

func (o *observerImpl[T]) OnNext(value T) {
	o.OnNextWithContext(context.Background(), value)
}

func (o *observerImpl[T]) OnNextWithContext(ctx context.Context, value T) {
	if o.onNext == nil || o.status.Load() != observerActive {
		OnDroppedNotification(ctx, NewNotificationNext(value))
		return
	}

	o.tryNext(ctx, value)
}

func (o *observerImpl[T]) OnError(err error) {
	o.OnErrorWithContext(context.Background(), err)
}

func (o *observerImpl[T]) OnErrorWithContext(ctx context.Context, err error) {
	if o.onError == nil || !o.status.CompareAndSwap(observerActive, observerErrored) {
		OnDroppedNotification(ctx, NewNotificationError[T](err))
		return
	}

	o.tryError(ctx, err)
}

func (o *observerImpl[T]) OnComplete() {
	o.OnCompleteWithContext(context.Background())
}

func (o *observerImpl[T]) OnCompleteWithContext(ctx context.Context) {
	if o.onComplete == nil || !o.status.CompareAndSwap(observerActive, observerCompleted) {
		OnDroppedNotification(ctx, NewNotificationComplete[T]())
		return
	}

	o.tryComplete(ctx)
}

func (o *observerImpl[T]) tryNext(ctx context.Context, value T) {
	lo.TryCatchWithErrorValue(
		func() error {
			o.onNext(ctx, value)
			return nil
		},
		func(e any) {
			err := newObserverError(recoverValueToError(e))

			if o.onError == nil {
				OnUnhandledError(ctx, err)
			} else if o.status.CompareAndSwap(observerActive, observerErrored) {
				o.tryError(ctx, err)
			}
		},
	)
}

func (o *observerImpl[T]) tryError(ctx context.Context, err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			o.onError(ctx, err)
			return nil
		},
		func(e any) {
			OnUnhandledError(ctx, newObserverError(recoverValueToError(e)))
		},
	)
}

func (o *observerImpl[T]) tryComplete(ctx context.Context) {
	lo.TryCatchWithErrorValue(
		func() error {
			o.onComplete(ctx)
			return nil
		},
		func(e any) {
			OnUnhandledError(ctx, newObserverError(recoverValueToError(e)))
		},
	)
}

func (o *observerImpl[T]) Disposed() bool {
	return o.status.Load() != observerUnsubscribed && o.status.Load() != observerActive
}

func (o *observerImpl[T]) HasThrown() bool {
	return o.status.Load() == observerErrored
}

func (o *observerImpl[T]) IsCompleted() bool {
	return o.status.Load() == observerCompleted
}

/*********************
 * Partial observers *
 *********************/

// OnNextObserver builds an Observer with only OnNext implemented; errors are
// forwarded to OnUnhandledError instead of being silently dropped.
func OnNextObserver[T any](onNext func(value T)) Observer[T] {
	return NewObserver(onNext, func(err error) { OnUnhandledError(context.Background(), err) }, func() {})
}

// OnErrorObserver builds an Observer with only OnError implemented.
func OnErrorObserver[T any](onError func(err error)) Observer[T] {
	return NewObserver(func(T) {}, onError, func() {})
}

// OnCompleteObserver builds an Observer with only OnComplete implemented.
func OnCompleteObserver[T any](onComplete func()) Observer[T] {
	return NewObserver(func(T) {}, func(error) {}, onComplete)
}

// NoopObserver discards every notification it receives.
func NoopObserver[T any]() Observer[T] {
	return NewObserver(func(T) {}, func(error) {}, func() {})
}

// PrintObserver dumps every notification to stdout; useful when wiring a
// graph together interactively, never in production code.
func PrintObserver[T any]() Observer[T] {
	return NewObserver(
		func(value T) { fmt.Printf("OnNext: %v\n", value) },
		func(err error) { fmt.Printf("OnError: %s\n", err.Error()) },
		func() { fmt.Println("OnComplete") },
	)
}

/**************************
 * Forwarding observer *
 **************************/

// forwardingObserver relays OnSubscribe to destination untouched and lets an
// operator intercept OnNext/OnError/OnComplete before deciding whether (and
// how) to forward them on. It exists for the handful of operators — DoOnError,
// DoFinally, OnErrorComplete — that sit outside the Step/runStep framework
// because they need direct access to the terminal channel rather than only
// the per-item one; everything else goes through runStep instead of this.
type forwardingObserver[T any] struct {
	destination Observer[T]
	onNext      func(ctx context.Context, value T, destination Observer[T])
	onError     func(ctx context.Context, err error, destination Observer[T])
	onComplete  func(ctx context.Context, destination Observer[T])
}

var _ Observer[int] = (*forwardingObserver[int])(nil)

func newForwardingObserver[T any](
	destination Observer[T],
	onNext func(ctx context.Context, value T, destination Observer[T]),
	onError func(ctx context.Context, err error, destination Observer[T]),
	onComplete func(ctx context.Context, destination Observer[T]),
) Observer[T] {
	return &forwardingObserver[T]{
		destination: destination,
		onNext:      onNext,
		onError:     onError,
		onComplete:  onComplete,
	}
}

func (f *forwardingObserver[T]) OnSubscribe(subscription Subscription) {
	f.destination.OnSubscribe(subscription)
}

func (f *forwardingObserver[T]) OnSubscribeWithContext(ctx context.Context, subscription Subscription) {
	f.destination.OnSubscribeWithContext(ctx, subscription)
}

func (f *forwardingObserver[T]) OnNext(value T) {
	f.OnNextWithContext(context.Background(), value)
}

func (f *forwardingObserver[T]) OnNextWithContext(ctx context.Context, value T) {
	if f.onNext != nil {
		f.onNext(ctx, value, f.destination)
		return
	}

	f.destination.OnNextWithContext(ctx, value)
}

func (f *forwardingObserver[T]) OnError(err error) {
	f.OnErrorWithContext(context.Background(), err)
}

func (f *forwardingObserver[T]) OnErrorWithContext(ctx context.Context, err error) {
	if f.onError != nil {
		f.onError(ctx, err, f.destination)
		return
	}

	f.destination.OnErrorWithContext(ctx, err)
}

func (f *forwardingObserver[T]) OnComplete() {
	f.OnCompleteWithContext(context.Background())
}

func (f *forwardingObserver[T]) OnCompleteWithContext(ctx context.Context) {
	if f.onComplete != nil {
		f.onComplete(ctx, f.destination)
		return
	}

	f.destination.OnCompleteWithContext(ctx)
}

func (f *forwardingObserver[T]) Disposed() bool    { return f.destination.Disposed() }
func (f *forwardingObserver[T]) HasThrown() bool   { return f.destination.HasThrown() }
func (f *forwardingObserver[T]) IsCompleted() bool { return f.destination.IsCompleted() }
