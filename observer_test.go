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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserverDeliversNextThenComplete(t *testing.T) {
	t.Parallel()

	var got []int
	completed := false

	o := NewObserver(func(v int) { got = append(got, v) }, func(error) {}, func() { completed = true })
	o.OnSubscribe(NewNoopSubscription())

	o.OnNext(1)
	o.OnNext(2)
	o.OnComplete()

	assert.Equal(t, []int{1, 2}, got)
	assert.True(t, completed)
	assert.True(t, o.IsCompleted())
	assert.True(t, o.Disposed())
	assert.False(t, o.HasThrown())
}

func TestObserverOnErrorIsTerminalAndExclusiveWithComplete(t *testing.T) {
	t.Parallel()

	var gotErr error
	completed := false

	o := NewObserver(func(int) {}, func(err error) { gotErr = err }, func() { completed = true })
	o.OnSubscribe(NewNoopSubscription())

	boom := errors.New("boom")
	o.OnError(boom)
	o.OnComplete() // dropped: already terminal

	assert.ErrorIs(t, gotErr, boom)
	assert.False(t, completed)
	assert.True(t, o.HasThrown())
}

func TestObserverSecondOnSubscribeCancelsTheNewSubscription(t *testing.T) {
	t.Parallel()

	o := NewObserver(func(int) {}, func(error) {}, func() {})
	o.OnSubscribe(NewNoopSubscription())

	cancelled := false
	second := NewSubscription(nil, SubscriptionCallbacks{OnCancel: func() { cancelled = true }})
	o.OnSubscribe(second)

	assert.True(t, cancelled)
}

func TestObserverDropsNextAfterTerminalEvent(t *testing.T) {
	t.Parallel()

	var got []int
	o := NewObserver(func(v int) { got = append(got, v) }, func(error) {}, func() {})
	o.OnSubscribe(NewNoopSubscription())

	o.OnComplete()
	o.OnNext(1)

	assert.Empty(t, got)
}

func TestObserverOnNextBeforeSubscribeIsDropped(t *testing.T) {
	t.Parallel()

	var got []int
	o := NewObserver(func(v int) { got = append(got, v) }, func(error) {}, func() {})

	o.OnNext(1)
	assert.Empty(t, got)
}

func TestObserverPanicInOnNextForwardsToOnError(t *testing.T) {
	t.Parallel()

	var gotErr error
	o := NewObserver(func(int) { panic(errors.New("splat")) }, func(err error) { gotErr = err }, func() {})
	o.OnSubscribe(NewNoopSubscription())

	o.OnNext(1)

	assert.ErrorContains(t, gotErr, "splat")
	assert.True(t, o.HasThrown())
}

func TestObserverPanicInOnNextWithoutOnErrorGoesToOnUnhandledError(t *testing.T) {
	original := OnUnhandledError
	defer func() { OnUnhandledError = original }()

	var got error
	OnUnhandledError = func(ctx context.Context, err error) { got = err }

	o := OnNextObserver(func(int) { panic(errors.New("splat")) })
	o.OnSubscribe(NewNoopSubscription())
	o.OnNext(1)

	assert.ErrorContains(t, got, "splat")
}

func TestObserverOnNextWithContextDroppedReportsNotification(t *testing.T) {
	original := OnDroppedNotification
	defer func() { OnDroppedNotification = original }()

	var got fmt.Stringer
	OnDroppedNotification = func(ctx context.Context, n fmt.Stringer) { got = n }

	o := NewObserver(func(int) {}, func(error) {}, func() {})
	// not subscribed yet: status is observerUnsubscribed, not observerActive.
	o.OnNext(42)

	assert.NotNil(t, got)
	assert.Contains(t, got.String(), "42")
}

func TestPartialObserverHelpersOnlyWireOneCallback(t *testing.T) {
	t.Parallel()

	var got int
	o := OnNextObserver(func(v int) { got = v })
	o.OnSubscribe(NewNoopSubscription())
	o.OnNext(9)
	assert.Equal(t, 9, got)

	var gotErr error
	eo := OnErrorObserver[int](func(err error) { gotErr = err })
	eo.OnSubscribe(NewNoopSubscription())
	eo.OnError(errors.New("boom"))
	assert.ErrorContains(t, gotErr, "boom")

	completed := false
	co := OnCompleteObserver[int](func() { completed = true })
	co.OnSubscribe(NewNoopSubscription())
	co.OnComplete()
	assert.True(t, completed)

	no := NoopObserver[int]()
	no.OnSubscribe(NewNoopSubscription())
	no.OnNext(1)
	no.OnComplete()
	assert.True(t, no.IsCompleted())
}

func TestForwardingObserverInterceptsBeforeForwarding(t *testing.T) {
	t.Parallel()

	var got []int
	destination := NewObserver(func(v int) { got = append(got, v) }, func(error) {}, func() {})

	fo := newForwardingObserver[int](
		destination,
		func(ctx context.Context, value int, dst Observer[int]) { dst.OnNextWithContext(ctx, value*2) },
		nil,
		nil,
	)

	fo.OnSubscribe(NewNoopSubscription())
	fo.OnNext(5)

	assert.Equal(t, []int{10}, got)
}

func TestForwardingObserverPassesThroughWhenNoInterceptorSet(t *testing.T) {
	t.Parallel()

	var got []int
	completed := false
	destination := NewObserver(func(v int) { got = append(got, v) }, func(error) {}, func() { completed = true })

	fo := newForwardingObserver[int](destination, nil, nil, nil)
	fo.OnSubscribe(NewNoopSubscription())
	fo.OnNext(1)
	fo.OnComplete()

	assert.Equal(t, []int{1}, got)
	assert.True(t, completed)
	assert.True(t, fo.IsCompleted())
}
