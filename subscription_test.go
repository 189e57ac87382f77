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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRequestAccumulatesDemandAndWakesOnDemand(t *testing.T) {
	t.Parallel()

	var got uint64
	s := NewSubscription(nil, SubscriptionCallbacks{OnDemand: func(n uint64) { got += n }})

	s.Request(3)
	s.Request(4)

	assert.Equal(t, uint64(7), got)
	assert.Equal(t, uint64(7), s.(*subscription).Demand())
}

func TestSubscriptionRequestZeroIsNoop(t *testing.T) {
	t.Parallel()

	called := false
	s := NewSubscription(nil, SubscriptionCallbacks{OnDemand: func(uint64) { called = true }})

	s.Request(0)
	assert.False(t, called)
}

func TestSubscriptionRequestSaturatesInsteadOfWrapping(t *testing.T) {
	t.Parallel()

	s := NewSubscription(nil, SubscriptionCallbacks{})
	s.Request(math.MaxUint64)
	s.Request(10)

	assert.Equal(t, uint64(math.MaxUint64), s.(*subscription).Demand())
}

func TestSubscriptionCancelRunsOnCancelOnceAndIsCooperative(t *testing.T) {
	t.Parallel()

	calls := 0
	s := NewSubscription(nil, SubscriptionCallbacks{OnCancel: func() { calls++ }})

	s.Cancel()
	s.Cancel()

	assert.Equal(t, 1, calls)
	assert.True(t, s.Disposed())
}

func TestSubscriptionRequestAfterCancelIsNoop(t *testing.T) {
	t.Parallel()

	got := uint64(0)
	s := NewSubscription(nil, SubscriptionCallbacks{OnDemand: func(n uint64) { got += n }})

	s.Cancel()
	s.Request(5)

	assert.Equal(t, uint64(0), got)
}

func TestSubscriptionDisposeDelaysOnDisposeIntoCoordinator(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("subscription")

	ran := false
	s := NewSubscription(c, SubscriptionCallbacks{OnDispose: func() { ran = true }})

	s.Dispose()
	assert.False(t, ran, "OnDispose must not run synchronously")

	drainAll(c)
	assert.True(t, ran)
	assert.True(t, s.Disposed())
}

func TestSubscriptionDisposeWithoutCoordinatorRunsSynchronously(t *testing.T) {
	t.Parallel()

	ran := false
	s := NewSubscription(nil, SubscriptionCallbacks{OnDispose: func() { ran = true }})

	s.Dispose()
	assert.True(t, ran)
}

func TestSubscriptionDisposeThenCancelIsNoop(t *testing.T) {
	t.Parallel()

	cancelCalls := 0
	s := NewSubscription(nil, SubscriptionCallbacks{OnCancel: func() { cancelCalls++ }})

	s.Dispose()
	s.Cancel()

	assert.Equal(t, 0, cancelCalls)
}

func TestSubscriptionConsumeSubtractsDemandAndFloorsAtZero(t *testing.T) {
	t.Parallel()

	s := NewSubscription(nil, SubscriptionCallbacks{}).(*subscription)
	s.Request(5)

	s.Consume(2)
	assert.Equal(t, uint64(3), s.Demand())

	s.Consume(100)
	assert.Equal(t, uint64(0), s.Demand())
}

func TestNoopSubscriptionIsAlreadyTerminal(t *testing.T) {
	t.Parallel()

	s := NewNoopSubscription()
	assert.True(t, s.Disposed())

	s.Request(10)
	s.Cancel()
	s.Dispose()
	assert.True(t, s.Disposed())
}
