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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnicastBuffersUntilDemandThenDrains(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("unicast")
	u := NewUnicast[int](c, UnicastCallbacks{})

	r, sub := subscribeRecording(u.AsObservable(), 0)
	u.Push(1)
	u.Push(2)
	drainAll(c)
	assert.Empty(t, r.next)

	sub.Request(10)
	drainAll(c)
	assert.Equal(t, []int{1, 2}, r.next)
}

func TestUnicastSecondSubscriberIsRefused(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("unicast-refused")
	u := NewUnicast[int](c, UnicastCallbacks{})

	_, _ = subscribeRecording(u.AsObservable(), 10)
	r2, _ := subscribeRecording(u.AsObservable(), 10)
	drainAll(c)

	assert.ErrorIs(t, r2.err, ErrTooManyObservers)
}

func TestUnicastCloseCompletesAfterBufferDrains(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("unicast-close")
	u := NewUnicast[int](c, UnicastCallbacks{})

	r, sub := subscribeRecording(u.AsObservable(), 0)
	u.Push(1)
	u.Close()
	drainAll(c)
	assert.False(t, r.completed)

	sub.Request(10)
	drainAll(c)
	assert.Equal(t, []int{1}, r.next)
	assert.True(t, r.completed)
}

func TestUnicastAbortDeliversErrorAfterBufferDrains(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("unicast-abort")
	u := NewUnicast[int](c, UnicastCallbacks{})
	boom := errors.New("boom")

	r, _ := subscribeRecording(u.AsObservable(), 10)
	u.Push(1)
	u.Abort(boom)
	drainAll(c)

	assert.Equal(t, []int{1}, r.next)
	assert.ErrorIs(t, r.err, boom)
}

func TestUnicastNotifiesConsumedSomeAndDemandChanged(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("unicast-callbacks")

	var consumedOld, consumedNew uint64
	var demandOld, demandNew uint64

	u := NewUnicast[int](c, UnicastCallbacks{
		OnConsumedSome:  func(old, new uint64) { consumedOld, consumedNew = old, new },
		OnDemandChanged: func(old, new uint64) { demandOld, demandNew = old, new },
	})

	_, sub := subscribeRecording(u.AsObservable(), 0)
	u.Push(1)
	u.Push(2)

	sub.Request(1)
	assert.Equal(t, uint64(0), demandOld)
	assert.Equal(t, uint64(1), demandNew)
	assert.Equal(t, uint64(2), consumedOld)
	assert.Equal(t, uint64(1), consumedNew)
}

func TestMulticastPushAllFansOutToEverySubscriberIndependently(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("multicast")
	m := NewMulticast[int](c)

	r1, sub1 := subscribeRecording(m.AsObservable(), 0)
	r2, _ := subscribeRecording(m.AsObservable(), 10)

	assert.Equal(t, 2, m.CountObservers())

	m.PushAll(1)
	drainAll(c)

	assert.Empty(t, r1.next, "subscriber without demand keeps its item buffered")
	assert.Equal(t, []int{1}, r2.next)

	sub1.Request(10)
	drainAll(c)
	assert.Equal(t, []int{1}, r1.next)
}

func TestMulticastCloseCompletesEveryAttachedSubscriber(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("multicast-close")
	m := NewMulticast[int](c)

	r, _ := subscribeRecording(m.AsObservable(), 10)
	m.Close()
	drainAll(c)

	assert.True(t, r.completed)
}

func TestMulticastAbortErrorsEveryAttachedSubscriber(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("multicast-abort")
	m := NewMulticast[int](c)
	boom := errors.New("boom")

	r, _ := subscribeRecording(m.AsObservable(), 10)
	m.Abort(boom)
	drainAll(c)

	assert.ErrorIs(t, r.err, boom)
}

func TestMulticastCancelRemovesSubscriberFromCount(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("multicast-cancel")
	m := NewMulticast[int](c)

	_, sub := subscribeRecording(m.AsObservable(), 10)
	assert.Equal(t, 1, m.CountObservers())

	sub.Cancel()
	assert.Equal(t, 0, m.CountObservers())
}

func TestMulticasterPushAndDispose(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("multicaster")
	mc := NewMulticaster[int](c)

	r, _ := subscribeRecording(mc.Observable(), 10)
	mc.Push(1)
	drainAll(c)
	assert.Equal(t, []int{1}, r.next)
	assert.Equal(t, 1, mc.CountObservers())

	assert.False(t, mc.Disposed())
	mc.Dispose()
	drainAll(c)

	assert.True(t, mc.Disposed())
	assert.True(t, r.completed)
}
