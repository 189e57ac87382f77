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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoordinatorPostInternallyRunsOnNextDrain(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("post")

	ran := false
	c.PostInternally(func() { ran = true })

	assert.False(t, ran)
	c.Drain()
	assert.True(t, ran)
}

func TestCoordinatorDelayedActionsQueuedDuringDrainRunInTheSamePass(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("delay-chain")

	var order []int
	c.PostInternally(func() {
		order = append(order, 1)
		c.Delay(func() { order = append(order, 2) })
	})

	c.Drain()
	assert.Equal(t, []int{1, 2}, order)
}

func TestCoordinatorScheduleQueuesForTheNextDrain(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("schedule")

	ran := false
	c.Schedule(func() { ran = true })

	assert.False(t, ran)
	c.Drain()
	assert.True(t, ran)
}

func TestCoordinatorScheduleFromAnotherGoroutineIsPickedUpByDrain(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("schedule-cross-thread")

	done := make(chan struct{})
	go func() {
		c.Schedule(func() {})
		close(done)
	}()
	<-done // Schedule's internal lock release happens-before this receive

	assert.True(t, c.HasPendingWork())
	c.Drain()
	assert.False(t, c.HasPendingWork())
}

func TestCoordinatorDelayUntilFiresOnceDeadlineElapses(t *testing.T) {
	t.Parallel()

	c, clock := newTestCoordinatorWithClock("timer")

	ran := false
	c.DelayUntil(clock.Now().Add(time.Millisecond), func() { ran = true })

	c.Drain()
	assert.False(t, ran, "must not fire before the deadline")

	clock.Advance(time.Millisecond)
	c.Drain()
	assert.True(t, ran)
}

func TestCoordinatorDelayUntilWithZeroOffsetFiresOnNextDrainWithoutAdvance(t *testing.T) {
	t.Parallel()

	c, clock := newTestCoordinatorWithClock("timer-zero")

	ran := false
	c.DelayUntil(clock.Now(), func() { ran = true })

	c.Drain()
	assert.True(t, ran)
}

func TestCoordinatorDisposingATimerActionPreventsItFromFiring(t *testing.T) {
	t.Parallel()

	c, clock := newTestCoordinatorWithClock("timer-dispose")

	ran := false
	d := c.DelayUntil(clock.Now().Add(time.Millisecond), func() { ran = true })
	d.Dispose()

	clock.Advance(time.Millisecond)
	c.Drain()

	assert.False(t, ran)
}

func TestCoordinatorWatchKeepsHasPendingWorkTrueUntilDisposed(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("watch")
	d := NewDisposable(func() {})

	c.Watch(d)
	assert.True(t, c.HasPendingWork())

	d.Dispose()
	c.Drain()
	assert.False(t, c.HasPendingWork())
}

func TestCoordinatorWatchIgnoresAlreadyDisposed(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("watch-disposed")
	c.Watch(NoopDisposable())

	assert.False(t, c.HasPendingWork())
}

func TestCoordinatorAddChildWatchesAndReturnsTheSameDisposable(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("add-child")
	d := NewDisposable(func() {})

	got := c.AddChild(d)
	assert.Same(t, d, got)
	assert.True(t, c.HasPendingWork())
}

func TestCoordinatorStopDisposesPendingWorkAndRefusesNewScheduling(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("stop")

	immediateRan := false
	c.PostInternally(func() { immediateRan = true })

	timerRan := false
	c.DelayUntil(c.SteadyTime().Add(time.Hour), func() { timerRan = true })

	watched := NewDisposable(func() {})
	c.Watch(watched)

	c.Stop()

	assert.True(t, c.Stopped())
	assert.False(t, immediateRan)
	assert.False(t, timerRan)
	assert.True(t, watched.Disposed())
	assert.False(t, c.HasPendingWork())

	scheduled := c.Schedule(func() {})
	assert.True(t, scheduled.Disposed())
}

func TestCoordinatorStopIsIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("stop-idempotent")
	c.Stop()
	c.Stop()

	assert.True(t, c.Stopped())
}

func TestCoordinatorSteadyTimeReflectsItsClock(t *testing.T) {
	t.Parallel()

	c, clock := newTestCoordinatorWithClock("steady")
	before := c.SteadyTime()

	clock.Advance(time.Second)
	after := c.SteadyTime()

	assert.True(t, after.After(before))
}
