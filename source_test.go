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
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmptyCompletesImmediately(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("empty")
	r, _ := subscribeRecording(Empty[int](c), 10)
	drainAll(c)

	assert.Empty(t, r.next)
	assert.True(t, r.completed)
}

func TestNeverEmitsNothingUntilDisposed(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("never")
	r, sub := subscribeRecording(Never[int](c), 10)
	drainAll(c)

	assert.Empty(t, r.next)
	assert.False(t, r.completed)

	sub.Dispose()
	drainAll(c)

	assert.True(t, r.completed)
	assert.Nil(t, r.err)
}

func TestFailEmitsErrorImmediately(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("fail")
	boom := errors.New("boom")
	r, _ := subscribeRecording(Fail[int](c, boom), 10)
	drainAll(c)

	assert.Empty(t, r.next)
	assert.ErrorIs(t, r.err, boom)
}

func TestDeferBuildsAFreshObservablePerSubscribe(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("defer")

	calls := 0
	source := Defer(c, func() Observable[int] {
		calls++
		return Just(c, calls)
	})

	r1, _ := subscribeRecording(source, 10)
	drainAll(c)
	r2, _ := subscribeRecording(source, 10)
	drainAll(c)

	assert.Equal(t, []int{1}, r1.next)
	assert.Equal(t, []int{2}, r2.next)
}

func TestFromGeneratorRespectsDemand(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("generator")

	next := 0
	gen := Generator[int](func() (int, bool, error) {
		if next >= 5 {
			return 0, false, nil
		}

		next++

		return next, true, nil
	})

	r, sub := subscribeRecording(FromGenerator(c, gen), 0)
	drainAll(c)

	assert.Empty(t, r.next)

	sub.Request(2)
	drainAll(c)
	assert.Equal(t, []int{1, 2}, r.next)
	assert.False(t, r.completed)

	sub.Request(10)
	drainAll(c)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, r.next)
	assert.True(t, r.completed)
}

func TestIntervalEmitsUpToMaxThenCompletes(t *testing.T) {
	t.Parallel()

	c, clock := newTestCoordinatorWithClock("interval")
	r, _ := subscribeRecording(Interval(c, 0, time.Millisecond, 3), 10)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Millisecond)
		drainAll(c)
	}

	assert.Equal(t, []int64{0, 1, 2}, r.next)
	assert.True(t, r.completed)
	assert.Nil(t, r.err)
}
