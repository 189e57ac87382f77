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

	"github.com/stretchr/testify/assert"
)

func TestCacheSubscribesToSourceOnceForMultipleSubscribers(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("cache")

	upstream := Range(c, 1, 3)
	cached := Cache(c, upstream, 0)

	r1, _ := subscribeRecording(cached, 10)
	drainAll(c)
	r2, _ := subscribeRecording(cached, 10)
	drainAll(c)

	assert.Equal(t, []int64{1, 2, 3}, r1.next)
	assert.Equal(t, []int64{1, 2, 3}, r2.next)
	assert.True(t, r1.completed)
	assert.True(t, r2.completed)
}

func TestCacheReplaysHistoryToLateSubscriberHonoringItsDemand(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("cache-late")
	cached := Cache(c, Range(c, 1, 5), 0)

	r1, _ := subscribeRecording(cached, 100)
	drainAll(c)

	r2, sub2 := subscribeRecording(cached, 0)
	drainAll(c)

	assert.Empty(t, r2.next)

	sub2.Request(2)
	drainAll(c)
	assert.Equal(t, []int64{1, 2}, r2.next)

	sub2.Request(10)
	drainAll(c)
	assert.Equal(t, r1.next, r2.next)
	assert.True(t, r2.completed)
}

func TestReplayIsEagerlySubscribedAndReportsDone(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("replay")
	replay := Replay(c, Range(c, 1, 3))
	drainAll(c)

	assert.True(t, replay.Done())

	r, _ := subscribeRecording[int64](replay, 10)
	drainAll(c)

	assert.Equal(t, []int64{1, 2, 3}, r.next)
	assert.True(t, r.completed)
}

func TestCacheDisposeOfOneSubscriberDoesNotAffectAnother(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("cache-dispose")
	cached := Cache(c, Range(c, 1, 3), 0)

	_, sub1 := subscribeRecording(cached, 0)
	r2, _ := subscribeRecording(cached, 10)

	sub1.Dispose()
	drainAll(c)

	assert.Equal(t, []int64{1, 2, 3}, r2.next)
	assert.True(t, r2.completed)
}
