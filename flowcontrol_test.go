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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnBackpressureBufferPassesThroughWithinCapacity(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("backpressure")
	source := FromContainer(c, []int{1, 2, 3})
	op := OnBackpressureBuffer(c, source, 4, BackpressureDropNewest)

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	assert.Equal(t, []int{1, 2, 3}, r.next)
	assert.True(t, r.completed)
	assert.Nil(t, r.err)
}

func TestOnBackpressureBufferDropsNewestOnOverflow(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("backpressure")

	var push Observer[int]

	misbehaving := NewObservable(func(ctx context.Context, observer Observer[int]) Disposable {
		sub := NewSubscription(c, SubscriptionCallbacks{})
		push = observer
		observer.OnSubscribeWithContext(ctx, sub)

		return sub
	})

	op := OnBackpressureBuffer(c, misbehaving, 2, BackpressureDropNewest)

	// No downstream demand at all: everything pushed ends up buffered (or
	// dropped once the buffer is full), never delivered yet.
	r, sub := subscribeRecording(op, 0)
	drainAll(c)

	push.OnNext(1)
	push.OnNext(2)
	push.OnNext(3) // buffer is full at 2; drop_newest discards this one.
	drainAll(c)

	assert.Empty(t, r.next)

	sub.Request(10)
	drainAll(c)

	assert.Equal(t, []int{1, 2}, r.next)
}

func TestOnBackpressureBufferWrongSizePanics(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("backpressure")
	source := Empty[int](c)

	assert.Panics(t, func() {
		OnBackpressureBuffer(c, source, 0, BackpressureFail)
	})
}

func TestPrefixAndTailOp(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("prefix-and-tail")
	source := Range(c, 1, 7)
	op := PrefixAndTailOp(c, source, 3)

	r, _ := subscribeRecording(op, 1)
	drainAll(c)

	if assert.Len(t, r.next, 1) {
		pt := r.next[0]
		assert.Equal(t, []int64{1, 2, 3}, pt.Prefix)

		tailRecorder, _ := subscribeRecording(pt.Tail, 10)
		drainAll(c)

		assert.Equal(t, []int64{4, 5, 6, 7}, tailRecorder.next)
		assert.True(t, tailRecorder.completed)
	}

	assert.True(t, r.completed)
}

func TestPrefixAndTailOpZero(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("prefix-and-tail-zero")
	source := Range(c, 1, 3)
	op := PrefixAndTailOp(c, source, 0)

	r, _ := subscribeRecording(op, 1)
	drainAll(c)

	if assert.Len(t, r.next, 1) {
		assert.Empty(t, r.next[0].Prefix)

		tailRecorder, _ := subscribeRecording(r.next[0].Tail, 10)
		drainAll(c)

		assert.Equal(t, []int64{1, 2, 3}, tailRecorder.next)
	}
}

func TestHeadAndTailOp(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("head-and-tail")
	source := Range(c, 1, 4)
	op := HeadAndTailOp(c, source)

	r, _ := subscribeRecording(op, 1)
	drainAll(c)

	if assert.Len(t, r.next, 1) {
		assert.Equal(t, int64(1), r.next[0].Head)

		tailRecorder, _ := subscribeRecording(r.next[0].Tail, 10)
		drainAll(c)

		assert.Equal(t, []int64{2, 3, 4}, tailRecorder.next)
	}
}

func TestBufferBatchesOnMaxSize(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("buffer")
	values := Range(c, 1, 5)
	control := Never[struct{}](c)

	op := Buffer(c, values, control, 2, false)

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, r.next)
	assert.True(t, r.completed)
}

func TestBufferWrongSizePanics(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("buffer")
	values := Empty[int](c)
	control := Never[struct{}](c)

	assert.Panics(t, func() {
		Buffer(c, values, control, 0, false)
	})
}

func TestSampleEmitsLatestOnTick(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("sample")

	var valuesObs Observer[int]
	var valuesSub *subscription
	values := NewObservable(func(ctx context.Context, destination Observer[int]) Disposable {
		sub := NewSubscription(c, SubscriptionCallbacks{})
		valuesObs = destination
		valuesSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		return sub
	})

	var controlObs Observer[struct{}]
	control := NewObservable(func(ctx context.Context, destination Observer[struct{}]) Disposable {
		sub := NewSubscription(c, SubscriptionCallbacks{})
		controlObs = destination
		destination.OnSubscribeWithContext(ctx, sub)

		return sub
	})

	op := Sample(c, values, control)

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	valuesObs.OnNext(1)
	valuesObs.OnNext(2)
	controlObs.OnNext(struct{}{})
	drainAll(c)

	valuesObs.OnNext(3)
	controlObs.OnNext(struct{}{})
	controlObs.OnNext(struct{}{})
	drainAll(c)

	valuesObs.OnComplete()
	drainAll(c)

	assert.Equal(t, []int{2, 3}, r.next)
	assert.True(t, r.completed)
	_ = valuesSub
}

func TestOnErrorResumeNextFallsBackOnMatchingError(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("resume")
	boom := errors.New("boom")
	source := Fail[int](c, boom)
	fallback := FromContainer(c, []int{9, 10})

	op := OnErrorResumeNext(c, source, func(err error) bool { return errors.Is(err, boom) }, fallback)

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	assert.Equal(t, []int{9, 10}, r.next)
	assert.True(t, r.completed)
	assert.Nil(t, r.err)
}

func TestOnErrorResumeNextPropagatesNonMatchingError(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("resume")
	boom := errors.New("boom")
	other := errors.New("other")
	source := Fail[int](c, boom)
	fallback := FromContainer(c, []int{9})

	op := OnErrorResumeNext(c, source, func(err error) bool { return errors.Is(err, other) }, fallback)

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	assert.Empty(t, r.next)
	assert.ErrorIs(t, r.err, boom)
}

func TestRetryResubscribesOnMatchingError(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("retry")
	boom := errors.New("boom")

	attempt := 0
	source := Defer(c, func() Observable[int] {
		attempt++

		if attempt < 3 {
			return Fail[int](c, boom)
		}

		return FromContainer(c, []int{1, 2})
	})

	op := Retry(c, source, func(err error) bool { return errors.Is(err, boom) })

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	assert.Equal(t, []int{1, 2}, r.next)
	assert.True(t, r.completed)
	assert.Equal(t, 3, attempt)
}

func TestDebounceEmitsLatestAfterQuiet(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("debounce")

	var upstream Observer[int]
	source := NewObservable(func(ctx context.Context, destination Observer[int]) Disposable {
		sub := NewSubscription(c, SubscriptionCallbacks{})
		upstream = destination
		destination.OnSubscribeWithContext(ctx, sub)

		return sub
	})

	op := Debounce(c, source, 0)

	r, _ := subscribeRecording(op, 10)
	drainAll(c)

	upstream.OnNext(1)
	upstream.OnNext(2)
	drainAll(c)
	upstream.OnComplete()
	drainAll(c)

	assert.Equal(t, []int{2}, r.next)
	assert.True(t, r.completed)
}
