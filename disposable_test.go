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

func TestNewDisposableRunsCleanupOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	d := NewDisposable(func() { calls++ })

	assert.False(t, d.Disposed())

	d.Dispose()
	d.Dispose()

	assert.True(t, d.Disposed())
	assert.Equal(t, 1, calls)
}

func TestNoopDisposableIsAlreadyDisposed(t *testing.T) {
	t.Parallel()

	d := NoopDisposable()
	assert.True(t, d.Disposed())
	d.Dispose()
	assert.True(t, d.Disposed())
}

func TestCompositeDisposableDisposesAllChildrenInOrder(t *testing.T) {
	t.Parallel()

	var order []int
	c := NewCompositeDisposable(
		NewDisposable(func() { order = append(order, 1) }),
		NewDisposable(func() { order = append(order, 2) }),
	)

	c.Dispose()
	assert.Equal(t, []int{1, 2}, order)
	assert.True(t, c.Disposed())

	// second Dispose is a no-op
	c.Dispose()
	assert.Equal(t, []int{1, 2}, order)
}

func TestCompositeDisposableAddAfterDisposeDisposesImmediately(t *testing.T) {
	t.Parallel()

	c := NewCompositeDisposable()
	c.Dispose()

	child := NewDisposable(func() {})
	c.Add(child)

	assert.True(t, child.Disposed())
}

func TestCompositeDisposableAddNilIsNoop(t *testing.T) {
	t.Parallel()

	c := NewCompositeDisposable()
	c.Add(nil)
	c.Dispose()
}

func TestActionRunsOnlyOnceWhileScheduled(t *testing.T) {
	t.Parallel()

	calls := 0
	a := NewAction(func() { calls++ })

	a.Run()
	a.Run()

	assert.Equal(t, 1, calls)
	assert.False(t, a.Disposed())
}

func TestActionDisposeBeforeRunPreventsExecution(t *testing.T) {
	t.Parallel()

	calls := 0
	a := NewAction(func() { calls++ })

	a.Dispose()
	a.Run()

	assert.Equal(t, 0, calls)
	assert.True(t, a.Disposed())
}

func TestActionDisposeAfterRunIsNoop(t *testing.T) {
	t.Parallel()

	a := NewAction(func() {})
	a.Run()
	a.Dispose()

	assert.False(t, a.Disposed())
}

func TestActionRescheduleAllowsRunningAgain(t *testing.T) {
	t.Parallel()

	calls := 0
	a := NewAction(func() { calls++ })

	a.Run()
	ok := a.Reschedule()
	assert.True(t, ok)

	a.Run()
	assert.Equal(t, 2, calls)
}

func TestActionRescheduleFailsIfDisposed(t *testing.T) {
	t.Parallel()

	a := NewAction(func() {})
	a.Dispose()

	assert.False(t, a.Reschedule())
}
