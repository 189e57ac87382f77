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

	"go.uber.org/goleak"

	"github.com/actor-framework/actor-framework-sub007/internal/fclock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestCoordinator(name string) *Coordinator {
	return NewCoordinator(name, fclock.NewVirtual(fclock.System{}.Now()))
}

// newTestCoordinatorWithClock is newTestCoordinator plus access to the
// virtual clock driving it, for tests of timing operators (debounce, sample,
// interval) that need to advance time deterministically.
func newTestCoordinatorWithClock(name string) (*Coordinator, *fclock.Virtual) {
	clock := fclock.NewVirtual(fclock.System{}.Now())
	return NewCoordinator(name, clock), clock
}

// drainAll pumps a coordinator's event loop until it reports no more pending
// work, bounded so a test against a source that never terminates (never,
// unbounded interval) can't hang forever.
func drainAll(c *Coordinator) {
	for i := 0; i < 1000 && c.HasPendingWork(); i++ {
		c.Drain()
	}
}

// recorder captures every notification an Observer receives, for asserting
// against afterward — the push-model analog of the teacher's Collect.
type recorder[T any] struct {
	next      []T
	err       error
	completed bool
}

// subscribeRecording subscribes a recording Observer to source, requesting
// request items up front, and returns both the recorder and the resulting
// Subscription (nil if source failed synchronously).
func subscribeRecording[T any](source Observable[T], request uint64) (*recorder[T], Subscription) {
	r := &recorder[T]{}

	obs := NewObserver(
		func(v T) { r.next = append(r.next, v) },
		func(err error) { r.err = err },
		func() { r.completed = true },
	)

	d := source.Subscribe(obs)

	sub, _ := d.(Subscription)
	if sub != nil && request > 0 {
		sub.Request(request)
	}

	return r, sub
}
