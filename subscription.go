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
	"sync/atomic"
)

// Subscription is the per-link control channel between one observable
// operator and one observer (§3 "Subscription", §4.2). disposed() is defined
// as true in either terminal state, cancelled or forcefully disposed: this
// implementation takes the non-inverted reading of that predicate rather than
// the suspected-buggy convention some Reactive-Streams ports use.
type Subscription interface {
	// Request adds n to this link's outstanding demand. Non-blocking; may
	// synchronously trigger buffered delivery. Saturates at math.MaxUint64
	// instead of wrapping.
	Request(n uint64)
	// Cancel severs the link cooperatively: the observer receives no further
	// events and is not notified of the cancellation itself.
	Cancel()
	// Dispose severs the link as if from an external owner. Unlike Cancel,
	// this eventually emits on_error(ErrDisposed) to the observer, delayed
	// into the owning coordinator to avoid re-entering the caller's frame.
	Dispose()
	// Disposed reports whether the link has reached either terminal state.
	Disposed() bool
}

const (
	subscriptionOpen int32 = iota
	subscriptionTerminal
)

// subscription is the concrete Subscription used by every producing operator.
// Producers read outstanding demand via Demand/Consume instead of being
// pushed individual Request(n) values, matching the "unsigned counter with
// saturating arithmetic" data model in §3.
type subscription struct {
	coordinator *Coordinator
	demand      atomic.Uint64
	state       atomic.Int32

	onDemand func(n uint64) // woken whenever Request adds demand; may be nil
	onCancel func()         // run synchronously on Cancel; may be nil
	onDispose func()        // delayed into coordinator on Dispose; may be nil
}

var _ Subscription = (*subscription)(nil)

// SubscriptionCallbacks are the producer-supplied hooks a subscription
// invokes over its lifetime.
type SubscriptionCallbacks struct {
	// OnDemand is invoked with the delta after Request adds to the
	// outstanding demand. It must be non-blocking; producers typically just
	// post_internally a drain, optionally forwarding the same delta upstream.
	OnDemand func(n uint64)
	// OnCancel runs synchronously within Cancel. Must release the producer's
	// resources without emitting any further event to the observer.
	OnCancel func()
	// OnDispose runs once, delayed into the coordinator, when Dispose is
	// called. It is the producer's chance to emit on_error(ErrDisposed).
	OnDispose func()
}

// NewSubscription builds a Subscription bound to coordinator, so that Dispose
// can delay its teardown the way §4.2 requires.
func NewSubscription(coordinator *Coordinator, callbacks SubscriptionCallbacks) Subscription {
	return &subscription{
		coordinator: coordinator,
		onDemand:    callbacks.OnDemand,
		onCancel:    callbacks.OnCancel,
		onDispose:   callbacks.OnDispose,
	}
}

func (s *subscription) Request(n uint64) {
	if n == 0 || s.Disposed() {
		return
	}

	addSaturatingUint64(&s.demand, n)

	if s.onDemand != nil {
		s.onDemand(n)
	}
}

func (s *subscription) Cancel() {
	if !s.state.CompareAndSwap(subscriptionOpen, subscriptionTerminal) {
		return
	}

	if s.onCancel != nil {
		s.onCancel()
	}
}

func (s *subscription) Dispose() {
	if !s.state.CompareAndSwap(subscriptionOpen, subscriptionTerminal) {
		return
	}

	if s.onDispose == nil {
		return
	}

	if s.coordinator != nil {
		s.coordinator.Delay(s.onDispose)
	} else {
		s.onDispose()
	}
}

func (s *subscription) Disposed() bool {
	return s.state.Load() == subscriptionTerminal
}

// Demand returns the subscription's current outstanding demand.
func (s *subscription) Demand() uint64 { return s.demand.Load() }

// Consume subtracts n from the outstanding demand after n items have been
// delivered. n must not exceed the current demand; producers are expected to
// never emit more than they have been granted (§4.2 invariant).
func (s *subscription) Consume(n uint64) {
	for {
		old := s.demand.Load()
		next := old - n

		if n > old {
			next = 0
		}

		if s.demand.CompareAndSwap(old, next) {
			return
		}
	}
}

func addSaturatingUint64(counter *atomic.Uint64, n uint64) {
	for {
		old := counter.Load()
		next := old + n

		if next < old {
			next = math.MaxUint64
		}

		if counter.CompareAndSwap(old, next) {
			return
		}
	}
}

// noopSubscription is the trivial, already-terminal subscription handed to
// observers of empty/fail, which need to signal completion/failure
// synchronously at subscribe time (§4.2 "A trivial no-op subscription exists
// for operators that need to signal completion/failure synchronously").
type noopSubscription struct{}

func (noopSubscription) Request(uint64) {}
func (noopSubscription) Cancel()        {}
func (noopSubscription) Dispose()       {}
func (noopSubscription) Disposed() bool { return true }

var _ Subscription = noopSubscription{}

// NewNoopSubscription returns a Subscription that is already terminal.
func NewNoopSubscription() Subscription { return noopSubscription{} }
