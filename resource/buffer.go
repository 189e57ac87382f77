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

// Package resource implements the SPSC buffer of the spec's §3 "SPSC Buffer"
// / §6.5 "Async resource boundary": a one-writer/one-reader hand-off used to
// bridge a goroutine outside any coordinator (a producer pushing items from
// its own thread of control, or a consumer pulling on behalf of one) into a
// flow graph. The buffer itself holds no opinion about coordinators; it only
// ever calls back synchronously on whichever goroutine pushed or pulled, and
// every callback is documented as expected to do nothing but post an action
// onto its owner's coordinator (§6.5 "callbacks always post through the
// target's coordinator") — that posting happens one layer up, in the flow
// package's FromResource/ToResource glue, not here.
package resource

import (
	"sync"

	"github.com/google/uuid"
)

// PullPolicy selects how Pull reports an aborted buffer that still has
// buffered items left to hand back.
type PullPolicy int

const (
	// PullNormal surfaces an abort error as soon as it is observed, even if
	// buffered items are discarded as a result.
	PullNormal PullPolicy = iota
	// PullDelayErrors drains every remaining buffered item first and only
	// then surfaces the abort error, on a subsequent call once the buffer is
	// empty (§4.4.1 "from_resource" — "pull(delay_errors, n, out)").
	PullDelayErrors
)

// ConsumerCallbacks are invoked, on whichever goroutine triggers them, to
// notify the producer side of consumer lifecycle events.
type ConsumerCallbacks struct {
	// OnConsumerReady fires once, when a consumer first registers.
	OnConsumerReady func()
	// OnConsumerCancel fires when the consumer goes away.
	OnConsumerCancel func()
	// OnConsumerDemand fires whenever a Pull call leaves unmet demand
	// buffered against the next Push.
	OnConsumerDemand func(n uint64)
}

// ProducerCallbacks are invoked, on whichever goroutine triggers them, to
// notify the consumer side of producer lifecycle events.
type ProducerCallbacks struct {
	// OnProducerReady fires once, when a producer first registers.
	OnProducerReady func()
	// OnProducerWakeup fires on every Push, Close, or Abort that reaches an
	// open buffer, whether or not the consumer has outstanding demand —
	// potentially from a different goroutine than the one driving the
	// consumer's coordinator.
	OnProducerWakeup func()
}

// Buffer is the SPSC hand-off object: a mutex-protected FIFO plus the
// lifecycle callback pairs above. One goroutine is expected to call
// Push/PushSpan/Close/Abort (the producer side); a different goroutine is
// expected to call Pull/Cancel (the consumer side). The lock is only ever
// held for the duration of a single call, so neither side blocks the other
// for longer than a slice copy.
type Buffer[T any] struct {
	id string

	mu sync.Mutex

	queue  []T
	demand uint64

	closed bool
	err    error

	consumer *ConsumerCallbacks
	producer *ProducerCallbacks
}

// NewBuffer allocates an empty, open Buffer, tagged with a fresh uuid for
// diagnostics (log lines, metrics labels) so a single producer/consumer pair
// can be told apart from another sharing the same process.
func NewBuffer[T any]() *Buffer[T] { return &Buffer[T]{id: uuid.NewString()} }

// ID returns the buffer's diagnostic identifier.
func (b *Buffer[T]) ID() string { return b.id }

// SetConsumer registers the callbacks the producer side invokes for
// consumer lifecycle events. Passing nil clears any existing registration.
func (b *Buffer[T]) SetConsumer(callbacks *ConsumerCallbacks) {
	b.mu.Lock()
	b.consumer = callbacks
	b.mu.Unlock()

	if callbacks != nil && callbacks.OnConsumerReady != nil {
		callbacks.OnConsumerReady()
	}
}

// SetProducer registers the callbacks the consumer side invokes for
// producer lifecycle events. Passing nil clears any existing registration.
func (b *Buffer[T]) SetProducer(callbacks *ProducerCallbacks) {
	b.mu.Lock()
	b.producer = callbacks
	b.mu.Unlock()

	if callbacks != nil && callbacks.OnProducerReady != nil {
		callbacks.OnProducerReady()
	}
}

// Push appends item for the consumer to pull, returning the demand still
// outstanding after this push (0 if the consumer hasn't registered any, or
// has already been satisfied). A Push onto a closed buffer is a silent no-op.
func (b *Buffer[T]) Push(item T) uint64 {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return 0
	}

	b.queue = append(b.queue, item)

	if b.demand > 0 {
		b.demand--
	}

	remaining := b.demand
	wake := b.producer
	b.mu.Unlock()

	if wake != nil && wake.OnProducerWakeup != nil {
		wake.OnProducerWakeup()
	}

	return remaining
}

// PushSpan pushes every item of items, in order, returning the demand
// remaining after the last one.
func (b *Buffer[T]) PushSpan(items []T) uint64 {
	var remaining uint64

	for _, item := range items {
		remaining = b.Push(item)
	}

	return remaining
}

// Close marks the buffer as gracefully ended: buffered items already pushed
// are still delivered by Pull, which then reports again=false once they're
// exhausted.
func (b *Buffer[T]) Close() {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return
	}

	b.closed = true
	wake := b.producer
	b.mu.Unlock()

	if wake != nil && wake.OnProducerWakeup != nil {
		wake.OnProducerWakeup()
	}
}

// Abort marks the buffer as ended with err. Under PullNormal, Pull surfaces
// err as soon as it's observed; under PullDelayErrors, Pull first drains
// whatever is still buffered and only then surfaces err.
func (b *Buffer[T]) Abort(err error) {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return
	}

	b.closed = true
	b.err = err
	wake := b.producer
	b.mu.Unlock()

	if wake != nil && wake.OnProducerWakeup != nil {
		wake.OnProducerWakeup()
	}
}

// Pull drains up to n items. again reports whether the caller should expect
// more later (the buffer isn't done yet); delivered items are returned
// directly rather than through an out-parameter, which reads more naturally
// in Go than the spec's observer-sink form.
func (b *Buffer[T]) Pull(policy PullPolicy, n uint64) (items []T, again bool, err error) {
	b.mu.Lock()

	if policy == PullNormal && b.err != nil {
		err := b.err
		b.queue = nil
		b.mu.Unlock()

		return nil, false, err
	}

	take := uint64(len(b.queue))
	if take > n {
		take = n
	}

	if take > 0 {
		items = append(items, b.queue[:take]...)
		b.queue = b.queue[take:]
	}

	var notifyDemand func(uint64)
	shortfall := n - take

	if take < n && !b.closed {
		b.demand += shortfall
		if b.consumer != nil {
			notifyDemand = b.consumer.OnConsumerDemand
		}
	}

	doneNow := b.closed && len(b.queue) == 0
	abortErr := b.err

	b.mu.Unlock()

	if notifyDemand != nil {
		notifyDemand(shortfall)
	}

	if !doneNow {
		return items, true, nil
	}

	if abortErr != nil && (policy == PullNormal || len(items) == 0) {
		return items, false, abortErr
	}

	if abortErr != nil {
		// PullDelayErrors with items still to hand back this round; the
		// error surfaces on the next call once the buffer reads empty.
		return items, true, nil
	}

	return items, false, nil
}

// Cancel notifies the producer side that the consumer has gone away and
// marks the buffer closed, so a racing Push becomes a no-op.
func (b *Buffer[T]) Cancel() {
	b.mu.Lock()

	if b.closed {
		b.mu.Unlock()
		return
	}

	b.closed = true
	notify := b.consumer
	b.mu.Unlock()

	if notify != nil && notify.OnConsumerCancel != nil {
		notify.OnConsumerCancel()
	}
}

// ConsumerResource opens a Buffer from the consumer's side of an async
// resource (§6.5 "consumer_resource<T>::try_open() -> buffer").
type ConsumerResource[T any] interface {
	TryOpen() (*Buffer[T], error)
}

// ProducerResource opens a Buffer from the producer's side of an async
// resource (§6.5 "producer_resource<T>::try_open() -> buffer").
type ProducerResource[T any] interface {
	TryOpen() (*Buffer[T], error)
}

// NewResourcePair builds a connected producer/consumer pair sharing a single
// Buffer, the common case of wiring a worker goroutine's output into a flow
// graph without a separate broker.
func NewResourcePair[T any]() (ProducerResource[T], ConsumerResource[T]) {
	buf := NewBuffer[T]()
	return staticResource[T]{buf}, staticResource[T]{buf}
}

type staticResource[T any] struct{ buf *Buffer[T] }

func (r staticResource[T]) TryOpen() (*Buffer[T], error) { return r.buf, nil }
