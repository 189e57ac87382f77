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

	"github.com/actor-framework/actor-framework-sub007/resource"
)

type resourceSourceRunner[T any] struct {
	coordinator *Coordinator
	destination Observer[T]
	downstream  Subscription
	concreteSub *subscription
	ctx         context.Context

	buf *resource.Buffer[T]

	running    bool
	terminated bool
}

// FromResource opens consumer once and bridges its pulls into an Observable:
// each request(n) runs a pull(delay_errors, n) loop until the buffer reports
// it is done (on_complete/on_error) or comes back empty (waiting for the
// producer, resumed later by on_producer_wakeup — which may fire from the
// producer's own goroutine and so is always trampolined back through
// Schedule) (§4.4.1 "from_resource").
func FromResource[T any](coordinator *Coordinator, consumer resource.ConsumerResource[T]) Observable[T] {
	return NewObservable(func(ctx context.Context, destination Observer[T]) Disposable {
		r := &resourceSourceRunner[T]{coordinator: coordinator, destination: destination, ctx: ctx}

		sub := NewSubscription(coordinator, SubscriptionCallbacks{
			OnDemand: func(n uint64) { r.schedulePull() },
			OnCancel: func() {
				r.terminated = true
				if r.buf != nil {
					r.buf.Cancel()
				}
			},
			OnDispose: func() {
				r.terminated = true
				if r.buf != nil {
					r.buf.Cancel()
				}
				destination.OnErrorWithContext(ctx, ErrDisposed)
			},
		})

		r.downstream = sub
		r.concreteSub, _ = sub.(*subscription)
		destination.OnSubscribeWithContext(ctx, sub)

		buf, err := consumer.TryOpen()
		if err != nil {
			r.terminated = true
			coordinator.Delay(func() { destination.OnErrorWithContext(ctx, ErrCannotOpenResource) })

			return sub
		}

		r.buf = buf
		coordinator.Watch(sub)

		buf.SetProducer(&resource.ProducerCallbacks{
			OnProducerReady:  func() { coordinator.Schedule(func() { r.schedulePull() }) },
			OnProducerWakeup: func() { coordinator.Schedule(func() { r.schedulePull() }) },
		})

		return sub
	})
}

func (r *resourceSourceRunner[T]) schedulePull() {
	if r.running || r.terminated || r.buf == nil {
		return
	}

	r.running = true
	r.coordinator.Delay(r.pullLoop)
}

func (r *resourceSourceRunner[T]) pullLoop() {
	r.running = false

	if r.terminated || r.concreteSub == nil {
		return
	}

	for {
		demand := r.concreteSub.Demand()
		if demand == 0 {
			return
		}

		items, again, err := r.buf.Pull(resource.PullDelayErrors, demand)

		for _, v := range items {
			r.concreteSub.Consume(1)
			r.destination.OnNextWithContext(r.ctx, v)

			if r.terminated {
				return
			}
		}

		if err != nil {
			r.terminated = true
			r.destination.OnErrorWithContext(r.ctx, err)

			return
		}

		if !again {
			r.terminated = true
			r.destination.OnCompleteWithContext(r.ctx)

			return
		}

		if len(items) == 0 {
			return
		}
	}
}

type resourceSinkRunner[T any] struct {
	upstream       Subscription
	minRequestSize uint64
}

// ToResource subscribes to source and relays every item into a Buffer opened
// from producer, requesting bufferSize items up front and minRequestSize at a
// time thereafter; the buffer is closed/aborted in lockstep with source's own
// terminal event, and a consumer cancelling the buffer cancels source in
// turn (§6.2 "to_resource(buffer_size, min_request_size)").
func ToResource[T any](coordinator *Coordinator, source Observable[T], producer resource.ProducerResource[T], bufferSize int, minRequestSize int) Disposable {
	if bufferSize <= 0 {
		bufferSize = DefaultGeneratorBuffer
	}

	if minRequestSize <= 0 {
		// default_min_demand, §6.6: implementation default, >= 8.
		minRequestSize = 8
	}

	buf, err := producer.TryOpen()
	if err != nil {
		return NoopDisposable()
	}

	r := &resourceSinkRunner[T]{minRequestSize: uint64(minRequestSize)}

	buf.SetConsumer(&resource.ConsumerCallbacks{
		OnConsumerCancel: func() {
			coordinator.Schedule(func() {
				if r.upstream != nil {
					r.upstream.Cancel()
				}
			})
		},
		OnConsumerDemand: func(n uint64) {
			coordinator.Schedule(func() {
				if r.upstream != nil {
					r.upstream.Request(n)
				}
			})
		},
	})

	observer := NewObserverWithContext(
		func(ctx context.Context, v T) {
			remaining := buf.Push(v)
			if remaining == 0 && r.upstream != nil {
				r.upstream.Request(r.minRequestSize)
			}
		},
		func(ctx context.Context, err error) { buf.Abort(err) },
		func(ctx context.Context) { buf.Close() },
	)

	d := source.SubscribeWithContext(context.Background(), observer)
	if u, ok := d.(Subscription); ok {
		r.upstream = u
		u.Request(uint64(bufferSize))
	}

	return d
}
