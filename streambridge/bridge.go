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

// Package streambridge implements the core boundary between a local flow
// graph and an actor-level streaming protocol (§4.5 "Stream bridge"): the
// wire messages stream_open/stream_demand/stream_cancel/stream_ack/
// stream_batch/stream_complete/stream_error, and the demand-to-credit
// translation math that turns per-item downstream demand into per-batch
// requests against the remote producer. The actor mailbox/message-delivery
// surface itself stays out of scope (spec.md §1); Consumer only owns what
// happens once a stream_ack has been received.
package streambridge

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	flow "github.com/actor-framework/actor-framework-sub007"
)

// Demand-translation constants (§4.5, §6.6).
const (
	MinBatchBuffering        = 5
	MinBatchRequestThreshold = 3
)

var inFlightBatches = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "flow_stream_bridge_in_flight_batches",
		Help: "Number of batches a stream bridge consumer has requested from its source but not yet received.",
	},
	[]string{"stream_id"},
)

func init() {
	prometheus.MustRegister(inFlightBatches)
}

/*********
 * Batch *
 *********/

// Batch is the opaque, reference-counted bundle of items that crosses the
// actor stream boundary (GLOSSARY "Batch"). A batch can be hand off to more
// than one local fan-out point without copying its backing slice; every
// holder must Release exactly once per Retain (or per the initial
// NewBatch), and the last release clears the slice so nothing can read it
// past its useful life.
type Batch[T any] struct {
	items []T
	refs  atomic.Int32
}

// NewBatch wraps items with an initial reference count of 1.
func NewBatch[T any](items []T) *Batch[T] {
	b := &Batch[T]{items: items}
	b.refs.Store(1)

	return b
}

// Items returns the batch's items. Not valid to call after the matching
// Release has dropped the refcount to zero.
func (b *Batch[T]) Items() []T { return b.items }

// Len reports how many items the batch holds.
func (b *Batch[T]) Len() int { return len(b.items) }

// Retain adds a reference and returns b, so call sites read as
// `held := batch.Retain()`.
func (b *Batch[T]) Retain() *Batch[T] {
	b.refs.Add(1)
	return b
}

// Release drops a reference; the one that brings the count to zero clears
// the backing slice.
func (b *Batch[T]) Release() {
	if b.refs.Add(-1) <= 0 {
		b.items = nil
	}
}

/***************
 * Wire types *
 ***************/

// StreamSubscriberRef is an opaque handle to whatever actor-level reference
// identifies the subscribing endpoint. The bridge never inspects it, only
// carries it through stream_open.
type StreamSubscriberRef any

// StreamOpen requests a new stream from the source actor (§4.5, §D).
type StreamOpen struct {
	StreamID   string
	LocalID    string
	Subscriber StreamSubscriberRef
}

// StreamDemand requests Batches more batches for the stream identified by
// SrcFlowID.
type StreamDemand struct {
	SrcFlowID string
	Batches   uint64
}

// StreamCancel tells the source actor this stream is no longer wanted.
type StreamCancel struct {
	SrcFlowID string
}

// StreamAck is the source's reply to stream_open, naming the batch size the
// consumer should use when translating its item-level demand targets.
type StreamAck struct {
	LocalID          string
	SrcFlowID        string
	MaxItemsPerBatch uint64
}

// StreamBatch delivers one batch for the stream identified by SrcFlowID.
type StreamBatch[T any] struct {
	SrcFlowID string
	Batch     *Batch[T]
}

// StreamComplete ends the stream identified by SrcFlowID successfully.
type StreamComplete struct {
	SrcFlowID string
}

// StreamError ends the stream identified by SrcFlowID with Reason.
type StreamError struct {
	SrcFlowID string
	Reason    error
}

// NewStreamID generates an opaque stream correlation identifier.
func NewStreamID() string { return uuid.NewString() }

// NewLocalID generates an opaque local-subscription correlation identifier.
func NewLocalID() string { return uuid.NewString() }

// Transport is the consumer side's outbound channel to the actor hosting the
// stream source. The bridge only ever calls SendDemand/SendCancel on it and
// treats delivery as fire-and-forget, the way sending to an actor mailbox is
// — the exact wire form stays outside the core (§4.5).
type Transport interface {
	SendDemand(StreamDemand)
	SendCancel(StreamCancel)
}

/*********
 * State *
 *********/

// State is one of the five states a Consumer moves through over its
// lifetime (§4.5).
type State int32

const (
	StateUnsubscribed State = iota
	StateWaitingAck
	StateStreaming
	StateCancelled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateWaitingAck:
		return "waiting_ack"
	case StateStreaming:
		return "streaming"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

func newProtocolError(reason string) error {
	return fmt.Errorf("%w: %s", flow.ErrProtocolError, reason)
}

/************
 * Consumer *
 ************/

// Consumer bridges one actor-level stream, identified by srcFlowID, into a
// local flow.Observable[*Batch[T]]: downstream Subscription.Request(n)
// requests n batches, and Ack/PushBatch/PushComplete/PushError feed the
// messages arriving off the actor mailbox. Every method is expected to run
// on the coordinator's single thread of control, the same assumption every
// other producing operator in this module makes — Consumer does not lock.
type Consumer[T any] struct {
	coordinator *flow.Coordinator
	logger      zerolog.Logger
	transport   Transport

	streamID  string
	localID   string
	srcFlowID string

	state atomic.Int32

	maxItemsPerBatch    uint64
	maxInFlightBatches  uint64
	lowBatchesThreshold uint64

	inFlight    uint64
	buffered    []*Batch[T]
	batchDemand uint64

	completed   bool
	erroredWith error

	destination flow.Observer[*Batch[T]]
	downstream  flow.Subscription
	ctx         context.Context
}

// NewConsumer builds a Consumer for the stream srcFlowID, logging protocol
// violations through logger and sending demand/cancel messages through
// transport. streamID is used only to label the in-flight-batches gauge.
func NewConsumer[T any](coordinator *flow.Coordinator, logger zerolog.Logger, transport Transport, streamID string, srcFlowID string) *Consumer[T] {
	return &Consumer[T]{
		coordinator: coordinator,
		logger:      logger,
		transport:   transport,
		streamID:    streamID,
		localID:     NewLocalID(),
		srcFlowID:   srcFlowID,
	}
}

// LocalID is the correlation id the owning actor should put in the
// stream_open message it sends to establish this stream; Consumer never
// sends stream_open itself since that requires the actor-specific
// Subscriber reference.
func (c *Consumer[T]) LocalID() string { return c.localID }

// State reports the consumer's current lifecycle state.
func (c *Consumer[T]) State() State { return State(c.state.Load()) }

// AsObservable exposes the stream as an Observable of batches. Subscribing
// more than once is a fatal cannot_resubscribe_stream (§4.5 "re-subscription
// is a fatal cannot_resubscribe_stream").
func (c *Consumer[T]) AsObservable() flow.Observable[*Batch[T]] {
	return flow.NewObservable(func(ctx context.Context, destination flow.Observer[*Batch[T]]) flow.Disposable {
		if !c.state.CompareAndSwap(int32(StateUnsubscribed), int32(StateWaitingAck)) {
			destination.OnErrorWithContext(ctx, flow.ErrCannotResubscribeStream)
			return flow.NoopDisposable()
		}

		c.destination = destination
		c.ctx = ctx

		sub := flow.NewSubscription(c.coordinator, flow.SubscriptionCallbacks{
			OnDemand: func(n uint64) { c.onDemand(n) },
			OnCancel: func() { c.doCancel() },
			OnDispose: func() {
				c.doCancel()
				destination.OnErrorWithContext(ctx, flow.ErrDisposed)
			},
		})

		c.downstream = sub
		destination.OnSubscribeWithContext(ctx, sub)
		c.coordinator.Watch(sub)

		return sub
	})
}

// Ack processes the source's stream_ack, translating maxInFlightItems and
// requestThresholdItems into batch-denominated targets using ack's
// max_items_per_batch, then requests max_in_flight_batches from the source
// (§4.5 "On ack, translate per-item demand to per-batch").
func (c *Consumer[T]) Ack(ack StreamAck, maxInFlightItems uint64, requestThresholdItems uint64) {
	if c.State() != StateWaitingAck {
		return
	}

	c.maxItemsPerBatch = ack.MaxItemsPerBatch
	if c.maxItemsPerBatch == 0 {
		c.maxItemsPerBatch = 1
	}

	c.maxInFlightBatches = maxUint64(MinBatchBuffering, ceilDivUint64(maxInFlightItems, c.maxItemsPerBatch))
	c.lowBatchesThreshold = maxUint64(MinBatchRequestThreshold, requestThresholdItems/c.maxItemsPerBatch)

	c.state.Store(int32(StateStreaming))
	c.requestMore(c.maxInFlightBatches)
}

// PushBatch delivers a stream_batch message. A batch arriving with no
// outstanding in_flight credit, or with zero items, is a protocol error
// (§4.5, §7 "credit exceeded, zero batch size").
func (c *Consumer[T]) PushBatch(msg StreamBatch[T]) {
	if c.State() != StateStreaming {
		return
	}

	if c.inFlight == 0 {
		c.protocolError("received batch with no outstanding credit")
		return
	}

	if msg.Batch == nil || msg.Batch.Len() == 0 {
		c.protocolError("received zero-size batch")
		return
	}

	c.inFlight--
	c.reportInFlight()

	if c.batchDemand > 0 {
		c.batchDemand--
		c.destination.OnNextWithContext(c.ctx, msg.Batch)
		c.maybeReplenish()

		return
	}

	c.buffered = append(c.buffered, msg.Batch)
}

// PushComplete delivers a stream_complete message, deferring the terminal
// event until every buffered batch has drained.
func (c *Consumer[T]) PushComplete(msg StreamComplete) {
	if c.State() != StateStreaming {
		return
	}

	c.completed = true
	c.maybeFlushTerminal()
}

// PushError delivers a stream_error message, deferring the terminal event
// until every buffered batch has drained.
func (c *Consumer[T]) PushError(msg StreamError) {
	if c.State() != StateStreaming {
		return
	}

	c.erroredWith = msg.Reason
	c.maybeFlushTerminal()
}

func (c *Consumer[T]) onDemand(n uint64) {
	c.batchDemand += n
	c.drain()
}

func (c *Consumer[T]) drain() {
	for len(c.buffered) > 0 && c.batchDemand > 0 {
		b := c.buffered[0]
		c.buffered = c.buffered[1:]
		c.batchDemand--
		c.destination.OnNextWithContext(c.ctx, b)
	}

	c.maybeReplenish()
	c.maybeFlushTerminal()
}

// maybeReplenish implements the credit-replenishment rule: after either
// shipping a batch or receiving request(n) from downstream, compute
// capacity = max_in_flight - in_flight - buf.size() and request that many
// more once it clears low_batches_threshold (§4.5 "Credit replenishment").
func (c *Consumer[T]) maybeReplenish() {
	if c.State() != StateStreaming {
		return
	}

	outstanding := c.inFlight + uint64(len(c.buffered))
	if outstanding >= c.maxInFlightBatches {
		return
	}

	capacity := c.maxInFlightBatches - outstanding
	if capacity >= c.lowBatchesThreshold {
		c.requestMore(capacity)
	}
}

func (c *Consumer[T]) maybeFlushTerminal() {
	if len(c.buffered) > 0 {
		return
	}

	if c.erroredWith != nil {
		err := c.erroredWith
		c.erroredWith = nil
		c.state.Store(int32(StateErrored))
		c.coordinator.Delay(func() { c.destination.OnErrorWithContext(c.ctx, err) })

		return
	}

	if c.completed {
		c.completed = false
		c.coordinator.Delay(func() { c.destination.OnCompleteWithContext(c.ctx) })
	}
}

func (c *Consumer[T]) requestMore(n uint64) {
	if n == 0 {
		return
	}

	c.inFlight += n
	c.reportInFlight()
	c.transport.SendDemand(StreamDemand{SrcFlowID: c.srcFlowID, Batches: n})
}

func (c *Consumer[T]) reportInFlight() {
	inFlightBatches.WithLabelValues(c.streamID).Set(float64(c.inFlight))
}

// doCancel runs on the downstream subscription's Cancel/Dispose and sends
// stream_cancel to the source; removing the local flow-state entry is the
// owning actor's responsibility (§4.5 "Disposal").
func (c *Consumer[T]) doCancel() {
	switch c.State() {
	case StateCancelled, StateErrored, StateUnsubscribed:
		return
	}

	c.state.Store(int32(StateCancelled))
	c.transport.SendCancel(StreamCancel{SrcFlowID: c.srcFlowID})
}

func (c *Consumer[T]) protocolError(reason string) {
	c.logger.Warn().Str("stream_id", c.streamID).Str("flow_id", c.srcFlowID).Msg(reason)

	c.state.Store(int32(StateErrored))
	c.transport.SendCancel(StreamCancel{SrcFlowID: c.srcFlowID})
	c.coordinator.Delay(func() { c.destination.OnErrorWithContext(c.ctx, newProtocolError(reason)) })
}

func ceilDivUint64(a, b uint64) uint64 {
	if b == 0 {
		return 0
	}

	return (a + b - 1) / b
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}

	return b
}
