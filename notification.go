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
	"fmt"
)

// Kind identifies which variant of a Notification/Event is populated.
type Kind uint8

// Kind constants, in the order the Observer contract requires: zero or more
// Next, then at most one of Error or Complete.
const (
	KindNext Kind = iota
	KindError
	KindComplete
)

// String returns the human-readable name of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNext:
		return "Next"
	case KindError:
		return "Error"
	case KindComplete:
		return "Complete"
	}

	panic("flow: unknown notification kind")
}

// Notification is the tagged union { on_next(T), on_error(err), on_complete }
// from §3 of the spec, used by cache and replay to record event history.
type Notification[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// String renders the Notification for debugging and for OnDroppedNotification.
func (n Notification[T]) String() string {
	switch n.Kind {
	case KindNext:
		return fmt.Sprintf("Next(%+v)", n.Value)
	case KindError:
		if n.Err == nil {
			return "Error(nil)"
		}

		return fmt.Sprintf("Error(%s)", n.Err.Error())
	case KindComplete:
		return "Complete()"
	}

	panic("flow: unknown notification kind")
}

// NewNotificationNext builds a Next notification.
func NewNotificationNext[T any](value T) Notification[T] {
	return Notification[T]{Kind: KindNext, Value: value}
}

// NewNotificationError builds an Error notification.
func NewNotificationError[T any](err error) Notification[T] {
	return Notification[T]{Kind: KindError, Err: err}
}

// NewNotificationComplete builds a Complete notification.
func NewNotificationComplete[T any]() Notification[T] {
	return Notification[T]{Kind: KindComplete}
}

// deliverTo replays the notification onto destination, respecting the
// mutual-exclusion/at-most-one-terminal contract of Observer.
func (n Notification[T]) deliverTo(destination Observer[T]) {
	switch n.Kind {
	case KindNext:
		destination.OnNext(n.Value)
	case KindError:
		destination.OnError(n.Err)
	case KindComplete:
		destination.OnComplete()
	}
}

// deliverToWithContext is deliverTo's context-propagating twin, used by
// cache/replay to replay recorded history to a freshly-subscribed observer.
func (n Notification[T]) deliverToWithContext(ctx context.Context, destination Observer[T]) {
	switch n.Kind {
	case KindNext:
		destination.OnNextWithContext(ctx, n.Value)
	case KindError:
		destination.OnErrorWithContext(ctx, n.Err)
	case KindComplete:
		destination.OnCompleteWithContext(ctx)
	}
}

// IsTerminal reports whether n is Error or Complete.
func (n Notification[T]) IsTerminal() bool { return n.Kind == KindError || n.Kind == KindComplete }
