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

	"github.com/rs/zerolog"
)

var (
	// By default, the engine ignores unhandled errors and dropped
	// notifications: it is a library embedded in an actor and must not own a
	// logging policy. Override these to route diagnostics into the actor's
	// own structured-log pipeline, e.g. with NewZerologUnhandledErrorHandler.
	//
	//	flow.OnUnhandledError = flow.NewZerologUnhandledErrorHandler(logger)
	//	flow.OnDroppedNotification = flow.NewZerologDroppedNotificationHandler(logger)
	//
	// Both are called synchronously from whichever goroutine drives the
	// coordinator at the time; a slow handler slows the whole graph.

	// OnUnhandledError is called when a step or observer callback panics and
	// there is no error handler left to deliver the resulting error to.
	OnUnhandledError = IgnoreOnUnhandledError
	// OnDroppedNotification is called when a notification is delivered to an
	// observer that has already reached a terminal state.
	OnDroppedNotification = IgnoreOnDroppedNotification
)

// IgnoreOnUnhandledError is the default OnUnhandledError: it does nothing.
func IgnoreOnUnhandledError(ctx context.Context, err error) {}

// IgnoreOnDroppedNotification is the default OnDroppedNotification: it does
// nothing.
func IgnoreOnDroppedNotification(ctx context.Context, notification fmt.Stringer) {}

var _ fmt.Stringer = (*Notification[int])(nil)

// NewZerologUnhandledErrorHandler builds an OnUnhandledError replacement that
// logs through logger at warn level.
func NewZerologUnhandledErrorHandler(logger zerolog.Logger) func(ctx context.Context, err error) {
	return func(ctx context.Context, err error) {
		if err == nil {
			return
		}

		logger.Warn().Err(err).Msg("flow: unhandled error")
	}
}

// NewZerologDroppedNotificationHandler builds an OnDroppedNotification
// replacement that logs through logger at debug level: a dropped
// notification past a terminal event is expected under races between cancel
// and in-flight emissions, not necessarily a bug.
func NewZerologDroppedNotificationHandler(logger zerolog.Logger) func(ctx context.Context, notification fmt.Stringer) {
	return func(ctx context.Context, notification fmt.Stringer) {
		logger.Debug().Stringer("notification", notification).Msg("flow: dropped notification")
	}
}
