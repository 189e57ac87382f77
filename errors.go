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
	"fmt"

	"github.com/samber/lo"
)

func recoverValueToError(e any) error {
	if err, ok := e.(error); ok {
		return err
	}

	return fmt.Errorf("unexpected error: %v", e)
}

// recoverUnhandledError runs cb, converting any panic into a call to
// OnUnhandledError instead of crashing the coordinator's goroutine.
func recoverUnhandledError(ctx context.Context, cb func()) {
	lo.TryCatchWithErrorValue(
		func() error {
			cb()
			return nil
		},
		func(e any) {
			OnUnhandledError(ctx, newRuntimeError(recoverValueToError(e)))
		},
	)
}

// Error taxonomy, §6.7. These are codes, not type names: callers should
// compare with errors.Is against these sentinels.
var (
	ErrInvalidObservable              = errors.New("flow: invalid observable")
	ErrTooManyObservers               = errors.New("flow: too many observers")
	ErrCannotResubscribeStream        = errors.New("flow: cannot resubscribe stream")
	ErrCannotCombineEmptyObservables  = errors.New("flow: cannot combine empty observables")
	ErrBackpressureOverflow           = errors.New("flow: backpressure overflow")
	ErrEndOfStream                    = errors.New("flow: end of stream")
	ErrDisposed                       = errors.New("flow: disposed")
	ErrRequestTimeout                 = errors.New("flow: request timeout")
	ErrProtocolError                  = errors.New("flow: protocol error")
	ErrCannotOpenResource             = errors.New("flow: cannot open resource")
	ErrBrokenPromise                  = errors.New("flow: broken promise")
	ErrConnectableMissingConnector    = errors.New("flow: connectable observable missing connector factory")
	ErrTakeNegativeCount              = errors.New("flow: take count must be >= 0")
	ErrBufferWrongSize                = errors.New("flow: buffer max size must be > 0")
	ErrMergeWrongConcurrency          = errors.New("flow: merge max concurrency must be > 0")
	ErrOnBackpressureBufferWrongSize  = errors.New("flow: on_backpressure_buffer size must be > 0")
	ErrCoordinatorStopped             = errors.New("flow: coordinator stopped")
)

// newRuntimeError wraps a panic recovered from user code (step callbacks,
// generator functions) the same way the source requires: user-thrown errors
// surface through on_error with the original reason preserved via Unwrap.
func newRuntimeError(err error) error {
	return &runtimeError{err: err}
}

type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return "flow.Runtime: " + e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

func newSubscriptionError(err error) error {
	return &subscriptionError{err: err}
}

type subscriptionError struct{ err error }

func (e *subscriptionError) Error() string { return "flow.Subscription: " + e.err.Error() }
func (e *subscriptionError) Unwrap() error { return e.err }

func newObserverError(err error) error {
	return &observerError{err: err}
}

type observerError struct{ err error }

func (e *observerError) Error() string {
	if e.err == nil {
		return "flow.Observer: <nil>"
	}

	return "flow.Observer: " + e.err.Error()
}
func (e *observerError) Unwrap() error { return e.err }

func newStreamBridgeError(err error) error {
	return &streamBridgeError{err: err}
}

type streamBridgeError struct{ err error }

func (e *streamBridgeError) Error() string { return "flow.StreamBridge: " + e.err.Error() }
func (e *streamBridgeError) Unwrap() error { return e.err }
