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

// Package fclock provides the Coordinator's monotonic clock. It is a thin
// wrapper around time.Now() isolated behind an interface so that tests can
// inject a virtual clock without sleeping real wall-clock time, the way
// timing operators (debounce, sample, interval) are exercised deterministically.
package fclock

import "time"

// Clock returns the current, monotonic instant used by a coordinator to
// drive delayed actions (delay_until) and timing operators.
type Clock interface {
	Now() time.Time
}

// System is the production Clock, backed by time.Now(). time.Now() already
// carries a monotonic reading on every supported platform, so durations
// derived from two System readings are immune to wall-clock adjustments.
type System struct{}

// Now returns the current time.
func (System) Now() time.Time { return time.Now() }

var _ Clock = System{}

// Virtual is a manually-advanced Clock for deterministic tests of timing
// operators (debounce, sample, interval, delay_until).
type Virtual struct {
	now time.Time
}

// NewVirtual creates a Virtual clock starting at the given instant.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the current virtual instant.
func (v *Virtual) Now() time.Time { return v.now }

// Advance moves the virtual clock forward by d.
func (v *Virtual) Advance(d time.Duration) { v.now = v.now.Add(d) }

var _ Clock = (*Virtual)(nil)
