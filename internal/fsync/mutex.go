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

// Package fsync provides the minimal synchronization primitive used at the
// boundary between a coordinator's single-threaded world and the handful of
// things allowed to cross it from another goroutine: async-resource
// callbacks and Coordinator.Schedule. Nothing inside a coordinator's operator
// graph takes a lock.
package fsync

import "sync"

// Mutex is the minimal locking interface used across the goroutine boundary.
type Mutex interface {
	TryLock() bool
	Lock()
	Unlock()
}

var _ Mutex = (*StdMutex)(nil)

// StdMutex wraps sync.Mutex behind the Mutex interface.
type StdMutex struct {
	mu sync.Mutex
}

// NewStdMutex creates a new StdMutex.
func NewStdMutex() *StdMutex {
	return &StdMutex{}
}

// TryLock attempts to lock the mutex without blocking.
func (m *StdMutex) TryLock() bool { return m.mu.TryLock() }

// Lock locks the mutex, blocking until it is available.
func (m *StdMutex) Lock() { m.mu.Lock() }

// Unlock unlocks the mutex.
func (m *StdMutex) Unlock() { m.mu.Unlock() }
