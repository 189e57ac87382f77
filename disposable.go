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

import "sync/atomic"

// Disposable is a handle on a cancellable resource, §3 "Disposable". State is
// one of {scheduled, invoked, disposed}; disposed is a terminal, idempotent
// state.
type Disposable interface {
	// Dispose transitions the resource to its terminal state. Safe to call
	// more than once; only the first call has an effect.
	Dispose()
	// Disposed reports whether Dispose has already run to completion.
	Disposed() bool
}

var _ Disposable = (*funcDisposable)(nil)

// NewDisposable wraps a plain cleanup function as a Disposable.
func NewDisposable(cleanup func()) Disposable {
	return &funcDisposable{cleanup: cleanup}
}

type funcDisposable struct {
	disposed atomic.Bool
	cleanup  func()
}

func (d *funcDisposable) Dispose() {
	if d.disposed.CompareAndSwap(false, true) && d.cleanup != nil {
		d.cleanup()
	}
}

func (d *funcDisposable) Disposed() bool { return d.disposed.Load() }

// noopDisposable is a Disposable that is already in its terminal state. It is
// handed to observers of empty/fail, whose subscription is over before
// Subscribe returns.
type noopDisposable struct{}

func (noopDisposable) Dispose()       {}
func (noopDisposable) Disposed() bool { return true }

// NoopDisposable returns a Disposable that is already disposed.
func NoopDisposable() Disposable { return noopDisposable{} }

var _ Disposable = noopDisposable{}

// CompositeDisposable aggregates child disposables: disposing it disposes
// every element, in the order they were added (§3 "Composite disposables
// aggregate others; disposing disposes all").
type CompositeDisposable struct {
	disposed atomic.Bool
	children []Disposable
}

var _ Disposable = (*CompositeDisposable)(nil)

// NewCompositeDisposable builds a CompositeDisposable over the given children.
func NewCompositeDisposable(children ...Disposable) *CompositeDisposable {
	return &CompositeDisposable{children: children}
}

// Add appends a child. If the composite is already disposed, the child is
// disposed immediately instead of being retained.
func (c *CompositeDisposable) Add(child Disposable) {
	if child == nil {
		return
	}

	if c.disposed.Load() {
		child.Dispose()
		return
	}

	c.children = append(c.children, child)
}

// Dispose disposes every child, then itself.
func (c *CompositeDisposable) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}

	children := c.children
	c.children = nil

	for _, child := range children {
		child.Dispose()
	}
}

// Disposed reports whether Dispose has run.
func (c *CompositeDisposable) Disposed() bool { return c.disposed.Load() }

// actionState is the lifecycle of an Action: scheduled -> invoked, or
// scheduled -> disposed if cancelled before it runs.
type actionState int32

const (
	actionScheduled actionState = iota
	actionInvoked
	actionDisposed
)

// Action is a one-shot runnable derived from Disposable (§3 "Action"). Run
// transitions scheduled->invoked exactly once; if the action was disposed
// first, Run is a no-op. Reschedule returns an invoked action back to
// scheduled so the same Action can be reused by timing operators
// (debounce/sample's reusable timer, §5 "Timeouts").
type Action struct {
	state atomic.Int32
	fn    func()
}

var _ Disposable = (*Action)(nil)

// NewAction wraps fn as a scheduled Action.
func NewAction(fn func()) *Action {
	a := &Action{fn: fn}
	a.state.Store(int32(actionScheduled))

	return a
}

// Run executes fn if the action is still scheduled.
func (a *Action) Run() {
	if a.state.CompareAndSwap(int32(actionScheduled), int32(actionInvoked)) {
		a.fn()
	}
}

// Dispose cancels the action. If it already ran, Dispose is a no-op: an
// invoked action does not un-invoke.
func (a *Action) Dispose() {
	a.state.CompareAndSwap(int32(actionScheduled), int32(actionDisposed))
}

// Disposed reports whether the action was cancelled before it ran.
func (a *Action) Disposed() bool {
	return actionState(a.state.Load()) == actionDisposed
}

// Reschedule returns an invoked action to scheduled so it can run again.
// It is a no-op (returns false) if the action was disposed.
func (a *Action) Reschedule() bool {
	return a.state.CompareAndSwap(int32(actionInvoked), int32(actionScheduled))
}
