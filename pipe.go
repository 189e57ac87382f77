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
	"fmt"
	"reflect"
)

func newPipeError(msg string, args ...any) error {
	return &pipeError{msg: fmt.Sprintf(msg, args...)}
}

type pipeError struct{ msg string }

func (e *pipeError) Error() string { return "flow.Pipe: " + e.msg }

// Pipe builds a composition of operators chained to transform an observable
// stream. Operator arity in Go can't vary under one generic signature the way
// it can in a dynamically-typed Reactive-Streams port, so unlike most
// Reactive-Streams ports the concrete N-ary operators of this engine (merge,
// zip_with, combine_latest, ...) already take a variadic slice of sources;
// Pipe only needs to compose single-input/single-output steps, so the
// typesafe Pipe1..Pipe4/PipeOp1..PipeOp4 below cover the large majority of
// call sites. Pipe/PipeOp remain as an escape hatch for longer chains, at the
// cost of a runtime reflect check instead of a compile-time one.
func Pipe[First, Last any](source Observable[First], operators ...any) Observable[Last] {
	o := reflect.ValueOf(source)

	for _, operator := range operators {
		funcValue := reflect.ValueOf(operator)

		if funcValue.Type().Kind() != reflect.Func || funcValue.Type().NumIn() != 1 || funcValue.Type().NumOut() != 1 {
			panic(newPipeError("%s is not an operator", funcValue.Type()))
		}

		if funcValue.Type().In(0).Kind() != reflect.Interface {
			panic(newPipeError("%s does not implement Observable[T]", funcValue.Type().In(0)))
		}

		if funcValue.Type().Out(0).Kind() != reflect.Interface {
			panic(newPipeError("%s does not implement Observable[T]", funcValue.Type().Out(0)))
		}

		if !o.Type().Implements(funcValue.Type().In(0)) {
			panic(newPipeError("%s does not implement %s", o.Type(), funcValue.Type().In(0)))
		}

		o = funcValue.Call([]reflect.Value{o})[0]
	}

	want := reflect.TypeOf((*Observable[Last])(nil)).Elem()
	if !o.Type().Implements(want) {
		panic(newPipeError("%s does not implement %s", o.Type(), want))
	}

	v, _ := o.Interface().(Observable[Last])

	return v
}

// PipeOp is the operator form of Pipe, for composing a chain once and
// applying it at several call sites.
func PipeOp[First, Last any](operators ...any) func(Observable[First]) Observable[Last] {
	return func(source Observable[First]) Observable[Last] {
		return Pipe[First, Last](source, operators...)
	}
}

// Pipe1 is a typesafe implementation of Pipe taking a source and 1 operator.
func Pipe1[A, B any](
	source Observable[A],
	operator1 func(Observable[A]) Observable[B],
) Observable[B] {
	return operator1(source)
}

// PipeOp1 is the operator form of Pipe1.
func PipeOp1[A, B any](
	operator1 func(Observable[A]) Observable[B],
) func(Observable[A]) Observable[B] {
	return func(source Observable[A]) Observable[B] {
		return Pipe1(source, operator1)
	}
}

// Pipe2 is a typesafe implementation of Pipe taking a source and 2 operators.
func Pipe2[A, B, C any](
	source Observable[A],
	operator1 func(Observable[A]) Observable[B],
	operator2 func(Observable[B]) Observable[C],
) Observable[C] {
	return operator2(operator1(source))
}

// PipeOp2 is the operator form of Pipe2.
func PipeOp2[A, B, C any](
	operator1 func(Observable[A]) Observable[B],
	operator2 func(Observable[B]) Observable[C],
) func(Observable[A]) Observable[C] {
	return func(source Observable[A]) Observable[C] {
		return Pipe2(source, operator1, operator2)
	}
}

// Pipe3 is a typesafe implementation of Pipe taking a source and 3 operators.
func Pipe3[A, B, C, D any](
	source Observable[A],
	operator1 func(Observable[A]) Observable[B],
	operator2 func(Observable[B]) Observable[C],
	operator3 func(Observable[C]) Observable[D],
) Observable[D] {
	return operator3(operator2(operator1(source)))
}

// PipeOp3 is the operator form of Pipe3.
func PipeOp3[A, B, C, D any](
	operator1 func(Observable[A]) Observable[B],
	operator2 func(Observable[B]) Observable[C],
	operator3 func(Observable[C]) Observable[D],
) func(Observable[A]) Observable[D] {
	return func(source Observable[A]) Observable[D] {
		return Pipe3(source, operator1, operator2, operator3)
	}
}

// Pipe4 is a typesafe implementation of Pipe taking a source and 4 operators.
func Pipe4[A, B, C, D, E any](
	source Observable[A],
	operator1 func(Observable[A]) Observable[B],
	operator2 func(Observable[B]) Observable[C],
	operator3 func(Observable[C]) Observable[D],
	operator4 func(Observable[D]) Observable[E],
) Observable[E] {
	return operator4(operator3(operator2(operator1(source))))
}

// PipeOp4 is the operator form of Pipe4.
func PipeOp4[A, B, C, D, E any](
	operator1 func(Observable[A]) Observable[B],
	operator2 func(Observable[B]) Observable[C],
	operator3 func(Observable[C]) Observable[D],
	operator4 func(Observable[D]) Observable[E],
) func(Observable[A]) Observable[E] {
	return func(source Observable[A]) Observable[E] {
		return Pipe4(source, operator1, operator2, operator3, operator4)
	}
}
