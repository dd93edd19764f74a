// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package deps

import (
	"reflect"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"go.uber.org/dig"
)

// Deps is a dependency injection container holding the components of a
// process.
type Deps struct {
	container *dig.Container
}

// NewDeps creates an empty container.
func NewDeps() *Deps {
	return &Deps{
		container: dig.New(),
	}
}

// Provide registers a constructor. Its parameters are resolved from the
// container when one of its results is first needed.
func (d *Deps) Provide(constructor interface{}) error {
	return errors.Trace(d.container.Provide(constructor))
}

// Invoke calls fn with its parameters resolved from the container.
func (d *Deps) Invoke(fn interface{}) error {
	return errors.Trace(d.container.Invoke(fn))
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Fill resolves params, a pointer to a struct embedding dig.In.
func (d *Deps) Fill(params interface{}) error {
	target := reflect.ValueOf(params)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Struct {
		return errors.ErrInvalidArgument.GenWithStackByArgs("deps.Fill needs a pointer to struct")
	}

	fnType := reflect.FuncOf([]reflect.Type{target.Elem().Type()}, []reflect.Type{errorType}, false)
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		target.Elem().Set(args[0])
		return []reflect.Value{reflect.Zero(errorType)}
	})
	return errors.Trace(d.container.Invoke(fn.Interface()))
}
