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

package message

import (
	"context"
	"sync"

	"github.com/pingcap/dataflow-engine/pkg/errors"
)

// Future is the result of an asynchronous operation. It is completed at
// most once; the first Complete or Fail wins.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an uncompleted future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// CompletedFuture creates a future already completed with value.
func CompletedFuture[T any](value T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(value)
	return f
}

// FailedFuture creates a future already failed with err.
func FailedFuture[T any](err error) *Future[T] {
	f := NewFuture[T]()
	f.Fail(err)
	return f
}

// Complete resolves the future with value. It reports whether this call
// resolved the future.
func (f *Future[T]) Complete(value T) bool {
	completed := false
	f.once.Do(func() {
		f.value = value
		close(f.done)
		completed = true
	})
	return completed
}

// Fail resolves the future with err. It reports whether this call
// resolved the future.
func (f *Future[T]) Fail(err error) bool {
	failed := false
	f.once.Do(func() {
		f.err = err
		close(f.done)
		failed = true
	})
	return failed
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the future is resolved or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, errors.Trace(ctx.Err())
	case <-f.done:
		return f.value, f.err
	}
}
