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

package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

// MonotonicTime is a reading of a monotonic clock. Only differences of
// two readings are meaningful.
type MonotonicTime time.Duration

// Sub returns the duration elapsed between other and m.
func (m MonotonicTime) Sub(other MonotonicTime) time.Duration {
	return time.Duration(m - other)
}

// Clock is a wall clock that can also be read monotonically. Tests use
// Mock to control time.
type Clock interface {
	bclock.Clock
	Mono() MonotonicTime
}

type realClock struct {
	bclock.Clock
}

func (realClock) Mono() MonotonicTime {
	return MonotonicTime(monotime.Now())
}

// New returns the real clock.
func New() Clock {
	return realClock{Clock: bclock.New()}
}

// Mock is a Clock whose time only moves when told to.
type Mock struct {
	*bclock.Mock
}

// NewMock returns a Mock set to the unix epoch.
func NewMock() *Mock {
	return &Mock{Mock: bclock.NewMock()}
}

// Mono implements Clock. The monotonic reading of a Mock is the time
// elapsed since the unix epoch.
func (m *Mock) Mono() MonotonicTime {
	return MonotonicTime(m.Now().Sub(time.Unix(0, 0)))
}
