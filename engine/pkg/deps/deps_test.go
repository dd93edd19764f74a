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
	"testing"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/dig"
)

type store struct {
	name string
}

type service struct {
	store *store
}

type components struct {
	dig.In

	Store   *store
	Service *service
}

func TestDepsBasics(t *testing.T) {
	t.Parallel()

	deps := NewDeps()
	require.NoError(t, deps.Provide(func() *store {
		return &store{name: "memory"}
	}))
	require.NoError(t, deps.Provide(func(s *store) (*service, error) {
		return &service{store: s}, nil
	}))

	var got *service
	require.NoError(t, deps.Invoke(func(s *service) {
		got = s
	}))
	require.Equal(t, "memory", got.store.name)

	var c components
	require.NoError(t, deps.Fill(&c))
	require.Same(t, c.Store, c.Service.store)
	require.Same(t, got, c.Service)
}

func TestDepsErrors(t *testing.T) {
	t.Parallel()

	deps := NewDeps()
	require.NoError(t, deps.Provide(func() (*store, error) {
		return nil, errors.New("store unavailable")
	}))
	err := deps.Invoke(func(*store) {})
	require.Error(t, err)
	require.Regexp(t, "store unavailable", err.Error())

	var c components
	require.Error(t, deps.Fill(&c))
	require.True(t, errors.Is(deps.Fill(c), errors.ErrInvalidArgument))
}
