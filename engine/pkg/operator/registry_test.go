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

package operator

import (
	"context"
	"testing"

	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ok := r.Register("double", func([]byte) (Operator, error) {
		return Func(func(_ context.Context, in []coder.Element) ([]coder.Element, error) {
			return append(in, in...), nil
		}), nil
	})
	require.True(t, ok)
	require.False(t, r.Register("double", nil))
	require.Panics(t, func() {
		r.MustRegister(Identity, nil)
	})

	op, err := r.Create("double", nil)
	require.NoError(t, err)
	out, err := op.Process(context.Background(), []coder.Element{{Key: "a"}})
	require.NoError(t, err)
	require.Len(t, out, 2)

	_, err = r.Create("not-exist", nil)
	require.True(t, errors.Is(err, errors.ErrOperatorNotFound))
}

func TestBuiltins(t *testing.T) {
	t.Parallel()

	r := GlobalRegistry()
	in := []coder.Element{
		{Key: "b", Value: []float64{1}},
		{Key: "a", Value: []float64{2}},
		{Key: "b", Value: []float64{3}},
	}

	identity, err := r.Create(Identity, nil)
	require.NoError(t, err)
	out, err := identity.Process(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, in, out)

	count, err := r.Create(CountByKey, nil)
	require.NoError(t, err)
	out, err = count.Process(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []coder.Element{
		{Key: "b", Value: int64(2)},
		{Key: "a", Value: int64(1)},
	}, out)

	config, err := msgpack.Marshal(&UnionTagConfig{Branch: 1})
	require.NoError(t, err)
	tag, err := r.Create(UnionTag, config)
	require.NoError(t, err)
	out, err = tag.Process(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, elem := range out {
		require.Equal(t, int64(i), elem.Key)
		require.True(t, coder.IsUnionElement(elem))
		require.Equal(t, coder.UnionValue{Tag: 1, Value: in[i].Value}, elem.Value)
	}

	_, err = r.Create(UnionTag, []byte{0xc1})
	require.True(t, errors.Is(err, errors.ErrInvalidArgument))
}
