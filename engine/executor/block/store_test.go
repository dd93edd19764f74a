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

package block

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	brStorage "github.com/pingcap/tidb/br/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T, hybridQuota int64) []Store {
	serializer := coder.NewBlockSerializer()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "file"), serializer)
	require.NoError(t, err)
	hybridStore, err := NewHybridStore("spill", hybridQuota, vfs.NewMem(), serializer)
	require.NoError(t, err)
	local, err := brStorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	stores := []Store{
		NewMemoryStore(model.TierLocal),
		NewMemoryStore(model.TierMemory),
		fileStore,
		hybridStore,
		NewRemoteStoreWithStorage(local, serializer),
	}
	t.Cleanup(func() {
		for _, store := range stores {
			require.NoError(t, store.Close())
		}
	})
	return stores
}

func testElements(n int) []coder.Element {
	elems := make([]coder.Element, 0, n)
	for i := 0; i < n; i++ {
		elems = append(elems, coder.Element{
			Key:   fmt.Sprintf("key-%d", i),
			Value: int64(i),
		})
	}
	return elems
}

func TestStoresWriteOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, store := range newTestStores(t, 1<<20) {
		tier := store.Tier().String()
		elems := testElements(10)

		_, err := store.Get(ctx, "e/0/0")
		require.True(t, errors.Is(err, errors.ErrBlockNotFound), tier)

		require.NoError(t, store.Put(ctx, "e/0/0", elems), tier)
		got, err := store.Get(ctx, "e/0/0")
		require.NoError(t, err, tier)
		require.Equal(t, elems, got, tier)

		err = store.Put(ctx, "e/0/0", testElements(1))
		require.True(t, errors.Is(err, errors.ErrBlockAlreadyExists), tier)
		got, err = store.Get(ctx, "e/0/0")
		require.NoError(t, err, tier)
		require.Len(t, got, 10, tier)

		require.NoError(t, store.Remove(ctx, "e/0/0"), tier)
		_, err = store.Get(ctx, "e/0/0")
		require.True(t, errors.Is(err, errors.ErrBlockNotFound), tier)
		err = store.Remove(ctx, "e/0/0")
		require.True(t, errors.Is(err, errors.ErrBlockNotFound), tier)
	}
}

func TestStoresUnionBlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	elems := []coder.Element{
		{Key: int64(1), Value: coder.UnionValue{Tag: 0, Value: []float64{1.5}}},
		{Key: int64(2), Value: coder.UnionValue{Tag: 1, Value: []float64{2.5, 3}}},
	}
	for _, store := range newTestStores(t, 1<<20) {
		tier := store.Tier().String()
		require.NoError(t, store.Put(ctx, "side/0/*", elems), tier)
		got, err := store.Get(ctx, "side/0/*")
		require.NoError(t, err, tier)
		require.Equal(t, elems, got, tier)
	}
}

func TestStoresKeepValueTypes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	plain := []coder.Element{
		{Key: 1, Value: []float64{0.5, 1}},
		{Key: "s", Value: int32(3)},
		{Key: nil, Value: []interface{}{7, "x", []byte("b"), nil}},
		{Key: uint8(2), Value: map[string]interface{}{"f": float32(1.5), "ids": []int{4, 5}}},
		{Key: true, Value: []string{"a", "b"}},
	}
	union := []coder.Element{
		{Key: 1, Value: coder.UnionValue{Tag: 0, Value: []float64{1.5}}},
		{Key: 2, Value: coder.UnionValue{Tag: 1, Value: []float64{}}},
	}
	// quota 1 makes the hybrid tier spill every block
	for _, quota := range []int64{1 << 20, 1} {
		for _, store := range newTestStores(t, quota) {
			tier := store.Tier().String()
			require.NoError(t, store.Put(ctx, "typed/0/0", plain), tier)
			got, err := store.Get(ctx, "typed/0/0")
			require.NoError(t, err, tier)
			require.Equal(t, plain, got, tier)

			require.NoError(t, store.Put(ctx, "typed/0/*", union), tier)
			got, err = store.Get(ctx, "typed/0/*")
			require.NoError(t, err, tier)
			require.Equal(t, union, got, tier)
		}
	}
}

func TestStoresConcurrentGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, store := range newTestStores(t, 1<<20) {
		elems := testElements(100)
		require.NoError(t, store.Put(ctx, "e/1/2", elems))

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				got, err := store.Get(ctx, "e/1/2")
				require.NoError(t, err)
				require.Equal(t, elems, got)
			}()
		}
		wg.Wait()
	}
}

func TestMemoryStoreIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(model.TierMemory)
	elems := testElements(2)
	require.NoError(t, store.Put(ctx, "b", elems))

	elems[0].Value = "changed"
	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(0), got[0].Value)

	got[1].Value = "changed"
	again, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, int64(1), again[1].Value)
}

func TestHybridStoreSpill(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	serializer := coder.NewBlockSerializer()
	store, err := NewHybridStore("spill", 64, vfs.NewMem(), serializer)
	require.NoError(t, err)
	defer store.Close()

	small := testElements(1)
	require.NoError(t, store.Put(ctx, "small", small))
	used := store.MemoryUsed()
	require.Greater(t, used, int64(0))

	large := testElements(100)
	require.NoError(t, store.Put(ctx, "large", large))
	require.Equal(t, used, store.MemoryUsed())

	got, err := store.Get(ctx, "large")
	require.NoError(t, err)
	require.Equal(t, large, got)
	err = store.Put(ctx, "large", small)
	require.True(t, errors.Is(err, errors.ErrBlockAlreadyExists))

	require.NoError(t, store.Remove(ctx, "small"))
	require.Equal(t, int64(0), store.MemoryUsed())
	require.NoError(t, store.Remove(ctx, "large"))
	_, err = store.Get(ctx, "large")
	require.True(t, errors.Is(err, errors.ErrBlockNotFound))
}

func TestDecodeBlock(t *testing.T) {
	t.Parallel()

	serializer := coder.NewBlockSerializer()
	_, err := decodeBlock(serializer, nil)
	require.True(t, errors.Is(err, errors.ErrDeserialization))
	_, err = decodeBlock(serializer, []byte{9, 0x90})
	require.True(t, errors.Is(err, errors.ErrDeserialization))

	data, err := encodeBlock(serializer, testElements(3))
	require.NoError(t, err)
	require.Equal(t, flagPlain, data[0])
	elems, err := decodeBlock(serializer, data)
	require.NoError(t, err)
	require.Equal(t, testElements(3), elems)
}
