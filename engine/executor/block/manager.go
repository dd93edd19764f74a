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

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/logutil"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Manager dispatches block operations to the store of the requested tier.
type Manager struct {
	stores map[model.Tier]Store
}

// NewManager creates a Manager over stores, at most one per tier.
func NewManager(stores ...Store) (*Manager, error) {
	m := &Manager{stores: make(map[model.Tier]Store, len(stores))}
	for _, store := range stores {
		tier := store.Tier()
		if !tier.Valid() {
			return nil, errors.ErrUnsupportedBlockStore.GenWithStackByArgs(tier.String())
		}
		if _, ok := m.stores[tier]; ok {
			return nil, errors.ErrInvalidArgument.GenWithStackByArgs(
				"duplicate block store " + tier.String())
		}
		m.stores[tier] = store
	}
	return m, nil
}

// NewManagerWithConfig creates the stores enabled by cfg. cfg must have
// been adjusted.
func NewManagerWithConfig(ctx context.Context, cfg *Config, serializer *coder.BlockSerializer) (*Manager, error) {
	stores := []Store{
		NewMemoryStore(model.TierLocal),
		NewMemoryStore(model.TierMemory),
	}
	closeAll := func() {
		for _, store := range stores {
			if err := store.Close(); err != nil {
				logutil.NewLogger4Component("block-store").Warn("failed to close block store",
					zap.Stringer("tier", store.Tier()), zap.Error(err))
			}
		}
	}

	if cfg.FileDir != "" {
		store, err := NewFileStore(cfg.FileDir, serializer)
		if err != nil {
			closeAll()
			return nil, err
		}
		stores = append(stores, store)
	}
	if cfg.MemoryFileDir != "" {
		store, err := NewHybridStore(cfg.MemoryFileDir, cfg.memoryFileQuotaBytes, nil, serializer)
		if err != nil {
			closeAll()
			return nil, err
		}
		stores = append(stores, store)
	}
	if cfg.DistributedStorageURI != "" {
		store, err := NewRemoteStore(ctx, cfg.DistributedStorageURI, serializer)
		if err != nil {
			closeAll()
			return nil, err
		}
		stores = append(stores, store)
	}
	return NewManager(stores...)
}

func (m *Manager) store(tier model.Tier) (Store, error) {
	if !tier.Valid() {
		return nil, errors.ErrUnsupportedBlockStore.GenWithStackByArgs(tier.String())
	}
	store, ok := m.stores[tier]
	if !ok {
		return nil, errors.ErrBlockStoreNotConfigured.GenWithStackByArgs(tier.String())
	}
	return store, nil
}

// HasTier returns whether the store of tier is enabled.
func (m *Manager) HasTier(tier model.Tier) bool {
	_, ok := m.stores[tier]
	return ok
}

// PutBlock stores a new block in tier.
func (m *Manager) PutBlock(ctx context.Context, tier model.Tier, blockID model.BlockID, elems []coder.Element) error {
	store, err := m.store(tier)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, blockID, elems); err != nil {
		return err
	}
	blockPutCounter.WithLabelValues(tier.String()).Inc()
	blockElementCounter.WithLabelValues(tier.String()).Add(float64(len(elems)))
	return nil
}

// GetBlock returns the elements of a block of tier in order.
func (m *Manager) GetBlock(ctx context.Context, blockID model.BlockID, tier model.Tier) ([]coder.Element, error) {
	store, err := m.store(tier)
	if err != nil {
		return nil, err
	}
	elems, err := store.Get(ctx, blockID)
	if err != nil {
		return nil, err
	}
	blockGetCounter.WithLabelValues(tier.String(), "local").Inc()
	return elems, nil
}

// ServeBlock is GetBlock for a remote requester. Blocks of tiers that are
// not servable are refused.
func (m *Manager) ServeBlock(ctx context.Context, blockID model.BlockID, tier model.Tier) ([]coder.Element, error) {
	store, err := m.store(tier)
	if err != nil {
		return nil, err
	}
	if !IsServable(tier) {
		return nil, errors.ErrBlockNotServable.GenWithStackByArgs(blockID, tier.String())
	}
	elems, err := store.Get(ctx, blockID)
	if err != nil {
		return nil, err
	}
	blockGetCounter.WithLabelValues(tier.String(), "remote").Inc()
	return elems, nil
}

// RemoveBlock deletes a block of tier.
func (m *Manager) RemoveBlock(ctx context.Context, blockID model.BlockID, tier model.Tier) error {
	store, err := m.store(tier)
	if err != nil {
		return err
	}
	return store.Remove(ctx, blockID)
}

// Close closes every store.
func (m *Manager) Close() error {
	var err error
	for _, store := range m.stores {
		err = multierr.Append(err, store.Close())
	}
	return err
}
