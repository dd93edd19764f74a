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
	"sync"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
)

// MemoryStore keeps blocks as element slices in process memory. It backs
// both the ephemeral-local and the in-memory tier, which differ only in
// whether the blocks are served to remote executors.
type MemoryStore struct {
	tier model.Tier

	mu     sync.RWMutex
	blocks map[model.BlockID][]coder.Element
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore for tier.
func NewMemoryStore(tier model.Tier) *MemoryStore {
	return &MemoryStore{
		tier:   tier,
		blocks: make(map[model.BlockID][]coder.Element),
	}
}

// Tier implements Store.
func (s *MemoryStore) Tier() model.Tier {
	return s.tier
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, blockID model.BlockID, elems []coder.Element) error {
	copied := make([]coder.Element, len(elems))
	copy(copied, elems)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[blockID]; ok {
		return errors.ErrBlockAlreadyExists.GenWithStackByArgs(blockID, s.tier.String())
	}
	s.blocks[blockID] = copied
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, blockID model.BlockID) ([]coder.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elems, ok := s.blocks[blockID]
	if !ok {
		return nil, errors.ErrBlockNotFound.GenWithStackByArgs(blockID, s.tier.String())
	}
	copied := make([]coder.Element, len(elems))
	copy(copied, elems)
	return copied, nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, blockID model.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[blockID]; !ok {
		return errors.ErrBlockNotFound.GenWithStackByArgs(blockID, s.tier.String())
	}
	delete(s.blocks, blockID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks = make(map[model.BlockID][]coder.Element)
	return nil
}
