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

package datatransfer

import (
	"context"

	"github.com/pingcap/dataflow-engine/engine/executor/block"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/plan"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// InputReader reads the blocks of one incoming edge of a task group.
type InputReader struct {
	factory   *Factory
	edge      *plan.StageEdge
	blockIDs  []model.BlockID
	locations map[model.BlockID]model.ExecutorID
}

// BlockIDs returns the blocks read, in order.
func (r *InputReader) BlockIDs() []model.BlockID {
	return r.blockIDs
}

// Read returns the elements of all blocks of the edge, block after block.
func (r *InputReader) Read(ctx context.Context) ([]coder.Element, error) {
	var out []coder.Element
	for _, blockID := range r.blockIDs {
		elems, err := r.readBlock(ctx, blockID)
		if err != nil {
			return nil, err
		}
		out = append(out, elems...)
	}
	return out, nil
}

func (r *InputReader) readBlock(ctx context.Context, blockID model.BlockID) ([]coder.Element, error) {
	tier := r.edge.Tier
	blocks := r.factory.blocks

	if blocks.HasTier(tier) {
		elems, err := blocks.GetBlock(ctx, blockID, tier)
		if err == nil {
			return elems, nil
		}
		// blocks of the local tier are never fetched, and blocks of a
		// shared tier are read from the shared storage only
		if !errors.Is(err, errors.ErrBlockNotFound) || tier == model.TierLocal || block.IsShared(tier) {
			return nil, err
		}
	} else if !tier.Valid() {
		return nil, errors.ErrUnsupportedBlockStore.GenWithStackByArgs(tier.String())
	} else if tier == model.TierLocal || block.IsShared(tier) {
		return nil, errors.ErrBlockStoreNotConfigured.GenWithStackByArgs(tier.String())
	}

	owner, ok := r.locations[blockID]
	if !ok || owner == r.factory.executorID {
		return nil, errors.ErrBlockLocationUnknown.GenWithStackByArgs(blockID)
	}
	log.Debug("fetching remote block",
		zap.String("block-id", blockID),
		zap.String("owner", owner),
		zap.Stringer("tier", tier))
	elems, err := r.factory.fetcher.FetchBlock(ctx, owner, blockID, tier)
	if err != nil {
		return nil, err
	}
	remoteFetchCounter.WithLabelValues(tier.String()).Inc()
	return elems, nil
}
