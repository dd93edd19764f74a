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
)

// BlockFetcher fetches a block from the executor owning it.
type BlockFetcher interface {
	FetchBlock(
		ctx context.Context, owner model.ExecutorID, blockID model.BlockID, tier model.Tier,
	) ([]coder.Element, error)
}

// Factory creates the readers and writers bound to the edges of a stage.
type Factory struct {
	executorID model.ExecutorID
	blocks     *block.Manager
	fetcher    BlockFetcher
}

// NewFactory creates a Factory. fetcher is used for blocks that are
// neither in the local block store nor in a cluster-visible tier.
func NewFactory(executorID model.ExecutorID, blocks *block.Manager, fetcher BlockFetcher) *Factory {
	return &Factory{
		executorID: executorID,
		blocks:     blocks,
		fetcher:    fetcher,
	}
}

// CreateReader creates the reader of task group dstIndex of the
// destination stage of edge. locations maps the blocks kept by other
// executors to their owner.
func (f *Factory) CreateReader(
	edge *plan.StageEdge, dag *plan.DAG, dstIndex int, locations map[model.BlockID]model.ExecutorID,
) (*InputReader, error) {
	src, ok := dag.Stage(edge.Src)
	if !ok {
		return nil, errors.ErrStageNotFound.GenWithStackByArgs(edge.Src)
	}
	return &InputReader{
		factory:   f,
		edge:      edge,
		blockIDs:  inputBlockIDs(edge, src.Parallelism, dstIndex),
		locations: locations,
	}, nil
}

// CreateWriter creates the writer of task group srcIndex of the source
// stage of edge.
func (f *Factory) CreateWriter(edge *plan.StageEdge, dag *plan.DAG, srcIndex int) (*OutputWriter, error) {
	dst, ok := dag.Stage(edge.Dst)
	if !ok {
		return nil, errors.ErrStageNotFound.GenWithStackByArgs(edge.Dst)
	}
	return newOutputWriter(f.blocks, edge, srcIndex, dst.Parallelism), nil
}

// inputBlockIDs lists the blocks task group dstIndex reads from edge, in
// the order of their source task group.
func inputBlockIDs(edge *plan.StageEdge, srcParallelism int, dstIndex int) []model.BlockID {
	switch edge.Pattern {
	case plan.OneToOne:
		return []model.BlockID{model.NewBlockID(edge.ID, dstIndex, dstIndex)}
	case plan.Broadcast:
		ids := make([]model.BlockID, 0, srcParallelism)
		for i := 0; i < srcParallelism; i++ {
			ids = append(ids, model.NewBlockID(edge.ID, i, model.BroadcastIndex))
		}
		return ids
	default:
		ids := make([]model.BlockID, 0, srcParallelism)
		for i := 0; i < srcParallelism; i++ {
			ids = append(ids, model.NewBlockID(edge.ID, i, dstIndex))
		}
		return ids
	}
}
