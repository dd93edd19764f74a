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
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/pingcap/dataflow-engine/engine/executor/block"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/plan"
	"github.com/pingcap/dataflow-engine/pkg/errors"
)

// OutputWriter partitions the output of a task group over one outgoing
// edge and publishes one block per partition on Close.
type OutputWriter struct {
	blocks   *block.Manager
	edge     *plan.StageEdge
	srcIndex int

	blockIDs   []model.BlockID
	partitions [][]coder.Element
	closed     bool
}

func newOutputWriter(blocks *block.Manager, edge *plan.StageEdge, srcIndex int, dstParallelism int) *OutputWriter {
	w := &OutputWriter{
		blocks:   blocks,
		edge:     edge,
		srcIndex: srcIndex,
	}
	switch edge.Pattern {
	case plan.OneToOne:
		w.blockIDs = []model.BlockID{model.NewBlockID(edge.ID, srcIndex, srcIndex)}
	case plan.Broadcast:
		w.blockIDs = []model.BlockID{model.NewBlockID(edge.ID, srcIndex, model.BroadcastIndex)}
	default:
		for i := 0; i < dstParallelism; i++ {
			w.blockIDs = append(w.blockIDs, model.NewBlockID(edge.ID, srcIndex, i))
		}
	}
	w.partitions = make([][]coder.Element, len(w.blockIDs))
	return w
}

// BlockIDs returns the blocks published by Close.
func (w *OutputWriter) BlockIDs() []model.BlockID {
	return w.blockIDs
}

// Write buffers elements into their partition.
func (w *OutputWriter) Write(elems ...coder.Element) error {
	if w.closed {
		return errors.ErrInvalidArgument.GenWithStackByArgs("write to a closed writer of edge " + w.edge.ID)
	}
	for _, elem := range elems {
		p := w.partition(elem)
		w.partitions[p] = append(w.partitions[p], elem)
	}
	return nil
}

func (w *OutputWriter) partition(elem coder.Element) int {
	if len(w.partitions) == 1 {
		return 0
	}
	return int(partitionHash(elem.Key) % uint64(len(w.partitions)))
}

func partitionHash(key interface{}) uint64 {
	switch k := key.(type) {
	case string:
		return xxhash.Sum64String(k)
	case []byte:
		return xxhash.Sum64(k)
	default:
		return xxhash.Sum64String(fmt.Sprint(k))
	}
}

// Close publishes every partition as a block, including empty ones so
// that readers always find the blocks they expect.
func (w *OutputWriter) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	for i, blockID := range w.blockIDs {
		if err := w.blocks.PutBlock(ctx, w.edge.Tier, blockID, w.partitions[i]); err != nil {
			return err
		}
	}
	w.partitions = nil
	return nil
}
