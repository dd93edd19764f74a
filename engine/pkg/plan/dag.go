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

package plan

import (
	"fmt"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/pkg/errors"
)

// CommPattern describes how the task groups of two adjacent stages exchange
// data over an edge.
type CommPattern int32

// All communication patterns.
const (
	// OneToOne connects task group i of the source stage to task group i
	// of the destination stage.
	OneToOne CommPattern = iota + 1
	// Broadcast sends the whole output of every source task group to every
	// destination task group.
	Broadcast
	// ScatterGather partitions the output of every source task group by key
	// among the destination task groups.
	ScatterGather
)

// String implements fmt.Stringer
func (p CommPattern) String() string {
	switch p {
	case OneToOne:
		return "one-to-one"
	case Broadcast:
		return "broadcast"
	case ScatterGather:
		return "scatter-gather"
	}
	return fmt.Sprintf("unknown(%d)", int32(p))
}

// Stage is a vertex of the stage DAG.
type Stage struct {
	ID          model.StageID `msgpack:"id"`
	Parallelism int           `msgpack:"parallelism"`
}

// StageEdge is an edge of the stage DAG.
type StageEdge struct {
	ID      model.EdgeID  `msgpack:"id"`
	Src     model.StageID `msgpack:"src"`
	Dst     model.StageID `msgpack:"dst"`
	Pattern CommPattern   `msgpack:"pattern"`
	// Tier is the block store the blocks of this edge are written to.
	Tier model.Tier `msgpack:"tier"`
}

// DAG is the immutable directed acyclic graph of stages.
// Slices returned by its methods must not be modified.
type DAG struct {
	Stages []*Stage     `msgpack:"stages"`
	Edges  []*StageEdge `msgpack:"edges"`

	stageByID map[model.StageID]*Stage
	incoming  map[model.StageID][]*StageEdge
	outgoing  map[model.StageID][]*StageEdge
	topoOrder []*Stage
}

// NewDAG builds and validates a DAG.
func NewDAG(stages []*Stage, edges []*StageEdge) (*DAG, error) {
	d := &DAG{Stages: stages, Edges: edges}
	if err := d.build(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DAG) build() error {
	d.stageByID = make(map[model.StageID]*Stage, len(d.Stages))
	d.incoming = make(map[model.StageID][]*StageEdge)
	d.outgoing = make(map[model.StageID][]*StageEdge)

	for _, stage := range d.Stages {
		if stage == nil || stage.ID == "" {
			return errors.ErrInvalidPlan.GenWithStackByArgs("stage without id")
		}
		if _, ok := d.stageByID[stage.ID]; ok {
			return errors.ErrInvalidPlan.GenWithStackByArgs("duplicate stage " + stage.ID)
		}
		if stage.Parallelism <= 0 {
			return errors.ErrInvalidPlan.GenWithStackByArgs(
				fmt.Sprintf("stage %s has parallelism %d", stage.ID, stage.Parallelism))
		}
		d.stageByID[stage.ID] = stage
	}

	edgeIDs := make(map[model.EdgeID]struct{}, len(d.Edges))
	for _, edge := range d.Edges {
		if err := d.checkEdge(edge); err != nil {
			return err
		}
		if _, ok := edgeIDs[edge.ID]; ok {
			return errors.ErrInvalidPlan.GenWithStackByArgs("duplicate edge " + edge.ID)
		}
		edgeIDs[edge.ID] = struct{}{}
		d.outgoing[edge.Src] = append(d.outgoing[edge.Src], edge)
		d.incoming[edge.Dst] = append(d.incoming[edge.Dst], edge)
	}

	return d.sort()
}

func (d *DAG) checkEdge(edge *StageEdge) error {
	if edge == nil || edge.ID == "" {
		return errors.ErrInvalidPlan.GenWithStackByArgs("edge without id")
	}
	src, ok := d.stageByID[edge.Src]
	if !ok {
		return errors.ErrInvalidPlan.GenWithStackByArgs(
			fmt.Sprintf("edge %s has unknown source stage %s", edge.ID, edge.Src))
	}
	dst, ok := d.stageByID[edge.Dst]
	if !ok {
		return errors.ErrInvalidPlan.GenWithStackByArgs(
			fmt.Sprintf("edge %s has unknown destination stage %s", edge.ID, edge.Dst))
	}
	switch edge.Pattern {
	case OneToOne:
		if src.Parallelism != dst.Parallelism {
			return errors.ErrInvalidPlan.GenWithStackByArgs(
				fmt.Sprintf("one-to-one edge %s connects stages of different parallelism", edge.ID))
		}
	case Broadcast, ScatterGather:
	default:
		return errors.ErrInvalidPlan.GenWithStackByArgs(
			fmt.Sprintf("edge %s has %s pattern", edge.ID, edge.Pattern))
	}
	if !edge.Tier.Valid() {
		return errors.ErrInvalidPlan.GenWithStackByArgs(
			fmt.Sprintf("edge %s uses %s block store", edge.ID, edge.Tier))
	}
	return nil
}

// sort computes a topological order with Kahn's algorithm and rejects cycles.
func (d *DAG) sort() error {
	inDegree := make(map[model.StageID]int, len(d.Stages))
	for _, stage := range d.Stages {
		inDegree[stage.ID] = len(d.incoming[stage.ID])
	}

	queue := make([]*Stage, 0, len(d.Stages))
	for _, stage := range d.Stages {
		if inDegree[stage.ID] == 0 {
			queue = append(queue, stage)
		}
	}

	order := make([]*Stage, 0, len(d.Stages))
	for len(queue) > 0 {
		stage := queue[0]
		queue = queue[1:]
		order = append(order, stage)
		for _, edge := range d.outgoing[stage.ID] {
			inDegree[edge.Dst]--
			if inDegree[edge.Dst] == 0 {
				queue = append(queue, d.stageByID[edge.Dst])
			}
		}
	}
	if len(order) != len(d.Stages) {
		return errors.ErrInvalidPlan.GenWithStackByArgs("stage graph contains a cycle")
	}
	d.topoOrder = order
	return nil
}

// Stage returns the stage with the given id.
func (d *DAG) Stage(id model.StageID) (*Stage, bool) {
	stage, ok := d.stageByID[id]
	return stage, ok
}

// IncomingEdgesOf returns the edges whose destination is the given stage.
func (d *DAG) IncomingEdgesOf(id model.StageID) []*StageEdge {
	return d.incoming[id]
}

// OutgoingEdgesOf returns the edges whose source is the given stage.
func (d *DAG) OutgoingEdgesOf(id model.StageID) []*StageEdge {
	return d.outgoing[id]
}

// TopologicalOrder returns the stages so that every edge points forward.
func (d *DAG) TopologicalOrder() []*Stage {
	return d.topoOrder
}
