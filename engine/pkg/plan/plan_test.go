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
	"testing"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestDAG(t *testing.T) *DAG {
	dag, err := NewDAG(
		[]*Stage{
			{ID: "s1", Parallelism: 2},
			{ID: "s2", Parallelism: 2},
			{ID: "s3", Parallelism: 1},
		},
		[]*StageEdge{
			{ID: "e1", Src: "s1", Dst: "s2", Pattern: OneToOne, Tier: model.TierMemory},
			{ID: "e2", Src: "s2", Dst: "s3", Pattern: ScatterGather, Tier: model.TierFile},
			{ID: "e3", Src: "s1", Dst: "s3", Pattern: Broadcast, Tier: model.TierLocal},
		},
	)
	require.NoError(t, err)
	return dag
}

func TestDAGEdges(t *testing.T) {
	t.Parallel()

	dag := newTestDAG(t)
	require.Empty(t, dag.IncomingEdgesOf("s1"))
	require.Len(t, dag.OutgoingEdgesOf("s1"), 2)

	in := dag.IncomingEdgesOf("s3")
	require.Len(t, in, 2)
	require.Equal(t, "e2", in[0].ID)
	require.Equal(t, "e3", in[1].ID)
	require.Empty(t, dag.OutgoingEdgesOf("s3"))

	var order []model.StageID
	for _, stage := range dag.TopologicalOrder() {
		order = append(order, stage.ID)
	}
	require.Equal(t, []model.StageID{"s1", "s2", "s3"}, order)

	_, ok := dag.Stage("s4")
	require.False(t, ok)
}

func TestDAGValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		stages []*Stage
		edges  []*StageEdge
	}{
		{
			name:   "duplicate stage",
			stages: []*Stage{{ID: "a", Parallelism: 1}, {ID: "a", Parallelism: 1}},
		},
		{
			name:   "zero parallelism",
			stages: []*Stage{{ID: "a"}},
		},
		{
			name:   "unknown stage",
			stages: []*Stage{{ID: "a", Parallelism: 1}},
			edges:  []*StageEdge{{ID: "e", Src: "a", Dst: "b", Pattern: OneToOne, Tier: model.TierMemory}},
		},
		{
			name:   "cycle",
			stages: []*Stage{{ID: "a", Parallelism: 1}, {ID: "b", Parallelism: 1}},
			edges: []*StageEdge{
				{ID: "e1", Src: "a", Dst: "b", Pattern: OneToOne, Tier: model.TierMemory},
				{ID: "e2", Src: "b", Dst: "a", Pattern: OneToOne, Tier: model.TierMemory},
			},
		},
		{
			name:   "one-to-one parallelism mismatch",
			stages: []*Stage{{ID: "a", Parallelism: 1}, {ID: "b", Parallelism: 2}},
			edges:  []*StageEdge{{ID: "e", Src: "a", Dst: "b", Pattern: OneToOne, Tier: model.TierMemory}},
		},
		{
			name:   "unknown tier",
			stages: []*Stage{{ID: "a", Parallelism: 1}, {ID: "b", Parallelism: 1}},
			edges:  []*StageEdge{{ID: "e", Src: "a", Dst: "b", Pattern: OneToOne, Tier: model.Tier(99)}},
		},
		{
			name:   "unknown pattern",
			stages: []*Stage{{ID: "a", Parallelism: 1}, {ID: "b", Parallelism: 1}},
			edges:  []*StageEdge{{ID: "e", Src: "a", Dst: "b", Tier: model.TierMemory}},
		},
	}
	for _, tc := range cases {
		_, err := NewDAG(tc.stages, tc.edges)
		require.Error(t, err, tc.name)
		require.True(t, errors.Is(err, errors.ErrInvalidPlan), tc.name)
	}
}

func TestPhysicalPlanMarshal(t *testing.T) {
	t.Parallel()

	p := NewPhysicalPlan(newTestDAG(t))
	require.NotEmpty(t, p.ID)

	data, err := p.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalPhysicalPlan(data)
	require.NoError(t, err)
	require.Equal(t, p.ID, decoded.ID)
	require.Equal(t, p.DAG.Stages, decoded.DAG.Stages)
	require.Equal(t, p.DAG.Edges, decoded.DAG.Edges)
	// The index is rebuilt on decoding.
	require.Len(t, decoded.DAG.IncomingEdgesOf("s3"), 2)

	_, err = UnmarshalPhysicalPlan([]byte{0xc1})
	require.True(t, errors.Is(err, errors.ErrDeserialization))
}

func TestTaskGroupMarshal(t *testing.T) {
	t.Parallel()

	tg := &TaskGroup{
		ID:      "tg-1",
		StageID: "s2",
		Index:   1,
		Tasks: []*Task{
			{ID: "t1", Operator: "identity"},
			{ID: "t2", Operator: "filter", Config: []byte("x > 1")},
		},
		InputLocations: map[model.BlockID]model.ExecutorID{
			model.NewBlockID("e1", 1, 1): "executor-0",
		},
	}
	data, err := tg.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalTaskGroup(data)
	require.NoError(t, err)
	require.Equal(t, tg, decoded)

	_, err = UnmarshalTaskGroup([]byte{0x80})
	require.True(t, errors.Is(err, errors.ErrDeserialization))

	withNil := &TaskGroup{ID: "tg-2", StageID: "s1", Tasks: []*Task{{ID: "t1", Operator: "identity"}, nil}}
	data, err = withNil.Marshal()
	require.NoError(t, err)
	_, err = UnmarshalTaskGroup(data)
	require.True(t, errors.Is(err, errors.ErrDeserialization))
	require.Contains(t, err.Error(), "nil task at 1")
}
