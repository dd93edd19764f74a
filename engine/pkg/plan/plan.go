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

	"github.com/google/uuid"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// PhysicalPlan is the execution topology of a job. It is immutable once
// built and shared read-only by every task group of an executor.
type PhysicalPlan struct {
	ID  string `msgpack:"id"`
	DAG *DAG   `msgpack:"dag"`
}

// NewPhysicalPlan creates a plan with a fresh id.
func NewPhysicalPlan(dag *DAG) *PhysicalPlan {
	return &PhysicalPlan{
		ID:  uuid.NewString(),
		DAG: dag,
	}
}

// Marshal encodes the plan.
func (p *PhysicalPlan) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return nil, errors.WrapError(errors.ErrSerialization, err, "physical plan")
	}
	return data, nil
}

// UnmarshalPhysicalPlan decodes and validates a plan encoded by Marshal.
func UnmarshalPhysicalPlan(data []byte) (*PhysicalPlan, error) {
	p := &PhysicalPlan{}
	if err := msgpack.Unmarshal(data, p); err != nil {
		return nil, errors.WrapError(errors.ErrDeserialization, err, "physical plan")
	}
	if p.DAG == nil {
		return nil, errors.ErrInvalidPlan.GenWithStackByArgs("plan has no stage DAG")
	}
	if err := p.DAG.build(); err != nil {
		return nil, err
	}
	return p, nil
}

// Task is one step of a task group's computation. Operator names the
// registered computation and Config is handed to it verbatim.
type Task struct {
	ID       model.TaskID `msgpack:"id"`
	Operator string       `msgpack:"operator"`
	Config   []byte       `msgpack:"config,omitempty"`
}

// TaskGroup is the schedulable unit of work of a stage. Tasks run in order,
// the output of one task being the input of the next.
type TaskGroup struct {
	ID      model.TaskGroupID `msgpack:"id"`
	StageID model.StageID     `msgpack:"stage_id"`
	// Index is the position of the task group among the task groups of
	// its stage.
	Index int     `msgpack:"index"`
	Tasks []*Task `msgpack:"tasks"`
	// InputLocations tells which executor holds each input block that is
	// not in a cluster-visible tier.
	InputLocations map[model.BlockID]model.ExecutorID `msgpack:"input_locations,omitempty"`
}

// Marshal encodes the task group.
func (tg *TaskGroup) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(tg)
	if err != nil {
		return nil, errors.WrapError(errors.ErrSerialization, err, "task group")
	}
	return data, nil
}

// UnmarshalTaskGroup decodes a task group encoded by Marshal.
func UnmarshalTaskGroup(data []byte) (*TaskGroup, error) {
	tg := &TaskGroup{}
	if err := msgpack.Unmarshal(data, tg); err != nil {
		return nil, errors.WrapError(errors.ErrDeserialization, err, "task group")
	}
	if tg.ID == "" || tg.StageID == "" {
		return nil, errors.ErrDeserialization.GenWithStackByArgs("task group without id or stage")
	}
	for i, task := range tg.Tasks {
		if task == nil {
			return nil, errors.ErrDeserialization.GenWithStackByArgs(
				fmt.Sprintf("task group %s has a nil task at %d", tg.ID, i))
		}
	}
	return tg, nil
}
