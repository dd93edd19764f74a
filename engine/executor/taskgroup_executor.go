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

package executor

import (
	"context"
	"fmt"

	"github.com/pingcap/dataflow-engine/engine/executor/datatransfer"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/operator"
	"github.com/pingcap/dataflow-engine/engine/pkg/plan"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"go.uber.org/zap"
)

// TaskGroupExecutor runs the task chain of one task group: it reads the
// blocks of the incoming edges of its stage, applies the tasks in order
// and writes the result to the outgoing edges.
type TaskGroupExecutor struct {
	taskGroup *plan.TaskGroup
	plan      *plan.PhysicalPlan
	transfer  *datatransfer.Factory
	operators operator.Registry
	states    *TaskGroupStateManager
	logger    *zap.Logger
}

// NewTaskGroupExecutor creates a TaskGroupExecutor.
func NewTaskGroupExecutor(
	taskGroup *plan.TaskGroup,
	physicalPlan *plan.PhysicalPlan,
	transfer *datatransfer.Factory,
	operators operator.Registry,
	states *TaskGroupStateManager,
) *TaskGroupExecutor {
	return &TaskGroupExecutor{
		taskGroup: taskGroup,
		plan:      physicalPlan,
		transfer:  transfer,
		operators: operators,
		states:    states,
		logger:    states.logger,
	}
}

// Execute runs the task group on the calling goroutine. Task group state
// transitions are left to the caller, task states are recorded.
func (x *TaskGroupExecutor) Execute(ctx context.Context) error {
	tg := x.taskGroup
	if len(tg.Tasks) == 0 {
		return errors.ErrTaskGroupEmpty.GenWithStackByArgs(tg.ID)
	}
	dag := x.plan.DAG
	stage, ok := dag.Stage(tg.StageID)
	if !ok {
		return errors.ErrStageNotFound.GenWithStackByArgs(tg.StageID)
	}
	if tg.Index < 0 || tg.Index >= stage.Parallelism {
		return errors.ErrInvalidPlan.GenWithStackByArgs(
			fmt.Sprintf("task group %s has index %d but stage %s has parallelism %d",
				tg.ID, tg.Index, stage.ID, stage.Parallelism))
	}

	ops := make([]operator.Operator, 0, len(tg.Tasks))
	for _, task := range tg.Tasks {
		op, err := x.operators.Create(task.Operator, task.Config)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	elems, err := x.readInputs(ctx, dag)
	if err != nil {
		return err
	}
	x.logger.Debug("inputs read", zap.Int("elements", len(elems)))

	for i, task := range tg.Tasks {
		x.states.OnTaskStateChanged(task.ID, StateExecuting)
		elems, err = ops[i].Process(ctx, elems)
		if err != nil {
			x.states.OnTaskStateChanged(task.ID, StateFailed)
			return errors.Annotatef(err, "task %s (%s)", task.ID, task.Operator)
		}
		x.states.OnTaskStateChanged(task.ID, StateComplete)
	}

	return x.writeOutputs(ctx, dag, elems)
}

func (x *TaskGroupExecutor) readInputs(ctx context.Context, dag *plan.DAG) ([]coder.Element, error) {
	var elems []coder.Element
	for _, edge := range dag.IncomingEdgesOf(x.taskGroup.StageID) {
		reader, err := x.transfer.CreateReader(edge, dag, x.taskGroup.Index, x.taskGroup.InputLocations)
		if err != nil {
			return nil, err
		}
		in, err := reader.Read(ctx)
		if err != nil {
			return nil, err
		}
		elems = append(elems, in...)
	}
	return elems, nil
}

func (x *TaskGroupExecutor) writeOutputs(ctx context.Context, dag *plan.DAG, elems []coder.Element) error {
	for _, edge := range dag.OutgoingEdgesOf(x.taskGroup.StageID) {
		writer, err := x.transfer.CreateWriter(edge, dag, x.taskGroup.Index)
		if err != nil {
			return err
		}
		if err := writer.Write(elems...); err != nil {
			return err
		}
		if err := writer.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}
