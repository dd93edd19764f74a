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
	"sync"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/logutil"
	"github.com/pingcap/dataflow-engine/engine/pkg/plan"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"go.uber.org/zap"
)

// State is the execution state of a task group or of one of its tasks.
type State int32

// All states. Complete and Failed are terminal.
const (
	StatePending State = iota + 1
	StateExecuting
	StateComplete
	StateFailed
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateExecuting: "executing",
	StateComplete:  "complete",
	StateFailed:    "failed",
}

// String implements fmt.Stringer
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int32(s))
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	for state, name := range stateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}

// IsTerminal returns whether no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

var legalTransitions = map[State][]State{
	StatePending:   {StateExecuting, StateFailed},
	StateExecuting: {StateComplete, StateFailed},
}

func canTransit(from, to State) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateReporter delivers state reports to the master.
type stateReporter interface {
	SendToMaster(ctx context.Context, msg *comm.Message) error
}

// TaskGroupStateManager tracks the state of one task group and of its
// tasks, and reports every task group transition to the master.
type TaskGroupStateManager struct {
	executorID  model.ExecutorID
	taskGroupID model.TaskGroupID
	reporter    stateReporter
	logger      *zap.Logger

	mu         sync.Mutex
	state      State
	taskStates map[model.TaskID]State
}

// NewTaskGroupStateManager creates a state manager in the pending state.
func NewTaskGroupStateManager(
	executorID model.ExecutorID, taskGroup *plan.TaskGroup, reporter stateReporter,
) *TaskGroupStateManager {
	return &TaskGroupStateManager{
		executorID:  executorID,
		taskGroupID: taskGroup.ID,
		reporter:    reporter,
		logger:      logutil.NewLogger4TaskGroup(executorID, taskGroup.ID, taskGroup.StageID),
		state:       StatePending,
		taskStates:  make(map[model.TaskID]State),
	}
}

// State returns the current state of the task group.
func (m *TaskGroupStateManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTaskGroupStateChanged moves the task group to newState and reports it.
// cause is the failure cause and only makes sense with StateFailed.
// A report that cannot be delivered is logged, the transition stands.
func (m *TaskGroupStateManager) OnTaskGroupStateChanged(ctx context.Context, newState State, cause error) error {
	m.mu.Lock()
	oldState := m.state
	if !canTransit(oldState, newState) {
		m.mu.Unlock()
		return errors.ErrIllegalStateTransition.GenWithStackByArgs(
			m.taskGroupID, oldState.String(), newState.String())
	}
	m.state = newState
	m.mu.Unlock()

	taskGroupStateCounter.WithLabelValues(newState.String()).Inc()
	if newState == StateFailed {
		m.logger.Warn("task group failed", zap.Stringer("from", oldState), zap.Error(cause))
	} else {
		m.logger.Info("task group state changed",
			zap.Stringer("from", oldState), zap.Stringer("to", newState))
	}

	msg := comm.NewTaskGroupStateChanged(m.executorID, m.taskGroupID, newState.String(), cause)
	if err := m.reporter.SendToMaster(ctx, msg); err != nil {
		stateReportErrorCounter.Inc()
		m.logger.Warn("failed to report task group state",
			zap.Stringer("state", newState), zap.Error(err))
	}
	return nil
}

// OnTaskStateChanged records the state of a task. Task states are not
// reported to the master.
func (m *TaskGroupStateManager) OnTaskStateChanged(taskID model.TaskID, newState State) {
	m.mu.Lock()
	oldState, ok := m.taskStates[taskID]
	if !ok {
		oldState = StatePending
	}
	m.taskStates[taskID] = newState
	m.mu.Unlock()

	m.logger.Debug("task state changed",
		zap.String("task-id", taskID),
		zap.Stringer("from", oldState),
		zap.Stringer("to", newState))
}

// TaskState returns the recorded state of a task.
func (m *TaskGroupStateManager) TaskState(taskID model.TaskID) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.taskStates[taskID]; ok {
		return state
	}
	return StatePending
}
