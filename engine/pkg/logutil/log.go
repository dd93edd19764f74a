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

package logutil

import (
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	constFieldComponentKey = "component"
	constFieldExecutorKey  = "executor_id"
	// constFieldTaskGroupKey and constFieldStageKey recognize the logs of
	// one task group execution
	constFieldTaskGroupKey = "task_group_id"
	constFieldStageKey     = "stage_id"
)

// NewLogger4Component return a new logger for a named component
func NewLogger4Component(component string) *zap.Logger {
	return log.L().With(
		zap.String(constFieldComponentKey, component),
	)
}

// NewLogger4Executor return a new logger for executor
func NewLogger4Executor(executorID model.ExecutorID) *zap.Logger {
	return log.L().With(
		zap.String(constFieldComponentKey, "executor"),
		zap.String(constFieldExecutorKey, executorID),
	)
}

// NewLogger4TaskGroup return a new logger for a task group run by executor
func NewLogger4TaskGroup(
	executorID model.ExecutorID, taskGroupID model.TaskGroupID, stageID model.StageID,
) *zap.Logger {
	return log.L().With(
		zap.String(constFieldComponentKey, "task-group"),
		zap.String(constFieldExecutorKey, executorID),
		zap.String(constFieldTaskGroupKey, taskGroupID),
		zap.String(constFieldStageKey, stageID),
	)
}
