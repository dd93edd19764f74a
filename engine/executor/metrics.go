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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	taskGroupStateCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "executor",
		Name:      "task_group_state_change_count",
		Help:      "number of task group state transitions",
	}, []string{"state"})

	stateReportErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "executor",
		Name:      "state_report_error_count",
		Help:      "number of task group state reports that could not be sent to the master",
	})

	planFetchCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "executor",
		Name:      "plan_fetch_count",
		Help:      "number of physical plan requests sent to the master",
	}, []string{"result"})

	planFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dataflow",
		Subsystem: "executor",
		Name:      "plan_fetch_duration_seconds",
		Help:      "round trip time of physical plan requests",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	controlMessageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "executor",
		Name:      "control_message_count",
		Help:      "number of control messages handled by the executor",
	}, []string{"type", "result"})

	blockServeBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "executor",
		Name:      "block_serve_bytes",
		Help:      "bytes of serialized blocks sent to other executors",
	})
)

// InitMetrics registers all metrics in this package.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(taskGroupStateCounter)
	registry.MustRegister(stateReportErrorCounter)
	registry.MustRegister(planFetchCounter)
	registry.MustRegister(planFetchDuration)
	registry.MustRegister(controlMessageCounter)
	registry.MustRegister(blockServeBytes)
}
