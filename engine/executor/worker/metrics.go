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

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolRunningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Subsystem: "executor_pool",
		Name:      "running_task_count",
		Help:      "number of task groups being run",
	})

	poolQueueLengthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dataflow",
		Subsystem: "executor_pool",
		Name:      "queued_task_count",
		Help:      "number of task groups waiting for a worker",
	})

	poolQueueWaitHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dataflow",
		Subsystem: "executor_pool",
		Name:      "queue_wait_seconds",
		Help:      "time a task group waits between submission and launch",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})
)

// InitMetrics registers all metrics in this package.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(poolRunningGauge)
	registry.MustRegister(poolQueueLengthGauge)
	registry.MustRegister(poolQueueWaitHistogram)
}
