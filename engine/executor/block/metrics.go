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

package block

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blockPutCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "block_store",
		Name:      "put_count",
		Help:      "count of blocks written",
	}, []string{"tier"})

	blockElementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "block_store",
		Name:      "put_element_count",
		Help:      "count of elements written",
	}, []string{"tier"})

	blockGetCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "block_store",
		Name:      "get_count",
		Help:      "count of blocks read",
	}, []string{"tier", "requester"})

	hybridSpilledBlockCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "block_store",
		Name:      "spilled_block_count",
		Help:      "count of blocks the hybrid tier spilled to disk",
	})
)

// InitMetrics registers all metrics in this package.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(blockPutCounter)
	registry.MustRegister(blockElementCounter)
	registry.MustRegister(blockGetCounter)
	registry.MustRegister(hybridSpilledBlockCounter)
}
