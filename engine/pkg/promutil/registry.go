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

package promutil

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NOTICE: we don't use prometheus.DefaultRegistry, every server owns its
// registry so that several servers can live in one test process.

// NewRegistry returns a registry holding the process and go runtime
// collectors. Components add theirs with their InitMetrics.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// HTTPHandlerForMetric returns the http.Handler exposing the metrics of
// gatherer.
func HTTPHandlerForMetric(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(
		gatherer,
		promhttp.HandlerOpts{},
	)
}
