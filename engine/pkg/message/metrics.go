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

package message

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SentMessageCounter counts messages handed to a transport.
	SentMessageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "message",
		Name:      "sent_count",
		Help:      "count of messages sent",
	}, []string{"backend", "type"})

	// ReceivedMessageCounter counts messages delivered to a listener.
	ReceivedMessageCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "message",
		Name:      "received_count",
		Help:      "count of messages delivered to listeners",
	}, []string{"backend", "type"})

	// HandlerErrorCounter counts listener invocations that returned an error.
	HandlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflow",
		Subsystem: "message",
		Name:      "handler_error_count",
		Help:      "count of listener invocations that failed",
	}, []string{"backend", "type"})
)

// InitMetrics registers all metrics in this package.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(SentMessageCounter)
	registry.MustRegister(ReceivedMessageCounter)
	registry.MustRegister(HandlerErrorCounter)
}
