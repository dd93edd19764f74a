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

package model

import (
	"encoding/json"
)

// ExecutorID identifies an executor process. It is stable for the lifetime
// of the process and doubles as its messaging endpoint id.
type ExecutorID = string

// NodeInfo describes the information of an executor instance: its id,
// advertise address and capacity.
type NodeInfo struct {
	ID   ExecutorID `json:"id"`
	Addr string     `json:"addr"`

	// Capacity is the number of task groups the executor runs concurrently.
	Capacity int `json:"cap"`
}

// ToJSON returns json marshal of a node info
func (e *NodeInfo) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
