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
	"fmt"
	"strconv"
)

type (
	// StageID identifies a stage in the physical plan.
	StageID = string
	// TaskGroupID identifies a task group.
	TaskGroupID = string
	// TaskID identifies a task inside a task group.
	TaskID = string
	// EdgeID identifies a stage edge in the physical plan.
	EdgeID = string
	// BlockID identifies a block of intermediate data.
	BlockID = string
)

// BroadcastIndex is the destination index used by blocks that are read by
// every downstream task group.
const BroadcastIndex = -1

// NewBlockID returns the id of the block written by task group srcIndex of the
// edge's source stage for task group dstIndex of its destination stage.
func NewBlockID(edgeID EdgeID, srcIndex, dstIndex int) BlockID {
	dst := "*"
	if dstIndex != BroadcastIndex {
		dst = strconv.Itoa(dstIndex)
	}
	return fmt.Sprintf("%s/%d/%s", edgeID, srcIndex, dst)
}

// Tier is the storage medium and visibility scope a block is placed in.
type Tier int32

// All block store tiers. The zero value is deliberately not a valid tier.
const (
	// TierLocal keeps blocks in the producing process only. Blocks in
	// this tier are never served to remote executors.
	TierLocal Tier = iota + 1
	// TierMemory keeps blocks in memory and serves them to peers.
	TierMemory
	// TierFile keeps blocks on the local disk.
	TierFile
	// TierMemoryFile keeps blocks in memory and spills them to disk once
	// a memory quota is exceeded.
	TierMemoryFile
	// TierDistributedStorage keeps blocks in a remote durable storage
	// visible to the whole cluster.
	TierDistributedStorage
)

var tierNames = map[Tier]string{
	TierLocal:              "local",
	TierMemory:             "memory",
	TierFile:               "file",
	TierMemoryFile:         "memory-file",
	TierDistributedStorage: "distributed-storage",
}

// AllTiers returns every defined tier.
func AllTiers() []Tier {
	return []Tier{TierLocal, TierMemory, TierFile, TierMemoryFile, TierDistributedStorage}
}

// Valid returns whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	_, ok := tierNames[t]
	return ok
}

// String implements fmt.Stringer
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int32(t))
}

// ParseTier parses a tier from its name. The second return value is false
// for an unrecognized name.
func ParseTier(name string) (Tier, bool) {
	for t, n := range tierNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}
