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
	"bytes"
	"context"
	"encoding/hex"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
)

// Store keeps the blocks of one tier. Blocks are write-once: Put fails
// with ErrBlockAlreadyExists if the block exists, and a block becomes
// visible to Get only after it has been completely written.
type Store interface {
	Tier() model.Tier
	Put(ctx context.Context, blockID model.BlockID, elems []coder.Element) error
	Get(ctx context.Context, blockID model.BlockID) ([]coder.Element, error)
	Remove(ctx context.Context, blockID model.BlockID) error
	Close() error
}

// traits is the behaviour table of the tiers.
type traits struct {
	// servable tiers are served to remote executors.
	servable bool
	// shared tiers can be read by any executor without asking the owner.
	shared bool
	// durable tiers survive a restart of the executor.
	durable bool
}

var tierTraits = map[model.Tier]traits{
	model.TierLocal:              {servable: false, shared: false, durable: false},
	model.TierMemory:             {servable: true, shared: false, durable: false},
	model.TierFile:               {servable: true, shared: false, durable: true},
	model.TierMemoryFile:         {servable: true, shared: false, durable: false},
	model.TierDistributedStorage: {servable: true, shared: true, durable: true},
}

// IsServable returns whether blocks of tier may be served to remote
// executors.
func IsServable(tier model.Tier) bool {
	return tierTraits[tier].servable
}

// IsShared returns whether blocks of tier are readable from any executor.
func IsShared(tier model.Tier) bool {
	return tierTraits[tier].shared
}

// IsDurable returns whether blocks of tier survive an executor restart.
func IsDurable(tier model.Tier) bool {
	return tierTraits[tier].durable
}

const (
	flagPlain byte = 0
	flagUnion byte = 1
)

// encodeBlock serializes elems for the stores keeping bytes. The first
// byte tells whether the union-aware codec was used.
func encodeBlock(serializer *coder.BlockSerializer, elems []coder.Element) ([]byte, error) {
	data, isUnion, err := serializer.Serialize(elems)
	if err != nil {
		return nil, err
	}
	flag := flagPlain
	if isUnion {
		flag = flagUnion
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + 1)
	buf.WriteByte(flag)
	buf.Write(data)
	return buf.Bytes(), nil
}

func decodeBlock(serializer *coder.BlockSerializer, data []byte) ([]coder.Element, error) {
	if len(data) == 0 {
		return nil, errors.ErrDeserialization.GenWithStackByArgs("empty block data")
	}
	switch data[0] {
	case flagPlain:
		return serializer.Deserialize(data[1:], false)
	case flagUnion:
		return serializer.Deserialize(data[1:], true)
	default:
		return nil, errors.ErrDeserialization.GenWithStackByArgs("unknown block flag")
	}
}

// blockFileName maps a block id to a flat file name.
func blockFileName(blockID model.BlockID) string {
	return hex.EncodeToString([]byte(blockID)) + ".blk"
}
