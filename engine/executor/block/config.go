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
	"github.com/docker/go-units"
	"github.com/pingcap/dataflow-engine/pkg/errors"
)

const defaultMemoryFileQuota = "64MiB"

// Config enables the block store tiers of an executor. The ephemeral-local
// and in-memory tiers are always enabled, the others only when their
// location is configured.
type Config struct {
	// FileDir is the directory of the on-disk tier.
	FileDir string `toml:"file-dir" json:"file-dir"`
	// MemoryFileDir is the spill directory of the hybrid tier.
	MemoryFileDir string `toml:"memory-file-dir" json:"memory-file-dir"`
	// MemoryFileQuota is the memory the hybrid tier may use before
	// spilling, in a human readable size like "64MiB".
	MemoryFileQuota string `toml:"memory-file-quota" json:"memory-file-quota"`
	// DistributedStorageURI addresses the remote-durable tier, e.g.
	// "s3://bucket/prefix".
	DistributedStorageURI string `toml:"distributed-storage-uri" json:"distributed-storage-uri"`

	memoryFileQuotaBytes int64
}

// Adjust validates the config and fills in defaults.
func (c *Config) Adjust() error {
	if c.MemoryFileQuota == "" {
		c.MemoryFileQuota = defaultMemoryFileQuota
	}
	quota, err := units.RAMInBytes(c.MemoryFileQuota)
	if err != nil {
		return errors.WrapError(errors.ErrExecutorConfigInvalid, err, "block-store.memory-file-quota")
	}
	if quota < 0 {
		return errors.ErrExecutorConfigInvalid.GenWithStackByArgs("block-store.memory-file-quota is negative")
	}
	c.memoryFileQuotaBytes = quota
	return nil
}
