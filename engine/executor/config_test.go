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
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestConfigAdjust(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultExecutorConfig()
	err := cfg.Adjust()
	require.True(t, errors.Is(err, errors.ErrExecutorConfigInvalid), "%v", err)

	cfg.MasterAddr = "127.0.0.1:10240"
	require.NoError(t, cfg.Adjust())
	require.Equal(t, "executor-"+defaultAddr, cfg.Name)
	require.Equal(t, 30*time.Second, cfg.PlanFetchTimeout)
	require.Equal(t, 30*time.Second, cfg.BlockFetchTimeout)

	cfg.PlanFetchTimeoutStr = "soon"
	err = cfg.Adjust()
	require.True(t, errors.Is(err, errors.ErrExecutorConfigInvalid), "%v", err)

	cfg = GetDefaultExecutorConfig()
	cfg.MasterAddr = "127.0.0.1:10240"
	cfg.Capacity = 0
	err = cfg.Adjust()
	require.True(t, errors.Is(err, errors.ErrExecutorConfigInvalid), "%v", err)

	cfg = GetDefaultExecutorConfig()
	cfg.Name = "e1"
	cfg.MasterAddr = "127.0.0.1:10240"
	cfg.Peers = map[string]string{"e1": "127.0.0.1:1"}
	err = cfg.Adjust()
	require.True(t, errors.Is(err, errors.ErrExecutorConfigInvalid), "%v", err)
}

func TestConfigDecode(t *testing.T) {
	t.Parallel()

	const content = `
name = "e1"
addr = "0.0.0.0:20241"
master-addr = "10.0.0.1:10240"
capacity = 4
plan-fetch-timeout = "5s"

[peers]
e2 = "10.0.0.3:20241"

[log]
level = "debug"

[block-store]
file-dir = "/tmp/blocks"
memory-file-quota = "1GiB"
`
	cfg := GetDefaultExecutorConfig()
	_, err := toml.Decode(content, cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Adjust())

	require.Equal(t, "e1", cfg.Name)
	require.Equal(t, 4, cfg.Capacity)
	require.Equal(t, 5*time.Second, cfg.PlanFetchTimeout)
	require.Equal(t, "10.0.0.3:20241", cfg.Peers["e2"])
	require.Equal(t, "debug", cfg.LogConf.Level)
	require.Equal(t, "/tmp/blocks", cfg.BlockStore.FileDir)

	data, err := cfg.Toml()
	require.NoError(t, err)
	require.Contains(t, data, `master-addr = "10.0.0.1:10240"`)
	require.Contains(t, cfg.String(), `"capacity":4`)
}
