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
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestCompleteFlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "executor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "from-file"
master-addr = "10.0.0.1:10240"
capacity = 3

[log]
level = "warn"
`), 0o644))

	cmd := &cobra.Command{Use: "executor"}
	o := newOptions()
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", path,
		"--name", "from-flag",
		"--peers", "e2=10.0.0.3:20241",
	}))
	require.NoError(t, o.complete(cmd))

	cfg := o.executorConfig
	require.Equal(t, "from-flag", cfg.Name)
	require.Equal(t, "10.0.0.1:10240", cfg.MasterAddr)
	require.Equal(t, 3, cfg.Capacity)
	require.Equal(t, "warn", cfg.LogConf.Level)
	require.Equal(t, "10.0.0.3:20241", cfg.Peers["e2"])
}

func TestNewCmdExecutorFlags(t *testing.T) {
	t.Parallel()

	cmd := NewCmdExecutor()
	for _, name := range []string{"name", "addr", "master-addr", "peers", "capacity", "config", "log-level"} {
		require.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestCompleteRejectsUnknownItem(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "executor.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
master-addr = "10.0.0.1:10240"
capacty = 3
`), 0o644))

	cmd := &cobra.Command{Use: "executor"}
	o := newOptions()
	o.addFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path}))
	err := o.complete(cmd)
	require.True(t, errors.Is(err, errors.ErrExecutorConfigUnknownItem), "%v", err)
}
