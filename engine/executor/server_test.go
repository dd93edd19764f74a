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
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/phayes/freeport"
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/engine/pkg/message/grpcmsg"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func TestServerRunsTaskGroup(t *testing.T) {
	masterEnv, err := grpcmsg.NewEnvironment(message.MasterID, freeAddr(t))
	require.NoError(t, err)
	master := newFakeMaster(t, twoSourcePlan(t))
	require.NoError(t, masterEnv.SetupListener(message.MasterMessageReceiver, master))

	cfg := GetDefaultExecutorConfig()
	cfg.Name = "e1"
	cfg.Addr = freeAddr(t)
	cfg.StatusAddr = freeAddr(t)
	cfg.MasterAddr = masterEnv.Addr()
	cfg.Capacity = 2
	require.NoError(t, cfg.Adjust())

	srv := NewServer(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	// the status address is set once the executor listens
	require.Eventually(t, func() bool {
		return srv.StatusAddr() != nil
	}, waitTimeout, waitInterval)

	masterEnv.AddPeer("e1", cfg.Addr)
	sender, err := masterEnv.AsyncConnect(ctx, "e1", message.ExecutorMessageReceiver).Get(ctx)
	require.NoError(t, err)
	data, err := taskGroup("A", "S1", "identity").Marshal()
	require.NoError(t, err)
	require.NoError(t, sender.Send(ctx, comm.NewScheduleTaskGroup(data)))
	require.Equal(t, []string{"executing", "complete"}, master.waitTerminal(t, "A"))
	require.Equal(t, int32(1), master.planRequests.Load())

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(fmt.Sprintf("http://%s/metrics", srv.StatusAddr()))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Contains(t, string(body), "dataflow_executor_task_group_state_change_count")

	cancel()
	require.NoError(t, <-done)
	sender.Close()
	require.NoError(t, masterEnv.Close())
}

func TestServerFailsOnBadBlockStoreURI(t *testing.T) {
	cfg := GetDefaultExecutorConfig()
	cfg.Name = "e1"
	cfg.Addr = freeAddr(t)
	cfg.StatusAddr = ""
	cfg.MasterAddr = "127.0.0.1:1"
	cfg.BlockStore.DistributedStorageURI = "unknown-scheme://bucket"
	require.NoError(t, cfg.Adjust())

	err := NewServer(cfg).Run(context.Background())
	require.Error(t, err)
}
