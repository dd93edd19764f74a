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

package grpcmsg

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testListener struct {
	mu       sync.Mutex
	received []*comm.Message
	onReq    func(msg *comm.Message, mctx message.Context) error
}

func (l *testListener) OnMessage(msg *comm.Message) error {
	if msg.Type != comm.ScheduleTaskGroup {
		return errors.ErrIllegalMessage.GenWithStackByArgs(msg.Type.String())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = append(l.received, msg)
	return nil
}

func (l *testListener) OnMessageWithContext(msg *comm.Message, mctx message.Context) error {
	return l.onReq(msg, mctx)
}

func (l *testListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.received)
}

func newTestEnvironment(t *testing.T, id string) *Environment {
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	env, err := NewEnvironment(id, fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	return env
}

func TestSendAndRequest(t *testing.T) {
	server := newTestEnvironment(t, "server")
	defer server.Close()
	client := newTestEnvironment(t, "client")
	defer client.Close()

	handlerErr := errors.New("no such block")
	listener := &testListener{
		onReq: func(msg *comm.Message, mctx message.Context) error {
			req := msg.RequestBlockMsg
			if req.BlockID == "missing" {
				return handlerErr
			}
			// reply asynchronously
			go func() {
				_ = mctx.Reply(comm.NewTransferBlock(msg.ID, "server", req.BlockID, true, []byte(req.BlockID)))
			}()
			return nil
		},
	}
	require.NoError(t, server.SetupListener(message.ExecutorMessageReceiver, listener))
	err := server.SetupListener(message.ExecutorMessageReceiver, listener)
	require.True(t, errors.Is(err, errors.ErrListenerAlreadyExists))

	client.AddPeer("server", server.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := client.AsyncConnect(ctx, "server", message.ExecutorMessageReceiver).Get(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Send(ctx, comm.NewScheduleTaskGroup([]byte("tg"))))
	require.Equal(t, 1, listener.count())

	err = s.Send(ctx, comm.NewRequestPhysicalPlan("client"))
	require.True(t, errors.Is(err, errors.ErrRemoteHandlerFailed))
	require.Contains(t, err.Error(), "illegal message")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			blockID := model.NewBlockID("e", i, 0)
			req := comm.NewRequestBlock("client", blockID, model.TierMemory)
			reply, err := s.Request(ctx, req).Get(ctx)
			require.NoError(t, err)
			require.Equal(t, req.ID, reply.TransferBlockMsg.RequestID)
			require.Equal(t, blockID, reply.TransferBlockMsg.BlockID)
			require.True(t, reply.TransferBlockMsg.IsUnionValue)
		}(i)
	}
	wg.Wait()

	_, err = s.Request(ctx, comm.NewRequestBlock("client", "missing", model.TierMemory)).Get(ctx)
	require.True(t, errors.Is(err, errors.ErrRemoteHandlerFailed))
	require.Contains(t, err.Error(), "no such block")
}

func TestConnectErrors(t *testing.T) {
	env := newTestEnvironment(t, "n1")
	defer env.Close()
	peer := newTestEnvironment(t, "n2")
	defer peer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := env.AsyncConnect(ctx, "unknown", "X").Get(ctx)
	require.True(t, errors.Is(err, errors.ErrPeerNotFound))

	env.AddPeer("n2", peer.Addr())
	s, err := env.AsyncConnect(ctx, "n2", "X").Get(ctx)
	require.NoError(t, err)
	err = s.Send(ctx, comm.NewScheduleTaskGroup(nil))
	require.True(t, errors.Is(err, errors.ErrListenerNotFound))

	s.Close()
	err = s.Send(ctx, comm.NewScheduleTaskGroup(nil))
	require.True(t, errors.Is(err, errors.ErrEndpointClosed))

	env.RemovePeer("n2")
	_, err = env.AsyncConnect(ctx, "n2", "X").Get(ctx)
	require.True(t, errors.Is(err, errors.ErrPeerNotFound))
}

func TestCloseFailsLaterSends(t *testing.T) {
	server := newTestEnvironment(t, "server")
	defer server.Close()
	client := newTestEnvironment(t, "client")

	require.NoError(t, server.SetupListener("X", &testListener{}))
	client.AddPeer("server", server.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := client.AsyncConnect(ctx, "server", "X").Get(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Send(ctx, comm.NewScheduleTaskGroup(nil)))

	require.NoError(t, client.Close())
	err = s.Send(ctx, comm.NewScheduleTaskGroup(nil))
	require.True(t, errors.Is(err, errors.ErrEndpointClosed))
	_, err = s.Request(ctx, comm.NewRequestBlock("client", "b", model.TierFile)).Get(ctx)
	require.True(t, errors.Is(err, errors.ErrEndpointClosed))
	require.True(t, errors.Is(client.SetupListener("Y", &testListener{}), errors.ErrEndpointClosed))
}

func TestCloseWithInflightCalls(t *testing.T) {
	server := newTestEnvironment(t, "server")
	defer server.Close()
	client := newTestEnvironment(t, "client")

	require.NoError(t, server.SetupListener("X", &testListener{
		onReq: func(msg *comm.Message, mctx message.Context) error {
			return mctx.Reply(comm.NewTransferBlock(msg.ID, "server", "b", false, nil))
		},
	}))
	client.AddPeer("server", server.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := client.AsyncConnect(ctx, "server", "X").Get(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				// every call resolves, with a reply or an error
				_, _ = s.Request(ctx, comm.NewRequestBlock("client", "b", model.TierFile)).Get(ctx)
				_, _ = client.AsyncConnect(ctx, "server", "X").Get(ctx)
			}
		}()
	}
	require.NoError(t, client.Close())
	wg.Wait()
	require.NoError(t, ctx.Err())

	_, err = client.AsyncConnect(ctx, "server", "X").Get(ctx)
	require.Error(t, err)
}
