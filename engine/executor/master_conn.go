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
	"sync"

	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// masterConn is the persistent connection of an executor to the master.
// A connection attempt that failed is dropped and the next caller starts
// a new one.
type masterConn struct {
	env message.Environment
	// ctx bounds connection attempts, it lives as long as the executor.
	ctx context.Context

	mu     sync.Mutex
	future *message.Future[message.Sender]
}

func newMasterConn(ctx context.Context, env message.Environment) *masterConn {
	c := &masterConn{
		env: env,
		ctx: ctx,
	}
	c.connectLocked()
	return c
}

func (c *masterConn) connectLocked() *message.Future[message.Sender] {
	if c.future == nil {
		c.future = c.env.AsyncConnect(c.ctx, message.MasterID, message.MasterMessageReceiver)
	}
	return c.future
}

// Sender waits for the connection to be usable.
func (c *masterConn) Sender(ctx context.Context) (message.Sender, error) {
	c.mu.Lock()
	future := c.connectLocked()
	c.mu.Unlock()

	sender, err := future.Get(ctx)
	if err != nil {
		select {
		case <-future.Done():
			c.reset(future)
			log.Warn("connection to master failed", zap.Error(err))
		default:
			// the caller gave up, the attempt may still succeed
		}
		return nil, err
	}
	return sender, nil
}

func (c *masterConn) reset(future *message.Future[message.Sender]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.future == future {
		c.future = nil
	}
}

// SendToMaster implements stateReporter.
func (c *masterConn) SendToMaster(ctx context.Context, msg *comm.Message) error {
	sender, err := c.Sender(ctx)
	if err != nil {
		return err
	}
	return sender.Send(ctx, msg)
}

// RequestMaster sends a request to the master and waits for the reply.
func (c *masterConn) RequestMaster(ctx context.Context, msg *comm.Message) (*comm.Message, error) {
	sender, err := c.Sender(ctx)
	if err != nil {
		return nil, err
	}
	return sender.Request(ctx, msg).Get(ctx)
}

func (c *masterConn) Close() {
	c.mu.Lock()
	future := c.future
	c.future = nil
	c.mu.Unlock()
	if future == nil {
		return
	}
	select {
	case <-future.Done():
		if sender, err := future.Get(context.Background()); err == nil {
			sender.Close()
		}
	default:
	}
}
