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
	"context"

	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
)

// Well-known endpoint and listener ids.
const (
	// MasterID is the endpoint id of the master.
	MasterID = "MASTER"
	// ExecutorMessageReceiver is the listener id under which every executor
	// receives control messages.
	ExecutorMessageReceiver = "ExecutorMessageReceiver"
	// MasterMessageReceiver is the listener id under which the master
	// receives control messages.
	MasterMessageReceiver = "MasterMessageReceiver"
)

// Environment is one messaging endpoint of a process.
// NOTE: for each listener id, only one listener is allowed.
type Environment interface {
	// ID returns the endpoint id of this environment.
	ID() string

	// SetupListener registers listener for listenerID. Registering a second
	// listener for the same id fails with ErrListenerAlreadyExists.
	SetupListener(listenerID string, listener Listener) error

	// RemoveListener unregisters the listener for listenerID, if any.
	RemoveListener(listenerID string)

	// AsyncConnect returns a future resolving to a Sender bound to
	// (target, listenerID). It never blocks the caller.
	AsyncConnect(ctx context.Context, target string, listenerID string) *Future[Sender]

	// Close releases every channel of this endpoint. Later sends fail
	// with ErrEndpointClosed.
	Close() error
}

// Sender sends messages to a fixed (target, listener id) pair.
type Sender interface {
	// Send delivers a message that expects no reply.
	Send(ctx context.Context, msg *comm.Message) error
	// Request delivers a message and returns a future of the correlated reply.
	Request(ctx context.Context, msg *comm.Message) *Future[*comm.Message]
	// Close releases the sender. It does not affect other senders.
	Close()
}

// Listener handles the messages delivered to one listener id.
type Listener interface {
	// OnMessage handles a message that expects no reply.
	OnMessage(msg *comm.Message) error
	// OnMessageWithContext handles a message that expects a reply, which
	// must be delivered through mctx, possibly after the call returns.
	OnMessageWithContext(msg *comm.Message, mctx Context) error
}

// Context is handed to OnMessageWithContext for replying.
type Context interface {
	// Reply sends the reply. Only the first call succeeds, later calls
	// return ErrDuplicateReply.
	Reply(msg *comm.Message) error
}
