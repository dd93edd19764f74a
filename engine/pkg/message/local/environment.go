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

package local

import (
	"context"

	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const backendLabel = "local"

// Environment is an in-process message.Environment. Listeners are invoked
// synchronously on the sender's goroutine, so messages from one sender
// are delivered in send order.
type Environment struct {
	id         string
	dispatcher *Dispatcher
	closed     atomic.Bool
}

var _ message.Environment = (*Environment)(nil)

func newEnvironment(id string, dispatcher *Dispatcher) *Environment {
	return &Environment{
		id:         id,
		dispatcher: dispatcher,
	}
}

// NewEnvironment creates an environment on the process-wide dispatcher.
func NewEnvironment(endpointID string) (*Environment, error) {
	return defaultDispatcher.NewEnvironment(endpointID)
}

// ID implements message.Environment.
func (e *Environment) ID() string {
	return e.id
}

// SetupListener implements message.Environment.
func (e *Environment) SetupListener(listenerID string, listener message.Listener) error {
	if e.closed.Load() {
		return errors.ErrEndpointClosed.GenWithStackByArgs(e.id)
	}
	return e.dispatcher.register(e.id, listenerID, listener)
}

// RemoveListener implements message.Environment.
func (e *Environment) RemoveListener(listenerID string) {
	e.dispatcher.unregister(e.id, listenerID)
}

// AsyncConnect implements message.Environment. The returned future is
// already resolved.
func (e *Environment) AsyncConnect(_ context.Context, target string, listenerID string) *message.Future[message.Sender] {
	if e.closed.Load() {
		return message.FailedFuture[message.Sender](errors.ErrEndpointClosed.GenWithStackByArgs(e.id))
	}
	return message.CompletedFuture[message.Sender](&sender{
		env:        e,
		target:     target,
		listenerID: listenerID,
	})
}

// Close implements message.Environment.
func (e *Environment) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.dispatcher.removeEndpoint(e.id)
	log.Debug("local message environment closed", zap.String("endpoint", e.id))
	return nil
}

type sender struct {
	env        *Environment
	target     string
	listenerID string
	closed     atomic.Bool
}

func (s *sender) listener() (message.Listener, error) {
	if s.closed.Load() || s.env.closed.Load() {
		return nil, errors.ErrEndpointClosed.GenWithStackByArgs(s.env.id)
	}
	return s.env.dispatcher.lookup(s.target, s.listenerID)
}

func (s *sender) Send(ctx context.Context, msg *comm.Message) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	listener, err := s.listener()
	if err != nil {
		return err
	}

	tp := msg.Type.String()
	message.SentMessageCounter.WithLabelValues(backendLabel, tp).Inc()
	message.ReceivedMessageCounter.WithLabelValues(backendLabel, tp).Inc()
	if err := listener.OnMessage(msg); err != nil {
		message.HandlerErrorCounter.WithLabelValues(backendLabel, tp).Inc()
		return err
	}
	return nil
}

func (s *sender) Request(ctx context.Context, msg *comm.Message) *message.Future[*comm.Message] {
	if err := ctx.Err(); err != nil {
		return message.FailedFuture[*comm.Message](errors.Trace(err))
	}
	listener, err := s.listener()
	if err != nil {
		return message.FailedFuture[*comm.Message](err)
	}

	tp := msg.Type.String()
	message.SentMessageCounter.WithLabelValues(backendLabel, tp).Inc()
	message.ReceivedMessageCounter.WithLabelValues(backendLabel, tp).Inc()
	mctx := message.NewReplyContext(msg.ID)
	if err := listener.OnMessageWithContext(msg, mctx); err != nil {
		message.HandlerErrorCounter.WithLabelValues(backendLabel, tp).Inc()
		mctx.Abort(err)
	}
	return mctx.Future()
}

func (s *sender) Close() {
	s.closed.Store(true)
}
