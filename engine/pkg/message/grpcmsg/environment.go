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
	"net"
	"sync"

	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const backendLabel = "grpc"

// Environment is a message.Environment over gRPC. Every environment hosts
// a message service and keeps one lazily created client connection per
// peer.
type Environment struct {
	id       string
	listener net.Listener
	server   *grpc.Server

	listenerMu sync.RWMutex
	listeners  map[string]message.Listener

	// mu protects addressMap and clients
	mu         sync.RWMutex
	addressMap map[string]string
	clients    map[string]*grpc.ClientConn

	// spawnMu orders wg.Add against the close of the environment.
	spawnMu sync.Mutex
	wg      sync.WaitGroup
	closed  atomic.Bool
}

var _ message.Environment = (*Environment)(nil)

// NewEnvironment starts the message service of endpoint id on addr.
func NewEnvironment(id string, addr string) (*Environment, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.WrapError(errors.ErrMessageTransport, err)
	}

	env := &Environment{
		id:         id,
		listener:   lis,
		listeners:  make(map[string]message.Listener),
		addressMap: make(map[string]string),
		clients:    make(map[string]*grpc.ClientConn),
	}
	env.server = grpc.NewServer(
		grpc.ForceServerCodec(msgpackCodec{}),
		grpc.UnaryInterceptor(grpcServerMetrics.UnaryServerInterceptor()),
	)
	RegisterMessageServiceServer(env.server, &messageService{env: env})

	env.wg.Add(1)
	go func() {
		defer env.wg.Done()
		if err := env.server.Serve(lis); err != nil {
			log.Warn("message service exited", zap.String("endpoint", id), zap.Error(err))
		}
	}()
	log.Info("grpc message environment started",
		zap.String("endpoint", id), zap.String("addr", lis.Addr().String()))
	return env, nil
}

// ID implements message.Environment.
func (e *Environment) ID() string {
	return e.id
}

// Addr returns the address the message service listens on.
func (e *Environment) Addr() string {
	return e.listener.Addr().String()
}

// AddPeer adds or updates the address of a peer endpoint. A cached client
// to the old address is closed.
func (e *Environment) AddPeer(id string, addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.addressMap[id]; ok && old == addr {
		return
	}
	e.addressMap[id] = addr
	e.removeClientLocked(id)
}

// RemovePeer removes a peer endpoint and closes its client connection.
func (e *Environment) RemovePeer(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.addressMap, id)
	e.removeClientLocked(id)
}

func (e *Environment) removeClientLocked(id string) {
	conn, ok := e.clients[id]
	if !ok {
		return
	}
	delete(e.clients, id)
	peerCount.Dec()
	if err := conn.Close(); err != nil {
		log.Warn("failed to close client connection", zap.String("peer", id), zap.Error(err))
	}
}

// getClient returns the client connection to target, creating it lazily.
func (e *Environment) getClient(target string) (*grpc.ClientConn, error) {
	e.mu.RLock()
	// fast path
	if conn, ok := e.clients[target]; ok {
		e.mu.RUnlock()
		return conn, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// the lock was briefly released
	if conn, ok := e.clients[target]; ok {
		return conn, nil
	}
	if e.closed.Load() {
		return nil, errors.ErrEndpointClosed.GenWithStackByArgs(e.id)
	}
	addr, ok := e.addressMap[target]
	if !ok {
		return nil, errors.ErrPeerNotFound.GenWithStackByArgs(target)
	}

	// The dial does not block, the connection is established in background.
	conn, err := grpc.DialContext(context.Background(), addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(msgpackCodec{})),
		grpc.WithUnaryInterceptor(grpcClientMetrics.UnaryClientInterceptor()),
	)
	if err != nil {
		return nil, errors.WrapError(errors.ErrMessageTransport, err)
	}
	e.clients[target] = conn
	peerCount.Inc()
	return conn, nil
}

// SetupListener implements message.Environment.
func (e *Environment) SetupListener(listenerID string, listener message.Listener) error {
	if e.closed.Load() {
		return errors.ErrEndpointClosed.GenWithStackByArgs(e.id)
	}

	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	if _, ok := e.listeners[listenerID]; ok {
		return errors.ErrListenerAlreadyExists.GenWithStackByArgs(listenerID, e.id)
	}
	e.listeners[listenerID] = listener
	return nil
}

// RemoveListener implements message.Environment.
func (e *Environment) RemoveListener(listenerID string) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	delete(e.listeners, listenerID)
}

func (e *Environment) lookupListener(listenerID string) (message.Listener, bool) {
	e.listenerMu.RLock()
	defer e.listenerMu.RUnlock()

	listener, ok := e.listeners[listenerID]
	return listener, ok
}

// AsyncConnect implements message.Environment. The future resolves once
// the connection to target is ready.
func (e *Environment) AsyncConnect(ctx context.Context, target string, listenerID string) *message.Future[message.Sender] {
	future := message.NewFuture[message.Sender]()
	conn, err := e.getClient(target)
	if err != nil {
		future.Fail(err)
		return future
	}

	spawned := e.spawn(func() {
		if err := waitForReady(ctx, conn); err != nil {
			future.Fail(errors.WrapError(errors.ErrMessageTransport, err))
			return
		}
		future.Complete(&sender{
			env:        e,
			target:     target,
			listenerID: listenerID,
			client:     &messageServiceClient{cc: conn},
		})
	})
	if !spawned {
		future.Fail(errors.ErrEndpointClosed.GenWithStackByArgs(e.id))
	}
	return future
}

// spawn runs f on a goroutine that Close waits for. It returns false
// without running f once the environment is closed.
func (e *Environment) spawn(f func()) bool {
	e.spawnMu.Lock()
	defer e.spawnMu.Unlock()
	if e.closed.Load() {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		f()
	}()
	return true
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("client connection is shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return errors.Trace(ctx.Err())
		}
	}
}

// Close implements message.Environment.
func (e *Environment) Close() error {
	e.spawnMu.Lock()
	if !e.closed.CompareAndSwap(false, true) {
		e.spawnMu.Unlock()
		return nil
	}
	e.spawnMu.Unlock()

	e.mu.Lock()
	for id := range e.clients {
		e.removeClientLocked(id)
	}
	e.mu.Unlock()

	e.server.Stop()
	e.wg.Wait()
	log.Info("grpc message environment closed", zap.String("endpoint", e.id))
	return nil
}

type messageService struct {
	env *Environment
}

func (s *messageService) listener(in *Envelope) (message.Listener, error) {
	if in.Message == nil {
		return nil, status.Error(codes.InvalidArgument, "envelope carries no message")
	}
	listener, ok := s.env.lookupListener(in.ListenerID)
	if !ok {
		return nil, status.Error(codes.NotFound, in.ListenerID)
	}
	message.ReceivedMessageCounter.WithLabelValues(backendLabel, in.Message.Type.String()).Inc()
	return listener, nil
}

func (s *messageService) Send(_ context.Context, in *Envelope) (*Ack, error) {
	listener, err := s.listener(in)
	if err != nil {
		return nil, err
	}
	if err := listener.OnMessage(in.Message); err != nil {
		message.HandlerErrorCounter.WithLabelValues(backendLabel, in.Message.Type.String()).Inc()
		log.Warn("listener failed",
			zap.String("from", in.From),
			zap.String("listener", in.ListenerID),
			zap.Stringer("type", in.Message.Type),
			zap.Error(err))
		return nil, status.Error(codes.Aborted, err.Error())
	}
	return &Ack{}, nil
}

// Request runs on the gRPC handler goroutine of this call, so waiting for
// an asynchronous reply never blocks other requests.
func (s *messageService) Request(ctx context.Context, in *Envelope) (*ReplyEnvelope, error) {
	listener, err := s.listener(in)
	if err != nil {
		return nil, err
	}
	mctx := message.NewReplyContext(in.Message.ID)
	if err := listener.OnMessageWithContext(in.Message, mctx); err != nil {
		message.HandlerErrorCounter.WithLabelValues(backendLabel, in.Message.Type.String()).Inc()
		mctx.Abort(err)
	}
	reply, err := mctx.Future().Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		return nil, status.Error(codes.Aborted, err.Error())
	}
	return &ReplyEnvelope{Message: reply}, nil
}

type sender struct {
	env        *Environment
	target     string
	listenerID string
	client     *messageServiceClient
	closed     atomic.Bool
}

func (s *sender) checkClosed() error {
	if s.closed.Load() || s.env.closed.Load() {
		return errors.ErrEndpointClosed.GenWithStackByArgs(s.env.id)
	}
	return nil
}

func (s *sender) envelope(msg *comm.Message) *Envelope {
	return &Envelope{
		From:       s.env.id,
		ListenerID: s.listenerID,
		Message:    msg,
	}
}

func (s *sender) Send(ctx context.Context, msg *comm.Message) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	message.SentMessageCounter.WithLabelValues(backendLabel, msg.Type.String()).Inc()
	_, err := s.client.Send(ctx, s.envelope(msg))
	return s.convertError(err)
}

func (s *sender) Request(ctx context.Context, msg *comm.Message) *message.Future[*comm.Message] {
	if err := s.checkClosed(); err != nil {
		return message.FailedFuture[*comm.Message](err)
	}
	message.SentMessageCounter.WithLabelValues(backendLabel, msg.Type.String()).Inc()

	future := message.NewFuture[*comm.Message]()
	spawned := s.env.spawn(func() {
		reply, err := s.client.Request(ctx, s.envelope(msg))
		if err != nil {
			future.Fail(s.convertError(err))
			return
		}
		future.Complete(reply.Message)
	})
	if !spawned {
		future.Fail(errors.ErrEndpointClosed.GenWithStackByArgs(s.env.id))
	}
	return future
}

func (s *sender) Close() {
	s.closed.Store(true)
}

func (s *sender) convertError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.WrapError(errors.ErrMessageTransport, err)
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.ErrListenerNotFound.GenWithStackByArgs(s.listenerID, s.target)
	case codes.Aborted:
		return errors.ErrRemoteHandlerFailed.GenWithStackByArgs(st.Message())
	case codes.Canceled, codes.DeadlineExceeded:
		return errors.Trace(err)
	default:
		if s.env.closed.Load() {
			return errors.ErrEndpointClosed.GenWithStackByArgs(s.env.id)
		}
		return errors.WrapError(errors.ErrMessageTransport, err)
	}
}
