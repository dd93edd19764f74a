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

	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"google.golang.org/grpc"
)

const (
	serviceName       = "dataflow.message.MessageService"
	sendMethod        = "/" + serviceName + "/Send"
	requestMethod     = "/" + serviceName + "/Request"
	sendMethodName    = "Send"
	requestMethodName = "Request"
)

// Envelope is the request of both service methods.
type Envelope struct {
	From       string        `msgpack:"from"`
	ListenerID string        `msgpack:"listener_id"`
	Message    *comm.Message `msgpack:"message"`
}

// ReplyEnvelope is the response of Request.
type ReplyEnvelope struct {
	Message *comm.Message `msgpack:"message"`
}

// Ack is the response of Send.
type Ack struct{}

// MessageServiceServer is the server API of the message service.
type MessageServiceServer interface {
	Send(ctx context.Context, in *Envelope) (*Ack, error)
	Request(ctx context.Context, in *Envelope) (*ReplyEnvelope, error)
}

func sendHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessageServiceServer).Send(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MessageServiceServer).Send(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

func requestHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(Envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessageServiceServer).Request(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: requestMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MessageServiceServer).Request(ctx, req.(*Envelope))
	}
	return interceptor(ctx, in, info, handler)
}

var messageServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MessageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: sendMethodName, Handler: sendHandler},
		{MethodName: requestMethodName, Handler: requestHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterMessageServiceServer registers srv on s.
func RegisterMessageServiceServer(s grpc.ServiceRegistrar, srv MessageServiceServer) {
	s.RegisterService(&messageServiceDesc, srv)
}

type messageServiceClient struct {
	cc grpc.ClientConnInterface
}

func (c *messageServiceClient) Send(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, sendMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messageServiceClient) Request(ctx context.Context, in *Envelope, opts ...grpc.CallOption) (*ReplyEnvelope, error) {
	out := new(ReplyEnvelope)
	if err := c.cc.Invoke(ctx, requestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
