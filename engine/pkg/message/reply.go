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
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"go.uber.org/atomic"
)

// ReplyContext is the Context implementation shared by the backends. It
// resolves a reply future exactly once.
type ReplyContext struct {
	requestID int64
	resolved  atomic.Bool
	future    *Future[*comm.Message]
}

// NewReplyContext creates a ReplyContext for the request requestID.
func NewReplyContext(requestID int64) *ReplyContext {
	return &ReplyContext{
		requestID: requestID,
		future:    NewFuture[*comm.Message](),
	}
}

// Reply implements Context.
func (c *ReplyContext) Reply(msg *comm.Message) error {
	if !c.resolved.CompareAndSwap(false, true) {
		return errors.ErrDuplicateReply.GenWithStackByArgs(c.requestID)
	}
	c.future.Complete(msg)
	return nil
}

// Abort fails the reply future with err unless a reply was already sent.
// Later replies are rejected.
func (c *ReplyContext) Abort(err error) {
	if !c.resolved.CompareAndSwap(false, true) {
		return
	}
	c.future.Fail(err)
}

// Future returns the future resolved by Reply or Abort.
func (c *ReplyContext) Future() *Future[*comm.Message] {
	return c.future
}
