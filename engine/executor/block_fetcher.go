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
	"sync"
	"time"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// blockFetcher fetches blocks from peer executors with RequestBlock
// messages. Senders are cached per peer.
type blockFetcher struct {
	executorID model.ExecutorID
	env        message.Environment
	serializer *coder.BlockSerializer
	timeout    time.Duration
	ctx        context.Context

	mu      sync.Mutex
	senders map[model.ExecutorID]*message.Future[message.Sender]
}

func newBlockFetcher(
	ctx context.Context,
	executorID model.ExecutorID,
	env message.Environment,
	serializer *coder.BlockSerializer,
	timeout time.Duration,
) *blockFetcher {
	return &blockFetcher{
		executorID: executorID,
		env:        env,
		serializer: serializer,
		timeout:    timeout,
		ctx:        ctx,
		senders:    make(map[model.ExecutorID]*message.Future[message.Sender]),
	}
}

func (f *blockFetcher) sender(ctx context.Context, owner model.ExecutorID) (message.Sender, error) {
	f.mu.Lock()
	future, ok := f.senders[owner]
	if !ok {
		future = f.env.AsyncConnect(f.ctx, owner, message.ExecutorMessageReceiver)
		f.senders[owner] = future
	}
	f.mu.Unlock()

	sender, err := future.Get(ctx)
	if err != nil {
		select {
		case <-future.Done():
			f.mu.Lock()
			if f.senders[owner] == future {
				delete(f.senders, owner)
			}
			f.mu.Unlock()
		default:
		}
		return nil, err
	}
	return sender, nil
}

// FetchBlock implements datatransfer.BlockFetcher.
func (f *blockFetcher) FetchBlock(
	ctx context.Context, owner model.ExecutorID, blockID model.BlockID, tier model.Tier,
) ([]coder.Element, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	sender, err := f.sender(ctx, owner)
	if err != nil {
		return nil, err
	}
	req := comm.NewRequestBlock(f.executorID, blockID, tier)
	reply, err := sender.Request(ctx, req).Get(ctx)
	if err != nil {
		log.Warn("failed to fetch block",
			zap.String("owner", owner),
			zap.String("block-id", blockID),
			zap.Error(err))
		return nil, err
	}

	if reply.Type != comm.TransferBlock || reply.TransferBlockMsg == nil {
		return nil, errors.ErrIllegalMessage.GenWithStackByArgs(
			fmt.Sprintf("%s in reply to RequestBlock", reply.Type))
	}
	transfer := reply.TransferBlockMsg
	if transfer.RequestID != req.ID || transfer.BlockID != blockID {
		return nil, errors.ErrIllegalMessage.GenWithStackByArgs(
			fmt.Sprintf("TransferBlock of request %d block %s in reply to request %d block %s",
				transfer.RequestID, transfer.BlockID, req.ID, blockID))
	}
	return f.serializer.Deserialize(transfer.Data, transfer.IsUnionValue)
}

func (f *blockFetcher) Close() {
	f.mu.Lock()
	senders := f.senders
	f.senders = make(map[model.ExecutorID]*message.Future[message.Sender])
	f.mu.Unlock()

	for _, future := range senders {
		select {
		case <-future.Done():
			if sender, err := future.Get(context.Background()); err == nil {
				sender.Close()
			}
		default:
		}
	}
}
