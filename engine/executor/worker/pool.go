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

package worker

import (
	"context"
	"sync"

	"github.com/pingcap/dataflow-engine/engine/pkg/clock"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/dataflow-engine/pkg/logutil"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultQueueSize is the size of the incoming queue used when none is
// given.
const DefaultQueueSize = 1024

// Runnable is a unit of work run by a Pool.
type Runnable interface {
	ID() string
	Run(ctx context.Context) error
}

// Dropper is implemented by Runnables that must learn that they were
// dropped from the queue without being run.
type Dropper interface {
	OnDropped(cause error)
}

type queuedTask struct {
	Runnable
	submitTime clock.MonotonicTime
}

// Pool runs submitted Runnables on a fixed number of goroutines. A
// Runnable occupies its goroutine until Run returns, so at most
// concurrency Runnables run at the same time.
type Pool struct {
	concurrency int
	inQueue     chan *queuedTask
	clock       clock.Clock

	// pending and running task ids
	tasks sync.Map

	closeMu sync.RWMutex
	closed  bool

	runningCount atomic.Int64
}

// NewPool creates a Pool running at most concurrency tasks at a time and
// buffering at most queueSize submitted tasks.
func NewPool(concurrency int, queueSize int) *Pool {
	return NewPoolWithClock(concurrency, queueSize, clock.New())
}

// NewPoolWithClock is NewPool with a custom clock.
func NewPoolWithClock(concurrency int, queueSize int, clk clock.Clock) *Pool {
	if concurrency <= 0 {
		log.Panic("pool concurrency must be positive", zap.Int("concurrency", concurrency))
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Pool{
		concurrency: concurrency,
		inQueue:     make(chan *queuedTask, queueSize),
		clock:       clk,
	}
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task Runnable) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return errors.ErrRuntimeIsClosed.GenWithStackByArgs()
	}
	if _, exists := p.tasks.LoadOrStore(task.ID(), struct{}{}); exists {
		return errors.ErrRuntimeDuplicateTaskID.GenWithStackByArgs(task.ID())
	}

	select {
	case p.inQueue <- &queuedTask{Runnable: task, submitTime: p.clock.Mono()}:
		poolQueueLengthGauge.Inc()
		return nil
	default:
	}
	p.tasks.Delete(task.ID())
	return errors.ErrRuntimeIncomingQueueFull.GenWithStackByArgs()
}

// Run starts the worker goroutines and blocks until ctx is canceled.
// Tasks still in the queue are dropped, running tasks see ctx canceled.
// Dropped tasks implementing Dropper are told so before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	defer p.close()

	errg, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		errg.Go(func() error {
			return p.workerLoop(ctx)
		})
	}
	return errg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case task := <-p.inQueue:
			poolQueueLengthGauge.Dec()
			if err := ctx.Err(); err != nil {
				// both cases were ready, the pool is stopping
				p.tasks.Delete(task.ID())
				p.notifyDropped(task)
				return errors.Trace(err)
			}
			poolQueueWaitHistogram.Observe(p.clock.Mono().Sub(task.submitTime).Seconds())
			p.runTask(ctx, task)
		}
	}
}

func (p *Pool) runTask(ctx context.Context, task *queuedTask) {
	p.runningCount.Inc()
	poolRunningGauge.Inc()
	defer func() {
		if r := recover(); r != nil {
			err := errors.Trace(errors.Errorf("panic: %v", r))
			log.Error("task panicked", zap.String("id", task.ID()), zap.Error(err))
		}
		p.tasks.Delete(task.ID())
		poolRunningGauge.Dec()
		p.runningCount.Dec()
	}()

	log.Debug("launching task", zap.String("id", task.ID()))
	if err := task.Run(ctx); err != nil {
		log.Warn("task stopped with error", zap.String("id", task.ID()),
			logutil.ZapErrorFilter(err, context.Canceled))
		return
	}
	log.Debug("task finished", zap.String("id", task.ID()))
}

func (p *Pool) close() {
	p.closeMu.Lock()
	p.closed = true
	var dropped []*queuedTask
	for drained := false; !drained; {
		select {
		case task := <-p.inQueue:
			poolQueueLengthGauge.Dec()
			p.tasks.Delete(task.ID())
			dropped = append(dropped, task)
		default:
			drained = true
		}
	}
	p.closeMu.Unlock()

	for _, task := range dropped {
		p.notifyDropped(task)
	}
}

func (p *Pool) notifyDropped(task *queuedTask) {
	log.Warn("dropping queued task", zap.String("id", task.ID()))
	if d, ok := task.Runnable.(Dropper); ok {
		d.OnDropped(errors.ErrRuntimeIsClosed.GenWithStackByArgs())
	}
}

// RunningCount returns the number of tasks being run.
func (p *Pool) RunningCount() int64 {
	return p.runningCount.Load()
}

// Concurrency returns the maximum number of tasks run at the same time.
func (p *Pool) Concurrency() int {
	return p.concurrency
}
