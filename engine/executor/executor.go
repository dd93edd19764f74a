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

	"github.com/pingcap/dataflow-engine/engine/executor/block"
	"github.com/pingcap/dataflow-engine/engine/executor/datatransfer"
	"github.com/pingcap/dataflow-engine/engine/executor/worker"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/logutil"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/engine/pkg/operator"
	"github.com/pingcap/dataflow-engine/engine/pkg/plan"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// stateReportTimeout bounds the delivery of one task group state report.
const stateReportTimeout = 5 * time.Second

// Params are the dependencies of an Executor.
type Params struct {
	dig.In

	Config     *Config
	Env        message.Environment
	Blocks     *block.Manager
	Serializer *coder.BlockSerializer
	Operators  operator.Registry
}

type (
	onMessageFunc func(msg *comm.Message) error
	onRequestFunc func(msg *comm.Message, mctx message.Context) error
)

// controlHandler handles one executor-directed message type. Exactly one
// of the two functions is set, matching comm.Route.ExpectsReply.
type controlHandler struct {
	onMessage onMessageFunc
	onRequest onRequestFunc
}

// Executor runs the task groups scheduled by the master and serves the
// blocks it produced to the other executors.
type Executor struct {
	id         model.ExecutorID
	cfg        *Config
	env        message.Environment
	blocks     *block.Manager
	serializer *coder.BlockSerializer
	operators  operator.Registry
	transfer   *datatransfer.Factory
	fetcher    *blockFetcher
	master     *masterConn
	pool       *worker.Pool
	handlers   map[comm.MessageType]controlHandler
	logger     *zap.Logger

	// planMu guards the fetch of the physical plan. plan is written once,
	// before planPresent is set.
	planMu      sync.Mutex
	planPresent atomic.Bool
	plan        *plan.PhysicalPlan

	ctx    context.Context
	cancel context.CancelFunc
}

// NewExecutor creates an Executor and registers its control message
// listener. No task group is accepted before the listener is set up.
func NewExecutor(params Params) (*Executor, error) {
	cfg := params.Config
	if cfg.Capacity <= 0 {
		return nil, errors.ErrExecutorConfigInvalid.GenWithStackByArgs(
			fmt.Sprintf("capacity %d", cfg.Capacity))
	}
	operators := params.Operators
	if operators == nil {
		operators = operator.GlobalRegistry()
	}
	serializer := params.Serializer
	if serializer == nil {
		serializer = coder.NewBlockSerializer()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		id:         params.Env.ID(),
		cfg:        cfg,
		env:        params.Env,
		blocks:     params.Blocks,
		serializer: serializer,
		operators:  operators,
		pool:       worker.NewPool(cfg.Capacity, cfg.QueueSize),
		logger:     logutil.NewLogger4Executor(params.Env.ID()),
		ctx:        ctx,
		cancel:     cancel,
	}
	e.fetcher = newBlockFetcher(ctx, e.id, e.env, serializer, cfg.BlockFetchTimeout)
	e.transfer = datatransfer.NewFactory(e.id, e.blocks, e.fetcher)

	e.handlers = map[comm.MessageType]controlHandler{
		comm.ScheduleTaskGroup: {onMessage: e.onScheduleTaskGroup},
		comm.RequestBlock:      {onRequest: e.onRequestBlock},
	}
	if err := checkHandlers(e.handlers); err != nil {
		cancel()
		return nil, err
	}

	if err := e.env.SetupListener(message.ExecutorMessageReceiver, &controlListener{executor: e}); err != nil {
		cancel()
		return nil, err
	}
	e.master = newMasterConn(ctx, e.env)
	e.logger.Info("executor created", zap.Int("capacity", cfg.Capacity))
	return e, nil
}

// checkHandlers verifies that every executor-directed message type has a
// handler of the right kind and that no other type has one.
func checkHandlers(handlers map[comm.MessageType]controlHandler) error {
	for _, tp := range comm.MessageTypes() {
		route, ok := comm.RouteOf(tp)
		h, handled := handlers[tp]
		if !ok || route.Receiver != comm.RoleExecutor {
			if handled {
				return errors.ErrInvalidArgument.GenWithStackByArgs(
					fmt.Sprintf("executor handles %s which is not sent to executors", tp))
			}
			continue
		}
		if !handled {
			return errors.ErrInvalidArgument.GenWithStackByArgs(
				fmt.Sprintf("executor has no handler for %s", tp))
		}
		if route.ExpectsReply != (h.onRequest != nil) || (h.onMessage != nil) == (h.onRequest != nil) {
			return errors.ErrInvalidArgument.GenWithStackByArgs(
				fmt.Sprintf("executor handler of %s does not match its route", tp))
		}
	}
	return nil
}

// ID returns the executor id.
func (e *Executor) ID() model.ExecutorID {
	return e.id
}

// Run runs the worker pool until ctx is canceled.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	err := e.pool.Run(ctx)
	if errors.Cause(err) == context.Canceled {
		return nil
	}
	return err
}

// Close releases the connections of the executor. It does not close the
// messaging environment, which belongs to the caller.
func (e *Executor) Close() {
	e.env.RemoveListener(message.ExecutorMessageReceiver)
	e.cancel()
	e.master.Close()
	e.fetcher.Close()
	e.logger.Info("executor closed")
}

func (e *Executor) onScheduleTaskGroup(msg *comm.Message) error {
	tg, err := plan.UnmarshalTaskGroup(msg.ScheduleTaskGroupMsg.TaskGroup)
	if err != nil {
		return err
	}
	runnable := &taskGroupRunnable{
		executor:  e,
		taskGroup: tg,
		states:    NewTaskGroupStateManager(e.id, tg, e.master),
	}
	if err := e.pool.Submit(runnable); err != nil {
		if !errors.Is(err, errors.ErrRuntimeDuplicateTaskID) {
			// the task group will never run
			_ = runnable.report(StateFailed, err)
		}
		return err
	}
	e.logger.Info("task group scheduled",
		zap.String("task-group-id", tg.ID),
		zap.String("stage-id", tg.StageID))
	return nil
}

func (e *Executor) onRequestBlock(msg *comm.Message, mctx message.Context) error {
	req := msg.RequestBlockMsg
	if !req.BlockStore.Valid() {
		return errors.ErrUnsupportedBlockStore.GenWithStackByArgs(req.BlockStore.String())
	}
	elems, err := e.blocks.ServeBlock(e.ctx, req.BlockID, req.BlockStore)
	if err != nil {
		return err
	}
	data, isUnion, err := e.serializer.Serialize(elems)
	if err != nil {
		return err
	}
	blockServeBytes.Add(float64(len(data)))
	e.logger.Debug("serving block",
		zap.String("block-id", req.BlockID),
		zap.String("requester", req.ExecutorID),
		zap.Bool("union", isUnion))
	return mctx.Reply(comm.NewTransferBlock(msg.ID, e.id, req.BlockID, isUnion, data))
}

// physicalPlan returns the cached physical plan, fetching it from the
// master first if needed. At most one fetch is in flight, and a failed
// fetch leaves the cache empty.
func (e *Executor) physicalPlan(ctx context.Context) (*plan.PhysicalPlan, error) {
	if e.planPresent.Load() {
		return e.plan, nil
	}

	e.planMu.Lock()
	defer e.planMu.Unlock()
	if e.planPresent.Load() {
		return e.plan, nil
	}
	p, err := e.fetchPhysicalPlan(ctx)
	if err != nil {
		planFetchCounter.WithLabelValues("error").Inc()
		return nil, err
	}
	planFetchCounter.WithLabelValues("ok").Inc()
	e.plan = p
	e.planPresent.Store(true)
	e.logger.Info("physical plan fetched",
		zap.String("plan-id", p.ID),
		zap.Int("stages", len(p.DAG.Stages)))
	return p, nil
}

func (e *Executor) fetchPhysicalPlan(ctx context.Context) (*plan.PhysicalPlan, error) {
	if e.cfg.PlanFetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PlanFetchTimeout)
		defer cancel()
	}

	start := time.Now()
	req := comm.NewRequestPhysicalPlan(e.id)
	reply, err := e.master.RequestMaster(ctx, req)
	planFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, errors.WrapError(errors.ErrPlanFetchFailed, err)
	}
	if reply.Type != comm.PhysicalPlan || reply.PhysicalPlanMsg == nil {
		return nil, errors.ErrIllegalMessage.GenWithStackByArgs(
			fmt.Sprintf("%s in reply to RequestPhysicalPlan", reply.Type))
	}
	if reply.PhysicalPlanMsg.RequestID != req.ID {
		return nil, errors.ErrIllegalMessage.GenWithStackByArgs(
			fmt.Sprintf("PhysicalPlan of request %d in reply to request %d",
				reply.PhysicalPlanMsg.RequestID, req.ID))
	}
	return plan.UnmarshalPhysicalPlan(reply.PhysicalPlanMsg.PhysicalPlan)
}

// controlListener receives the control messages sent to the executor.
type controlListener struct {
	executor *Executor
}

func (l *controlListener) handler(msg *comm.Message, withContext bool) (controlHandler, error) {
	if err := msg.Validate(); err != nil {
		return controlHandler{}, err
	}
	h, ok := l.executor.handlers[msg.Type]
	if !ok || (withContext && h.onRequest == nil) || (!withContext && h.onMessage == nil) {
		channel := "fire-and-forget"
		if withContext {
			channel = "request"
		}
		return controlHandler{}, errors.ErrIllegalMessage.GenWithStackByArgs(
			fmt.Sprintf("%s on the %s channel of executor %s", msg.Type, channel, l.executor.id))
	}
	return h, nil
}

// OnMessage implements message.Listener.
func (l *controlListener) OnMessage(msg *comm.Message) error {
	h, err := l.handler(msg, false)
	if err == nil {
		err = h.onMessage(msg)
	}
	l.observe(msg, err)
	return err
}

// OnMessageWithContext implements message.Listener.
func (l *controlListener) OnMessageWithContext(msg *comm.Message, mctx message.Context) error {
	h, err := l.handler(msg, true)
	if err == nil {
		err = h.onRequest(msg, mctx)
	}
	l.observe(msg, err)
	return err
}

func (l *controlListener) observe(msg *comm.Message, err error) {
	if err != nil {
		controlMessageCounter.WithLabelValues(msg.Type.String(), "error").Inc()
		l.executor.logger.Warn("failed to handle control message",
			zap.Int64("message-id", msg.ID),
			zap.Stringer("type", msg.Type),
			zap.Error(err))
		return
	}
	controlMessageCounter.WithLabelValues(msg.Type.String(), "ok").Inc()
}

// taskGroupRunnable runs one task group on a worker of the pool.
type taskGroupRunnable struct {
	executor  *Executor
	taskGroup *plan.TaskGroup
	states    *TaskGroupStateManager
}

// ID implements worker.Runnable.
func (r *taskGroupRunnable) ID() string {
	return r.taskGroup.ID
}

// Run implements worker.Runnable. A panic of the task group is turned
// into its failure.
func (r *taskGroupRunnable) Run(ctx context.Context) (err error) {
	if stateErr := r.report(StateExecuting, nil); stateErr != nil {
		return stateErr
	}
	defer func() {
		if v := recover(); v != nil {
			err = errors.ErrTaskGroupPanicked.GenWithStackByArgs(r.taskGroup.ID, v)
			r.states.logger.Error("task group panicked", zap.Error(err), zap.Stack("stack"))
		}
		if err != nil {
			if stateErr := r.report(StateFailed, err); stateErr != nil {
				r.states.logger.Error("failed to mark task group failed", zap.Error(stateErr))
			}
			return
		}
		err = r.report(StateComplete, nil)
	}()
	return r.run(ctx)
}

// OnDropped implements worker.Dropper.
func (r *taskGroupRunnable) OnDropped(cause error) {
	if err := r.report(StateFailed, cause); err != nil {
		r.states.logger.Error("failed to mark dropped task group failed", zap.Error(err))
	}
}

// report moves the task group to state. The report to the master is not
// bounded by the context of the run, which may already be canceled.
func (r *taskGroupRunnable) report(state State, cause error) error {
	ctx, cancel := context.WithTimeout(r.executor.ctx, stateReportTimeout)
	defer cancel()
	return r.states.OnTaskGroupStateChanged(ctx, state, cause)
}

func (r *taskGroupRunnable) run(ctx context.Context) error {
	p, err := r.executor.physicalPlan(ctx)
	if err != nil {
		return err
	}
	tgExecutor := NewTaskGroupExecutor(r.taskGroup, p, r.executor.transfer, r.executor.operators, r.states)
	return tgExecutor.Execute(ctx)
}
