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
	"testing"
	"time"

	"github.com/pingcap/dataflow-engine/engine/executor/block"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/comm"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/engine/pkg/message/local"
	"github.com/pingcap/dataflow-engine/engine/pkg/operator"
	"github.com/pingcap/dataflow-engine/engine/pkg/plan"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const (
	waitTimeout  = 10 * time.Second
	waitInterval = 10 * time.Millisecond
)

// fakeMaster serves the physical plan and records state reports.
type fakeMaster struct {
	plan []byte

	planRequests atomic.Int32
	// planGate, when set, delays plan replies until it is closed
	planGate chan struct{}
	replyWg  sync.WaitGroup

	mu       sync.Mutex
	planErr  error
	states   map[model.TaskGroupID][]string
	failures map[model.TaskGroupID]string
}

func newFakeMaster(t *testing.T, p *plan.PhysicalPlan) *fakeMaster {
	data, err := p.Marshal()
	require.NoError(t, err)
	return &fakeMaster{
		plan:     data,
		states:   make(map[model.TaskGroupID][]string),
		failures: make(map[model.TaskGroupID]string),
	}
}

func (m *fakeMaster) setPlanErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planErr = err
}

func (m *fakeMaster) OnMessage(msg *comm.Message) error {
	if msg.Type != comm.TaskGroupStateChanged {
		return errors.ErrIllegalMessage.GenWithStackByArgs(msg.Type.String())
	}
	report := msg.TaskGroupStateChangedMsg
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[report.TaskGroupID] = append(m.states[report.TaskGroupID], report.State)
	if report.FailureCause != "" {
		m.failures[report.TaskGroupID] = report.FailureCause
	}
	return nil
}

func (m *fakeMaster) OnMessageWithContext(msg *comm.Message, mctx message.Context) error {
	if msg.Type != comm.RequestPhysicalPlan {
		return errors.ErrIllegalMessage.GenWithStackByArgs(msg.Type.String())
	}
	m.planRequests.Inc()
	m.mu.Lock()
	planErr := m.planErr
	m.mu.Unlock()
	if planErr != nil {
		return planErr
	}

	reply := comm.NewPhysicalPlan(msg.ID, m.plan)
	if m.planGate == nil {
		return mctx.Reply(reply)
	}
	m.replyWg.Add(1)
	go func() {
		defer m.replyWg.Done()
		<-m.planGate
		_ = mctx.Reply(reply)
	}()
	return nil
}

func (m *fakeMaster) statesOf(id model.TaskGroupID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.states[id]...)
}

func (m *fakeMaster) failureOf(id model.TaskGroupID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[id]
}

func (m *fakeMaster) waitTerminal(t *testing.T, id model.TaskGroupID) []string {
	require.Eventually(t, func() bool {
		states := m.statesOf(id)
		if len(states) == 0 {
			return false
		}
		state, ok := ParseState(states[len(states)-1])
		return ok && state.IsTerminal()
	}, waitTimeout, waitInterval)
	return m.statesOf(id)
}

// testCluster is a master and executors on one local dispatcher.
type testCluster struct {
	t          *testing.T
	dispatcher *local.Dispatcher
	master     *fakeMaster
	masterEnv  *local.Environment
	executors  map[model.ExecutorID]*testExecutor
}

type testExecutor struct {
	*Executor
	env    *local.Environment
	blocks *block.Manager
	cancel context.CancelFunc
	done   chan error
}

func newTestCluster(t *testing.T, p *plan.PhysicalPlan) *testCluster {
	d := local.NewDispatcher()
	masterEnv, err := d.NewEnvironment(message.MasterID)
	require.NoError(t, err)
	master := newFakeMaster(t, p)
	require.NoError(t, masterEnv.SetupListener(message.MasterMessageReceiver, master))
	return &testCluster{
		t:          t,
		dispatcher: d,
		master:     master,
		masterEnv:  masterEnv,
		executors:  make(map[model.ExecutorID]*testExecutor),
	}
}

func newTestBlockManager(t *testing.T) *block.Manager {
	blocks, err := block.NewManager(
		block.NewMemoryStore(model.TierLocal),
		block.NewMemoryStore(model.TierMemory))
	require.NoError(t, err)
	return blocks
}

func testConfig(t *testing.T, id model.ExecutorID, capacity int) *Config {
	cfg := GetDefaultExecutorConfig()
	cfg.Name = id
	cfg.MasterAddr = "local"
	cfg.Capacity = capacity
	require.NoError(t, cfg.Adjust())
	return cfg
}

func (c *testCluster) addExecutor(id model.ExecutorID, capacity int, operators operator.Registry) *testExecutor {
	env, err := c.dispatcher.NewEnvironment(id)
	require.NoError(c.t, err)
	blocks := newTestBlockManager(c.t)
	e, err := NewExecutor(Params{
		Config:     testConfig(c.t, id, capacity),
		Env:        env,
		Blocks:     blocks,
		Serializer: coder.NewBlockSerializer(),
		Operators:  operators,
	})
	require.NoError(c.t, err)

	ctx, cancel := context.WithCancel(context.Background())
	te := &testExecutor{
		Executor: e,
		env:      env,
		blocks:   blocks,
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() {
		te.done <- e.Run(ctx)
	}()
	c.executors[id] = te
	return te
}

func (c *testCluster) schedule(executorID model.ExecutorID, tg *plan.TaskGroup) error {
	data, err := tg.Marshal()
	require.NoError(c.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	sender, err := c.masterEnv.AsyncConnect(ctx, executorID, message.ExecutorMessageReceiver).Get(ctx)
	require.NoError(c.t, err)
	defer sender.Close()
	return sender.Send(ctx, comm.NewScheduleTaskGroup(data))
}

func (c *testCluster) close() {
	if c.master.planGate != nil {
		select {
		case <-c.master.planGate:
		default:
			close(c.master.planGate)
		}
	}
	c.master.replyWg.Wait()
	for _, te := range c.executors {
		te.cancel()
		require.NoError(c.t, <-te.done)
		te.Close()
		require.NoError(c.t, te.env.Close())
		require.NoError(c.t, te.blocks.Close())
	}
	require.NoError(c.t, c.masterEnv.Close())
}

// twoSourcePlan is S1 -> S3 <- S2, every stage with parallelism 1 and
// every edge kept in the memory tier.
func twoSourcePlan(t *testing.T) *plan.PhysicalPlan {
	dag, err := plan.NewDAG(
		[]*plan.Stage{
			{ID: "S1", Parallelism: 1},
			{ID: "S2", Parallelism: 1},
			{ID: "S3", Parallelism: 1},
		},
		[]*plan.StageEdge{
			{ID: "e1", Src: "S1", Dst: "S3", Pattern: plan.OneToOne, Tier: model.TierMemory},
			{ID: "e2", Src: "S2", Dst: "S3", Pattern: plan.OneToOne, Tier: model.TierMemory},
		})
	require.NoError(t, err)
	return plan.NewPhysicalPlan(dag)
}

var emitted = []coder.Element{
	{Key: "a", Value: int64(1)},
	{Key: "b", Value: int64(2)},
	{Key: "a", Value: int64(3)},
}

// testOperators registers "emit", which appends emitted to its input, and
// "collect", which records its input in collected.
func testOperators(collected *sync.Map) operator.Registry {
	r := operator.NewRegistry()
	r.MustRegister("emit", func([]byte) (operator.Operator, error) {
		return operator.Func(func(_ context.Context, in []coder.Element) ([]coder.Element, error) {
			return append(in, emitted...), nil
		}), nil
	})
	r.MustRegister("collect", func(config []byte) (operator.Operator, error) {
		return operator.Func(func(_ context.Context, in []coder.Element) ([]coder.Element, error) {
			collected.Store(string(config), in)
			return in, nil
		}), nil
	})
	return r
}

func taskGroup(id model.TaskGroupID, stage model.StageID, ops ...string) *plan.TaskGroup {
	tg := &plan.TaskGroup{ID: id, StageID: stage}
	for i, op := range ops {
		tg.Tasks = append(tg.Tasks, &plan.Task{
			ID:       id + "-" + string(rune('0'+i)),
			Operator: op,
			Config:   []byte(id),
		})
	}
	return tg
}
