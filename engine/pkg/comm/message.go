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

package comm

import (
	"fmt"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"
)

// MessageType is the tag of a control message.
type MessageType int32

// All control message types.
const (
	// ScheduleTaskGroup is sent by the master to an executor.
	ScheduleTaskGroup MessageType = iota + 1
	// RequestPhysicalPlan is sent by an executor to the master.
	RequestPhysicalPlan
	// PhysicalPlan is the reply to RequestPhysicalPlan.
	PhysicalPlan
	// RequestBlock is sent by an executor to the executor holding a block.
	RequestBlock
	// TransferBlock is the reply to RequestBlock.
	TransferBlock
	// TaskGroupStateChanged is sent by an executor to the master.
	TaskGroupStateChanged
)

var messageTypeNames = map[MessageType]string{
	ScheduleTaskGroup:     "ScheduleTaskGroup",
	RequestPhysicalPlan:   "RequestPhysicalPlan",
	PhysicalPlan:          "PhysicalPlan",
	RequestBlock:          "RequestBlock",
	TransferBlock:         "TransferBlock",
	TaskGroupStateChanged: "TaskGroupStateChanged",
}

// String implements fmt.Stringer
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int32(t))
}

// Role is the kind of process a message is delivered to.
type Role int

// All roles.
const (
	RoleExecutor Role = iota + 1
	RoleMaster
)

// Route tells who receives a message type and whether a reply is
// expected. Replies have no route, they travel back on the request.
type Route struct {
	Receiver     Role
	ExpectsReply bool
}

var routes = map[MessageType]Route{
	ScheduleTaskGroup:     {Receiver: RoleExecutor, ExpectsReply: false},
	RequestPhysicalPlan:   {Receiver: RoleMaster, ExpectsReply: true},
	RequestBlock:          {Receiver: RoleExecutor, ExpectsReply: true},
	TaskGroupStateChanged: {Receiver: RoleMaster, ExpectsReply: false},
}

// RouteOf returns the route of a message type. ok is false for replies
// and unknown types.
func RouteOf(t MessageType) (route Route, ok bool) {
	route, ok = routes[t]
	return
}

// MessageTypes returns every known message type.
func MessageTypes() []MessageType {
	return []MessageType{
		ScheduleTaskGroup, RequestPhysicalPlan, PhysicalPlan,
		RequestBlock, TransferBlock, TaskGroupStateChanged,
	}
}

var messageIDGen = atomic.NewInt64(0)

// GenerateMessageID returns a process-wide unique, monotonically
// increasing message id.
func GenerateMessageID() int64 {
	return messageIDGen.Inc()
}

// ScheduleTaskGroupMsg carries a serialized plan.TaskGroup.
type ScheduleTaskGroupMsg struct {
	TaskGroup []byte `msgpack:"task_group"`
}

// RequestPhysicalPlanMsg asks the master for the physical plan.
type RequestPhysicalPlanMsg struct {
	ExecutorID model.ExecutorID `msgpack:"executor_id"`
}

// PhysicalPlanMsg carries a serialized plan.PhysicalPlan.
type PhysicalPlanMsg struct {
	RequestID    int64  `msgpack:"request_id"`
	PhysicalPlan []byte `msgpack:"physical_plan"`
}

// RequestBlockMsg asks an executor for the elements of a block.
type RequestBlockMsg struct {
	ExecutorID model.ExecutorID `msgpack:"executor_id"`
	BlockID    model.BlockID    `msgpack:"block_id"`
	BlockStore model.Tier       `msgpack:"block_store"`
}

// TransferBlockMsg carries the serialized elements of a block.
type TransferBlockMsg struct {
	RequestID  int64            `msgpack:"request_id"`
	ExecutorID model.ExecutorID `msgpack:"executor_id"`
	BlockID    model.BlockID    `msgpack:"block_id"`
	// IsUnionValue tells the receiver to decode Data with the
	// union-aware codec.
	IsUnionValue bool   `msgpack:"is_union_value"`
	Data         []byte `msgpack:"data"`
}

// TaskGroupStateChangedMsg reports a state transition of a task group.
type TaskGroupStateChangedMsg struct {
	ExecutorID   model.ExecutorID  `msgpack:"executor_id"`
	TaskGroupID  model.TaskGroupID `msgpack:"task_group_id"`
	State        string            `msgpack:"state"`
	FailureCause string            `msgpack:"failure_cause,omitempty"`
}

// Message is a control message. Exactly the payload matching Type is set.
type Message struct {
	ID   int64       `msgpack:"id"`
	Type MessageType `msgpack:"type"`

	ScheduleTaskGroupMsg     *ScheduleTaskGroupMsg     `msgpack:"schedule_task_group,omitempty"`
	RequestPhysicalPlanMsg   *RequestPhysicalPlanMsg   `msgpack:"request_physical_plan,omitempty"`
	PhysicalPlanMsg          *PhysicalPlanMsg          `msgpack:"physical_plan,omitempty"`
	RequestBlockMsg          *RequestBlockMsg          `msgpack:"request_block,omitempty"`
	TransferBlockMsg         *TransferBlockMsg         `msgpack:"transfer_block,omitempty"`
	TaskGroupStateChangedMsg *TaskGroupStateChangedMsg `msgpack:"task_group_state_changed,omitempty"`
}

// NewScheduleTaskGroup creates a ScheduleTaskGroup message.
func NewScheduleTaskGroup(taskGroup []byte) *Message {
	return &Message{
		ID:                   GenerateMessageID(),
		Type:                 ScheduleTaskGroup,
		ScheduleTaskGroupMsg: &ScheduleTaskGroupMsg{TaskGroup: taskGroup},
	}
}

// NewRequestPhysicalPlan creates a RequestPhysicalPlan message.
func NewRequestPhysicalPlan(executorID model.ExecutorID) *Message {
	return &Message{
		ID:                     GenerateMessageID(),
		Type:                   RequestPhysicalPlan,
		RequestPhysicalPlanMsg: &RequestPhysicalPlanMsg{ExecutorID: executorID},
	}
}

// NewPhysicalPlan creates the reply to the RequestPhysicalPlan message requestID.
func NewPhysicalPlan(requestID int64, physicalPlan []byte) *Message {
	return &Message{
		ID:   GenerateMessageID(),
		Type: PhysicalPlan,
		PhysicalPlanMsg: &PhysicalPlanMsg{
			RequestID:    requestID,
			PhysicalPlan: physicalPlan,
		},
	}
}

// NewRequestBlock creates a RequestBlock message.
func NewRequestBlock(executorID model.ExecutorID, blockID model.BlockID, tier model.Tier) *Message {
	return &Message{
		ID:   GenerateMessageID(),
		Type: RequestBlock,
		RequestBlockMsg: &RequestBlockMsg{
			ExecutorID: executorID,
			BlockID:    blockID,
			BlockStore: tier,
		},
	}
}

// NewTransferBlock creates the reply to the RequestBlock message requestID.
func NewTransferBlock(
	requestID int64, executorID model.ExecutorID, blockID model.BlockID, isUnionValue bool, data []byte,
) *Message {
	return &Message{
		ID:   GenerateMessageID(),
		Type: TransferBlock,
		TransferBlockMsg: &TransferBlockMsg{
			RequestID:    requestID,
			ExecutorID:   executorID,
			BlockID:      blockID,
			IsUnionValue: isUnionValue,
			Data:         data,
		},
	}
}

// NewTaskGroupStateChanged creates a TaskGroupStateChanged message.
func NewTaskGroupStateChanged(
	executorID model.ExecutorID, taskGroupID model.TaskGroupID, state string, cause error,
) *Message {
	msg := &TaskGroupStateChangedMsg{
		ExecutorID:  executorID,
		TaskGroupID: taskGroupID,
		State:       state,
	}
	if cause != nil {
		msg.FailureCause = cause.Error()
	}
	return &Message{
		ID:                       GenerateMessageID(),
		Type:                     TaskGroupStateChanged,
		TaskGroupStateChangedMsg: msg,
	}
}

// Validate checks that exactly the payload matching the message type is set.
func (m *Message) Validate() error {
	payloads := map[MessageType]bool{
		ScheduleTaskGroup:     m.ScheduleTaskGroupMsg != nil,
		RequestPhysicalPlan:   m.RequestPhysicalPlanMsg != nil,
		PhysicalPlan:          m.PhysicalPlanMsg != nil,
		RequestBlock:          m.RequestBlockMsg != nil,
		TransferBlock:         m.TransferBlockMsg != nil,
		TaskGroupStateChanged: m.TaskGroupStateChangedMsg != nil,
	}
	set, known := payloads[m.Type]
	if !known {
		return errors.ErrMalformedMessage.GenWithStackByArgs(m.ID, "unknown type "+m.Type.String())
	}
	if !set {
		return errors.ErrMalformedMessage.GenWithStackByArgs(m.ID, "missing payload of "+m.Type.String())
	}
	for tp, isSet := range payloads {
		if tp != m.Type && isSet {
			return errors.ErrMalformedMessage.GenWithStackByArgs(m.ID,
				fmt.Sprintf("%s message carries a %s payload", m.Type, tp))
		}
	}
	return nil
}

// Marshal encodes the message for the wire.
func (m *Message) Marshal() ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, errors.WrapError(errors.ErrSerialization, err, "control message")
	}
	return data, nil
}

// Unmarshal decodes a message encoded by Marshal.
func (m *Message) Unmarshal(data []byte) error {
	if err := msgpack.Unmarshal(data, m); err != nil {
		return errors.WrapError(errors.ErrDeserialization, err, "control message")
	}
	return nil
}
