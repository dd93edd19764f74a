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

package errors

import (
	"github.com/pingcap/errors"
)

// all dataflow executor errors
var (
	// general errors
	ErrUnknown = errors.Normalize(
		"unknown error",
		errors.RFCCodeText("DFLOW:ErrUnknown"),
	)
	ErrInvalidArgument = errors.Normalize(
		"invalid argument: %s",
		errors.RFCCodeText("DFLOW:ErrInvalidArgument"),
	)
	ErrExecutorConfigInvalid = errors.Normalize(
		"executor config is invalid: %s",
		errors.RFCCodeText("DFLOW:ErrExecutorConfigInvalid"),
	)
	ErrExecutorConfigUnknownItem = errors.Normalize(
		"executor config contains unknown configuration options: %s",
		errors.RFCCodeText("DFLOW:ErrExecutorConfigUnknownItem"),
	)

	// messaging errors
	ErrListenerAlreadyExists = errors.Normalize(
		"listener for message type %s is already set up on endpoint %s",
		errors.RFCCodeText("DFLOW:ErrListenerAlreadyExists"),
	)
	ErrListenerNotFound = errors.Normalize(
		"no listener for message type %s on endpoint %s",
		errors.RFCCodeText("DFLOW:ErrListenerNotFound"),
	)
	ErrEndpointClosed = errors.Normalize(
		"message endpoint %s is closed",
		errors.RFCCodeText("DFLOW:ErrEndpointClosed"),
	)
	ErrPeerNotFound = errors.Normalize(
		"peer %s has no known address",
		errors.RFCCodeText("DFLOW:ErrPeerNotFound"),
	)
	ErrDuplicateReply = errors.Normalize(
		"message %d has already been replied",
		errors.RFCCodeText("DFLOW:ErrDuplicateReply"),
	)
	ErrMessageTransport = errors.Normalize(
		"message transport failed",
		errors.RFCCodeText("DFLOW:ErrMessageTransport"),
	)
	ErrRemoteHandlerFailed = errors.Normalize(
		"remote handler failed: %s",
		errors.RFCCodeText("DFLOW:ErrRemoteHandlerFailed"),
	)

	// protocol errors
	ErrIllegalMessage = errors.Normalize(
		"illegal message: %s",
		errors.RFCCodeText("DFLOW:ErrIllegalMessage"),
	)
	ErrMalformedMessage = errors.Normalize(
		"malformed message %d: %s",
		errors.RFCCodeText("DFLOW:ErrMalformedMessage"),
	)

	// block store errors
	ErrUnsupportedBlockStore = errors.Normalize(
		"block store %s is not supported",
		errors.RFCCodeText("DFLOW:ErrUnsupportedBlockStore"),
	)
	ErrBlockStoreNotConfigured = errors.Normalize(
		"block store %s is not configured on this executor",
		errors.RFCCodeText("DFLOW:ErrBlockStoreNotConfigured"),
	)
	ErrBlockNotFound = errors.Normalize(
		"block %s is not found in block store %s",
		errors.RFCCodeText("DFLOW:ErrBlockNotFound"),
	)
	ErrBlockAlreadyExists = errors.Normalize(
		"block %s already exists in block store %s",
		errors.RFCCodeText("DFLOW:ErrBlockAlreadyExists"),
	)
	ErrBlockNotServable = errors.Normalize(
		"block %s in block store %s can not be served to remote executors",
		errors.RFCCodeText("DFLOW:ErrBlockNotServable"),
	)
	ErrBlockStoreIO = errors.Normalize(
		"block store %s io failed",
		errors.RFCCodeText("DFLOW:ErrBlockStoreIO"),
	)
	ErrBlockLocationUnknown = errors.Normalize(
		"location of block %s is unknown",
		errors.RFCCodeText("DFLOW:ErrBlockLocationUnknown"),
	)

	// codec errors
	ErrSerialization = errors.Normalize(
		"serialization failed: %s",
		errors.RFCCodeText("DFLOW:ErrSerialization"),
	)
	ErrDeserialization = errors.Normalize(
		"deserialization failed: %s",
		errors.RFCCodeText("DFLOW:ErrDeserialization"),
	)

	// plan errors
	ErrInvalidPlan = errors.Normalize(
		"physical plan is invalid: %s",
		errors.RFCCodeText("DFLOW:ErrInvalidPlan"),
	)
	ErrStageNotFound = errors.Normalize(
		"stage %s is not found in physical plan",
		errors.RFCCodeText("DFLOW:ErrStageNotFound"),
	)
	ErrPlanFetchFailed = errors.Normalize(
		"failed to fetch physical plan from master",
		errors.RFCCodeText("DFLOW:ErrPlanFetchFailed"),
	)

	// runtime errors
	ErrRuntimeIncomingQueueFull = errors.Normalize(
		"incoming queue is full",
		errors.RFCCodeText("DFLOW:ErrRuntimeIncomingQueueFull"),
	)
	ErrRuntimeIsClosed = errors.Normalize(
		"runtime has been closed",
		errors.RFCCodeText("DFLOW:ErrRuntimeIsClosed"),
	)
	ErrRuntimeDuplicateTaskID = errors.Normalize(
		"runnable %s already exists",
		errors.RFCCodeText("DFLOW:ErrRuntimeDuplicateTaskID"),
	)
	ErrOperatorNotFound = errors.Normalize(
		"operator %s is not registered",
		errors.RFCCodeText("DFLOW:ErrOperatorNotFound"),
	)
	ErrTaskGroupEmpty = errors.Normalize(
		"task group %s contains no task",
		errors.RFCCodeText("DFLOW:ErrTaskGroupEmpty"),
	)
	ErrTaskGroupPanicked = errors.Normalize(
		"task group %s panicked: %v",
		errors.RFCCodeText("DFLOW:ErrTaskGroupPanicked"),
	)
	ErrIllegalStateTransition = errors.Normalize(
		"illegal state transition of task group %s: %s -> %s",
		errors.RFCCodeText("DFLOW:ErrIllegalStateTransition"),
	)
)
