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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapError(t *testing.T) {
	t.Parallel()

	require.Nil(t, WrapError(ErrBlockStoreIO, nil, "file"))

	cause := New("disk full")
	err := WrapError(ErrBlockStoreIO, cause, "file")
	require.True(t, Is(err, ErrBlockStoreIO))
	require.Contains(t, err.Error(), "DFLOW:ErrBlockStoreIO")
}

func TestErrorCodes(t *testing.T) {
	t.Parallel()

	err := ErrBlockNotFound.GenWithStackByArgs("e1/0/0", "memory")
	require.True(t, Is(err, ErrBlockNotFound))
	require.False(t, Is(err, ErrUnsupportedBlockStore))
	require.Contains(t, err.Error(), "e1/0/0")
	require.Contains(t, err.Error(), "DFLOW:ErrBlockNotFound")
}

func TestIsProtocolViolation(t *testing.T) {
	t.Parallel()

	require.True(t, IsProtocolViolation(ErrIllegalMessage.GenWithStackByArgs("RequestPhysicalPlan")))
	require.True(t, IsProtocolViolation(ErrMalformedMessage.GenWithStackByArgs(1, "missing payload")))
	require.False(t, IsProtocolViolation(ErrEndpointClosed.GenWithStackByArgs("e1")))
	require.False(t, IsProtocolViolation(nil))
}
