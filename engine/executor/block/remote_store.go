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

package block

import (
	"context"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	brStorage "github.com/pingcap/tidb/br/pkg/storage"
	"go.uber.org/zap"
)

// RemoteStore keeps blocks in an external storage shared by the cluster,
// such as s3, gcs or a mounted directory.
type RemoteStore struct {
	storage    brStorage.ExternalStorage
	serializer *coder.BlockSerializer
}

var _ Store = (*RemoteStore)(nil)

// NewRemoteStore creates a RemoteStore on the storage addressed by uri,
// e.g. "s3://bucket/prefix" or "local:///tmp/blocks".
func NewRemoteStore(ctx context.Context, uri string, serializer *coder.BlockSerializer) (*RemoteStore, error) {
	backend, err := brStorage.ParseBackend(uri, nil)
	if err != nil {
		return nil, errors.WrapError(errors.ErrBlockStoreIO, err, model.TierDistributedStorage.String())
	}
	storage, err := brStorage.New(ctx, backend, nil)
	if err != nil {
		return nil, errors.WrapError(errors.ErrBlockStoreIO, err, model.TierDistributedStorage.String())
	}
	log.Info("remote block store opened", zap.String("uri", storage.URI()))
	return NewRemoteStoreWithStorage(storage, serializer), nil
}

// NewRemoteStoreWithStorage creates a RemoteStore on an opened storage.
func NewRemoteStoreWithStorage(storage brStorage.ExternalStorage, serializer *coder.BlockSerializer) *RemoteStore {
	return &RemoteStore{
		storage:    storage,
		serializer: serializer,
	}
}

// Tier implements Store.
func (s *RemoteStore) Tier() model.Tier {
	return model.TierDistributedStorage
}

func (s *RemoteStore) name(blockID model.BlockID) string {
	return blockFileName(blockID)
}

// Put implements Store. An object is published by a single write, so it
// is never visible half written. Only the producing task group writes a
// block, which makes the existence check sufficient for write-once.
func (s *RemoteStore) Put(ctx context.Context, blockID model.BlockID, elems []coder.Element) error {
	data, err := encodeBlock(s.serializer, elems)
	if err != nil {
		return err
	}
	name := s.name(blockID)
	exists, err := s.storage.FileExists(ctx, name)
	if err != nil {
		return s.ioError(err)
	}
	if exists {
		return errors.ErrBlockAlreadyExists.GenWithStackByArgs(blockID, model.TierDistributedStorage.String())
	}
	if err := s.storage.WriteFile(ctx, name, data); err != nil {
		return s.ioError(err)
	}
	return nil
}

// Get implements Store.
func (s *RemoteStore) Get(ctx context.Context, blockID model.BlockID) ([]coder.Element, error) {
	name := s.name(blockID)
	exists, err := s.storage.FileExists(ctx, name)
	if err != nil {
		return nil, s.ioError(err)
	}
	if !exists {
		return nil, errors.ErrBlockNotFound.GenWithStackByArgs(blockID, model.TierDistributedStorage.String())
	}
	data, err := s.storage.ReadFile(ctx, name)
	if err != nil {
		return nil, s.ioError(err)
	}
	return decodeBlock(s.serializer, data)
}

// Remove implements Store.
func (s *RemoteStore) Remove(ctx context.Context, blockID model.BlockID) error {
	name := s.name(blockID)
	exists, err := s.storage.FileExists(ctx, name)
	if err != nil {
		return s.ioError(err)
	}
	if !exists {
		return errors.ErrBlockNotFound.GenWithStackByArgs(blockID, model.TierDistributedStorage.String())
	}
	if err := s.storage.DeleteFile(ctx, name); err != nil {
		return s.ioError(err)
	}
	return nil
}

// Close implements Store.
func (s *RemoteStore) Close() error {
	return nil
}

func (s *RemoteStore) ioError(err error) error {
	return errors.WrapError(errors.ErrBlockStoreIO, err, model.TierDistributedStorage.String())
}
