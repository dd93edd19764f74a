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
	"os"
	"path/filepath"

	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// FileStore keeps one file per block in a local directory.
type FileStore struct {
	dir        string
	serializer *coder.BlockSerializer
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore in dir, creating dir if needed.
func NewFileStore(dir string, serializer *coder.BlockSerializer) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapError(errors.ErrBlockStoreIO, err, model.TierFile.String())
	}
	return &FileStore{
		dir:        dir,
		serializer: serializer,
	}, nil
}

// Tier implements Store.
func (s *FileStore) Tier() model.Tier {
	return model.TierFile
}

func (s *FileStore) path(blockID model.BlockID) string {
	return filepath.Join(s.dir, blockFileName(blockID))
}

// Put implements Store. The block is written to a temporary file which is
// then hard linked to its final name, so readers never see a partial
// block and an existing block is never replaced.
func (s *FileStore) Put(_ context.Context, blockID model.BlockID, elems []coder.Element) error {
	data, err := encodeBlock(s.serializer, elems)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return s.ioError(err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to remove temporary block file",
				zap.String("file", tmpName), zap.Error(err))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return s.ioError(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return s.ioError(err)
	}
	if err := tmp.Close(); err != nil {
		return s.ioError(err)
	}

	if err := os.Link(tmpName, s.path(blockID)); err != nil {
		if os.IsExist(err) {
			return errors.ErrBlockAlreadyExists.GenWithStackByArgs(blockID, model.TierFile.String())
		}
		return s.ioError(err)
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, blockID model.BlockID) ([]coder.Element, error) {
	data, err := os.ReadFile(s.path(blockID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrBlockNotFound.GenWithStackByArgs(blockID, model.TierFile.String())
		}
		return nil, s.ioError(err)
	}
	return decodeBlock(s.serializer, data)
}

// Remove implements Store.
func (s *FileStore) Remove(_ context.Context, blockID model.BlockID) error {
	if err := os.Remove(s.path(blockID)); err != nil {
		if os.IsNotExist(err) {
			return errors.ErrBlockNotFound.GenWithStackByArgs(blockID, model.TierFile.String())
		}
		return s.ioError(err)
	}
	return nil
}

// Close implements Store. Block files are kept.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) ioError(err error) error {
	return errors.WrapError(errors.ErrBlockStoreIO, err, model.TierFile.String())
}
