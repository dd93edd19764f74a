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
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// HybridStore keeps serialized blocks in memory up to a quota and spills
// the blocks that do not fit to a pebble database.
type HybridStore struct {
	serializer *coder.BlockSerializer
	quota      int64
	memUsed    atomic.Int64

	// mu makes the existence check and the write of Put atomic.
	mu     sync.RWMutex
	memory map[model.BlockID][]byte
	db     *pebble.DB
}

var _ Store = (*HybridStore)(nil)

// NewHybridStore opens the spill database in dir on fs. A nil fs means the
// operating system's file system.
func NewHybridStore(dir string, memQuota int64, fs vfs.FS, serializer *coder.BlockSerializer) (*HybridStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	listener := pebble.MakeLoggingEventListener(&pebbleLogger{dir: dir})
	opts.EventListener = &listener
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.WrapError(errors.ErrBlockStoreIO, err, model.TierMemoryFile.String())
	}
	log.Info("hybrid block store opened",
		zap.String("dir", dir), zap.Int64("memory-quota", memQuota))
	return &HybridStore{
		serializer: serializer,
		quota:      memQuota,
		memory:     make(map[model.BlockID][]byte),
		db:         db,
	}, nil
}

// Tier implements Store.
func (s *HybridStore) Tier() model.Tier {
	return model.TierMemoryFile
}

// Put implements Store.
func (s *HybridStore) Put(_ context.Context, blockID model.BlockID, elems []coder.Element) error {
	data, err := encodeBlock(s.serializer, elems)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.existsLocked(blockID)
	if err != nil {
		return err
	}
	if exists {
		return errors.ErrBlockAlreadyExists.GenWithStackByArgs(blockID, model.TierMemoryFile.String())
	}

	size := int64(len(data))
	if s.memUsed.Load()+size <= s.quota {
		s.memory[blockID] = data
		s.memUsed.Add(size)
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(blockID), data, pebble.NoSync); err != nil {
		return s.ioError(err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return s.ioError(err)
	}
	hybridSpilledBlockCounter.Inc()
	log.Debug("block spilled to disk", zap.String("block-id", blockID), zap.Int64("size", size))
	return nil
}

func (s *HybridStore) existsLocked(blockID model.BlockID) (bool, error) {
	if _, ok := s.memory[blockID]; ok {
		return true, nil
	}
	_, closer, err := s.db.Get([]byte(blockID))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, s.ioError(err)
	}
	if err := closer.Close(); err != nil {
		return false, s.ioError(err)
	}
	return true, nil
}

// Get implements Store.
func (s *HybridStore) Get(_ context.Context, blockID model.BlockID) ([]coder.Element, error) {
	s.mu.RLock()
	data, ok := s.memory[blockID]
	s.mu.RUnlock()
	if ok {
		return decodeBlock(s.serializer, data)
	}

	value, closer, err := s.db.Get([]byte(blockID))
	if err == pebble.ErrNotFound {
		return nil, errors.ErrBlockNotFound.GenWithStackByArgs(blockID, model.TierMemoryFile.String())
	}
	if err != nil {
		return nil, s.ioError(err)
	}
	// value is only valid until closer is closed
	data = append([]byte(nil), value...)
	if err := closer.Close(); err != nil {
		return nil, s.ioError(err)
	}
	return decodeBlock(s.serializer, data)
}

// Remove implements Store.
func (s *HybridStore) Remove(_ context.Context, blockID model.BlockID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.memory[blockID]; ok {
		delete(s.memory, blockID)
		s.memUsed.Sub(int64(len(data)))
		return nil
	}
	exists, err := s.existsLocked(blockID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.ErrBlockNotFound.GenWithStackByArgs(blockID, model.TierMemoryFile.String())
	}
	if err := s.db.Delete([]byte(blockID), pebble.Sync); err != nil {
		return s.ioError(err)
	}
	return nil
}

// MemoryUsed returns the number of bytes of blocks kept in memory.
func (s *HybridStore) MemoryUsed() int64 {
	return s.memUsed.Load()
}

// Close implements Store.
func (s *HybridStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = make(map[model.BlockID][]byte)
	s.memUsed.Store(0)
	if err := s.db.Close(); err != nil {
		return s.ioError(err)
	}
	return nil
}

func (s *HybridStore) ioError(err error) error {
	return errors.WrapError(errors.ErrBlockStoreIO, err, model.TierMemoryFile.String())
}

type pebbleLogger struct{ dir string }

var _ pebble.Logger = (*pebbleLogger)(nil)

func (logger *pebbleLogger) Infof(format string, args ...interface{}) {
	// low-level pebble logs are only useful when debugging
	log.Debug(fmt.Sprintf(format, args...), zap.String("dir", logger.dir))
}

func (logger *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Panic(fmt.Sprintf(format, args...), zap.String("dir", logger.dir))
}
