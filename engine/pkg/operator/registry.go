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

package operator

import (
	"context"
	"sync"

	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Operator is the computation of one task. It consumes the elements
// produced by the previous task of the chain, or read from the incoming
// edges for the first task.
type Operator interface {
	Process(ctx context.Context, in []coder.Element) ([]coder.Element, error)
}

// Func adapts a function to an Operator.
type Func func(ctx context.Context, in []coder.Element) ([]coder.Element, error)

// Process implements Operator.
func (f Func) Process(ctx context.Context, in []coder.Element) ([]coder.Element, error) {
	return f(ctx, in)
}

// Factory creates an Operator from the task config.
type Factory func(config []byte) (Operator, error)

// Registry maps operator names to factories.
type Registry interface {
	MustRegister(name string, factory Factory)
	Register(name string, factory Factory) (ok bool)
	Create(name string, config []byte) (Operator, error)
}

type registryImpl struct {
	mu         sync.RWMutex
	factoryMap map[string]Factory
}

// NewRegistry creates a Registry holding only the built-in operators.
func NewRegistry() Registry {
	r := &registryImpl{
		factoryMap: make(map[string]Factory),
	}
	registerBuiltins(r)
	return r
}

var globalRegistry = NewRegistry()

// GlobalRegistry returns the process-wide registry.
func GlobalRegistry() Registry {
	return globalRegistry
}

// MustRegister implements Registry.MustRegister
func (r *registryImpl) MustRegister(name string, factory Factory) {
	if ok := r.Register(name, factory); !ok {
		log.Panic("duplicate operator", zap.String("operator", name))
	}
	log.Debug("register operator", zap.String("operator", name))
}

// Register implements Registry.Register
func (r *registryImpl) Register(name string, factory Factory) (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factoryMap[name]; exists {
		return false
	}
	r.factoryMap[name] = factory
	return true
}

// Create implements Registry.Create
func (r *registryImpl) Create(name string, config []byte) (Operator, error) {
	r.mu.RLock()
	factory, ok := r.factoryMap[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrOperatorNotFound.GenWithStackByArgs(name)
	}

	op, err := factory(config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return op, nil
}
