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

package local

import (
	"sync"

	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

type listenerKey struct {
	endpointID string
	listenerID string
}

// Dispatcher is the registry shared by all local environments. It maps
// (endpoint id, listener id) to a listener.
type Dispatcher struct {
	mu        sync.RWMutex
	endpoints map[string]*Environment
	listeners map[listenerKey]message.Listener
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		endpoints: make(map[string]*Environment),
		listeners: make(map[listenerKey]message.Listener),
	}
}

// defaultDispatcher backs environments created by NewEnvironment.
var defaultDispatcher = NewDispatcher()

// NewEnvironment creates an environment for endpointID on this dispatcher.
func (d *Dispatcher) NewEnvironment(endpointID string) (*Environment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.endpoints[endpointID]; ok {
		return nil, errors.ErrInvalidArgument.GenWithStackByArgs(
			"local endpoint " + endpointID + " already exists")
	}
	env := newEnvironment(endpointID, d)
	d.endpoints[endpointID] = env
	log.Debug("local message environment created", zap.String("endpoint", endpointID))
	return env, nil
}

func (d *Dispatcher) register(endpointID, listenerID string, listener message.Listener) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := listenerKey{endpointID: endpointID, listenerID: listenerID}
	if _, ok := d.listeners[key]; ok {
		return errors.ErrListenerAlreadyExists.GenWithStackByArgs(listenerID, endpointID)
	}
	d.listeners[key] = listener
	return nil
}

func (d *Dispatcher) unregister(endpointID, listenerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.listeners, listenerKey{endpointID: endpointID, listenerID: listenerID})
}

func (d *Dispatcher) lookup(endpointID, listenerID string) (message.Listener, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	listener, ok := d.listeners[listenerKey{endpointID: endpointID, listenerID: listenerID}]
	if !ok {
		return nil, errors.ErrListenerNotFound.GenWithStackByArgs(listenerID, endpointID)
	}
	return listener, nil
}

func (d *Dispatcher) removeEndpoint(endpointID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.endpoints, endpointID)
	for key := range d.listeners {
		if key.endpointID == endpointID {
			delete(d.listeners, key)
		}
	}
}
