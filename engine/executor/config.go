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
	"bytes"
	"encoding/json"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/dataflow-engine/engine/executor/block"
	"github.com/pingcap/dataflow-engine/engine/executor/worker"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/dataflow-engine/pkg/logutil"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

const (
	defaultCapacity          = 8
	defaultAddr              = "127.0.0.1:10241"
	defaultStatusAddr        = "127.0.0.1:10242"
	defaultPlanFetchTimeout  = "30s"
	defaultBlockFetchTimeout = "30s"
)

// Config is the configuration of an executor.
type Config struct {
	LogConf logutil.Config `toml:"log" json:"log"`

	// Name is the endpoint id of the executor.
	Name string `toml:"name" json:"name"`
	// Addr is the listening address of the message service.
	Addr       string `toml:"addr" json:"addr"`
	StatusAddr string `toml:"status-addr" json:"status-addr"`
	// MasterAddr is the address of the master's message service.
	MasterAddr string `toml:"master-addr" json:"master-addr"`
	// Peers maps the ids of the other executors to their addresses.
	Peers map[model.ExecutorID]string `toml:"peers" json:"peers"`

	// Capacity is the number of task groups run at the same time.
	Capacity  int `toml:"capacity" json:"capacity"`
	QueueSize int `toml:"queue-size" json:"queue-size"`

	PlanFetchTimeoutStr  string `toml:"plan-fetch-timeout" json:"plan-fetch-timeout"`
	BlockFetchTimeoutStr string `toml:"block-fetch-timeout" json:"block-fetch-timeout"`

	PlanFetchTimeout  time.Duration `toml:"-" json:"-"`
	BlockFetchTimeout time.Duration `toml:"-" json:"-"`

	BlockStore block.Config `toml:"block-store" json:"block-store"`
}

// GetDefaultExecutorConfig returns a default executor config.
func GetDefaultExecutorConfig() *Config {
	return &Config{
		LogConf: logutil.Config{
			Level: "info",
			File:  "",
		},
		Name:                 "",
		Addr:                 defaultAddr,
		StatusAddr:           defaultStatusAddr,
		Peers:                map[model.ExecutorID]string{},
		Capacity:             defaultCapacity,
		QueueSize:            worker.DefaultQueueSize,
		PlanFetchTimeoutStr:  defaultPlanFetchTimeout,
		BlockFetchTimeoutStr: defaultBlockFetchTimeout,
	}
}

func (c *Config) String() string {
	cfg, err := json.Marshal(c)
	if err != nil {
		log.L().Error("marshal to json", zap.Reflect("executor config", c), zap.Error(err))
	}
	return string(cfg)
}

// Toml returns TOML format representation of config.
func (c *Config) Toml() (string, error) {
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return "", errors.Trace(err)
	}
	return b.String(), nil
}

// Adjust validates the config and fills in derived fields.
func (c *Config) Adjust() (err error) {
	if c.Name == "" {
		c.Name = "executor-" + c.Addr
	}
	if c.MasterAddr == "" {
		return errors.ErrExecutorConfigInvalid.GenWithStackByArgs("master-addr is required")
	}
	if c.Capacity <= 0 {
		return errors.ErrExecutorConfigInvalid.GenWithStackByArgs("capacity must be positive")
	}
	if c.QueueSize <= 0 {
		c.QueueSize = worker.DefaultQueueSize
	}
	for id := range c.Peers {
		if id == c.Name {
			return errors.ErrExecutorConfigInvalid.GenWithStackByArgs("peers contains the executor itself")
		}
	}

	c.PlanFetchTimeout, err = time.ParseDuration(c.PlanFetchTimeoutStr)
	if err != nil {
		return errors.WrapError(errors.ErrExecutorConfigInvalid, err, "plan-fetch-timeout")
	}
	c.BlockFetchTimeout, err = time.ParseDuration(c.BlockFetchTimeoutStr)
	if err != nil {
		return errors.WrapError(errors.ErrExecutorConfigInvalid, err, "block-fetch-timeout")
	}

	c.LogConf.Adjust()
	return c.BlockStore.Adjust()
}
