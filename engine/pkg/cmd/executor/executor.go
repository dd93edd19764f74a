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

	"github.com/pingcap/dataflow-engine/engine/executor"
	"github.com/pingcap/dataflow-engine/pkg/cmd/util"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/dataflow-engine/pkg/version"
	"github.com/pingcap/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// options defines flags for the `executor` command.
type options struct {
	executorConfig         *executor.Config
	executorConfigFilePath string
}

// newOptions creates new options for the `executor` command.
func newOptions() *options {
	return &options{
		executorConfig: executor.GetDefaultExecutorConfig(),
	}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.executorConfig.Name, "name", o.executorConfig.Name, "executor id, also its messaging endpoint id")
	cmd.Flags().StringVar(&o.executorConfig.Addr, "addr", o.executorConfig.Addr, "Set the listening address of the message service")
	cmd.Flags().StringVar(&o.executorConfig.StatusAddr, "status-addr", o.executorConfig.StatusAddr, "Set the listening address of the status server")
	cmd.Flags().StringVar(&o.executorConfig.MasterAddr, "master-addr", o.executorConfig.MasterAddr, "address of the master's message service")
	cmd.Flags().StringToStringVar(&o.executorConfig.Peers, "peers", map[string]string{}, "other executors in id=address pairs")
	cmd.Flags().IntVar(&o.executorConfig.Capacity, "capacity", o.executorConfig.Capacity, "number of task groups run at the same time")

	cmd.Flags().StringVar(&o.executorConfig.BlockStore.FileDir, "block-file-dir", "", "directory of the on-disk block store")
	cmd.Flags().StringVar(&o.executorConfig.BlockStore.DistributedStorageURI, "block-storage-uri", "", "URI of the remote-durable block store")

	cmd.Flags().StringVar(&o.executorConfigFilePath, "config", "", "Path of the configuration file")
	cmd.Flags().StringVar(&o.executorConfig.LogConf.File, "log-file", o.executorConfig.LogConf.File, "log file path")
	cmd.Flags().StringVar(&o.executorConfig.LogConf.Level, "log-level", o.executorConfig.LogConf.Level, "log level (etc: debug|info|warn|error)")
}

// run runs the executor cmd.
func (o *options) run(cmd *cobra.Command) error {
	ctx, cancel := util.InitCmd(cmd, &o.executorConfig.LogConf)
	defer cancel()

	version.LogVersionInfo("Dataflow Executor")
	util.LogHTTPProxies()
	log.Info("dataflow executor config", zap.Stringer("config", o.executorConfig))

	server := executor.NewServer(o.executorConfig)
	err := server.Run(ctx)
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run dataflow executor with error", zap.Error(err))
		return errors.Trace(err)
	}
	log.Info("dataflow executor exits successfully")

	return nil
}

// complete adapts from the command line args and config file to the data required.
func (o *options) complete(cmd *cobra.Command) error {
	cfg := executor.GetDefaultExecutorConfig()

	if len(o.executorConfigFilePath) > 0 {
		if err := util.StrictDecodeFile(
			o.executorConfigFilePath, "dataflow executor", cfg); err != nil {
			return err
		}
	}

	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "name":
			cfg.Name = o.executorConfig.Name
		case "addr":
			cfg.Addr = o.executorConfig.Addr
		case "status-addr":
			cfg.StatusAddr = o.executorConfig.StatusAddr
		case "master-addr":
			cfg.MasterAddr = o.executorConfig.MasterAddr
		case "peers":
			cfg.Peers = o.executorConfig.Peers
		case "capacity":
			cfg.Capacity = o.executorConfig.Capacity
		case "block-file-dir":
			cfg.BlockStore.FileDir = o.executorConfig.BlockStore.FileDir
		case "block-storage-uri":
			cfg.BlockStore.DistributedStorageURI = o.executorConfig.BlockStore.DistributedStorageURI
		case "config":
			// do nothing
		case "log-file":
			cfg.LogConf.File = o.executorConfig.LogConf.File
		case "log-level":
			cfg.LogConf.Level = o.executorConfig.LogConf.Level
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})

	if err := cfg.Adjust(); err != nil {
		return errors.Trace(err)
	}

	o.executorConfig = cfg

	return nil
}

// NewCmdExecutor creates the `executor` command.
func NewCmdExecutor() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:     "executor",
		Short:   "Start a dataflow executor",
		Version: version.GetRawInfo(),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := o.complete(cmd)
			if err != nil {
				return err
			}
			err = o.run(cmd)
			cobra.CheckErr(err)
			return nil
		},
	}

	o.addFlags(command)

	return command
}
