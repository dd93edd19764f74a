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
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/pingcap/dataflow-engine/engine/executor/block"
	"github.com/pingcap/dataflow-engine/engine/executor/datatransfer"
	"github.com/pingcap/dataflow-engine/engine/executor/worker"
	"github.com/pingcap/dataflow-engine/engine/model"
	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/engine/pkg/deps"
	"github.com/pingcap/dataflow-engine/engine/pkg/message"
	"github.com/pingcap/dataflow-engine/engine/pkg/message/grpcmsg"
	"github.com/pingcap/dataflow-engine/engine/pkg/operator"
	"github.com/pingcap/dataflow-engine/engine/pkg/promutil"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statusServerShutdownTimeout = 3 * time.Second

// Server is an executor process: the messaging endpoint, the block
// stores, the executor itself and the status server.
type Server struct {
	cfg      *Config
	registry *prometheus.Registry

	mu         sync.Mutex
	env        *grpcmsg.Environment
	blocks     *block.Manager
	executor   *Executor
	statusAddr net.Addr
}

// NewServer creates a new executor server instance.
func NewServer(cfg *Config) *Server {
	registry := promutil.NewRegistry()
	message.InitMetrics(registry)
	grpcmsg.InitMetrics(registry)
	block.InitMetrics(registry)
	datatransfer.InitMetrics(registry)
	worker.InitMetrics(registry)
	InitMetrics(registry)
	return &Server{
		cfg:      cfg,
		registry: registry,
	}
}

func (s *Server) buildDeps(serializer *coder.BlockSerializer) (*deps.Deps, error) {
	dp := deps.NewDeps()
	err := dp.Provide(func() *Config {
		return s.cfg
	})
	if err != nil {
		return nil, err
	}

	err = dp.Provide(func() message.Environment {
		return s.env
	})
	if err != nil {
		return nil, err
	}

	err = dp.Provide(func() *block.Manager {
		return s.blocks
	})
	if err != nil {
		return nil, err
	}

	err = dp.Provide(func() *coder.BlockSerializer {
		return serializer
	})
	if err != nil {
		return nil, err
	}

	err = dp.Provide(func() operator.Registry {
		return operator.GlobalRegistry()
	})
	if err != nil {
		return nil, err
	}
	return dp, nil
}

func (s *Server) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := grpcmsg.NewEnvironment(s.cfg.Name, s.cfg.Addr)
	if err != nil {
		return err
	}
	s.env = env
	env.AddPeer(message.MasterID, s.cfg.MasterAddr)
	for id, addr := range s.cfg.Peers {
		env.AddPeer(id, addr)
	}

	serializer := coder.NewBlockSerializer()
	s.blocks, err = block.NewManagerWithConfig(ctx, &s.cfg.BlockStore, serializer)
	if err != nil {
		return err
	}

	dp, err := s.buildDeps(serializer)
	if err != nil {
		return err
	}
	var params Params
	if err := dp.Fill(&params); err != nil {
		return err
	}
	s.executor, err = NewExecutor(params)
	return err
}

// Run drives server logic in independent background goroutines, and use error
// group to collect errors.
func (s *Server) Run(ctx context.Context) error {
	defer s.Stop()
	if err := s.init(ctx); err != nil {
		return err
	}
	info := &model.NodeInfo{ID: s.cfg.Name, Addr: s.env.Addr(), Capacity: s.cfg.Capacity}
	infoJSON, err := info.ToJSON()
	if err != nil {
		return errors.Trace(err)
	}
	log.L().Info("executor server started",
		zap.String("node-info", infoJSON),
		zap.String("master-addr", s.cfg.MasterAddr))

	var statusLis net.Listener
	if s.cfg.StatusAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.StatusAddr)
		if err != nil {
			return errors.Trace(err)
		}
		statusLis = lis
		s.mu.Lock()
		s.statusAddr = lis.Addr()
		s.mu.Unlock()
	}

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return s.executor.Run(ctx)
	})
	if statusLis != nil {
		s.startStatusServer(ctx, wg, statusLis)
	}
	return wg.Wait()
}

func (s *Server) startStatusServer(ctx context.Context, wg *errgroup.Group, lis net.Listener) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promutil.HTTPHandlerForMetric(s.registry))

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	wg.Go(func() error {
		err := httpSrv.Serve(lis)
		if err != nil && err != http.ErrServerClosed {
			log.L().Error("status server returned", zap.Error(err))
			return errors.Trace(err)
		}
		return nil
	})
	wg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusServerShutdownTimeout)
		defer cancel()
		return errors.Trace(httpSrv.Shutdown(shutdownCtx))
	})
}

// StatusAddr returns the address the status server listens on, nil
// before it is started.
func (s *Server) StatusAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusAddr
}

// Stop stops all running goroutines and releases resources in Server
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executor != nil {
		s.executor.Close()
		s.executor = nil
	}
	if s.env != nil {
		if err := s.env.Close(); err != nil {
			log.L().Warn("close messaging environment", zap.Error(err))
		}
		s.env = nil
	}
	if s.blocks != nil {
		if err := s.blocks.Close(); err != nil {
			log.L().Warn("close block stores", zap.Error(err))
		}
		s.blocks = nil
	}
}
