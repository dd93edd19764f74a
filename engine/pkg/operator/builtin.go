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
	"fmt"

	"github.com/pingcap/dataflow-engine/engine/pkg/coder"
	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Names of the built-in operators.
const (
	Identity   = "identity"
	CountByKey = "count-by-key"
	UnionTag   = "union-tag"
)

func registerBuiltins(r Registry) {
	r.MustRegister(Identity, func([]byte) (Operator, error) {
		return Func(func(_ context.Context, in []coder.Element) ([]coder.Element, error) {
			return in, nil
		}), nil
	})
	r.MustRegister(CountByKey, func([]byte) (Operator, error) {
		return Func(countByKey), nil
	})
	r.MustRegister(UnionTag, newUnionTag)
}

// countByKey emits one (key, count) element per distinct key, in order of
// first appearance.
func countByKey(ctx context.Context, in []coder.Element) ([]coder.Element, error) {
	counts := make(map[string]int64)
	order := make([]interface{}, 0)
	for _, elem := range in {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		key := fmt.Sprint(elem.Key)
		if _, ok := counts[key]; !ok {
			order = append(order, elem.Key)
		}
		counts[key]++
	}
	out := make([]coder.Element, 0, len(order))
	for _, key := range order {
		out = append(out, coder.Element{Key: key, Value: counts[fmt.Sprint(key)]})
	}
	return out, nil
}

// UnionTagConfig is the config of the union-tag operator.
type UnionTagConfig struct {
	Branch int `msgpack:"branch"`
}

// newUnionTag creates an operator moving every element into one branch of
// a side-output union. The key of an output element is its position.
func newUnionTag(config []byte) (Operator, error) {
	cfg := &UnionTagConfig{}
	if len(config) > 0 {
		if err := msgpack.Unmarshal(config, cfg); err != nil {
			return nil, errors.WrapError(errors.ErrInvalidArgument, err, "union-tag config")
		}
	}
	if cfg.Branch < 0 {
		return nil, errors.ErrInvalidArgument.GenWithStackByArgs(
			fmt.Sprintf("union-tag branch %d is negative", cfg.Branch))
	}
	return Func(func(_ context.Context, in []coder.Element) ([]coder.Element, error) {
		out := make([]coder.Element, 0, len(in))
		for i, elem := range in {
			out = append(out, coder.Element{
				Key:   int64(i),
				Value: coder.UnionValue{Tag: cfg.Branch, Value: elem.Value},
			})
		}
		return out, nil
	}), nil
}
