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

package coder

import (
	"bytes"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// BlockSerializer turns the elements of a block into bytes and back.
//
// A block is encoded as an array of per-element byte strings. Blocks whose
// elements carry union values are encoded with the union-aware KV codec,
// every other block with the generic element codec. The caller has to
// remember which one was used, see the isUnion return value of Serialize.
type BlockSerializer struct {
	element Coder
	union   Coder
}

// NewBlockSerializer creates a BlockSerializer. unionBranches are the
// coders of the union branches. Two []float64 branches are used if none is
// given.
func NewBlockSerializer(unionBranches ...Coder) *BlockSerializer {
	if len(unionBranches) == 0 {
		unionBranches = []Coder{Float64sCoder{}, Float64sCoder{}}
	}
	return &BlockSerializer{
		element: ElementCoder{},
		union: KVCoder{
			Key:   ValueCoder{},
			Value: UnionCoder{Branches: unionBranches},
		},
	}
}

// Serialize encodes elements. isUnion reports whether the union-aware codec
// was used. A block mixing union and non-union elements is rejected.
func (s *BlockSerializer) Serialize(elems []Element) (data []byte, isUnion bool, err error) {
	unionCount := 0
	for _, elem := range elems {
		if IsUnionElement(elem) {
			unionCount++
		}
	}
	if unionCount > 0 && unionCount != len(elems) {
		return nil, false, errors.ErrSerialization.GenWithStackByArgs(
			"block mixes union and non-union elements")
	}
	isUnion = unionCount > 0

	c := s.element
	if isUnion {
		c = s.union
	}

	var (
		out     bytes.Buffer
		elemBuf bytes.Buffer
	)
	enc := msgpack.NewEncoder(&out)
	elemEnc := msgpack.NewEncoder(&elemBuf)
	if err := enc.EncodeArrayLen(len(elems)); err != nil {
		return nil, false, errors.WrapError(errors.ErrSerialization, err, "block header")
	}
	for _, elem := range elems {
		elemBuf.Reset()
		if err := c.Encode(elemEnc, elem); err != nil {
			return nil, false, err
		}
		if err := enc.EncodeBytes(elemBuf.Bytes()); err != nil {
			return nil, false, errors.WrapError(errors.ErrSerialization, err, "block element")
		}
	}
	return out.Bytes(), isUnion, nil
}

// Deserialize decodes data produced by Serialize. isUnion must be the value
// Serialize returned.
func (s *BlockSerializer) Deserialize(data []byte, isUnion bool) ([]Element, error) {
	c := s.element
	if isUnion {
		c = s.union
	}

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, errors.WrapError(errors.ErrDeserialization, err, "block header")
	}
	if n <= 0 {
		return []Element{}, nil
	}

	elems := make([]Element, 0, n)
	for i := 0; i < n; i++ {
		raw, err := dec.DecodeBytes()
		if err != nil {
			return nil, errors.WrapError(errors.ErrDeserialization, err, "block element")
		}
		v, err := c.Decode(msgpack.NewDecoder(bytes.NewReader(raw)))
		if err != nil {
			return nil, err
		}
		elems = append(elems, v.(Element))
	}
	return elems, nil
}
