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
	"fmt"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// UnionCoder encodes a UnionValue as its branch index followed by the
// payload encoded with the coder of that branch. The number of branches is
// fixed when the coder is built.
type UnionCoder struct {
	Branches []Coder
}

// Encode implements Coder.
func (c UnionCoder) Encode(enc *msgpack.Encoder, v interface{}) error {
	uv, ok := asUnionValue(v)
	if !ok {
		return errors.ErrSerialization.GenWithStackByArgs(fmt.Sprintf("%T is not a union value", v))
	}
	if uv.Tag < 0 || uv.Tag >= len(c.Branches) {
		return errors.ErrSerialization.GenWithStackByArgs(
			fmt.Sprintf("union tag %d out of range [0, %d)", uv.Tag, len(c.Branches)))
	}
	if err := enc.EncodeInt(int64(uv.Tag)); err != nil {
		return errors.WrapError(errors.ErrSerialization, err, "union tag")
	}
	return c.Branches[uv.Tag].Encode(enc, uv.Value)
}

// Decode implements Coder.
func (c UnionCoder) Decode(dec *msgpack.Decoder) (interface{}, error) {
	tag, err := dec.DecodeInt()
	if err != nil {
		return nil, errors.WrapError(errors.ErrDeserialization, err, "union tag")
	}
	if tag < 0 || tag >= len(c.Branches) {
		return nil, errors.ErrDeserialization.GenWithStackByArgs(
			fmt.Sprintf("union tag %d out of range [0, %d)", tag, len(c.Branches)))
	}
	payload, err := c.Branches[tag].Decode(dec)
	if err != nil {
		return nil, err
	}
	return UnionValue{Tag: tag, Value: payload}, nil
}

// KVCoder encodes a keyed Element with one coder for the key and one for
// the value.
type KVCoder struct {
	Key   Coder
	Value Coder
}

// Encode implements Coder.
func (c KVCoder) Encode(enc *msgpack.Encoder, v interface{}) error {
	elem, ok := v.(Element)
	if !ok {
		return errors.ErrSerialization.GenWithStackByArgs(fmt.Sprintf("%T is not an element", v))
	}
	if err := c.Key.Encode(enc, elem.Key); err != nil {
		return err
	}
	return c.Value.Encode(enc, elem.Value)
}

// Decode implements Coder.
func (c KVCoder) Decode(dec *msgpack.Decoder) (interface{}, error) {
	key, err := c.Key.Decode(dec)
	if err != nil {
		return nil, err
	}
	value, err := c.Value.Decode(dec)
	if err != nil {
		return nil, err
	}
	return Element{Key: key, Value: value}, nil
}

// IsUnionElement returns whether the element carries a union value.
func IsUnionElement(elem Element) bool {
	_, ok := asUnionValue(elem.Value)
	return ok
}

func asUnionValue(v interface{}) (UnionValue, bool) {
	switch x := v.(type) {
	case UnionValue:
		return x, true
	case *UnionValue:
		if x == nil {
			return UnionValue{}, false
		}
		return *x, true
	}
	return UnionValue{}, false
}
