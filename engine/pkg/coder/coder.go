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

// Element is one record of intermediate data. Key is nil for records that
// are not keyed.
type Element struct {
	Key   interface{}
	Value interface{}
}

// UnionValue is the value of a record in a multiplexed side-output stream.
// Tag is the index of the branch the payload belongs to.
type UnionValue struct {
	Tag   int
	Value interface{}
}

// Coder encodes and decodes a single value.
type Coder interface {
	Encode(enc *msgpack.Encoder, v interface{}) error
	Decode(dec *msgpack.Decoder) (interface{}, error)
}

// ElementCoder is the generic element codec. Key and value are encoded
// with ValueCoder, so a decoded element has the same Go types as the
// encoded one.
type ElementCoder struct{}

// Encode implements Coder.
func (ElementCoder) Encode(enc *msgpack.Encoder, v interface{}) error {
	elem, ok := v.(Element)
	if !ok {
		return errors.ErrSerialization.GenWithStackByArgs(fmt.Sprintf("%T is not an element", v))
	}
	if err := (ValueCoder{}).Encode(enc, elem.Key); err != nil {
		return err
	}
	if err := (ValueCoder{}).Encode(enc, elem.Value); err != nil {
		return err
	}
	return nil
}

// Decode implements Coder.
func (ElementCoder) Decode(dec *msgpack.Decoder) (interface{}, error) {
	key, err := (ValueCoder{}).Decode(dec)
	if err != nil {
		return nil, err
	}
	value, err := (ValueCoder{}).Decode(dec)
	if err != nil {
		return nil, err
	}
	return Element{Key: key, Value: value}, nil
}

// Int64Coder encodes an int64 as a variable length msgpack int. Other
// integer types are rejected, they would decode as int64.
type Int64Coder struct{}

// Encode implements Coder.
func (Int64Coder) Encode(enc *msgpack.Encoder, v interface{}) error {
	n, ok := v.(int64)
	if !ok {
		return errors.ErrSerialization.GenWithStackByArgs(fmt.Sprintf("%T is not int64", v))
	}
	return errors.WrapError(errors.ErrSerialization, enc.EncodeInt(n), "int64")
}

// Decode implements Coder.
func (Int64Coder) Decode(dec *msgpack.Decoder) (interface{}, error) {
	n, err := dec.DecodeInt64()
	if err != nil {
		return nil, errors.WrapError(errors.ErrDeserialization, err, "int64")
	}
	return n, nil
}

// Float64sCoder encodes a []float64 as a fixed-type msgpack array.
type Float64sCoder struct{}

// Encode implements Coder.
func (Float64sCoder) Encode(enc *msgpack.Encoder, v interface{}) error {
	fs, ok := v.([]float64)
	if !ok {
		return errors.ErrSerialization.GenWithStackByArgs(fmt.Sprintf("%T is not []float64", v))
	}
	if fs == nil {
		return errors.WrapError(errors.ErrSerialization, enc.EncodeNil(), "float64 array")
	}
	if err := enc.EncodeArrayLen(len(fs)); err != nil {
		return errors.WrapError(errors.ErrSerialization, err, "float64 array")
	}
	for _, f := range fs {
		if err := enc.EncodeFloat64(f); err != nil {
			return errors.WrapError(errors.ErrSerialization, err, "float64 array")
		}
	}
	return nil
}

// Decode implements Coder.
func (Float64sCoder) Decode(dec *msgpack.Decoder) (interface{}, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, errors.WrapError(errors.ErrDeserialization, err, "float64 array")
	}
	if n < 0 {
		return []float64(nil), nil
	}
	fs := make([]float64, n)
	for i := range fs {
		if fs[i], err = dec.DecodeFloat64(); err != nil {
			return nil, errors.WrapError(errors.ErrDeserialization, err, "float64 array")
		}
	}
	return fs, nil
}
