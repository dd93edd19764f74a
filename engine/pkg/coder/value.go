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
	"sort"

	"github.com/pingcap/dataflow-engine/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type valueKind uint8

// Kinds are written to the wire, append only.
const (
	kindNil valueKind = iota
	kindBool
	kindInt
	kindInt8
	kindInt16
	kindInt32
	kindInt64
	kindUint
	kindUint8
	kindUint16
	kindUint32
	kindUint64
	kindFloat32
	kindFloat64
	kindString
	kindBytes
	kindFloat64s
	kindInt64s
	kindInts
	kindStrings
	kindSlice
	kindMap
	kindUnion
)

// ValueCoder encodes a value together with its Go type, so that decoding
// gives back a value of the same type: an int stays an int and a
// []float64 stays a []float64. Slices of interface{} and
// map[string]interface{} are encoded recursively. Other types are
// rejected.
type ValueCoder struct{}

// Encode implements Coder.
func (c ValueCoder) Encode(enc *msgpack.Encoder, v interface{}) error {
	if err := c.encode(enc, v); err != nil {
		if errors.Is(err, errors.ErrSerialization) {
			return err
		}
		return errors.WrapError(errors.ErrSerialization, err, fmt.Sprintf("%T", v))
	}
	return nil
}

func (c ValueCoder) encode(enc *msgpack.Encoder, v interface{}) error {
	kind := func(k valueKind) error {
		return enc.EncodeUint8(uint8(k))
	}
	switch x := v.(type) {
	case nil:
		return kind(kindNil)
	case bool:
		if err := kind(kindBool); err != nil {
			return err
		}
		return enc.EncodeBool(x)
	case int:
		if err := kind(kindInt); err != nil {
			return err
		}
		return enc.EncodeInt(int64(x))
	case int8:
		if err := kind(kindInt8); err != nil {
			return err
		}
		return enc.EncodeInt(int64(x))
	case int16:
		if err := kind(kindInt16); err != nil {
			return err
		}
		return enc.EncodeInt(int64(x))
	case int32:
		if err := kind(kindInt32); err != nil {
			return err
		}
		return enc.EncodeInt(int64(x))
	case int64:
		if err := kind(kindInt64); err != nil {
			return err
		}
		return enc.EncodeInt(x)
	case uint:
		if err := kind(kindUint); err != nil {
			return err
		}
		return enc.EncodeUint(uint64(x))
	case uint8:
		if err := kind(kindUint8); err != nil {
			return err
		}
		return enc.EncodeUint(uint64(x))
	case uint16:
		if err := kind(kindUint16); err != nil {
			return err
		}
		return enc.EncodeUint(uint64(x))
	case uint32:
		if err := kind(kindUint32); err != nil {
			return err
		}
		return enc.EncodeUint(uint64(x))
	case uint64:
		if err := kind(kindUint64); err != nil {
			return err
		}
		return enc.EncodeUint(x)
	case float32:
		if err := kind(kindFloat32); err != nil {
			return err
		}
		return enc.EncodeFloat32(x)
	case float64:
		if err := kind(kindFloat64); err != nil {
			return err
		}
		return enc.EncodeFloat64(x)
	case string:
		if err := kind(kindString); err != nil {
			return err
		}
		return enc.EncodeString(x)
	case []byte:
		if err := kind(kindBytes); err != nil {
			return err
		}
		return enc.EncodeBytes(x)
	case []float64:
		if err := kind(kindFloat64s); err != nil {
			return err
		}
		return Float64sCoder{}.Encode(enc, x)
	case []int64:
		if err := kind(kindInt64s); err != nil {
			return err
		}
		if x == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, n := range x {
			if err := enc.EncodeInt(n); err != nil {
				return err
			}
		}
		return nil
	case []int:
		if err := kind(kindInts); err != nil {
			return err
		}
		if x == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, n := range x {
			if err := enc.EncodeInt(int64(n)); err != nil {
				return err
			}
		}
		return nil
	case []string:
		if err := kind(kindStrings); err != nil {
			return err
		}
		if x == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, s := range x {
			if err := enc.EncodeString(s); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		if err := kind(kindSlice); err != nil {
			return err
		}
		if x == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, item := range x {
			if err := c.encode(enc, item); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		if err := kind(kindMap); err != nil {
			return err
		}
		if x == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeMapLen(len(x)); err != nil {
			return err
		}
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := c.encode(enc, x[k]); err != nil {
				return err
			}
		}
		return nil
	case UnionValue:
		if err := kind(kindUnion); err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(x.Tag)); err != nil {
			return err
		}
		return c.encode(enc, x.Value)
	case *UnionValue:
		if x == nil {
			return kind(kindNil)
		}
		return c.encode(enc, *x)
	}
	return errors.ErrSerialization.GenWithStackByArgs(fmt.Sprintf("unsupported value type %T", v))
}

// Decode implements Coder.
func (c ValueCoder) Decode(dec *msgpack.Decoder) (interface{}, error) {
	v, err := c.decode(dec)
	if err != nil {
		if errors.Is(err, errors.ErrDeserialization) {
			return nil, err
		}
		return nil, errors.WrapError(errors.ErrDeserialization, err, "typed value")
	}
	return v, nil
}

func (c ValueCoder) decode(dec *msgpack.Decoder) (interface{}, error) {
	k, err := dec.DecodeUint8()
	if err != nil {
		return nil, err
	}
	switch valueKind(k) {
	case kindNil:
		return nil, nil
	case kindBool:
		return dec.DecodeBool()
	case kindInt:
		return dec.DecodeInt()
	case kindInt8:
		return dec.DecodeInt8()
	case kindInt16:
		return dec.DecodeInt16()
	case kindInt32:
		return dec.DecodeInt32()
	case kindInt64:
		return dec.DecodeInt64()
	case kindUint:
		return dec.DecodeUint()
	case kindUint8:
		return dec.DecodeUint8()
	case kindUint16:
		return dec.DecodeUint16()
	case kindUint32:
		return dec.DecodeUint32()
	case kindUint64:
		return dec.DecodeUint64()
	case kindFloat32:
		return dec.DecodeFloat32()
	case kindFloat64:
		return dec.DecodeFloat64()
	case kindString:
		return dec.DecodeString()
	case kindBytes:
		return dec.DecodeBytes()
	case kindFloat64s:
		return Float64sCoder{}.Decode(dec)
	case kindInt64s:
		n, err := dec.DecodeArrayLen()
		if err != nil || n < 0 {
			return []int64(nil), err
		}
		out := make([]int64, n)
		for i := range out {
			if out[i], err = dec.DecodeInt64(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case kindInts:
		n, err := dec.DecodeArrayLen()
		if err != nil || n < 0 {
			return []int(nil), err
		}
		out := make([]int, n)
		for i := range out {
			if out[i], err = dec.DecodeInt(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case kindStrings:
		n, err := dec.DecodeArrayLen()
		if err != nil || n < 0 {
			return []string(nil), err
		}
		out := make([]string, n)
		for i := range out {
			if out[i], err = dec.DecodeString(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case kindSlice:
		n, err := dec.DecodeArrayLen()
		if err != nil || n < 0 {
			return []interface{}(nil), err
		}
		out := make([]interface{}, n)
		for i := range out {
			if out[i], err = c.decode(dec); err != nil {
				return nil, err
			}
		}
		return out, nil
	case kindMap:
		n, err := dec.DecodeMapLen()
		if err != nil || n < 0 {
			return map[string]interface{}(nil), err
		}
		out := make(map[string]interface{}, n)
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			if out[key], err = c.decode(dec); err != nil {
				return nil, err
			}
		}
		return out, nil
	case kindUnion:
		tag, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}
		payload, err := c.decode(dec)
		if err != nil {
			return nil, err
		}
		return UnionValue{Tag: tag, Value: payload}, nil
	}
	return nil, errors.ErrDeserialization.GenWithStackByArgs(fmt.Sprintf("unknown value kind %d", k))
}
