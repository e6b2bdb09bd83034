package tfrecord

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Kind identifies which list a Feature holds.
type Kind int

// Feature kinds, numbered like the oneof fields of tf.train.Feature.
const (
	KindNone Kind = iota
	KindBytes
	KindFloat
	KindInt64
)

// Feature is a tf.train.Feature: exactly one of a bytes, float or int64 list.
type Feature struct {
	Kind      Kind
	BytesList [][]byte
	FloatList []float32
	Int64List []int64
}

// BytesFeature returns a bytes list feature.
func BytesFeature(values ...[]byte) Feature {
	return Feature{Kind: KindBytes, BytesList: values}
}

// StringFeature returns a bytes list feature holding the given strings.
func StringFeature(values ...string) Feature {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return Feature{Kind: KindBytes, BytesList: out}
}

// FloatFeature returns a float list feature.
func FloatFeature(values ...float32) Feature {
	return Feature{Kind: KindFloat, FloatList: values}
}

// Int64Feature returns an int64 list feature.
func Int64Feature(values ...int64) Feature {
	return Feature{Kind: KindInt64, Int64List: values}
}

// Example is a tf.train.Example.
type Example struct {
	Features map[string]Feature
}

// NewExample returns an empty Example.
func NewExample() *Example {
	return &Example{Features: map[string]Feature{}}
}

// Set stores f under key.
func (e *Example) Set(key string, f Feature) {
	e.Features[key] = f
}

func (e *Example) get(key string, kind Kind) (Feature, error) {
	f, ok := e.Features[key]
	if !ok {
		return Feature{}, errors.Errorf("feature %q missing", key)
	}
	if f.Kind != kind {
		return Feature{}, errors.Errorf("feature %q has kind %d, expected %d", key, f.Kind, kind)
	}
	return f, nil
}

// Bytes returns the bytes list stored under key.
func (e *Example) Bytes(key string) ([][]byte, error) {
	f, err := e.get(key, KindBytes)
	return f.BytesList, err
}

// Strings returns the bytes list stored under key as strings.
func (e *Example) Strings(key string) ([]string, error) {
	f, err := e.get(key, KindBytes)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(f.BytesList))
	for i, b := range f.BytesList {
		out[i] = string(b)
	}
	return out, nil
}

// Floats returns the float list stored under key.
func (e *Example) Floats(key string) ([]float32, error) {
	f, err := e.get(key, KindFloat)
	return f.FloatList, err
}

// Int64s returns the int64 list stored under key.
func (e *Example) Int64s(key string) ([]int64, error) {
	f, err := e.get(key, KindInt64)
	return f.Int64List, err
}

// Int64 returns the single int64 stored under key.
func (e *Example) Int64(key string) (int64, error) {
	vals, err := e.Int64s(key)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, errors.Errorf("feature %q has %d values, expected 1", key, len(vals))
	}
	return vals[0], nil
}

// String returns the single string stored under key.
func (e *Example) String(key string) (string, error) {
	vals, err := e.Strings(key)
	if err != nil {
		return "", err
	}
	if len(vals) != 1 {
		return "", errors.Errorf("feature %q has %d values, expected 1", key, len(vals))
	}
	return vals[0], nil
}

// Marshal encodes e in protobuf wire format. Keys are written in sorted order so the output is
// deterministic.
func (e *Example) Marshal() []byte {
	keys := make([]string, 0, len(e.Features))
	for k := range e.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, e.Features[k].marshal())

		features = protowire.AppendTag(features, 1, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	var out []byte
	out = protowire.AppendTag(out, 1, protowire.BytesType)
	out = protowire.AppendBytes(out, features)
	return out
}

func (f Feature) marshal() []byte {
	var list []byte
	switch f.Kind {
	case KindBytes:
		for _, v := range f.BytesList {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, v)
		}
	case KindFloat:
		var packed []byte
		for _, v := range f.FloatList {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		if len(packed) > 0 {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	case KindInt64:
		var packed []byte
		for _, v := range f.Int64List {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		if len(packed) > 0 {
			list = protowire.AppendTag(list, 1, protowire.BytesType)
			list = protowire.AppendBytes(list, packed)
		}
	case KindNone:
		return nil
	}
	var out []byte
	out = protowire.AppendTag(out, protowire.Number(f.Kind), protowire.BytesType)
	out = protowire.AppendBytes(out, list)
	return out
}

// UnmarshalExample decodes a tf.train.Example. Unknown fields are skipped.
func UnmarshalExample(b []byte) (*Example, error) {
	e := NewExample()
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num != 1 || typ != protowire.BytesType {
			return nil
		}
		return walk(val, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != 1 || typ != protowire.BytesType {
				return nil
			}
			key, f, err := unmarshalEntry(entry)
			if err != nil {
				return err
			}
			e.Features[key] = f
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "decoding tf.train.Example")
	}
	return e, nil
}

func unmarshalEntry(b []byte) (string, Feature, error) {
	var key string
	var f Feature
	err := walk(b, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case 1:
			key = string(val)
		case 2:
			var err error
			f, err = unmarshalFeature(val)
			return err
		}
		return nil
	})
	return key, f, err
}

func unmarshalFeature(b []byte) (Feature, error) {
	var f Feature
	err := walk(b, func(num protowire.Number, typ protowire.Type, list []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch Kind(num) {
		case KindBytes:
			f = Feature{Kind: KindBytes}
			return walk(list, func(num protowire.Number, typ protowire.Type, val []byte) error {
				if num == 1 && typ == protowire.BytesType {
					f.BytesList = append(f.BytesList, append([]byte(nil), val...))
				}
				return nil
			})
		case KindFloat:
			f = Feature{Kind: KindFloat}
			return walkScalars(list, func(typ protowire.Type, raw []byte) (int, error) {
				if typ != protowire.Fixed32Type {
					return 0, errors.Errorf("float list value has wire type %d", typ)
				}
				v, n := protowire.ConsumeFixed32(raw)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				f.FloatList = append(f.FloatList, math.Float32frombits(v))
				return n, nil
			}, protowire.Fixed32Type)
		case KindInt64:
			f = Feature{Kind: KindInt64}
			return walkScalars(list, func(typ protowire.Type, raw []byte) (int, error) {
				if typ != protowire.VarintType {
					return 0, errors.Errorf("int64 list value has wire type %d", typ)
				}
				v, n := protowire.ConsumeVarint(raw)
				if n < 0 {
					return 0, protowire.ParseError(n)
				}
				f.Int64List = append(f.Int64List, int64(v))
				return n, nil
			}, protowire.VarintType)
		case KindNone:
		}
		return nil
	})
	return f, err
}

// walk calls fn for every length delimited field of b and skips the others.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, val []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		val, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, typ, val); err != nil {
			return err
		}
	}
	return nil
}

// walkScalars decodes field 1 of a numeric list message, accepting both packed and unpacked
// encodings. consume decodes one scalar of the given wire type and returns its length.
func walkScalars(
	b []byte,
	consume func(typ protowire.Type, raw []byte) (int, error),
	scalarType protowire.Type,
) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			for len(packed) > 0 {
				m, err := consume(scalarType, packed)
				if err != nil {
					return err
				}
				packed = packed[m:]
			}
		case num == 1:
			m, err := consume(typ, b)
			if err != nil {
				return err
			}
			b = b[m:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
