// Package event defines the in-memory record model that flows between a
// source, the buffer, and a sink: the tagged Value/Event types described in
// spec.md §3, and the finalizer/batch-notifier pair that reports delivery
// outcomes back upstream.
package event

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBytes
	KindInteger
	KindFloat
	KindBoolean
	KindTimestamp
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBytes:
		return "bytes"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the value types a Log field can hold:
// Bytes, Integer, Float, Boolean, Timestamp, Null, Array, or Object (an
// ordered string-keyed mapping). Exactly one of the backing fields is
// meaningful for a given Kind; the zero Value is KindNull.
type Value struct {
	kind      Kind
	bytes     []byte
	integer   int64
	float     float64
	boolean   bool
	timestamp time.Time
	array     []Value
	object    *Object
}

// Object is an ordered string-keyed mapping, preserving insertion order for
// deterministic field-path traversal and encoding.
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject returns an empty, ordered Object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set inserts or overwrites key, appending it to the key order if new.
func (o *Object) Set(key string, v Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value at key, or (zero Value, false) if absent.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of fields.
func (o *Object) Len() int { return len(o.keys) }

func NullValue() Value                { return Value{kind: KindNull} }
func BytesValue(b []byte) Value       { return Value{kind: KindBytes, bytes: b} }
func StringValue(s string) Value      { return Value{kind: KindBytes, bytes: []byte(s)} }
func IntegerValue(i int64) Value      { return Value{kind: KindInteger, integer: i} }
func FloatValue(f float64) Value      { return Value{kind: KindFloat, float: f} }
func BooleanValue(b bool) Value       { return Value{kind: KindBoolean, boolean: b} }
func TimestampValue(t time.Time) Value { return Value{kind: KindTimestamp, timestamp: t} }
func ArrayValue(vs []Value) Value     { return Value{kind: KindArray, array: vs} }
func ObjectValue(o *Object) Value     { return Value{kind: KindObject, object: o} }

// Kind returns the Value's variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.bytes, true
}

func (v Value) Integer() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.integer, true
}

func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.float, true
}

func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBoolean {
		return false, false
	}
	return v.boolean, true
}

func (v Value) Timestamp() (time.Time, bool) {
	if v.kind != KindTimestamp {
		return time.Time{}, false
	}
	return v.timestamp, true
}

func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.array, true
}

func (v Value) Object() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.object, true
}

// pathSegment is one step of a parsed field path: either a named object key
// or an array index.
type pathSegment struct {
	key      string
	index    int
	isIndex  bool
}

// parsePath splits a dot/bracket path like "a.b[2].c" into segments.
func parsePath(path string) ([]pathSegment, error) {
	var segs []pathSegment
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, pathSegment{key: cur.String()})
			cur.Reset()
		}
	}

	i := 0
	for i < len(path) {
		switch c := path[i]; c {
		case '.':
			flush()
			i++
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("event: unterminated '[' in path %q", path)
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("event: invalid array index %q in path %q", idxStr, path)
			}
			segs = append(segs, pathSegment{index: idx, isIndex: true})
			i += end + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()
	return segs, nil
}

// GetPath resolves a dot/bracket field path (e.g. "request.headers[0].name")
// against an Object, per spec.md §3's field-path grammar.
func GetPath(root *Object, path string) (Value, bool) {
	segs, err := parsePath(path)
	if err != nil || len(segs) == 0 {
		return Value{}, false
	}

	cur := ObjectValue(root)
	for _, seg := range segs {
		if seg.isIndex {
			arr, ok := cur.Array()
			if !ok || seg.index < 0 || seg.index >= len(arr) {
				return Value{}, false
			}
			cur = arr[seg.index]
			continue
		}
		obj, ok := cur.Object()
		if !ok {
			return Value{}, false
		}
		v, ok := obj.Get(seg.key)
		if !ok {
			return Value{}, false
		}
		cur = v
	}
	return cur, true
}

// SetPath assigns value at a dot/bracket field path, creating intermediate
// objects as needed. Array index segments are not supported: SetPath returns
// an error for any path that contains one.
func SetPath(root *Object, path string, value Value) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return fmt.Errorf("event: empty field path")
	}

	obj := root
	for i, seg := range segs {
		last := i == len(segs)-1
		if seg.isIndex {
			return fmt.Errorf("event: SetPath does not support array index segments in %q", path)
		}
		if last {
			obj.Set(seg.key, value)
			return nil
		}
		next, ok := obj.Get(seg.key)
		if !ok || next.Kind() != KindObject {
			next = ObjectValue(NewObject())
			obj.Set(seg.key, next)
		}
		child, _ := next.Object()
		obj = child
	}
	return nil
}
