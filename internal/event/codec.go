package event

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// wireValue and wireObject mirror Value/Object in a form gob can encode
// directly; Value's accessor methods keep its real fields unexported, so
// the codec goes through dedicated wire structs rather than exposing those
// fields to the encoding package.
type wireValue struct {
	Kind      Kind
	Bytes     []byte
	Integer   int64
	Float     float64
	Boolean   bool
	Timestamp time.Time
	Array     []wireValue
	Object    *wireObject
}

type wireObject struct {
	Keys   []string
	Values map[string]wireValue
}

type wireEvent struct {
	Class     Class
	Timestamp time.Time
	Fields    *wireObject

	HasMetric bool
	Metric    Metric
	HasTrace  bool
	Trace     Trace
}

func toWireValue(v Value) wireValue {
	w := wireValue{Kind: v.kind}
	switch v.kind {
	case KindBytes:
		w.Bytes = v.bytes
	case KindInteger:
		w.Integer = v.integer
	case KindFloat:
		w.Float = v.float
	case KindBoolean:
		w.Boolean = v.boolean
	case KindTimestamp:
		w.Timestamp = v.timestamp
	case KindArray:
		w.Array = make([]wireValue, len(v.array))
		for i, e := range v.array {
			w.Array[i] = toWireValue(e)
		}
	case KindObject:
		w.Object = toWireObject(v.object)
	}
	return w
}

func fromWireValue(w wireValue) Value {
	switch w.Kind {
	case KindBytes:
		return BytesValue(w.Bytes)
	case KindInteger:
		return IntegerValue(w.Integer)
	case KindFloat:
		return FloatValue(w.Float)
	case KindBoolean:
		return BooleanValue(w.Boolean)
	case KindTimestamp:
		return TimestampValue(w.Timestamp)
	case KindArray:
		vs := make([]Value, len(w.Array))
		for i, e := range w.Array {
			vs[i] = fromWireValue(e)
		}
		return ArrayValue(vs)
	case KindObject:
		return ObjectValue(fromWireObject(w.Object))
	default:
		return NullValue()
	}
}

func toWireObject(o *Object) *wireObject {
	if o == nil {
		return nil
	}
	w := &wireObject{Keys: append([]string(nil), o.keys...), Values: make(map[string]wireValue, len(o.keys))}
	for _, k := range o.keys {
		w.Values[k] = toWireValue(o.values[k])
	}
	return w
}

func fromWireObject(w *wireObject) *Object {
	o := NewObject()
	if w == nil {
		return o
	}
	for _, k := range w.Keys {
		o.Set(k, fromWireValue(w.Values[k]))
	}
	return o
}

// Encode serializes ev for storage in a disk buffer record. It is an
// internal-only wire format: the codec interface exercised by real source
// and sink protocols (syslog, GELF, JSON, ...) is outside this module's
// scope, so Encode/Decode exist purely to make an Event roundtrip through
// the disk WAL's byte-oriented payload field.
func Encode(ev *Event) ([]byte, error) {
	w := wireEvent{
		Class:     ev.Class,
		Timestamp: ev.Timestamp,
		Fields:    toWireObject(ev.Fields),
	}
	if ev.Metric != nil {
		w.HasMetric = true
		w.Metric = *ev.Metric
	}
	if ev.Trace != nil {
		w.HasTrace = true
		w.Trace = *ev.Trace
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&w); err != nil {
		return nil, fmt.Errorf("event: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(payload []byte) (*Event, error) {
	var w wireEvent
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&w); err != nil {
		return nil, fmt.Errorf("event: decode: %w", err)
	}
	ev := &Event{
		Class:     w.Class,
		Timestamp: w.Timestamp,
		Fields:    fromWireObject(w.Fields),
	}
	if w.HasMetric {
		m := w.Metric
		ev.Metric = &m
	}
	if w.HasTrace {
		tr := w.Trace
		ev.Trace = &tr
	}
	return ev, nil
}
