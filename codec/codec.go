// Package codec transcodes script values and exceptions to and from
// the JSON shapes crossing the embedding boundary.
//
// Encoding is total: every script value has a JSON image, with opaque
// values (functions, futures) degrading to their display string.
// Decoding accepts any JSON document and yields the natural script
// value, reading integral numbers as ints.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"

	"github.com/brooklang/brook/engine"
)

// Encode maps a script value to its JSON-marshalable image.
func Encode(v engine.Value) any {
	switch x := v.(type) {
	case engine.NoneValue:
		return nil
	case engine.BoolValue:
		return bool(x)
	case engine.IntValue:
		return int64(x)
	case engine.BigIntValue:
		if x.X.IsInt64() {
			return x.X.Int64()
		}
		// Out-of-range integers travel as decimal strings rather than
		// losing precision to float64.
		return x.X.String()
	case engine.FloatValue:
		f := float64(x)
		switch {
		case math.IsNaN(f):
			return "NaN"
		case math.IsInf(f, 1):
			return "Infinity"
		case math.IsInf(f, -1):
			return "-Infinity"
		}
		return f
	case engine.StrValue:
		return string(x)
	case engine.BytesValue:
		out := make([]any, len(x))
		for i, b := range x {
			out[i] = int64(b)
		}
		return out
	case *engine.ListValue:
		return encodeItems(x.Items)
	case *engine.TupleValue:
		return encodeItems(x.Items)
	case *engine.SetValue:
		return encodeItems(x.Items)
	case *engine.DictValue:
		return encodeDict(x)
	case engine.EllipsisValue:
		return "..."
	default:
		return v.Repr()
	}
}

func encodeItems(items []engine.Value) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = Encode(it)
	}
	return out
}

// encodeDict produces a JSON object when every key is a string, and a
// list of [key, value] pairs otherwise.
func encodeDict(d *engine.DictValue) any {
	allStr := true
	for _, p := range d.Pairs() {
		if _, ok := p.Key.(engine.StrValue); !ok {
			allStr = false
			break
		}
	}
	if allStr {
		out := make(map[string]any, d.Len())
		for _, p := range d.Pairs() {
			out[string(p.Key.(engine.StrValue))] = Encode(p.Val)
		}
		return out
	}
	out := make([]any, 0, d.Len())
	for _, p := range d.Pairs() {
		out = append(out, []any{Encode(p.Key), Encode(p.Val)})
	}
	return out
}

// EncodeJSON renders a script value as a JSON document.
func EncodeJSON(v engine.Value) ([]byte, error) {
	return json.Marshal(Encode(v))
}

// DecodeJSON parses a JSON document into a script value. Numbers
// without a fractional part decode as ints of any width; objects decode
// as dicts with keys in sorted order.
func DecodeJSON(data []byte) (engine.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data")
	}
	return fromRaw(raw)
}

func fromRaw(raw any) (engine.Value, error) {
	switch x := raw.(type) {
	case nil:
		return engine.None, nil
	case bool:
		return engine.BoolValue(x), nil
	case json.Number:
		return decodeNumber(x)
	case string:
		return engine.StrValue(x), nil
	case []any:
		items := make([]engine.Value, len(x))
		for i, it := range x {
			v, err := fromRaw(it)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return &engine.ListValue{Items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := engine.NewDict()
		for _, k := range keys {
			v, err := fromRaw(x[k])
			if err != nil {
				return nil, err
			}
			d.Set(engine.StrValue(k), v)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", raw)
	}
}

func decodeNumber(n json.Number) (engine.Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return engine.IntValue(i), nil
		}
		if b, ok := new(big.Int).SetString(s, 10); ok {
			return engine.BigIntValue{X: b}, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return engine.FloatValue(f), nil
}
