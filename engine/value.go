package engine

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Value is a Brook script value.
type Value interface {
	// Type returns the script-visible type name, as reported in
	// TypeError messages.
	Type() string
	// Repr renders the value the way the script language would echo it.
	Repr() string
	// Truth reports the value's truthiness.
	Truth() bool
}

// Kwarg is one keyword argument of a call.
type Kwarg struct {
	Name  string
	Value Value
}

// NoneValue is the singleton none type. Use None.
type NoneValue struct{}

// None is the script's null value.
var None Value = NoneValue{}

func (NoneValue) Type() string { return "NoneType" }
func (NoneValue) Repr() string { return "None" }
func (NoneValue) Truth() bool  { return false }

// BoolValue is a script boolean.
type BoolValue bool

func (BoolValue) Type() string { return "bool" }
func (b BoolValue) Repr() string {
	if b {
		return "True"
	}
	return "False"
}
func (b BoolValue) Truth() bool { return bool(b) }

// IntValue is an integer that fits in 64 bits. Wider integers are held
// as BigIntValue; arithmetic normalizes back to IntValue when possible.
type IntValue int64

func (IntValue) Type() string   { return "int" }
func (i IntValue) Repr() string { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Truth() bool  { return i != 0 }

// BigIntValue is an integer outside the int64 range.
type BigIntValue struct {
	X *big.Int
}

func (BigIntValue) Type() string   { return "int" }
func (b BigIntValue) Repr() string { return b.X.String() }
func (b BigIntValue) Truth() bool  { return b.X.Sign() != 0 }

// normInt converts a big integer to IntValue when it fits.
func normInt(x *big.Int) Value {
	if x.IsInt64() {
		return IntValue(x.Int64())
	}
	return BigIntValue{X: x}
}

// FloatValue is a script float, including NaN and the infinities.
type FloatValue float64

func (FloatValue) Type() string { return "float" }
func (f FloatValue) Repr() string {
	x := float64(f)
	switch {
	case math.IsNaN(x):
		return "nan"
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(x, 'g', -1, 64)
	// Keep whole floats distinguishable from ints.
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
func (f FloatValue) Truth() bool { return f != 0 }

// StrValue is a script string.
type StrValue string

func (StrValue) Type() string { return "str" }
func (s StrValue) Repr() string {
	return "'" + strings.NewReplacer("\\", "\\\\", "'", "\\'", "\n", "\\n", "\t", "\\t").Replace(string(s)) + "'"
}
func (s StrValue) Truth() bool { return s != "" }

// BytesValue is a script bytes object.
type BytesValue []byte

func (BytesValue) Type() string { return "bytes" }
func (b BytesValue) Repr() string {
	var sb strings.Builder
	sb.WriteString("b'")
	for _, c := range b {
		if c >= 0x20 && c < 0x7f && c != '\'' && c != '\\' {
			sb.WriteByte(c)
		} else {
			sb.WriteString("\\x")
			const hex = "0123456789abcdef"
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&0xf])
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
func (b BytesValue) Truth() bool { return len(b) > 0 }

// ListValue is a mutable script list.
type ListValue struct {
	Items []Value
}

func (*ListValue) Type() string { return "list" }
func (l *ListValue) Repr() string {
	return "[" + joinReprs(l.Items) + "]"
}
func (l *ListValue) Truth() bool { return len(l.Items) > 0 }

// TupleValue is an immutable sequence.
type TupleValue struct {
	Items []Value
}

func (*TupleValue) Type() string { return "tuple" }
func (t *TupleValue) Repr() string {
	if len(t.Items) == 1 {
		return "(" + t.Items[0].Repr() + ",)"
	}
	return "(" + joinReprs(t.Items) + ")"
}
func (t *TupleValue) Truth() bool { return len(t.Items) > 0 }

// DictPair is one entry of a DictValue.
type DictPair struct {
	Key Value
	Val Value
}

// DictValue is a script dict preserving insertion order.
type DictValue struct {
	pairs []DictPair
}

// NewDict returns an empty dict.
func NewDict() *DictValue { return &DictValue{} }

func (*DictValue) Type() string { return "dict" }
func (d *DictValue) Repr() string {
	parts := make([]string, len(d.pairs))
	for i, p := range d.pairs {
		parts[i] = p.Key.Repr() + ": " + p.Val.Repr()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (d *DictValue) Truth() bool { return len(d.pairs) > 0 }

// Len returns the number of entries.
func (d *DictValue) Len() int { return len(d.pairs) }

// Pairs returns the entries in insertion order. The slice is shared.
func (d *DictValue) Pairs() []DictPair { return d.pairs }

// Get looks up a key by value equality.
func (d *DictValue) Get(key Value) (Value, bool) {
	for _, p := range d.pairs {
		if Equal(p.Key, key) {
			return p.Val, true
		}
	}
	return nil, false
}

// Set inserts or replaces an entry, preserving the original position on
// replacement.
func (d *DictValue) Set(key, val Value) {
	for i, p := range d.pairs {
		if Equal(p.Key, key) {
			d.pairs[i].Val = val
			return
		}
	}
	d.pairs = append(d.pairs, DictPair{Key: key, Val: val})
}

// SetValue is a script set. Membership uses value equality.
type SetValue struct {
	Items []Value
}

func (*SetValue) Type() string { return "set" }
func (s *SetValue) Repr() string {
	if len(s.Items) == 0 {
		return "set()"
	}
	return "{" + joinReprs(s.Items) + "}"
}
func (s *SetValue) Truth() bool { return len(s.Items) > 0 }

// Add inserts an item unless an equal one is present.
func (s *SetValue) Add(v Value) {
	for _, it := range s.Items {
		if Equal(it, v) {
			return
		}
	}
	s.Items = append(s.Items, v)
}

// EllipsisValue is the `...` literal.
type EllipsisValue struct{}

// Ellipsis is the singleton ellipsis value.
var Ellipsis Value = EllipsisValue{}

func (EllipsisValue) Type() string { return "ellipsis" }
func (EllipsisValue) Repr() string { return "Ellipsis" }
func (EllipsisValue) Truth() bool  { return true }

// FuncValue is a script-defined function closing over its defining scope.
type FuncValue struct {
	Name   string
	Params []Param
	Body   []Stmt
	Env    *Scope
	Async  bool
}

func (*FuncValue) Type() string   { return "function" }
func (f *FuncValue) Repr() string { return "<function " + f.Name + ">" }
func (*FuncValue) Truth() bool    { return true }

// builtinImpl is the implementation of a builtin function. span is the
// call site, used for traceback frames on raised errors.
type builtinImpl func(t *task, args []Value, span Span) (Value, *Exception)

// BuiltinValue is a native builtin function such as print or len.
type BuiltinValue struct {
	Name string
	fn   builtinImpl
}

func (*BuiltinValue) Type() string   { return "builtin_function_or_method" }
func (b *BuiltinValue) Repr() string { return "<built-in function " + b.Name + ">" }
func (*BuiltinValue) Truth() bool    { return true }

// ExcTypeValue is an exception class. Calling it constructs an ExcValue;
// naming it in an except clause matches exceptions of its kind.
type ExcTypeValue struct {
	Kind ExcKind
}

func (*ExcTypeValue) Type() string   { return "type" }
func (e *ExcTypeValue) Repr() string { return "<class '" + string(e.Kind) + "'>" }
func (*ExcTypeValue) Truth() bool    { return true }

// ExcValue is an exception instance as a first-class value: the operand
// of raise and the binding of `except ... as name`.
type ExcValue struct {
	Kind ExcKind
	Msg  string
}

func (e *ExcValue) Type() string { return string(e.Kind) }
func (e *ExcValue) Repr() string {
	return string(e.Kind) + "(" + (StrValue(e.Msg)).Repr() + ")"
}
func (*ExcValue) Truth() bool { return true }

// FutureValue is the placeholder produced when an external call is
// deferred. Awaiting an unresolved future suspends the script.
type FutureValue struct {
	ID       uint32
	Resolved bool
	Value    Value
	Err      *Exception
}

func (*FutureValue) Type() string { return "Future" }
func (f *FutureValue) Repr() string {
	state := "pending"
	if f.Resolved {
		state = "resolved"
	}
	return "<Future " + strconv.FormatUint(uint64(f.ID), 10) + " " + state + ">"
}
func (*FutureValue) Truth() bool { return true }

// gatherValue aggregates awaitables for a single await.
type gatherValue struct {
	items []Value
}

func (*gatherValue) Type() string { return "gather" }
func (g *gatherValue) Repr() string {
	return "<gather of " + strconv.Itoa(len(g.items)) + ">"
}
func (*gatherValue) Truth() bool { return true }

// coroutineValue is the unstarted invocation of an async function. It
// runs when awaited.
type coroutineValue struct {
	fn     *FuncValue
	args   []Value
	kwargs []Kwarg
	call   Span
}

func (*coroutineValue) Type() string   { return "coroutine" }
func (c *coroutineValue) Repr() string { return "<coroutine " + c.fn.Name + ">" }
func (*coroutineValue) Truth() bool    { return true }

// ExternalNS is a declared external namespace. Attribute access yields
// external functions whose calls are reported as method calls.
type ExternalNS struct {
	Name string
}

func (*ExternalNS) Type() string   { return "external" }
func (n *ExternalNS) Repr() string { return "<external '" + n.Name + "'>" }
func (*ExternalNS) Truth() bool    { return true }

// externalFunc is a callable resolved from the host's declared externals.
type externalFunc struct {
	name   string
	method bool
}

func (*externalFunc) Type() string   { return "external_function" }
func (f *externalFunc) Repr() string { return "<external function '" + f.name + "'>" }
func (*externalFunc) Truth() bool    { return true }

func joinReprs(items []Value) string {
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = v.Repr()
	}
	return strings.Join(parts, ", ")
}

// Str renders a value the way print and str() do: strings bare,
// exceptions as their message, everything else as Repr.
func Str(v Value) string {
	switch x := v.(type) {
	case StrValue:
		return string(x)
	case *ExcValue:
		return x.Msg
	default:
		return v.Repr()
	}
}

// Equal reports script value equality. Numeric values compare across
// int, big int, and float representations.
func Equal(a, b Value) bool {
	if an, aok := asFloat(a); aok {
		if bn, bok := asFloat(b); bok {
			if ai, aint := asBig(a); aint {
				if bi, bint := asBig(b); bint {
					return ai.Cmp(bi) == 0
				}
			}
			return an == bn
		}
		return false
	}
	switch x := a.(type) {
	case NoneValue:
		_, ok := b.(NoneValue)
		return ok
	case EllipsisValue:
		_, ok := b.(EllipsisValue)
		return ok
	case StrValue:
		y, ok := b.(StrValue)
		return ok && x == y
	case BytesValue:
		y, ok := b.(BytesValue)
		return ok && string(x) == string(y)
	case *ListValue:
		y, ok := b.(*ListValue)
		return ok && equalItems(x.Items, y.Items)
	case *TupleValue:
		y, ok := b.(*TupleValue)
		return ok && equalItems(x.Items, y.Items)
	case *SetValue:
		y, ok := b.(*SetValue)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for _, it := range x.Items {
			found := false
			for _, jt := range y.Items {
				if Equal(it, jt) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case *DictValue:
		y, ok := b.(*DictValue)
		if !ok || x.Len() != y.Len() {
			return false
		}
		for _, p := range x.pairs {
			v, ok := y.Get(p.Key)
			if !ok || !Equal(p.Val, v) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func equalItems(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// asFloat reports whether v is numeric (bool included) and its float
// reading. BigIntValue conversion may lose precision; Equal guards that
// case via asBig.
func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case BoolValue:
		if x {
			return 1, true
		}
		return 0, true
	case IntValue:
		return float64(x), true
	case BigIntValue:
		f, _ := new(big.Float).SetInt(x.X).Float64()
		return f, true
	case FloatValue:
		return float64(x), true
	}
	return 0, false
}

// asBig reports whether v is an exact integer (bool included) and its
// big integer reading.
func asBig(v Value) (*big.Int, bool) {
	switch x := v.(type) {
	case BoolValue:
		if x {
			return big.NewInt(1), true
		}
		return big.NewInt(0), true
	case IntValue:
		return big.NewInt(int64(x)), true
	case BigIntValue:
		return x.X, true
	}
	return nil, false
}
