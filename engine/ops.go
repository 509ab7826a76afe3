package engine

import (
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Rough per-value allocation estimates used for memory accounting.
const (
	valueCost = 48
	frameCost = 256
)

// asIndex extracts an int64 index from an int or bool value.
func asIndex(v Value) (int64, bool) {
	switch x := v.(type) {
	case IntValue:
		return int64(x), true
	case BoolValue:
		if x {
			return 1, true
		}
		return 0, true
	case BigIntValue:
		if x.X.IsInt64() {
			return x.X.Int64(), true
		}
	}
	return 0, false
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case BoolValue, IntValue, BigIntValue, FloatValue:
		return true
	}
	return false
}

func isFloat(v Value) bool {
	_, ok := v.(FloatValue)
	return ok
}

func (t *task) unaryOp(op string, x Value, site Span) (Value, *Exception) {
	if op == "not" {
		return BoolValue(!x.Truth()), nil
	}
	if !isNumeric(x) {
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("bad operand type for unary %s: '%s'", op, typeName(x)), site)
	}
	if op == "+" {
		if b, ok := x.(BoolValue); ok {
			if b {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		}
		return x, nil
	}
	if f, ok := x.(FloatValue); ok {
		return FloatValue(-float64(f)), nil
	}
	i, _ := asBig(x)
	return normInt(new(big.Int).Neg(i)), nil
}

func (t *task) binaryOp(op string, x, y Value, site Span) (Value, *Exception) {
	if isNumeric(x) && isNumeric(y) {
		return t.numericOp(op, x, y, site)
	}

	switch op {
	case "+":
		switch a := x.(type) {
		case StrValue:
			if b, ok := y.(StrValue); ok {
				if exc := t.tr.alloc(uint64(len(a) + len(b))); exc != nil {
					return nil, t.attach(exc, site)
				}
				return a + b, nil
			}
		case BytesValue:
			if b, ok := y.(BytesValue); ok {
				if exc := t.tr.alloc(uint64(len(a) + len(b))); exc != nil {
					return nil, t.attach(exc, site)
				}
				out := make([]byte, 0, len(a)+len(b))
				out = append(out, a...)
				out = append(out, b...)
				return BytesValue(out), nil
			}
		case *ListValue:
			if b, ok := y.(*ListValue); ok {
				if exc := t.tr.alloc(valueCost * uint64(len(a.Items)+len(b.Items)+1)); exc != nil {
					return nil, t.attach(exc, site)
				}
				out := make([]Value, 0, len(a.Items)+len(b.Items))
				out = append(out, a.Items...)
				out = append(out, b.Items...)
				return &ListValue{Items: out}, nil
			}
		case *TupleValue:
			if b, ok := y.(*TupleValue); ok {
				out := make([]Value, 0, len(a.Items)+len(b.Items))
				out = append(out, a.Items...)
				out = append(out, b.Items...)
				return &TupleValue{Items: out}, nil
			}
		}

	case "*":
		if s, n, ok := repeatOperands(x, y); ok {
			switch seq := s.(type) {
			case StrValue:
				if n < 0 {
					n = 0
				}
				if exc := t.tr.alloc(uint64(len(seq)) * uint64(n)); exc != nil {
					return nil, t.attach(exc, site)
				}
				return StrValue(strings.Repeat(string(seq), int(n))), nil
			case *ListValue:
				if n < 0 {
					n = 0
				}
				if exc := t.tr.alloc(valueCost * uint64(len(seq.Items)) * uint64(n)); exc != nil {
					return nil, t.attach(exc, site)
				}
				out := make([]Value, 0, len(seq.Items)*int(n))
				for i := int64(0); i < n; i++ {
					out = append(out, seq.Items...)
				}
				return &ListValue{Items: out}, nil
			}
		}
	}

	return nil, t.raiseAt(ExcTypeError,
		fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(x), typeName(y)), site)
}

// repeatOperands normalizes str*int and int*list style operands.
func repeatOperands(x, y Value) (Value, int64, bool) {
	if n, ok := asIndex(y); ok {
		switch x.(type) {
		case StrValue, *ListValue:
			return x, n, true
		}
	}
	if n, ok := asIndex(x); ok {
		switch y.(type) {
		case StrValue, *ListValue:
			return y, n, true
		}
	}
	return nil, 0, false
}

func (t *task) numericOp(op string, x, y Value, site Span) (Value, *Exception) {
	if isFloat(x) || isFloat(y) || op == "/" {
		a, _ := asFloat(x)
		b, _ := asFloat(y)
		return t.floatOp(op, a, b, isFloat(x) || isFloat(y), site)
	}
	a, _ := asBig(x)
	b, _ := asBig(y)
	switch op {
	case "+":
		return normInt(new(big.Int).Add(a, b)), nil
	case "-":
		return normInt(new(big.Int).Sub(a, b)), nil
	case "*":
		if exc := t.tr.alloc(uint64((a.BitLen() + b.BitLen()) / 8)); exc != nil {
			return nil, t.attach(exc, site)
		}
		return normInt(new(big.Int).Mul(a, b)), nil
	case "//":
		if b.Sign() == 0 {
			return nil, t.raiseAt(ExcZeroDivisionError, "integer division or modulo by zero", site)
		}
		q, _ := floorDivMod(a, b)
		return normInt(q), nil
	case "%":
		if b.Sign() == 0 {
			return nil, t.raiseAt(ExcZeroDivisionError, "integer division or modulo by zero", site)
		}
		_, m := floorDivMod(a, b)
		return normInt(m), nil
	case "**":
		if b.Sign() < 0 {
			af, _ := a.Float64()
			bf, _ := b.Float64()
			return FloatValue(math.Pow(af, bf)), nil
		}
		if !b.IsInt64() {
			return nil, t.raiseAt(ExcMemoryError, "memory limit exceeded", site)
		}
		// Charge the estimated result size before computing.
		bits := uint64(a.BitLen()) * uint64(b.Int64())
		if exc := t.tr.alloc(bits / 8); exc != nil {
			return nil, t.attach(exc, site)
		}
		return normInt(new(big.Int).Exp(a, b, nil)), nil
	}
	return nil, t.raiseAt(ExcTypeError,
		fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(x), typeName(y)), site)
}

// floatOp evaluates op on floats. trueFloat distinguishes float zero
// division messages from integer ones.
func (t *task) floatOp(op string, a, b float64, trueFloat bool, site Span) (Value, *Exception) {
	switch op {
	case "+":
		return FloatValue(a + b), nil
	case "-":
		return FloatValue(a - b), nil
	case "*":
		return FloatValue(a * b), nil
	case "/":
		if b == 0 {
			msg := "division by zero"
			if trueFloat {
				msg = "float division by zero"
			}
			return nil, t.raiseAt(ExcZeroDivisionError, msg, site)
		}
		return FloatValue(a / b), nil
	case "//":
		if b == 0 {
			return nil, t.raiseAt(ExcZeroDivisionError, "float floor division by zero", site)
		}
		return FloatValue(math.Floor(a / b)), nil
	case "%":
		if b == 0 {
			return nil, t.raiseAt(ExcZeroDivisionError, "float modulo", site)
		}
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return FloatValue(m), nil
	case "**":
		return FloatValue(math.Pow(a, b)), nil
	}
	return nil, t.raiseAt(ExcTypeError, fmt.Sprintf("unsupported operand for %s", op), site)
}

// floorDivMod returns the floored quotient and matching remainder, so
// -7 // 2 == -4 and -7 % 2 == 1.
func floorDivMod(a, b *big.Int) (*big.Int, *big.Int) {
	q := new(big.Int)
	m := new(big.Int)
	q.QuoRem(a, b, m)
	if m.Sign() != 0 && (m.Sign() < 0) != (b.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		m.Add(m, b)
	}
	return q, m
}

func (t *task) compareOp(op string, x, y Value, site Span) (Value, *Exception) {
	switch op {
	case "==":
		return BoolValue(Equal(x, y)), nil
	case "!=":
		return BoolValue(!Equal(x, y)), nil
	case "in":
		return t.membership(x, y, site)
	}

	c, ok := orderValues(x, y)
	if !ok {
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'", op, typeName(x), typeName(y)), site)
	}
	switch op {
	case "<":
		return BoolValue(c < 0), nil
	case "<=":
		return BoolValue(c <= 0), nil
	case ">":
		return BoolValue(c > 0), nil
	case ">=":
		return BoolValue(c >= 0), nil
	}
	return nil, t.raiseAt(ExcTypeError, fmt.Sprintf("unsupported comparison %s", op), site)
}

// orderValues compares two values for ordering, reporting false for
// unorderable pairs.
func orderValues(x, y Value) (int, bool) {
	if isNumeric(x) && isNumeric(y) {
		if ax, okx := asBig(x); okx {
			if ay, oky := asBig(y); oky {
				return ax.Cmp(ay), true
			}
		}
		a, _ := asFloat(x)
		b, _ := asFloat(y)
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	}
	if a, ok := x.(StrValue); ok {
		if b, ok := y.(StrValue); ok {
			return strings.Compare(string(a), string(b)), true
		}
	}
	ax, okx := sequenceItems(x)
	ay, oky := sequenceItems(y)
	if okx && oky && typeName(x) == typeName(y) {
		for i := 0; i < len(ax) && i < len(ay); i++ {
			if c, ok := orderValues(ax[i], ay[i]); ok && c != 0 {
				return c, true
			} else if !ok {
				return 0, false
			}
		}
		switch {
		case len(ax) < len(ay):
			return -1, true
		case len(ax) > len(ay):
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func (t *task) membership(x, y Value, site Span) (Value, *Exception) {
	switch c := y.(type) {
	case *ListValue:
		return BoolValue(containsValue(c.Items, x)), nil
	case *TupleValue:
		return BoolValue(containsValue(c.Items, x)), nil
	case *SetValue:
		return BoolValue(containsValue(c.Items, x)), nil
	case *DictValue:
		_, ok := c.Get(x)
		return BoolValue(ok), nil
	case StrValue:
		sub, ok := x.(StrValue)
		if !ok {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("'in <string>' requires string as left operand, not %s", typeName(x)), site)
		}
		return BoolValue(strings.Contains(string(c), string(sub))), nil
	default:
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("argument of type '%s' is not iterable", typeName(y)), site)
	}
}

func containsValue(items []Value, v Value) bool {
	for _, it := range items {
		if Equal(it, v) {
			return true
		}
	}
	return false
}

func (t *task) getIndex(obj, idx Value, site Span) (Value, *Exception) {
	switch o := obj.(type) {
	case *ListValue:
		return t.seqIndex(o.Items, idx, "list", site)
	case *TupleValue:
		return t.seqIndex(o.Items, idx, "tuple", site)
	case StrValue:
		runes := []rune(string(o))
		i, ok := asIndex(idx)
		if !ok {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("string indices must be integers, not %s", typeName(idx)), site)
		}
		if i < 0 {
			i += int64(len(runes))
		}
		if i < 0 || i >= int64(len(runes)) {
			return nil, t.raiseAt(ExcIndexError, "string index out of range", site)
		}
		return StrValue(string(runes[i])), nil
	case BytesValue:
		i, ok := asIndex(idx)
		if !ok {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("byte indices must be integers, not %s", typeName(idx)), site)
		}
		if i < 0 {
			i += int64(len(o))
		}
		if i < 0 || i >= int64(len(o)) {
			return nil, t.raiseAt(ExcIndexError, "index out of range", site)
		}
		return IntValue(o[i]), nil
	case *DictValue:
		v, ok := o.Get(idx)
		if !ok {
			return nil, t.raiseAt(ExcKeyError, idx.Repr(), site)
		}
		return v, nil
	default:
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("'%s' object is not subscriptable", typeName(obj)), site)
	}
}

func (t *task) seqIndex(items []Value, idx Value, kind string, site Span) (Value, *Exception) {
	i, ok := asIndex(idx)
	if !ok {
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("%s indices must be integers, not %s", kind, typeName(idx)), site)
	}
	if i < 0 {
		i += int64(len(items))
	}
	if i < 0 || i >= int64(len(items)) {
		return nil, t.raiseAt(ExcIndexError, kind+" index out of range", site)
	}
	return items[i], nil
}
