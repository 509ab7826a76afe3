package engine

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// builtins is the global name table consulted after scope lookup.
// Scripts may shadow any of these by plain assignment.
var builtins = map[string]Value{}

func init() {
	for name, fn := range map[string]builtinImpl{
		"print":  builtinPrint,
		"len":    builtinLen,
		"str":    builtinStr,
		"repr":   builtinRepr,
		"int":    builtinInt,
		"float":  builtinFloat,
		"bool":   builtinBool,
		"abs":    builtinAbs,
		"min":    builtinMin,
		"max":    builtinMax,
		"sum":    builtinSum,
		"range":  builtinRange,
		"list":   builtinList,
		"tuple":  builtinTuple,
		"set":    builtinSet,
		"bytes":  builtinBytes,
		"type":   builtinType,
		"gather": builtinGather,
	} {
		builtins[name] = &BuiltinValue{Name: name, fn: fn}
	}
	for _, kind := range catchableKinds {
		builtins[string(kind)] = &ExcTypeValue{Kind: kind}
	}
	builtins["Exception"] = &ExcTypeValue{Kind: ExcKind("Exception")}
}

func arity(t *task, name string, args []Value, lo, hi int, site Span) *Exception {
	if len(args) >= lo && len(args) <= hi {
		return nil
	}
	if lo == hi {
		return t.raiseAt(ExcTypeError,
			fmt.Sprintf("%s() takes exactly %d argument(s) (%d given)", name, lo, len(args)), site)
	}
	return t.raiseAt(ExcTypeError,
		fmt.Sprintf("%s() takes %d to %d arguments (%d given)", name, lo, hi, len(args)), site)
}

func builtinPrint(t *task, args []Value, site Span) (Value, *Exception) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Str(a)
	}
	line := strings.Join(parts, " ") + "\n"
	if exc := t.tr.alloc(uint64(len(line))); exc != nil {
		return nil, t.attach(exc, site)
	}
	t.out.WriteString(line)
	return None, nil
}

func builtinLen(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "len", args, 1, 1, site); exc != nil {
		return nil, exc
	}
	switch x := args[0].(type) {
	case StrValue:
		return IntValue(len([]rune(string(x)))), nil
	case BytesValue:
		return IntValue(len(x)), nil
	case *ListValue:
		return IntValue(len(x.Items)), nil
	case *TupleValue:
		return IntValue(len(x.Items)), nil
	case *SetValue:
		return IntValue(len(x.Items)), nil
	case *DictValue:
		return IntValue(x.Len()), nil
	default:
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("object of type '%s' has no len()", typeName(args[0])), site)
	}
}

func builtinStr(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "str", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return StrValue(""), nil
	}
	s := Str(args[0])
	if exc := t.tr.alloc(uint64(len(s))); exc != nil {
		return nil, t.attach(exc, site)
	}
	return StrValue(s), nil
}

func builtinRepr(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "repr", args, 1, 1, site); exc != nil {
		return nil, exc
	}
	s := args[0].Repr()
	if exc := t.tr.alloc(uint64(len(s))); exc != nil {
		return nil, t.attach(exc, site)
	}
	return StrValue(s), nil
}

func builtinInt(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "int", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return IntValue(0), nil
	}
	switch x := args[0].(type) {
	case IntValue, BigIntValue:
		return x, nil
	case BoolValue:
		if x {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	case FloatValue:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, t.raiseAt(ExcValueError,
				fmt.Sprintf("cannot convert float %s to integer", x.Repr()), site)
		}
		bi, _ := big.NewFloat(math.Trunc(f)).Int(nil)
		return normInt(bi), nil
	case StrValue:
		s := strings.TrimSpace(string(x))
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, t.raiseAt(ExcValueError,
				fmt.Sprintf("invalid literal for int() with base 10: %s", x.Repr()), site)
		}
		return normInt(n), nil
	default:
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("int() argument must be a string or a number, not '%s'", typeName(args[0])), site)
	}
}

func builtinFloat(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "float", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return FloatValue(0), nil
	}
	switch x := args[0].(type) {
	case FloatValue:
		return x, nil
	case StrValue:
		s := strings.TrimSpace(string(x))
		switch strings.ToLower(s) {
		case "nan":
			return FloatValue(math.NaN()), nil
		case "inf", "infinity", "+inf", "+infinity":
			return FloatValue(math.Inf(1)), nil
		case "-inf", "-infinity":
			return FloatValue(math.Inf(-1)), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, t.raiseAt(ExcValueError,
				fmt.Sprintf("could not convert string to float: %s", x.Repr()), site)
		}
		return FloatValue(f), nil
	default:
		if f, ok := asFloat(args[0]); ok {
			return FloatValue(f), nil
		}
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("float() argument must be a string or a number, not '%s'", typeName(args[0])), site)
	}
}

func builtinBool(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "bool", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return BoolValue(false), nil
	}
	return BoolValue(args[0].Truth()), nil
}

func builtinAbs(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "abs", args, 1, 1, site); exc != nil {
		return nil, exc
	}
	switch x := args[0].(type) {
	case FloatValue:
		return FloatValue(math.Abs(float64(x))), nil
	case IntValue, BigIntValue, BoolValue:
		n, _ := asBig(args[0])
		return normInt(new(big.Int).Abs(n)), nil
	default:
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("bad operand type for abs(): '%s'", typeName(args[0])), site)
	}
}

func builtinMin(t *task, args []Value, site Span) (Value, *Exception) {
	return t.extreme("min", args, -1, site)
}

func builtinMax(t *task, args []Value, site Span) (Value, *Exception) {
	return t.extreme("max", args, 1, site)
}

func (t *task) extreme(name string, args []Value, want int, site Span) (Value, *Exception) {
	items := args
	if len(args) == 1 {
		var exc *Exception
		items, exc = t.iterate(args[0], site)
		if exc != nil {
			return nil, exc
		}
	}
	if len(items) == 0 {
		return nil, t.raiseAt(ExcValueError, name+"() arg is an empty sequence", site)
	}
	best := items[0]
	for _, it := range items[1:] {
		c, ok := orderValues(it, best)
		if !ok {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'",
					map[int]string{-1: "<", 1: ">"}[want], typeName(it), typeName(best)), site)
		}
		if (want < 0 && c < 0) || (want > 0 && c > 0) {
			best = it
		}
	}
	return best, nil
}

func builtinSum(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "sum", args, 1, 2, site); exc != nil {
		return nil, exc
	}
	items, exc := t.iterate(args[0], site)
	if exc != nil {
		return nil, exc
	}
	var acc Value = IntValue(0)
	if len(args) == 2 {
		acc = args[1]
	}
	for _, it := range items {
		acc, exc = t.binaryOp("+", acc, it, site)
		if exc != nil {
			return nil, exc
		}
	}
	return acc, nil
}

func builtinRange(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "range", args, 1, 3, site); exc != nil {
		return nil, exc
	}
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := asIndex(a)
		if !ok {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("range() argument must be an integer, not '%s'", typeName(a)), site)
		}
		nums[i] = n
	}
	start, stop, step := int64(0), int64(0), int64(1)
	switch len(nums) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
		if step == 0 {
			return nil, t.raiseAt(ExcValueError, "range() arg 3 must not be zero", site)
		}
	}
	var count int64
	if step > 0 && stop > start {
		count = (stop - start + step - 1) / step
	} else if step < 0 && stop < start {
		count = (start - stop - step - 1) / -step
	}
	if exc := t.tr.alloc(valueCost * uint64(count)); exc != nil {
		return nil, t.attach(exc, site)
	}
	out := make([]Value, 0, count)
	for v := start; count > 0; count-- {
		out = append(out, IntValue(v))
		v += step
	}
	return &ListValue{Items: out}, nil
}

func builtinList(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "list", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return &ListValue{}, nil
	}
	items, exc := t.iterate(args[0], site)
	if exc != nil {
		return nil, exc
	}
	if exc := t.tr.alloc(valueCost * uint64(len(items)+1)); exc != nil {
		return nil, t.attach(exc, site)
	}
	return &ListValue{Items: append([]Value(nil), items...)}, nil
}

func builtinTuple(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "tuple", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return &TupleValue{}, nil
	}
	items, exc := t.iterate(args[0], site)
	if exc != nil {
		return nil, exc
	}
	return &TupleValue{Items: append([]Value(nil), items...)}, nil
}

func builtinSet(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "set", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	s := &SetValue{}
	if len(args) == 1 {
		items, exc := t.iterate(args[0], site)
		if exc != nil {
			return nil, exc
		}
		for _, it := range items {
			s.Add(it)
		}
	}
	return s, nil
}

func builtinBytes(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "bytes", args, 0, 1, site); exc != nil {
		return nil, exc
	}
	if len(args) == 0 {
		return BytesValue(nil), nil
	}
	switch x := args[0].(type) {
	case BytesValue:
		return x, nil
	case StrValue:
		return BytesValue([]byte(string(x))), nil
	case *ListValue:
		out := make([]byte, len(x.Items))
		for i, it := range x.Items {
			n, ok := asIndex(it)
			if !ok {
				return nil, t.raiseAt(ExcTypeError,
					fmt.Sprintf("'%s' object cannot be interpreted as an integer", typeName(it)), site)
			}
			if n < 0 || n > 255 {
				return nil, t.raiseAt(ExcValueError, "bytes must be in range(0, 256)", site)
			}
			out[i] = byte(n)
		}
		return BytesValue(out), nil
	default:
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("cannot convert '%s' object to bytes", typeName(args[0])), site)
	}
}

func builtinType(t *task, args []Value, site Span) (Value, *Exception) {
	if exc := arity(t, "type", args, 1, 1, site); exc != nil {
		return nil, exc
	}
	return StrValue(typeName(args[0])), nil
}

// builtinGather bundles awaitables; awaiting the bundle awaits every
// member and yields the list of results in argument order.
func builtinGather(t *task, args []Value, site Span) (Value, *Exception) {
	return &gatherValue{items: append([]Value(nil), args...)}, nil
}
