package engine

import (
	"strings"
	"testing"

	brook "github.com/brooklang/brook"
)

func mustCompile(t *testing.T, source string) *Program {
	t.Helper()
	p, exc := Compile(source, "test.br", nil)
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	return p
}

func runScript(t *testing.T, source string) RunOutcome {
	t.Helper()
	return mustCompile(t, source).Run(brook.Limits{}, nil)
}

func runValue(t *testing.T, source string) Value {
	t.Helper()
	out := runScript(t, source)
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	return out.Value
}

func wantRepr(t *testing.T, source, want string) {
	t.Helper()
	got := runValue(t, source).Repr()
	if got != want {
		t.Errorf("script %q = %s, want %s", source, got, want)
	}
}

func TestRun_Arithmetic(t *testing.T) {
	cases := []struct{ src, want string }{
		{"2 + 2", "4"},
		{"7 - 10", "-3"},
		{"6 * 7", "42"},
		{"1 / 2", "0.5"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"7 % 3", "1"},
		{"-7 % 3", "2"},
		{"2 ** 10", "1024"},
		{"2 ** -1", "0.5"},
		{"1.5 + 2", "3.5"},
		{"2 * 3 + 4", "10"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"-2 ** 2", "-4"},
		{"True + 1", "2"},
	}
	for _, c := range cases {
		wantRepr(t, c.src, c.want)
	}
}

func TestRun_BigIntegers(t *testing.T) {
	wantRepr(t, "10 ** 30", "1000000000000000000000000000000")
	wantRepr(t, "10 ** 30 + 1 - 10 ** 30", "1")
}

func TestRun_Strings(t *testing.T) {
	wantRepr(t, "'foo' + 'bar'", "'foobar'")
	wantRepr(t, "'ab' * 3", "'ababab'")
	wantRepr(t, "len('hello')", "5")
	wantRepr(t, "'ell' in 'hello'", "True")
	wantRepr(t, "'hello'[1]", "'e'")
	wantRepr(t, "'hello'[-1]", "'o'")
	wantRepr(t, "str(42)", "'42'")
}

func TestRun_Collections(t *testing.T) {
	wantRepr(t, "[1, 2] + [3]", "[1, 2, 3]")
	wantRepr(t, "len({'a': 1, 'b': 2})", "2")
	wantRepr(t, "{'a': 1}['a']", "1")
	wantRepr(t, "(1, 2, 3)[2]", "3")
	wantRepr(t, "2 in {1, 2, 3}", "True")
	wantRepr(t, "sum([1, 2, 3])", "6")
	wantRepr(t, "min(3, 1, 2)", "1")
	wantRepr(t, "max([3, 1, 2])", "3")
	wantRepr(t, "range(4)", "[0, 1, 2, 3]")
	wantRepr(t, "range(1, 10, 3)", "[1, 4, 7]")
}

func TestRun_LastExpressionIsResult(t *testing.T) {
	src := "print('start')\n42"
	out := runScript(t, src)
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if out.Value.Repr() != "42" {
		t.Errorf("value = %s, want 42", out.Value.Repr())
	}
	if out.Print != "start\n" {
		t.Errorf("print = %q, want %q", out.Print, "start\n")
	}
}

func TestRun_NoExpressionYieldsNone(t *testing.T) {
	out := runScript(t, "x = 1")
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if _, ok := out.Value.(NoneValue); !ok {
		t.Errorf("value = %s, want None", out.Value.Repr())
	}
}

func TestRun_ControlFlow(t *testing.T) {
	src := strings.Join([]string{
		"total = 0",
		"for i in range(10):",
		"    if i % 2 == 0:",
		"        continue",
		"    if i > 7:",
		"        break",
		"    total += i",
		"total",
	}, "\n")
	wantRepr(t, src, "16")
}

func TestRun_WhileLoop(t *testing.T) {
	src := strings.Join([]string{
		"n = 1",
		"while n < 100:",
		"    n = n * 2",
		"n",
	}, "\n")
	wantRepr(t, src, "128")
}

func TestRun_FunctionsAndClosures(t *testing.T) {
	src := strings.Join([]string{
		"def make_adder(n):",
		"    def add(x):",
		"        return x + n",
		"    return add",
		"add5 = make_adder(5)",
		"add5(37)",
	}, "\n")
	wantRepr(t, src, "42")
}

func TestRun_Recursion(t *testing.T) {
	src := strings.Join([]string{
		"def fib(n):",
		"    if n < 2:",
		"        return n",
		"    return fib(n - 1) + fib(n - 2)",
		"fib(12)",
	}, "\n")
	wantRepr(t, src, "144")
}

func TestRun_KeywordArguments(t *testing.T) {
	src := strings.Join([]string{
		"def greet(name, greeting='hello'):",
		"    return greeting + ' ' + name",
		"greet('world', greeting='hi')",
	}, "\n")
	wantRepr(t, src, "'hi world'")
}

func TestRun_TupleUnpacking(t *testing.T) {
	src := strings.Join([]string{
		"a, b = 1, 2",
		"a, b = b, a",
		"[a, b]",
	}, "\n")
	wantRepr(t, src, "[2, 1]")
}

func TestRun_UnpackMismatch(t *testing.T) {
	out := runScript(t, "a, b, c = 1, 2")
	if out.Exc == nil || out.Exc.Kind != ExcValueError {
		t.Fatalf("exc = %v, want ValueError", out.Exc)
	}
}

func TestRun_TryExcept(t *testing.T) {
	src := strings.Join([]string{
		"try:",
		"    x = 1 / 0",
		"except ZeroDivisionError as e:",
		"    msg = str(e)",
		"msg",
	}, "\n")
	wantRepr(t, src, "'division by zero'")
}

func TestRun_ExceptCatchAll(t *testing.T) {
	src := strings.Join([]string{
		"try:",
		"    raise ValueError('boom')",
		"except Exception:",
		"    'caught'",
	}, "\n")
	wantRepr(t, src, "'caught'")
}

func TestRun_ExceptWrongTypePropagates(t *testing.T) {
	src := strings.Join([]string{
		"try:",
		"    raise ValueError('boom')",
		"except KeyError:",
		"    'nope'",
	}, "\n")
	out := runScript(t, src)
	if out.Exc == nil || out.Exc.Kind != ExcValueError {
		t.Fatalf("exc = %v, want ValueError to propagate", out.Exc)
	}
}

func TestRun_RaiseCustomMessage(t *testing.T) {
	out := runScript(t, "raise RuntimeError('custom failure')")
	if out.Exc == nil {
		t.Fatal("expected exception")
	}
	if out.Exc.Kind != ExcRuntimeError || out.Exc.Msg != "custom failure" {
		t.Errorf("exc = %s", out.Exc.Summary())
	}
}

func TestRun_NameError(t *testing.T) {
	out := runScript(t, "missing_name")
	if out.Exc == nil || out.Exc.Kind != ExcNameError {
		t.Fatalf("exc = %v, want NameError", out.Exc)
	}
	if out.Exc.Msg != "name 'missing_name' is not defined" {
		t.Errorf("msg = %q", out.Exc.Msg)
	}
}

func TestRun_TracebackFrames(t *testing.T) {
	src := strings.Join([]string{
		"def inner():",
		"    return 1 / 0",
		"def outer():",
		"    return inner()",
		"outer()",
	}, "\n")
	out := runScript(t, src)
	if out.Exc == nil || out.Exc.Kind != ExcZeroDivisionError {
		t.Fatalf("exc = %v, want ZeroDivisionError", out.Exc)
	}
	frames := out.Exc.Frames
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	// outermost first: module, outer, inner
	if frames[0].FrameName != "" || frames[1].FrameName != "outer" || frames[2].FrameName != "inner" {
		t.Errorf("frame names = %q, %q, %q", frames[0].FrameName, frames[1].FrameName, frames[2].FrameName)
	}
	site := out.Exc.Site()
	if site.StartLine != 2 {
		t.Errorf("raise site line = %d, want 2", site.StartLine)
	}
	if site.Filename != "test.br" {
		t.Errorf("filename = %q", site.Filename)
	}
	if !strings.Contains(site.PreviewLine, "1 / 0") {
		t.Errorf("preview = %q", site.PreviewLine)
	}
}

func TestRun_SyntaxError(t *testing.T) {
	_, exc := Compile("def f(:\n    pass", "bad.br", nil)
	if exc == nil || exc.Kind != ExcSyntaxError {
		t.Fatalf("exc = %v, want SyntaxError", exc)
	}
	if len(exc.Frames) == 0 {
		t.Fatal("syntax error has no frames")
	}
	if exc.Frames[0].Filename != "bad.br" {
		t.Errorf("filename = %q", exc.Frames[0].Filename)
	}
}

func TestRun_RepeatedKwargIsSyntaxError(t *testing.T) {
	src := "def f(a):\n    return a\nf(a=1, a=2)"
	_, exc := Compile(src, "bad.br", nil)
	if exc == nil || exc.Kind != ExcSyntaxError {
		t.Fatalf("exc = %v, want SyntaxError", exc)
	}
	if !strings.Contains(exc.Msg, "keyword argument repeated: a") {
		t.Errorf("msg = %q", exc.Msg)
	}
}

func TestRun_ExternalsViaResolver(t *testing.T) {
	p, exc := Compile("fetch('a') + fetch('b')", "test.br", []string{"fetch"})
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	out := p.Run(brook.Limits{}, ResolverFunc(func(call *CallInfo) (Value, error) {
		if call.Name != "fetch" {
			t.Errorf("call name = %q", call.Name)
		}
		if call.Method {
			t.Error("bare call reported as method")
		}
		arg := call.Args[0].(StrValue)
		return IntValue(int64(len(string(arg)) * 10)), nil
	}))
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if out.Value.Repr() != "20" {
		t.Errorf("value = %s, want 20", out.Value.Repr())
	}
}

func TestRun_ExternalMethodCall(t *testing.T) {
	p, exc := Compile("db.query('users')", "test.br", []string{"db.query"})
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	var seen *CallInfo
	out := p.Run(brook.Limits{}, ResolverFunc(func(call *CallInfo) (Value, error) {
		seen = call
		return None, nil
	}))
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if seen == nil {
		t.Fatal("resolver never called")
	}
	if seen.Name != "db.query" || !seen.Method {
		t.Errorf("call = %+v, want method call db.query", seen)
	}
}

func TestRun_UnknownExternalAttribute(t *testing.T) {
	p, exc := Compile("db.drop('users')", "test.br", []string{"db.query"})
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	out := p.Run(brook.Limits{}, nil)
	if out.Exc == nil || out.Exc.Kind != ExcAttributeError {
		t.Fatalf("exc = %v, want AttributeError", out.Exc)
	}
}

func TestRun_NilResolverRaisesCatchable(t *testing.T) {
	src := strings.Join([]string{
		"try:",
		"    fetch('x')",
		"except RuntimeError as e:",
		"    str(e)",
	}, "\n")
	p, exc := Compile(src, "test.br", []string{"fetch"})
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	out := p.Run(brook.Limits{}, nil)
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if got := out.Value.Repr(); !strings.Contains(got, "fetch") {
		t.Errorf("value = %s", got)
	}
}

func TestRun_AsyncAwaitSynchronousResolution(t *testing.T) {
	src := strings.Join([]string{
		"async def main():",
		"    a = await fetch('a')",
		"    b = await fetch('b')",
		"    return a + b",
		"await main()",
	}, "\n")
	p, exc := Compile(src, "test.br", []string{"fetch"})
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	n := 0
	out := p.Run(brook.Limits{}, ResolverFunc(func(call *CallInfo) (Value, error) {
		n++
		return IntValue(int64(n * 10)), nil
	}))
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if out.Value.Repr() != "30" {
		t.Errorf("value = %s, want 30", out.Value.Repr())
	}
}

func TestRun_PrintFormatting(t *testing.T) {
	out := runScript(t, "print('x', 1, [1, 2], None)")
	if out.Print != "x 1 [1, 2] None\n" {
		t.Errorf("print = %q", out.Print)
	}
}

func TestRun_TypeErrors(t *testing.T) {
	cases := []string{
		"1 + 'x'",
		"len(1)",
		"'a' < 1",
		"None[0]",
		"5('x')",
	}
	for _, src := range cases {
		out := runScript(t, src)
		if out.Exc == nil || out.Exc.Kind != ExcTypeError {
			t.Errorf("script %q: exc = %v, want TypeError", src, out.Exc)
		}
	}
}

func TestRun_IndexAndKeyErrors(t *testing.T) {
	out := runScript(t, "[1, 2][5]")
	if out.Exc == nil || out.Exc.Kind != ExcIndexError {
		t.Fatalf("exc = %v, want IndexError", out.Exc)
	}
	out = runScript(t, "{'a': 1}['b']")
	if out.Exc == nil || out.Exc.Kind != ExcKeyError {
		t.Fatalf("exc = %v, want KeyError", out.Exc)
	}
}

func TestRun_IntConversionErrors(t *testing.T) {
	out := runScript(t, "int('abc')")
	if out.Exc == nil || out.Exc.Kind != ExcValueError {
		t.Fatalf("exc = %v, want ValueError", out.Exc)
	}
	if out.Exc.Msg != "invalid literal for int() with base 10: 'abc'" {
		t.Errorf("msg = %q", out.Exc.Msg)
	}
}

func TestRun_UsageReported(t *testing.T) {
	out := runScript(t, "x = [1, 2, 3]\nlen(x)")
	if out.Exc != nil {
		t.Fatalf("script raised: %s", out.Exc.Summary())
	}
	if out.Usage.MemoryBytesUsed == 0 {
		t.Error("memory usage not tracked")
	}
}
