package engine

import (
	"strings"
	"testing"
	"time"

	brook "github.com/brooklang/brook"
)

func startScript(t *testing.T, source string, externals []string, limits brook.Limits) (*Execution, Step) {
	t.Helper()
	p, exc := Compile(source, "test.br", externals)
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	return p.Start(limits)
}

func TestStart_CompleteImmediately(t *testing.T) {
	ex, step := startScript(t, "40 + 2", nil, brook.Limits{})
	defer ex.Close()
	if step.Kind != StepComplete {
		t.Fatalf("kind = %s, want complete", step.Kind)
	}
	if step.Value.Repr() != "42" {
		t.Errorf("value = %s", step.Value.Repr())
	}
	if !ex.Done() {
		t.Error("execution not done")
	}
}

func TestStart_PausesOnExternalCall(t *testing.T) {
	ex, step := startScript(t, "get_data('users', limit=5)", []string{"get_data"}, brook.Limits{})
	defer ex.Close()
	if step.Kind != StepCall {
		t.Fatalf("kind = %s, want call", step.Kind)
	}
	call := step.Call
	if call.Name != "get_data" || call.Method {
		t.Errorf("call = %+v", call)
	}
	if len(call.Args) != 1 || call.Args[0].Repr() != "'users'" {
		t.Errorf("args = %v", call.Args)
	}
	if len(call.Kwargs) != 1 || call.Kwargs[0].Name != "limit" || call.Kwargs[0].Value.Repr() != "5" {
		t.Errorf("kwargs = %v", call.Kwargs)
	}

	step = ex.Resume(ExternalResult{Value: StrValue("rows")})
	if step.Kind != StepComplete {
		t.Fatalf("kind = %s, want complete", step.Kind)
	}
	if step.Value.Repr() != "'rows'" {
		t.Errorf("value = %s", step.Value.Repr())
	}
}

func TestResume_WithErrorRaisesInScript(t *testing.T) {
	src := strings.Join([]string{
		"try:",
		"    fetch('x')",
		"except RuntimeError as e:",
		"    'caught: ' + str(e)",
	}, "\n")
	ex, step := startScript(t, src, []string{"fetch"}, brook.Limits{})
	defer ex.Close()
	if step.Kind != StepCall {
		t.Fatalf("kind = %s, want call", step.Kind)
	}
	step = ex.Resume(ExternalResult{Err: NewException(ExcRuntimeError, "backend down")})
	if step.Kind != StepComplete {
		t.Fatalf("kind = %s, want complete", step.Kind)
	}
	if step.Value.Repr() != "'caught: backend down'" {
		t.Errorf("value = %s", step.Value.Repr())
	}
}

func TestResume_UncaughtHostErrorKeepsCallSite(t *testing.T) {
	ex, step := startScript(t, "fetch('x')", []string{"fetch"}, brook.Limits{})
	defer ex.Close()
	step = ex.Resume(ExternalResult{Err: NewException(ExcRuntimeError, "backend down")})
	if step.Kind != StepFailed {
		t.Fatalf("kind = %s, want failed", step.Kind)
	}
	site := step.Exc.Site()
	if site == nil || site.StartLine != 1 {
		t.Errorf("site = %+v, want line 1", site)
	}
}

func TestCallIDs_StrictlyIncreasing(t *testing.T) {
	ex, step := startScript(t, "fetch('a')\nfetch('b')\nfetch('c')", []string{"fetch"}, brook.Limits{})
	defer ex.Close()
	var ids []uint32
	for step.Kind == StepCall {
		ids = append(ids, step.Call.ID)
		step = ex.Resume(ExternalResult{Value: None})
	}
	if len(ids) != 3 {
		t.Fatalf("got %d calls, want 3", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("ids not increasing: %v", ids)
		}
	}
}

func TestGather_ResumeAsFuture(t *testing.T) {
	src := strings.Join([]string{
		"async def main():",
		"    a, b = await gather(fetch('a'), fetch('b'))",
		"    return a + b",
		"await main()",
	}, "\n")
	ex, step := startScript(t, src, []string{"fetch"}, brook.Limits{})
	defer ex.Close()

	if step.Kind != StepCall {
		t.Fatalf("first step = %s, want call", step.Kind)
	}
	id0 := step.Call.ID
	step = ex.ResumeAsFuture()
	if step.Kind != StepCall {
		t.Fatalf("second step = %s, want call", step.Kind)
	}
	id1 := step.Call.ID
	step = ex.ResumeAsFuture()
	if step.Kind != StepFutures {
		t.Fatalf("third step = %s, want futures", step.Kind)
	}
	if len(step.FutureIDs) != 2 {
		t.Fatalf("future ids = %v, want 2 entries", step.FutureIDs)
	}

	step = ex.ResolveFutures(map[uint32]ExternalResult{
		id0: {Value: IntValue(10)},
		id1: {Value: IntValue(32)},
	})
	if step.Kind != StepComplete {
		t.Fatalf("final step = %s, want complete", step.Kind)
	}
	if step.Value.Repr() != "42" {
		t.Errorf("value = %s, want 42", step.Value.Repr())
	}
}

func TestGather_PartialResolutionSuspendsAgain(t *testing.T) {
	src := strings.Join([]string{
		"async def main():",
		"    a, b = await gather(fetch('a'), fetch('b'))",
		"    return a + b",
		"await main()",
	}, "\n")
	ex, step := startScript(t, src, []string{"fetch"}, brook.Limits{})
	defer ex.Close()

	id0 := step.Call.ID
	step = ex.ResumeAsFuture()
	id1 := step.Call.ID
	step = ex.ResumeAsFuture()
	if step.Kind != StepFutures {
		t.Fatalf("step = %s, want futures", step.Kind)
	}

	step = ex.ResolveFutures(map[uint32]ExternalResult{id0: {Value: IntValue(1)}})
	if step.Kind != StepFutures {
		t.Fatalf("step after partial resolve = %s, want futures", step.Kind)
	}
	if len(step.FutureIDs) != 1 || step.FutureIDs[0] != id1 {
		t.Errorf("remaining ids = %v, want [%d]", step.FutureIDs, id1)
	}

	step = ex.ResolveFutures(map[uint32]ExternalResult{id1: {Value: IntValue(2)}})
	if step.Kind != StepComplete {
		t.Fatalf("final step = %s, want complete", step.Kind)
	}
	if step.Value.Repr() != "3" {
		t.Errorf("value = %s, want 3", step.Value.Repr())
	}
}

func TestGather_FutureError(t *testing.T) {
	src := strings.Join([]string{
		"async def main():",
		"    return await fetch('a')",
		"await main()",
	}, "\n")
	ex, step := startScript(t, src, []string{"fetch"}, brook.Limits{})
	defer ex.Close()

	id := step.Call.ID
	step = ex.ResumeAsFuture()
	if step.Kind != StepFutures {
		t.Fatalf("step = %s, want futures", step.Kind)
	}
	step = ex.ResolveFutures(map[uint32]ExternalResult{
		id: {Err: NewException(ExcRuntimeError, "remote failure")},
	})
	if step.Kind != StepFailed {
		t.Fatalf("step = %s, want failed", step.Kind)
	}
	if step.Exc.Kind != ExcRuntimeError || step.Exc.Msg != "remote failure" {
		t.Errorf("exc = %s", step.Exc.Summary())
	}
}

func TestPrint_CollectedPerStep(t *testing.T) {
	src := strings.Join([]string{
		"print('before')",
		"fetch('x')",
		"print('after')",
	}, "\n")
	ex, step := startScript(t, src, []string{"fetch"}, brook.Limits{})
	defer ex.Close()
	if step.Print != "before\n" {
		t.Errorf("first step print = %q", step.Print)
	}
	step = ex.Resume(ExternalResult{Value: None})
	if step.Print != "after\n" {
		t.Errorf("second step print = %q", step.Print)
	}
}

func TestLimits_Time(t *testing.T) {
	ex, step := startScript(t, "while True:\n    x = 1", nil,
		brook.Limits{MaxDuration: 20 * time.Millisecond})
	defer ex.Close()
	if step.Kind != StepFailed {
		t.Fatalf("kind = %s, want failed", step.Kind)
	}
	if step.Exc.Kind != ExcTimeoutError {
		t.Errorf("exc = %s, want TimeoutError", step.Exc.Summary())
	}
	if step.Usage.TimeElapsedMS < 20 {
		t.Errorf("elapsed = %dms, want >= 20", step.Usage.TimeElapsedMS)
	}
}

func TestLimits_Memory(t *testing.T) {
	src := strings.Join([]string{
		"x = 'a'",
		"while True:",
		"    x = x + x",
	}, "\n")
	ex, step := startScript(t, src, nil, brook.Limits{MaxMemoryBytes: 1 << 16})
	defer ex.Close()
	if step.Kind != StepFailed {
		t.Fatalf("kind = %s, want failed", step.Kind)
	}
	if step.Exc.Kind != ExcMemoryError {
		t.Errorf("exc = %s, want MemoryError", step.Exc.Summary())
	}
}

func TestLimits_Recursion(t *testing.T) {
	src := strings.Join([]string{
		"def loop():",
		"    return loop()",
		"loop()",
	}, "\n")
	ex, step := startScript(t, src, nil, brook.Limits{MaxStackDepth: 50})
	defer ex.Close()
	if step.Kind != StepFailed {
		t.Fatalf("kind = %s, want failed", step.Kind)
	}
	if step.Exc.Kind != ExcRecursionError {
		t.Errorf("exc = %s, want RecursionError", step.Exc.Summary())
	}
	if step.Usage.StackDepthUsed < 50 {
		t.Errorf("stack depth = %d, want >= 50", step.Usage.StackDepthUsed)
	}
}

func TestLimits_Catchable(t *testing.T) {
	src := strings.Join([]string{
		"def loop():",
		"    return loop()",
		"try:",
		"    loop()",
		"except RecursionError:",
		"    'survived'",
	}, "\n")
	ex, step := startScript(t, src, nil, brook.Limits{MaxStackDepth: 50})
	defer ex.Close()
	if step.Kind != StepComplete {
		t.Fatalf("kind = %s, want complete", step.Kind)
	}
	if step.Value.Repr() != "'survived'" {
		t.Errorf("value = %s", step.Value.Repr())
	}
}

func TestClose_ReleasesSuspendedExecution(t *testing.T) {
	ex, step := startScript(t, "fetch('x')", []string{"fetch"}, brook.Limits{})
	if step.Kind != StepCall {
		t.Fatalf("kind = %s, want call", step.Kind)
	}
	ex.Close()
	ex.Close() // idempotent
	if got := ex.Resume(ExternalResult{Value: None}); got.Kind != StepFailed {
		t.Errorf("resume after close = %s, want failed", got.Kind)
	}
}

func TestResume_AfterCompleteFails(t *testing.T) {
	ex, step := startScript(t, "1", nil, brook.Limits{})
	defer ex.Close()
	if step.Kind != StepComplete {
		t.Fatalf("kind = %s", step.Kind)
	}
	if got := ex.Resume(ExternalResult{Value: None}); got.Kind != StepFailed {
		t.Errorf("resume after done = %s, want failed", got.Kind)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	p, exc := Compile("fetch('a') + 1", "snap.br", []string{"fetch"})
	if exc != nil {
		t.Fatalf("Compile failed: %s", exc.Summary())
	}
	data, err := p.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Name() != "snap.br" {
		t.Errorf("name = %q", restored.Name())
	}
	out := restored.Run(brook.Limits{}, ResolverFunc(func(call *CallInfo) (Value, error) {
		return IntValue(41), nil
	}))
	if out.Exc != nil {
		t.Fatalf("restored script raised: %s", out.Exc.Summary())
	}
	if out.Value.Repr() != "42" {
		t.Errorf("value = %s, want 42", out.Value.Repr())
	}
}

func TestRestore_RejectsGarbage(t *testing.T) {
	if _, err := Restore([]byte("not a snapshot")); err == nil {
		t.Error("Restore accepted garbage")
	}
	if _, err := Restore(append([]byte("BRKS"), 0xff, 0x00)); err == nil {
		t.Error("Restore accepted truncated payload")
	}
}
