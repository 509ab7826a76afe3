package bridge

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/brooklang/brook/errors"
	"github.com/brooklang/brook/runtime"
)

func create(t *testing.T, source string, externals ...string) *runtime.Handle {
	t.Helper()
	var extJSON []byte
	if externals != nil {
		var err error
		extJSON, err = json.Marshal(externals)
		if err != nil {
			t.Fatalf("marshal externals: %v", err)
		}
	}
	h, errMsg := Create([]byte(source), extJSON, []byte("test.br"))
	if errMsg != "" {
		t.Fatalf("Create: %s", errMsg)
	}
	t.Cleanup(func() { Destroy(h) })
	return h
}

func TestRun(t *testing.T) {
	h := create(t, "2 + 2")
	tag, env, errMsg := Run(h)
	if errMsg != "" {
		t.Fatalf("Run: %s", errMsg)
	}
	if tag != RunOK {
		t.Fatalf("tag = %d, want RunOK", tag)
	}
	var doc struct {
		Value json.Number `json:"value"`
	}
	if err := json.Unmarshal(env, &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Value.String() != "4" {
		t.Fatalf("value = %s, want 4", doc.Value)
	}
}

func TestRunScriptError(t *testing.T) {
	h := create(t, "1 / 0")
	tag, env, errMsg := Run(h)
	if tag != RunError {
		t.Fatalf("tag = %d, want RunError", tag)
	}
	if !strings.Contains(errMsg, "ZeroDivisionError: division by zero") {
		t.Fatalf("errMsg = %q, want the exception summary", errMsg)
	}
	var doc struct {
		Error struct {
			ExcType string `json:"exc_type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(env, &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Error.ExcType != "ZeroDivisionError" {
		t.Fatalf("exc_type = %q, want ZeroDivisionError", doc.Error.ExcType)
	}
}

func TestStartScriptErrorMessage(t *testing.T) {
	h := create(t, "1 / 0")
	tag, errMsg := Start(h)
	if tag != TagError {
		t.Fatalf("tag = %d, want TagError", tag)
	}
	if !strings.Contains(errMsg, "ZeroDivisionError: division by zero") {
		t.Fatalf("errMsg = %q, want the exception summary", errMsg)
	}
	if e := CompletedIsError(h); e != 1 {
		t.Fatalf("CompletedIsError = %d, want 1", e)
	}
	if CompletedResult(h) == nil {
		t.Fatal("CompletedResult absent after script error")
	}
}

func TestCreateValidation(t *testing.T) {
	if h, errMsg := Create(nil, nil, nil); h != nil || errMsg == "" {
		t.Fatalf("Create(nil source) = (%v, %q), want nil handle and error", h, errMsg)
	}
	if _, errMsg := Create([]byte{0xff, 0xfe}, nil, nil); !strings.Contains(errMsg, "UTF-8") {
		t.Fatalf("Create(bad utf8) error = %q, want UTF-8 mention", errMsg)
	}
	if _, errMsg := Create([]byte("1"), []byte("not json"), nil); !strings.Contains(errMsg, "externals") {
		t.Fatalf("Create(bad externals) error = %q, want externals mention", errMsg)
	}
	if _, errMsg := Create([]byte("1 +"), nil, nil); errMsg == "" {
		t.Fatal("Create with syntax error succeeded")
	}
}

func TestStartResumeFlow(t *testing.T) {
	h := create(t, "fetch('users') + 1", "fetch")

	tag, errMsg := Start(h)
	if errMsg != "" || tag != TagPending {
		t.Fatalf("Start = (%d, %q), want (Pending, \"\")", tag, errMsg)
	}
	if name := PendingFunctionName(h); string(name) != "fetch" {
		t.Fatalf("PendingFunctionName = %q", name)
	}
	if args := PendingArgs(h); string(args) != `["users"]` {
		t.Fatalf("PendingArgs = %q", args)
	}
	if kwargs := PendingKwargs(h); string(kwargs) != "{}" {
		t.Fatalf("PendingKwargs = %q", kwargs)
	}
	if id := PendingCallID(h); id == AbsentCallID {
		t.Fatal("PendingCallID absent while Paused")
	}
	if m := PendingIsMethodCall(h); m != 0 {
		t.Fatalf("PendingIsMethodCall = %d, want 0", m)
	}

	tag, errMsg = Resume(h, []byte("41"))
	if errMsg != "" || tag != TagComplete {
		t.Fatalf("Resume = (%d, %q), want (Complete, \"\")", tag, errMsg)
	}
	if e := CompletedIsError(h); e != 0 {
		t.Fatalf("CompletedIsError = %d, want 0", e)
	}
	var doc struct {
		Value json.Number `json:"value"`
	}
	if err := json.Unmarshal(CompletedResult(h), &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Value.String() != "42" {
		t.Fatalf("value = %s, want 42", doc.Value)
	}
}

func TestResumeWithError(t *testing.T) {
	h := create(t, strings.Join([]string{
		"try:",
		"    fetch()",
		"except RuntimeError as e:",
		"    r = 'caught: ' + str(e)",
		"r",
	}, "\n"), "fetch")

	if tag, errMsg := Start(h); errMsg != "" || tag != TagPending {
		t.Fatalf("Start = (%d, %q)", tag, errMsg)
	}
	tag, errMsg := ResumeWithError(h, []byte("backend down"))
	if errMsg != "" || tag != TagComplete {
		t.Fatalf("ResumeWithError = (%d, %q)", tag, errMsg)
	}
	var doc struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(CompletedResult(h), &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Value != "caught: backend down" {
		t.Fatalf("value = %q", doc.Value)
	}
}

func TestFuturesFlow(t *testing.T) {
	h := create(t, strings.Join([]string{
		"async def main():",
		"    a = fetch('a')",
		"    b = fetch('b')",
		"    pair = await gather(a, b)",
		"    return pair[0] + pair[1]",
		"await main()",
	}, "\n"), "fetch")

	if tag, errMsg := Start(h); errMsg != "" || tag != TagPending {
		t.Fatalf("Start = (%d, %q)", tag, errMsg)
	}
	id0 := PendingCallID(h)
	if tag, errMsg := ResumeAsFuture(h); errMsg != "" || tag != TagPending {
		t.Fatalf("first ResumeAsFuture = (%d, %q)", tag, errMsg)
	}
	id1 := PendingCallID(h)
	tag, errMsg := ResumeAsFuture(h)
	if errMsg != "" || tag != TagAwaitingFutures {
		t.Fatalf("second ResumeAsFuture = (%d, %q), want AwaitingFutures", tag, errMsg)
	}

	var ids []uint32
	if err := json.Unmarshal(PendingFutureCallIDs(h), &ids); err != nil {
		t.Fatalf("unmarshal future ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != id0 || ids[1] != id1 {
		t.Fatalf("future ids = %v, want [%d %d]", ids, id0, id1)
	}

	results, _ := json.Marshal(map[uint32]int{id0: 10, id1: 32})
	tag, errMsg = ResumeFutures(h, results, []byte("{}"))
	if errMsg != "" || tag != TagComplete {
		t.Fatalf("ResumeFutures = (%d, %q)", tag, errMsg)
	}
	var doc struct {
		Value json.Number `json:"value"`
	}
	if err := json.Unmarshal(CompletedResult(h), &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Value.String() != "42" {
		t.Fatalf("value = %s, want 42", doc.Value)
	}
}

func TestResumeValidation(t *testing.T) {
	h := create(t, "fetch()", "fetch")
	if tag, errMsg := Start(h); errMsg != "" || tag != TagPending {
		t.Fatalf("Start = (%d, %q)", tag, errMsg)
	}

	if tag, errMsg := Resume(h, nil); tag != TagError || errMsg == "" {
		t.Fatalf("Resume(nil) = (%d, %q), want Error", tag, errMsg)
	}
	if tag, errMsg := Resume(h, []byte{0xff}); tag != TagError || !strings.Contains(errMsg, "UTF-8") {
		t.Fatalf("Resume(bad utf8) = (%d, %q)", tag, errMsg)
	}
	if tag, errMsg := ResumeWithError(h, nil); tag != TagError || errMsg == "" {
		t.Fatalf("ResumeWithError(nil) = (%d, %q)", tag, errMsg)
	}
	if tag, errMsg := ResumeFutures(h, nil, []byte("{}")); tag != TagError || errMsg == "" {
		t.Fatalf("ResumeFutures(nil results) = (%d, %q)", tag, errMsg)
	}
	if got := h.StateName(); got != "Paused" {
		t.Fatalf("state after rejected inputs = %q, want Paused", got)
	}

	if tag, errMsg := Resume(h, []byte("1")); errMsg != "" || tag != TagComplete {
		t.Fatalf("Resume after rejections = (%d, %q)", tag, errMsg)
	}
}

func TestNilHandle(t *testing.T) {
	Destroy(nil)
	SetMemoryLimit(nil, 1)
	SetTimeLimit(nil, 1)
	SetStackLimit(nil, 1)

	if tag, _, errMsg := Run(nil); tag != RunError || errMsg == "" {
		t.Fatalf("Run(nil) = (%d, %q)", tag, errMsg)
	}
	if tag, errMsg := Start(nil); tag != TagError || errMsg == "" {
		t.Fatalf("Start(nil) = (%d, %q)", tag, errMsg)
	}
	if tag, errMsg := Resume(nil, []byte("1")); tag != TagError || errMsg == "" {
		t.Fatalf("Resume(nil) = (%d, %q)", tag, errMsg)
	}
	if _, errMsg := Snapshot(nil); errMsg == "" {
		t.Fatal("Snapshot(nil) succeeded")
	}
	if _, errMsg := Restore(nil); errMsg == "" {
		t.Fatal("Restore(nil) succeeded")
	}
	if PendingFunctionName(nil) != nil || PendingArgs(nil) != nil || PendingKwargs(nil) != nil {
		t.Fatal("pending accessors on nil handle returned data")
	}
	if PendingCallID(nil) != AbsentCallID {
		t.Fatal("PendingCallID(nil) != AbsentCallID")
	}
	if PendingIsMethodCall(nil) != -1 || CompletedIsError(nil) != -1 {
		t.Fatal("boolean accessors on nil handle != -1")
	}
	if CompletedResult(nil) != nil || PendingFutureCallIDs(nil) != nil {
		t.Fatal("result accessors on nil handle returned data")
	}
}

func TestAccessorSentinels(t *testing.T) {
	h := create(t, "1")
	if PendingFunctionName(h) != nil {
		t.Fatal("PendingFunctionName on Ready returned data")
	}
	if PendingCallID(h) != AbsentCallID {
		t.Fatal("PendingCallID on Ready != AbsentCallID")
	}
	if PendingIsMethodCall(h) != -1 || CompletedIsError(h) != -1 {
		t.Fatal("boolean accessors on Ready != -1")
	}
	if PendingFutureCallIDs(h) != nil || CompletedResult(h) != nil {
		t.Fatal("result accessors on Ready returned data")
	}
}

func TestSnapshotRestore(t *testing.T) {
	h := create(t, "21 * 2")
	data, errMsg := Snapshot(h)
	if errMsg != "" {
		t.Fatalf("Snapshot: %s", errMsg)
	}
	restored, errMsg := Restore(data)
	if errMsg != "" {
		t.Fatalf("Restore: %s", errMsg)
	}
	defer Destroy(restored)

	tag, env, errMsg := Run(restored)
	if errMsg != "" || tag != RunOK {
		t.Fatalf("Run(restored) = (%d, %q)", tag, errMsg)
	}
	var doc struct {
		Value json.Number `json:"value"`
	}
	if err := json.Unmarshal(env, &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Value.String() != "42" {
		t.Fatalf("value = %s, want 42", doc.Value)
	}
}

func TestFaultBarrier(t *testing.T) {
	tag, errMsg := safely(errors.PhaseResume, func() (int32, error) {
		panic("boom")
	})
	if tag != TagError {
		t.Fatalf("tag = %d, want TagError", tag)
	}
	if !strings.Contains(errMsg, "internal fault") || !strings.Contains(errMsg, "boom") {
		t.Fatalf("errMsg = %q", errMsg)
	}
}

func TestLimitSetters(t *testing.T) {
	h := create(t, strings.Join([]string{
		"s = 'x'",
		"while True:",
		"    s = s + s",
	}, "\n"))
	SetMemoryLimit(h, 1<<16)
	tag, env, errMsg := Run(h)
	if tag != RunError || !strings.Contains(errMsg, "MemoryError") {
		t.Fatalf("Run = (%d, %q), want RunError with summary", tag, errMsg)
	}
	var doc struct {
		Error struct {
			ExcType string `json:"exc_type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(env, &doc); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if doc.Error.ExcType != "MemoryError" {
		t.Fatalf("exc_type = %q, want MemoryError", doc.Error.ExcType)
	}
}
