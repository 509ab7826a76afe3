package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseResume,
				Kind:   KindDecode,
				Path:   []string{"results", "17"},
				Detail: "call id is not outstanding",
			},
			contains: []string{"[resume]", "decode", "results.17", "not outstanding"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseStart,
				Kind:  KindState,
			},
			contains: []string{"[start]", "state"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRestore,
				Kind:   KindSerialize,
				Detail: "bad payload",
				Cause:  errors.New("unexpected EOF"),
			},
			contains: []string{"[restore]", "serialize", "bad payload", "caused by", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseCreate,
		Kind:  KindCompile,
		Cause: cause,
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should match the cause chain")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	a := &Error{Phase: PhaseResume, Kind: KindState}
	b := &Error{Phase: PhaseResume, Kind: KindState, Detail: "different detail"}
	c := &Error{Phase: PhaseResume, Kind: KindDecode}

	if !errors.Is(a, b) {
		t.Error("errors with same phase and kind should match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different kinds should not match")
	}
	if errors.Is(a, errors.New("plain")) {
		t.Error("plain errors should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseFutures, KindDecode).
		Path("errors", "3").
		Value("xyz").
		Detail("invalid call id: %q", "xyz").
		Cause(cause).
		Build()

	if err.Phase != PhaseFutures || err.Kind != KindDecode {
		t.Fatalf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if err.Detail != `invalid call id: "xyz"` {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Value != "xyz" {
		t.Errorf("value = %v", err.Value)
	}
	if err.Cause != cause {
		t.Error("cause not preserved")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err      *Error
		kind     Kind
		contains string
	}{
		{MissingInput(PhaseCreate, "code"), KindInput, "code is required"},
		{InvalidUTF8(PhaseResume, "value_json"), KindInput, "not valid UTF-8"},
		{Decode(PhaseResume, "invalid JSON", nil), KindDecode, "invalid JSON"},
		{Compile(errors.New("syntax")), KindCompile, "syntax"},
		{WrongState(PhaseStart, "Ready", "Complete"), KindState, "not in Ready state"},
		{Execution(PhaseRun, "ZeroDivisionError: division by zero"), KindExecution, "division by zero"},
		{Serialize(PhaseSnapshot, "encode failed", nil), KindSerialize, "encode failed"},
		{Internal(PhaseResume, "caught panic"), KindInternal, "caught panic"},
	}
	for _, tt := range tests {
		if tt.err.Kind != tt.kind {
			t.Errorf("%v: kind = %s, want %s", tt.err, tt.err.Kind, tt.kind)
		}
		if !strings.Contains(tt.err.Error(), tt.contains) {
			t.Errorf("%q does not contain %q", tt.err.Error(), tt.contains)
		}
	}
}
