package engine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	brook "github.com/brooklang/brook"
)

// Program is a compiled script, ready to execute any number of times.
type Program struct {
	name      string
	source    string
	externals []string
	module    []Stmt
	lines     []string

	// external name tables derived from externals
	bare       map[string]bool
	namespaces map[string]bool
	allowed    map[string]bool
}

// Compile parses source into a Program. name is the script name used in
// tracebacks. externals declares the host functions the script may
// call: bare names resolve as plain calls, dotted names declare a
// namespace whose attribute calls are reported as method calls.
//
// Errors are *Exception values of kind SyntaxError with a traceback
// frame pointing at the offending source position.
func Compile(source, name string, externals []string) (*Program, *Exception) {
	p := &Program{
		name:       name,
		source:     source,
		externals:  externals,
		lines:      strings.Split(source, "\n"),
		bare:       make(map[string]bool),
		namespaces: make(map[string]bool),
		allowed:    make(map[string]bool),
	}
	for _, ext := range externals {
		if ns, _, ok := strings.Cut(ext, "."); ok {
			p.namespaces[ns] = true
			p.allowed[ext] = true
		} else {
			p.bare[ext] = true
		}
	}

	toks, exc := lex(source)
	if exc != nil {
		return nil, p.finishSyntaxErr(exc)
	}
	module, exc := parse(toks)
	if exc != nil {
		return nil, p.finishSyntaxErr(exc)
	}
	p.module = module
	return p, nil
}

// finishSyntaxErr fills filename and preview text into frames produced
// before the Program existed.
func (p *Program) finishSyntaxErr(exc *Exception) *Exception {
	for i := range exc.Frames {
		exc.Frames[i].Filename = p.name
		exc.Frames[i].PreviewLine = p.lineText(exc.Frames[i].StartLine)
	}
	return exc
}

// Name returns the script name used in tracebacks.
func (p *Program) Name() string { return p.name }

// Externals returns the declared external names.
func (p *Program) Externals() []string { return p.externals }

// lineText returns the 1-based source line, or "" when out of range.
func (p *Program) lineText(line int) string {
	if line < 1 || line > len(p.lines) {
		return ""
	}
	return p.lines[line-1]
}

const snapshotVersion = 1

var snapshotMagic = []byte{'B', 'R', 'K', 'S'}

type snapshotPayload struct {
	Version   int      `cbor:"version"`
	Name      string   `cbor:"name"`
	Externals []string `cbor:"externals"`
	Source    string   `cbor:"source"`
}

// Snapshot serializes the program so Restore can rebuild it later,
// possibly in another process.
func (p *Program) Snapshot() ([]byte, error) {
	body, err := cbor.Marshal(snapshotPayload{
		Version:   snapshotVersion,
		Name:      p.name,
		Externals: p.externals,
		Source:    p.source,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	out := make([]byte, 0, len(snapshotMagic)+len(body))
	out = append(out, snapshotMagic...)
	out = append(out, body...)
	return out, nil
}

// Restore rebuilds a Program from Snapshot output.
func Restore(data []byte) (*Program, error) {
	if !bytes.HasPrefix(data, snapshotMagic) {
		return nil, fmt.Errorf("not a program snapshot")
	}
	var payload snapshotPayload
	if err := cbor.Unmarshal(data[len(snapshotMagic):], &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if payload.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", payload.Version)
	}
	p, exc := Compile(payload.Source, payload.Name, payload.Externals)
	if exc != nil {
		return nil, fmt.Errorf("snapshot contains invalid program: %s", exc.Summary())
	}
	return p, nil
}

// CallResolver answers external calls during Program.Run. Returning an
// error raises it in the script as a RuntimeError.
type CallResolver interface {
	Resolve(call *CallInfo) (Value, error)
}

// ResolverFunc adapts a function to CallResolver.
type ResolverFunc func(call *CallInfo) (Value, error)

func (f ResolverFunc) Resolve(call *CallInfo) (Value, error) { return f(call) }

// RunOutcome is the result of a completed Run.
type RunOutcome struct {
	Value Value
	Exc   *Exception
	Print string
	Usage brook.Usage
}

// Run executes the program to completion on the calling goroutine's
// behalf, answering external calls through resolver. A nil resolver
// raises RuntimeError in the script for every external call, which the
// script may catch.
func (p *Program) Run(limits brook.Limits, resolver CallResolver) RunOutcome {
	ex, step := p.Start(limits)
	defer ex.Close()

	var out RunOutcome
	for {
		out.Print += step.Print
		out.Usage = out.Usage.Max(step.Usage)
		switch step.Kind {
		case StepComplete:
			out.Value = step.Value
			return out
		case StepFailed:
			out.Exc = step.Exc
			return out
		case StepCall:
			if resolver == nil {
				step = ex.Resume(ExternalResult{Err: NewException(ExcRuntimeError,
					fmt.Sprintf("external function '%s' is not available", step.Call.Name))})
				continue
			}
			v, err := resolver.Resolve(step.Call)
			if err != nil {
				step = ex.Resume(ExternalResult{Err: NewException(ExcRuntimeError, err.Error())})
				continue
			}
			if v == nil {
				v = None
			}
			step = ex.Resume(ExternalResult{Value: v})
		default:
			// No ResumeAsFuture was issued, so a futures step cannot
			// occur here.
			out.Exc = NewException(ExcRuntimeError, "internal error: unexpected suspension")
			return out
		}
	}
}
