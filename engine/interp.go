package engine

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	brook "github.com/brooklang/brook"
)

// Scope is one lexical scope. Lookup walks the parent chain; assignment
// always binds in the current scope.
type Scope struct {
	vars   map[string]Value
	parent *Scope
}

func newScope(parent *Scope) *Scope {
	return &Scope{vars: make(map[string]Value), parent: parent}
}

func (s *Scope) lookup(name string) (Value, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *Scope) set(name string, v Value) {
	s.vars[name] = v
}

// CallInfo describes an external call the script is suspended on.
// Values are stable until the execution is resumed.
type CallInfo struct {
	ID     uint32
	Name   string
	Method bool
	Args   []Value
	Kwargs []Kwarg
}

// ExternalResult is the host's answer to an external call: a value, or
// an error the script observes as a raised exception.
type ExternalResult struct {
	Value Value
	Err   *Exception
}

type eventKind int

const (
	evDone eventKind = iota
	evCall
	evFutures
)

// event crosses from the interpreter goroutine to the driver. Exactly
// one event is emitted per step.
type event struct {
	kind      eventKind
	value     Value
	exc       *Exception
	call      *CallInfo
	futureIDs []uint32
	print     string
	usage     brook.Usage
}

type resumeKind int

const (
	resumeValue resumeKind = iota
	resumeErr
	resumeFuture
	resumeResults
	resumeCancel
)

type resumeMsg struct {
	kind    resumeKind
	value   Value
	exc     *Exception
	results map[uint32]ExternalResult
}

// frameRef tracks one live call frame for traceback capture. cur is the
// span of the statement or call currently evaluating in that frame.
type frameRef struct {
	name string
	cur  Span
}

// flow is non-local control leaving a statement: return, break,
// continue, or a raised exception. nil means normal completion.
type flow struct {
	kind flowKind
	val  Value
	exc  *Exception
	site Span
}

type flowKind int

const (
	flowReturn flowKind = iota + 1
	flowBreak
	flowContinue
	flowRaise
)

func raised(exc *Exception) *flow { return &flow{kind: flowRaise, exc: exc} }

// task is one running script. It lives on its own goroutine and trades
// events for resume messages with the driver in strict lockstep.
type task struct {
	prog    *Program
	tr      *tracker
	globals *Scope

	events chan *event
	resume chan resumeMsg
	quit   chan struct{}

	out     strings.Builder
	stack   []frameRef
	lastVal Value

	nextCallID  uint32
	outstanding map[uint32]*FutureValue
	order       []uint32
}

func newTask(prog *Program, limits brook.Limits) *task {
	return &task{
		prog:        prog,
		tr:          newTracker(limits),
		globals:     newScope(nil),
		events:      make(chan *event),
		resume:      make(chan resumeMsg),
		quit:        make(chan struct{}),
		stack:       []frameRef{{}},
		lastVal:     None,
		outstanding: make(map[uint32]*FutureValue),
	}
}

func (t *task) run() {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("interpreter panic",
				zap.String("script", t.prog.name),
				zap.Any("panic", r))
			t.emit(&event{kind: evDone, exc: NewException(ExcRuntimeError, fmt.Sprintf("internal error: %v", r))})
		}
	}()
	t.tr.beginStep()
	v, exc := t.execModule()
	if exc != nil && exc.Kind == excCancelled {
		// Driver is gone; nothing to report.
		return
	}
	t.emit(&event{kind: evDone, value: v, exc: exc})
}

// emit closes the current step and hands ev to the driver. It returns
// false if the execution was closed instead.
func (t *task) emit(ev *event) bool {
	t.tr.endStep()
	ev.print = t.takePrint()
	ev.usage = t.tr.usage()
	select {
	case t.events <- ev:
		return true
	case <-t.quit:
		return false
	}
}

// yield suspends on ev and blocks for the driver's resume message.
func (t *task) yield(ev *event) resumeMsg {
	if !t.emit(ev) {
		return resumeMsg{kind: resumeCancel}
	}
	select {
	case m := <-t.resume:
		t.tr.beginStep()
		return m
	case <-t.quit:
		return resumeMsg{kind: resumeCancel}
	}
}

func (t *task) takePrint() string {
	s := t.out.String()
	t.out.Reset()
	return s
}

func (t *task) cancelExc() *Exception {
	return NewException(excCancelled, "execution closed")
}

// attach fills in traceback frames for an exception that does not have
// any yet, using site as the raise position. Exceptions keep the frames
// from their original raise point while propagating.
func (t *task) attach(exc *Exception, site Span) *Exception {
	if exc.Frames == nil {
		exc.Frames = t.captureFrames(site)
	}
	return exc
}

func (t *task) captureFrames(site Span) []Frame {
	frames := make([]Frame, len(t.stack))
	for i, fr := range t.stack {
		sp := fr.cur
		if i == len(t.stack)-1 {
			sp = site
		}
		frames[i] = Frame{
			Filename:    t.prog.name,
			StartLine:   sp.Start.Line,
			StartColumn: sp.Start.Col,
			EndLine:     sp.End.Line,
			EndColumn:   sp.End.Col,
			FrameName:   fr.name,
			PreviewLine: t.prog.lineText(sp.Start.Line),
		}
	}
	return frames
}

func (t *task) raiseAt(kind ExcKind, msg string, site Span) *Exception {
	return t.attach(NewException(kind, msg), site)
}

// execModule runs the top level. The module's value is the value of the
// last top-level expression statement, or None.
func (t *task) execModule() (Value, *Exception) {
	for _, s := range t.prog.module {
		fl := t.execStmt(s, t.globals)
		if fl == nil {
			continue
		}
		switch fl.kind {
		case flowRaise:
			return nil, fl.exc
		case flowReturn:
			return nil, t.raiseAt(ExcSyntaxError, "'return' outside function", fl.site)
		case flowBreak:
			return nil, t.raiseAt(ExcSyntaxError, "'break' outside loop", fl.site)
		case flowContinue:
			return nil, t.raiseAt(ExcSyntaxError, "'continue' outside loop", fl.site)
		}
	}
	return t.lastVal, nil
}

func (t *task) execBlock(stmts []Stmt, sc *Scope) *flow {
	for _, s := range stmts {
		if fl := t.execStmt(s, sc); fl != nil {
			return fl
		}
	}
	return nil
}

func (t *task) execStmt(s Stmt, sc *Scope) *flow {
	t.stack[len(t.stack)-1].cur = s.Span()
	if exc := t.tr.checkTime(); exc != nil {
		return raised(t.attach(exc, s.Span()))
	}

	switch st := s.(type) {
	case *ExprStmt:
		v, exc := t.evalExpr(st.X, sc)
		if exc != nil {
			return raised(exc)
		}
		if sc == t.globals {
			t.lastVal = v
		}
		return nil

	case *AssignStmt:
		v, exc := t.evalExpr(st.Value, sc)
		if exc != nil {
			return raised(exc)
		}
		if exc := t.assign(st.Target, v, sc); exc != nil {
			return raised(exc)
		}
		return nil

	case *IfStmt:
		cond, exc := t.evalExpr(st.Cond, sc)
		if exc != nil {
			return raised(exc)
		}
		if cond.Truth() {
			return t.execBlock(st.Body, sc)
		}
		return t.execBlock(st.Else, sc)

	case *WhileStmt:
		for {
			if exc := t.tr.checkTime(); exc != nil {
				return raised(t.attach(exc, st.Cond.Span()))
			}
			cond, exc := t.evalExpr(st.Cond, sc)
			if exc != nil {
				return raised(exc)
			}
			if !cond.Truth() {
				return nil
			}
			fl := t.execBlock(st.Body, sc)
			if fl == nil || fl.kind == flowContinue {
				continue
			}
			if fl.kind == flowBreak {
				return nil
			}
			return fl
		}

	case *ForStmt:
		iter, exc := t.evalExpr(st.Iter, sc)
		if exc != nil {
			return raised(exc)
		}
		items, exc := t.iterate(iter, st.Iter.Span())
		if exc != nil {
			return raised(exc)
		}
		for _, item := range items {
			if exc := t.tr.checkTime(); exc != nil {
				return raised(t.attach(exc, st.Span()))
			}
			if exc := t.assign(st.Target, item, sc); exc != nil {
				return raised(exc)
			}
			fl := t.execBlock(st.Body, sc)
			if fl == nil || fl.kind == flowContinue {
				continue
			}
			if fl.kind == flowBreak {
				return nil
			}
			return fl
		}
		return nil

	case *FuncDefStmt:
		sc.set(st.Name, &FuncValue{
			Name:   st.Name,
			Params: st.Params,
			Body:   st.Body,
			Env:    sc,
			Async:  st.Async,
		})
		return nil

	case *ReturnStmt:
		val := None
		if st.Value != nil {
			var exc *Exception
			val, exc = t.evalExpr(st.Value, sc)
			if exc != nil {
				return raised(exc)
			}
		}
		return &flow{kind: flowReturn, val: val, site: st.S}

	case *RaiseStmt:
		if st.Exc == nil {
			return raised(t.raiseAt(ExcRuntimeError, "No active exception to re-raise", st.S))
		}
		v, exc := t.evalExpr(st.Exc, sc)
		if exc != nil {
			return raised(exc)
		}
		switch x := v.(type) {
		case *ExcValue:
			return raised(t.raiseAt(x.Kind, x.Msg, st.S))
		case *ExcTypeValue:
			return raised(t.raiseAt(x.Kind, "", st.S))
		default:
			return raised(t.raiseAt(ExcTypeError, "exceptions must derive from BaseException", st.S))
		}

	case *TryStmt:
		fl := t.execBlock(st.Body, sc)
		if fl == nil || fl.kind != flowRaise || fl.exc.Kind == excCancelled {
			return fl
		}
		for _, h := range st.Handlers {
			if h.Type != "" {
				if !knownExcName(h.Type) {
					return raised(t.raiseAt(ExcNameError, fmt.Sprintf("name '%s' is not defined", h.Type), h.S))
				}
				if !matchExcept(h.Type, fl.exc.Kind) {
					continue
				}
			}
			if h.Name != "" {
				sc.set(h.Name, &ExcValue{Kind: fl.exc.Kind, Msg: fl.exc.Msg})
			}
			return t.execBlock(h.Body, sc)
		}
		return fl

	case *PassStmt:
		return nil

	case *BreakStmt:
		return &flow{kind: flowBreak, site: st.S}

	case *ContinueStmt:
		return &flow{kind: flowContinue, site: st.S}

	default:
		return raised(t.raiseAt(ExcRuntimeError, fmt.Sprintf("internal error: unknown statement %T", s), s.Span()))
	}
}

func knownExcName(name string) bool {
	if name == "Exception" {
		return true
	}
	for _, k := range catchableKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

// matchExcept reports whether a handler naming typ catches kind.
// Exception catches every script exception.
func matchExcept(typ string, kind ExcKind) bool {
	return typ == "Exception" || typ == string(kind)
}

func (t *task) assign(target Expr, v Value, sc *Scope) *Exception {
	switch tg := target.(type) {
	case *NameExpr:
		sc.set(tg.Name, v)
		return nil

	case *TupleLit:
		items, ok := sequenceItems(v)
		if !ok {
			return t.raiseAt(ExcTypeError, fmt.Sprintf("cannot unpack non-sequence %s", typeName(v)), target.Span())
		}
		if len(items) < len(tg.Items) {
			return t.raiseAt(ExcValueError,
				fmt.Sprintf("not enough values to unpack (expected %d, got %d)", len(tg.Items), len(items)),
				target.Span())
		}
		if len(items) > len(tg.Items) {
			return t.raiseAt(ExcValueError,
				fmt.Sprintf("too many values to unpack (expected %d)", len(tg.Items)),
				target.Span())
		}
		for i, sub := range tg.Items {
			if exc := t.assign(sub, items[i], sc); exc != nil {
				return exc
			}
		}
		return nil

	case *IndexExpr:
		obj, exc := t.evalExpr(tg.X, sc)
		if exc != nil {
			return exc
		}
		idx, exc := t.evalExpr(tg.Idx, sc)
		if exc != nil {
			return exc
		}
		return t.setIndex(obj, idx, v, tg.Span())

	default:
		return t.raiseAt(ExcSyntaxError, "cannot assign to this expression", target.Span())
	}
}

func sequenceItems(v Value) ([]Value, bool) {
	switch x := v.(type) {
	case *ListValue:
		return x.Items, true
	case *TupleValue:
		return x.Items, true
	}
	return nil, false
}

func (t *task) setIndex(obj, idx, v Value, site Span) *Exception {
	switch o := obj.(type) {
	case *ListValue:
		i, ok := asIndex(idx)
		if !ok {
			return t.raiseAt(ExcTypeError,
				fmt.Sprintf("list indices must be integers, not %s", typeName(idx)), site)
		}
		if i < 0 {
			i += int64(len(o.Items))
		}
		if i < 0 || i >= int64(len(o.Items)) {
			return t.raiseAt(ExcIndexError, "list assignment index out of range", site)
		}
		o.Items[i] = v
		return nil

	case *DictValue:
		if exc := t.tr.alloc(valueCost); exc != nil {
			return t.attach(exc, site)
		}
		o.Set(idx, v)
		return nil

	default:
		return t.raiseAt(ExcTypeError,
			fmt.Sprintf("'%s' object does not support item assignment", typeName(obj)), site)
	}
}

func (t *task) iterate(v Value, site Span) ([]Value, *Exception) {
	switch x := v.(type) {
	case *ListValue:
		return append([]Value(nil), x.Items...), nil
	case *TupleValue:
		return x.Items, nil
	case *SetValue:
		return append([]Value(nil), x.Items...), nil
	case *DictValue:
		keys := make([]Value, 0, x.Len())
		for _, p := range x.Pairs() {
			keys = append(keys, p.Key)
		}
		return keys, nil
	case StrValue:
		out := make([]Value, 0, len(x))
		for _, r := range string(x) {
			out = append(out, StrValue(string(r)))
		}
		return out, nil
	case BytesValue:
		out := make([]Value, len(x))
		for i, b := range x {
			out[i] = IntValue(b)
		}
		return out, nil
	default:
		return nil, t.raiseAt(ExcTypeError, fmt.Sprintf("'%s' object is not iterable", typeName(v)), site)
	}
}

func (t *task) evalExpr(e Expr, sc *Scope) (Value, *Exception) {
	switch ex := e.(type) {
	case *NameExpr:
		return t.resolveName(ex.Name, sc, ex.S)
	case *IntLit:
		return normInt(ex.Val), nil
	case *FloatLit:
		return FloatValue(ex.Val), nil
	case *StrLit:
		return StrValue(ex.Val), nil
	case *BoolLit:
		return BoolValue(ex.Val), nil
	case *NoneLit:
		return None, nil
	case *EllipsisLit:
		return Ellipsis, nil

	case *ListLit:
		if exc := t.tr.alloc(valueCost * uint64(len(ex.Items)+1)); exc != nil {
			return nil, t.attach(exc, ex.S)
		}
		items := make([]Value, len(ex.Items))
		for i, it := range ex.Items {
			v, exc := t.evalExpr(it, sc)
			if exc != nil {
				return nil, exc
			}
			items[i] = v
		}
		return &ListValue{Items: items}, nil

	case *TupleLit:
		items := make([]Value, len(ex.Items))
		for i, it := range ex.Items {
			v, exc := t.evalExpr(it, sc)
			if exc != nil {
				return nil, exc
			}
			items[i] = v
		}
		return &TupleValue{Items: items}, nil

	case *DictLit:
		if exc := t.tr.alloc(valueCost * uint64(len(ex.Keys)+1)); exc != nil {
			return nil, t.attach(exc, ex.S)
		}
		d := NewDict()
		for i := range ex.Keys {
			k, exc := t.evalExpr(ex.Keys[i], sc)
			if exc != nil {
				return nil, exc
			}
			v, exc := t.evalExpr(ex.Vals[i], sc)
			if exc != nil {
				return nil, exc
			}
			d.Set(k, v)
		}
		return d, nil

	case *SetLit:
		if exc := t.tr.alloc(valueCost * uint64(len(ex.Items)+1)); exc != nil {
			return nil, t.attach(exc, ex.S)
		}
		s := &SetValue{}
		for _, it := range ex.Items {
			v, exc := t.evalExpr(it, sc)
			if exc != nil {
				return nil, exc
			}
			s.Add(v)
		}
		return s, nil

	case *BoolExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		if ex.Op == "or" {
			if x.Truth() {
				return x, nil
			}
		} else if !x.Truth() {
			return x, nil
		}
		return t.evalExpr(ex.Y, sc)

	case *UnaryExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		return t.unaryOp(ex.Op, x, ex.S)

	case *BinExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		y, exc := t.evalExpr(ex.Y, sc)
		if exc != nil {
			return nil, exc
		}
		return t.binaryOp(ex.Op, x, y, ex.S)

	case *CompareExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		y, exc := t.evalExpr(ex.Y, sc)
		if exc != nil {
			return nil, exc
		}
		return t.compareOp(ex.Op, x, y, ex.S)

	case *CallExpr:
		fn, exc := t.evalExpr(ex.Fn, sc)
		if exc != nil {
			return nil, exc
		}
		args := make([]Value, len(ex.Args))
		for i, a := range ex.Args {
			v, exc := t.evalExpr(a, sc)
			if exc != nil {
				return nil, exc
			}
			args[i] = v
		}
		var kwargs []Kwarg
		for _, kw := range ex.Kwargs {
			v, exc := t.evalExpr(kw.Value, sc)
			if exc != nil {
				return nil, exc
			}
			kwargs = append(kwargs, Kwarg{Name: kw.Name, Value: v})
		}
		return t.call(fn, args, kwargs, ex.S)

	case *AttrExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		if ns, ok := x.(*ExternalNS); ok {
			full := ns.Name + "." + ex.Name
			if t.prog.allowed[full] {
				return &externalFunc{name: full, method: true}, nil
			}
			return nil, t.raiseAt(ExcAttributeError,
				fmt.Sprintf("external '%s' has no attribute '%s'", ns.Name, ex.Name), ex.S)
		}
		return nil, t.raiseAt(ExcAttributeError,
			fmt.Sprintf("'%s' object has no attribute '%s'", typeName(x), ex.Name), ex.S)

	case *IndexExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		idx, exc := t.evalExpr(ex.Idx, sc)
		if exc != nil {
			return nil, exc
		}
		return t.getIndex(x, idx, ex.S)

	case *AwaitExpr:
		x, exc := t.evalExpr(ex.X, sc)
		if exc != nil {
			return nil, exc
		}
		return t.await(x, ex.S)

	default:
		return nil, t.raiseAt(ExcRuntimeError, fmt.Sprintf("internal error: unknown expression %T", e), e.Span())
	}
}

func (t *task) resolveName(name string, sc *Scope, site Span) (Value, *Exception) {
	if v, ok := sc.lookup(name); ok {
		return v, nil
	}
	if v, ok := builtins[name]; ok {
		return v, nil
	}
	if t.prog.bare[name] {
		return &externalFunc{name: name}, nil
	}
	if t.prog.namespaces[name] {
		return &ExternalNS{Name: name}, nil
	}
	return nil, t.raiseAt(ExcNameError, fmt.Sprintf("name '%s' is not defined", name), site)
}

func (t *task) call(fn Value, args []Value, kwargs []Kwarg, site Span) (Value, *Exception) {
	switch f := fn.(type) {
	case *BuiltinValue:
		if len(kwargs) > 0 {
			return nil, t.raiseAt(ExcTypeError, fmt.Sprintf("%s() takes no keyword arguments", f.Name), site)
		}
		return f.fn(t, args, site)

	case *FuncValue:
		if f.Async {
			return &coroutineValue{fn: f, args: args, kwargs: kwargs, call: site}, nil
		}
		return t.callFunc(f, args, kwargs, site)

	case *externalFunc:
		return t.callExternal(f.name, f.method, args, kwargs, site)

	case *ExcTypeValue:
		switch len(args) {
		case 0:
			return &ExcValue{Kind: f.Kind}, nil
		case 1:
			return &ExcValue{Kind: f.Kind, Msg: Str(args[0])}, nil
		default:
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("%s() takes at most 1 argument (%d given)", f.Kind, len(args)), site)
		}

	default:
		return nil, t.raiseAt(ExcTypeError, fmt.Sprintf("'%s' object is not callable", typeName(fn)), site)
	}
}

func (t *task) callFunc(fn *FuncValue, args []Value, kwargs []Kwarg, site Span) (Value, *Exception) {
	if exc := t.tr.enter(); exc != nil {
		return nil, t.attach(exc, site)
	}
	defer t.tr.exit()
	if exc := t.tr.alloc(frameCost); exc != nil {
		return nil, t.attach(exc, site)
	}

	sc := newScope(fn.Env)
	if len(args) > len(fn.Params) {
		return nil, t.raiseAt(ExcTypeError,
			fmt.Sprintf("%s() takes %d positional arguments but %d were given",
				fn.Name, len(fn.Params), len(args)), site)
	}
	for i, a := range args {
		sc.set(fn.Params[i].Name, a)
	}
	for _, kw := range kwargs {
		found := false
		for _, p := range fn.Params {
			if p.Name == kw.Name {
				found = true
				break
			}
		}
		if !found {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("%s() got an unexpected keyword argument '%s'", fn.Name, kw.Name), site)
		}
		if _, dup := sc.vars[kw.Name]; dup {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("%s() got multiple values for argument '%s'", fn.Name, kw.Name), site)
		}
		sc.set(kw.Name, kw.Value)
	}
	for _, p := range fn.Params {
		if _, ok := sc.vars[p.Name]; ok {
			continue
		}
		if p.Default == nil {
			return nil, t.raiseAt(ExcTypeError,
				fmt.Sprintf("%s() missing required argument: '%s'", fn.Name, p.Name), site)
		}
		dv, exc := t.evalExpr(p.Default, fn.Env)
		if exc != nil {
			return nil, exc
		}
		sc.set(p.Name, dv)
	}

	t.stack[len(t.stack)-1].cur = site
	t.stack = append(t.stack, frameRef{name: fn.Name})
	defer func() { t.stack = t.stack[:len(t.stack)-1] }()

	fl := t.execBlock(fn.Body, sc)
	if fl == nil {
		return None, nil
	}
	switch fl.kind {
	case flowReturn:
		return fl.val, nil
	case flowRaise:
		return nil, fl.exc
	case flowContinue:
		return nil, t.raiseAt(ExcSyntaxError, "'continue' outside loop", fl.site)
	default:
		return nil, t.raiseAt(ExcSyntaxError, "'break' outside loop", fl.site)
	}
}

// callExternal suspends the script on a host call. The host answers
// with a value, an error, or a future to resolve later.
func (t *task) callExternal(name string, method bool, args []Value, kwargs []Kwarg, site Span) (Value, *Exception) {
	id := t.nextCallID
	t.nextCallID++
	info := &CallInfo{ID: id, Name: name, Method: method, Args: args, Kwargs: kwargs}
	r := t.yield(&event{kind: evCall, call: info})
	switch r.kind {
	case resumeValue:
		v := r.value
		if v == nil {
			v = None
		}
		return v, nil
	case resumeErr:
		return nil, t.attach(r.exc, site)
	case resumeFuture:
		f := &FutureValue{ID: id}
		t.outstanding[id] = f
		t.order = append(t.order, id)
		return f, nil
	case resumeCancel:
		return nil, t.cancelExc()
	default:
		return nil, t.raiseAt(ExcRuntimeError, "internal error: unexpected resume message", site)
	}
}

// await resolves an awaitable. Unresolved futures suspend the script
// until the host supplies results; partial results suspend again with
// the remaining ids.
func (t *task) await(v Value, site Span) (Value, *Exception) {
	switch x := v.(type) {
	case *coroutineValue:
		return t.callFunc(x.fn, x.args, x.kwargs, site)

	case *gatherValue:
		out := make([]Value, len(x.items))
		for i, it := range x.items {
			av, exc := t.await(it, site)
			if exc != nil {
				return nil, exc
			}
			out[i] = av
		}
		return &ListValue{Items: out}, nil

	case *FutureValue:
		for !x.Resolved {
			ids := append([]uint32(nil), t.order...)
			r := t.yield(&event{kind: evFutures, futureIDs: ids})
			switch r.kind {
			case resumeResults:
				t.applyResults(r.results)
			case resumeCancel:
				return nil, t.cancelExc()
			default:
				return nil, t.raiseAt(ExcRuntimeError, "internal error: unexpected resume message", site)
			}
		}
		if x.Err != nil {
			return nil, t.attach(&Exception{Kind: x.Err.Kind, Msg: x.Err.Msg}, site)
		}
		return x.Value, nil

	default:
		return v, nil
	}
}

func (t *task) applyResults(results map[uint32]ExternalResult) {
	for id, res := range results {
		f, ok := t.outstanding[id]
		if !ok {
			continue
		}
		f.Resolved = true
		if res.Err != nil {
			f.Err = res.Err
		} else if res.Value != nil {
			f.Value = res.Value
		} else {
			f.Value = None
		}
		delete(t.outstanding, id)
		for i, oid := range t.order {
			if oid == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
	}
}

func typeName(v Value) string { return v.Type() }
