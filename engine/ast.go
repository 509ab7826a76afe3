package engine

import "math/big"

// Pos is a 1-based line and column position in the source.
type Pos struct {
	Line int
	Col  int
}

// Span covers a source region from Start up to and including End's
// column on End's line.
type Span struct {
	Start Pos
	End   Pos
}

func span(start, end Pos) Span { return Span{Start: start, End: end} }

// cover returns the smallest span containing both a and b.
func cover(a, b Span) Span {
	s := a
	if b.Start.Line < s.Start.Line || (b.Start.Line == s.Start.Line && b.Start.Col < s.Start.Col) {
		s.Start = b.Start
	}
	if b.End.Line > s.End.Line || (b.End.Line == s.End.Line && b.End.Col > s.End.Col) {
		s.End = b.End
	}
	return s
}

// Expr is an expression node.
type Expr interface {
	Span() Span
}

// Stmt is a statement node.
type Stmt interface {
	Span() Span
}

type (
	// NameExpr references a variable, builtin, or external.
	NameExpr struct {
		S    Span
		Name string
	}

	// IntLit is an integer literal of arbitrary width.
	IntLit struct {
		S   Span
		Val *big.Int
	}

	FloatLit struct {
		S   Span
		Val float64
	}

	StrLit struct {
		S   Span
		Val string
	}

	BoolLit struct {
		S   Span
		Val bool
	}

	NoneLit struct{ S Span }

	EllipsisLit struct{ S Span }

	ListLit struct {
		S     Span
		Items []Expr
	}

	// TupleLit is a parenthesized or bare comma-separated sequence. As
	// an assignment target it unpacks.
	TupleLit struct {
		S     Span
		Items []Expr
	}

	DictLit struct {
		S    Span
		Keys []Expr
		Vals []Expr
	}

	SetLit struct {
		S     Span
		Items []Expr
	}

	// UnaryExpr is -x, +x, or not x.
	UnaryExpr struct {
		S  Span
		Op string
		X  Expr
	}

	// BinExpr is an arithmetic operation: + - * / // % **.
	BinExpr struct {
		S    Span
		Op   string
		X, Y Expr
	}

	// BoolExpr is a short-circuiting and/or.
	BoolExpr struct {
		S    Span
		Op   string
		X, Y Expr
	}

	// CompareExpr is == != < <= > >= or in.
	CompareExpr struct {
		S    Span
		Op   string
		X, Y Expr
	}

	KwargExpr struct {
		Name  string
		Value Expr
	}

	CallExpr struct {
		S      Span
		Fn     Expr
		Args   []Expr
		Kwargs []KwargExpr
	}

	AttrExpr struct {
		S    Span
		X    Expr
		Name string
	}

	IndexExpr struct {
		S   Span
		X   Expr
		Idx Expr
	}

	AwaitExpr struct {
		S Span
		X Expr
	}
)

func (e *NameExpr) Span() Span    { return e.S }
func (e *IntLit) Span() Span      { return e.S }
func (e *FloatLit) Span() Span    { return e.S }
func (e *StrLit) Span() Span      { return e.S }
func (e *BoolLit) Span() Span     { return e.S }
func (e *NoneLit) Span() Span     { return e.S }
func (e *EllipsisLit) Span() Span { return e.S }
func (e *ListLit) Span() Span     { return e.S }
func (e *TupleLit) Span() Span    { return e.S }
func (e *DictLit) Span() Span     { return e.S }
func (e *SetLit) Span() Span      { return e.S }
func (e *UnaryExpr) Span() Span   { return e.S }
func (e *BinExpr) Span() Span     { return e.S }
func (e *BoolExpr) Span() Span    { return e.S }
func (e *CompareExpr) Span() Span { return e.S }
func (e *CallExpr) Span() Span    { return e.S }
func (e *AttrExpr) Span() Span    { return e.S }
func (e *IndexExpr) Span() Span   { return e.S }
func (e *AwaitExpr) Span() Span   { return e.S }

// Param is one declared function parameter, with an optional default.
type Param struct {
	Name    string
	Default Expr
}

type (
	ExprStmt struct {
		S Span
		X Expr
	}

	// AssignStmt assigns Value to Target. Target is a NameExpr, an
	// IndexExpr, or a TupleLit of targets (unpacking).
	AssignStmt struct {
		S      Span
		Target Expr
		Value  Expr
	}

	IfStmt struct {
		S    Span
		Cond Expr
		Body []Stmt
		Else []Stmt // elif chains nest here
	}

	WhileStmt struct {
		S    Span
		Cond Expr
		Body []Stmt
	}

	ForStmt struct {
		S      Span
		Target Expr
		Iter   Expr
		Body   []Stmt
	}

	FuncDefStmt struct {
		S      Span
		Name   string
		Params []Param
		Body   []Stmt
		Async  bool
	}

	ReturnStmt struct {
		S     Span
		Value Expr // nil returns None
	}

	RaiseStmt struct {
		S   Span
		Exc Expr
	}

	ExceptClause struct {
		S    Span
		Type string // empty catches everything
		Name string // `as name` binding, may be empty
		Body []Stmt
	}

	TryStmt struct {
		S        Span
		Body     []Stmt
		Handlers []ExceptClause
	}

	PassStmt struct{ S Span }

	BreakStmt struct{ S Span }

	ContinueStmt struct{ S Span }
)

func (s *ExprStmt) Span() Span     { return s.S }
func (s *AssignStmt) Span() Span   { return s.S }
func (s *IfStmt) Span() Span       { return s.S }
func (s *WhileStmt) Span() Span    { return s.S }
func (s *ForStmt) Span() Span      { return s.S }
func (s *FuncDefStmt) Span() Span  { return s.S }
func (s *ReturnStmt) Span() Span   { return s.S }
func (s *RaiseStmt) Span() Span    { return s.S }
func (s *TryStmt) Span() Span      { return s.S }
func (s *PassStmt) Span() Span     { return s.S }
func (s *BreakStmt) Span() Span    { return s.S }
func (s *ContinueStmt) Span() Span { return s.S }
