package engine

import "fmt"

// parser builds the statement tree from the token stream. Errors are
// SyntaxError exceptions pointing at the offending token.
type parser struct {
	toks []token
	i    int
}

func parse(toks []token) ([]Stmt, *Exception) {
	p := &parser{toks: toks}
	var stmts []Stmt
	for {
		if p.cur().kind == tokEOF {
			return stmts, nil
		}
		if p.cur().kind == tokNewline {
			p.i++
			continue
		}
		s, exc := p.statement()
		if exc != nil {
			return nil, exc
		}
		stmts = append(stmts, s)
	}
}

func (p *parser) cur() token  { return p.toks[p.i] }
func (p *parser) peek() token { return p.toks[min(p.i+1, len(p.toks)-1)] }

func (p *parser) errf(tok token, format string, args ...any) *Exception {
	return syntaxErrAt(fmt.Sprintf(format, args...), tok.pos.Line, tok.pos.Col)
}

func (p *parser) acceptOp(text string) bool {
	if t := p.cur(); t.kind == tokOp && t.text == text {
		p.i++
		return true
	}
	return false
}

func (p *parser) acceptKw(word string) bool {
	if t := p.cur(); t.kind == tokKeyword && t.text == word {
		p.i++
		return true
	}
	return false
}

func (p *parser) expectOp(text string) *Exception {
	if !p.acceptOp(text) {
		return p.errf(p.cur(), "expected '%s', found %s", text, p.cur())
	}
	return nil
}

func (p *parser) expectNewline() *Exception {
	if t := p.cur(); t.kind == tokNewline || t.kind == tokEOF {
		if t.kind == tokNewline {
			p.i++
		}
		return nil
	}
	return p.errf(p.cur(), "unexpected %s", p.cur())
}

func (p *parser) expectName() (token, *Exception) {
	t := p.cur()
	if t.kind != tokName {
		return token{}, p.errf(t, "expected name, found %s", t)
	}
	p.i++
	return t, nil
}

func (p *parser) statement() (Stmt, *Exception) {
	t := p.cur()
	if t.kind == tokKeyword {
		switch t.text {
		case "if":
			return p.ifStmt()
		case "while":
			return p.whileStmt()
		case "for":
			return p.forStmt()
		case "try":
			return p.tryStmt()
		case "def":
			return p.funcDef(false)
		case "async":
			p.i++
			if p.cur().kind != tokKeyword || p.cur().text != "def" {
				return nil, p.errf(p.cur(), "expected 'def' after 'async'")
			}
			return p.funcDef(true)
		}
	}
	return p.simpleLine()
}

func (p *parser) simpleLine() (Stmt, *Exception) {
	s, exc := p.smallStmt()
	if exc != nil {
		return nil, exc
	}
	if exc := p.expectNewline(); exc != nil {
		return nil, exc
	}
	return s, nil
}

func (p *parser) smallStmt() (Stmt, *Exception) {
	t := p.cur()
	if t.kind == tokKeyword {
		switch t.text {
		case "pass":
			p.i++
			return &PassStmt{S: t.span()}, nil
		case "break":
			p.i++
			return &BreakStmt{S: t.span()}, nil
		case "continue":
			p.i++
			return &ContinueStmt{S: t.span()}, nil
		case "return":
			p.i++
			if k := p.cur().kind; k == tokNewline || k == tokEOF {
				return &ReturnStmt{S: t.span()}, nil
			}
			v, exc := p.exprList()
			if exc != nil {
				return nil, exc
			}
			return &ReturnStmt{S: cover(t.span(), v.Span()), Value: v}, nil
		case "raise":
			p.i++
			if k := p.cur().kind; k == tokNewline || k == tokEOF {
				return &RaiseStmt{S: t.span()}, nil
			}
			v, exc := p.expr()
			if exc != nil {
				return nil, exc
			}
			return &RaiseStmt{S: cover(t.span(), v.Span()), Exc: v}, nil
		}
	}
	return p.exprStmt()
}

var augOps = map[string]string{"+=": "+", "-=": "-", "*=": "*", "/=": "/", "%=": "%"}

func (p *parser) exprStmt() (Stmt, *Exception) {
	lhs, exc := p.exprList()
	if exc != nil {
		return nil, exc
	}
	if t := p.cur(); t.kind == tokOp {
		if t.text == "=" {
			p.i++
			if exc := checkTarget(lhs); exc != nil {
				return nil, exc
			}
			rhs, exc := p.exprList()
			if exc != nil {
				return nil, exc
			}
			return &AssignStmt{S: cover(lhs.Span(), rhs.Span()), Target: lhs, Value: rhs}, nil
		}
		if base, ok := augOps[t.text]; ok {
			p.i++
			switch lhs.(type) {
			case *NameExpr, *IndexExpr:
			default:
				return nil, p.errf(t, "invalid target for augmented assignment")
			}
			rhs, exc := p.expr()
			if exc != nil {
				return nil, exc
			}
			s := cover(lhs.Span(), rhs.Span())
			return &AssignStmt{
				S:      s,
				Target: lhs,
				Value:  &BinExpr{S: s, Op: base, X: lhs, Y: rhs},
			}, nil
		}
	}
	return &ExprStmt{S: lhs.Span(), X: lhs}, nil
}

func checkTarget(e Expr) *Exception {
	switch x := e.(type) {
	case *NameExpr, *IndexExpr:
		return nil
	case *TupleLit:
		for _, it := range x.Items {
			if exc := checkTarget(it); exc != nil {
				return exc
			}
		}
		return nil
	default:
		s := e.Span()
		return syntaxErrAt("cannot assign to this expression", s.Start.Line, s.Start.Col)
	}
}

// suite parses ':' NEWLINE INDENT stmt+ DEDENT.
func (p *parser) suite() ([]Stmt, *Exception) {
	if exc := p.expectOp(":"); exc != nil {
		return nil, exc
	}
	if exc := p.expectNewline(); exc != nil {
		return nil, exc
	}
	if p.cur().kind != tokIndent {
		return nil, p.errf(p.cur(), "expected an indented block")
	}
	p.i++
	var body []Stmt
	for {
		switch p.cur().kind {
		case tokDedent:
			p.i++
			if len(body) == 0 {
				return nil, p.errf(p.cur(), "expected an indented block")
			}
			return body, nil
		case tokNewline:
			p.i++
		case tokEOF:
			return nil, p.errf(p.cur(), "unexpected end of input in block")
		default:
			s, exc := p.statement()
			if exc != nil {
				return nil, exc
			}
			body = append(body, s)
		}
	}
}

func (p *parser) ifStmt() (Stmt, *Exception) {
	start := p.cur()
	p.i++ // if / elif
	cond, exc := p.expr()
	if exc != nil {
		return nil, exc
	}
	body, exc := p.suite()
	if exc != nil {
		return nil, exc
	}
	node := &IfStmt{S: cover(start.span(), cond.Span()), Cond: cond, Body: body}
	if t := p.cur(); t.kind == tokKeyword && t.text == "elif" {
		nested, exc := p.ifStmt()
		if exc != nil {
			return nil, exc
		}
		node.Else = []Stmt{nested}
	} else if p.acceptKw("else") {
		node.Else, exc = p.suite()
		if exc != nil {
			return nil, exc
		}
	}
	return node, nil
}

func (p *parser) whileStmt() (Stmt, *Exception) {
	start := p.cur()
	p.i++
	cond, exc := p.expr()
	if exc != nil {
		return nil, exc
	}
	body, exc := p.suite()
	if exc != nil {
		return nil, exc
	}
	return &WhileStmt{S: cover(start.span(), cond.Span()), Cond: cond, Body: body}, nil
}

func (p *parser) forStmt() (Stmt, *Exception) {
	start := p.cur()
	p.i++
	target, exc := p.exprList()
	if exc != nil {
		return nil, exc
	}
	if exc := checkTarget(target); exc != nil {
		return nil, exc
	}
	if !p.acceptKw("in") {
		return nil, p.errf(p.cur(), "expected 'in', found %s", p.cur())
	}
	iter, exc := p.expr()
	if exc != nil {
		return nil, exc
	}
	body, exc := p.suite()
	if exc != nil {
		return nil, exc
	}
	return &ForStmt{S: cover(start.span(), iter.Span()), Target: target, Iter: iter, Body: body}, nil
}

func (p *parser) tryStmt() (Stmt, *Exception) {
	start := p.cur()
	p.i++
	body, exc := p.suite()
	if exc != nil {
		return nil, exc
	}
	node := &TryStmt{S: start.span(), Body: body}
	for {
		t := p.cur()
		if t.kind != tokKeyword || t.text != "except" {
			break
		}
		p.i++
		clause := ExceptClause{S: t.span()}
		if p.cur().kind == tokName {
			clause.Type = p.cur().text
			p.i++
			if p.acceptKw("as") {
				name, exc := p.expectName()
				if exc != nil {
					return nil, exc
				}
				clause.Name = name.text
			}
		}
		clause.Body, exc = p.suite()
		if exc != nil {
			return nil, exc
		}
		node.Handlers = append(node.Handlers, clause)
	}
	if len(node.Handlers) == 0 {
		return nil, p.errf(p.cur(), "expected 'except' after try block")
	}
	return node, nil
}

func (p *parser) funcDef(async bool) (Stmt, *Exception) {
	start := p.cur()
	p.i++ // def
	name, exc := p.expectName()
	if exc != nil {
		return nil, exc
	}
	if exc := p.expectOp("("); exc != nil {
		return nil, exc
	}
	var params []Param
	sawDefault := false
	for !p.acceptOp(")") {
		if len(params) > 0 {
			if exc := p.expectOp(","); exc != nil {
				return nil, exc
			}
			if p.acceptOp(")") {
				goto closed
			}
		}
		{
			pname, exc := p.expectName()
			if exc != nil {
				return nil, exc
			}
			param := Param{Name: pname.text}
			if p.acceptOp("=") {
				param.Default, exc = p.expr()
				if exc != nil {
					return nil, exc
				}
				sawDefault = true
			} else if sawDefault {
				return nil, p.errf(pname, "parameter without a default follows parameter with a default")
			}
			params = append(params, param)
		}
	}
closed:
	body, exc := p.suite()
	if exc != nil {
		return nil, exc
	}
	return &FuncDefStmt{
		S:      cover(start.span(), name.span()),
		Name:   name.text,
		Params: params,
		Body:   body,
		Async:  async,
	}, nil
}

// exprList parses one or more comma-separated expressions; two or more
// form a tuple.
func (p *parser) exprList() (Expr, *Exception) {
	first, exc := p.expr()
	if exc != nil {
		return nil, exc
	}
	if t := p.cur(); t.kind != tokOp || t.text != "," {
		return first, nil
	}
	items := []Expr{first}
	for p.acceptOp(",") {
		if k := p.cur(); k.kind == tokNewline || k.kind == tokEOF ||
			(k.kind == tokOp && (k.text == "=" || k.text == ")")) {
			break
		}
		e, exc := p.expr()
		if exc != nil {
			return nil, exc
		}
		items = append(items, e)
	}
	s := items[0].Span()
	for _, it := range items[1:] {
		s = cover(s, it.Span())
	}
	return &TupleLit{S: s, Items: items}, nil
}

func (p *parser) expr() (Expr, *Exception) { return p.orExpr() }

func (p *parser) orExpr() (Expr, *Exception) {
	x, exc := p.andExpr()
	if exc != nil {
		return nil, exc
	}
	for p.acceptKw("or") {
		y, exc := p.andExpr()
		if exc != nil {
			return nil, exc
		}
		x = &BoolExpr{S: cover(x.Span(), y.Span()), Op: "or", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) andExpr() (Expr, *Exception) {
	x, exc := p.notExpr()
	if exc != nil {
		return nil, exc
	}
	for p.acceptKw("and") {
		y, exc := p.notExpr()
		if exc != nil {
			return nil, exc
		}
		x = &BoolExpr{S: cover(x.Span(), y.Span()), Op: "and", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) notExpr() (Expr, *Exception) {
	if t := p.cur(); t.kind == tokKeyword && t.text == "not" {
		p.i++
		x, exc := p.notExpr()
		if exc != nil {
			return nil, exc
		}
		return &UnaryExpr{S: cover(t.span(), x.Span()), Op: "not", X: x}, nil
	}
	return p.comparison()
}

var compareOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *parser) comparison() (Expr, *Exception) {
	x, exc := p.arith()
	if exc != nil {
		return nil, exc
	}
	t := p.cur()
	op := ""
	if t.kind == tokOp && compareOps[t.text] {
		op = t.text
	} else if t.kind == tokKeyword && t.text == "in" {
		op = "in"
	}
	if op == "" {
		return x, nil
	}
	p.i++
	y, exc := p.arith()
	if exc != nil {
		return nil, exc
	}
	return &CompareExpr{S: cover(x.Span(), y.Span()), Op: op, X: x, Y: y}, nil
}

func (p *parser) arith() (Expr, *Exception) {
	x, exc := p.term()
	if exc != nil {
		return nil, exc
	}
	for {
		t := p.cur()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return x, nil
		}
		p.i++
		y, exc := p.term()
		if exc != nil {
			return nil, exc
		}
		x = &BinExpr{S: cover(x.Span(), y.Span()), Op: t.text, X: x, Y: y}
	}
}

func (p *parser) term() (Expr, *Exception) {
	x, exc := p.unary()
	if exc != nil {
		return nil, exc
	}
	for {
		t := p.cur()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "//" && t.text != "%") {
			return x, nil
		}
		p.i++
		y, exc := p.unary()
		if exc != nil {
			return nil, exc
		}
		x = &BinExpr{S: cover(x.Span(), y.Span()), Op: t.text, X: x, Y: y}
	}
}

func (p *parser) unary() (Expr, *Exception) {
	if t := p.cur(); t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.i++
		x, exc := p.unary()
		if exc != nil {
			return nil, exc
		}
		return &UnaryExpr{S: cover(t.span(), x.Span()), Op: t.text, X: x}, nil
	}
	if t := p.cur(); t.kind == tokKeyword && t.text == "await" {
		p.i++
		x, exc := p.unary()
		if exc != nil {
			return nil, exc
		}
		return &AwaitExpr{S: cover(t.span(), x.Span()), X: x}, nil
	}
	return p.power()
}

func (p *parser) power() (Expr, *Exception) {
	x, exc := p.primary()
	if exc != nil {
		return nil, exc
	}
	if t := p.cur(); t.kind == tokOp && t.text == "**" {
		p.i++
		// right associative
		y, exc := p.unary()
		if exc != nil {
			return nil, exc
		}
		return &BinExpr{S: cover(x.Span(), y.Span()), Op: "**", X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) primary() (Expr, *Exception) {
	x, exc := p.atom()
	if exc != nil {
		return nil, exc
	}
	for {
		t := p.cur()
		if t.kind != tokOp {
			return x, nil
		}
		switch t.text {
		case "(":
			p.i++
			args, kwargs, end, exc := p.callArgs()
			if exc != nil {
				return nil, exc
			}
			x = &CallExpr{S: cover(x.Span(), end), Fn: x, Args: args, Kwargs: kwargs}
		case "[":
			p.i++
			idx, exc := p.expr()
			if exc != nil {
				return nil, exc
			}
			closeTok := p.cur()
			if exc := p.expectOp("]"); exc != nil {
				return nil, exc
			}
			x = &IndexExpr{S: cover(x.Span(), closeTok.span()), X: x, Idx: idx}
		case ".":
			p.i++
			name, exc := p.expectName()
			if exc != nil {
				return nil, exc
			}
			x = &AttrExpr{S: cover(x.Span(), name.span()), X: x, Name: name.text}
		default:
			return x, nil
		}
	}
}

func (p *parser) callArgs() ([]Expr, []KwargExpr, Span, *Exception) {
	var args []Expr
	var kwargs []KwargExpr
	for {
		if t := p.cur(); t.kind == tokOp && t.text == ")" {
			p.i++
			return args, kwargs, t.span(), nil
		}
		if len(args)+len(kwargs) > 0 {
			if exc := p.expectOp(","); exc != nil {
				return nil, nil, Span{}, exc
			}
			if t := p.cur(); t.kind == tokOp && t.text == ")" {
				p.i++
				return args, kwargs, t.span(), nil
			}
		}
		if t := p.cur(); t.kind == tokName && p.peek().kind == tokOp && p.peek().text == "=" {
			for _, kw := range kwargs {
				if kw.Name == t.text {
					return nil, nil, Span{}, p.errf(t, "keyword argument repeated: %s", t.text)
				}
			}
			p.i += 2
			v, exc := p.expr()
			if exc != nil {
				return nil, nil, Span{}, exc
			}
			kwargs = append(kwargs, KwargExpr{Name: t.text, Value: v})
			continue
		}
		if len(kwargs) > 0 {
			return nil, nil, Span{}, p.errf(p.cur(), "positional argument follows keyword argument")
		}
		v, exc := p.expr()
		if exc != nil {
			return nil, nil, Span{}, exc
		}
		args = append(args, v)
	}
}

func (p *parser) atom() (Expr, *Exception) {
	t := p.cur()
	switch t.kind {
	case tokName:
		p.i++
		return &NameExpr{S: t.span(), Name: t.text}, nil
	case tokInt:
		p.i++
		return &IntLit{S: t.span(), Val: t.ival}, nil
	case tokFloat:
		p.i++
		return &FloatLit{S: t.span(), Val: t.fval}, nil
	case tokString:
		p.i++
		return &StrLit{S: t.span(), Val: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "None":
			p.i++
			return &NoneLit{S: t.span()}, nil
		case "True":
			p.i++
			return &BoolLit{S: t.span(), Val: true}, nil
		case "False":
			p.i++
			return &BoolLit{S: t.span()}, nil
		}
	case tokOp:
		switch t.text {
		case "...":
			p.i++
			return &EllipsisLit{S: t.span()}, nil
		case "(":
			p.i++
			if c := p.cur(); c.kind == tokOp && c.text == ")" {
				p.i++
				return &TupleLit{S: cover(t.span(), c.span())}, nil
			}
			inner, exc := p.exprList()
			if exc != nil {
				return nil, exc
			}
			closeTok := p.cur()
			if exc := p.expectOp(")"); exc != nil {
				return nil, exc
			}
			if tup, ok := inner.(*TupleLit); ok {
				tup.S = cover(t.span(), closeTok.span())
			}
			return inner, nil
		case "[":
			p.i++
			items, end, exc := p.bracketItems("]")
			if exc != nil {
				return nil, exc
			}
			return &ListLit{S: cover(t.span(), end), Items: items}, nil
		case "{":
			p.i++
			return p.braceAtom(t)
		}
	}
	return nil, p.errf(t, "unexpected %s", t)
}

func (p *parser) bracketItems(closer string) ([]Expr, Span, *Exception) {
	var items []Expr
	for {
		if t := p.cur(); t.kind == tokOp && t.text == closer {
			p.i++
			return items, t.span(), nil
		}
		if len(items) > 0 {
			if exc := p.expectOp(","); exc != nil {
				return nil, Span{}, exc
			}
			if t := p.cur(); t.kind == tokOp && t.text == closer {
				p.i++
				return items, t.span(), nil
			}
		}
		e, exc := p.expr()
		if exc != nil {
			return nil, Span{}, exc
		}
		items = append(items, e)
	}
}

// braceAtom parses a dict or set literal; open is the '{' token.
func (p *parser) braceAtom(open token) (Expr, *Exception) {
	if t := p.cur(); t.kind == tokOp && t.text == "}" {
		p.i++
		return &DictLit{S: cover(open.span(), t.span())}, nil
	}
	first, exc := p.expr()
	if exc != nil {
		return nil, exc
	}
	if p.acceptOp(":") {
		node := &DictLit{}
		v, exc := p.expr()
		if exc != nil {
			return nil, exc
		}
		node.Keys = append(node.Keys, first)
		node.Vals = append(node.Vals, v)
		for p.acceptOp(",") {
			if t := p.cur(); t.kind == tokOp && t.text == "}" {
				break
			}
			k, exc := p.expr()
			if exc != nil {
				return nil, exc
			}
			if exc := p.expectOp(":"); exc != nil {
				return nil, exc
			}
			v, exc := p.expr()
			if exc != nil {
				return nil, exc
			}
			node.Keys = append(node.Keys, k)
			node.Vals = append(node.Vals, v)
		}
		closeTok := p.cur()
		if exc := p.expectOp("}"); exc != nil {
			return nil, exc
		}
		node.S = cover(open.span(), closeTok.span())
		return node, nil
	}
	items := []Expr{first}
	for p.acceptOp(",") {
		if t := p.cur(); t.kind == tokOp && t.text == "}" {
			break
		}
		e, exc := p.expr()
		if exc != nil {
			return nil, exc
		}
		items = append(items, e)
	}
	closeTok := p.cur()
	if exc := p.expectOp("}"); exc != nil {
		return nil, exc
	}
	return &SetLit{S: cover(open.span(), closeTok.span()), Items: items}, nil
}
