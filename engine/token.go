package engine

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokKeyword
	tokInt
	tokFloat
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string // name, keyword, operator, or decoded string value
	ival *big.Int
	fval float64
	pos  Pos
	end  Pos
}

func (t token) span() Span { return Span{Start: t.pos, End: t.end} }

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "newline"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	case tokString:
		return "string literal"
	case tokInt, tokFloat:
		return "number"
	default:
		return "'" + t.text + "'"
	}
}

var keywords = map[string]bool{
	"def": true, "return": true, "if": true, "elif": true, "else": true,
	"while": true, "for": true, "in": true, "try": true, "except": true,
	"as": true, "raise": true, "pass": true, "break": true, "continue": true,
	"and": true, "or": true, "not": true, "None": true, "True": true,
	"False": true, "async": true, "await": true,
}

// multi-rune operators, longest match first
var longOps = []string{"...", "**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%="}

const singleOps = "+-*/%<>=()[]{},:."

type lexer struct {
	lines   []string
	toks    []token
	indents []int
	depth   int // open bracket depth
}

func syntaxErrAt(msg string, line, col int) *Exception {
	e := NewException(ExcSyntaxError, msg)
	e.Frames = []Frame{{
		StartLine:   line,
		StartColumn: col,
		EndLine:     line,
		EndColumn:   col + 1,
	}}
	return e
}

// lex tokenizes source into a flat token stream with INDENT and DEDENT
// markers around nested blocks.
func lex(source string) ([]token, *Exception) {
	lx := &lexer{
		lines:   strings.Split(source, "\n"),
		indents: []int{0},
	}
	for i, raw := range lx.lines {
		if exc := lx.scanLine(i+1, raw); exc != nil {
			return nil, exc
		}
	}
	if lx.depth > 0 {
		return nil, syntaxErrAt("unexpected end of input inside brackets", len(lx.lines), 1)
	}
	last := Pos{Line: len(lx.lines), Col: 1}
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.toks = append(lx.toks, token{kind: tokDedent, pos: last, end: last})
	}
	lx.toks = append(lx.toks, token{kind: tokEOF, pos: last, end: last})
	return lx.toks, nil
}

func (lx *lexer) scanLine(lineNo int, raw string) *Exception {
	col := 0
	if lx.depth == 0 {
		// Measure indentation; skip blank and comment-only lines.
		indent := 0
		for col < len(raw) {
			switch raw[col] {
			case ' ':
				indent++
			case '\t':
				indent += 8 - indent%8
			default:
				goto measured
			}
			col++
		}
	measured:
		if col >= len(raw) || raw[col] == '#' {
			return nil
		}
		cur := lx.indents[len(lx.indents)-1]
		pos := Pos{Line: lineNo, Col: col + 1}
		if indent > cur {
			lx.indents = append(lx.indents, indent)
			lx.toks = append(lx.toks, token{kind: tokIndent, pos: pos, end: pos})
		} else {
			for indent < lx.indents[len(lx.indents)-1] {
				lx.indents = lx.indents[:len(lx.indents)-1]
				lx.toks = append(lx.toks, token{kind: tokDedent, pos: pos, end: pos})
			}
			if indent != lx.indents[len(lx.indents)-1] {
				return syntaxErrAt("unindent does not match any outer indentation level", lineNo, col+1)
			}
		}
	}

	emitted := false
	for col < len(raw) {
		c := raw[col]
		switch {
		case c == ' ' || c == '\t':
			col++
			continue
		case c == '#':
			col = len(raw)
			continue
		case c == '\'' || c == '"':
			tok, next, exc := scanString(raw, lineNo, col)
			if exc != nil {
				return exc
			}
			lx.toks = append(lx.toks, tok)
			col = next
		case c >= '0' && c <= '9':
			tok, next, exc := scanNumber(raw, lineNo, col)
			if exc != nil {
				return exc
			}
			lx.toks = append(lx.toks, tok)
			col = next
		case isNameStart(rune(c)):
			start := col
			for col < len(raw) && isNamePart(rune(raw[col])) {
				col++
			}
			word := raw[start:col]
			kind := tokName
			if keywords[word] {
				kind = tokKeyword
			}
			lx.toks = append(lx.toks, token{
				kind: kind, text: word,
				pos: Pos{Line: lineNo, Col: start + 1},
				end: Pos{Line: lineNo, Col: col},
			})
		default:
			op := ""
			for _, cand := range longOps {
				if strings.HasPrefix(raw[col:], cand) {
					op = cand
					break
				}
			}
			if op == "" && strings.IndexByte(singleOps, c) >= 0 {
				op = string(c)
			}
			if op == "" {
				return syntaxErrAt(fmt.Sprintf("invalid character %q", c), lineNo, col+1)
			}
			switch op {
			case "(", "[", "{":
				lx.depth++
			case ")", "]", "}":
				if lx.depth == 0 {
					return syntaxErrAt("unmatched '"+op+"'", lineNo, col+1)
				}
				lx.depth--
			}
			lx.toks = append(lx.toks, token{
				kind: tokOp, text: op,
				pos: Pos{Line: lineNo, Col: col + 1},
				end: Pos{Line: lineNo, Col: col + len(op)},
			})
			col += len(op)
		}
		emitted = true
	}

	if emitted && lx.depth == 0 {
		p := Pos{Line: lineNo, Col: len(raw) + 1}
		lx.toks = append(lx.toks, token{kind: tokNewline, pos: p, end: p})
	}
	return nil
}

func scanString(raw string, lineNo, col int) (token, int, *Exception) {
	quote := raw[col]
	start := col
	col++
	var sb strings.Builder
	for col < len(raw) {
		c := raw[col]
		if c == quote {
			return token{
				kind: tokString, text: sb.String(),
				pos: Pos{Line: lineNo, Col: start + 1},
				end: Pos{Line: lineNo, Col: col + 1},
			}, col + 1, nil
		}
		if c == '\\' {
			col++
			if col >= len(raw) {
				break
			}
			switch raw[col] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			case 'x':
				if col+2 >= len(raw) {
					return token{}, 0, syntaxErrAt("truncated \\x escape", lineNo, col+1)
				}
				n, err := strconv.ParseUint(raw[col+1:col+3], 16, 8)
				if err != nil {
					return token{}, 0, syntaxErrAt("invalid \\x escape", lineNo, col+1)
				}
				sb.WriteByte(byte(n))
				col += 2
			default:
				return token{}, 0, syntaxErrAt(fmt.Sprintf("invalid escape sequence '\\%c'", raw[col]), lineNo, col+1)
			}
			col++
			continue
		}
		sb.WriteByte(c)
		col++
	}
	return token{}, 0, syntaxErrAt("unterminated string literal", lineNo, start+1)
}

func scanNumber(raw string, lineNo, col int) (token, int, *Exception) {
	start := col
	isFloat := false
	for col < len(raw) && (isDigit(raw[col]) || raw[col] == '_') {
		col++
	}
	if col < len(raw) && raw[col] == '.' && col+1 < len(raw) && isDigit(raw[col+1]) {
		isFloat = true
		col++
		for col < len(raw) && (isDigit(raw[col]) || raw[col] == '_') {
			col++
		}
	}
	if col < len(raw) && (raw[col] == 'e' || raw[col] == 'E') {
		mark := col
		col++
		if col < len(raw) && (raw[col] == '+' || raw[col] == '-') {
			col++
		}
		if col < len(raw) && isDigit(raw[col]) {
			isFloat = true
			for col < len(raw) && isDigit(raw[col]) {
				col++
			}
		} else {
			col = mark
		}
	}
	text := strings.ReplaceAll(raw[start:col], "_", "")
	tok := token{
		pos: Pos{Line: lineNo, Col: start + 1},
		end: Pos{Line: lineNo, Col: col},
	}
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, 0, syntaxErrAt("invalid number literal", lineNo, start+1)
		}
		tok.kind = tokFloat
		tok.fval = f
		return tok, col, nil
	}
	n, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return token{}, 0, syntaxErrAt("invalid number literal", lineNo, start+1)
	}
	tok.kind = tokInt
	tok.ival = n
	return tok, col, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNamePart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
