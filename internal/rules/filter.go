// Package rules parses and evaluates symbology filter expressions in the
// mapnik filter style: [attribute] comparisons combined with and/or.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DavideDeMarchi/geolayer/pkg/geoerr"
)

// Expr is a compiled filter predicate over a feature's attributes.
type Expr interface {
	Eval(attrs map[string]any) (bool, error)
}

// MatchAll is the compiled form of the literal rule "all".
var MatchAll Expr = matchAll{}

type matchAll struct{}

func (matchAll) Eval(map[string]any) (bool, error) { return true, nil }

// Parse compiles a rule string. The literal "all" (case-insensitive) matches
// every feature; anything else must follow the grammar
//
//	expr   := and { "or" and }
//	and    := term { "and" term }
//	term   := "(" expr ")" | "[" field "]" op literal
//	op     := = | != | <> | < | <= | > | >= | like
func Parse(rule string) (Expr, error) {
	if strings.EqualFold(strings.TrimSpace(rule), "all") {
		return MatchAll, nil
	}
	p := &parser{toks: lex(rule), src: rule}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, geoerr.Config("filter %q: unexpected %q", rule, p.peek().text)
	}
	return e, nil
}

type binOp int

const (
	opEq binOp = iota
	opNe
	opLt
	opLe
	opGt
	opGe
	opLike
)

type comparison struct {
	field   string
	op      binOp
	str     string
	num     float64
	numeric bool
}

func (c *comparison) Eval(attrs map[string]any) (bool, error) {
	raw, ok := attrs[c.field]
	if !ok {
		return false, &geoerr.AttributeNotFoundError{Attribute: c.field}
	}
	if c.op == opLike {
		return matchLike(toString(raw), c.str), nil
	}
	if c.numeric {
		if v, ok := toFloat(raw); ok {
			return compareFloat(v, c.num, c.op), nil
		}
	}
	return compareString(toString(raw), c.str, c.op), nil
}

type logical struct {
	and         bool
	left, right Expr
}

func (l *logical) Eval(attrs map[string]any) (bool, error) {
	lv, err := l.left.Eval(attrs)
	if err != nil {
		return false, err
	}
	if l.and && !lv {
		return false, nil
	}
	if !l.and && lv {
		return true, nil
	}
	return l.right.Eval(attrs)
}

func compareFloat(a, b float64, op binOp) bool {
	switch op {
	case opEq:
		return a == b
	case opNe:
		return a != b
	case opLt:
		return a < b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	case opGe:
		return a >= b
	}
	return false
}

func compareString(a, b string, op binOp) bool {
	switch op {
	case opEq:
		return a == b
	case opNe:
		return a != b
	case opLt:
		return a < b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	case opGe:
		return a >= b
	}
	return false
}

// matchLike implements LIKE with % wildcards at either end. A pattern with no
// wildcard matches as a substring.
func matchLike(s, pattern string) bool {
	p := pattern
	prefix := strings.HasSuffix(p, "%")
	suffix := strings.HasPrefix(p, "%")
	p = strings.Trim(p, "%")
	switch {
	case prefix && suffix:
		return strings.Contains(s, p)
	case prefix:
		return strings.HasPrefix(s, p)
	case suffix:
		return strings.HasSuffix(s, p)
	case strings.Contains(pattern, "%"):
		// single interior wildcard: head%tail
		head, tail, _ := strings.Cut(pattern, "%")
		return strings.HasPrefix(s, head) && strings.HasSuffix(s, tail) &&
			len(s) >= len(head)+len(tail)
	default:
		return strings.Contains(s, pattern)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// --- lexer/parser ---

type tokKind int

const (
	tokEOF tokKind = iota
	tokField
	tokString
	tokNumber
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
	tokBad
)

type token struct {
	kind tokKind
	text string
}

func lex(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				toks = append(toks, token{tokBad, s[i:]})
				return toks
			}
			toks = append(toks, token{tokField, s[i+1 : i+end]})
			i += end + 1
		case c == '\'':
			j := i + 1
			var b strings.Builder
			closed := false
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' { // '' escapes a quote
						b.WriteByte('\'')
						j += 2
						continue
					}
					closed = true
					j++
					break
				}
				b.WriteByte(s[j])
				j++
			}
			if !closed {
				toks = append(toks, token{tokBad, s[i:]})
				return toks
			}
			toks = append(toks, token{tokString, b.String()})
			i = j
		case c == '=' || c == '!' || c == '<' || c == '>':
			j := i + 1
			if j < len(s) && (s[j] == '=' || (c == '<' && s[j] == '>')) {
				j++
			}
			toks = append(toks, token{tokOp, s[i:j]})
			i = j
		case isDigit(c) || c == '-' || c == '+' || c == '.':
			j := i + 1
			for j < len(s) && (isDigit(s[j]) || s[j] == '.' || s[j] == 'e' || s[j] == 'E' ||
				((s[j] == '-' || s[j] == '+') && (s[j-1] == 'e' || s[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case isIdent(c):
			j := i + 1
			for j < len(s) && isIdent(s[j]) {
				j++
			}
			word := s[i:j]
			switch strings.ToLower(word) {
			case "and":
				toks = append(toks, token{tokAnd, word})
			case "or":
				toks = append(toks, token{tokOr, word})
			case "like":
				toks = append(toks, token{tokOp, "like"})
			default:
				toks = append(toks, token{tokBad, word})
			}
			i = j
		default:
			toks = append(toks, token{tokBad, string(c)})
			i++
		}
	}
	return toks
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c)
}

type parser struct {
	toks []token
	pos  int
	src  string
}

func (p *parser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) eof() bool { return p.peek().kind == tokEOF }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logical{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &logical{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	switch t := p.next(); t.kind {
	case tokLParen:
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, geoerr.Config("filter %q: missing closing parenthesis", p.src)
		}
		return e, nil
	case tokField:
		return p.parseComparison(t.text)
	default:
		return nil, geoerr.Config("filter %q: expected [attribute] or '(', got %q", p.src, t.text)
	}
}

func (p *parser) parseComparison(field string) (Expr, error) {
	op := p.next()
	if op.kind != tokOp {
		return nil, geoerr.Config("filter %q: expected operator after [%s]", p.src, field)
	}
	var bop binOp
	switch strings.ToLower(op.text) {
	case "=":
		bop = opEq
	case "!=", "<>":
		bop = opNe
	case "<":
		bop = opLt
	case "<=":
		bop = opLe
	case ">":
		bop = opGt
	case ">=":
		bop = opGe
	case "like":
		bop = opLike
	default:
		return nil, geoerr.Config("filter %q: unknown operator %q", p.src, op.text)
	}
	lit := p.next()
	c := &comparison{field: field, op: bop}
	switch lit.kind {
	case tokString:
		c.str = lit.text
		if n, err := strconv.ParseFloat(lit.text, 64); err == nil && bop != opLike {
			c.num, c.numeric = n, true
		}
	case tokNumber:
		n, err := strconv.ParseFloat(lit.text, 64)
		if err != nil {
			return nil, geoerr.Config("filter %q: bad number %q", p.src, lit.text)
		}
		c.num, c.numeric = n, true
		c.str = lit.text
	default:
		return nil, geoerr.Config("filter %q: expected literal after operator", p.src)
	}
	if bop == opLike && lit.kind != tokString {
		return nil, geoerr.Config("filter %q: like needs a string pattern", p.src)
	}
	return c, nil
}
