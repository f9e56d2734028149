package compiler

import (
	"fmt"
	"sort"
	"strings"

	ir "github.com/PhucNguyen204/rubricfeed/filterengine"
)

// Predicate là điều kiện trên một record; lỗi (thiếu field, relevance...) được trả ra ngoài.
type Predicate func(rec ir.Record) (bool, error)

// ---------------- Errors ----------------

type PredicateSyntaxError struct {
	Expr     string
	Fragment string
	Reason   string
}

func (e *PredicateSyntaxError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("invalid predicate %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("invalid predicate %q near %q: %s", e.Expr, e.Fragment, e.Reason)
}

type UnknownPredicateError struct {
	Name string
}

func (e *UnknownPredicateError) Error() string {
	return fmt.Sprintf("unknown predicate: %s", e.Name)
}

// ---------------- Tokens ----------------

type TokenKind int

const (
	TokName TokenKind = iota
	TokAnd
	TokOr
	TokNot
	TokTrue
	TokFalse
	TokLeftParen
	TokRightParen
)

func (k TokenKind) String() string {
	switch k {
	case TokName:
		return "NAME"
	case TokAnd:
		return "AND"
	case TokOr:
		return "OR"
	case TokNot:
		return "NOT"
	case TokTrue:
		return "TRUE"
	case TokFalse:
		return "FALSE"
	case TokLeftParen:
		return "("
	case TokRightParen:
		return ")"
	}
	return "?"
}

type Token struct {
	Kind TokenKind
	Text string
}

var keywords = map[string]TokenKind{
	"and":   TokAnd,
	"or":    TokOr,
	"not":   TokNot,
	"true":  TokTrue,
	"false": TokFalse,
}

// Tokenize tách theo khoảng trắng; ngoặc dính vào từ được bóc từ ngoài vào trong,
// mỗi ký tự ngoặc thành một token riêng. Từ khoá không phân biệt hoa thường.
func Tokenize(expr string) []Token {
	toks := make([]Token, 0, 8)
	for _, word := range strings.Fields(expr) {
		lead := 0
		for lead < len(word) && word[lead] == '(' {
			lead++
		}
		trail := 0
		for trail < len(word)-lead && word[len(word)-1-trail] == ')' {
			trail++
		}
		for i := 0; i < lead; i++ {
			toks = append(toks, Token{Kind: TokLeftParen, Text: "("})
		}
		if mid := word[lead : len(word)-trail]; mid != "" {
			if kind, ok := keywords[strings.ToLower(mid)]; ok {
				toks = append(toks, Token{Kind: kind, Text: mid})
			} else {
				toks = append(toks, Token{Kind: TokName, Text: mid})
			}
		}
		for i := 0; i < trail; i++ {
			toks = append(toks, Token{Kind: TokRightParen, Text: ")"})
		}
	}
	return toks
}

// ---------------- AST ----------------

type AstKind int

const (
	AstName AstKind = iota
	AstConst
	AstAnd
	AstOr
	AstNot
)

type ConditionAst struct {
	Kind AstKind

	// Name
	Name string
	// Const
	Value bool

	// Binary
	Left, Right *ConditionAst

	// Unary
	Operand *ConditionAst
}

func (a *ConditionAst) String() string {
	switch a.Kind {
	case AstName:
		return a.Name
	case AstConst:
		if a.Value {
			return "TRUE"
		}
		return "FALSE"
	case AstAnd:
		return "(" + a.Left.String() + " AND " + a.Right.String() + ")"
	case AstOr:
		return "(" + a.Left.String() + " OR " + a.Right.String() + ")"
	case AstNot:
		return "NOT " + a.Operand.String()
	}
	return "?"
}

// ---------------- Parser ----------------

type ConditionParser struct {
	expr   string
	tokens []Token
	pos    int
	known  func(name string) bool
}

func NewConditionParser(expr string, tokens []Token, known func(name string) bool) *ConditionParser {
	return &ConditionParser{expr: expr, tokens: tokens, known: known}
}

func (p *ConditionParser) current() *Token {
	if p.pos >= 0 && p.pos < len(p.tokens) {
		return &p.tokens[p.pos]
	}
	return nil
}

func (p *ConditionParser) advance() *Token {
	tok := p.current()
	if tok != nil {
		p.pos++
	}
	return tok
}

func (p *ConditionParser) syntaxError(reason string) error {
	frag := ""
	if t := p.current(); t != nil {
		frag = t.Text
	}
	return &PredicateSyntaxError{Expr: p.expr, Fragment: frag, Reason: reason}
}

// Parse đọc toàn bộ token; biểu thức rỗng là TRUE, token thừa ở cuối là lỗi.
func (p *ConditionParser) Parse() (*ConditionAst, error) {
	if len(p.tokens) == 0 {
		return &ConditionAst{Kind: AstConst, Value: true}, nil
	}
	ast, err := p.parseOrExpression()
	if err != nil {
		return nil, err
	}
	if p.current() != nil {
		return nil, p.syntaxError("unexpected trailing token")
	}
	return ast, nil
}

// OR (thấp nhất)
func (p *ConditionParser) parseOrExpression() (*ConditionAst, error) {
	left, err := p.parseAndExpression()
	if err != nil {
		return nil, err
	}
	for {
		if t := p.current(); t != nil && t.Kind == TokOr {
			p.advance()
			right, err := p.parseAndExpression()
			if err != nil {
				return nil, err
			}
			left = &ConditionAst{Kind: AstOr, Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

// AND
func (p *ConditionParser) parseAndExpression() (*ConditionAst, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if t := p.current(); t != nil && t.Kind == TokAnd {
			p.advance()
			right, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			left = &ConditionAst{Kind: AstAnd, Left: left, Right: right}
			continue
		}
		break
	}
	return left, nil
}

// prim := TRUE | FALSE | NAME | NOT prim | '(' expr ')'
func (p *ConditionParser) parsePrimary() (*ConditionAst, error) {
	t := p.current()
	if t == nil {
		return nil, &PredicateSyntaxError{Expr: p.expr, Reason: "unexpected end of expression"}
	}

	switch t.Kind {
	case TokNot:
		p.advance()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &ConditionAst{Kind: AstNot, Operand: operand}, nil

	case TokTrue, TokFalse:
		p.advance()
		return &ConditionAst{Kind: AstConst, Value: t.Kind == TokTrue}, nil

	case TokLeftParen:
		p.advance()
		expr, err := p.parseOrExpression()
		if err != nil {
			return nil, err
		}
		if r := p.current(); r == nil || r.Kind != TokRightParen {
			return nil, p.syntaxError("expected closing parenthesis")
		}
		p.advance()
		return expr, nil

	case TokName:
		name := t.Text
		if p.known != nil && !p.known(name) {
			return nil, &UnknownPredicateError{Name: name}
		}
		p.advance()
		return &ConditionAst{Kind: AstName, Name: name}, nil

	default:
		return nil, p.syntaxError("unexpected token " + t.Kind.String())
	}
}

// ---------------- Compile ----------------

// CompiledPredicate bất biến, dùng chung giữa nhiều goroutine.
type CompiledPredicate struct {
	expr  string
	ast   *ConditionAst
	names []string
	eval  Predicate
}

// CompilePredicate phân tích biểu thức và liên kết tên với predicate đã đăng ký.
func CompilePredicate(expr string, funcs map[string]Predicate) (*CompiledPredicate, error) {
	p := NewConditionParser(expr, Tokenize(expr), func(name string) bool {
		fn, ok := funcs[name]
		return ok && fn != nil // nil coi như chưa đăng ký
	})
	ast, err := p.Parse()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	return &CompiledPredicate{
		expr:  expr,
		ast:   ast,
		names: collectNames(ast, seen),
		eval:  compileAst(ast, funcs),
	}, nil
}

func (c *CompiledPredicate) Expr() string { return c.expr }
func (c *CompiledPredicate) Ast() *ConditionAst { return c.ast }

// Names trả về các tên predicate được tham chiếu (đã sắp xếp, không trùng).
func (c *CompiledPredicate) Names() []string { return append([]string(nil), c.names...) }

func (c *CompiledPredicate) Evaluate(rec ir.Record) (bool, error) { return c.eval(rec) }

func collectNames(a *ConditionAst, seen map[string]struct{}) []string {
	var walk func(*ConditionAst)
	walk = func(n *ConditionAst) {
		switch n.Kind {
		case AstName:
			seen[n.Name] = struct{}{}
		case AstAnd, AstOr:
			walk(n.Left)
			walk(n.Right)
		case AstNot:
			walk(n.Operand)
		}
	}
	walk(a)
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// compileAst dựng closure; AND/OR đánh giá trái sang phải và dừng sớm.
func compileAst(a *ConditionAst, funcs map[string]Predicate) Predicate {
	switch a.Kind {
	case AstConst:
		v := a.Value
		return func(ir.Record) (bool, error) { return v, nil }
	case AstName:
		return funcs[a.Name]
	case AstNot:
		inner := compileAst(a.Operand, funcs)
		return func(rec ir.Record) (bool, error) {
			ok, err := inner(rec)
			if err != nil {
				return false, err
			}
			return !ok, nil
		}
	case AstAnd:
		l, r := compileAst(a.Left, funcs), compileAst(a.Right, funcs)
		return func(rec ir.Record) (bool, error) {
			ok, err := l(rec)
			if err != nil || !ok {
				return false, err
			}
			return r(rec)
		}
	case AstOr:
		l, r := compileAst(a.Left, funcs), compileAst(a.Right, funcs)
		return func(rec ir.Record) (bool, error) {
			ok, err := l(rec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			return r(rec)
		}
	}
	return func(ir.Record) (bool, error) { return false, fmt.Errorf("invalid predicate node") }
}
