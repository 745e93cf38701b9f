package rules

import "fmt"

// Grammar, with && binding tighter than ||:
//
//	expr    = and { "||" and }
//	and     = primary { "&&" primary }
//	primary = "true" | "false" | "(" expr ")"
//	        | ident ( "==" | "!=" ) value
//	        | ident "in" "[" value { "," value } "]"
//	value   = string | ident
type parser struct {
	src  string
	toks []token
	pos  int
}

// Parse compiles a condition into an Expr.
func Parse(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, &SyntaxError{Src: src, Pos: 0, Msg: "empty condition"}
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s", tok.kind)
	}
	return expr, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level defaults.
func MustParse(src string) Expr {
	expr, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return expr
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, tok.kind)
	}
	return tok, nil
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &SyntaxError{Src: p.src, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []Expr{first}
	for p.peek().kind == tokOr {
		p.next()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return Or{Operands: operands}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	operands := []Expr{first}
	for p.peek().kind == tokAnd {
		p.next()
		next, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	if len(operands) == 1 {
		return first, nil
	}
	return And{Operands: operands}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokTrue:
		return Literal{Value: true}, nil
	case tokFalse:
		return Literal{Value: false}, nil
	case tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case tokIdent:
		return p.parseComparison(tok.text)
	default:
		return nil, p.errorf(tok, "unexpected %s", tok.kind)
	}
}

func (p *parser) parseComparison(field string) (Expr, error) {
	op := p.next()
	switch op.kind {
	case tokEq, tokNeq:
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return Compare{Field: field, Value: value, Negate: op.kind == tokNeq}, nil
	case tokIn:
		if _, err := p.expect(tokLBrack); err != nil {
			return nil, err
		}
		var values []string
		for {
			value, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			values = append(values, value)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expect(tokRBrack); err != nil {
			return nil, err
		}
		return Membership{Field: field, Values: values}, nil
	default:
		return nil, p.errorf(op, "expected '==', '!=' or 'in' after %q, found %s", field, op.kind)
	}
}

func (p *parser) parseValue() (string, error) {
	tok := p.next()
	switch tok.kind {
	case tokString, tokIdent, tokTrue, tokFalse:
		return tok.text, nil
	default:
		return "", p.errorf(tok, "expected a value, found %s", tok.kind)
	}
}
