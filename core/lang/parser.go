package lang

import "strings"

// Parse turns source text into an expression sequence.
func Parse(src string) ([]Expr, error) {
	tokens, err := newLexer(src).lex()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	exprs, err := p.parseSequence(false)
	if err != nil {
		return nil, err
	}
	return exprs, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.Kind != tokEOF {
		p.pos++
	}
	return t
}

// parseSequence parses expressions until EOF, or until the closing bracket
// when inBlock is set.
func (p *parser) parseSequence(inBlock bool) ([]Expr, error) {
	var out []Expr
	for {
		t := p.peek()
		switch t.Kind {
		case tokEOF:
			if inBlock {
				return nil, &SyntaxError{Line: t.Line, Col: t.Col, Message: "unterminated block, expected ]"}
			}
			return out, nil

		case tokRBracket:
			if !inBlock {
				return nil, &SyntaxError{Line: t.Line, Col: t.Col, Message: "unexpected ]"}
			}
			p.next()
			return out, nil

		default:
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			out = append(out, expr)
		}
	}
}

func (p *parser) parseExpr() (Expr, error) {
	t := p.next()
	switch t.Kind {
	case tokWord:
		if op, ok := LookupOp(t.Text); ok {
			return Expr{Kind: KindOp, Op: op}, nil
		}
		return Expr{Kind: KindWord, Text: t.Text}, nil

	case tokSingleQuote:
		return Expr{Kind: KindQuoted, Text: t.Text}, nil

	case tokDoubleQuote:
		return Expr{Kind: KindQuoted, Text: t.Text, Interp: true}, nil

	case tokVariable:
		return Expr{Kind: KindVar, Text: t.Text}, nil

	case tokDefine:
		return Expr{Kind: KindDefine, Text: t.Text}, nil

	case tokLBracket:
		body, err := p.parseSequence(true)
		if err != nil {
			return Expr{}, err
		}
		if body == nil {
			body = []Expr{}
		}
		return Expr{Kind: KindBlock, Body: body}, nil

	case tokAssign:
		return p.parseScoped(t)

	default:
		return Expr{}, &SyntaxError{Line: t.Line, Col: t.Col, Message: "unexpected token"}
	}
}

// parseScoped folds a run of NAME=value assignments, plus the block that
// follows them if any, into a single scoped-block expression. Without a
// trailing block the assignments apply persistently.
func (p *parser) parseScoped(first token) (Expr, error) {
	binds := []Bind{splitBind(first.Text)}
	for p.peek().Kind == tokAssign {
		binds = append(binds, splitBind(p.next().Text))
	}

	if p.peek().Kind != tokLBracket {
		return Expr{Kind: KindScoped, Binds: binds}, nil
	}

	p.next()
	body, err := p.parseSequence(true)
	if err != nil {
		return Expr{}, err
	}
	if body == nil {
		body = []Expr{}
	}
	return Expr{Kind: KindScoped, Binds: binds, Body: body}, nil
}

func splitBind(text string) Bind {
	parts := strings.SplitN(text, "=", 2)
	return Bind{Name: parts[0], Value: parts[1]}
}
