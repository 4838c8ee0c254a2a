// Package parser implements the C3 recursive-descent formula parser: it
// consumes the lexer's flat token stream and an origin address, resolves
// every NAME against a model.NameResolver, and emits a flat sequence of
// formula tokens in the same (infix, source) order as the input — it does
// not lower to RPN. This keeps parsing and evaluation symmetric: the
// interpreter (C6) walks the same grammar over the emitted token sequence,
// and print_formula_tokens can invert it exactly.
//
// Grammar (spec §4.2), with comparisons added at the lowest precedence
// since the token opcode set includes them:
//
//	comparison := expression (('='|'<>'|'<'|'<='|'>'|'>=') expression)?
//	expression := term (('+'|'-') term)*
//	term       := factor (('*'|'/') factor)*
//	factor     := '(' comparison ')' | '-' factor | function | reference | NUMBER | STRING
//	function   := NAME '(' [ comparison (',' comparison)* ] ')'
//	reference  := NAME       -- classified by the name resolver
package parser

import (
	"ixion/address"
	"ixion/lexer"
	"ixion/model"
	"ixion/token"
)

// Parser holds the state of one parse of one formula.
type Parser struct {
	toks     []lexer.LexerToken
	pos      int
	origin   address.AbsAddress
	resolver model.NameResolver
	access   model.ModelAccess
	out      []token.Token
}

// New constructs a Parser over the already-lexed toks, ready to resolve
// names relative to origin using resolver (and, where a NAME resolves to a
// string literal needing interning, access).
func New(toks []lexer.LexerToken, origin address.AbsAddress, resolver model.NameResolver, access model.ModelAccess) *Parser {
	return &Parser{toks: toks, origin: origin, resolver: resolver, access: access}
}

// Parse runs the grammar from comparison and requires every lexer token to
// be consumed, returning the emitted formula token sequence.
func (p *Parser) Parse() (*token.Sequence, error) {
	if len(p.toks) == 0 {
		return nil, &model.ParseError{Message: "empty formula"}
	}
	if err := p.parseComparison(); err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, &model.ParseError{Message: "unexpected trailing tokens", Offset: p.curOffset()}
	}
	return token.NewSequence(p.out), nil
}

func (p *Parser) curOffset() int {
	if p.pos < len(p.toks) {
		return p.toks[p.pos].Offset
	}
	return -1
}

func (p *Parser) peek() (lexer.LexerToken, bool) {
	if p.pos >= len(p.toks) {
		return lexer.LexerToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *Parser) advance() lexer.LexerToken {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *Parser) isOp(op lexer.Op) bool {
	t, ok := p.peek()
	return ok && t.Kind == lexer.KindOp && t.Op == op
}

func (p *Parser) parseComparison() error {
	if err := p.parseExpression(); err != nil {
		return err
	}
	if t, ok := p.peek(); ok && t.Kind == lexer.KindOp {
		var opTok token.Token
		switch t.Op {
		case lexer.OpEqual:
			opTok = token.NewOp(token.OpEqual)
		case lexer.OpNotEqual:
			opTok = token.NewOp(token.OpNotEqual)
		case lexer.OpLess:
			opTok = token.NewOp(token.OpLess)
		case lexer.OpLessEqual:
			opTok = token.NewOp(token.OpLessEqual)
		case lexer.OpGreater:
			opTok = token.NewOp(token.OpGreater)
		case lexer.OpGreaterEqual:
			opTok = token.NewOp(token.OpGreaterEqual)
		default:
			return nil
		}
		p.advance()
		p.out = append(p.out, opTok)
		if err := p.parseExpression(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseExpression() error {
	if err := p.parseTerm(); err != nil {
		return err
	}
	for p.isOp(lexer.OpPlus) || p.isOp(lexer.OpMinus) {
		t := p.advance()
		if t.Op == lexer.OpPlus {
			p.out = append(p.out, token.NewOp(token.OpPlus))
		} else {
			p.out = append(p.out, token.NewOp(token.OpMinus))
		}
		if err := p.parseTerm(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseTerm() error {
	if err := p.parseFactor(); err != nil {
		return err
	}
	for p.isOp(lexer.OpMultiply) || p.isOp(lexer.OpDivide) {
		t := p.advance()
		if t.Op == lexer.OpMultiply {
			p.out = append(p.out, token.NewOp(token.OpMultiply))
		} else {
			p.out = append(p.out, token.NewOp(token.OpDivide))
		}
		if err := p.parseFactor(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseFactor() error {
	t, ok := p.peek()
	if !ok {
		return &model.ParseError{Message: "unexpected end of formula", Offset: -1}
	}

	switch {
	case t.Kind == lexer.KindOp && t.Op == lexer.OpOpen:
		p.advance()
		p.out = append(p.out, token.NewOp(token.OpOpen))
		if err := p.parseComparison(); err != nil {
			return err
		}
		if !p.isOp(lexer.OpClose) {
			return &model.ParseError{Message: "mismatched parenthesis", Offset: p.curOffset()}
		}
		p.advance()
		p.out = append(p.out, token.NewOp(token.OpClose))
		return nil

	case t.Kind == lexer.KindOp && t.Op == lexer.OpMinus:
		p.advance()
		p.out = append(p.out, token.NewOp(token.OpMinus))
		return p.parseFactor()

	case t.Kind == lexer.KindValue:
		p.advance()
		p.out = append(p.out, token.NewValue(t.Num))
		return nil

	case t.Kind == lexer.KindString:
		p.advance()
		id := p.access.AddString([]byte(t.Text))
		p.out = append(p.out, token.NewString(id))
		return nil

	case t.Kind == lexer.KindName:
		p.advance()
		return p.parseName(t)

	default:
		return &model.ParseError{Message: "unexpected operator", Offset: t.Offset}
	}
}

func (p *Parser) parseName(t lexer.LexerToken) error {
	if next, ok := p.peek(); ok && next.Kind == lexer.KindOp && next.Op == lexer.OpOpen {
		return p.parseFunctionCall(t)
	}

	rn := p.resolver.Resolve(t.Text, p.origin)
	switch rn.Kind {
	case model.NameCellReference:
		p.out = append(p.out, token.NewSingleRef(rn.Cell))
	case model.NameRangeReference:
		p.out = append(p.out, token.NewRangeRef(rn.Range))
	case model.NameTableReference:
		p.out = append(p.out, token.NewTableRef(rn.Table))
	case model.NameNamedExpression:
		p.out = append(p.out, token.NewNamedExp(rn.Named))
	default:
		return &model.ParseError{Message: "unresolved name '" + t.Text + "'", Offset: t.Offset}
	}
	return nil
}

func (p *Parser) parseFunctionCall(t lexer.LexerToken) error {
	id, ok := model.LookupBuiltin(t.Text)
	if !ok {
		return &model.ParseError{Message: "unknown function '" + t.Text + "'", Offset: t.Offset}
	}
	p.out = append(p.out, token.NewFunction(id, t.Text))

	p.advance() // consume '('
	p.out = append(p.out, token.NewOp(token.OpOpen))

	if !p.isOp(lexer.OpClose) {
		if err := p.parseComparison(); err != nil {
			return err
		}
		for p.isOp(lexer.OpSep) {
			p.advance()
			p.out = append(p.out, token.NewOp(token.OpSep))
			if err := p.parseComparison(); err != nil {
				return err
			}
		}
	}

	if !p.isOp(lexer.OpClose) {
		return &model.ParseError{Message: "mismatched parenthesis in function call", Offset: p.curOffset()}
	}
	p.advance()
	p.out = append(p.out, token.NewOp(token.OpClose))
	return nil
}

// ParseFormulaString is the top-level entry point named in spec §6: lex
// bytes, then parse the resulting tokens relative to origin using
// resolver, producing the formula's token sequence.
func ParseFormulaString(access model.ModelAccess, origin address.AbsAddress, resolver model.NameResolver, src []byte) (*token.Sequence, error) {
	cfg := access.GetConfig()
	lexed, err := lexer.Tokenize(string(src), cfg)
	if err != nil {
		return nil, err
	}
	p := New(lexed, origin, resolver, access)
	return p.Parse()
}
