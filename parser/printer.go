package parser

import (
	"strconv"
	"strings"

	"ixion/address"
	"ixion/model"
	"ixion/token"
)

// PrintFormulaTokens is the inverse of ParseFormulaString: it renders a
// formula token sequence back to source text relative to origin, using
// resolver to print references/functions/named expressions the same way it
// parsed them. For well-formed input, ParseFormulaString followed by
// PrintFormulaTokens reproduces the original text exactly (spec §8).
func PrintFormulaTokens(access model.ModelAccess, origin address.AbsAddress, resolver model.NameResolver, toks *token.Sequence) string {
	cfg := access.GetConfig()
	var b strings.Builder
	if toks != nil {
		for _, t := range toks.Tokens {
			writeToken(&b, access, origin, resolver, cfg, t)
		}
	}
	return b.String()
}

func writeToken(b *strings.Builder, access model.ModelAccess, origin address.AbsAddress, resolver model.NameResolver, cfg model.Config, t token.Token) {
	switch t.Op {
	case token.OpValue:
		b.WriteString(formatNumber(t.Value, cfg.DecimalSeparator))
	case token.OpString:
		b.WriteByte('"')
		if s, ok := access.GetString(t.StringID); ok {
			b.WriteString(s)
		}
		b.WriteByte('"')
	case token.OpSingleRef:
		b.WriteString(resolver.Print(model.ResolvedName{Kind: model.NameCellReference, Cell: t.Ref}, origin))
	case token.OpRangeRef:
		b.WriteString(resolver.Print(model.ResolvedName{Kind: model.NameRangeReference, Range: t.Range}, origin))
	case token.OpTableRef:
		b.WriteString(resolver.Print(model.ResolvedName{Kind: model.NameTableReference, Table: t.Table}, origin))
	case token.OpNamedExp:
		b.WriteString(resolver.Print(model.ResolvedName{Kind: model.NameNamedExpression, Named: t.Name}, origin))
	case token.OpFunction:
		b.WriteString(resolver.Print(model.ResolvedName{Kind: model.NameFunction, FuncID: t.Fn, FuncName: t.FnName}, origin))
	case token.OpPlus:
		b.WriteByte('+')
	case token.OpMinus:
		b.WriteByte('-')
	case token.OpMultiply:
		b.WriteByte('*')
	case token.OpDivide:
		b.WriteByte('/')
	case token.OpOpen:
		b.WriteByte('(')
	case token.OpClose:
		b.WriteByte(')')
	case token.OpSep:
		b.WriteByte(cfg.ArgumentSeparator)
	case token.OpEqual:
		b.WriteByte('=')
	case token.OpNotEqual:
		b.WriteString("<>")
	case token.OpLess:
		b.WriteByte('<')
	case token.OpLessEqual:
		b.WriteString("<=")
	case token.OpGreater:
		b.WriteByte('>')
	case token.OpGreaterEqual:
		b.WriteString(">=")
	case token.OpErrNoRef:
		b.WriteString("#REF!")
	}
}

func formatNumber(v float64, decSep byte) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if decSep != '.' {
		s = strings.ReplaceAll(s, ".", string(decSep))
	}
	return s
}
