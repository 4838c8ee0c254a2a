// Package resolver provides a minimal reference implementation of
// model.NameResolver for the A1 reference syntax. The A1/R1C1/ODFF
// resolver syntaxes are explicitly out of this core's scope (spec §1) —
// full implementations are external collaborators. This package exists
// only so the core's own tests can exercise parse/print round-tripping
// (spec §8) without depending on an external resolver; it covers plain
// single-cell and range A1 references, optional "$" absolute markers, an
// optional "Sheet!" prefix, structured table references of the form
// "Table1[Column]" / "Table1[[#Headers],[Category]]" (spec §4.1's
// name-scope lexing rule exists to support exactly this shape), and named
// expressions the caller's IsNamed membership test recognises; anything
// else resolves to Invalid.
package resolver

import (
	"strconv"
	"strings"

	"ixion/address"
	"ixion/model"
	"ixion/token"
)

// A1Resolver resolves names against a fixed set of known sheet names (for
// the "Sheet!" prefix form) and a named-expression set supplied by the
// caller.
type A1Resolver struct {
	SheetIndex func(name string) address.Sheet
	SheetName  func(sheet address.Sheet) string
	IsNamed    func(name string) bool
}

// NewA1Resolver builds a resolver with the given sheet name <-> index maps
// and named-expression membership test. Any of the three may be nil, in
// which case sheet-prefixed references and named expressions are never
// recognised.
func NewA1Resolver(sheetIndex func(string) address.Sheet, sheetName func(address.Sheet) string, isNamed func(string) bool) *A1Resolver {
	return &A1Resolver{SheetIndex: sheetIndex, SheetName: sheetName, IsNamed: isNamed}
}

func (r *A1Resolver) Resolve(name string, origin address.AbsAddress) model.ResolvedName {
	if id, ok := model.LookupBuiltin(name); ok {
		return model.ResolvedName{Kind: model.NameFunction, FuncID: id, FuncName: name}
	}

	if strings.IndexByte(name, '[') >= 0 {
		if spec, ok := parseTableSpec(name); ok {
			return model.ResolvedName{Kind: model.NameTableReference, Table: spec}
		}
		return model.ResolvedName{Kind: model.NameInvalid}
	}

	text := name
	sheetAbs := false
	sheetOffset := 0
	if i := strings.IndexByte(text, '!'); i >= 0 {
		sheetText := text[:i]
		text = text[i+1:]
		if r.SheetIndex == nil {
			return model.ResolvedName{Kind: model.NameInvalid}
		}
		idx := r.SheetIndex(sheetText)
		if idx == address.InvalidSheet {
			return model.ResolvedName{Kind: model.NameInvalid}
		}
		sheetAbs = true
		sheetOffset = idx
	}

	if i := strings.IndexByte(text, ':'); i >= 0 {
		first, ok1 := parseCellRef(text[:i])
		last, ok2 := parseCellRef(text[i+1:])
		if ok1 && ok2 {
			firstAddr := refToAddress(first, origin, sheetAbs, sheetOffset)
			lastAddr := refToAddress(last, origin, sheetAbs, sheetOffset)
			return model.ResolvedName{
				Kind:  model.NameRangeReference,
				Range: address.Range{First: firstAddr, Last: lastAddr},
			}
		}
		return model.ResolvedName{Kind: model.NameInvalid}
	}

	if ref, ok := parseCellRef(text); ok {
		return model.ResolvedName{
			Kind: model.NameCellReference,
			Cell: refToAddress(ref, origin, sheetAbs, sheetOffset),
		}
	}

	if r.IsNamed != nil && r.IsNamed(name) {
		return model.ResolvedName{Kind: model.NameNamedExpression, Named: name}
	}

	return model.ResolvedName{Kind: model.NameInvalid}
}

type cellRef struct {
	col, row       int
	absCol, absRow bool
}

// parseCellRef parses "$A$1", "A1", "B:B" (whole column) or "3:3"-style
// single endpoints (whole row) of the form "[$]COL[$]ROW", where either
// COL or ROW (not both) may be absent to denote a whole row/column.
func parseCellRef(s string) (cellRef, bool) {
	i := 0
	var ref cellRef
	if i < len(s) && s[i] == '$' {
		ref.absCol = true
		i++
	}
	colStart := i
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	colText := s[colStart:i]

	if i < len(s) && s[i] == '$' {
		ref.absRow = true
		i++
	}
	rowStart := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	rowText := s[rowStart:i]

	if i != len(s) {
		return cellRef{}, false
	}

	switch {
	case colText != "" && rowText != "":
		ref.col = colToIndex(colText)
		row, err := strconv.Atoi(rowText)
		if err != nil {
			return cellRef{}, false
		}
		ref.row = row - 1
		return ref, true
	case colText != "" && rowText == "":
		ref.col = colToIndex(colText)
		ref.row = address.RowUnset
		ref.absRow = true
		return ref, true
	case colText == "" && rowText != "":
		row, err := strconv.Atoi(rowText)
		if err != nil {
			return cellRef{}, false
		}
		ref.row = row - 1
		ref.col = address.ColumnUnset
		ref.absCol = true
		return ref, true
	default:
		return cellRef{}, false
	}
}

// parseTableSpec parses a structured table reference's lexed name text,
// e.g. "Table1[Column]" or "Table1[[#Headers],[Category]]", into a
// token.TableSpec. A single selector needs no outer bracket pair; more
// than one is wrapped in an extra "[...]" the way spec's own example
// formats it.
func parseTableSpec(text string) (token.TableSpec, bool) {
	idx := strings.IndexByte(text, '[')
	if idx <= 0 || text[len(text)-1] != ']' {
		return token.TableSpec{}, false
	}
	spec := token.TableSpec{TableName: text[:idx]}
	body := text[idx+1 : len(text)-1]

	if strings.HasPrefix(body, "[") {
		groups := splitBracketGroups(body)
		if len(groups) == 0 {
			return token.TableSpec{}, false
		}
		for _, sel := range groups {
			if !applyTableSelector(&spec, sel) {
				return token.TableSpec{}, false
			}
		}
		return spec, true
	}
	if !applyTableSelector(&spec, body) {
		return token.TableSpec{}, false
	}
	return spec, true
}

// applyTableSelector records one selector ("#Headers", "#Data", "#Totals"
// or a plain column name, matched case-insensitively for the special
// markers) onto spec.
func applyTableSelector(spec *token.TableSpec, sel string) bool {
	switch strings.ToLower(sel) {
	case "#headers":
		spec.Headers = true
	case "#data":
		spec.Data = true
	case "#totals":
		spec.Totals = true
	case "":
		return false
	default:
		spec.ColumnName = sel
	}
	return true
}

// splitBracketGroups splits the body of a "[[sel1],[sel2],...]" span (with
// the outermost brackets already stripped) into its selectors' inner text,
// in order.
func splitBracketGroups(body string) []string {
	var out []string
	depth := 0
	var cur strings.Builder
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			if depth > 0 {
				cur.WriteByte(body[i])
			}
		}
	}
	return out
}

func refToAddress(ref cellRef, origin address.AbsAddress, sheetAbs bool, sheetOffset int) address.Address {
	a := address.Address{AbsSheet: sheetAbs, AbsRow: ref.absRow, AbsColumn: ref.absCol}
	if sheetAbs {
		a.Sheet = sheetOffset
	} else {
		a.Sheet = 0
	}
	if ref.absRow || ref.row == address.RowUnset {
		a.Row = ref.row
	} else {
		a.Row = ref.row - origin.Row
	}
	if ref.absCol || ref.col == address.ColumnUnset {
		a.Column = ref.col
	} else {
		a.Column = ref.col - origin.Column
	}
	return a
}

func colToIndex(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*26 + int(s[i]-'A'+1)
	}
	return n - 1
}

func indexToCol(n int) string {
	n++
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

// Print renders rn back to A1 source text exactly as Resolve would have
// parsed it, so print_formula_tokens can round-trip (spec §8).
func (r *A1Resolver) Print(rn model.ResolvedName, origin address.AbsAddress) string {
	switch rn.Kind {
	case model.NameFunction:
		if rn.FuncName != "" {
			return rn.FuncName
		}
		return model.BuiltinDisplayName(rn.FuncID)
	case model.NameNamedExpression:
		return rn.Named
	case model.NameCellReference:
		return r.printAddress(rn.Cell, origin)
	case model.NameRangeReference:
		return r.printAddress(rn.Range.First, origin) + ":" + r.printAddress(rn.Range.Last, origin)
	case model.NameTableReference:
		return printTableSpec(rn.Table)
	default:
		return ""
	}
}

// printTableSpec renders t back to source text exactly as parseTableSpec
// would have parsed it, so print_formula_tokens can round-trip a table
// reference (spec §8).
func printTableSpec(t token.TableSpec) string {
	var sels []string
	if t.Headers {
		sels = append(sels, "#Headers")
	}
	if t.Data {
		sels = append(sels, "#Data")
	}
	if t.Totals {
		sels = append(sels, "#Totals")
	}
	if t.ColumnName != "" {
		sels = append(sels, t.ColumnName)
	}
	switch len(sels) {
	case 0:
		return t.TableName + "[]"
	case 1:
		return t.TableName + "[" + sels[0] + "]"
	default:
		var b strings.Builder
		b.WriteString(t.TableName)
		b.WriteByte('[')
		for i, s := range sels {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('[')
			b.WriteString(s)
			b.WriteByte(']')
		}
		b.WriteByte(']')
		return b.String()
	}
}

func (r *A1Resolver) printAddress(a address.Address, origin address.AbsAddress) string {
	abs := a.ToAbs(origin)
	var b strings.Builder
	if a.AbsSheet && r.SheetName != nil {
		b.WriteString(r.SheetName(abs.Sheet))
		b.WriteByte('!')
	}
	if abs.Column != address.ColumnUnset {
		if a.AbsColumn {
			b.WriteByte('$')
		}
		b.WriteString(indexToCol(abs.Column))
	}
	if abs.Row != address.RowUnset {
		if a.AbsRow {
			b.WriteByte('$')
		}
		b.WriteString(strconv.Itoa(abs.Row + 1))
	}
	return b.String()
}
