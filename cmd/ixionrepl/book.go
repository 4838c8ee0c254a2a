package main

import (
	"sync"

	"ixion/address"
	"ixion/depgraph"
	"ixion/engine"
	"ixion/interpreter"
	"ixion/model"
	"ixion/resolver"
	"ixion/sheet"
	"ixion/token"
)

// book is a minimal single-sheet, in-memory model.ModelAccess
// implementation: just enough document-model plumbing (string pool, value
// cells, formula cells, named expressions, structured tables, a dependency
// tracker) to drive the engine package end to end from the command line. A
// real document model (persistence, multi-sheet books) is explicitly out of this core's
// scope; this type exists only to give the demo REPL something to call
// engine against, the way karl's own spreadsheet.Sheet is the toy document
// model behind its language runtime.
type book struct {
	mu sync.Mutex

	cfg     model.Config
	tracker *depgraph.Tracker

	values   map[address.AbsAddress]float64
	formulas map[address.AbsAddress]*sheet.FormulaCell
	strings  []string
	interned map[string]uint32

	shared *sheet.SharedTokenStore

	named    map[string]*sheet.FormulaCell
	namedRev map[*sheet.FormulaCell]string

	tables map[string]tableDef

	handler model.SessionHandler
}

// tableDef is the minimal structured-table metadata this demo driver
// tracks: the full cell range a named table occupies (including its
// optional header/totals rows) and the column names across it, in order,
// so a TableSpec selector (spec §4.1's "Table1[[#Headers],[Category]]"
// shape) can be resolved to a sub-AbsRange by book.GetTableHandler.
type tableDef struct {
	rng        address.AbsRange
	hasHeaders bool
	hasTotals  bool
	columns    []string
}

func newBook(handler model.SessionHandler) *book {
	return &book{
		cfg:      model.DefaultConfig(),
		tracker:  depgraph.New(),
		values:   make(map[address.AbsAddress]float64),
		formulas: make(map[address.AbsAddress]*sheet.FormulaCell),
		interned: make(map[string]uint32),
		shared:   sheet.NewSharedTokenStore(),
		named:    make(map[string]*sheet.FormulaCell),
		namedRev: make(map[*sheet.FormulaCell]string),
		tables:   make(map[string]tableDef),
		handler:  handler,
	}
}

func (b *book) GetConfig() model.Config { return b.cfg }

func (b *book) IsEmpty(addr address.AbsAddress) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.formulas[addr]; ok {
		return false
	}
	_, ok := b.values[addr]
	return !ok
}

func (b *book) GetCellType(addr address.AbsAddress) model.CellType {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.formulas[addr]; ok {
		return model.CellFormula
	}
	if _, ok := b.values[addr]; ok {
		return model.CellNumeric
	}
	return model.CellEmpty
}

func (b *book) GetNumericValue(addr address.AbsAddress) float64 {
	b.mu.Lock()
	cell, isFormula := b.formulas[addr]
	v := b.values[addr]
	b.mu.Unlock()
	if isFormula {
		return cell.GetValue().Value()
	}
	return v
}

func (b *book) GetStringIdentifierForAddress(addr address.AbsAddress) uint32 { return 0 }

func (b *book) GetStringIdentifierForText(text []byte) uint32 {
	return b.AddString(text)
}

func (b *book) GetString(id uint32) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int(id) >= len(b.strings) {
		return "", false
	}
	return b.strings[id], true
}

func (b *book) GetFormulaCell(addr address.AbsAddress) model.FormulaCellHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.formulas[addr]
	if !ok {
		return nil
	}
	return c
}

func (b *book) GetRangeValue(r address.AbsRange) (model.Matrix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.First.Sheet != r.Last.Sheet {
		return model.Matrix{}, model.ErrInvalidExpression
	}
	rows := r.Last.Row - r.First.Row + 1
	cols := r.Last.Column - r.First.Column + 1
	if rows <= 0 || cols <= 0 {
		return model.Matrix{}, model.ErrInvalidExpression
	}
	m := model.NewMatrix(rows, cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			a := address.AbsAddress{Sheet: r.First.Sheet, Row: r.First.Row + row, Column: r.First.Column + col}
			if c, ok := b.formulas[a]; ok {
				res := c.GetValue()
				if !res.IsError() {
					m.Set(row, col, res.Value())
				}
				continue
			}
			m.Set(row, col, b.values[a])
		}
	}
	return m, nil
}

func (b *book) CountRange(r address.AbsRange, kinds []model.CellType) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var count float64
	for row := r.First.Row; row <= r.Last.Row; row++ {
		for col := r.First.Column; col <= r.Last.Column; col++ {
			a := address.AbsAddress{Sheet: r.First.Sheet, Row: row, Column: col}
			if _, ok := b.values[a]; ok {
				count++
			}
		}
	}
	return count
}

func (b *book) GetNamedExpression(name string) (model.FormulaCellHandle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.named[name]
	if !ok {
		return nil, false
	}
	return c, true
}

func (b *book) GetNamedExpressionName(cell model.FormulaCellHandle) (string, bool) {
	c, ok := cell.(*sheet.FormulaCell)
	if !ok {
		return "", false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	name, ok := b.namedRev[c]
	return name, ok
}

// isNamed reports whether name is a defined named expression, the
// membership test the A1 resolver needs to classify a bare NAME token as
// model.NameNamedExpression instead of model.NameInvalid (spec §4.2).
func (b *book) isNamed(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.named[name]
	return ok
}

func (b *book) GetFormulaTokens(sh address.Sheet, identifier int) *token.Sequence {
	return nil
}
func (b *book) GetSharedFormulaTokens(sh address.Sheet, identifier int) *token.Sequence {
	return b.shared.Get(identifier)
}
func (b *book) GetSharedFormulaRange(sh address.Sheet, identifier int) address.AbsRange {
	return b.shared.Range(identifier)
}

func (b *book) AppendString(text []byte) uint32 { return b.AddString(text) }

func (b *book) AddString(text []byte) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := string(text)
	if id, ok := b.interned[s]; ok {
		return id
	}
	id := uint32(len(b.strings))
	b.strings = append(b.strings, s)
	b.interned[s] = id
	return id
}

func (b *book) GetSheetIndex(name string) address.Sheet {
	if name == "" || name == "Sheet1" {
		return 0
	}
	return address.InvalidSheet
}

func (b *book) GetSheetName(sh address.Sheet) string {
	if sh == 0 {
		return "Sheet1"
	}
	return ""
}

func (b *book) GetSessionHandler() model.SessionHandler { return b.handler }
func (b *book) GetTableHandler() model.TableHandler      { return b }

// GetTableRange satisfies model.TableHandler: it resolves a structured
// table selector (spec §4.1) against a table defined with defineTable,
// narrowing the table's full range to the headers row, totals row, a
// single named column, or the plain data region (headers/totals excluded),
// matching whichever selectors spec.Table carries.
func (b *book) GetTableRange(spec token.TableSpec) (address.AbsRange, bool) {
	b.mu.Lock()
	def, ok := b.tables[spec.TableName]
	b.mu.Unlock()
	if !ok {
		return address.AbsRange{}, false
	}

	first, last := def.rng.First, def.rng.Last
	dataFirstRow, dataLastRow := first.Row, last.Row
	if def.hasHeaders {
		dataFirstRow++
	}
	if def.hasTotals {
		dataLastRow--
	}
	if dataFirstRow > dataLastRow {
		return address.AbsRange{}, false
	}

	colFirst, colLast := first.Column, last.Column
	if spec.ColumnName != "" {
		idx := -1
		for i, c := range def.columns {
			if c == spec.ColumnName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return address.AbsRange{}, false
		}
		colFirst = first.Column + idx
		colLast = colFirst
	}

	rowFirst, rowLast := dataFirstRow, dataLastRow
	switch {
	case spec.Headers:
		if !def.hasHeaders {
			return address.AbsRange{}, false
		}
		rowFirst, rowLast = first.Row, first.Row
	case spec.Totals:
		if !def.hasTotals {
			return address.AbsRange{}, false
		}
		rowFirst, rowLast = last.Row, last.Row
	}

	return address.AbsRange{
		First: address.AbsAddress{Sheet: first.Sheet, Row: rowFirst, Column: colFirst},
		Last:  address.AbsAddress{Sheet: first.Sheet, Row: rowLast, Column: colLast},
	}, true
}

// setValue stores a plain numeric value at addr, clearing any formula
// previously there along with its dependency edges.
func (b *book) setValue(addr address.AbsAddress, v float64) {
	b.mu.Lock()
	old, hadOld := b.formulas[addr]
	delete(b.formulas, addr)
	b.values[addr] = v
	b.mu.Unlock()
	if hadOld {
		engine.UnregisterFormulaCell(b.tracker, old)
	}
}

// setFormula installs a formula cell at addr, wiring its dependency edges
// and promoting/extending a shared-token entry per spec §4.6 when the cell
// directly above addr already carries identical tokens.
func (b *book) setFormula(addr address.AbsAddress, toks *token.Sequence) *sheet.FormulaCell {
	b.mu.Lock()
	old, hadOld := b.formulas[addr]
	b.mu.Unlock()
	if hadOld {
		engine.UnregisterFormulaCell(b.tracker, old)
	}

	cell := engine.SetFormulaCell(b.tracker, b.shared, b.lookup, addr, toks)
	b.mu.Lock()
	b.formulas[addr] = cell
	b.mu.Unlock()
	return cell
}

func (b *book) lookup(addr address.AbsAddress) *sheet.FormulaCell {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.formulas[addr]
}

// defineNamed binds name to toks, computing its value immediately (named
// expressions here are not part of the grid's dependency graph, so there
// is no dirty-set pass to compute them lazily through — spec §6's
// get_named_expression contract only requires a FormulaCellHandle whose
// cached result readers can GetValue() from).
func (b *book) defineNamed(name string, toks *token.Sequence) *sheet.FormulaCell {
	// Relative references inside a named expression's formula resolve
	// against its own anchor cell; this demo driver always anchors named
	// expressions at A1 of sheet 0, the way a book with no explicit anchor
	// picker would.
	pos := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}
	cell := sheet.NewFormulaCell(pos, toks, -1, false)
	cell.Compute(func() model.FormulaResult {
		return interpreter.New(cell.Tokens(), pos, b, b.tracker).Eval()
	})

	b.mu.Lock()
	if old, ok := b.named[name]; ok {
		delete(b.namedRev, old)
	}
	b.named[name] = cell
	b.namedRev[cell] = name
	b.mu.Unlock()
	return cell
}

// defineTable records rng as a structured table named name, with hasHeaders
// and hasTotals marking whether its first/last row are a header or totals
// row rather than data, and columns naming its columns left to right —
// enough for GetTableRange to resolve a TableSpec selector (spec §4.1).
func (b *book) defineTable(name string, rng address.AbsRange, hasHeaders, hasTotals bool, columns []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[name] = tableDef{rng: rng, hasHeaders: hasHeaders, hasTotals: hasTotals, columns: columns}
}

func (b *book) newA1Resolver() *resolver.A1Resolver {
	return resolver.NewA1Resolver(b.GetSheetIndex, b.GetSheetName, b.isNamed)
}

var _ model.ModelAccess = (*book)(nil)
var _ model.TableHandler = (*book)(nil)
