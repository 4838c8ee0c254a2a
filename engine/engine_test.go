package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"ixion/address"
	"ixion/depgraph"
	"ixion/interpreter"
	"ixion/model"
	"ixion/resolver"
	"ixion/sheet"
	"ixion/token"
)

// testModel is a minimal in-memory model.ModelAccess, just enough to drive
// the five public entry points end to end the way a real document model
// would, grounded the same way cmd/ixionrepl's book is: a map of plain
// values plus a map of formula cells, no persistence, one sheet.
type testModel struct {
	values   map[address.AbsAddress]float64
	formulas map[address.AbsAddress]*sheet.FormulaCell
	strings  []string
	interned map[string]uint32

	named    map[string]*sheet.FormulaCell
	namedRev map[*sheet.FormulaCell]string
	tables   map[string]testTableDef

	handler model.SessionHandler
}

// testTableDef mirrors cmd/ixionrepl/book.go's tableDef: the full range a
// named table occupies plus which of its edge rows are headers/totals and
// its column names, enough for GetTableRange to resolve a selector.
type testTableDef struct {
	rng        address.AbsRange
	hasHeaders bool
	hasTotals  bool
	columns    []string
}

func newTestModel() *testModel {
	return &testModel{
		values:   map[address.AbsAddress]float64{},
		formulas: map[address.AbsAddress]*sheet.FormulaCell{},
		interned: map[string]uint32{},
		named:    map[string]*sheet.FormulaCell{},
		namedRev: map[*sheet.FormulaCell]string{},
		tables:   map[string]testTableDef{},
	}
}

func (m *testModel) GetConfig() model.Config { return model.DefaultConfig() }

func (m *testModel) IsEmpty(a address.AbsAddress) bool {
	if _, ok := m.formulas[a]; ok {
		return false
	}
	_, ok := m.values[a]
	return !ok
}

func (m *testModel) GetCellType(a address.AbsAddress) model.CellType {
	if _, ok := m.formulas[a]; ok {
		return model.CellFormula
	}
	if _, ok := m.values[a]; ok {
		return model.CellNumeric
	}
	return model.CellEmpty
}

func (m *testModel) GetNumericValue(a address.AbsAddress) float64 { return m.values[a] }

func (m *testModel) GetStringIdentifierForAddress(address.AbsAddress) uint32 { return 0 }
func (m *testModel) GetStringIdentifierForText(text []byte) uint32           { return m.AddString(text) }
func (m *testModel) GetString(id uint32) (string, bool) {
	if int(id) >= len(m.strings) {
		return "", false
	}
	return m.strings[id], true
}

func (m *testModel) GetFormulaCell(a address.AbsAddress) model.FormulaCellHandle {
	c, ok := m.formulas[a]
	if !ok {
		return nil
	}
	return c
}

func (m *testModel) GetRangeValue(r address.AbsRange) (model.Matrix, error) {
	if r.First.Sheet != r.Last.Sheet {
		return model.Matrix{}, model.NewErrorResult(model.ErrInvalidExpression).Err()
	}
	rows := r.Last.Row - r.First.Row + 1
	cols := r.Last.Column - r.First.Column + 1
	out := model.NewMatrix(rows, cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			a := address.AbsAddress{Sheet: r.First.Sheet, Row: r.First.Row + row, Column: r.First.Column + col}
			if c, ok := m.formulas[a]; ok {
				res := c.GetValue()
				if !res.IsError() {
					out.Set(row, col, res.Value())
				}
				continue
			}
			out.Set(row, col, m.values[a])
		}
	}
	return out, nil
}

func (m *testModel) CountRange(r address.AbsRange, kinds []model.CellType) float64 {
	var n float64
	for row := r.First.Row; row <= r.Last.Row; row++ {
		for col := r.First.Column; col <= r.Last.Column; col++ {
			if _, ok := m.values[address.AbsAddress{Sheet: r.First.Sheet, Row: row, Column: col}]; ok {
				n++
			}
		}
	}
	return n
}

func (m *testModel) GetNamedExpression(name string) (model.FormulaCellHandle, bool) {
	c, ok := m.named[name]
	if !ok {
		return nil, false
	}
	return c, true
}

func (m *testModel) GetNamedExpressionName(cell model.FormulaCellHandle) (string, bool) {
	c, ok := cell.(*sheet.FormulaCell)
	if !ok {
		return "", false
	}
	name, ok := m.namedRev[c]
	return name, ok
}

func (m *testModel) isNamed(name string) bool {
	_, ok := m.named[name]
	return ok
}

// defineNamed binds name to a formula cell computed immediately over toks,
// the same anchor-at-(0,0,0) behaviour as cmd/ixionrepl/book.go's
// defineNamed.
func (m *testModel) defineNamed(name string, toks *token.Sequence) *sheet.FormulaCell {
	pos := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}
	cell := sheet.NewFormulaCell(pos, toks, -1, false)
	cell.Compute(func() model.FormulaResult {
		return interpreter.New(cell.Tokens(), pos, m, nil).Eval()
	})
	if old, ok := m.named[name]; ok {
		delete(m.namedRev, old)
	}
	m.named[name] = cell
	m.namedRev[cell] = name
	return cell
}

func (m *testModel) defineTable(name string, rng address.AbsRange, hasHeaders, hasTotals bool, columns []string) {
	m.tables[name] = testTableDef{rng: rng, hasHeaders: hasHeaders, hasTotals: hasTotals, columns: columns}
}

func (m *testModel) GetTableRange(spec token.TableSpec) (address.AbsRange, bool) {
	def, ok := m.tables[spec.TableName]
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

func (m *testModel) GetFormulaTokens(address.Sheet, int) *token.Sequence       { return nil }
func (m *testModel) GetSharedFormulaTokens(address.Sheet, int) *token.Sequence { return nil }
func (m *testModel) GetSharedFormulaRange(address.Sheet, int) address.AbsRange {
	return address.InvalidRange()
}

func (m *testModel) AppendString(text []byte) uint32 { return m.AddString(text) }
func (m *testModel) AddString(text []byte) uint32 {
	s := string(text)
	if id, ok := m.interned[s]; ok {
		return id
	}
	id := uint32(len(m.strings))
	m.strings = append(m.strings, s)
	m.interned[s] = id
	return id
}

func (m *testModel) GetSheetIndex(name string) address.Sheet {
	if name == "" || name == "Sheet1" {
		return 0
	}
	return address.InvalidSheet
}
func (m *testModel) GetSheetName(s address.Sheet) string {
	if s == 0 {
		return "Sheet1"
	}
	return ""
}

func (m *testModel) GetSessionHandler() model.SessionHandler { return m.handler }
func (m *testModel) GetTableHandler() model.TableHandler     { return m }

func (m *testModel) setValue(a address.AbsAddress, v float64) { m.values[a] = v }

func (m *testModel) setFormula(t *testing.T, tracker *depgraph.Tracker, res *resolver.A1Resolver, a address.AbsAddress, src string) *sheet.FormulaCell {
	t.Helper()
	return m.setFormulaShared(t, tracker, sheet.NewSharedTokenStore(), res, a, src)
}

// setFormulaShared is setFormula with a caller-supplied shared-token store,
// letting tests exercise spec §4.6's promotion across several insertions.
func (m *testModel) setFormulaShared(t *testing.T, tracker *depgraph.Tracker, store *sheet.SharedTokenStore, res *resolver.A1Resolver, a address.AbsAddress, src string) *sheet.FormulaCell {
	t.Helper()
	toks, err := ParseFormulaString(m, a, res, []byte(src))
	if err != nil {
		t.Fatalf("parse %q at %v: %v", src, a, err)
	}
	if old, ok := m.formulas[a]; ok {
		UnregisterFormulaCell(tracker, old)
	}
	cell := SetFormulaCell(tracker, store, m.lookup, a, toks)
	m.formulas[a] = cell
	return cell
}

func (m *testModel) lookup(a address.AbsAddress) *sheet.FormulaCell { return m.formulas[a] }

var _ model.ModelAccess = (*testModel)(nil)
var _ model.TableHandler = (*testModel)(nil)

func newTestResolver(m *testModel) *resolver.A1Resolver {
	return resolver.NewA1Resolver(m.GetSheetIndex, m.GetSheetName, m.isNamed)
}

// TestVolatileRecalculation exercises spec §8 scenario 3: A1=1, A2=2, A3=3,
// A4=SUM(A1:A3) computes to 6; changing A2 dirties exactly {A2, A4}, since
// GetAllDirtyCells returns the modified address itself as well as its
// listener A4, not the listener alone; recalc yields 14. The NOW() part of
// that scenario is not exercised here.
func TestVolatileRecalculation(t *testing.T) {
	m := newTestModel()
	tracker := depgraph.New()
	res := newTestResolver(m)

	a1 := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}
	a2 := address.AbsAddress{Sheet: 0, Row: 1, Column: 0}
	a3 := address.AbsAddress{Sheet: 0, Row: 2, Column: 0}
	a4 := address.AbsAddress{Sheet: 0, Row: 3, Column: 0}

	m.setValue(a1, 1)
	m.setValue(a2, 2)
	m.setValue(a3, 3)
	m.setFormula(t, tracker, res, a4, "SUM(A1:A3)")

	ctx := context.Background()
	dirty := GetAllDirtyCells(tracker, []address.AbsAddress{a4})
	if err := CalculateCells(ctx, m, tracker, m.lookup, dirty, 4); err != nil {
		t.Fatalf("initial calc: %v", err)
	}
	if got := m.lookup(a4).GetValue().Value(); got != 6 {
		t.Fatalf("expected A4=6, got %v", got)
	}

	m.setValue(a2, 10)
	dirty = GetAllDirtyCells(tracker, []address.AbsAddress{a2})
	wantDirty := map[address.AbsAddress]bool{a2: true, a4: true}
	if len(dirty) != len(wantDirty) {
		t.Fatalf("expected dirty set %v, got %v", wantDirty, dirty)
	}
	for _, d := range dirty {
		if !wantDirty[d] {
			t.Fatalf("unexpected cell %v in dirty set %v", d, dirty)
		}
	}
	if err := CalculateCells(ctx, m, tracker, m.lookup, dirty, 4); err != nil {
		t.Fatalf("recalc: %v", err)
	}
	if got := m.lookup(a4).GetValue().Value(); got != 14 {
		t.Fatalf("expected A4=14 after A2=10, got %v", got)
	}
}

// TestMutualCycleResolvesToRefError exercises spec §8 scenario 6: two
// formula cells referencing each other both end up Error(RefResultNotAvailable)
// and recalculation terminates rather than deadlocking.
func TestMutualCycleResolvesToRefError(t *testing.T) {
	m := newTestModel()
	tracker := depgraph.New()
	res := newTestResolver(m)

	a1 := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}
	a2 := address.AbsAddress{Sheet: 0, Row: 1, Column: 0}

	m.setFormula(t, tracker, res, a1, "A2+1")
	m.setFormula(t, tracker, res, a2, "A1+1")

	ctx := context.Background()
	dirty := GetAllDirtyCells(tracker, []address.AbsAddress{a1, a2})

	done := make(chan error, 1)
	go func() { done <- CalculateCells(ctx, m, tracker, m.lookup, dirty, 4) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("calc: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recalculation deadlocked on a mutual cycle")
	}

	r1 := m.lookup(a1).GetValue()
	r2 := m.lookup(a2).GetValue()
	if !r1.IsError() || r1.Err() != model.ErrRefResultNotAvailable {
		t.Fatalf("expected A1 = #REF!, got %v", r1)
	}
	if !r2.IsError() || r2.Err() != model.ErrRefResultNotAvailable {
		t.Fatalf("expected A2 = #REF!, got %v", r2)
	}
}

// TestSharedFormulaPromotion exercises spec §8 scenario 5: inserting the
// same formula "1" at (0,0,0), (0,1,0), (0,2,0), in increasing-row order (the
// order FindSharedNeighbour's single-direction, row-1-only check supports,
// per spec §9(b)), ends with all three cells sharing exactly one
// shared-token entry.
func TestSharedFormulaPromotion(t *testing.T) {
	m := newTestModel()
	tracker := depgraph.New()
	store := sheet.NewSharedTokenStore()
	res := newTestResolver(m)

	positions := []address.AbsAddress{
		{Sheet: 0, Row: 0, Column: 0},
		{Sheet: 0, Row: 1, Column: 0},
		{Sheet: 0, Row: 2, Column: 0},
	}
	for _, pos := range positions {
		m.setFormulaShared(t, tracker, store, res, pos, "1")
	}

	first := m.lookup(positions[0])
	if !first.Shared() {
		t.Fatalf("expected the first cell to be promoted into the shared store")
	}
	ident := first.Identifier()
	for _, pos := range positions {
		cell := m.lookup(pos)
		if !cell.Shared() {
			t.Fatalf("expected cell at %v to be shared", pos)
		}
		if cell.Identifier() != ident {
			t.Fatalf("expected cell at %v to reference shared identifier %d, got %d", pos, ident, cell.Identifier())
		}
	}
	if got := store.Range(ident); got.First.Row != 0 || got.Last.Row != 2 {
		t.Fatalf("expected the shared entry's range to span rows [0,2], got %v", got)
	}
}

// TestRoundTripArithmetic exercises spec §8's universal round-trip property
// through the public ParseFormulaString/PrintFormulaTokens entry points
// (parser/parser_test.go covers the same property at the parser layer
// directly; this confirms engine's re-export wires the same behaviour).
func TestRoundTripArithmetic(t *testing.T) {
	m := newTestModel()
	res := newTestResolver(m)
	origin := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}

	for _, src := range []string{"1/3*1.4", "2.3*(1+2)/(34*(3-2))", "SUM(1,2,3)"} {
		toks, err := ParseFormulaString(m, origin, res, []byte(src))
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		if got := PrintFormulaTokens(m, origin, res, toks); got != src {
			t.Fatalf("round-trip %q: got %q", src, got)
		}
	}
}

// TestNamedExpressionResolvesAndEvaluates exercises the NamedExp token end
// to end: the resolver classifies "TaxRate" as a named expression once
// isNamed recognises it, the parser emits an OpNamedExp token, and the
// interpreter reads its value through model.GetNamedExpression the same
// way it reads a SingleRef's formula cell.
func TestNamedExpressionResolvesAndEvaluates(t *testing.T) {
	m := newTestModel()
	tracker := depgraph.New()
	res := newTestResolver(m)

	m.defineNamed("TaxRate", token.NewSequence([]token.Token{token.NewValue(0.2)}))

	a1 := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}
	a2 := address.AbsAddress{Sheet: 0, Row: 1, Column: 0}
	m.setValue(a1, 50)
	m.setFormula(t, tracker, res, a2, "A1*TaxRate")

	ctx := context.Background()
	dirty := GetAllDirtyCells(tracker, []address.AbsAddress{a2})
	if err := CalculateCells(ctx, m, tracker, m.lookup, dirty, 2); err != nil {
		t.Fatalf("calc: %v", err)
	}
	if got := m.lookup(a2).GetValue().Value(); got != 10 {
		t.Fatalf("expected A2 = 50*0.2 = 10, got %v", got)
	}
}

// TestTableReferenceResolvesAndEvaluates exercises the TableRef token end
// to end: the resolver classifies "Sales[Amount]" (a single-selector
// structured table reference, spec §4.1) against a table defined over
// A1:B4, and SUM over it reads only the named column's data rows, skipping
// both the header row defineTable marks and the column it doesn't name.
func TestTableReferenceResolvesAndEvaluates(t *testing.T) {
	m := newTestModel()
	tracker := depgraph.New()
	res := newTestResolver(m)

	// Row 0 is the header row "Region,Amount"; rows 1-3 are data.
	m.setValue(address.AbsAddress{Sheet: 0, Row: 1, Column: 1}, 10)
	m.setValue(address.AbsAddress{Sheet: 0, Row: 2, Column: 1}, 20)
	m.setValue(address.AbsAddress{Sheet: 0, Row: 3, Column: 1}, 30)
	m.defineTable("Sales",
		address.AbsRange{
			First: address.AbsAddress{Sheet: 0, Row: 0, Column: 0},
			Last:  address.AbsAddress{Sheet: 0, Row: 3, Column: 1},
		},
		true, false, []string{"Region", "Amount"})

	c1 := address.AbsAddress{Sheet: 0, Row: 0, Column: 3}
	m.setFormula(t, tracker, res, c1, "SUM(Sales[Amount])")

	ctx := context.Background()
	dirty := GetAllDirtyCells(tracker, []address.AbsAddress{c1})
	if err := CalculateCells(ctx, m, tracker, m.lookup, dirty, 2); err != nil {
		t.Fatalf("calc: %v", err)
	}
	if got := m.lookup(c1).GetValue().Value(); got != 60 {
		t.Fatalf("expected SUM(Sales[Amount]) = 60, got %v", got)
	}
}

// spyHandler is a model.SessionHandler that records every event it
// receives, used to confirm CalculateCells' dispatch actually fires
// CellBlocked when a worker's interpreter blocks on another cell's cache,
// not just CellEntered/CellComputed.
type spyHandler struct {
	mu      sync.Mutex
	blocked []address.AbsAddress
}

func (s *spyHandler) CellEntered(address.AbsAddress) {}
func (s *spyHandler) CellBlocked(addr, waitingOn address.AbsAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = append(s.blocked, waitingOn)
}
func (s *spyHandler) CellComputed(address.AbsAddress, model.FormulaResult) {}

// TestCellBlockedFiresWhenReadingAnotherFormulaCell exercises spec §6's
// session_handler contract end to end: A2 depends on A1, both formula
// cells, so evaluating A2 must read through model.FormulaCellHandle.GetValue
// on A1 — the one suspension point spec §5 describes — and the interpreter
// must report it via CellBlocked before blocking.
func TestCellBlockedFiresWhenReadingAnotherFormulaCell(t *testing.T) {
	m := newTestModel()
	m.handler = &spyHandler{}
	tracker := depgraph.New()
	res := newTestResolver(m)

	a1 := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}
	a2 := address.AbsAddress{Sheet: 0, Row: 1, Column: 0}
	m.setFormula(t, tracker, res, a1, "5")
	m.setFormula(t, tracker, res, a2, "A1+1")

	ctx := context.Background()
	dirty := GetAllDirtyCells(tracker, []address.AbsAddress{a1, a2})
	if err := CalculateCells(ctx, m, tracker, m.lookup, dirty, 2); err != nil {
		t.Fatalf("calc: %v", err)
	}
	if got := m.lookup(a2).GetValue().Value(); got != 6 {
		t.Fatalf("expected A2 = 6, got %v", got)
	}

	spy := m.handler.(*spyHandler)
	spy.mu.Lock()
	defer spy.mu.Unlock()
	found := false
	for _, w := range spy.blocked {
		if w == a1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected CellBlocked(A2, A1) to fire while evaluating A2, got %v", spy.blocked)
	}
}
