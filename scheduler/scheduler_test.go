package scheduler

import (
	"context"
	"testing"

	"ixion/address"
	"ixion/depgraph"
	"ixion/model"
	"ixion/sheet"
	"ixion/token"
)

func addr(row, col int) address.AbsAddress {
	return address.AbsAddress{Sheet: 0, Row: row, Column: col}
}

func refSeq(targets ...address.AbsAddress) *token.Sequence {
	toks := make([]token.Token, len(targets))
	for i, a := range targets {
		toks[i] = token.NewSingleRef(address.NewAbsolute(a))
	}
	return token.NewSequence(toks)
}

func TestGetAllDirtyCellsIncludesListenersAndVolatile(t *testing.T) {
	tracker := depgraph.New()
	a1, a2, a3 := addr(0, 0), addr(1, 0), addr(2, 0)
	// a2 depends on a1, a3 is volatile (e.g. contains NOW()).
	tracker.AddCellListener(a2, a1)
	tracker.AddVolatile(a3)

	dirty := GetAllDirtyCells(tracker, []address.AbsAddress{a1})

	seen := map[address.AbsAddress]bool{}
	for _, d := range dirty {
		seen[d] = true
	}
	if !seen[a1] || !seen[a2] || !seen[a3] {
		t.Fatalf("expected modified, listener and volatile cells all dirty, got %v", dirty)
	}
}

func newLookup() (CellLookup, map[address.AbsAddress]*sheet.FormulaCell) {
	cells := map[address.AbsAddress]*sheet.FormulaCell{}
	return func(a address.AbsAddress) *sheet.FormulaCell { return cells[a] }, cells
}

func TestCheckCircularResolvesMutualCycle(t *testing.T) {
	lookup, cells := newLookup()
	a1, a2 := addr(0, 0), addr(1, 0)
	cells[a1] = sheet.NewFormulaCell(a1, refSeq(a2), 0, false)
	cells[a2] = sheet.NewFormulaCell(a2, refSeq(a1), 1, false)

	CheckCircular([]address.AbsAddress{a1, a2}, lookup)

	for _, a := range []address.AbsAddress{a1, a2} {
		c := cells[a]
		if !c.HasResult() {
			t.Fatalf("expected cell %v to have a pre-populated result", a)
		}
		if c.CircularSafe() {
			t.Fatalf("expected cell %v to be marked circular-unsafe", a)
		}
		r := c.GetValue()
		if !r.IsError() || r.Err() != model.ErrRefResultNotAvailable {
			t.Fatalf("expected cell %v to resolve to the ref error, got %v", a, r)
		}
	}
}

func TestCheckCircularLeavesAcyclicCellsUntouched(t *testing.T) {
	lookup, cells := newLookup()
	a1, a2 := addr(0, 0), addr(1, 0)
	cells[a1] = sheet.NewFormulaCell(a1, refSeq(), 0, false)
	cells[a2] = sheet.NewFormulaCell(a2, refSeq(a1), 1, false)

	CheckCircular([]address.AbsAddress{a1, a2}, lookup)

	if cells[a1].HasResult() || cells[a2].HasResult() {
		t.Fatal("expected acyclic cells to remain unpopulated by the circular check")
	}
	if !cells[a1].CircularSafe() || !cells[a2].CircularSafe() {
		t.Fatal("expected acyclic cells to be marked circular-safe")
	}
}

func TestPoolDispatchRunsAllAndJoins(t *testing.T) {
	lookup, cells := newLookup()
	var dirty []address.AbsAddress
	for i := 0; i < 10; i++ {
		a := addr(i, 0)
		cells[a] = sheet.NewFormulaCell(a, refSeq(), i, false)
		dirty = append(dirty, a)
	}

	pool := NewPool(3)
	err := pool.Dispatch(context.Background(), dirty, lookup, func(a address.AbsAddress, c *sheet.FormulaCell) {
		c.Compute(func() model.FormulaResult { return model.NewValueResult(1) })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, a := range dirty {
		if !cells[a].HasResult() {
			t.Fatalf("expected cell %v to have a result after Dispatch returned", a)
		}
	}
}

func TestPoolDispatchSkipsAlreadyResolvedCells(t *testing.T) {
	lookup, cells := newLookup()
	a1 := addr(0, 0)
	cells[a1] = sheet.NewFormulaCell(a1, refSeq(), 0, false)
	cells[a1].PrePopulate(model.NewErrorResult(model.ErrRefResultNotAvailable))

	called := false
	pool := NewPool(1)
	err := pool.Dispatch(context.Background(), []address.AbsAddress{a1}, lookup, func(a address.AbsAddress, c *sheet.FormulaCell) {
		called = true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("expected Dispatch to skip a cell that already has a result")
	}
}
