// Package engine wires together the lexer/parser/depgraph/scheduler/
// interpreter packages behind the five public entry points named in
// spec §6: parsing and printing a single formula, registering a formula
// cell's dependency edges, expanding a dirty set, and driving the bounded
// recalculation pass over it. None of the pipeline stages are reimplemented
// here; this package only sequences calls into the packages that already
// implement each one, the way the teacher's spreadsheet.Sheet.SetCell
// sequences lexer -> parser -> evaluator -> dependency update -> propagate
// into one operation (spreadsheet/engine.go).
package engine

import (
	"context"
	"fmt"

	"ixion/address"
	"ixion/depgraph"
	"ixion/interpreter"
	"ixion/model"
	"ixion/parser"
	"ixion/scheduler"
	"ixion/sheet"
	"ixion/token"
)

// ParseFormulaString lexes and parses src relative to origin, resolving
// names with resolver. It is the same operation parser.ParseFormulaString
// implements; engine re-exports it so callers depend on one package for the
// whole pipeline.
func ParseFormulaString(access model.ModelAccess, origin address.AbsAddress, resolver model.NameResolver, src []byte) (*token.Sequence, error) {
	return parser.ParseFormulaString(access, origin, resolver, src)
}

// PrintFormulaTokens renders toks back to source text relative to origin,
// the inverse of ParseFormulaString.
func PrintFormulaTokens(access model.ModelAccess, origin address.AbsAddress, resolver model.NameResolver, toks *token.Sequence) string {
	return parser.PrintFormulaTokens(access, origin, resolver, toks)
}

// RegisterFormulaCell walks cell's token sequence and wires every reference
// it contains into tracker as a listener edge rooted at cell's own address,
// and marks cell volatile if any of its tokens is a call to a volatile
// builtin (currently only NOW). Callers must call this once per formula
// cell whenever its tokens change, before the next recalculation pass, so
// the dependency graph reflects the new formula (spec §4.3).
func RegisterFormulaCell(tracker *depgraph.Tracker, cell *sheet.FormulaCell) {
	pos := cell.Position()
	toks := cell.Tokens()
	if toks == nil {
		return
	}
	for _, t := range toks.Tokens {
		switch t.Op {
		case token.OpSingleRef:
			tracker.AddCellListener(pos, t.Ref.ToAbs(pos))
		case token.OpRangeRef:
			tracker.AddRangeListener(pos, t.Range.ToAbs(pos))
		case token.OpFunction:
			if t.Fn == model.FnNow {
				tracker.AddVolatile(pos)
			}
		}
	}
}

// UnregisterFormulaCell removes every listener edge RegisterFormulaCell
// would have added for cell's current tokens, used before re-registering a
// cell whose formula just changed, or before erasing it entirely (spec
// §4.3's "erase_cell" edge-removal requirement).
func UnregisterFormulaCell(tracker *depgraph.Tracker, cell *sheet.FormulaCell) {
	pos := cell.Position()
	toks := cell.Tokens()
	if toks == nil {
		return
	}
	for _, t := range toks.Tokens {
		switch t.Op {
		case token.OpSingleRef:
			tracker.RemoveCellListener(pos, t.Ref.ToAbs(pos))
		case token.OpRangeRef:
			tracker.RemoveRangeListener(pos, t.Range.ToAbs(pos))
		}
	}
	tracker.RemoveVolatile(pos)
}

// SetFormulaCell installs toks as the formula at pos, implementing spec
// §4.6's shared-formula promotion: if the cell immediately above pos in the
// same column (lookup(sheet,row-1,col)) is a formula cell whose tokens
// equal toks, pos adopts that neighbour's shared-token identifier and the
// shared range is extended to include pos's row. If the neighbour wasn't
// already shared, its private tokens are promoted into sharedStore first so
// both cells end up referencing the same entry. Otherwise pos gets a
// private, unshared token sequence. Either way the new cell's dependency
// edges are wired via RegisterFormulaCell before it is returned. Callers
// own address->cell storage and must call UnregisterFormulaCell on whatever
// cell previously occupied pos first, exactly as RegisterFormulaCell's
// callers already do (spec §4.3).
func SetFormulaCell(tracker *depgraph.Tracker, sharedStore *sheet.SharedTokenStore, lookup scheduler.CellLookup, pos address.AbsAddress, toks *token.Sequence) *sheet.FormulaCell {
	if neighbour := sheet.FindSharedNeighbour(lookup, pos, toks); neighbour != nil {
		identifier := neighbour.Identifier()
		if !neighbour.Shared() {
			rng := address.AbsRange{First: neighbour.Position(), Last: neighbour.Position()}
			identifier = sharedStore.Insert(neighbour.Tokens(), rng)
			neighbour.SetTokens(neighbour.Tokens(), identifier, true)
		}
		sharedStore.ExtendRange(identifier, pos.Row)
		cell := sheet.NewFormulaCell(pos, sharedStore.Get(identifier), identifier, true)
		RegisterFormulaCell(tracker, cell)
		return cell
	}

	cell := sheet.NewFormulaCell(pos, toks, -1, false)
	RegisterFormulaCell(tracker, cell)
	return cell
}

// GetAllDirtyCells expands modified into the full recompute set (spec §4.4
// step 1), delegating to scheduler.
func GetAllDirtyCells(tracker *depgraph.Tracker, modified []address.AbsAddress) []address.AbsAddress {
	return scheduler.GetAllDirtyCells(tracker, modified)
}

// CalculateCells runs the rest of spec §4.4 over dirty: reset every cell's
// cached result, pre-check for reference cycles, then dispatch evaluation
// across a pool of threadCount workers, blocking until every cell in dirty
// holds a published result.
func CalculateCells(ctx context.Context, access model.ModelAccess, tracker *depgraph.Tracker, lookup scheduler.CellLookup, dirty []address.AbsAddress, threadCount int) error {
	scheduler.ResetAll(dirty, lookup)
	scheduler.CheckCircular(dirty, lookup)

	pool := scheduler.NewPool(threadCount)
	if err := pool.Dispatch(ctx, dirty, lookup, func(addr address.AbsAddress, cell *sheet.FormulaCell) {
		if handler := access.GetSessionHandler(); handler != nil {
			handler.CellEntered(addr)
		}
		result := cell.Compute(func() model.FormulaResult {
			ip := interpreter.New(cell.Tokens(), addr, access, tracker)
			return ip.Eval()
		})
		if handler := access.GetSessionHandler(); handler != nil {
			handler.CellComputed(addr, result)
		}
	}); err != nil {
		return err
	}

	// Dispatch's wg.Wait() guarantees every cell it started has published a
	// result by the time it returns, and CheckCircular pre-populates every
	// cell it skips. A dirty formula cell that still has no result here
	// means that guarantee was broken by a bug in the scheduler, not by
	// anything a caller supplied — exactly the invariant-violation contract
	// spec §7 defines GeneralError for.
	for _, a := range dirty {
		if cell := lookup(a); cell != nil && !cell.HasResult() {
			return &model.GeneralError{Message: fmt.Sprintf("cell %s left without a published result after dispatch completed", a.Name())}
		}
	}
	return nil
}
