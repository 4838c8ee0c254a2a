// Package sheet implements the formula-cell arena: per-cell result caching
// with the mutex+condvar publication protocol of spec §4.5, and the
// shared-token store of spec §4.6. Nothing here has a teacher analogue —
// karl's own spreadsheet.Cell (karl/spreadsheet/sheet.go) stores a plain
// Value field with no concurrency primitives, since that toy engine never
// dispatches work to more than one goroutine at a time. The mutex+condvar
// shape instead follows the idiom spec §9 names explicitly for Go, applied
// the way the teacher guards its own shared maps elsewhere
// (spreadsheet.Sheet.mu, spreadsheet.Server.mu).
package sheet

import (
	"sync"

	"ixion/address"
	"ixion/model"
	"ixion/token"
)

// FormulaCell owns a formula's tokens and its memoised result. Exactly one
// instance exists per formula-cell position in the model; it is looked up
// by address, never copied, so its mutex stays meaningful.
type FormulaCell struct {
	mu   sync.Mutex
	cond *sync.Cond

	pos   address.AbsAddress
	toks  *token.Sequence
	ident int
	// shared reports whether toks is owned by the SharedTokenStore
	// (spec §4.6) rather than privately by this cell alone.
	shared bool

	// circularSafe is set true by the scheduler's pre-dispatch cycle
	// check once every single-reference dependency reachable through
	// formula cells is itself circularSafe.
	circularSafe bool

	result *model.FormulaResult
}

// NewFormulaCell constructs a cell at pos with the given token sequence.
func NewFormulaCell(pos address.AbsAddress, toks *token.Sequence, identifier int, shared bool) *FormulaCell {
	c := &FormulaCell{pos: pos, toks: toks, ident: identifier, shared: shared}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Position returns the cell's own address, satisfying
// model.FormulaCellHandle.
func (c *FormulaCell) Position() address.AbsAddress { return c.pos }

// Tokens returns the cell's token sequence, satisfying
// model.FormulaCellHandle.
func (c *FormulaCell) Tokens() *token.Sequence { return c.toks }

// SetTokens replaces the cell's token sequence (e.g. when the user edits
// the formula). Callers must also update the dependency graph and clear
// any cached result separately.
func (c *FormulaCell) SetTokens(toks *token.Sequence, identifier int, shared bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toks = toks
	c.ident = identifier
	c.shared = shared
}

// Identifier returns the index into the per-sheet or shared token store.
func (c *FormulaCell) Identifier() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ident
}

// Shared reports whether the cell's tokens are shared with neighbours.
func (c *FormulaCell) Shared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shared
}

// CircularSafe reports the cell's pre-dispatch cycle-check outcome.
func (c *FormulaCell) CircularSafe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circularSafe
}

// SetCircularSafe records the cell's pre-dispatch cycle-check outcome.
func (c *FormulaCell) SetCircularSafe(safe bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circularSafe = safe
}

// Reset clears the cached result and the circular-safe flag, readying the
// cell for a fresh recalculation pass (spec §4.4 step 2).
func (c *FormulaCell) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = nil
	c.circularSafe = false
}

// HasResult reports whether a result is already cached, without blocking.
func (c *FormulaCell) HasResult() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result != nil
}

// PrePopulate publishes r immediately, without running a computation. Used
// by the scheduler's circular check to short-circuit cells found to be
// part of a cycle before any worker touches them.
func (c *FormulaCell) PrePopulate(r model.FormulaResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = &r
	c.cond.Broadcast()
}

// GetValue is the reader half of the result publication protocol: it
// blocks until a result is cached, then returns it. Safe to call from any
// goroutine, including the one computing a different cell.
func (c *FormulaCell) GetValue() model.FormulaResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.result == nil {
		c.cond.Wait()
	}
	return *c.result
}

// Compute is the writer half of the protocol: the worker responsible for
// this cell calls Compute with the function that actually evaluates its
// tokens. If another goroutine already finished the cell (or the circular
// check pre-populated an error), Compute returns that result without
// calling fn. Otherwise the mutex is released for the duration of fn so
// that a dependency which recursively reaches back into this cell's
// GetValue cannot deadlock against a lock held here (spec §4.5/§5).
func (c *FormulaCell) Compute(fn func() model.FormulaResult) model.FormulaResult {
	c.mu.Lock()
	if c.result != nil {
		r := *c.result
		c.mu.Unlock()
		return r
	}
	c.mu.Unlock()

	r := fn()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		c.result = &r
	} else {
		r = *c.result
	}
	c.cond.Broadcast()
	return r
}
