// Package scheduler implements the C5 recalculation driver: expanding a set
// of modified addresses into the full dirty set (spec §4.3/§4.4), resetting
// those cells, pre-checking for formula cycles so a cycle resolves to an
// error instead of deadlocking a worker, and dispatching the actual
// computation across a bounded worker pool.
//
// The fan-out/bounded-concurrency shape follows the teacher's kernel
// package, which dispatches shell/control/heartbeat handling onto
// independent goroutines reading from a fixed set of sockets
// (kernel/kernel.go Start); here the analogous bound is a worker count
// instead of a fixed socket list, enforced with a semaphore so the caller
// can tune parallelism without changing the dispatch code.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"ixion/address"
	"ixion/depgraph"
	"ixion/model"
	"ixion/sheet"
	"ixion/token"
)

// GetAllDirtyCells expands modified (the addresses the caller just changed)
// into the full set of formula cells that must be recomputed: modified
// itself, every cell/range listener transitively reachable from it, and
// every volatile cell (spec §4.3 step 1 / §4.4 step 1). The result is
// sorted for deterministic iteration.
func GetAllDirtyCells(tracker *depgraph.Tracker, modified []address.AbsAddress) []address.AbsAddress {
	dirty := make(map[address.AbsAddress]struct{})
	var queue []address.AbsAddress

	add := func(a address.AbsAddress) {
		if _, ok := dirty[a]; !ok {
			dirty[a] = struct{}{}
			queue = append(queue, a)
		}
	}

	for _, m := range modified {
		add(m)
	}
	for _, v := range tracker.VolatileCells() {
		add(v)
	}

	for i := 0; i < len(queue); i++ {
		cur := queue[i]
		for _, l := range tracker.GetAllCellListeners(cur) {
			add(l)
		}
		for _, l := range tracker.GetAllRangeListeners(cur) {
			add(l)
		}
	}

	out := make([]address.AbsAddress, 0, len(dirty))
	for a := range dirty {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ResetAll clears every dirty cell's cached result and circular-safe flag,
// readying it for a fresh pass (spec §4.4 step 2).
func ResetAll(dirty []address.AbsAddress, lookup CellLookup) {
	for _, a := range dirty {
		if cell := lookup(a); cell != nil {
			cell.Reset()
		}
	}
}

// CellLookup resolves an address to its FormulaCell, or nil if the address
// doesn't currently hold a formula.
type CellLookup func(address.AbsAddress) *sheet.FormulaCell

// CheckCircular walks each dirty formula cell's direct single-cell
// reference tokens depth-first, pre-populating any cell found to be part of
// a reference cycle, or whose references lead into a cycle still on the
// walk's stack, with Error(RefResultNotAvailable) and marking it
// circular-unsafe, so the dispatch pass below never blocks a worker on a
// cell that can never publish a real result. Only direct cell-to-cell
// reference cycles are detected; a cycle closed purely through a range
// reference is not (documented limitation, spec §9(c)).
func CheckCircular(dirty []address.AbsAddress, lookup CellLookup) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[address.AbsAddress]int)

	var visit func(a address.AbsAddress) bool
	visit = func(a address.AbsAddress) bool {
		switch state[a] {
		case done:
			return false
		case visiting:
			return true
		}
		state[a] = visiting
		cell := lookup(a)
		if cell == nil {
			state[a] = done
			return false
		}
		cyclic := false
		if toks := cell.Tokens(); toks != nil {
			for _, t := range toks.Tokens {
				if t.Op != token.OpSingleRef {
					continue
				}
				ref := t.Ref.ToAbs(a)
				if visit(ref) {
					cyclic = true
				}
			}
		}
		state[a] = done
		if cyclic {
			cell.SetCircularSafe(false)
			cell.PrePopulate(model.NewErrorResult(model.ErrRefResultNotAvailable))
		} else {
			cell.SetCircularSafe(true)
		}
		return cyclic
	}

	for _, a := range dirty {
		visit(a)
	}
}

// Pool bounds how many formula cells may be computed concurrently, using
// golang.org/x/sync/semaphore the way the teacher bounds its own fixed set
// of live sockets — a resource budget acquired before work starts and
// released when it finishes.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool builds a Pool that runs at most width cells at once. width < 1 is
// treated as 1.
func NewPool(width int) *Pool {
	if width < 1 {
		width = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(width))}
}

// Dispatch runs compute(a, cell) for every dirty address whose cell still
// lacks a cached result, bounded by the pool's width, and blocks until
// every dispatched computation has finished. Cells the circular check
// already resolved are skipped entirely: they already carry a result, so
// dispatching them would just waste a worker slot on an immediate return.
func (p *Pool) Dispatch(ctx context.Context, dirty []address.AbsAddress, lookup CellLookup, compute func(address.AbsAddress, *sheet.FormulaCell)) error {
	var wg sync.WaitGroup
	for _, a := range dirty {
		cell := lookup(a)
		if cell == nil || cell.HasResult() {
			continue
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func(a address.AbsAddress, cell *sheet.FormulaCell) {
			defer wg.Done()
			defer p.sem.Release(1)
			compute(a, cell)
		}(a, cell)
	}
	wg.Wait()
	return nil
}
