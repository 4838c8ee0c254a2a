// Package depgraph implements the C4 dependency tracker: the cell- and
// range-listener adjacency maps and the volatile-cell set, plus the
// transitive-closure queries the scheduler needs to expand a dirty-address
// list into a recompute set. Operation names follow
// original_source/include/ixion/cell_listener_tracker.hpp; the edge-list
// bookkeeping generalizes the teacher's karl/spreadsheet/engine.go
// updateDependencies/addDependent/removeDependent, which models the same
// idea for a single sheet with no range listeners and no volatile set.
//
// The graph is mutated only by the single thread that owns the model
// between recalculation passes (spec §5); it is read-only once a
// recalculation pass is dispatched.
package depgraph

import (
	"fmt"
	"sort"

	"ixion/address"
)

type addrSet map[address.AbsAddress]struct{}

// Tracker holds the two adjacency maps and the volatile set described by
// spec §4.3.
type Tracker struct {
	cellListeners  map[address.AbsAddress]addrSet
	rangeListeners map[address.AbsRange]addrSet
	volatile       addrSet
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		cellListeners:  make(map[address.AbsAddress]addrSet),
		rangeListeners: make(map[address.AbsRange]addrSet),
		volatile:       make(addrSet),
	}
}

// AddCellListener records that dest's change must dirty src (src listens to
// dest). Adding a duplicate edge is a no-op, per spec §4.3.
func (t *Tracker) AddCellListener(src, dest address.AbsAddress) {
	set, ok := t.cellListeners[dest]
	if !ok {
		set = make(addrSet)
		t.cellListeners[dest] = set
	}
	set[src] = struct{}{}
}

// RemoveCellListener undoes AddCellListener; removing a non-existent edge
// is a no-op.
func (t *Tracker) RemoveCellListener(src, dest address.AbsAddress) {
	set, ok := t.cellListeners[dest]
	if !ok {
		return
	}
	delete(set, src)
	if len(set) == 0 {
		delete(t.cellListeners, dest)
	}
}

// AddRangeListener records that a change anywhere inside rng must dirty
// src. Duplicates are silently ignored.
func (t *Tracker) AddRangeListener(src address.AbsAddress, rng address.AbsRange) {
	set, ok := t.rangeListeners[rng]
	if !ok {
		set = make(addrSet)
		t.rangeListeners[rng] = set
	}
	set[src] = struct{}{}
}

// RemoveRangeListener undoes AddRangeListener; a no-op if the relationship
// doesn't exist.
func (t *Tracker) RemoveRangeListener(src address.AbsAddress, rng address.AbsRange) {
	set, ok := t.rangeListeners[rng]
	if !ok {
		return
	}
	delete(set, src)
	if len(set) == 0 {
		delete(t.rangeListeners, rng)
	}
}

// AddVolatile marks pos as always-dirty (e.g. it contains NOW()).
func (t *Tracker) AddVolatile(pos address.AbsAddress) {
	t.volatile[pos] = struct{}{}
}

// RemoveVolatile clears pos's volatile flag.
func (t *Tracker) RemoveVolatile(pos address.AbsAddress) {
	delete(t.volatile, pos)
}

// VolatileCells returns every cell currently marked volatile, sorted for
// deterministic iteration.
func (t *Tracker) VolatileCells() []address.AbsAddress {
	return sortedKeys(t.volatile)
}

// GetAllCellListeners returns the transitive closure of formula cells that
// must be recomputed when target changes, following cell_listeners edges
// breadth-first. A visited set prevents infinite recursion on a cycle;
// cycle *detection* is not this package's job (the scheduler's circular
// check handles that downstream).
func (t *Tracker) GetAllCellListeners(target address.AbsAddress) []address.AbsAddress {
	visited := make(addrSet)
	queue := []address.AbsAddress{target}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for listener := range t.cellListeners[cur] {
			if _, seen := visited[listener]; seen {
				continue
			}
			visited[listener] = struct{}{}
			queue = append(queue, listener)
		}
	}
	return sortedKeys(visited)
}

// GetAllRangeListeners returns every formula cell listening to a range
// that contains target, checking rectangular containment (including
// whole-row/whole-column ranges) for every tracked range.
func (t *Tracker) GetAllRangeListeners(target address.AbsAddress) []address.AbsAddress {
	result := make(addrSet)
	for rng, listeners := range t.rangeListeners {
		if !rng.Contains(target) {
			continue
		}
		for l := range listeners {
			result[l] = struct{}{}
		}
	}
	return sortedKeys(result)
}

// DebugDump renders a human-readable listing of every cell/range listening
// relationship touching target, using name to render addresses — adapted
// from original_source's cell_listener_tracker::print_cell_listeners
// (spec "supplemented features"). No other package in this module calls it.
func (t *Tracker) DebugDump(target address.AbsAddress, name func(address.AbsAddress) string) string {
	out := fmt.Sprintf("listeners of %s:\n", name(target))
	for _, l := range t.GetAllCellListeners(target) {
		out += fmt.Sprintf("  cell <- %s\n", name(l))
	}
	for _, l := range t.GetAllRangeListeners(target) {
		out += fmt.Sprintf("  range <- %s\n", name(l))
	}
	return out
}

func sortedKeys(s addrSet) []address.AbsAddress {
	out := make([]address.AbsAddress, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
