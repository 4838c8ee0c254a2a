package sheet

import (
	"sync"

	"ixion/address"
	"ixion/token"
)

// SharedTokenStore is the sparse vector of spec §4.6: consecutive formula
// cells in the same column with identical token sequences share one
// *token.Sequence entry here instead of each holding a private copy.
// Deletions null out a slot; insertions reuse the first null slot before
// appending.
type SharedTokenStore struct {
	mu    sync.Mutex
	slots []*token.Sequence
	// ranges tracks the AbsRange each shared entry currently spans, so
	// GetSharedFormulaRange (spec §6) can answer without the caller
	// tracking it separately.
	ranges []address.AbsRange
}

// NewSharedTokenStore returns an empty store.
func NewSharedTokenStore() *SharedTokenStore {
	return &SharedTokenStore{}
}

// Insert stores toks (spanning rng) in the first free slot, reusing a
// previously-removed slot before appending, and returns its identifier.
func (s *SharedTokenStore) Insert(toks *token.Sequence, rng address.AbsRange) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, slot := range s.slots {
		if slot == nil {
			s.slots[i] = toks
			s.ranges[i] = rng
			return i
		}
	}
	s.slots = append(s.slots, toks)
	s.ranges = append(s.ranges, rng)
	return len(s.slots) - 1
}

// Get returns the token sequence at identifier, or nil if the slot is
// empty or out of range.
func (s *SharedTokenStore) Get(identifier int) *token.Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identifier < 0 || identifier >= len(s.slots) {
		return nil
	}
	return s.slots[identifier]
}

// Range returns the AbsRange a shared entry currently spans.
func (s *SharedTokenStore) Range(identifier int) address.AbsRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identifier < 0 || identifier >= len(s.ranges) {
		return address.InvalidRange()
	}
	return s.ranges[identifier]
}

// ExtendRange grows the stored range for identifier to include row r in its
// column (spec §4.6: "the shared range is extended to include r").
func (s *SharedTokenStore) ExtendRange(identifier int, r int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identifier < 0 || identifier >= len(s.ranges) {
		return
	}
	rng := &s.ranges[identifier]
	if r < rng.First.Row {
		rng.First.Row = r
	}
	if r > rng.Last.Row {
		rng.Last.Row = r
	}
}

// Remove frees identifier's slot so a future Insert may reuse it.
//
// The original C++ implementation's remove_formula_tokens contains the
// guard "if (m_tokens.size() >= identifier) return;", which returns early
// (doing nothing) whenever the store is at least as large as identifier —
// i.e. precisely when identifier names a valid, in-bounds slot — so the
// slot is never actually freed. Per spec §9 open question (a), this is
// implemented with the corrected bounds check instead: free the slot when
// identifier is in range, and do nothing otherwise.
func (s *SharedTokenStore) Remove(identifier int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identifier < 0 || identifier >= len(s.slots) {
		return
	}
	s.slots[identifier] = nil
}

// FindSharedNeighbour looks up the formula cell immediately above (sheet,
// row-1, col) and reports whether it exists, is a formula cell, and its
// tokens equal candidate — the single condition spec §4.6/§9(b) requires
// before promoting a new cell into an existing (or freshly-promoted) shared
// entry. Extended (horizontal/diagonal) neighbour detection is explicitly
// not attempted, per spec §9(b).
func FindSharedNeighbour(get func(address.AbsAddress) *FormulaCell, pos address.AbsAddress, candidate *token.Sequence) *FormulaCell {
	if pos.Row <= 0 {
		return nil
	}
	above := address.AbsAddress{Sheet: pos.Sheet, Row: pos.Row - 1, Column: pos.Column}
	neighbour := get(above)
	if neighbour == nil {
		return nil
	}
	if !neighbour.Tokens().Equal(candidate) {
		return nil
	}
	return neighbour
}
