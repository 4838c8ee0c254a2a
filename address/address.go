// Package address implements the cell- and range-addressing data model of
// the formula engine: absolute and origin-relative single-cell addresses,
// and their range counterparts.
package address

import "fmt"

// Sheet identifies a sheet by its index into the owning model. InvalidSheet
// marks "no such sheet" (e.g. an unresolved sheet name).
type Sheet = int

// InvalidSheet is returned by a name resolver when a sheet name doesn't map
// to any sheet in the model.
const InvalidSheet Sheet = -1

const (
	// RowUnset marks a whole-column reference: the address has no row
	// component, e.g. "A:A".
	RowUnset int = RowUpperBound + 1

	// RowUpperBound is the highest row index usable to address an actual
	// row; indices above it are reserved for sentinels such as RowUnset.
	RowUpperBound int = 1<<20 - 2

	// ColumnUnset marks a whole-row reference: the address has no column
	// component, e.g. "3:3".
	ColumnUnset int = ColumnUpperBound + 1

	// ColumnUpperBound is the highest column index usable to address an
	// actual column.
	ColumnUpperBound int = 1<<14 - 2
)

// AbsAddress is an absolute position: a sheet, row and column triple with no
// relative component. Two AbsAddress values are equal iff all three fields
// are equal (structural equality, per spec).
type AbsAddress struct {
	Sheet  Sheet
	Row    int
	Column int
}

// invalidAbsAddress is the sentinel returned by InvalidAddress. Its sheet is
// InvalidSheet, which is never a real index, so Valid reports false for it
// regardless of row/column.
var invalidAbsAddress = AbsAddress{Sheet: InvalidSheet, Row: -1, Column: -1}

// InvalidAddress returns the "no such cell" sentinel, distinct from the
// all-zero AbsAddress{} (which is a perfectly valid cell at (0,0,0)).
func InvalidAddress() AbsAddress { return invalidAbsAddress }

// Valid reports whether a is a real, addressable cell position.
func (a AbsAddress) Valid() bool {
	if a.Sheet == InvalidSheet {
		return false
	}
	return a.Row >= 0 && a.Row <= RowUpperBound &&
		a.Column >= 0 && a.Column <= ColumnUpperBound
}

// Less provides a total order over AbsAddress, used to keep recompute sets
// and dependency dumps in a stable, reproducible iteration order.
func (a AbsAddress) Less(o AbsAddress) bool {
	if a.Sheet != o.Sheet {
		return a.Sheet < o.Sheet
	}
	if a.Row != o.Row {
		return a.Row < o.Row
	}
	return a.Column < o.Column
}

// Name renders a debug-friendly "sheet!col row" style label. It is not a
// syntax the parser understands; real name rendering is a
// FormulaNameResolver concern (A1/R1C1/ODFF), out of this core's scope.
func (a AbsAddress) Name() string {
	return fmt.Sprintf("sheet%d!R%dC%d", a.Sheet, a.Row, a.Column)
}

// Address may hold an absolute or origin-relative position along each axis
// independently (sheet, row, column each carry their own abs/relative bit,
// matching spreadsheet "$A$1" vs "A1" semantics).
type Address struct {
	Sheet  Sheet
	Row    int
	Column int

	AbsSheet  bool
	AbsRow    bool
	AbsColumn bool
}

// NewAbsolute builds a fully-absolute Address equivalent to an AbsAddress.
func NewAbsolute(a AbsAddress) Address {
	return Address{Sheet: a.Sheet, Row: a.Row, Column: a.Column, AbsSheet: true, AbsRow: true, AbsColumn: true}
}

// Valid reports whether the address could describe a real position. Only an
// absolute sheet component equal to InvalidSheet makes it invalid; the row
// and column components, relative or absolute, are not checked here.
func (a Address) Valid() bool {
	if a.AbsSheet && a.Sheet == InvalidSheet {
		return false
	}
	return true
}

// ToAbs collapses a into an AbsAddress relative to origin: any non-absolute
// component is treated as an offset from the matching origin component.
func (a Address) ToAbs(origin AbsAddress) AbsAddress {
	out := AbsAddress{}
	if a.AbsSheet {
		out.Sheet = a.Sheet
	} else {
		out.Sheet = origin.Sheet + a.Sheet
	}
	if a.AbsRow {
		out.Row = a.Row
	} else {
		out.Row = origin.Row + a.Row
	}
	if a.AbsColumn {
		out.Column = a.Column
	} else {
		out.Column = origin.Column + a.Column
	}
	return out
}

// AbsRange is a rectangular range of absolute positions. A whole-column
// range has First.Row == RowUnset (and, symmetrically, Last.Row); a
// whole-row range has First.Column == ColumnUnset.
type AbsRange struct {
	First AbsAddress
	Last  AbsAddress
}

var invalidAbsRange = AbsRange{First: invalidAbsAddress, Last: invalidAbsAddress}

// InvalidRange returns the "no such range" sentinel.
func InvalidRange() AbsRange { return invalidAbsRange }

// Valid reports whether both endpoints are valid positions.
func (r AbsRange) Valid() bool {
	return r.First.Valid() && r.Last.Valid()
}

// WholeColumn reports whether r spans every row of its column(s).
func (r AbsRange) WholeColumn() bool {
	return r.First.Row == RowUnset && r.Last.Row == RowUnset
}

// WholeRow reports whether r spans every column of its row(s).
func (r AbsRange) WholeRow() bool {
	return r.First.Column == ColumnUnset && r.Last.Column == ColumnUnset
}

// SetWholeColumn marks r as spanning every row, keeping its column bounds.
func (r *AbsRange) SetWholeColumn() {
	r.First.Row = RowUnset
	r.Last.Row = RowUnset
}

// SetWholeRow marks r as spanning every column, keeping its row bounds.
func (r *AbsRange) SetWholeRow() {
	r.First.Column = ColumnUnset
	r.Last.Column = ColumnUnset
}

// Contains reports whether addr falls within the rectangle described by r,
// honouring whole-row/whole-column sentinels and requiring the same sheet.
func (r AbsRange) Contains(addr AbsAddress) bool {
	if addr.Sheet != r.First.Sheet {
		return false
	}
	if !r.WholeColumn() {
		lo, hi := r.First.Row, r.Last.Row
		if lo > hi {
			lo, hi = hi, lo
		}
		if addr.Row < lo || addr.Row > hi {
			return false
		}
	}
	if !r.WholeRow() {
		lo, hi := r.First.Column, r.Last.Column
		if lo > hi {
			lo, hi = hi, lo
		}
		if addr.Column < lo || addr.Column > hi {
			return false
		}
	}
	return true
}

// Range is the origin-relative counterpart of AbsRange.
type Range struct {
	First Address
	Last  Address
}

// NewAbsoluteRange builds a fully-absolute Range equivalent to an AbsRange.
func NewAbsoluteRange(r AbsRange) Range {
	return Range{First: NewAbsolute(r.First), Last: NewAbsolute(r.Last)}
}

// WholeColumn reports whether r spans every row, mirroring AbsRange.
func (r Range) WholeColumn() bool {
	return r.First.Row == RowUnset && r.Last.Row == RowUnset
}

// WholeRow reports whether r spans every column, mirroring AbsRange.
func (r Range) WholeRow() bool {
	return r.First.Column == ColumnUnset && r.Last.Column == ColumnUnset
}

// ToAbs collapses both endpoints of r relative to origin.
func (r Range) ToAbs(origin AbsAddress) AbsRange {
	return AbsRange{First: r.First.ToAbs(origin), Last: r.Last.ToAbs(origin)}
}
