// Package model defines the capability surface the formula engine depends
// on (ModelAccess and its collaborators), plus the value types that flow
// across that boundary: formula results, errors, matrices and cell kinds.
// None of the types here know how to parse or evaluate a formula; they are
// the vocabulary the lexer, parser, scheduler and interpreter packages
// share.
package model

import "fmt"

// Config carries the few engine-wide tunables the core needs. It is always
// passed explicitly rather than read from a package-level global, per the
// "no global mutable state" design note.
type Config struct {
	// ArgumentSeparator separates function arguments, default ','.
	ArgumentSeparator byte
	// DecimalSeparator separates the integer and fractional part of a
	// numeral, default '.'.
	DecimalSeparator byte
	// RowUpperBound and ColumnUpperBound mirror address.RowUpperBound/
	// ColumnUpperBound; kept on Config too so callers that only have a
	// Config in hand can validate bounds without importing address.
	RowUpperBound    int
	ColumnUpperBound int
}

// DefaultConfig returns the conventional ',' argument / '.' decimal
// separator configuration.
func DefaultConfig() Config {
	return Config{
		ArgumentSeparator: ',',
		DecimalSeparator:  '.',
		RowUpperBound:     1<<20 - 2,
		ColumnUpperBound:  1<<14 - 2,
	}
}

// CellType classifies what is currently stored at a cell position.
type CellType int

const (
	CellEmpty CellType = iota
	CellNumeric
	CellString
	CellFormula
	CellUnknown
)

func (c CellType) String() string {
	switch c {
	case CellEmpty:
		return "empty"
	case CellNumeric:
		return "numeric"
	case CellString:
		return "string"
	case CellFormula:
		return "formula"
	default:
		return "unknown"
	}
}

// FormulaError enumerates the runtime error variants a formula result can
// carry, per spec §7.
type FormulaError int

const (
	NoError FormulaError = iota
	ErrRefResultNotAvailable
	ErrDivisionByZero
	ErrInvalidExpression
)

func (e FormulaError) Error() string {
	switch e {
	case NoError:
		return "#N/A-INTERNAL-NOERROR"
	case ErrRefResultNotAvailable:
		return "#REF!"
	case ErrDivisionByZero:
		return "#DIV/0!"
	case ErrInvalidExpression:
		return "#VALUE!"
	default:
		return "#ERROR!"
	}
}

// ResultKind tags the payload carried by a FormulaResult.
type ResultKind int

const (
	ResultValue ResultKind = iota
	ResultString
	ResultError
)

// FormulaResult is the memoised outcome of evaluating a formula cell: a
// tagged union of a numeric value, an interned string id, or an error.
type FormulaResult struct {
	kind   ResultKind
	value  float64
	strID  uint32
	errVal FormulaError
}

// NewValueResult builds a numeric result.
func NewValueResult(v float64) FormulaResult { return FormulaResult{kind: ResultValue, value: v} }

// NewStringResult builds a string result referencing an interned string id.
func NewStringResult(id uint32) FormulaResult { return FormulaResult{kind: ResultString, strID: id} }

// NewErrorResult builds an error result.
func NewErrorResult(e FormulaError) FormulaResult {
	return FormulaResult{kind: ResultError, errVal: e}
}

// Kind reports which payload FormulaResult carries.
func (r FormulaResult) Kind() ResultKind { return r.kind }

// Value returns the numeric payload. The caller must ensure Kind() ==
// ResultValue; behaviour is undefined (returns zero) otherwise, matching
// the original formula_result::get_value() contract.
func (r FormulaResult) Value() float64 {
	if r.kind != ResultValue {
		return 0
	}
	return r.value
}

// StringID returns the string-id payload; see Value's contract note.
func (r FormulaResult) StringID() uint32 {
	if r.kind != ResultString {
		return 0
	}
	return r.strID
}

// Err returns the error payload; see Value's contract note.
func (r FormulaResult) Err() FormulaError {
	if r.kind != ResultError {
		return NoError
	}
	return r.errVal
}

// IsError reports whether r holds an error payload.
func (r FormulaResult) IsError() bool { return r.kind == ResultError }

// Str renders a human-readable representation of r. Numeric/error results
// render directly; string results need a string-pool lookup the caller
// supplies (a nil lookup renders the bare id).
func (r FormulaResult) Str(lookup func(uint32) string) string {
	switch r.kind {
	case ResultValue:
		return fmt.Sprintf("%g", r.value)
	case ResultString:
		if lookup != nil {
			return lookup(r.strID)
		}
		return fmt.Sprintf("$str:%d", r.strID)
	case ResultError:
		return r.errVal.Error()
	default:
		return ""
	}
}

// ParseResultLiteral parses the textual representation of a previously
// rendered result back into a FormulaResult, mirroring the round-trip
// original_source's formula_result::parse provides. addString interns a
// plain-text (non-numeric, non-error) literal into the string pool.
func ParseResultLiteral(s string, addString func(string) uint32) FormulaResult {
	if fe, ok := parseErrorLiteral(s); ok {
		return NewErrorResult(fe)
	}
	var v float64
	if n, err := fmt.Sscanf(s, "%g", &v); err == nil && n == 1 {
		return NewValueResult(v)
	}
	if addString != nil {
		return NewStringResult(addString(s))
	}
	return NewStringResult(0)
}

func parseErrorLiteral(s string) (FormulaError, bool) {
	switch s {
	case "#REF!":
		return ErrRefResultNotAvailable, true
	case "#DIV/0!":
		return ErrDivisionByZero, true
	case "#VALUE!":
		return ErrInvalidExpression, true
	}
	return NoError, false
}

// Matrix is a dense rectangular block of numeric values, the shape a range
// reference evaluates to.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// NewMatrix allocates a zero-filled Rows x Cols matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the value at (row, col).
func (m Matrix) At(row, col int) float64 {
	return m.Data[row*m.Cols+col]
}

// Set stores v at (row, col).
func (m Matrix) Set(row, col int, v float64) {
	m.Data[row*m.Cols+col] = v
}

// Sum returns the sum of every element.
func (m Matrix) Sum() float64 {
	var total float64
	for _, v := range m.Data {
		total += v
	}
	return total
}
