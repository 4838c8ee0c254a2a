package model

import (
	"ixion/address"
	"ixion/token"
)

// FormulaCellHandle is the capability a cached, schedulable formula cell
// exposes to the rest of the core. The concrete implementation
// (sheet.FormulaCell) is not imported here to avoid a cycle — model sits
// below sheet, lexer, parser, scheduler and interpreter in the dependency
// order, and only needs the narrow slice of FormulaCell's surface that
// ModelAccess's contract mentions.
type FormulaCellHandle interface {
	// GetValue blocks until the cell's result is cached (by whichever
	// worker is responsible for computing it) and returns it.
	GetValue() FormulaResult
	// Tokens returns the cell's token sequence.
	Tokens() *token.Sequence
	// Position returns the cell's own address, needed to resolve
	// relative references inside its tokens.
	Position() address.AbsAddress
}

// NameKind classifies a parsed NAME token per spec §4.2.
type NameKind int

const (
	NameInvalid NameKind = iota
	NameCellReference
	NameRangeReference
	NameTableReference
	NameNamedExpression
	NameFunction
)

// ResolvedName is what a NameResolver returns for one NAME token: which
// kind of thing the name denotes, plus the payload for that kind.
type ResolvedName struct {
	Kind NameKind

	Cell  address.Address
	Range address.Range
	Table token.TableSpec
	Named string

	FuncID   token.FnID
	FuncName string
}

// NameResolver classifies a source-text name against one of the pluggable
// external syntaxes (A1, R1C1, ODFF, …). Those syntaxes are themselves out
// of this core's scope (spec §1) — only this interface, and a minimal
// reference A1 implementation used by the core's own tests, live here.
type NameResolver interface {
	// Resolve classifies name as seen at origin. Function names are
	// matched case-insensitively against the builtin table; everything
	// else is resolved relative to origin the way the concrete resolver
	// syntax defines "relative" (A1 offsets, R1C1 offsets, …).
	Resolve(name string, origin address.AbsAddress) ResolvedName

	// Print renders a resolved name back to source text exactly as the
	// concrete syntax would print it, the inverse of Resolve — needed by
	// print_formula_tokens to round-trip a token sequence.
	Print(rn ResolvedName, origin address.AbsAddress) string
}

// SessionHandler receives events from a formula interpretation run, for
// callers that want to observe recalculation without participating in it
// (debuggers, live visualizers). Providing one is optional — ModelAccess
// returns nil when the model has none. See sessionhook for two concrete
// implementations.
type SessionHandler interface {
	// CellEntered fires when a worker starts evaluating addr.
	CellEntered(addr address.AbsAddress)
	// CellBlocked fires just before a worker evaluating addr reads
	// waitingOn's cached result, a read that blocks until that result is
	// published; it fires whether or not the result is already cached.
	CellBlocked(addr, waitingOn address.AbsAddress)
	// CellComputed fires when addr's result has been published.
	CellComputed(addr address.AbsAddress, result FormulaResult)
}

// TableHandler provides access to structured table ranges stored in the
// document model, used to resolve table references by name/column. Table
// syntax itself is out of scope (spec §1); this is the narrow capability
// the interpreter needs once a TableRef token has already been classified.
type TableHandler interface {
	GetTableRange(spec token.TableSpec) (address.AbsRange, bool)
}

// ModelAccess is the capability surface the formula engine depends on,
// named per spec §6. The document-model owner (sheet container, string
// pool, input parser — all explicitly out of this core's scope) provides
// the concrete implementation.
type ModelAccess interface {
	GetConfig() Config

	IsEmpty(addr address.AbsAddress) bool
	GetCellType(addr address.AbsAddress) CellType

	// GetNumericValue blocks on a not-yet-computed formula cell; call
	// only during formula (re-)calculation, per spec §6.
	GetNumericValue(addr address.AbsAddress) float64

	GetStringIdentifierForAddress(addr address.AbsAddress) uint32
	GetStringIdentifierForText(text []byte) uint32
	GetString(id uint32) (string, bool)

	GetFormulaCell(addr address.AbsAddress) FormulaCellHandle

	GetRangeValue(r address.AbsRange) (Matrix, error)
	CountRange(r address.AbsRange, kinds []CellType) float64

	GetNamedExpression(name string) (FormulaCellHandle, bool)
	GetNamedExpressionName(cell FormulaCellHandle) (string, bool)

	GetFormulaTokens(sheet address.Sheet, identifier int) *token.Sequence
	GetSharedFormulaTokens(sheet address.Sheet, identifier int) *token.Sequence
	GetSharedFormulaRange(sheet address.Sheet, identifier int) address.AbsRange

	AppendString(text []byte) uint32
	AddString(text []byte) uint32

	GetSheetIndex(name string) address.Sheet
	GetSheetName(sheet address.Sheet) string

	// GetSessionHandler and GetTableHandler may both return nil: neither
	// is required of a model implementation.
	GetSessionHandler() SessionHandler
	GetTableHandler() TableHandler
}
