// Package token defines the C1 formula-token model: an immutable
// tagged-variant value type representing one atom of a parsed formula
// (literal, reference, operator or function invocation). Tokens never
// mutate after construction; a formula body is an ordered sequence of them
// in source (infix) order — the parser does not lower to RPN.
package token

import (
	"fmt"

	"ixion/address"
)

// Opcode tags which variant a Token holds.
type Opcode int

const (
	OpValue Opcode = iota
	OpString
	OpSingleRef
	OpRangeRef
	OpTableRef
	OpNamedExp
	OpFunction

	OpPlus
	OpMinus
	OpMultiply
	OpDivide
	OpOpen
	OpClose
	OpSep
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpErrNoRef
)

func (o Opcode) String() string {
	switch o {
	case OpValue:
		return "Value"
	case OpString:
		return "String"
	case OpSingleRef:
		return "SingleRef"
	case OpRangeRef:
		return "RangeRef"
	case OpTableRef:
		return "TableRef"
	case OpNamedExp:
		return "NamedExp"
	case OpFunction:
		return "Function"
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpOpen:
		return "("
	case OpClose:
		return ")"
	case OpSep:
		return ","
	case OpEqual:
		return "="
	case OpNotEqual:
		return "<>"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpErrNoRef:
		return "#REF!"
	default:
		return "?"
	}
}

// FnID identifies a builtin function by opcode, resolved at parse time via
// case-insensitive name lookup against the builtin table.
type FnID int

// TableSpec names a structured table reference, e.g.
// "Table1[[#Headers],[Category]]". Resolution of the table-reference
// syntax itself is out of scope for this core (it belongs to the external
// formula_name_resolver / table_handler collaborators); the token only
// carries the already-classified spec.
type TableSpec struct {
	TableName  string
	ColumnName string
	Headers    bool
	Data       bool
	Totals     bool
}

// Token is the immutable tagged-variant value described by Opcode. Only the
// field(s) matching Op are meaningful; callers are expected to switch on Op
// before reading payload fields, mirroring the teacher's interface +
// type-switch pattern (karl/interpreter.Value) applied to a fixed opcode
// set instead of open-ended interface dispatch — a formula token set is
// closed, so a single struct with a discriminant is the simpler idiom here.
type Token struct {
	Op Opcode

	// OpValue
	Value float64
	// OpString
	StringID uint32
	// OpSingleRef
	Ref address.Address
	// OpRangeRef
	Range address.Range
	// OpTableRef
	Table TableSpec
	// OpNamedExp
	Name string
	// OpFunction
	Fn FnID
	// FnName preserves the source spelling of a function/name token so
	// print_formula_tokens can round-trip case exactly, per spec §8.
	FnName string
}

// NewValue builds a numeric literal token.
func NewValue(v float64) Token { return Token{Op: OpValue, Value: v} }

// NewString builds a string literal token referencing an interned id.
func NewString(id uint32) Token { return Token{Op: OpString, StringID: id} }

// NewSingleRef builds a single-cell reference token.
func NewSingleRef(a address.Address) Token { return Token{Op: OpSingleRef, Ref: a} }

// NewRangeRef builds a range reference token.
func NewRangeRef(r address.Range) Token { return Token{Op: OpRangeRef, Range: r} }

// NewTableRef builds a structured table reference token.
func NewTableRef(t TableSpec) Token { return Token{Op: OpTableRef, Table: t} }

// NewNamedExp builds a named-expression reference token.
func NewNamedExp(name string) Token { return Token{Op: OpNamedExp, Name: name} }

// NewFunction builds a function-invocation opener token.
func NewFunction(id FnID, name string) Token { return Token{Op: OpFunction, Fn: id, FnName: name} }

// NewOp builds a bare symbolic-operator token (Plus, Minus, Open, …).
func NewOp(op Opcode) Token { return Token{Op: op} }

// IsOperator reports whether t is one of the symbolic operator opcodes
// (arithmetic, comparison, grouping, separator) rather than a literal or
// reference payload.
func (t Token) IsOperator() bool {
	switch t.Op {
	case OpPlus, OpMinus, OpMultiply, OpDivide, OpOpen, OpClose, OpSep,
		OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpErrNoRef:
		return true
	default:
		return false
	}
}

func (t Token) String() string {
	switch t.Op {
	case OpValue:
		return fmt.Sprintf("Value(%g)", t.Value)
	case OpString:
		return fmt.Sprintf("String(#%d)", t.StringID)
	case OpSingleRef:
		return fmt.Sprintf("SingleRef(%+v)", t.Ref)
	case OpRangeRef:
		return fmt.Sprintf("RangeRef(%+v)", t.Range)
	case OpTableRef:
		return fmt.Sprintf("TableRef(%s)", t.Table.TableName)
	case OpNamedExp:
		return fmt.Sprintf("NamedExp(%s)", t.Name)
	case OpFunction:
		return fmt.Sprintf("Function(%s)", t.FnName)
	default:
		return t.Op.String()
	}
}

// Sequence is an ordered, immutable list of tokens — a formula body. It is
// typically shared (via a *Sequence held by multiple formula cells) when a
// shared formula spans several rows; see spec §4.6.
type Sequence struct {
	Tokens []Token
}

// NewSequence wraps toks as a Sequence, taking ownership of the slice.
func NewSequence(toks []Token) *Sequence {
	return &Sequence{Tokens: toks}
}

// Len returns the number of tokens.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Tokens)
}

// Equal reports whether two sequences carry the same tokens in the same
// order — used to detect whether a new formula cell's tokens match its
// column neighbour's for shared-formula promotion (spec §4.6).
func (s *Sequence) Equal(o *Sequence) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Tokens) != len(o.Tokens) {
		return false
	}
	for i := range s.Tokens {
		if s.Tokens[i] != o.Tokens[i] {
			return false
		}
	}
	return true
}
