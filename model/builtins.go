package model

import (
	"strings"

	"ixion/token"
)

// Builtin function opcodes. This is the "fixed builtin table" spec §4.2/
// §4.5 refers to: function names are matched against it case-insensitively
// at parse time, and the interpreter dispatches on the resulting FnID.
const (
	FnSum token.FnID = iota + 1
	FnMin
	FnMax
	FnAverage
	FnWait
	FnNow
)

var builtinNames = map[string]token.FnID{
	"SUM":     FnSum,
	"MIN":     FnMin,
	"MAX":     FnMax,
	"AVERAGE": FnAverage,
	"WAIT":    FnWait,
	"NOW":     FnNow,
}

var builtinDisplay = map[token.FnID]string{
	FnSum:     "SUM",
	FnMin:     "MIN",
	FnMax:     "MAX",
	FnAverage: "AVERAGE",
	FnWait:    "WAIT",
	FnNow:     "NOW",
}

// LookupBuiltin classifies name as a builtin function, case-insensitively.
func LookupBuiltin(name string) (token.FnID, bool) {
	id, ok := builtinNames[strings.ToUpper(name)]
	return id, ok
}

// BuiltinDisplayName returns the canonical (upper-case) spelling of id, used
// by print_formula_tokens when no source spelling was recorded.
func BuiltinDisplayName(id token.FnID) string {
	return builtinDisplay[id]
}
