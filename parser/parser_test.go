package parser_test

import (
	"testing"

	"ixion/address"
	"ixion/model"
	"ixion/parser"
	"ixion/resolver"
	"ixion/token"
)

type fakeAccess struct {
	strings []string
}

func (f *fakeAccess) GetConfig() model.Config { return model.DefaultConfig() }
func (f *fakeAccess) IsEmpty(address.AbsAddress) bool { return true }
func (f *fakeAccess) GetCellType(address.AbsAddress) model.CellType { return model.CellEmpty }
func (f *fakeAccess) GetNumericValue(address.AbsAddress) float64 { return 0 }
func (f *fakeAccess) GetStringIdentifierForAddress(address.AbsAddress) uint32 { return 0 }
func (f *fakeAccess) GetStringIdentifierForText(text []byte) uint32 { return f.AddString(text) }
func (f *fakeAccess) GetString(id uint32) (string, bool) {
	if int(id) >= len(f.strings) {
		return "", false
	}
	return f.strings[id], true
}
func (f *fakeAccess) GetFormulaCell(address.AbsAddress) model.FormulaCellHandle { return nil }
func (f *fakeAccess) GetRangeValue(address.AbsRange) (model.Matrix, error) { return model.Matrix{}, nil }
func (f *fakeAccess) CountRange(address.AbsRange, []model.CellType) float64 { return 0 }
func (f *fakeAccess) GetNamedExpression(string) (model.FormulaCellHandle, bool) { return nil, false }
func (f *fakeAccess) GetNamedExpressionName(model.FormulaCellHandle) (string, bool) { return "", false }
func (f *fakeAccess) GetFormulaTokens(address.Sheet, int) *token.Sequence { return nil }
func (f *fakeAccess) GetSharedFormulaTokens(address.Sheet, int) *token.Sequence { return nil }
func (f *fakeAccess) GetSharedFormulaRange(address.Sheet, int) address.AbsRange { return address.InvalidRange() }
func (f *fakeAccess) AppendString(text []byte) uint32 { return f.AddString(text) }
func (f *fakeAccess) AddString(text []byte) uint32 {
	f.strings = append(f.strings, string(text))
	return uint32(len(f.strings) - 1)
}
func (f *fakeAccess) GetSheetIndex(name string) address.Sheet {
	if name == "Sheet1" {
		return 0
	}
	return address.InvalidSheet
}
func (f *fakeAccess) GetSheetName(sh address.Sheet) string {
	if sh == 0 {
		return "Sheet1"
	}
	return ""
}
func (f *fakeAccess) GetSessionHandler() model.SessionHandler { return nil }
func (f *fakeAccess) GetTableHandler() model.TableHandler     { return nil }

func roundTrip(t *testing.T, formula string) {
	t.Helper()
	access := &fakeAccess{}
	res := resolver.NewA1Resolver(access.GetSheetIndex, access.GetSheetName, nil)
	origin := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}

	toks, err := parser.ParseFormulaString(access, origin, res, []byte(formula))
	if err != nil {
		t.Fatalf("parse %q: %v", formula, err)
	}
	got := parser.PrintFormulaTokens(access, origin, res, toks)
	if got != formula {
		t.Fatalf("round-trip mismatch: parse(%q) then print = %q", formula, got)
	}
}

func TestRoundTripArithmetic(t *testing.T) {
	roundTrip(t, "1/3*1.4")
	roundTrip(t, "2.3*(1+2)/(34*(3-2))")
}

func TestRoundTripFunctionCall(t *testing.T) {
	roundTrip(t, "SUM(1,2,3)")
}

func TestRoundTripCellReference(t *testing.T) {
	roundTrip(t, "A1+B2")
}
