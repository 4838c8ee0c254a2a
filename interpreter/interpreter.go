// Package interpreter implements the C6 formula evaluator: a
// recursive-descent walk over a flat token sequence (the same grammar the
// parser emitted it with, spec §4.5) using a cursor, dispatching the fixed
// builtin table, and blocking on dependency cells' cached results through
// model.FormulaCellHandle.GetValue.
//
// The recursive-descent shape mirrors the teacher's own expression
// evaluator (karl/interpreter.Evaluator.Eval, which walks an *ast.Program
// and carries each intermediate result back up the Go call stack); here the
// same recursion walks a flat token array with an explicit cursor instead
// of a tree, since the parser already linearized the grammar into source
// order.
package interpreter

import (
	"time"

	"ixion/address"
	"ixion/model"
	"ixion/token"
)

// value is the interpreter's internal working value: either a number or a
// propagated error. Strings participate in formulas only as opaque
// comparison operands; this core has no string concatenation or text
// functions (spec §1 scope).
type value struct {
	num float64
	err model.FormulaError
	str uint32
	isStr bool
}

func numVal(v float64) value                { return value{num: v} }
func errVal(e model.FormulaError) value     { return value{err: e} }
func strVal(id uint32) value                { return value{str: id, isStr: true} }
func (v value) isError() bool               { return v.err != model.NoError }

func (v value) toResult() model.FormulaResult {
	switch {
	case v.err != model.NoError:
		return model.NewErrorResult(v.err)
	case v.isStr:
		return model.NewStringResult(v.str)
	default:
		return model.NewValueResult(v.num)
	}
}

// Interp evaluates one formula cell's token sequence against access,
// resolving references relative to origin (the cell's own position).
type Interp struct {
	toks    []token.Token
	pos     int
	origin  address.AbsAddress
	access  model.ModelAccess
	tracker volatileMarker
	handler model.SessionHandler
}

// volatileMarker lets the interpreter flag a cell as volatile (e.g. once it
// evaluates a NOW() call) without importing depgraph directly — the engine
// package wires the concrete *depgraph.Tracker in via this narrow seam.
type volatileMarker interface {
	AddVolatile(address.AbsAddress)
}

// New constructs an Interp for one cell's tokens. tracker may be nil, in
// which case volatile functions are still evaluated but not registered.
func New(toks *token.Sequence, origin address.AbsAddress, access model.ModelAccess, tracker volatileMarker) *Interp {
	var ts []token.Token
	if toks != nil {
		ts = toks.Tokens
	}
	return &Interp{toks: ts, origin: origin, access: access, tracker: tracker, handler: access.GetSessionHandler()}
}

// Eval runs the grammar from comparison over the full token sequence and
// returns the resulting FormulaResult. A malformed sequence (which should
// never occur for parser-produced tokens) yields ErrInvalidExpression
// rather than a panic.
func (ip *Interp) Eval() model.FormulaResult {
	v := ip.evalComparison()
	if ip.pos != len(ip.toks) {
		return model.NewErrorResult(model.ErrInvalidExpression)
	}
	return v.toResult()
}

func (ip *Interp) peek() (token.Token, bool) {
	if ip.pos >= len(ip.toks) {
		return token.Token{}, false
	}
	return ip.toks[ip.pos], true
}

func (ip *Interp) advance() token.Token {
	t := ip.toks[ip.pos]
	ip.pos++
	return t
}

func (ip *Interp) isOp(op token.Opcode) bool {
	t, ok := ip.peek()
	return ok && t.Op == op
}

func (ip *Interp) evalComparison() value {
	lhs := ip.evalExpression()
	if lhs.isError() {
		return lhs
	}
	t, ok := ip.peek()
	if !ok || !isComparisonOp(t.Op) {
		return lhs
	}
	ip.advance()
	rhs := ip.evalExpression()
	if rhs.isError() {
		return rhs
	}
	result := compare(lhs.num, rhs.num, t.Op)
	if result {
		return numVal(1)
	}
	return numVal(0)
}

func isComparisonOp(op token.Opcode) bool {
	switch op {
	case token.OpEqual, token.OpNotEqual, token.OpLess, token.OpLessEqual, token.OpGreater, token.OpGreaterEqual:
		return true
	default:
		return false
	}
}

func compare(a, b float64, op token.Opcode) bool {
	switch op {
	case token.OpEqual:
		return a == b
	case token.OpNotEqual:
		return a != b
	case token.OpLess:
		return a < b
	case token.OpLessEqual:
		return a <= b
	case token.OpGreater:
		return a > b
	case token.OpGreaterEqual:
		return a >= b
	default:
		return false
	}
}

func (ip *Interp) evalExpression() value {
	v := ip.evalTerm()
	if v.isError() {
		return v
	}
	for ip.isOp(token.OpPlus) || ip.isOp(token.OpMinus) {
		op := ip.advance().Op
		rhs := ip.evalTerm()
		if rhs.isError() {
			return rhs
		}
		if op == token.OpPlus {
			v = numVal(v.num + rhs.num)
		} else {
			v = numVal(v.num - rhs.num)
		}
	}
	return v
}

func (ip *Interp) evalTerm() value {
	v := ip.evalFactor()
	if v.isError() {
		return v
	}
	for ip.isOp(token.OpMultiply) || ip.isOp(token.OpDivide) {
		op := ip.advance().Op
		rhs := ip.evalFactor()
		if rhs.isError() {
			return rhs
		}
		if op == token.OpMultiply {
			v = numVal(v.num * rhs.num)
		} else {
			if rhs.num == 0 {
				return errVal(model.ErrDivisionByZero)
			}
			v = numVal(v.num / rhs.num)
		}
	}
	return v
}

func (ip *Interp) evalFactor() value {
	t, ok := ip.peek()
	if !ok {
		return errVal(model.ErrInvalidExpression)
	}

	switch {
	case t.Op == token.OpOpen:
		ip.advance()
		v := ip.evalComparison()
		if v.isError() {
			return v
		}
		if !ip.isOp(token.OpClose) {
			return errVal(model.ErrInvalidExpression)
		}
		ip.advance()
		return v

	case t.Op == token.OpMinus:
		ip.advance()
		v := ip.evalFactor()
		if v.isError() {
			return v
		}
		return numVal(-v.num)

	case t.Op == token.OpValue:
		ip.advance()
		return numVal(t.Value)

	case t.Op == token.OpString:
		ip.advance()
		return strVal(t.StringID)

	case t.Op == token.OpErrNoRef:
		ip.advance()
		return errVal(model.ErrRefResultNotAvailable)

	case t.Op == token.OpSingleRef:
		ip.advance()
		return ip.evalSingleRef(t)

	case t.Op == token.OpRangeRef:
		ip.advance()
		return ip.evalRangeRefScalar(t)

	case t.Op == token.OpTableRef:
		ip.advance()
		return ip.evalTableRef(t)

	case t.Op == token.OpNamedExp:
		ip.advance()
		return ip.evalNamedExp(t)

	case t.Op == token.OpFunction:
		ip.advance()
		return ip.evalFunction(t)

	default:
		return errVal(model.ErrInvalidExpression)
	}
}

func (ip *Interp) evalSingleRef(t token.Token) value {
	target := t.Ref.ToAbs(ip.origin)
	return ip.readCell(target)
}

// readCell blocks on target's cached result if it holds a formula,
// otherwise reads its stored numeric value directly (spec §4.5/§6).
func (ip *Interp) readCell(target address.AbsAddress) value {
	if !target.Valid() {
		return errVal(model.ErrRefResultNotAvailable)
	}
	if ip.access.GetCellType(target) == model.CellFormula {
		handle := ip.access.GetFormulaCell(target)
		if handle == nil {
			return errVal(model.ErrRefResultNotAvailable)
		}
		if ip.handler != nil {
			ip.handler.CellBlocked(ip.origin, target)
		}
		r := handle.GetValue()
		if r.IsError() {
			return errVal(r.Err())
		}
		if r.Kind() == model.ResultString {
			return strVal(r.StringID())
		}
		return numVal(r.Value())
	}
	return numVal(ip.access.GetNumericValue(target))
}

// evalNamedExp resolves a NamedExp token against access.GetNamedExpression
// and reads its value the same way a SingleRef reads a formula cell: the
// named expression is itself backed by a model.FormulaCellHandle, so the
// same blocking-read protocol applies (spec §4.5/§6).
func (ip *Interp) evalNamedExp(t token.Token) value {
	handle, ok := ip.access.GetNamedExpression(t.Name)
	if !ok || handle == nil {
		return errVal(model.ErrRefResultNotAvailable)
	}
	if ip.handler != nil {
		ip.handler.CellBlocked(ip.origin, handle.Position())
	}
	r := handle.GetValue()
	if r.IsError() {
		return errVal(r.Err())
	}
	if r.Kind() == model.ResultString {
		return strVal(r.StringID())
	}
	return numVal(r.Value())
}

// evalTableRef resolves a TableRef token to an AbsRange via
// access.GetTableHandler and evaluates it as the sum of its cells, the same
// scalar-context coercion evalRangeRefScalar applies to a bare range.
func (ip *Interp) evalTableRef(t token.Token) value {
	th := ip.access.GetTableHandler()
	if th == nil {
		return errVal(model.ErrInvalidExpression)
	}
	rng, ok := th.GetTableRange(t.Table)
	if !ok {
		return errVal(model.ErrInvalidExpression)
	}
	m, err := ip.access.GetRangeValue(rng)
	if err != nil {
		return errVal(formulaErrorFrom(err))
	}
	return numVal(m.Sum())
}

// evalRangeRefScalar evaluates a bare range reference outside a reducing
// function call as the sum of its cells, matching the original's implicit
// coercion of a range operand used in scalar context.
func (ip *Interp) evalRangeRefScalar(t token.Token) value {
	m, err := ip.access.GetRangeValue(t.Range.ToAbs(ip.origin))
	if err != nil {
		return errVal(formulaErrorFrom(err))
	}
	return numVal(m.Sum())
}

// formulaErrorFrom recovers the FormulaError a ModelAccess method actually
// raised (e.g. ErrInvalidExpression for a multi-sheet range, spec §4.5) so
// callers can propagate it instead of substituting a generic one. Errors
// that don't carry a FormulaError (none currently do, but ModelAccess is an
// external collaborator) fall back to RefResultNotAvailable, the same
// "dependency unavailable" meaning a bare nil-cell read already carries.
func formulaErrorFrom(err error) model.FormulaError {
	if fe, ok := err.(model.FormulaError); ok {
		return fe
	}
	return model.ErrRefResultNotAvailable
}

func (ip *Interp) evalFunction(t token.Token) value {
	if !ip.isOp(token.OpOpen) {
		return errVal(model.ErrInvalidExpression)
	}
	ip.advance()

	var args []value
	var ranges []address.AbsRange
	if !ip.isOp(token.OpClose) {
		for {
			rt, hasNext := ip.peek()
			switch {
			case hasNext && rt.Op == token.OpRangeRef:
				ip.advance()
				ranges = append(ranges, rt.Range.ToAbs(ip.origin))

			case hasNext && rt.Op == token.OpTableRef:
				ip.advance()
				th := ip.access.GetTableHandler()
				if th == nil {
					return errVal(model.ErrInvalidExpression)
				}
				rng, ok := th.GetTableRange(rt.Table)
				if !ok {
					return errVal(model.ErrInvalidExpression)
				}
				ranges = append(ranges, rng)

			default:
				v := ip.evalComparison()
				if v.isError() {
					return v
				}
				args = append(args, v)
			}
			if !ip.isOp(token.OpSep) {
				break
			}
			ip.advance()
		}
	}
	if !ip.isOp(token.OpClose) {
		return errVal(model.ErrInvalidExpression)
	}
	ip.advance()

	return ip.dispatch(t.Fn, args, ranges)
}

func (ip *Interp) dispatch(fn token.FnID, args []value, ranges []address.AbsRange) value {
	nums := func() ([]float64, model.FormulaError) {
		out := make([]float64, 0, len(args)+len(ranges)*4)
		for _, a := range args {
			out = append(out, a.num)
		}
		for _, r := range ranges {
			m, err := ip.access.GetRangeValue(r)
			if err != nil {
				return nil, formulaErrorFrom(err)
			}
			out = append(out, m.Data...)
		}
		return out, model.NoError
	}

	switch fn {
	case model.FnSum:
		vals, ferr := nums()
		if ferr != model.NoError {
			return errVal(ferr)
		}
		var total float64
		for _, v := range vals {
			total += v
		}
		return numVal(total)

	case model.FnMin:
		vals, ferr := nums()
		if ferr != model.NoError {
			return errVal(ferr)
		}
		if len(vals) == 0 {
			return errVal(model.ErrInvalidExpression)
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return numVal(m)

	case model.FnMax:
		vals, ferr := nums()
		if ferr != model.NoError {
			return errVal(ferr)
		}
		if len(vals) == 0 {
			return errVal(model.ErrInvalidExpression)
		}
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return numVal(m)

	case model.FnAverage:
		vals, ferr := nums()
		if ferr != model.NoError {
			return errVal(ferr)
		}
		if len(vals) == 0 {
			return errVal(model.ErrInvalidExpression)
		}
		var total float64
		for _, v := range vals {
			total += v
		}
		return numVal(total / float64(len(vals)))

	case model.FnWait:
		var seconds float64 = 1
		if len(args) > 0 {
			seconds = args[0].num
		}
		time.Sleep(time.Duration(seconds * float64(time.Second)))
		return numVal(seconds)

	case model.FnNow:
		if ip.tracker != nil {
			ip.tracker.AddVolatile(ip.origin)
		}
		return numVal(nowFractionalDay())

	default:
		return errVal(model.ErrInvalidExpression)
	}
}

// nowFractionalDay returns the time elapsed since local midnight as a
// fraction of a day (0 at midnight, 0.5 at noon). The date is not included,
// so the value falls back to 0 at each midnight.
func nowFractionalDay() float64 {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return now.Sub(midnight).Hours() / 24
}
