package sema

import (
	"math"

	"modernc.org/mathutil"

	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
)

// value is a folded constant: the canonical bit pattern of an integer or a
// float64.
type value struct {
	i       uint64
	f       float64
	isFloat bool
}

// canon truncates v to the width of t and re-extends it according to the
// signedness of t. Types without a layout leave v unchanged; they are
// reported where they are used.
func canon(v uint64, t *ctypes.CType) uint64 {
	size, err := ctypes.SizeOf(t)
	if err != nil || size >= 8 {
		return v
	}
	bits := uint(size * 8)
	mask := uint64(1)<<bits - 1
	v &= mask
	if !t.IsUnsigned() && v>>(bits-1)&1 == 1 {
		v |= ^mask
	}
	return v
}

// literalType applies the C rules for the type of an integer constant: the
// first of int, unsigned int, long, unsigned long that can represent it,
// skipping unsigned candidates for unsuffixed decimal constants.
func literalType(lit ast.Literal) *ctypes.CType {
	if lit.Char {
		return ctypes.IntType
	}
	if lit.IsFloat {
		switch {
		case lit.Single:
			return ctypes.FloatType
		case lit.Long:
			return ctypes.LDoubleType
		}
		return ctypes.DoubleType
	}
	bits := mathutil.BitLenUint64(lit.Int)
	switch {
	case !lit.Long && !lit.Unsigned && bits <= 31:
		return ctypes.IntType
	case !lit.Long && (lit.Unsigned || !lit.Decimal) && bits <= 32:
		return ctypes.UIntType
	case !lit.Unsigned && bits <= 63:
		return ctypes.LongType
	}
	return ctypes.ULongType
}

func (a *Analyzer) constValue(e *ast.Expr) value {
	if e.Lit.IsFloat {
		return value{f: e.Lit.Float, isFloat: true}
	}
	return value{i: e.Lit.Int}
}

// setConstant collapses e into a constant of type t.
func (a *Analyzer) setConstant(e *ast.Expr, v value, t *ctypes.CType) {
	e.Op = ast.Constant
	e.Args = nil
	e.Type = nil
	if t.IsFloating() {
		f := v.f
		if !v.isFloat {
			f = float64(int64(v.i))
		}
		single := t.Base == ctypes.Float
		if single {
			f = float64(float32(f))
		}
		e.Lit = ast.Literal{Float: f, IsFloat: true, Single: single}
	} else {
		e.Lit = ast.Literal{Int: canon(v.i, t)}
	}
	in := a.infoOf(e)
	in.typ = t.AsRvalue().Unqualified()
}

// convertValue converts a constant of type from to type to.
func convertValue(v value, from, to *ctypes.CType) value {
	switch {
	case to.IsFloating():
		f := v.f
		if !v.isFloat {
			if from.IsUnsigned() {
				f = float64(v.i)
			} else {
				f = float64(int64(v.i))
			}
		}
		if to.Base == ctypes.Float {
			f = float64(float32(f))
		}
		return value{f: f, isFloat: true}
	case v.isFloat:
		if to.IsUnsigned() {
			return value{i: canon(uint64(v.f), to)}
		}
		return value{i: canon(uint64(int64(v.f)), to)}
	}
	return value{i: canon(v.i, to)}
}

// sized reports whether every type in ts has a layout.
func sized(ts ...*ctypes.CType) bool {
	for _, t := range ts {
		if _, err := ctypes.SizeOf(t); err != nil {
			return false
		}
	}
	return true
}

func truth(v value) bool {
	if v.isFloat {
		return v.f != 0
	}
	return v.i != 0
}

func boolValue(b bool) value {
	if b {
		return value{i: 1}
	}
	return value{}
}

// poolConstant converts a folded value to t and interns it.
func (a *Analyzer) poolConstant(v value, t *ctypes.CType) *symtab.Constant {
	if t.IsFloating() {
		return a.syms.NewConstant(symtab.FloatValue(v.f))
	}
	return a.syms.NewConstant(symtab.IntValue(canon(v.i, t)))
}

// fold tries to collapse e, whose operands are already analyzed. It returns
// false when e is not a constant expression.
func (a *Analyzer) fold(e *ast.Expr) bool {
	for _, arg := range e.Args {
		if arg.Op != ast.Constant {
			return false
		}
	}
	if len(e.Args) == 0 {
		return false
	}
	x := e.Args[0]
	xv, xt := a.constValue(x), a.info[x].typ
	if !sized(xt) {
		return false
	}

	switch e.Op {
	case ast.Plus, ast.Minus, ast.BitNot:
		if !xt.IsArithmetic() || (e.Op == ast.BitNot && !xt.IsIntegral()) {
			return false
		}
		rt := ctypes.Promote(xt)
		v := convertValue(xv, xt, rt)
		switch {
		case e.Op == ast.Minus && v.isFloat:
			v.f = -v.f
		case e.Op == ast.Minus:
			v.i = -v.i
		case e.Op == ast.BitNot:
			v.i = ^v.i
		}
		a.setConstant(e, v, rt)
		return true
	case ast.LogNot:
		a.setConstant(e, boolValue(!truth(xv)), ctypes.IntType)
		return true
	case ast.Cast:
		to := a.info[e].typ
		if to == nil || !to.IsArithmetic() || !xt.IsArithmetic() || !sized(to) {
			return false
		}
		a.setConstant(e, convertValue(xv, xt, to), to)
		return true
	case ast.Ternary:
		then, els := e.Args[1], e.Args[2]
		tt, et := a.info[then].typ, a.info[els].typ
		if !tt.IsArithmetic() || !et.IsArithmetic() || !xt.IsScalar() || !sized(tt, et) {
			return false
		}
		rt := ctypes.UsualArithmeticConversion(tt, et)
		if truth(xv) {
			a.setConstant(e, convertValue(a.constValue(then), tt, rt), rt)
		} else {
			a.setConstant(e, convertValue(a.constValue(els), et, rt), rt)
		}
		return true
	}

	if !e.Op.IsBinary() || e.Op >= ast.Assign && e.Op != ast.Comma {
		return false
	}
	y := e.Args[1]
	yv, yt := a.constValue(y), a.info[y].typ
	if !xt.IsArithmetic() || !yt.IsArithmetic() || !sized(yt) {
		return false
	}
	if e.Op == ast.Comma {
		a.setConstant(e, yv, yt)
		return true
	}
	if e.Op == ast.LogAnd || e.Op == ast.LogOr {
		r := truth(xv) && truth(yv)
		if e.Op == ast.LogOr {
			r = truth(xv) || truth(yv)
		}
		a.setConstant(e, boolValue(r), ctypes.IntType)
		return true
	}

	integral := xt.IsIntegral() && yt.IsIntegral()
	if !integral && (e.Op == ast.Mod || e.Op == ast.Shl || e.Op == ast.Shr ||
		e.Op == ast.BitAnd || e.Op == ast.BitXor || e.Op == ast.BitOr) {
		return false
	}

	if e.Op == ast.Shl || e.Op == ast.Shr {
		lt := ctypes.Promote(xt)
		l := convertValue(xv, xt, lt)
		n := yv.i & 63
		if e.Op == ast.Shl {
			l.i <<= n
		} else if lt.IsUnsigned() {
			l.i >>= n
		} else {
			l.i = uint64(int64(l.i) >> n)
		}
		a.setConstant(e, l, lt)
		return true
	}

	ct := ctypes.UsualArithmeticConversion(xt, yt)
	l, r := convertValue(xv, xt, ct), convertValue(yv, yt, ct)
	if (e.Op == ast.Div || e.Op == ast.Mod) && !ct.IsFloating() && r.i == 0 {
		a.warnf(e.Pos, "division by zero")
		return false
	}

	switch e.Op {
	case ast.Lt, ast.Gt, ast.Le, ast.Ge, ast.Eq, ast.Ne:
		a.setConstant(e, boolValue(compare(e.Op, l, r, ct)), ctypes.IntType)
		return true
	}

	var v value
	if ct.IsFloating() {
		v = value{isFloat: true}
		switch e.Op {
		case ast.Add:
			v.f = l.f + r.f
		case ast.Sub:
			v.f = l.f - r.f
		case ast.Mul:
			v.f = l.f * r.f
		case ast.Div:
			v.f = l.f / r.f
		}
		a.setConstant(e, v, ct)
		return true
	}

	signed := !ct.IsUnsigned()
	switch e.Op {
	case ast.Add:
		v.i = l.i + r.i
	case ast.Sub:
		v.i = l.i - r.i
	case ast.Mul:
		v.i = l.i * r.i
	case ast.Div:
		if signed {
			v.i = uint64(int64(l.i) / int64(r.i))
		} else {
			v.i = l.i / r.i
		}
	case ast.Mod:
		if signed {
			v.i = uint64(int64(l.i) % int64(r.i))
		} else {
			v.i = l.i % r.i
		}
	case ast.BitAnd:
		v.i = l.i & r.i
	case ast.BitXor:
		v.i = l.i ^ r.i
	case ast.BitOr:
		v.i = l.i | r.i
	}
	a.setConstant(e, v, ct)
	return true
}

func compare(op ast.Op, l, r value, t *ctypes.CType) bool {
	var c int
	switch {
	case t.IsFloating():
		if math.IsNaN(l.f) || math.IsNaN(r.f) {
			return op == ast.Ne
		}
		c = cmp3(l.f < r.f, l.f > r.f)
	case t.IsUnsigned():
		c = cmp3(l.i < r.i, l.i > r.i)
	default:
		c = cmp3(int64(l.i) < int64(r.i), int64(l.i) > int64(r.i))
	}
	switch op {
	case ast.Lt:
		return c < 0
	case ast.Gt:
		return c > 0
	case ast.Le:
		return c <= 0
	case ast.Ge:
		return c >= 0
	case ast.Eq:
		return c == 0
	}
	return c != 0
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}
