package sema

import (
	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
	"github.com/jgiron42/cc1/pkg/tac"
)

var tacOps = map[ast.Op]tac.Op{
	ast.Mul:    tac.OpMul,
	ast.Div:    tac.OpDiv,
	ast.Mod:    tac.OpMod,
	ast.Add:    tac.OpAdd,
	ast.Sub:    tac.OpSub,
	ast.Shl:    tac.OpShiftLeft,
	ast.Shr:    tac.OpShiftRight,
	ast.Lt:     tac.OpLess,
	ast.Gt:     tac.OpGreater,
	ast.Le:     tac.OpLessEqual,
	ast.Ge:     tac.OpGreaterEqual,
	ast.Eq:     tac.OpEqual,
	ast.Ne:     tac.OpNotEqual,
	ast.BitAnd: tac.OpAnd,
	ast.BitXor: tac.OpXor,
	ast.BitOr:  tac.OpOr,
}

// lower emits the TAC of an expression that passed check and returns the
// address holding its value. The address of an lvalue designates the object
// itself.
func (a *Analyzer) lower(root *ast.Expr) tac.Address {
	type frame struct {
		e    *ast.Expr
		next int
	}
	stack := []frame{{e: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		e := top.e
		if top.next < len(e.Args) {
			i := top.next
			top.next++
			a.beforeChild(e, i)
			stack = append(stack, frame{e: e.Args[i]})
			continue
		}
		stack = stack[:len(stack)-1]
		a.emitNode(e)
	}
	return a.info[root].addr
}

func (a *Analyzer) emit(in tac.Instruction) { a.fn.Emit(in) }

func (a *Analyzer) intConst(v uint64) tac.Address {
	return tac.Const(a.syms.NewConstant(symtab.IntValue(v)))
}

// width is the size of an operand of type t. A type without a layout is
// reported once per position.
func (a *Analyzer) width(pos ast.Pos, t *ctypes.CType) int {
	n, err := ctypes.SizeOf(t)
	if err != nil {
		if !a.unsized[pos] {
			a.unsized[pos] = true
			a.errorf(pos, "object of type '%s' is not supported here", t)
		}
		return ctypes.PointerSize
	}
	return n
}

// beforeChild runs before child i of e is lowered. It lays out the control
// flow of the short-circuit and conditional operators.
func (a *Analyzer) beforeChild(e *ast.Expr, i int) {
	in := a.info[e]
	switch {
	case (e.Op == ast.LogAnd || e.Op == ast.LogOr) && i == 1:
		x := e.Args[0]
		l := a.rvalue(x)
		in.short = a.fn.NewLabel()
		in.end = a.fn.NewLabel()
		op := tac.OpJumpEqual
		if e.Op == ast.LogOr {
			op = tac.OpJumpNotEqual
		}
		xt := a.valueType(x)
		a.emit(tac.Instruction{Dst: tac.LabelAddr(in.short), Op: op, A: l, B: a.intConst(0), Size: a.width(x.Pos, xt), Signed: !xt.IsUnsigned()})

	case e.Op == ast.Ternary && i == 1:
		c := e.Args[0]
		ct := a.valueType(c)
		cv := a.rvalue(c)
		in.short = a.fn.NewLabel()
		in.end = a.fn.NewLabel()
		if !in.typ.IsVoid() {
			in.result = a.fn.NewTemp(in.typ)
		}
		a.emit(tac.Instruction{Dst: tac.LabelAddr(in.short), Op: tac.OpJumpEqual, A: cv, B: a.intConst(0), Size: a.width(c.Pos, ct), Signed: !ct.IsUnsigned()})

	case e.Op == ast.Ternary && i == 2:
		a.ternaryBranch(e, e.Args[1])
		a.emit(tac.Instruction{Dst: tac.LabelAddr(in.end), Op: tac.OpJump})
		a.fn.SetLabel(in.short)
	}
}

func (a *Analyzer) ternaryBranch(e, branch *ast.Expr) {
	in := a.info[e]
	v := a.convert(branch.Pos, a.rvalue(branch), a.valueType(branch), in.typ)
	if !in.typ.IsVoid() {
		a.emit(tac.Instruction{Dst: in.result, Op: tac.OpAssign, A: v, Size: a.width(e.Pos, in.typ)})
	}
}

// rvalue returns the value of an analyzed node, converting arrays and
// functions to pointers.
func (a *Analyzer) rvalue(e *ast.Expr) tac.Address {
	in := a.info[e]
	if !in.typ.IsArray() && !in.typ.IsFunction() {
		return in.addr
	}
	p := a.fn.NewTemp(in.typ.Decay())
	a.emit(tac.Instruction{Dst: p, Op: tac.OpAddress, A: in.addr, Size: ctypes.PointerSize})
	return p
}

// convert converts v from type from to type to. Constants are converted in
// place.
func (a *Analyzer) convert(pos ast.Pos, v tac.Address, from, to *ctypes.CType) tac.Address {
	if to.IsVoid() {
		return tac.None
	}
	if v.Kind == tac.AddrConstant && !v.Const.InRodata() && sized(from, to) {
		val := value{i: v.Const.Int}
		if from.IsFloating() {
			val = value{f: v.Const.Float, isFloat: true}
		}
		if from.IsPointer() {
			from = ctypes.ULongType
		}
		dst := to
		if dst.IsPointer() {
			dst = ctypes.ULongType
		}
		return tac.Const(a.poolConstant(convertValue(val, from, dst), dst))
	}
	if v.Kind == tac.AddrConstant && from.IsFloating() && to.IsFloating() {
		n, m := ctypes.MustSizeOf(from), ctypes.MustSizeOf(to)
		if n == m {
			return v
		}
		return tac.Const(a.poolConstant(convertValue(value{f: v.Const.Float, isFloat: true}, from, to), to))
	}
	if from.IsFloating() || to.IsFloating() {
		if ctypes.Equivalent(from.Unqualified(), to.Unqualified(), true) {
			return v
		}
		a.errorf(pos, "conversion from '%s' to '%s': floating-point code generation is not supported", from, to)
		return v
	}
	n, m := a.width(pos, from), a.width(pos, to)
	if n == m {
		return v
	}
	t := a.fn.NewTemp(to)
	a.emit(tac.Instruction{Dst: t, Op: tac.OpConvert, A: v, Size: m, Signed: !from.IsUnsigned()})
	return t
}

func (a *Analyzer) noFloat(e *ast.Expr, t *ctypes.CType) bool {
	if t.IsFloating() {
		a.errorf(e.Pos, "floating-point arithmetic is not supported")
		return false
	}
	return true
}

func (a *Analyzer) emitNode(e *ast.Expr) {
	in := a.info[e]
	t := in.typ

	switch e.Op {
	case ast.Constant:
		if e.Lit.IsFloat {
			in.addr = tac.Const(a.syms.NewConstant(symtab.FloatValue(e.Lit.Float)))
		} else {
			in.addr = a.intConst(e.Lit.Int)
		}

	case ast.StringLit:
		in.addr = tac.Const(in.str)

	case ast.Ident:
		in.addr = tac.Sym(in.sym)

	case ast.AddrOf:
		p := a.fn.NewTemp(t)
		a.emit(tac.Instruction{Dst: p, Op: tac.OpAddress, A: a.info[e.Args[0]].addr, Size: ctypes.PointerSize})
		in.addr = p

	case ast.Deref:
		ptr := a.rvalue(e.Args[0])
		d := a.fn.NewTemp(t)
		size := ctypes.PointerSize
		if !t.IsFunction() {
			size = a.width(e.Pos, t)
		}
		a.emit(tac.Instruction{Dst: d, Op: tac.OpDeref, A: ptr, Size: size})
		in.addr = d

	case ast.Plus, ast.Minus, ast.BitNot:
		x := e.Args[0]
		v := a.convert(e.Pos, a.rvalue(x), a.valueType(x), t)
		if e.Op == ast.Plus || !a.noFloat(e, t) {
			in.addr = v
			return
		}
		op := tac.OpNeg
		if e.Op == ast.BitNot {
			op = tac.OpNot
		}
		r := a.fn.NewTemp(t)
		a.emit(tac.Instruction{Dst: r, Op: op, A: v, Size: a.width(e.Pos, t), Signed: !t.IsUnsigned()})
		in.addr = r

	case ast.LogNot:
		x := e.Args[0]
		xt := a.valueType(x)
		if !a.noFloat(e, xt) {
			return
		}
		r := a.fn.NewTemp(t)
		a.emit(tac.Instruction{Dst: r, Op: tac.OpLogicalNot, A: a.rvalue(x), Size: a.width(e.Pos, xt), Signed: !xt.IsUnsigned()})
		in.addr = r

	case ast.Cast:
		x := e.Args[0]
		in.addr = a.convert(e.Pos, a.rvalue(x), a.valueType(x), t)

	case ast.PostInc, ast.PostDec, ast.PreInc, ast.PreDec:
		a.emitIncDec(e)

	case ast.Comma:
		in.addr = a.rvalue(e.Args[1])

	case ast.LogAnd, ast.LogOr:
		y := e.Args[1]
		yt := a.valueType(y)
		r := a.fn.NewTemp(ctypes.IntType)
		a.emit(tac.Instruction{Dst: r, Op: tac.OpNotEqual, A: a.rvalue(y), B: a.intConst(0), Size: a.width(y.Pos, yt), Signed: !yt.IsUnsigned()})
		a.emit(tac.Instruction{Dst: tac.LabelAddr(in.end), Op: tac.OpJump})
		a.fn.SetLabel(in.short)
		var v uint64
		if e.Op == ast.LogOr {
			v = 1
		}
		a.emit(tac.Instruction{Dst: r, Op: tac.OpAssign, A: a.intConst(v), Size: 4})
		a.fn.SetLabel(in.end)
		in.addr = r

	case ast.Ternary:
		a.ternaryBranch(e, e.Args[2])
		a.fn.SetLabel(in.end)
		in.addr = in.result

	case ast.Assign:
		x, y := e.Args[0], e.Args[1]
		dst := a.info[x].addr
		v := a.convert(e.Pos, a.rvalue(y), a.valueType(y), t)
		a.emit(tac.Instruction{Dst: dst, Op: tac.OpAssign, A: v, Size: a.width(e.Pos, t)})
		in.addr = dst

	case ast.Call:
		a.emitCall(e)

	default:
		switch {
		case e.Op.IsCompoundAssign():
			a.emitCompoundAssign(e)
		case e.Op >= ast.Lt && e.Op <= ast.Ne:
			a.emitComparison(e)
		default:
			a.emitBinary(e)
		}
	}
}

func (a *Analyzer) emitIncDec(e *ast.Expr) {
	in := a.info[e]
	t := in.typ
	if !a.noFloat(e, t) {
		return
	}
	x := a.info[e.Args[0]].addr
	size := a.width(e.Pos, t)
	step := uint64(1)
	if t.IsPointer() {
		step = uint64(a.width(e.Pos, t.Elem))
	}
	op := tac.OpAdd
	if e.Op == ast.PostDec || e.Op == ast.PreDec {
		op = tac.OpSub
	}
	in.addr = x
	if e.Op == ast.PostInc || e.Op == ast.PostDec {
		old := a.fn.NewTemp(t)
		a.emit(tac.Instruction{Dst: old, Op: tac.OpAssign, A: x, Size: size})
		in.addr = old
	}
	a.emit(tac.Instruction{Dst: x, Op: op, A: x, B: a.intConst(step), Size: size, Signed: !t.IsUnsigned()})
}

func (a *Analyzer) emitBinary(e *ast.Expr) {
	in := a.info[e]
	t := in.typ
	x, y := e.Args[0], e.Args[1]
	lt, rt := a.valueType(x), a.valueType(y)
	if !a.noFloat(e, t) {
		return
	}

	if e.Op == ast.Sub && lt.IsPointer() && rt.IsPointer() {
		diff := a.fn.NewTemp(ctypes.LongType)
		a.emit(tac.Instruction{Dst: diff, Op: tac.OpSub, A: a.rvalue(x), B: a.rvalue(y), Size: 8, Signed: true})
		in.addr = diff
		if in.elemSize > 1 {
			q := a.fn.NewTemp(ctypes.LongType)
			a.emit(tac.Instruction{Dst: q, Op: tac.OpDiv, A: diff, B: a.intConst(uint64(in.elemSize)), Size: 8, Signed: true})
			in.addr = q
		}
		return
	}

	l := a.convert(x.Pos, a.rvalue(x), lt, t)
	r := a.convert(y.Pos, a.rvalue(y), rt, t)
	res := a.fn.NewTemp(t)
	a.emit(tac.Instruction{Dst: res, Op: tacOps[e.Op], A: l, B: r, Size: a.width(e.Pos, t), Signed: !t.IsUnsigned()})
	in.addr = res
}

func (a *Analyzer) emitComparison(e *ast.Expr) {
	in := a.info[e]
	ct := in.common
	if !a.noFloat(e, ct) {
		return
	}
	x, y := e.Args[0], e.Args[1]
	l := a.convert(x.Pos, a.rvalue(x), a.valueType(x), ct)
	r := a.convert(y.Pos, a.rvalue(y), a.valueType(y), ct)
	res := a.fn.NewTemp(ctypes.IntType)
	a.emit(tac.Instruction{Dst: res, Op: tacOps[e.Op], A: l, B: r, Size: a.width(e.Pos, ct), Signed: !ct.IsUnsigned()})
	in.addr = res
}

func (a *Analyzer) emitCompoundAssign(e *ast.Expr) {
	in := a.info[e]
	dt := in.typ
	x, y := e.Args[0], e.Args[1]
	rt := a.valueType(y)
	dst := a.info[x].addr
	op := e.Op.Arithmetic()
	in.addr = dst

	var ct *ctypes.CType
	switch {
	case op == ast.Shl || op == ast.Shr:
		ct = ctypes.Promote(dt)
	case dt.IsPointer():
		ct = dt
	default:
		ct = ctypes.UsualArithmeticConversion(dt, rt)
	}
	if !a.noFloat(e, ct) {
		return
	}
	r := a.convert(y.Pos, a.rvalue(y), rt, ct)
	size := a.width(e.Pos, ct)
	if ctypes.Equivalent(ct, dt, true) {
		a.emit(tac.Instruction{Dst: dst, Op: tacOps[op], A: dst, B: r, Size: size, Signed: !ct.IsUnsigned()})
		return
	}
	l := a.convert(x.Pos, dst, dt, ct)
	tmp := a.fn.NewTemp(ct)
	a.emit(tac.Instruction{Dst: tmp, Op: tacOps[op], A: l, B: r, Size: size, Signed: !ct.IsUnsigned()})
	back := a.convert(e.Pos, tmp, ct, dt)
	a.emit(tac.Instruction{Dst: dst, Op: tac.OpAssign, A: back, Size: a.width(e.Pos, dt)})
}

// emitCall evaluates every argument before the first PARAM so that nested
// calls do not interleave with the parameter sequence.
func (a *Analyzer) emitCall(e *ast.Expr) {
	in := a.info[e]
	callee := a.rvalue(e.Args[0])
	ft := a.valueType(e.Args[0]).Elem

	type arg struct {
		v      tac.Address
		size   int
		signed bool
	}
	args := make([]arg, 0, len(e.Args)-1)
	for i, x := range e.Args[1:] {
		at := a.valueType(x)
		target := ctypes.Promote(at)
		if ft.HasPrototype() && i < ft.Arity() {
			target = ft.Params[i].AsRvalue().Unqualified()
		} else if at.Base == ctypes.Float && at.Kind == ctypes.KindPlain {
			target = ctypes.DoubleType
		}
		if target.IsFloating() {
			a.errorf(x.Pos, "passing floating-point arguments is not supported")
			continue
		}
		args = append(args, arg{
			v:      a.convert(x.Pos, a.rvalue(x), at, target),
			size:   a.width(x.Pos, target),
			signed: !target.IsUnsigned(),
		})
	}
	for _, p := range args {
		a.emit(tac.Instruction{Op: tac.OpParam, A: p.v, Size: p.size, Signed: p.signed})
	}

	if in.typ.IsFloating() {
		a.errorf(e.Pos, "calling a function returning '%s' is not supported", in.typ)
		return
	}
	dst := tac.None
	size := 0
	if !in.typ.IsVoid() {
		dst = a.fn.NewTemp(in.typ)
		size = a.width(e.Pos, in.typ)
	}
	a.emit(tac.Instruction{Dst: dst, Op: tac.OpCall, A: callee, Size: size})
	in.addr = dst
}
