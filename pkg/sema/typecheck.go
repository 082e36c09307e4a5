package sema

import (
	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
)

// check synthesizes the type of every node of e, bottom-up, folding constant
// subexpressions on the way. It returns false if e contains a type error.
func (a *Analyzer) check(root *ast.Expr) bool {
	type frame struct {
		e       *ast.Expr
		visited bool
	}
	stack := []frame{{e: root}}
	for len(stack) > 0 {
		top := len(stack) - 1
		e := stack[top].e
		if !stack[top].visited {
			stack[top].visited = true
			for i := len(e.Args) - 1; i >= 0; i-- {
				stack = append(stack, frame{e: e.Args[i]})
			}
			continue
		}
		stack = stack[:top]
		a.checkNode(e)
	}
	return !a.info[root].bad
}

// valueType is the type of e once used as an rvalue.
func (a *Analyzer) valueType(e *ast.Expr) *ctypes.CType {
	return a.info[e].typ.Decay()
}

// isNullPointer reports whether e is a null pointer constant.
func (a *Analyzer) isNullPointer(e *ast.Expr) bool {
	if e.Op == ast.Constant {
		return !e.Lit.IsFloat && e.Lit.Int == 0 && a.info[e].typ.IsIntegral()
	}
	if e.Op == ast.Cast && a.info[e].typ.IsVoidPointer() {
		return a.isNullPointer(e.Args[0])
	}
	return false
}

// assignable reports whether the value of src may be stored in an object of
// type dst.
func (a *Analyzer) assignable(dst *ctypes.CType, src *ast.Expr) bool {
	st := a.valueType(src)
	if ctypes.ConvertibleTo(dst, st) {
		return true
	}
	return dst.IsPointer() && a.isNullPointer(src)
}

func (a *Analyzer) checkNode(e *ast.Expr) {
	in := a.infoOf(e)
	for _, arg := range e.Args {
		if a.info[arg].bad {
			in.bad = true
			in.typ = ctypes.IntType
			return
		}
	}

	fail := func(format string, args ...any) {
		a.errorf(e.Pos, format, args...)
		in.bad = true
		in.typ = ctypes.IntType
	}

	switch e.Op {
	case ast.SizeofExpr, ast.SizeofType:
		t := ctypes.VoidType
		if e.Op == ast.SizeofExpr {
			t = a.info[e.Args[0]].typ
		} else {
			var ok bool
			if t, ok = a.typeName(e.Type); !ok {
				fail("invalid type in sizeof")
				return
			}
		}
		if t.IsFunction() {
			fail("invalid application of 'sizeof' to a function type")
			return
		}
		n, err := ctypes.SizeOf(t)
		if err != nil {
			fail("invalid application of 'sizeof': %v", err)
			return
		}
		a.setConstant(e, value{i: uint64(n)}, ctypes.ULongType)
		return
	case ast.Cast:
		t, ok := a.typeName(e.Type)
		if !ok {
			fail("invalid type in cast")
			return
		}
		in.typ = t.AsRvalue()
	}

	if a.fold(e) {
		return
	}

	switch e.Op {
	case ast.Ident:
		o := a.syms.RetrieveOrdinary(e.Name)
		switch {
		case o == nil:
			fail("use of undeclared identifier '%s'", e.Name)
		case o.Storage == symtab.Typedef:
			fail("unexpected type name '%s': expected expression", e.Name)
		default:
			in.sym = o
			in.typ = o.Type
			if !o.Type.IsFunction() {
				in.typ = o.Type.AsLvalue()
			}
		}

	case ast.Constant:
		in.typ = literalType(e.Lit)
		if !e.Lit.IsFloat {
			e.Lit.Int = canon(e.Lit.Int, in.typ)
		}

	case ast.StringLit:
		in.str = a.syms.NewConstant(symtab.StringValue(e.Str))
		in.typ = ctypes.ArrayOf(ctypes.UCharType, len(e.Str)+1).AsLvalue()

	case ast.Member, ast.PtrMember:
		fail("member access through '%s': struct and union layout is not supported", e.Op)

	case ast.PostInc, ast.PostDec, ast.PreInc, ast.PreDec:
		t := a.info[e.Args[0]].typ
		if !t.IsScalar() || !t.Modifiable() {
			fail("operand of '%s' must be a modifiable scalar lvalue", e.Op)
			return
		}
		if t.IsPointer() {
			if _, ok := a.sizeOf(e.Pos, t.Elem); !ok {
				in.bad, in.typ = true, ctypes.IntType
				return
			}
		}
		in.typ = t.AsRvalue().Unqualified()

	case ast.AddrOf:
		t := a.info[e.Args[0]].typ
		switch {
		case t.IsFunction():
			in.typ = ctypes.PointerTo(t)
		case !t.Lvalue:
			fail("cannot take the address of an rvalue of type '%s'", t)
		case e.Args[0].Op == ast.Ident && a.info[e.Args[0]].sym.Storage == symtab.Register:
			fail("address of register variable requested")
		default:
			in.typ = ctypes.PointerTo(t.AsRvalue())
		}

	case ast.Deref:
		t := a.valueType(e.Args[0])
		switch {
		case !t.IsPointer():
			fail("indirection requires pointer operand ('%s' invalid)", t)
		case t.Elem.IsVoid():
			fail("dereferencing a 'void *' pointer")
		case t.Elem.IsFunction():
			in.typ = t.Elem
		default:
			in.typ = t.Elem.AsLvalue()
		}

	case ast.Plus, ast.Minus, ast.BitNot:
		t := a.valueType(e.Args[0])
		if !t.IsArithmetic() || (e.Op == ast.BitNot && !t.IsIntegral()) {
			fail("invalid argument type '%s' to unary '%s'", t, e.Op)
			return
		}
		in.typ = ctypes.Promote(t)

	case ast.LogNot:
		if t := a.valueType(e.Args[0]); !t.IsScalar() {
			fail("invalid argument type '%s' to unary '!'", t)
			return
		}
		in.typ = ctypes.IntType

	case ast.Cast:
		from := a.valueType(e.Args[0])
		to := in.typ
		switch {
		case to.IsVoid():
		case !to.IsScalar():
			fail("cannot cast to non-scalar type '%s'", to)
		case !from.IsScalar():
			fail("operand of type '%s' cannot be cast to '%s'", from, to)
		case (to.IsPointer() && from.IsFloating()) || (to.IsFloating() && from.IsPointer()):
			fail("cannot cast between pointer and floating type")
		}

	case ast.Call:
		a.checkCall(e, in, fail)

	case ast.Ternary:
		a.checkTernary(e, in, fail)

	default:
		a.checkBinary(e, in, fail)
	}
}

func (a *Analyzer) checkBinary(e *ast.Expr, in *exprInfo, fail func(string, ...any)) {
	x, y := e.Args[0], e.Args[1]
	lt, rt := a.valueType(x), a.valueType(y)

	invalid := func() {
		fail("invalid operands to binary '%s' ('%s' and '%s')", e.Op, lt, rt)
	}

	switch e.Op {
	case ast.Comma:
		in.typ = rt

	case ast.Mul, ast.Div:
		if !lt.IsArithmetic() || !rt.IsArithmetic() {
			invalid()
			return
		}
		in.typ = ctypes.UsualArithmeticConversion(lt, rt)

	case ast.Mod, ast.BitAnd, ast.BitXor, ast.BitOr:
		if !lt.IsIntegral() || !rt.IsIntegral() {
			invalid()
			return
		}
		in.typ = ctypes.UsualArithmeticConversion(lt, rt)

	case ast.Shl, ast.Shr:
		if !lt.IsIntegral() || !rt.IsIntegral() {
			invalid()
			return
		}
		in.typ = ctypes.Promote(lt)

	case ast.Add:
		switch {
		case lt.IsArithmetic() && rt.IsArithmetic():
			in.typ = ctypes.UsualArithmeticConversion(lt, rt)
		case lt.IsPointer() && rt.IsIntegral():
			in.typ = lt
			a.scaleOperand(e, 1, lt, fail)
		case lt.IsIntegral() && rt.IsPointer():
			in.typ = rt
			a.scaleOperand(e, 0, rt, fail)
		default:
			invalid()
		}

	case ast.Sub:
		switch {
		case lt.IsArithmetic() && rt.IsArithmetic():
			in.typ = ctypes.UsualArithmeticConversion(lt, rt)
		case lt.IsPointer() && rt.IsIntegral():
			in.typ = lt
			a.scaleOperand(e, 1, lt, fail)
		case lt.IsPointer() && rt.IsPointer():
			if !ctypes.Compatible(lt.Elem.Unqualified(), rt.Elem.Unqualified()) {
				fail("'%s' and '%s' are not pointers to compatible types", lt, rt)
				return
			}
			n, ok := a.sizeOf(e.Pos, lt.Elem)
			if !ok {
				in.bad, in.typ = true, ctypes.IntType
				return
			}
			in.elemSize = n
			in.typ = ctypes.LongType
		default:
			invalid()
		}

	case ast.Lt, ast.Gt, ast.Le, ast.Ge, ast.Eq, ast.Ne:
		in.typ = ctypes.IntType
		equality := e.Op == ast.Eq || e.Op == ast.Ne
		switch {
		case lt.IsArithmetic() && rt.IsArithmetic():
			in.common = ctypes.UsualArithmeticConversion(lt, rt)
		case lt.IsPointer() && rt.IsPointer():
			if !lt.IsVoidPointer() && !rt.IsVoidPointer() &&
				!ctypes.Compatible(lt.Elem.Unqualified(), rt.Elem.Unqualified()) {
				a.warnf(e.Pos, "comparison of distinct pointer types ('%s' and '%s')", lt, rt)
			}
			in.common = ctypes.ULongType
		case equality && lt.IsPointer() && a.isNullPointer(y),
			equality && rt.IsPointer() && a.isNullPointer(x):
			in.common = ctypes.ULongType
		default:
			invalid()
		}

	case ast.LogAnd, ast.LogOr:
		if !lt.IsScalar() || !rt.IsScalar() {
			invalid()
			return
		}
		in.typ = ctypes.IntType

	case ast.Assign:
		dt := a.info[x].typ
		if !a.checkDestination(x, dt, fail) {
			return
		}
		if !a.assignable(dt.AsRvalue(), y) {
			fail("assigning to '%s' from incompatible type '%s'", dt.AsRvalue(), rt)
			return
		}
		in.typ = dt.AsRvalue().Unqualified()

	default:
		if !e.Op.IsCompoundAssign() {
			fail("unsupported operator '%s'", e.Op)
			return
		}
		dt := a.info[x].typ
		if !a.checkDestination(x, dt, fail) {
			return
		}
		op := e.Op.Arithmetic()
		switch {
		case dt.IsPointer() && (op == ast.Add || op == ast.Sub) && rt.IsIntegral():
			a.scaleOperand(e, 1, dt, fail)
		case !dt.IsArithmetic() || !rt.IsArithmetic():
			invalid()
			return
		case (op == ast.Mod || op == ast.Shl || op == ast.Shr || op >= ast.BitAnd) &&
			(!dt.IsIntegral() || !rt.IsIntegral()):
			invalid()
			return
		}
		in.typ = dt.AsRvalue().Unqualified()
	}
}

func (a *Analyzer) checkDestination(x *ast.Expr, dt *ctypes.CType, fail func(string, ...any)) bool {
	switch {
	case !dt.Lvalue:
		fail("expression is not assignable")
	case dt.Qual&ctypes.Const != 0:
		fail("cannot assign to variable with const-qualified type '%s'", dt.AsRvalue())
	case dt.IsArray():
		fail("array type '%s' is not assignable", dt.AsRvalue())
	case !dt.Modifiable():
		fail("expression is not assignable")
	default:
		return true
	}
	return false
}

// scaleOperand replaces the integer operand idx of pointer arithmetic with
// a multiplication by the pointee size.
func (a *Analyzer) scaleOperand(e *ast.Expr, idx int, ptr *ctypes.CType, fail func(string, ...any)) {
	n, err := ctypes.SizeOf(ptr.Elem)
	if err != nil || ptr.Elem.IsFunction() {
		fail("arithmetic on a pointer to an incomplete type '%s'", ptr.Elem)
		return
	}
	size := &ast.Expr{Op: ast.Constant, Lit: ast.Literal{Int: uint64(n)}, Pos: e.Pos}
	a.infoOf(size).typ = ctypes.ULongType
	mul := &ast.Expr{Op: ast.Mul, Args: []*ast.Expr{e.Args[idx], size}, Pos: e.Pos}
	e.Args[idx] = mul
	a.checkNode(mul)
}

func (a *Analyzer) checkTernary(e *ast.Expr, in *exprInfo, fail func(string, ...any)) {
	ct := a.valueType(e.Args[0])
	if !ct.IsScalar() {
		fail("used type '%s' where arithmetic or pointer type is required", ct)
		return
	}
	then, els := e.Args[1], e.Args[2]
	tt, et := a.valueType(then), a.valueType(els)
	switch {
	case tt.IsArithmetic() && et.IsArithmetic():
		in.typ = ctypes.UsualArithmeticConversion(tt, et)
	case tt.IsVoid() && et.IsVoid():
		in.typ = ctypes.VoidType
	case tt.IsPointer() && et.IsPointer():
		switch {
		case tt.IsVoidPointer():
			in.typ = tt
		case et.IsVoidPointer():
			in.typ = et
		case ctypes.Compatible(tt.Elem.Unqualified(), et.Elem.Unqualified()):
			in.typ = tt
		default:
			fail("pointer type mismatch ('%s' and '%s')", tt, et)
		}
	case tt.IsPointer() && a.isNullPointer(els):
		in.typ = tt
	case et.IsPointer() && a.isNullPointer(then):
		in.typ = et
	default:
		fail("incompatible operand types ('%s' and '%s')", tt, et)
	}
}

func (a *Analyzer) checkCall(e *ast.Expr, in *exprInfo, fail func(string, ...any)) {
	callee := e.Args[0]
	if a.info[callee].typ.IsFunction() {
		addr := &ast.Expr{Op: ast.AddrOf, Args: []*ast.Expr{callee}, Pos: callee.Pos}
		e.Args[0] = addr
		a.checkNode(addr)
		callee = addr
	}
	pt := a.valueType(callee)
	if !pt.IsPointer() || !pt.Elem.IsFunction() {
		fail("called object type '%s' is not a function or function pointer", pt)
		return
	}
	ft := pt.Elem
	args := e.Args[1:]
	if ft.HasPrototype() {
		n := ft.Arity()
		switch {
		case len(args) < n:
			fail("too few arguments to function call, expected %d, have %d", n, len(args))
			return
		case len(args) > n && !ft.Variadic:
			fail("too many arguments to function call, expected %d, have %d", n, len(args))
			return
		}
		for i := 0; i < n; i++ {
			if !a.assignable(ft.Params[i], args[i]) {
				fail("passing '%s' to parameter %d of incompatible type '%s'", a.valueType(args[i]), i+1, ft.Params[i])
				return
			}
		}
	}
	for _, arg := range args {
		if t := a.valueType(arg); !t.IsScalar() {
			fail("argument of type '%s' cannot be passed", t)
			return
		}
	}
	ret := ft.Elem.AsRvalue()
	if !ret.IsVoid() && !ret.IsScalar() {
		fail("calling a function returning '%s' is not supported", ret)
		return
	}
	in.typ = ret
}
