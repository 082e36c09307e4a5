package sema

import (
	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/tac"
)

// declareItem is the declaration pass over one block item. It opens a block
// for every compound statement, in the same order as lowerItem.
func (a *Analyzer) declareItem(item ast.BlockItem) {
	switch s := item.(type) {
	case *ast.Declaration:
		a.localDeclaration(s)
	case *ast.Compound:
		a.syms.EnterBlock()
		for _, it := range s.Items {
			a.declareItem(it)
		}
		a.syms.ExitBlock()
	case *ast.If:
		a.declareItem(s.Then)
		if s.Else != nil {
			a.declareItem(s.Else)
		}
	case *ast.While:
		a.declareItem(s.Body)
	case *ast.DoWhile:
		a.declareItem(s.Body)
	case *ast.For:
		a.declareItem(s.Body)
	case *ast.Switch:
		a.declareItem(s.Body)
	case *ast.Case:
		a.declareItem(s.Body)
	case *ast.Default:
		a.declareItem(s.Body)
	case *ast.Labeled:
		a.declareItem(s.Body)
	}
}

func (a *Analyzer) jump(l tac.Label) {
	a.emit(tac.Instruction{Dst: tac.LabelAddr(l), Op: tac.OpJump})
}

func (a *Analyzer) label(name string) tac.Label {
	l, ok := a.labels[name]
	if !ok {
		l = a.fn.NewLabel()
		a.labels[name] = l
	}
	return l
}

// lowerItem is the lowering pass over one block item.
func (a *Analyzer) lowerItem(item ast.BlockItem) {
	switch s := item.(type) {
	case *ast.Declaration:
		a.lowerDeclaration(s)

	case *ast.Compound:
		a.syms.EnterBlock()
		for _, it := range s.Items {
			a.lowerItem(it)
		}
		a.syms.ExitBlock()

	case *ast.ExprStmt:
		if s.X != nil && a.check(s.X) {
			a.lower(s.X)
		}

	case *ast.If:
		els := a.fn.NewLabel()
		a.branchFalse(s.Cond, els)
		a.lowerItem(s.Then)
		if s.Else == nil {
			a.fn.SetLabel(els)
			return
		}
		end := a.fn.NewLabel()
		a.jump(end)
		a.fn.SetLabel(els)
		a.lowerItem(s.Else)
		a.fn.SetLabel(end)

	case *ast.While:
		top, end := a.fn.NewLabel(), a.fn.NewLabel()
		a.fn.SetLabel(top)
		a.branchFalse(s.Cond, end)
		a.loopBody(s.Body, end, top)
		a.jump(top)
		a.fn.SetLabel(end)

	case *ast.DoWhile:
		top, cont, end := a.fn.NewLabel(), a.fn.NewLabel(), a.fn.NewLabel()
		a.fn.SetLabel(top)
		a.loopBody(s.Body, end, cont)
		a.fn.SetLabel(cont)
		a.branchFalse(s.Cond, end)
		a.jump(top)
		a.fn.SetLabel(end)

	case *ast.For:
		if s.Init != nil && a.check(s.Init) {
			a.lower(s.Init)
		}
		top, cont, end := a.fn.NewLabel(), a.fn.NewLabel(), a.fn.NewLabel()
		a.fn.SetLabel(top)
		if s.Cond != nil {
			a.branchFalse(s.Cond, end)
		}
		a.loopBody(s.Body, end, cont)
		a.fn.SetLabel(cont)
		if s.Post != nil && a.check(s.Post) {
			a.lower(s.Post)
		}
		a.jump(top)
		a.fn.SetLabel(end)

	case *ast.Switch:
		a.lowerSwitch(s)

	case *ast.Case:
		a.lowerCase(s)

	case *ast.Default:
		if len(a.switches) == 0 {
			a.errorf(s.Pos, "'default' statement not in switch statement")
			a.lowerItem(s.Body)
			return
		}
		sw := a.switches[len(a.switches)-1]
		if sw.hasDef {
			a.errorf(s.Pos, "multiple default labels in one switch")
		}
		sw.hasDef = true
		sw.def = a.fn.NewLabel()
		a.fn.SetLabel(sw.def)
		a.lowerItem(s.Body)

	case *ast.Labeled:
		l := a.label(s.Name)
		if a.labelDef[s.Name] {
			a.errorf(s.Pos, "redefinition of label '%s'", s.Name)
		} else {
			a.labelDef[s.Name] = true
			a.fn.SetLabel(l)
		}
		a.lowerItem(s.Body)

	case *ast.Goto:
		if _, ok := a.gotos[s.Name]; !ok {
			a.gotos[s.Name] = s.Pos
		}
		a.jump(a.label(s.Name))

	case *ast.Continue:
		for i := len(a.loops) - 1; i >= 0; i-- {
			if !a.loops[i].isSwitch {
				a.jump(a.loops[i].cont)
				return
			}
		}
		a.errorf(s.Pos, "'continue' statement not in loop statement")

	case *ast.Break:
		if len(a.loops) == 0 {
			a.errorf(s.Pos, "'break' statement not in loop or switch statement")
			return
		}
		a.jump(a.loops[len(a.loops)-1].brk)

	case *ast.Return:
		a.lowerReturn(s)
	}
}

func (a *Analyzer) loopBody(body ast.Stmt, brk, cont tac.Label) {
	a.loops = append(a.loops, loop{brk: brk, cont: cont})
	a.lowerItem(body)
	a.loops = a.loops[:len(a.loops)-1]
}

// branchFalse jumps to l when cond is zero. A constant condition becomes an
// unconditional jump or nothing.
func (a *Analyzer) branchFalse(cond *ast.Expr, l tac.Label) {
	if !a.check(cond) {
		return
	}
	t := a.valueType(cond)
	if !t.IsScalar() {
		a.errorf(cond.Pos, "statement requires expression of scalar type ('%s' invalid)", t)
		return
	}
	if cond.Op == ast.Constant {
		if !truth(a.constValue(cond)) {
			a.jump(l)
		}
		return
	}
	if !a.noFloat(cond, t) {
		return
	}
	a.lower(cond)
	a.emit(tac.Instruction{Dst: tac.LabelAddr(l), Op: tac.OpJumpEqual, A: a.rvalue(cond), B: a.intConst(0), Size: a.width(cond.Pos, t), Signed: !t.IsUnsigned()})
}

// lowerSwitch lays out
//
//	t = x; goto dispatch
//	body
//	goto end
//	dispatch: if t == c1 goto case1 ... goto default (or end)
//	end:
func (a *Analyzer) lowerSwitch(s *ast.Switch) {
	dispatch, end := a.fn.NewLabel(), a.fn.NewLabel()
	sw := &switchCtx{typ: ctypes.IntType}
	var v tac.Address
	if a.check(s.X) {
		xt := a.valueType(s.X)
		if !xt.IsIntegral() {
			a.errorf(s.X.Pos, "statement requires expression of integer type ('%s' invalid)", xt)
		} else {
			sw.typ = ctypes.Promote(xt)
			a.lower(s.X)
			x := a.convert(s.X.Pos, a.rvalue(s.X), xt, sw.typ)
			v = a.fn.NewTemp(sw.typ)
			a.emit(tac.Instruction{Dst: v, Op: tac.OpAssign, A: x, Size: a.width(s.Pos, sw.typ)})
		}
	}
	a.jump(dispatch)

	a.switches = append(a.switches, sw)
	a.loops = append(a.loops, loop{brk: end, isSwitch: true})
	a.lowerItem(s.Body)
	a.loops = a.loops[:len(a.loops)-1]
	a.switches = a.switches[:len(a.switches)-1]
	a.jump(end)

	a.fn.SetLabel(dispatch)
	if !v.IsNone() {
		size := a.width(s.Pos, sw.typ)
		for _, c := range sw.cases {
			a.emit(tac.Instruction{Dst: tac.LabelAddr(c.label), Op: tac.OpJumpEqual, A: v, B: a.intConst(c.value), Size: size, Signed: !sw.typ.IsUnsigned()})
		}
	}
	if sw.hasDef {
		a.jump(sw.def)
	}
	a.fn.SetLabel(end)
}

func (a *Analyzer) lowerCase(s *ast.Case) {
	n, ok := a.constantInt(s.Value)
	if len(a.switches) == 0 {
		a.errorf(s.Pos, "'case' statement not in switch statement")
		a.lowerItem(s.Body)
		return
	}
	sw := a.switches[len(a.switches)-1]
	if ok {
		n = canon(n, sw.typ)
		for _, c := range sw.cases {
			if c.value == n {
				a.errorf(s.Value.Pos, "duplicate case value '%d'", int64(n))
				ok = false
				break
			}
		}
	}
	l := a.fn.NewLabel()
	a.fn.SetLabel(l)
	if ok {
		sw.cases = append(sw.cases, switchCase{value: n, label: l})
	}
	a.lowerItem(s.Body)
}

func (a *Analyzer) lowerReturn(s *ast.Return) {
	rt := a.ret
	if s.X == nil {
		if !rt.IsVoid() {
			a.warnf(s.Pos, "non-void function '%s' should return a value", a.fn.Sym.Name)
		}
		a.emit(tac.Instruction{Op: tac.OpReturn})
		return
	}
	if !a.check(s.X) {
		return
	}
	xt := a.valueType(s.X)
	switch {
	case rt.IsVoid() && !xt.IsVoid():
		a.errorf(s.Pos, "void function '%s' should not return a value", a.fn.Sym.Name)
		return
	case rt.IsVoid():
		a.lower(s.X)
		a.emit(tac.Instruction{Op: tac.OpReturn})
		return
	case rt.IsFloating():
		a.errorf(s.Pos, "returning '%s' is not supported", rt)
		return
	case !a.assignable(rt, s.X):
		a.errorf(s.X.Pos, "returning '%s' from a function with incompatible result type '%s'", xt, rt)
		return
	}
	a.lower(s.X)
	v := a.convert(s.X.Pos, a.rvalue(s.X), xt, rt)
	a.emit(tac.Instruction{Op: tac.OpReturn, A: v, Size: a.width(s.Pos, rt)})
}
