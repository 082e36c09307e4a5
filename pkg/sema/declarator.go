package sema

import (
	"github.com/samber/lo"

	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
)

type param struct {
	name string
	typ  *ctypes.CType
	pos  ast.Pos
}

// resolved is the outcome of resolving one declarator.
type resolved struct {
	name string
	pos  ast.Pos
	typ  *ctypes.CType
	// params and idents describe the function layer closest to the name,
	// which is the one a function definition binds.
	params  []param
	idents  []string
	hasFunc bool
}

// declarator applies d to base.
//
// The walk goes from the outermost syntax inwards while the type is built
// from the base outwards:
//
//	int (*(a[4]))(int)
//
//	int                              base
//	function(int) returning int      outer direct declarator is (...)(int)
//	pointer to function(...)         nested declarator's '*'
//	array[4] of pointer to ...       innermost a[4]
//
// Nested declarators are followed with the accumulated type as their base,
// so arbitrary nesting needs no recursion.
func (a *Analyzer) declarator(base *ctypes.CType, d *ast.Declarator) (resolved, bool) {
	r := resolved{typ: base, pos: d.Pos}
	ok := true
	for d != nil {
		for _, p := range d.Pointers {
			r.typ = ctypes.PointerTo(r.typ).WithQual(p.Qual)
		}
		dd := d.Direct
		d = nil
		for dd != nil {
			switch dd.Kind {
			case ast.DirectEmpty:
				dd = nil
			case ast.DirectIdent:
				r.name, r.pos = dd.Name, dd.Pos
				dd = nil
			case ast.DirectNested:
				d = dd.Nested
				dd = nil
			case ast.DirectArray:
				if !a.arrayLayer(&r, dd) {
					ok = false
				}
				dd = dd.Inner
			case ast.DirectFunction:
				if !a.functionLayer(&r, dd) {
					ok = false
				}
				dd = dd.Inner
			}
		}
	}
	return r, ok
}

func (a *Analyzer) arrayLayer(r *resolved, dd *ast.Direct) bool {
	switch {
	case r.typ.IsFunction():
		a.errorf(dd.Pos, "declaration of array of functions")
		return false
	case r.typ.IsVoid():
		a.errorf(dd.Pos, "declaration of array of void")
		return false
	case r.typ.IsArray() && !r.typ.HasLen:
		a.errorf(dd.Pos, "array has incomplete element type")
		return false
	}
	if dd.Size == nil {
		r.typ = ctypes.IncompleteArrayOf(r.typ)
		return true
	}
	n, ok := a.constantInt(dd.Size)
	if !ok {
		r.typ = ctypes.IncompleteArrayOf(r.typ)
		return false
	}
	if int64(n) < 0 {
		a.errorf(dd.Size.Pos, "array size is negative")
		n = 0
	}
	r.typ = ctypes.ArrayOf(r.typ, int(n))
	return true
}

func (a *Analyzer) functionLayer(r *resolved, dd *ast.Direct) bool {
	ok := true
	if r.typ.IsFunction() || r.typ.IsArray() {
		a.errorf(dd.Pos, "function cannot return %s", r.typ)
		ok = false
	}
	if dd.Params != nil && len(dd.Idents) > 0 {
		panic("sema: function declarator with both parameter types and identifiers")
	}
	r.hasFunc = true
	r.idents = dd.Idents
	r.params = nil
	if dd.Params == nil {
		r.typ = ctypes.FunctionOf(r.typ, nil, false)
		return ok
	}

	params, pok := a.parameters(dd.Params)
	r.params = params
	types := lo.Map(params, func(p param, _ int) *ctypes.CType { return p.typ })
	r.typ = ctypes.FunctionOf(r.typ, types, dd.Params.Variadic)
	return ok && pok
}

// parameters resolves a parameter-type-list. Array and function parameters
// are adjusted to pointers; a sole unnamed void stays as the marker for an
// empty list.
func (a *Analyzer) parameters(pl *ast.ParamList) ([]param, bool) {
	ok := true
	out := make([]param, 0, len(pl.Params))
	for i, pd := range pl.Params {
		base, storage := a.specifiers(pd.Specs)
		if storage != symtab.Undefined && storage != symtab.Register {
			a.errorf(pd.Pos, "invalid storage class for parameter")
			ok = false
		}
		p := param{typ: base, pos: pd.Pos}
		if pd.Decl != nil {
			r, rok := a.declarator(base, pd.Decl)
			ok = ok && rok
			p.name, p.typ, p.pos = r.name, r.typ, r.pos
		}
		switch {
		case p.typ.IsArray():
			p.typ = ctypes.PointerTo(p.typ.Elem).WithQual(p.typ.Qual)
		case p.typ.IsFunction():
			p.typ = ctypes.PointerTo(p.typ)
		case p.typ.IsVoid():
			if len(pl.Params) != 1 || i != 0 || p.name != "" || pl.Variadic || p.typ.Qual != 0 {
				a.errorf(p.pos, "'void' must be the only parameter")
				ok = false
			}
		}
		out = append(out, p)
	}
	return out, ok
}

// constantInt evaluates an integer constant expression.
func (a *Analyzer) constantInt(e *ast.Expr) (uint64, bool) {
	if !a.check(e) {
		return 0, false
	}
	in := a.info[e]
	if e.Op != ast.Constant || !in.typ.IsIntegral() {
		a.errorf(e.Pos, "expression is not an integer constant expression")
		return 0, false
	}
	return e.Lit.Int, true
}
