package sema

import (
	"sort"

	"github.com/samber/lo"

	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
	"github.com/jgiron42/cc1/pkg/tac"
)

// declaration handles a file-scope declaration.
func (a *Analyzer) declaration(d *ast.Declaration) {
	base, storage := a.specifiers(d.Specs)
	if storage == symtab.Auto || storage == symtab.Register {
		a.errorf(d.Specs.Pos, "illegal storage class on file-scoped variable")
		storage = symtab.Undefined
	}
	a.emptyDeclaration(d)
	for _, id := range d.Inits {
		r, ok := a.declarator(base, id.Decl)
		if r.name == "" {
			a.errorf(r.pos, "declarator requires an identifier")
			continue
		}
		switch {
		case storage == symtab.Typedef:
			a.typedef(r, id)
		case r.typ.IsFunction():
			a.fileFunction(r, storage, id)
		default:
			a.fileObject(r, storage, id, ok)
		}
	}
}

func (a *Analyzer) emptyDeclaration(d *ast.Declaration) {
	if len(d.Inits) > 0 {
		return
	}
	if _, ok := lo.Find(d.Specs.Specs, func(s *ast.TypeSpec) bool { return s.Kind >= ast.SpecStruct && s.Kind < ast.SpecTypedefName }); !ok {
		a.warnf(d.Pos, "declaration does not declare anything")
	}
}

func (a *Analyzer) typedef(r resolved, id *ast.InitDeclarator) {
	if id.Init != nil {
		a.errorf(id.Init.Pos, "illegal initializer: '%s' is a typedef", r.name)
	}
	o := &symtab.Ordinary{Storage: symtab.Typedef, Type: r.typ}
	if err := a.syms.InsertOrdinary(r.name, o); err != nil {
		a.errorf(r.pos, "redefinition of '%s'", r.name)
		return
	}
	a.declared[id] = o
}

// fileFunction declares a function at file scope, merging compatible
// redeclarations.
func (a *Analyzer) fileFunction(r resolved, storage symtab.Storage, id *ast.InitDeclarator) *symtab.Ordinary {
	if id != nil && id.Init != nil {
		a.errorf(id.Init.Pos, "illegal initializer: '%s' is a function", r.name)
	}
	if storage != symtab.Static {
		storage = symtab.Extern
	}
	if prev := a.syms.Declared(r.name); prev != nil {
		if !prev.Type.IsFunction() || !ctypes.Compatible(prev.Type, r.typ) {
			a.errorf(r.pos, "conflicting types for '%s'", r.name)
			return nil
		}
		if r.typ.HasPrototype() || !prev.Type.HasPrototype() {
			prev.Type = r.typ
		}
		return prev
	}
	o := &symtab.Ordinary{Storage: storage, Type: r.typ}
	if err := a.syms.InsertFunction(r.name, o); err != nil {
		a.errorf(r.pos, "%v", err)
		return nil
	}
	return o
}

func (a *Analyzer) fileObject(r resolved, storage symtab.Storage, id *ast.InitDeclarator, ok bool) {
	if r.typ.IsVoid() {
		a.errorf(r.pos, "variable has incomplete type 'void'")
		return
	}
	if storage == symtab.Undefined {
		storage = symtab.Global
	}
	var init *symtab.Constant
	if id.Init != nil {
		if storage == symtab.Extern {
			a.warnf(id.Init.Pos, "'extern' variable has an initializer")
			storage = symtab.Global
		}
		if initializable(r.typ) {
			init = a.constantInitializer(&r, id.Init)
		}
	}
	if ok && storage != symtab.Extern {
		if _, err := ctypes.SizeOf(r.typ); err != nil {
			a.errorf(r.pos, "variable '%s' has incomplete type '%s'", r.name, r.typ)
		}
	}

	if prev := a.syms.Declared(r.name); prev != nil {
		switch {
		case prev.Type.IsFunction() || prev.Storage == symtab.Typedef || !ctypes.Compatible(prev.Type.Unqualified(), r.typ.Unqualified()):
			a.errorf(r.pos, "redefinition of '%s' with a different type", r.name)
		case init != nil && prev.Init != nil:
			a.errorf(r.pos, "redefinition of '%s'", r.name)
		default:
			if prev.Type.IsArray() && !prev.Type.HasLen {
				prev.Type = r.typ
			}
			if init != nil {
				prev.Init = init
			}
			if prev.Storage == symtab.Extern && storage != symtab.Extern {
				a.syms.Redefine(prev, storage)
			}
		}
		a.declared[id] = prev
		return
	}
	o := &symtab.Ordinary{Storage: storage, Type: r.typ, Init: init}
	if err := a.syms.InsertOrdinary(r.name, o); err != nil {
		a.errorf(r.pos, "%v", err)
		return
	}
	a.declared[id] = o
}

// initializable reports whether an object of type t can take a constant
// initializer: t has a layout, or it is an array whose length the
// initializer supplies.
func initializable(t *ctypes.CType) bool {
	return t.IsArray() && !t.HasLen || sized(t)
}

// constantInitializer evaluates the initializer of an object with static
// storage duration. An incomplete char array takes the length of its string.
func (a *Analyzer) constantInitializer(r *resolved, init *ast.Initializer) *symtab.Constant {
	if init.List != nil {
		a.errorf(init.Pos, "initializer lists are not supported")
		return nil
	}
	e := init.Expr
	if !a.check(e) {
		return nil
	}
	in := a.info[e]
	if e.Op == ast.StringLit {
		switch {
		case r.typ.IsArray() && r.typ.Elem.Kind == ctypes.KindPlain && r.typ.Elem.Base == ctypes.Char:
			if !r.typ.HasLen {
				r.typ = ctypes.ArrayOf(r.typ.Elem, len(e.Str)+1).WithQual(r.typ.Qual)
			} else if r.typ.Len < len(e.Str) {
				a.warnf(e.Pos, "initializer-string for char array is too long")
			}
			return in.str
		case r.typ.IsPointer() && a.assignable(r.typ, e):
			return in.str
		}
	}
	if r.typ.IsAggregate() {
		a.errorf(init.Pos, "initialization of '%s' requires an initializer list, which is not supported", r.typ)
		return nil
	}
	if e.Op != ast.Constant {
		a.errorf(e.Pos, "initializer element is not a compile-time constant")
		return nil
	}
	if !a.assignable(r.typ.AsRvalue(), e) {
		a.errorf(e.Pos, "initializing '%s' with an expression of incompatible type '%s'", r.typ, in.typ)
		return nil
	}
	to := r.typ
	if to.IsPointer() {
		to = ctypes.ULongType
	}
	return a.poolConstant(convertValue(a.constValue(e), in.typ, to), to)
}

// localDeclaration resolves and inserts a block-scope declaration during the
// declaration pass.
func (a *Analyzer) localDeclaration(d *ast.Declaration) {
	base, storage := a.specifiers(d.Specs)
	a.emptyDeclaration(d)
	for _, id := range d.Inits {
		r, ok := a.declarator(base, id.Decl)
		if r.name == "" {
			a.errorf(r.pos, "declarator requires an identifier")
			continue
		}
		if storage == symtab.Typedef {
			a.typedef(r, id)
			continue
		}

		st := storage
		if r.typ.IsFunction() {
			if st != symtab.Undefined && st != symtab.Extern {
				a.errorf(r.pos, "function '%s' declared in block scope cannot have '%s' storage class", r.name, st)
			}
			st = symtab.Extern
			if id.Init != nil {
				a.errorf(id.Init.Pos, "illegal initializer: '%s' is a function", r.name)
			}
		}

		o := &symtab.Ordinary{Storage: st, Type: r.typ}
		switch {
		case r.typ.IsFunction():
		case r.typ.IsVoid():
			a.errorf(r.pos, "variable has incomplete type 'void'")
			continue
		case st == symtab.Extern:
			if id.Init != nil {
				a.errorf(id.Init.Pos, "declaration of block scope identifier with linkage cannot have an initializer")
			}
		case st == symtab.Static:
			if id.Init != nil && initializable(r.typ) {
				o.Init = a.constantInitializer(&r, id.Init)
				o.Type = r.typ
			}
			if _, err := ctypes.SizeOf(o.Type); err != nil && ok {
				a.errorf(r.pos, "variable '%s' has incomplete type '%s'", r.name, o.Type)
				continue
			}
		default:
			if id.Init != nil && id.Init.List != nil {
				a.errorf(id.Init.Pos, "initializer lists are not supported")
			} else if id.Init != nil && !r.typ.IsScalar() {
				a.errorf(id.Init.Pos, "initialization of '%s' is not supported", r.typ)
			}
		}
		if !ok {
			continue
		}
		if err := a.syms.InsertOrdinary(r.name, o); err != nil {
			if a.syms.Declared(r.name) != nil {
				a.errorf(r.pos, "redefinition of '%s'", r.name)
			} else {
				a.errorf(r.pos, "variable '%s' has incomplete type '%s'", r.name, r.typ)
			}
			continue
		}
		a.declared[id] = o
	}
}

// lowerDeclaration makes the entries of d visible and emits the
// initialization of automatic objects.
func (a *Analyzer) lowerDeclaration(d *ast.Declaration) {
	for _, id := range d.Inits {
		o := a.declared[id]
		if o == nil {
			continue
		}
		a.syms.Reveal(o)
		if !o.IsLocal() || id.Init == nil || id.Init.Expr == nil || !o.Type.IsScalar() {
			continue
		}
		e := id.Init.Expr
		if !a.check(e) {
			continue
		}
		t := o.Type.AsRvalue()
		if !a.assignable(t, e) {
			a.errorf(e.Pos, "initializing '%s' with an expression of incompatible type '%s'", t, a.valueType(e))
			continue
		}
		a.lower(e)
		v := a.convert(e.Pos, a.rvalue(e), a.valueType(e), t)
		a.emit(tac.Instruction{Dst: tac.Sym(o), Op: tac.OpAssign, A: v, Size: a.width(e.Pos, t)})
	}
}

// functionDef analyzes a function definition and appends its IR to the
// program.
func (a *Analyzer) functionDef(fd *ast.FunctionDef) {
	errs := a.diags.ErrorCount()
	base, storage := a.specifiers(fd.Specs)
	r, _ := a.declarator(base, fd.Decl)
	if !r.hasFunc || !r.typ.IsFunction() {
		a.errorf(r.pos, "function definition declares a non-function")
		return
	}
	if storage != symtab.Undefined && storage != symtab.Extern && storage != symtab.Static {
		a.errorf(fd.Specs.Pos, "illegal storage class on function")
		storage = symtab.Undefined
	}
	ret := r.typ.Elem
	if !ret.IsVoid() && !ret.IsScalar() {
		a.errorf(r.pos, "function returning '%s' is not supported", ret)
	}

	params := r.params
	if len(r.idents) > 0 || len(fd.KRDecls) > 0 {
		params = a.identifierList(r, fd.KRDecls)
		r.typ = ctypes.FunctionOf(ret, nil, false)
	}

	if a.defined[r.name] {
		a.errorf(r.pos, "redefinition of '%s'", r.name)
	}
	o := a.fileFunction(r, storage, nil)
	a.defined[r.name] = true

	fn := &symtab.Function{
		Name:   r.name,
		Type:   r.typ,
		Static: storage == symtab.Static || (o != nil && o.Storage == symtab.Static),
	}
	a.fn = tac.NewFunction(fn)
	a.ret = ret
	a.loops, a.switches = nil, nil
	a.labels = make(map[string]tac.Label)
	a.labelDef = make(map[string]bool)
	a.gotos = make(map[string]ast.Pos)

	mark := a.syms.Mark()
	a.syms.EnterBlock()
	a.syms.EnterPrototype()
	for _, p := range params {
		if p.typ.IsVoid() {
			continue
		}
		if p.name == "" {
			a.errorf(p.pos, "parameter name omitted")
			continue
		}
		if _, err := ctypes.SizeOf(p.typ); err != nil {
			a.errorf(p.pos, "parameter '%s' has incomplete type '%s'", p.name, p.typ)
		} else if !p.typ.IsScalar() || p.typ.IsFloating() {
			a.errorf(p.pos, "parameter '%s' of type '%s' is not supported", p.name, p.typ)
		}
		po := &symtab.Ordinary{Type: p.typ}
		if err := a.syms.InsertOrdinary(p.name, po); err != nil {
			a.errorf(p.pos, "redefinition of parameter '%s'", p.name)
			continue
		}
		fn.Params = append(fn.Params, po)
	}
	a.syms.ExitPrototype()
	a.syms.EnterFunction(fn)
	seq := a.syms.Seq()

	for _, item := range fd.Body.Items {
		a.declareItem(item)
	}

	a.syms.ExitBlock()
	a.syms.Rewind(mark)
	a.syms.EnterBlock()
	a.syms.LimitVisibility(seq)

	for _, item := range fd.Body.Items {
		a.lowerItem(item)
	}

	undefined := lo.Keys(a.gotos)
	sort.Strings(undefined)
	for _, name := range undefined {
		if !a.labelDef[name] {
			a.errorf(a.gotos[name], "use of undeclared label '%s'", name)
		}
	}
	if a.diags.ErrorCount() == errs {
		if err := a.fn.Validate(); err != nil {
			a.errorf(fd.Pos, "internal error: %v", err)
		}
	}

	a.syms.ClearVisibility()
	a.syms.ExitBlock()
	a.syms.ExitFunction()

	fn.Failed = a.diags.ErrorCount() > errs
	a.prog.Add(a.fn)
	a.fn = nil
}

// identifierList resolves the parameters of an identifier-list definition
// from its declaration list. Undeclared parameters default to int.
func (a *Analyzer) identifierList(r resolved, decls []*ast.Declaration) []param {
	types := make(map[string]param)
	for _, d := range decls {
		base, storage := a.specifiers(d.Specs)
		if storage != symtab.Undefined && storage != symtab.Register {
			a.errorf(d.Specs.Pos, "invalid storage class for parameter")
		}
		for _, id := range d.Inits {
			pr, _ := a.declarator(base, id.Decl)
			if !lo.Contains(r.idents, pr.name) {
				a.errorf(pr.pos, "parameter named '%s' is missing", pr.name)
				continue
			}
			if _, dup := types[pr.name]; dup {
				a.errorf(pr.pos, "redefinition of parameter '%s'", pr.name)
				continue
			}
			if id.Init != nil {
				a.errorf(id.Init.Pos, "parameter '%s' cannot have an initializer", pr.name)
			}
			t := pr.typ
			switch {
			case t.IsArray():
				t = ctypes.PointerTo(t.Elem).WithQual(t.Qual)
			case t.IsFunction():
				t = ctypes.PointerTo(t)
			}
			types[pr.name] = param{name: pr.name, typ: t, pos: pr.pos}
		}
	}
	return lo.Map(r.idents, func(name string, _ int) param {
		if p, ok := types[name]; ok {
			return p
		}
		a.warnf(r.pos, "type of '%s' defaults to 'int'", name)
		return param{name: name, typ: ctypes.IntType, pos: r.pos}
	})
}
