// Package sema resolves declarations, type-checks expressions and lowers
// function bodies to three-address code.
//
// Each function body is walked twice. The declaration pass resolves and
// inserts every block-scope declaration; the lowering pass re-enters the same
// blocks, reveals declarations in source order and emits TAC for every
// statement. Expressions are handled by two bottom-up traversals: type
// synthesis with constant folding, then IR emission.
package sema

import (
	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/diag"
	"github.com/jgiron42/cc1/pkg/symtab"
	"github.com/jgiron42/cc1/pkg/tac"
)

// exprInfo is what the analyzer knows about one expression node.
type exprInfo struct {
	typ *ctypes.CType
	bad bool

	sym *symtab.Ordinary
	str *symtab.Constant
	// common is the type both operands of a comparison are converted to.
	common *ctypes.CType
	// elemSize divides the difference of two pointers.
	elemSize int

	addr   tac.Address
	result tac.Address
	short  tac.Label
	end    tac.Label
}

type loop struct {
	brk, cont tac.Label
	// isSwitch marks a switch, which only accepts break.
	isSwitch bool
}

type switchCase struct {
	value uint64
	label tac.Label
}

type switchCtx struct {
	typ    *ctypes.CType
	cases  []switchCase
	def    tac.Label
	hasDef bool
}

// Analyzer carries the state of one translation unit.
type Analyzer struct {
	syms  *symtab.Table
	diags *diag.List
	prog  *tac.Program

	info map[*ast.Expr]*exprInfo

	// State of the function being lowered.
	fn       *tac.Function
	ret      *ctypes.CType
	declared map[*ast.InitDeclarator]*symtab.Ordinary
	loops    []loop
	switches []*switchCtx
	labels   map[string]tac.Label
	labelDef map[string]bool
	gotos    map[string]ast.Pos

	defined map[string]bool
	anon    int
	unsized map[ast.Pos]bool
}

func New(syms *symtab.Table, diags *diag.List) *Analyzer {
	return &Analyzer{
		syms:     syms,
		diags:    diags,
		prog:     &tac.Program{},
		info:     make(map[*ast.Expr]*exprInfo),
		declared: make(map[*ast.InitDeclarator]*symtab.Ordinary),
		defined:  make(map[string]bool),
		unsized:  make(map[ast.Pos]bool),
	}
}

// Analyze processes a whole translation unit and returns the IR of every
// function definition. Errors are recorded in the diagnostic list.
func Analyze(tu *ast.TranslationUnit, syms *symtab.Table, diags *diag.List) *tac.Program {
	a := New(syms, diags)
	for _, ext := range tu.Decls {
		switch d := ext.(type) {
		case *ast.Declaration:
			a.declaration(d)
		case *ast.FunctionDef:
			a.functionDef(d)
		}
	}
	return a.prog
}

func (a *Analyzer) Program() *tac.Program { return a.prog }

func (a *Analyzer) errorf(pos ast.Pos, format string, args ...any) {
	a.diags.Errorf(pos, format, args...)
}

func (a *Analyzer) warnf(pos ast.Pos, format string, args ...any) {
	a.diags.Warnf(pos, format, args...)
}

func (a *Analyzer) infoOf(e *ast.Expr) *exprInfo {
	in, ok := a.info[e]
	if !ok {
		in = &exprInfo{}
		a.info[e] = in
	}
	return in
}

// TypeOf returns the synthesized type of an analyzed expression.
func (a *Analyzer) TypeOf(e *ast.Expr) *ctypes.CType {
	if in, ok := a.info[e]; ok {
		return in.typ
	}
	return nil
}

func (a *Analyzer) sizeOf(pos ast.Pos, t *ctypes.CType) (int, bool) {
	n, err := ctypes.SizeOf(t)
	if err != nil {
		a.errorf(pos, "%v", err)
		return 0, false
	}
	return n, true
}
