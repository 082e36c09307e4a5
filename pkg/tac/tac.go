// Package tac defines the three-address intermediate representation produced
// by the analyzer and consumed by the code generator.
//
// Each instruction has at most one destination and two operands:
//
//	t3 = t1 + t2      (Dst=t3, Op=OpAdd, A=t1, B=t2)
//	if a < b goto L4  (Dst=L4, Op=OpJumpLess, A=a, B=b)
//
// Temporaries are numbered per function and never reused.
package tac

import (
	"fmt"
	"strings"

	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
)

type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShiftLeft
	OpShiftRight
	OpAnd
	OpXor
	OpOr

	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	OpEqual
	OpNotEqual

	OpAssign
	// OpConvert copies A into Dst, extending or truncating from the size of A
	// to Size. Signed selects sign extension.
	OpConvert
	OpNeg
	OpNot
	OpLogicalNot
	// OpDeref makes Dst designate the object A points to.
	OpDeref
	OpAddress

	OpJump
	OpJumpEqual
	OpJumpNotEqual
	OpJumpLess
	OpJumpGreater
	OpJumpLessEqual
	OpJumpGreaterEqual

	OpReturn
	OpParam
	OpCall
)

var opNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpShiftLeft: "<<", OpShiftRight: ">>", OpAnd: "&", OpXor: "^", OpOr: "|",
	OpLess: "<", OpGreater: ">", OpLessEqual: "<=", OpGreaterEqual: ">=",
	OpEqual: "==", OpNotEqual: "!=",
	OpAssign: "=", OpConvert: "convert", OpNeg: "neg", OpNot: "~", OpLogicalNot: "!",
	OpDeref: "*", OpAddress: "&",
	OpJump: "goto", OpJumpEqual: "==", OpJumpNotEqual: "!=", OpJumpLess: "<",
	OpJumpGreater: ">", OpJumpLessEqual: "<=", OpJumpGreaterEqual: ">=",
	OpReturn: "return", OpParam: "param", OpCall: "call",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

func (o Op) IsBinary() bool { return o <= OpNotEqual }

func (o Op) IsComparison() bool { return o >= OpLess && o <= OpNotEqual }

func (o Op) IsJump() bool { return o >= OpJump && o <= OpJumpGreaterEqual }

// Label is a handle into the label table of one Function.
type Label int

type AddrKind int

const (
	AddrNone AddrKind = iota
	AddrTemp
	AddrSymbol
	AddrConstant
	AddrLabel
	AddrName
)

// Address is an instruction operand. It is comparable and may be used as a
// map key.
type Address struct {
	Kind  AddrKind
	Temp  int
	Sym   *symtab.Ordinary
	Const *symtab.Constant
	Label Label
	Name  string
}

var None = Address{}

func Temp(id int) Address              { return Address{Kind: AddrTemp, Temp: id} }
func Sym(o *symtab.Ordinary) Address   { return Address{Kind: AddrSymbol, Sym: o} }
func Const(c *symtab.Constant) Address { return Address{Kind: AddrConstant, Const: c} }
func LabelAddr(l Label) Address        { return Address{Kind: AddrLabel, Label: l} }
func Name(s string) Address            { return Address{Kind: AddrName, Name: s} }

func (a Address) IsNone() bool { return a.Kind == AddrNone }
func (a Address) IsTemp() bool { return a.Kind == AddrTemp }

func (a Address) String() string {
	switch a.Kind {
	case AddrTemp:
		return fmt.Sprintf("t%d", a.Temp)
	case AddrSymbol:
		return a.Sym.Label
	case AddrConstant:
		return a.Const.String()
	case AddrLabel:
		return fmt.Sprintf("L%d", a.Label)
	case AddrName:
		return a.Name
	}
	return "_"
}

type Instruction struct {
	Dst    Address
	Op     Op
	A, B   Address
	Size   int
	Signed bool
}

func (in Instruction) String() string {
	sign := "u"
	if in.Signed {
		sign = "s"
	}
	switch {
	case in.Op.IsBinary():
		return fmt.Sprintf("%s = %s %s%d.%s %s", in.Dst, in.A, in.Op, in.Size, sign, in.B)
	case in.Op == OpJump:
		return fmt.Sprintf("goto %s", in.Dst)
	case in.Op.IsJump():
		return fmt.Sprintf("if %s %s%d.%s %s goto %s", in.A, in.Op, in.Size, sign, in.B, in.Dst)
	case in.Op == OpAssign:
		return fmt.Sprintf("%s =%d %s", in.Dst, in.Size, in.A)
	case in.Op == OpReturn, in.Op == OpParam:
		return fmt.Sprintf("%s%d %s", in.Op, in.Size, in.A)
	case in.Op == OpCall:
		return fmt.Sprintf("%s = call %s", in.Dst, in.A)
	}
	return fmt.Sprintf("%s = %s%d.%s %s", in.Dst, in.Op, in.Size, sign, in.A)
}

const unresolved = -1

// Function is the IR unit of one function definition.
type Function struct {
	Sym  *symtab.Function
	Code []Instruction
	// Temps holds the type of each temporary, indexed by id.
	Temps []*ctypes.CType
	// LastUse holds, per temporary, the index of the last instruction that
	// references it.
	LastUse []int
	// Labels maps a label to the index of the instruction it precedes.
	Labels []int
}

func NewFunction(fn *symtab.Function) *Function {
	return &Function{Sym: fn}
}

func (f *Function) NewTemp(t *ctypes.CType) Address {
	f.Temps = append(f.Temps, t.AsRvalue())
	f.LastUse = append(f.LastUse, len(f.Code))
	return Temp(len(f.Temps) - 1)
}

func (f *Function) NewLabel() Label {
	f.Labels = append(f.Labels, unresolved)
	return Label(len(f.Labels) - 1)
}

// SetLabel resolves l to the next instruction.
func (f *Function) SetLabel(l Label) {
	f.Labels[l] = len(f.Code)
}

func (f *Function) Resolved(l Label) bool { return f.Labels[l] != unresolved }

func (f *Function) Emit(in Instruction) {
	idx := len(f.Code)
	for _, a := range [...]Address{in.Dst, in.A, in.B} {
		if a.IsTemp() {
			f.LastUse[a.Temp] = idx
		}
	}
	f.Code = append(f.Code, in)
}

// Validate checks that every jump targets a resolved label.
func (f *Function) Validate() error {
	for i, in := range f.Code {
		if !in.Op.IsJump() {
			continue
		}
		if in.Dst.Kind != AddrLabel {
			return fmt.Errorf("tac: %s: instruction %d jumps to %s", f.Sym.Name, i, in.Dst)
		}
		if !f.Resolved(in.Dst.Label) {
			return fmt.Errorf("tac: %s: instruction %d jumps to unresolved label L%d", f.Sym.Name, i, in.Dst.Label)
		}
	}
	return nil
}

// LabelsAt returns the labels resolved to instruction index i, in label order.
func (f *Function) LabelsAt(i int) []Label {
	var out []Label
	for l, at := range f.Labels {
		if at == i {
			out = append(out, Label(l))
		}
	}
	return out
}

func (f *Function) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", f.Sym.Name)
	for i, in := range f.Code {
		for _, l := range f.LabelsAt(i) {
			fmt.Fprintf(&b, "L%d:\n", l)
		}
		fmt.Fprintf(&b, "  %3d  %s\n", i, in)
	}
	for _, l := range f.LabelsAt(len(f.Code)) {
		fmt.Fprintf(&b, "L%d:\n", l)
	}
	return b.String()
}

// Program collects the IR units of a translation unit in definition order.
type Program struct {
	Units []*Function
	index map[*symtab.Function]*Function
}

func (p *Program) Add(f *Function) {
	if p.index == nil {
		p.index = make(map[*symtab.Function]*Function)
	}
	p.Units = append(p.Units, f)
	p.index[f.Sym] = f
}

func (p *Program) Lookup(fn *symtab.Function) *Function {
	return p.index[fn]
}
