package tac

import (
	"strings"
	"testing"

	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
)

func TestLastUse(t *testing.T) {
	syms := symtab.New()
	fn := NewFunction(&symtab.Function{Name: "f", Label: "f"})
	one := Const(syms.NewConstant(symtab.IntValue(1)))

	a := fn.NewTemp(ctypes.IntType)
	b := fn.NewTemp(ctypes.IntType)
	fn.Emit(Instruction{Dst: a, Op: OpAssign, A: one, Size: 4})
	fn.Emit(Instruction{Dst: b, Op: OpAdd, A: a, B: one, Size: 4, Signed: true})
	fn.Emit(Instruction{Op: OpReturn, A: b, Size: 4})

	if fn.LastUse[a.Temp] != 1 {
		t.Errorf("LastUse[t0] = %d, want 1", fn.LastUse[a.Temp])
	}
	if fn.LastUse[b.Temp] != 2 {
		t.Errorf("LastUse[t1] = %d, want 2", fn.LastUse[b.Temp])
	}
	if fn.Temps[a.Temp].Lvalue {
		t.Errorf("temporaries must hold rvalues")
	}
}

func TestValidate(t *testing.T) {
	fn := NewFunction(&symtab.Function{Name: "f", Label: "f"})
	l := fn.NewLabel()
	fn.Emit(Instruction{Dst: LabelAddr(l), Op: OpJump})
	if err := fn.Validate(); err == nil || !strings.Contains(err.Error(), "unresolved label L0") {
		t.Errorf("Validate() = %v, want an unresolved label error", err)
	}
	fn.SetLabel(l)
	if err := fn.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	if got := fn.LabelsAt(1); len(got) != 1 || got[0] != l {
		t.Errorf("LabelsAt(1) = %v, want [L0]", got)
	}
}

func TestString(t *testing.T) {
	syms := symtab.New()
	fn := NewFunction(&symtab.Function{Name: "f", Label: "f"})
	x := &symtab.Ordinary{Name: "x", Label: "x", Type: ctypes.IntType}
	zero := Const(syms.NewConstant(symtab.IntValue(0)))

	end := fn.NewLabel()
	d := fn.NewTemp(ctypes.IntType)
	fn.Emit(Instruction{Dst: LabelAddr(end), Op: OpJumpLess, A: Sym(x), B: zero, Size: 4, Signed: true})
	fn.Emit(Instruction{Dst: d, Op: OpNeg, A: Sym(x), Size: 4, Signed: true})
	fn.Emit(Instruction{Dst: Sym(x), Op: OpAssign, A: d, Size: 4})
	fn.SetLabel(end)
	fn.Emit(Instruction{Op: OpReturn, A: Sym(x), Size: 4})

	want := "f:\n" +
		"    0  if x <4.s 0 goto L0\n" +
		"    1  t0 = neg4.s x\n" +
		"    2  x =4 t0\n" +
		"L0:\n" +
		"    3  return4 x\n"
	if got := fn.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}
