package codegen

import (
	"fmt"
	"math"
)

type locKind int

const (
	locRegister locKind = iota + 1
	// locFrame is a slot addressed from the frame base.
	locFrame
	// locGlobal is a label addressed relative to rip.
	locGlobal
	// locIndirect is the object whose address is held in a register, or in a
	// frame slot when reg is noRegister.
	locIndirect
)

// location is where the value designated by a TAC address lives.
type location struct {
	kind  locKind
	reg   register
	disp  int
	label string
}

func inRegister(r register) location { return location{kind: locRegister, reg: r} }
func inFrame(disp int) location      { return location{kind: locFrame, reg: noRegister, disp: disp} }
func inGlobal(label string) location { return location{kind: locGlobal, reg: noRegister, label: label} }

func frameAddr(disp int) string {
	return fmt.Sprintf("[rbp%+d]", disp)
}

// holder returns the register whose contents make up this location, if any.
func (l location) holder() (register, bool) {
	switch l.kind {
	case locRegister:
		return l.reg, true
	case locIndirect:
		return l.reg, l.reg != noRegister
	}
	return noRegister, false
}

// storage names the register or slot that is occupied for this location.
// Two live temporaries never share a storage.
func (l location) storage() string {
	switch l.kind {
	case locRegister:
		return l.reg.String()
	case locFrame:
		return frameAddr(l.disp)
	case locGlobal:
		return l.label
	case locIndirect:
		if l.reg != noRegister {
			return l.reg.String()
		}
		return frameAddr(l.disp)
	}
	return "?"
}

func (l location) String() string {
	if l.kind == locIndirect {
		return "[" + l.storage() + "]"
	}
	return l.storage()
}

// immediate formats v truncated to size bytes as a signed immediate. It
// reports false when a 64-bit value does not fit a sign-extended imm32.
func immediate(v uint64, size int) (string, bool) {
	switch size {
	case 1:
		return fmt.Sprint(int8(v)), true
	case 2:
		return fmt.Sprint(int16(v)), true
	case 4:
		return fmt.Sprint(int32(v)), true
	}
	n := int64(v)
	if n < math.MinInt32 || n > math.MaxInt32 {
		return fmt.Sprint(n), false
	}
	return fmt.Sprint(n), true
}
