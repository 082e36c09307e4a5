package codegen

import "fmt"

type register int

const noRegister register = -1

const (
	rax register = iota
	rbx
	rcx
	rdx
	rsi
	rdi
	rbp
	rsp
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
	numRegisters
)

// registerNames lists the 8, 16, 32 and 64-bit names of each register.
var registerNames = [numRegisters][4]string{
	rax: {"al", "ax", "eax", "rax"},
	rbx: {"bl", "bx", "ebx", "rbx"},
	rcx: {"cl", "cx", "ecx", "rcx"},
	rdx: {"dl", "dx", "edx", "rdx"},
	rsi: {"sil", "si", "esi", "rsi"},
	rdi: {"dil", "di", "edi", "rdi"},
	rbp: {"bpl", "bp", "ebp", "rbp"},
	rsp: {"spl", "sp", "esp", "rsp"},
	r8:  {"r8b", "r8w", "r8d", "r8"},
	r9:  {"r9b", "r9w", "r9d", "r9"},
	r10: {"r10b", "r10w", "r10d", "r10"},
	r11: {"r11b", "r11w", "r11d", "r11"},
	r12: {"r12b", "r12w", "r12d", "r12"},
	r13: {"r13b", "r13w", "r13d", "r13"},
	r14: {"r14b", "r14w", "r14d", "r14"},
	r15: {"r15b", "r15w", "r15d", "r15"},
}

// sized returns the name of the low size bytes of r.
func (r register) sized(size int) string {
	if r < 0 || r >= numRegisters {
		return fmt.Sprintf("reg(%d)", int(r))
	}
	switch size {
	case 1:
		return registerNames[r][0]
	case 2:
		return registerNames[r][1]
	case 4:
		return registerNames[r][2]
	}
	return registerNames[r][3]
}

func (r register) String() string { return r.sized(8) }

func (r register) calleeSaved() bool {
	return r == rbx || (r >= r12 && r <= r15)
}

// allocatable is the register pool in allocation order. Callee-saved
// registers come first since they survive calls without being flushed.
// rax, r10 and r11 are reserved as working registers.
var allocatable = [...]register{rbx, r12, r13, r14, r15, rcx, rdx, rsi, rdi, r8, r9}

// MaxRegisters is the size of the full allocatable pool.
const MaxRegisters = len(allocatable)

// argRegisters carry the first integer arguments of a call.
var argRegisters = [...]register{rdi, rsi, rdx, rcx, r8, r9}

var ptrNames = map[int]string{1: "BYTE", 2: "WORD", 4: "DWORD", 8: "QWORD"}

// memory formats a memory operand of the given size.
func memory(size int, base string) string {
	return fmt.Sprintf("%s PTR %s", ptrNames[size], base)
}
