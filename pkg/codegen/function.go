package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"modernc.org/mathutil"

	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
	"github.com/jgiron42/cc1/pkg/tac"
)

// Interval records that temporary Temp occupied Storage from instruction
// Start to instruction End, both inclusive.
type Interval struct {
	Temp    int
	Storage string
	Start   int
	End     int
}

// function translates one TAC unit. The body is buffered so that the
// prologue can reserve the final frame size.
type function struct {
	g    *Generator
	fn   *tac.Function
	body strings.Builder

	// frame is the number of bytes reserved below rbp so far.
	frame int
	at    int

	temps    map[int]location
	homes    map[*symtab.Ordinary]location
	resident [numRegisters]int
	// busy marks registers spilled during the current instruction; they are
	// not handed out again before the next one.
	busy  [numRegisters]bool
	pool  []register
	saved map[register]int

	labels  [][]tac.Label
	pending []tac.Instruction

	trace []Interval
	open  map[int]int
}

func newFunction(g *Generator, fn *tac.Function) *function {
	f := &function{
		g:     g,
		fn:    fn,
		frame: fn.Sym.FrameSize,
		temps: make(map[int]location),
		homes: make(map[*symtab.Ordinary]location),
		pool:  allocatable[:mathutil.Max(0, mathutil.Min(g.opts.Registers, MaxRegisters))],
		saved: make(map[register]int),
		open:  make(map[int]int),
	}
	for r := range f.resident {
		f.resident[r] = -1
	}
	f.labels = make([][]tac.Label, len(fn.Code)+1)
	for l, idx := range fn.Labels {
		if idx >= 0 {
			f.labels[idx] = append(f.labels[idx], tac.Label(l))
		}
	}
	return f
}

func (f *function) line(format string, args ...any) {
	fmt.Fprintf(&f.body, "\t"+format+"\n", args...)
}

func (f *function) label(l tac.Label) string {
	return fmt.Sprintf(".L%s.%d", f.fn.Sym.Label, l)
}

func (f *function) returnLabel() string {
	return fmt.Sprintf(".L%s.ret", f.fn.Sym.Label)
}

func (f *function) errorf(format string, args ...any) error {
	return fmt.Errorf("codegen: %s: instruction %d: %s", f.fn.Sym.Name, f.at, fmt.Sprintf(format, args...))
}

// newSlot reserves size bytes of frame and returns their rbp displacement.
func (f *function) newSlot(size int) int {
	f.frame += size
	return -f.frame
}

// generate emits the whole function to w.
func (f *function) generate(w *strings.Builder, sym symtab.Symbol) error {
	f.homeParams()
	code := f.fn.Code
	for i, in := range code {
		f.at = i
		f.busy = [numRegisters]bool{}
		f.placeLabels(i)
		if f.g.opts.EmitIR {
			f.line("# %s", in)
		}
		if err := f.instruction(i, in); err != nil {
			return err
		}
		if in.Op != tac.OpParam {
			f.release(i)
		}
	}
	f.at = len(code)
	f.placeLabels(len(code))
	tail := len(code) > 0 && code[len(code)-1].Op == tac.OpReturn && len(f.labels[len(code)]) == 0
	if !tail {
		f.line("xor eax, eax")
	}
	f.closeAll(len(code))

	name := f.fn.Sym.Label
	fmt.Fprintf(w, "\t.text\n")
	if sym.Visibility == symtab.VisibilityGlobal {
		fmt.Fprintf(w, "\t.globl %s\n", name)
	}
	fmt.Fprintf(w, "\t.type %s, @function\n", name)
	fmt.Fprintf(w, "%s:\n", name)
	f.prologue(w)
	w.WriteString(f.body.String())
	fmt.Fprintf(w, "%s:\n", f.returnLabel())
	f.epilogue(w)
	fmt.Fprintf(w, "\t.size %s, .-%s\n", name, name)
	return nil
}

// homeParams gives every parameter a frame location. Register arguments are
// stored to fresh slots by the prologue; the rest stay where the caller
// pushed them.
func (f *function) homeParams() {
	for i, p := range f.fn.Sym.Params {
		if i < len(argRegisters) {
			f.homes[p] = inFrame(f.newSlot(ctypes.MustSizeOf(p.Type)))
			continue
		}
		f.homes[p] = inFrame(16 + 8*(i-len(argRegisters)))
	}
}

func (f *function) prologue(w *strings.Builder) {
	callee := lo.Filter(f.pool, func(r register, _ int) bool { _, ok := f.saved[r]; return ok })
	for _, r := range callee {
		f.saved[r] = f.newSlot(8)
	}
	size := (f.frame + 15) &^ 15
	fmt.Fprintf(w, "\tpush rbp\n\tmov rbp, rsp\n")
	if size > 0 {
		fmt.Fprintf(w, "\tsub rsp, %d\n", size)
	}
	for _, r := range callee {
		fmt.Fprintf(w, "\tmov %s, %s\n", memory(8, frameAddr(f.saved[r])), r)
	}
	for i, p := range f.fn.Sym.Params {
		if i == len(argRegisters) {
			break
		}
		size := ctypes.MustSizeOf(p.Type)
		fmt.Fprintf(w, "\tmov %s, %s\n", memory(size, frameAddr(f.homes[p].disp)), argRegisters[i].sized(size))
	}
}

func (f *function) epilogue(w *strings.Builder) {
	for _, r := range f.pool {
		if disp, ok := f.saved[r]; ok {
			fmt.Fprintf(w, "\tmov %s, %s\n", r, memory(8, frameAddr(disp)))
		}
	}
	fmt.Fprintf(w, "\tleave\n\tret\n")
}

// placeLabels emits the labels resolved to instruction i. Caller-saved
// registers are flushed first so that every path into a label agrees on
// where each temporary lives.
func (f *function) placeLabels(i int) {
	if len(f.labels[i]) == 0 {
		return
	}
	f.flush(i)
	for _, l := range f.labels[i] {
		fmt.Fprintf(&f.body, "%s:\n", f.label(l))
	}
}

// Register allocation

func (f *function) occupy(r register, t int) {
	f.resident[r] = t
	if r.calleeSaved() {
		if _, ok := f.saved[r]; !ok {
			f.saved[r] = 0
		}
	}
}

// freeRegister returns the first unoccupied register of the pool.
func (f *function) freeRegister() (register, bool) {
	for _, r := range f.pool {
		if f.resident[r] < 0 && !f.busy[r] {
			return r, true
		}
	}
	return noRegister, false
}

func (f *function) place(t int, loc location) {
	f.temps[t] = loc
	f.open[t] = len(f.trace)
	f.trace = append(f.trace, Interval{Temp: t, Storage: loc.storage(), Start: f.at, End: -1})
}

func (f *function) close(t int, end int) {
	if idx, ok := f.open[t]; ok {
		f.trace[idx].End = end
		delete(f.open, t)
	}
}

func (f *function) closeAll(end int) {
	for t := range f.open {
		f.close(t, end)
	}
}

// define gives temporary t a location on its first definition: the first
// free register, or a new frame slot when the pool is exhausted.
func (f *function) define(a tac.Address) {
	if !a.IsTemp() {
		return
	}
	if _, ok := f.temps[a.Temp]; ok {
		return
	}
	if r, ok := f.freeRegister(); ok {
		f.occupy(r, a.Temp)
		f.place(a.Temp, inRegister(r))
		return
	}
	f.place(a.Temp, inFrame(f.newSlot(8)))
}

// spill moves the occupant of r to a new frame slot.
func (f *function) spill(r register) {
	t := f.resident[r]
	if t < 0 {
		return
	}
	slot := f.newSlot(8)
	f.line("mov %s, %s", memory(8, frameAddr(slot)), r)
	loc := f.temps[t]
	if loc.kind == locIndirect {
		loc.reg, loc.disp = noRegister, slot
	} else {
		loc = inFrame(slot)
	}
	f.resident[r] = -1
	f.busy[r] = true
	f.close(t, f.at)
	f.place(t, loc)
	f.g.Spills++
}

// claim makes r available for an instruction that needs that register.
func (f *function) claim(r register) {
	f.spill(r)
}

// flush spills caller-saved residents that are still needed at or after
// instruction from.
func (f *function) flush(from int) {
	for _, r := range f.pool {
		t := f.resident[r]
		if t < 0 || r.calleeSaved() || f.fn.LastUse[t] < from {
			continue
		}
		f.spill(r)
	}
}

// release frees the storage of every temporary whose last use is at or
// before instruction i.
func (f *function) release(i int) {
	for t, loc := range f.temps {
		if f.fn.LastUse[t] > i {
			continue
		}
		if r, ok := loc.holder(); ok && f.resident[r] == t {
			f.resident[r] = -1
		}
		f.close(t, i)
		delete(f.temps, t)
	}
}

// Operands

// symbol returns the location of a named object.
func (f *function) symbol(o *symtab.Ordinary) location {
	if loc, ok := f.homes[o]; ok {
		return loc
	}
	if o.Storage == symtab.Auto || o.Storage == symtab.Register {
		return inFrame(-o.Offset)
	}
	return inGlobal(o.Label)
}

func (f *function) locate(a tac.Address) (location, error) {
	switch a.Kind {
	case tac.AddrTemp:
		loc, ok := f.temps[a.Temp]
		if !ok {
			return location{}, f.errorf("t%d used outside its live range", a.Temp)
		}
		return loc, nil
	case tac.AddrSymbol:
		return f.symbol(a.Sym), nil
	case tac.AddrName:
		return inGlobal(a.Name), nil
	}
	return location{}, f.errorf("%s has no location", a)
}

// operand formats a location of the given size. A pointer held in a frame
// slot is first loaded into scratch.
func (f *function) operand(loc location, size int, scratch register) string {
	switch loc.kind {
	case locRegister:
		return loc.reg.sized(size)
	case locFrame:
		return memory(size, frameAddr(loc.disp))
	case locGlobal:
		return memory(size, loc.label+"[rip]")
	}
	if loc.reg == noRegister {
		f.line("mov %s, %s", scratch, memory(8, frameAddr(loc.disp)))
		return memory(size, "["+scratch.String()+"]")
	}
	return memory(size, "["+loc.reg.String()+"]")
}

// value returns an operand reading a of the given size. Constants become
// immediates when they fit; otherwise they are loaded into scratch.
func (f *function) value(a tac.Address, size int, scratch register) (string, error) {
	if a.Kind != tac.AddrConstant {
		loc, err := f.locate(a)
		if err != nil {
			return "", err
		}
		return f.operand(loc, size, scratch), nil
	}
	c := a.Const
	switch c.Kind {
	case symtab.ConstInt:
		if imm, ok := immediate(c.Int, size); ok {
			return imm, nil
		}
		f.line("mov %s, %d", scratch, int64(c.Int))
		return scratch.sized(size), nil
	case symtab.ConstFloat:
		if size == 4 {
			imm, _ := immediate(uint64(math.Float32bits(float32(c.Float))), 4)
			return imm, nil
		}
		return memory(8, c.Label()+"[rip]"), nil
	}
	return "", f.errorf("string constant %s used as a value", c.Label())
}

// load reads a into r.
func (f *function) load(r register, size int, a tac.Address) error {
	if a.Kind == tac.AddrConstant && a.Const.Kind == symtab.ConstInt {
		imm, _ := immediate(a.Const.Int, size)
		f.line("mov %s, %s", r.sized(size), imm)
		return nil
	}
	src, err := f.value(a, size, r11)
	if err != nil {
		return err
	}
	if src != r.sized(size) {
		f.line("mov %s, %s", r.sized(size), src)
	}
	return nil
}

// store writes r to a, defining a if needed.
func (f *function) store(a tac.Address, size int, r register) error {
	f.define(a)
	loc, err := f.locate(a)
	if err != nil {
		return err
	}
	dst := f.operand(loc, size, r11)
	if dst != r.sized(size) {
		f.line("mov %s, %s", dst, r.sized(size))
	}
	return nil
}

func isMemory(op string) bool    { return strings.Contains(op, " PTR ") }
func isImmediate(op string) bool { return op != "" && (op[0] == '-' || (op[0] >= '0' && op[0] <= '9')) }

// Instructions

var setcc = map[tac.Op][2]string{
	tac.OpLess:         {"b", "l"},
	tac.OpGreater:      {"a", "g"},
	tac.OpLessEqual:    {"be", "le"},
	tac.OpGreaterEqual: {"ae", "ge"},
	tac.OpEqual:        {"e", "e"},
	tac.OpNotEqual:     {"ne", "ne"},
}

var jumpConditions = map[tac.Op]tac.Op{
	tac.OpJumpEqual:        tac.OpEqual,
	tac.OpJumpNotEqual:     tac.OpNotEqual,
	tac.OpJumpLess:         tac.OpLess,
	tac.OpJumpGreater:      tac.OpGreater,
	tac.OpJumpLessEqual:    tac.OpLessEqual,
	tac.OpJumpGreaterEqual: tac.OpGreaterEqual,
}

var arithmetic = map[tac.Op]string{
	tac.OpAdd: "add",
	tac.OpSub: "sub",
	tac.OpAnd: "and",
	tac.OpXor: "xor",
	tac.OpOr:  "or",
}

func condition(op tac.Op, signed bool) string {
	return setcc[op][lo.Ternary(signed, 1, 0)]
}

func (f *function) instruction(i int, in tac.Instruction) error {
	switch {
	case in.Op == tac.OpAssign:
		return f.assign(in)
	case in.Op == tac.OpConvert:
		return f.convert(in)
	case in.Op == tac.OpNeg, in.Op == tac.OpNot:
		if err := f.load(rax, in.Size, in.A); err != nil {
			return err
		}
		f.line("%s %s", lo.Ternary(in.Op == tac.OpNeg, "neg", "not"), rax.sized(in.Size))
		return f.store(in.Dst, in.Size, rax)
	case in.Op == tac.OpLogicalNot:
		if err := f.load(rax, in.Size, in.A); err != nil {
			return err
		}
		f.line("test %s, %s", rax.sized(in.Size), rax.sized(in.Size))
		f.line("sete al")
		f.line("movzx eax, al")
		return f.store(in.Dst, 4, rax)
	case in.Op == tac.OpDeref:
		return f.deref(in)
	case in.Op == tac.OpAddress:
		return f.address(in)
	case in.Op.IsComparison():
		if err := f.compare(in); err != nil {
			return err
		}
		f.line("set%s al", condition(in.Op, in.Signed))
		f.line("movzx eax, al")
		return f.store(in.Dst, 4, rax)
	case in.Op == tac.OpMul:
		return f.multiply(in)
	case in.Op == tac.OpDiv, in.Op == tac.OpMod:
		return f.divide(in)
	case in.Op == tac.OpShiftLeft, in.Op == tac.OpShiftRight:
		return f.shift(in)
	case in.Op.IsBinary():
		if err := f.load(rax, in.Size, in.A); err != nil {
			return err
		}
		src, err := f.value(in.B, in.Size, r10)
		if err != nil {
			return err
		}
		f.line("%s %s, %s", arithmetic[in.Op], rax.sized(in.Size), src)
		return f.store(in.Dst, in.Size, rax)
	case in.Op == tac.OpJump:
		f.flush(i + 1)
		f.line("jmp %s", f.label(in.Dst.Label))
		return nil
	case in.Op.IsJump():
		if err := f.compare(in); err != nil {
			return err
		}
		f.flush(i + 1)
		f.line("j%s %s", condition(jumpConditions[in.Op], in.Signed), f.label(in.Dst.Label))
		return nil
	case in.Op == tac.OpReturn:
		if !in.A.IsNone() {
			if err := f.load(rax, in.Size, in.A); err != nil {
				return err
			}
		}
		if i != len(f.fn.Code)-1 || len(f.labels[len(f.fn.Code)]) > 0 {
			f.line("jmp %s", f.returnLabel())
		}
		return nil
	case in.Op == tac.OpParam:
		return f.param(i, in)
	case in.Op == tac.OpCall:
		return f.call(i, in)
	}
	return f.errorf("unknown operation %s", in.Op)
}

// compare sets the flags from A cmp B.
func (f *function) compare(in tac.Instruction) error {
	if err := f.load(rax, in.Size, in.A); err != nil {
		return err
	}
	src, err := f.value(in.B, in.Size, r10)
	if err != nil {
		return err
	}
	f.line("cmp %s, %s", rax.sized(in.Size), src)
	return nil
}

func (f *function) assign(in tac.Instruction) error {
	src, err := f.value(in.A, in.Size, r10)
	if err != nil {
		return err
	}
	f.define(in.Dst)
	loc, err := f.locate(in.Dst)
	if err != nil {
		return err
	}
	if isMemory(src) && loc.kind != locRegister {
		f.line("mov %s, %s", rax.sized(in.Size), src)
		src = rax.sized(in.Size)
	}
	if dst := f.operand(loc, in.Size, r11); dst != src {
		f.line("mov %s, %s", dst, src)
	}
	return nil
}

// sizeOf returns the width of the value held by a.
func (f *function) sizeOf(a tac.Address) (int, error) {
	var t *ctypes.CType
	switch a.Kind {
	case tac.AddrTemp:
		t = f.fn.Temps[a.Temp]
	case tac.AddrSymbol:
		t = a.Sym.Type
	default:
		return ctypes.PointerSize, nil
	}
	n, err := ctypes.SizeOf(t)
	if err != nil {
		return 0, f.errorf("%v", err)
	}
	return n, nil
}

// convert extends or truncates A to Size bytes.
func (f *function) convert(in tac.Instruction) error {
	from, err := f.sizeOf(in.A)
	if err != nil {
		return err
	}
	if from >= in.Size {
		if err := f.load(rax, from, in.A); err != nil {
			return err
		}
		return f.store(in.Dst, in.Size, rax)
	}
	src, err := f.value(in.A, from, r10)
	if err != nil {
		return err
	}
	switch {
	case isImmediate(src):
		return f.errorf("conversion of constant %s was not folded", in.A)
	case in.Signed && from == 4:
		f.line("movsxd rax, %s", src)
	case in.Signed:
		f.line("movsx %s, %s", rax.sized(mathutil.Max(in.Size, 4)), src)
	case from == 4:
		f.line("mov eax, %s", src)
	default:
		f.line("movzx eax, %s", src)
	}
	return f.store(in.Dst, in.Size, rax)
}

// deref makes Dst an indirect location through the pointer A. The pointer
// is copied so that A may die before Dst.
func (f *function) deref(in tac.Instruction) error {
	if !in.Dst.IsTemp() {
		return f.errorf("dereference into %s", in.Dst)
	}
	t := in.Dst.Temp
	if r, ok := f.freeRegister(); ok {
		if err := f.load(r, 8, in.A); err != nil {
			return err
		}
		f.occupy(r, t)
		f.place(t, location{kind: locIndirect, reg: r})
		return nil
	}
	if err := f.load(rax, 8, in.A); err != nil {
		return err
	}
	slot := f.newSlot(8)
	f.line("mov %s, rax", memory(8, frameAddr(slot)))
	f.place(t, location{kind: locIndirect, reg: noRegister, disp: slot})
	return nil
}

func (f *function) address(in tac.Instruction) error {
	a := in.A
	switch {
	case a.Kind == tac.AddrConstant && a.Const.InRodata():
		f.line("lea rax, %s[rip]", a.Const.Label())
	case a.Kind == tac.AddrSymbol && a.Sym.Type.IsFunction():
		f.line("mov rax, QWORD PTR %s@GOTPCREL[rip]", a.Sym.Label)
	default:
		loc, err := f.locate(a)
		if err != nil {
			return err
		}
		switch loc.kind {
		case locFrame:
			f.line("lea rax, %s", frameAddr(loc.disp))
		case locGlobal:
			f.line("lea rax, %s[rip]", loc.label)
		case locIndirect:
			if loc.reg != noRegister {
				f.line("mov rax, %s", loc.reg)
			} else {
				f.line("mov rax, %s", memory(8, frameAddr(loc.disp)))
			}
		default:
			return f.errorf("cannot take the address of %s", a)
		}
	}
	return f.store(in.Dst, 8, rax)
}

func (f *function) multiply(in tac.Instruction) error {
	size := in.Size
	if err := f.load(rax, size, in.A); err != nil {
		return err
	}
	src, err := f.value(in.B, size, r10)
	if err != nil {
		return err
	}
	if isImmediate(src) {
		f.line("imul %s, %s, %s", rax.sized(size), rax.sized(size), src)
	} else {
		f.line("imul %s, %s", rax.sized(size), src)
	}
	return f.store(in.Dst, in.Size, rax)
}

func (f *function) divide(in tac.Instruction) error {
	f.claim(rdx)
	if err := f.load(rax, in.Size, in.A); err != nil {
		return err
	}
	src, err := f.value(in.B, in.Size, r10)
	if err != nil {
		return err
	}
	if isImmediate(src) {
		f.line("mov %s, %s", r10.sized(in.Size), src)
		src = r10.sized(in.Size)
	}
	if in.Signed {
		switch in.Size {
		case 8:
			f.line("cqo")
		case 4:
			f.line("cdq")
		default:
			f.line("cwd")
		}
		f.line("idiv %s", src)
	} else {
		f.line("xor edx, edx")
		f.line("div %s", src)
	}
	return f.store(in.Dst, in.Size, lo.Ternary(in.Op == tac.OpDiv, rax, rdx))
}

func (f *function) shift(in tac.Instruction) error {
	mnemonic := "shl"
	if in.Op == tac.OpShiftRight {
		mnemonic = lo.Ternary(in.Signed, "sar", "shr")
	}
	if in.B.Kind == tac.AddrConstant && in.B.Const.Kind == symtab.ConstInt {
		if err := f.load(rax, in.Size, in.A); err != nil {
			return err
		}
		f.line("%s %s, %d", mnemonic, rax.sized(in.Size), in.B.Const.Int&63)
		return f.store(in.Dst, in.Size, rax)
	}
	f.claim(rcx)
	if err := f.load(rax, in.Size, in.A); err != nil {
		return err
	}
	if err := f.load(rcx, in.Size, in.B); err != nil {
		return err
	}
	f.line("%s %s, cl", mnemonic, rax.sized(in.Size))
	return f.store(in.Dst, in.Size, rax)
}

// param loads a register argument immediately; stack arguments are pushed
// by the call. The first parameter of a sequence flushes caller-saved
// registers, which also frees the argument registers.
func (f *function) param(i int, in tac.Instruction) error {
	if len(f.pending) == 0 {
		f.flush(i)
	}
	k := len(f.pending)
	f.pending = append(f.pending, in)
	if k >= len(argRegisters) {
		return nil
	}
	if err := f.load(argRegisters[k], in.Size, in.A); err != nil {
		return err
	}
	f.widen(argRegisters[k], in.Size, in.Signed)
	return nil
}

// widen extends a char or short argument held in r to 32 bits, as callees
// expect.
func (f *function) widen(r register, size int, signed bool) {
	if size >= 4 {
		return
	}
	f.line("%s %s, %s", lo.Ternary(signed, "movsx", "movzx"), r.sized(4), r.sized(size))
}

func (f *function) call(i int, in tac.Instruction) error {
	f.flush(i + 1)
	var stack []tac.Instruction
	if len(f.pending) > len(argRegisters) {
		stack = f.pending[len(argRegisters):]
	}
	f.pending = nil
	pad := len(stack) % 2 * 8
	if pad > 0 {
		f.line("sub rsp, %d", pad)
	}
	for _, p := range lo.Reverse(append([]tac.Instruction(nil), stack...)) {
		if err := f.load(rax, p.Size, p.A); err != nil {
			return err
		}
		f.widen(rax, p.Size, p.Signed)
		f.line("push rax")
	}
	if err := f.load(r11, 8, in.A); err != nil {
		return err
	}
	f.line("xor eax, eax")
	f.line("call r11")
	if n := len(stack)*8 + pad; n > 0 {
		f.line("add rsp, %d", n)
	}
	if in.Dst.IsNone() {
		return nil
	}
	return f.store(in.Dst, in.Size, rax)
}
