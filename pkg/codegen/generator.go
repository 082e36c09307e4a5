// Package codegen translates TAC into x86-64 assembly in GNU as Intel
// syntax, following the System V calling convention for integer and pointer
// arguments.
//
// Temporaries are allocated greedily: each takes the first free register of
// the pool on its first definition, or a frame slot when none is free, and
// gives it back after its last use. Caller-saved residents are spilled before
// calls, jumps and labels, so every path into a label sees the same
// locations.
package codegen

import (
	"fmt"
	"io"
	"math"
	"strings"

	"modernc.org/mathutil"

	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
	"github.com/jgiron42/cc1/pkg/tac"
)

type Options struct {
	// Registers is the number of allocatable registers, at most MaxRegisters.
	// Zero keeps every temporary in the frame.
	Registers int
	// EmitIR interleaves the TAC listing as assembly comments.
	EmitIR bool
}

// Generator emits the assembly of one translation unit.
type Generator struct {
	opts Options
	syms *symtab.Table
	prog *tac.Program

	// Trace holds the allocation intervals of each generated function.
	Trace map[string][]Interval
	// Spills counts register spills over the whole unit.
	Spills int
}

func New(syms *symtab.Table, prog *tac.Program, opts Options) *Generator {
	return &Generator{
		opts:  opts,
		syms:  syms,
		prog:  prog,
		Trace: make(map[string][]Interval),
	}
}

// Generate writes the text, data and rodata sections of the unit to w.
// Functions marked as failed are skipped.
func (g *Generator) Generate(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\t.intel_syntax noprefix\n")
	for _, s := range g.syms.Symbols() {
		switch {
		case s.Function != nil:
			if s.Function.Failed {
				continue
			}
			unit := g.prog.Lookup(s.Function)
			if unit == nil {
				continue
			}
			f := newFunction(g, unit)
			if err := f.generate(&b, s); err != nil {
				return err
			}
			g.Trace[s.Function.Label] = f.trace
		case s.Visibility == symtab.VisibilityNone, s.Ordinary.Type.IsFunction():
		default:
			if err := g.data(&b, s); err != nil {
				return err
			}
		}
	}
	g.rodata(&b)
	b.WriteString("\t.section .note.GNU-stack,\"\",@progbits\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// alignOf is the alignment of the scalar making up t.
func alignOf(t *ctypes.CType) int {
	for t.IsArray() {
		t = t.Elem
	}
	n, err := ctypes.SizeOf(t)
	if err != nil {
		return 1
	}
	return mathutil.Max(1, mathutil.Min(n, 8))
}

var dataDirectives = map[int]string{1: ".byte", 2: ".value", 4: ".long", 8: ".quad"}

func (g *Generator) data(b *strings.Builder, s symtab.Symbol) error {
	o := s.Ordinary
	size, err := ctypes.SizeOf(o.Type)
	if err != nil {
		return fmt.Errorf("codegen: %s: %w", o.Name, err)
	}
	fmt.Fprintf(b, "\t.data\n")
	if s.Visibility == symtab.VisibilityGlobal {
		fmt.Fprintf(b, "\t.globl %s\n", o.Label)
	} else {
		fmt.Fprintf(b, "\t.local %s\n", o.Label)
	}
	fmt.Fprintf(b, "\t.align %d\n", alignOf(o.Type))
	fmt.Fprintf(b, "\t.type %s, @object\n", o.Label)
	fmt.Fprintf(b, "\t.size %s, %d\n", o.Label, size)
	fmt.Fprintf(b, "%s:\n", o.Label)

	c := o.Init
	switch {
	case c == nil:
		fmt.Fprintf(b, "\t.zero %d\n", size)
	case c.Kind == symtab.ConstString && o.Type.IsArray():
		str := c.Str
		if len(str) >= size {
			fmt.Fprintf(b, "\t.ascii %s\n", quote(str[:size]))
			break
		}
		fmt.Fprintf(b, "\t.string %s\n", quote(str))
		if pad := size - len(str) - 1; pad > 0 {
			fmt.Fprintf(b, "\t.zero %d\n", pad)
		}
	case c.Kind == symtab.ConstString:
		fmt.Fprintf(b, "\t.quad %s\n", c.Label())
	case c.Kind == symtab.ConstFloat && size == 4:
		fmt.Fprintf(b, "\t.long %d\n", math.Float32bits(float32(c.Float)))
	case c.Kind == symtab.ConstFloat:
		fmt.Fprintf(b, "\t.quad %d\n", math.Float64bits(c.Float))
	default:
		imm, _ := immediate(c.Int, size)
		fmt.Fprintf(b, "\t%s %s\n", dataDirectives[size], imm)
	}
	return nil
}

// rodata emits the pooled constants that live in memory.
func (g *Generator) rodata(b *strings.Builder) {
	header := false
	for _, c := range g.syms.Constants() {
		if !c.InRodata() {
			continue
		}
		if !header {
			b.WriteString("\t.section .rodata\n")
			header = true
		}
		if c.Kind == symtab.ConstFloat {
			fmt.Fprintf(b, "\t.align 8\n%s:\n\t.quad %d # %s\n", c.Label(), math.Float64bits(c.Float), c)
			continue
		}
		fmt.Fprintf(b, "%s:\n\t.string %s\n", c.Label(), quote(c.Str))
	}
}

// quote renders s as an assembler string literal. Non-printable bytes use
// three-digit octal escapes, which the assembler never extends.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\%03o", c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
