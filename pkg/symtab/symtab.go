// Package symtab holds the scoped symbol table, the constant pool and the
// flattened symbol list consumed by the code generator.
//
// Blocks are created on first entry and remembered in their parent in entry
// order. A later traversal of the same function body re-enters the same
// blocks in the same order, so declarations made by one pass are found again
// by the next.
package symtab

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/jgiron42/cc1/pkg/ctypes"
)

type Storage int

const (
	Undefined Storage = iota
	Typedef
	Static
	Auto
	Register
	Extern
	Param
	Global
)

var storageNames = [...]string{
	Undefined: "undefined",
	Typedef:   "typedef",
	Static:    "static",
	Auto:      "auto",
	Register:  "register",
	Extern:    "extern",
	Param:     "param",
	Global:    "global",
}

func (s Storage) String() string {
	if int(s) < len(storageNames) {
		return storageNames[s]
	}
	return fmt.Sprintf("Storage(%d)", int(s))
}

var (
	ErrRedeclared   = errors.New("redeclaration in the same scope")
	ErrTagKind      = errors.New("tag redeclared as a different kind")
	ErrTagRedefined = errors.New("tag redefinition")
	ErrNotFileScope = errors.New("function declared outside file scope")
)

// Ordinary is an entry of the ordinary identifier namespace: a variable,
// a function or a typedef name.
type Ordinary struct {
	Storage Storage
	Type    *ctypes.CType
	Name    string
	// Label is the assembler symbol. It differs from Name for block-scope
	// statics.
	Label string
	// Offset is the distance below the frame base for auto storage.
	Offset int
	Init   *Constant

	seq int
}

func (o *Ordinary) IsLocal() bool {
	return o.Storage == Auto || o.Storage == Register || o.Storage == Param
}

// Tag is an entry of the struct/union/enum namespace.
type Tag struct {
	Kind     ctypes.TagKind
	Complete bool
	// Decl is the member or enumerator list, kept for later layout.
	Decl any
}

type Scope struct {
	Ordinaries map[string]*Ordinary
	Tags       map[string]*Tag
}

type Block struct {
	Scope
	Children []*Block
}

func newBlock() *Block {
	return &Block{Scope: Scope{
		Ordinaries: make(map[string]*Ordinary),
		Tags:       make(map[string]*Tag),
	}}
}

// Function is a function definition being (or already) compiled.
type Function struct {
	Name      string
	Label     string
	Type      *ctypes.CType
	Static    bool
	FrameSize int
	Params    []*Ordinary
	// Failed is set when the body did not type-check; no code is emitted for it.
	Failed bool
}

type Visibility int

const (
	VisibilityNone Visibility = iota
	VisibilityLocal
	VisibilityGlobal
)

// Symbol is one entry of the flat list the generator walks. Exactly one of
// Ordinary and Function is set.
type Symbol struct {
	Visibility Visibility
	ReadOnly   bool
	Ordinary   *Ordinary
	Function   *Function
}

func (s Symbol) Label() string {
	if s.Function != nil {
		return s.Function.Label
	}
	return s.Ordinary.Label
}

type Table struct {
	root   *Block
	blocks []*Block
	next   []int

	current   *Function
	prototype int

	symbols []Symbol
	pool    pool

	statics int
	seq     int
	visible int
	limited bool
}

func New() *Table {
	root := newBlock()
	return &Table{
		root:   root,
		blocks: []*Block{root},
		next:   []int{0},
		pool:   newPool(),
	}
}

func (t *Table) Current() *Function { return t.current }

func (t *Table) AtFileScope() bool { return len(t.blocks) == 1 }

func (t *Table) InPrototype() bool { return t.prototype > 0 }

// Depth returns the number of open blocks above file scope.
func (t *Table) Depth() int { return len(t.blocks) - 1 }

func (t *Table) Symbols() []Symbol { return t.symbols }

func (t *Table) EnterFunction(f *Function) {
	if t.current != nil {
		panic(fmt.Sprintf("symtab: nested definition of %s inside %s", f.Name, t.current.Name))
	}
	if f.Label == "" {
		f.Label = f.Name
	}
	t.current = f
	t.symbols = append(t.symbols, Symbol{
		Visibility: lo.Ternary(f.Static, VisibilityLocal, VisibilityGlobal),
		Function:   f,
	})
}

func (t *Table) ExitFunction() {
	if t.current == nil {
		panic("symtab: ExitFunction without a current function")
	}
	t.current = nil
}

// EnterBlock opens the next child of the current block, creating it on the
// first traversal.
func (t *Table) EnterBlock() *Block {
	level := len(t.blocks) - 1
	parent := t.blocks[level]
	idx := t.next[level]
	if idx == len(parent.Children) {
		parent.Children = append(parent.Children, newBlock())
	}
	t.next[level]++
	b := parent.Children[idx]
	t.blocks = append(t.blocks, b)
	t.next = append(t.next, 0)
	return b
}

func (t *Table) ExitBlock() {
	if len(t.blocks) == 1 {
		panic("symtab: ExitBlock at file scope")
	}
	t.blocks = t.blocks[:len(t.blocks)-1]
	t.next = t.next[:len(t.next)-1]
}

// Mark returns the position of the next child block at the current level.
func (t *Table) Mark() int { return t.next[len(t.next)-1] }

// Rewind makes the next EnterBlock at the current level reopen the child at
// position mark.
func (t *Table) Rewind(mark int) { t.next[len(t.next)-1] = mark }

func (t *Table) EnterPrototype() { t.prototype++ }

func (t *Table) ExitPrototype() {
	if t.prototype == 0 {
		panic("symtab: ExitPrototype without EnterPrototype")
	}
	t.prototype--
}

func (t *Table) scope() *Scope { return &t.blocks[len(t.blocks)-1].Scope }

// InsertOrdinary declares name in the current scope. An undefined storage
// class is inferred from context.
//
// A static object declared in a block is labelled name.N with N unique to
// the table, so that statics of different functions do not collide. A
// file-scope static keeps its own name as label: it is the only object of
// that name in the translation unit and is emitted with local visibility.
func (t *Table) InsertOrdinary(name string, o *Ordinary) error {
	s := t.scope()
	if _, ok := s.Ordinaries[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrRedeclared)
	}
	if o.Storage == Undefined {
		switch {
		case o.Type.IsFunction():
			o.Storage = Extern
		case t.current != nil:
			o.Storage = Auto
		case t.InPrototype():
			o.Storage = Param
		default:
			o.Storage = Global
		}
	}
	o.Name = name
	if o.Label == "" {
		o.Label = name
	}
	if o.Storage == Static && !t.AtFileScope() {
		o.Label = fmt.Sprintf("%s.%d", name, t.statics)
		t.statics++
	}
	if (o.Storage == Auto || o.Storage == Register) && t.current != nil {
		size, err := ctypes.SizeOf(o.Type)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		t.current.FrameSize += size
		o.Offset = t.current.FrameSize
	}
	t.seq++
	o.seq = t.seq
	s.Ordinaries[name] = o

	if t.InPrototype() || o.IsLocal() || o.Storage == Typedef {
		return nil
	}
	vis := VisibilityNone
	switch o.Storage {
	case Static:
		vis = VisibilityLocal
	case Global:
		vis = VisibilityGlobal
	}
	t.symbols = append(t.symbols, Symbol{
		Visibility: vis,
		ReadOnly:   o.Type.Qual&ctypes.Const != 0,
		Ordinary:   o,
	})
	return nil
}

// InsertFunction declares a function name at file scope.
func (t *Table) InsertFunction(name string, o *Ordinary) error {
	if !t.AtFileScope() {
		return fmt.Errorf("%s: %w", name, ErrNotFileScope)
	}
	if o.Storage == Undefined {
		o.Storage = Extern
	}
	return t.InsertOrdinary(name, o)
}

// RetrieveOrdinary searches the open scopes from innermost to outermost.
// While visibility is limited, entries declared after the limit are skipped.
func (t *Table) RetrieveOrdinary(name string) *Ordinary {
	for i := len(t.blocks) - 1; i >= 0; i-- {
		o, ok := t.blocks[i].Ordinaries[name]
		if !ok {
			continue
		}
		if t.limited && o.seq > t.visible {
			continue
		}
		return o
	}
	return nil
}

// Declared returns the entry for name in the current scope only, ignoring
// the visibility limit.
func (t *Table) Declared(name string) *Ordinary {
	return t.scope().Ordinaries[name]
}

// Seq returns the sequence number of the latest insertion.
func (t *Table) Seq() int { return t.seq }

// LimitVisibility hides every entry inserted after seq until it is revealed
// with Reveal. Used when replaying a body whose declarations were inserted by
// an earlier pass.
func (t *Table) LimitVisibility(seq int) {
	t.visible = seq
	t.limited = true
}

// Reveal makes o and every entry declared before it visible.
func (t *Table) Reveal(o *Ordinary) {
	if t.limited && o.seq > t.visible {
		t.visible = o.seq
	}
}

func (t *Table) ClearVisibility() { t.limited = false }

// DeclareTag forward-declares a tag in the current scope, or returns the
// existing one.
func (t *Table) DeclareTag(name string, kind ctypes.TagKind) (*Tag, error) {
	s := t.scope()
	if tag, ok := s.Tags[name]; ok {
		if tag.Kind != kind {
			return tag, fmt.Errorf("%s %s: %w", kind, name, ErrTagKind)
		}
		return tag, nil
	}
	tag := &Tag{Kind: kind}
	s.Tags[name] = tag
	return tag, nil
}

// AssignTag attaches a definition to the tag name in the current scope.
func (t *Table) AssignTag(name string, kind ctypes.TagKind, decl any) (*Tag, error) {
	tag, err := t.DeclareTag(name, kind)
	if err != nil {
		return tag, err
	}
	if tag.Complete {
		return tag, fmt.Errorf("%s %s: %w", kind, name, ErrTagRedefined)
	}
	tag.Decl = decl
	tag.Complete = true
	return tag, nil
}

func (t *Table) RetrieveTag(name string) *Tag {
	for i := len(t.blocks) - 1; i >= 0; i-- {
		if tag, ok := t.blocks[i].Tags[name]; ok {
			return tag
		}
	}
	return nil
}

// String dumps the open scopes, innermost last, with names sorted.
func (t *Table) String() string {
	var b strings.Builder
	for depth, blk := range t.blocks {
		names := lo.Keys(blk.Ordinaries)
		sort.Strings(names)
		for _, n := range names {
			o := blk.Ordinaries[n]
			fmt.Fprintf(&b, "%s%s %s %s", strings.Repeat("  ", depth), o.Storage, n, o.Type)
			if o.Storage == Auto || o.Storage == Register {
				fmt.Fprintf(&b, " [rbp-%d]", o.Offset)
			}
			b.WriteByte('\n')
		}
		tags := lo.Keys(blk.Tags)
		sort.Strings(tags)
		for _, n := range tags {
			fmt.Fprintf(&b, "%s%s %s\n", strings.Repeat("  ", depth), blk.Tags[n].Kind, n)
		}
	}
	return b.String()
}

// Redefine upgrades a file-scope declaration, typically an extern
// declaration followed by its definition, to storage s.
func (t *Table) Redefine(o *Ordinary, s Storage) {
	o.Storage = s
	for i := range t.symbols {
		if t.symbols[i].Ordinary != o {
			continue
		}
		switch s {
		case Static:
			t.symbols[i].Visibility = VisibilityLocal
		case Global:
			t.symbols[i].Visibility = VisibilityGlobal
		}
	}
}
