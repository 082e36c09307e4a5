package symtab

import (
	"errors"
	"strings"
	"testing"

	"github.com/jgiron42/cc1/pkg/ctypes"
)

func enterMain(t *testing.T, s *Table) *Function {
	t.Helper()
	fn := &Function{Name: "main", Type: ctypes.FunctionOf(ctypes.IntType, nil, false)}
	if err := s.InsertFunction("main", &Ordinary{Type: fn.Type}); err != nil {
		t.Fatalf("insert main: %v", err)
	}
	s.EnterBlock()
	s.EnterFunction(fn)
	return fn
}

func TestInsertOrdinary(t *testing.T) {
	t.Run("RedeclarationFails", func(t *testing.T) {
		s := New()
		if err := s.InsertOrdinary("x", &Ordinary{Type: ctypes.IntType}); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		err := s.InsertOrdinary("x", &Ordinary{Type: ctypes.LongType})
		if !errors.Is(err, ErrRedeclared) {
			t.Errorf("second insert: expected ErrRedeclared, got %v", err)
		}
		if got := s.RetrieveOrdinary("x"); got.Type != ctypes.IntType {
			t.Errorf("expected first declaration to be kept, got %s", got.Type)
		}
	})

	t.Run("ShadowingSucceeds", func(t *testing.T) {
		s := New()
		outer := &Ordinary{Type: ctypes.IntType}
		if err := s.InsertOrdinary("x", outer); err != nil {
			t.Fatal(err)
		}
		s.EnterBlock()
		inner := &Ordinary{Type: ctypes.CharType}
		if err := s.InsertOrdinary("x", inner); err != nil {
			t.Errorf("shadowing: expected success, got %v", err)
		}
		if got := s.RetrieveOrdinary("x"); got != inner {
			t.Errorf("expected inner declaration")
		}
		s.ExitBlock()
		if got := s.RetrieveOrdinary("x"); got != outer {
			t.Errorf("expected outer declaration after exit")
		}
	})

	t.Run("StorageInference", func(t *testing.T) {
		s := New()
		g := &Ordinary{Type: ctypes.IntType}
		f := &Ordinary{Type: ctypes.FunctionOf(ctypes.IntType, nil, false)}
		s.InsertOrdinary("g", g)
		s.InsertOrdinary("f", f)
		if g.Storage != Global {
			t.Errorf("g: expected global, got %s", g.Storage)
		}
		if f.Storage != Extern {
			t.Errorf("f: expected extern, got %s", f.Storage)
		}

		s.EnterBlock()
		s.EnterPrototype()
		p := &Ordinary{Type: ctypes.IntType}
		s.InsertOrdinary("p", p)
		s.ExitPrototype()
		if p.Storage != Param {
			t.Errorf("p: expected param, got %s", p.Storage)
		}
		s.EnterFunction(&Function{Name: "fn"})
		l := &Ordinary{Type: ctypes.IntType}
		s.InsertOrdinary("l", l)
		if l.Storage != Auto {
			t.Errorf("l: expected auto, got %s", l.Storage)
		}
	})

	t.Run("FrameOffsets", func(t *testing.T) {
		s := New()
		fn := enterMain(t, s)
		a := &Ordinary{Type: ctypes.IntType}
		b := &Ordinary{Type: ctypes.CharType}
		c := &Ordinary{Type: ctypes.ArrayOf(ctypes.LongType, 2)}
		s.InsertOrdinary("a", a)
		s.InsertOrdinary("b", b)
		s.InsertOrdinary("c", c)
		if a.Offset != 4 || b.Offset != 5 || c.Offset != 21 {
			t.Errorf("offsets: expected 4 5 21, got %d %d %d", a.Offset, b.Offset, c.Offset)
		}
		if fn.FrameSize != 21 {
			t.Errorf("frame size: expected 21, got %d", fn.FrameSize)
		}
	})

	t.Run("StaticLabels", func(t *testing.T) {
		s := New()
		enterMain(t, s)
		a := &Ordinary{Storage: Static, Type: ctypes.IntType}
		s.InsertOrdinary("counter", a)
		s.EnterBlock()
		b := &Ordinary{Storage: Static, Type: ctypes.IntType}
		s.InsertOrdinary("counter", b)
		if a.Label == b.Label {
			t.Errorf("expected unique labels, got %q twice", a.Label)
		}
		if !strings.HasPrefix(a.Label, "counter.") {
			t.Errorf("label: expected counter.N, got %q", a.Label)
		}
		syms := s.Symbols()
		last := syms[len(syms)-1]
		if last.Ordinary != b || last.Visibility != VisibilityLocal {
			t.Errorf("expected static to be registered as a local symbol")
		}
	})

	t.Run("FileScopeStaticKeepsName", func(t *testing.T) {
		s := New()
		o := &Ordinary{Storage: Static, Type: ctypes.IntType}
		if err := s.InsertOrdinary("counter", o); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if o.Label != "counter" {
			t.Errorf("label: expected counter, got %q", o.Label)
		}
		if syms := s.Symbols(); len(syms) != 1 || syms[0].Visibility != VisibilityLocal {
			t.Errorf("expected one local symbol, got %v", syms)
		}
	})

	t.Run("LocalsNotInSymbols", func(t *testing.T) {
		s := New()
		enterMain(t, s)
		before := len(s.Symbols())
		s.InsertOrdinary("x", &Ordinary{Type: ctypes.IntType})
		if len(s.Symbols()) != before {
			t.Errorf("expected auto local to stay out of the symbol list")
		}
	})
}

func TestFunctions(t *testing.T) {
	t.Run("NestedDefinitionPanics", func(t *testing.T) {
		s := New()
		enterMain(t, s)
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic on nested function")
			}
		}()
		s.EnterFunction(&Function{Name: "inner"})
	})

	t.Run("InsertFunctionFileScopeOnly", func(t *testing.T) {
		s := New()
		s.EnterBlock()
		err := s.InsertFunction("f", &Ordinary{Type: ctypes.FunctionOf(ctypes.IntType, nil, false)})
		if !errors.Is(err, ErrNotFileScope) {
			t.Errorf("expected ErrNotFileScope, got %v", err)
		}
	})
}

func TestBlockReentry(t *testing.T) {
	s := New()
	mark := s.Mark()

	first := s.EnterBlock()
	s.InsertOrdinary("a", &Ordinary{Type: ctypes.IntType})
	nested := s.EnterBlock()
	s.ExitBlock()
	s.ExitBlock()
	second := s.EnterBlock()
	s.ExitBlock()

	s.Rewind(mark)
	if b := s.EnterBlock(); b != first {
		t.Errorf("expected first block on re-entry")
	}
	if s.Declared("a") == nil {
		t.Errorf("expected declaration from the first pass")
	}
	if b := s.EnterBlock(); b != nested {
		t.Errorf("expected nested block on re-entry")
	}
	s.ExitBlock()
	s.ExitBlock()
	if b := s.EnterBlock(); b != second {
		t.Errorf("expected second block on re-entry")
	}
	s.ExitBlock()
	if n := len(s.root.Children); n != 2 {
		t.Errorf("expected 2 children, got %d", n)
	}
}

func TestVisibility(t *testing.T) {
	s := New()
	outer := &Ordinary{Type: ctypes.IntType}
	s.InsertOrdinary("x", outer)
	seq := s.Seq()
	mark := s.Mark()

	s.EnterBlock()
	inner := &Ordinary{Type: ctypes.CharType}
	s.InsertOrdinary("x", inner)
	s.ExitBlock()

	s.Rewind(mark)
	s.LimitVisibility(seq)
	defer s.ClearVisibility()
	s.EnterBlock()
	if got := s.RetrieveOrdinary("x"); got != outer {
		t.Errorf("before reveal: expected outer declaration")
	}
	if got := s.Declared("x"); got != inner {
		t.Errorf("Declared: expected inner declaration")
	}
	s.Reveal(inner)
	if got := s.RetrieveOrdinary("x"); got != inner {
		t.Errorf("after reveal: expected inner declaration")
	}
	s.ExitBlock()
}

func TestTags(t *testing.T) {
	s := New()
	if _, err := s.DeclareTag("node", ctypes.Struct); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AssignTag("node", ctypes.Struct, "members"); err != nil {
		t.Errorf("completing forward declaration: %v", err)
	}
	if _, err := s.AssignTag("node", ctypes.Struct, "members"); !errors.Is(err, ErrTagRedefined) {
		t.Errorf("expected ErrTagRedefined, got %v", err)
	}
	if _, err := s.DeclareTag("node", ctypes.Union); !errors.Is(err, ErrTagKind) {
		t.Errorf("expected ErrTagKind, got %v", err)
	}
	s.InsertOrdinary("node", &Ordinary{Type: ctypes.IntType})
	if s.RetrieveTag("node") == nil || s.RetrieveOrdinary("node") == nil {
		t.Errorf("tags and ordinaries should not collide")
	}
}

func TestConstantPool(t *testing.T) {
	s := New()
	a := s.NewConstant(IntValue(5))
	b := s.NewConstant(IntValue(5))
	if a != b {
		t.Errorf("expected the same pooled constant for 5")
	}
	c := s.NewConstant(IntValue(6))
	if c == a || c.ID != a.ID+1 {
		t.Errorf("expected a new constant with the next id, got id %d", c.ID)
	}
	str := s.NewConstant(StringValue("hi"))
	if str != s.NewConstant(StringValue("hi")) || !str.InRodata() {
		t.Errorf("string constants should be pooled in rodata")
	}
	if got := str.Label(); got != ".LC2" {
		t.Errorf("label: expected .LC2, got %s", got)
	}
	if n := len(s.Constants()); n != 3 {
		t.Errorf("expected 3 constants, got %d", n)
	}
}
