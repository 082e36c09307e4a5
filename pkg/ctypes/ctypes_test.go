package ctypes

import (
	"errors"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func arithmeticTypes() []*CType {
	return []*CType{
		CharType, UCharType, ShortType, UShortType, IntType, UIntType,
		LongType, ULongType, FloatType, DoubleType, LDoubleType,
	}
}

func TestEquivalent(t *testing.T) {
	build := func() *CType {
		fn := FunctionOf(IntType, []*CType{PointerTo(CharType.WithQual(Const)), LongType}, true)
		return ArrayOf(PointerTo(fn), 4)
	}

	t.Run("Reflexive", func(t *testing.T) {
		for _, ty := range append(arithmeticTypes(), build(), PointerTo(VoidType)) {
			if !Equivalent(ty, ty, false) {
				t.Errorf("%s: expected equivalent to itself", ty)
			}
		}
	})

	t.Run("StructuralNotIdentity", func(t *testing.T) {
		a, b := build(), build()
		if a == b {
			t.Fatal("expected distinct nodes")
		}
		if !Equivalent(a, b, false) {
			t.Errorf("expected structurally identical trees to be equivalent")
		}
		if diff := pretty.Compare(a, b); diff != "" {
			t.Errorf("trees differ:\n%s", diff)
		}
	})

	t.Run("KindMismatch", func(t *testing.T) {
		if Equivalent(PointerTo(IntType), ArrayOf(IntType, 1), false) {
			t.Errorf("pointer and array: expected not equivalent")
		}
	})

	t.Run("Qualifiers", func(t *testing.T) {
		if Equivalent(IntType, IntType.WithQual(Const), false) {
			t.Errorf("const int vs int: expected not equivalent")
		}
		if !Equivalent(IntType, IntType.WithQual(Const), true) {
			t.Errorf("const int vs int ignoring qualifiers: expected equivalent")
		}
	})

	t.Run("VoidIgnoresSignedness", func(t *testing.T) {
		if !Equivalent(Plain(Void, true), Plain(Void, false), false) {
			t.Errorf("expected void equivalent to void")
		}
		if Equivalent(IntType, UIntType, false) {
			t.Errorf("int vs unsigned int: expected not equivalent")
		}
	})

	t.Run("FunctionArity", func(t *testing.T) {
		f1 := FunctionOf(IntType, []*CType{IntType}, false)
		f2 := FunctionOf(IntType, []*CType{IntType, IntType}, false)
		if Equivalent(f1, f2, false) {
			t.Errorf("expected different arity to differ")
		}
	})

	t.Run("LvalueIgnored", func(t *testing.T) {
		if !Equivalent(IntType.AsLvalue(), IntType, false) {
			t.Errorf("expected lvalue flag to be ignored")
		}
	})
}

func TestUsualArithmeticConversion(t *testing.T) {
	t.Run("Commutative", func(t *testing.T) {
		for _, a := range arithmeticTypes() {
			for _, b := range arithmeticTypes() {
				ab := UsualArithmeticConversion(a, b)
				ba := UsualArithmeticConversion(b, a)
				if !Equivalent(ab, ba, false) {
					t.Errorf("uac(%s, %s) = %s but uac(%s, %s) = %s", a, b, ab, b, a, ba)
				}
			}
		}
	})

	tests := []struct {
		a, b, want *CType
	}{
		{CharType, CharType, IntType},
		{UShortType, CharType, IntType},
		{IntType, UIntType, UIntType},
		{LongType, UIntType, LongType},
		{LongType, ULongType, ULongType},
		{IntType, LongType, LongType},
		{FloatType, ULongType, FloatType},
		{FloatType, DoubleType, DoubleType},
		{LDoubleType, CharType, LDoubleType},
	}
	for _, tt := range tests {
		got := UsualArithmeticConversion(tt.a, tt.b)
		if !Equivalent(got, tt.want, false) {
			t.Errorf("uac(%s, %s): expected %s, got %s", tt.a, tt.b, tt.want, got)
		}
	}
}

func TestConvertibleTo(t *testing.T) {
	charPtr := PointerTo(CharType)
	tests := []struct {
		name     string
		dst, src *CType
		want     bool
	}{
		{"arith", CharType, DoubleType, true},
		{"voidptr to charptr", charPtr, PointerTo(VoidType), true},
		{"charptr to voidptr", PointerTo(VoidType), charPtr, true},
		{"const char ptr", PointerTo(CharType.WithQual(Const)), charPtr, true},
		{"int ptr to char ptr", charPtr, PointerTo(IntType), false},
		{"int to ptr", charPtr, IntType, false},
		{"ptr to int", IntType, charPtr, false},
		{"function pointers",
			PointerTo(FunctionOf(CharType, []*CType{UIntType, CharType}, false)),
			PointerTo(FunctionOf(CharType, []*CType{UIntType, CharType}, false)), true},
		{"unprototyped function pointer",
			PointerTo(FunctionOf(IntType, nil, false)),
			PointerTo(FunctionOf(IntType, []*CType{LongType}, false)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertibleTo(tt.dst, tt.src); got != tt.want {
				t.Errorf("ConvertibleTo(%s, %s): expected %v, got %v", tt.dst, tt.src, tt.want, got)
			}
		})
	}
}

func TestSizeOf(t *testing.T) {
	sizes := map[*CType]int{
		CharType: 1, ShortType: 2, IntType: 4, LongType: 8,
		FloatType: 4, DoubleType: 8, LDoubleType: 8, PointerTo(CharType): 8,
	}
	for ty, want := range sizes {
		if got, err := SizeOf(ty); err != nil || got != want {
			t.Errorf("sizeof(%s): expected %d, got %d (%v)", ty, want, got, err)
		}
	}

	t.Run("Array", func(t *testing.T) {
		for _, elem := range []*CType{CharType, IntType, PointerTo(IntType), ArrayOf(ShortType, 3)} {
			for _, n := range []int{0, 1, 7} {
				es, _ := SizeOf(elem)
				got, err := SizeOf(ArrayOf(elem, n))
				if err != nil || got != n*es {
					t.Errorf("sizeof(%s[%d]): expected %d, got %d (%v)", elem, n, n*es, got, err)
				}
			}
		}
	})

	t.Run("IncompleteArray", func(t *testing.T) {
		_, err := SizeOf(IncompleteArrayOf(IntType))
		if !errors.Is(err, ErrIncomplete) {
			t.Errorf("expected incomplete type error, got %v", err)
		}
	})

	t.Run("TagAndTypedefFail", func(t *testing.T) {
		if _, err := SizeOf(TagRef(Struct, "s")); err == nil {
			t.Errorf("struct: expected error")
		}
		if _, err := SizeOf(TypedefName("size_t")); err == nil {
			t.Errorf("typedef: expected error")
		}
	})
}

func TestDecay(t *testing.T) {
	arr := ArrayOf(IntType, 4).AsLvalue()
	if d := arr.Decay(); !Equivalent(d, PointerTo(IntType), false) || d.Lvalue {
		t.Errorf("array decay: got %s", d)
	}
	fn := FunctionOf(IntType, nil, false)
	if d := fn.Decay(); !d.IsPointer() || !d.Elem.IsFunction() {
		t.Errorf("function decay: got %s", d)
	}
}
