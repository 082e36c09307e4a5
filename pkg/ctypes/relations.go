package ctypes

import (
	"errors"
	"fmt"
)

const PointerSize = 8

var ErrIncomplete = errors.New("incomplete type")

// Equivalent reports whether two type trees are structurally identical.
// Lvalue flags are never compared. Plain void matches plain void regardless of
// the signedness bit.
func Equivalent(t1, t2 *CType, ignoreQualifiers bool) bool {
	type pair struct{ a, b *CType }
	work := []pair{{t1, t2}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		a, b := p.a, p.b
		if a == b {
			continue
		}
		if a == nil || b == nil || a.Kind != b.Kind {
			return false
		}
		if !ignoreQualifiers && a.Qual != b.Qual {
			return false
		}
		switch a.Kind {
		case KindPlain:
			if a.Base != b.Base {
				return false
			}
			if a.Base != Void && a.Signed != b.Signed {
				return false
			}
		case KindTag:
			if a.TagKind != b.TagKind || a.Name != b.Name {
				return false
			}
		case KindTypedef:
			if a.Name != b.Name {
				return false
			}
		case KindPointer:
			work = append(work, pair{a.Elem, b.Elem})
		case KindArray:
			if a.HasLen != b.HasLen || a.Len != b.Len {
				return false
			}
			work = append(work, pair{a.Elem, b.Elem})
		case KindFunction:
			if len(a.Params) != len(b.Params) {
				return false
			}
			for i := range a.Params {
				work = append(work, pair{a.Params[i], b.Params[i]})
			}
			work = append(work, pair{a.Elem, b.Elem})
		}
	}
	return true
}

// Compatible is the looser relation used for pointer targets and function
// signatures: top-level qualifiers are ignored, unknown array bounds match any
// bound and a function without parameter information matches any function
// with the same return type.
func Compatible(t1, t2 *CType) bool {
	type pair struct{ a, b *CType }
	work := []pair{{t1, t2}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]
		a, b := p.a, p.b
		if a.Kind != b.Kind {
			return false
		}
		switch a.Kind {
		case KindPointer:
			work = append(work, pair{a.Elem, b.Elem})
		case KindArray:
			if a.HasLen && b.HasLen && a.Len != b.Len {
				return false
			}
			work = append(work, pair{a.Elem, b.Elem})
		case KindFunction:
			work = append(work, pair{a.Elem, b.Elem})
			if !a.HasPrototype() || !b.HasPrototype() {
				continue
			}
			if a.Variadic != b.Variadic || len(a.Params) != len(b.Params) {
				return false
			}
			for i := range a.Params {
				work = append(work, pair{a.Params[i], b.Params[i]})
			}
		default:
			if !Equivalent(a, b, true) {
				return false
			}
		}
	}
	return true
}

// ConvertibleTo reports whether a value of type src may be implicitly
// converted to dst by assignment.
func ConvertibleTo(dst, src *CType) bool {
	switch {
	case dst.IsArithmetic() && src.IsArithmetic():
		return true
	case dst.IsPointer() && src.IsPointer():
		return dst.IsVoidPointer() || src.IsVoidPointer() || Compatible(dst.Elem, src.Elem)
	}
	return false
}

// Promote applies the integer promotions.
func Promote(t *CType) *CType {
	if t.Kind == KindTag && t.TagKind == Enum {
		return IntType
	}
	if t.Kind == KindPlain && (t.Base == Char || t.Base == Short) {
		return IntType
	}
	return t.AsRvalue().Unqualified()
}

// UsualArithmeticConversion returns the common type of two arithmetic
// operands. The result is independent of operand order.
func UsualArithmeticConversion(a, b *CType) *CType {
	a, b = Promote(a), Promote(b)
	has := func(base Base, signed bool) bool {
		return (a.Base == base && a.Signed == signed) || (b.Base == base && b.Signed == signed)
	}
	switch {
	case a.Base == LongDouble || b.Base == LongDouble:
		return LDoubleType
	case a.Base == Double || b.Base == Double:
		return DoubleType
	case a.Base == Float || b.Base == Float:
		return FloatType
	case has(Long, false):
		return ULongType
	case has(Long, true) && has(Int, false):
		return LongType
	case has(Long, true):
		return LongType
	case has(Int, false):
		return UIntType
	}
	return IntType
}

// SizeOf returns the storage size of t in bytes.
func SizeOf(t *CType) (int, error) {
	switch t.Kind {
	case KindPlain:
		switch t.Base {
		case Void, Char:
			return 1, nil
		case Short:
			return 2, nil
		case Int, Float:
			return 4, nil
		case Long, Double, LongDouble:
			return 8, nil
		}
	case KindPointer, KindFunction:
		return PointerSize, nil
	case KindArray:
		if !t.HasLen {
			return 0, fmt.Errorf("sizeof %s: %w", t, ErrIncomplete)
		}
		n, err := SizeOf(t.Elem)
		if err != nil {
			return 0, err
		}
		return t.Len * n, nil
	case KindTag:
		return 0, fmt.Errorf("sizeof %s: %s layout is not supported", t, t.TagKind)
	case KindTypedef:
		return 0, fmt.Errorf("sizeof %s: unresolved typedef name", t.Name)
	}
	return 0, fmt.Errorf("sizeof: unknown type kind %d", t.Kind)
}

// MustSizeOf is SizeOf for types already validated by the analyzer.
func MustSizeOf(t *CType) int {
	n, err := SizeOf(t)
	if err != nil {
		panic(err)
	}
	return n
}
