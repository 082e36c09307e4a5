// Package ctypes is the canonical C type model shared by the symbol table,
// the semantic analyzer and the code generator.
//
// A CType is a closed variant selected by Kind. Type nodes are never mutated
// once built; helpers such as WithQual and AsLvalue return shallow copies, so
// pointee/element/return subtrees can be shared freely.
package ctypes

import (
	"fmt"
	"strings"
)

type Kind int

const (
	KindPlain Kind = iota
	KindTag
	KindPointer
	KindFunction
	KindArray
	KindTypedef
)

// Base is the primitive kind of a Plain type.
type Base int

const (
	Void Base = iota
	Char
	Short
	Int
	Long
	Float
	Double
	LongDouble
)

var baseNames = [...]string{
	Void:       "void",
	Char:       "char",
	Short:      "short",
	Int:        "int",
	Long:       "long",
	Float:      "float",
	Double:     "double",
	LongDouble: "long double",
}

func (b Base) String() string {
	if int(b) < len(baseNames) {
		return baseNames[b]
	}
	return fmt.Sprintf("Base(%d)", int(b))
}

type TagKind int

const (
	Struct TagKind = iota
	Union
	Enum
)

func (k TagKind) String() string {
	switch k {
	case Struct:
		return "struct"
	case Union:
		return "union"
	case Enum:
		return "enum"
	}
	return fmt.Sprintf("TagKind(%d)", int(k))
}

// Qualifier is a bitset of type qualifiers.
type Qualifier uint8

const (
	Const Qualifier = 1 << iota
	Volatile
)

func (q Qualifier) String() string {
	var parts []string
	if q&Const != 0 {
		parts = append(parts, "const")
	}
	if q&Volatile != 0 {
		parts = append(parts, "volatile")
	}
	return strings.Join(parts, " ")
}

// CType is one node of a type tree.
//
//	Plain     Base, Signed
//	Tag       TagKind, Name
//	Pointer   Elem (pointee)
//	Function  Elem (return), Params, Variadic
//	Array     Elem (element), Len, HasLen
//	Typedef   Name
type CType struct {
	Kind Kind

	Base   Base
	Signed bool

	TagKind TagKind
	Name    string

	Elem *CType

	// An empty Params slice means "no parameter information", a sole void
	// parameter means "no arguments".
	Params   []*CType
	Variadic bool

	Len    int
	HasLen bool

	Qual   Qualifier
	Lvalue bool
}

var (
	VoidType    = &CType{Kind: KindPlain, Base: Void}
	CharType    = &CType{Kind: KindPlain, Base: Char, Signed: true}
	UCharType   = &CType{Kind: KindPlain, Base: Char}
	ShortType   = &CType{Kind: KindPlain, Base: Short, Signed: true}
	UShortType  = &CType{Kind: KindPlain, Base: Short}
	IntType     = &CType{Kind: KindPlain, Base: Int, Signed: true}
	UIntType    = &CType{Kind: KindPlain, Base: Int}
	LongType    = &CType{Kind: KindPlain, Base: Long, Signed: true}
	ULongType   = &CType{Kind: KindPlain, Base: Long}
	FloatType   = &CType{Kind: KindPlain, Base: Float, Signed: true}
	DoubleType  = &CType{Kind: KindPlain, Base: Double, Signed: true}
	LDoubleType = &CType{Kind: KindPlain, Base: LongDouble, Signed: true}
)

func Plain(b Base, signed bool) *CType {
	return &CType{Kind: KindPlain, Base: b, Signed: signed}
}

func PointerTo(elem *CType) *CType {
	return &CType{Kind: KindPointer, Elem: elem}
}

func ArrayOf(elem *CType, n int) *CType {
	return &CType{Kind: KindArray, Elem: elem, Len: n, HasLen: true}
}

// IncompleteArrayOf builds an array type whose element count is unknown.
func IncompleteArrayOf(elem *CType) *CType {
	return &CType{Kind: KindArray, Elem: elem}
}

func FunctionOf(ret *CType, params []*CType, variadic bool) *CType {
	return &CType{Kind: KindFunction, Elem: ret, Params: params, Variadic: variadic}
}

func TagRef(kind TagKind, name string) *CType {
	return &CType{Kind: KindTag, TagKind: kind, Name: name}
}

func TypedefName(name string) *CType {
	return &CType{Kind: KindTypedef, Name: name}
}

func (t *CType) clone() *CType {
	c := *t
	return &c
}

// WithQual returns a copy of t carrying the qualifiers q in addition to its own.
func (t *CType) WithQual(q Qualifier) *CType {
	if t.Qual|q == t.Qual {
		return t
	}
	c := t.clone()
	c.Qual |= q
	return c
}

// Unqualified returns a copy of t with no top-level qualifiers.
func (t *CType) Unqualified() *CType {
	if t.Qual == 0 {
		return t
	}
	c := t.clone()
	c.Qual = 0
	return c
}

func (t *CType) AsLvalue() *CType {
	if t.Lvalue {
		return t
	}
	c := t.clone()
	c.Lvalue = true
	return c
}

func (t *CType) AsRvalue() *CType {
	if !t.Lvalue {
		return t
	}
	c := t.clone()
	c.Lvalue = false
	return c
}

func (t *CType) IsVoid() bool {
	return t.Kind == KindPlain && t.Base == Void
}

func (t *CType) IsIntegral() bool {
	if t.Kind == KindTag {
		return t.TagKind == Enum
	}
	return t.Kind == KindPlain && t.Base >= Char && t.Base <= Long
}

func (t *CType) IsFloating() bool {
	return t.Kind == KindPlain && t.Base >= Float
}

func (t *CType) IsArithmetic() bool {
	return t.IsIntegral() || t.IsFloating()
}

func (t *CType) IsPointer() bool {
	return t.Kind == KindPointer
}

func (t *CType) IsScalar() bool {
	return t.IsArithmetic() || t.IsPointer()
}

func (t *CType) IsAggregate() bool {
	return t.Kind == KindArray || (t.Kind == KindTag && t.TagKind == Struct)
}

func (t *CType) IsFunction() bool {
	return t.Kind == KindFunction
}

func (t *CType) IsArray() bool {
	return t.Kind == KindArray
}

// IsVoidPointer reports whether t points to void, whatever its qualifiers.
func (t *CType) IsVoidPointer() bool {
	return t.IsPointer() && t.Elem.IsVoid()
}

// IsUnsigned reports whether values of t compare and divide as unsigned.
// Pointers are unsigned.
func (t *CType) IsUnsigned() bool {
	if t.IsPointer() {
		return true
	}
	return t.IsIntegral() && t.Kind == KindPlain && !t.Signed
}

// HasPrototype reports whether a function type carries parameter information.
func (t *CType) HasPrototype() bool {
	return len(t.Params) > 0 || t.Variadic
}

// Arity returns the number of declared parameters, treating a sole void
// parameter as zero.
func (t *CType) Arity() int {
	if len(t.Params) == 1 && t.Params[0].IsVoid() {
		return 0
	}
	return len(t.Params)
}

// Decay applies the array-to-pointer and function-to-pointer conversions.
func (t *CType) Decay() *CType {
	switch t.Kind {
	case KindArray:
		return PointerTo(t.Elem)
	case KindFunction:
		return PointerTo(t.AsRvalue())
	}
	return t.AsRvalue()
}

// Modifiable reports whether t designates an object that may be assigned.
func (t *CType) Modifiable() bool {
	return t.Lvalue && t.Qual&Const == 0 && t.Kind != KindArray && t.Kind != KindFunction && !t.IsVoid()
}

func (t *CType) String() string {
	if t == nil {
		return "<nil>"
	}
	var b strings.Builder
	if t.Qual != 0 {
		b.WriteString(t.Qual.String())
		b.WriteByte(' ')
	}
	switch t.Kind {
	case KindPlain:
		if t.IsIntegral() && !t.Signed {
			b.WriteString("unsigned ")
		}
		b.WriteString(t.Base.String())
	case KindTag:
		fmt.Fprintf(&b, "%s %s", t.TagKind, t.Name)
	case KindTypedef:
		b.WriteString(t.Name)
	case KindPointer:
		fmt.Fprintf(&b, "pointer to %s", t.Elem)
	case KindArray:
		if t.HasLen {
			fmt.Fprintf(&b, "array[%d] of %s", t.Len, t.Elem)
		} else {
			fmt.Fprintf(&b, "array[] of %s", t.Elem)
		}
	case KindFunction:
		params := make([]string, 0, len(t.Params)+1)
		for _, p := range t.Params {
			params = append(params, p.String())
		}
		if t.Variadic {
			params = append(params, "...")
		}
		fmt.Fprintf(&b, "function(%s) returning %s", strings.Join(params, ", "), t.Elem)
	}
	return b.String()
}
