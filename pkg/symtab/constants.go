package symtab

import (
	"fmt"
	"math"
	"strconv"
)

type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
)

// Value is a compile-time constant. Int holds the bit pattern of an integer
// constant, sign-extended for signed types and zero-extended otherwise.
type Value struct {
	Kind  ConstKind
	Int   uint64
	Float float64
	Str   string
}

func IntValue(v uint64) Value    { return Value{Kind: ConstInt, Int: v} }
func FloatValue(f float64) Value { return Value{Kind: ConstFloat, Float: f} }
func StringValue(s string) Value { return Value{Kind: ConstString, Str: s} }

func (v Value) String() string {
	switch v.Kind {
	case ConstFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ConstString:
		return strconv.Quote(v.Str)
	}
	return strconv.FormatInt(int64(v.Int), 10)
}

// Constant is a pooled value. Two constants with the same value are the same
// *Constant.
type Constant struct {
	ID int
	Value
}

func (c *Constant) String() string { return c.Value.String() }

// InRodata reports whether the constant lives in memory rather than as an
// immediate operand.
func (c *Constant) InRodata() bool { return c.Kind != ConstInt }

func (c *Constant) Label() string { return fmt.Sprintf(".LC%d", c.ID) }

type poolKey struct {
	kind ConstKind
	bits uint64
	str  string
}

type pool struct {
	byValue map[poolKey]*Constant
	list    []*Constant
}

func newPool() pool {
	return pool{byValue: make(map[poolKey]*Constant)}
}

func keyOf(v Value) poolKey {
	switch v.Kind {
	case ConstFloat:
		return poolKey{kind: ConstFloat, bits: math.Float64bits(v.Float)}
	case ConstString:
		return poolKey{kind: ConstString, str: v.Str}
	}
	return poolKey{kind: ConstInt, bits: v.Int}
}

// NewConstant returns the pooled constant for v, adding it on first use.
func (t *Table) NewConstant(v Value) *Constant {
	k := keyOf(v)
	if c, ok := t.pool.byValue[k]; ok {
		return c
	}
	c := &Constant{ID: len(t.pool.list), Value: v}
	t.pool.byValue[k] = c
	t.pool.list = append(t.pool.list, c)
	return c
}

// Constants returns every pooled constant in creation order.
func (t *Table) Constants() []*Constant { return t.pool.list }
