// Package ast is the syntax tree handed from the parser to the semantic
// analyzer. Only the shape is shared; the parser owns the grammar.
package ast

import (
	"fmt"
	"strings"

	"github.com/jgiron42/cc1/pkg/ctypes"
)

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

//  Declarations

type StorageClass int

const (
	StorageNone StorageClass = iota
	StorageTypedef
	StorageExtern
	StorageStatic
	StorageAuto
	StorageRegister
)

func (s StorageClass) String() string {
	return [...]string{"", "typedef", "extern", "static", "auto", "register"}[s]
}

type SpecKind int

const (
	SpecVoid SpecKind = iota
	SpecChar
	SpecShort
	SpecInt
	SpecLong
	SpecFloat
	SpecDouble
	SpecSigned
	SpecUnsigned
	SpecStruct
	SpecUnion
	SpecEnum
	SpecTypedefName
)

var specNames = [...]string{
	SpecVoid: "void", SpecChar: "char", SpecShort: "short", SpecInt: "int",
	SpecLong: "long", SpecFloat: "float", SpecDouble: "double",
	SpecSigned: "signed", SpecUnsigned: "unsigned",
	SpecStruct: "struct", SpecUnion: "union", SpecEnum: "enum",
}

func (k SpecKind) String() string { return specNames[k] }

// TypeSpec is one type specifier keyword, or a struct/union/enum specifier,
// or a typedef name.
type TypeSpec struct {
	Kind SpecKind
	// Name is the typedef name, or the tag of a struct/union/enum ("" when
	// anonymous).
	Name string
	// Fields is the member list of a struct/union definition.
	Fields []*Declaration
	// Enumerators is the list of an enum definition.
	Enumerators []*Enumerator
	// Defined is set when the specifier carries a body in braces.
	Defined bool
	Pos     Pos
}

type Enumerator struct {
	Name  string
	Value *Expr
	Pos   Pos
}

// DeclSpecs is a declaration-specifier list.
//
//	static const unsigned long x;
//	^^^^^^ ^^^^^ ^^^^^^^^^^^^^
//	Storage Qual  Specs
type DeclSpecs struct {
	Storage []StorageClass
	Specs   []*TypeSpec
	Qual    ctypes.Qualifier
	Pos     Pos
}

// Pointer is one '*' of a declarator with its qualifiers.
type Pointer struct {
	Qual ctypes.Qualifier
}

// Declarator is a pointer list followed by a direct declarator.
//
//	* const * (name)[4]
//	^^^^^^^^^ ^^^^^^^^^
//	Pointers  Direct
type Declarator struct {
	Pointers []Pointer
	Direct   *Direct
	Pos      Pos
}

type DirectKind int

const (
	DirectEmpty DirectKind = iota
	DirectIdent
	DirectNested
	DirectArray
	DirectFunction
)

// Direct is a direct declarator. Array and function layers wrap the direct
// declarator written to their left:
//
//	a[2][3]  =>  Array{Size: 3, Inner: Array{Size: 2, Inner: Ident{a}}}
//	(*f)(int) => Function{Params: [int], Inner: Nested{*f}}
type Direct struct {
	Kind   DirectKind
	Name   string
	Nested *Declarator
	Inner  *Direct
	// Size is the array bound, nil when omitted.
	Size *Expr
	// Params is set for a parameter-type-list, Idents for a K&R identifier
	// list. Both are empty for "()".
	Params *ParamList
	Idents []string
	Pos    Pos
}

type ParamList struct {
	Params   []*ParamDecl
	Variadic bool
}

type ParamDecl struct {
	Specs *DeclSpecs
	// Decl may be abstract (no name) or nil.
	Decl *Declarator
	Pos  Pos
}

type Initializer struct {
	Expr *Expr
	List []*Initializer
	Pos  Pos
}

type InitDeclarator struct {
	Decl *Declarator
	Init *Initializer
}

type Declaration struct {
	Specs *DeclSpecs
	Inits []*InitDeclarator
	Pos   Pos
}

func (*Declaration) blockItem()    {}
func (*Declaration) externalNode() {}

// TypeName is the operand of a cast or of sizeof(type).
type TypeName struct {
	Specs *DeclSpecs
	Decl  *Declarator
}

// FunctionDef is a function definition. KRDecls holds the declaration list of
// an identifier-list definition.
type FunctionDef struct {
	Specs   *DeclSpecs
	Decl    *Declarator
	KRDecls []*Declaration
	Body    *Compound
	Pos     Pos
}

func (*FunctionDef) externalNode() {}

// External is a top-level declaration or function definition.
type External interface {
	externalNode()
}

type TranslationUnit struct {
	File  string
	Decls []External
}

//  Expression nodes

type Op int

const (
	Ident Op = iota
	Constant
	StringLit
	SizeofType
	Member
	PtrMember

	PostInc
	PostDec
	PreInc
	PreDec
	AddrOf
	Deref
	Plus
	Minus
	BitNot
	LogNot
	SizeofExpr
	Cast

	Mul
	Div
	Mod
	Add
	Sub
	Shl
	Shr
	Lt
	Gt
	Le
	Ge
	Eq
	Ne
	BitAnd
	BitXor
	BitOr
	LogAnd
	LogOr
	Assign
	MulAssign
	DivAssign
	ModAssign
	AddAssign
	SubAssign
	ShlAssign
	ShrAssign
	AndAssign
	XorAssign
	OrAssign
	Comma

	Ternary
	Call
)

var opNames = [...]string{
	Ident: "ident", Constant: "const", StringLit: "string", SizeofType: "sizeof",
	Member: ".", PtrMember: "->",
	PostInc: "post++", PostDec: "post--", PreInc: "++", PreDec: "--",
	AddrOf: "&", Deref: "*", Plus: "+", Minus: "-", BitNot: "~", LogNot: "!",
	SizeofExpr: "sizeof", Cast: "cast",
	Mul: "*", Div: "/", Mod: "%", Add: "+", Sub: "-", Shl: "<<", Shr: ">>",
	Lt: "<", Gt: ">", Le: "<=", Ge: ">=", Eq: "==", Ne: "!=",
	BitAnd: "&", BitXor: "^", BitOr: "|", LogAnd: "&&", LogOr: "||",
	Assign: "=", MulAssign: "*=", DivAssign: "/=", ModAssign: "%=", AddAssign: "+=",
	SubAssign: "-=", ShlAssign: "<<=", ShrAssign: ">>=", AndAssign: "&=",
	XorAssign: "^=", OrAssign: "|=", Comma: ",",
	Ternary: "?:", Call: "call",
}

func (o Op) String() string { return opNames[o] }

func (o Op) IsUnary() bool { return o >= PostInc && o <= Cast }

func (o Op) IsBinary() bool { return o >= Mul && o <= Comma }

func (o Op) IsCompoundAssign() bool { return o >= MulAssign && o <= OrAssign }

// Arithmetic returns the binary operator applied by a compound assignment.
func (o Op) Arithmetic() Op {
	switch o {
	case MulAssign:
		return Mul
	case DivAssign:
		return Div
	case ModAssign:
		return Mod
	case AddAssign:
		return Add
	case SubAssign:
		return Sub
	case ShlAssign:
		return Shl
	case ShrAssign:
		return Shr
	case AndAssign:
		return BitAnd
	case XorAssign:
		return BitXor
	case OrAssign:
		return BitOr
	}
	return o
}

// Literal is the value of a numeric or character constant with the suffix
// information needed to type it.
//
//	10ul  => Literal{Int: 10, Unsigned: true, Long: true}
//	'a'   => Literal{Int: 97, Char: true}
//	1.5f  => Literal{Float: 1.5, IsFloat: true, Single: true}
type Literal struct {
	Int      uint64
	Float    float64
	IsFloat  bool
	Unsigned bool
	Long     bool
	Single   bool
	Char     bool
	// Decimal is set for decimal integer constants, which never become
	// unsigned implicitly.
	Decimal bool
}

// Expr is an expression node. Args holds the operands in source order; for a
// Call, Args[0] is the callee.
type Expr struct {
	Op   Op
	Args []*Expr
	Name string
	Lit  Literal
	Str  string
	Type *TypeName
	Pos  Pos
}

func (e *Expr) String() string {
	switch e.Op {
	case Ident:
		return e.Name
	case Constant:
		if e.Lit.IsFloat {
			return fmt.Sprintf("%g", e.Lit.Float)
		}
		return fmt.Sprintf("%d", e.Lit.Int)
	case StringLit:
		return fmt.Sprintf("%q", e.Str)
	case SizeofType:
		return "sizeof(type)"
	case Member, PtrMember:
		return fmt.Sprintf("(%s%s%s)", e.Args[0], e.Op, e.Name)
	case Cast:
		return fmt.Sprintf("(cast %s)", e.Args[0])
	case Call:
		args := make([]string, 0, len(e.Args)-1)
		for _, a := range e.Args[1:] {
			args = append(args, a.String())
		}
		return fmt.Sprintf("%s(%s)", e.Args[0], strings.Join(args, ", "))
	case Ternary:
		return fmt.Sprintf("(%s ? %s : %s)", e.Args[0], e.Args[1], e.Args[2])
	}
	if e.Op.IsUnary() {
		return fmt.Sprintf("(%s %s)", e.Op, e.Args[0])
	}
	return fmt.Sprintf("(%s %s %s)", e.Args[0], e.Op, e.Args[1])
}

//  Statement nodes

// BlockItem is a statement or a declaration inside a compound statement.
type BlockItem interface {
	blockItem()
}

// Stmt is implemented by every statement node.
type Stmt interface {
	BlockItem
	stmtNode()
	Position() Pos
}

type Compound struct {
	Items []BlockItem
	Pos   Pos
}

// ExprStmt is an expression statement; X is nil for ";".
type ExprStmt struct {
	X   *Expr
	Pos Pos
}

type If struct {
	Cond *Expr
	Then Stmt
	Else Stmt
	Pos  Pos
}

type While struct {
	Cond *Expr
	Body Stmt
	Pos  Pos
}

type DoWhile struct {
	Body Stmt
	Cond *Expr
	Pos  Pos
}

// For has optional Init, Cond and Post clauses.
type For struct {
	Init *Expr
	Cond *Expr
	Post *Expr
	Body Stmt
	Pos  Pos
}

type Switch struct {
	X    *Expr
	Body Stmt
	Pos  Pos
}

type Case struct {
	Value *Expr
	Body  Stmt
	Pos   Pos
}

type Default struct {
	Body Stmt
	Pos  Pos
}

type Labeled struct {
	Name string
	Body Stmt
	Pos  Pos
}

type Goto struct {
	Name string
	Pos  Pos
}

type Continue struct{ Pos Pos }

type Break struct{ Pos Pos }

type Return struct {
	X   *Expr
	Pos Pos
}

func (*Compound) blockItem() {}
func (*ExprStmt) blockItem() {}
func (*If) blockItem()       {}
func (*While) blockItem()    {}
func (*DoWhile) blockItem()  {}
func (*For) blockItem()      {}
func (*Switch) blockItem()   {}
func (*Case) blockItem()     {}
func (*Default) blockItem()  {}
func (*Labeled) blockItem()  {}
func (*Goto) blockItem()     {}
func (*Continue) blockItem() {}
func (*Break) blockItem()    {}
func (*Return) blockItem()   {}

func (*Compound) stmtNode() {}
func (*ExprStmt) stmtNode() {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*DoWhile) stmtNode()  {}
func (*For) stmtNode()      {}
func (*Switch) stmtNode()   {}
func (*Case) stmtNode()     {}
func (*Default) stmtNode()  {}
func (*Labeled) stmtNode()  {}
func (*Goto) stmtNode()     {}
func (*Continue) stmtNode() {}
func (*Break) stmtNode()    {}
func (*Return) stmtNode()   {}

func (s *Compound) Position() Pos { return s.Pos }
func (s *ExprStmt) Position() Pos { return s.Pos }
func (s *If) Position() Pos       { return s.Pos }
func (s *While) Position() Pos    { return s.Pos }
func (s *DoWhile) Position() Pos  { return s.Pos }
func (s *For) Position() Pos      { return s.Pos }
func (s *Switch) Position() Pos   { return s.Pos }
func (s *Case) Position() Pos     { return s.Pos }
func (s *Default) Position() Pos  { return s.Pos }
func (s *Labeled) Position() Pos  { return s.Pos }
func (s *Goto) Position() Pos     { return s.Pos }
func (s *Continue) Position() Pos { return s.Pos }
func (s *Break) Position() Pos    { return s.Pos }
func (s *Return) Position() Pos   { return s.Pos }
