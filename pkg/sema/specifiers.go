package sema

import (
	"fmt"

	"github.com/jgiron42/cc1/pkg/ast"
	"github.com/jgiron42/cc1/pkg/ctypes"
	"github.com/jgiron42/cc1/pkg/symtab"
)

var storageOf = map[ast.StorageClass]symtab.Storage{
	ast.StorageTypedef:  symtab.Typedef,
	ast.StorageExtern:   symtab.Extern,
	ast.StorageStatic:   symtab.Static,
	ast.StorageAuto:     symtab.Auto,
	ast.StorageRegister: symtab.Register,
}

// specifiers resolves a declaration-specifier list to its base type and
// storage class. On conflicting specifiers it reports and returns its best
// guess.
func (a *Analyzer) specifiers(ds *ast.DeclSpecs) (*ctypes.CType, symtab.Storage) {
	storage := symtab.Undefined
	if len(ds.Storage) > 1 {
		a.errorf(ds.Pos, "multiple storage classes in declaration specifiers")
	}
	if len(ds.Storage) > 0 {
		storage = storageOf[ds.Storage[0]]
	}
	return a.typeSpecifiers(ds).WithQual(ds.Qual), storage
}

func (a *Analyzer) typeSpecifiers(ds *ast.DeclSpecs) *ctypes.CType {
	var count [ast.SpecTypedefName + 1]int
	var named *ast.TypeSpec
	for _, s := range ds.Specs {
		count[s.Kind]++
		if s.Kind >= ast.SpecStruct {
			if named != nil {
				a.errorf(s.Pos, "two or more data types in declaration specifiers")
				continue
			}
			named = s
		}
	}

	if named != nil {
		if len(ds.Specs) > 1 {
			a.errorf(named.Pos, "cannot combine %s with other type specifiers", describeSpec(named))
		}
		return a.namedSpecifier(named)
	}

	signed, unsigned := count[ast.SpecSigned], count[ast.SpecUnsigned]
	if signed+unsigned > 1 {
		a.errorf(ds.Pos, "conflicting signedness specifiers")
	}
	sign := unsigned == 0
	conflict := func() *ctypes.CType {
		a.errorf(ds.Pos, "invalid combination of type specifiers")
		return ctypes.IntType
	}

	switch {
	case count[ast.SpecVoid] > 0:
		if len(ds.Specs) > 1 {
			return conflict()
		}
		return ctypes.VoidType
	case count[ast.SpecChar] > 0:
		if count[ast.SpecChar] > 1 || len(ds.Specs) != 1+signed+unsigned {
			return conflict()
		}
		// Plain char is unsigned.
		return ctypes.Plain(ctypes.Char, signed > 0)
	case count[ast.SpecFloat] > 0:
		if len(ds.Specs) > 1 {
			return conflict()
		}
		return ctypes.FloatType
	case count[ast.SpecDouble] > 0:
		if count[ast.SpecDouble] > 1 || len(ds.Specs) != 1+count[ast.SpecLong] || count[ast.SpecLong] > 1 {
			return conflict()
		}
		if count[ast.SpecLong] == 1 {
			return ctypes.LDoubleType
		}
		return ctypes.DoubleType
	case count[ast.SpecShort] > 0:
		if count[ast.SpecShort] > 1 || count[ast.SpecLong] > 0 || count[ast.SpecInt] > 1 {
			return conflict()
		}
		return ctypes.Plain(ctypes.Short, sign)
	case count[ast.SpecLong] > 0:
		if count[ast.SpecLong] > 2 || count[ast.SpecInt] > 1 {
			return conflict()
		}
		return ctypes.Plain(ctypes.Long, sign)
	case count[ast.SpecInt] > 1:
		return conflict()
	case len(ds.Specs) == 0:
		a.warnf(ds.Pos, "type specifier missing, defaults to 'int'")
	}
	return ctypes.Plain(ctypes.Int, sign)
}

func describeSpec(s *ast.TypeSpec) string {
	if s.Kind == ast.SpecTypedefName {
		return fmt.Sprintf("typedef name '%s'", s.Name)
	}
	return s.Kind.String()
}

func (a *Analyzer) namedSpecifier(s *ast.TypeSpec) *ctypes.CType {
	switch s.Kind {
	case ast.SpecTypedefName:
		o := a.syms.RetrieveOrdinary(s.Name)
		if o == nil || o.Storage != symtab.Typedef {
			a.errorf(s.Pos, "unknown type name '%s'", s.Name)
			return ctypes.IntType
		}
		return o.Type
	case ast.SpecStruct, ast.SpecUnion, ast.SpecEnum:
		return a.tagSpecifier(s)
	}
	panic(fmt.Sprintf("sema: unexpected specifier %v", s.Kind))
}

func (a *Analyzer) tagSpecifier(s *ast.TypeSpec) *ctypes.CType {
	kind := map[ast.SpecKind]ctypes.TagKind{
		ast.SpecStruct: ctypes.Struct,
		ast.SpecUnion:  ctypes.Union,
		ast.SpecEnum:   ctypes.Enum,
	}[s.Kind]

	name := s.Name
	if name == "" {
		name = fmt.Sprintf("<anonymous %d>", a.anon)
		a.anon++
	}

	if s.Defined {
		var decl any = s.Fields
		if kind == ctypes.Enum {
			decl = s.Enumerators
		}
		if _, err := a.syms.AssignTag(name, kind, decl); err != nil {
			a.errorf(s.Pos, "%v", err)
		}
		return ctypes.TagRef(kind, name)
	}

	if tag := a.syms.RetrieveTag(name); tag != nil {
		if tag.Kind != kind {
			a.errorf(s.Pos, "use of '%s' with tag type that does not match previous declaration", name)
		}
		return ctypes.TagRef(tag.Kind, name)
	}
	if _, err := a.syms.DeclareTag(name, kind); err != nil {
		a.errorf(s.Pos, "%v", err)
	}
	return ctypes.TagRef(kind, name)
}

// typeName resolves the operand of a cast or sizeof.
func (a *Analyzer) typeName(tn *ast.TypeName) (*ctypes.CType, bool) {
	base, storage := a.specifiers(tn.Specs)
	if storage != symtab.Undefined {
		a.errorf(tn.Specs.Pos, "storage class in type name")
	}
	if tn.Decl == nil {
		return base, true
	}
	r, ok := a.declarator(base, tn.Decl)
	if ok && r.name != "" {
		a.errorf(r.pos, "unexpected identifier '%s' in type name", r.name)
		ok = false
	}
	return r.typ, ok
}
