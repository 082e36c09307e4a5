package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jgiron42/cc1/pkg/ast"
)

// parseReturn parses expr as the operand of a return statement.
func parseReturn(t *testing.T, expr string) *ast.Expr {
	t.Helper()
	tu, err := Parse("int f() { return " + expr + "; }")
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", expr, err)
	}
	fd := tu.Decls[0].(*ast.FunctionDef)
	return fd.Body.Items[0].(*ast.Return).X
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a[i]", "(* (a + i))"},
		{"f(a, b)[2]", "(* (f(a, b) + 2))"},
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"a = b = c", "(a = (b = c))"},
		{"a += b << 2", "(a += (b << 2))"},
		{"a ? b : c ? d : e", "(a ? b : (c ? d : e))"},
		{"x || y && z", "(x || (y && z))"},
		{"a & b == c", "(a & (b == c))"},
		{"-x++", "(- (post++ x))"},
		{"*p++", "(* (post++ p))"},
		{"!~a", "(! (~ a))"},
		{"&a[1]", "(& (* (a + 1)))"},
		{"(long)x + 1", "((cast x) + 1)"},
		{"s->m.n", "((s->m).n)"},
		{"(a, b)", "(a , b)"},
		{"'a'", "97"},
		{`"ab" "cd"`, `"abcd"`},
		{"sizeof x", "(sizeof x)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseReturn(t, tt.input).String(); got != tt.want {
				t.Errorf("parsed %q as %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseLiterals(t *testing.T) {
	tests := []struct {
		input string
		want  ast.Literal
	}{
		{"42", ast.Literal{Int: 42, Decimal: true}},
		{"0x2Aul", ast.Literal{Int: 42, Unsigned: true, Long: true}},
		{"052", ast.Literal{Int: 42}},
		{"0", ast.Literal{Int: 0, Decimal: true}},
		{"1.5", ast.Literal{Float: 1.5, IsFloat: true}},
		{"1.5f", ast.Literal{Float: 1.5, IsFloat: true, Single: true}},
		{"0.1F", ast.Literal{Float: float64(float32(0.1)), IsFloat: true, Single: true}},
		{"2.5L", ast.Literal{Float: 2.5, IsFloat: true, Long: true}},
		{"'\\n'", ast.Literal{Int: 10, Char: true}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseReturn(t, tt.input).Lit; got != tt.want {
				t.Errorf("literal %s = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

// shape renders the structure of a declarator: pointers, nesting, array
// and function layers with their parameter count.
func shape(d *ast.Declarator) string {
	return strings.Repeat("*", len(d.Pointers)) + directShape(d.Direct)
}

func directShape(d *ast.Direct) string {
	if d == nil {
		return ""
	}
	switch d.Kind {
	case ast.DirectIdent:
		return d.Name
	case ast.DirectNested:
		return "(" + shape(d.Nested) + ")"
	case ast.DirectArray:
		return directShape(d.Inner) + "[]"
	case ast.DirectFunction:
		n := len(d.Idents)
		if d.Params != nil {
			n = len(d.Params.Params)
		}
		return fmt.Sprintf("%s(%d)", directShape(d.Inner), n)
	}
	return ""
}

func TestParseDeclarators(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"int x;", "x"},
		{"char **argv[];", "**argv[]"},
		{"int a[2][3];", "a[][]"},
		{"int (*(a[4]))(int);", "(*(a[]))(1)"},
		{"int (*fp)(int, char *);", "(*fp)(2)"},
		{"void (*signal(int, void (*)(int)))(int);", "(*signal(2))(1)"},
		{"int * const * volatile p;", "**p"},
		{"int f();", "f(0)"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tu, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			d := tu.Decls[0].(*ast.Declaration)
			if got := shape(d.Inits[0].Decl); got != tt.want {
				t.Errorf("declarator shape = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseQualifiedPointers(t *testing.T) {
	tu, err := Parse("int * const * volatile p;")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	ptrs := tu.Decls[0].(*ast.Declaration).Inits[0].Decl.Pointers
	if len(ptrs) != 2 {
		t.Fatalf("got %d pointers, want 2", len(ptrs))
	}
	if ptrs[0].Qual == 0 || ptrs[1].Qual == 0 || ptrs[0].Qual == ptrs[1].Qual {
		t.Errorf("qualifiers = %v, %v; want const then volatile", ptrs[0].Qual, ptrs[1].Qual)
	}
}

func TestParseTypedefNames(t *testing.T) {
	src := `
typedef int T;
int f() {
	T * x;
	int T;
	T * 2;
	return 0;
}
`
	tu, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	items := tu.Decls[1].(*ast.FunctionDef).Body.Items
	if _, ok := items[0].(*ast.Declaration); !ok {
		t.Errorf("T * x parsed as %T, want a declaration", items[0])
	}
	if _, ok := items[2].(*ast.ExprStmt); !ok {
		t.Errorf("T * 2 after shadowing parsed as %T, want an expression", items[2])
	}
}

func TestParseStatements(t *testing.T) {
	src := `
int f(int n) {
	int i;
	for (i = 0; i < n; i++) {
		if (i == 3) continue; else break;
	}
	while (n) n--;
	do { n++; } while (n < 10);
	switch (n) {
	case 1: n = 2;
	default: ;
	}
again:
	if (n) goto again;
	return n;
}
`
	tu, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	items := tu.Decls[0].(*ast.FunctionDef).Body.Items
	want := []string{"*ast.Declaration", "*ast.For", "*ast.While", "*ast.DoWhile", "*ast.Switch", "*ast.Labeled", "*ast.Return"}
	if len(items) != len(want) {
		t.Fatalf("got %d block items, want %d", len(items), len(want))
	}
	for i, it := range items {
		if got := fmt.Sprintf("%T", it); got != want[i] {
			t.Errorf("item %d is %s, want %s", i, got, want[i])
		}
	}
}

func TestParseIdentifierList(t *testing.T) {
	tu, err := Parse("int f(a, b) int a; long b; { return a; }")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	fd := tu.Decls[0].(*ast.FunctionDef)
	if got := shape(fd.Decl); got != "f(2)" {
		t.Errorf("declarator shape = %s, want f(2)", got)
	}
	if len(fd.KRDecls) != 2 {
		t.Errorf("got %d parameter declarations, want 2", len(fd.KRDecls))
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"missing semicolon": "int main() { return 1 }",
		"empty initializer": "int x = ;",
		"unclosed block":    "int main() { return 1;",
		"bad suffix":        "int x = 10uu;",
		"stray else":        "int main() { else return 1; }",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(src)
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", src)
			}
			if !strings.Contains(err.Error(), "line 1:") {
				t.Errorf("error %q does not name the line", err)
			}
		})
	}
}
