package diag

import (
	"strings"
	"testing"

	"github.com/jgiron42/cc1/pkg/ast"
)

func TestFormat(t *testing.T) {
	src := "int main() {\n\treturn y;\n}\n"
	l := NewList("main.c", src)
	l.Errorf(ast.Pos{Line: 2, Col: 9}, "undeclared identifier '%s'", "y")

	got := l.Format(l.Items()[0])
	want := "main.c:2:9: error: undeclared identifier 'y'\n    \treturn y;\n    \t       ^\n"
	if got != want {
		t.Errorf("expected:\n%q\ngot:\n%q", want, got)
	}
}

func TestSeverities(t *testing.T) {
	l := NewList("a.c", "")
	var seen []Severity
	l.OnReport = func(s Severity) { seen = append(seen, s) }

	l.Warnf(ast.Pos{Line: 1, Col: 1}, "unused")
	if l.HasErrors() {
		t.Errorf("warning should not count as error")
	}
	l.WarningsAsErrors = true
	l.Warnf(ast.Pos{Line: 1, Col: 1}, "unused")
	if l.ErrorCount() != 1 {
		t.Errorf("expected promoted warning, got %d errors", l.ErrorCount())
	}
	if len(seen) != 2 || seen[1] != Error {
		t.Errorf("OnReport: got %v", seen)
	}
	if err := l.Err(); err == nil || !strings.Contains(err.Error(), "unused") {
		t.Errorf("Err: got %v", err)
	}
}

func TestOutOfRangeLine(t *testing.T) {
	l := NewList("a.c", "x")
	l.Errorf(ast.Pos{Line: 9, Col: 1}, "eof")
	if got := l.Format(l.Items()[0]); got != "a.c:9:1: error: eof\n" {
		t.Errorf("got %q", got)
	}
}
