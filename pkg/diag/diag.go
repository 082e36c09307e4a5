// Package diag collects compiler diagnostics and renders them with their
// source line and a caret under the offending column.
package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/jgiron42/cc1/pkg/ast"
)

type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	}
	return "error"
}

type Diagnostic struct {
	Pos      ast.Pos
	Severity Severity
	Message  string
}

// List accumulates diagnostics for one translation unit.
type List struct {
	File             string
	WarningsAsErrors bool
	// OnReport, when set, is called once per recorded diagnostic.
	OnReport func(Severity)

	lines []string
	items []Diagnostic
}

func NewList(file, source string) *List {
	return &List{File: file, lines: strings.Split(source, "\n")}
}

func (l *List) Report(pos ast.Pos, sev Severity, format string, args ...any) {
	if sev == Warning && l.WarningsAsErrors {
		sev = Error
	}
	l.items = append(l.items, Diagnostic{Pos: pos, Severity: sev, Message: fmt.Sprintf(format, args...)})
	if l.OnReport != nil {
		l.OnReport(sev)
	}
}

func (l *List) Errorf(pos ast.Pos, format string, args ...any) {
	l.Report(pos, Error, format, args...)
}

func (l *List) Warnf(pos ast.Pos, format string, args ...any) {
	l.Report(pos, Warning, format, args...)
}

func (l *List) Items() []Diagnostic { return l.items }

func (l *List) ErrorCount() int {
	n := 0
	for _, d := range l.items {
		if d.Severity == Error {
			n++
		}
	}
	return n
}

func (l *List) HasErrors() bool { return l.ErrorCount() > 0 }

// Format renders one diagnostic:
//
//	main.c:3:9: error: undeclared identifier 'y'
//	    return y;
//	           ^
func (l *List) Format(d Diagnostic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%d: %s: %s\n", l.File, d.Pos.Line, d.Pos.Col, d.Severity, d.Message)
	idx := d.Pos.Line - 1
	if idx < 0 || idx >= len(l.lines) {
		return b.String()
	}
	src := strings.TrimRight(l.lines[idx], "\r")
	fmt.Fprintf(&b, "    %s\n", src)
	caret := make([]byte, 0, d.Pos.Col)
	for i := 0; i < d.Pos.Col-1 && i < len(src); i++ {
		if src[i] == '\t' {
			caret = append(caret, '\t')
		} else {
			caret = append(caret, ' ')
		}
	}
	fmt.Fprintf(&b, "    %s^\n", caret)
	return b.String()
}

func (l *List) Render(w io.Writer) error {
	for _, d := range l.items {
		if _, err := io.WriteString(w, l.Format(d)); err != nil {
			return err
		}
	}
	return nil
}

// Err summarizes the error diagnostics as a single error, or returns nil.
func (l *List) Err() error {
	n := l.ErrorCount()
	if n == 0 {
		return nil
	}
	for _, d := range l.items {
		if d.Severity == Error {
			if n == 1 {
				return fmt.Errorf("%s:%d:%d: %s", l.File, d.Pos.Line, d.Pos.Col, d.Message)
			}
			return fmt.Errorf("%s:%d:%d: %s (and %d more errors)", l.File, d.Pos.Line, d.Pos.Col, d.Message, n-1)
		}
	}
	return nil
}
