package compiler

import (
	"fmt"
	"strings"

	"github.com/jgiron42/cc1/pkg/codegen"
	"github.com/jgiron42/cc1/pkg/config"
	"github.com/jgiron42/cc1/pkg/diag"
	"github.com/jgiron42/cc1/pkg/sema"
	"github.com/jgiron42/cc1/pkg/stats"
	"github.com/jgiron42/cc1/pkg/symtab"
	"github.com/jgiron42/cc1/pkg/tac"
)

// Result is everything one compilation produced. Fields are filled as far as
// the pipeline got.
type Result struct {
	Assembly    string
	Diagnostics *diag.List
	Symbols     *symtab.Table
	Program     *tac.Program
	// Trace holds the register allocation intervals per function label.
	Trace map[string][]codegen.Interval
}

// IR renders the TAC of every function.
func (r *Result) IR() string {
	if r.Program == nil {
		return ""
	}
	var b strings.Builder
	for _, fn := range r.Program.Units {
		b.WriteString(fn.String())
	}
	return b.String()
}

// Compile runs the whole pipeline on one preprocessed translation unit.
// Semantic errors are recorded in the diagnostics of the result and
// summarized by the returned error; functions that failed are left out of
// the assembly. counters may be nil.
func Compile(file, src string, cfg *config.Config, counters *stats.Collector) (*Result, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	res := &Result{Diagnostics: diag.NewList(file, src)}
	res.Diagnostics.WarningsAsErrors = cfg.WarningsAsErrors
	if counters != nil {
		res.Diagnostics.OnReport = func(sev diag.Severity) {
			counters.Diagnostics.WithLabelValues(sev.String()).Inc()
		}
	}

	tu, err := Parse(src)
	if err != nil {
		return res, fmt.Errorf("%s: %w", file, err)
	}

	res.Symbols = symtab.New()
	res.Program = sema.Analyze(tu, res.Symbols, res.Diagnostics)

	gen := codegen.New(res.Symbols, res.Program, codegen.Options{
		Registers: cfg.Registers,
		EmitIR:    cfg.EmitIR,
	})
	var out strings.Builder
	if err := gen.Generate(&out); err != nil {
		if derr := res.Diagnostics.Err(); derr != nil {
			return res, derr
		}
		return res, err
	}
	res.Assembly = out.String()
	res.Trace = gen.Trace

	if counters != nil {
		for _, fn := range res.Program.Units {
			counters.Functions.WithLabelValues(fmt.Sprint(!fn.Sym.Failed)).Inc()
			counters.Instructions.Add(float64(len(fn.Code)))
		}
		counters.Spills.Add(float64(gen.Spills))
		counters.Constants.Add(float64(len(res.Symbols.Constants())))
	}
	return res, res.Diagnostics.Err()
}
