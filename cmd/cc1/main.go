// Command cc1 compiles one preprocessed C file to x86-64 assembly.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jgiron42/cc1/pkg/compiler"
	"github.com/jgiron42/cc1/pkg/config"
	"github.com/jgiron42/cc1/pkg/stats"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	outPath := flag.String("o", "", "output assembly file path (default: from config, or the input with .s extension)")
	configPath := flag.String("config", "", "YAML options file")
	registers := flag.Int("registers", -1, "number of allocatable registers, 0 to 11")
	emitIR := flag.Bool("emit-ir", false, "interleave the TAC listing as assembly comments")
	dumpTokens := flag.Bool("tokens", false, "print the token stream and stop")
	metrics := flag.Bool("metrics", false, "dump compile counters to stderr")
	verbose := flag.Bool("v", false, "log progress")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cc1 [flags] file.c")
		flag.PrintDefaults()
		os.Exit(2)
	}
	inPath := flag.Arg(0)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.FromFile(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			cfg.Output = *outPath
		case "registers":
			cfg.Registers = *registers
		case "emit-ir":
			cfg.EmitIR = *emitIR
		case "metrics":
			cfg.Metrics = *metrics
		}
	})
	if *outPath == "" && *configPath == "" {
		cfg.Output = defaultOutputPath(inPath)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	source, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", inPath, err)
		os.Exit(1)
	}

	if *dumpTokens {
		tokens, err := compiler.Lex(string(source))
		for _, tok := range tokens {
			fmt.Println(tok)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "lex error:", err)
			os.Exit(1)
		}
		return
	}

	counters := stats.New()
	if *verbose {
		log.Printf("compiling %s with %d registers", inPath, cfg.Registers)
	}
	res, err := compiler.Compile(inPath, string(source), cfg, counters)
	if res.Diagnostics != nil {
		if rerr := res.Diagnostics.Render(os.Stderr); rerr != nil {
			log.Fatal(rerr)
		}
	}
	if cfg.Metrics {
		if derr := counters.Dump(os.Stderr); derr != nil {
			log.Fatal(derr)
		}
	}
	if err != nil {
		if res.Diagnostics == nil || !res.Diagnostics.HasErrors() {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if err := os.WriteFile(cfg.Output, []byte(res.Assembly), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write assembly file %q: %v\n", cfg.Output, err)
		os.Exit(1)
	}
	if *verbose {
		log.Printf("wrote %d functions to %s", len(res.Program.Units), cfg.Output)
	}
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".s"
	}
	return strings.TrimSuffix(inPath, ext) + ".s"
}
