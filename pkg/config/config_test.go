package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/jgiron42/cc1/pkg/codegen"
	"github.com/jgiron42/cc1/pkg/config"
)

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := config.Parse(nil)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if diff := pretty.Compare(c, config.Default()); diff != "" {
			t.Errorf("config diff (-got +want):\n%s", diff)
		}
	})

	t.Run("all keys", func(t *testing.T) {
		raw := "output: prog.s\nregisters: 3\nwarnings-as-errors: true\nemit-ir: true\nmetrics: true\n"
		c, err := config.Parse([]byte(raw))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		want := &config.Config{Output: "prog.s", Registers: 3, WarningsAsErrors: true, EmitIR: true, Metrics: true}
		if diff := pretty.Compare(c, want); diff != "" {
			t.Errorf("config diff (-got +want):\n%s", diff)
		}
	})

	t.Run("zero registers", func(t *testing.T) {
		c, err := config.Parse([]byte("registers: 0\n"))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if c.Registers != 0 {
			t.Errorf("Registers = %d, want 0", c.Registers)
		}
	})

	bad := map[string]string{
		"unknown key":       "optimize: true\n",
		"too many":          "registers: 12\n",
		"negative":          "registers: -1\n",
		"empty output":      "output: \"\"\n",
		"wrong scalar type": "registers: many\n",
	}
	for name, raw := range bad {
		t.Run(name, func(t *testing.T) {
			if _, err := config.Parse([]byte(raw)); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", raw)
			}
		})
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cc1.yaml")
	if err := os.WriteFile(path, []byte("registers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := config.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if c.Registers != 2 || c.Output != "out.s" {
		t.Errorf("got %+v", c)
	}

	if _, err := config.FromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("FromFile on a missing file succeeded")
	}

	if err := os.WriteFile(path, []byte("registers: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = config.FromFile(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("FromFile error = %v, want one naming %s", err, path)
	}
	if codegen.MaxRegisters != 11 {
		t.Errorf("MaxRegisters = %d, want 11", codegen.MaxRegisters)
	}
}
