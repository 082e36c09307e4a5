// Package config loads compiler options from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/jgiron42/cc1/pkg/codegen"
)

type Config struct {
	Output           string `yaml:"output"`             // Assembly output path. Default: out.s
	Registers        int    `yaml:"registers"`          // Size of the register pool, 0 to 11. Default: 11
	WarningsAsErrors bool   `yaml:"warnings-as-errors"` // Promote warnings to errors.
	EmitIR           bool   `yaml:"emit-ir"`            // Interleave the TAC listing as assembly comments.
	Metrics          bool   `yaml:"metrics"`            // Dump compile counters to stderr.
}

func Default() *Config {
	return &Config{
		Output:    "out.s",
		Registers: codegen.MaxRegisters,
	}
}

// Parse decodes raw on top of the defaults. Unknown keys are rejected.
func Parse(raw []byte) (*Config, error) {
	parsed := Default()
	if err := yaml.UnmarshalStrict(raw, parsed); err != nil {
		return nil, err
	}
	if err := parsed.Validate(); err != nil {
		return nil, err
	}
	return parsed, nil
}

func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Registers < 0 || c.Registers > codegen.MaxRegisters {
		return fmt.Errorf("registers must be between 0 and %d, got %d", codegen.MaxRegisters, c.Registers)
	}
	if c.Output == "" {
		return fmt.Errorf("output path is empty")
	}
	return nil
}
