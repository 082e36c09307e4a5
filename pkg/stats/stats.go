// Package stats counts what one compiler run did and renders the counters in
// the Prometheus text format.
package stats

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector owns a private registry so that several compilations in one
// process do not share counters.
type Collector struct {
	registry *prometheus.Registry

	Functions    *prometheus.CounterVec
	Instructions prometheus.Counter
	Spills       prometheus.Counter
	Diagnostics  *prometheus.CounterVec
	Constants    prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		Functions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cc1_functions",
				Help: "The number of function definitions analyzed.",
			},
			[]string{"emitted"},
		),
		Instructions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cc1_tac_instructions",
			Help: "The number of three-address instructions produced.",
		}),
		Spills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cc1_register_spills",
			Help: "The number of registers spilled to the frame.",
		}),
		Diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cc1_diagnostics",
				Help: "The number of diagnostics reported, by severity.",
			},
			[]string{"severity"},
		),
		Constants: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cc1_pooled_constants",
			Help: "The number of distinct constants in the pool.",
		}),
	}
	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(c.Functions, c.Instructions, c.Spills, c.Diagnostics, c.Constants)
	return c
}

// Dump writes every counter to w in the Prometheus text format.
func (c *Collector) Dump(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
