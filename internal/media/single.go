package media

import (
	"context"
	"fmt"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// SingleMedia is one input file with a chain of single-input filters.
type SingleMedia struct {
	source  storage.Source
	prober  Prober
	filters []Filter
}

// Source returns the resolved input.
func (m *SingleMedia) Source() storage.Source {
	return m.source
}

// AddFilter appends f to the filter chain.
func (m *SingleMedia) AddFilter(f Filter) *SingleMedia {
	m.filters = append(m.filters, f)
	return m
}

// Filters returns the filters added so far.
func (m *SingleMedia) Filters() []Filter {
	return m.filters
}

// Probe inspects the input.
func (m *SingleMedia) Probe(ctx context.Context) (*ffmpeg.ProbeResult, error) {
	if m.prober == nil {
		return nil, fmt.Errorf("no prober configured")
	}
	return m.prober.Probe(ctx, m.source.Path, m.source.Options...)
}

// FilterArgs evaluates every filter against format, in order.
func (m *SingleMedia) FilterArgs(ctx context.Context, format Format) ([]string, error) {
	var args []string
	for i, f := range m.filters {
		a, err := f.Apply(ctx, m, format)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		args = append(args, a...)
	}
	return args, nil
}
