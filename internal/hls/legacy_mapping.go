package hls

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jmylchreest/ffhls/internal/media"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// ErrMissingOutputMapping is returned when a filter writes to a label that no output consumes.
var ErrMissingOutputMapping = errors.New("no output mapping for filter output")

// singleInputFlags introduce a filter in single-input form and are dropped
// when the filter is moved into the complex graph.
var singleInputFlags = map[string]bool{
	"-vf":             true,
	"-filter:v":       true,
	"-filter_complex": true,
}

// LegacyFilterMapping is a single-input filter waiting to be placed between
// two labels of the complex graph.
type LegacyFilterMapping struct {
	In     string
	Out    string
	Filter media.Filter
}

// NewLegacyFilterMapping creates a mapping from in to out.
func NewLegacyFilterMapping(in, out string, f media.Filter) *LegacyFilterMapping {
	return &LegacyFilterMapping{In: in, Out: out, Filter: f}
}

// NormalizeIn returns the input index encoded in In: every non-digit of the
// de-glued label is dropped, so "[2]", "[2v]" and "2" all yield 2.
func (m *LegacyFilterMapping) NormalizeIn() int {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, BeforeGlue(m.In))

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Apply evaluates the filter on a fresh single-input instance of the source
// selected by NormalizeIn, using the format of the output that consumes Out,
// and adds the resulting expression to graph as "In expr Out".
func (m *LegacyFilterMapping) Apply(ctx context.Context, driver *media.Driver, sources []storage.Source, graph *media.Graph, mappings []*OutputMapping) error {
	if len(sources) == 0 {
		return fmt.Errorf("applying filter %s: no sources", m.Out)
	}
	index := m.NormalizeIn()
	if index < 0 || index >= len(sources) {
		index = 0
	}

	single := driver.OpenSingle(sources[index])
	single.AddFilter(m.Filter)

	format, err := formatFor(mappings, m.Out)
	if err != nil {
		return err
	}

	args, err := m.Filter.Apply(ctx, single, format)
	if err != nil {
		return fmt.Errorf("applying filter %s: %w", m.Out, err)
	}

	graph.AddFilter(m.In, filterExpression(args), m.Out)
	return nil
}

func formatFor(mappings []*OutputMapping, label string) (media.Format, error) {
	for _, om := range mappings {
		if om.HasOut(label) {
			return om.Format, nil
		}
	}
	return media.Format{}, fmt.Errorf("%w: %s", ErrMissingOutputMapping, label)
}

// filterExpression drops single-input flags and joins what remains.
func filterExpression(args []string) string {
	kept := make([]string, 0, len(args))
	for _, a := range args {
		if !singleInputFlags[a] {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return "null"
	}
	return strings.Join(kept, " ")
}
