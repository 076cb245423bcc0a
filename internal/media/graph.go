package media

import (
	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// Graph is a multi-input, multi-output invocation under construction:
// every input, one complex filter graph and one output group per mapping.
type Graph struct {
	sources []storage.Source
	builder *ffmpeg.CommandBuilder
}

// Sources returns the inputs in the order they were opened.
func (g *Graph) Sources() []storage.Source {
	return g.sources
}

// AddFilter adds a labeled clause: in + expr + out, e.g. "[0]scale=640:360[v0_hls_1]".
func (g *Graph) AddFilter(in, expr, out string) *Graph {
	g.builder.FilterClause(in + expr + out)
	return g
}

// AddFilterClause adds a complete clause verbatim.
func (g *Graph) AddFilterClause(clause string) *Graph {
	g.builder.FilterClause(clause)
	return g
}

// FilterClauses returns the clauses added so far.
func (g *Graph) FilterClauses() []string {
	return g.builder.FilterGraph()
}

// MapOutput adds one output file fed by the given graph labels or stream specifiers.
func (g *Graph) MapOutput(outs []string, format Format, path string, disableAudio, disableVideo bool) *Graph {
	g.builder.Output(ffmpeg.OutputGroup{
		Maps: outs,
		Args: format.OutputArgs(disableAudio, disableVideo),
		Path: path,
	})
	return g
}

// Outputs returns the output groups added so far.
func (g *Graph) Outputs() []ffmpeg.OutputGroup {
	return g.builder.Outputs()
}

// Command builds the invocation.
func (g *Graph) Command() *ffmpeg.Command {
	return g.builder.Build()
}
