package hls

import (
	"fmt"

	"github.com/jmylchreest/ffhls/internal/media"
)

// OutputMapping binds graph labels, a format and a destination into one output.
type OutputMapping struct {
	Outs              []string
	Format            media.Format
	Path              string
	ForceDisableAudio bool
	ForceDisableVideo bool
}

// Apply adds the output to graph. Video formats without an explicit -b:v
// get one from their bitrate.
func (m *OutputMapping) Apply(graph *media.Graph) {
	format := m.Format
	if format.IsVideo() && format.KiloBitrate > 0 && !format.HasParameter("-b:v") {
		format = format.WithPrependedParameters("-b:v", fmt.Sprintf("%dk", format.KiloBitrate))
	}
	graph.MapOutput(m.Outs, format, m.Path, m.ForceDisableAudio, m.ForceDisableVideo)
}

// HasOut reports whether one of the outputs belongs to the same rendition
// chain as label, ignoring the filter index.
func (m *OutputMapping) HasOut(label string) bool {
	want := BeforeGlue(label)
	for _, out := range m.Outs {
		if BeforeGlue(out) == want {
			return true
		}
	}
	return false
}
