// Package hls exports media as adaptive-bitrate HLS: every rendition is
// encoded by a single ffmpeg invocation with one filter chain and one output
// per rendition, segments can be AES-128 encrypted with rotating keys, and
// the master playlist is assembled from what ffmpeg wrote.
package hls

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/ffhls/internal/media"
)

// sourceLabel feeds the first filter of every rendition.
const sourceLabel = "[0]"

const glueSeparator = "_hls_"

// Glue returns the label of filter number filter (1-based) of a rendition.
func Glue(rendition, filter int) string {
	return fmt.Sprintf("[v%d%s%d]", rendition, glueSeparator, filter)
}

// BeforeGlue strips the filter suffix from a label: "[v2_hls_3]" becomes "[v2".
// Labels that were not produced by Glue are returned unchanged.
func BeforeGlue(label string) string {
	if i := strings.Index(label, glueSeparator); i >= 0 {
		return label[:i]
	}
	return label
}

// VideoFilters chains filters for one rendition. Each filter reads the
// previous filter's output, so filters must be added in the order they apply.
type VideoFilters struct {
	graph     *media.Graph
	rendition int
	count     int
	legacy    []*LegacyFilterMapping
}

// NewVideoFilters starts an empty chain for rendition on graph.
func NewVideoFilters(graph *media.Graph, rendition int) *VideoFilters {
	return &VideoFilters{graph: graph, rendition: rendition}
}

// Rendition returns the rendition index this chain belongs to.
func (v *VideoFilters) Rendition() int {
	return v.rendition
}

// Count returns how many filters were added.
func (v *VideoFilters) Count() int {
	return v.count
}

// Input returns the label the next filter reads from.
func (v *VideoFilters) Input() string {
	if v.count == 0 {
		return sourceLabel
	}
	return Glue(v.rendition, v.count)
}

// Output returns the label the next filter writes to.
func (v *VideoFilters) Output() string {
	return Glue(v.rendition, v.count+1)
}

// AddFilter adds a raw filter expression, e.g. AddFilter("scale=640:360").
// Multiple arguments are joined into one chain with commas.
func (v *VideoFilters) AddFilter(args ...string) *VideoFilters {
	v.graph.AddFilter(v.Input(), strings.Join(args, ","), v.Output())
	v.count++
	return v
}

// AddLegacyFilter adds a single-input filter. It is resolved when the export
// command is prepared, against the rendition's output format.
func (v *VideoFilters) AddLegacyFilter(f media.Filter) *VideoFilters {
	v.legacy = append(v.legacy, NewLegacyFilterMapping(v.Input(), v.Output(), f))
	v.count++
	return v
}

// Resize resizes to an exact box.
func (v *VideoFilters) Resize(width, height int, mode media.ResizeMode) *VideoFilters {
	return v.AddLegacyFilter(media.ResizeFilter{Width: width, Height: height, Mode: mode})
}

// Scale scales to width x height; a non-positive dimension keeps the aspect ratio.
func (v *VideoFilters) Scale(width, height int) *VideoFilters {
	return v.AddLegacyFilter(media.ScaleFilter{Width: width, Height: height})
}

// AddWatermark overlays an image.
func (v *VideoFilters) AddWatermark(w media.WatermarkFilter) *VideoFilters {
	return v.AddLegacyFilter(w)
}

// LegacyMappings returns the pending single-input filters in the order they were added.
func (v *VideoFilters) LegacyMappings() []*LegacyFilterMapping {
	return v.legacy
}
