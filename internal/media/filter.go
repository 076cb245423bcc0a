package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Filter produces the ffmpeg arguments that apply it to a single input,
// e.g. []string{"-vf", "scale=640:360"}.
type Filter interface {
	Apply(ctx context.Context, m *SingleMedia, f Format) ([]string, error)
}

// FuncFilter adapts a function to Filter.
type FuncFilter func(ctx context.Context, m *SingleMedia, f Format) ([]string, error)

// Apply implements Filter.
func (fn FuncFilter) Apply(ctx context.Context, m *SingleMedia, f Format) ([]string, error) {
	return fn(ctx, m, f)
}

// CustomFilter is a raw video filter expression such as "hflip,eq=contrast=1.2".
type CustomFilter string

// Apply implements Filter.
func (c CustomFilter) Apply(context.Context, *SingleMedia, Format) ([]string, error) {
	if strings.TrimSpace(string(c)) == "" {
		return nil, fmt.Errorf("empty filter expression")
	}
	return []string{"-vf", string(c)}, nil
}

// ScaleFilter scales to Width x Height. A non-positive dimension keeps the
// aspect ratio (rounded to an even number of pixels).
type ScaleFilter struct {
	Width  int
	Height int
}

// Apply implements Filter.
func (s ScaleFilter) Apply(context.Context, *SingleMedia, Format) ([]string, error) {
	if s.Width <= 0 && s.Height <= 0 {
		return nil, fmt.Errorf("scale needs a width or a height")
	}
	return []string{"-vf", fmt.Sprintf("scale=%d:%d", evenOrAuto(s.Width), evenOrAuto(s.Height))}, nil
}

func evenOrAuto(n int) int {
	if n <= 0 {
		return -2
	}
	return n
}

// ResizeMode controls how the source aspect ratio is treated by ResizeFilter.
type ResizeMode string

// Resize modes.
const (
	// ResizeFit scales down to fit inside the box and pads the rest.
	ResizeFit ResizeMode = "fit"
	// ResizeInset scales down to fit inside the box without padding.
	ResizeInset ResizeMode = "inset"
	// ResizeFill scales up to cover the box and crops the overflow.
	ResizeFill ResizeMode = "fill"
	// ResizeStretch ignores the aspect ratio.
	ResizeStretch ResizeMode = "stretch"
)

// ResizeFilter resizes to an exact box.
type ResizeFilter struct {
	Width  int
	Height int
	Mode   ResizeMode
}

// Apply implements Filter.
func (r ResizeFilter) Apply(context.Context, *SingleMedia, Format) ([]string, error) {
	if r.Width <= 0 || r.Height <= 0 {
		return nil, fmt.Errorf("resize needs a positive width and height, got %dx%d", r.Width, r.Height)
	}

	w, h := r.Width, r.Height
	var expr string
	switch r.Mode {
	case ResizeFit, "":
		expr = fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
	case ResizeInset:
		expr = fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", w, h)
	case ResizeFill:
		expr = fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=increase,crop=%d:%d", w, h, w, h)
	case ResizeStretch:
		expr = fmt.Sprintf("scale=%d:%d", w, h)
	default:
		return nil, fmt.Errorf("unknown resize mode %q", r.Mode)
	}
	return []string{"-vf", expr}, nil
}

// WatermarkFilter overlays an image file on the video.
type WatermarkFilter struct {
	// Path is a local image path.
	Path string
	// X and Y are overlay position expressions, e.g. "10" or "main_w-overlay_w-10".
	X string
	Y string
	// Width scales the watermark; 0 keeps its size.
	Width int
}

// Apply implements Filter. The result is a single chain with one unlabeled
// input and output, so it can be spliced between two graph labels.
func (w WatermarkFilter) Apply(context.Context, *SingleMedia, Format) ([]string, error) {
	if w.Path == "" {
		return nil, fmt.Errorf("watermark needs an image path")
	}
	x, y := w.X, w.Y
	if x == "" {
		x = "0"
	}
	if y == "" {
		y = "0"
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	base := "[wmbase_" + token + "]"
	mark := "[wm_" + token + "]"

	source := "movie=" + escapeFilterPath(w.Path)
	if w.Width > 0 {
		source += fmt.Sprintf(",scale=%d:-1", w.Width)
	}

	expr := fmt.Sprintf("null%s;%s%s;%s%soverlay=%s:%s", base, source, mark, base, mark, x, y)
	return []string{"-vf", expr}, nil
}

// escapeFilterPath quotes a path for use as a filter option value.
func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, `\\`)
	p = strings.ReplaceAll(p, `'`, `'\''`)
	return "'" + p + "'"
}
