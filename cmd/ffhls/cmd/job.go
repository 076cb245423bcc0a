package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/ffhls/internal/hls"
	"github.com/jmylchreest/ffhls/internal/media"
)

// exportJob describes one export. It is read from a YAML file with --job or
// assembled from the export command's flags.
type exportJob struct {
	Inputs           []string        `yaml:"inputs"`
	Output           string          `yaml:"output"`
	SegmentLength    int             `yaml:"segment_length"`
	KeyFrameInterval int             `yaml:"key_frame_interval"`
	EndList          *bool           `yaml:"end_list"`
	Renditions       []renditionSpec `yaml:"renditions"`
	Encryption       encryptionSpec  `yaml:"encryption"`
}

// renditionSpec is one output of the export.
type renditionSpec struct {
	Format string `yaml:"format"`
	Kbps   int    `yaml:"kbps"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	// Resize is a resize mode (fit, inset, fill, stretch). Empty scales
	// without padding or cropping.
	Resize string `yaml:"resize"`
	// Filters are raw filter expressions applied before the resize.
	Filters []string `yaml:"filters"`
}

type encryptionSpec struct {
	Enabled        bool   `yaml:"enabled"`
	Rotate         bool   `yaml:"rotate"`
	SegmentsPerKey int    `yaml:"segments_per_key"`
	Key            string `yaml:"key"` // hex, 16 bytes; empty generates one
	KeysDir        string `yaml:"keys_dir"`
}

func loadJob(path string) (*exportJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}
	var job exportJob
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parsing job file: %w", err)
	}
	return &job, nil
}

// parseRendition parses "format:kbps" with an optional ":WIDTHxHEIGHT" suffix,
// e.g. "x264:1000:1280x720".
func parseRendition(s string) (renditionSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return renditionSpec{}, fmt.Errorf("rendition %q: expected format:kbps[:WIDTHxHEIGHT]", s)
	}

	kbps, err := strconv.Atoi(parts[1])
	if err != nil || kbps <= 0 {
		return renditionSpec{}, fmt.Errorf("rendition %q: invalid bitrate %q", s, parts[1])
	}
	spec := renditionSpec{Format: parts[0], Kbps: kbps}

	if len(parts) == 3 {
		w, h, ok := strings.Cut(parts[2], "x")
		if !ok {
			return renditionSpec{}, fmt.Errorf("rendition %q: invalid size %q", s, parts[2])
		}
		if spec.Width, err = strconv.Atoi(w); err != nil {
			return renditionSpec{}, fmt.Errorf("rendition %q: invalid width %q", s, w)
		}
		if spec.Height, err = strconv.Atoi(h); err != nil {
			return renditionSpec{}, fmt.Errorf("rendition %q: invalid height %q", s, h)
		}
	}
	return spec, nil
}

func (j *exportJob) validate() error {
	var errs []error
	if len(j.Inputs) == 0 {
		errs = append(errs, errors.New("at least one input is required"))
	}
	if j.Output == "" {
		errs = append(errs, errors.New("an output is required"))
	}
	if len(j.Renditions) == 0 {
		errs = append(errs, errors.New("at least one rendition is required"))
	}
	if j.Encryption.Key != "" && j.Encryption.Rotate {
		errs = append(errs, errors.New("a static key cannot be combined with key rotation"))
	}
	return errors.Join(errs...)
}

// format resolves the rendition's media format.
func (r renditionSpec) format() (media.Format, error) {
	return media.FormatByName(r.Format, r.Kbps)
}

// filters returns the filter chain for the rendition, or nil when it has none.
func (r renditionSpec) filters() (hls.FilterFunc, error) {
	var mode media.ResizeMode
	switch strings.ToLower(r.Resize) {
	case "":
	case string(media.ResizeFit), string(media.ResizeInset), string(media.ResizeFill), string(media.ResizeStretch):
		mode = media.ResizeMode(strings.ToLower(r.Resize))
	default:
		return nil, fmt.Errorf("unknown resize mode %q", r.Resize)
	}

	sized := r.Width > 0 || r.Height > 0
	if !sized && len(r.Filters) == 0 {
		return nil, nil
	}

	return func(vf *hls.VideoFilters) {
		for _, f := range r.Filters {
			vf.AddFilter(f)
		}
		switch {
		case !sized:
		case mode != "" && r.Width > 0 && r.Height > 0:
			vf.Resize(r.Width, r.Height, mode)
		default:
			vf.Scale(r.Width, r.Height)
		}
	}, nil
}

// key decodes the static key, returning nil when one should be generated.
func (e encryptionSpec) key() ([]byte, error) {
	if e.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(e.Key)
	if err != nil {
		return nil, fmt.Errorf("decoding encryption key: %w", err)
	}
	if len(key) != hls.KeyLength {
		return nil, hls.ErrInvalidKeyLength
	}
	return key, nil
}
