// Package media describes what ffmpeg should produce (Format), how single
// inputs are filtered (Filter, SingleMedia) and how several inputs are combined
// into one multi-output invocation (Graph, Driver).
package media

import (
	"fmt"
	"slices"
	"strings"
)

// Format is an output encoding.
type Format struct {
	Name             string `yaml:"name"`
	VideoCodec       string `yaml:"video_codec"`
	AudioCodec       string `yaml:"audio_codec"`
	KiloBitrate      int    `yaml:"kbps"`
	AudioKiloBitrate int    `yaml:"audio_kbps"`
	// AdditionalParameters are appended after the codec arguments.
	AdditionalParameters []string `yaml:"parameters"`
}

// Built-in format names.
const (
	FormatX264 = "x264"
	FormatHEVC = "hevc"
	FormatAAC  = "aac"
)

const defaultAudioKiloBitrate = 128

// NewX264 returns an H.264/AAC format at kbps.
func NewX264(kbps int) Format {
	return Format{
		Name:             FormatX264,
		VideoCodec:       "libx264",
		AudioCodec:       "aac",
		KiloBitrate:      kbps,
		AudioKiloBitrate: defaultAudioKiloBitrate,
	}
}

// NewHEVC returns an H.265/AAC format at kbps.
func NewHEVC(kbps int) Format {
	return Format{
		Name:                 FormatHEVC,
		VideoCodec:           "libx265",
		AudioCodec:           "aac",
		KiloBitrate:          kbps,
		AudioKiloBitrate:     defaultAudioKiloBitrate,
		AdditionalParameters: []string{"-tag:v", "hvc1"},
	}
}

// NewAAC returns an audio-only format.
func NewAAC(kbps int) Format {
	return Format{
		Name:             FormatAAC,
		AudioCodec:       "aac",
		AudioKiloBitrate: kbps,
	}
}

// FormatByName returns the built-in format called name.
func FormatByName(name string, kbps int) (Format, error) {
	switch strings.ToLower(name) {
	case FormatX264, "h264", "":
		return NewX264(kbps), nil
	case FormatHEVC, "h265", "x265":
		return NewHEVC(kbps), nil
	case FormatAAC:
		return NewAAC(kbps), nil
	default:
		return Format{}, fmt.Errorf("unknown format %q", name)
	}
}

// IsVideo reports whether the format encodes a video stream.
func (f Format) IsVideo() bool {
	return f.VideoCodec != ""
}

// HasParameter reports whether flag appears among the additional parameters.
func (f Format) HasParameter(flag string) bool {
	return slices.Contains(f.AdditionalParameters, flag)
}

// WithParameters returns a copy of f with args appended to its additional parameters.
func (f Format) WithParameters(args ...string) Format {
	f.AdditionalParameters = append(slices.Clone(f.AdditionalParameters), args...)
	return f
}

// WithPrependedParameters returns a copy of f with args placed before its additional parameters.
func (f Format) WithPrependedParameters(args ...string) Format {
	f.AdditionalParameters = append(slices.Clone(args), f.AdditionalParameters...)
	return f
}

// OutputArgs returns the encoding arguments of one output.
func (f Format) OutputArgs(disableAudio, disableVideo bool) []string {
	var args []string

	switch {
	case disableVideo:
		args = append(args, "-vn")
	case f.VideoCodec != "":
		args = append(args, "-c:v", f.VideoCodec)
	}

	switch {
	case disableAudio:
		args = append(args, "-an")
	case f.AudioCodec != "":
		args = append(args, "-c:a", f.AudioCodec)
		if f.AudioKiloBitrate > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%dk", f.AudioKiloBitrate))
		}
	}

	return append(args, f.AdditionalParameters...)
}
