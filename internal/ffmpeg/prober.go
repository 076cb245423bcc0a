package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/ffhls/internal/observability"
)

// ErrUnknownDuration is returned when neither the streams nor the format
// of a probed file carry a duration.
var ErrUnknownDuration = errors.New("unknown duration")

// ProbeResult contains the complete ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	Filename       string            `json:"filename"`
	NumStreams     int               `json:"nb_streams"`
	FormatName     string            `json:"format_name"`
	FormatLongName string            `json:"format_long_name"`
	StartTime      string            `json:"start_time"`
	Duration       string            `json:"duration"`
	Size           string            `json:"size"`
	BitRate        string            `json:"bit_rate"`
	Tags           map[string]string `json:"tags"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	Profile      string            `json:"profile"`
	CodecType    string            `json:"codec_type"` // video, audio, subtitle, data
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	PixFmt       string            `json:"pix_fmt,omitempty"`
	SampleRate   string            `json:"sample_rate,omitempty"`
	Channels     int               `json:"channels,omitempty"`
	RFrameRate   string            `json:"r_frame_rate,omitempty"`
	AvgFrameRate string            `json:"avg_frame_rate,omitempty"`
	Duration     string            `json:"duration,omitempty"`
	BitRate      string            `json:"bit_rate,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	metrics     *observability.Metrics
}

// NewProber creates a new stream prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// WithMetrics records every probe outcome on m.
func (p *Prober) WithMetrics(m *observability.Metrics) *Prober {
	p.metrics = m
	return p
}

// Probe inspects path and returns its format and streams.
// inputOptions are placed before the input, e.g. "-allowed_extensions", "ALL".
func (p *Prober) Probe(ctx context.Context, path string, inputOptions ...string) (result *ProbeResult, err error) {
	defer func() { p.metrics.ObserveProbe(err) }()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}
	args = append(args, inputOptions...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	return ParseProbeOutput(output)
}

// ParseProbeOutput decodes ffprobe's JSON output.
func ParseProbeOutput(output []byte) (*ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}
	return &result, nil
}

// VideoStream returns the first video stream, or nil.
func (r *ProbeResult) VideoStream() *ProbeStream {
	return r.firstOfType("video")
}

// AudioStream returns the first audio stream, or nil.
func (r *ProbeResult) AudioStream() *ProbeStream {
	return r.firstOfType("audio")
}

// HasVideo reports whether the result contains a video stream.
func (r *ProbeResult) HasVideo() bool {
	return r.VideoStream() != nil
}

// HasAudio reports whether the result contains an audio stream.
func (r *ProbeResult) HasAudio() bool {
	return r.AudioStream() != nil
}

func (r *ProbeResult) firstOfType(codecType string) *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == codecType {
			return &r.Streams[i]
		}
	}
	return nil
}

// DurationMilliseconds returns the media duration. The first stream's
// duration wins, then the format duration, then the first stream's
// DURATION tag (HH:MM:SS.fraction, as written by the Matroska muxer).
func (r *ProbeResult) DurationMilliseconds() (int64, error) {
	var first *ProbeStream
	if len(r.Streams) > 0 {
		first = &r.Streams[0]
	}

	if first != nil {
		if ms, ok := secondsToMillis(first.Duration); ok {
			return ms, nil
		}
	}
	if ms, ok := secondsToMillis(r.Format.Duration); ok {
		return ms, nil
	}
	if first != nil {
		if tag := first.Tags["DURATION"]; tag != "" {
			if ms, ok := clockToMillis(tag); ok {
				return ms, nil
			}
		}
	}
	return 0, ErrUnknownDuration
}

// Duration is DurationMilliseconds as a time.Duration.
func (r *ProbeResult) Duration() (time.Duration, error) {
	ms, err := r.DurationMilliseconds()
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// FrameRate returns the frame rate for a video stream, or 0 when unknown.
func (s *ProbeStream) FrameRate() float64 {
	if fr := parseFramerate(s.AvgFrameRate); fr > 0 {
		return fr
	}
	return parseFramerate(s.RFrameRate)
}

// FormatFrameRate renders a frame rate the way HLS attribute lists expect it.
func FormatFrameRate(fr float64) string {
	return strconv.FormatFloat(fr, 'f', 3, 64)
}

func secondsToMillis(s string) (int64, bool) {
	if s == "" || s == "N/A" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return int64(math.Round(f * 1000)), true
}

// clockToMillis parses "HH:MM:SS.nnnnnnnnn".
func clockToMillis(s string) (int64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.Atoi(parts[0])
	mins, err2 := strconv.Atoi(parts[1])
	secs, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	total := float64(hours*3600+mins*60) + secs
	if total <= 0 {
		return 0, false
	}
	return int64(math.Round(total * 1000)), true
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	if fr == "" {
		return 0
	}
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}
