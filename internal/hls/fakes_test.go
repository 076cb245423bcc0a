package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
)

// fakeProber returns the same result for every path.
type fakeProber struct {
	mu     sync.Mutex
	result *ffmpeg.ProbeResult
	err    error
	calls  []string
}

func (p *fakeProber) Probe(_ context.Context, path string, opts ...string) (*ffmpeg.ProbeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, strings.Join(append([]string{path}, opts...), " "))
	if p.err != nil {
		return nil, p.err
	}
	if p.result == nil {
		return nil, errors.New("no probe result")
	}
	return p.result, nil
}

func videoWithAudio() *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{
		Format: ffmpeg.ProbeFormat{Duration: "20.000000"},
		Streams: []ffmpeg.ProbeStream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 1280, Height: 720, RFrameRate: "25/1", AvgFrameRate: "25/1"},
			{Index: 1, CodecType: "audio", CodecName: "aac"},
		},
	}
}

func videoOnly() *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{
		Format: ffmpeg.ProbeFormat{Duration: "20.000000"},
		Streams: []ffmpeg.ProbeStream{
			{Index: 0, CodecType: "video", CodecName: "h264", RFrameRate: "30000/1001", AvgFrameRate: "30000/1001"},
		},
	}
}

func audioOnlyResult() *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{
		Streams: []ffmpeg.ProbeStream{{Index: 0, CodecType: "audio", CodecName: "aac"}},
	}
}

// fakeHLSRunner behaves like ffmpeg's HLS muxer: for every output it writes
// segments, a media playlist and the single-variant guide playlist, and it
// prints a segment-open line per segment.
type fakeHLSRunner struct {
	segmentsPerOutput int
	err               error
	// bandwidthFromBitrate derives BANDWIDTH from the output's -b:v instead
	// of its position.
	bandwidthFromBitrate bool

	mu    sync.Mutex
	cmd   *ffmpeg.Command
	lines []string
}

type fakeOutput struct {
	playlist string
	pattern  string
	guide    string
	bitrate  string
}

func outputsOf(cmd *ffmpeg.Command) []fakeOutput {
	var patterns, guides []string
	bitrates := make([]string, len(cmd.Outputs))
	out := 0
	for i := 0; i < len(cmd.Args); i++ {
		if out < len(cmd.Outputs) && cmd.Args[i] == cmd.Outputs[out] {
			out++
			continue
		}
		if i == len(cmd.Args)-1 {
			break
		}
		switch cmd.Args[i] {
		case "-hls_segment_filename":
			patterns = append(patterns, cmd.Args[i+1])
		case "-master_pl_name":
			guides = append(guides, cmd.Args[i+1])
		case "-b:v":
			if out < len(bitrates) {
				bitrates[out] = cmd.Args[i+1]
			}
		}
	}

	outs := make([]fakeOutput, 0, len(cmd.Outputs))
	for i, p := range cmd.Outputs {
		outs = append(outs, fakeOutput{playlist: p, pattern: patterns[i], guide: guides[i], bitrate: bitrates[i]})
	}
	return outs
}

func (r *fakeHLSRunner) bandwidth(i int, out fakeOutput) int {
	if r.bandwidthFromBitrate {
		if kbps, err := strconv.Atoi(strings.TrimSuffix(out.bitrate, "k")); err == nil {
			return kbps * 1000
		}
	}
	return (i + 1) * 100000
}

func (r *fakeHLSRunner) Run(_ context.Context, cmd *ffmpeg.Command, listeners ...ffmpeg.LineListener) error {
	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	encrypted := false
	for _, a := range cmd.Args {
		if a == "-hls_key_info_file" {
			encrypted = true
		}
	}

	emit := func(line string) {
		r.mu.Lock()
		r.lines = append(r.lines, line)
		r.mu.Unlock()
		for _, l := range listeners {
			l(line)
		}
	}

	n := r.segmentsPerOutput
	if n == 0 {
		n = 2
	}

	for i, out := range outputsOf(cmd) {
		dir := filepath.Dir(out.playlist)
		body := []string{"#EXTM3U", "#EXT-X-VERSION:3", "#EXT-X-TARGETDURATION:10", "#EXT-X-MEDIA-SEQUENCE:0", "#EXT-X-PLAYLIST-TYPE:VOD"}
		for s := range n {
			segment := fmt.Sprintf(out.pattern, s)
			if err := os.WriteFile(segment, []byte("ts"), 0o600); err != nil {
				return err
			}
			if encrypted {
				emit(fmt.Sprintf("[hls @ 0x55d0] Opening 'crypto:%s' for writing", segment))
				body = append(body, `#EXT-X-KEY:METHOD=AES-128,URI="/secrets/key.key",IV=0x00000000000000000000000000000000`)
			} else {
				emit(fmt.Sprintf("[hls @ 0x55d0] Opening '%s' for writing", segment))
			}
			body = append(body, "#EXTINF:10.000000,", filepath.Base(segment))
		}
		body = append(body, "#EXT-X-ENDLIST")
		if err := os.WriteFile(out.playlist, []byte(strings.Join(body, "\n")+"\n"), 0o600); err != nil {
			return err
		}

		guide := strings.Join([]string{
			"#EXTM3U",
			"#EXT-X-VERSION:3",
			fmt.Sprintf(`#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=640x360,CODECS="avc1.64001e,mp4a.40.2"`, r.bandwidth(i, out)),
			filepath.Base(out.playlist),
			"",
		}, "\n")
		if err := os.WriteFile(filepath.Join(dir, out.guide), []byte(guide), 0o600); err != nil {
			return err
		}
	}

	emit("frame=  250 fps= 50 q=28.0 size=N/A time=00:00:10.00 bitrate=N/A speed=2.00x")
	return nil
}

func (r *fakeHLSRunner) args() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil {
		return nil
	}
	return r.cmd.Args
}
