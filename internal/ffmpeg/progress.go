package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	sizeRe    = regexp.MustCompile(`size=\s*(\d+)`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// Progress represents FFmpeg progress information.
type Progress struct {
	Frame     int64         `json:"frame"`
	FPS       float64       `json:"fps"`
	Bitrate   string        `json:"bitrate"`
	TotalSize int64         `json:"total_size"`
	Time      time.Duration `json:"time"`
	Speed     float64       `json:"speed"`
	// Percentage is 0-100, or -1 when the input duration is unknown.
	Percentage float64 `json:"percentage"`
	// Remaining is estimated from Speed; zero when it cannot be estimated.
	Remaining time.Duration `json:"remaining"`
}

// ParseProgress extracts progress fields from one stats line.
// It reports false for lines that carry no time= field.
func ParseProgress(line string) (Progress, bool) {
	matches := timeRe.FindStringSubmatch(line)
	if len(matches) < 5 {
		return Progress{}, false
	}

	var p Progress
	hours, _ := strconv.Atoi(matches[1])
	mins, _ := strconv.Atoi(matches[2])
	secs, _ := strconv.Atoi(matches[3])
	frac := matches[4]
	centis, _ := strconv.Atoi(frac)
	// time= carries centiseconds; normalize other precisions to milliseconds.
	var fracDur time.Duration
	switch len(frac) {
	case 1:
		fracDur = time.Duration(centis) * 100 * time.Millisecond
	case 2:
		fracDur = time.Duration(centis) * 10 * time.Millisecond
	default:
		ms, _ := strconv.Atoi(frac[:3])
		fracDur = time.Duration(ms) * time.Millisecond
	}
	p.Time = time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second + fracDur

	if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
		p.Frame, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := fpsRe.FindStringSubmatch(line); len(m) > 1 {
		p.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := bitrateRe.FindStringSubmatch(line); len(m) > 1 {
		p.Bitrate = m[1]
	}
	if m := sizeRe.FindStringSubmatch(line); len(m) > 1 {
		p.TotalSize, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
		p.Speed, _ = strconv.ParseFloat(m[1], 64)
	}
	return p, true
}

// ProgressListener adapts a progress callback to a LineListener.
// duration is the length of the input; zero or negative marks it unknown.
func ProgressListener(duration time.Duration, fn func(Progress)) LineListener {
	return func(line string) {
		p, ok := ParseProgress(line)
		if !ok {
			return
		}
		if duration <= 0 {
			p.Percentage = -1
			fn(p)
			return
		}

		p.Percentage = min(100, float64(p.Time)/float64(duration)*100)
		if p.Speed > 0 && p.Time < duration {
			p.Remaining = time.Duration(float64(duration-p.Time) / p.Speed)
		}
		fn(p)
	}
}
