package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/media"
)

// Playlist errors.
var (
	ErrSegmentPlaylistNotFound = errors.New("segment playlist not found")
	ErrStreamInfoLineNotFound  = errors.New("could not find stream info line")
)

const (
	tagHeader  = "#EXTM3U"
	tagEndList = "#EXT-X-ENDLIST"
)

// PlaylistMedia is one rendition playlist written by ffmpeg.
type PlaylistMedia struct {
	// Path is the playlist path on the destination disk, used for references
	// in the master playlist.
	Path string
	// LocalPath is where ffmpeg wrote the playlist.
	LocalPath string
	// GuidePath is the single-variant master playlist ffmpeg wrote next to
	// LocalPath. It carries the #EXT-X-STREAM-INF line of the rendition.
	GuidePath string
}

// PlaylistGenerator builds the master playlist of an export.
type PlaylistGenerator interface {
	Get(ctx context.Context, playlists []PlaylistMedia, prober media.Prober, endWithEndList bool) (string, error)
}

// DefaultPlaylistGenerator lists the renditions in export order, reusing the
// stream info ffmpeg wrote for each one and adding the probed frame rate.
type DefaultPlaylistGenerator struct{}

// Get implements PlaylistGenerator.
func (DefaultPlaylistGenerator) Get(ctx context.Context, playlists []PlaylistMedia, prober media.Prober, endWithEndList bool) (string, error) {
	paths := make([]string, len(playlists))
	for i, p := range playlists {
		paths[i] = p.Path
	}
	prefix := SharedPathPrefix(paths)

	lines := []string{tagHeader}
	for _, p := range playlists {
		streamInfo, err := StreamInfoLine(p.GuidePath, filepath.Base(p.LocalPath))
		if err != nil {
			return "", err
		}

		probe, err := prober.Probe(ctx, p.LocalPath, "-allowed_extensions", "ALL")
		if err != nil {
			return "", fmt.Errorf("probing %s: %w", p.LocalPath, err)
		}
		streamInfo = withFrameRate(streamInfo, probe)

		lines = append(lines, streamInfo, RelativePlaylistPath(prefix, p.Path))
	}

	if endWithEndList {
		lines = append(lines, tagEndList)
	}
	return strings.Join(lines, "\n"), nil
}

// StreamInfoLine returns the line preceding the first line of the guide
// playlist that equals filename.
func StreamInfoLine(guidePath, filename string) (string, error) {
	data, err := os.ReadFile(guidePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSegmentPlaylistNotFound, guidePath, err)
	}

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != filename {
			continue
		}
		if i == 0 {
			return "", fmt.Errorf("%w: %s", ErrStreamInfoLineNotFound, guidePath)
		}
		return strings.TrimSpace(lines[i-1]), nil
	}
	return "", fmt.Errorf("%w: %s in %s", ErrSegmentPlaylistNotFound, filename, guidePath)
}

func withFrameRate(streamInfo string, probe *ffmpeg.ProbeResult) string {
	video := probe.VideoStream()
	if video == nil {
		return streamInfo
	}
	fr := video.FrameRate()
	if fr <= 0 {
		return streamInfo
	}
	return streamInfo + ",FRAME-RATE=" + ffmpeg.FormatFrameRate(fr)
}

// SharedPathPrefix returns the longest common byte prefix of paths, cut back
// to its last "/". The result is empty when the paths share no directory.
//
// The comparison is byte-wise: "a/bc/x" and "a/bd/y" share "a/".
func SharedPathPrefix(paths []string) string {
	if len(paths) == 0 {
		return ""
	}

	prefix := paths[0]
	for _, p := range paths[1:] {
		for !strings.HasPrefix(p, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}

	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return ""
	}
	return prefix[:i+1]
}

// RelativePlaylistPath returns p relative to prefix, or its base name when
// p is not below prefix.
func RelativePlaylistPath(prefix, p string) string {
	if prefix != "" && strings.HasPrefix(p, prefix) {
		return strings.TrimLeft(strings.TrimPrefix(p, prefix), "/")
	}
	return path.Base(p)
}
