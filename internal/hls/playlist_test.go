package hls

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedPathPrefix(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  string
	}{
		{"empty", nil, ""},
		{"single", []string{"out/video.m3u8"}, "out/"},
		{"same directory", []string{"out/a_0.m3u8", "out/a_1.m3u8"}, "out/"},
		{"nested", []string{"x/y/a.m3u8", "x/y/z/b.m3u8"}, "x/y/"},
		{"byte-wise", []string{"a/bc/x.m3u8", "a/bd/y.m3u8"}, "a/"},
		{"no common directory", []string{"a.m3u8", "b.m3u8"}, ""},
		{"diverging roots", []string{"one/a.m3u8", "two/a.m3u8"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SharedPathPrefix(tt.paths))
		})
	}
}

func TestRelativePlaylistPath(t *testing.T) {
	assert.Equal(t, "a_0.m3u8", RelativePlaylistPath("out/", "out/a_0.m3u8"))
	assert.Equal(t, "z/b.m3u8", RelativePlaylistPath("x/y/", "x/y/z/b.m3u8"))
	assert.Equal(t, "b.m3u8", RelativePlaylistPath("", "b.m3u8"))
	assert.Equal(t, "b.m3u8", RelativePlaylistPath("other/", "x/b.m3u8"))
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func TestStreamInfoLine(t *testing.T) {
	dir := t.TempDir()
	guide := filepath.Join(dir, "guide.m3u8")
	writeFile(t, guide, "#EXTM3U\r\n#EXT-X-VERSION:3\r\n#EXT-X-STREAM-INF:BANDWIDTH=140800,RESOLUTION=640x360\r\nvideo_0_250.m3u8\r\n")

	line, err := StreamInfoLine(guide, "video_0_250.m3u8")
	require.NoError(t, err)
	assert.Equal(t, "#EXT-X-STREAM-INF:BANDWIDTH=140800,RESOLUTION=640x360", line)

	_, err = StreamInfoLine(guide, "missing.m3u8")
	assert.True(t, errors.Is(err, ErrSegmentPlaylistNotFound))

	_, err = StreamInfoLine(filepath.Join(dir, "nope.m3u8"), "video_0_250.m3u8")
	assert.True(t, errors.Is(err, ErrSegmentPlaylistNotFound))

	first := filepath.Join(dir, "first.m3u8")
	writeFile(t, first, "video_0_250.m3u8\n#EXTM3U\n")
	_, err = StreamInfoLine(first, "video_0_250.m3u8")
	assert.True(t, errors.Is(err, ErrStreamInfoLineNotFound))
}

func TestDefaultPlaylistGenerator_Get(t *testing.T) {
	dir := t.TempDir()
	var playlists []PlaylistMedia
	for i, bw := range []string{"140800", "1240800"} {
		name := []string{"video_0_250.m3u8", "video_1_1000.m3u8"}[i]
		local := filepath.Join(dir, name)
		guide := filepath.Join(dir, "guide_"+name)
		writeFile(t, local, "#EXTM3U\n")
		writeFile(t, guide, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH="+bw+"\n"+name+"\n")
		playlists = append(playlists, PlaylistMedia{Path: "shows/" + name, LocalPath: local, GuidePath: guide})
	}

	prober := &fakeProber{result: videoWithAudio()}
	got, err := DefaultPlaylistGenerator{}.Get(context.Background(), playlists, prober, true)
	require.NoError(t, err)

	want := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=140800,FRAME-RATE=25.000\n" +
		"video_0_250.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1240800,FRAME-RATE=25.000\n" +
		"video_1_1000.m3u8\n" +
		"#EXT-X-ENDLIST"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("master playlist mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, prober.calls, 2)
	assert.Equal(t, playlists[0].LocalPath+" -allowed_extensions ALL", prober.calls[0])
}

func TestDefaultPlaylistGenerator_NoFrameRateWithoutVideo(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "audio.m3u8")
	guide := filepath.Join(dir, "guide.m3u8")
	writeFile(t, local, "#EXTM3U\n")
	writeFile(t, guide, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=96000\naudio.m3u8\n")

	prober := &fakeProber{result: audioOnlyResult()}
	got, err := DefaultPlaylistGenerator{}.Get(context.Background(),
		[]PlaylistMedia{{Path: "audio.m3u8", LocalPath: local, GuidePath: guide}}, prober, false)
	require.NoError(t, err)

	assert.Equal(t, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=96000\naudio.m3u8", got)
}

func TestDefaultPlaylistGenerator_Errors(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "video.m3u8")
	writeFile(t, local, "#EXTM3U\n")

	_, err := DefaultPlaylistGenerator{}.Get(context.Background(),
		[]PlaylistMedia{{Path: "video.m3u8", LocalPath: local, GuidePath: filepath.Join(dir, "missing.m3u8")}},
		&fakeProber{result: videoWithAudio()}, true)
	assert.ErrorIs(t, err, ErrSegmentPlaylistNotFound)

	guide := filepath.Join(dir, "guide.m3u8")
	writeFile(t, guide, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nvideo.m3u8\n")
	_, err = DefaultPlaylistGenerator{}.Get(context.Background(),
		[]PlaylistMedia{{Path: "video.m3u8", LocalPath: local, GuidePath: guide}},
		&fakeProber{err: errors.New("ffprobe failed")}, true)
	assert.ErrorContains(t, err, "ffprobe failed")
}
