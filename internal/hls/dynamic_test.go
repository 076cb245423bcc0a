package hls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/ffhls/internal/storage"
)

const (
	testMaster = "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=140800,RESOLUTION=640x360,CODECS=\"avc1.64001e,mp4a.40.2\",FRAME-RATE=25.000\n" +
		"video_0_250.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1240800,RESOLUTION=1280x720,CODECS=\"avc1.64001f,mp4a.40.2\",FRAME-RATE=25.000\n" +
		"video_1_1000.m3u8\n" +
		"#EXT-X-ENDLIST"

	testMedia = "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:10\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXT-X-PLAYLIST-TYPE:VOD\n" +
		"#EXT-X-KEY:METHOD=AES-128,URI=\"/tmp/ffhls-secrets-1/a.key\",IV=0x0123456789abcdef0123456789abcdef\n" +
		"#EXTINF:10.000000,\n" +
		"video_0_250_00000.ts\n" +
		"#EXT-X-KEY:METHOD=AES-128,URI=\"/tmp/ffhls-secrets-1/b.key\",IV=0x0123456789abcdef0123456789abcdef\n" +
		"#EXTINF:4.000000,\n" +
		"video_0_250_00001.ts\n" +
		"#EXT-X-ENDLIST\n"
)

func newPlaylistDisk(t *testing.T) *storage.MemoryDisk {
	t.Helper()
	ctx := context.Background()
	d := storage.NewMemoryDisk("memory")
	require.NoError(t, d.Put(ctx, "shows/video.m3u8", []byte(testMaster)))
	require.NoError(t, d.Put(ctx, "shows/video_0_250.m3u8", []byte(testMedia)))
	require.NoError(t, d.Put(ctx, "shows/video_1_1000.m3u8", []byte(testMedia)))
	return d
}

func TestDynamicPlaylist_Master(t *testing.T) {
	d := newPlaylistDisk(t)

	got, err := NewDynamicPlaylist(d, "shows/video.m3u8").
		SetPlaylistURLResolver(func(name string) string { return "/hls/shows/" + name + "?token=abc" }).
		Master(context.Background())
	require.NoError(t, err)

	assert.Contains(t, got, "\n/hls/shows/video_0_250.m3u8?token=abc\n")
	assert.Contains(t, got, "\n/hls/shows/video_1_1000.m3u8?token=abc\n")
	assert.Contains(t, got, "FRAME-RATE=25.000")
}

func TestDynamicPlaylist_Media(t *testing.T) {
	d := newPlaylistDisk(t)

	got, err := NewDynamicPlaylist(d, "shows/video.m3u8").
		SetKeyURLResolver(func(name string) string { return "https://keys.example.com/" + name }).
		SetMediaURLResolver(func(name string) string { return "https://cdn.example.com/" + name }).
		Media(context.Background(), "video_0_250.m3u8")
	require.NoError(t, err)

	assert.Contains(t, got, `#EXT-X-KEY:METHOD=AES-128,URI="https://keys.example.com/a.key",IV=0x0123456789abcdef0123456789abcdef`)
	assert.Contains(t, got, `URI="https://keys.example.com/b.key"`)
	assert.Contains(t, got, "\nhttps://cdn.example.com/video_0_250_00000.ts\n")
	assert.NotContains(t, got, "/tmp/ffhls-secrets-1")
	assert.Contains(t, got, "#EXTINF:4.000000,")
}

func TestDynamicPlaylist_WithoutResolversIsUnchanged(t *testing.T) {
	d := newPlaylistDisk(t)

	got, err := NewDynamicPlaylist(d, "shows/video.m3u8").Media(context.Background(), "video_0_250.m3u8")
	require.NoError(t, err)
	assert.Equal(t, testMedia, got)
}

func TestDynamicPlaylist_All(t *testing.T) {
	d := newPlaylistDisk(t)

	all, err := NewDynamicPlaylist(d, "shows/video.m3u8").
		SetMediaURLResolver(func(name string) string { return "seg/" + name }).
		All(context.Background())
	require.NoError(t, err)

	require.Len(t, all, 3)
	assert.Contains(t, all, "video.m3u8")
	assert.Contains(t, all["video_1_1000.m3u8"], "\nseg/video_0_250_00001.ts\n")
}

func TestDynamicPlaylist_MissingPlaylist(t *testing.T) {
	d := storage.NewMemoryDisk("memory")
	_, err := NewDynamicPlaylist(d, "nope.m3u8").Master(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDynamicPlaylist_PlaylistDetectsKind(t *testing.T) {
	d := newPlaylistDisk(t)
	dp := NewDynamicPlaylist(d, "shows/video.m3u8").
		SetKeyURLResolver(func(name string) string { return "/keys/" + name }).
		SetPlaylistURLResolver(func(name string) string { return "p/" + name })

	master, err := dp.Playlist(context.Background(), "video.m3u8")
	require.NoError(t, err)
	assert.True(t, IsMasterPlaylist(master))
	assert.Contains(t, master, "\np/video_0_250.m3u8\n")

	media, err := dp.Playlist(context.Background(), "video_0_250.m3u8")
	require.NoError(t, err)
	assert.False(t, IsMasterPlaylist(media))
	assert.Contains(t, media, `URI="/keys/a.key"`)
	assert.Contains(t, media, "\nvideo_0_250_00000.ts\n")
}
