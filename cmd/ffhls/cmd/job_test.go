package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/ffhls/internal/hls"
	"github.com/jmylchreest/ffhls/internal/media"
	"github.com/jmylchreest/ffhls/internal/storage"
)

func TestParseRendition(t *testing.T) {
	tests := []struct {
		in      string
		want    renditionSpec
		wantErr bool
	}{
		{in: "x264:250", want: renditionSpec{Format: "x264", Kbps: 250}},
		{in: "hevc:1000:1280x720", want: renditionSpec{Format: "hevc", Kbps: 1000, Width: 1280, Height: 720}},
		{in: "x264:500:-1x360", want: renditionSpec{Format: "x264", Kbps: 500, Width: -1, Height: 360}},
		{in: "x264", wantErr: true},
		{in: "x264:fast", wantErr: true},
		{in: "x264:0", wantErr: true},
		{in: "x264:250:640", wantErr: true},
		{in: "x264:250:640xtall", wantErr: true},
		{in: "x264:250:640x360:extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRendition(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
inputs: [local:video.mp4]
output: local:shows/video.m3u8
segment_length: 4
end_list: false
renditions:
  - format: x264
    kbps: 250
    width: 640
    height: 360
    resize: fit
  - format: aac
    kbps: 96
encryption:
  enabled: true
  rotate: true
  segments_per_key: 3
`), 0o600))

	job, err := loadJob(path)
	require.NoError(t, err)
	require.NoError(t, job.validate())

	assert.Equal(t, []string{"local:video.mp4"}, job.Inputs)
	assert.Equal(t, 4, job.SegmentLength)
	require.NotNil(t, job.EndList)
	assert.False(t, *job.EndList)
	require.Len(t, job.Renditions, 2)
	assert.Equal(t, "fit", job.Renditions[0].Resize)
	assert.Equal(t, 3, job.Encryption.SegmentsPerKey)
}

func TestLoadJob_Errors(t *testing.T) {
	_, err := loadJob(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading job file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inputs: {"), 0o600))
	_, err = loadJob(path)
	assert.ErrorContains(t, err, "parsing job file")
}

func TestExportJob_Validate(t *testing.T) {
	err := (&exportJob{}).validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "input")
	assert.ErrorContains(t, err, "output")
	assert.ErrorContains(t, err, "rendition")

	job := &exportJob{
		Inputs:     []string{"a.mp4"},
		Output:     "a.m3u8",
		Renditions: []renditionSpec{{Format: "x264", Kbps: 250}},
		Encryption: encryptionSpec{Enabled: true, Rotate: true, Key: "00112233445566778899aabbccddeeff"},
	}
	assert.ErrorContains(t, job.validate(), "static key")
}

func TestRenditionSpec_Format(t *testing.T) {
	f, err := renditionSpec{Format: "hevc", Kbps: 800}.format()
	require.NoError(t, err)
	assert.Equal(t, media.FormatHEVC, f.Name)
	assert.Equal(t, 800, f.KiloBitrate)

	_, err = renditionSpec{Format: "vp9", Kbps: 800}.format()
	assert.Error(t, err)
}

func TestRenditionSpec_Filters(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		fn, err := renditionSpec{Format: "x264", Kbps: 250}.filters()
		require.NoError(t, err)
		assert.Nil(t, fn)
	})

	t.Run("raw then resize", func(t *testing.T) {
		fn, err := renditionSpec{Width: 640, Height: 360, Resize: "FIT", Filters: []string{"hflip"}}.filters()
		require.NoError(t, err)
		require.NotNil(t, fn)

		graph := media.NewDriver("ffmpeg", nil, nil).Open(storage.Source{Path: "in.mp4"})
		vf := hls.NewVideoFilters(graph, 0)
		fn(vf)

		assert.Equal(t, 2, vf.Count())
		assert.Equal(t, []string{"[0]hflip[v0_hls_1]"}, graph.FilterClauses())
		require.Len(t, vf.LegacyMappings(), 1)
		assert.Equal(t, "[v0_hls_2]", vf.LegacyMappings()[0].Out)
	})

	t.Run("scale without mode", func(t *testing.T) {
		fn, err := renditionSpec{Width: -1, Height: 360}.filters()
		require.NoError(t, err)

		graph := media.NewDriver("ffmpeg", nil, nil).Open(storage.Source{Path: "in.mp4"})
		vf := hls.NewVideoFilters(graph, 1)
		fn(vf)

		require.Len(t, vf.LegacyMappings(), 1)
		assert.Equal(t, media.ScaleFilter{Width: -1, Height: 360}, vf.LegacyMappings()[0].Filter)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := renditionSpec{Width: 640, Height: 360, Resize: "zoom"}.filters()
		assert.ErrorContains(t, err, "zoom")
	})
}

func TestEncryptionSpec_Key(t *testing.T) {
	key, err := encryptionSpec{}.key()
	require.NoError(t, err)
	assert.Nil(t, key)

	key, err = encryptionSpec{Key: "00112233445566778899aabbccddeeff"}.key()
	require.NoError(t, err)
	assert.Len(t, key, hls.KeyLength)

	_, err = encryptionSpec{Key: "0011"}.key()
	assert.ErrorIs(t, err, hls.ErrInvalidKeyLength)

	_, err = encryptionSpec{Key: "not hex"}.key()
	assert.Error(t, err)
}

func newExportFlagsCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "export"}
	addExportFlags(c.Flags())
	require.NoError(t, c.Flags().Parse(args))
	return c
}

func TestJobFromFlags(t *testing.T) {
	c := newExportFlagsCommand(t, "-o", "out/video.m3u8", "-r", "x264:250:640x360", "--encrypt", "--segments-per-key", "3")

	job, err := jobFromFlags(c, []string{"video.mp4"})
	require.NoError(t, err)
	assert.Equal(t, []string{"video.mp4"}, job.Inputs)
	assert.Equal(t, "out/video.m3u8", job.Output)
	require.Len(t, job.Renditions, 1)
	assert.Equal(t, 640, job.Renditions[0].Width)
	assert.True(t, job.Encryption.Enabled)
	assert.Equal(t, 3, job.Encryption.SegmentsPerKey)
	assert.Equal(t, "keys", job.Encryption.KeysDir)
}

func TestJobFromFlags_RejectsStaticKeyWithRotation(t *testing.T) {
	c := newExportFlagsCommand(t, "-o", "out/video.m3u8", "-r", "x264:250",
		"--key", "00112233445566778899aabbccddeeff", "--rotate-keys")

	_, err := jobFromFlags(c, []string{"video.mp4"})
	assert.ErrorContains(t, err, "static key cannot be combined with key rotation")
}
