package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDisk(t *testing.T) *LocalDisk {
	t.Helper()
	d, err := NewLocalDisk("local", filepath.Join(t.TempDir(), "disk"))
	require.NoError(t, err)
	return d
}

func TestNewLocalDisk(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "disk")

	d, err := NewLocalDisk("local", baseDir)
	require.NoError(t, err)

	info, err := os.Stat(baseDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(d.BaseDir()))
	assert.Equal(t, "local", d.Name())
	assert.True(t, IsLocal(d))
}

func TestLocalDisk_ResolvePath(t *testing.T) {
	d := setupTestDisk(t)

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{"simple file", "test.m3u8", false},
		{"nested path", "exports/video.m3u8", false},
		{"current dir", ".", false},
		{"parent escape attempt", "../escape.txt", true},
		{"nested parent escape", "subdir/../../escape.txt", true},
		{"absolute path escape", "/etc/passwd", true},
		{"dot dot name", "..test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := d.ResolvePath(tt.path)
			if tt.shouldError {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrPathEscapes)
			} else {
				require.NoError(t, err)
				assert.True(t, strings.HasPrefix(resolved, d.BaseDir()))
			}
		})
	}
}

func TestLocalDisk_PutFile(t *testing.T) {
	d := setupTestDisk(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "segment_00000.ts")
	require.NoError(t, os.WriteFile(src, []byte("ts data"), 0o600))

	require.NoError(t, d.PutFile(ctx, "out/segment_00000.ts", src))

	data, err := d.Get(ctx, "out/segment_00000.ts")
	require.NoError(t, err)
	assert.Equal(t, "ts data", string(data))
}

func TestLocalDisk_PutLeavesNoTempFiles(t *testing.T) {
	d := setupTestDisk(t)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "master.m3u8", []byte("#EXTM3U")))
	require.NoError(t, d.Put(ctx, "master.m3u8", []byte("#EXTM3U\n#EXT-X-ENDLIST")))

	entries, err := os.ReadDir(d.BaseDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "master.m3u8", entries[0].Name())
}

func TestLocalDisk_CannotDeleteBase(t *testing.T) {
	d := setupTestDisk(t)
	assert.Error(t, d.Delete(context.Background(), "."))
}

func TestLocalDisk_LocalPath(t *testing.T) {
	d := setupTestDisk(t)

	p, err := d.LocalPath("a/b.ts")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(d.BaseDir(), "a", "b.ts"), p)
}

func TestLocalDisk_MkdirAll(t *testing.T) {
	d := setupTestDisk(t)

	require.NoError(t, d.MkdirAll("a/b/c"))
	info, err := os.Stat(filepath.Join(d.BaseDir(), "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
