// Package storage provides the disks ffhls reads media from and exports to.
// Every backend implements Disk; backends whose files live on the local
// filesystem also implement LocalPather so ffmpeg can address them directly.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors returned by disks.
var (
	ErrNotFound    = errors.New("file not found")
	ErrReadOnly    = errors.New("disk is read-only")
	ErrPathEscapes = errors.New("path escapes disk root")
)

// Disk is the storage capability the exporter needs.
// Paths are slash-separated and relative to the disk root.
type Disk interface {
	Name() string
	Exists(ctx context.Context, path string) (bool, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Put(ctx context.Context, path string, data []byte) error
	// PutFile copies a local file onto the disk.
	PutFile(ctx context.Context, path, localPath string) error
	Delete(ctx context.Context, path string) error
	// AllFiles lists every file below dir, recursively, sorted.
	AllFiles(ctx context.Context, dir string) ([]string, error)
}

// LocalPather is implemented by disks whose files can be passed to a
// subprocess as plain filesystem paths.
type LocalPather interface {
	LocalPath(path string) (string, error)
}

// Streamer is implemented by disks whose files ffmpeg can read directly
// over the network.
type Streamer interface {
	// StreamURL returns the URL and request headers for path, and false
	// when streaming is disabled for this disk.
	StreamURL(path string) (string, map[string]string, bool)
}

// Downloader is implemented by remote disks that copy a file in one bounded
// transfer. Materialize prefers it over Open.
type Downloader interface {
	DownloadTo(ctx context.Context, path string, w io.Writer) (int64, error)
}

// IsLocal reports whether d exposes local filesystem paths.
func IsLocal(d Disk) bool {
	_, ok := d.(LocalPather)
	return ok
}
