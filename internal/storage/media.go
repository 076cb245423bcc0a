package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Media is a file on a disk.
type Media struct {
	Disk Disk
	Path string
}

// NewMedia creates a Media reference.
func NewMedia(disk Disk, p string) Media {
	return Media{Disk: disk, Path: p}
}

// Filename returns the base name of the media path.
func (m Media) Filename() string {
	return path.Base(m.Path)
}

// String returns "disk:path".
func (m Media) String() string {
	if m.Disk == nil {
		return m.Path
	}
	return m.Disk.Name() + ":" + m.Path
}

// Source is a media file resolved into something ffmpeg can open.
type Source struct {
	// Path is a local filesystem path or a URL.
	Path string
	// Options are input options that must precede Path, e.g. -headers for streamed inputs.
	Options []string
}

// Materialize resolves m into a Source. Local disks are addressed in place,
// streaming disks by URL, and everything else is copied into a temporary
// directory owned by temps.
func Materialize(ctx context.Context, m Media, temps *TemporaryDirectories) (Source, error) {
	if lp, ok := m.Disk.(LocalPather); ok {
		p, err := lp.LocalPath(m.Path)
		if err != nil {
			return Source{}, err
		}
		return Source{Path: p}, nil
	}

	if s, ok := m.Disk.(Streamer); ok {
		if u, headers, ok := s.StreamURL(m.Path); ok {
			var opts []string
			if h := FormatHeaders(headers); h != "" {
				opts = append(opts, "-headers", h)
			}
			return Source{Path: u, Options: opts}, nil
		}
	}

	dir, err := temps.Create("media")
	if err != nil {
		return Source{}, err
	}
	local := filepath.Join(dir, m.Filename())

	if err := copyToFile(ctx, m, local); err != nil {
		return Source{}, fmt.Errorf("materializing %s: %w", m, err)
	}
	return Source{Path: local}, nil
}

func copyToFile(ctx context.Context, m Media, local string) error {
	f, err := os.Create(local)
	if err != nil {
		return err
	}

	if dl, ok := m.Disk.(Downloader); ok {
		if _, err := dl.DownloadTo(ctx, m.Path, f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}

	rc, err := m.Disk.Open(ctx, m.Path)
	if err != nil {
		_ = f.Close()
		return err
	}
	defer rc.Close()

	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// FormatHeaders renders headers in the form ffmpeg's -headers option expects,
// one "Key: Value\r\n" per header, sorted by key.
func FormatHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
		b.WriteString("\r\n")
	}
	return b.String()
}

// CopyDirectory uploads every file below the local directory src onto dst
// below prefix, keeping the relative layout. It returns the destination
// paths in lexical order.
func CopyDirectory(ctx context.Context, src string, dst Disk, prefix string) ([]string, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}

	var written []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		target := path.Join(prefix, entry.Name())
		local := filepath.Join(src, entry.Name())
		if entry.IsDir() {
			nested, err := CopyDirectory(ctx, local, dst, target)
			written = append(written, nested...)
			if err != nil {
				return written, err
			}
			continue
		}
		if err := dst.PutFile(ctx, target, local); err != nil {
			return written, fmt.Errorf("copying %s to %s: %w", entry.Name(), dst.Name(), err)
		}
		written = append(written, target)
	}
	return written, nil
}
