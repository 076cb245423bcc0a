package hls

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/jmylchreest/ffhls/internal/storage"
)

// URLResolver maps a file name found in a playlist to the URL a client should use.
type URLResolver func(filename string) string

var keyURIPattern = regexp.MustCompile(`URI="([^"]*)"`)

// DynamicPlaylist serves stored playlists with their references rewritten,
// so keys and segments can live behind signed or authenticated URLs.
type DynamicPlaylist struct {
	disk     storage.Disk
	path     string
	key      URLResolver
	media    URLResolver
	playlist URLResolver
}

// NewDynamicPlaylist opens the master playlist at p on disk. Unset resolvers
// leave references untouched.
func NewDynamicPlaylist(disk storage.Disk, p string) *DynamicPlaylist {
	return &DynamicPlaylist{disk: disk, path: p}
}

// SetKeyURLResolver rewrites the URI of every #EXT-X-KEY tag. The resolver
// receives the key file name.
func (d *DynamicPlaylist) SetKeyURLResolver(fn URLResolver) *DynamicPlaylist {
	d.key = fn
	return d
}

// SetMediaURLResolver rewrites segment references in rendition playlists.
func (d *DynamicPlaylist) SetMediaURLResolver(fn URLResolver) *DynamicPlaylist {
	d.media = fn
	return d
}

// SetPlaylistURLResolver rewrites rendition playlist references in the master playlist.
func (d *DynamicPlaylist) SetPlaylistURLResolver(fn URLResolver) *DynamicPlaylist {
	d.playlist = fn
	return d
}

// Master returns the rewritten master playlist.
func (d *DynamicPlaylist) Master(ctx context.Context) (string, error) {
	data, err := d.disk.Get(ctx, d.path)
	if err != nil {
		return "", fmt.Errorf("reading master playlist: %w", err)
	}
	return rewriteLines(string(data), nil, d.playlist), nil
}

// Media returns the rewritten rendition playlist named name, relative to
// the master playlist's directory.
func (d *DynamicPlaylist) Media(ctx context.Context, name string) (string, error) {
	p := path.Join(path.Dir(d.path), name)
	data, err := d.disk.Get(ctx, p)
	if err != nil {
		return "", fmt.Errorf("reading playlist %s: %w", name, err)
	}
	return rewriteLines(string(data), d.key, d.media), nil
}

// Playlist rewrites the playlist named name, relative to the master
// playlist's directory, as a master or a media playlist depending on its content.
func (d *DynamicPlaylist) Playlist(ctx context.Context, name string) (string, error) {
	p := path.Join(path.Dir(d.path), name)
	data, err := d.disk.Get(ctx, p)
	if err != nil {
		return "", fmt.Errorf("reading playlist %s: %w", name, err)
	}
	if IsMasterPlaylist(string(data)) {
		return rewriteLines(string(data), nil, d.playlist), nil
	}
	return rewriteLines(string(data), d.key, d.media), nil
}

// IsMasterPlaylist reports whether text lists variant streams.
func IsMasterPlaylist(text string) bool {
	return strings.Contains(text, "#EXT-X-STREAM-INF:")
}

// All returns the rewritten master playlist keyed by its file name together
// with every rendition playlist it references.
func (d *DynamicPlaylist) All(ctx context.Context) (map[string]string, error) {
	data, err := d.disk.Get(ctx, d.path)
	if err != nil {
		return nil, fmt.Errorf("reading master playlist: %w", err)
	}

	out := map[string]string{
		path.Base(d.path): rewriteLines(string(data), nil, d.playlist),
	}
	for _, ref := range references(string(data)) {
		media, err := d.Media(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[ref] = media
	}
	return out, nil
}

// references returns the URI lines of a playlist.
func references(text string) []string {
	var refs []string
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	return refs
}

func rewriteLines(text string, key, uri URLResolver) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#EXT-X-KEY:"):
			if key != nil {
				lines[i] = keyURIPattern.ReplaceAllStringFunc(trimmed, func(m string) string {
					current := keyURIPattern.FindStringSubmatch(m)[1]
					return `URI="` + key(path.Base(current)) + `"`
				})
			}
		case strings.HasPrefix(trimmed, "#"):
		default:
			if uri != nil {
				lines[i] = uri(trimmed)
			}
		}
	}
	return strings.Join(lines, "\n")
}
