package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jmylchreest/ffhls/internal/httpclient"
)

// HTTPDisk reads files below a base URL. It cannot be written to.
type HTTPDisk struct {
	name    string
	baseURL *url.URL
	headers map[string]string
	stream  bool
	limit   int64
	client  *httpclient.Client
}

// HTTPDiskOptions configures an HTTPDisk.
type HTTPDiskOptions struct {
	Headers map[string]string
	// Stream hands URLs to ffmpeg instead of downloading files first.
	Stream bool
	// Limit is the maximum number of bytes read per file (0 = unlimited).
	Limit int64
}

// NewHTTPDisk creates a read-only disk for baseURL.
func NewHTTPDisk(name, baseURL string, client *httpclient.Client, opts HTTPDiskOptions) (*HTTPDisk, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https: %s", httpclient.ObfuscateURLString(baseURL))
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = httpclient.NewWithDefaults()
	}

	return &HTTPDisk{
		name:    name,
		baseURL: u,
		headers: opts.Headers,
		stream:  opts.Stream,
		limit:   opts.Limit,
		client:  client,
	}, nil
}

// Name returns the configured disk name.
func (d *HTTPDisk) Name() string {
	return d.name
}

// URL returns the absolute URL of path.
func (d *HTTPDisk) URL(path string) (string, error) {
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing path: %w", err)
	}
	if rel.IsAbs() || rel.Host != "" {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}

	resolved := d.baseURL.ResolveReference(rel)
	if !strings.HasPrefix(resolved.Path, d.baseURL.Path) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, path)
	}
	return resolved.String(), nil
}

// StreamURL implements Streamer.
func (d *HTTPDisk) StreamURL(path string) (string, map[string]string, bool) {
	if !d.stream {
		return "", nil, false
	}
	u, err := d.URL(path)
	if err != nil {
		return "", nil, false
	}
	return u, d.headers, true
}

// Exists issues a HEAD request for path.
func (d *HTTPDisk) Exists(ctx context.Context, path string) (bool, error) {
	u, err := d.URL(path)
	if err != nil {
		return false, err
	}

	resp, err := d.client.Head(ctx, u, d.headers)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	_ = resp.Body.Close()
	return true, nil
}

// Get downloads a whole file.
func (d *HTTPDisk) Get(ctx context.Context, path string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.DownloadTo(ctx, path, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadTo implements Downloader. It fails once the configured limit is exceeded.
func (d *HTTPDisk) DownloadTo(ctx context.Context, path string, w io.Writer) (int64, error) {
	u, err := d.URL(path)
	if err != nil {
		return 0, err
	}

	n, err := d.client.Download(ctx, u, d.headers, w, d.limit)
	if err != nil {
		if isNotFound(err) {
			return n, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return n, fmt.Errorf("downloading %s: %w", path, err)
	}
	return n, nil
}

// Open starts a download of path. Reads fail once the configured limit is exceeded.
func (d *HTTPDisk) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	u, err := d.URL(path)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Get(ctx, u, d.headers)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return httpclient.LimitBody(resp.Body, d.limit), nil
}

// Put always fails with ErrReadOnly.
func (d *HTTPDisk) Put(context.Context, string, []byte) error {
	return fmt.Errorf("%w: %s", ErrReadOnly, d.name)
}

// PutFile always fails with ErrReadOnly.
func (d *HTTPDisk) PutFile(context.Context, string, string) error {
	return fmt.Errorf("%w: %s", ErrReadOnly, d.name)
}

// Delete always fails with ErrReadOnly.
func (d *HTTPDisk) Delete(context.Context, string) error {
	return fmt.Errorf("%w: %s", ErrReadOnly, d.name)
}

// AllFiles is not supported over plain HTTP.
func (d *HTTPDisk) AllFiles(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("listing %s: %w", d.name, errors.ErrUnsupported)
}

func isNotFound(err error) bool {
	var statusErr *httpclient.StatusError
	return errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusGone)
}
