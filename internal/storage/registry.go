package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/ffhls/internal/config"
	"github.com/jmylchreest/ffhls/internal/httpclient"
)

// Registry holds the configured disks by name.
type Registry struct {
	disks       map[string]Disk
	defaultDisk string
}

// NewRegistry builds every disk in cfg. client is shared by http disks.
func NewRegistry(cfg config.StorageConfig, client *httpclient.Client) (*Registry, error) {
	r := &Registry{disks: make(map[string]Disk, len(cfg.Disks)), defaultDisk: cfg.DefaultDisk}

	for name, dc := range cfg.Disks {
		disk, err := newDisk(name, dc, client)
		if err != nil {
			return nil, fmt.Errorf("disk %s: %w", name, err)
		}
		r.disks[name] = disk
	}

	if _, ok := r.disks[r.defaultDisk]; !ok {
		return nil, fmt.Errorf("default disk %q is not configured", r.defaultDisk)
	}
	return r, nil
}

func newDisk(name string, dc config.DiskConfig, client *httpclient.Client) (Disk, error) {
	switch dc.Driver {
	case "local":
		return NewLocalDisk(name, dc.Root)
	case "memory":
		return NewMemoryDisk(name), nil
	case "http":
		return NewHTTPDisk(name, dc.BaseURL, client, HTTPDiskOptions{
			Headers: dc.Headers,
			Stream:  dc.Stream,
			Limit:   dc.DownloadLimit(),
		})
	default:
		return nil, fmt.Errorf("unknown driver %q", dc.Driver)
	}
}

// Register adds or replaces a disk.
func (r *Registry) Register(d Disk) {
	r.disks[d.Name()] = d
}

// Disk returns the named disk, or the default disk when name is empty.
func (r *Registry) Disk(name string) (Disk, error) {
	if name == "" {
		name = r.defaultDisk
	}
	d, ok := r.disks[name]
	if !ok {
		return nil, fmt.Errorf("disk %q is not configured", name)
	}
	return d, nil
}

// Names returns the configured disk names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.disks))
	for name := range r.disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve parses a "disk:path" reference. References without a known disk
// prefix refer to the default disk.
func (r *Registry) Resolve(ref string) (Media, error) {
	if name, p, ok := strings.Cut(ref, ":"); ok {
		if d, exists := r.disks[name]; exists {
			return NewMedia(d, p), nil
		}
	}
	d, err := r.Disk("")
	if err != nil {
		return Media{}, err
	}
	return NewMedia(d, ref), nil
}
