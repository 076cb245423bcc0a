package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// MemoryDisk keeps files in memory. Its contents are lost when the process exits.
type MemoryDisk struct {
	name string
	fs   afero.Fs
}

// NewMemoryDisk creates an empty in-memory disk.
func NewMemoryDisk(name string) *MemoryDisk {
	return &MemoryDisk{name: name, fs: afero.NewMemMapFs()}
}

// Name returns the configured disk name.
func (d *MemoryDisk) Name() string {
	return d.name
}

// clean maps a relative path onto the root of the in-memory filesystem.
func (d *MemoryDisk) clean(p string) (string, error) {
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %s (absolute paths not allowed)", ErrPathEscapes, p)
	}
	if rel := path.Clean(p); rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, p)
	}
	return path.Clean("/" + p), nil
}

// Exists checks if a path exists on the disk.
func (d *MemoryDisk) Exists(_ context.Context, p string) (bool, error) {
	name, err := d.clean(p)
	if err != nil {
		return false, err
	}
	return afero.Exists(d.fs, name)
}

// Get reads a whole file.
func (d *MemoryDisk) Get(_ context.Context, p string) ([]byte, error) {
	name, err := d.clean(p)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(d.fs, name)
	if err != nil {
		return nil, wrapNotFound(p, err)
	}
	return data, nil
}

// Open opens a file for reading.
func (d *MemoryDisk) Open(_ context.Context, p string) (io.ReadCloser, error) {
	name, err := d.clean(p)
	if err != nil {
		return nil, err
	}
	f, err := d.fs.Open(name)
	if err != nil {
		return nil, wrapNotFound(p, err)
	}
	return f, nil
}

// Put writes data, replacing any existing file.
func (d *MemoryDisk) Put(_ context.Context, p string, data []byte) error {
	name, err := d.clean(p)
	if err != nil {
		return err
	}
	if err := d.fs.MkdirAll(path.Dir(name), dirPerm); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := afero.WriteFile(d.fs, name, data, filePerm); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// PutFile copies a local file into memory.
func (d *MemoryDisk) PutFile(ctx context.Context, p, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}
	return d.Put(ctx, p, data)
}

// Delete removes a file.
func (d *MemoryDisk) Delete(_ context.Context, p string) error {
	name, err := d.clean(p)
	if err != nil {
		return err
	}
	if err := d.fs.Remove(name); err != nil {
		return wrapNotFound(p, err)
	}
	return nil
}

// AllFiles lists every file below dir, relative to the disk root.
func (d *MemoryDisk) AllFiles(_ context.Context, dir string) ([]string, error) {
	root, err := d.clean(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	err = afero.Walk(d.fs, root, func(walkPath string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		files = append(files, strings.TrimPrefix(walkPath, "/"))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}
