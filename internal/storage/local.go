package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// LocalDisk stores files below a root directory on the local filesystem.
// All paths are resolved within the root; traversal outside it is rejected.
type LocalDisk struct {
	name    string
	baseDir string
}

// NewLocalDisk creates a LocalDisk rooted at baseDir.
// The base directory is created if it doesn't exist.
func NewLocalDisk(name, baseDir string) (*LocalDisk, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, dirPerm); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	return &LocalDisk{name: name, baseDir: absPath}, nil
}

// Name returns the configured disk name.
func (d *LocalDisk) Name() string {
	return d.name
}

// BaseDir returns the absolute path to the disk root.
func (d *LocalDisk) BaseDir() string {
	return d.baseDir
}

// ResolvePath resolves a relative path within the disk root.
// Returns ErrPathEscapes if the path would leave the root or is absolute.
func (d *LocalDisk) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: %s (absolute paths not allowed)", ErrPathEscapes, relativePath)
	}

	absPath, err := filepath.Abs(filepath.Join(d.baseDir, filepath.Clean(filepath.FromSlash(relativePath))))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	if !strings.HasPrefix(absPath, d.baseDir+string(filepath.Separator)) && absPath != d.baseDir {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, relativePath)
	}

	return absPath, nil
}

// LocalPath implements LocalPather.
func (d *LocalDisk) LocalPath(path string) (string, error) {
	return d.ResolvePath(path)
}

// Exists checks if a path exists on the disk.
func (d *LocalDisk) Exists(_ context.Context, path string) (bool, error) {
	abs, err := d.ResolvePath(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// Get reads a whole file.
func (d *LocalDisk) Get(_ context.Context, path string) ([]byte, error) {
	abs, err := d.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapNotFound(path, err)
	}
	return data, nil
}

// Open opens a file for reading.
func (d *LocalDisk) Open(_ context.Context, path string) (io.ReadCloser, error) {
	abs, err := d.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, wrapNotFound(path, err)
	}
	return f, nil
}

// Put writes data atomically: readers see the old file or the new one, never a partial write.
func (d *LocalDisk) Put(_ context.Context, path string, data []byte) error {
	abs, err := d.prepareWrite(path)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(abs, data, filePerm); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// PutFile copies localPath onto the disk atomically.
func (d *LocalDisk) PutFile(_ context.Context, path, localPath string) error {
	abs, err := d.prepareWrite(path)
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer src.Close()

	pending, err := renameio.NewPendingFile(abs, renameio.WithPermissions(filePerm))
	if err != nil {
		return fmt.Errorf("creating pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, src); err != nil {
		return fmt.Errorf("copying to pending file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Delete removes a file.
func (d *LocalDisk) Delete(_ context.Context, path string) error {
	abs, err := d.ResolvePath(path)
	if err != nil {
		return err
	}
	if abs == d.baseDir {
		return fmt.Errorf("cannot remove disk base directory")
	}

	if err := os.Remove(abs); err != nil {
		return wrapNotFound(path, err)
	}
	return nil
}

// AllFiles lists every regular file below dir as slash-separated paths relative to the root.
func (d *LocalDisk) AllFiles(_ context.Context, dir string) ([]string, error) {
	abs, err := d.ResolvePath(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(abs, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.baseDir, walkPath)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
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

// MkdirAll creates a directory and all parent directories on the disk.
func (d *LocalDisk) MkdirAll(path string) error {
	abs, err := d.ResolvePath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return nil
}

func (d *LocalDisk) prepareWrite(path string) (string, error) {
	abs, err := d.ResolvePath(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), dirPerm); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}
	return abs, nil
}

func wrapNotFound(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return fmt.Errorf("%s: %w", path, err)
}
