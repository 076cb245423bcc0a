package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TempDirPrefix is the prefix of every temporary directory ffhls creates.
const TempDirPrefix = "ffhls-"

// DefaultCleanupAge is the default age after which leftover temp directories are removed.
const DefaultCleanupAge = time.Hour

// TemporaryDirectories owns the temporary directories of one operation.
// Each export creates its own instance and releases it when done, so
// concurrent exports never share key material or staged media.
type TemporaryDirectories struct {
	root string

	mu   sync.Mutex
	dirs []string
}

// NewTemporaryDirectories creates an owner for directories below root
// (empty = os.TempDir()). A relative root is resolved against the working
// directory: key-info files and ffmpeg's segment-open lines need absolute paths.
func NewTemporaryDirectories(root string) *TemporaryDirectories {
	if root == "" {
		root = os.TempDir()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &TemporaryDirectories{root: root}
}

// Create makes a new, empty directory. purpose is included in its name.
func (t *TemporaryDirectories) Create(purpose string) (string, error) {
	if err := os.MkdirAll(t.root, dirPerm); err != nil {
		return "", fmt.Errorf("creating temp root: %w", err)
	}

	pattern := TempDirPrefix + "*"
	if purpose != "" {
		pattern = TempDirPrefix + purpose + "-*"
	}
	dir, err := os.MkdirTemp(t.root, pattern)
	if err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}

	t.mu.Lock()
	t.dirs = append(t.dirs, dir)
	t.mu.Unlock()
	return dir, nil
}

// Dirs returns the directories created so far.
func (t *TemporaryDirectories) Dirs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.dirs...)
}

// Release removes every directory created by this owner.
// It is safe to call more than once.
func (t *TemporaryDirectories) Release() error {
	t.mu.Lock()
	dirs := t.dirs
	t.dirs = nil
	t.mu.Unlock()

	var errs []error
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

// CleanupOrphanedTempDirs removes temporary directories older than maxAge
// left behind by processes that were killed before releasing them. It looks
// for directories matching "ffhls-*" in baseDir.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if maxAge <= 0 {
		maxAge = DefaultCleanupAge
	}

	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("base directory does not exist, skipping cleanup",
			"path", baseDir,
		)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read directory for cleanup",
			"path", baseDir,
			"error", err,
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	var removed int

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to get directory info",
				"path", dirPath,
				"error", err,
			)
			continue
		}

		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent temp directory",
				"path", dirPath,
				"age", time.Since(info.ModTime()).Round(time.Second),
			)
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned temp directory",
				"path", dirPath,
				"error", err,
			)
			continue
		}

		logger.Info("removed orphaned temp directory",
			"path", dirPath,
			"age", time.Since(info.ModTime()).Round(time.Second),
		)
		removed++
	}

	if removed > 0 {
		logger.Info("orphaned temp directory cleanup complete",
			"removed", removed,
		)
	}

	return removed, nil
}
