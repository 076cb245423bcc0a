// Package ffmpeg is the boundary to the ffmpeg and ffprobe binaries:
// command building, execution, probing and binary detection.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Environment variables consulted when no explicit binary path is configured.
const (
	FFmpegBinaryEnv  = "FFHLS_FFMPEG_BINARY"
	FFprobeBinaryEnv = "FFHLS_FFPROBE_BINARY"
)

var versionRegex = regexp.MustCompile(`^n?(\d+)\.(\d+)`)

// BinaryInfo contains information about the FFmpeg/FFprobe installation.
type BinaryInfo struct {
	FFmpegPath   string   `json:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath  string   `json:"ffprobe_path" yaml:"ffprobe_path"`
	Version      string   `json:"version" yaml:"version"`
	MajorVersion int      `json:"major_version" yaml:"major_version"`
	MinorVersion int      `json:"minor_version" yaml:"minor_version"`
	BuildInfo    string   `json:"build_info,omitempty" yaml:"build_info,omitempty"`
	Encoders     []string `json:"encoders,omitempty" yaml:"encoders,omitempty"`
}

// BinaryDetector handles detection and caching of FFmpeg binaries.
type BinaryDetector struct {
	ffmpegOverride  string
	ffprobeOverride string

	mu           sync.RWMutex
	info         *BinaryInfo
	lastDetected time.Time
	cacheTTL     time.Duration
}

// NewBinaryDetector creates a new binary detector. Non-empty paths take
// precedence over environment variables and PATH lookup.
func NewBinaryDetector(ffmpegPath, ffprobePath string) *BinaryDetector {
	return &BinaryDetector{
		ffmpegOverride:  ffmpegPath,
		ffprobeOverride: ffprobePath,
		cacheTTL:        5 * time.Minute,
	}
}

// Detect detects FFmpeg and FFprobe binaries and their capabilities.
func (d *BinaryDetector) Detect(ctx context.Context) (*BinaryInfo, error) {
	d.mu.RLock()
	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		info := d.info
		d.mu.RUnlock()
		return info, nil
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil && time.Since(d.lastDetected) < d.cacheTTL {
		return d.info, nil
	}

	info, err := d.detect(ctx)
	if err != nil {
		return nil, err
	}

	d.info = info
	d.lastDetected = time.Now()
	return info, nil
}

// Paths resolves both binaries without running them. Both are required for exports.
func (d *BinaryDetector) Paths() (ffmpegPath, ffprobePath string, err error) {
	ffmpegPath, err = resolveBinary(d.ffmpegOverride, "ffmpeg", FFmpegBinaryEnv)
	if err != nil {
		return "", "", err
	}
	ffprobePath, err = resolveBinary(d.ffprobeOverride, "ffprobe", FFprobeBinaryEnv)
	if err != nil {
		return "", "", err
	}
	return ffmpegPath, ffprobePath, nil
}

func (d *BinaryDetector) detect(ctx context.Context) (*BinaryInfo, error) {
	ffmpegPath, ffprobePath, err := d.Paths()
	if err != nil {
		return nil, err
	}
	info := &BinaryInfo{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}

	output, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("getting ffmpeg version: %w", err)
	}
	if err := parseVersionOutput(string(output), info); err != nil {
		return nil, err
	}

	if output, err := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner").Output(); err == nil {
		info.Encoders = parseEncoderList(string(output))
	}

	return info, nil
}

// parseVersionOutput fills version fields from `ffmpeg -version` output.
func parseVersionOutput(output string, info *BinaryInfo) error {
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "ffmpeg version"):
			// "ffmpeg version 6.0 Copyright..." or "ffmpeg version n6.0-2-g..."
			parts := strings.Fields(line)
			if len(parts) >= 3 {
				info.Version = parts[2]
				if matches := versionRegex.FindStringSubmatch(parts[2]); len(matches) >= 3 {
					info.MajorVersion, _ = strconv.Atoi(matches[1])
					info.MinorVersion, _ = strconv.Atoi(matches[2])
				}
			}
		case strings.HasPrefix(line, "built with"):
			info.BuildInfo = strings.TrimPrefix(line, "built with ")
		}
	}

	if info.Version == "" {
		return fmt.Errorf("failed to parse ffmpeg version")
	}
	return nil
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output.
func parseEncoderList(output string) []string {
	var encoders []string
	inEncoderList := false

	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "------") {
			inEncoderList = true
			continue
		}
		if !inEncoderList {
			continue
		}

		// Format: V....D encoder_name description
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 || (line[0] != 'V' && line[0] != 'A' && line[0] != 'S') {
			continue
		}
		if parts := strings.Fields(line[6:]); len(parts) >= 1 {
			encoders = append(encoders, parts[0])
		}
	}
	return encoders
}

// HasEncoder returns true if the encoder is available.
func (info *BinaryInfo) HasEncoder(name string) bool {
	return slices.Contains(info.Encoders, name)
}

// JSON returns the binary info as JSON string.
func (info *BinaryInfo) JSON() string {
	data, _ := json.MarshalIndent(info, "", "  ")
	return string(data)
}

// SupportsMinVersion returns true if FFmpeg version meets minimum requirement.
func (info *BinaryInfo) SupportsMinVersion(major, minor int) bool {
	if info.MajorVersion != major {
		return info.MajorVersion > major
	}
	return info.MinorVersion >= minor
}

func resolveBinary(override, name, envVar string) (string, error) {
	if override != "" {
		if !isExecutable(override) {
			return "", fmt.Errorf("configured %s %q is not executable", name, override)
		}
		return override, nil
	}
	return FindBinary(name, envVar)
}

// FindBinary searches for an executable binary by name.
// Search order:
//  1. Environment variable (if envVar is non-empty and set)
//  2. ./name (current directory, useful for development)
//  3. name on PATH (via exec.LookPath)
func FindBinary(name string, envVar string) (string, error) {
	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	localPath := "./" + name
	if isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a file exists and is executable by the current user.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
