package ffmpeg

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not installed.
func skipIfNoFFmpeg(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	return path
}

// skipIfNoFFprobe skips the test if ffprobe is not installed.
func skipIfNoFFprobe(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}
	return path
}

// generateTestVideo renders a short lavfi clip with audio into a temp dir.
func generateTestVideo(t *testing.T, ffmpegPath string, seconds int) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "source.mp4")
	cmd := exec.CommandContext(context.Background(), ffmpegPath,
		"-y",
		"-f", "lavfi", "-i", "testsrc=duration="+strconv.Itoa(seconds)+":size=320x240:rate=30",
		"-f", "lavfi", "-i", "sine=duration="+strconv.Itoa(seconds)+":frequency=440:sample_rate=48000",
		"-c:v", "libx264", "-preset", "ultrafast",
		"-c:a", "aac",
		out)
	if err := cmd.Run(); err != nil {
		t.Skipf("could not create test video: %v", err)
	}
	return out
}
