package ffmpeg

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestProcessMonitor_SamplesCurrentProcess(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	pm := NewProcessMonitor(os.Getpid())
	pm.SetInterval(10 * time.Millisecond)
	pm.Start()

	assert.Eventually(t, func() bool { return pm.Stats().Samples > 1 }, 2*time.Second, 10*time.Millisecond)
	pm.Stop()

	stats := pm.Stats()
	assert.Equal(t, os.Getpid(), stats.PID)
	assert.Greater(t, stats.PeakMemoryBytes, uint64(0))
	assert.GreaterOrEqual(t, stats.PeakMemoryBytes, stats.MemoryRSSBytes)
	assert.NotEmpty(t, stats.PeakRSS())
	assert.Greater(t, stats.Duration, time.Duration(0))
}

func TestProcessMonitor_MissingProcess(t *testing.T) {
	pm := NewProcessMonitor(-1)
	pm.SetInterval(5 * time.Millisecond)
	pm.Start()
	time.Sleep(20 * time.Millisecond)
	pm.Stop()

	assert.Zero(t, pm.Stats().Samples)
}
