package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObserveExport(t *testing.T) {
	m := NewMetrics()

	m.ObserveExport(3*time.Second, 3, nil)
	m.ObserveExport(time.Second, 2, errors.New("ffmpeg exited"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues(StatusFailure)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.renditions))
}

func TestMetrics_KeyRotationsAndProbes(t *testing.T) {
	m := NewMetrics()

	for range 4 {
		m.IncKeyRotations()
	}
	m.ObserveProbe(nil)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.keyRotations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probesTotal.WithLabelValues(StatusSuccess)))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveExport(time.Second, 1, nil)
		m.IncKeyRotations()
		m.ObserveProbe(nil)
		require.NoError(t, m.WriteTextfile("/nonexistent/metrics.prom"))
	})
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveExport(2*time.Second, 1, nil)

	path := filepath.Join(t.TempDir(), "ffhls.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `hls_exports_total{status="success"} 1`))
}
