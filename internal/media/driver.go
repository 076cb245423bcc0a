package media

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// Prober inspects media files.
type Prober interface {
	Probe(ctx context.Context, path string, inputOptions ...string) (*ffmpeg.ProbeResult, error)
}

// Driver is the boundary to the ffmpeg tools: it opens inputs, builds
// commands, runs them and probes their results.
type Driver struct {
	ffmpegPath string
	runner     ffmpeg.Runner
	prober     Prober
	logLevel   string
	threads    int
	logger     *slog.Logger
}

// NewDriver creates a Driver for the ffmpeg binary at ffmpegPath.
func NewDriver(ffmpegPath string, runner ffmpeg.Runner, prober Prober) *Driver {
	return &Driver{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		prober:     prober,
		logger:     slog.Default(),
	}
}

// WithLogLevel sets ffmpeg's -loglevel. Segment-open lines require info or more verbose.
func (d *Driver) WithLogLevel(level string) *Driver {
	d.logLevel = level
	return d
}

// WithThreads sets ffmpeg's -threads (0 = ffmpeg decides).
func (d *Driver) WithThreads(n int) *Driver {
	d.threads = n
	return d
}

// WithLogger sets the logger.
func (d *Driver) WithLogger(logger *slog.Logger) *Driver {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Open starts a new multi-input graph over sources.
func (d *Driver) Open(sources ...storage.Source) *Graph {
	b := ffmpeg.NewCommandBuilder(d.ffmpegPath).
		LogLevel(d.logLevel).
		HideBanner().
		Overwrite().
		Threads(d.threads)
	for _, s := range sources {
		b.Input(s.Path, s.Options...)
	}
	return &Graph{sources: append([]storage.Source(nil), sources...), builder: b}
}

// OpenSingle opens one source on its own, independent of any graph.
func (d *Driver) OpenSingle(source storage.Source) *SingleMedia {
	return &SingleMedia{source: source, prober: d.prober}
}

// Probe inspects path.
func (d *Driver) Probe(ctx context.Context, path string, inputOptions ...string) (*ffmpeg.ProbeResult, error) {
	return d.prober.Probe(ctx, path, inputOptions...)
}

// Prober returns the prober used by this driver.
func (d *Driver) Prober() Prober {
	return d.prober
}

// Execute runs cmd, passing every output line to listeners.
func (d *Driver) Execute(ctx context.Context, cmd *ffmpeg.Command, listeners ...ffmpeg.LineListener) error {
	d.logger.DebugContext(ctx, "executing ffmpeg",
		slog.Int("inputs", len(cmd.Inputs)),
		slog.Int("outputs", len(cmd.Outputs)),
	)
	return d.runner.Run(ctx, cmd, listeners...)
}
