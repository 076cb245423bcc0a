package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/jmylchreest/ffhls/internal/config"
	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/httpclient"
	"github.com/jmylchreest/ffhls/internal/media"
	"github.com/jmylchreest/ffhls/internal/observability"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// runtime bundles the services shared by the export, probe, inspect and serve commands.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	disks   *storage.Registry
	driver  *media.Driver
}

// newRuntime loads the configuration and wires disks, metrics and the ffmpeg
// driver. The driver is only created when withFFmpeg is set so commands that
// never run ffmpeg work without it installed.
func newRuntime(withFFmpeg bool) (*runtime, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	rt := &runtime{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
	}

	client := httpclient.New(httpclient.ConfigFrom(cfg.HTTP, logger))
	rt.disks, err = storage.NewRegistry(cfg.Storage, client)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	if !withFFmpeg {
		return rt, nil
	}

	ffmpegPath, ffprobePath, err := ffmpeg.NewBinaryDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath).Paths()
	if err != nil {
		return nil, fmt.Errorf("locating ffmpeg: %w", err)
	}

	prober := ffmpeg.NewProber(ffprobePath).
		WithTimeout(cfg.FFmpeg.ProbeTimeout).
		WithMetrics(rt.metrics)

	runner := ffmpeg.NewProcessRunner(observability.WithComponent(logger, "ffmpeg"), cfg.FFmpeg.VerboseErrors)
	if cfg.FFmpeg.MonitorProcess {
		runner.MonitorInterval = cfg.FFmpeg.MonitorInterval
	}

	rt.driver = media.NewDriver(ffmpegPath, runner, prober).
		WithLogLevel(cfg.FFmpeg.LogLevel).
		WithThreads(cfg.FFmpeg.Threads).
		WithLogger(logger)

	return rt, nil
}

// writeMetrics flushes the textfile collector output when configured.
func (rt *runtime) writeMetrics() {
	if rt.cfg.Metrics.Textfile == "" {
		return
	}
	if err := rt.metrics.WriteTextfile(rt.cfg.Metrics.Textfile); err != nil {
		observability.WithError(rt.logger, err).Warn("failed to write metrics textfile",
			slog.String("path", rt.cfg.Metrics.Textfile),
		)
	}
}
