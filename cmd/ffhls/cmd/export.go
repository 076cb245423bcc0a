package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/hls"
	"github.com/jmylchreest/ffhls/internal/observability"
	"github.com/jmylchreest/ffhls/internal/storage"
)

var exportCmd = &cobra.Command{
	Use:   "export [flags] INPUT...",
	Short: "Export media to an HLS rendition set",
	Long: `Encode one or more inputs into HLS renditions with a single ffmpeg run and
write a master playlist referencing them.

Inputs and the output are "disk:path" references; a path without a known
disk prefix refers to the default disk.

Examples:
  # Two H.264 renditions on the default disk
  ffhls export --output shows/video.m3u8 \
    --rendition x264:250:640x360 --rendition x264:1000:1280x720 video.mp4

  # Rotate the AES-128 key every 5 segments
  ffhls export --output s3:shows/video.m3u8 --rendition x264:500 \
    --encrypt --rotate-keys --segments-per-key 5 local:video.mp4

  # Print the ffmpeg command without running it
  ffhls export --job job.yaml --dry-run`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addExportFlags(exportCmd.Flags())
}

func addExportFlags(fs *pflag.FlagSet) {
	fs.StringP("output", "o", "", "master playlist destination (disk:path)")
	fs.StringArrayP("rendition", "r", nil, "rendition as format:kbps[:WIDTHxHEIGHT], repeatable")
	fs.String("resize", "", "resize mode for sized renditions (fit, inset, fill, stretch)")
	fs.Int("segment-length", 0, "segment length in seconds (default from hls.segment_length)")
	fs.Int("key-frame-interval", 0, "key frame interval in frames (default from hls.key_frame_interval)")
	fs.Bool("no-end-list", false, "omit #EXT-X-ENDLIST from the master playlist")
	fs.Bool("encrypt", false, "encrypt segments with AES-128")
	fs.String("key", "", "static encryption key as 32 hex characters (default generated), not combinable with --rotate-keys")
	fs.Bool("rotate-keys", false, "generate a new key periodically")
	fs.Int("segments-per-key", 1, "segments encrypted with each key when rotating")
	fs.String("keys-dir", "keys", "directory, relative to the output disk root, keys are written to")
	fs.String("job", "", "read the export from a YAML job file")
	fs.Bool("dry-run", false, "print the ffmpeg command instead of running it")
}

// jobFromFlags builds the export from --job or the individual flags.
func jobFromFlags(cmd *cobra.Command, args []string) (*exportJob, error) {
	flags := cmd.Flags()

	var job *exportJob
	if jobFile, _ := flags.GetString("job"); jobFile != "" {
		loaded, err := loadJob(jobFile)
		if err != nil {
			return nil, err
		}
		job = loaded
	} else {
		job = &exportJob{Encryption: encryptionSpec{KeysDir: "keys"}}
	}

	job.Inputs = append(job.Inputs, args...)
	if flags.Changed("output") {
		job.Output, _ = flags.GetString("output")
	}

	resize, _ := flags.GetString("resize")
	renditions, _ := flags.GetStringArray("rendition")
	for _, r := range renditions {
		spec, err := parseRendition(r)
		if err != nil {
			return nil, err
		}
		spec.Resize = resize
		job.Renditions = append(job.Renditions, spec)
	}

	if flags.Changed("segment-length") {
		job.SegmentLength, _ = flags.GetInt("segment-length")
	}
	if flags.Changed("key-frame-interval") {
		job.KeyFrameInterval, _ = flags.GetInt("key-frame-interval")
	}
	if noEndList, _ := flags.GetBool("no-end-list"); noEndList {
		endList := false
		job.EndList = &endList
	}

	if flags.Changed("encrypt") {
		job.Encryption.Enabled, _ = flags.GetBool("encrypt")
	}
	if flags.Changed("key") {
		job.Encryption.Key, _ = flags.GetString("key")
		job.Encryption.Enabled = true
	}
	if flags.Changed("rotate-keys") {
		job.Encryption.Rotate, _ = flags.GetBool("rotate-keys")
		job.Encryption.Enabled = job.Encryption.Enabled || job.Encryption.Rotate
	}
	if flags.Changed("segments-per-key") || job.Encryption.SegmentsPerKey == 0 {
		job.Encryption.SegmentsPerKey, _ = flags.GetInt("segments-per-key")
	}
	if flags.Changed("keys-dir") || job.Encryption.KeysDir == "" {
		job.Encryption.KeysDir, _ = flags.GetString("keys-dir")
	}

	if job.SegmentLength == 0 {
		job.SegmentLength = viper.GetInt("hls.segment_length")
	}
	if job.KeyFrameInterval == 0 {
		job.KeyFrameInterval = viper.GetInt("hls.key_frame_interval")
	}
	if job.EndList == nil {
		endList := viper.GetBool("hls.end_list")
		job.EndList = &endList
	}

	return job, job.validate()
}

func runExport(cmd *cobra.Command, args []string) error {
	job, err := jobFromFlags(cmd, args)
	if err != nil {
		return err
	}

	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.writeMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exportID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	ctx = observability.ContextWithExportID(ctx, exportID)
	logger := observability.WithExportID(rt.logger, exportID)
	ctx = observability.ContextWithLogger(ctx, logger)

	if removed, err := storage.CleanupOrphanedTempDirs(logger, rt.cfg.Storage.TempRoot, rt.cfg.Storage.TempMaxAge); err != nil {
		observability.WithError(logger, err).Warn("failed to clean orphaned temp directories")
	} else if removed > 0 {
		logger.Info("cleaned orphaned temp directories", slog.Int("removed_count", removed))
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	exporter, dest, keyErr, err := buildExporter(ctx, rt, job, logger, !dryRun)
	if err != nil {
		return err
	}

	if dryRun {
		c, release, err := exporter.Command(ctx, dest.Path)
		if err != nil {
			return fmt.Errorf("building command: %w", err)
		}
		defer func() {
			if err := release(); err != nil {
				observability.WithError(logger, err).Warn("failed to release temporary files")
			}
		}()
		fmt.Fprintln(cmd.OutOrStdout(), c.String())
		return nil
	}

	result, err := exporter.Save(ctx, dest.Path)
	if err != nil {
		return fmt.Errorf("exporting %s: %w", dest, err)
	}
	if err := *keyErr; err != nil {
		return fmt.Errorf("storing encryption keys: %w", err)
	}

	logger.Info("export complete",
		slog.String("master", dest.String()),
		slog.Int("renditions", len(result.Playlists)),
		slog.Int("keys", result.KeyRotations),
		slog.Duration("duration", result.Duration),
	)
	return nil
}

// buildExporter resolves the job's references and configures an exporter.
// With storeKeys set, keys are stored on the output disk as they are
// generated; the first failure is reported through the returned error
// pointer once the export ends.
func buildExporter(ctx context.Context, rt *runtime, job *exportJob, logger *slog.Logger, storeKeys bool) (*hls.Exporter, storage.Media, *error, error) {
	var keyErr error

	dest, err := rt.disks.Resolve(job.Output)
	if err != nil {
		return nil, storage.Media{}, nil, fmt.Errorf("resolving output: %w", err)
	}

	inputs := make([]storage.Media, 0, len(job.Inputs))
	for _, ref := range job.Inputs {
		m, err := rt.disks.Resolve(ref)
		if err != nil {
			return nil, storage.Media{}, nil, fmt.Errorf("resolving input %s: %w", ref, err)
		}
		inputs = append(inputs, m)
	}

	exporter := hls.NewExporter(rt.driver, inputs...).
		ToDisk(dest.Disk).
		WithTempRoot(rt.cfg.Storage.TempRoot).
		WithLogger(logger).
		WithMetrics(rt.metrics).
		SetSegmentLength(job.SegmentLength).
		SetKeyFrameInterval(job.KeyFrameInterval).
		OnProgress(progressLogger(logger))
	if job.EndList != nil && !*job.EndList {
		exporter.WithoutPlaylistEndLine()
	}

	for i, r := range job.Renditions {
		format, err := r.format()
		if err != nil {
			return nil, storage.Media{}, nil, fmt.Errorf("rendition %d: %w", i, err)
		}
		filters, err := r.filters()
		if err != nil {
			return nil, storage.Media{}, nil, fmt.Errorf("rendition %d: %w", i, err)
		}
		exporter.AddFormat(format, filters)
	}

	if !job.Encryption.Enabled {
		return exporter, dest, &keyErr, nil
	}

	var listener hls.NewKeyListener
	if storeKeys {
		keysDir := job.Encryption.KeysDir
		listener = func(filename string, key []byte) {
			p := path.Join(keysDir, filename)
			if err := dest.Disk.Put(ctx, p, key); err != nil {
				if keyErr == nil {
					keyErr = err
				}
				return
			}
			logger.Debug("stored encryption key", slog.String("path", p))
		}
	}

	if job.Encryption.Rotate {
		err = exporter.WithRotatingEncryptionKey(listener, job.Encryption.SegmentsPerKey)
	} else {
		var key []byte
		if key, err = job.Encryption.key(); err == nil {
			err = exporter.WithEncryptionKey(key, listener)
		}
	}
	if err != nil {
		return nil, storage.Media{}, nil, fmt.Errorf("configuring encryption: %w", err)
	}
	return exporter, dest, &keyErr, nil
}

// progressLogger logs every tenth of the export.
func progressLogger(logger *slog.Logger) func(ffmpeg.Progress) {
	last := -1
	return func(p ffmpeg.Progress) {
		if p.Percentage < 0 {
			return
		}
		step := int(p.Percentage) / 10
		if step <= last {
			return
		}
		last = step
		logger.Info("export progress",
			slog.Float64("percentage", p.Percentage),
			slog.Duration("remaining", p.Remaining),
			slog.Float64("speed", p.Speed),
		)
	}
}
