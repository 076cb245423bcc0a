package hls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/media"
	"github.com/jmylchreest/ffhls/internal/observability"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// Export defaults.
const (
	DefaultSegmentLength    = 10
	DefaultKeyFrameInterval = 48
)

// FilterFunc adds the filters of one rendition.
type FilterFunc func(vf *VideoFilters)

// SegmentFilenameGenerator names the segments and playlist of rendition index.
// baseName is the master playlist name without its extension.
type SegmentFilenameGenerator func(baseName string, format media.Format, index int) (segmentPattern, playlist string)

// DefaultSegmentFilenames produces "{base}_{index}_{kbps}_%05d.ts" and "{base}_{index}_{kbps}.m3u8".
func DefaultSegmentFilenames(baseName string, format media.Format, index int) (string, string) {
	stem := fmt.Sprintf("%s_%d_%d", baseName, index, format.KiloBitrate)
	return stem + "_%05d.ts", stem + ".m3u8"
}

// guidePlaylistName is the single-variant master ffmpeg writes per rendition.
func guidePlaylistName(index int) string {
	return fmt.Sprintf("temporary_segment_playlist_%d.m3u8", index)
}

type rendition struct {
	format  media.Format
	filters FilterFunc
}

// Result describes a finished export.
type Result struct {
	// MasterPath is the master playlist path on the destination disk.
	MasterPath string
	// Playlists are the rendition playlist paths on the destination disk, in export order.
	Playlists []string
	// Master is the master playlist text.
	Master string
	// KeyRotations counts the encryption keys written, 0 when unencrypted.
	KeyRotations int
	Duration     time.Duration
}

// Exporter encodes its inputs into an HLS rendition set with a single ffmpeg run.
type Exporter struct {
	driver           *media.Driver
	inputs           []storage.Media
	disk             storage.Disk
	tempRoot         string
	renditions       []rendition
	segmentLength    int
	keyFrameInterval int
	namer            SegmentFilenameGenerator
	generator        PlaylistGenerator
	endList          bool
	onProgress       func(ffmpeg.Progress)
	encryption       *Encryption
	metrics          *observability.Metrics
	logger           *slog.Logger
}

// NewExporter creates an exporter for inputs. The first input is the one
// renditions read from unless a filter selects another.
func NewExporter(driver *media.Driver, inputs ...storage.Media) *Exporter {
	return &Exporter{
		driver:           driver,
		inputs:           inputs,
		segmentLength:    DefaultSegmentLength,
		keyFrameInterval: DefaultKeyFrameInterval,
		namer:            DefaultSegmentFilenames,
		generator:        DefaultPlaylistGenerator{},
		endList:          true,
		encryption:       NewEncryption(""),
		logger:           slog.Default(),
	}
}

// ToDisk sets the destination disk. Defaults to the disk of the first input.
func (e *Exporter) ToDisk(disk storage.Disk) *Exporter {
	e.disk = disk
	return e
}

// WithTempRoot sets where temporary directories are created (empty = os.TempDir()).
func (e *Exporter) WithTempRoot(root string) *Exporter {
	e.tempRoot = root
	e.encryption.tempRoot = root
	return e
}

// WithLogger sets the logger.
func (e *Exporter) WithLogger(logger *slog.Logger) *Exporter {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithMetrics records export outcomes and key rotations on m.
func (e *Exporter) WithMetrics(m *observability.Metrics) *Exporter {
	e.metrics = m
	e.encryption.WithMetrics(m)
	return e
}

// AddFormat queues a rendition. Renditions keep the order they were added
// in; the position is used in file names and filter labels. filters may be nil.
func (e *Exporter) AddFormat(format media.Format, filters FilterFunc) *Exporter {
	e.renditions = append(e.renditions, rendition{format: format, filters: filters})
	return e
}

// SetSegmentLength sets the target segment duration in seconds.
func (e *Exporter) SetSegmentLength(seconds int) *Exporter {
	if seconds > 0 {
		e.segmentLength = seconds
	}
	return e
}

// SetKeyFrameInterval sets the GOP size in frames.
func (e *Exporter) SetKeyFrameInterval(frames int) *Exporter {
	if frames > 0 {
		e.keyFrameInterval = frames
	}
	return e
}

// UseSegmentFilenameGenerator replaces the default naming scheme.
func (e *Exporter) UseSegmentFilenameGenerator(fn SegmentFilenameGenerator) *Exporter {
	if fn != nil {
		e.namer = fn
	}
	return e
}

// WithPlaylistGenerator replaces the master playlist generator.
func (e *Exporter) WithPlaylistGenerator(g PlaylistGenerator) *Exporter {
	if g != nil {
		e.generator = g
	}
	return e
}

// WithoutPlaylistEndLine omits #EXT-X-ENDLIST from the master playlist.
func (e *Exporter) WithoutPlaylistEndLine() *Exporter {
	e.endList = false
	return e
}

// OnProgress registers a progress callback. Percentage is -1 when the
// duration of the first input is unknown.
func (e *Exporter) OnProgress(fn func(ffmpeg.Progress)) *Exporter {
	e.onProgress = fn
	return e
}

// WithEncryptionKey encrypts all segments with key (nil = generate one).
func (e *Exporter) WithEncryptionKey(key []byte, listener NewKeyListener) error {
	return e.encryption.WithEncryptionKey(key, listener)
}

// WithRotatingEncryptionKey encrypts segments with a new key every segmentsPerKey segments.
func (e *Exporter) WithRotatingEncryptionKey(listener NewKeyListener, segmentsPerKey int) error {
	return e.encryption.WithRotatingEncryptionKey(listener, segmentsPerKey)
}

// Encryption returns the exporter's key manager.
func (e *Exporter) Encryption() *Encryption {
	return e.encryption
}

// prepared is the state of one export between preparation and completion.
type prepared struct {
	cmd        *ffmpeg.Command
	playlists  []PlaylistMedia
	staging    []string // local directories to upload, empty when writing in place
	destDir    string
	duration   time.Duration
	temps      *storage.TemporaryDirectories
	encryption *Encryption
}

func (p *prepared) release() error {
	var errs []error
	if p.temps != nil {
		errs = append(errs, p.temps.Release())
	}
	if p.encryption != nil {
		errs = append(errs, p.encryption.Cleanup())
	}
	return errors.Join(errs...)
}

// Command prepares the export of dest without running it. The returned
// release function removes the temporary files the command refers to.
func (e *Exporter) Command(ctx context.Context, dest string) (*ffmpeg.Command, func() error, error) {
	p, err := e.prepare(ctx, dest)
	if err != nil {
		if p != nil {
			_ = p.release()
		}
		return nil, nil, err
	}
	return p.cmd, p.release, nil
}

// Save runs the export and writes the master playlist to dest on the destination disk.
// Temporary files and key material are removed whether or not it succeeds.
func (e *Exporter) Save(ctx context.Context, dest string) (result *Result, err error) {
	start := time.Now()
	logger := observability.WithComponent(e.logger, "hls-exporter")
	if id := observability.ExportIDFromContext(ctx); id != "" {
		logger = observability.WithExportID(logger, id)
	}

	done := observability.TimedOperationWithError(ctx, logger, "hls export", &err)
	defer done()
	defer func() { e.metrics.ObserveExport(time.Since(start), len(e.renditions), err) }()

	p, err := e.prepare(ctx, dest)
	if p != nil {
		defer func() {
			if releaseErr := p.release(); releaseErr != nil {
				logger.WarnContext(ctx, "failed to release temporary files", slog.String("error", releaseErr.Error()))
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	var listeners []ffmpeg.LineListener
	if l := e.encryption.RotationListener(); l != nil {
		listeners = append(listeners, l)
	}
	if e.onProgress != nil {
		listeners = append(listeners, ffmpeg.ProgressListener(p.duration, e.onProgress))
	}

	logger.DebugContext(ctx, "running export",
		slog.Int("renditions", len(e.renditions)),
		slog.Bool("encrypted", e.encryption.Enabled()),
		slog.Bool("rotating", e.encryption.Rotating()),
	)

	if err := e.driver.Execute(ctx, p.cmd, listeners...); err != nil {
		return nil, err
	}
	if err := e.encryption.Err(); err != nil {
		return nil, fmt.Errorf("rotating encryption key: %w", err)
	}

	master, err := e.generator.Get(ctx, p.playlists, e.driver.Prober(), e.endList)
	if err != nil {
		return nil, fmt.Errorf("generating master playlist: %w", err)
	}

	for _, pl := range p.playlists {
		if err := os.Remove(pl.GuidePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.WarnContext(ctx, "failed to remove guide playlist",
				slog.String("path", pl.GuidePath),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, dir := range p.staging {
		written, err := storage.CopyDirectory(ctx, dir, e.disk, p.destDir)
		if err != nil {
			return nil, fmt.Errorf("uploading rendition: %w", err)
		}
		logger.DebugContext(ctx, "uploaded rendition",
			slog.String("disk", e.disk.Name()),
			slog.Int("files", len(written)),
		)
	}

	if err := e.disk.Put(ctx, dest, []byte(master)); err != nil {
		return nil, fmt.Errorf("writing master playlist: %w", err)
	}

	result = &Result{
		MasterPath:   dest,
		Master:       master,
		KeyRotations: e.encryption.Rotations(),
		Duration:     time.Since(start),
	}
	for _, pl := range p.playlists {
		result.Playlists = append(result.Playlists, pl.Path)
	}
	return result, nil
}

// prepare builds the command. A non-nil prepared is returned whenever
// resources were allocated, even on error, so the caller can release them.
func (e *Exporter) prepare(ctx context.Context, dest string) (*prepared, error) {
	if len(e.inputs) == 0 {
		return nil, errors.New("no inputs to export")
	}
	if len(e.renditions) == 0 {
		return nil, errors.New("no formats added")
	}
	if e.disk == nil {
		e.disk = e.inputs[0].Disk
	}

	p := &prepared{
		temps:   storage.NewTemporaryDirectories(e.tempRoot),
		destDir: path.Dir(dest),
	}

	sources := make([]storage.Source, 0, len(e.inputs))
	for _, in := range e.inputs {
		src, err := storage.Materialize(ctx, in, p.temps)
		if err != nil {
			return p, err
		}
		sources = append(sources, src)
	}

	probe, err := e.driver.Probe(ctx, sources[0].Path, sources[0].Options...)
	if err != nil {
		return p, fmt.Errorf("probing %s: %w", e.inputs[0], err)
	}
	if d, err := probe.Duration(); err == nil {
		p.duration = d
	}
	hasAudio := probe.HasAudio()

	localDir, err := e.localDestination(p.destDir)
	if err != nil {
		return p, err
	}

	p.encryption = e.encryption
	encryptionParams, err := e.encryption.EncryptedHLSParameters()
	if err != nil {
		return p, fmt.Errorf("preparing encryption: %w", err)
	}

	graph := e.driver.Open(sources...)
	baseName := strings.TrimSuffix(path.Base(dest), path.Ext(dest))

	var (
		mappings []*OutputMapping
		legacy   []*LegacyFilterMapping
	)
	for i, r := range e.renditions {
		dir := localDir
		if dir == "" {
			dir, err = p.temps.Create("rendition" + strconv.Itoa(i))
			if err != nil {
				return p, err
			}
			p.staging = append(p.staging, dir)
		}

		segmentPattern, playlistName := e.namer(baseName, r.format, i)
		guide := guidePlaylistName(i)
		localPlaylist := filepath.Join(dir, playlistName)
		localSegments := filepath.Join(dir, segmentPattern)
		for _, d := range []string{filepath.Dir(localPlaylist), filepath.Dir(localSegments)} {
			if err := os.MkdirAll(d, 0o750); err != nil {
				return p, fmt.Errorf("creating rendition directory: %w", err)
			}
		}

		format := r.format.WithParameters(
			"-sc_threshold", "0",
			"-g", strconv.Itoa(e.keyFrameInterval),
			"-hls_playlist_type", "vod",
			"-hls_time", strconv.Itoa(e.segmentLength),
			"-hls_segment_filename", localSegments,
			"-master_pl_name", guide,
		).WithParameters(encryptionParams...)

		vf := NewVideoFilters(graph, i)
		if r.filters != nil {
			r.filters(vf)
		}

		var outs []string
		switch {
		case vf.Count() > 0:
			outs = append(outs, vf.Input())
		case format.IsVideo():
			outs = append(outs, "0:v")
		}
		if hasAudio {
			outs = append(outs, "0:a")
		}

		mappings = append(mappings, &OutputMapping{
			Outs:              outs,
			Format:            format,
			Path:              localPlaylist,
			ForceDisableAudio: !hasAudio,
		})
		legacy = append(legacy, vf.LegacyMappings()...)

		p.playlists = append(p.playlists, PlaylistMedia{
			Path:      path.Join(p.destDir, playlistName),
			LocalPath: localPlaylist,
			// ffmpeg writes -master_pl_name next to the media playlist.
			GuidePath: filepath.Join(filepath.Dir(localPlaylist), guide),
		})
	}

	for _, m := range legacy {
		if err := m.Apply(ctx, e.driver, sources, graph, mappings); err != nil {
			return p, err
		}
	}
	for _, m := range mappings {
		m.Apply(graph)
	}

	p.cmd = graph.Command()
	return p, nil
}

// localDestination returns the local directory ffmpeg can write to directly,
// or "" when the destination disk is not local.
func (e *Exporter) localDestination(destDir string) (string, error) {
	lp, ok := e.disk.(storage.LocalPather)
	if !ok {
		return "", nil
	}
	dir, err := lp.LocalPath(destDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return dir, nil
}
