package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/storage"
)

var probeCmd = &cobra.Command{
	Use:   "probe [flags] INPUT...",
	Short: "Describe the streams of media files",
	Long: `Run ffprobe on each input ("disk:path") and print its duration and
primary video and audio streams. Inputs are probed concurrently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Bool("json", false, "output JSON instead of YAML")
	probeCmd.Flags().Int("concurrency", 4, "maximum number of concurrent probes")
}

// probeSummary is the printed description of one input.
type probeSummary struct {
	Input     string       `json:"input" yaml:"input"`
	Container string       `json:"container,omitempty" yaml:"container,omitempty"`
	Duration  string       `json:"duration,omitempty" yaml:"duration,omitempty"`
	Video     *videoStream `json:"video,omitempty" yaml:"video,omitempty"`
	Audio     *audioStream `json:"audio,omitempty" yaml:"audio,omitempty"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
}

type videoStream struct {
	Codec     string `json:"codec" yaml:"codec"`
	Width     int    `json:"width" yaml:"width"`
	Height    int    `json:"height" yaml:"height"`
	FrameRate string `json:"frame_rate" yaml:"frame_rate"`
}

type audioStream struct {
	Codec      string `json:"codec" yaml:"codec"`
	Channels   int    `json:"channels" yaml:"channels"`
	SampleRate string `json:"sample_rate" yaml:"sample_rate"`
}

func summarize(input string, r *ffmpeg.ProbeResult) probeSummary {
	s := probeSummary{Input: input, Container: r.Format.FormatName}
	if d, err := r.Duration(); err == nil {
		s.Duration = d.String()
	}
	if v := r.VideoStream(); v != nil {
		s.Video = &videoStream{
			Codec:     v.CodecName,
			Width:     v.Width,
			Height:    v.Height,
			FrameRate: ffmpeg.FormatFrameRate(v.FrameRate()),
		}
	}
	if a := r.AudioStream(); a != nil {
		s.Audio = &audioStream{Codec: a.CodecName, Channels: a.Channels, SampleRate: a.SampleRate}
	}
	return s
}

func runProbe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.writeMetrics()

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	temps := storage.NewTemporaryDirectories(rt.cfg.Storage.TempRoot)
	defer func() { _ = temps.Release() }()

	summaries := make([]probeSummary, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(concurrency, 1))

	for i, ref := range args {
		g.Go(func() error {
			m, err := rt.disks.Resolve(ref)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", ref, err)
			}
			src, err := storage.Materialize(ctx, m, temps)
			if err != nil {
				summaries[i] = probeSummary{Input: m.String(), Error: err.Error()}
				return nil
			}
			result, err := rt.driver.Probe(ctx, src.Path, src.Options...)
			if err != nil {
				summaries[i] = probeSummary{Input: m.String(), Error: err.Error()}
				return nil
			}
			summaries[i] = summarize(m.String(), result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	jsonOut, _ := cmd.Flags().GetBool("json")
	return printStructured(cmd.OutOrStdout(), summaries, jsonOut)
}

// printStructured writes v as indented JSON or YAML.
func printStructured(w io.Writer, v any, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}
