package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/ffhls/internal/ffmpeg"
	"github.com/jmylchreest/ffhls/internal/version"
)

var (
	versionJSON   bool
	versionFFmpeg bool
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of ffhls, and optionally the detected ffmpeg.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var info *ffmpeg.BinaryInfo
		if versionFFmpeg {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			detected, err := ffmpeg.NewBinaryDetector(
				viper.GetString("ffmpeg.binary_path"),
				viper.GetString("ffmpeg.probe_path"),
			).Detect(ctx)
			if err != nil {
				return fmt.Errorf("detecting ffmpeg: %w", err)
			}
			info = detected
		}

		if versionJSON {
			out := struct {
				version.Info
				FFmpeg *ffmpeg.BinaryInfo `json:"ffmpeg,omitempty"`
			}{Info: version.GetInfo(), FFmpeg: info}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling version: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), version.String())
		if info != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "ffmpeg %s (%s)\nffprobe %s\n", info.Version, info.FFmpegPath, info.FFprobePath)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")
	versionCmd.Flags().BoolVar(&versionFFmpeg, "ffmpeg", false, "also detect the ffmpeg and ffprobe binaries")
	rootCmd.AddCommand(versionCmd)
}
