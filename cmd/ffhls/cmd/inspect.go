package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/ffhls/internal/hls"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [flags] MASTER",
	Short: "Describe an exported master playlist",
	Long: `Parse a master playlist ("disk:path") and each rendition it references,
and print their bandwidth, resolution, segment count, duration and keys.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}

		m, err := rt.disks.Resolve(args[0])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[0], err)
		}

		inspection, err := hls.Inspect(cmd.Context(), m.Disk, m.Path)
		if err != nil {
			return err
		}

		jsonOut, _ := cmd.Flags().GetBool("json")
		return printStructured(cmd.OutOrStdout(), inspection, jsonOut)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("json", false, "output JSON instead of YAML")
}
