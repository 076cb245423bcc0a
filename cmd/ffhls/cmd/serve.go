package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	internalhttp "github.com/jmylchreest/ffhls/internal/http"
	"github.com/jmylchreest/ffhls/internal/http/handlers"
	"github.com/jmylchreest/ffhls/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve exported playlists, segments and keys",
	Long: `Start an HTTP server for the renditions stored on a disk.

The server provides:
- Playlists and segments under the media route (default /hls)
- Encryption keys under the key route (default /keys); key URIs in media
  playlists are rewritten to point at it
- Prometheus metrics at /metrics
- Health checks at /health and /livez`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("disk", "", "Disk to serve (default from server.disk)")
	serveCmd.Flags().String("keys-dir", "keys", "Directory on the disk keys are read from")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("server.disk", serveCmd.Flags().Lookup("disk"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(false)
	if err != nil {
		return err
	}

	disk, err := rt.disks.Disk(viper.GetString("server.disk"))
	if err != nil {
		return fmt.Errorf("resolving served disk: %w", err)
	}
	keysDir, _ := cmd.Flags().GetString("keys-dir")

	server := internalhttp.NewServer(internalhttp.ServerConfigFrom(rt.cfg.Server), rt.logger)
	router := server.Router()

	handlers.NewHealthHandler(version.Short(), rt.disks).Register(router)
	handlers.NewPlaylistHandler(disk, rt.cfg.Server.MediaRoute, rt.cfg.Server.KeyRoute, keysDir, rt.logger).Register(router)
	router.Handle("/metrics", rt.metrics.Handler())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt.logger.Info("serving disk",
		slog.String("disk", disk.Name()),
		slog.String("media_route", rt.cfg.Server.MediaRoute),
		slog.String("key_route", rt.cfg.Server.KeyRoute),
	)
	return server.ListenAndServe(ctx)
}
