package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/ffhls/internal/hls"
	"github.com/jmylchreest/ffhls/internal/observability"
	"github.com/jmylchreest/ffhls/internal/storage"
)

// Content types served by PlaylistHandler.
const (
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/mp2t"
	ContentTypeKey      = "application/octet-stream"
)

// PlaylistHandler serves exported renditions from a disk. Key URIs in media
// playlists are rewritten to the key route so players never see the
// secrets directory used at export time.
type PlaylistHandler struct {
	disk       storage.Disk
	mediaRoute string
	keyRoute   string
	keysDir    string
	logger     *slog.Logger
}

// NewPlaylistHandler creates a handler serving disk under mediaRoute and
// keys stored in keysDir on the same disk under keyRoute.
func NewPlaylistHandler(disk storage.Disk, mediaRoute, keyRoute, keysDir string, logger *slog.Logger) *PlaylistHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaylistHandler{
		disk:       disk,
		mediaRoute: strings.TrimSuffix(mediaRoute, "/"),
		keyRoute:   strings.TrimSuffix(keyRoute, "/"),
		keysDir:    keysDir,
		logger:     logger,
	}
}

// Register adds the media and key routes.
func (h *PlaylistHandler) Register(r chi.Router) {
	r.Get(h.mediaRoute+"/*", h.ServeMedia)
	r.Get(h.keyRoute+"/{name}", h.ServeKey)
}

// ServeMedia serves a playlist or a segment.
func (h *PlaylistHandler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + chi.URLParam(r, "*"))[1:]
	if name == "" {
		http.NotFound(w, r)
		return
	}

	if path.Ext(name) == ".m3u8" {
		text, err := hls.NewDynamicPlaylist(h.disk, name).
			SetKeyURLResolver(func(key string) string { return h.keyRoute + "/" + key }).
			Playlist(r.Context(), path.Base(name))
		if err != nil {
			h.writeError(w, r, name, err)
			return
		}
		w.Header().Set("Content-Type", ContentTypePlaylist)
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = io.WriteString(w, text)
		return
	}

	rc, err := h.disk.Open(r.Context(), name)
	if err != nil {
		h.writeError(w, r, name, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", ContentTypeSegment)
	if _, err := io.Copy(w, rc); err != nil {
		observability.WithError(observability.LoggerFromContext(r.Context()), err).
			DebugContext(r.Context(), "segment write interrupted", slog.String("path", name))
	}
}

// ServeKey serves a key file by name.
func (h *PlaylistHandler) ServeKey(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || name != path.Base(name) || !strings.HasSuffix(name, ".key") {
		http.NotFound(w, r)
		return
	}

	data, err := h.disk.Get(r.Context(), path.Join(h.keysDir, name))
	if err != nil {
		h.writeError(w, r, name, err)
		return
	}
	w.Header().Set("Content-Type", ContentTypeKey)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (h *PlaylistHandler) writeError(w http.ResponseWriter, r *http.Request, name string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, storage.ErrPathEscapes):
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
	default:
		observability.WithError(h.logger, err).ErrorContext(r.Context(), "serving file",
			slog.String("disk", h.disk.Name()),
			slog.String("path", name),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
