package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediacache/internal/cache"
	"mediacache/internal/generators"
	"mediacache/internal/media/hls"
	"mediacache/internal/media/metacache"
	"mediacache/internal/media/spritesheet"
)

// Server exposes the artifact caches and metadata caches over HTTP.
//
// Grounded on internal/api/http/server.go's ServerOption-based
// construction in the teacher, simplified to direct fields since this
// domain's generator set is fixed rather than pluggable per-request.
type Server struct {
	logger *slog.Logger

	segments  *cache.Cache[generators.SegmentInput, cache.FileValidityKey, struct{}]
	thumbnail *cache.Cache[generators.ThumbnailInput, cache.FileValidityKey, struct{}]
	sheet     *cache.Cache[generators.SheetInput, cache.FileValidityKey, spritesheet.Params]
	subtitle  *cache.Cache[generators.SubtitleInput, cache.FileValidityKey, struct{}]

	basicMeta    *metacache.Cache[metacache.BasicMediaMetadata]
	advancedMeta *metacache.Cache[metacache.AdvancedMediaMetadata]

	mediaRoot string
}

// Config bundles the already-constructed caches a Server is built from.
type Config struct {
	Logger    *slog.Logger
	MediaRoot string

	Segments  *cache.Cache[generators.SegmentInput, cache.FileValidityKey, struct{}]
	Thumbnail *cache.Cache[generators.ThumbnailInput, cache.FileValidityKey, struct{}]
	Sheet     *cache.Cache[generators.SheetInput, cache.FileValidityKey, spritesheet.Params]
	Subtitle  *cache.Cache[generators.SubtitleInput, cache.FileValidityKey, struct{}]

	BasicMeta    *metacache.Cache[metacache.BasicMediaMetadata]
	AdvancedMeta *metacache.Cache[metacache.AdvancedMediaMetadata]

	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer builds the routed, middleware-wrapped HTTP handler.
func NewServer(cfg Config) http.Handler {
	s := &Server{
		logger:       cfg.Logger,
		segments:     cfg.Segments,
		thumbnail:    cfg.Thumbnail,
		sheet:        cfg.Sheet,
		subtitle:     cfg.Subtitle,
		basicMeta:    cfg.BasicMeta,
		advancedMeta: cfg.AdvancedMeta,
		mediaRoot:    cfg.MediaRoot,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/segments/", s.handleSegment)
	mux.HandleFunc("/thumbnail", s.handleThumbnail)
	mux.HandleFunc("/sheet", s.handleSheet)
	mux.HandleFunc("/subtitle", s.handleSubtitle)
	mux.HandleFunc("/metadata/basic", s.handleBasicMetadata)
	mux.HandleFunc("/metadata/advanced", s.handleAdvancedMetadata)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 40
	}

	var handler http.Handler = mux
	handler = metricsMiddleware(handler)
	handler = rateLimitMiddleware(rps, burst, handler)
	handler = corsMiddleware(handler)
	handler = recoveryMiddleware(s.logger, handler)
	handler = loggingMiddleware(s.logger, handler)
	return handler
}

// resolvePath joins a caller-supplied relative media path against
// mediaRoot, rejecting any path that escapes it.
func (s *Server) resolvePath(relative string) (string, bool) {
	relative = filepath.Clean(strings.TrimPrefix(relative, "/"))
	if relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return "", false
	}
	clean := filepath.Join(s.mediaRoot, relative)
	if !strings.HasPrefix(clean, filepath.Clean(s.mediaRoot)+string(filepath.Separator)) {
		return "", false
	}
	return clean, true
}

// handleSegment serves /segments/{rung}/{index}/{media path...}.segment.ts
func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/segments/"), "/", 3)
	if len(parts) != 3 {
		writeError(w, http.StatusBadRequest, "bad_request", "expected /segments/{rung}/{index}/{path}")
		return
	}
	rungID, indexRaw, relativePath := parts[0], parts[1], parts[2]

	index, err := strconv.Atoi(indexRaw)
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid segment index")
		return
	}
	if _, ok := hls.RungByID(rungID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown quality rung")
		return
	}

	path, ok := s.resolvePath(relativePath)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid media path")
		return
	}

	entry, err := s.segments.GetOrGenerate(r.Context(), generators.SegmentInput{
		Path:         path,
		RungID:       rungID,
		SegmentIndex: index,
	})
	writeArtifact(w, entry, err, "video/MP2T")
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePath(r.URL.Query().Get("path"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid media path")
		return
	}
	entry, err := s.thumbnail.GetOrGenerate(r.Context(), generators.ThumbnailInput{Path: path})
	writeArtifact(w, entry, err, "image/jpeg")
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePath(r.URL.Query().Get("path"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid media path")
		return
	}
	entry, err := s.sheet.GetOrGenerate(r.Context(), generators.SheetInput{Path: path})
	writeArtifact(w, entry, err, "image/jpeg")
}

func (s *Server) handleSubtitle(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePath(r.URL.Query().Get("path"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid media path")
		return
	}
	streamIndex, err := strconv.Atoi(r.URL.Query().Get("stream"))
	if err != nil || streamIndex < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid stream index")
		return
	}
	entry, err := s.subtitle.GetOrGenerate(r.Context(), generators.SubtitleInput{Path: path, StreamIndex: streamIndex})
	writeArtifact(w, entry, err, "text/vtt")
}

func (s *Server) handleBasicMetadata(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePath(r.URL.Query().Get("path"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid media path")
		return
	}
	meta, err := s.basicMeta.Fetch(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleAdvancedMetadata(w http.ResponseWriter, r *http.Request) {
	path, ok := s.resolvePath(r.URL.Query().Get("path"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid media path")
		return
	}
	meta, err := s.advancedMeta.Fetch(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// writeArtifact writes a cache entry's bytes, translating the cache
// package's sentinel errors into the matching HTTP status on failure.
func writeArtifact[M any](w http.ResponseWriter, entry *cache.Entry[M], err error, contentType string) {
	if err != nil {
		status := artifactStatus(err)
		writeError(w, status, "generation_failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(entry.Bytes)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.Bytes)
}

func artifactStatus(err error) int {
	switch {
	case errors.Is(err, cache.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, cache.ErrGeneration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}
