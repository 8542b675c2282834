package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asticode/go-astiav"
	"github.com/prometheus/client_golang/prometheus"

	"mediacache/internal/cache"
	"mediacache/internal/cache/taskpool"
	"mediacache/internal/config"
	"mediacache/internal/generators"
	"mediacache/internal/httpapi"
	"mediacache/internal/media/backend"
	"mediacache/internal/media/hwdevice"
	"mediacache/internal/media/metacache"
	"mediacache/internal/metrics"
	"mediacache/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed to load", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "media-cache")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("backend", string(cfg.Backend)),
		slog.Int("concurrentTasks", cfg.ConcurrentTasks),
		slog.String("segmentsDir", cfg.Segments.Dir),
		slog.String("thumbnailDir", cfg.Thumbnail.Dir),
		slog.String("sheetDir", cfg.Sheet.Dir),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := taskpool.New(cfg.ConcurrentTasks)
	devicePool := newDevicePool(cfg.Backend)

	segmentGen := generators.NewSegmentGenerator(cfg.Backend, devicePool)
	thumbnailGen := generators.NewThumbnailGenerator()
	sheetGen := generators.NewSheetGenerator()
	subtitleGen := generators.NewSubtitleGenerator()

	segments, err := cache.New(segmentGen, cfg.Segments.Dir, cfg.Segments.SizeLimitByte, pool)
	if err != nil {
		logger.Error("opening segments cache failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	thumbnail, err := cache.New(thumbnailGen, cfg.Thumbnail.Dir, cfg.Thumbnail.SizeLimitByte, pool)
	if err != nil {
		logger.Error("opening thumbnail cache failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sheet, err := cache.New(sheetGen, cfg.Sheet.Dir, cfg.Sheet.SizeLimitByte, pool)
	if err != nil {
		logger.Error("opening sheet cache failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	subtitle, err := cache.New(subtitleGen, cfg.Subtitle.Dir, cfg.Subtitle.SizeLimitByte, pool)
	if err != nil {
		logger.Error("opening subtitle cache failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	basicMeta := metacache.New(generators.NewBasicMetadataFetcher())
	advancedMeta := metacache.New(generators.NewAdvancedMetadataFetcher())

	mediaRoot := os.Getenv("MEDIA_ROOT")
	if mediaRoot == "" {
		mediaRoot = "/media"
	}

	handler := httpapi.NewServer(httpapi.Config{
		Logger:       logger,
		MediaRoot:    mediaRoot,
		Segments:     segments,
		Thumbnail:    thumbnail,
		Sheet:        sheet,
		Subtitle:     subtitle,
		BasicMeta:    basicMeta,
		AdvancedMeta: advancedMeta,
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", addr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// newDevicePool returns a hardware device pool for backends that need
// one, or nil for the software backend.
func newDevicePool(kind backend.Kind) *hwdevice.Pool {
	var deviceType astiav.HardwareDeviceType
	switch kind {
	case backend.KindVideoToolbox:
		deviceType = astiav.HardwareDeviceTypeVideotoolbox
	case backend.KindQuickSync:
		deviceType = astiav.HardwareDeviceTypeQsv
	default:
		return nil
	}
	return hwdevice.New(func() (*astiav.HardwareDeviceContext, error) {
		return astiav.CreateHardwareDeviceContext(deviceType, "", nil, 0)
	})
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
