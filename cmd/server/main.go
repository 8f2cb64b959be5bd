package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	h "github.com/iqra-app/media-importer/internal/api/http"
	cfgpkg "github.com/iqra-app/media-importer/internal/config"
	repo "github.com/iqra-app/media-importer/internal/repository"
	svc "github.com/iqra-app/media-importer/internal/service"
	"github.com/iqra-app/media-importer/internal/storage"
	"github.com/iqra-app/media-importer/internal/transport"
)

func main() {

	cfg, err := cfgpkg.Load()
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			slog.Error("configuration file not found", "error", err)
		} else {
			slog.Error("failed to load configuration", "error", err)
		}
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	slog.Info("configuration loaded successfully", "backend", cfg.BackendURL)

	recordStore := repo.NewRecordStore(cfg.StateFile, cfg.RecordTTL)
	library := storage.NewFileStorage(cfg.LibraryDir)
	slog.Info("library ready", "dir", library.Dir())
	backend := transport.NewClient(cfg.BackendURL, cfg.TempDir, cfg.RequestTimeout, cfg.DownloadTimeout, slog.Default())

	importService := svc.NewImportService(backend, recordStore, library, cfg, nil, slog.Default())

	go func() {
		if _, err := importService.ResumeIfPending(context.Background()); err != nil {
			slog.Error("failed to resume pending import", "error", err)
		}
	}()

	router := h.NewRouter(importService, slog.Default())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// The persisted job record is deliberately left in place: an import
	// interrupted by shutdown is resumed on the next start.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	} else {
		slog.Info("server stopped gracefully")
	}
}
