// Package main is the entry point for the calmerge server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dtorcivia/calmerge/internal/config"
	cmcrypto "github.com/dtorcivia/calmerge/internal/crypto"
	"github.com/dtorcivia/calmerge/internal/database"
	"github.com/dtorcivia/calmerge/internal/server"
	"github.com/dtorcivia/calmerge/internal/settings"
	"github.com/dtorcivia/calmerge/internal/util"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "generate-token":
			token, err := cmcrypto.GenerateAPIToken()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(token)
			return
		case "version":
			fmt.Println(server.Version)
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *util.Logger {
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger.SetIncludeCaller(cfg.Logging.IncludeCaller)
	util.SetDefaultLogger(logger)
	return logger
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("Starting calmerge",
		"version", server.Version,
		"port", cfg.Server.Port,
	)

	db, err := database.OpenWithOptions(cfg.Database.Path, database.Options{
		WALMode:       cfg.Database.WALMode,
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	logger.Info("Database initialized",
		"path", cfg.Database.Path,
	)

	// Load runtime settings (database overrides)
	settingsStore := settings.NewStore(db)
	runtimeSettings, err := settingsStore.Load(context.Background())
	if err != nil {
		logger.Warn("Failed to load runtime settings", "error", err)
	} else if err := runtimeSettings.ApplyTo(cfg); err != nil {
		logger.Warn("Failed to apply runtime settings", "error", err)
	} else {
		logger = newLogger(cfg)
	}

	srv, err := server.New(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			"addr", httpServer.Addr,
			"base_url", cfg.Server.BaseURL,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.StartBackgroundWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start background workers: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		srv.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Pending expiry writes drain here, before the database closes.
	srv.Stop()
	cancel()

	logger.Info("Server stopped")
	return nil
}
