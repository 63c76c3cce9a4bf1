// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

// plannersyncd hosts the offline-first sync engine for the planner desktop
// app: it owns the local SQLite store, runs periodic sync cycles against
// the shared backend, and exposes status and triggers over loopback HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Syncronizee/ib-planner-sub000/localstore"
	"github.com/Syncronizee/ib-planner-sub000/remotestore"
	"github.com/Syncronizee/ib-planner-sub000/syncengine"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	store, err := localstore.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Error("failed to open local store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	remoteCfg := remotestore.DefaultConfig(cfg.Remote.URL, cfg.Remote.APIKey)
	remoteCfg.Aliases = localstore.RemoteAliases()
	remote := remotestore.NewClient(remoteCfg, logger)

	creds := NewFileCredentialStore(cfg.Auth.CredentialsPath)

	engineCfg := syncengine.DefaultConfig()
	if cfg.Sync.PushLimit > 0 {
		engineCfg.PushLimit = cfg.Sync.PushLimit
	}
	engine := syncengine.New(store, remote, creds, engineCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Initialize(ctx); err != nil {
		logger.Error("failed to initialize engine", "error", err)
		os.Exit(1)
	}
	engine.Subscribe(syncengine.EventError, func(st syncengine.Status) {
		logger.Warn("sync error", "error", st.Error, "pending", st.PendingChanges)
	})
	engine.Subscribe(syncengine.EventComplete, func(st syncengine.Status) {
		logger.Info("sync complete", "pending", st.PendingChanges)
	})

	// Assume connectivity at startup; the shell flips it via POST /online.
	engine.SetOnline(ctx, true)

	scheduler := cron.New()
	if cfg.Sync.Schedule != "" {
		if _, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
			engine.SyncNow(context.Background())
		}); err != nil {
			logger.Error("invalid sync schedule", "schedule", cfg.Sync.Schedule, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(engine),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}
}

// newLogger builds a JSON slog logger, rotating through lumberjack when a
// log file is configured.
func newLogger(cfg LogConfig) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
