// Command foremand runs the dashboard server: the HTTP API, the stream
// connection manager, and the workspace registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmaloney/foreman/internal/config"
	"github.com/dmaloney/foreman/internal/forge"
	"github.com/dmaloney/foreman/internal/policy"
	"github.com/dmaloney/foreman/internal/store"
	"github.com/dmaloney/foreman/internal/stream"
	"github.com/dmaloney/foreman/internal/version"
	"github.com/dmaloney/foreman/internal/web"
	"github.com/dmaloney/foreman/internal/workspace"
)

func main() {
	configPath := flag.String("config", "configs/foreman.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("foremand", version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting foremand",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"http_addr", cfg.HTTP.Addr,
		"agent_base_url", cfg.Streams.AgentBaseURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	st := store.New(pool, logger)
	defer st.Close()

	logger.Info("database connected")

	// User settings, hot-reloaded from disk
	settings, err := policy.NewFileStore(cfg.Policy.Path, logger)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	defer settings.Close()

	// Stream connection manager
	streamCfg := stream.Config{
		BaseURL:                   cfg.Streams.AgentBaseURL,
		MaxConnections:            cfg.Streams.MaxConnections,
		ConnectTimeout:            cfg.Streams.ConnectTimeout,
		ReconnectBaseDelay:        cfg.Streams.ReconnectBaseDelay,
		ReconnectMaxDelay:         cfg.Streams.ReconnectMaxDelay,
		MaxReconnectAttempts:      cfg.Streams.MaxReconnectAttempts,
		HeartbeatInterval:         cfg.Streams.HeartbeatInterval,
		InactiveHeartbeatInterval: cfg.Streams.InactiveHeartbeatInterval,
		WriteTimeout:              cfg.Streams.WriteTimeout,
		MessageBufferSize:         cfg.Streams.MessageBufferSize,
		BufferMaxBytes:            cfg.Streams.BufferMaxBytes,
		IdleTTL:                   cfg.Streams.IdleTTL,
	}
	manager := stream.NewManager(streamCfg, settings, nil, logger)
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start stream manager", "error", err)
		os.Exit(1)
	}

	// Workspace registry
	registry := workspace.NewRegistry(workspace.Config{
		ReconcileInterval: cfg.Workspace.ReconcileInterval,
	}, st, logger)
	if err := registry.Start(ctx); err != nil {
		logger.Error("failed to start workspace registry", "error", err)
		manager.Shutdown()
		os.Exit(1)
	}

	// Provider client (optional)
	var pulls web.Pulls
	if cfg.Forge.Token != "" {
		pulls = forge.NewClient(
			cfg.Forge.BaseURL,
			cfg.Forge.Token,
			forge.WithLogger(logger),
			forge.WithTimeout(cfg.Forge.Timeout),
			forge.WithRetries(cfg.Forge.MaxRetries, time.Second),
		)
	} else {
		logger.Warn("no provider token configured, pull request endpoints disabled")
	}

	// Dashboard API
	server := web.NewServer(web.Config{
		Addr:            cfg.HTTP.Addr,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, manager, st, registry, pulls, logger)
	if err := server.Start(ctx); err != nil {
		logger.Error("failed to start http server", "error", err)
		registry.Stop(context.Background())
		manager.Shutdown()
		os.Exit(1)
	}

	// Tear down streams for sessions that end.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		changes := registry.SubscribeChanges()
		for {
			select {
			case <-gctx.Done():
				return nil
			case change := <-changes:
				if change.EventType == "ended" ||
					(change.EventType == "status_change" && change.NewStatus.Terminal()) {
					logger.Info("session ended, detaching stream",
						"session_id", change.SessionID,
						"status", change.NewStatus,
					)
					manager.Disconnect(change.SessionID, nil)
				}
			}
		}
	})

	logger.Info("foremand running")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := registry.Stop(shutdownCtx); err != nil {
		logger.Warn("workspace registry shutdown", "error", err)
	}
	g.Wait()
	manager.Shutdown()

	logger.Info("foremand stopped")
}
