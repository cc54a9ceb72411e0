// termprobe attaches to one agent session stream and prints its frames.
// Usage: go run ./cmd/termprobe --config configs/foreman.local.yaml --session sess-1
//
// Lines typed on stdin are forwarded to the agent as data frames. Useful
// for poking at an agent host without running the full dashboard.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmaloney/foreman/internal/config"
	"github.com/dmaloney/foreman/internal/policy"
	"github.com/dmaloney/foreman/internal/stream"
)

func main() {
	configPath := flag.String("config", "configs/foreman.local.yaml", "path to config file")
	sessionID := flag.String("session", "", "session to attach to (required)")
	verbose := flag.Bool("verbose", false, "print control frames too")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *sessionID == "" {
		logger.Error("--session is required")
		os.Exit(1)
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	streamCfg := stream.DefaultConfig()
	streamCfg.BaseURL = cfg.Streams.AgentBaseURL

	// Probe sessions are throwaway; never keep them warm.
	manager := stream.NewManager(streamCfg, policy.Static{KeepWarm: false}, nil, logger)
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start stream manager", "error", err)
		os.Exit(1)
	}
	defer manager.Shutdown()

	sub, err := manager.Connect(ctx, *sessionID, func(f stream.Frame) {
		switch f.Type {
		case stream.FrameData:
			fmt.Print(f.Data)
		default:
			if *verbose {
				fmt.Fprintf(os.Stderr, "[%s frame]\n", f.Type)
			}
		}
	})
	if err != nil {
		logger.Error("failed to connect", "session_id", *sessionID, "error", err)
		os.Exit(1)
	}
	defer manager.Disconnect(*sessionID, sub)

	logger.Info("attached", "session_id", *sessionID, "url", stream.SessionURL(streamCfg.BaseURL, *sessionID))

	// Forward stdin lines as input.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text() + "\n"
			if !manager.Send(*sessionID, stream.Frame{Type: stream.FrameData, Data: line}) {
				logger.Warn("send failed, session not open")
			}
		}
		cancel()
	}()

	<-ctx.Done()
	logger.Info("detaching")
}
