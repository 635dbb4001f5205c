package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flitsinc/go-a2a/internal/agentcard"
	"github.com/flitsinc/go-a2a/internal/api"
	"github.com/flitsinc/go-a2a/internal/config"
	"github.com/flitsinc/go-a2a/internal/messages"
	"github.com/flitsinc/go-a2a/internal/ollama"
	"github.com/flitsinc/go-a2a/internal/processor"
	"github.com/flitsinc/go-a2a/internal/tasks"
	"github.com/flitsinc/go-a2a/internal/toolbridge"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	card, mcpServers := loadManifest(cfg, logger)

	taskStore := tasks.NewStore()
	messageStore := messages.NewStore()
	backend := ollama.NewClient(ollama.Config{BaseURL: cfg.OllamaHost})

	var bridge toolbridge.Bridge
	if len(mcpServers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		mcpBridge, err := toolbridge.ConnectMCP(ctx, mcpServers)
		cancel()
		if err != nil {
			log.Fatalf("connect MCP servers: %v", err)
		}
		defer mcpBridge.Close()
		bridge = mcpBridge
	}

	proc := processor.New(processor.Config{
		Tasks:          taskStore,
		Messages:       messageStore,
		Backend:        backend,
		Bridge:         bridge,
		Card:           card,
		Model:          cfg.Model,
		FallbackModels: cfg.FallbackModels,
		RetryDelay:     cfg.RetryDelay,
		Logger:         logger,
	})

	apiServer := &api.Server{
		Card:      card,
		Tasks:     taskStore,
		Messages:  messageStore,
		Processor: proc,
		Logger:    logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(apiServer.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("a2ad listening", "addr", cfg.HTTPAddr, "model", cfg.Model, "agent", card.Name)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	_ = httpServer.Close()
}

// loadManifest reads the agent manifest when present. A missing manifest is
// not fatal; the agent falls back to a generic card with no tools.
func loadManifest(cfg config.Config, logger *slog.Logger) (agentcard.Card, []toolbridge.ServerCommand) {
	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("no agent manifest, using defaults", "path", cfg.ManifestPath)
			card := agentcard.New(
				"Ollama A2A Agent",
				"An A2A-compatible agent powered by Ollama",
				"http://localhost"+cfg.HTTPAddr,
				nil,
				"",
			)
			return card, nil
		}
		log.Fatalf("load agent manifest: %v", err)
	}
	return manifest.Card, manifest.MCPServers
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
