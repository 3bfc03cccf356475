package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/promptfabric/internal/api"
	"github.com/kalambet/promptfabric/internal/config"
	"github.com/kalambet/promptfabric/internal/ingest"
	"github.com/kalambet/promptfabric/internal/orchestrator"
	"github.com/kalambet/promptfabric/internal/postprocess"
	"github.com/kalambet/promptfabric/internal/provider"
	"github.com/kalambet/promptfabric/internal/refiner"
	"github.com/kalambet/promptfabric/internal/retrieval"
	"github.com/kalambet/promptfabric/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the promptfabric server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running promptfabric server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show promptfabric system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "promptfabric.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "promptfabric version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("promptfabric is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("promptfabric is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build both provider gateways; one serves completions, both get probed
	// by the status endpoint.
	providers, active, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	if !active.HealthCheck(ctx) {
		printWarning("%s backend is not reachable; requests will fail until it comes up", active.Name())
	}

	embedClient, ok := active.(provider.Embedder)
	if !ok {
		return fmt.Errorf("provider %s does not support embeddings", active.Name())
	}

	// Retrieval over the shared SQLite file.
	embedder := retrieval.NewEmbedder(embedClient, cfg.Models.Embed)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore)

	// Pipeline stages.
	ref := refiner.New(active, cfg.Prompt.MaxChars)
	post, err := postprocess.New(0, nil)
	if err != nil {
		return fmt.Errorf("building post-processor: %w", err)
	}
	orch := orchestrator.New(store, retriever, ref, active, post, orchestrator.Params{
		TopK:        cfg.Retrieval.TopK,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	})

	// Document ingestion: synchronous submit, asynchronous embedding.
	ingestSvc := ingest.NewService(store, nil)
	worker := ingest.NewWorker(store, embedder, vectorStore, 500*time.Millisecond)
	go worker.Run(ctx)

	providerMap := make(map[provider.Kind]provider.Provider, len(providers))
	for _, p := range providers {
		providerMap[provider.Kind(p.Name())] = p
	}

	deps := api.Deps{
		Pipeline:       orch,
		Refiner:        ref,
		Searcher:       retriever,
		Ingestor:       ingestSvc,
		Vectors:        vectorStore,
		Store:          store,
		Providers:      providerMap,
		Active:         provider.Kind(active.Name()),
		GeneratorModel: cfg.Models.Generator,
	}
	handler := api.NewHandler(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, sharing the same pipeline.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Pipeline: orch,
		Refiner:  ref,
		Searcher: retriever,
		Ingestor: ingestSvc,
		Store:    store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "promptfabric listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildProviders constructs a gateway per configured backend and returns the
// active one per cfg.Provider.Kind.
func buildProviders(cfg config.Config) ([]provider.Provider, provider.Provider, error) {
	models := provider.Models{
		Refiner:   cfg.Models.Refiner,
		Generator: cfg.Models.Generator,
		Validator: cfg.Models.Validator,
	}
	timeout := time.Duration(cfg.Provider.TimeoutSeconds) * time.Second

	ollama, err := provider.New(provider.Config{
		Kind:       provider.KindOllama,
		BaseURL:    cfg.Provider.OllamaBaseURL,
		Models:     models,
		Timeout:    timeout,
		MaxRetries: cfg.Provider.MaxRetries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building ollama provider: %w", err)
	}

	lmstudio, err := provider.New(provider.Config{
		Kind:       provider.KindLMStudio,
		BaseURL:    cfg.Provider.LMStudioBaseURL,
		Models:     models,
		Timeout:    timeout,
		MaxRetries: cfg.Provider.MaxRetries,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("building lm_studio provider: %w", err)
	}

	providers := []provider.Provider{ollama, lmstudio}
	switch provider.Kind(cfg.Provider.Kind) {
	case provider.KindOllama:
		return providers, ollama, nil
	case provider.KindLMStudio:
		return providers, lmstudio, nil
	}
	return nil, nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("promptfabric is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop promptfabric (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to promptfabric (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Probe both inference backends directly.
	for name, baseURL := range map[string]string{
		"Ollama":    cfg.Provider.OllamaBaseURL + "/api/tags",
		"LM Studio": cfg.Provider.LMStudioBaseURL + "/v1/models",
	} {
		backendResp, err := client.Get(baseURL)
		if err != nil {
			printStatus(name, "not running")
			continue
		}
		backendResp.Body.Close()
		printStatus(name, "running")
	}

	printStatus("Active provider", "%s", cfg.Provider.Kind)
	printStatus("Generator model", "%s", cfg.Models.Generator)
	printStatus("Refiner model", "%s", cfg.Models.Refiner)
	printStatus("Embed model", "%s", cfg.Models.Embed)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
