// Expmemd is the experience-memory daemon.
//
// It loads configuration, selects one embedding backend against the vector
// store's existing collection, preloads stored experiences, and serves the
// memory API over HTTP until interrupted.
//
// Usage:
//
//	# Start with defaults (embedded chromem store, local embeddings)
//	expmemd serve
//
//	# Use Qdrant and OpenAI embeddings
//	EXPMEM_VECTORSTORE_PROVIDER=qdrant EXPMEM_EMBEDDINGS_BACKEND=openai \
//	EXPMEM_EMBEDDINGS_OPENAI_API_KEY=sk-... expmemd serve
//
//	# Ask a running daemon for its health
//	expmemd health --server http://127.0.0.1:9191
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/config"
	"github.com/fyrsmithlabs/expmem/internal/embeddings"
	httpapi "github.com/fyrsmithlabs/expmem/internal/http"
	"github.com/fyrsmithlabs/expmem/internal/learning"
	"github.com/fyrsmithlabs/expmem/internal/logging"
	"github.com/fyrsmithlabs/expmem/internal/memory"
	"github.com/fyrsmithlabs/expmem/internal/session"
	"github.com/fyrsmithlabs/expmem/internal/telemetry"
	"github.com/fyrsmithlabs/expmem/internal/vectorstore"
	"github.com/fyrsmithlabs/expmem/internal/wisdom"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "expmemd",
		Short:        "Experience memory daemon",
		SilenceUsage: true,
		Version:      version,
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the memory API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "config file (default ~/.config/expmem/config.yaml)")

	var serverURL string
	health := &cobra.Command{
		Use:   "health",
		Short: "Check a running daemon's health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), serverURL)
		},
	}
	health.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:9191", "expmemd server URL")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}

	root.AddCommand(serve, health, versionCmd)
	return root
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "expmemd by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}

// run wires every dependency and blocks until ctx is cancelled:
//  1. Loads and validates configuration
//  2. Initializes telemetry, then the logger bridged to it
//  3. Opens the vector store and selects the embedding backend
//  4. Opens the mailbox store
//  5. Builds the memory service and preloads stored experiences
//  6. Serves HTTP and shuts down gracefully
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	appLogger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()
	logger := appLogger.Underlying()

	appLogger.Info(ctx, "starting expmemd",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Backend),
		zap.Bool("telemetry", tel.Enabled()),
		zap.Bool("otel_logs", tel.LoggerProvider() != nil))

	svc, closeDeps, err := initService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDeps()

	srv, err := httpapi.NewServer(svc, logger, &httpapi.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	appLogger.Info(ctx, "server shutdown complete")
	return nil
}

// initService opens the collaborators and builds the memory service. The
// returned func releases them in reverse order.
func initService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*memory.Service, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := vectorstore.NewStore(ctx, cfg.VectorStore, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	closers = append(closers, func() { _ = store.Close() })

	registry := embeddings.NewRegistry(cfg.Embeddings, logger)
	closers = append(closers, func() { _ = registry.Close() })

	boot, err := memory.Bootstrap(ctx, cfg.VectorStore.Collection, store, registry, logger)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("failed to bootstrap memory: %w", err)
	}

	mailStore, err := openMailStore(cfg.Mailbox, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	svc, err := memory.NewService(memory.Options{
		Collection:        cfg.VectorStore.Collection,
		RecallTopK:        cfg.Memory.RecallTopK,
		SessionRecallTopK: cfg.Memory.SessionRecallTopK,
		ScrollBatch:       cfg.VectorStore.ScrollBatch,
	}, memory.Deps{
		Store:    store,
		Embedder: boot.Provider,
		Learner:  learning.NewLearner(cfg.Memory.HistoryCap, nil, logger),
		Wisdom:   wisdom.NewBase(cfg.Memory.WisdomCap),
		Sessions: session.NewManager(cfg.Session.InactivityWindow, logger),
		Identity: session.NewIdentityGuard(cfg.Identity.Label, cfg.Identity.CoreValues, cfg.Identity.MaxDrift, logger),
		Sentinel: session.NewSentinel(),
		Mailbox:  session.NewMailbox(mailStore, logger),
		Logger:   logger,
	})
	if err != nil {
		_ = mailStore.Close()
		closeAll()
		return nil, nil, fmt.Errorf("failed to create memory service: %w", err)
	}
	closers = append(closers, func() { _ = svc.Close() })

	svc.Preload(ctx)
	return svc, closeAll, nil
}

func openMailStore(cfg config.MailboxConfig, logger *zap.Logger) (session.MailStore, error) {
	switch cfg.Provider {
	case "badger":
		s, err := session.OpenBadgerMailStore(cfg.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open mailbox at %s: %w", cfg.Path, err)
		}
		return s, nil
	case "memory", "":
		return session.NewMemoryMailStore(), nil
	}
	return nil, fmt.Errorf("unknown mailbox provider %q", cfg.Provider)
}

func runHealth(ctx context.Context, w io.Writer, serverURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	var health httpapi.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	fmt.Fprintf(w, "Status:   %s\n", health.Status)
	fmt.Fprintf(w, "Memories: %d\n", health.MemoryCount)
	fmt.Fprintf(w, "Healthy:  %t\n", health.Sentinel.Healthy)
	return nil
}
