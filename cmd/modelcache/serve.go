package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	modelcache "github.com/codefuse-ai/modelcache"
	"github.com/codefuse-ai/modelcache/infrastructure/api"
	"github.com/codefuse-ai/modelcache/internal/config"
	"github.com/codefuse-ai/modelcache/internal/log"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cache HTTP server",
		Long: `Start the cache HTTP server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables (all prefixed MODELCACHE_):
  HOST                        Server host to bind to (default: 0.0.0.0)
  PORT                        Server port to listen on (default: 5000)
  DATA_DIR                    Data directory (default: ~/.modelcache)
  DB_URL                      Database URL (default: sqlite:///{data_dir}/modelcache.db)
  LOG_LEVEL                   Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                  Log format: pretty, json (default: pretty)
  MODEL_BLACKLIST             Comma-separated blocked model scopes
  OBJECT_STORE_DIR            Filesystem object store directory

  EMBEDDING_*                 Embedding backend configuration
    PROVIDER                  openai or hugot (default: hugot)
    MODEL                     Model identifier
    API_KEY                   API key for remote providers
    DIMENSION                 Embedding dimension (default: 768)
    WORKERS                   Dispatcher worker count (default: 2)
    MODEL_DIR                 Local ONNX model directory (hugot)
    PRE_PROCESS               Prompt serialisation mode

  SIMILARITY_*                Metric and thresholds
    METRIC                    COSINE or L2 (default: COSINE)
    THRESHOLD                 Short-prompt threshold (default: 0.9)
    THRESHOLD_LONG            Long-prompt threshold (default: 0.9)
    NORMALIZE                 L2-normalise vectors (default: false)
    TOP_K                     Vector search depth (default: 1)

  EVICTION_*                  Memory tier
    POLICY                    ARC or WTINYLFU (default: ARC)
    CAPACITY                  Per-model capacity (default: 10000)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 5000)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	cfg = applyServeOverrides(cfg, host, port)

	logger := log.Configure(cfg)
	slogger := logger.Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting modelcache", attrs...)

	client, err := modelcache.New(
		modelcache.WithConfig(cfg),
		modelcache.WithObjectStore(config.DefaultObjectStoreThreshold),
		modelcache.WithLogger(slogger),
	)
	if err != nil {
		return fmt.Errorf("create modelcache client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close modelcache client", slog.Any("error", err))
		}
	}()

	server := api.NewServer(cfg.Addr(), api.NewHandler(client.Cache, slogger), slogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(server.Start)
	group.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
