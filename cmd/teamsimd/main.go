// Command teamsimd runs the simulation orchestration daemon: the HTTP API,
// the background execution workers and the retention sweeper.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/hupe1980/teamsim/config"
	"github.com/hupe1980/teamsim/director"
	"github.com/hupe1980/teamsim/logging"
	"github.com/hupe1980/teamsim/model"
	"github.com/hupe1980/teamsim/model/anthropic"
	"github.com/hupe1980/teamsim/model/openai"
	"github.com/hupe1980/teamsim/notify"
	"github.com/hupe1980/teamsim/remote"
	"github.com/hupe1980/teamsim/server"
	"github.com/hupe1980/teamsim/simulation"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "teamsimd",
		Short:        "Simulation orchestration daemon",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})

	store, cleanup, err := openStore(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}

	platform := remote.NewHTTPPlatform(cfg.Remote.BaseURL, func(o *remote.HTTPPlatformOptions) {
		o.APIKey = cfg.Remote.APIKey
	})
	client := remote.NewClient(platform, func(o *remote.Options) {
		o.SessionRetries = cfg.Remote.SessionRetries
		o.RetryDelay = cfg.Remote.RetryDelay.Std()
		o.PacingDelay = cfg.Remote.PacingDelay.Std()
		o.Logger = logger
	})

	engine := director.New(m, func(o *director.Options) {
		o.Logger = logger
	})

	hub := notify.NewHub(func(o *notify.Options) {
		o.Logger = logger
	})

	svc := simulation.NewService(store, simulation.NewStaticDirectory(nil), engine, client, func(o *simulation.Options) {
		o.RunTimeout = cfg.Run.Timeout.Std()
		o.MaxConcurrentRuns = cfg.Run.MaxConcurrent
		o.Notifier = hub
		o.Logger = logger
	})
	defer svc.Shutdown()

	sweeper, err := simulation.NewSweeper(store, func(o *simulation.SweeperOptions) {
		o.Schedule = cfg.Retention.Schedule
		o.Retention = cfg.Retention.MaxAge.Std()
		o.Logger = logger
	})
	if err != nil {
		return fmt.Errorf("retention sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler := server.New(svc, hub, server.NewJWTVerifier([]byte(cfg.Server.JWTSecret)), func(o *server.Options) {
		o.KeepaliveInterval = cfg.Server.KeepaliveInterval.Std()
		o.Logger = logger
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openStore(cfg config.StoreConfig, logger logging.Logger) (simulation.Store, func(), error) {
	if cfg.Path == "" {
		logger.Warn("no store path configured, using volatile in-memory store")
		return simulation.NewMemoryStore(), func() {}, nil
	}

	store, err := simulation.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("sqlite store opened", "path", cfg.Path)
	return store, func() { store.Close() }, nil
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.APIKey = cfg.APIKey
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func logLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}
