package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/leafsii/relkv/internal/config"
	"github.com/leafsii/relkv/internal/log"
	"github.com/leafsii/relkv/internal/metrics"
	"github.com/leafsii/relkv/pkg/kv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	// Import backends to register them
	_ "github.com/leafsii/relkv/pkg/kv/memory"
	_ "github.com/leafsii/relkv/pkg/kv/postgres"
	_ "github.com/leafsii/relkv/pkg/kv/redis"
)

var (
	store   kv.Store
	logger  *zap.SugaredLogger
	metricz *http.Server

	backendFlag string

	rootCmd = &cobra.Command{
		Use:   "kvctl",
		Short: "Operate a relkv key-value store",
		Long: `kvctl issues Redis-style commands against the configured key-value backend.

Configuration is read from KV_* environment variables and .env files;
--backend overrides KV_BACKEND.`,
		SilenceUsage:       true,
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "backend to use (postgres, redis, memory)")

	rootCmd.AddCommand(getCmd, setCmd, incrCmd, delCmd, existsCmd, typeCmd, renameCmd, expireCmd, ttlCmd, persistCmd, flushCmd, benchCmd)
}

func openStore(cmd *cobra.Command, _ []string) error {
	if backendFlag != "" {
		os.Setenv("KV_BACKEND", backendFlag)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err = log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	var recorder kv.Recorder
	if cfg.MetricsAddr != "" {
		m, handler, err := metrics.Setup("kvctl")
		if err != nil {
			return fmt.Errorf("failed to set up metrics: %w", err)
		}
		recorder = m
		metricz = metrics.NewServer(cfg.MetricsAddr, handler, func(ctx context.Context) error {
			if store == nil {
				return kv.ErrBackendUnavailable
			}
			return store.Ping(ctx)
		})
		go func() {
			logger.Infow("Serving metrics", "addr", cfg.MetricsAddr)
			if err := metricz.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("Metrics server failed", "error", err)
			}
		}()
	}

	store, err = kv.NewStoreFromConfig(cmd.Context(), cfg.Store(logger, recorder))
	return err
}

func closeStore(_ *cobra.Command, _ []string) error {
	if metricz != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricz.Shutdown(ctx)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			return err
		}
	}
	if logger != nil {
		_ = logger.Sync()
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
