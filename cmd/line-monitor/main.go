package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	logpkg "line-monitor/common/logger"
	"line-monitor/internal/config"
	"line-monitor/internal/domain"
	"line-monitor/internal/service"
)

const (
	serviceName     = "line-monitor"
	shutdownTimeout = 15 * time.Second

	FlagConfig   = "config"
	FlagServer   = "server"
	FlagTimeout  = "timeout"
	FlagLogLevel = "log-level"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Production line stoppage monitor",
		Long:          "Tracks production line stoppages and keeps shift goal indicators up to date.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().String(FlagConfig, "", "Config file path (YAML)")
	rootCmd.PersistentFlags().String(FlagServer, "http://localhost:8080", "Base URL of a running line-monitor")
	rootCmd.PersistentFlags().Duration(FlagTimeout, 30*time.Second, "Client request timeout")
	rootCmd.PersistentFlags().String(FlagLogLevel, "", "Log level override (debug, info, warn, error)")

	keys := map[string]string{
		FlagConfig:   "config",
		FlagServer:   "server",
		FlagTimeout:  "timeout",
		FlagLogLevel: "log.level",
	}
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(keys[f.Name], f)
	})

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newMigrateCmd(v))
	addClientCommands(rootCmd, v)
	return rootCmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := service.NewMonitorService(ctx, cfg, log)
			if err != nil {
				if errors.Is(err, domain.ErrConfiguration) {
					log.Error("Invalid configuration", zap.Error(err))
				} else {
					log.Error("Failed to create monitor service", zap.Error(err))
				}
				return err
			}

			errChan := make(chan error, 1)
			go func() { errChan <- svc.Start(ctx) }()

			var runErr error
			select {
			case <-ctx.Done():
				log.Info("Received signal, shutting down")
			case runErr = <-errChan:
				if runErr != nil {
					log.Error("Service error", zap.Error(runErr))
				}
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := svc.Stop(stopCtx); err != nil {
				log.Error("Error stopping service", zap.Error(err))
			}

			log.Info("Service stopped")
			return runErr
		},
	}
}

func newMigrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the stoppage table if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if !cfg.Database.Enabled {
				return fmt.Errorf("%w: database is disabled", domain.ErrConfiguration)
			}

			_, closer, err := service.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closer.Close()

			log.Info("Schema is up to date", zap.String("database", cfg.Database.Database))
			return nil
		},
	}
}

// loadConfig resolves and validates configuration, then builds the logger
func loadConfig(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logpkg.NewLogger(cfg.Log, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
