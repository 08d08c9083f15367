// Package main provides the semantic cache's command-line entry point: a
// serve subcommand running the HTTP/WebSocket transport, plus ops-facing
// migrate and healthcheck subcommands that share the same config loading.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/thebtf/semcache/docs"
	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/engine"
	"github.com/thebtf/semcache/internal/httpserver"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath string
	debug      bool
)

func main() {
	root := &cobra.Command{
		Use:     "semcache",
		Short:   "Semantic response cache for LLM interactions",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(serveCmd(), migrateCmd(), healthcheckCmd())

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket cache server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var watcher *config.Watcher
			if configPath != "" {
				watcher, err = config.NewWatcher(configPath, cfg)
				if err != nil {
					log.Warn().Err(err).Msg("config hot-reload disabled")
				} else {
					defer watcher.Close()
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info().Msg("shutting down")
				cancel()
			}()

			eng, err := engine.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			defer eng.Close()

			addr := fmt.Sprintf(":%d", cfg.ListenPort)
			srv := httpserver.New(eng, addr)

			log.Info().Str("version", Version).Str("addr", addr).Msg("semcache: starting")
			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending scalar-store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			eng, err := engine.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			defer eng.Close()
			log.Info().Msg("semcache: migrations applied")
			return nil
		},
	}
}

func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check scalar-store health and exit non-zero unless it reports healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			eng, err := engine.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			defer eng.Close()

			info := eng.Store.HealthCheck(cmd.Context())
			if info.Status != "healthy" {
				return fmt.Errorf("store unhealthy: %s", info.Status)
			}
			log.Info().Msg("semcache: store healthy")
			return nil
		},
	}
}
