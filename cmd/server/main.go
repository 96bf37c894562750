// Package main is the entry point for the ricebook server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (defaults, .env, environment, flags)
// 2. Create dependencies (logger, store, session store, uploader, ...)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/service, etc.).
//
// COMMANDS:
//
//	ricebook          run the HTTP server
//	ricebook seed     fill an empty store from the placeholder feed and exit
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/ricebook/internal/config"
	"github.com/sakif/ricebook/internal/placeholder"
	"github.com/sakif/ricebook/internal/server"
	"github.com/sakif/ricebook/internal/service"
)

// seedTimeout bounds a whole seeding run, all three feeds included.
const seedTimeout = 2 * time.Minute

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree. Configuration is loaded once in
// PersistentPreRunE so both commands see the same values.
func newRootCommand() *cobra.Command {
	v := config.New()
	var (
		envFile string
		cfg     *config.Config
		logger  *slog.Logger
	)

	root := &cobra.Command{
		Use:           "ricebook",
		Short:         "Ricebook social network API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}
			var err error
			if cfg, err = config.Load(v); err != nil {
				slog.Error("invalid configuration", slog.String("error", err.Error()))
				return err
			}
			logger = newLogger(cfg.LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, logger, runServer)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional file of KEY=value settings")
	if err := config.BindFlags(root, v); err != nil {
		// Only a programming error (a misspelled flag name) gets here.
		panic(err)
	}

	root.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Seed an empty store from the placeholder feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, logger, runSeed)
		},
	})

	return root
}

// run logs the error a command returns, since cobra is told not to print it.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, fn func(context.Context, *config.Config, *slog.Logger) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := fn(ctx, cfg, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// A failed seed is not fatal: the API works on an empty store.
	if cfg.SeedOnStart {
		if err := seed(ctx, cfg, deps, logger); err != nil {
			logger.Warn("seeding failed, starting anyway", slog.String("error", err.Error()))
		}
	}

	srv, err := server.New(server.Config{
		Port:                   cfg.Port,
		AllowedOrigins:         cfg.AllowedOrigins,
		Cookies:                cookieConfig(cfg),
		StrictArticleOwnership: cfg.StrictArticleOwnership,
		OAuthSuccessURL:        cfg.OAuthSuccessURL,
		OAuthFailureURL:        cfg.OAuthFailureURL,
	}, deps, logger)
	if err != nil {
		closeDeps(deps, logger)
		return err
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	return srv.Start()
}

func runSeed(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	hasher, err := newHasher(cfg)
	if err != nil {
		return err
	}
	return seed(ctx, cfg, server.Deps{Store: store, Hasher: hasher}, logger)
}

func seed(ctx context.Context, cfg *config.Config, deps server.Deps, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, seedTimeout)
	defer cancel()

	feed := placeholder.NewClient(cfg.PlaceholderURL, 30*time.Second)
	seeder := service.NewSeeder(feed, deps.Store, deps.Store, deps.Hasher, logger)

	_, err := seeder.Seed(ctx)
	return err
}
