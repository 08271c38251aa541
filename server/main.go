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

	"github.com/go-fuego/fuego"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/wantamink/pledgeservice/internal/config"
	"github.com/wantamink/pledgeservice/internal/ratelimit"
	"github.com/wantamink/pledgeservice/internal/store"
	"github.com/wantamink/pledgeservice/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "pledgeservice",
		Short:         "MPESA pledge verification and weekly meme contest",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load if present")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recountVotesCmd())
	rootCmd.AddCommand(reconcileVerifiedCmd())
	rootCmd.AddCommand(pruneRateLimitsCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and opens the database for a command.
func setup() (*app, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a, err := openApp(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	if err := store.Migrate(a.db); err != nil {
		return err
	}
	r, err := a.routes()
	if err != nil {
		return err
	}

	s := fuego.NewServer(
		fuego.WithAddr(a.cfg.HTTPAddr),
		fuego.WithCorsMiddleware(cors(a.cfg.CORSAllowedOrigins, a.cfg.CORSMaxAge)),
		// extra fields from newer frontends are ignored
		fuego.WithDisallowUnknownFields(false),
	)
	if a.cfg.TrustProxyHeaders {
		fuego.Use(s, proxyHeaders)
	}
	fuego.Use(s, accessLog(a.logger))
	r.RegisterRoutes(s)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := s.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Server.Shutdown(shutdownCtx)
	})
	if a.redis == nil && a.cfg.RateLimitPruneInterval > 0 {
		pruner := ratelimit.NewPruner(a.store, a.cfg.RateLimitPruneInterval, a.logger)
		eg.Go(func() error {
			return pruner.Run(ctx)
		})
	}
	return eg.Wait()
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := store.Migrate(a.db); err != nil {
				return err
			}
			a.logger.Info("schema migrated")
			return nil
		},
	}
}

func recountVotesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recount-votes",
		Short: "Recompute meme vote counters from the vote ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.store.RecountVotes(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("vote counters recomputed", zap.Int64("memes", n))
			return nil
		},
	}
}

func reconcileVerifiedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-verified",
		Short: "Create missing verified user markers for recorded pledges",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.store.ReconcileVerifiedUsers(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("verified users reconciled", zap.Int("repaired", n))
			return nil
		},
	}
}

func pruneRateLimitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-ratelimits",
		Short: "Delete rate limit records older than the window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := ratelimit.NewPruner(a.store, time.Minute, a.logger).PruneOnce(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("rate limit records pruned", zap.Int64("deleted", n))
			return nil
		},
	}
}
