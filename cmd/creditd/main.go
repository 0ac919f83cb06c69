package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/franchise-credits/internal/daemon"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "CREDITD"

	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagHTTPListenAddr    = "http-listen-addr"
	flagRedisAddr         = "redis-addr"
	flagRedisChannel      = "redis-channel"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagJWTCookieName     = "jwt-cookie-name"
	flagAllowedOrigins    = "allowed-origins"
	flagProfileUnlockCost = "profile-unlock-cost"
	flagGracePeriod       = "grace-period"
	flagSweepInterval     = "sweep-interval"
	flagConflictRetries   = "conflict-retries"
	flagDispatcherWorkers = "dispatcher-workers"
	flagDispatcherQueue   = "dispatcher-queue"
)

var errReconcileMismatch = errors.New("balance mismatches found")

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	settings := viper.New()
	cfg := &daemon.Config{}
	cmd := &cobra.Command{
		Use:           "creditd",
		Short:         "Franchise marketplace credit ledger and account lifecycle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(settings, cmd.Flags(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "", "PostgreSQL or SQLite connection string")
	flags.String(flagStoreDriver, daemon.StoreDriverGORM, "store implementation: gorm or pgx")
	flags.String(flagGRPCListenAddr, "", "gRPC listen address")
	flags.String(flagHTTPListenAddr, "", "HTTP listen address")
	flags.String(flagRedisAddr, "", "Redis address for events and session invalidation (empty logs events instead)")
	flags.String(flagRedisChannel, "", "Redis channel for notification events")
	flags.String(flagJWTSigningKey, "", "HS256 signing key of session cookies")
	flags.String(flagJWTIssuer, "", "expected session issuer")
	flags.String(flagJWTCookieName, "", "session cookie name")
	flags.String(flagAllowedOrigins, "", "comma-separated CORS origins")
	flags.Int64(flagProfileUnlockCost, 0, "credits charged by the HTTP unlock route")
	flags.Duration(flagGracePeriod, 0, "delay between a deactivation request and the deactivation")
	flags.Duration(flagSweepInterval, 0, "in-process deactivation sweep interval (0 disables)")
	flags.Int(flagConflictRetries, 0, "attempts for operations that hit a storage conflict")
	flags.Int(flagDispatcherWorkers, 0, "notification dispatcher workers")
	flags.Int(flagDispatcherQueue, 0, "notification dispatcher queue size")

	cmd.AddCommand(
		newServeCommand(cfg),
		newSweepCommand(cfg),
		newReconcileCommand(cfg),
		newMigrateCommand(cfg),
	)
	return cmd
}

func newServeCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withLogger(func(logger *zap.Logger) error {
				return daemon.Serve(ctx, *cfg, logger)
			})
		},
	}
}

func newSweepCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate accounts whose grace period has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(logger *zap.Logger) error {
				result, err := daemon.Sweep(cmd.Context(), *cfg, logger)
				if err != nil {
					return err
				}
				for _, userID := range result.Deactivated {
					fmt.Fprintln(cmd.OutOrStdout(), userID.String())
				}
				return nil
			})
		},
	}
}

func newReconcileCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached balances with the transaction log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(logger *zap.Logger) error {
				mismatches, err := daemon.Reconcile(cmd.Context(), *cfg, logger)
				if err != nil {
					return err
				}
				return printMismatches(cmd.OutOrStdout(), mismatches)
			})
		},
	}
}

func newMigrateCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(func(logger *zap.Logger) error {
				return daemon.Migrate(cmd.Context(), *cfg, logger)
			})
		},
	}
}

func loadConfig(settings *viper.Viper, flags *pflag.FlagSet, cfg *daemon.Config) error {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	if err := settings.BindPFlags(flags); err != nil {
		return err
	}

	*cfg = daemon.Config{
		DatabaseURL:       settings.GetString(flagDatabaseURL),
		StoreDriver:       settings.GetString(flagStoreDriver),
		GRPCListenAddr:    settings.GetString(flagGRPCListenAddr),
		HTTPListenAddr:    settings.GetString(flagHTTPListenAddr),
		RedisAddr:         settings.GetString(flagRedisAddr),
		RedisChannel:      settings.GetString(flagRedisChannel),
		SessionSigningKey: settings.GetString(flagJWTSigningKey),
		SessionIssuer:     settings.GetString(flagJWTIssuer),
		SessionCookieName: settings.GetString(flagJWTCookieName),
		AllowedOrigins:    daemon.ParseAllowedOrigins(settings.GetString(flagAllowedOrigins)),
		ProfileUnlockCost: settings.GetInt64(flagProfileUnlockCost),
		GracePeriod:       settings.GetDuration(flagGracePeriod),
		SweepInterval:     settings.GetDuration(flagSweepInterval),
		ConflictRetries:   settings.GetInt(flagConflictRetries),
		DispatcherWorkers: settings.GetInt(flagDispatcherWorkers),
		DispatcherQueue:   settings.GetInt(flagDispatcherQueue),
	}
	return cfg.Validate()
}

func withLogger(run func(logger *zap.Logger) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	return run(logger)
}

func printMismatches(out io.Writer, mismatches []ledger.Reconciliation) error {
	for _, mismatch := range mismatches {
		fmt.Fprintf(out, "%s cached=%d derived=%d\n", mismatch.UserID.String(), mismatch.Cached.Int64(), mismatch.Derived.Int64())
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %d accounts", errReconcileMismatch, len(mismatches))
	}
	return nil
}
