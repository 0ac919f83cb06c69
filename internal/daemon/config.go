// Package daemon wires configuration, storage, services, and transports into the
// creditd process.
package daemon

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/internal/notify"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
)

const (
	StoreDriverGORM = "gorm"
	StoreDriverPGX  = "pgx"

	defaultDatabaseURL       = "sqlite:///tmp/franchise-credits.db"
	defaultGRPCListenAddr    = ":7000"
	defaultHTTPListenAddr    = ":8080"
	defaultSessionIssuer     = "tauth"
	defaultSessionCookie     = "app_session"
	defaultAllowedOrigin     = "http://localhost:8000"
	defaultProfileUnlockCost = 50
	defaultDispatcherWorkers = 4
	defaultDispatcherQueue   = 256
	shutdownTimeout          = 5 * time.Second
	redisPingTimeout         = 2 * time.Second
)

// Config aggregates runtime settings for creditd.
type Config struct {
	DatabaseURL       string
	StoreDriver       string
	GRPCListenAddr    string
	HTTPListenAddr    string
	RedisAddr         string
	RedisChannel      string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	AllowedOrigins    []string
	ProfileUnlockCost int64
	GracePeriod       time.Duration
	SweepInterval     time.Duration
	ConflictRetries   int
	DispatcherWorkers int
	DispatcherQueue   int
}

// Validate fills defaults and rejects values no command can run with.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGORM))
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.HTTPListenAddr = defaultIfEmpty(cfg.HTTPListenAddr, defaultHTTPListenAddr)
	cfg.RedisChannel = defaultIfEmpty(cfg.RedisChannel, notify.DefaultChannel)
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.ProfileUnlockCost == 0 {
		cfg.ProfileUnlockCost = defaultProfileUnlockCost
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = lifecycle.DefaultGracePeriod
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = ledger.DefaultConflictAttempts
	}
	if cfg.DispatcherWorkers == 0 {
		cfg.DispatcherWorkers = defaultDispatcherWorkers
	}
	if cfg.DispatcherQueue == 0 {
		cfg.DispatcherQueue = defaultDispatcherQueue
	}

	switch cfg.StoreDriver {
	case StoreDriverGORM:
	case StoreDriverPGX:
		if !isPostgresURL(cfg.DatabaseURL) {
			return fmt.Errorf("store driver %q requires a postgres database url", StoreDriverPGX)
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if cfg.ProfileUnlockCost < 0 {
		return fmt.Errorf("profile unlock cost must be positive")
	}
	if cfg.GracePeriod < 0 {
		return fmt.Errorf("grace period must be positive")
	}
	if cfg.SweepInterval < 0 {
		return fmt.Errorf("sweep interval must not be negative")
	}
	if cfg.ConflictRetries < 0 {
		return fmt.Errorf("conflict retries must be positive")
	}
	if cfg.DispatcherWorkers < 0 || cfg.DispatcherQueue < 0 {
		return fmt.Errorf("dispatcher workers and queue must be positive")
	}
	return nil
}

// ValidateServe additionally checks the settings only the network servers need.
func (cfg *Config) ValidateServe() error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
