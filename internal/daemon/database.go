package daemon

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/franchise-credits/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/franchise-credits/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// stores bundles both persistence contracts over one connection pool.
type stores struct {
	ledger    ledger.Store
	lifecycle lifecycle.Store
	close     func()
}

// openStores connects the configured driver. SQLite schemas are always migrated; other
// databases only when migrate is set.
func openStores(ctx context.Context, cfg Config, migrate bool) (stores, error) {
	if cfg.StoreDriver == StoreDriverPGX {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, fmt.Errorf("pgx pool: %w", err)
		}
		if migrate {
			if err := pgstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return stores{}, err
			}
		}
		return stores{
			ledger:    pgstore.New(pool),
			lifecycle: pgstore.NewLifecycle(pool),
			close:     pool.Close,
		}, nil
	}

	db, cleanup, dialect, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("database open: %w", err)
	}
	if migrate || dialect == dialectSQLite {
		if err := gormstore.Migrate(db); err != nil {
			_ = cleanup()
			return stores{}, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return stores{
		ledger:    gormstore.New(db),
		lifecycle: gormstore.NewLifecycle(db),
		close:     func() { _ = cleanup() },
	}, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	dialect, sqlitePath, err := resolveDialect(dsn)
	if err != nil {
		return nil, nil, "", err
	}
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var db *gorm.DB
	switch dialect {
	case dialectPostgres:
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case dialectSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", dialect)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if dialect == dialectSQLite {
		// SQLite has a single writer; one pooled connection queues requests instead of failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, dialect, nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func resolveDialect(dsn string) (string, string, error) {
	if isPostgresURL(dsn) {
		return dialectPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = "franchise-credits.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return dialectSQLite, sqlitePath, err
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return dialectSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(".", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, nil
}
