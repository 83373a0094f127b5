package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	// DefaultQueryTimeout bounds individual queries so runaway SQL cannot
	// hold pool connections indefinitely.
	DefaultQueryTimeout = 30 * time.Second

	// MigrationTimeout is used for schema migrations, which may rewrite
	// large tables.
	MigrationTimeout = 5 * time.Minute

	defaultStatementTimeoutMS = 30000

	// DefaultMigrationsDir is where the schema files ship relative to the
	// working directory.
	DefaultMigrationsDir = "storage/migrations"
)

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// DB wraps the shared connection pool.
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// Config holds connection settings for the state store.
type Config struct {
	// URL is the postgres DSN. The service key, when separate from the
	// DSN, is injected as the connection password.
	URL string

	// ServiceKey overrides the DSN password when non-empty.
	ServiceKey string

	// Schema is the logical namespace; it is pinned via search_path so
	// one binary can serve testnet or mainnet isolation.
	Schema string

	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	StatementTimeoutMS int

	Logger *zap.Logger
}

// New opens the connection pool and verifies connectivity.
func New(cfg Config) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("store URL cannot be empty")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	connURL, err := buildConnURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("build store connection URL: %w", err)
	}

	db, err := sql.Open("postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &DB{DB: db, logger: logger}, nil
}

// buildConnURL injects the service key, schema search_path and statement
// timeout into the DSN so they apply to every pooled connection.
func buildConnURL(cfg Config) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", err
	}

	if cfg.ServiceKey != "" {
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, cfg.ServiceKey)
	}

	timeoutMS := cfg.StatementTimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = defaultStatementTimeoutMS
	}

	options := "-c statement_timeout=" + strconv.Itoa(timeoutMS)
	if cfg.Schema != "" {
		options += " -c search_path=" + cfg.Schema
	}

	q := u.Query()
	q.Set("options", options)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// RunMigrations executes *.up.sql files from dir in sorted order, tracking
// applied versions in a schema_migrations table so each runs at most once.
func (db *DB) RunMigrations(dir string) error {
	if _, err := db.ExecContext(context.Background(), `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		version := filepath.Base(f)

		var exists bool
		if err := db.QueryRowContext(context.Background(),
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		db.logger.Info("applying migration", zap.String("version", version))
		start := time.Now()

		ctx, cancel := withTimeout(context.Background(), MigrationTimeout)

		// Keep migrations from waiting forever behind other sessions.
		if _, err := db.ExecContext(ctx, "SET lock_timeout = '10s'"); err != nil {
			cancel()
			return fmt.Errorf("set lock_timeout for migration %s: %w", version, err)
		}

		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			cancel()
			return fmt.Errorf("exec migration %s: %w", version, err)
		}
		cancel()

		if _, err := db.ExecContext(context.Background(),
			"INSERT INTO schema_migrations (version) VALUES ($1)", version,
		); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}

		db.logger.Info("migration applied",
			zap.String("version", version),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}
