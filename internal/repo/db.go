// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema migrations.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-giftchain-backend/internal/domain"
)

// DBOptions tunes the SQLite handle. Zero values take the defaults below.
type DBOptions struct {
	// BusyTimeout is how long a writer waits on a locked database (5s).
	BusyTimeout time.Duration
	// MaxOpenConns caps the pool (10). Claims and continuations are short
	// write transactions; WAL lets readers proceed meanwhile.
	MaxOpenConns int
	// SlowQuery logs statements slower than this to Log at warn level; 0
	// disables the GORM logger.
	SlowQuery time.Duration
	Log       zerolog.Logger
}

// gormLogWriter routes GORM's printf-style logger into zerolog.
type gormLogWriter struct{ log zerolog.Logger }

func (w gormLogWriter) Printf(format string, args ...any) {
	w.log.Warn().Str("component", "gorm").Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (o DBOptions) withDefaults() DBOptions {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	return o
}

// OpenSQLite opens (or creates) the gift database at path, applies PRAGMAs,
// sizes the pool and installs the OpenTelemetry tracing plugin. In-memory
// DSNs ("file:...", ":memory:") skip the directory check.
func OpenSQLite(path string, opts DBOptions) (*gorm.DB, error) {
	opts = opts.withDefaults()

	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if !isMemoryDSN(path) {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	gcfg := &gorm.Config{Logger: logger.Discard}
	if opts.SlowQuery > 0 {
		gcfg.Logger = logger.New(
			gormLogWriter{log: opts.Log},
			logger.Config{SlowThreshold: opts.SlowQuery, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true},
		)
	}
	db, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", opts.BusyTimeout.Milliseconds()),
	}
	if !isMemoryDSN(path) {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s %w", strings.TrimSuffix(p, ";"), err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// AutoMigrate creates or updates the gift-chain schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.GiftUnit{},
		&domain.Idempotency{},
	)
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isMemoryDSN(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory")
}
