package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"noteflow/internal/platform/config"
	"noteflow/internal/platform/logger"
)

// DB is a *sql.DB that knows which placeholder dialect its driver speaks.
type DB struct {
	*sql.DB
	Driver string
}

var Conn *DB

// Connect opens the configured database, verifies it and applies the schema.
func Connect(ctx context.Context, cfg *config.Config) (*DB, error) {
	var (
		db  *DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = Open(config.DriverSQLite, SQLiteDSN(cfg.SQLitePath))
	default:
		db, err = Open(config.DriverPostgres, cfg.DBConnStr)
	}
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Component("database").WithField("driver", db.Driver).Info("Successfully connected to database")
	Conn = db
	return db, nil
}

// Open opens a pool without touching the schema.
func Open(driver, dsn string) (*DB, error) {
	driverName := "pgx"
	if driver == config.DriverSQLite {
		driverName = "sqlite"
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if driver == config.DriverSQLite {
		// One writer keeps SQLite out of SQLITE_BUSY under the worker pool.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	return &DB{DB: sqlDB, Driver: driver}, nil
}

// SQLiteDSN enables foreign keys and a busy timeout on every connection.
func SQLiteDSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func Close() {
	if Conn != nil {
		Conn.Close()
		logger.Component("database").Info("Database connection closed.")
	}
}

// Rebind rewrites '?' placeholders to the driver's native form.
func (db *DB) Rebind(query string) string {
	if db.Driver != config.DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
