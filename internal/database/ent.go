package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/gurkanbulca/taskflow/internal/log"
)

// Config for database connection
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// DSN overrides the host/port fields when set (used for sqlite3).
	DSN   string
	Debug bool
}

// DataSourceName builds the driver specific connection string.
func (c Config) DataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// DB bundles the ent driver used for migrations and the sqlx handle used by
// repositories. Both share one connection pool.
type DB struct {
	Driver *entsql.Driver
	X      *sqlx.DB
}

// Dialect returns the ent dialect name (postgres or sqlite3).
func (d *DB) Dialect() string {
	return d.Driver.Dialect()
}

// Close closes the shared pool.
func (d *DB) Close() error {
	return d.Driver.Close()
}

// Open connects to a SQL database and verifies the connection.
func Open(cfg Config) (*DB, error) {
	driverName := cfg.Driver
	if driverName == "" {
		driverName = dialect.Postgres
	}
	if driverName != dialect.Postgres && driverName != dialect.SQLite {
		return nil, fmt.Errorf("unsupported sql driver %q", driverName)
	}

	db, err := sql.Open(driverName, cfg.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure connection pool
	if driverName == dialect.Postgres {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	drv := entsql.OpenDB(driverName, db)
	log.GetLogger().WithField("driver", driverName).Info("Connected to SQL database")

	return &DB{
		Driver: drv,
		X:      sqlx.NewDb(db, driverName),
	}, nil
}
