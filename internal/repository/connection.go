package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

const migrationsTable = "mall_schema_migrations"

type Repository struct {
	db      *sql.DB
	q       DBTX
	dialect Dialect
	txOpts  *sql.TxOptions
}

func NewRepository(cred *Credentials) (*Repository, error) {
	switch cred.Dialect {
	case Postgres:
		psqlconn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cred.Host,
			cred.Port,
			cred.User,
			cred.Password,
			cred.DBName)

		db, err := sql.Open("postgres", psqlconn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(10)
		// the stock compare-and-swap needs each statement to see the latest committed row
		return newRepository(db, Postgres, &sql.TxOptions{Isolation: sql.LevelReadCommitted})

	case SQLite:
		dsn := cred.SQLitePath
		if dsn != ":memory:" {
			dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", cred.SQLitePath)
		}
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// one writer at a time; also keeps a ":memory:" database on a single connection
		db.SetMaxOpenConns(1)
		return newRepository(db, SQLite, nil)

	default:
		return nil, fmt.Errorf("unsupported dialect %q", cred.Dialect)
	}
}

// NewWithDB wraps an already opened handle. Used by tests with sqlmock.
func NewWithDB(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, q: db, dialect: dialect}
}

func newRepository(db *sql.DB, dialect Dialect, txOpts *sql.TxOptions) (*Repository, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Repository{db: db, q: db, dialect: dialect, txOpts: txOpts}, nil
}

func (r *Repository) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch r.dialect {
	case Postgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{MigrationsTable: migrationsTable})
	case SQLite:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{MigrationsTable: migrationsTable})
	default:
		err = fmt.Errorf("unsupported dialect %q", r.dialect)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrations, "migrations/"+string(r.dialect))
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(r.dialect), driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
