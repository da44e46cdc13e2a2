package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Validation errors are caused by the caller input and never reach the engine.
var (
	ErrValidation       = errors.New("validation error")
	ErrEmptyBatch       = errors.New("empty batch")
	ErrIncompleteHeader = errors.New("block header is incomplete")
	ErrEmptyCID         = errors.New("content identifier is empty")
	ErrChainMismatch    = errors.New("block does not extend the chain tip")
	ErrInvalidLimit     = errors.New("limit must be positive")
)

// Storage errors are caused by the engine.
var (
	ErrStorage           = errors.New("storage error")
	ErrConnectFailed     = errors.New("connect failed")
	ErrMigrationFailed   = errors.New("migration failed")
	ErrInsertFailed      = errors.New("insert failed")
	ErrRemoveFailed      = errors.New("remove failed")
	ErrSelectFailed      = errors.New("select failed")
	ErrScanFailed        = errors.New("scan failed")
	ErrCommitFailed      = errors.New("transaction commit failed")
	ErrTrxBeginFailed    = errors.New("transaction begin failed")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// DBConfig contains configuration for the database.
type DBConfig struct {
	Driver       string `yaml:"driver"`        // Driver is sqlite3 or postgres, sqlite3 when empty.
	Path         string `yaml:"path"`          // Path is the SQLite database file, in memory database when empty.
	ConnStr      string `yaml:"conn_str"`      // ConnStr is the connection string to the PostgreSQL database.
	DatabaseName string `yaml:"database_name"` // DatabaseName is the name of the PostgreSQL database.
	IsSSL        bool   `yaml:"is_ssl"`        // IsSSL is the flag that indicates if the connection should be encrypted.
}

// DataBase provides ledger, block and settings storage on top of the SQL engine.
type DataBase struct {
	inner   *sql.DB
	dialect dialect
}

// Open connects to the database, checks the connection and runs migrations.
// Any failure is returned, the node must not run on storage that failed to open.
func Open(ctx context.Context, cfg DBConfig) (*DataBase, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Disconnect(ctx)
		return nil, storageErr(ErrConnectFailed, err)
	}
	if err := db.RunMigration(ctx); err != nil {
		db.Disconnect(ctx)
		return nil, err
	}
	return db, nil
}

// Connect creates new connection to the repository and returns pointer to the DataBase.
func Connect(ctx context.Context, cfg DBConfig) (*DataBase, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, d.dsn(cfg))
	if err != nil {
		return nil, storageErr(ErrConnectFailed, err)
	}
	if d.driver == driverSQLite {
		db.SetMaxOpenConns(1)
	}

	return &DataBase{inner: db, dialect: d}, nil
}

// Disconnect closes the database connection.
func (db DataBase) Disconnect(ctx context.Context) error {
	return db.inner.Close()
}

// Ping checks if the connection to the database is still alive.
func (db DataBase) Ping(ctx context.Context) error {
	return db.inner.PingContext(ctx)
}

func storageErr(kind, err error) error {
	return errors.Join(ErrStorage, kind, err)
}

func validationErr(kind error, format string, args ...any) error {
	if format == "" {
		return errors.Join(ErrValidation, kind)
	}
	return errors.Join(ErrValidation, kind, fmt.Errorf(format, args...))
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
