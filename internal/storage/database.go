package storage

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"chatbridge/internal/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationFS embed.FS

const defaultMySQLParams = "parseTime=true&loc=UTC"

// Driver normalizes the dialect name used across the service.
func Driver(dbType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "", "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", dbType)
	}
}

// Open connects to the database selected by dbType using its entry in cfg.Databases.
func Open(dbType string, cfg *config.Config) (*sqlx.DB, error) {
	driver, err := Driver(dbType)
	if err != nil {
		return nil, err
	}
	dbCfg, ok := cfg.Databases[driver]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", driver)
	}

	var db *sqlx.DB
	switch driver {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sqlx.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection: foreign_keys is a per-connection pragma and :memory: is per-connection storage
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := dbCfg.DSN
		if dsn == "" {
			params := dbCfg.Params
			if params == "" {
				params = defaultMySQLParams
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				params,
			)
		}
		db, err = sqlx.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations for the driver.
func Migrate(db *sqlx.DB, dbType string) error {
	driver, err := Driver(dbType)
	if err != nil {
		return fmt.Errorf("unsupported driver for migration: %s", dbType)
	}

	src, err := iofs.New(migrationFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("load migrations (%s): %w", driver, err)
	}

	var m *migrate.Migrate
	switch driver {
	case "sqlite3":
		target, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
		if err != nil {
			return fmt.Errorf("migration driver (%s): %w", driver, err)
		}
		m, err = migrate.NewWithInstance("iofs", src, driver, target)
		if err != nil {
			return fmt.Errorf("init migrate (%s): %w", driver, err)
		}
	case "mysql":
		target, err := migratemysql.WithInstance(db.DB, &migratemysql.Config{})
		if err != nil {
			return fmt.Errorf("migration driver (%s): %w", driver, err)
		}
		m, err = migrate.NewWithInstance("iofs", src, driver, target)
		if err != nil {
			return fmt.Errorf("init migrate (%s): %w", driver, err)
		}
	}

	// m.Close would close the shared *sql.DB, so only the source is released
	defer src.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate (%s): %w", driver, err)
	}
	return nil
}
