package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	logx "wrestfed/pkg/logx"
)

//go:embed migrations
var migrationFS embed.FS

// migrateUp applies the embedded migrations for driverName ("sqlite" or
// "pgx") on a dedicated connection pool that is closed afterwards.
func migrateUp(ctx context.Context, driverName, dsn string, log logx.Logger) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate connect: %w", err)
	}

	var (
		dir    string
		dbName string
		drv    database.Driver
	)
	switch driverName {
	case "sqlite":
		dir, dbName = "migrations/sqlite", "sqlite"
		drv, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	case "pgx":
		dir, dbName = "migrations/postgres", "pgx5"
		drv, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	default:
		err = fmt.Errorf("no migrations for driver %s", driverName)
	}
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate driver: %w", err)
	}

	src, err := iofs.New(migrationFS, dir)
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dbName, drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() {
		_, _ = m.Close()
		_ = db.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	if v, dirty, verr := m.Version(); verr == nil {
		log.Debug("schema ready", logx.Uint64("version", uint64(v)), logx.Bool("dirty", dirty))
	}
	return nil
}
