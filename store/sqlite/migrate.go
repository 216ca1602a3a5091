package sqlite

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationStatus reports the schema version before and after Migrate.
type MigrationStatus struct {
	Before uint
	After  uint
	Dirty  bool
}

// Migrate applies every pending migration under migrations/.
//
// The migrate instance is never closed; its Close closes the Store's *sql.DB.
func (s *Store) Migrate() (MigrationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.migrator()
	if err != nil {
		return MigrationStatus{}, err
	}

	var status MigrationStatus
	status.Before, _, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return status, fmt.Errorf("read schema version: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return status, fmt.Errorf("apply migrations: %w", err)
	}

	status.After, status.Dirty, err = m.Version()
	if err != nil {
		return status, fmt.Errorf("read schema version: %w", err)
	}
	return status, nil
}

// SchemaVersion returns the applied migration version (0 when none).
func (s *Store) SchemaVersion() (uint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func (s *Store) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate.NewWithInstance: %w", err)
	}
	return m, nil
}
