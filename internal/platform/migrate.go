package platform

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMetadataMigrations bootstraps the services_public catalog tables
// that the tenant resolver reads from (apis, domains, extensions, and
// their supporting indexes). It is independent of, and has no
// knowledge of, any tenant-schema migration subsystem a caller might
// run against individual tenant databases.
func RunMetadataMigrations(databaseURL, migrationsDir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsDir), databaseURL)
	if err != nil {
		return fmt.Errorf("creating metadata migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running metadata migrations: %w", err)
	}
	return nil
}
