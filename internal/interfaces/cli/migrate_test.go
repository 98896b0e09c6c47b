package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
)

type fakeMigrator struct {
	version uint
	downs   int
	forced  int
	closed  bool
}

func (f *fakeMigrator) Up() error { f.version = 3; return nil }
func (f *fakeMigrator) Down(steps int) error {
	f.downs += steps
	return nil
}
func (f *fakeMigrator) Status() (postgres.MigrationStatus, error) {
	return postgres.MigrationStatus{Version: f.version}, nil
}
func (f *fakeMigrator) Force(v int) error { f.forced = v; return nil }
func (f *fakeMigrator) Close() error      { f.closed = true; return nil }

func withFakeMigrator(t *testing.T) (*fakeMigrator, *config.DatabaseConfig, string) {
	t.Helper()
	fake := &fakeMigrator{}
	var seen config.DatabaseConfig
	orig := newMigrator
	newMigrator = func(cfg config.DatabaseConfig, _ logging.Logger) (migrationRunner, error) {
		seen = cfg
		return fake, nil
	}
	t.Cleanup(func() { newMigrator = orig })

	path := filepath.Join(t.TempDir(), "taxflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: db.internal\n  db_name: taxflow_test\n"), 0o600))
	return fake, &seen, path
}

func TestMigrateUp(t *testing.T) {
	fake, seen, cfgPath := withFakeMigrator(t)
	out, _, err := runCLI(t, "--config", cfgPath, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "OK: schema at version 3\n", out)
	assert.True(t, fake.closed)
	assert.Equal(t, "db.internal", seen.Host)
	assert.Equal(t, "taxflow_test", seen.DBName)
}

func TestMigrateDownAndForce(t *testing.T) {
	fake, _, cfgPath := withFakeMigrator(t)

	_, _, err := runCLI(t, "--config", cfgPath, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.downs)

	_, _, err = runCLI(t, "--config", cfgPath, "migrate", "force", "5")
	require.NoError(t, err)
	assert.Equal(t, 5, fake.forced)

	_, _, err = runCLI(t, "--config", cfgPath, "migrate", "force", "x")
	assert.Error(t, err)
}

func TestMigrateStatus(t *testing.T) {
	_, _, cfgPath := withFakeMigrator(t)
	out, _, err := runCLI(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "false")
}

func TestMigrate_BadConfigFile(t *testing.T) {
	_, _, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate", "up")
	assert.Error(t, err)
}
