package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/database/postgres"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type migrationRunner interface {
	Up() error
	Down(steps int) error
	Status() (postgres.MigrationStatus, error)
	Force(version int) error
	Close() error
}

// newMigrator is swapped in tests.
var newMigrator = func(cfg config.DatabaseConfig, logger logging.Logger) (migrationRunner, error) {
	return postgres.NewMigrator(cfg, logger)
}

type migrationStatusView postgres.MigrationStatus

func (v migrationStatusView) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }
func (v migrationStatusView) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(v.Version), 10), strconv.FormatBool(v.Dirty)}}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Apply, roll back or inspect the embedded schema migrations directly against the configured database.",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m migrationRunner) error {
				if err := m.Down(steps); err != nil {
					return err
				}
				PrintSuccess(cmd, fmt.Sprintf("rolled back %d migration(s)", steps))
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m migrationRunner) error {
					if err := m.Up(); err != nil {
						return err
					}
					st, err := m.Status()
					if err != nil {
						return err
					}
					PrintSuccess(cmd, fmt.Sprintf("schema at version %d", st.Version))
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m migrationRunner) error {
					st, err := m.Status()
					if err != nil {
						return err
					}
					return PrintResult(cmd, migrationStatusView(st))
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version and clear the dirty flag",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil || version < 0 {
					return errors.InvalidParam("version must be a non-negative integer").WithDetail(args[0])
				}
				return withMigrator(cmd, func(m migrationRunner) error {
					if err := m.Force(version); err != nil {
						return err
					}
					PrintSuccess(cmd, fmt.Sprintf("forced version %d", version))
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(migrationRunner) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if cliCtx.Config == nil {
		return errors.InvalidParam("migrate needs a valid configuration; pass --config or set TAXFLOW_DATABASE_*")
	}
	m, err := newMigrator(cliCtx.Config.Database, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			cliCtx.Logger.Warn("Failed to close migrator", logging.Err(cerr))
		}
	}()
	return fn(m)
}
