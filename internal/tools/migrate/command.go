package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/database"
	"github.com/mediagallery/gallery-api/internal/di"
	"github.com/mediagallery/gallery-api/internal/tools/common"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Database schema tooling for the gallery API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newDBCommand(opts, "status", "Report database reachability and missing tables", status),
		newDBCommand(opts, "plan", "Show which tables a migration would create", plan),
	)
	return cmd
}

type dbAction func(ctx context.Context, db *gorm.DB) ([]string, error)

func newDBCommand(opts *options, use, short string, action dbAction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := common.Invocation{Tool: "migrate", Command: use, CI: opts.ci, Timeout: opts.timeout, Out: cmd.OutOrStdout()}
			return inv.Run(func(ctx context.Context) ([]string, error) {
				_, db, closeDB, err := common.OpenDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				return action(ctx, db)
			})
		},
	}
}

// up goes through the same runner wiring as the API so BOOTSTRAP_ADMIN_EMAIL
// is honored on every schema change.
func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations and promote the bootstrap admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			inv := common.Invocation{Tool: "migrate", Command: "up", CI: opts.ci, Timeout: opts.timeout, Out: cmd.OutOrStdout()}
			return inv.Run(func(context.Context) ([]string, error) {
				if err := common.LoadEnvFile(opts.envFile); err != nil {
					return nil, err
				}
				runner, err := di.InitializeMigrationRunner()
				if err != nil {
					return nil, err
				}
				defer runner.Close()
				return up(runner)
			})
		},
	}
}

type schemaRunner interface {
	Pending() []string
	Run() (*database.SeedReport, error)
}

func up(m schemaRunner) ([]string, error) {
	pending := m.Pending()
	report, err := m.Run()
	if err != nil {
		return nil, err
	}
	details := []string{"schema up to date", "columns and indexes reconciled"}
	if len(pending) > 0 {
		details = []string{"created tables: " + strings.Join(pending, ", ")}
	}
	switch {
	case report.PromotedAdmin:
		details = append(details, "promoted "+report.BootstrapEmail+" to active verified admin")
	case report.UserMissing:
		details = append(details, report.BootstrapEmail+" has not registered yet; admin not promoted")
	}
	return details, nil
}

func status(ctx context.Context, db *gorm.DB) ([]string, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	details := []string{"database reachable", "dialect: " + db.Dialector.Name()}
	if pending := database.PendingTables(db); len(pending) > 0 {
		return append(details, "missing tables: "+strings.Join(pending, ", ")), nil
	}
	return append(details, "all tables present"), nil
}

func plan(_ context.Context, db *gorm.DB) ([]string, error) {
	pending := database.PendingTables(db)
	details := make([]string, 0, len(pending)+1)
	for _, table := range pending {
		details = append(details, "would create table "+table)
	}
	if len(pending) == 0 {
		details = append(details, "no tables to create; AutoMigrate would only reconcile columns")
	}
	return append(details, "no mutation executed in plan mode"), nil
}
