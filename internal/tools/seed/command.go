package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mediagallery/gallery-api/internal/database"
	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/tools/common"
)

type options struct {
	envFile             string
	bootstrapAdminEmail string
	timeout             time.Duration
	ci                  bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Seed tooling for the gallery API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().StringVar(&opts.bootstrapAdminEmail, "bootstrap-admin-email", "", "override BOOTSTRAP_ADMIN_EMAIL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newApplyCommand(opts), newDryRunCommand(opts), newVerifyEmailCommand(opts))
	return cmd
}

func (o *options) invocation(cmd *cobra.Command) common.Invocation {
	return common.Invocation{Tool: "seed", Command: cmd.Name(), CI: o.ci, Timeout: o.timeout, Out: cmd.OutOrStdout()}
}

func (o *options) adminEmail(configured string) string {
	if o.bootstrapAdminEmail != "" {
		return o.bootstrapAdminEmail
	}
	return configured
}

func newApplyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Promote the bootstrap admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.invocation(cmd).Run(func(ctx context.Context) ([]string, error) {
				cfg, db, closeDB, err := common.OpenDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				return apply(db, opts.adminEmail(cfg.BootstrapAdminEmail))
			})
		},
	}
}

func newDryRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Show what apply would change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.invocation(cmd).Run(func(ctx context.Context) ([]string, error) {
				cfg, db, closeDB, err := common.OpenDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				return dryRun(ctx, db, opts.adminEmail(cfg.BootstrapAdminEmail))
			})
		},
	}
}

func newVerifyEmailCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:     "verify-email",
		Aliases: []string{"verify-local-email"},
		Short:   "Mark an account's email as verified without the OTP round trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.invocation(cmd).Run(func(ctx context.Context) ([]string, error) {
				if strings.TrimSpace(email) == "" {
					return nil, errors.New("--email is required")
				}
				_, db, closeDB, err := common.OpenDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer closeDB()
				return verifyEmail(db, email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email to mark verified")
	return cmd
}

func apply(db *gorm.DB, email string) ([]string, error) {
	report, err := database.SeedSync(db, email)
	if err != nil {
		return nil, err
	}
	switch {
	case report.BootstrapEmail == "":
		return []string{"no bootstrap admin email configured; nothing to do"}, nil
	case report.UserMissing:
		return []string{fmt.Sprintf("%s has not registered yet; rerun after sign-up", report.BootstrapEmail)}, nil
	case report.PromotedAdmin:
		return []string{fmt.Sprintf("promoted %s to active verified admin", report.BootstrapEmail)}, nil
	default:
		return []string{fmt.Sprintf("%s is already an active verified admin", report.BootstrapEmail)}, nil
	}
}

func dryRun(ctx context.Context, db *gorm.DB, email string) ([]string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return []string{"no bootstrap admin email configured; apply would do nothing"}, nil
	}
	var u domain.User
	err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return []string{fmt.Sprintf("%s not registered; apply would do nothing", email)}, nil
	case err != nil:
		return nil, err
	}
	var changes []string
	if u.Role != domain.RoleAdmin {
		changes = append(changes, fmt.Sprintf("would change role %s -> %s", u.Role, domain.RoleAdmin))
	}
	if !u.IsActive {
		changes = append(changes, "would reactivate account")
	}
	if !u.EmailVerified {
		changes = append(changes, "would mark email verified")
	}
	if len(changes) == 0 {
		return []string{fmt.Sprintf("%s already an active verified admin", email)}, nil
	}
	return append(changes, "no mutation executed in dry-run mode"), nil
}

func verifyEmail(db *gorm.DB, email string) ([]string, error) {
	if err := database.VerifyLocalEmail(db, email); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no account with email %s", strings.ToLower(strings.TrimSpace(email)))
		}
		return nil, err
	}
	return []string{"marked email verified: " + strings.ToLower(strings.TrimSpace(email))}, nil
}
