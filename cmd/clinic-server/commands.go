package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/medpredict/clinic/internal/config"
	"github.com/medpredict/clinic/internal/domain/account"
	"github.com/medpredict/clinic/internal/domain/diagnosis"
	"github.com/medpredict/clinic/internal/platform/db"
	"github.com/medpredict/clinic/internal/platform/reporting"
)

// postgresConfig loads configuration for commands that only make sense
// against the persistent store.
func postgresConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.UsesPostgres() {
		return nil, fmt.Errorf("STORAGE_DRIVER must be %q for this command", config.StorageDriverPostgres)
	}
	return cfg, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := postgresConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationSource(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := postgresConfig()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationSource(dir)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account, a doctor unless --role says otherwise",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := account.RegisterRequest{}
			req.Email, _ = cmd.Flags().GetString("email")
			req.Password, _ = cmd.Flags().GetString("password")
			req.FirstName, _ = cmd.Flags().GetString("first-name")
			req.LastName, _ = cmd.Flags().GetString("last-name")
			req.PhoneNumber, _ = cmd.Flags().GetString("phone")
			req.Role, _ = cmd.Flags().GetString("role")
			req.ConfirmPassword = req.Password

			cfg, err := postgresConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			u, err := account.NewService(account.NewUserRepo(pool), logger).Register(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s account %s (%s)\n", u.Role, u.Email, u.ID)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Account email (required)")
	createCmd.Flags().String("password", "", "Account password (required)")
	createCmd.Flags().String("first-name", "", "First name (required)")
	createCmd.Flags().String("last-name", "", "Last name (required)")
	createCmd.Flags().String("phone", "", "Phone number (required)")
	createCmd.Flags().String("role", string(account.RoleDoctor), "patient or doctor")
	for _, f := range []string{"email", "password", "first-name", "last-name", "phone"} {
		_ = createCmd.MarkFlagRequired(f)
	}

	cmd.AddCommand(createCmd)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Work with diagnosis reports",
	}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render a record's report PDF to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("record")
			out, _ := cmd.Flags().GetString("out")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--record must be a uuid: %w", err)
			}

			cfg, err := postgresConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Env)
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			rec, err := diagnosis.NewService(diagnosis.NewRecordRepo(pool), logger).Get(ctx, id)
			if err != nil {
				return err
			}
			input := reportInput(rec)
			if cmd.Flags().Changed("recommendation") {
				input.Recommendation, _ = cmd.Flags().GetString("recommendation")
			}
			if out == "" {
				out = reporting.FileName(rec.PatientName)
			}
			if err := writeReport(out, input); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	renderCmd.Flags().String("record", "", "Diagnosis record id (required)")
	renderCmd.Flags().String("out", "", "Output path (defaults to <patient>_report.pdf)")
	renderCmd.Flags().String("recommendation", "", "Recommendation printed instead of the stored one")
	_ = renderCmd.MarkFlagRequired("record")

	cmd.AddCommand(renderCmd)
	return cmd
}

func reportInput(rec *diagnosis.Record) reporting.ReportInput {
	return reporting.ReportInput{
		PatientName:    rec.PatientName,
		Disease:        rec.Disease,
		Diagnosis:      rec.Diagnosis,
		Recommendation: rec.RecommendationText(),
	}
}

func writeReport(path string, in reporting.ReportInput) error {
	pdf, err := reporting.Generate(in)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
