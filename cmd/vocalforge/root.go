package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"VocalForge/internal/app"
	"VocalForge/internal/models"
	"VocalForge/pkg/backup"
	"VocalForge/pkg/config"
	"VocalForge/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vocalforge",
		Short:         "VocalForge studio backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			return logger.Init(config.GlobalConfig.Log, config.GlobalConfig.Mode)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newBackupCommand(),
		newGenerationsCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and gRPC health when GRPC_ADDR is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(config.GlobalConfig)
			if err != nil {
				return err
			}
			defer a.Close()
			logger.Info("vocalforge starting", zap.String("mode", config.GlobalConfig.Mode))
			return a.Run(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.OpenDB(config.GlobalConfig)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func newBackupCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up the database once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GlobalConfig
			if dir == "" {
				dir = cfg.BackupPath
			}
			dst, err := backup.NewRunner(backup.Config{
				Driver: cfg.DBDriver,
				DSN:    cfg.DSN,
				Dir:    dir,
			}).Execute(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Backup directory (defaults to BACKUP_PATH)")
	return cmd
}

func newGenerationsCommand() *cobra.Command {
	var (
		email string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "generations",
		Short: "List a user's generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			db, err := app.OpenDB(config.GlobalConfig)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			u, err := models.GetUserByEmail(db.WithContext(ctx), email)
			if err != nil {
				return fmt.Errorf("user %s: %w", email, err)
			}
			gens, err := models.ListGenerations(db.WithContext(ctx), u.ID, "", limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGenerations(gens))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultListLimit, "Maximum rows")
	return cmd
}

func renderGenerations(gens []models.Generation) string {
	if len(gens) == 0 {
		return "No generations"
	}
	rows := make([][]string, 0, len(gens))
	for _, g := range gens {
		model := g.ModelName
		if model == "" {
			model = "-"
		}
		rows = append(rows, []string{
			g.ID,
			g.Title,
			model,
			string(g.Status),
			strconv.Itoa(g.Duration) + "s",
			strconv.Itoa(g.Cost),
			g.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Model", "Status", "Duration", "Cost", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
