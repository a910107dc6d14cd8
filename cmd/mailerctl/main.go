// Command mailerctl runs campaign mailer maintenance tasks against the
// configured database without starting the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"campaign-mailer-go/internal/app"
	"campaign-mailer-go/internal/database"
)

var rootCmd = &cobra.Command{
	Use:           "mailerctl",
	Short:         "Campaign mailer maintenance commands",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		db, err := database.InitDatabase(cfg.Database)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <campaign-id>",
	Short: "Send a campaign to its pending recipients",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid campaign id %q", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Sender.SendCampaign(ctx, uint(id))
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import contacts from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Importer.Import(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-bounces",
	Short: "Read the bounce mailbox once and mark bounced recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if a.Sweeper == nil {
				return fmt.Errorf("bounce sweep is disabled, set SCHEDULER_BOUNCE_SWEEP=true")
			}
			result, err := a.Sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		})
	},
}

var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Send every due scheduled campaign once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.NewScheduler().RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(runDueCmd)
	rootCmd.AddCommand(gmailTokenCmd)
}

// withApp loads configuration, wires the services and runs fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrus.Fatalf("mailerctl: %v", err)
	}
}
