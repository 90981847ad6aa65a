// Package main is the operator CLI: schema migrations, one-off
// recalculations and profile lookups against the configured stores.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/volunteerhub/profile-analytics/config"
	"github.com/volunteerhub/profile-analytics/internal/app"
	"github.com/volunteerhub/profile-analytics/internal/application/command"
	"github.com/volunteerhub/profile-analytics/internal/infrastructure/persistence/postgres"
	"github.com/volunteerhub/profile-analytics/pkg/logger"
)

var (
	configFile string
	logLevel   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "scorer",
		Short: "Profile scoring and behavioral analytics operator tool",
		Long: `scorer runs maintenance tasks against the analytics stores.

Configuration is read from the file named by --config (or
ANALYTICS_CONFIG_FILE) and ANALYTICS_* environment variables.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recalculateCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(behaviorCmd())
	rootCmd.AddCommand(invalidateCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withContainer loads configuration, builds the container and runs fn.
func withContainer(ctx context.Context, mutate func(*config.Config), fn func(*app.Container) error) error {
	if configFile != "" {
		if err := os.Setenv(config.FileEnv, configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Observability.LogLevel = logLevel
	cfg.Observability.LogFormat = "console"
	if mutate != nil {
		mutate(cfg)
	}

	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	c, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func noCache(cfg *config.Config) { cfg.Cache.Driver = config.CacheNone }

// ─────────────────────────────────────────────────────────────────────────────
// migrate
// ─────────────────────────────────────────────────────────────────────────────

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), noCache, func(c *app.Container) error {
				applied, err := c.Migrate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("applied %d migration(s)\n", applied)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), noCache, func(c *app.Container) error {
				migrations, err := postgres.NewMigrator(c.DB).Status(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, m := range migrations {
					applied := "-"
					if m.IsApplied {
						applied = m.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
				}
				return w.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), noCache, func(c *app.Container) error {
				if err := postgres.NewMigrator(c.DB).Rollback(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("rolled back 1 migration")
				return nil
			})
		},
	})
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// recalculate
// ─────────────────────────────────────────────────────────────────────────────

func recalculateCmd() *cobra.Command {
	var (
		userID    string
		all       bool
		batchSize int
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recalculate one user or every active user",
		Example: `  scorer recalculate --user 6f1c...
  scorer recalculate --all --batch-size 250 --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == !all {
				return errors.New("exactly one of --user or --all is required")
			}
			return withContainer(cmd.Context(), nil, func(c *app.Container) error {
				if batchSize == 0 {
					batchSize = c.Config.Batch.Size
				}
				summary, err := c.Recalculate.Handle(cmd.Context(), command.RecalculateProfilesCommand{
					Target:    command.Target{UserID: userID, AllActive: all},
					BatchSize: batchSize,
					Force:     force,
					Trigger:   "cli",
				})
				if err != nil {
					return err
				}
				if err := printJSON(summary); err != nil {
					return err
				}
				if summary.ErrorCount > 0 {
					c.Logger.Warn("recalculation finished with errors", logger.Int("errors", summary.ErrorCount))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "recalculate a single user")
	cmd.Flags().BoolVar(&all, "all", false, "recalculate every active user")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "users per batch (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "recompute users whose cache entry is still fresh")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// score / behavior / invalidate
// ─────────────────────────────────────────────────────────────────────────────

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score USER_ID",
		Short: "Print a user's profile score and milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), nil, func(c *app.Container) error {
				dto, err := c.ProfileScore.Handle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(dto)
			})
		},
	}
}

func behaviorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "behavior USER_ID",
		Short: "Print a user's behavioral profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), nil, func(c *app.Container) error {
				dto, err := c.BehaviorProfile.Handle(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(dto)
			})
		},
	}
}

func invalidateCmd() *cobra.Command {
	var (
		reason string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "invalidate [USER_ID]",
		Short: "Drop cached analytics for a user or for everyone",
		Long: `Drops cached analytics sections for a user.

Reasons: profile_edited and document_verified drop the score section, and
the cached behavior section is recomputed with it on the next read.
activity_recorded or no reason drops both sections.

--all drops every cached entry, for example after a rules change.`,
		Example: `  scorer invalidate 6f1c... --reason document_verified
  scorer invalidate --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == !all {
				return errors.New("exactly one of USER_ID or --all is required")
			}
			return withContainer(cmd.Context(), nil, func(c *app.Container) error {
				if all {
					deleted, err := c.Invalidate.HandleAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Printf("dropped %d cached entries\n", deleted)
					return nil
				}
				result, err := c.Invalidate.Handle(cmd.Context(), command.InvalidateAnalyticsCommand{
					UserID: args[0],
					Reason: command.Reason(reason),
				})
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "profile_edited, document_verified or activity_recorded")
	cmd.Flags().BoolVar(&all, "all", false, "drop every cached entry")
	return cmd
}
