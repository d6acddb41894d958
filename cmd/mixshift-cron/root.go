package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mixshift/internal/core/period"
	"mixshift/internal/core/version"
	"mixshift/internal/platform/logger"

	harvestdom "mixshift/internal/services/harvest/domain"
	harvestmod "mixshift/internal/services/harvest/module"
)

// cli holds flags shared by every command and the opened wiring
type cli struct {
	open opener
	w    *wiring

	logLevel  string
	logFormat string
	schedule  string
	prod      bool
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}
	cmd := &cobra.Command{
		Use:   "mixshift-cron",
		Short: "Drive seller report harvests from cron or by hand",
		Long: `mixshift-cron runs one orchestrator pass, sweeps stuck report types,
redrives a single unit or inspects its phase. Configuration comes from the
environment (SERVICE_PGSQL_*, CORE_HARVEST_*, CORE_SPAPI_*); flags override it.`,
		Example: `  mixshift-cron run-once
  mixshift-cron run-once --seller A1SELLER
  mixshift-cron watchdog --every 15m
  mixshift-cron retry 42 WEEK
  mixshift-cron check 42 month
  mixshift-cron migrate`,
		Version:      version.Info("mixshift-cron").String(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opt := logger.FromEnv()
			if c.logLevel != "" {
				opt.Level = c.logLevel
			}
			if c.logFormat != "" {
				opt.Format = c.logFormat
			}
			logger.Init(opt)
			if skipWiring(cmd.Name()) {
				return nil
			}

			w, err := c.open(cmd.Context(), harvestmod.Options{Production: c.prod, ScheduleFile: c.schedule})
			if err != nil {
				return err
			}
			c.w = w
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.w != nil && c.w.Close != nil {
				if err := c.w.Close(); err != nil {
					logger.Get().Error().Err(err).Msg("failed to close store")
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error); default from LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "log format (json or console); default from LOG_FORMAT")
	cmd.PersistentFlags().StringVar(&c.schedule, "schedule", "", "YAML schedule policy overriding CORE_HARVEST_SCHEDULE_FILE")
	cmd.PersistentFlags().BoolVar(&c.prod, "production", false, "force production mode regardless of CORE_HARVEST_ENV")

	cmd.AddCommand(
		c.runOnceCmd(),
		c.watchdogCmd(),
		c.retryCmd(),
		c.checkCmd(),
		c.importPendingCmd(),
		c.migrateCmd(),
	)
	return cmd
}

func (c *cli) runOnceCmd() *cobra.Command {
	var req harvestdom.RunRequest
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Process the next eligible seller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.w.Runner.RunOnce(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&req.UserID, "user", "", "only sellers owned by this user")
	cmd.Flags().StringVar(&req.SellerID, "seller", "", "only this selling partner id")
	return cmd
}

func (c *cli) watchdogCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Redrive report types that stopped making progress",
		Long: `Without --every a single pass runs and the command exits.
With --every the sweep repeats until the process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if every <= 0 {
				res, err := c.w.Runner.Watchdog(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			}
			return loop(cmd.Context(), every, func(ctx context.Context) {
				res, err := c.w.Runner.Watchdog(ctx)
				if err != nil {
					logger.C(ctx).Error().Err(err).Msg("watchdog pass failed")
					return
				}
				logger.C(ctx).Info().
					Int("scanned", res.Scanned).
					Int("recovered", res.Recovered).
					Int("failed", res.Failed).
					Int("pending", res.Pending).
					Msg("watchdog pass")
			})
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the sweep at this interval")
	return cmd
}

func (c *cli) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "retry <work-unit-id> <WEEK|MONTH|QUARTER>",
		Short:   "Redrive one report type of a unit now",
		Args:    cobra.ExactArgs(2),
		Example: "  mixshift-cron retry 42 WEEK",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, t, err := unitArgs(args)
			if err != nil {
				return err
			}
			snap, err := c.w.Runner.RetryStuckUnit(cmd.Context(), id, t)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <work-unit-id> <WEEK|MONTH|QUARTER>",
		Short: "Show the phase of one report type of a unit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, t, err := unitArgs(args)
			if err != nil {
				return err
			}
			snap, err := c.w.Query.CheckPhase(cmd.Context(), id, t)
			if err != nil {
				return err
			}
			return printJSON(cmd, snap)
		},
	}
}

func (c *cli) importPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-pending",
		Short: "Import completed downloads that never landed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.w.Runner.ImportPending(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the harvest and importer schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.w.Migrate(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return err
		},
	}
}

// skipWiring reports commands that never touch the store
func skipWiring(name string) bool {
	switch name {
	case "help", "completion", "__complete":
		return true
	}
	return false
}

func unitArgs(args []string) (int64, period.Type, error) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("work unit id %q must be a positive integer", args[0])
	}
	t, err := period.ParseType(args[1])
	if err != nil {
		return 0, 0, err
	}
	return id, t, nil
}

// loop runs fn now and then every interval until ctx ends
func loop(ctx context.Context, every time.Duration, fn func(context.Context)) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
