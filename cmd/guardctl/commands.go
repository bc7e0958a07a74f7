package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-sales-guard/internal/config"
	"github.com/tbourn/go-sales-guard/internal/repo"
	"github.com/tbourn/go-sales-guard/internal/services"
	"github.com/tbourn/go-sales-guard/internal/sysutil"
	"github.com/tbourn/go-sales-guard/internal/utils"
)

// app is the state shared by every subcommand.
type app struct {
	out      io.Writer
	dbPath   string
	logLevel string

	db    *gorm.DB
	admin *services.Admin
}

// newRootCmd builds the guardctl command tree. Every subcommand except help
// and completion opens the database in PersistentPreRunE and closes it after
// the run, so tests can execute the tree repeatedly against one file.
func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "guardctl",
		Short:         "Inspect and reset sales guard limiter state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion":
				return nil
			}
			return a.open()
		},
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite file (default $DB_PATH)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level for service messages")

	root.AddCommand(
		a.statusCmd(),
		a.blockedCmd(),
		a.resetUserCmd(),
		a.resetGlobalCmd(),
		a.resetAllCmd(),
		a.floodStatsCmd(),
		a.eraseUserCmd(),
		a.pruneFloodsCmd(),
	)
	return root
}

// open loads configuration, lets --db override DB_PATH, migrates the schema
// and wires the same service stack the server uses (without event sinks).
func (a *app) open() error {
	sysutil.SetupLogger(os.Stderr, a.logLevel, true, "guardctl")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.DBPath = sysutil.FirstNonEmpty(a.dbPath, cfg.DBPath)

	db, err := repo.OpenSQLite(cfg.DBPath, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.db = db
	a.admin = services.NewStack(db, cfg, services.StackOptions{}).Admin
	return nil
}

// close releases the SQLite handle; safe to call when open failed.
func (a *app) close() {
	if a.db == nil {
		return
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.db = nil
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the account limiter, flood history and blocked users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.admin.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
			g := st.Global
			fmt.Fprintf(tw, "global blocked\t%t\n", g.Blocked)
			if g.Row != nil {
				fmt.Fprintf(tw, "minute count\t%d / %d (base %d)\n", g.Row.CountMinute, g.Ceilings.Minute, g.Base.Minute)
				fmt.Fprintf(tw, "hour count\t%d / %d (base %d)\n", g.Row.CountHour, g.Ceilings.Hour, g.Base.Hour)
				if g.Row.BlockedUntil != nil {
					fmt.Fprintf(tw, "blocked until\t%s\n", g.Row.BlockedUntil.UTC().Format(time.RFC3339))
				}
			} else {
				fmt.Fprintf(tw, "ceilings\t%d/min %d/hour\n", g.Ceilings.Minute, g.Ceilings.Hour)
			}
			fmt.Fprintf(tw, "floods 24h\t%d (avg %.1fs, max %ds)\n", st.Floods24h.Count, st.Floods24h.AvgWait, st.Floods24h.MaxWait)
			fmt.Fprintf(tw, "blocked users\t%d\n", st.BlockedUsers)
			return tw.Flush()
		},
	}
}

func (a *app) blockedCmd() *cobra.Command {
	var page, size int
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "List users blocked right now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, size = utils.ClampPage(fmt.Sprint(page), fmt.Sprint(size))
			items, total, err := a.admin.ListBlocked(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "USER\tBLOCKED UNTIL\tMINUTE\tHOUR")
			for _, u := range items {
				until := "-"
				if u.BlockedUntil != nil {
					until = u.BlockedUntil.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", u.UserID, until, u.CountMinute, u.CountHour)
			}
			fmt.Fprintf(tw, "page %d of %d, %d total\n", page, max(utils.TotalPages(total, size), 1), total)
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&page, "page", utils.DefaultPage, "page number")
	cmd.Flags().IntVar(&size, "page-size", utils.DefaultPageSize, "rows per page")
	return cmd
}

func (a *app) resetUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-user <user-id>",
		Short: "Clear a user's block, counters and repeat state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := strings.TrimSpace(args[0])
			found, err := a.admin.ResetUser(cmd.Context(), uid)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("user %q has no limiter state", uid)
			}
			fmt.Fprintf(a.out, "reset user %s\n", uid)
			return nil
		},
	}
}

func (a *app) resetGlobalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-global",
		Short: "Clear the account block and counters and restore base ceilings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.admin.ResetGlobal(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "reset global limiter")
			return nil
		},
	}
}

func (a *app) resetAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-all",
		Short: "Reset every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.admin.ResetAllUsers(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "reset %d users\n", n)
			return nil
		},
	}
}

func (a *app) floodStatsCmd() *cobra.Command {
	var hours int
	cmd := &cobra.Command{
		Use:   "flood-stats",
		Short: "Summarize flood waits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hours < 1 {
				return errors.New("--hours must be >= 1")
			}
			window := time.Duration(hours) * time.Hour
			fs, err := a.admin.FloodStats(cmd.Context(), window)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "last %dh: %d events, avg wait %.1fs, max wait %ds\n", hours, fs.Count, fs.AvgWait, fs.MaxWait)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "look-back window in hours")
	return cmd
}

// eraseUserCmd removes limit rows, conversation contexts and idempotency
// receipts of one user.
func (a *app) eraseUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase-user <user-id>",
		Short: "Delete every stored row of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.admin.EraseUser(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "erased %s: %d limit rows, %d contexts, %d receipts\n",
				out.UserID, out.Limits, out.Contexts, out.Receipts)
			return nil
		},
	}
}

func (a *app) pruneFloodsCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune-floods",
		Short: "Delete flood events older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			// Cutoff is relative to wall clock, not the service clock.
			before := time.Now().UTC().Add(-olderThan)
			n, err := a.admin.PruneFloods(cmd.Context(), before)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %d flood events before %s\n", n, before.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 720*time.Hour, "age cutoff")
	return cmd
}
