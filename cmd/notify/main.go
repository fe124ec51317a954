// Command notify runs the scheduled stock notification job once.
//
// Usage:
//
//	stock-notify send
//	stock-notify send --dry-run --at 2024-01-15T14:00:00Z
//	stock-notify send --sms=true --email=false --workers 8
//	stock-notify check --at 2024-01-15T14:00:00Z
//	stock-notify window --tz America/New_York --start 22 --end 6
//	stock-notify log --recent 20 --path ./data/notification_log.db
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/stock-notifier/internal/app"
	"github.com/albapepper/stock-notifier/internal/config"
	"github.com/albapepper/stock-notifier/internal/db"
	"github.com/albapepper/stock-notifier/internal/notifications"
	"github.com/albapepper/stock-notifier/internal/runlock"
	"github.com/albapepper/stock-notifier/internal/sqlitelog"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// errCancelled marks an interrupted run; main maps it to exit status 1
// without repeating the error.
var errCancelled = errors.New("cancelled by user")

func main() {
	// Load .env files if present; .env.local wins.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "stock-notify",
		Short:         "Stock update notification job",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(sendCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(windowCmd())
	root.AddCommand(logCmd())

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errCancelled) {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// send command
// --------------------------------------------------------------------------

func sendCmd() *cobra.Command {
	var (
		dryRun  bool
		at      string
		email   bool
		sms     bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send notifications to every user inside their window",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseInstant(at)
			if err != nil {
				return err
			}
			return withConfig(func(ctx context.Context, cfg *config.Config) error {
				if cmd.Flags().Changed("email") {
					cfg.EmailEnabled = email
				}
				if cmd.Flags().Changed("sms") {
					cfg.SMSEnabled = sms
				}
				if cmd.Flags().Changed("workers") {
					cfg.Workers = workers
				}

				a, err := app.New(ctx, cfg, nil, logger)
				if err != nil {
					return err
				}
				defer a.Close()

				if dryRun {
					fmt.Println("DRY RUN MODE: No notifications will be sent")
				}
				summary, err := a.Run(ctx, now, dryRun)
				if errors.Is(err, runlock.ErrLocked) {
					logger.Warn("Another run is in progress, nothing sent")
					return nil
				}
				if summary != nil {
					fmt.Print("\n" + summary.Render())
				}
				if ctx.Err() != nil {
					fmt.Println("\n\nCancelled by user.")
					return errCancelled
				}
				if err != nil {
					return err
				}
				fmt.Println("\nDone!")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate and compose without sending or logging")
	cmd.Flags().StringVar(&at, "at", "", "Evaluate windows at this RFC3339 instant instead of now")
	cmd.Flags().BoolVar(&email, "email", true, "Override NOTIFY_EMAIL_ENABLED")
	cmd.Flags().BoolVar(&sms, "sms", false, "Override NOTIFY_SMS_ENABLED")
	cmd.Flags().IntVar(&workers, "workers", 4, "Override NOTIFY_WORKERS")
	return cmd
}

// --------------------------------------------------------------------------
// check command
// --------------------------------------------------------------------------

func checkCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show which users are due a notification without sending",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseInstant(at)
			if err != nil {
				return err
			}
			return withConfig(func(ctx context.Context, cfg *config.Config) error {
				pool, err := db.New(ctx, cfg)
				if err != nil {
					return fmt.Errorf("connect to database: %w", err)
				}
				defer pool.Close()

				store := notifications.NewStore(pool)
				users, err := store.FetchEligibleUsers(ctx, notifications.Filter{Email: true, SMS: true})
				if err != nil {
					return err
				}
				printEligibility(users, now)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate windows at this RFC3339 instant instead of now")
	return cmd
}

func printEligibility(users []notifications.User, now time.Time) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tTIMEZONE\tLOCAL HOUR\tWINDOW\tDUE\tEMAIL\tSMS")
	due := 0
	for _, u := range users {
		local := "-"
		if u.Timezone != "" {
			if h, err := notifications.CurrentHour(u.Timezone, now); err == nil {
				local = fmt.Sprintf("%02d", h)
			} else {
				local = "invalid"
			}
		}
		inWindow := notifications.ShouldNotify(u, now)
		if inWindow {
			due++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%02d-%02d\t%s\t%s\t%s\n",
			u.ID, orDash(u.Timezone), local,
			u.NotificationStartHour, u.NotificationEndHour,
			yesNo(inWindow),
			yesNo(u.EmailEnabled),
			yesNo(u.SMSEnabled && notifications.SMSUsable(u)))
	}
	tw.Flush()
	fmt.Printf("\n%d of %d users due at %s\n", due, len(users), now.UTC().Format(time.RFC3339))
}

// --------------------------------------------------------------------------
// window command
// --------------------------------------------------------------------------

func windowCmd() *cobra.Command {
	var (
		tz         string
		start, end int
		at         string
	)
	cmd := &cobra.Command{
		Use:   "window",
		Short: "Evaluate a notification window for a timezone",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseInstant(at)
			if err != nil {
				return err
			}
			if start < 0 || start > 23 || end < 0 || end > 23 {
				return fmt.Errorf("window hours must be 0-23, got %d-%d", start, end)
			}
			hour, err := notifications.CurrentHour(tz, now)
			if err != nil {
				return err
			}
			in := notifications.HourInWindow(hour, start, end)
			fmt.Printf("Local hour in %s: %02d\nWindow: %02d-%02d\nIn window: %s\n", tz, hour, start, end, yesNo(in))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone name")
	cmd.Flags().IntVar(&start, "start", 0, "Window start hour (0-23)")
	cmd.Flags().IntVar(&end, "end", 23, "Window end hour (0-23)")
	cmd.Flags().StringVar(&at, "at", "", "Evaluate at this RFC3339 instant instead of now")
	return cmd
}

// --------------------------------------------------------------------------
// log command
// --------------------------------------------------------------------------

func logCmd() *cobra.Command {
	var (
		recent int
		path   string
	)
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the latest rows of the local SQLite notification log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if recent <= 0 {
				return fmt.Errorf("--recent must be positive, got %d", recent)
			}
			show := func(ctx context.Context, path string) error {
				sink, err := sqlitelog.Open(ctx, path)
				if err != nil {
					return err
				}
				defer sink.Close()

				entries, err := sink.Recent(ctx, recent)
				if err != nil {
					return err
				}
				printEntries(os.Stdout, entries)
				return nil
			}
			if path != "" {
				return show(cmd.Context(), path)
			}
			return withConfig(func(ctx context.Context, cfg *config.Config) error {
				return show(ctx, cfg.LogSinkPath)
			})
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 20, "Number of rows to show, newest first")
	cmd.Flags().StringVar(&path, "path", "", "SQLite file to read instead of LOG_SINK_PATH")
	return cmd
}

func printEntries(w io.Writer, entries []sqlitelog.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tUSER\tMETHOD\tDELIVERED\tMESSAGE\tERROR\tCODE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.UserID, e.DeliveryMethod,
			yesNo(e.MessageDelivered), e.Message, orDash(e.Error), orDash(e.ErrorCode))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d rows\n", len(entries))
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// withConfig handles config loading, log level, and context cancellation.
func withConfig(fn func(ctx context.Context, cfg *config.Config) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	return fn(ctx, cfg)
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
