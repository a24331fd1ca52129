// Package cli wires the mantis2gitlab command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/notify"
	"mantis2gitlab/internal/report"
	"mantis2gitlab/internal/repository"
	"mantis2gitlab/internal/service"
)

// Version is reported by --version
const Version = "0.3.0"

type runFunc func(ctx context.Context, cfg *config.Config) error

// NewRootCommand builds the mantis2gitlab command
func NewRootCommand() *cobra.Command {
	return newRootCommand(runImport)
}

func newRootCommand(run runFunc) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "mantis2gitlab",
		Short: "Import Mantis issues into a GitLab project",
		Long: `mantis2gitlab reads a Mantis CSV export and creates, updates or closes GitLab
issues so that GitLab issue #N matches Mantis issue N. Runs are idempotent and can
be resumed with --from. Missing Mantis numbers are filled with closed placeholders.

Every flag can also be set as M2GL_<FLAG> in the environment or in a .env file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(v)
			setupLogging(cfg)

			if err := cfg.Validate(); err != nil {
				return err
			}

			slog.Debug("Configuration loaded",
				"log_level", cfg.LogLevel,
				"gitlab_url", cfg.GitLabURL,
				"project", cfg.ProjectPath,
				"sudo", cfg.Sudo,
				"from", cfg.FromID,
				"dry_run", cfg.DryRun,
				"on_update_error", cfg.UpdateFailurePolicy,
				"lock_enabled", cfg.RedisURL != "",
				"notify_enabled", cfg.NotifyURL != "",
			)

			return run(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringP(config.KeyInput, "i", "", "CSV file exported from Mantis (required)")
	flags.StringP(config.KeyConfig, "c", "", "JSON or YAML file mapping users, labels and statuses (required)")
	flags.StringP(config.KeyGitLabURL, "g", "", "GitLab URL, e.g. https://gitlab.example.com (required)")
	flags.StringP(config.KeyProject, "p", "", "GitLab project path including namespace (required)")
	flags.StringP(config.KeyToken, "t", "", "private token of a GitLab admin user (required)")
	flags.StringP(config.KeySudo, "s", "", "GitLab username the import is performed as (required)")
	flags.IntP(config.KeyFrom, "f", 0, "first Mantis issue number to import")
	flags.Bool(config.KeyDryRun, false, "report what would change without writing to GitLab")
	flags.String(config.KeyOnUpdateError, config.UpdatePolicyAbort, "on a failed update: abort or continue")
	flags.Bool(config.KeyStrictUsers, false, "fail on Mantis users missing from the mapping instead of using the fallback user")
	flags.Int(config.KeyPageSize, client.DefaultPageSize, "issues fetched per GitLab API page (1-100)")
	flags.String(config.KeyRedisURL, "", "Redis URL for the per-project run lock, e.g. redis://localhost:6379/0")
	flags.Duration(config.KeyLockTTL, 2*time.Hour, "run lock expiry")
	flags.String(config.KeyNotifyURL, "", "webhook receiving the run summary as JSON")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn or error")
	flags.Bool(config.KeySkipTLS, false, "skip TLS certificate verification")
	flags.Duration(config.KeyHTTPTimeout, 30*time.Second, "GitLab request timeout")

	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}

	return cmd
}

// setupLogging installs the slog default handler. Logs go to stderr so they
// never mix with the progress output on stdout.
func setupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.GetLogLevel(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("2006-01-02 15:04:05"))
			}
			return a
		},
	})))
}

// runImport wires the GitLab client, optional lock and notifier, and runs
// the import
func runImport(ctx context.Context, cfg *config.Config) error {
	reporter := report.NewConsole()

	gitlab := client.NewGitLabClient(cfg)
	var store client.IssueStore = gitlab
	if cfg.DryRun {
		store = service.NewDryRunStore(gitlab)
	}

	var lock repository.RunLock
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to parse Redis URL", "error", err)
			return &config.ConfigError{Field: config.KeyRedisURL, Message: err.Error()}
		}

		rdb := redis.NewClient(opt)
		defer func() { _ = rdb.Close() }()

		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "error", err, "addr", opt.Addr)
			return fmt.Errorf("cannot connect to Redis: %w", err)
		}

		if cfg.DryRun {
			slog.Debug("Dry run, run lock not taken")
		} else {
			lock = repository.NewRedisLock(rdb)
		}
	}

	var notifier notify.Notifier
	if cfg.NotifyURL != "" {
		notifier = notify.NewWebhook(cfg.NotifyURL)
	}

	importer := service.NewImporter(store, lock, notifier, reporter, cfg)
	summary, err := importer.Run(ctx)

	reporter.Progress("Updated: %d, Inserted: %d, Closed: %d, Skipped: %d, Failed: %d, Warnings: %d",
		summary.Updated, summary.Inserted, summary.Closed, summary.Skipped, summary.Failed, summary.Warnings)

	if err != nil {
		return err
	}
	if !summary.OK() {
		return fmt.Errorf("%d Mantis issue(s) could not be imported", summary.Failed)
	}

	reporter.Done()
	return nil
}

// Execute runs the root command and returns the process exit code
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		_, _ = color.New(color.FgRed).Fprintln(os.Stderr, "Error: "+err.Error())
		return 1
	}
	return 0
}
