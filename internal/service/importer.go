package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/directory"
	"mantis2gitlab/internal/notify"
	"mantis2gitlab/internal/report"
	"mantis2gitlab/internal/repository"
	"mantis2gitlab/internal/source"
)

// Importer implements ImportService
type Importer struct {
	store    client.IssueStore
	lock     repository.RunLock // optional
	notifier notify.Notifier    // optional
	reporter report.Reporter
	config   *config.Config
}

// NewImporter creates a new import service instance. lock and notifier may be nil.
func NewImporter(
	store client.IssueStore,
	lock repository.RunLock,
	notifier notify.Notifier,
	reporter report.Reporter,
	cfg *config.Config,
) *Importer {
	return &Importer{
		store:    store,
		lock:     lock,
		notifier: notifier,
		reporter: reporter,
		config:   cfg,
	}
}

// Run executes the import and, when a notifier is configured, posts the
// outcome. Notification failures are logged and never change the result.
func (i *Importer) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.New().String()
	started := time.Now()

	slog.Info("Starting import",
		"run_id", runID,
		"project", i.config.ProjectPath,
		"input", i.config.InputPath,
		"from", i.config.FromID,
		"dry_run", i.config.DryRun,
	)

	summary, err := i.run(ctx)
	if summary == nil {
		summary = &Summary{}
	}

	if i.notifier != nil {
		i.notify(ctx, runID, started, summary, err)
	}

	return summary, err
}

func (i *Importer) run(ctx context.Context) (*Summary, error) {
	if i.config.DryRun {
		i.reporter.Warn("Dry run: no changes will be written to GitLab.")
	}

	i.reporter.Progress("Reading configuration...")
	fallbackUser := i.config.Sudo
	if i.config.StrictUsers {
		fallbackUser = ""
	}
	mapping, err := config.LoadMapping(i.config.MappingPath, fallbackUser)
	if err != nil {
		return nil, err
	}

	i.reporter.Progress("Reading Mantis export file...")
	issues, err := source.ReadFile(i.config.InputPath, i.config.FromID)
	if err != nil {
		return nil, err
	}
	slog.Info("Mantis export loaded", "issues", len(issues), "from", i.config.FromID)

	i.reporter.Progress("Fetching project from GitLab...")
	project, err := i.store.FindProject(ctx, i.config.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("cannot find GitLab project: %s: %w", i.config.ProjectPath, err)
	}

	i.reporter.Progress("Fetching project members...")
	members, err := i.store.ListProjectMembers(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}

	users := directory.New(mapping)
	users.BindMembers(members)

	i.reporter.Progress("Validating Mantis Users...")
	if err := users.Validate(issues); err != nil {
		var validationErr *directory.ValidationError
		if errors.As(err, &validationErr) {
			for _, username := range validationErr.Usernames {
				i.reporter.Error("Cannot map Mantis user with username: %s", username)
			}
		}
		return nil, err
	}

	if i.lock != nil {
		token, err := i.lock.Acquire(ctx, i.config.ProjectPath, i.config.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			// Release even when ctx was cancelled
			if err := i.lock.Release(context.WithoutCancel(ctx), i.config.ProjectPath, token); err != nil {
				slog.Warn("Failed to release run lock", "error", err, "project", i.config.ProjectPath)
			}
		}()
	}

	i.reporter.Progress("Fetching project issues from GitLab...")
	existing, err := i.store.ListAllIssues(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project issues: %w", err)
	}
	i.reporter.Progress("Fetched %d GitLab issues.", len(existing))

	i.reporter.Progress("Importing Mantis issues into GitLab from #%d ...", i.config.FromID)
	engine := NewEngine(i.store, mapping, users, NewUpdatePolicy(i.config), i.reporter, i.config)
	return engine.Reconcile(ctx, project.ID, Snapshot(existing), issues)
}

func (i *Importer) notify(ctx context.Context, runID string, started time.Time, summary *Summary, runErr error) {
	payload := notify.Payload{
		RunID:      runID,
		Project:    i.config.ProjectPath,
		DryRun:     i.config.DryRun,
		Success:    runErr == nil && summary.OK(),
		Updated:    summary.Updated,
		Inserted:   summary.Inserted,
		Closed:     summary.Closed,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		Warnings:   summary.Warnings,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}

	if err := i.notifier.Notify(context.WithoutCancel(ctx), payload); err != nil {
		slog.Warn("Failed to send run notification", "error", err, "run_id", runID)
	}
}
