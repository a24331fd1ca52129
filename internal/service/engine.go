package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/directory"
	"mantis2gitlab/internal/mapper"
	"mantis2gitlab/internal/report"
	"mantis2gitlab/internal/source"
)

// Engine implements Reconciler. Every remote call is awaited before the next
// one starts: GitLab hands out IIDs in creation order, so issuing creates
// concurrently would break the numbering the back-fill relies on.
type Engine struct {
	store    client.IssueStore
	mapping  *config.Mapping
	users    *directory.Directory
	policy   FailurePolicy
	reporter report.Reporter
	config   *config.Config
}

// NewEngine creates a new reconciliation engine instance
func NewEngine(
	store client.IssueStore,
	mapping *config.Mapping,
	users *directory.Directory,
	policy FailurePolicy,
	reporter report.Reporter,
	cfg *config.Config,
) *Engine {
	return &Engine{
		store:    store,
		mapping:  mapping,
		users:    users,
		policy:   policy,
		reporter: reporter,
		config:   cfg,
	}
}

// Reconcile walks issues in ascending id order, updating those whose number
// already exists in snapshot and inserting the rest
func (e *Engine) Reconcile(ctx context.Context, projectID int, snapshot Snapshot, issues []source.Issue) (*Summary, error) {
	summary := &Summary{}

	ordered := make([]source.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.ID >= e.config.FromID {
			ordered = append(ordered, issue)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	slog.Info("Starting reconciliation",
		"project_id", projectID,
		"issues", len(ordered),
		"existing", len(snapshot),
		"from", e.config.FromID,
	)

	for _, issue := range ordered {
		if err := ctx.Err(); err != nil {
			slog.Warn("Reconciliation interrupted", "issue_id", issue.ID, "error", err)
			return summary, err
		}

		e.reporter.Progress("Importing: #%d - %s ...", issue.ID, issue.Title)

		if existing := snapshot[issue.ID]; existing != nil {
			if err := e.update(ctx, projectID, existing, issue, summary); err != nil {
				return summary, err
			}
			continue
		}

		if err := e.insert(ctx, projectID, snapshot, issue, summary); err != nil {
			return summary, err
		}
	}

	slog.Info("Reconciliation finished",
		"project_id", projectID,
		"updated", summary.Updated,
		"inserted", summary.Inserted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)

	return summary, nil
}

// update overwrites an existing issue and moves it to the state of the record.
// A returned error stops the run.
func (e *Engine) update(ctx context.Context, projectID int, existing *client.Issue, issue source.Issue, summary *Summary) error {
	fields := mapper.IssueFields(issue, e.mapping, e.users)

	closed := mapper.IsClosed(issue, e.mapping)
	if closed {
		fields.StateEvent = client.StateEventClose
	} else {
		fields.StateEvent = client.StateEventReopen
	}

	if err := e.store.UpdateIssue(ctx, projectID, existing.IID, fields); err != nil {
		summary.Failed++
		e.reporter.Error("#%d: Failed to update. %v", issue.ID, err)

		if e.policy.AbortOnUpdateFailure(issue.ID, err) {
			slog.Error("Aborting run after update failure", "issue_id", issue.ID, "error", err)
			return fmt.Errorf("update issue #%d: %w", issue.ID, err)
		}
		return nil
	}

	if closed {
		existing.State = client.StateClosed
	} else {
		existing.State = client.StateReopened
	}

	summary.Updated++
	e.reporter.Success("#%d: Updated successfully.", issue.ID)
	return nil
}

// insert back-fills the numbering gap below the record, then creates it.
// Only cancellation is returned as an error; create failures are counted
// against the record and the run goes on.
func (e *Engine) insert(ctx context.Context, projectID int, snapshot Snapshot, issue source.Issue, summary *Summary) error {
	if err := e.backfill(ctx, projectID, snapshot, issue.ID, summary); err != nil {
		summary.Failed++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.reporter.Error("%d: Not inserted, the numbering gap below it could not be filled.", issue.ID)
		return nil
	}

	created, err := e.store.CreateIssue(ctx, projectID, mapper.IssueFields(issue, e.mapping, e.users))
	if err != nil {
		summary.Failed++
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.reporter.Error("%d: Failed to insert. %v", issue.ID, err)
		return nil
	}

	snapshot[created.IID] = created
	summary.Inserted++
	e.checkNumbering(issue.ID, created.IID, summary)

	if !mapper.IsClosed(issue, e.mapping) {
		e.reporter.Success("%d: Inserted successfully. #%d", issue.ID, created.IID)
		return nil
	}

	e.close(ctx, issue.ID, created, nil, summary)
	return nil
}

// backfill creates one closed placeholder for every number between the
// closest existing issue below id and id itself. The boundary is searched
// downward from id-1; the placeholders are then created upward so GitLab
// assigns them b+1 ... id-1.
func (e *Engine) backfill(ctx context.Context, projectID int, snapshot Snapshot, id int, summary *Summary) error {
	boundary := id - 1
	for boundary >= 1 && snapshot[boundary] == nil {
		boundary--
	}

	missing := id - 1 - boundary
	if missing <= 0 {
		return nil
	}

	slog.Debug("Back-filling numbering gap",
		"issue_id", id,
		"boundary", boundary,
		"placeholders", missing,
	)

	if missing == 1 {
		e.reporter.Warn("Skipping Missing Mantis Issue #%d ...", id-1)
	} else {
		e.reporter.Warn("Skipping Missing Mantis Issues #%d to #%d ...", boundary+1, id-1)
	}

	for expected := boundary + 1; expected < id; expected++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		placeholder, err := e.store.CreateIssue(ctx, projectID, client.IssueFields{Title: mapper.SkippedTitle})
		if err != nil {
			e.reporter.Error("%d: Failed to insert. %v", expected, err)
			return fmt.Errorf("create placeholder for #%d: %w", expected, err)
		}

		snapshot[placeholder.IID] = placeholder
		summary.Skipped++
		e.checkNumbering(expected, placeholder.IID, summary)

		e.close(ctx, expected, placeholder, mapper.SkippedFields(placeholder.IID, e.mapping), summary)
	}

	return nil
}

// close closes a freshly created issue. Failure leaves the issue open and is
// only a warning.
func (e *Engine) close(ctx context.Context, id int, created *client.Issue, extra *client.IssueFields, summary *Summary) {
	if err := e.store.CloseIssue(ctx, created, extra); err != nil {
		summary.Warnings++
		slog.Warn("Issue created but not closed", "issue_id", id, "iid", created.IID, "error", err)
		e.reporter.Warn("%d: Inserted successfully but failed to close. #%d", id, created.IID)
		return
	}

	summary.Closed++
	e.reporter.Success("%d: Inserted and closed successfully. #%d", id, created.IID)
}

func (e *Engine) checkNumbering(expected, iid int, summary *Summary) {
	if expected == iid {
		return
	}
	summary.Warnings++
	slog.Warn("GitLab assigned an unexpected IID", "expected", expected, "iid", iid)
	e.reporter.Warn("%d: GitLab assigned #%d, numbering no longer matches Mantis.", expected, iid)
}
