package service

import (
	"context"
	"log/slog"

	"mantis2gitlab/internal/client"
)

// DryRunStore reads from GitLab but only simulates writes. Simulated issues
// get sequential IIDs after the highest existing one, the way GitLab would
// number them.
type DryRunStore struct {
	client.IssueStore
	nextIID int
}

// NewDryRunStore wraps store so that nothing is written
func NewDryRunStore(store client.IssueStore) *DryRunStore {
	return &DryRunStore{IssueStore: store, nextIID: 1}
}

// ListAllIssues fetches the real issues and positions the simulated IID counter
func (d *DryRunStore) ListAllIssues(ctx context.Context, projectID int) (map[int]*client.Issue, error) {
	issues, err := d.IssueStore.ListAllIssues(ctx, projectID)
	if err != nil {
		return nil, err
	}

	for iid := range issues {
		if iid >= d.nextIID {
			d.nextIID = iid + 1
		}
	}

	slog.Debug("Dry run IID counter positioned", "project_id", projectID, "next_iid", d.nextIID)
	return issues, nil
}

func (d *DryRunStore) CreateIssue(ctx context.Context, projectID int, fields client.IssueFields) (*client.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issue := &client.Issue{
		IID:         d.nextIID,
		ProjectID:   projectID,
		Title:       fields.Title,
		Description: fields.Description,
		State:       client.StateOpened,
	}
	d.nextIID++

	slog.Info("Dry run: would create issue", "project_id", projectID, "iid", issue.IID, "title", fields.Title)
	return issue, nil
}

func (d *DryRunStore) UpdateIssue(ctx context.Context, projectID, iid int, fields client.IssueFields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("Dry run: would update issue",
		"project_id", projectID,
		"iid", iid,
		"state_event", fields.StateEvent,
	)
	return nil
}

func (d *DryRunStore) CloseIssue(ctx context.Context, issue *client.Issue, extra *client.IssueFields) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("Dry run: would close issue", "project_id", issue.ProjectID, "iid", issue.IID)
	issue.State = client.StateClosed
	if extra != nil && extra.Title != "" {
		issue.Title = extra.Title
	}
	return nil
}
