package service

import (
	"context"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/source"
)

// Snapshot holds the GitLab issues of the project keyed by IID. It is loaded
// once per run and updated in place as issues are created.
type Snapshot map[int]*client.Issue

// Summary counts the outcome of a run
type Summary struct {
	Updated  int `json:"updated"`
	Inserted int `json:"inserted"`
	Closed   int `json:"closed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
}

// OK reports whether every record was imported
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Reconciler brings a GitLab project in line with a Mantis export
type Reconciler interface {
	// Reconcile updates or inserts every issue in ascending id order. It
	// returns a non-nil summary even when it stops on an error.
	Reconcile(ctx context.Context, projectID int, snapshot Snapshot, issues []source.Issue) (*Summary, error)
}

// ImportService runs the complete import workflow
type ImportService interface {
	// Run loads the inputs, validates users and reconciles the project
	Run(ctx context.Context) (*Summary, error)
}

// FailurePolicy decides how the run reacts to a failed update
type FailurePolicy interface {
	// AbortOnUpdateFailure reports whether a failed update stops the run
	AbortOnUpdateFailure(issueID int, err error) bool
}
