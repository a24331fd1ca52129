package service

import (
	"context"
	"errors"
	"log/slog"

	"mantis2gitlab/internal/config"
)

// UpdatePolicy implements FailurePolicy from the configured update policy
type UpdatePolicy struct {
	config *config.Config
}

// NewUpdatePolicy creates a new failure policy instance
func NewUpdatePolicy(cfg *config.Config) *UpdatePolicy {
	return &UpdatePolicy{config: cfg}
}

// AbortOnUpdateFailure stops the run unless the policy is "continue".
// Cancellation always stops the run.
func (p *UpdatePolicy) AbortOnUpdateFailure(issueID int, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if p.config.UpdateFailurePolicy == config.UpdatePolicyContinue {
		slog.Debug("Continuing after update failure", "issue_id", issueID, "error", err)
		return false
	}

	return true
}
