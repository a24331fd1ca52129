package client

import (
	"context"
	"errors"
	"fmt"
)

// GitLab issue states
const (
	StateOpened   = "opened"
	StateClosed   = "closed"
	StateReopened = "reopened"
)

// State transitions accepted by the issue update endpoint
const (
	StateEventClose  = "close"
	StateEventReopen = "reopen"
)

// ErrProjectNotFound is returned when the project path does not resolve
var ErrProjectNotFound = errors.New("project not found")

// Issue represents a GitLab issue
type Issue struct {
	ID          int      `json:"id"`
	IID         int      `json:"iid"`
	ProjectID   int      `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	State       string   `json:"state"`
	Labels      []string `json:"labels"`
	Assignee    *Member  `json:"assignee,omitempty"`
	WebURL      string   `json:"web_url"`
}

// Closed reports whether the issue is in the closed state
func (i *Issue) Closed() bool {
	return i.State == StateClosed
}

// Project represents a GitLab project
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

// Member represents a GitLab project member
type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
}

// IssueFields holds the writable fields of an issue. Zero values are not
// sent, except for Description and Labels on full create/update requests.
type IssueFields struct {
	Title       string
	Description string
	AssigneeID  int
	Labels      string // comma separated
	StateEvent  string
}

// APIError is returned for non-success responses from the GitLab API
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: received non-success status code: %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: received non-success status code: %d: %s", e.Op, e.StatusCode, e.Body)
}

// IssueStore defines the GitLab operations used by the import
type IssueStore interface {
	// FindProject resolves a project by its path including namespace
	FindProject(ctx context.Context, namespacePath string) (*Project, error)

	// ListProjectMembers returns every member of the project, inherited ones included
	ListProjectMembers(ctx context.Context, projectID int) ([]Member, error)

	// ListAllIssues returns every issue of the project keyed by IID
	ListAllIssues(ctx context.Context, projectID int) (map[int]*Issue, error)

	// CreateIssue creates a new issue and returns it with its assigned IID
	CreateIssue(ctx context.Context, projectID int, fields IssueFields) (*Issue, error)

	// UpdateIssue overwrites the fields of the issue with the given IID
	UpdateIssue(ctx context.Context, projectID, iid int, fields IssueFields) error

	// CloseIssue closes the issue, applying the optional title/description overrides
	CloseIssue(ctx context.Context, issue *Issue, extra *IssueFields) error
}
