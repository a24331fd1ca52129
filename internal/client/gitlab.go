package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/middleware"
)

const (
	// DefaultPageSize is the number of records requested per list page
	DefaultPageSize = 100

	// MaxPages bounds list pagination against a misbehaving server
	MaxPages = 10000

	// retryMaxElapsed bounds the total time spent retrying one read
	retryMaxElapsed = 30 * time.Second

	// maxErrorBody is how much of an error response body is kept
	maxErrorBody = 512
)

// GitLabClient implements IssueStore against the GitLab REST v4 API
type GitLabClient struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	newBackOff func() backoff.BackOff
}

// NewGitLabClient creates a new GitLab client instance
func NewGitLabClient(cfg *config.Config) *GitLabClient {
	slog.Debug("Initializing GitLab client",
		"base_url", cfg.APIBaseURL(),
		"skip_tls", cfg.SkipTLS,
		"token_configured", cfg.GitLabToken != "",
		"sudo", cfg.Sudo,
	)

	var base http.RoundTripper = http.DefaultTransport

	// Check if TLS verification should be skipped
	if cfg.SkipTLS {
		slog.Warn("TLS verification disabled for GitLab client")
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		base = transport
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: middleware.NewAuthTransport(cfg.GitLabToken, cfg.Sudo,
			middleware.NewLoggingTransport(base)),
	}

	slog.Info("GitLab client initialized successfully", "base_url", cfg.APIBaseURL())

	return &GitLabClient{
		httpClient: httpClient,
		baseURL:    cfg.APIBaseURL(),
		pageSize:   pageSize,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// issueRequest represents the request body for creating/updating a GitLab issue
type issueRequest struct {
	Title       string  `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	AssigneeID  *int    `json:"assignee_id,omitempty"`
	Labels      *string `json:"labels,omitempty"`
	StateEvent  string  `json:"state_event,omitempty"`
}

// createRequest sends every field, so description and labels are set even
// when empty. The assignee is omitted when there is none.
func createRequest(f IssueFields) issueRequest {
	req := issueRequest{
		Title:       f.Title,
		Description: &f.Description,
		Labels:      &f.Labels,
		StateEvent:  f.StateEvent,
	}
	if f.AssigneeID > 0 {
		req.AssigneeID = &f.AssigneeID
	}
	return req
}

// updateRequest is createRequest with the assignee always present; an
// assignee_id of 0 unassigns the issue.
func updateRequest(f IssueFields) issueRequest {
	req := createRequest(f)
	req.AssigneeID = &f.AssigneeID
	return req
}

// FindProject resolves a project by its path including namespace
func (g *GitLabClient) FindProject(ctx context.Context, namespacePath string) (*Project, error) {
	slog.Debug("Fetching GitLab project", "project", namespacePath)

	endpoint := fmt.Sprintf("%s/projects/%s", g.baseURL, url.PathEscape(namespacePath))

	var project Project
	if err := g.getJSON(ctx, "find project", endpoint, &project); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			slog.Error("GitLab project not found", "project", namespacePath)
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, namespacePath)
		}
		slog.Error("Failed to fetch GitLab project", "error", err, "project", namespacePath)
		return nil, err
	}

	slog.Debug("GitLab project found", "project", namespacePath, "project_id", project.ID)
	return &project, nil
}

// ListProjectMembers returns every member of the project, inherited ones included
func (g *GitLabClient) ListProjectMembers(ctx context.Context, projectID int) ([]Member, error) {
	path := fmt.Sprintf("/projects/%d/members/all", projectID)

	members, err := listAll[Member](ctx, g, "list members", path, url.Values{})
	if err != nil {
		slog.Error("Failed to list project members", "error", err, "project_id", projectID)
		return nil, err
	}

	slog.Debug("Project members fetched", "project_id", projectID, "count", len(members))
	return members, nil
}

// ListAllIssues pages through every issue of the project and returns them keyed by IID
func (g *GitLabClient) ListAllIssues(ctx context.Context, projectID int) (map[int]*Issue, error) {
	path := fmt.Sprintf("/projects/%d/issues", projectID)
	params := url.Values{
		"scope":    {"all"},
		"order_by": {"created_at"},
		"sort":     {"asc"},
	}

	issues, err := listAll[Issue](ctx, g, "list issues", path, params)
	if err != nil {
		slog.Error("Failed to list project issues", "error", err, "project_id", projectID)
		return nil, err
	}

	byIID := make(map[int]*Issue, len(issues))
	for i := range issues {
		byIID[issues[i].IID] = &issues[i]
	}

	slog.Debug("Project issues fetched", "project_id", projectID, "count", len(byIID))
	return byIID, nil
}

// CreateIssue creates a new GitLab issue and returns issue details
func (g *GitLabClient) CreateIssue(ctx context.Context, projectID int, fields IssueFields) (*Issue, error) {
	slog.Debug("Creating GitLab issue",
		"project_id", projectID,
		"title", fields.Title,
		"description_length", len(fields.Description),
	)

	endpoint := fmt.Sprintf("%s/projects/%d/issues", g.baseURL, projectID)

	var issue Issue
	if err := g.sendJSON(ctx, "create issue", http.MethodPost, endpoint, createRequest(fields), &issue); err != nil {
		slog.Error("Failed to create GitLab issue", "error", err, "project_id", projectID)
		return nil, err
	}

	slog.Debug("GitLab issue created", "project_id", projectID, "iid", issue.IID)
	return &issue, nil
}

// UpdateIssue overwrites the fields of the issue with the given IID
func (g *GitLabClient) UpdateIssue(ctx context.Context, projectID, iid int, fields IssueFields) error {
	slog.Debug("Updating GitLab issue",
		"project_id", projectID,
		"iid", iid,
		"state_event", fields.StateEvent,
	)

	endpoint := fmt.Sprintf("%s/projects/%d/issues/%d", g.baseURL, projectID, iid)

	if err := g.sendJSON(ctx, "update issue", http.MethodPut, endpoint, updateRequest(fields), nil); err != nil {
		slog.Error("Failed to update GitLab issue", "error", err, "project_id", projectID, "iid", iid)
		return err
	}

	return nil
}

// CloseIssue closes a GitLab issue, optionally overriding its title and description
func (g *GitLabClient) CloseIssue(ctx context.Context, issue *Issue, extra *IssueFields) error {
	slog.Debug("Closing GitLab issue", "project_id", issue.ProjectID, "iid", issue.IID)

	req := issueRequest{StateEvent: StateEventClose}
	if extra != nil {
		req.Title = extra.Title
		if extra.Description != "" {
			req.Description = &extra.Description
		}
	}

	endpoint := fmt.Sprintf("%s/projects/%d/issues/%d", g.baseURL, issue.ProjectID, issue.IID)

	if err := g.sendJSON(ctx, "close issue", http.MethodPut, endpoint, req, nil); err != nil {
		slog.Error("Failed to close GitLab issue", "error", err, "project_id", issue.ProjectID, "iid", issue.IID)
		return err
	}

	issue.State = StateClosed
	return nil
}

// listAll requests successive pages of path until a page comes back short
func listAll[T any](ctx context.Context, g *GitLabClient, op, path string, params url.Values) ([]T, error) {
	var all []T

	for page := 1; page <= MaxPages; page++ {
		params.Set("page", strconv.Itoa(page))
		params.Set("per_page", strconv.Itoa(g.pageSize))

		from := (page-1)*g.pageSize + 1
		slog.Debug("Fetching page from GitLab",
			"op", op,
			"range", fmt.Sprintf("%d-%d", from, from+g.pageSize-1),
		)

		var batch []T
		if err := g.getJSON(ctx, op, g.baseURL+path+"?"+params.Encode(), &batch); err != nil {
			return nil, fmt.Errorf("%s page=%d: %w", op, page, err)
		}

		all = append(all, batch...)
		if len(batch) < g.pageSize {
			return all, nil
		}
	}

	return nil, fmt.Errorf("%s: more than %d pages", op, MaxPages)
}

// getJSON performs an idempotent GET, retrying transient failures
func (g *GitLabClient) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++

		resp, err := g.send(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			slog.Warn("GitLab request failed, retrying", "op", op, "attempt", attempt, "error", err)
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := newAPIError(op, resp)
			if retryableStatus(resp.StatusCode) {
				slog.Warn("GitLab returned a transient error, retrying",
					"op", op,
					"attempt", attempt,
					"status_code", resp.StatusCode,
				)
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("%s: error decoding response: %w", op, err))
		}
		return nil
	}, backoff.WithContext(g.newBackOff(), ctx))
}

// sendJSON performs a single non-idempotent request; it is never retried
// because a repeated create would allocate another IID
func (g *GitLabClient) sendJSON(ctx context.Context, op, method, endpoint string, body, out interface{}) error {
	resp, err := g.send(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(op, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: error decoding response: %w", op, err)
	}
	return nil
}

func (g *GitLabClient) send(ctx context.Context, method, endpoint string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		reader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

func newAPIError(op string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
