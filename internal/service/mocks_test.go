//go:build unit

package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/notify"
)

// MockIssueStore is a testify mock of client.IssueStore
type MockIssueStore struct {
	mock.Mock
}

func (m *MockIssueStore) FindProject(ctx context.Context, namespacePath string) (*client.Project, error) {
	args := m.Called(ctx, namespacePath)
	project, _ := args.Get(0).(*client.Project)
	return project, args.Error(1)
}

func (m *MockIssueStore) ListProjectMembers(ctx context.Context, projectID int) ([]client.Member, error) {
	args := m.Called(ctx, projectID)
	members, _ := args.Get(0).([]client.Member)
	return members, args.Error(1)
}

func (m *MockIssueStore) ListAllIssues(ctx context.Context, projectID int) (map[int]*client.Issue, error) {
	args := m.Called(ctx, projectID)
	issues, _ := args.Get(0).(map[int]*client.Issue)
	return issues, args.Error(1)
}

func (m *MockIssueStore) CreateIssue(ctx context.Context, projectID int, fields client.IssueFields) (*client.Issue, error) {
	args := m.Called(ctx, projectID, fields)
	issue, _ := args.Get(0).(*client.Issue)
	return issue, args.Error(1)
}

func (m *MockIssueStore) UpdateIssue(ctx context.Context, projectID, iid int, fields client.IssueFields) error {
	args := m.Called(ctx, projectID, iid, fields)
	return args.Error(0)
}

func (m *MockIssueStore) CloseIssue(ctx context.Context, issue *client.Issue, extra *client.IssueFields) error {
	args := m.Called(ctx, issue, extra)
	return args.Error(0)
}

// MockRunLock is a testify mock of repository.RunLock
type MockRunLock struct {
	mock.Mock
}

func (m *MockRunLock) Acquire(ctx context.Context, project string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, project, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockRunLock) Release(ctx context.Context, project, token string) error {
	args := m.Called(ctx, project, token)
	return args.Error(0)
}

// MockNotifier is a testify mock of notify.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, payload notify.Payload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}
