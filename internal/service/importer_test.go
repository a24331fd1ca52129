//go:build unit

package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/directory"
	"mantis2gitlab/internal/notify"
	"mantis2gitlab/internal/report"
	"mantis2gitlab/internal/report/reporttest"
	"mantis2gitlab/internal/repository"
)

const testMappingJSON = `{
  "users": {
    "alice": {"name": "Alice", "gl_username": "alice.gl"},
    "bob":   {"name": "Bob", "gl_username": "bob.gl"}
  },
  "category_labels": {"UI": "ui"},
  "priority_labels": {},
  "severity_labels": {},
  "closed_statuses": {"closed": true}
}`

const testCSVHeader = "Id,Summary,Description,Reporter,Assigned To,Status,Created,Updated,Category,Priority,Severity,Info,Notes\n"

// writeInputs writes a mapping file and a CSV export and points cfg at them
func writeInputs(t *testing.T, cfg *config.Config, mapping, csv string) {
	dir := t.TempDir()
	cfg.MappingPath = filepath.Join(dir, "config.json")
	cfg.InputPath = filepath.Join(dir, "issues.csv")
	require.NoError(t, os.WriteFile(cfg.MappingPath, []byte(mapping), 0o600))
	require.NoError(t, os.WriteFile(cfg.InputPath, []byte(csv), 0o600))
}

func getImporterConfig(t *testing.T, csv string) *config.Config {
	cfg := getTestConfig()
	cfg.Sudo = "root"
	cfg.LockTTL = time.Hour
	writeInputs(t, cfg, testMappingJSON, csv)
	return cfg
}

func expectDiscovery(store *MockIssueStore, existing map[int]*client.Issue) {
	store.On("FindProject", mock.Anything, "mycorp/myproj").
		Return(&client.Project{ID: testProjectID, PathWithNamespace: "mycorp/myproj"}, nil).
		Once()
	store.On("ListProjectMembers", mock.Anything, testProjectID).
		Return([]client.Member{{ID: 11, Username: "alice.gl"}, {ID: 12, Username: "bob.gl"}}, nil).
		Once()
	store.On("ListAllIssues", mock.Anything, testProjectID).
		Return(existing, nil).
		Once()
}

func TestImporter_Run(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+
		"2,Second,Body,alice,bob,closed,2014-01-01,2014-01-02,UI,,,,\n"+
		"1,First,Body,bob,,new,2014-01-01,2014-01-01,,,,,\n")

	store := &MockIssueStore{}
	expectDiscovery(store, map[int]*client.Issue{1: {ID: 101, IID: 1, ProjectID: testProjectID}})

	store.On("UpdateIssue", mock.Anything, testProjectID, 1, mock.MatchedBy(func(f client.IssueFields) bool {
		return f.Title == "First" && f.StateEvent == client.StateEventReopen && f.AssigneeID == 0
	})).Return(nil).Once()
	store.On("CreateIssue", mock.Anything, testProjectID, mock.MatchedBy(func(f client.IssueFields) bool {
		return f.Title == "Second" && f.AssigneeID == 12 && f.Labels == "ui"
	})).Return(&client.Issue{ID: 102, IID: 2, ProjectID: testProjectID}, nil).Once()
	store.On("CloseIssue", mock.Anything, withIID(2), (*client.IssueFields)(nil)).Return(nil).Once()

	lock := &MockRunLock{}
	lock.On("Acquire", mock.Anything, "mycorp/myproj", time.Hour).Return("token-1", nil).Once()
	lock.On("Release", mock.Anything, "mycorp/myproj", "token-1").Return(nil).Once()

	notifier := &MockNotifier{}
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(p notify.Payload) bool {
		return p.Success && p.Project == "mycorp/myproj" && p.Updated == 1 && p.Inserted == 1 && p.Closed == 1 && p.RunID != ""
	})).Return(nil).Once()

	recorder := reporttest.NewRecorder()
	importer := NewImporter(store, lock, notifier, recorder, cfg)

	summary, err := importer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Updated: 1, Inserted: 1, Closed: 1}, summary)
	assert.Contains(t, recorder.Messages(report.LevelProgress), "Fetched 1 GitLab issues.")
	assert.Contains(t, recorder.Messages(report.LevelSuccess), "#1: Updated successfully.")
	assert.Contains(t, recorder.Messages(report.LevelSuccess), "2: Inserted and closed successfully. #2")

	store.AssertExpectations(t)
	lock.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestImporter_Run_UserValidationFails(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+
		"1,First,,carol,dave,new,,,,,,,\n"+
		"2,Second,,dave,alice,new,,,,,,,\n"+
		"3,Third,,erin,,new,,,,,,,\n")
	cfg.StrictUsers = true

	store := &MockIssueStore{}
	store.On("FindProject", mock.Anything, "mycorp/myproj").
		Return(&client.Project{ID: testProjectID}, nil).
		Once()
	store.On("ListProjectMembers", mock.Anything, testProjectID).
		Return([]client.Member{{ID: 11, Username: "alice.gl"}}, nil).
		Once()

	lock := &MockRunLock{}
	recorder := reporttest.NewRecorder()
	importer := NewImporter(store, lock, nil, recorder, cfg)

	_, err := importer.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, directory.ErrUserValidation)

	// every unmapped name is listed, assignees first, without duplicates;
	// the blank assignee of #3 is not one of them
	assert.Equal(t, []string{
		"Cannot map Mantis user with username: dave",
		"Cannot map Mantis user with username: carol",
		"Cannot map Mantis user with username: erin",
	}, recorder.Messages(report.LevelError))

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "ListAllIssues", mock.Anything, mock.Anything)
	lock.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything)
}

func TestImporter_Run_StrictUsersAllowsUnassignedIssues(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+"1,First,,alice,,new,,,,,,,\n")
	cfg.StrictUsers = true

	store := &MockIssueStore{}
	expectDiscovery(store, map[int]*client.Issue{1: {ID: 101, IID: 1, ProjectID: testProjectID}})
	store.On("UpdateIssue", mock.Anything, testProjectID, 1, mock.MatchedBy(func(f client.IssueFields) bool {
		return f.Title == "First" && f.AssigneeID == 0
	})).Return(nil).Once()

	recorder := reporttest.NewRecorder()
	importer := NewImporter(store, nil, nil, recorder, cfg)

	summary, err := importer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Updated: 1}, summary)
	assert.Empty(t, recorder.Messages(report.LevelError))
	store.AssertExpectations(t)
}

func TestImporter_Run_FallbackUserCoversUnmappedNames(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+"1,First,,carol,dave,new,,,,,,,\n")

	store := &MockIssueStore{}
	expectDiscovery(store, map[int]*client.Issue{})
	store.On("CreateIssue", mock.Anything, testProjectID, titled("First")).
		Return(&client.Issue{IID: 1, ProjectID: testProjectID}, nil).
		Once()

	importer := NewImporter(store, nil, nil, reporttest.NewRecorder(), cfg)

	summary, err := importer.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Summary{Inserted: 1}, summary)
	store.AssertExpectations(t)
}

func TestImporter_Run_FatalErrors(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(t *testing.T, cfg *config.Config, store *MockIssueStore)
		expectedError string
		expectedIs    error
	}{
		{
			name: "mapping file unreadable",
			setup: func(t *testing.T, cfg *config.Config, store *MockIssueStore) {
				cfg.MappingPath = filepath.Join(t.TempDir(), "missing.json")
			},
			expectedError: "cannot read config file",
		},
		{
			name: "input file unreadable",
			setup: func(t *testing.T, cfg *config.Config, store *MockIssueStore) {
				cfg.InputPath = filepath.Join(t.TempDir(), "missing.csv")
			},
			expectedError: "cannot read input file",
		},
		{
			name: "project not found",
			setup: func(t *testing.T, cfg *config.Config, store *MockIssueStore) {
				store.On("FindProject", mock.Anything, "mycorp/myproj").
					Return(nil, client.ErrProjectNotFound).
					Once()
			},
			expectedError: "cannot find GitLab project: mycorp/myproj",
			expectedIs:    client.ErrProjectNotFound,
		},
		{
			name: "member listing fails",
			setup: func(t *testing.T, cfg *config.Config, store *MockIssueStore) {
				store.On("FindProject", mock.Anything, "mycorp/myproj").
					Return(&client.Project{ID: testProjectID}, nil).
					Once()
				store.On("ListProjectMembers", mock.Anything, testProjectID).
					Return(nil, errors.New("timeout")).
					Once()
			},
			expectedError: "failed to list project members",
		},
		{
			name: "issue listing fails",
			setup: func(t *testing.T, cfg *config.Config, store *MockIssueStore) {
				store.On("FindProject", mock.Anything, "mycorp/myproj").
					Return(&client.Project{ID: testProjectID}, nil).
					Once()
				store.On("ListProjectMembers", mock.Anything, testProjectID).
					Return([]client.Member{}, nil).
					Once()
				store.On("ListAllIssues", mock.Anything, testProjectID).
					Return(nil, &client.APIError{Op: "list issues", StatusCode: 500}).
					Once()
			},
			expectedError: "failed to list project issues",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getImporterConfig(t, testCSVHeader+"1,First,,alice,,new,,,,,,,\n")
			store := &MockIssueStore{}
			tt.setup(t, cfg, store)

			notifier := &MockNotifier{}
			notifier.On("Notify", mock.Anything, mock.MatchedBy(func(p notify.Payload) bool {
				return !p.Success && p.Error != ""
			})).Return(errors.New("webhook down")).Once()

			importer := NewImporter(store, nil, notifier, reporttest.NewRecorder(), cfg)

			summary, err := importer.Run(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
			if tt.expectedIs != nil {
				assert.ErrorIs(t, err, tt.expectedIs)
			}
			assert.Equal(t, &Summary{}, summary)

			store.AssertExpectations(t)
			store.AssertNotCalled(t, "CreateIssue", mock.Anything, mock.Anything, mock.Anything)
			notifier.AssertExpectations(t)
		})
	}
}

func TestImporter_Run_LockHeld(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+"1,First,,alice,,new,,,,,,,\n")

	store := &MockIssueStore{}
	store.On("FindProject", mock.Anything, "mycorp/myproj").
		Return(&client.Project{ID: testProjectID}, nil).
		Once()
	store.On("ListProjectMembers", mock.Anything, testProjectID).
		Return([]client.Member{}, nil).
		Once()

	lock := &MockRunLock{}
	lock.On("Acquire", mock.Anything, "mycorp/myproj", time.Hour).
		Return("", repository.ErrLockHeld).
		Once()

	importer := NewImporter(store, lock, nil, reporttest.NewRecorder(), cfg)

	_, err := importer.Run(context.Background())
	assert.ErrorIs(t, err, repository.ErrLockHeld)

	store.AssertNotCalled(t, "ListAllIssues", mock.Anything, mock.Anything)
	lock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	lock.AssertExpectations(t)
}

func TestImporter_Run_ReleasesLockAfterAbort(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+"1,First,,alice,,new,,,,,,,\n")

	store := &MockIssueStore{}
	expectDiscovery(store, map[int]*client.Issue{1: {IID: 1, ProjectID: testProjectID}})
	store.On("UpdateIssue", mock.Anything, testProjectID, 1, mock.Anything).
		Return(errors.New("conflict")).
		Once()

	lock := &MockRunLock{}
	lock.On("Acquire", mock.Anything, "mycorp/myproj", time.Hour).Return("token-1", nil).Once()
	lock.On("Release", mock.Anything, "mycorp/myproj", "token-1").Return(nil).Once()

	importer := NewImporter(store, lock, nil, reporttest.NewRecorder(), cfg)

	summary, err := importer.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update issue #1")
	assert.Equal(t, 1, summary.Failed)

	lock.AssertExpectations(t)
}

func TestImporter_Run_DryRun(t *testing.T) {
	cfg := getImporterConfig(t, testCSVHeader+"3,Third,,alice,,closed,,,,,,,\n")
	cfg.DryRun = true

	upstream := &MockIssueStore{}
	expectDiscovery(upstream, map[int]*client.Issue{1: {IID: 1, ProjectID: testProjectID}})

	recorder := reporttest.NewRecorder()
	importer := NewImporter(NewDryRunStore(upstream), nil, nil, recorder, cfg)

	summary, err := importer.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Summary{Inserted: 1, Skipped: 1, Closed: 2}, summary)
	assert.Contains(t, recorder.Messages(report.LevelWarning), "Dry run: no changes will be written to GitLab.")

	upstream.AssertExpectations(t)
	upstream.AssertNotCalled(t, "CreateIssue", mock.Anything, mock.Anything, mock.Anything)
}
