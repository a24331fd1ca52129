//go:build unit

package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportHeader = "Id,Summary,Description,Reporter,Assigned To,Status,Created,Updated,Category,Priority,Severity,Info,Notes\n"

func TestRead_ParsesAndSortsRecords(t *testing.T) {
	input := exportHeader +
		`7,Crash on save,"Steps:
1. save",alice,bob,closed,2014-01-02,2014-01-03,UI,high,crash,Extra info,first note$$$$second note` + "\n" +
		`3,Typo,Fix it,carol,,new,2014-01-01,2014-01-01,Docs,low,minor,,` + "\n"

	issues, err := Read(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, issues, 2)

	assert.Equal(t, 3, issues[0].ID)
	assert.Equal(t, "Typo", issues[0].Title)
	assert.Equal(t, "", issues[0].Assignee)
	assert.Nil(t, issues[0].Notes)

	issue := issues[1]
	assert.Equal(t, 7, issue.ID)
	assert.Equal(t, "Crash on save", issue.Title)
	assert.Equal(t, "Steps:\n1. save", issue.Description)
	assert.Equal(t, "alice", issue.Reporter)
	assert.Equal(t, "bob", issue.Assignee)
	assert.Equal(t, "closed", issue.Status)
	assert.Equal(t, "2014-01-02", issue.Created)
	assert.Equal(t, "2014-01-03", issue.Updated)
	assert.Equal(t, "UI", issue.Category)
	assert.Equal(t, "high", issue.Priority)
	assert.Equal(t, "crash", issue.Severity)
	assert.Equal(t, "Extra info", issue.Info)
	assert.Equal(t, []string{"first note", "second note"}, issue.Notes)
}

func TestRead_FiltersBelowResumePoint(t *testing.T) {
	input := exportHeader +
		"1,One,,alice,,new,,,,,,,\n" +
		"5,Five,,alice,,new,,,,,,,\n" +
		"3,Three,,alice,,new,,,,,,,\n" +
		"9,Nine,,alice,,new,,,,,,,\n"

	issues, err := Read(strings.NewReader(input), 4)
	require.NoError(t, err)

	ids := make([]int, 0, len(issues))
	for _, issue := range issues {
		ids = append(ids, issue.ID)
	}
	assert.Equal(t, []int{5, 9}, ids)
}

func TestRead_OptionalColumnsAndTags(t *testing.T) {
	input := "\ufeffId,Summary,Tags\n" +
		`2,Tagged,"backend, regression ,,"` + "\n"

	issues, err := Read(strings.NewReader(input), 0)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	assert.Equal(t, 2, issues[0].ID)
	assert.Equal(t, []string{"backend", "regression"}, issues[0].Tags)
	assert.Equal(t, "", issues[0].Reporter)
	assert.Equal(t, "", issues[0].Status)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedError string
	}{
		{
			name:          "empty input",
			input:         "",
			expectedError: "missing header row",
		},
		{
			name:          "missing id column",
			input:         "Summary,Status\nfoo,new\n",
			expectedError: `missing required column "Id"`,
		},
		{
			name:          "non numeric id",
			input:         exportHeader + "abc,Bad,,,,,,,,,,,\n",
			expectedError: `row 2: invalid issue id "abc"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "issues.csv")
	require.NoError(t, os.WriteFile(path, []byte(exportHeader+"4,Four,,alice,,new,,,,,,,\n"), 0o600))

	issues, err := ReadFile(path, 0)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 4, issues[0].ID)

	_, err = ReadFile(filepath.Join(dir, "missing.csv"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read input file")
}
