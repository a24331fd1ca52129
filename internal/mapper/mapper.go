// Package mapper turns Mantis records into GitLab issue fields.
package mapper

import (
	"fmt"
	"strings"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/directory"
	"mantis2gitlab/internal/source"
)

// SkippedTitle is the title placeholders are created with
const SkippedTitle = "Skipped Mantis Issue"

// Reference renders "Mantis Issue N", linked to the Mantis instance when its
// URL is configured
func Reference(id int, m *config.Mapping) string {
	if m.MantisURL != "" {
		return fmt.Sprintf("[Mantis Issue %d](%s/view.php?id=%d)", id, m.MantisURL, id)
	}
	return fmt.Sprintf("Mantis Issue %d", id)
}

// BuildDescription renders the markdown body of the GitLab issue
func BuildDescription(issue source.Issue, m *config.Mapping) string {
	attributes := []string{Reference(issue.ID, m)}

	if issue.Reporter != "" {
		attributes = append(attributes, "Reported By: "+issue.Reporter)
	}
	if issue.Assignee != "" {
		attributes = append(attributes, "Assigned To: "+issue.Assignee)
	}
	if issue.Created != "" {
		attributes = append(attributes, "Created: "+issue.Created)
	}
	if issue.Updated != "" && issue.Updated != issue.Created {
		attributes = append(attributes, "Updated: "+issue.Updated)
	}

	var b strings.Builder
	b.WriteString("_")
	b.WriteString(strings.Join(attributes, ", "))
	b.WriteString("_\n\n")
	b.WriteString(issue.Description)

	if issue.Info != "" {
		b.WriteString("\n\n")
		b.WriteString(issue.Info)
	}
	if len(issue.Notes) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(issue.Notes, "\n\n"))
	}

	return b.String()
}

// BuildLabels returns the issue tags followed by the category, priority and
// severity labels found in the mapping, comma separated
func BuildLabels(issue source.Issue, m *config.Mapping) string {
	labels := make([]string, 0, len(issue.Tags)+3)
	labels = append(labels, issue.Tags...)

	for _, lookup := range []struct {
		table map[string]string
		key   string
	}{
		{m.CategoryLabels, issue.Category},
		{m.PriorityLabels, issue.Priority},
		{m.SeverityLabels, issue.Severity},
	} {
		if label := lookup.table[lookup.key]; label != "" {
			labels = append(labels, label)
		}
	}

	return strings.Join(labels, ",")
}

// IsClosed reports whether the issue status is one of the closed statuses
func IsClosed(issue source.Issue, m *config.Mapping) bool {
	return m.ClosedStatuses[issue.Status]
}

// IssueFields maps a Mantis record to the fields of a create/update request.
// The assignee is left unset when the user is not a project member.
func IssueFields(issue source.Issue, m *config.Mapping, users *directory.Directory) client.IssueFields {
	fields := client.IssueFields{
		Title:       issue.Title,
		Description: BuildDescription(issue, m),
		Labels:      BuildLabels(issue, m),
	}
	if assignee := users.Resolve(issue.Assignee); assignee != nil {
		fields.AssigneeID = assignee.GitLabID
	}
	return fields
}

// SkippedFields returns the title and description a placeholder is closed
// with, once GitLab has told us its IID
func SkippedFields(iid int, m *config.Mapping) *client.IssueFields {
	return &client.IssueFields{
		Title:       fmt.Sprintf("%s %d", SkippedTitle, iid),
		Description: "_Skipped " + Reference(iid, m) + "_",
	}
}
