// Package source reads issues from a Mantis CSV export.
package source

// Column names of the Mantis CSV export
const (
	ColumnID          = "Id"
	ColumnSummary     = "Summary"
	ColumnDescription = "Description"
	ColumnReporter    = "Reporter"
	ColumnAssignee    = "Assigned To"
	ColumnStatus      = "Status"
	ColumnCreated     = "Created"
	ColumnUpdated     = "Updated"
	ColumnCategory    = "Category"
	ColumnPriority    = "Priority"
	ColumnSeverity    = "Severity"
	ColumnInfo        = "Info"
	ColumnNotes       = "Notes"
	ColumnTags        = "Tags"
)

// NoteDelimiter separates individual notes inside the Notes column
const NoteDelimiter = "$$$$"

// Issue is one Mantis issue read from the export
type Issue struct {
	ID          int
	Title       string
	Description string
	Info        string
	Reporter    string
	Assignee    string
	Status      string
	Created     string
	Updated     string
	Category    string
	Priority    string
	Severity    string
	Tags        []string
	Notes       []string
}
