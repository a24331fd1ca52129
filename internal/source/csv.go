package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
)

const utf8BOM = "\ufeff"

// ReadFile reads the Mantis export at path, keeps issues with an id of at
// least fromID and returns them sorted by id
func ReadFile(path string, fromID int) ([]Issue, error) {
	slog.Debug("Opening Mantis export", "path", path)

	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open Mantis export", "error", err, "path", path)
		return nil, fmt.Errorf("cannot read input file: %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	issues, err := Read(f, fromID)
	if err != nil {
		slog.Error("Failed to parse Mantis export", "error", err, "path", path)
		return nil, fmt.Errorf("cannot read input file: %s: %w", path, err)
	}

	return issues, nil
}

// Read parses a Mantis CSV export from r. Columns are located by header
// name; missing optional columns read as empty strings.
func Read(r io.Reader, fromID int) ([]Issue, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty CSV: missing header row")
		}
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.Trim(strings.TrimPrefix(name, utf8BOM), `"`)
		}
		columns[strings.TrimSpace(name)] = i
	}
	if _, ok := columns[ColumnID]; !ok {
		return nil, fmt.Errorf("missing required column %q", ColumnID)
	}

	var issues []Issue
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("error reading row %d: %w", line, err)
		}

		issue, err := parseRecord(record, columns)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		if issue.ID < fromID {
			continue
		}
		issues = append(issues, issue)
	}

	SortByID(issues)

	slog.Debug("Mantis export parsed", "issues", len(issues), "from_id", fromID)
	return issues, nil
}

// SortByID orders issues by ascending id, keeping input order for equal ids
func SortByID(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].ID < issues[j].ID
	})
}

func parseRecord(record []string, columns map[string]int) (Issue, error) {
	get := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	rawID := strings.TrimSpace(get(ColumnID))
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return Issue{}, fmt.Errorf("invalid issue id %q: %w", rawID, err)
	}

	return Issue{
		ID:          id,
		Title:       get(ColumnSummary),
		Description: get(ColumnDescription),
		Info:        get(ColumnInfo),
		Reporter:    get(ColumnReporter),
		Assignee:    get(ColumnAssignee),
		Status:      get(ColumnStatus),
		Created:     get(ColumnCreated),
		Updated:     get(ColumnUpdated),
		Category:    get(ColumnCategory),
		Priority:    get(ColumnPriority),
		Severity:    get(ColumnSeverity),
		Tags:        splitTags(get(ColumnTags)),
		Notes:       splitNotes(get(ColumnNotes)),
	}, nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func splitNotes(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, NoteDelimiter)
}
