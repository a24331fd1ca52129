package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// UnknownUserName is the display name of the fallback user used when a
// Mantis username has no mapping of its own
const UnknownUserName = "Unknown"

// UserEntry maps one Mantis user to a GitLab account
type UserEntry struct {
	Name           string `json:"name" yaml:"name"`
	GitLabUsername string `json:"gl_username" yaml:"gl_username"`
}

// Mapping is the content of the import configuration file
type Mapping struct {
	Users          map[string]UserEntry `json:"users" yaml:"users"`
	CategoryLabels map[string]string    `json:"category_labels" yaml:"category_labels"`
	PriorityLabels map[string]string    `json:"priority_labels" yaml:"priority_labels"`
	SeverityLabels map[string]string    `json:"severity_labels" yaml:"severity_labels"`
	ClosedStatuses map[string]bool      `json:"closed_statuses" yaml:"closed_statuses"`
	MantisURL      string               `json:"mantisUrl" yaml:"mantisUrl"`
}

// LoadMapping reads the mapping file at path. Files ending in .yaml or .yml
// are parsed as YAML, everything else as JSON. Unless the file defines one,
// a fallback user keyed by the empty username is added mapping to
// fallbackUser; an empty fallbackUser adds none.
func LoadMapping(path, fallbackUser string) (*Mapping, error) {
	slog.Debug("Reading mapping file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read mapping file", "error", err, "path", path)
		return nil, fmt.Errorf("cannot read config file: %s: %w", path, err)
	}

	m, err := ParseMapping(data, filepath.Ext(path))
	if err != nil {
		slog.Error("Failed to parse mapping file", "error", err, "path", path)
		return nil, fmt.Errorf("cannot read config file: %s: %w", path, err)
	}

	if fallbackUser != "" {
		m.ensureFallbackUser(fallbackUser)
	}

	slog.Debug("Mapping file loaded",
		"path", path,
		"users", len(m.Users),
		"closed_statuses", len(m.ClosedStatuses),
		"mantis_url", m.MantisURL,
	)

	return m, nil
}

// ParseMapping decodes mapping data; ext selects the format
func ParseMapping(data []byte, ext string) (*Mapping, error) {
	var m Mapping

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("error decoding YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("error decoding JSON: %w", err)
		}
	}

	m.normalize()
	return &m, nil
}

func (m *Mapping) normalize() {
	if m.Users == nil {
		m.Users = make(map[string]UserEntry)
	}
	if m.CategoryLabels == nil {
		m.CategoryLabels = make(map[string]string)
	}
	if m.PriorityLabels == nil {
		m.PriorityLabels = make(map[string]string)
	}
	if m.SeverityLabels == nil {
		m.SeverityLabels = make(map[string]string)
	}
	if m.ClosedStatuses == nil {
		m.ClosedStatuses = make(map[string]bool)
	}
	m.MantisURL = strings.TrimRight(m.MantisURL, "/")
}

func (m *Mapping) ensureFallbackUser(gitlabUsername string) {
	if _, ok := m.Users[""]; ok {
		return
	}
	m.Users[""] = UserEntry{Name: UnknownUserName, GitLabUsername: gitlabUsername}
}
