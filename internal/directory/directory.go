// Package directory maps Mantis usernames to GitLab accounts.
package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mantis2gitlab/internal/client"
	"mantis2gitlab/internal/config"
	"mantis2gitlab/internal/source"
)

// ErrUserValidation is matched by every ValidationError
var ErrUserValidation = errors.New("user validation failed")

// ValidationError lists the Mantis usernames that have no mapping
type ValidationError struct {
	Usernames []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: cannot map %d Mantis user(s): %s",
		ErrUserValidation, len(e.Usernames), strings.Join(e.Usernames, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrUserValidation
}

// User is one resolved Mantis to GitLab identity
type User struct {
	MantisUsername string
	Name           string
	GitLabUsername string
	GitLabID       int // 0 until bound to a project member
}

// Directory resolves Mantis usernames, falling back to the user keyed by ""
type Directory struct {
	users map[string]*User
}

// New builds a directory from the users of a mapping file
func New(m *config.Mapping) *Directory {
	d := &Directory{users: make(map[string]*User, len(m.Users))}
	for username, entry := range m.Users {
		d.users[username] = &User{
			MantisUsername: username,
			Name:           entry.Name,
			GitLabUsername: entry.GitLabUsername,
		}
	}
	return d
}

// Resolve returns the user mapped to username, the fallback user when there
// is none, or nil when no fallback is configured either.
func (d *Directory) Resolve(username string) *User {
	if username != "" {
		if u, ok := d.users[username]; ok {
			return u
		}
	}
	return d.users[""]
}

// ValidateAll returns every username referenced by issues that Resolve cannot
// map, assignees first then reporters, without duplicates. A blank username
// means no user and is never reported.
func (d *Directory) ValidateAll(issues []source.Issue) []string {
	var missing []string
	seen := make(map[string]bool)

	check := func(username string) {
		if username == "" {
			return
		}
		if d.Resolve(username) == nil && !seen[username] {
			seen[username] = true
			missing = append(missing, username)
		}
	}

	for _, issue := range issues {
		check(issue.Assignee)
	}
	for _, issue := range issues {
		check(issue.Reporter)
	}

	return missing
}

// Validate wraps ValidateAll into a *ValidationError
func (d *Directory) Validate(issues []source.Issue) error {
	missing := d.ValidateAll(issues)
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Usernames: missing}
}

// BindMembers resolves GitLab user ids by matching each user's GitLab
// username against the project members. It returns the number of users bound.
func (d *Directory) BindMembers(members []client.Member) int {
	byUsername := make(map[string]int, len(members))
	for _, m := range members {
		byUsername[m.Username] = m.ID
	}

	bound := 0
	for _, u := range d.users {
		id, ok := byUsername[u.GitLabUsername]
		if !ok {
			slog.Debug("No project member for mapped user",
				"mantis_username", u.MantisUsername,
				"gitlab_username", u.GitLabUsername,
			)
			continue
		}
		u.GitLabID = id
		bound++
	}

	slog.Debug("Bound users to project members", "bound", bound, "users", len(d.users))
	return bound
}
