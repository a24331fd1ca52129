package repository

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when another run holds the lock for a project
var ErrLockHeld = errors.New("another import is running for this project")

// RunLock serialises imports into the same GitLab project. Two concurrent
// runs would interleave issue creation and break IID numbering.
type RunLock interface {
	// Acquire takes the lock for project and returns the token needed to release it
	Acquire(ctx context.Context, project string, ttl time.Duration) (string, error)

	// Release drops the lock if it is still held with token
	Release(ctx context.Context, project, token string) error
}
