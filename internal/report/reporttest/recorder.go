// Package reporttest provides an in-memory report.Reporter for tests.
package reporttest

import (
	"fmt"
	"sync"

	"mantis2gitlab/internal/report"
)

// Entry is one line captured by a Recorder
type Entry struct {
	Level   report.Level
	Message string
}

// Recorder keeps every reported line in memory
type Recorder struct {
	mu       sync.Mutex
	Entries  []Entry
	Finished bool
}

var _ report.Reporter = (*Recorder)(nil)

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level report.Level, format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, Entry{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (r *Recorder) Progress(format string, args ...interface{}) {
	r.add(report.LevelProgress, format, args...)
}

func (r *Recorder) Success(format string, args ...interface{}) {
	r.add(report.LevelSuccess, format, args...)
}

func (r *Recorder) Warn(format string, args ...interface{}) {
	r.add(report.LevelWarning, format, args...)
}

func (r *Recorder) Error(format string, args ...interface{}) {
	r.add(report.LevelError, format, args...)
}

func (r *Recorder) Done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Finished = true
}

// Messages returns the messages reported at level, in order
func (r *Recorder) Messages(level report.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for _, e := range r.Entries {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}
