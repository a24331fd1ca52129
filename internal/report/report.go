// Package report prints human readable import progress.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Level classifies a report line
type Level string

const (
	LevelProgress Level = "progress"
	LevelSuccess  Level = "success"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
)

// Reporter is the sink for per-record progress and outcome messages
type Reporter interface {
	Progress(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Done()
}

// Console writes colored lines; progress and success go to out, warnings and
// errors to errOut
type Console struct {
	out    io.Writer
	errOut io.Writer

	progress *color.Color
	success  *color.Color
	warning  *color.Color
	failure  *color.Color
	banner   *color.Color
}

// NewConsole creates a reporter writing to stdout and stderr
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout, os.Stderr)
}

// NewConsoleWriter creates a reporter writing to the given writers
func NewConsoleWriter(out, errOut io.Writer) *Console {
	return &Console{
		out:      out,
		errOut:   errOut,
		progress: color.New(color.FgHiBlack),
		success:  color.New(color.FgGreen),
		warning:  color.New(color.FgYellow),
		failure:  color.New(color.FgRed),
		banner:   color.New(color.FgGreen, color.Bold),
	}
}

func (c *Console) Progress(format string, args ...interface{}) {
	_, _ = c.progress.Fprintln(c.out, fmt.Sprintf(format, args...))
}

func (c *Console) Success(format string, args ...interface{}) {
	_, _ = c.success.Fprintln(c.out, fmt.Sprintf(format, args...))
}

func (c *Console) Warn(format string, args ...interface{}) {
	_, _ = c.warning.Fprintln(c.errOut, fmt.Sprintf(format, args...))
}

func (c *Console) Error(format string, args ...interface{}) {
	_, _ = c.failure.Fprintln(c.errOut, "Error: "+fmt.Sprintf(format, args...))
}

// Done prints the completion banner
func (c *Console) Done() {
	_, _ = c.banner.Fprintln(c.out, "Done!")
}
