package lxd

import (
	"fmt"
	"strings"
)

// NotInstalledError reports that the lxc executable could not be found.
// Distinct from command failures so operators can tell "install LXD" from
// "retry the operation".
type NotInstalledError struct{}

func (*NotInstalledError) Error() string {
	return "LXD is not installed"
}

// CommandError reports an lxc invocation that exited non-zero.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited %d", strings.Join(e.Argv, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// MalformedOutputError reports lxc output that could not be parsed as the
// expected structured data. This is a defect in the backend or in version
// assumptions, never silently ignored.
type MalformedOutputError struct {
	Output string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("unexpected lxc output %q: %v", e.Output, e.Err)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}
