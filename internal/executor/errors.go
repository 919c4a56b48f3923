package executor

import (
	"fmt"
	"strings"
)

// ExitError reports a command that ran to completion but exited non-zero.
// It carries the captured output so callers can surface process diagnostics.
type ExitError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited %d", strings.Join(e.Argv, " "), e.ExitCode)
}

// Details renders the captured diagnostics in a stable multi-line format.
func (e *ExitError) Details() string {
	details := []string{
		fmt.Sprintf("* Command that failed: %q", strings.Join(e.Argv, " ")),
		fmt.Sprintf("* Command exit code: %d", e.ExitCode),
	}
	if e.Stdout != "" {
		details = append(details, fmt.Sprintf("* Command output: %q", e.Stdout))
	}
	if e.Stderr != "" {
		details = append(details, fmt.Sprintf("* Command standard error output: %q", e.Stderr))
	}
	return strings.Join(details, "\n")
}
