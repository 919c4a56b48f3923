// Package executor defines the command transport into a running build
// environment. Implementations are backend-specific; everything above this
// package only sees the interface.
package executor

import (
	"context"
	"time"
)

// Result captures the outcome of a command executed inside an environment.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunOptions control a single command execution.
type RunOptions struct {
	// Timeout bounds the command. Zero means no bound beyond the context.
	Timeout time.Duration

	// Check makes a non-zero exit return an *ExitError instead of a plain
	// Result.
	Check bool
}

// Executor runs commands and moves data in and out of one environment.
type Executor interface {
	// Run executes argv inside the environment and returns the captured
	// result. With opts.Check set, a non-zero exit is returned as an
	// *ExitError carrying the captured output.
	Run(ctx context.Context, argv []string, opts RunOptions) (Result, error)

	// WriteFile creates or overwrites a file inside the environment with
	// the given octal mode string (e.g. "0644").
	WriteFile(ctx context.Context, destination string, content []byte, mode string) error

	// IsRunning reports whether the environment is currently running.
	IsRunning(ctx context.Context) (bool, error)
}
