// Package lxd talks to the LXD backend through its command-line tool,
// parsing its JSON output. It provides the session used by the cleanup
// hooks and an executor implementation for running instances.
package lxd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/exec"

	"github.com/canonical/craft-providers-sub001/internal/logging"
)

// CLI invokes the lxc command-line tool, scoped to one LXD project.
type CLI struct {
	project string
	path    string
	logger  *slog.Logger

	// execute is replaced by tests.
	execute func(ctx context.Context, argv []string) (stdout, stderr []byte, exitCode int, err error)
}

// NewCLI returns a CLI scoped to the given project, invoking "lxc" from
// PATH.
func NewCLI(project string, logger *slog.Logger) *CLI {
	cli := &CLI{
		project: project,
		path:    "lxc",
		logger:  logging.Ensure(logger).With("component", "lxd"),
	}
	cli.execute = cli.executeReal
	return cli
}

// Project reports the LXD project this CLI is scoped to.
func (c *CLI) Project() string { return c.project }

func (c *CLI) executeReal(ctx context.Context, argv []string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, c.path, argv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, nil, 0, &NotInstalledError{}
		case errors.As(err, &exitErr):
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		default:
			return nil, nil, 0, err
		}
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}

type runOptions struct {
	jsonOut bool
	scoped  bool
}

// run invokes lxc with the given arguments and returns its stdout.
func (c *CLI) run(ctx context.Context, opts runOptions, args ...string) ([]byte, error) {
	argv := make([]string, 0, len(args)+4)
	if opts.scoped {
		argv = append(argv, "--project", c.project)
	}
	argv = append(argv, args...)
	// --format is a subcommand flag and must follow the subcommand.
	if opts.jsonOut {
		argv = append(argv, "--format", "json")
	}

	c.logger.Debug("invoking lxc", "args", argv)
	stdout, stderr, exitCode, err := c.execute(ctx, argv)
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return nil, &CommandError{
			Argv:     append([]string{c.path}, argv...),
			ExitCode: exitCode,
			Stderr:   string(stderr),
		}
	}
	return stdout, nil
}

// runJSON invokes lxc expecting JSON output and unmarshals it into out.
func (c *CLI) runJSON(ctx context.Context, scoped bool, out any, args ...string) error {
	stdout, err := c.run(ctx, runOptions{jsonOut: true, scoped: scoped}, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(stdout, out); err != nil {
		return &MalformedOutputError{Output: string(stdout), Err: err}
	}
	return nil
}
