package lxd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/canonical/craft-providers-sub001/internal/executor"
)

// InstanceExecutor runs commands and writes files inside one LXD instance
// through the lxc tool. It implements executor.Executor.
type InstanceExecutor struct {
	name string
	cli  *CLI
}

// NewInstanceExecutor returns an executor targeting the named instance in
// the CLI's project.
func NewInstanceExecutor(cli *CLI, name string) *InstanceExecutor {
	return &InstanceExecutor{name: name, cli: cli}
}

// Name reports the backend-unique instance name.
func (e *InstanceExecutor) Name() string { return e.name }

func (e *InstanceExecutor) Run(ctx context.Context, argv []string, opts executor.RunOptions) (executor.Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := append([]string{"--project", e.cli.project, "exec", e.name, "--"}, argv...)
	stdout, stderr, exitCode, err := e.cli.execute(ctx, args)
	if err != nil {
		return executor.Result{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return executor.Result{}, fmt.Errorf("command %q: %w", strings.Join(argv, " "), ctxErr)
	}

	result := executor.Result{
		ExitCode: exitCode,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
	}
	if opts.Check && exitCode != 0 {
		return result, &executor.ExitError{
			Argv:     argv,
			ExitCode: exitCode,
			Stdout:   result.Stdout,
			Stderr:   result.Stderr,
		}
	}
	return result, nil
}

func (e *InstanceExecutor) WriteFile(ctx context.Context, destination string, content []byte, mode string) error {
	local, err := os.CreateTemp("", "craft-push-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer os.Remove(local.Name())

	if _, err := local.Write(content); err != nil {
		local.Close()
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := local.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}

	// Push to a unique guest-side staging path, then move into place with
	// the requested mode in one step.
	remote := filepath.Join("/tmp", "craft-"+uuid.NewString())
	_, err = e.cli.run(ctx, runOptions{scoped: true}, "file", "push", local.Name(), e.name+remote)
	if err != nil {
		return fmt.Errorf("push file to instance: %w", err)
	}

	_, err = e.Run(ctx, []string{"install", "-m", mode, remote, destination}, executor.RunOptions{Check: true})
	if err != nil {
		return fmt.Errorf("install %s in instance: %w", destination, err)
	}

	_, err = e.Run(ctx, []string{"rm", "-f", remote}, executor.RunOptions{Check: true})
	if err != nil {
		return fmt.Errorf("remove staging file in instance: %w", err)
	}
	return nil
}

func (e *InstanceExecutor) IsRunning(ctx context.Context) (bool, error) {
	var instances []Instance
	if err := e.cli.runJSON(ctx, true, &instances, "list", e.name); err != nil {
		return false, err
	}
	for _, instance := range instances {
		if instance.Name == e.name {
			return instance.Status == "Running", nil
		}
	}
	return false, nil
}
