package base

import (
	"context"
	"time"

	"github.com/canonical/craft-providers-sub001/internal/executor"
	"github.com/canonical/craft-providers-sub001/internal/osrelease"
)

// probeOSRelease reads the environment's OS descriptor, wrapping transport
// failures as configuration errors.
func probeOSRelease(ctx context.Context, ex executor.Executor) (map[string]string, error) {
	release, err := osrelease.Probe(ctx, ex)
	if err != nil {
		return nil, newConfigurationError(err, "Failed to read %s.", osrelease.Path)
	}
	return release, nil
}

// runChecked executes argv with strict exit checking and wraps failures
// into a ConfigurationError with the given brief.
func (b *Base) runChecked(ctx context.Context, ex executor.Executor, timeout time.Duration, brief string, argv ...string) error {
	_, err := ex.Run(ctx, argv, executor.RunOptions{Timeout: timeout, Check: true})
	if err != nil {
		return newConfigurationError(err, "%s", brief)
	}
	return nil
}
