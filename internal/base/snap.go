package base

import (
	"context"
	"fmt"

	"github.com/canonical/craft-providers-sub001/internal/executor"
)

// Snap describes a snap package to install in the environment.
type Snap struct {
	// Name of the snap.
	Name string

	// Channel to install from. Empty means the store's stable channel.
	Channel string

	// Classic enables classic confinement.
	Classic bool
}

func (s Snap) validate() error {
	if s.Name == "" {
		return fmt.Errorf("snap name must not be empty")
	}
	return nil
}

func (s Snap) installArgv() []string {
	channel := s.Channel
	if channel == "" {
		channel = "stable"
	}
	argv := []string{"snap", "install", s.Name, "--channel", channel}
	if s.Classic {
		argv = append(argv, "--classic")
	}
	return argv
}

// installSnaps installs the configured snaps from the store. Snap
// installation can stall on slow store responses, so it uses the complex
// timeout class.
func (b *Base) installSnaps(ctx context.Context, ex executor.Executor) error {
	if len(b.snaps) == 0 {
		b.logger.Debug("no snaps to install")
		return nil
	}

	for _, snap := range b.snaps {
		b.logger.Debug("installing snap", "snap", snap.Name, "channel", snap.Channel, "classic", snap.Classic)
		_, err := ex.Run(ctx, snap.installArgv(), executor.RunOptions{
			Timeout: b.timeouts.Complex,
			Check:   true,
		})
		if err != nil {
			return newConfigurationError(err, "Failed to install snap %q.", snap.Name)
		}
	}
	return nil
}

// holdSnapRefresh stops snapd from refreshing snaps behind the back of the
// application, then waits for any refresh that started before the hold.
func (b *Base) holdSnapRefresh(ctx context.Context, ex executor.Executor, until string) error {
	_, err := ex.Run(ctx, []string{"snap", "set", "system", "refresh.hold=" + until}, executor.RunOptions{
		Timeout: b.timeouts.Simple,
		Check:   true,
	})
	if err != nil {
		return newConfigurationError(err, "Failed to hold snap refreshes.")
	}

	_, err = ex.Run(ctx, []string{"snap", "watch", "--last=auto-refresh?"}, executor.RunOptions{
		Timeout: b.timeouts.Complex,
		Check:   true,
	})
	if err != nil {
		return newConfigurationError(err, "Failed to wait for pending snap refreshes.")
	}
	return nil
}
