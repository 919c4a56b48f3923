// Package base drives a freshly provisioned environment from a raw OS image
// to a state ready for builds. One concrete OS family implements each setup
// stage; the shared pipeline runs the stages in a fixed order and stamps a
// compatibility tag into the environment on success.
package base

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/canonical/craft-providers-sub001/internal/executor"
	"github.com/canonical/craft-providers-sub001/internal/logging"
)

// DefaultTag versions the behavior of the setup pipeline. Any change to
// pipeline behavior that invalidates previously configured environments
// requires a new value, distinguishable from all prior ones. Applications
// must extend this tag with a suffix, never replace it, so environments
// stamped with older tags remain recognizable.
const DefaultTag = "base-v7"

// Timeout classes for operations executed inside the environment.
// Unpredictable covers operations with highly variable run time, such as
// package index refreshes and full package installs.
type Timeouts struct {
	Simple        time.Duration
	Complex       time.Duration
	Unpredictable time.Duration
}

func defaultTimeouts() Timeouts {
	return Timeouts{
		Simple:        1 * time.Minute,
		Complex:       5 * time.Minute,
		Unpredictable: 15 * time.Minute,
	}
}

// EnvVar is one persistent environment variable injected into the guest.
// Order is preserved when writing /etc/environment.
type EnvVar struct {
	Name  string
	Value string
}

// Options parameterize a base configuration. The zero value of each field
// selects the family default.
type Options struct {
	// Alias selects the OS release. Required; must be a supported alias
	// of the family.
	Alias Alias

	// CompatibilityTag overrides the default tag. Callers must extend the
	// family default (e.g. "myapp-buildd-base-v7.2"), never replace it,
	// to preserve the meaning of previously stamped tags.
	CompatibilityTag string

	// Environment replaces the family's default command environment.
	Environment []EnvVar

	// Hostname for the environment. Trimmed to hostname conventions.
	Hostname string

	// Packages are installed in addition to the family defaults.
	Packages []string

	// WithoutDefaultPackages skips the family's default package set.
	WithoutDefaultPackages bool

	// Snaps to install after snapd is ready.
	Snaps []Snap

	// InstanceConfigPath overrides where the compatibility record is
	// persisted inside the guest.
	InstanceConfigPath string

	// RetryWait is the pause between attempts in polling loops.
	RetryWait time.Duration

	// Timeouts override the per-class operation timeouts.
	Timeouts Timeouts

	Logger *slog.Logger
}

// Base is a configured, immutable description of how to set up one
// environment. Construct it with NewUbuntu, NewCentOS or NewAlmaLinux.
type Base struct {
	family             osFamily
	alias              Alias
	compatibilityTag   string
	environment        []EnvVar
	hostname           string
	packages           []string
	snaps              []Snap
	instanceConfigPath string
	retryWait          time.Duration
	timeouts           Timeouts
	logger             *slog.Logger
}

// Family reports the OS family name, e.g. "ubuntu".
func (b *Base) Family() string { return b.family.name() }

// Alias reports the configured OS release alias.
func (b *Base) Alias() Alias { return b.alias }

// CompatibilityTag reports the tag stamped into environments this
// configuration sets up.
func (b *Base) CompatibilityTag() string { return b.compatibilityTag }

// Hostname reports the validated hostname.
func (b *Base) Hostname() string { return b.hostname }

// Packages reports the full package set to install.
func (b *Base) Packages() []string {
	return append([]string(nil), b.packages...)
}

// CommandEnvironment returns the environment to apply when executing
// commands in the configured environment.
func (b *Base) CommandEnvironment() map[string]string {
	env := make(map[string]string, len(b.environment))
	for _, entry := range b.environment {
		env[entry.Name] = entry.Value
	}
	return env
}

func (b *Base) lookupEnv(name string) (string, bool) {
	for _, entry := range b.environment {
		if entry.Name == name {
			return entry.Value, true
		}
	}
	return "", false
}

// setEnv appends or replaces an entry, preserving insertion order.
func (b *Base) setEnv(name, value string) {
	for i, entry := range b.environment {
		if entry.Name == name {
			b.environment[i].Value = value
			return
		}
	}
	b.environment = append(b.environment, EnvVar{Name: name, Value: value})
}

var hostnameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// validateHostname trims a hostname to naming conventions: at most 63
// characters, letters, digits and hyphens only, no leading or trailing
// hyphen, at least one character left after cleaning.
func validateHostname(hostname string) (string, error) {
	cleaned := hostnameInvalidChars.ReplaceAllString(hostname, "")
	cleaned = strings.TrimLeft(cleaned, "-")
	if len(cleaned) > 63 {
		cleaned = cleaned[:63]
	}
	cleaned = strings.TrimRight(cleaned, "-")
	if cleaned == "" {
		return "", &ConfigurationError{
			Brief:   "invalid hostname \"" + hostname + "\"",
			Details: "hostname must contain at least one alphanumeric character",
		}
	}
	return cleaned, nil
}

func newBase(family osFamily, opts Options, defaults familyDefaults) (*Base, error) {
	if !defaults.aliases[opts.Alias] {
		return nil, &ConfigurationError{
			Brief: "unsupported " + family.name() + " alias " + `"` + string(opts.Alias) + `"`,
		}
	}

	hostname := opts.Hostname
	if hostname == "" {
		hostname = defaults.hostname
	}
	hostname, err := validateHostname(hostname)
	if err != nil {
		return nil, err
	}

	tag := opts.CompatibilityTag
	if tag == "" {
		tag = defaults.compatibilityTag
	}

	environment := opts.Environment
	if environment == nil {
		environment = defaults.environment
	}
	environment = append([]EnvVar(nil), environment...)

	var packages []string
	if !opts.WithoutDefaultPackages {
		packages = append(packages, defaults.packages...)
	}
	packages = append(packages, opts.Packages...)

	for _, snap := range opts.Snaps {
		if err := snap.validate(); err != nil {
			return nil, &ConfigurationError{Brief: err.Error()}
		}
	}

	configPath := opts.InstanceConfigPath
	if configPath == "" {
		configPath = DefaultInstanceConfigPath
	}

	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = 250 * time.Millisecond
	}

	timeouts := opts.Timeouts
	if timeouts.Simple <= 0 {
		timeouts.Simple = defaultTimeouts().Simple
	}
	if timeouts.Complex <= 0 {
		timeouts.Complex = defaultTimeouts().Complex
	}
	if timeouts.Unpredictable <= 0 {
		timeouts.Unpredictable = defaultTimeouts().Unpredictable
	}

	b := &Base{
		family:             family,
		alias:              opts.Alias,
		compatibilityTag:   tag,
		environment:        environment,
		hostname:           hostname,
		packages:           packages,
		snaps:              opts.Snaps,
		instanceConfigPath: configPath,
		retryWait:          retryWait,
		timeouts:           timeouts,
		logger:             logging.Ensure(opts.Logger).With("component", "base."+family.name()),
	}
	family.applyEnvironment(b)
	return b, nil
}

// familyDefaults hold per-family construction defaults.
type familyDefaults struct {
	aliases          map[Alias]bool
	compatibilityTag string
	hostname         string
	environment      []EnvVar
	packages         []string
}

// osFamily implements the family-specific stages of the setup pipeline.
// Stages that do not apply to a family return ErrNotApplicable so the
// pipeline (and tests) can tell a skipped stage from a vacuously passed one.
type osFamily interface {
	name() string

	// applyEnvironment adds family-mandated variables to the command
	// environment during construction.
	applyEnvironment(b *Base)

	// verifyOS checks the running environment's os-release identity and
	// version against the configuration.
	verifyOS(ctx context.Context, b *Base, ex executor.Executor) error

	// configureNetwork enables the family's resolver/network management
	// services, or returns ErrNotApplicable.
	configureNetwork(ctx context.Context, b *Base, ex executor.Executor) error

	// preparePackageManager readies the package manager: extra
	// repositories, package manager policy, index refresh.
	preparePackageManager(ctx context.Context, b *Base, ex executor.Executor) error

	installPackages(ctx context.Context, b *Base, ex executor.Executor, packages []string) error

	installSnapd(ctx context.Context, b *Base, ex executor.Executor) error

	// postSetup runs family-specific finishing steps, e.g. disabling
	// unattended upgrades so they cannot fire mid-build.
	postSetup(ctx context.Context, b *Base, ex executor.Executor) error

	// cleanUp removes orphaned packages and caches to shrink the image.
	cleanUp(ctx context.Context, b *Base, ex executor.Executor) error
}

// Setup runs the full configuration pipeline against a powered-on
// environment. Stages execute strictly in order; the first failure aborts
// the attempt. A CompatibilityError means the environment must be
// discarded. A ConfigurationError may be retried by restarting the whole
// pipeline on a fresh environment; there is no mid-pipeline resumption.
func (b *Base) Setup(ctx context.Context, ex executor.Executor) error {
	b.logger.Debug("starting setup", "alias", b.alias, "compatibility_tag", b.compatibilityTag)

	if err := b.family.verifyOS(ctx, b, ex); err != nil {
		return err
	}
	if err := b.ensureInstanceConfigCompatible(ctx, ex); err != nil {
		return err
	}
	if err := b.writeEnvironment(ctx, ex); err != nil {
		return err
	}
	if err := b.waitForSystemReady(ctx, ex, b.retryWait, b.timeouts.Simple); err != nil {
		return err
	}
	if err := b.configureHostname(ctx, ex); err != nil {
		return err
	}
	if err := b.family.configureNetwork(ctx, b, ex); err != nil {
		if !errors.Is(err, ErrNotApplicable) {
			return err
		}
		b.logger.Debug("network configuration not applicable, skipping")
	}
	if err := b.waitForNetwork(ctx, ex, b.retryWait, b.timeouts.Simple); err != nil {
		return err
	}
	if err := b.family.preparePackageManager(ctx, b, ex); err != nil {
		return err
	}
	if err := b.family.installPackages(ctx, b, ex, b.packages); err != nil {
		return err
	}
	if err := b.family.installSnapd(ctx, b, ex); err != nil {
		return err
	}
	if err := b.holdSnapRefresh(ctx, ex, snapRefreshHoldTime()); err != nil {
		return err
	}
	if err := b.installSnaps(ctx, ex); err != nil {
		return err
	}
	if err := b.family.postSetup(ctx, b, ex); err != nil {
		return err
	}
	if err := b.family.cleanUp(ctx, b, ex); err != nil {
		return err
	}

	err := SaveInstanceConfig(ctx, ex, b.instanceConfigPath, InstanceConfig{
		CompatibilityTag: b.compatibilityTag,
	})
	if err != nil {
		return err
	}

	b.logger.Debug("setup complete")
	return nil
}

// Warmup re-validates a previously configured environment and waits for it
// to be usable again, e.g. after the instance was stopped and restarted.
// It never performs configuration work.
func (b *Base) Warmup(ctx context.Context, ex executor.Executor) error {
	if err := b.family.verifyOS(ctx, b, ex); err != nil {
		return err
	}
	if err := b.ensureInstanceConfigCompatible(ctx, ex); err != nil {
		return err
	}
	if err := b.waitForSystemReady(ctx, ex, b.retryWait, b.timeouts.Simple); err != nil {
		return err
	}
	return b.waitForNetwork(ctx, ex, b.retryWait, b.timeouts.Simple)
}

// WaitUntilReady polls the environment's init system until it reports a
// ready or degraded state, at retryWait intervals, for at most timeout.
// Exceeding the timeout is logged and returns nil: readiness is best
// effort, and the caller decides whether to proceed.
func (b *Base) WaitUntilReady(ctx context.Context, ex executor.Executor, retryWait, timeout time.Duration) error {
	err := b.waitForSystemReady(ctx, ex, retryWait, timeout)
	if err != nil {
		var configErr *ConfigurationError
		if errors.As(err, &configErr) {
			b.logger.Warn("environment did not report ready in time", "error", err)
			return nil
		}
		return err
	}
	return nil
}

func (b *Base) ensureInstanceConfigCompatible(ctx context.Context, ex executor.Executor) error {
	config, err := LoadInstanceConfig(ctx, ex, b.instanceConfigPath)
	if err != nil {
		return err
	}
	// No record, or a record without a tag, means setup is in progress or
	// pre-dates tagging. Assume compatible.
	if config == nil || config.CompatibilityTag == "" {
		return nil
	}
	if config.CompatibilityTag != b.compatibilityTag {
		return newCompatibilityError(
			"expected image compatibility tag %q, found %q",
			b.compatibilityTag, config.CompatibilityTag,
		)
	}
	b.logger.Debug("instance is compatible", "compatibility_tag", config.CompatibilityTag)
	return nil
}

func (b *Base) writeEnvironment(ctx context.Context, ex executor.Executor) error {
	var builder strings.Builder
	for _, entry := range b.environment {
		builder.WriteString(entry.Name)
		builder.WriteByte('=')
		builder.WriteString(entry.Value)
		builder.WriteByte('\n')
	}
	if err := ex.WriteFile(ctx, "/etc/environment", []byte(builder.String()), "0644"); err != nil {
		return newConfigurationError(err, "Failed to write /etc/environment.")
	}
	return nil
}

func (b *Base) configureHostname(ctx context.Context, ex executor.Executor) error {
	if err := ex.WriteFile(ctx, "/etc/hostname", []byte(b.hostname+"\n"), "0644"); err != nil {
		return newConfigurationError(err, "Failed to write /etc/hostname.")
	}
	_, err := ex.Run(ctx, []string{"hostname", "-F", "/etc/hostname"}, executor.RunOptions{
		Timeout: b.timeouts.Simple,
		Check:   true,
	})
	if err != nil {
		return newConfigurationError(err, "Failed to set hostname.")
	}
	return nil
}

// waitForSystemReady polls `systemctl is-system-running` until the init
// system reports running or degraded.
func (b *Base) waitForSystemReady(ctx context.Context, ex executor.Executor, retryWait, timeout time.Duration) error {
	b.logger.Debug("waiting for environment to be ready")
	return b.pollUntil(ctx, retryWait, timeout, "Timed out waiting for environment to be ready.", func(ctx context.Context) (bool, error) {
		result, err := ex.Run(ctx, []string{"systemctl", "is-system-running"}, executor.RunOptions{Timeout: retryWait + b.timeouts.Simple})
		if err != nil {
			return false, err
		}
		state := strings.TrimSpace(result.Stdout)
		if state == "running" || state == "degraded" {
			return true, nil
		}
		b.logger.Debug("init system not ready", "state", state)
		return false, nil
	})
}

// waitForNetwork polls name resolution until the environment can resolve
// an external host, confirming both connectivity and DNS.
func (b *Base) waitForNetwork(ctx context.Context, ex executor.Executor, retryWait, timeout time.Duration) error {
	b.logger.Debug("waiting for networking to be ready")
	return b.pollUntil(ctx, retryWait, timeout, "Timed out waiting for networking to be ready.", func(ctx context.Context) (bool, error) {
		result, err := ex.Run(ctx, []string{"getent", "hosts", "snapcraft.io"}, executor.RunOptions{Timeout: retryWait + b.timeouts.Simple})
		if err != nil {
			return false, err
		}
		return result.ExitCode == 0, nil
	})
}

// pollUntil blocks the calling goroutine, re-running check at retryWait
// intervals until it reports done, the timeout elapses, or the context is
// cancelled.
func (b *Base) pollUntil(ctx context.Context, retryWait, timeout time.Duration, timeoutMsg string, check func(context.Context) (bool, error)) error {
	if retryWait <= 0 {
		retryWait = b.retryWait
	}
	deadline := time.Now().Add(timeout)
	for {
		done, err := check(ctx)
		if err != nil {
			return newConfigurationError(err, "Failed readiness check.")
		}
		if done {
			return nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return &ConfigurationError{Brief: timeoutMsg}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryWait):
		}
	}
}

// snapRefreshHoldTime returns the refresh hold expiry: one day out, in the
// RFC3339 form snapd expects.
func snapRefreshHoldTime() string {
	return time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
}
