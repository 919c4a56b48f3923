package base

import (
	"errors"
	"fmt"

	"github.com/canonical/craft-providers-sub001/internal/executor"
)

// CompatibilityError reports an environment that does not match its base
// configuration: wrong OS, wrong release, or a stale compatibility tag.
// The environment must be discarded; retrying setup on it cannot succeed.
type CompatibilityError struct {
	// Reason is a human-readable description of the incompatibility.
	Reason string

	// Resolution recommends how to proceed.
	Resolution string
}

func (e *CompatibilityError) Error() string {
	return fmt.Sprintf("incompatible base detected: %s", e.Reason)
}

func newCompatibilityError(format string, args ...any) *CompatibilityError {
	return &CompatibilityError{
		Reason:     fmt.Sprintf(format, args...),
		Resolution: "Clean the incompatible instance and retry the requested operation.",
	}
}

// ConfigurationError reports a setup step whose underlying command failed.
// The caller may retry by restarting the whole pipeline from scratch;
// intermediate state is not tracked, so resuming mid-pipeline is not
// supported.
type ConfigurationError struct {
	// Brief is a short description of the failed step.
	Brief string

	// Details carries captured process diagnostics, if any.
	Details string

	err error
}

func (e *ConfigurationError) Error() string {
	return e.Brief
}

func (e *ConfigurationError) Unwrap() error {
	return e.err
}

// newConfigurationError wraps err, lifting process diagnostics out of an
// *executor.ExitError when present.
func newConfigurationError(err error, format string, args ...any) *ConfigurationError {
	configErr := &ConfigurationError{
		Brief: fmt.Sprintf(format, args...),
		err:   err,
	}
	var exitErr *executor.ExitError
	if errors.As(err, &exitErr) {
		configErr.Details = exitErr.Details()
	}
	return configErr
}

// ErrNotApplicable is returned by a family setup stage that does not apply
// to that family, e.g. network manager configuration on families without
// one. The pipeline treats it as a skip, not a failure.
var ErrNotApplicable = errors.New("stage not applicable to this OS family")
