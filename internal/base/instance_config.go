package base

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/canonical/craft-providers-sub001/internal/executor"
)

// DefaultInstanceConfigPath is the guest-side location of the persisted
// instance configuration record.
const DefaultInstanceConfigPath = "/etc/craft-instance.conf"

// InstanceConfig is the record written into every environment at the end of
// a successful setup pass. Readers ignore unknown keys so applications can
// extend the record.
type InstanceConfig struct {
	CompatibilityTag string `yaml:"compatibility_tag"`
}

// LoadInstanceConfig reads the instance configuration record from the
// environment. A missing record returns (nil, nil): setup is either
// unfinished or pre-dates tagging, and both are treated as compatible.
func LoadInstanceConfig(ctx context.Context, ex executor.Executor, path string) (*InstanceConfig, error) {
	result, err := ex.Run(ctx, []string{"test", "-f", path}, executor.RunOptions{})
	if err != nil {
		return nil, fmt.Errorf("check for instance config at %s: %w", path, err)
	}
	if result.ExitCode != 0 {
		return nil, nil
	}

	result, err = ex.Run(ctx, []string{"cat", path}, executor.RunOptions{Check: true})
	if err != nil {
		return nil, newConfigurationError(err, "Failed to read instance config in environment at %s.", path)
	}

	var config InstanceConfig
	if err := yaml.Unmarshal([]byte(result.Stdout), &config); err != nil {
		return nil, newConfigurationError(err, "Invalid instance config data at %s.", path)
	}
	return &config, nil
}

// SaveInstanceConfig persists the instance configuration record into the
// environment. The record is written whole; it is never edited in place.
func SaveInstanceConfig(ctx context.Context, ex executor.Executor, path string, config InstanceConfig) error {
	content, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal instance config: %w", err)
	}
	if err := ex.WriteFile(ctx, path, content, "0644"); err != nil {
		return newConfigurationError(err, "Failed to write instance config to %s.", path)
	}
	return nil
}
