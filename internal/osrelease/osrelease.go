// Package osrelease reads and parses os-release descriptor files.
package osrelease

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/canonical/craft-providers-sub001/internal/executor"
)

// Path is the canonical location of the OS descriptor file.
const Path = "/etc/os-release"

// Well-known os-release keys.
const (
	KeyName      = "NAME"
	KeyID        = "ID"
	KeyVersionID = "VERSION_ID"
)

// Parse maps the key/value pairs of an os-release document. Values are
// stripped of encapsulating double quotes; malformed lines are skipped.
func Parse(content string) map[string]string {
	mappings := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		mappings[key] = strings.Trim(value, `"`)
	}
	return mappings
}

// Probe reads and parses the os-release file inside the environment.
func Probe(ctx context.Context, ex executor.Executor) (map[string]string, error) {
	result, err := ex.Run(ctx, []string{"cat", Path}, executor.RunOptions{Check: true})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", Path, err)
	}
	return Parse(result.Stdout), nil
}

// hostPath is a variable so tests can point the host probe at a fixture.
var hostPath = Path

// Host reads and parses the host's own os-release file.
func Host() (map[string]string, error) {
	content, err := os.ReadFile(hostPath)
	if err != nil {
		return nil, fmt.Errorf("read host os-release: %w", err)
	}
	return Parse(string(content)), nil
}
