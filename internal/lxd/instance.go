package lxd

import (
	"fmt"
	"regexp"
	"strings"
)

// BaseInstancePrefix starts the name of every base (template) instance.
// This is a wire contract shared with the launcher; the garbage collector
// cannot change it.
const BaseInstancePrefix = "base-instance"

// baseInstanceNameKey is the expanded-config key carrying the full name of
// the base instance an instance was cloned from.
const baseInstanceNameKey = "image.description"

// Instance is one environment known to the backend, as reported by
// `lxc list`. The lxc output carries many more fields; only these are
// needed here.
type Instance struct {
	Name           string            `json:"name"`
	Status         string            `json:"status"`
	ExpandedConfig map[string]string `json:"expanded_config"`
}

// BaseInstanceName reports the full name of the base instance this
// instance descends from. A base instance names itself here, so derived
// instances can be matched against deleted bases.
func (i Instance) BaseInstanceName() (string, error) {
	name, ok := i.ExpandedConfig[baseInstanceNameKey]
	if !ok {
		return "", fmt.Errorf("instance %q has no %s config", i.Name, baseInstanceNameKey)
	}
	return name, nil
}

// IsBaseInstance reports whether this is a base (template) instance.
func (i Instance) IsBaseInstance() bool {
	return strings.HasPrefix(i.Name, BaseInstancePrefix)
}

// IsCurrentBaseInstance reports whether this is a base instance stamped
// with the given live compatibility tag.
func (i Instance) IsCurrentBaseInstance(compatibilityTag string) bool {
	pattern := "^" + regexp.QuoteMeta(BaseInstancePrefix) + ".*-" + regexp.QuoteMeta(compatibilityTag) + "-.*"
	return regexp.MustCompile(pattern).MatchString(i.Name)
}
