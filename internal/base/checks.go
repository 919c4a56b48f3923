package base

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/canonical/craft-providers-sub001/internal/executor"
	"github.com/canonical/craft-providers-sub001/internal/osrelease"
)

// toolVersion is a backend tool (LXD) release triple.
type toolVersion struct {
	major, minor, patch int
}

// kernelVersion is a host kernel release pair.
type kernelVersion struct {
	major, minor int
}

// versionRule describes one known-bad region of the host/guest/tool/kernel
// matrix. A rule fires when host <= hostMax, guest >= guestMin, and the
// tool version falls in a bad band or the kernel is below kernelMin.
type versionRule struct {
	hostMax   Alias
	guestMin  Alias
	toolBands []toolVersion
	kernelMin kernelVersion
}

// invalidVersions is loaded once and never mutated. It encodes only known
// breakage; combinations it does not cover are presumed compatible.
//
// A focal-or-older host running an oracular-or-newer guest needs
// LXD >= 5.0.4 or >= 5.21.2 and a 5.15+ kernel, otherwise containers hit
// undiagnosable systemd failures from the cgroup v1/v2 mismatch.
var invalidVersions = []versionRule{
	{
		hostMax:   Focal,
		guestMin:  Oracular,
		toolBands: []toolVersion{{5, 0, 4}, {5, 21, 2}},
		kernelMin: kernelVersion{5, 15},
	},
}

// Probes hoisted to variables so tests can substitute host state.
var (
	hostOSRelease     = osrelease.Host
	hostKernelVersion = readKernelVersion
)

// EnsureGuestCompatible rejects host/guest/tool/kernel combinations known
// to break at a level the guest cannot diagnose. It is checked once per
// launch, before trusting an environment. Combinations the rule table
// cannot evaluate (non-Ubuntu guest or host) pass trivially.
func EnsureGuestCompatible(ctx context.Context, b *Base, instance executor.Executor, lxdVersion string) error {
	if b.Family() != "ubuntu" {
		return nil
	}

	hostRelease, err := hostOSRelease()
	if err != nil {
		// Cannot identify the host; assume compatible.
		b.logger.Debug("skipping guest compatibility check", "error", err)
		return nil
	}
	if hostRelease[osrelease.KeyName] != "Ubuntu" {
		return nil
	}
	hostAlias := Alias(hostRelease[osrelease.KeyVersionID])
	if !ubuntuAliases[hostAlias] {
		return nil
	}

	guestRelease, err := probeOSRelease(ctx, instance)
	if err != nil {
		return err
	}
	guestAlias := Alias(guestRelease[osrelease.KeyVersionID])
	if !ubuntuAliases[guestAlias] {
		return nil
	}

	tool, err := parseToolVersion(lxdVersion)
	if err != nil {
		return err
	}

	kernel, err := hostKernelVersion()
	if err != nil {
		return fmt.Errorf("read host kernel version: %w", err)
	}

	for _, rule := range invalidVersions {
		if hostAlias.Compare(rule.hostMax) > 0 {
			continue
		}
		if guestAlias.Compare(rule.guestMin) < 0 {
			continue
		}
		if !toolVersionAffected(tool, rule.toolBands) && !kernelBelow(kernel, rule.kernelMin) {
			continue
		}
		return &CompatibilityError{
			Reason:     "this combination of guest and host OS versions requires a newer kernel and/or LXD",
			Resolution: "Ensure you have LXD >= 5.21.2 or >= 5.0.4 and kernel >= 5.15 - try the LXD snap or an HWE kernel.",
		}
	}
	return nil
}

// parseToolVersion parses a backend tool version string into a release
// triple. Trailing qualifiers ("5.21.2 LTS") are truncated at the first
// whitespace; a missing patch component defaults to zero.
func parseToolVersion(version string) (toolVersion, error) {
	fields := strings.Fields(strings.TrimSpace(version))
	if len(fields) == 0 {
		return toolVersion{}, fmt.Errorf("empty tool version string")
	}

	parts := strings.Split(fields[0], ".")
	if len(parts) < 2 {
		return toolVersion{}, fmt.Errorf("malformed tool version %q", version)
	}

	var parsed [3]int
	for i := range parts {
		if i > 2 {
			break
		}
		value, err := strconv.Atoi(parts[i])
		if err != nil {
			return toolVersion{}, fmt.Errorf("malformed tool version %q: %w", version, err)
		}
		parsed[i] = value
	}
	return toolVersion{major: parsed[0], minor: parsed[1], patch: parsed[2]}, nil
}

// toolVersionAffected reports whether the tool version falls in a known-bad
// band. A band matching on major.minor is bad below its patch. Versions
// whose major.minor matches no band are bad only when the major is below
// the smallest major listed; the bands do not enumerate every release that
// might exist, so everything else is presumed fine.
func toolVersionAffected(v toolVersion, bands []toolVersion) bool {
	for _, band := range bands {
		if band.major == v.major && band.minor == v.minor {
			return v.patch < band.patch
		}
	}

	lowestMajor := bands[0].major
	for _, band := range bands[1:] {
		if band.major < lowestMajor {
			lowestMajor = band.major
		}
	}
	return v.major < lowestMajor
}

func kernelBelow(v kernelVersion, bound kernelVersion) bool {
	if v.major != bound.major {
		return v.major < bound.major
	}
	return v.minor < bound.minor
}

// readKernelVersion extracts (major, minor) from the running kernel's
// release string, e.g. "5.15.0-91-generic".
func readKernelVersion() (kernelVersion, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return kernelVersion{}, fmt.Errorf("uname: %w", err)
	}
	return parseKernelRelease(unix.ByteSliceToString(uts.Release[:]))
}

func parseKernelRelease(release string) (kernelVersion, error) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return kernelVersion{}, fmt.Errorf("malformed kernel release %q", release)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return kernelVersion{}, fmt.Errorf("malformed kernel release %q: %w", release, err)
	}
	minor, err := strconv.Atoi(leadingDigits(parts[1]))
	if err != nil {
		return kernelVersion{}, fmt.Errorf("malformed kernel release %q: %w", release, err)
	}
	return kernelVersion{major: major, minor: minor}, nil
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}
