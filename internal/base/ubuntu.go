package base

import (
	"context"

	"github.com/canonical/craft-providers-sub001/internal/executor"
	"github.com/canonical/craft-providers-sub001/internal/osrelease"
)

// UbuntuTag is the default compatibility tag for Ubuntu buildd bases.
const UbuntuTag = "buildd-" + DefaultTag

// ubuntuDefaultPackages is the immutable default package set for buildd
// images; callers extend it by copy, never in place.
var ubuntuDefaultPackages = []string{
	"apt-utils",
	"build-essential",
	"curl",
	"fuse",
	"udev",
	"python3",
	"python3-dev",
	"python3-pip",
	"python3-wheel",
	"python3-setuptools",
}

// NewUbuntu constructs a base configuration for Ubuntu minimal buildd
// images.
func NewUbuntu(opts Options) (*Base, error) {
	return newBase(ubuntuFamily{}, opts, familyDefaults{
		aliases:          ubuntuAliases,
		compatibilityTag: UbuntuTag,
		hostname:         "craft-buildd-instance",
		environment: []EnvVar{
			// The PATH sudo uses for secure_path on supported Ubuntu
			// releases, plus /snap/bin.
			{Name: "PATH", Value: "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin:/snap/bin"},
		},
		packages: ubuntuDefaultPackages,
	})
}

type ubuntuFamily struct{}

func (ubuntuFamily) name() string { return "ubuntu" }

func (ubuntuFamily) applyEnvironment(b *Base) {
	// apt must never prompt during setup.
	b.setEnv("DEBIAN_FRONTEND", "noninteractive")
	b.setEnv("DEBCONF_NONINTERACTIVE_SEEN", "true")
	b.setEnv("DEBIAN_PRIORITY", "critical")
}

func (ubuntuFamily) verifyOS(ctx context.Context, b *Base, ex executor.Executor) error {
	release, err := probeOSRelease(ctx, ex)
	if err != nil {
		return err
	}

	if name := release[osrelease.KeyName]; name != "Ubuntu" {
		return newCompatibilityError("expected OS %q, found %q", "Ubuntu", name)
	}

	versionID := release[osrelease.KeyVersionID]
	if b.alias == Devel {
		b.logger.Debug("ignoring OS version mismatch for rolling release", "version_id", versionID)
		return nil
	}
	if versionID != string(b.alias) {
		return newCompatibilityError("expected OS version %q, found %q", string(b.alias), versionID)
	}
	return nil
}

const networkdConfig = `[Match]
Name=eth0

[Network]
DHCP=ipv4
LinkLocalAddressing=ipv6

[DHCP]
RouteMetric=100
UseMTU=true
`

func (ubuntuFamily) configureNetwork(ctx context.Context, b *Base, ex executor.Executor) error {
	// systemd-resolved owns /etc/resolv.conf.
	err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to link resolv.conf to systemd-resolved.",
		"ln", "-sf", "/run/systemd/resolve/resolv.conf", "/etc/resolv.conf")
	if err != nil {
		return err
	}
	for _, unit := range []string{"systemd-resolved", "systemd-networkd"} {
		if unit == "systemd-networkd" {
			if err := ex.WriteFile(ctx, "/etc/systemd/network/10-eth0.network", []byte(networkdConfig), "0644"); err != nil {
				return newConfigurationError(err, "Failed to write networkd configuration.")
			}
		}
		if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to enable "+unit+".",
			"systemctl", "enable", unit); err != nil {
			return err
		}
		// Restart rather than start in case the unit is already up with
		// stale configuration.
		if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to restart "+unit+".",
			"systemctl", "restart", unit); err != nil {
			return err
		}
	}
	return nil
}

func (ubuntuFamily) preparePackageManager(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := ex.WriteFile(ctx, "/etc/apt/apt.conf.d/00no-recommends", []byte("APT::Install-Recommends \"false\";\n"), "0644"); err != nil {
		return newConfigurationError(err, "Failed to write apt configuration.")
	}
	if err := ex.WriteFile(ctx, "/etc/apt/apt.conf.d/00update-errors", []byte("APT::Update::Error-Mode \"any\";\n"), "0644"); err != nil {
		return newConfigurationError(err, "Failed to write apt configuration.")
	}
	// Index refresh time varies wildly with mirror load.
	return b.runChecked(ctx, ex, b.timeouts.Unpredictable, "Failed to update apt cache.",
		"apt-get", "update")
}

func (ubuntuFamily) installPackages(ctx context.Context, b *Base, ex executor.Executor, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	argv := append([]string{"apt-get", "install", "-y"}, packages...)
	return b.runChecked(ctx, ex, b.timeouts.Unpredictable, "Failed to install packages.", argv...)
}

func (ubuntuFamily) installSnapd(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to install snapd.",
		"apt-get", "install", "-y", "snapd"); err != nil {
		return err
	}
	if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to start snapd.",
		"systemctl", "start", "snapd.socket"); err != nil {
		return err
	}
	if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to restart snapd.",
		"systemctl", "restart", "snapd.service"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to wait for snapd seeding.",
		"snap", "wait", "system", "seed.loaded")
}

func (ubuntuFamily) postSetup(ctx context.Context, b *Base, ex executor.Executor) error {
	// Stop unattended upgrades from firing mid-build: push the list
	// verification out 10000 days and disable the upgrade itself.
	content := "APT::Periodic::Update-Package-Lists \"10000\";\n" +
		"APT::Periodic::Unattended-Upgrade \"0\";\n"
	if err := ex.WriteFile(ctx, "/etc/apt/apt.conf.d/20auto-upgrades", []byte(content), "0644"); err != nil {
		return newConfigurationError(err, "Failed to disable automatic apt upgrades.")
	}
	return nil
}

func (ubuntuFamily) cleanUp(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to remove orphaned packages.",
		"apt-get", "autoremove", "-y"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to clean apt cache.",
		"apt-get", "clean", "-y")
}
