package base

import (
	"context"

	"github.com/canonical/craft-providers-sub001/internal/executor"
	"github.com/canonical/craft-providers-sub001/internal/osrelease"
)

// CentOSTag is the default compatibility tag for CentOS bases.
const CentOSTag = "centos-" + DefaultTag

var centosDefaultPackages = []string{
	"autoconf",
	"automake",
	"gcc",
	"gcc-c++",
	"git",
	"make",
	"patch",
	"rh-python38-python",
	"rh-python38-python-devel",
	"rh-python38-python-pip",
	"rh-python38-python-pip-wheel",
	"rh-python38-python-setuptools",
}

// NewCentOS constructs a base configuration for CentOS images.
func NewCentOS(opts Options) (*Base, error) {
	return newBase(centosFamily{}, opts, familyDefaults{
		aliases:          centosAliases,
		compatibilityTag: CentOSTag,
		hostname:         "craft-centos-instance",
		environment: []EnvVar{
			// /etc/profile default, plus python 3.8 from
			// centos-release-scl and /snap/bin.
			{Name: "PATH", Value: "/usr/local/sbin:/usr/local/bin:/opt/rh/rh-python38/root/usr/bin:/sbin:/bin:/usr/sbin:/usr/bin:/snap/bin"},
		},
		packages: centosDefaultPackages,
	})
}

type centosFamily struct{}

func (centosFamily) name() string { return "centos" }

func (centosFamily) applyEnvironment(*Base) {}

func (centosFamily) verifyOS(ctx context.Context, b *Base, ex executor.Executor) error {
	release, err := probeOSRelease(ctx, ex)
	if err != nil {
		return err
	}

	osID := release[osrelease.KeyID]
	if osID != "centos" && osID != "rhel" {
		return newCompatibilityError("expected OS %q, found %q", "centos", osID)
	}
	if versionID := release[osrelease.KeyVersionID]; versionID != string(b.alias) {
		return newCompatibilityError("expected OS version %q, found %q", string(b.alias), versionID)
	}
	return nil
}

// CentOS images use neither systemd-resolved nor systemd-networkd.
func (centosFamily) configureNetwork(context.Context, *Base, executor.Executor) error {
	return ErrNotApplicable
}

func (centosFamily) preparePackageManager(ctx context.Context, b *Base, ex executor.Executor) error {
	// epel-release provides snapd, centos-release-scl provides python 3.8.
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to enable extra repos.",
		"yum", "install", "-y", "epel-release", "centos-release-scl"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Unpredictable, "Failed to update system using yum.",
		"yum", "update", "-y")
}

func (centosFamily) installPackages(ctx context.Context, b *Base, ex executor.Executor, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	argv := append([]string{"yum", "install", "-y"}, packages...)
	return b.runChecked(ctx, ex, b.timeouts.Unpredictable, "Failed to install packages.", argv...)
}

func (centosFamily) installSnapd(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to install snapd.",
		"yum", "install", "-y", "snapd"); err != nil {
		return err
	}
	if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to enable snapd.",
		"systemctl", "enable", "--now", "snapd.socket"); err != nil {
		return err
	}
	// Classic snaps need /snap to resolve to snapd's mount point.
	if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to link /snap.",
		"ln", "-sf", "/var/lib/snapd/snap", "/snap"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to wait for snapd seeding.",
		"snap", "wait", "system", "seed.loaded")
}

func (centosFamily) postSetup(context.Context, *Base, executor.Executor) error {
	return nil
}

func (centosFamily) cleanUp(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to remove orphaned packages.",
		"yum", "autoremove", "-y"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to clean yum cache.",
		"yum", "clean", "packages", "-y")
}
