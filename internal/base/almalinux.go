package base

import (
	"context"

	"github.com/canonical/craft-providers-sub001/internal/executor"
	"github.com/canonical/craft-providers-sub001/internal/osrelease"
)

// AlmaLinuxTag is the default compatibility tag for AlmaLinux bases.
const AlmaLinuxTag = "almalinux-" + DefaultTag

var almaLinuxDefaultPackages = []string{
	"autoconf",
	"automake",
	"gcc",
	"gcc-c++",
	"git",
	"make",
	"patch",
}

// NewAlmaLinux constructs a base configuration for AlmaLinux images.
func NewAlmaLinux(opts Options) (*Base, error) {
	return newBase(almaLinuxFamily{}, opts, familyDefaults{
		aliases:          almaLinuxAliases,
		compatibilityTag: AlmaLinuxTag,
		hostname:         "craft-almalinux-instance",
		environment: []EnvVar{
			{Name: "PATH", Value: "/usr/local/sbin:/usr/local/bin:/sbin:/bin:/usr/sbin:/usr/bin:/var/lib/snapd/bin:/snap/bin"},
		},
		packages: almaLinuxDefaultPackages,
	})
}

type almaLinuxFamily struct{}

func (almaLinuxFamily) name() string { return "almalinux" }

func (almaLinuxFamily) applyEnvironment(*Base) {}

func (almaLinuxFamily) verifyOS(ctx context.Context, b *Base, ex executor.Executor) error {
	release, err := probeOSRelease(ctx, ex)
	if err != nil {
		return err
	}

	osID := release[osrelease.KeyID]
	if osID != "almalinux" && osID != "rhel" {
		return newCompatibilityError("expected OS %q, found %q", "almalinux", osID)
	}
	if versionID := release[osrelease.KeyVersionID]; versionID != string(b.alias) {
		return newCompatibilityError("expected OS version %q, found %q", string(b.alias), versionID)
	}
	return nil
}

// AlmaLinux images use neither systemd-resolved nor systemd-networkd.
func (almaLinuxFamily) configureNetwork(context.Context, *Base, executor.Executor) error {
	return ErrNotApplicable
}

func (almaLinuxFamily) preparePackageManager(ctx context.Context, b *Base, ex executor.Executor) error {
	// epel-release provides snapd.
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to enable extra repos.",
		"dnf", "install", "-y", "epel-release"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Unpredictable, "Failed to update system using dnf.",
		"dnf", "update", "-y")
}

func (almaLinuxFamily) installPackages(ctx context.Context, b *Base, ex executor.Executor, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	argv := append([]string{"dnf", "install", "-y"}, packages...)
	return b.runChecked(ctx, ex, b.timeouts.Unpredictable, "Failed to install packages.", argv...)
}

func (almaLinuxFamily) installSnapd(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to install snapd.",
		"dnf", "install", "-y", "snapd"); err != nil {
		return err
	}
	if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to enable snapd.",
		"systemctl", "enable", "--now", "snapd.socket"); err != nil {
		return err
	}
	if err := b.runChecked(ctx, ex, b.timeouts.Simple, "Failed to link /snap.",
		"ln", "-sf", "/var/lib/snapd/snap", "/snap"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to wait for snapd seeding.",
		"snap", "wait", "system", "seed.loaded")
}

func (almaLinuxFamily) postSetup(context.Context, *Base, executor.Executor) error {
	return nil
}

func (almaLinuxFamily) cleanUp(ctx context.Context, b *Base, ex executor.Executor) error {
	if err := b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to remove orphaned packages.",
		"dnf", "autoremove", "-y"); err != nil {
		return err
	}
	return b.runChecked(ctx, ex, b.timeouts.Complex, "Failed to clean dnf cache.",
		"dnf", "clean", "packages", "-y")
}
