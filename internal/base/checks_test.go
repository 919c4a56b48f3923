package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/canonical/craft-providers-sub001/internal/osrelease"
)

const oracularOSRelease = `NAME="Ubuntu"
VERSION="24.10 (Oracular Oriole)"
ID=ubuntu
VERSION_ID="24.10"
`

const focalHostRelease = `NAME="Ubuntu"
VERSION="20.04.6 LTS (Focal Fossa)"
ID=ubuntu
VERSION_ID="20.04"
`

func TestParseToolVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    toolVersion
		wantErr bool
	}{
		{"5.21.2", toolVersion{5, 21, 2}, false},
		{"5.21.2 LTS", toolVersion{5, 21, 2}, false},
		{"4.5", toolVersion{4, 5, 0}, false},
		{"  5.0.4  ", toolVersion{5, 0, 4}, false},
		{"5.21.2.9", toolVersion{5, 21, 2}, false},
		{"", toolVersion{}, true},
		{"5", toolVersion{}, true},
		{"five.oh", toolVersion{}, true},
	}

	for _, tt := range tests {
		got, err := parseToolVersion(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseToolVersion(%q) error = nil, want non-nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseToolVersion(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseToolVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToolVersionAffected(t *testing.T) {
	t.Parallel()

	bands := []toolVersion{{5, 0, 4}, {5, 21, 2}}
	tests := []struct {
		version toolVersion
		want    bool
	}{
		{toolVersion{5, 0, 3}, true},   // below band threshold
		{toolVersion{5, 0, 4}, false},  // at band threshold
		{toolVersion{5, 21, 1}, true},  // below band threshold
		{toolVersion{5, 21, 2}, false}, // at band threshold
		{toolVersion{4, 9, 0}, true},   // major below every band
		{toolVersion{5, 5, 0}, false},  // unlisted minor, same major
		{toolVersion{6, 0, 0}, false},  // newer than every band
	}

	for _, tt := range tests {
		if got := toolVersionAffected(tt.version, bands); got != tt.want {
			t.Fatalf("toolVersionAffected(%v) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestParseKernelRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    kernelVersion
		wantErr bool
	}{
		{"5.15.0-91-generic", kernelVersion{5, 15}, false},
		{"6.8.0-45-generic", kernelVersion{6, 8}, false},
		{"5.4", kernelVersion{5, 4}, false},
		{"garbage", kernelVersion{}, true},
	}

	for _, tt := range tests {
		got, err := parseKernelRelease(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseKernelRelease(%q) error = nil, want non-nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseKernelRelease(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseKernelRelease(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// setHostProbes substitutes the host OS and kernel probes for the duration
// of a test. Tests using it must not run in parallel.
func setHostProbes(t *testing.T, release string, releaseErr error, kernel kernelVersion) {
	t.Helper()
	oldOS, oldKernel := hostOSRelease, hostKernelVersion
	t.Cleanup(func() {
		hostOSRelease, hostKernelVersion = oldOS, oldKernel
	})
	hostOSRelease = func() (map[string]string, error) {
		if releaseErr != nil {
			return nil, releaseErr
		}
		return osrelease.Parse(release), nil
	}
	hostKernelVersion = func() (kernelVersion, error) {
		return kernel, nil
	}
}

func newCheckedBase(t *testing.T, alias Alias) *Base {
	t.Helper()
	b, err := NewUbuntu(Options{Alias: alias, RetryWait: time.Millisecond})
	if err != nil {
		t.Fatalf("NewUbuntu() error = %v", err)
	}
	return b
}

func TestEnsureGuestCompatible(t *testing.T) {
	tests := []struct {
		name        string
		hostRelease string
		kernel      kernelVersion
		lxdVersion  string
		wantErr     bool
	}{
		{
			name:        "old lxd and old kernel",
			hostRelease: focalHostRelease,
			kernel:      kernelVersion{5, 4},
			lxdVersion:  "5.0.3",
			wantErr:     true,
		},
		{
			name:        "old lxd alone is enough",
			hostRelease: focalHostRelease,
			kernel:      kernelVersion{5, 15},
			lxdVersion:  "5.21.1",
			wantErr:     true,
		},
		{
			name:        "old kernel alone is enough",
			hostRelease: focalHostRelease,
			kernel:      kernelVersion{5, 4},
			lxdVersion:  "5.21.2 LTS",
			wantErr:     true,
		},
		{
			name:        "fixed lxd and kernel",
			hostRelease: focalHostRelease,
			kernel:      kernelVersion{5, 15},
			lxdVersion:  "5.21.2 LTS",
			wantErr:     false,
		},
		{
			name:        "newer host is unaffected",
			hostRelease: jammyOSRelease,
			kernel:      kernelVersion{5, 4},
			lxdVersion:  "5.0.3",
			wantErr:     false,
		},
		{
			name:        "non-ubuntu host passes",
			hostRelease: "NAME=\"Fedora Linux\"\nID=fedora\nVERSION_ID=\"40\"\n",
			kernel:      kernelVersion{5, 4},
			lxdVersion:  "5.0.3",
			wantErr:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setHostProbes(t, tt.hostRelease, nil, tt.kernel)

			b := newCheckedBase(t, Oracular)
			guest := newFakeExecutor(oracularOSRelease)

			err := EnsureGuestCompatible(context.Background(), b, guest, tt.lxdVersion)
			var compatErr *CompatibilityError
			if tt.wantErr {
				if !errors.As(err, &compatErr) {
					t.Fatalf("EnsureGuestCompatible() error = %v, want CompatibilityError", err)
				}
				if compatErr.Resolution == "" {
					t.Fatal("CompatibilityError has empty resolution")
				}
				return
			}
			if err != nil {
				t.Fatalf("EnsureGuestCompatible() error = %v", err)
			}
		})
	}
}

func TestEnsureGuestCompatibleOlderGuestUnaffected(t *testing.T) {
	setHostProbes(t, focalHostRelease, nil, kernelVersion{5, 4})

	b := newCheckedBase(t, Jammy)
	guest := newFakeExecutor(jammyOSRelease)

	if err := EnsureGuestCompatible(context.Background(), b, guest, "5.0.3"); err != nil {
		t.Fatalf("EnsureGuestCompatible() error = %v, want nil", err)
	}
}

func TestEnsureGuestCompatibleSkipsNonUbuntuFamily(t *testing.T) {
	setHostProbes(t, focalHostRelease, nil, kernelVersion{5, 4})

	b, err := NewCentOS(Options{Alias: CentOS7, RetryWait: time.Millisecond})
	if err != nil {
		t.Fatalf("NewCentOS() error = %v", err)
	}
	guest := newFakeExecutor(centos7OSRelease)

	if err := EnsureGuestCompatible(context.Background(), b, guest, "5.0.3"); err != nil {
		t.Fatalf("EnsureGuestCompatible() error = %v, want nil", err)
	}
	if len(guest.commands) != 0 {
		t.Fatalf("guest was probed for a family the rule table cannot evaluate: %v", guest.commands)
	}
}

func TestEnsureGuestCompatibleUnknownHostPasses(t *testing.T) {
	setHostProbes(t, "", errors.New("no os-release"), kernelVersion{5, 4})

	b := newCheckedBase(t, Oracular)
	guest := newFakeExecutor(oracularOSRelease)

	if err := EnsureGuestCompatible(context.Background(), b, guest, "5.0.3"); err != nil {
		t.Fatalf("EnsureGuestCompatible() with unreadable host error = %v, want nil", err)
	}
}
