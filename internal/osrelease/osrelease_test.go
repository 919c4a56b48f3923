package osrelease

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	content := `NAME="Ubuntu"
VERSION="22.04.4 LTS (Jammy Jellyfish)"
ID=ubuntu
ID_LIKE=debian

# a comment
VERSION_ID="22.04"
malformed line without separator
UBUNTU_CODENAME=jammy
`

	got := Parse(content)
	want := map[string]string{
		KeyName:           "Ubuntu",
		"VERSION":         "22.04.4 LTS (Jammy Jellyfish)",
		KeyID:             "ubuntu",
		"ID_LIKE":         "debian",
		KeyVersionID:      "22.04",
		"UBUNTU_CODENAME": "jammy",
	}

	if len(got) != len(want) {
		t.Fatalf("Parse() yielded %d keys, want %d: %v", len(got), len(want), got)
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("Parse()[%q] = %q, want %q", key, got[key], value)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	if got := Parse(""); len(got) != 0 {
		t.Fatalf("Parse(\"\") = %v, want empty map", got)
	}
}

func TestHost(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(fixture, []byte("NAME=\"Ubuntu\"\nVERSION_ID=\"24.04\"\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	old := hostPath
	t.Cleanup(func() { hostPath = old })
	hostPath = fixture

	release, err := Host()
	if err != nil {
		t.Fatalf("Host() error = %v", err)
	}
	if release[KeyName] != "Ubuntu" || release[KeyVersionID] != "24.04" {
		t.Fatalf("Host() = %v, want parsed fixture", release)
	}
}

func TestHostMissingFile(t *testing.T) {
	old := hostPath
	t.Cleanup(func() { hostPath = old })
	hostPath = filepath.Join(t.TempDir(), "does-not-exist")

	if _, err := Host(); err == nil {
		t.Fatal("Host() with missing file error = nil, want non-nil")
	}
}
