package base

import "testing"

func TestAliasOrdering(t *testing.T) {
	t.Parallel()

	ordered := []Alias{Xenial, Bionic, Focal, Jammy, Noble, Oracular, Plucky, Questing, Devel}
	for i := 1; i < len(ordered); i++ {
		older, newer := ordered[i-1], ordered[i]
		if older.Compare(newer) >= 0 {
			t.Fatalf("Compare(%q, %q) = %d, want negative", older, newer, older.Compare(newer))
		}
		if newer.Compare(older) <= 0 {
			t.Fatalf("Compare(%q, %q) = %d, want positive", newer, older, newer.Compare(older))
		}
	}

	if Jammy.Compare(Jammy) != 0 {
		t.Fatalf("Compare(%q, %q) = %d, want 0", Jammy, Jammy, Jammy.Compare(Jammy))
	}
}

func TestDevelSortsAfterEveryNumberedRelease(t *testing.T) {
	t.Parallel()

	for alias := range ubuntuAliases {
		if alias == Devel {
			continue
		}
		if Devel.Compare(alias) <= 0 {
			t.Fatalf("Compare(devel, %q) = %d, want positive", alias, Devel.Compare(alias))
		}
	}
}

func TestSnapInstallArgv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		snap Snap
		want string
	}{
		{Snap{Name: "snapcraft"}, "snap install snapcraft --channel stable"},
		{Snap{Name: "snapcraft", Channel: "latest/edge"}, "snap install snapcraft --channel latest/edge"},
		{Snap{Name: "charmcraft", Channel: "3.x/stable", Classic: true}, "snap install charmcraft --channel 3.x/stable --classic"},
	}

	for _, tt := range tests {
		got := ""
		for i, arg := range tt.snap.installArgv() {
			if i > 0 {
				got += " "
			}
			got += arg
		}
		if got != tt.want {
			t.Fatalf("installArgv(%+v) = %q, want %q", tt.snap, got, tt.want)
		}
	}
}

func TestSnapValidation(t *testing.T) {
	t.Parallel()

	if err := (Snap{Name: "snapcraft"}).validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if err := (Snap{}).validate(); err == nil {
		t.Fatal("validate() with empty name error = nil, want non-nil")
	}
}
