package base

import "strings"

// Alias identifies a guest OS release supported by an OS family, e.g.
// "22.04" or "devel". Aliases of one family are totally ordered by their
// string value; the rolling "devel" alias sorts greater than every numbered
// release ('d' > [0-9]).
type Alias string

// Supported Ubuntu buildd aliases.
const (
	Xenial   Alias = "16.04"
	Bionic   Alias = "18.04"
	Focal    Alias = "20.04"
	Jammy    Alias = "22.04"
	Noble    Alias = "24.04"
	Oracular Alias = "24.10"
	Plucky   Alias = "25.04"
	Questing Alias = "25.10"
	Devel    Alias = "devel"
)

// Supported CentOS aliases.
const (
	CentOS7 Alias = "7"
)

// Supported AlmaLinux aliases.
const (
	AlmaLinux9 Alias = "9"
)

// Compare orders two aliases of the same family. It returns a negative
// value when a sorts before other, zero when equal, positive otherwise.
func (a Alias) Compare(other Alias) int {
	return strings.Compare(string(a), string(other))
}

// String implements fmt.Stringer.
func (a Alias) String() string {
	return string(a)
}

var ubuntuAliases = map[Alias]bool{
	Xenial:   true,
	Bionic:   true,
	Focal:    true,
	Jammy:    true,
	Noble:    true,
	Oracular: true,
	Plucky:   true,
	Questing: true,
	Devel:    true,
}

var centosAliases = map[Alias]bool{
	CentOS7: true,
}

var almaLinuxAliases = map[Alias]bool{
	AlmaLinux9: true,
}
