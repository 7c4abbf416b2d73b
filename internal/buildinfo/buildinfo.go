package buildinfo

import "fmt"

// These variables are set via -ldflags at build time.
// Defaults are suitable for local/dev builds.

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// String is shown on the about page and by the CLI.
func String() string {
	s := Version
	if Commit != "" {
		s += fmt.Sprintf(" (%s)", Commit)
	}
	if BuiltAt != "" {
		s += " built " + BuiltAt
	}
	return s
}
