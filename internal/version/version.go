// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line summary for the -version flag.
func Info() string {
	return fmt.Sprintf("sirchat %s (commit %s, built %s)", Version, Commit, Date)
}
