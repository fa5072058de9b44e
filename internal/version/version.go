// Package version carries the termguard build version.
package version

import "strings"

// Version is overridden at link time with -ldflags "-X ...version.Version=...".
var Version = "dev"

// String returns Version with exactly one leading "v".
func String() string {
	return "v" + strings.TrimPrefix(Version, "v")
}
