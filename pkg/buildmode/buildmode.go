// Package buildmode identifies whether the terminal runs a development or a
// release build. Several security policies relax in development builds only.
package buildmode

import (
	"fmt"
	"strings"
)

// Mode is the build flavor the terminal was started with.
type Mode string

const (
	Development Mode = "development"
	Release     Mode = "release"
)

// Parse accepts the config spelling of a mode. "debug" and "dev" are
// accepted as aliases for Development, "prod" and "production" for Release.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "development", "dev", "debug":
		return Development, nil
	case "release", "prod", "production":
		return Release, nil
	default:
		return "", fmt.Errorf("unknown build mode %q (want development or release)", s)
	}
}

// IsDevelopment reports whether m relaxes build-mode gated policies.
// Anything other than Development is treated as Release.
func (m Mode) IsDevelopment() bool {
	return m == Development
}

func (m Mode) String() string {
	if m == "" {
		return string(Release)
	}
	return string(m)
}
