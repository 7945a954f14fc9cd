// Package version reports the build version of the service.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Current is set at build time:
//
//	go build -ldflags "-X github.com/orris-inc/paygate/internal/shared/version.Current=1.4.0"
var Current = "dev"

// Normalize ensures version string has "v" prefix for semver compatibility.
// Examples: "1.2.3" -> "v1.2.3", "v1.2.3" -> "v1.2.3"
func Normalize(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

// String returns the canonical build version, or "dev" for builds without
// a valid semantic version.
func String() string {
	return Of(Current)
}

// Of canonicalizes v, mapping anything that is not semver to "dev".
func Of(v string) string {
	n := Normalize(v)
	if !semver.IsValid(n) {
		return "dev"
	}
	return semver.Canonical(n)
}

// IsRelease reports whether v is a release version without a prerelease tag.
func IsRelease(v string) bool {
	n := Normalize(v)
	return semver.IsValid(n) && semver.Prerelease(n) == ""
}
