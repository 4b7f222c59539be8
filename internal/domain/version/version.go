// Package version compares the loosely formatted version strings found in
// plugin registries, release tags and plugin metadata.
//
// Accepted shapes include "1.2.3", "v1.2", "1.4.2-patch1" and free-text
// tags, which compare as 0. A leading v/V and anything after the first '-'
// or '+' is ignored.
package version

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Normalize returns the comparable core of v: trimmed, without a leading
// v/V and without a pre-release or build suffix.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 0 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	return v
}

// Compare returns -1, 0 or +1 as a is older than, equal to, or newer than b.
//
// Cores that parse as semver are compared with x/mod/semver. Everything
// else is compared segment by segment, padding the shorter side with zeros
// and reading non-numeric segments as 0, so free-text tags such as
// "latest" rank as 0 and never outrank a numbered release.
func Compare(a, b string) int {
	ca, cb := Normalize(a), Normalize(b)

	if sa, sb := "v"+ca, "v"+cb; semver.IsValid(sa) && semver.IsValid(sb) {
		return semver.Compare(sa, sb)
	}

	return compareSegments(strings.Split(ca, "."), strings.Split(cb, "."))
}

// IsNewer reports whether latest is strictly newer than current.
// Equal versions are never newer.
func IsNewer(current, latest string) bool {
	return Compare(current, latest) < 0
}

// Equal reports whether a and b have the same normalized version.
func Equal(a, b string) bool {
	return Compare(a, b) == 0
}

func compareSegments(a, b []string) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		x, y := segment(a, i), segment(b, i)
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

func segment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
	if err != nil {
		return 0
	}
	return n
}
