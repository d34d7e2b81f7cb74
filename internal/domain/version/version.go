// Package version orders package version strings.
//
// Parseable versions (semver-like or plain numeric tokens) compare by
// precedence; anything unparseable sorts below every parseable version.
// Equal precedence falls back to plain string comparison so the order is
// total: "1.0" and "1.0.0" are distinct and always ordered the same way.
package version

import (
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Compare returns -1, 0 or +1 as a is older than, equal to or newer than b
func Compare(a, b string) int {
	va, errA := goversion.NewVersion(strings.TrimSpace(a))
	vb, errB := goversion.NewVersion(strings.TrimSpace(b))

	switch {
	case errA == nil && errB == nil:
		if c := va.Compare(vb); c != 0 {
			return c
		}
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	}
	return strings.Compare(a, b)
}

// Latest returns the maximum of versions, or "" for an empty input
func Latest(versions []string) string {
	latest := ""
	for i, v := range versions {
		if i == 0 || Compare(v, latest) > 0 {
			latest = v
		}
	}
	return latest
}

// IsOutdated reports whether installed is strictly older than latest.
// An empty installed version is never outdated: it is not installed.
func IsOutdated(installed, latest string) bool {
	if installed == "" || latest == "" {
		return false
	}
	return Compare(installed, latest) < 0
}

// SortDescending returns a copy of versions ordered newest first.
// Duplicates are dropped.
func SortDescending(versions []string) []string {
	seen := make(map[string]struct{}, len(versions))
	sorted := make([]string, 0, len(versions))
	for _, v := range versions {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		sorted = append(sorted, v)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return Compare(sorted[i], sorted[j]) > 0
	})
	return sorted
}
