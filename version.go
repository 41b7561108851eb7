package extensionsystem

import (
	"regexp"
	"strconv"
)

// Plugin versions have up to three dot-separated numeric components and an
// optional "_<n>" build suffix, e.g. "4.1.0_2".
var versionRegexp = regexp.MustCompile(`^([0-9]+)(?:\.([0-9]+))?(?:\.([0-9]+))?(?:_([0-9]+))?$`)

// IsValidVersion reports whether version matches the plugin version grammar.
func IsValidVersion(version string) bool {
	return versionRegexp.MatchString(version)
}

// CompareVersions orders two version strings numerically per component,
// returning -1, 0, or 1. A string that does not match the version grammar
// compares equal to everything, mirroring the tolerant behavior of the
// descriptor reader (invalid versions are rejected there, not here).
func CompareVersions(a, b string) int {
	ma := versionRegexp.FindStringSubmatch(a)
	mb := versionRegexp.FindStringSubmatch(b)
	if ma == nil || mb == nil {
		return 0
	}
	for i := 1; i <= 4; i++ {
		na := versionComponent(ma, i)
		nb := versionComponent(mb, i)
		if na < nb {
			return -1
		}
		if na > nb {
			return 1
		}
	}
	return 0
}

func versionComponent(match []string, i int) int {
	if match[i] == "" {
		return 0
	}
	n, err := strconv.Atoi(match[i])
	if err != nil {
		return 0
	}
	return n
}
