package venv

import (
	"regexp"
	"strings"
)

// splitNameRe captures the distribution name before any version specifier,
// extras marker, or environment marker.
var splitNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+`)

// ParseRequirements turns a requirements document into individual install
// arguments. Blank lines and full-line comments are dropped, inline comments
// are stripped, and entries whose package name matches exclude are filtered
// out. Ordering of the remaining entries is preserved.
func ParseRequirements(content string, exclude *regexp.Regexp) []string {
	var out []string
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// pip treats " #" as the start of an inline comment
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}
		if exclude != nil {
			name := splitNameRe.FindString(line)
			if name != "" && exclude.MatchString(name) {
				continue
			}
		}
		out = append(out, line)
	}
	return out
}
