package extractor

import (
	"path"
	"strings"
)

// matchPattern reports whether a URL path matches a glob pattern.
//
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - other patterns use path.Match, and patterns without a slash are
//     also tried against the last path element
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok && !strings.ContainsAny(ext, "*?[/") {
		if strings.HasSuffix(p, "."+ext) {
			return true
		}
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	if !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}

// allowed applies ignore patterns first, then follow patterns. An empty
// follow list allows everything that was not ignored.
func allowed(p string, ignore, follow []string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range ignore {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(follow) == 0 {
		return true
	}
	for _, pattern := range follow {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}
