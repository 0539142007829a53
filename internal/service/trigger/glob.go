package trigger

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

var globCache sync.Map

// MatchPath reports whether path matches pattern. "**" spans any number of
// segments, "*" stays within one segment, "?" is one non-separator character
// and every other character, dots included, is literal.
func MatchPath(pattern, path string) bool {
	return compileGlob(pattern).MatchString(strings.TrimPrefix(path, "/"))
}

func anyMatch(patterns, paths []string) bool {
	for _, path := range paths {
		for _, pattern := range patterns {
			if MatchPath(pattern, path) {
				return true
			}
		}
	}
	return false
}

func compileGlob(pattern string) *regexp.Regexp {
	if cached, ok := globCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re := regexp.MustCompile(globToRegexp(strings.TrimPrefix(strings.TrimSpace(pattern), "/")))
	globCache.Store(pattern, re)
	return re
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); {
		rest := pattern[i:]
		switch {
		case strings.HasPrefix(rest, "**/"):
			b.WriteString("(?:.*/)?")
			i += 3
		case strings.HasPrefix(rest, "**"):
			b.WriteString(".*")
			i += 2
		case rest[0] == '*':
			b.WriteString("[^/]*")
			i++
		case rest[0] == '?':
			b.WriteString("[^/]")
			i++
		default:
			r, size := utf8.DecodeRuneInString(rest)
			b.WriteString(regexp.QuoteMeta(string(r)))
			i += size
		}
	}
	b.WriteString("$")
	return b.String()
}
