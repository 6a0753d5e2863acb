package scanner

import (
	"path"
	"strings"
)

// IgnorePattern is one parsed line of an .opflowignore file. The supported
// subset of gitignore syntax: leading ! for negation, trailing / for
// directory patterns, leading / to anchor at the scan root, * ? [...] per
// path segment, and ** spanning any number of segments.
type IgnorePattern struct {
	raw      string
	negation bool
	dirOnly  bool
	anchored bool
	segments []string
}

// ParseIgnorePattern parses a single pattern line.
func ParseIgnorePattern(line string) IgnorePattern {
	p := IgnorePattern{raw: line}

	if strings.HasPrefix(line, "!") {
		p.negation = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	p.segments = strings.Split(line, "/")
	return p
}

// IsNegation reports whether this pattern un-ignores matched paths.
func (p IgnorePattern) IsNegation() bool {
	return p.negation
}

// Match reports whether relPath (slash-separated, relative to the scan
// root) matches this pattern. Directory patterns match every path below
// the named directory.
func (p IgnorePattern) Match(relPath string) bool {
	pathSegs := strings.Split(relPath, "/")

	if p.anchored {
		return matchFrom(p.segments, pathSegs, p.dirOnly)
	}
	for start := 0; start < len(pathSegs); start++ {
		if matchFrom(p.segments, pathSegs[start:], p.dirOnly) {
			return true
		}
	}
	return false
}

// matchFrom matches pattern segments against path segments from the
// beginning of both. Directory patterns accept trailing path segments;
// file patterns must consume the whole path.
func matchFrom(patSegs, pathSegs []string, dirOnly bool) bool {
	if len(patSegs) == 0 {
		return dirOnly || len(pathSegs) == 0
	}
	if patSegs[0] == "**" {
		if len(patSegs) == 1 {
			return true
		}
		for i := 0; i <= len(pathSegs); i++ {
			if matchFrom(patSegs[1:], pathSegs[i:], dirOnly) {
				return true
			}
		}
		return false
	}
	if len(pathSegs) == 0 {
		return false
	}
	if ok, err := path.Match(strings.ToLower(patSegs[0]), strings.ToLower(pathSegs[0])); err != nil || !ok {
		return false
	}
	return matchFrom(patSegs[1:], pathSegs[1:], dirOnly)
}
