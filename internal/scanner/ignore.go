package scanner

import (
	"path"
	"strings"
)

// ignoreRule is one gitignore-style pattern.
type ignoreRule struct {
	pattern  string
	base     string // directory of the ignore file, "." for the root
	negate   bool
	dirOnly  bool
	anchored bool // matched against the path from base instead of any suffix
}

func parseIgnoreRule(line, base string) ignoreRule {
	r := ignoreRule{base: base}
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") || strings.Contains(line, "/") {
		r.anchored = true
		line = strings.TrimPrefix(line, "/")
	}
	r.pattern = line
	return r
}

// match reports whether rel, a slash separated path from the scan root,
// matches the rule.
func (r ignoreRule) match(rel string, isDir bool) bool {
	if r.dirOnly && !isDir {
		return false
	}
	if r.base != "." {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = strings.TrimPrefix(rel, r.base+"/")
	}
	if r.anchored {
		return globMatch(r.pattern, rel)
	}
	segments := strings.Split(rel, "/")
	return globMatch(r.pattern, segments[len(segments)-1])
}

// globMatch matches name against pattern, where a "**" segment spans any
// number of directories.
func globMatch(pattern, name string) bool {
	ps, ns := strings.Split(pattern, "/"), strings.Split(name, "/")
	var walk func(ps, ns []string) bool
	walk = func(ps, ns []string) bool {
		for len(ps) > 0 {
			if ps[0] == "**" {
				for i := 0; i <= len(ns); i++ {
					if walk(ps[1:], ns[i:]) {
						return true
					}
				}
				return false
			}
			if len(ns) == 0 {
				return false
			}
			if ok, err := path.Match(ps[0], ns[0]); err != nil || !ok {
				return false
			}
			ps, ns = ps[1:], ns[1:]
		}
		return len(ns) == 0
	}
	return walk(ps, ns)
}

type ignoreRules []ignoreRule

// ignored applies the rules in order; a later negation re-includes a path.
func (rules ignoreRules) ignored(rel string, isDir bool) bool {
	ignored := false
	for _, r := range rules {
		if r.match(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}
