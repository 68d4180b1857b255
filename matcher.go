package cowboy

import (
	"regexp"
	"strings"
)

// pathMatcher is one compiled path pattern. A route holds an ordered list of
// these; the first one accepting the concrete path wins and supplies the
// named parameters.
type pathMatcher struct {
	// pattern is the original pattern text, kept for diagnostics.
	pattern string

	// segments is non-nil for literal and ":name" template patterns.
	segments []pathSegment

	// re is non-nil for regular-expression patterns. Named capture groups
	// become route parameters.
	re *regexp.Regexp
}

type pathSegment struct {
	literal string
	param   string // non-empty for ":name" segments
}

// compilePatterns compiles the polymorphic pattern argument of a route
// registration call: a string (exact or ":name" template), a precompiled
// *regexp.Regexp, or a slice of either. Anything else is a configuration
// error and panics immediately, at registration time rather than match time.
func compilePatterns(pattern any) []*pathMatcher {
	switch p := pattern.(type) {
	case string:
		return []*pathMatcher{compileString(p)}
	case *regexp.Regexp:
		return []*pathMatcher{{pattern: p.String(), re: p}}
	case []string:
		matchers := make([]*pathMatcher, 0, len(p))
		for _, s := range p {
			matchers = append(matchers, compileString(s))
		}
		return matchers
	case []*regexp.Regexp:
		matchers := make([]*pathMatcher, 0, len(p))
		for _, re := range p {
			matchers = append(matchers, &pathMatcher{pattern: re.String(), re: re})
		}
		return matchers
	case []any:
		matchers := make([]*pathMatcher, 0, len(p))
		for _, item := range p {
			matchers = append(matchers, compilePatterns(item)...)
		}
		return matchers
	default:
		panic(configErrorf("unsupported path pattern type %T (want string or *regexp.Regexp)", pattern))
	}
}

func compileString(pattern string) *pathMatcher {
	segments := splitPath(pattern)
	compiled := make([]pathSegment, 0, len(segments))
	for _, seg := range segments {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			compiled = append(compiled, pathSegment{param: seg[1:]})
		} else {
			compiled = append(compiled, pathSegment{literal: seg})
		}
	}
	return &pathMatcher{pattern: pattern, segments: compiled}
}

// match tests a concrete, tidied path and extracts named parameters.
// Parameters are always strings; no type coercion is performed.
func (m *pathMatcher) match(path string) (map[string]string, bool) {
	if m.re != nil {
		return m.matchRegexp(path)
	}

	segments := splitPath(path)
	if len(segments) != len(m.segments) {
		return nil, false
	}
	var params map[string]string
	for i, want := range m.segments {
		if want.param != "" {
			if segments[i] == "" {
				return nil, false
			}
			if params == nil {
				params = map[string]string{}
			}
			params[want.param] = segments[i]
			continue
		}
		if want.literal != segments[i] {
			return nil, false
		}
	}
	return params, true
}

func (m *pathMatcher) matchRegexp(path string) (map[string]string, bool) {
	groups := m.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}
	var params map[string]string
	for i, name := range m.re.SubexpNames() {
		if i == 0 || name == "" || i >= len(groups) {
			continue
		}
		if params == nil {
			params = map[string]string{}
		}
		params[name] = groups[i]
	}
	return params, true
}

// splitPath breaks a path into its slash-separated components, dropping the
// leading slash and any trailing slash: "/widgets/42/" -> ["widgets", "42"],
// "/" -> [""].
func splitPath(path string) []string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	components := []string{}
	start := 1
	end := 1
	for end < len(path) {
		if path[end] == '/' {
			components = append(components, path[start:end])
			start = end + 1
		}
		end++
	}
	if start != end || start == 1 {
		components = append(components, path[start:end])
	}
	return components
}
