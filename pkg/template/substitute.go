package template

import (
	"regexp"
	"strings"
)

// tokenPattern matches replacement tokens of the form:
//
//	{{ HM_NAME }}
//	{{ HM_NAME:default }}
//
// The default is everything between the colon and the closing braces and may
// be quoted to preserve leading or trailing whitespace.
var tokenPattern = regexp.MustCompile(`\{\{\s*HM_([A-Za-z0-9_]+)(?::(.*?))?\s*\}\}`)

// Substitute replaces Harbormaster replacement tokens in the provided input
// with values from the given map.
//
// Resolution rules, in order:
//  1. A name present in values is always substituted with its value, even
//     when the token carries a default.
//  2. An absent name with a declared default is substituted with the default
//     literal. Matching surrounding single or double quotes are stripped.
//  3. An absent name without a default is left byte-for-byte untouched, so
//     unrelated template-like text is never corrupted.
func Substitute(input string, values map[string]string) string {
	// Short-circuit: most fragments contain no tokens at all.
	if !tokenPattern.MatchString(input) {
		return input
	}

	indices := tokenPattern.FindAllStringSubmatchIndex(input, -1)

	var builder strings.Builder
	builder.Grow(len(input))

	lastPos := 0
	for _, idx := range indices {
		fullStart, fullEnd := idx[0], idx[1]
		name := input[idx[2]:idx[3]]

		builder.WriteString(input[lastPos:fullStart])

		if value, ok := values[name]; ok {
			builder.WriteString(value)
		} else if idx[4] != -1 {
			builder.WriteString(unquote(input[idx[4]:idx[5]]))
		} else {
			// Unresolved and no default: keep the token verbatim.
			builder.WriteString(input[fullStart:fullEnd])
		}

		lastPos = fullEnd
	}
	builder.WriteString(input[lastPos:])

	return builder.String()
}

// unquote strips one pair of matching single or double quotes, if present.
// Bare defaults are returned as-is.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '\'' || first == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
