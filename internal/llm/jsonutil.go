package llm

import (
	"regexp"
	"strings"
)

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls the first complete JSON object out of a model reply.
// Code fences, leading prose and trailing commas are tolerated. It returns ""
// when no balanced object is present.
func ExtractJSON(content string) string {
	if m := fencePattern.FindStringSubmatch(content); len(m) > 1 {
		if obj := firstObject(m[1]); obj != "" {
			return trailingCommaPattern.ReplaceAllString(obj, "$1")
		}
	}
	obj := firstObject(content)
	if obj == "" {
		return ""
	}
	return trailingCommaPattern.ReplaceAllString(obj, "$1")
}

// firstObject scans for the first '{' and returns the text up to its
// matching '}', skipping braces inside string literals.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
