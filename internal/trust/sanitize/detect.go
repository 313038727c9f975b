// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sanitize is the input sanitization engine of the gate.

It offers three layers:

  - Detection: [DetectInjection] runs a battery of case-insensitive patterns
    over NFKC-normalized input. A match is a hard rejection.
  - Cleaning: [String] rejects, bounds, strips and escapes one field value.
    [Identifier] validates table and column names.
  - Builders: [Where], [OrderBy] and [Paginate] produce query fragments with
    validated identifiers and numbered placeholders only.

Detection is deliberately aggressive. Free text that legitimately contains a
SQL keyword followed by whitespace is rejected; callers that need prose should
bind it as a query parameter and skip [String].
*/
package sanitize

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// # Pattern Battery

// injectionPatterns are evaluated in order; the first match wins.
var injectionPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{
		name:    "sql_keyword",
		pattern: regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|alter|create|truncate|replace|exec|execute|declare|grant|revoke|merge)\s`),
	},
	{
		name:    "tautology",
		pattern: regexp.MustCompile(`(?i)(\b(or|and)\b\s*['"]?\s*\w+\s*['"]?\s*=\s*['"]?\s*\w+)|('\s*(or|and)\s*')`),
	},
	{
		name:    "comment_marker",
		pattern: regexp.MustCompile(`--|/\*|\*/|'\s*#`),
	},
	{
		name:    "dangerous_function",
		pattern: regexp.MustCompile(`(?i)\b(sleep|pg_sleep|benchmark|load_file|sp_executesql|char|nchar|concat|version)\s*\(`),
	},
	{
		name:    "dangerous_reference",
		pattern: regexp.MustCompile(`(?i)\b(xp_cmdshell|information_schema|pg_catalog|waitfor\s+delay|into\s+(out|dump)file)\b`),
	},
}

// Normalize applies NFKC so that compatibility forms (full-width letters,
// ligatures) cannot smuggle keywords past the battery.
func Normalize(value string) string {
	return norm.NFKC.String(value)
}

// DetectInjection reports whether value matches any injection pattern and,
// if so, the name of the first matching pattern.
func DetectInjection(value string) (bool, string) {
	normalized := Normalize(value)
	for _, candidate := range injectionPatterns {
		if candidate.pattern.MatchString(normalized) {
			return true, candidate.name
		}
	}
	return false, ""
}

// IsMalicious is the boolean form of [DetectInjection].
func IsMalicious(value string) bool {
	detected, _ := DetectInjection(value)
	return detected
}
