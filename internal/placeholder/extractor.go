// Package placeholder finds and substitutes {{name}} tokens in template text.
package placeholder

import (
	"regexp"
	"strings"
)

// Extractor finds placeholder names in text
type Extractor interface {
	Extract(text string) []string
}

// tokenPattern matches {{ name }} where name is letters, digits, underscore or dot.
// Brace-count anchoring is checked separately since RE2 has no lookaround.
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// BraceExtractor matches tokens wrapped in exactly two braces on each side.
// A candidate preceded by '{' or followed by '}' is rejected, so "{{{x}}}" yields nothing.
type BraceExtractor struct{}

// Extract returns the unique placeholder names in order of first appearance
func (BraceExtractor) Extract(text string) []string {
	names := make([]string, 0)
	seen := make(map[string]struct{})
	collect(text, seen, &names)
	return names
}

func collect(text string, seen map[string]struct{}, names *[]string) {
	for _, loc := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && text[start-1] == '{' {
			continue
		}
		if end < len(text) && text[end] == '}' {
			continue
		}

		name := strings.TrimSpace(text[loc[2]:loc[3]])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		*names = append(*names, name)
	}
}

var defaultExtractor Extractor = BraceExtractor{}

// ExtractPlaceholderNames returns the unique {{name}} tokens of text in first-seen order
func ExtractPlaceholderNames(text string) []string {
	return defaultExtractor.Extract(text)
}

// ExtractAll extracts from each text in turn and merges the results,
// keeping first-seen order across all of them. Texts are scanned separately
// so a token can never span two of them.
func ExtractAll(texts ...string) []string {
	names := make([]string, 0)
	seen := make(map[string]struct{})
	for _, text := range texts {
		for _, name := range defaultExtractor.Extract(text) {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
