// Package feedtext cleans feed-delivered text before it enters the pipeline.
package feedtext

import (
	"html"
	"regexp"
	"strings"
)

var (
	// htmlTagRegex matches HTML/XML tags embedded in feed summaries.
	htmlTagRegex = regexp.MustCompile(`(?s)<[^>]*>`)

	// cdataRegex matches CDATA wrappers some producers leave in place.
	cdataRegex = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
)

// StripHTML removes markup from text, keeping the visible content.
func StripHTML(text string) string {
	text = cdataRegex.ReplaceAllString(text, "$1")
	return htmlTagRegex.ReplaceAllString(text, " ")
}

// IsEmpty checks if the text carries no visible content after cleaning.
func IsEmpty(text string) bool {
	return strings.TrimSpace(StripHTML(text)) == ""
}

// Clean performs full cleaning on feed text: markup removed, entities
// decoded, whitespace collapsed. This is the main function to use before
// storing or embedding any feed content.
func Clean(text string) string {
	text = StripHTML(text)
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
