package feedtext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no markup",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "simple tags",
			input:    "Hello <b>bold</b> world",
			expected: "Hello  bold  world",
		},
		{
			name:     "link with attributes",
			input:    `Read <a href="https://example.com" target="_blank">more</a> here`,
			expected: "Read  more  here",
		},
		{
			name:     "multiline tag",
			input:    "Hello <img\nsrc=\"x.png\"\nalt=\"pic\"> world",
			expected: "Hello   world",
		},
		{
			name:     "cdata wrapper",
			input:    "<![CDATA[Breaking news story]]>",
			expected: "Breaking news story",
		},
		{
			name:     "self closing",
			input:    "Line one<br/>Line two",
			expected: "Line one Line two",
		},
		{
			name:     "unmatched angle bracket survives",
			input:    "Profit < loss this quarter",
			expected: "Profit < loss this quarter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripHTML(tt.input))
		})
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "plain text",
			input:    "Hello",
			expected: false,
		},
		{
			name:     "only markup",
			input:    "<p></p><br/>",
			expected: true,
		},
		{
			name:     "empty string",
			input:    "",
			expected: true,
		},
		{
			name:     "only whitespace",
			input:    "  \n ",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsEmpty(tt.input))
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text untouched",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "markup removed and whitespace collapsed",
			input:    "<p>Hello   <b>big</b>\n world</p>",
			expected: "Hello big world",
		},
		{
			name:     "entities decoded",
			input:    "Profits &amp; losses &mdash; Q3 report",
			expected: "Profits & losses — Q3 report",
		},
		{
			name:     "entirely markup",
			input:    "<p><img src=\"x.png\"></p>",
			expected: "",
		},
		{
			name:     "cdata with entities",
			input:    "<![CDATA[Tom &amp; Jerry]]>",
			expected: "Tom & Jerry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clean(tt.input))
		})
	}
}

func TestCleanLongContent(t *testing.T) {
	long := "<p>" + strings.Repeat("word ", 5000) + "</p>"
	cleaned := Clean(long)
	assert.False(t, strings.Contains(cleaned, "<"))
	assert.True(t, strings.HasPrefix(cleaned, "word word"))
}
