package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms("Apple Announces the New MacBook Pro", "with an M3 chip")

	assert.True(t, terms["apple"])
	assert.True(t, terms["announces"])
	assert.True(t, terms["macbook"])
	assert.True(t, terms["pro"])
	assert.True(t, terms["chip"])
	assert.False(t, terms["the"], "stop words are dropped")
	assert.False(t, terms["an"], "short words are dropped")
	assert.False(t, terms["m3"], "words under 3 chars are dropped")
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name     string
		set1     map[string]bool
		set2     map[string]bool
		expected float64
	}{
		{
			name:     "identical sets",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"a": true, "b": true, "c": true},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			set1:     map[string]bool{"a": true, "b": true},
			set2:     map[string]bool{"c": true, "d": true},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			set1:     map[string]bool{"a": true, "b": true, "c": true},
			set2:     map[string]bool{"b": true, "c": true, "d": true},
			expected: 0.5, // intersection=2, union=4
		},
		{
			name:     "empty sets",
			set1:     map[string]bool{},
			set2:     map[string]bool{},
			expected: 1.0,
		},
		{
			name:     "one empty set",
			set1:     map[string]bool{"a": true},
			set2:     map[string]bool{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Jaccard(tt.set1, tt.set2), 0.001)
		})
	}
}
