package dedup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storegorm "github.com/thebtf/storyline/internal/db/gorm"
)

type fakeReservations struct {
	seen map[string]bool
}

func (f *fakeReservations) ReserveFingerprint(ctx context.Context, hash, url string) error {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[hash] {
		return storegorm.ErrDuplicate
	}
	f.seen[hash] = true
	return nil
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases scheme and host",
			input:    "HTTPS://Example.COM/News/Story",
			expected: "https://example.com/News/Story",
		},
		{
			name:     "strips utm params",
			input:    "https://example.com/story?utm_source=rss&utm_medium=feed&id=7",
			expected: "https://example.com/story?id=7",
		},
		{
			name:     "strips known tracking params",
			input:    "https://example.com/story?fbclid=abc&gclid=def",
			expected: "https://example.com/story",
		},
		{
			name:     "drops fragment",
			input:    "https://example.com/story#comments",
			expected: "https://example.com/story",
		},
		{
			name:     "drops default port",
			input:    "https://example.com:443/story",
			expected: "https://example.com/story",
		},
		{
			name:     "sorts surviving query params",
			input:    "https://example.com/story?b=2&a=1",
			expected: "https://example.com/story?a=1&b=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	_, err := NormalizeURL("/news/story")
	assert.Error(t, err)
}

func TestFingerprintStability(t *testing.T) {
	a, err := NormalizeURL("https://example.com/story?utm_source=rss")
	require.NoError(t, err)
	b, err := NormalizeURL("HTTPS://EXAMPLE.com/story#top")
	require.NoError(t, err)

	// Same article reached via different tracked links hashes identically
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, ArticleID(a), ArticleID(b))
	assert.Len(t, Fingerprint(a), 64)
}

func TestCheckAndReserve(t *testing.T) {
	d := New(&fakeReservations{})
	ctx := context.Background()

	first, err := d.CheckAndReserve(ctx, "https://example.com/story?utm_source=rss")
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.NotEmpty(t, first.ArticleID)

	// The same URL with different tracking decoration is a duplicate
	second, err := d.CheckAndReserve(ctx, "https://example.com/story?utm_source=mail")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Hash, second.Hash)

	other, err := d.CheckAndReserve(ctx, "https://example.com/other")
	require.NoError(t, err)
	assert.False(t, other.Duplicate)
}
