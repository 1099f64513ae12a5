// Package models defines the shared domain types for storyline.
package models

import (
	"time"
)

// EmbeddingDim is the fixed dimensionality of article embeddings
// (text-embedding-004 with reduced output dimensionality).
const EmbeddingDim = 768

// RawArticle is an article record as delivered by a feed producer.
// Summary and FeedCategory may be empty.
type RawArticle struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary,omitempty"`
	SourceName   string    `json:"source_name"`
	PublishedAt  time.Time `json:"published_at"`
	FeedCategory string    `json:"feed_category,omitempty"`
}

// EmbeddingText returns the text an article is embedded under.
func (r RawArticle) EmbeddingText() string {
	if r.Summary == "" {
		return r.Title
	}
	return r.Title + " " + r.Summary
}

// Article is a fully processed article assigned to exactly one story cluster.
// ClusterID is immutable once the article is committed.
type Article struct {
	ArticleID      string
	ClusterID      string
	URL            string
	UniquenessHash string
	SourceName     string
	Title          string
	Summary        string
	PublishedAt    time.Time
	Category       string
	Subcategory    string
	Tags           []string
	Embedding      []float32
	CreatedAt      time.Time
}

// StoryCluster groups articles reporting on the same real-world event or
// topic thread. Member count and latest-article timestamp are derived from
// article rows, never stored.
type StoryCluster struct {
	ClusterID      string
	CanonicalTitle string
	Category       string
	CreatedAt      time.Time
}

// ClusterStats are per-cluster aggregates computed from article rows.
type ClusterStats struct {
	MemberCount   int64
	LatestArticle time.Time
}

// ArticleNeighbor is a similarity-scan hit: an existing article whose
// embedding is close to a query embedding, annotated with its cluster.
type ArticleNeighbor struct {
	ArticleID       string
	ClusterID       string
	ClusterTitle    string
	ClusterCategory string
	Title           string
	Summary         string
	SourceName      string
	PublishedAt     time.Time
	Similarity      float64
}

// ClusterCandidate is a cluster offered to the judge as a plausible match
// for a new article, annotated with its best-matching article and score.
type ClusterCandidate struct {
	ClusterID       string
	CanonicalTitle  string
	Category        string
	BestTitle       string
	BestSummary     string
	BestSource      string
	BestPublishedAt time.Time
	Similarity      float64
}

// DecisionAction is the judge's verdict for an article.
type DecisionAction string

const (
	ActionJoinExisting DecisionAction = "join_existing"
	ActionCreateNew    DecisionAction = "create_new"
)

// Decision is the outcome of the cluster judge for one article.
// ClusterID is set for join_existing, CanonicalTitle for create_new.
type Decision struct {
	Action         DecisionAction
	ClusterID      string
	Category       string
	Subcategory    string
	Tags           []string
	CanonicalTitle string
	Reason         string
}
