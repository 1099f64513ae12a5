// Package retriever finds similarity-ranked candidate clusters for a new
// article's embedding.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/storyline/pkg/models"
)

// Defaults per the clustering pipeline configuration.
const (
	DefaultThreshold = 0.85
	DefaultTopK      = 5
	DefaultWindow    = 7 * 24 * time.Hour
)

// NeighborSource is the slice of the cluster store the retriever reads.
type NeighborSource interface {
	NearestArticles(ctx context.Context, query []float32, category string, since time.Time, threshold float64, limit int) ([]models.ArticleNeighbor, error)
}

// Config tunes the candidate search.
type Config struct {
	Threshold float64       // minimum cosine similarity, default 0.85
	TopK      int           // distinct clusters to return, default 5
	Window    time.Duration // recency window, default 7 days
}

func (c Config) withDefaults() Config {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Retriever ranks candidate clusters by embedding similarity. Results are
// computed fresh on every call; nothing is cached.
type Retriever struct {
	source NeighborSource
	cfg    Config
	now    func() time.Time
}

// New creates a Retriever over a neighbor source.
func New(source NeighborSource, cfg Config) *Retriever {
	return &Retriever{source: source, cfg: cfg.withDefaults(), now: time.Now}
}

// FindCandidates returns up to TopK distinct clusters whose best article
// similarity to the embedding is at least the threshold, most similar first
// with similarity ties broken by more recent publication. feedCategory
// scopes the search when known; empty means all categories. An empty result
// is valid and signals "no match".
func (r *Retriever) FindCandidates(ctx context.Context, embedding []float32, feedCategory string) ([]models.ClusterCandidate, error) {
	since := r.now().Add(-r.cfg.Window)

	// Over-fetch article neighbors: several may share a cluster.
	limit := r.cfg.TopK * 4
	neighbors, err := r.source.NearestArticles(ctx, embedding, feedCategory, since, r.cfg.Threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	byCluster := make(map[string]*models.ClusterCandidate)
	var order []string
	for _, n := range neighbors {
		if n.Similarity < r.cfg.Threshold {
			continue
		}
		best, seen := byCluster[n.ClusterID]
		if seen && !betterMatch(n, *best) {
			continue
		}
		if !seen {
			order = append(order, n.ClusterID)
		}
		byCluster[n.ClusterID] = &models.ClusterCandidate{
			ClusterID:       n.ClusterID,
			CanonicalTitle:  n.ClusterTitle,
			Category:        n.ClusterCategory,
			BestTitle:       n.Title,
			BestSummary:     n.Summary,
			BestSource:      n.SourceName,
			BestPublishedAt: n.PublishedAt,
			Similarity:      n.Similarity,
		}
	}

	candidates := make([]models.ClusterCandidate, 0, len(byCluster))
	for _, id := range order {
		candidates = append(candidates, *byCluster[id])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].BestPublishedAt.After(candidates[j].BestPublishedAt)
	})
	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}

	log.Debug().
		Str("category", feedCategory).
		Int("neighbors", len(neighbors)).
		Int("candidates", len(candidates)).
		Msg("Candidate clusters retrieved")

	return candidates, nil
}

// betterMatch reports whether neighbor n beats the cluster's current best
// match: higher similarity, or equal similarity but newer publication.
func betterMatch(n models.ArticleNeighbor, best models.ClusterCandidate) bool {
	if n.Similarity != best.Similarity {
		return n.Similarity > best.Similarity
	}
	return n.PublishedAt.After(best.BestPublishedAt)
}
