package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	storegorm "github.com/thebtf/storyline/internal/db/gorm"
	"github.com/thebtf/storyline/internal/dedup"
	"github.com/thebtf/storyline/internal/retriever"
	"github.com/thebtf/storyline/pkg/models"
)

// fakeEmbedder returns canned vectors by title, or a scripted error.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    map[string]error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return testVector(0.01), nil
}

// scriptedDecider returns decisions keyed by article title and records the
// candidates each call saw.
type scriptedDecider struct {
	mu         sync.Mutex
	decisions  map[string]models.Decision
	err        error
	candidates map[string][]models.ClusterCandidate
}

func (s *scriptedDecider) Decide(_ context.Context, article models.RawArticle, candidates []models.ClusterCandidate) (models.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.Decision{}, s.err
	}
	if s.candidates == nil {
		s.candidates = make(map[string][]models.ClusterCandidate)
	}
	s.candidates[article.Title] = candidates
	dec, ok := s.decisions[article.Title]
	if !ok {
		return models.Decision{}, errors.New("no scripted decision")
	}
	return dec, nil
}

// sliceSource drains a fixed list of articles.
type sliceSource struct {
	mu       sync.Mutex
	articles []models.RawArticle
}

func (s *sliceSource) Next(_ context.Context) (models.RawArticle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.articles) == 0 {
		return models.RawArticle{}, ErrSourceDrained
	}
	next := s.articles[0]
	s.articles = s.articles[1:]
	return next, nil
}

func testVector(seed float32) []float32 {
	v := make([]float32, models.EmbeddingDim)
	v[0] = seed
	v[1] = 1 - seed
	return v
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder, dec Decider) (*Pipeline, *storegorm.ClusterStore) {
	t.Helper()

	store, err := storegorm.NewStore(storegorm.Config{
		Driver:   storegorm.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "pipeline.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clusters := storegorm.NewClusterStore(store)
	p := New(
		Config{Workers: 4, RetryAttempts: 2, RetryBase: time.Millisecond},
		dedup.New(clusters),
		emb,
		retriever.New(clusters, retriever.Config{}),
		dec,
		clusters,
		NewMemoryLocker(),
	)
	return p, clusters
}

func rawArticle(url, title, category string) models.RawArticle {
	return models.RawArticle{
		URL:          url,
		Title:        title,
		Summary:      "Summary of " + title,
		SourceName:   "Reuters",
		PublishedAt:  time.Now().Add(-time.Hour),
		FeedCategory: category,
	}
}

// The canonical flow: the first article founds a cluster, a near-identical
// one joins it, an unrelated one founds its own.
func TestPipelineClustersRelatedArticles(t *testing.T) {
	artA := rawArticle("https://example.com/fed-rates", "Fed raises interest rates", "Business")
	artB := rawArticle("https://other.com/fed-hike", "Federal Reserve hikes rates again", "Business")
	artD := rawArticle("https://example.com/bake-off", "Local bakery wins award", "Lifestyle")

	emb := &fakeEmbedder{vectors: map[string][]float32{
		artA.EmbeddingText(): testVector(1.0),
		artB.EmbeddingText(): testVector(0.98), // cosine vs A well above 0.85
		artD.EmbeddingText(): testVector(0.02), // nowhere near A
	}}
	dec := &scriptedDecider{decisions: map[string]models.Decision{}}

	p, store := newTestPipeline(t, emb, dec)
	ctx := context.Background()

	dec.decisions[artA.Title] = models.Decision{
		Action: models.ActionCreateNew, Category: "Business", Subcategory: "Markets",
		CanonicalTitle: artA.Title,
	}
	require.NoError(t, p.ProcessOne(ctx, artA))

	// Find the cluster A founded so B can be scripted to join it.
	committed, err := store.ArticleByID(ctx, dedup.ArticleID(mustNormalize(t, artA.URL)))
	require.NoError(t, err)

	dec.decisions[artB.Title] = models.Decision{
		Action: models.ActionJoinExisting, ClusterID: committed.ClusterID,
		Category: "Business", Subcategory: "Markets",
	}
	require.NoError(t, p.ProcessOne(ctx, artB))

	// B must have been offered A's cluster as a candidate.
	require.Len(t, dec.candidates[artB.Title], 1)
	assert.Equal(t, committed.ClusterID, dec.candidates[artB.Title][0].ClusterID)
	assert.Greater(t, dec.candidates[artB.Title][0].Similarity, 0.85)

	dec.decisions[artD.Title] = models.Decision{
		Action: models.ActionCreateNew, Category: "Lifestyle", Subcategory: "Food & Dining",
		CanonicalTitle: artD.Title,
	}
	require.NoError(t, p.ProcessOne(ctx, artD))

	// D saw no candidates: its embedding is below the threshold vs A/B.
	assert.Empty(t, dec.candidates[artD.Title])

	report := p.Report()
	assert.Equal(t, int64(3), report.Processed)
	assert.Equal(t, int64(2), report.Created)
	assert.Equal(t, int64(1), report.Joined)

	stats, err := store.ClusterStats(ctx, committed.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.MemberCount)
}

func TestPipelineDuplicateURLSkipped(t *testing.T) {
	art := rawArticle("https://example.com/story?utm_source=rss", "Some story", "Technology")
	again := rawArticle("https://example.com/story", "Some story", "Technology")

	emb := &fakeEmbedder{}
	dec := &scriptedDecider{decisions: map[string]models.Decision{
		art.Title: {Action: models.ActionCreateNew, Category: "Technology", Subcategory: "Software & Apps", CanonicalTitle: art.Title},
	}}
	p, _ := newTestPipeline(t, emb, dec)
	ctx := context.Background()

	require.NoError(t, p.ProcessOne(ctx, art))
	embedCallsAfterFirst := emb.calls
	require.NoError(t, p.ProcessOne(ctx, again))

	report := p.Report()
	assert.Equal(t, int64(1), report.Processed)
	assert.Equal(t, int64(1), report.Duplicates)
	// The duplicate never reached the embedder.
	assert.Equal(t, embedCallsAfterFirst, emb.calls)
}

func TestPipelineInvalidURLRejected(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEmbedder{}, &scriptedDecider{})

	err := p.ProcessOne(context.Background(), rawArticle("not a url", "Broken", ""))

	require.Error(t, err)
	assert.Equal(t, int64(1), p.Report().Rejected)
}

func TestPipelineParksOnEmbedFailure(t *testing.T) {
	art := rawArticle("https://example.com/flaky", "Flaky story", "Health")
	emb := &fakeEmbedder{fail: map[string]error{
		art.EmbeddingText(): errors.New("embedding backend down"),
	}}
	p, store := newTestPipeline(t, emb, &scriptedDecider{})
	ctx := context.Background()

	require.NoError(t, p.ProcessOne(ctx, art))

	report := p.Report()
	assert.Equal(t, int64(1), report.Parked)
	assert.Equal(t, int64(0), report.Processed)

	parked, err := store.ListParked(ctx)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "embed", parked[0].Stage)
	assert.Equal(t, art.URL, parked[0].Article.URL)

	// The fingerprint stays reserved while parked.
	require.NoError(t, p.ProcessOne(ctx, art))
	assert.Equal(t, int64(1), p.Report().Duplicates)
}

func TestPipelineReprocessParked(t *testing.T) {
	art := rawArticle("https://example.com/flaky", "Flaky story", "Health")
	emb := &fakeEmbedder{fail: map[string]error{
		art.EmbeddingText(): errors.New("embedding backend down"),
	}}
	dec := &scriptedDecider{decisions: map[string]models.Decision{
		art.Title: {Action: models.ActionCreateNew, Category: "Health", Subcategory: "Public Health", CanonicalTitle: art.Title},
	}}
	p, store := newTestPipeline(t, emb, dec)
	ctx := context.Background()

	require.NoError(t, p.ProcessOne(ctx, art))
	require.Equal(t, int64(1), p.Report().Parked)

	// Backend recovers.
	emb.mu.Lock()
	delete(emb.fail, art.EmbeddingText())
	emb.mu.Unlock()

	recovered, err := p.ReprocessParked(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, int64(1), p.Report().Processed)

	parked, err := store.ListParked(ctx)
	require.NoError(t, err)
	assert.Empty(t, parked)

	committed, err := store.ArticleByID(ctx, dedup.ArticleID(mustNormalize(t, art.URL)))
	require.NoError(t, err)
	assert.Equal(t, art.Title, committed.Title)
}

func TestPipelineRunDrainsSource(t *testing.T) {
	var articles []models.RawArticle
	decisions := map[string]models.Decision{}
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		art := rawArticle("https://example.com/"+name, "Story "+name, "World News")
		articles = append(articles, art)
		decisions[art.Title] = models.Decision{
			Action: models.ActionCreateNew, Category: "World News", Subcategory: "Europe",
			CanonicalTitle: art.Title,
		}
	}

	p, _ := newTestPipeline(t, &fakeEmbedder{}, &scriptedDecider{decisions: decisions})

	err := p.Run(context.Background(), &sliceSource{articles: articles})
	require.NoError(t, err)

	report := p.Report()
	// All four share the near-identical default vector, so later articles
	// see candidates; the scripted decider still creates new clusters.
	assert.Equal(t, int64(4), report.Processed)
	assert.Equal(t, int64(4), report.Created)
}

func TestPipelineJudgeFailureParks(t *testing.T) {
	art := rawArticle("https://example.com/judged", "Judged story", "Sports")
	p, store := newTestPipeline(t, &fakeEmbedder{}, &scriptedDecider{err: errors.New("api unreachable")})
	ctx := context.Background()

	require.NoError(t, p.ProcessOne(ctx, art))

	parked, err := store.ListParked(ctx)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "judge", parked[0].Stage)
	assert.Contains(t, parked[0].LastError, "api unreachable")
}

func mustNormalize(t *testing.T, rawURL string) string {
	t.Helper()
	normalized, err := dedup.NormalizeURL(rawURL)
	require.NoError(t, err)
	return normalized
}
