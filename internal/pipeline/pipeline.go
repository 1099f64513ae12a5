// Package pipeline wires deduplication, embedding, candidate retrieval,
// judgment and persistence into the article processing loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	storegorm "github.com/thebtf/storyline/internal/db/gorm"
	"github.com/thebtf/storyline/internal/dedup"
	"github.com/thebtf/storyline/internal/embedding"
	"github.com/thebtf/storyline/internal/retriever"
	"github.com/thebtf/storyline/pkg/models"
)

// ErrSourceDrained is returned by a Source when no more articles will come.
var ErrSourceDrained = errors.New("article source drained")

// Source hands articles to the worker pool. Next blocks until an article is
// available, the source is drained, or ctx is done.
type Source interface {
	Next(ctx context.Context) (models.RawArticle, error)
}

// Decider is the judgment step. Implemented by judge.Judge.
type Decider interface {
	Decide(ctx context.Context, article models.RawArticle, candidates []models.ClusterCandidate) (models.Decision, error)
}

// Config tunes the worker pool and retry behavior.
type Config struct {
	Workers       int
	RetryAttempts int
	RetryBase     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 12
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	return c
}

// Report is a snapshot of pipeline counters.
type Report struct {
	Processed  int64
	Duplicates int64
	Rejected   int64
	Created    int64
	Joined     int64
	Parked     int64
}

// Pipeline processes articles end to end. Safe for concurrent use.
type Pipeline struct {
	cfg       Config
	dedup     *dedup.Deduplicator
	embedder  embedding.Embedder
	retriever *retriever.Retriever
	decider   Decider
	store     *storegorm.ClusterStore
	locker    Locker
	metrics   *metrics

	processed  atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	created    atomic.Int64
	joined     atomic.Int64
	parkedN    atomic.Int64
}

// New assembles a pipeline from its stages.
func New(cfg Config, dd *dedup.Deduplicator, emb embedding.Embedder, ret *retriever.Retriever, dec Decider, store *storegorm.ClusterStore, locker Locker) *Pipeline {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &Pipeline{
		cfg:       cfg.withDefaults(),
		dedup:     dd,
		embedder:  emb,
		retriever: ret,
		decider:   dec,
		store:     store,
		locker:    locker,
		metrics:   newMetrics(),
	}
}

// Run consumes the source with a bounded worker pool until it drains or ctx
// is canceled. Per-article failures are handled inside ProcessOne (parked or
// rejected); only source and context errors stop the pool.
func (p *Pipeline) Run(ctx context.Context, source Source) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				raw, err := source.Next(ctx)
				if err != nil {
					if errors.Is(err, ErrSourceDrained) {
						return nil
					}
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Error().Err(err).Msg("Article source failed")
					return err
				}
				if err := p.ProcessOne(ctx, raw); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Error().Err(err).Str("url", raw.URL).Msg("Article processing failed")
				}
			}
		})
	}

	return g.Wait()
}

// ProcessOne runs a single article through the full pipeline. Duplicates and
// parked articles are not errors; an error return means the article was
// rejected outright (for example an unparseable URL).
func (p *Pipeline) ProcessOne(ctx context.Context, raw models.RawArticle) error {
	res, err := p.dedup.CheckAndReserve(ctx, raw.URL)
	if err != nil {
		p.rejected.Add(1)
		return fmt.Errorf("deduplicate %q: %w", raw.URL, err)
	}
	if res.Duplicate {
		p.duplicates.Add(1)
		p.metrics.duplicates.Add(ctx, 1)
		log.Debug().Str("url", raw.URL).Msg("Duplicate article skipped")
		return nil
	}

	return p.processReserved(ctx, raw, res)
}

// processReserved handles an article whose fingerprint is already reserved:
// embed, retrieve, judge, commit. Exhausted retries park the article under
// its fingerprint instead of dropping it.
func (p *Pipeline) processReserved(ctx context.Context, raw models.RawArticle, res dedup.Result) error {
	var emb []float32
	err := withRetry(ctx, p.cfg.RetryAttempts, p.cfg.RetryBase, "embed", func() error {
		var err error
		emb, err = p.embedder.Embed(ctx, raw.EmbeddingText())
		return err
	})
	if err != nil {
		return p.park(ctx, raw, res.Hash, "embed", err)
	}

	var candidates []models.ClusterCandidate
	err = withRetry(ctx, p.cfg.RetryAttempts, p.cfg.RetryBase, "retrieve", func() error {
		var err error
		candidates, err = p.retriever.FindCandidates(ctx, emb, raw.FeedCategory)
		return err
	})
	if err != nil {
		return p.park(ctx, raw, res.Hash, "retrieve", err)
	}

	var decision models.Decision
	err = withRetry(ctx, p.cfg.RetryAttempts, p.cfg.RetryBase, "judge", func() error {
		var err error
		decision, err = p.decider.Decide(ctx, raw, candidates)
		return err
	})
	if err != nil {
		return p.park(ctx, raw, res.Hash, "judge", err)
	}

	article := &models.Article{
		ArticleID:      res.ArticleID,
		URL:            res.NormalizedURL,
		UniquenessHash: res.Hash,
		SourceName:     raw.SourceName,
		Title:          raw.Title,
		Summary:        raw.Summary,
		PublishedAt:    raw.PublishedAt,
		Category:       decision.Category,
		Subcategory:    decision.Subcategory,
		Tags:           decision.Tags,
		Embedding:      emb,
	}

	clusterID, err := p.commit(ctx, article, decision)
	if err != nil {
		if errors.Is(err, storegorm.ErrDuplicate) {
			// Another worker committed the same URL between our
			// reservation and commit. Their copy stands.
			p.duplicates.Add(1)
			p.metrics.duplicates.Add(ctx, 1)
			return nil
		}
		return p.park(ctx, raw, res.Hash, "persist", err)
	}

	p.processed.Add(1)
	p.metrics.addProcessed(ctx, decision.Category)
	if decision.Action == models.ActionCreateNew {
		p.created.Add(1)
		p.metrics.created.Add(ctx, 1)
	} else {
		p.joined.Add(1)
		p.metrics.joined.Add(ctx, 1)
	}

	log.Info().Str("article_id", article.ArticleID).Str("cluster_id", clusterID).
		Str("action", string(decision.Action)).Str("category", decision.Category).
		Msg("Article clustered")
	return nil
}

// commit persists the decision. Founding a new cluster holds the category
// lock for the duration of the database transaction only; joins need no
// lock because the target cluster already exists.
func (p *Pipeline) commit(ctx context.Context, article *models.Article, decision models.Decision) (string, error) {
	if decision.Action != models.ActionCreateNew {
		return p.store.Commit(ctx, article, decision)
	}

	unlock, err := p.locker.Lock(ctx, decision.Category)
	if err != nil {
		return "", fmt.Errorf("category lock %q: %w", decision.Category, err)
	}
	defer unlock()
	return p.store.Commit(ctx, article, decision)
}

// park records the article for later reprocessing. The fingerprint stays
// reserved so re-deliveries of the same URL remain duplicates.
func (p *Pipeline) park(ctx context.Context, raw models.RawArticle, hash, stage string, cause error) error {
	if err := p.store.Park(ctx, raw, hash, stage, cause.Error()); err != nil {
		return fmt.Errorf("park article after %s failure: %w (original: %v)", stage, err, cause)
	}
	p.parkedN.Add(1)
	p.metrics.parked.Add(ctx, 1)
	log.Warn().Err(cause).Str("url", raw.URL).Str("stage", stage).
		Msg("Article parked after exhausted retries")
	return nil
}

// ReprocessParked replays every parked article through the pipeline stages
// that failed, removing entries that now succeed. Articles that fail again
// are re-parked with a bumped attempt count.
func (p *Pipeline) ReprocessParked(ctx context.Context) (int, error) {
	entries, err := p.store.ListParked(ctx)
	if err != nil {
		return 0, fmt.Errorf("list parked: %w", err)
	}

	recovered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}

		normalized, err := dedup.NormalizeURL(entry.Article.URL)
		if err != nil {
			// Unrecoverable entry; drop it rather than retrying forever.
			log.Error().Err(err).Str("url", entry.Article.URL).Msg("Dropping unparseable parked article")
			if err := p.store.DeleteParked(ctx, entry.Hash); err != nil {
				return recovered, fmt.Errorf("delete parked: %w", err)
			}
			continue
		}

		if err := p.store.DeleteParked(ctx, entry.Hash); err != nil {
			return recovered, fmt.Errorf("delete parked: %w", err)
		}

		res := dedup.Result{
			ArticleID:     dedup.ArticleID(normalized),
			Hash:          entry.Hash,
			NormalizedURL: normalized,
		}
		if err := p.processReserved(ctx, entry.Article, res); err != nil {
			log.Error().Err(err).Str("url", entry.Article.URL).Msg("Parked article failed again")
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Report returns a snapshot of the counters since startup.
func (p *Pipeline) Report() Report {
	return Report{
		Processed:  p.processed.Load(),
		Duplicates: p.duplicates.Load(),
		Rejected:   p.rejected.Load(),
		Created:    p.created.Load(),
		Joined:     p.joined.Load(),
		Parked:     p.parkedN.Load(),
	}
}
