// Package judge decides whether a new article joins an existing story
// cluster or founds a new one, and assigns its classification. The semantic
// call is delegated to an external judgment capability; everything around it
// (validation, the clarify retry, the heuristic fallback) is deterministic.
package judge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/storyline/internal/taxonomy"
	"github.com/thebtf/storyline/pkg/models"
)

// ErrMalformed marks a judgment response that could not be parsed or failed
// validation. It triggers one clarifying retry, then the heuristic fallback;
// it is never surfaced to the pipeline.
var ErrMalformed = errors.New("malformed judgment response")

// Request is the structured input for one judgment call.
type Request struct {
	Title        string
	Summary      string
	Source       string
	FeedCategory string // "" when the feed has no category

	// Category is the effective category guess (feed category when known,
	// keyword classification otherwise). When Locked, the judge is only
	// asked to pick a subcategory from Subcategories.
	Category      string
	Locked        bool
	Subcategories []string

	Candidates []models.ClusterCandidate

	// Clarify is set on the retry after a malformed or invalid response.
	Clarify bool
}

// Response is the structured output of the judgment capability, treated as
// untrusted input until validated.
type Response struct {
	Action      string   `json:"action"`
	ClusterID   string   `json:"cluster_id"`
	Reason      string   `json:"reason"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Tags        []string `json:"tags"`
}

// Capability is the external judgment call as a pure Request -> Response
// function. Tests substitute a scripted implementation.
type Capability interface {
	Judge(ctx context.Context, req Request) (Response, error)
}

// Judge wraps the capability with validation, retry and fallback.
type Judge struct {
	capability Capability
	tax        taxonomy.Provider
}

// New creates a Judge.
func New(capability Capability, tax taxonomy.Provider) *Judge {
	return &Judge{capability: capability, tax: tax}
}

// Decide returns the clustering decision for an article. Candidates may be
// empty; the article is still classified. Transport errors from the
// capability are returned as-is (the pipeline retries them with backoff);
// malformed or invalid responses are retried once with a clarifying request
// and then replaced by a heuristic create-new decision.
func (j *Judge) Decide(ctx context.Context, article models.RawArticle, candidates []models.ClusterCandidate) (models.Decision, error) {
	tax := j.tax.Current()

	effective := article.FeedCategory
	locked := effective != ""
	if !locked {
		effective = tax.Classify(article.Title)
	}

	req := Request{
		Title:         article.Title,
		Summary:       article.Summary,
		Source:        article.SourceName,
		FeedCategory:  article.FeedCategory,
		Category:      effective,
		Locked:        locked,
		Subcategories: tax.Subcategories(effective),
		Candidates:    candidates,
	}

	for attempt := 0; attempt < 2; attempt++ {
		resp, err := j.capability.Judge(ctx, req)
		if err != nil {
			if !errors.Is(err, ErrMalformed) {
				return models.Decision{}, fmt.Errorf("judgment call: %w", err)
			}
			log.Warn().Err(err).Str("title", article.Title).Int("attempt", attempt+1).
				Msg("Malformed judgment response")
			req.Clarify = true
			continue
		}

		dec, err := j.validate(resp, article, candidates, tax)
		if err != nil {
			log.Warn().Err(err).Str("title", article.Title).Int("attempt", attempt+1).
				Msg("Invalid judgment response")
			req.Clarify = true
			continue
		}
		return dec, nil
	}

	log.Warn().Str("title", article.Title).
		Msg("Judgment failed twice, using heuristic classification")
	return j.heuristic(article, tax), nil
}

// validate turns an untrusted response into a Decision or rejects it.
func (j *Judge) validate(resp Response, article models.RawArticle, candidates []models.ClusterCandidate, tax *taxonomy.Taxonomy) (models.Decision, error) {
	action := models.DecisionAction(resp.Action)
	if action != models.ActionJoinExisting && action != models.ActionCreateNew {
		return models.Decision{}, fmt.Errorf("%w: unknown action %q", ErrMalformed, resp.Action)
	}

	// Without candidates there is nothing to join.
	if len(candidates) == 0 {
		action = models.ActionCreateNew
	}

	if action == models.ActionJoinExisting {
		target := findCandidate(candidates, resp.ClusterID)
		if resp.ClusterID == "" {
			// The capability said "join" without naming a cluster: the
			// most similar offered candidate is the only sane reading.
			target = &candidates[0]
		}
		if target == nil {
			return models.Decision{}, fmt.Errorf("%w: cluster %q is not among the offered candidates", ErrMalformed, resp.ClusterID)
		}

		// Joining adopts the cluster's category; subcategory varies per
		// article but must come from that category's vocabulary.
		sub := resp.Subcategory
		if !tax.ValidSubcategory(target.Category, sub) {
			return models.Decision{}, fmt.Errorf("%w: subcategory %q not valid for category %q", ErrMalformed, sub, target.Category)
		}

		return models.Decision{
			Action:      models.ActionJoinExisting,
			ClusterID:   target.ClusterID,
			Category:    target.Category,
			Subcategory: sub,
			Tags:        cleanTags(resp.Tags),
			Reason:      resp.Reason,
		}, nil
	}

	category := resp.Category
	if article.FeedCategory != "" {
		// A known feed category is authoritative.
		category = article.FeedCategory
	}
	if category == "" {
		return models.Decision{}, fmt.Errorf("%w: empty category", ErrMalformed)
	}
	if !tax.Has(category) && category != taxonomy.GeneralCategory {
		return models.Decision{}, fmt.Errorf("%w: unknown category %q", ErrMalformed, category)
	}
	sub := resp.Subcategory
	if !tax.ValidSubcategory(category, sub) && category != taxonomy.GeneralCategory {
		return models.Decision{}, fmt.Errorf("%w: subcategory %q not valid for category %q", ErrMalformed, sub, category)
	}

	return models.Decision{
		Action:         models.ActionCreateNew,
		Category:       category,
		Subcategory:    sub,
		Tags:           cleanTags(resp.Tags),
		CanonicalTitle: article.Title,
		Reason:         resp.Reason,
	}, nil
}

// heuristic is the last-resort classification: keyword category, best-effort
// subcategory, no tags, always a new cluster.
func (j *Judge) heuristic(article models.RawArticle, tax *taxonomy.Taxonomy) models.Decision {
	category := article.FeedCategory
	if category == "" {
		category = tax.Classify(article.Title)
	}
	return models.Decision{
		Action:         models.ActionCreateNew,
		Category:       category,
		Subcategory:    tax.MatchSubcategory(category, article.Title),
		CanonicalTitle: article.Title,
		Reason:         "judgment unavailable, keyword classification",
	}
}

func findCandidate(candidates []models.ClusterCandidate, clusterID string) *models.ClusterCandidate {
	if clusterID == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].ClusterID == clusterID {
			return &candidates[i]
		}
	}
	return nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
