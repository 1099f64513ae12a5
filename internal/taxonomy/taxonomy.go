// Package taxonomy manages the category and subcategory vocabulary used for
// article classification. A Taxonomy is an immutable snapshot: callers hold a
// *Taxonomy and never observe mutation; reloads produce a fresh snapshot.
package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/storyline/pkg/similarity"
)

// GeneralCategory is the fallback when no category can be determined.
const GeneralCategory = "General"

// Category describes one top-level news category.
type Category struct {
	Name          string   `yaml:"name"`
	Subcategories []string `yaml:"subcategories"`
	// Keywords drive the heuristic classifier used when the judgment
	// capability is unavailable and no feed category is known.
	Keywords []string `yaml:"keywords"`
}

// file is the top-level YAML structure.
type file struct {
	Categories []Category `yaml:"categories"`
}

// Taxonomy holds loaded categories, keyed by name. Immutable after build.
type Taxonomy struct {
	byName map[string]*Category
	order  []string // preserves definition order
}

// Provider yields the current taxonomy snapshot. Implemented by Static and
// by the file watcher.
type Provider interface {
	Current() *Taxonomy
}

// Static is a Provider that always returns the same snapshot.
type Static struct{ T *Taxonomy }

// Current implements Provider.
func (s Static) Current() *Taxonomy { return s.T }

// New builds a Taxonomy from a category list.
func New(categories []Category) *Taxonomy {
	t := &Taxonomy{byName: make(map[string]*Category, len(categories))}
	for i := range categories {
		c := categories[i]
		if _, dup := t.byName[c.Name]; dup {
			continue
		}
		t.byName[c.Name] = &c
		t.order = append(t.order, c.Name)
	}
	return t
}

// Load reads the YAML file at path. If the file does not exist, the default
// taxonomy is returned (not an error).
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy %s defines no categories", path)
	}
	return New(f.Categories), nil
}

// Categories returns all category names in definition order.
func (t *Taxonomy) Categories() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether name is a known category.
func (t *Taxonomy) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Subcategories returns the fixed subcategory list for a category, or nil
// when the category is unknown.
func (t *Taxonomy) Subcategories(category string) []string {
	c, ok := t.byName[category]
	if !ok {
		return nil
	}
	out := make([]string, len(c.Subcategories))
	copy(out, c.Subcategories)
	return out
}

// ValidSubcategory reports whether sub is in category's vocabulary.
// A category with no vocabulary accepts any non-empty subcategory.
func (t *Taxonomy) ValidSubcategory(category, sub string) bool {
	c, ok := t.byName[category]
	if !ok || len(c.Subcategories) == 0 {
		return sub != ""
	}
	for _, s := range c.Subcategories {
		if s == sub {
			return true
		}
	}
	return false
}

// Classify assigns a category from title keywords. Used as the heuristic
// fallback when no feed category is known.
func (t *Taxonomy) Classify(title string) string {
	terms := similarity.ExtractTerms(title)
	best, bestHits := GeneralCategory, 0
	for _, name := range t.order {
		hits := 0
		for _, kw := range t.byName[name].Keywords {
			if terms[kw] {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = name, hits
		}
	}
	return best
}

// MatchSubcategory picks the subcategory whose terms best overlap the title,
// or "" when nothing matches. Used by the heuristic fallback classifier.
func (t *Taxonomy) MatchSubcategory(category, title string) string {
	c, ok := t.byName[category]
	if !ok {
		return ""
	}
	titleTerms := similarity.ExtractTerms(title)
	best, bestScore := "", 0.0
	for _, sub := range c.Subcategories {
		score := similarity.Jaccard(titleTerms, similarity.ExtractTerms(sub))
		if score > bestScore {
			best, bestScore = sub, score
		}
	}
	return best
}
