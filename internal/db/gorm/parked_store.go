package gorm

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/storyline/pkg/models"
)

// ParkedEntry is a parked article with its failure context.
type ParkedEntry struct {
	Article   models.RawArticle
	Hash      string
	Stage     string
	LastError string
	Attempts  int
}

// Park records a failed article for later reprocessing. Upserts on the
// uniqueness hash so repeated failures bump the attempt counter instead of
// erroring; the fingerprint reservation stays in place so no duplicate can
// slip in while the article is parked.
func (s *ClusterStore) Park(ctx context.Context, raw models.RawArticle, hash, stage, lastError string) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode parked payload: %w", err)
	}

	row := &ParkedArticle{
		UniquenessHash: hash,
		Payload:        string(payload),
		Stage:          stage,
		LastError:      nullString(lastError),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "uniqueness_hash"}},
		DoUpdates: clause.Assignments(map[string]any{
			"stage":      stage,
			"last_error": lastError,
			"attempts":   gorm.Expr("parked_articles.attempts + 1"),
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("park article: %w", err)
	}
	return nil
}

// ListParked returns all parked articles, most recently parked first.
func (s *ClusterStore) ListParked(ctx context.Context) ([]ParkedEntry, error) {
	var rows []ParkedArticle
	err := s.db.WithContext(ctx).Order("parked_at_epoch DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list parked: %w", err)
	}

	out := make([]ParkedEntry, 0, len(rows))
	for _, row := range rows {
		var raw models.RawArticle
		if err := json.Unmarshal([]byte(row.Payload), &raw); err != nil {
			return nil, fmt.Errorf("decode parked payload %s: %w", row.UniquenessHash, err)
		}
		out = append(out, ParkedEntry{
			Article:   raw,
			Hash:      row.UniquenessHash,
			Stage:     row.Stage,
			LastError: row.LastError.String,
			Attempts:  row.Attempts,
		})
	}
	return out, nil
}

// DeleteParked removes a parked article after a successful reprocess.
func (s *ClusterStore) DeleteParked(ctx context.Context, hash string) error {
	err := s.db.WithContext(ctx).Delete(&ParkedArticle{}, "uniqueness_hash = ?", hash).Error
	if err != nil {
		return fmt.Errorf("delete parked: %w", err)
	}
	return nil
}

// ParkedCount returns the number of currently parked articles.
func (s *ClusterStore) ParkedCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&ParkedArticle{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count parked: %w", err)
	}
	return count, nil
}
