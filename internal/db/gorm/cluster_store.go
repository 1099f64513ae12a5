package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/thebtf/storyline/pkg/models"
	"github.com/thebtf/storyline/pkg/similarity"
)

// ErrDuplicate signals that a fingerprint (or article) already exists.
// It is the expected outcome of a duplicate-race loss, not an error to report.
var ErrDuplicate = errors.New("duplicate fingerprint")

// ErrClusterNotFound signals a join decision referencing an unknown cluster.
var ErrClusterNotFound = errors.New("story cluster not found")

// ClusterStore owns the articles, story_clusters, article_fingerprints and
// parked_articles tables. No other component writes them.
type ClusterStore struct {
	db     *gorm.DB
	driver string
}

// NewClusterStore creates a cluster store over an open Store.
func NewClusterStore(store *Store) *ClusterStore {
	return &ClusterStore{db: store.DB, driver: store.driver}
}

// isDuplicateErr reports whether err is a unique-constraint violation.
// GORM translates most of them; raw-SQL paths surface pgconn errors directly.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ReserveFingerprint atomically reserves a uniqueness hash. Returns
// ErrDuplicate when the hash is already reserved, which is how a concurrent
// discovery race is lost.
func (s *ClusterStore) ReserveFingerprint(ctx context.Context, hash, url string) error {
	fp := &Fingerprint{Hash: hash, URL: url}
	err := s.db.WithContext(ctx).Create(fp).Error
	if err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("reserve fingerprint: %w", err)
	}
	return nil
}

// Commit durably writes an article and, for a create_new decision, its new
// story cluster, in a single transaction. Returns the cluster id the article
// was attached to.
func (s *ClusterStore) Commit(ctx context.Context, art *models.Article, dec models.Decision) (string, error) {
	clusterID := dec.ClusterID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if dec.Action == models.ActionCreateNew {
			if clusterID = art.ClusterID; clusterID == "" {
				clusterID = uuid.NewString()
			}
			cluster := &StoryCluster{
				ClusterID:      clusterID,
				CanonicalTitle: dec.CanonicalTitle,
				Category:       dec.Category,
			}
			if err := tx.Create(cluster).Error; err != nil {
				return fmt.Errorf("create cluster: %w", err)
			}
		} else {
			var count int64
			if err := tx.Model(&StoryCluster{}).Where("cluster_id = ?", clusterID).Count(&count).Error; err != nil {
				return fmt.Errorf("check cluster: %w", err)
			}
			if count == 0 {
				return ErrClusterNotFound
			}
		}

		row := &Article{
			ArticleID:      art.ArticleID,
			ClusterID:      clusterID,
			URL:            art.URL,
			UniquenessHash: art.UniquenessHash,
			SourceName:     art.SourceName,
			Title:          art.Title,
			Summary:        nullString(art.Summary),
			Category:       nullString(dec.Category),
			Subcategory:    nullString(dec.Subcategory),
			Tags:           models.JSONStringArray(dec.Tags),
		}
		if !art.PublishedAt.IsZero() {
			row.PublicationTimestamp = sql.NullInt64{Int64: art.PublishedAt.UnixMilli(), Valid: true}
		}
		if len(art.Embedding) > 0 {
			vec := pgvector.NewVector(art.Embedding)
			row.Embedding = &vec
		}

		if err := tx.Create(row).Error; err != nil {
			if isDuplicateErr(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("create article: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return clusterID, nil
}

// neighborRow is the scan target for the similarity query.
type neighborRow struct {
	ArticleID            string
	ClusterID            string
	Title                string
	Summary              sql.NullString
	SourceName           string
	PublicationTimestamp sql.NullInt64
	CanonicalTitle       string
	Category             string
	Similarity           float64
}

func (r neighborRow) toModel() models.ArticleNeighbor {
	n := models.ArticleNeighbor{
		ArticleID:       r.ArticleID,
		ClusterID:       r.ClusterID,
		ClusterTitle:    r.CanonicalTitle,
		ClusterCategory: r.Category,
		Title:           r.Title,
		Summary:         r.Summary.String,
		SourceName:      r.SourceName,
		Similarity:      r.Similarity,
	}
	if r.PublicationTimestamp.Valid {
		n.PublishedAt = time.UnixMilli(r.PublicationTimestamp.Int64)
	}
	return n
}

// NearestArticles returns articles published since the given time whose
// embedding cosine similarity to query is at least threshold, most similar
// first (ties broken by newer publication). Category scopes the scan when
// non-empty. On postgres this runs over the pgvector ANN index; on SQLite
// similarity is computed in Go, which keeps the scan testable without a
// vector extension.
func (s *ClusterStore) NearestArticles(ctx context.Context, query []float32, category string, since time.Time, threshold float64, limit int) ([]models.ArticleNeighbor, error) {
	if s.driver == DriverPostgres {
		return s.nearestArticlesPgvector(ctx, query, category, since, threshold, limit)
	}
	return s.nearestArticlesScan(ctx, query, category, since, threshold, limit)
}

func (s *ClusterStore) nearestArticlesPgvector(ctx context.Context, query []float32, category string, since time.Time, threshold float64, limit int) ([]models.ArticleNeighbor, error) {
	vec := pgvector.NewVector(query)
	var rows []neighborRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT a.article_id, a.cluster_id, a.title, a.summary, a.source_name,
		        a.publication_timestamp, c.canonical_title, c.category,
		        1 - (a.embedding <=> ?) AS similarity
		 FROM articles a
		 JOIN story_clusters c ON c.cluster_id = a.cluster_id
		 WHERE a.embedding IS NOT NULL
		   AND a.publication_timestamp >= ?
		   AND (? = '' OR c.category = ?)
		   AND 1 - (a.embedding <=> ?) >= ?
		 ORDER BY similarity DESC, a.publication_timestamp DESC
		 LIMIT ?`,
		vec, since.UnixMilli(), category, category, vec, threshold, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest articles: %w", err)
	}

	out := make([]models.ArticleNeighbor, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (s *ClusterStore) nearestArticlesScan(ctx context.Context, query []float32, category string, since time.Time, threshold float64, limit int) ([]models.ArticleNeighbor, error) {
	var arts []Article
	q := s.db.WithContext(ctx).
		Where("embedding IS NOT NULL").
		Where("publication_timestamp >= ?", since.UnixMilli())
	if err := q.Find(&arts).Error; err != nil {
		return nil, fmt.Errorf("scan articles: %w", err)
	}

	out := make([]models.ArticleNeighbor, 0, len(arts))
	for _, a := range arts {
		var cluster StoryCluster
		if err := s.db.WithContext(ctx).First(&cluster, "cluster_id = ?", a.ClusterID).Error; err != nil {
			return nil, fmt.Errorf("load cluster %s: %w", a.ClusterID, err)
		}
		if category != "" && cluster.Category != category {
			continue
		}
		sim := similarity.Cosine(query, a.Embedding.Slice())
		if sim < threshold {
			continue
		}
		row := neighborRow{
			ArticleID:            a.ArticleID,
			ClusterID:            a.ClusterID,
			Title:                a.Title,
			Summary:              a.Summary,
			SourceName:           a.SourceName,
			PublicationTimestamp: a.PublicationTimestamp,
			CanonicalTitle:       cluster.CanonicalTitle,
			Category:             cluster.Category,
			Similarity:           sim,
		}
		out = append(out, row.toModel())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClusterByID loads a story cluster.
func (s *ClusterStore) ClusterByID(ctx context.Context, clusterID string) (*models.StoryCluster, error) {
	var row StoryCluster
	err := s.db.WithContext(ctx).First(&row, "cluster_id = ?", clusterID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClusterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load cluster: %w", err)
	}
	created, _ := time.Parse(time.RFC3339, row.CreatedAt)
	return &models.StoryCluster{
		ClusterID:      row.ClusterID,
		CanonicalTitle: row.CanonicalTitle,
		Category:       row.Category,
		CreatedAt:      created,
	}, nil
}

// ClusterStats computes the derived member count and latest article
// timestamp for a cluster by querying article rows.
func (s *ClusterStore) ClusterStats(ctx context.Context, clusterID string) (*models.ClusterStats, error) {
	var stats struct {
		MemberCount int64
		Latest      sql.NullInt64
	}
	err := s.db.WithContext(ctx).Model(&Article{}).
		Select("COUNT(*) AS member_count, MAX(publication_timestamp) AS latest").
		Where("cluster_id = ?", clusterID).
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("cluster stats: %w", err)
	}

	out := &models.ClusterStats{MemberCount: stats.MemberCount}
	if stats.Latest.Valid {
		out.LatestArticle = time.UnixMilli(stats.Latest.Int64)
	}
	return out, nil
}

// ArticleByID loads a committed article.
func (s *ClusterStore) ArticleByID(ctx context.Context, articleID string) (*models.Article, error) {
	var row Article
	err := s.db.WithContext(ctx).First(&row, "article_id = ?", articleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}
	return toModelArticle(&row), nil
}

func toModelArticle(row *Article) *models.Article {
	art := &models.Article{
		ArticleID:      row.ArticleID,
		ClusterID:      row.ClusterID,
		URL:            row.URL,
		UniquenessHash: row.UniquenessHash,
		SourceName:     row.SourceName,
		Title:          row.Title,
		Summary:        row.Summary.String,
		Category:       row.Category.String,
		Subcategory:    row.Subcategory.String,
		Tags:           []string(row.Tags),
	}
	if row.PublicationTimestamp.Valid {
		art.PublishedAt = time.UnixMilli(row.PublicationTimestamp.Int64)
	}
	if row.Embedding != nil {
		art.Embedding = row.Embedding.Slice()
	}
	if created, err := time.Parse(time.RFC3339, row.CreatedAt); err == nil {
		art.CreatedAt = created
	}
	return art
}

// nullString creates a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
