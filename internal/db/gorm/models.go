// Package gorm provides GORM-based database operations for storyline.
package gorm

import (
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/thebtf/storyline/pkg/models"
)

// GORM Models

// StoryCluster is a group of articles judged to report on the same story.
// Created exactly once by a create_new decision, never deleted or merged.
type StoryCluster struct {
	ClusterID      string `gorm:"primaryKey"`
	CanonicalTitle string `gorm:"type:text;not null"`
	Category       string `gorm:"index;not null"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_clusters_created,sort:desc;not null"`
}

func (StoryCluster) TableName() string { return "story_clusters" }

// BeforeCreate hook to ensure timestamps are set.
func (c *StoryCluster) BeforeCreate(tx *gorm.DB) error {
	if c.CreatedAtEpoch == 0 {
		c.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Article is a processed article assigned to exactly one story cluster.
// ClusterID is immutable once the row is written.
type Article struct {
	ArticleID      string `gorm:"primaryKey"`
	ClusterID      string `gorm:"index:idx_articles_cluster;not null"`
	URL            string `gorm:"type:text;not null"`
	UniquenessHash string `gorm:"uniqueIndex:idx_articles_hash_unique;not null"`

	// Content fields
	SourceName            string         `gorm:"not null"`
	Title                 string         `gorm:"type:text;not null"`
	Summary               sql.NullString `gorm:"type:text"`
	PublicationTimestamp  sql.NullInt64  `gorm:"index:idx_articles_published,sort:desc"`

	// Judge-assigned classification
	Category    sql.NullString         `gorm:"index:idx_articles_category"`
	Subcategory sql.NullString
	Tags        models.JSONStringArray `gorm:"type:text"` // JSON array

	// Embedding is nullable: present only once embedding computation
	// succeeded. On SQLite the vector type degrades to text.
	Embedding *pgvector.Vector `gorm:"type:vector(768)"`

	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"not null"`

	Cluster StoryCluster `gorm:"foreignKey:ClusterID;references:ClusterID;constraint:OnDelete:RESTRICT"`
}

func (Article) TableName() string { return "articles" }

// BeforeCreate hook to ensure timestamps are set.
func (a *Article) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAtEpoch == 0 {
		a.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Fingerprint reserves a normalized-URL digest before any clustering work
// begins. The primary key doubles as the insert-if-absent guard: a duplicate
// key error is the signal that another worker won the race.
type Fingerprint struct {
	Hash           string `gorm:"primaryKey"`
	URL            string `gorm:"type:text;not null"`
	ReservedAt     string `gorm:"not null"`
	ReservedAtEpoch int64 `gorm:"not null"`
}

func (Fingerprint) TableName() string { return "article_fingerprints" }

// BeforeCreate hook to ensure timestamps are set.
func (f *Fingerprint) BeforeCreate(tx *gorm.DB) error {
	if f.ReservedAtEpoch == 0 {
		f.ReservedAtEpoch = time.Now().UnixMilli()
	}
	if f.ReservedAt == "" {
		f.ReservedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// ParkedArticle holds an article whose pipeline run exhausted its retries.
// Parked articles are reported, retrievable, and reprocessed later; they are
// never silently dropped.
type ParkedArticle struct {
	UniquenessHash string         `gorm:"primaryKey"`
	Payload        string         `gorm:"type:text;not null"` // JSON-encoded RawArticle
	Stage          string         `gorm:"index;not null"`     // pipeline stage that failed
	LastError      sql.NullString `gorm:"type:text"`
	Attempts       int            `gorm:"default:1"`
	ParkedAt       string         `gorm:"not null"`
	ParkedAtEpoch  int64          `gorm:"index:idx_parked_at,sort:desc;not null"`
}

func (ParkedArticle) TableName() string { return "parked_articles" }

// BeforeCreate hook to ensure timestamps are set.
func (p *ParkedArticle) BeforeCreate(tx *gorm.DB) error {
	if p.ParkedAtEpoch == 0 {
		p.ParkedAtEpoch = time.Now().UnixMilli()
	}
	if p.ParkedAt == "" {
		p.ParkedAt = time.Now().Format(time.RFC3339)
	}
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	return nil
}
