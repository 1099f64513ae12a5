// Package gorm provides GORM-based database operations for storyline.
package gorm

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB, driver string) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: pgvector extension (postgres only; SQLite stores
		// embeddings as text and similarity is computed in Go).
		{
			ID: "001_vector_extension",
			Migrate: func(tx *gorm.DB) error {
				if driver != DriverPostgres {
					return nil
				}
				return tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error
			},
			Rollback: func(tx *gorm.DB) error { return nil },
		},

		// Migration 002: core tables. AutoMigrate creates indexes and the
		// fingerprint-unique constraint from struct tags.
		{
			ID: "002_core_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&StoryCluster{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&Article{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&Fingerprint{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("article_fingerprints", "articles", "story_clusters")
			},
		},

		// Migration 003: approximate nearest-neighbor index over embeddings,
		// scoped queries filter by category and publication time.
		{
			ID: "003_embedding_ann_index",
			Migrate: func(tx *gorm.DB) error {
				if driver != DriverPostgres {
					return nil
				}
				return tx.Exec(
					`CREATE INDEX IF NOT EXISTS idx_articles_embedding_cosine
					 ON articles USING ivfflat (embedding vector_cosine_ops)
					 WITH (lists = 100)`,
				).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("DROP INDEX IF EXISTS idx_articles_embedding_cosine").Error
			},
		},

		// Migration 004: parked articles table
		{
			ID: "004_parked_articles",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ParkedArticle{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("parked_articles")
			},
		},
	})

	return m.Migrate()
}
