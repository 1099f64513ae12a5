// Package main provides the storyline clustering worker entry point.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/storyline/internal/config"
	storegorm "github.com/thebtf/storyline/internal/db/gorm"
	"github.com/thebtf/storyline/internal/dedup"
	"github.com/thebtf/storyline/internal/embedding"
	"github.com/thebtf/storyline/internal/intake"
	"github.com/thebtf/storyline/internal/judge"
	"github.com/thebtf/storyline/internal/ops"
	"github.com/thebtf/storyline/internal/pipeline"
	"github.com/thebtf/storyline/internal/retriever"
	"github.com/thebtf/storyline/internal/taxonomy"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Configuration file (YAML)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	reprocess := flag.Bool("reprocess", false, "Replay parked articles and exit")
	flag.Parse()

	// Setup logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down storyline worker")
		cancel()
	}()

	// Initialize the cluster store (migrations run automatically)
	gormLogLevel := logger.Warn
	if *debug {
		gormLogLevel = logger.Info
	}
	store, err := storegorm.NewStore(storegorm.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		LogLevel: gormLogLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cluster store")
	}
	defer store.Close()
	clusters := storegorm.NewClusterStore(store)

	// Category taxonomy with hot reload
	var taxProvider taxonomy.Provider
	if cfg.TaxonomyPath != "" {
		watcher, err := taxonomy.Watch(cfg.TaxonomyPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.TaxonomyPath).Msg("Failed to watch taxonomy")
		}
		defer watcher.Close()
		taxProvider = watcher
	} else {
		taxProvider = taxonomy.Static{T: taxonomy.Default()}
	}

	// Embedding backend
	embedder, err := embedding.NewGoogleEmbedder(ctx, embedding.GoogleConfig{
		Project:  cfg.Embedding.Project,
		Location: cfg.Embedding.Location,
		Model:    cfg.Embedding.Model,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize embedder")
	}

	// Cluster judgment
	capability, err := judge.NewAnthropic(judge.AnthropicConfig{
		APIKey:      cfg.Judge.APIKey,
		Model:       cfg.Judge.Model,
		MaxTokens:   cfg.Judge.MaxTokens,
		RateLimit:   cfg.Judge.RateLimit,
		TokenBudget: cfg.Judge.TokenBudget,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize judgment capability")
	}

	// Redis pool feeds the intake queue and the category locks
	pool := intake.NewPool(intake.Config{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer pool.Close()

	p := pipeline.New(
		pipeline.Config{
			Workers:       cfg.Workers,
			RetryAttempts: cfg.RetryAttempts,
			RetryBase:     time.Duration(cfg.RetryBaseMS) * time.Millisecond,
		},
		dedup.New(clusters),
		embedder,
		retriever.New(clusters, retriever.Config{
			Threshold: cfg.Retriever.Threshold,
			TopK:      cfg.Retriever.TopK,
			Window:    time.Duration(cfg.Retriever.WindowHours) * time.Hour,
		}),
		judge.New(capability, taxProvider),
		clusters,
		pipeline.NewRedisLocker(pool, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second),
	)

	if *reprocess {
		recovered, err := p.ReprocessParked(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Reprocessing parked articles failed")
		}
		log.Info().Int("recovered", recovered).Msg("Parked articles reprocessed")
		return
	}

	// Ops HTTP surface
	opsServer := ops.NewService(Version, store, clusters, p)
	go func() {
		if err := opsServer.Start(cfg.OpsAddr); err != nil {
			log.Error().Err(err).Msg("Ops server failed")
			cancel()
		}
	}()

	source := intake.NewRedisSource(pool, intake.Config{
		Queue:    cfg.Redis.Queue,
		PopBlock: time.Duration(cfg.Redis.PopBlockSeconds) * time.Second,
	})

	log.Info().Str("version", Version).Int("workers", cfg.Workers).
		Str("queue", cfg.Redis.Queue).Msg("Storyline worker started")

	if err := p.Run(ctx, source); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Worker pool stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Ops server shutdown failed")
	}

	report := p.Report()
	log.Info().Int64("processed", report.Processed).Int64("duplicates", report.Duplicates).
		Int64("created", report.Created).Int64("joined", report.Joined).
		Int64("parked", report.Parked).Msg("Storyline worker stopped")
}
