// Package intake consumes raw articles from the feed producers' redis queue.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/storyline/internal/feedtext"
	"github.com/thebtf/storyline/pkg/models"
)

// Config for the redis connection and queue.
type Config struct {
	Address  string
	Password string
	DB       int
	Queue    string
	PopBlock time.Duration // BRPOP timeout per poll
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = "localhost:6379"
	}
	if c.Queue == "" {
		c.Queue = "storyline:articles"
	}
	if c.PopBlock <= 0 {
		c.PopBlock = 2 * time.Second
	}
	return c
}

// NewPool creates a redigo pool for the intake queue and the category locks.
func NewPool(cfg Config) *redis.Pool {
	cfg = cfg.withDefaults()
	return &redis.Pool{
		MaxIdle:     4,
		MaxActive:   16,
		IdleTimeout: 240 * time.Second,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{redis.DialDatabase(cfg.DB)}
			if cfg.Password != "" {
				opts = append(opts, redis.DialPassword(cfg.Password))
			}
			return redis.Dial("tcp", cfg.Address, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// RedisSource pops articles from a redis list with BRPOP. A queue is a
// stream, not a batch: Next never drains, it blocks until ctx is done.
type RedisSource struct {
	pool  *redis.Pool
	queue string
	block time.Duration
}

// NewRedisSource creates a source over an existing pool.
func NewRedisSource(pool *redis.Pool, cfg Config) *RedisSource {
	cfg = cfg.withDefaults()
	return &RedisSource{pool: pool, queue: cfg.Queue, block: cfg.PopBlock}
}

// Next blocks for the next article. Undecodable payloads are logged and
// skipped, never returned as errors.
func (s *RedisSource) Next(ctx context.Context) (models.RawArticle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return models.RawArticle{}, err
		}

		payload, err := s.pop(ctx)
		if err != nil {
			return models.RawArticle{}, err
		}
		if payload == nil {
			continue // BRPOP timed out, poll again
		}

		article, err := DecodeArticle(payload)
		if err != nil {
			log.Error().Err(err).Str("queue", s.queue).Msg("Skipping undecodable article payload")
			continue
		}
		return article, nil
	}
}

func (s *RedisSource) pop(ctx context.Context) ([]byte, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	reply, err := redis.ByteSlices(conn.Do("BRPOP", s.queue, s.block.Seconds()))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop %s: %w", s.queue, err)
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("brpop %s: unexpected reply length %d", s.queue, len(reply))
	}
	return reply[1], nil
}

// DecodeArticle parses one queue payload. URL and title are mandatory;
// feed-delivered markup is stripped from title and summary.
func DecodeArticle(payload []byte) (models.RawArticle, error) {
	var article models.RawArticle
	if err := json.Unmarshal(payload, &article); err != nil {
		return models.RawArticle{}, fmt.Errorf("decode article: %w", err)
	}
	if article.URL == "" {
		return models.RawArticle{}, fmt.Errorf("article payload missing url")
	}

	article.Title = feedtext.Clean(article.Title)
	article.Summary = feedtext.Clean(article.Summary)
	if article.Title == "" {
		return models.RawArticle{}, fmt.Errorf("article payload missing title")
	}
	return article, nil
}
