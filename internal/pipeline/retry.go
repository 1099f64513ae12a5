package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// withRetry runs fn up to attempts times with doubling backoff between
// tries. The final error is returned after exhaustion; ctx cancellation
// aborts the wait immediately.
func withRetry(ctx context.Context, attempts int, base time.Duration, stage string, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		log.Warn().Err(err).Str("stage", stage).Int("attempt", attempt).
			Dur("backoff", delay).Msg("Stage failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
