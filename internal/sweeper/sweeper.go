// Package sweeper prunes registry entries whose TTL has passed. It backs up
// DynamoDB's native TTL expiry, which can lag by hours, and covers tables
// where it was never enabled.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Registry is the pruning surface the sweeper needs.
type Registry interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper runs one pruning pass per invocation.
type Sweeper struct {
	Registry Registry
	Logger   zerolog.Logger
}

// Run deletes every expired entry once.
func (s *Sweeper) Run(ctx context.Context) error {
	began := time.Now()
	pruned, err := s.Registry.DeleteExpired(ctx, began)
	if err != nil {
		s.Logger.Error().Err(err).Int("pruned", pruned).Msg("sweep failed")
		return err
	}
	s.Logger.Info().
		Int("pruned", pruned).
		Dur("elapsed", time.Since(began)).
		Msg("sweep complete")
	return nil
}
