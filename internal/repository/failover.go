package repository

import (
	"context"
	"sync/atomic"
	"time"

	"tallybook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLeaseRepository prefers the shared primary and falls back to an
// in-process store while the primary is unreachable.
type FailoverLeaseRepository struct {
	primary   domain.LeaseRepository
	fallback  domain.LeaseRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLeaseRepository(primary, fallback domain.LeaseRepository, logger *zerolog.Logger) *FailoverLeaseRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverLeaseRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLeaseRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary lease repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverLeaseRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverLeaseRepository) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if !r.isDown.Load() {
		ok, err := r.primary.Acquire(ctx, key, owner, ttl)
		if err == nil {
			return ok, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		// Try to recover after recoveryInterval
		ok, err := r.primary.Acquire(ctx, key, owner, ttl)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary lease repository recovered")
			return ok, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Acquire(ctx, key, owner, ttl)
}

// Release drops the lease from both stores since it may have been taken from
// either.
func (r *FailoverLeaseRepository) Release(ctx context.Context, key, owner string) error {
	if !r.isDown.Load() {
		if err := r.primary.Release(ctx, key, owner); err != nil {
			r.markDown(err)
		}
	}
	return r.fallback.Release(ctx, key, owner)
}
