package repository

import (
	"context"
	"sync"
	"time"
)

type leaseEntry struct {
	owner     string
	expiresAt time.Time
}

// MemoryLeaseRepository holds leases for a single process.
type MemoryLeaseRepository struct {
	mu     sync.Mutex
	leases map[string]leaseEntry
}

func NewMemoryLeaseRepository() *MemoryLeaseRepository {
	return &MemoryLeaseRepository{leases: make(map[string]leaseEntry)}
}

func (r *MemoryLeaseRepository) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if entry, ok := r.leases[key]; ok && entry.owner != owner && now.Before(entry.expiresAt) {
		return false, nil
	}

	r.leases[key] = leaseEntry{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (r *MemoryLeaseRepository) Release(ctx context.Context, key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.leases[key]; ok && entry.owner == owner {
		delete(r.leases, key)
	}
	return nil
}
