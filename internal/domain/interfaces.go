package domain

import (
	"context"
	"time"

	"tallybook/internal/models"
)

// Queue is the durable on-device store of writes not yet confirmed remotely.
type Queue interface {
	Enqueue(ctx context.Context, payload models.Transaction) (*models.QueueEntry, error)
	EnqueueWithID(ctx context.Context, localID string, payload models.Transaction) (*models.QueueEntry, error)
	ListUnsynced(ctx context.Context) ([]models.QueueEntry, error)
	ListAll(ctx context.Context) ([]models.QueueEntry, error)
	GetEntry(ctx context.Context, localID string) (*models.QueueEntry, error)
	CountUnsynced(ctx context.Context) (int, error)
	MarkSynced(ctx context.Context, localID, serverID string) error
	Delete(ctx context.Context, localID string) error
	DiscardEntry(ctx context.Context, localID string) error
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RemoteStore is the remote datastore the queue reconciles against.
// Create must report transport-level failures as remote network errors so
// callers can tell them apart from rejections.
type RemoteStore interface {
	Create(ctx context.Context, idempotencyKey string, payload models.Transaction) (string, error)
	List(ctx context.Context) ([]models.RemoteTransaction, error)
}

// ConnectivityReader exposes the current reachability state.
type ConnectivityReader interface {
	Online() bool
	State() models.ConnectivityState
}

// DrainTrigger requests a background reconciliation pass.
type DrainTrigger interface {
	Trigger(reason string)
}

// Drainer runs a reconciliation pass and waits for its result.
type Drainer interface {
	DrainTrigger
	Drain(ctx context.Context) (models.DrainResult, error)
}

// SyncNotifier announces completed reconciliation passes.
type SyncNotifier interface {
	SignalCompletion(result models.DrainResult) models.SyncSignal
}

// LeaseRepository grants short exclusive leases shared between agent processes.
type LeaseRepository interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}
