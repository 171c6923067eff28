package service

import (
	"context"
	"fmt"
	"time"

	"tallybook/internal/domain"
	"tallybook/internal/logging"
	"tallybook/internal/metrics"
	"tallybook/internal/models"
	"tallybook/internal/remote"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fallbackStoreTimeout bounds the local write made after a failed remote call.
const fallbackStoreTimeout = 5 * time.Second

// OfflineWriter is the single entry point for recording transactions. It
// writes straight to the remote when online and queues locally otherwise.
type OfflineWriter struct {
	queue         domain.Queue
	remote        domain.RemoteStore
	conn          domain.ConnectivityReader
	trigger       domain.DrainTrigger
	submitTimeout time.Duration
	logger        *zerolog.Logger
}

func NewOfflineWriter(
	queue domain.Queue,
	remoteStore domain.RemoteStore,
	conn domain.ConnectivityReader,
	trigger domain.DrainTrigger,
	submitTimeout time.Duration,
	logger *zerolog.Logger,
) *OfflineWriter {
	if submitTimeout <= 0 {
		submitTimeout = models.DefaultSubmitTimeout
	}
	return &OfflineWriter{
		queue:         queue,
		remote:        remoteStore,
		conn:          conn,
		trigger:       trigger,
		submitTimeout: submitTimeout,
		logger:        logging.Component(logger, "writer"),
	}
}

// Write persists payload remotely or locally. Rejections by the remote are
// returned unchanged and nothing is queued for them.
func (w *OfflineWriter) Write(ctx context.Context, payload models.Transaction) (*models.WriteResult, error) {
	if err := ValidatePayload(payload); err != nil {
		return nil, err
	}

	if !w.conn.Online() {
		entry, err := w.queue.Enqueue(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("queue offline write: %w", err)
		}
		w.logger.Info().Str("local_id", entry.LocalID).Msg("Offline, write queued")
		return localResult(entry), nil
	}

	localID := uuid.NewString()

	submitCtx, cancel := context.WithTimeout(ctx, w.submitTimeout)
	serverID, err := w.remote.Create(submitCtx, localID, payload)
	cancel()

	if err == nil {
		metrics.IncWrite(string(models.PersistedRemote))
		return &models.WriteResult{
			Persisted: models.PersistedRemote,
			Record: models.Record{
				LocalID:   localID,
				ServerID:  &serverID,
				Payload:   payload,
				Synced:    true,
				CreatedAt: time.Now().UTC(),
			},
		}, nil
	}

	if !remote.IsNetworkError(err) {
		return nil, err
	}

	w.logger.Warn().Err(err).Str("local_id", localID).Msg("Remote unreachable, falling back to queue")

	// The caller's deadline may already be spent on the remote call; the
	// fallback write must still land.
	storeCtx, cancelStore := context.WithTimeout(context.WithoutCancel(ctx), fallbackStoreTimeout)
	defer cancelStore()

	entry, qErr := w.queue.EnqueueWithID(storeCtx, localID, payload)
	if qErr != nil {
		return nil, fmt.Errorf("queue fallback write: %w", qErr)
	}
	if w.trigger != nil {
		w.trigger.Trigger(models.TriggerFallback)
	}
	return localResult(entry), nil
}

func localResult(entry *models.QueueEntry) *models.WriteResult {
	metrics.IncWrite(string(models.PersistedLocal))
	return &models.WriteResult{
		Persisted: models.PersistedLocal,
		Record:    models.RecordFromEntry(entry),
	}
}
