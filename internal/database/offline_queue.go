package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tallybook/internal/models"

	"github.com/google/uuid"
)

const entryColumns = `local_id, payload, synced, server_id, created_at, synced_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Enqueue persists payload as a new unsynced entry with a fresh local id.
func (db *DB) Enqueue(ctx context.Context, payload models.Transaction) (*models.QueueEntry, error) {
	return db.EnqueueWithID(ctx, uuid.NewString(), payload)
}

// EnqueueWithID persists payload under a caller-chosen local id.
func (db *DB) EnqueueWithID(ctx context.Context, localID string, payload models.Transaction) (*models.QueueEntry, error) {
	if localID == "" {
		return nil, ErrEmptyLocalID
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO offline_queue (local_id, payload, synced, created_at) VALUES (?, ?, 0, ?)`
	if _, err := db.ExecContext(ctx, query, localID, string(data), now); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateLocalID
		}
		return nil, fmt.Errorf("failed to enqueue entry: %w", err)
	}

	db.logger.Debug().Str("local_id", localID).Msg("entry enqueued")

	return &models.QueueEntry{
		LocalID:   localID,
		Payload:   payload,
		Synced:    false,
		CreatedAt: now,
	}, nil
}

// ListUnsynced returns entries awaiting reconciliation in insertion order.
func (db *DB) ListUnsynced(ctx context.Context) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM offline_queue WHERE synced = 0 ORDER BY seq ASC`
	entries, err := db.queryEntries(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsynced entries: %w", err)
	}
	return entries, nil
}

// ListAll returns every entry, newest first.
func (db *DB) ListAll(ctx context.Context) ([]models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM offline_queue ORDER BY created_at DESC, seq DESC`
	entries, err := db.queryEntries(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// GetEntry loads a single entry by local id.
func (db *DB) GetEntry(ctx context.Context, localID string) (*models.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM offline_queue WHERE local_id = ?`
	entry, err := scanEntry(db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// CountUnsynced returns the number of entries still waiting for the remote.
func (db *DB) CountUnsynced(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_queue WHERE synced = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced entries: %w", err)
	}
	return count, nil
}

// MarkSynced records remote acceptance. Marking an already synced entry is a no-op.
func (db *DB) MarkSynced(ctx context.Context, localID, serverID string) error {
	if serverID == "" {
		return ErrEmptyServerID
	}

	query := `UPDATE offline_queue SET synced = 1, server_id = ?, synced_at = ? WHERE local_id = ? AND synced = 0`
	result, err := db.ExecContext(ctx, query, serverID, time.Now().UTC(), localID)
	if err != nil {
		return fmt.Errorf("failed to mark entry synced: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := db.entryExists(ctx, localID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrEntryNotFound
	}
	return nil
}

// Delete removes a synced entry. Unsynced entries are refused with ErrEntryUnsynced;
// use DiscardEntry for an explicit user discard.
func (db *DB) Delete(ctx context.Context, localID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM offline_queue WHERE local_id = ? AND synced = 1`, localID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	exists, err := db.entryExists(ctx, localID)
	if err != nil {
		return err
	}
	if exists {
		return ErrEntryUnsynced
	}
	return ErrEntryNotFound
}

// DiscardEntry removes an entry regardless of its sync state.
func (db *DB) DiscardEntry(ctx context.Context, localID string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM offline_queue WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("failed to discard entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrEntryNotFound
	}

	db.logger.Warn().Str("local_id", localID).Msg("entry discarded by user")
	return nil
}

// Prune deletes synced entries confirmed before cutoff. Unsynced entries are never pruned.
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx,
		`DELETE FROM offline_queue WHERE synced = 1 AND synced_at IS NOT NULL AND synced_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func (db *DB) entryExists(ctx context.Context, localID string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_queue WHERE local_id = ?`, localID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up entry: %w", err)
	}
	return count > 0, nil
}

func (db *DB) queryEntries(ctx context.Context, query string, args ...any) ([]models.QueueEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.QueueEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		entry    models.QueueEntry
		payload  string
		serverID sql.NullString
		syncedAt sql.NullTime
	)

	if err := row.Scan(&entry.LocalID, &payload, &entry.Synced, &serverID, &entry.CreatedAt, &syncedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &entry.Payload); err != nil {
		return nil, fmt.Errorf("decode payload for %s: %w", entry.LocalID, err)
	}
	if serverID.Valid {
		id := serverID.String
		entry.ServerID = &id
	}
	if syncedAt.Valid {
		at := syncedAt.Time
		entry.SyncedAt = &at
	}
	return &entry, nil
}
