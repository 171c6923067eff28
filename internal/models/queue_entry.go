package models

import "time"

// QueueEntry is a locally persisted write awaiting confirmation by the remote datastore.
type QueueEntry struct {
	LocalID   string      `json:"local_id"`
	Payload   Transaction `json:"payload"`
	Synced    bool        `json:"synced"`
	CreatedAt time.Time   `json:"created_at"`
	ServerID  *string     `json:"server_id"`
	SyncedAt  *time.Time  `json:"synced_at"`
}

// DisplayTime is the timestamp used to position the entry in lists.
// Before the server confirms it, the local enqueue time stands in.
func (e *QueueEntry) DisplayTime() time.Time {
	if e.SyncedAt != nil {
		return *e.SyncedAt
	}
	return e.CreatedAt
}
