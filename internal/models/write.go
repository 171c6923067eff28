package models

import "time"

// Persistence tells where a write ended up.
type Persistence string

const (
	PersistedRemote Persistence = "remote"
	PersistedLocal  Persistence = "local"
)

// Record is the caller-facing view of a persisted transaction.
type Record struct {
	LocalID   string      `json:"local_id"`
	ServerID  *string     `json:"server_id"`
	Payload   Transaction `json:"payload"`
	Synced    bool        `json:"synced"`
	CreatedAt time.Time   `json:"created_at"`
}

// WriteResult is returned by the write facade for every successful write.
type WriteResult struct {
	Persisted Persistence `json:"persisted"`
	Record    Record      `json:"record"`
}

// RecordFromEntry builds a Record from a queued entry.
func RecordFromEntry(e *QueueEntry) Record {
	return Record{
		LocalID:   e.LocalID,
		ServerID:  e.ServerID,
		Payload:   e.Payload,
		Synced:    e.Synced,
		CreatedAt: e.CreatedAt,
	}
}
