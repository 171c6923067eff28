package models

import "time"

// ConnectivityState is the last known network reachability of the agent.
type ConnectivityState struct {
	Online    bool      `json:"online"`
	ChangedAt time.Time `json:"changed_at"`
	Supported bool      `json:"supported"`
}

// DrainResult summarizes one reconciliation pass over the local queue.
type DrainResult struct {
	Success    bool      `json:"success"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Total      int       `json:"total"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Attempted reports whether the drain had anything to reconcile.
func (r DrainResult) Attempted() bool {
	return r.Synced+r.Failed > 0
}

// SyncSignal tells read-views that reconciliation produced new server state.
// Seq grows by one per signal and is never reset.
type SyncSignal struct {
	Seq    uint64      `json:"seq"`
	At     time.Time   `json:"at"`
	Result DrainResult `json:"result"`
}
