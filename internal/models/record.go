package models

import (
	"fmt"
	"strings"
	"time"
)

// SyncStatus tracks where an offline record sits in its sync lifecycle.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// ActionType identifies the mutation a queue entry carries.
type ActionType string

const (
	ActionCreate ActionType = "CREATE"
	ActionUpdate ActionType = "UPDATE"
	ActionDelete ActionType = "DELETE"
)

// OfflineRecord is a locally mutated record awaiting reconciliation with
// the server of record. LocalVersion increments on every local mutation
// and never decreases. ServerVersion is zero until the first server echo.
type OfflineRecord struct {
	ID            string         `json:"id"`
	Payload       map[string]any `json:"payload"`
	LocalVersion  int            `json:"local_version"`
	ServerVersion int            `json:"server_version,omitempty"`
	SyncStatus    SyncStatus     `json:"sync_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone deep-copies the record so callers cannot mutate manager state.
func (r *OfflineRecord) Clone() *OfflineRecord {
	clone := *r
	clone.Payload = clonePayload(r.Payload)
	return &clone
}

func clonePayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SyncQueueEntry is one outbound mutation. One entry per local mutation;
// entries are never coalesced and are removed once the server acknowledgment
// has been applied.
type SyncQueueEntry struct {
	ID         string         `json:"id"`
	RecordID   string         `json:"record_id"`
	Action     ActionType     `json:"action"`
	Payload    map[string]any `json:"payload,omitempty"`
	RetryCount int            `json:"retry_count"`
	MaxRetries int            `json:"max_retries"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// ServerRecord is the server's echo of a record after a push or poll.
type ServerRecord struct {
	ID            string         `json:"id"`
	Payload       map[string]any `json:"payload"`
	ServerVersion int            `json:"server_version"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ConflictResolution names which side a conflicting field resolved to.
type ConflictResolution string

const (
	ResolutionLocal  ConflictResolution = "local"
	ResolutionServer ConflictResolution = "server"
	ResolutionMerged ConflictResolution = "merged"
)

// ConflictRecord describes one field-level conflict found during a
// reconciliation pass. Transient: produced and consumed within one
// ApplyServerEcho call, never persisted.
type ConflictRecord struct {
	RecordID    string             `json:"record_id"`
	Field       string             `json:"field"`
	LocalValue  any                `json:"local_value"`
	ServerValue any                `json:"server_value"`
	Resolution  ConflictResolution `json:"resolution"`
}

// ValidateRecordID rejects identifiers the sync layer cannot address.
func ValidateRecordID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if strings.ContainsAny(id, "/\\\n") {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("contains illegal characters: %q", id)}
	}
	return nil
}
