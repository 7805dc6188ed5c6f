package syncq

import (
	"context"
	"fmt"

	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/transport"
)

// RemotePusher delivers queue entries to the field-ops sync endpoint
// over HTTP.
type RemotePusher struct {
	transport transport.Transport
}

// NewRemotePusher creates a pusher over the given transport.
func NewRemotePusher(t transport.Transport) *RemotePusher {
	return &RemotePusher{transport: t}
}

type pushRequest struct {
	EntryID      string         `json:"entry_id"`
	RecordID     string         `json:"record_id"`
	Action       string         `json:"action"`
	Payload      map[string]any `json:"payload,omitempty"`
	LocalVersion int            `json:"local_version,omitempty"`
}

// Push implements Pusher.
func (p *RemotePusher) Push(ctx context.Context, entry models.SyncQueueEntry, record *models.OfflineRecord) (*models.ServerRecord, error) {
	req := pushRequest{
		EntryID:  entry.ID,
		RecordID: entry.RecordID,
		Action:   string(entry.Action),
		Payload:  entry.Payload,
	}
	if record != nil {
		req.LocalVersion = record.LocalVersion
	}

	if entry.Action == models.ActionDelete {
		if err := p.transport.PostJSON(ctx, "/api/field/records/delete", req, nil); err != nil {
			return nil, fmt.Errorf("push delete: %w", err)
		}
		return nil, nil
	}

	var echo models.ServerRecord
	if err := p.transport.PostJSON(ctx, "/api/field/records", req, &echo); err != nil {
		return nil, fmt.Errorf("push record: %w", err)
	}
	return &echo, nil
}
