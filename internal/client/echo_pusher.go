package client

import (
	"context"

	"github.com/brickops/fieldsync/internal/models"
)

// localEchoPusher stands in for the server of record in mock mode. It
// accepts every mutation and echoes the local payload back, so queue
// drains behave as if the server agreed with the field crew.
type localEchoPusher struct{}

func (localEchoPusher) Push(_ context.Context, entry models.SyncQueueEntry, record *models.OfflineRecord) (*models.ServerRecord, error) {
	if record == nil || entry.Action == models.ActionDelete {
		return nil, nil
	}
	return &models.ServerRecord{
		ID:            record.ID,
		Payload:       record.Payload,
		ServerVersion: record.LocalVersion,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}
