package syncq

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/state"
)

// fakePusher scripts per-record outcomes for queue processing tests.
type fakePusher struct {
	mu     sync.Mutex
	pushed []models.SyncQueueEntry
	errs   map[string]error
	echo   func(entry models.SyncQueueEntry, rec *models.OfflineRecord) *models.ServerRecord
}

func newFakePusher() *fakePusher {
	return &fakePusher{errs: make(map[string]error)}
}

func (p *fakePusher) Push(ctx context.Context, entry models.SyncQueueEntry, rec *models.OfflineRecord) (*models.ServerRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pushed = append(p.pushed, entry)
	if err := p.errs[entry.RecordID]; err != nil {
		return nil, err
	}

	if p.echo != nil {
		return p.echo(entry, rec), nil
	}
	if rec == nil {
		return nil, nil
	}
	return &models.ServerRecord{
		ID:            rec.ID,
		Payload:       rec.Payload,
		ServerVersion: rec.LocalVersion,
	}, nil
}

func newTestManager(t *testing.T) (*Manager, state.Store) {
	t.Helper()

	logger := events.NewTestLogger(events.ErrorLevel, "text", os.Stderr)
	st, err := state.NewJSONStore(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m, err := NewManager(st, config.QueueConfig{MaxRetries: 3}, logger)
	require.NoError(t, err)
	return m, st
}

func TestSaveRecordVersionsAreMonotonic(t *testing.T) {
	m, _ := newTestManager(t)

	rec, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.LocalVersion)
	assert.Equal(t, models.SyncPending, rec.SyncStatus)

	rec, err = m.SaveRecord("r1", map[string]any{"status": "in_progress"})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.LocalVersion)

	rec, err = m.SaveRecord("r1", map[string]any{"status": "closed"})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.LocalVersion)
}

func TestEntriesAreNeverCoalesced(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.SaveRecord("r1", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = m.SaveRecord("r1", map[string]any{"n": 2})
	require.NoError(t, err)
	_, err = m.SaveRecord("r1", map[string]any{"n": 3})
	require.NoError(t, err)

	entries := m.PendingEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, models.ActionCreate, entries[0].Action)
	assert.Equal(t, models.ActionUpdate, entries[1].Action)
	assert.Equal(t, models.ActionUpdate, entries[2].Action)
}

func TestSaveRecordRejectsBadIDs(t *testing.T) {
	m, _ := newTestManager(t)

	for _, id := range []string{"", "  ", "a/b", "a\\b", "a\nb"} {
		_, err := m.SaveRecord(id, nil)
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr), "id %q", id)
	}
	assert.Zero(t, m.QueueDepth())
}

func TestProcessQueueSyncsAndDrains(t *testing.T) {
	m, _ := newTestManager(t)
	pusher := newFakePusher()

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)
	_, err = m.SaveRecord("r2", map[string]any{"status": "open"})
	require.NoError(t, err)

	result, err := m.ProcessQueue(context.Background(), pusher)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Synced)
	assert.Zero(t, result.Failed)
	assert.Zero(t, m.QueueDepth())

	rec, err := m.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, rec.SyncStatus)
	assert.Equal(t, rec.LocalVersion, rec.ServerVersion)
}

func TestProcessQueueAppliesServerEcho(t *testing.T) {
	m, _ := newTestManager(t)
	pusher := newFakePusher()
	pusher.echo = func(entry models.SyncQueueEntry, rec *models.OfflineRecord) *models.ServerRecord {
		return &models.ServerRecord{
			ID:            rec.ID,
			Payload:       map[string]any{"status": "closed"},
			ServerVersion: 9,
		}
	}

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)

	result, err := m.ProcessQueue(context.Background(), pusher)
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ResolutionServer, result.Conflicts[0].Resolution)

	rec, err := m.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, "closed", rec.Payload["status"])
	assert.Equal(t, 9, rec.ServerVersion)
}

func TestProcessQueueRetriesThenFails(t *testing.T) {
	m, _ := newTestManager(t)
	pusher := newFakePusher()
	pusher.errs["r1"] = errors.New("network down")

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)

	// Attempts 1 and 2 leave the record pending for retry.
	for i := 0; i < 2; i++ {
		result, err := m.ProcessQueue(context.Background(), pusher)
		require.NoError(t, err)
		assert.Zero(t, result.Failed)

		rec, err := m.GetRecord("r1")
		require.NoError(t, err)
		assert.Equal(t, models.SyncPending, rec.SyncStatus)
	}

	// Attempt 3 exhausts MaxRetries.
	result, err := m.ProcessQueue(context.Background(), pusher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	rec, err := m.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, rec.SyncStatus)

	// Exhausted entries are skipped until requeued.
	before := len(pusher.pushed)
	_, err = m.ProcessQueue(context.Background(), pusher)
	require.NoError(t, err)
	assert.Equal(t, before, len(pusher.pushed))
}

func TestRequeueFailed(t *testing.T) {
	m, _ := newTestManager(t)
	pusher := newFakePusher()
	pusher.errs["r1"] = errors.New("network down")

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := m.ProcessQueue(context.Background(), pusher)
		require.NoError(t, err)
	}

	requeued, err := m.RequeueFailed()
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	rec, err := m.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPending, rec.SyncStatus)

	// Server recovers; the entry now syncs.
	delete(pusher.errs, "r1")
	result, err := m.ProcessQueue(context.Background(), pusher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
}

func TestNonRetryableErrorFailsImmediately(t *testing.T) {
	m, _ := newTestManager(t)
	pusher := newFakePusher()
	pusher.errs["r1"] = &models.ValidationError{Field: "payload", Reason: "rejected"}

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)

	result, err := m.ProcessQueue(context.Background(), pusher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	rec, err := m.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncFailed, rec.SyncStatus)
}

func TestQueueSurvivesRestart(t *testing.T) {
	m, st := newTestManager(t)

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)
	_, err = m.SaveRecord("r2", map[string]any{"status": "open"})
	require.NoError(t, err)

	logger := events.NewTestLogger(events.ErrorLevel, "text", os.Stderr)
	reopened, err := NewManager(st, config.QueueConfig{MaxRetries: 3}, logger)
	require.NoError(t, err)

	assert.Equal(t, 2, reopened.QueueDepth())
	assert.Len(t, reopened.ListRecords(), 2)

	rec, err := reopened.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.LocalVersion)
	assert.Equal(t, models.SyncPending, rec.SyncStatus)
}

func TestDeleteRecordEnqueuesDelete(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.SaveRecord("r1", map[string]any{"status": "open"})
	require.NoError(t, err)
	require.NoError(t, m.DeleteRecord("r1"))

	_, err = m.GetRecord("r1")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)

	entries := m.PendingEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionDelete, entries[1].Action)

	assert.ErrorIs(t, m.DeleteRecord("r1"), models.ErrRecordNotFound)
}

func TestApplyServerRecordAdoptsUnknown(t *testing.T) {
	m, _ := newTestManager(t)

	conflicts, err := m.ApplyServerRecord(&models.ServerRecord{
		ID:            "srv-1",
		Payload:       map[string]any{"status": "open"},
		ServerVersion: 4,
	})
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	rec, err := m.GetRecord("srv-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncSynced, rec.SyncStatus)
	assert.Equal(t, 4, rec.ServerVersion)
	assert.Zero(t, rec.LocalVersion)
}

func TestApplyServerRecordResolvesKnown(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.SaveRecord("r1", map[string]any{"status": "in_progress"})
	require.NoError(t, err)

	conflicts, err := m.ApplyServerRecord(&models.ServerRecord{
		ID:            "r1",
		Payload:       map[string]any{"status": "closed"},
		ServerVersion: 2,
	})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	// The resolved record replaces the local one in synced state.
	rec, err := m.GetRecord("r1")
	require.NoError(t, err)
	assert.Equal(t, "closed", rec.Payload["status"])
	assert.Equal(t, models.SyncSynced, rec.SyncStatus)
	assert.Equal(t, 2, rec.ServerVersion)
}
