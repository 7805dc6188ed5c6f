// Package syncq implements the offline record store and its outbound
// sync queue. Local mutations are durable immediately and reconcile
// with the server of record whenever connectivity allows.
package syncq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/state"
)

const (
	keyRecord = "record:"
	keyQueue  = "queue:"
)

// Pusher delivers one queue entry to the server of record and returns
// its echo. Implementations must be safe for concurrent use.
type Pusher interface {
	Push(ctx context.Context, entry models.SyncQueueEntry, record *models.OfflineRecord) (*models.ServerRecord, error)
}

// ProcessResult summarizes one queue drain.
type ProcessResult struct {
	Synced    int
	Failed    int
	Conflicts []models.ConflictRecord
}

// Manager owns the offline records and the sync queue. All mutations
// persist through the state store before returning, so a crash between
// mutation and sync loses nothing.
type Manager struct {
	state  state.Store
	cfg    config.QueueConfig
	logger *events.Logger
	now    func() time.Time

	mu      sync.Mutex
	records map[string]*models.OfflineRecord
	queue   map[string]*models.SyncQueueEntry
}

// NewManager creates a queue manager and loads persisted records and
// pending entries from the state store.
func NewManager(st state.Store, cfg config.QueueConfig, logger *events.Logger) (*Manager, error) {
	m := &Manager{
		state:   st,
		cfg:     cfg,
		logger:  logger.WithField("component", "sync_queue"),
		now:     time.Now,
		records: make(map[string]*models.OfflineRecord),
		queue:   make(map[string]*models.SyncQueueEntry),
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	// Entries interrupted mid-sync restart from pending.
	m.mu.Lock()
	for _, rec := range m.records {
		if rec.SyncStatus == models.SyncSyncing {
			rec.SyncStatus = models.SyncPending
			if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
				m.mu.Unlock()
				return nil, fmt.Errorf("reset interrupted record: %w", err)
			}
		}
	}
	m.mu.Unlock()

	return m, nil
}

func (m *Manager) load() error {
	recordKeys, err := m.state.Keys(keyRecord)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	for _, key := range recordKeys {
		var rec models.OfflineRecord
		if err := m.state.Get(key, &rec); err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("Skipping unreadable record")
			continue
		}
		m.records[rec.ID] = &rec
	}

	queueKeys, err := m.state.Keys(keyQueue)
	if err != nil {
		return fmt.Errorf("list queue entries: %w", err)
	}
	for _, key := range queueKeys {
		var entry models.SyncQueueEntry
		if err := m.state.Get(key, &entry); err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("Skipping unreadable queue entry")
			continue
		}
		m.queue[entry.ID] = &entry
	}

	m.logger.WithFields(map[string]any{
		"records": len(m.records),
		"queued":  len(m.queue),
	}).Info("Loaded offline state")
	return nil
}

// SaveRecord applies a local mutation. A new record enqueues a CREATE,
// an existing one an UPDATE. The local version increments on every call
// and never decreases.
func (m *Manager) SaveRecord(id string, payload map[string]any) (*models.OfflineRecord, error) {
	if err := models.ValidateRecordID(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	action := models.ActionUpdate

	rec, exists := m.records[id]
	if !exists {
		action = models.ActionCreate
		rec = &models.OfflineRecord{ID: id, CreatedAt: now}
		m.records[id] = rec
	}

	rec.Payload = payload
	rec.LocalVersion++
	rec.SyncStatus = models.SyncPending
	rec.UpdatedAt = now

	if err := m.state.Put(keyRecord+id, rec); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}

	if err := m.enqueueLocked(rec.ID, action, payload); err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]any{
		"record_id": id,
		"action":    action,
		"version":   rec.LocalVersion,
	}).Debug("Saved offline record")

	return rec.Clone(), nil
}

// DeleteRecord removes the record locally and enqueues a DELETE.
func (m *Manager) DeleteRecord(id string) error {
	if err := models.ValidateRecordID(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[id]; !exists {
		return models.ErrRecordNotFound
	}

	delete(m.records, id)
	if err := m.state.Delete(keyRecord + id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return m.enqueueLocked(id, models.ActionDelete, nil)
}

// enqueueLocked appends a queue entry. One entry per mutation; entries
// are never coalesced. Caller holds m.mu.
func (m *Manager) enqueueLocked(recordID string, action models.ActionType, payload map[string]any) error {
	entry := &models.SyncQueueEntry{
		ID:         uuid.New().String(),
		RecordID:   recordID,
		Action:     action,
		Payload:    payload,
		MaxRetries: m.cfg.MaxRetries,
		EnqueuedAt: m.now(),
	}

	m.queue[entry.ID] = entry
	if err := m.state.Put(keyQueue+entry.ID, entry); err != nil {
		delete(m.queue, entry.ID)
		return fmt.Errorf("persist queue entry: %w", err)
	}
	return nil
}

// GetRecord returns a copy of the record.
func (m *Manager) GetRecord(id string) (*models.OfflineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// ListRecords returns copies of all records, ordered by ID.
func (m *Manager) ListRecords() []*models.OfflineRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.OfflineRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingEntries returns queue entries in enqueue order.
func (m *Manager) PendingEntries() []models.SyncQueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entriesLocked()
}

func (m *Manager) entriesLocked() []models.SyncQueueEntry {
	out := make([]models.SyncQueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// ProcessQueue drains the queue through the pusher. Each entry moves
// its record pending -> syncing -> synced, or to failed once retries
// are exhausted. Processing stops early on context cancellation.
func (m *Manager) ProcessQueue(ctx context.Context, pusher Pusher) (*ProcessResult, error) {
	m.mu.Lock()
	entries := m.entriesLocked()
	m.mu.Unlock()

	result := &ProcessResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Exhausted entries wait for an explicit requeue.
		if entry.RetryCount >= entry.MaxRetries {
			continue
		}

		if err := m.processEntry(ctx, pusher, entry, result); err != nil {
			return result, err
		}
	}

	m.logger.WithFields(map[string]any{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"conflicts": len(result.Conflicts),
	}).Info("Processed sync queue")

	return result, nil
}

func (m *Manager) processEntry(ctx context.Context, pusher Pusher, entry models.SyncQueueEntry, result *ProcessResult) error {
	m.mu.Lock()
	rec := m.records[entry.RecordID]
	if rec != nil {
		rec.SyncStatus = models.SyncSyncing
		if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("persist record: %w", err)
		}
	}
	var recCopy *models.OfflineRecord
	if rec != nil {
		recCopy = rec.Clone()
	}
	m.mu.Unlock()

	echo, err := pusher.Push(ctx, entry, recCopy)
	if err != nil {
		return m.handlePushFailure(entry, err, result)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec != nil && echo != nil {
		merged, conflicts := Resolve(rec.ID, rec.Payload, echo.Payload)
		rec.Payload = merged
		rec.ServerVersion = echo.ServerVersion
		rec.SyncStatus = models.SyncSynced
		rec.UpdatedAt = m.now()
		result.Conflicts = append(result.Conflicts, conflicts...)

		if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
			return fmt.Errorf("persist record: %w", err)
		}
	}

	delete(m.queue, entry.ID)
	if err := m.state.Delete(keyQueue + entry.ID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}

	result.Synced++
	return nil
}

func (m *Manager) handlePushFailure(entry models.SyncQueueEntry, pushErr error, result *ProcessResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live, ok := m.queue[entry.ID]
	if !ok {
		return nil
	}

	live.RetryCount++
	exhausted := live.RetryCount >= live.MaxRetries || !models.IsRetryable(pushErr)
	if exhausted && live.RetryCount < live.MaxRetries {
		// Terminal errors burn the remaining retries so the entry is
		// skipped until an explicit requeue.
		live.RetryCount = live.MaxRetries
	}

	logger := m.logger.WithError(pushErr).WithFields(map[string]any{
		"entry_id":  entry.ID,
		"record_id": entry.RecordID,
		"retries":   live.RetryCount,
	})

	if rec := m.records[entry.RecordID]; rec != nil {
		if exhausted {
			rec.SyncStatus = models.SyncFailed
		} else {
			rec.SyncStatus = models.SyncPending
		}
		if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
			return fmt.Errorf("persist record: %w", err)
		}
	}

	if exhausted {
		// The entry stays queued in failed state until requeued; it is
		// skipped by ProcessQueue until then.
		logger.Warn("Queue entry exhausted retries")
		result.Failed++
	} else {
		logger.Debug("Queue entry will retry")
	}

	if err := m.state.Put(keyQueue+entry.ID, live); err != nil {
		return fmt.Errorf("persist queue entry: %w", err)
	}
	return nil
}

// RequeueFailed moves all failed records back to pending and resets
// their entries' retry counts. Returns the number requeued.
func (m *Manager) RequeueFailed() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	requeued := 0
	for _, rec := range m.records {
		if rec.SyncStatus != models.SyncFailed {
			continue
		}
		rec.SyncStatus = models.SyncPending
		if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
			return requeued, fmt.Errorf("persist record: %w", err)
		}
		requeued++
	}

	for _, entry := range m.queue {
		if entry.RetryCount >= entry.MaxRetries {
			entry.RetryCount = 0
			if err := m.state.Put(keyQueue+entry.ID, entry); err != nil {
				return requeued, fmt.Errorf("persist queue entry: %w", err)
			}
		}
	}

	return requeued, nil
}

// ApplyServerRecord folds a server-originated record into the local
// store, typically from a poll. An unknown record is adopted as-is in
// synced state; a known one goes through conflict resolution.
func (m *Manager) ApplyServerRecord(server *models.ServerRecord) ([]models.ConflictRecord, error) {
	if err := models.ValidateRecordID(server.ID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, exists := m.records[server.ID]
	if !exists {
		rec = &models.OfflineRecord{
			ID:            server.ID,
			Payload:       server.Payload,
			ServerVersion: server.ServerVersion,
			SyncStatus:    models.SyncSynced,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		m.records[server.ID] = rec
		if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
			return nil, fmt.Errorf("persist record: %w", err)
		}
		return nil, nil
	}

	merged, conflicts := Resolve(rec.ID, rec.Payload, server.Payload)
	rec.Payload = merged
	rec.ServerVersion = server.ServerVersion
	rec.SyncStatus = models.SyncSynced
	rec.UpdatedAt = now

	if err := m.state.Put(keyRecord+rec.ID, rec); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	return conflicts, nil
}

// QueueDepth returns the number of entries awaiting sync.
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// ErrQueueEmpty is returned by callers that require work to exist.
var ErrQueueEmpty = errors.New("sync queue is empty")
