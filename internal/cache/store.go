// Package cache implements the offline compliance cache. Entries carry
// per-class TTLs; a stale entry reads as a miss so callers always fall
// back to a fetch rather than showing outdated enforcement data.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/state"
)

const (
	keyViolations  = "cache:violations:"
	keyInspections = "cache:inspections:"
	keyPermits     = "cache:permits:"
	keySummary     = "cache:summary:"
)

// timed wraps a cached value with its store time.
type timed[T any] struct {
	Value    T         `json:"value"`
	CachedAt time.Time `json:"cached_at"`
}

// Store is the offline cache. Reads come from memory, falling back to
// the durable state store so a restart keeps the cache warm.
type Store struct {
	state  state.Store
	cfg    config.CacheConfig
	logger *events.Logger
	now    func() time.Time

	mu          sync.RWMutex
	violations  map[string]timed[[]models.Violation]
	inspections map[string]timed[[]models.Inspection]
	permits     map[string]timed[[]models.Permit]
	summaries   map[string]timed[models.ComplianceSummary]
}

// NewStore creates a cache over the given durable state store.
func NewStore(st state.Store, cfg config.CacheConfig, logger *events.Logger) *Store {
	return &Store{
		state:       st,
		cfg:         cfg,
		logger:      logger.WithField("component", "cache_store"),
		now:         time.Now,
		violations:  make(map[string]timed[[]models.Violation]),
		inspections: make(map[string]timed[[]models.Inspection]),
		permits:     make(map[string]timed[[]models.Permit]),
		summaries:   make(map[string]timed[models.ComplianceSummary]),
	}
}

// PutViolations caches violations for a building and refreshes the
// derived compliance summary in the same pass. Entries are stored
// newest first so reads come back in display order.
func (s *Store) PutViolations(buildingID string, items []models.Violation) error {
	models.SortViolationsByIssued(items)
	now := s.now()
	entry := timed[[]models.Violation]{Value: items, CachedAt: now}

	s.mu.Lock()
	prev, hadPrev := s.summaries[buildingID]
	s.violations[buildingID] = entry

	summary := s.summarize(buildingID, items, now)
	if hadPrev {
		summary.Trend = trendBetween(prev.Value.ComplianceScore, summary.ComplianceScore)
	}
	s.summaries[buildingID] = timed[models.ComplianceSummary]{Value: summary, CachedAt: now}
	s.mu.Unlock()

	if err := s.state.Put(keyViolations+buildingID, entry); err != nil {
		return fmt.Errorf("persist violations: %w", err)
	}
	if err := s.state.Put(keySummary+buildingID, timed[models.ComplianceSummary]{Value: summary, CachedAt: now}); err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}
	return nil
}

// GetViolations returns cached violations, or ErrCacheMiss when absent
// or older than the violation TTL.
func (s *Store) GetViolations(buildingID string) ([]models.Violation, error) {
	entry, err := getEntry(s, s.violations, keyViolations, buildingID, s.cfg.ViolationTTL)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// PutInspections caches inspections for a building.
func (s *Store) PutInspections(buildingID string, items []models.Inspection) error {
	models.SortInspectionsByDate(items)
	entry := timed[[]models.Inspection]{Value: items, CachedAt: s.now()}

	s.mu.Lock()
	s.inspections[buildingID] = entry
	s.mu.Unlock()

	if err := s.state.Put(keyInspections+buildingID, entry); err != nil {
		return fmt.Errorf("persist inspections: %w", err)
	}
	return nil
}

// GetInspections returns cached inspections, or ErrCacheMiss.
func (s *Store) GetInspections(buildingID string) ([]models.Inspection, error) {
	entry, err := getEntry(s, s.inspections, keyInspections, buildingID, s.cfg.InspectionTTL)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// PutPermits caches permits for a building.
func (s *Store) PutPermits(buildingID string, items []models.Permit) error {
	models.SortPermitsByIssued(items)
	entry := timed[[]models.Permit]{Value: items, CachedAt: s.now()}

	s.mu.Lock()
	s.permits[buildingID] = entry
	s.mu.Unlock()

	if err := s.state.Put(keyPermits+buildingID, entry); err != nil {
		return fmt.Errorf("persist permits: %w", err)
	}
	return nil
}

// GetPermits returns cached permits, or ErrCacheMiss.
func (s *Store) GetPermits(buildingID string) ([]models.Permit, error) {
	entry, err := getEntry(s, s.permits, keyPermits, buildingID, s.cfg.PermitTTL)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// GetComplianceSummary returns the cached summary. A stale summary with
// fresh violations is recomputed in place rather than missed.
func (s *Store) GetComplianceSummary(buildingID string) (*models.ComplianceSummary, error) {
	entry, err := getEntry(s, s.summaries, keySummary, buildingID, s.cfg.SummaryTTL)
	if err == nil {
		summary := entry.Value
		return &summary, nil
	}
	if !errors.Is(err, models.ErrCacheMiss) {
		return nil, err
	}

	violations, verr := s.GetViolations(buildingID)
	if verr != nil {
		return nil, models.ErrCacheMiss
	}

	now := s.now()
	s.mu.Lock()
	prev, hadPrev := s.summaries[buildingID]
	summary := s.summarize(buildingID, violations, now)
	if hadPrev {
		summary.Trend = trendBetween(prev.Value.ComplianceScore, summary.ComplianceScore)
	}
	s.summaries[buildingID] = timed[models.ComplianceSummary]{Value: summary, CachedAt: now}
	s.mu.Unlock()

	if err := s.state.Put(keySummary+buildingID, timed[models.ComplianceSummary]{Value: summary, CachedAt: now}); err != nil {
		return nil, fmt.Errorf("persist summary: %w", err)
	}
	return &summary, nil
}

// GetPortfolioSummary aggregates summaries across buildings. Buildings
// without a resolvable summary are excluded from the average, not
// counted as zero.
func (s *Store) GetPortfolioSummary(buildingIDs []string) (*models.PortfolioSummary, error) {
	out := &models.PortfolioSummary{BuildingCount: len(buildingIDs)}

	var scoreSum float64
	for _, id := range buildingIDs {
		summary, err := s.GetComplianceSummary(id)
		if err != nil {
			if errors.Is(err, models.ErrCacheMiss) {
				continue
			}
			return nil, err
		}

		out.ResolvedCount++
		out.TotalViolations += summary.TotalViolations
		out.OpenViolations += summary.OpenViolations
		out.CriticalViolations += summary.CriticalViolations
		out.TotalFines += summary.TotalFines
		scoreSum += float64(summary.ComplianceScore)
	}

	if out.ResolvedCount > 0 {
		out.AverageScore = scoreSum / float64(out.ResolvedCount)
	}
	return out, nil
}

// LastCachedAt reports when violations for a building were last stored.
// The zero time means never.
func (s *Store) LastCachedAt(buildingID string) time.Time {
	s.mu.RLock()
	entry, ok := s.violations[buildingID]
	s.mu.RUnlock()
	if ok {
		return entry.CachedAt
	}

	var persisted timed[[]models.Violation]
	if err := s.state.Get(keyViolations+buildingID, &persisted); err != nil {
		return time.Time{}
	}
	return persisted.CachedAt
}

// ClearExpired drops stale entries from memory and durable state,
// returning the number removed.
func (s *Store) ClearExpired() int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for id, e := range s.violations {
		if now.Sub(e.CachedAt) > s.cfg.ViolationTTL {
			delete(s.violations, id)
			_ = s.state.Delete(keyViolations + id)
			removed++
		}
	}
	for id, e := range s.inspections {
		if now.Sub(e.CachedAt) > s.cfg.InspectionTTL {
			delete(s.inspections, id)
			_ = s.state.Delete(keyInspections + id)
			removed++
		}
	}
	for id, e := range s.permits {
		if now.Sub(e.CachedAt) > s.cfg.PermitTTL {
			delete(s.permits, id)
			_ = s.state.Delete(keyPermits + id)
			removed++
		}
	}
	for id, e := range s.summaries {
		if now.Sub(e.CachedAt) > s.cfg.SummaryTTL {
			delete(s.summaries, id)
			_ = s.state.Delete(keySummary + id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("Cleared expired cache entries")
	}
	return removed
}

// summarize derives the cached compliance rollup from violations.
// The caller holds s.mu.
func (s *Store) summarize(buildingID string, items []models.Violation, now time.Time) models.ComplianceSummary {
	summary := models.ComplianceSummary{
		BuildingID: buildingID,
		Trend:      models.TrendStable,
		CachedAt:   now,
		TTL:        s.cfg.SummaryTTL,
	}

	for _, v := range items {
		summary.TotalViolations++
		summary.TotalFines += v.Penalty
		if v.IsOpen() {
			summary.OpenViolations++
			if v.IsCritical() {
				summary.CriticalViolations++
			}
		}
	}

	summary.ComplianceScore = models.ClampScore(
		100 - 5*summary.OpenViolations - 15*summary.CriticalViolations)
	return summary
}

// trendBetween compares scores across consecutive summaries. Moves
// within five points read as stable.
func trendBetween(prev, curr int) models.Trend {
	switch delta := curr - prev; {
	case delta > 5:
		return models.TrendImproving
	case delta < -5:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// getEntry reads from memory, falls back to durable state, and applies
// the TTL. Stale entries read as ErrCacheMiss.
func getEntry[T any](s *Store, mem map[string]timed[T], prefix, buildingID string, ttl time.Duration) (timed[T], error) {
	s.mu.RLock()
	entry, ok := mem[buildingID]
	s.mu.RUnlock()

	if !ok {
		if err := s.state.Get(prefix+buildingID, &entry); err != nil {
			if errors.Is(err, state.ErrKeyNotFound) {
				return entry, models.ErrCacheMiss
			}
			return entry, fmt.Errorf("read cache entry: %w", err)
		}
		s.mu.Lock()
		mem[buildingID] = entry
		s.mu.Unlock()
	}

	if s.now().Sub(entry.CachedAt) > ttl {
		return entry, models.ErrCacheMiss
	}
	return entry, nil
}
