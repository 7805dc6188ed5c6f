// Package refresh runs the live dashboard refresh loop. Each cycle
// pulls all four feeds for every tracked building in parallel, scores
// the results, and publishes snapshots to the dashboard hub.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brickops/fieldsync/internal/cache"
	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/feeds"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/publish"
)

// criticalScoreThreshold is the band boundary that triggers an alert.
const criticalScoreThreshold = 50

// CycleResult summarizes one refresh cycle.
type CycleResult struct {
	CycleID   string
	Snapshots map[string]*models.BuildingSnapshot
	Dropped   map[string]error
	StartedAt time.Time
	Duration  time.Duration
}

// Scheduler drives periodic refreshes of all tracked buildings.
type Scheduler struct {
	cache       *cache.Store
	source      feeds.Source
	broadcaster publish.Broadcaster
	notifier    publish.Notifier
	cfg         config.RefreshConfig
	logger      *events.Logger
	now         func() time.Time

	// backoffBase scales the per-building retry delays. Tests shrink it.
	backoffBase time.Duration

	mu         sync.Mutex
	tracked    map[string]bool
	retries    map[string]int
	lastScores map[string]int
	snapshots  map[string]*models.BuildingSnapshot
	stopped    bool
	done       chan struct{}
}

// NewScheduler creates a refresh scheduler. Buildings from config are
// tracked immediately.
func NewScheduler(
	c *cache.Store,
	source feeds.Source,
	broadcaster publish.Broadcaster,
	notifier publish.Notifier,
	cfg config.RefreshConfig,
	logger *events.Logger,
) *Scheduler {
	s := &Scheduler{
		cache:       c,
		source:      source,
		broadcaster: broadcaster,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger.WithField("component", "refresh_scheduler"),
		now:         time.Now,
		backoffBase: time.Second,
		tracked:     make(map[string]bool),
		retries:     make(map[string]int),
		lastScores:  make(map[string]int),
		snapshots:   make(map[string]*models.BuildingSnapshot),
		done:        make(chan struct{}),
	}

	for _, id := range cfg.Buildings {
		s.tracked[id] = true
	}
	return s
}

// Track adds a building to the refresh set.
func (s *Scheduler) Track(buildingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[buildingID] = true
}

// Untrack removes a building from the refresh set.
func (s *Scheduler) Untrack(buildingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tracked[buildingID] {
		return models.ErrBuildingNotTracked
	}
	delete(s.tracked, buildingID)
	delete(s.retries, buildingID)
	delete(s.lastScores, buildingID)
	delete(s.snapshots, buildingID)
	return nil
}

// Tracked returns the tracked building IDs.
func (s *Scheduler) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		out = append(out, id)
	}
	return out
}

// Snapshot returns the last published snapshot for a building.
func (s *Scheduler) Snapshot(buildingID string) (*models.BuildingSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[buildingID]
	return snap, ok
}

// Run drives refresh cycles until the context ends or Stop is called.
// The first cycle starts immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	if _, err := s.RefreshNow(ctx); err != nil {
		if err == models.ErrSchedulerStopped || ctx.Err() != nil {
			return err
		}
		s.logger.WithError(err).Error("Initial refresh cycle failed")
	}

	for {
		select {
		case <-ticker.C:
			if _, err := s.RefreshNow(ctx); err != nil {
				if err == models.ErrSchedulerStopped || ctx.Err() != nil {
					return err
				}
				s.logger.WithError(err).Error("Refresh cycle failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
}

// Stop halts the scheduler. Subsequent refreshes return
// ErrSchedulerStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
}

// RefreshNow runs one full cycle across all tracked buildings.
func (s *Scheduler) RefreshNow(ctx context.Context) (*CycleResult, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, models.ErrSchedulerStopped
	}
	buildings := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		buildings = append(buildings, id)
	}
	s.mu.Unlock()

	result := &CycleResult{
		CycleID:   uuid.New().String(),
		Snapshots: make(map[string]*models.BuildingSnapshot),
		Dropped:   make(map[string]error),
		StartedAt: s.now(),
	}

	ctx = events.WithCycleID(ctx, result.CycleID)
	logger := events.FromContext(ctx)
	logger.WithField("buildings", len(buildings)).Info("Refresh cycle starting")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range buildings {
		id := id
		g.Go(func() error {
			snap, err := s.refreshWithBackoff(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Dropped[id] = err
				return nil
			}
			result.Snapshots[id] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Duration = s.now().Sub(result.StartedAt)

	s.broadcaster.Broadcast(publish.Event{
		Type:      publish.EventCycleComplete,
		Channel:   "dashboard",
		Timestamp: s.now(),
		Data: map[string]any{
			"cycle_id":  result.CycleID,
			"refreshed": len(result.Snapshots),
			"dropped":   len(result.Dropped),
		},
	})

	logger.WithFields(map[string]any{
		"refreshed":   len(result.Snapshots),
		"dropped":     len(result.Dropped),
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Refresh cycle complete")

	return result, nil
}

// ForceRefresh refreshes one building immediately, outside the cycle
// cadence. The building does not need to be tracked; the snapshot is
// cached and published the same as a cycle refresh.
func (s *Scheduler) ForceRefresh(ctx context.Context, buildingID string) (*models.BuildingSnapshot, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, models.ErrSchedulerStopped
	}
	s.mu.Unlock()

	return s.refreshWithBackoff(ctx, buildingID)
}

// refreshWithBackoff retries a failed building refresh with exponential
// delays. Once retries are exhausted the building is dropped for this
// cycle and its counter resets, so the next cycle starts clean.
func (s *Scheduler) refreshWithBackoff(ctx context.Context, buildingID string) (*models.BuildingSnapshot, error) {
	for {
		snap, err := s.refreshBuilding(ctx, buildingID)
		if err == nil {
			s.mu.Lock()
			s.retries[buildingID] = 0
			s.mu.Unlock()
			return snap, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		s.mu.Lock()
		s.retries[buildingID]++
		count := s.retries[buildingID]
		exhausted := count > s.cfg.MaxRetries
		if exhausted {
			s.retries[buildingID] = 0
		}
		s.mu.Unlock()

		if exhausted {
			s.logger.WithError(err).WithField("building_id", buildingID).Warn("Building dropped from cycle")
			return nil, err
		}

		delay := s.backoffBase << uint(count-1)
		s.logger.WithFields(map[string]any{
			"building_id": buildingID,
			"retry":       count,
			"delay":       delay.String(),
		}).Debug("Retrying building refresh")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// feedResults collects one building's parallel feed fetches. The ok
// flags mark which feeds actually answered; failed feeds score as
// empty but must not overwrite previously cached data.
type feedResults struct {
	violations    []models.Violation
	violationsOK  bool
	inspections   []models.Inspection
	inspectionsOK bool
	permits       []models.Permit
	permitsOK     bool
	emergencies   []models.Emergency
	errs          []error
}

// refreshBuilding fetches all four feeds in parallel. A single failed
// feed degrades to empty data; all four failing fails the refresh.
func (s *Scheduler) refreshBuilding(ctx context.Context, buildingID string) (*models.BuildingSnapshot, error) {
	ctx = events.WithBuildingID(ctx, buildingID)
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	var (
		res feedResults
		mu  sync.Mutex
		wg  sync.WaitGroup
	)

	fetch := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				res.errs = append(res.errs, err)
				mu.Unlock()
				events.FromContext(ctx).WithError(err).WithField("feed", name).Warn("Feed fetch failed, substituting empty data")
			}
		}()
	}

	fetch("violations", func() error {
		items, err := s.source.FetchViolations(fetchCtx, buildingID)
		if err != nil {
			return err
		}
		mu.Lock()
		res.violations = items
		res.violationsOK = true
		mu.Unlock()
		return nil
	})
	fetch("inspections", func() error {
		items, err := s.source.FetchInspections(fetchCtx, buildingID)
		if err != nil {
			return err
		}
		mu.Lock()
		res.inspections = items
		res.inspectionsOK = true
		mu.Unlock()
		return nil
	})
	fetch("permits", func() error {
		items, err := s.source.FetchPermits(fetchCtx, buildingID)
		if err != nil {
			return err
		}
		mu.Lock()
		res.permits = items
		res.permitsOK = true
		mu.Unlock()
		return nil
	})
	fetch("emergencies", func() error {
		items, err := s.source.FetchEmergencies(fetchCtx, buildingID)
		if err != nil {
			return err
		}
		mu.Lock()
		res.emergencies = items
		mu.Unlock()
		return nil
	})

	wg.Wait()

	if len(res.errs) == 4 {
		return nil, fmt.Errorf("all feeds failed for building %s: %w", buildingID, res.errs[0])
	}

	snap := s.buildSnapshot(buildingID, &res)

	// Only successful feeds touch the cache; a down feed leaves the
	// last good data in place for offline readers.
	if res.violationsOK {
		if err := s.cache.PutViolations(buildingID, res.violations); err != nil {
			return nil, err
		}
	}
	if res.inspectionsOK {
		if err := s.cache.PutInspections(buildingID, res.inspections); err != nil {
			return nil, err
		}
	}
	if res.permitsOK {
		if err := s.cache.PutPermits(buildingID, res.permits); err != nil {
			return nil, err
		}
	}

	s.publishSnapshot(ctx, snap)
	return snap, nil
}

// buildSnapshot scores the fetched data and derives band and trend.
func (s *Scheduler) buildSnapshot(buildingID string, res *feedResults) *models.BuildingSnapshot {
	total := len(res.violations)
	critical := 0
	for _, v := range res.violations {
		if v.IsCritical() {
			critical++
		}
	}

	score := models.ClampScore(100 - 5*total - 10*critical)

	s.mu.Lock()
	prev, seen := s.lastScores[buildingID]
	s.lastScores[buildingID] = score
	s.mu.Unlock()

	trend := models.TrendStable
	if seen {
		switch delta := score - prev; {
		case delta > 5:
			trend = models.TrendImproving
		case delta < -5:
			trend = models.TrendDeclining
		}
	}

	snap := &models.BuildingSnapshot{
		BuildingID:         buildingID,
		Violations:         res.violations,
		Emergencies:        res.emergencies,
		TotalViolations:    total,
		CriticalViolations: critical,
		Score:              score,
		Band:               models.BandForScore(score),
		Trend:              trend,
		RefreshedAt:        s.now(),
	}

	s.mu.Lock()
	s.snapshots[buildingID] = snap
	s.mu.Unlock()

	return snap
}

// publishSnapshot broadcasts the snapshot and raises an alert when the
// building sits in the critical band.
func (s *Scheduler) publishSnapshot(ctx context.Context, snap *models.BuildingSnapshot) {
	s.broadcaster.Broadcast(publish.Event{
		Type:      publish.EventSnapshot,
		Channel:   "dashboard",
		Timestamp: s.now(),
		Data:      snap,
	})

	if snap.Score >= criticalScoreThreshold {
		return
	}

	alert := publish.Alert{
		BuildingID: snap.BuildingID,
		Score:      snap.Score,
		Band:       string(snap.Band),
		Message:    fmt.Sprintf("building %s compliance score %d is critical", snap.BuildingID, snap.Score),
		At:         s.now(),
	}

	s.broadcaster.Broadcast(publish.Event{
		Type:      publish.EventCriticalAlert,
		Channel:   "dashboard",
		Timestamp: s.now(),
		Data:      alert,
	})

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			events.FromContext(ctx).WithError(err).Warn("Alert notification failed")
		}
	}
}
