// Package coordinator loads building compliance data on demand. It is
// the read path between the UI layer and the feeds: cache-first, with
// concurrent loads for the same building collapsed into one fetch and
// portfolio loads batched to respect upstream rate limits.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/brickops/fieldsync/internal/cache"
	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/feeds"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/retry"
)

// Coordinator serves cache-first compliance loads.
type Coordinator struct {
	cache  *cache.Store
	source feeds.Source
	cfg    config.CoordinatorConfig
	logger *events.Logger
	now    func() time.Time

	flight singleflight.Group
}

// New creates a coordinator.
func New(c *cache.Store, source feeds.Source, cfg config.CoordinatorConfig, logger *events.Logger) *Coordinator {
	return &Coordinator{
		cache:  c,
		source: source,
		cfg:    cfg,
		logger: logger.WithField("component", "coordinator"),
		now:    time.Now,
	}
}

// LoadBuilding returns the compliance summary for one building. Data
// cached within the freshness window is served without a fetch.
// Concurrent callers for the same building share a single fetch.
func (c *Coordinator) LoadBuilding(ctx context.Context, buildingID string) (*models.ComplianceSummary, error) {
	if cached := c.fromCache(buildingID); cached != nil {
		return cached, nil
	}

	result, err, shared := c.flight.Do(buildingID, func() (any, error) {
		// A caller that queued behind the leader may find fresh data
		// already cached by the time it runs.
		if cached := c.fromCache(buildingID); cached != nil {
			return cached, nil
		}
		return c.fetchAndCache(ctx, buildingID)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.WithField("building_id", buildingID).Debug("Load coalesced with in-flight fetch")
	}
	return result.(*models.ComplianceSummary), nil
}

// Refresh bypasses the freshness window and fetches the building's
// feeds now. Concurrent refreshes for the same building still collapse
// into one fetch.
func (c *Coordinator) Refresh(ctx context.Context, buildingID string) (*models.ComplianceSummary, error) {
	result, err, shared := c.flight.Do(buildingID, func() (any, error) {
		return c.fetchAndCache(ctx, buildingID)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.WithField("building_id", buildingID).Debug("Refresh coalesced with in-flight fetch")
	}
	return result.(*models.ComplianceSummary), nil
}

// fromCache returns the summary when violations were cached within the
// freshness window, nil otherwise.
func (c *Coordinator) fromCache(buildingID string) *models.ComplianceSummary {
	cachedAt := c.cache.LastCachedAt(buildingID)
	if cachedAt.IsZero() || c.now().Sub(cachedAt) > c.cfg.CacheTimeout {
		return nil
	}

	summary, err := c.cache.GetComplianceSummary(buildingID)
	if err != nil {
		return nil
	}
	return summary
}

// fetchAndCache pulls the building's feeds with linear retry and stores
// the results.
func (c *Coordinator) fetchAndCache(ctx context.Context, buildingID string) (*models.ComplianceSummary, error) {
	policy := retry.Policy{
		MaxAttempts: c.cfg.RetryAttempts,
		Base:        c.cfg.RetryDelay,
	}

	var violations []models.Violation
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var ferr error
		violations, ferr = c.source.FetchViolations(ctx, buildingID)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("load building %s: %w", buildingID, err)
	}

	if err := c.cache.PutViolations(buildingID, violations); err != nil {
		return nil, err
	}

	// Inspections and permits ride along on the same load but their
	// failure does not void the violations already cached.
	if inspections, err := c.source.FetchInspections(ctx, buildingID); err == nil {
		if err := c.cache.PutInspections(buildingID, inspections); err != nil {
			return nil, err
		}
	} else {
		c.logger.WithError(err).WithField("building_id", buildingID).Warn("Inspection fetch failed")
	}

	if permits, err := c.source.FetchPermits(ctx, buildingID); err == nil {
		if err := c.cache.PutPermits(buildingID, permits); err != nil {
			return nil, err
		}
	} else {
		c.logger.WithError(err).WithField("building_id", buildingID).Warn("Permit fetch failed")
	}

	return c.cache.GetComplianceSummary(buildingID)
}

// PortfolioResult reports one multi-building load.
type PortfolioResult struct {
	Summary *models.PortfolioSummary
	// Errors maps building ID to its load failure. Failed buildings
	// are still counted in the portfolio but excluded from averages.
	Errors map[string]error
}

// LoadPortfolio loads many buildings in batches. Buildings within a
// batch load concurrently; a failure affects only its own building.
// Batches are separated by the configured delay.
func (c *Coordinator) LoadPortfolio(ctx context.Context, buildingIDs []string) (*PortfolioResult, error) {
	result := &PortfolioResult{Errors: make(map[string]error)}

	var mu sync.Mutex
	for start := 0; start < len(buildingIDs); start += c.cfg.BatchSize {
		if start > 0 {
			select {
			case <-time.After(c.cfg.BatchDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}

		end := start + c.cfg.BatchSize
		if end > len(buildingIDs) {
			end = len(buildingIDs)
		}
		batch := buildingIDs[start:end]

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range batch {
			id := id
			g.Go(func() error {
				if _, err := c.LoadBuilding(gctx, id); err != nil {
					mu.Lock()
					result.Errors[id] = err
					mu.Unlock()
					c.logger.WithError(err).WithField("building_id", id).Warn("Building load failed")
				}
				// Per-building failures stay isolated; only context
				// cancellation aborts the batch.
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return result, err
		}

		c.logger.WithFields(map[string]any{
			"batch_start": start,
			"batch_size":  len(batch),
		}).Debug("Portfolio batch loaded")
	}

	summary, err := c.cache.GetPortfolioSummary(buildingIDs)
	if err != nil {
		return result, err
	}
	result.Summary = summary
	return result, nil
}

// Inspections returns cached inspections, fetching on a miss.
func (c *Coordinator) Inspections(ctx context.Context, buildingID string) ([]models.Inspection, error) {
	items, err := c.cache.GetInspections(buildingID)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, models.ErrCacheMiss) {
		return nil, err
	}

	items, err = c.source.FetchInspections(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.PutInspections(buildingID, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Permits returns cached permits, fetching on a miss.
func (c *Coordinator) Permits(ctx context.Context, buildingID string) ([]models.Permit, error) {
	items, err := c.cache.GetPermits(buildingID)
	if err == nil {
		return items, nil
	}
	if !errors.Is(err, models.ErrCacheMiss) {
		return nil, err
	}

	items, err = c.source.FetchPermits(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.PutPermits(buildingID, items); err != nil {
		return nil, err
	}
	return items, nil
}
