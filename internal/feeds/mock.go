package feeds

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/brickops/fieldsync/internal/models"
)

// MockSource generates deterministic compliance data seeded by building
// ID. The same building always yields the same records, so field crews
// running without an app token see stable output across refreshes.
type MockSource struct {
	mu   sync.Mutex
	errs map[string]error // keyed by feed name, see FailFeed
	now  func() time.Time
}

// NewMockSource creates a deterministic feed source.
func NewMockSource() *MockSource {
	return &MockSource{
		errs: make(map[string]error),
		now:  time.Now,
	}
}

// FailFeed makes the named feed (violations, inspections, permits,
// emergencies) return err. A nil err clears the failure.
func (m *MockSource) FailFeed(feed string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, feed)
		return
	}
	m.errs[feed] = err
}

func (m *MockSource) feedErr(feed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs[feed]
}

// rng returns a generator seeded by building ID so output is stable.
func (m *MockSource) rng(buildingID string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(buildingID))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

// FetchViolations implements Source.
func (m *MockSource) FetchViolations(ctx context.Context, buildingID string) ([]models.Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.feedErr("violations"); err != nil {
		return nil, &models.FeedError{Agency: models.AgencyHPD, BuildingID: buildingID, Err: err}
	}

	rng := m.rng(buildingID)
	agencies := []models.Agency{models.AgencyHPD, models.AgencyDOB, models.AgencyDSNY}
	classes := []models.ViolationClass{models.ClassNonHazardous, models.ClassHazardous, models.ClassImmediate}
	statuses := []string{"open", "open", "resolved", "dismissed"}

	count := 2 + rng.Intn(8)
	base := m.now().Add(-90 * 24 * time.Hour)

	out := make([]models.Violation, 0, count)
	for i := 0; i < count; i++ {
		v := models.Violation{
			ID:          fmt.Sprintf("%s-V%03d", buildingID, i),
			BuildingID:  buildingID,
			Agency:      agencies[rng.Intn(len(agencies))],
			Class:       classes[rng.Intn(len(classes))],
			Status:      statuses[rng.Intn(len(statuses))],
			Description: fmt.Sprintf("mock violation %d", i),
			Penalty:     float64(rng.Intn(50)) * 25,
			IssuedAt:    base.Add(time.Duration(rng.Intn(90*24)) * time.Hour),
		}
		if v.Status != "open" {
			t := v.IssuedAt.Add(time.Duration(1+rng.Intn(30)) * 24 * time.Hour)
			v.ResolvedAt = &t
		}
		out = append(out, v)
	}

	models.SortViolationsByIssued(out)
	return out, nil
}

// FetchInspections implements Source.
func (m *MockSource) FetchInspections(ctx context.Context, buildingID string) ([]models.Inspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.feedErr("inspections"); err != nil {
		return nil, &models.FeedError{Agency: models.AgencyHPD, BuildingID: buildingID, Err: err}
	}

	rng := m.rng(buildingID + ":inspections")
	results := []string{"passed", "passed", "failed", "pending"}
	count := 1 + rng.Intn(4)
	base := m.now().Add(-180 * 24 * time.Hour)

	out := make([]models.Inspection, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, models.Inspection{
			ID:          fmt.Sprintf("%s-I%03d", buildingID, i),
			BuildingID:  buildingID,
			Agency:      models.AgencyHPD,
			Type:        "routine",
			Result:      results[rng.Intn(len(results))],
			InspectedAt: base.Add(time.Duration(rng.Intn(180*24)) * time.Hour),
		})
	}

	models.SortInspectionsByDate(out)
	return out, nil
}

// FetchPermits implements Source.
func (m *MockSource) FetchPermits(ctx context.Context, buildingID string) ([]models.Permit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.feedErr("permits"); err != nil {
		return nil, &models.FeedError{Agency: models.AgencyDOB, BuildingID: buildingID, Err: err}
	}

	rng := m.rng(buildingID + ":permits")
	types := []string{"plumbing", "electrical", "construction"}
	count := rng.Intn(3)
	base := m.now().Add(-365 * 24 * time.Hour)

	out := make([]models.Permit, 0, count)
	for i := 0; i < count; i++ {
		issued := base.Add(time.Duration(rng.Intn(365*24)) * time.Hour)
		out = append(out, models.Permit{
			ID:         fmt.Sprintf("%s-P%03d", buildingID, i),
			BuildingID: buildingID,
			Type:       types[rng.Intn(len(types))],
			Status:     "issued",
			IssuedAt:   issued,
			ExpiresAt:  issued.Add(365 * 24 * time.Hour),
		})
	}

	models.SortPermitsByIssued(out)
	return out, nil
}

// FetchEmergencies implements Source.
func (m *MockSource) FetchEmergencies(ctx context.Context, buildingID string) ([]models.Emergency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.feedErr("emergencies"); err != nil {
		return nil, &models.FeedError{Agency: models.Agency311, BuildingID: buildingID, Err: err}
	}

	rng := m.rng(buildingID + ":emergencies")
	types := []string{"heat/hot water", "no water", "gas leak"}
	count := rng.Intn(2)

	out := make([]models.Emergency, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, models.Emergency{
			ID:            fmt.Sprintf("%s-E%03d", buildingID, i),
			BuildingID:    buildingID,
			ComplaintType: types[rng.Intn(len(types))],
			Active:        true,
			CreatedAt:     m.now().Add(-time.Duration(rng.Intn(72)) * time.Hour),
		})
	}

	return out, nil
}
