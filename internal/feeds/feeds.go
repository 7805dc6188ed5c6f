// Package feeds normalizes NYC open-data compliance feeds into the
// engine's common model. Each agency feed maps to one fetch operation.
package feeds

import (
	"context"

	"github.com/brickops/fieldsync/internal/models"
)

// Source fetches compliance data for one building at a time. All
// implementations must be safe for concurrent use; the refresh
// scheduler fans out one goroutine per feed.
type Source interface {
	// FetchViolations returns all violations for the building across
	// HPD, DOB, and DSNY.
	FetchViolations(ctx context.Context, buildingID string) ([]models.Violation, error)

	// FetchInspections returns recent inspections for the building.
	FetchInspections(ctx context.Context, buildingID string) ([]models.Inspection, error)

	// FetchPermits returns DOB permits for the building.
	FetchPermits(ctx context.Context, buildingID string) ([]models.Permit, error)

	// FetchEmergencies returns active 311 emergency complaints for the
	// building.
	FetchEmergencies(ctx context.Context, buildingID string) ([]models.Emergency, error)
}
