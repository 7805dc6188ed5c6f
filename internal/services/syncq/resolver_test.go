package syncq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brickops/fieldsync/internal/models"
)

func TestResolveServerWinsStatusAndText(t *testing.T) {
	local := map[string]any{
		"status": "in_progress",
		"notes":  "crew on site",
	}
	server := map[string]any{
		"status": "closed",
		"notes":  "closed by inspector",
	}

	merged, conflicts := Resolve("r1", local, server)

	assert.Equal(t, "closed", merged["status"])
	assert.Equal(t, "closed by inspector", merged["notes"])
	require.Len(t, conflicts, 2)
	for _, c := range conflicts {
		assert.Equal(t, models.ResolutionServer, c.Resolution)
	}
}

func TestResolveLaterDateWins(t *testing.T) {
	local := map[string]any{
		"inspected_at": "2026-03-02T10:00:00Z",
	}
	server := map[string]any{
		"inspected_at": "2026-03-01T10:00:00Z",
	}

	merged, conflicts := Resolve("r1", local, server)

	assert.Equal(t, "2026-03-02T10:00:00Z", merged["inspected_at"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ResolutionLocal, conflicts[0].Resolution)
}

func TestResolveDateTieGoesToServer(t *testing.T) {
	// Same instant, different zone spelling.
	localTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339)
	serverTime := "2026-03-01T05:00:00-05:00"

	merged, conflicts := Resolve("r1",
		map[string]any{"due_date": localTime},
		map[string]any{"due_date": serverTime},
	)

	assert.Equal(t, serverTime, merged["due_date"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ResolutionServer, conflicts[0].Resolution)
}

func TestResolveUnparseableDateFallsToServer(t *testing.T) {
	merged, conflicts := Resolve("r1",
		map[string]any{"resolved_at": "next tuesday"},
		map[string]any{"resolved_at": "2026-03-01T10:00:00Z"},
	)

	assert.Equal(t, "2026-03-01T10:00:00Z", merged["resolved_at"])
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ResolutionServer, conflicts[0].Resolution)
}

func TestResolveKeepsLocalOnlyFields(t *testing.T) {
	merged, conflicts := Resolve("r1",
		map[string]any{"status": "open", "photo_ref": "local-123"},
		map[string]any{"status": "open", "inspector": "J. Ruiz"},
	)

	assert.Empty(t, conflicts)
	assert.Equal(t, "local-123", merged["photo_ref"])
	assert.Equal(t, "J. Ruiz", merged["inspector"])
}

func TestResolveIsDeterministic(t *testing.T) {
	local := map[string]any{
		"status":     "open",
		"notes":      "local note",
		"checked_at": "2026-03-05T09:00:00Z",
		"zone":       "MN-01",
	}
	server := map[string]any{
		"status":     "closed",
		"notes":      "server note",
		"checked_at": "2026-03-04T09:00:00Z",
		"zone":       "MN-02",
	}

	firstMerged, firstConflicts := Resolve("r1", local, server)
	for i := 0; i < 20; i++ {
		merged, conflicts := Resolve("r1", local, server)
		assert.Equal(t, firstMerged, merged)
		assert.Equal(t, firstConflicts, conflicts)
	}
}

func TestIsDateField(t *testing.T) {
	assert.True(t, isDateField("created_at"))
	assert.True(t, isDateField("due_date"))
	assert.True(t, isDateField("start_time"))
	assert.True(t, isDateField("date"))
	assert.False(t, isDateField("status"))
	assert.False(t, isDateField("updated"))
}
