package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBandForScore(t *testing.T) {
	tests := []struct {
		score int
		want  StatusBand
	}{
		{0, BandCritical},
		{49, BandCritical},
		{50, BandWarning},
		{69, BandWarning},
		{70, BandGood},
		{89, BandGood},
		{90, BandExcellent},
		{100, BandExcellent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BandForScore(tt.score), "score %d", tt.score)
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-40))
	assert.Equal(t, 0, ClampScore(0))
	assert.Equal(t, 55, ClampScore(55))
	assert.Equal(t, 100, ClampScore(100))
	assert.Equal(t, 100, ClampScore(130))
}

func TestViolationPredicates(t *testing.T) {
	v := Violation{Status: "Open", Class: ClassImmediate}
	assert.True(t, v.IsOpen())
	assert.True(t, v.IsCritical())

	v = Violation{Status: "resolved", Class: ClassHazardous}
	assert.False(t, v.IsOpen())
	assert.False(t, v.IsCritical())
}

func TestSortViolationsByIssued(t *testing.T) {
	older := Violation{ID: "old", IssuedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := Violation{ID: "new", IssuedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}

	items := []Violation{older, newer}
	SortViolationsByIssued(items)

	assert.Equal(t, "new", items[0].ID)
	assert.Equal(t, "old", items[1].ID)
}

func TestValidateRecordID(t *testing.T) {
	assert.NoError(t, ValidateRecordID("insp-2026-0311"))

	for _, id := range []string{"", "   ", "a/b", "a\\b", "a\nb"} {
		err := ValidateRecordID(id)
		assert.Error(t, err, "id %q", id)

		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}
}

func TestOfflineRecordClone(t *testing.T) {
	rec := &OfflineRecord{
		ID:           "r1",
		Payload:      map[string]any{"status": "open"},
		LocalVersion: 2,
	}

	clone := rec.Clone()
	clone.Payload["status"] = "closed"

	assert.Equal(t, "open", rec.Payload["status"])
	assert.Equal(t, 2, clone.LocalVersion)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(&ValidationError{Field: "id", Reason: "empty"}))
	assert.False(t, IsRetryable(&NetworkError{Retryable: false}))
	assert.True(t, IsRetryable(&NetworkError{Retryable: true}))
	assert.True(t, IsRetryable(assert.AnError))

	// Classification survives wrapping.
	wrapped := &FeedError{Agency: AgencyHPD, BuildingID: "B-1", Err: &NetworkError{Retryable: false}}
	assert.False(t, IsRetryable(wrapped))
}
