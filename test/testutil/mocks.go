// Package testutil provides shared mocks and fixtures for engine tests.
package testutil

import (
	"context"
	"os"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/models"
)

// NewTestLogger returns a quiet logger for tests.
func NewTestLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, "text", os.Stderr)
}

// MockSource mocks the feeds.Source interface.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchViolations(ctx context.Context, buildingID string) ([]models.Violation, error) {
	args := m.Called(ctx, buildingID)
	if result := args.Get(0); result != nil {
		return result.([]models.Violation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) FetchInspections(ctx context.Context, buildingID string) ([]models.Inspection, error) {
	args := m.Called(ctx, buildingID)
	if result := args.Get(0); result != nil {
		return result.([]models.Inspection), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) FetchPermits(ctx context.Context, buildingID string) ([]models.Permit, error) {
	args := m.Called(ctx, buildingID)
	if result := args.Get(0); result != nil {
		return result.([]models.Permit), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) FetchEmergencies(ctx context.Context, buildingID string) ([]models.Emergency, error) {
	args := m.Called(ctx, buildingID)
	if result := args.Get(0); result != nil {
		return result.([]models.Emergency), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPusher mocks the sync queue's Pusher interface.
type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Push(ctx context.Context, entry models.SyncQueueEntry, record *models.OfflineRecord) (*models.ServerRecord, error) {
	args := m.Called(ctx, entry, record)
	if result := args.Get(0); result != nil {
		return result.(*models.ServerRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// OpenViolation builds an open violation fixture.
func OpenViolation(id, buildingID string, class models.ViolationClass) models.Violation {
	return models.Violation{
		ID:         id,
		BuildingID: buildingID,
		Agency:     models.AgencyHPD,
		Class:      class,
		Status:     "open",
		IssuedAt:   time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	}
}
