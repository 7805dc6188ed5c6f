package events

import (
	"context"
	"os"
)

type contextKey int

const (
	loggerKey contextKey = iota
	buildingIDKey
	cycleIDKey
)

// FromContext extracts the logger from context, falling back to the
// package default.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return defaultLogger
}

// WithLogger adds a logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithBuildingID scopes the context logger to one building.
func WithBuildingID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("building_id", id)
	ctx = context.WithValue(ctx, buildingIDKey, id)
	return WithLogger(ctx, logger)
}

// WithCycleID scopes the context logger to one refresh cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("cycle_id", id)
	ctx = context.WithValue(ctx, cycleIDKey, id)
	return WithLogger(ctx, logger)
}

// GetBuildingID retrieves the building ID from context.
func GetBuildingID(ctx context.Context) string {
	if id, ok := ctx.Value(buildingIDKey).(string); ok {
		return id
	}
	return ""
}

var defaultLogger = &Logger{
	level:  InfoLevel,
	format: "text",
	output: os.Stderr,
	fields: make(map[string]any),
}

// SetDefault sets the default logger returned by FromContext.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
