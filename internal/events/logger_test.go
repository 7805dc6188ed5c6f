package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(WarnLevel, "text", &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "also shown")
}

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewTestLogger(InfoLevel, "text", &buf)
	child := parent.WithField("building_id", "B-1")

	parent.Info("parent line")
	child.Info("child line")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "building_id")
	assert.Contains(t, lines[1], "building_id=B-1")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(InfoLevel, "json", &buf)

	logger.WithField("cycle_id", "c-1").WithError(errors.New("boom")).Error("cycle failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "cycle failed", entry["msg"])
	assert.Equal(t, "c-1", entry["cycle_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["time"])
}

func TestTextFieldOrderIsStable(t *testing.T) {
	fields := map[string]any{"zeta": 1, "alpha": 2, "mid": 3}

	var first string
	for i := 0; i < 5; i++ {
		var buf bytes.Buffer
		NewTestLogger(InfoLevel, "text", &buf).WithFields(fields).Info("x")

		// Compare only the field tail; the timestamp prefix varies.
		line := buf.String()
		tail := line[strings.Index(line, "] x")+3:]
		if i == 0 {
			first = tail
			assert.Less(t, strings.Index(tail, "alpha"), strings.Index(tail, "zeta"))
			continue
		}
		assert.Equal(t, first, tail)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("anything else"))
}

func TestContextLoggerScoping(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTestLogger(InfoLevel, "text", &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithBuildingID(ctx, "B-9")

	FromContext(ctx).Info("scoped")

	assert.Contains(t, buf.String(), "building_id=B-9")
	assert.Equal(t, "B-9", GetBuildingID(ctx))
}
