package syncq

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/brickops/fieldsync/internal/models"
)

// Resolve merges a local payload with the server's echo field by field.
// It is a pure function: the same inputs always produce the same merged
// payload and the same conflict records, regardless of arrival order.
//
// Policy: status and text fields take the server value. Date fields take
// the later timestamp, with ties going to the server.
func Resolve(recordID string, local, server map[string]any) (map[string]any, []models.ConflictRecord) {
	merged := make(map[string]any, len(server)+len(local))
	for k, v := range server {
		merged[k] = v
	}
	// Local-only fields survive the merge untouched.
	for k, v := range local {
		if _, ok := server[k]; !ok {
			merged[k] = v
		}
	}

	// Sorted field order keeps the conflict list deterministic.
	fields := make([]string, 0, len(server))
	for k := range server {
		if _, ok := local[k]; ok {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)

	var conflicts []models.ConflictRecord
	for _, field := range fields {
		lv, sv := local[field], server[field]
		if equalValues(lv, sv) {
			continue
		}

		resolution := models.ResolutionServer
		if isDateField(field) {
			lt, lok := parseTimestamp(lv)
			st, sok := parseTimestamp(sv)
			if lok && sok && lt.After(st) {
				merged[field] = lv
				resolution = models.ResolutionLocal
			}
		}

		conflicts = append(conflicts, models.ConflictRecord{
			RecordID:    recordID,
			Field:       field,
			LocalValue:  lv,
			ServerValue: sv,
			Resolution:  resolution,
		})
	}

	return merged, conflicts
}

// isDateField classifies a field as a timestamp by naming convention.
func isDateField(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, "_at") ||
		strings.HasSuffix(n, "_date") ||
		strings.HasSuffix(n, "_time") ||
		n == "date"
}

func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func equalValues(a, b any) bool {
	// Payload values may be nested JSON objects, so == is not safe.
	return reflect.DeepEqual(a, b)
}
