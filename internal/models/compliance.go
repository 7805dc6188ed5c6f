package models

import (
	"sort"
	"strings"
	"time"
)

// Agency identifies the upstream data source for a compliance record.
type Agency string

const (
	AgencyHPD  Agency = "hpd"
	AgencyDOB  Agency = "dob"
	AgencyDSNY Agency = "dsny"
	Agency311  Agency = "311"
)

// ViolationClass maps the agency hazard classes onto a common scale.
type ViolationClass string

const (
	ClassNonHazardous ViolationClass = "non_hazardous"
	ClassHazardous    ViolationClass = "hazardous"
	ClassImmediate    ViolationClass = "immediately_hazardous"
)

// Violation is a single open-data violation record, normalized across agencies.
type Violation struct {
	ID          string         `json:"id"`
	BuildingID  string         `json:"building_id"`
	Agency      Agency         `json:"agency"`
	Class       ViolationClass `json:"class"`
	Status      string         `json:"status"` // open, resolved, dismissed
	Description string         `json:"description,omitempty"`
	Penalty     float64        `json:"penalty"`
	IssuedAt    time.Time      `json:"issued_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// IsOpen reports whether the violation still counts against the building.
func (v Violation) IsOpen() bool {
	return strings.EqualFold(v.Status, "open")
}

// IsCritical reports whether the violation is immediately hazardous.
func (v Violation) IsCritical() bool {
	return v.Class == ClassImmediate
}

// Inspection is a normalized inspection result.
type Inspection struct {
	ID          string    `json:"id"`
	BuildingID  string    `json:"building_id"`
	Agency      Agency    `json:"agency"`
	Type        string    `json:"type"`
	Result      string    `json:"result"` // passed, failed, pending
	InspectedAt time.Time `json:"inspected_at"`
}

// Permit is a normalized DOB permit record.
type Permit struct {
	ID         string    `json:"id"`
	BuildingID string    `json:"building_id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Emergency is an active 311 complaint treated as an emergency signal.
type Emergency struct {
	ID            string    `json:"id"`
	BuildingID    string    `json:"building_id"`
	ComplaintType string    `json:"complaint_type"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Trend describes the direction of a building's compliance score.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// StatusBand buckets a live compliance score for dashboard display.
type StatusBand string

const (
	BandCritical  StatusBand = "critical"
	BandWarning   StatusBand = "warning"
	BandGood      StatusBand = "good"
	BandExcellent StatusBand = "excellent"
)

// BandForScore maps a live score onto its display band.
func BandForScore(score int) StatusBand {
	switch {
	case score < 50:
		return BandCritical
	case score < 70:
		return BandWarning
	case score < 90:
		return BandGood
	default:
		return BandExcellent
	}
}

// ComplianceSummary is the cached, derived per-building rollup.
type ComplianceSummary struct {
	BuildingID         string        `json:"building_id"`
	TotalViolations    int           `json:"total_violations"`
	OpenViolations     int           `json:"open_violations"`
	CriticalViolations int           `json:"critical_violations"`
	TotalFines         float64       `json:"total_fines"`
	ComplianceScore    int           `json:"compliance_score"`
	Trend              Trend         `json:"trend"`
	CachedAt           time.Time     `json:"cached_at"`
	TTL                time.Duration `json:"ttl"`
}

// PortfolioSummary aggregates per-building summaries across a portfolio.
// Buildings without a resolvable summary are excluded from the average,
// not counted as zero.
type PortfolioSummary struct {
	BuildingCount      int     `json:"building_count"`
	ResolvedCount      int     `json:"resolved_count"`
	TotalViolations    int     `json:"total_violations"`
	OpenViolations     int     `json:"open_violations"`
	CriticalViolations int     `json:"critical_violations"`
	TotalFines         float64 `json:"total_fines"`
	AverageScore       float64 `json:"average_score"`
}

// BuildingSnapshot is the live refresh result for one building in one cycle.
type BuildingSnapshot struct {
	BuildingID         string       `json:"building_id"`
	Violations         []Violation  `json:"violations"`
	Emergencies        []Emergency  `json:"emergencies"`
	TotalViolations    int          `json:"total_violations"`
	CriticalViolations int          `json:"critical_violations"`
	Score              int          `json:"score"`
	Band               StatusBand   `json:"band"`
	Trend              Trend        `json:"trend"`
	RefreshedAt        time.Time    `json:"refreshed_at"`
}

// SortViolationsByIssued orders violations newest first.
func SortViolationsByIssued(items []Violation) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].IssuedAt.After(items[j].IssuedAt)
	})
}

// SortInspectionsByDate orders inspections newest first.
func SortInspectionsByDate(items []Inspection) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].InspectedAt.After(items[j].InspectedAt)
	})
}

// SortPermitsByIssued orders permits newest first.
func SortPermitsByIssued(items []Permit) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].IssuedAt.After(items[j].IssuedAt)
	})
}

// ClampScore bounds a raw score to the 0-100 display range.
func ClampScore(raw int) int {
	if raw < 0 {
		return 0
	}
	if raw > 100 {
		return 100
	}
	return raw
}
