package feeds

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/transport"
)

// Socrata dataset paths. Each resolves against the configured base URL.
const (
	datasetHPDViolations = "/resource/wvxf-dwi5.json"
	datasetDOBViolations = "/resource/3h2n-5cm9.json"
	datasetDSNYTickets   = "/resource/5jjm-8d93.json"
	datasetInspections   = "/resource/p937-wjvj.json"
	datasetPermits       = "/resource/ipu4-2q9a.json"
	dataset311           = "/resource/erm2-nwe9.json"
)

// socrataTimeLayout is the Socrata floating timestamp format.
const socrataTimeLayout = "2006-01-02T15:04:05.000"

// SocrataSource fetches live data from the NYC Open Data API.
type SocrataSource struct {
	transport transport.Transport
	logger    *events.Logger
}

// NewSocrataSource creates a live feed source over the given transport.
func NewSocrataSource(t transport.Transport, logger *events.Logger) *SocrataSource {
	return &SocrataSource{
		transport: t,
		logger:    logger.WithField("component", "socrata_source"),
	}
}

// violationRow is the raw shape shared by the violation datasets.
// Socrata returns every column as a string.
type violationRow struct {
	ViolationID    string `json:"violation_id"`
	BuildingID     string `json:"building_id"`
	Class          string `json:"violation_class"`
	Status         string `json:"violation_status"`
	Description    string `json:"nov_description"`
	Penalty        string `json:"penalty_imposed"`
	IssuedDate     string `json:"issued_date"`
	DispositionDte string `json:"disposition_date"`
}

type inspectionRow struct {
	InspectionID   string `json:"inspection_id"`
	BuildingID     string `json:"building_id"`
	InspectionType string `json:"inspection_type"`
	Result         string `json:"result"`
	InspectionDate string `json:"inspection_date"`
}

type permitRow struct {
	PermitID   string `json:"permit_id"`
	BuildingID string `json:"building_id"`
	PermitType string `json:"permit_type"`
	Status     string `json:"permit_status"`
	IssuedDate string `json:"issuance_date"`
	ExpireDate string `json:"expiration_date"`
}

type complaintRow struct {
	UniqueKey     string `json:"unique_key"`
	BuildingID    string `json:"building_id"`
	ComplaintType string `json:"complaint_type"`
	Status        string `json:"status"`
	CreatedDate   string `json:"created_date"`
}

// FetchViolations queries HPD, DOB, and DSNY and merges the results,
// newest first. A failure on any dataset fails the whole fetch; the
// caller decides whether to substitute cached or empty data.
func (s *SocrataSource) FetchViolations(ctx context.Context, buildingID string) ([]models.Violation, error) {
	datasets := []struct {
		agency models.Agency
		path   string
	}{
		{models.AgencyHPD, datasetHPDViolations},
		{models.AgencyDOB, datasetDOBViolations},
		{models.AgencyDSNY, datasetDSNYTickets},
	}

	var merged []models.Violation
	for _, d := range datasets {
		var rows []violationRow
		if err := s.transport.GetJSON(ctx, d.path, buildingQuery(buildingID), &rows); err != nil {
			return nil, &models.FeedError{Agency: d.agency, BuildingID: buildingID, Err: err}
		}

		for _, row := range rows {
			merged = append(merged, violationFromRow(row, d.agency, buildingID))
		}
	}

	models.SortViolationsByIssued(merged)

	s.logger.WithFields(map[string]any{
		"building_id": buildingID,
		"count":       len(merged),
	}).Debug("Fetched violations")

	return merged, nil
}

// FetchInspections queries the inspection dataset, newest first.
func (s *SocrataSource) FetchInspections(ctx context.Context, buildingID string) ([]models.Inspection, error) {
	var rows []inspectionRow
	if err := s.transport.GetJSON(ctx, datasetInspections, buildingQuery(buildingID), &rows); err != nil {
		return nil, &models.FeedError{Agency: models.AgencyHPD, BuildingID: buildingID, Err: err}
	}

	out := make([]models.Inspection, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Inspection{
			ID:          row.InspectionID,
			BuildingID:  buildingID,
			Agency:      models.AgencyHPD,
			Type:        row.InspectionType,
			Result:      strings.ToLower(row.Result),
			InspectedAt: parseSocrataTime(row.InspectionDate),
		})
	}

	models.SortInspectionsByDate(out)
	return out, nil
}

// FetchPermits queries the DOB permit dataset, newest first.
func (s *SocrataSource) FetchPermits(ctx context.Context, buildingID string) ([]models.Permit, error) {
	var rows []permitRow
	if err := s.transport.GetJSON(ctx, datasetPermits, buildingQuery(buildingID), &rows); err != nil {
		return nil, &models.FeedError{Agency: models.AgencyDOB, BuildingID: buildingID, Err: err}
	}

	out := make([]models.Permit, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Permit{
			ID:         row.PermitID,
			BuildingID: buildingID,
			Type:       row.PermitType,
			Status:     strings.ToLower(row.Status),
			IssuedAt:   parseSocrataTime(row.IssuedDate),
			ExpiresAt:  parseSocrataTime(row.ExpireDate),
		})
	}

	models.SortPermitsByIssued(out)
	return out, nil
}

// FetchEmergencies queries 311 for open complaints only.
func (s *SocrataSource) FetchEmergencies(ctx context.Context, buildingID string) ([]models.Emergency, error) {
	query := buildingQuery(buildingID)
	query.Set("status", "Open")

	var rows []complaintRow
	if err := s.transport.GetJSON(ctx, dataset311, query, &rows); err != nil {
		return nil, &models.FeedError{Agency: models.Agency311, BuildingID: buildingID, Err: err}
	}

	out := make([]models.Emergency, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Emergency{
			ID:            row.UniqueKey,
			BuildingID:    buildingID,
			ComplaintType: row.ComplaintType,
			Active:        strings.EqualFold(row.Status, "Open"),
			CreatedAt:     parseSocrataTime(row.CreatedDate),
		})
	}

	return out, nil
}

func buildingQuery(buildingID string) url.Values {
	return url.Values{"building_id": {buildingID}}
}

func violationFromRow(row violationRow, agency models.Agency, buildingID string) models.Violation {
	v := models.Violation{
		ID:          fmt.Sprintf("%s-%s", agency, row.ViolationID),
		BuildingID:  buildingID,
		Agency:      agency,
		Class:       classFromCode(row.Class),
		Status:      normalizeStatus(row.Status),
		Description: row.Description,
		IssuedAt:    parseSocrataTime(row.IssuedDate),
	}

	if p, err := strconv.ParseFloat(row.Penalty, 64); err == nil {
		v.Penalty = p
	}
	if row.DispositionDte != "" {
		t := parseSocrataTime(row.DispositionDte)
		if !t.IsZero() {
			v.ResolvedAt = &t
		}
	}

	return v
}

// classFromCode maps agency class codes onto the common hazard scale.
// HPD uses A/B/C, DOB ECB uses severity words.
func classFromCode(code string) models.ViolationClass {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "C", "IMMEDIATELY HAZARDOUS", "AGGRAVATED":
		return models.ClassImmediate
	case "B", "HAZARDOUS", "MAJOR":
		return models.ClassHazardous
	default:
		return models.ClassNonHazardous
	}
}

func normalizeStatus(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case strings.Contains(s, "open"), strings.Contains(s, "active"):
		return "open"
	case strings.Contains(s, "dismiss"):
		return "dismissed"
	case s == "":
		return "open"
	default:
		return "resolved"
	}
}

func parseSocrataTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{socrataTimeLayout, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
