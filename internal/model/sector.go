package model

import (
	"encoding/json"
	"time"
)

// SectorView is the synthesized group-level investment view for a sector.
type SectorView struct {
	SectorKey           string     `json:"sector_key"`
	Stance              Stance     `json:"stance"`
	Conviction          Conviction `json:"conviction"`
	ThesisSummary       string     `json:"thesis_summary"`
	ValuationAssessment []string   `json:"valuation_assessment"`
	ConvictionRationale []string   `json:"conviction_rationale"`
	KeyDrivers          []string   `json:"key_drivers"`
	KeyRisks            []string   `json:"key_risks"`
	LastUpdatedReason   string     `json:"last_updated_reason"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SectorLogEntry is one append-only record of a sector synthesis pass. An
// entry is written whether or not the view changed; material entries are
// the ones that updated it.
type SectorLogEntry struct {
	ID               string          `json:"id"`
	SectorKey        string          `json:"sector_key"`
	Severity         Severity        `json:"severity"`
	Summary          string          `json:"summary"`
	RelatedCompanies []string        `json:"related_companies"`
	Detail           json.RawMessage `json:"detail,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SectorSynthesis is the decoded oracle judgement for one sector pass.
type SectorSynthesis struct {
	Severity   Severity              `json:"severity"`
	Summary    string                `json:"summary"`
	Detail     json.RawMessage       `json:"detail,omitempty"`
	ViewUpdate *InvestmentViewDetail `json:"suggested_sector_view_update,omitempty"`
	ParseError bool                  `json:"parse_error,omitempty"`
	Raw        string                `json:"-"`
}

// SectorParseErrorSummary mirrors ParseErrorSummary for sector passes.
const SectorParseErrorSummary = "Sector sweep completed: parsing error — defaulting to no change"

type sectorSynthesisWire struct {
	Classification string                `json:"classification"`
	Summary        string                `json:"summary"`
	Detail         json.RawMessage       `json:"detail"`
	ViewUpdate     *InvestmentViewDetail `json:"suggested_sector_view_update"`
}

// DecodeSectorSynthesis parses a sector oracle response. Like
// DecodeSweepResult it never fails; schema violations degrade to a
// no_change parse-error result.
func DecodeSectorSynthesis(raw string) *SectorSynthesis {
	failure := &SectorSynthesis{
		Severity:   SeverityNoChange,
		Summary:    SectorParseErrorSummary,
		ParseError: true,
		Raw:        raw,
	}

	payload, ok := ExtractJSON(raw)
	if !ok {
		return failure
	}
	var wire sectorSynthesisWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return failure
	}
	sev, ok := ParseSeverity(wire.Classification)
	if !ok {
		return failure
	}

	res := &SectorSynthesis{
		Severity: sev,
		Summary:  wire.Summary,
		Detail:   wire.Detail,
		Raw:      raw,
	}
	if sev == SeverityMaterial {
		res.ViewUpdate = wire.ViewUpdate
	}
	return res
}
