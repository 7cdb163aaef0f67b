package model

import (
	"encoding/json"
	"strings"
)

// Severity is the canonical tri-state classification of a sweep. The
// sector oracle historically emitted "INCREMENTAL" for the middle tier;
// ParseSeverity accepts it as an alias of notable.
type Severity string

const (
	SeverityNoChange Severity = "no_change"
	SeverityNotable  Severity = "notable"
	SeverityMaterial Severity = "material"
)

// ParseSeverity maps an oracle classification string to a Severity.
// Returns false for anything unrecognized.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NO_CHANGE":
		return SeverityNoChange, true
	case "NOTABLE", "INCREMENTAL":
		return SeverityNotable, true
	case "MATERIAL":
		return SeverityMaterial, true
	default:
		return SeverityNoChange, false
	}
}

// ParseErrorSummary is the summary recorded when an oracle response could
// not be decoded. Kept distinct from any genuine no-change summary so the
// two are distinguishable in the action log.
const ParseErrorSummary = "Sweep completed: parsing error — defaulting to no change"

// SweepDetail is the structured brief attached to notable and material
// findings. Nil exactly when the severity is no_change.
type SweepDetail struct {
	WhatHappened      string   `json:"what_happened"`
	WhyItMatters      string   `json:"why_it_matters"`
	RecommendedAction string   `json:"recommended_action"`
	Confidence        string   `json:"confidence"`
	Sources           []string `json:"sources"`
}

// SweepResult is the decoded oracle judgement for one company's sweep.
//
// The variants are:
//
//	no_change: Detail and ProfileUpdate nil
//	notable:   Detail set, ProfileUpdate nil
//	material:  Detail set, ProfileUpdate may be set
//
// NarrativeUpdate/OutlookUpdate may accompany any severity on a company's
// first sweep (first-run rule); otherwise only material.
type SweepResult struct {
	Severity        Severity              `json:"severity"`
	Summary         string                `json:"summary"`
	Detail          *SweepDetail          `json:"detail,omitempty"`
	ProfileUpdate   *InvestmentViewDetail `json:"suggested_profile_update,omitempty"`
	NarrativeUpdate *Narrative            `json:"narrative_updates,omitempty"`
	OutlookUpdate   *Outlook              `json:"outlook_updates,omitempty"`
	ParseError      bool                  `json:"parse_error,omitempty"`
	Raw             string                `json:"-"`
}

// parseFailure builds the degraded no_change result for an undecodable
// oracle response.
func parseFailure(raw string) *SweepResult {
	return &SweepResult{
		Severity:   SeverityNoChange,
		Summary:    ParseErrorSummary,
		ParseError: true,
		Raw:        raw,
	}
}

// sweepResultWire is the oracle's JSON shape before invariants are applied.
type sweepResultWire struct {
	Classification string       `json:"classification"`
	Summary        string       `json:"summary"`
	Detail         *SweepDetail `json:"detail"`
	ProfileUpdates *struct {
		InvestmentView *InvestmentViewDetail `json:"investment_view_detail"`
	} `json:"suggested_profile_updates"`
	NarrativeUpdates *Narrative `json:"narrative_updates"`
	OutlookUpdates   *Outlook   `json:"outlook_updates"`
}

// DecodeSweepResult parses an oracle response into a SweepResult. It never
// fails: a response that cannot be decoded, or that violates the variant
// invariants, yields the no_change parse-error result instead.
func DecodeSweepResult(raw string) *SweepResult {
	payload, ok := ExtractJSON(raw)
	if !ok {
		return parseFailure(raw)
	}

	var wire sweepResultWire
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return parseFailure(raw)
	}

	sev, ok := ParseSeverity(wire.Classification)
	if !ok {
		return parseFailure(raw)
	}
	if sev != SeverityNoChange && wire.Detail == nil {
		return parseFailure(raw)
	}

	res := &SweepResult{
		Severity:        sev,
		Summary:         wire.Summary,
		NarrativeUpdate: wire.NarrativeUpdates,
		OutlookUpdate:   wire.OutlookUpdates,
		Raw:             raw,
	}
	if sev != SeverityNoChange {
		res.Detail = wire.Detail
	}
	if sev == SeverityMaterial && wire.ProfileUpdates != nil {
		res.ProfileUpdate = wire.ProfileUpdates.InvestmentView
	}
	return res
}

// ExtractJSON pulls a JSON object out of an oracle response that may wrap
// it in markdown code fences or surrounding prose. Returns false when no
// object can be found.
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
