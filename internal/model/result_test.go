package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"NO_CHANGE", SeverityNoChange, true},
		{"NOTABLE", SeverityNotable, true},
		{"INCREMENTAL", SeverityNotable, true},
		{"MATERIAL", SeverityMaterial, true},
		{"material", SeverityMaterial, true},
		{"  notable ", SeverityNotable, true},
		{"CATASTROPHIC", SeverityNoChange, false},
		{"", SeverityNoChange, false},
	}
	for _, tc := range cases {
		got, ok := ParseSeverity(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestDecodeSweepResult_NoChange(t *testing.T) {
	raw := `{"classification": "NO_CHANGE", "summary": "Sweep completed: no change to Investment View", "detail": null, "suggested_profile_updates": null}`
	res := DecodeSweepResult(raw)

	assert.Equal(t, SeverityNoChange, res.Severity)
	assert.Nil(t, res.Detail)
	assert.Nil(t, res.ProfileUpdate)
	assert.False(t, res.ParseError)
}

func TestDecodeSweepResult_Material(t *testing.T) {
	raw := `{
		"classification": "MATERIAL",
		"summary": "Guidance cut 20%",
		"detail": {
			"what_happened": "FY guidance lowered",
			"why_it_matters": "Breaks the order-recovery assumption",
			"recommended_action": "Reassess conviction",
			"confidence": "high",
			"sources": ["company_ir"]
		},
		"suggested_profile_updates": {
			"investment_view_detail": {
				"stance": "bearish",
				"conviction": "medium",
				"thesis_summary": "Recovery delayed"
			}
		}
	}`
	res := DecodeSweepResult(raw)

	require.Equal(t, SeverityMaterial, res.Severity)
	require.NotNil(t, res.Detail)
	assert.Equal(t, "FY guidance lowered", res.Detail.WhatHappened)
	require.NotNil(t, res.ProfileUpdate)
	assert.Equal(t, StanceBearish, res.ProfileUpdate.Stance)
}

func TestDecodeSweepResult_NotableDropsProfileUpdate(t *testing.T) {
	raw := `{
		"classification": "NOTABLE",
		"summary": "Peer reported strong orders",
		"detail": {"what_happened": "x", "why_it_matters": "y", "recommended_action": "z", "confidence": "low", "sources": []},
		"suggested_profile_updates": {"investment_view_detail": {"stance": "bullish"}}
	}`
	res := DecodeSweepResult(raw)

	assert.Equal(t, SeverityNotable, res.Severity)
	assert.NotNil(t, res.Detail)
	assert.Nil(t, res.ProfileUpdate)
}

func TestDecodeSweepResult_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"classification\": \"NO_CHANGE\", \"summary\": \"ok\", \"detail\": null}\n```"
	res := DecodeSweepResult(raw)

	assert.Equal(t, SeverityNoChange, res.Severity)
	assert.Equal(t, "ok", res.Summary)
	assert.False(t, res.ParseError)
}

func TestDecodeSweepResult_EmbeddedJSON(t *testing.T) {
	raw := "Here is my assessment:\n{\"classification\": \"NO_CHANGE\", \"summary\": \"ok\", \"detail\": null}\nLet me know if you need more."
	res := DecodeSweepResult(raw)

	assert.False(t, res.ParseError)
	assert.Equal(t, "ok", res.Summary)
}

func TestDecodeSweepResult_Unparseable(t *testing.T) {
	res := DecodeSweepResult("I could not find any relevant information today.")

	assert.Equal(t, SeverityNoChange, res.Severity)
	assert.Equal(t, ParseErrorSummary, res.Summary)
	assert.Nil(t, res.Detail)
	assert.True(t, res.ParseError)
}

func TestDecodeSweepResult_UnknownClassification(t *testing.T) {
	res := DecodeSweepResult(`{"classification": "HUGE", "summary": "x", "detail": null}`)

	assert.True(t, res.ParseError)
	assert.Equal(t, SeverityNoChange, res.Severity)
}

func TestDecodeSweepResult_FlaggedWithoutDetailIsViolation(t *testing.T) {
	res := DecodeSweepResult(`{"classification": "MATERIAL", "summary": "x", "detail": null}`)

	assert.True(t, res.ParseError)
	assert.Equal(t, SeverityNoChange, res.Severity)
}

func TestDecodeSweepResult_FirstRunNarrative(t *testing.T) {
	raw := `{
		"classification": "NO_CHANGE",
		"summary": "Sweep completed: no change to Investment View",
		"detail": null,
		"narrative_updates": {"earnings_trend": "flat", "recent_newsflow": "quiet", "long_term_trajectory": "steady"},
		"outlook_updates": {"fundamentals": "stable", "financials": "solid", "risks": "cyclical"}
	}`
	res := DecodeSweepResult(raw)

	require.False(t, res.ParseError)
	require.NotNil(t, res.NarrativeUpdate)
	assert.Equal(t, "flat", res.NarrativeUpdate.EarningsTrend)
	require.NotNil(t, res.OutlookUpdate)
	assert.Equal(t, "stable", res.OutlookUpdate.Fundamentals)
}

func TestDecodeSectorSynthesis(t *testing.T) {
	raw := `{
		"classification": "INCREMENTAL",
		"summary": "Two members flagged order softness",
		"detail": {"sector_themes": "orders"},
		"suggested_sector_view_update": {"stance": "bearish"}
	}`
	res := DecodeSectorSynthesis(raw)

	assert.Equal(t, SeverityNotable, res.Severity)
	assert.NotNil(t, res.Detail)
	// View updates only apply on material.
	assert.Nil(t, res.ViewUpdate)
}

func TestDecodeSectorSynthesis_Unparseable(t *testing.T) {
	res := DecodeSectorSynthesis("no json here")

	assert.True(t, res.ParseError)
	assert.Equal(t, SectorParseErrorSummary, res.Summary)
	assert.Equal(t, SeverityNoChange, res.Severity)
}

func TestNeedsFirstRun(t *testing.T) {
	c := &Company{}
	assert.True(t, c.NeedsFirstRun())

	c.Profile.Narrative = &Narrative{EarningsTrend: "up"}
	assert.True(t, c.NeedsFirstRun())

	c.Profile.Outlook = &Outlook{Fundamentals: "ok"}
	assert.False(t, c.NeedsFirstRun())
}
