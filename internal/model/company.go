package model

import "time"

// Stance is the directional investment view on a company or sector.
type Stance string

const (
	StanceBullish Stance = "bullish"
	StanceNeutral Stance = "neutral"
	StanceBearish Stance = "bearish"
)

// Conviction is the ordinal strength of a view.
type Conviction string

const (
	ConvictionLow    Conviction = "low"
	ConvictionMedium Conviction = "medium"
	ConvictionHigh   Conviction = "high"
)

// InvestmentViewDetail is the tightly formatted view block maintained on
// both companies and sectors. Field limits (100-word thesis, 3-4 bullets)
// are enforced by the oracle prompt, not by this type.
type InvestmentViewDetail struct {
	Stance              Stance     `json:"stance"`
	Conviction          Conviction `json:"conviction"`
	ThesisSummary       string     `json:"thesis_summary"`
	ValuationAssessment []string   `json:"valuation_assessment"`
	ConvictionRationale []string   `json:"conviction_rationale"`
	KeyDrivers          []string   `json:"key_drivers"`
	KeyRisks            []string   `json:"key_risks"`
	Catalysts           []string   `json:"catalysts,omitempty"`
	LastUpdated         string     `json:"last_updated"`
	LastUpdatedReason   string     `json:"last_updated_reason"`
}

// Narrative holds the rolling prose sections describing where the company
// has been. Populated on first sweep and refreshed on material findings.
type Narrative struct {
	EarningsTrend      string `json:"earnings_trend"`
	RecentNewsflow     string `json:"recent_newsflow"`
	LongTermTrajectory string `json:"long_term_trajectory"`
}

// Outlook holds the forward-looking prose sections.
type Outlook struct {
	Fundamentals string `json:"fundamentals"`
	Financials   string `json:"financials"`
	Risks        string `json:"risks"`
}

// Profile is the structured research document maintained per company.
type Profile struct {
	Overview       string                `json:"overview,omitempty"`
	Thesis         string                `json:"thesis"`
	KeyAssumptions []string              `json:"key_assumptions"`
	RiskFactors    []string              `json:"risk_factors"`
	InvestmentView *InvestmentViewDetail `json:"investment_view_detail,omitempty"`
	Narrative      *Narrative            `json:"narrative,omitempty"`
	Outlook        *Outlook              `json:"outlook,omitempty"`
}

// SweepConfig lists the enabled sources and focus directives for a
// company's daily sweep. IRURL and EdinetCode feed the direct-class
// fetchers; an enabled source with no backing config degrades to a
// diagnostic string at fetch time.
type SweepConfig struct {
	Sources    []string `json:"sources"`
	Focus      []string `json:"focus"`
	IRURL      string   `json:"ir_url,omitempty"`
	EdinetCode string   `json:"edinet_code,omitempty"`
}

// Company is a tracked entity. Profile, View, Conviction and the sweep
// timestamps are mutated only by the sweep result writer.
type Company struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Ticker         string      `json:"ticker_full"`
	Sector         string      `json:"sector,omitempty"`
	Jurisdiction   string      `json:"jurisdiction,omitempty"`
	View           Stance      `json:"investment_view"`
	Conviction     Conviction  `json:"conviction"`
	MarketCapUSD   float64     `json:"market_cap_usd,omitempty"`
	Profile        Profile     `json:"profile"`
	SweepConfig    SweepConfig `json:"sweep_config"`
	LastSweptAt    *time.Time  `json:"last_sweep_at,omitempty"`
	LastMaterialAt *time.Time  `json:"last_material_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NeedsFirstRun reports whether the narrative/outlook sections are still
// empty, in which case the classifier must populate them regardless of
// severity.
func (c *Company) NeedsFirstRun() bool {
	p := c.Profile
	return p.Narrative == nil || p.Narrative.EarningsTrend == "" ||
		p.Outlook == nil || p.Outlook.Fundamentals == ""
}

// SourceSnapshot records one fetch of one source for one company. The most
// recent snapshot per (company, source) is the dedup reference point for
// the next sweep.
type SourceSnapshot struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	Source      string    `json:"source"`
	ContentHash string    `json:"content_hash"`
	Content     string    `json:"content"`
	IsNew       bool      `json:"is_new"`
	FetchedAt   time.Time `json:"fetched_at"`
}
