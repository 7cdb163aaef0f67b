package model

import "time"

// ActionLogEntry is one append-only audit record, derived 1:1 from a
// SweepResult plus the company and sources swept. Never mutated after
// insertion.
type ActionLogEntry struct {
	ID             string       `json:"id"`
	CompanyID      string       `json:"company_id"`
	CompanyName    string       `json:"company_name,omitempty"`
	Severity       Severity     `json:"severity"`
	Summary        string       `json:"summary"`
	Detail         *SweepDetail `json:"detail,omitempty"`
	SourcesChecked []string     `json:"sources_checked"`
	RawResponse    string       `json:"raw_ai_response,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// SweepStatus is the per-company outcome of a batch or single run.
type SweepStatus string

const (
	SweepStatusSuccess SweepStatus = "success"
	SweepStatusError   SweepStatus = "error"
	SweepStatusSkipped SweepStatus = "skipped"
)

// SweepLog is the caller-facing outcome of one company's sweep.
type SweepLog struct {
	CompanyID   string      `json:"company_id"`
	CompanyName string      `json:"company_name"`
	Status      SweepStatus `json:"status"`
	Severity    Severity    `json:"classification,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
	SkipReason  string      `json:"skip_reason,omitempty"`
	DurationMS  int64       `json:"duration_ms"`
}

// BatchReport is the outcome of one numbered batch invocation. Batches are
// derived, not stored: the same batch number against the same company set
// always covers the same companies.
type BatchReport struct {
	BatchNumber    int        `json:"batch_number"`
	PageSize       int        `json:"page_size"`
	TotalBatches   int        `json:"total_batches"`
	TotalCompanies int        `json:"total_companies"`
	Results        []SweepLog `json:"results"`
	Message        string     `json:"message,omitempty"`
}
