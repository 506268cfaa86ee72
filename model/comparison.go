package model

import (
	"time"

	"gorm.io/datatypes"
)

// Comparison pairs a source contract (usually the template) with a target
// contract (the redlined revision). It is the unit the orchestration state
// machine governs: processing -> completed | failed.
type Comparison struct {
	ID               string         `gorm:"primaryKey" json:"id"`
	Organization     string         `gorm:"index" json:"organization"`
	SourceContractID string         `gorm:"index" json:"source_contract_id"`
	TargetContractID string         `gorm:"index" json:"target_contract_id"`
	Status           string         `gorm:"index" json:"status"`
	OverallRiskScore *int           `json:"overall_risk_score,omitempty"`
	Summary          string         `json:"summary,omitempty"`
	Tags             datatypes.JSON `json:"tags,omitempty"`
	ErrorMsg         string         `json:"error_msg,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// ClauseComparison statuses
const (
	ChangeIdentical   = "identical"
	ChangeMinor       = "minor_change"
	ChangeSignificant = "significant_change"
	ChangeMissing     = "missing"
	ChangeAdded       = "added"
)

// ClauseComparison records the outcome for one matched pair or one unmatched
// clause. At least one of SourceClauseID / TargetClauseID is set. Rows for a
// comparison are written in a single batch once the whole run has resolved.
type ClauseComparison struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	ComparisonID   string         `gorm:"index" json:"comparison_id"`
	SourceClauseID *string        `json:"source_clause_id,omitempty"`
	TargetClauseID *string        `json:"target_clause_id,omitempty"`
	ClauseType     string         `json:"clause_type"`
	Status         string         `json:"status"`
	RiskScore      *int           `json:"risk_score,omitempty"`
	RiskFactors    datatypes.JSON `json:"risk_factors,omitempty"`
	DeviationPct   float64        `json:"deviation_percentage"`
	DiffSummary    string         `json:"diff_summary,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
