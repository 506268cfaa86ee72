package model

import (
	"time"
)

// Contract represents one version of a contract document. RawText holds the
// extracted text the pipeline works on; the original file lives in object
// storage under ObjectName.
type Contract struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Organization string    `gorm:"index" json:"organization"`
	Name         string    `json:"name"`
	Filename     string    `json:"filename"`
	ObjectName   string    `json:"-"`
	RawText      string    `json:"-"`
	IsTemplate   bool      `json:"is_template"`
	Status       string    `gorm:"index" json:"status"` // pending, processing, completed, failed
	ErrorMsg     string    `json:"error_msg,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clause is one extracted provision of a Contract. Extraction replaces the
// whole clause set of a contract, it never appends.
type Clause struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	ContractID string    `gorm:"index" json:"contract_id"`
	Type       string    `gorm:"index" json:"type"`
	Title      string    `json:"title,omitempty"`
	Content    string    `json:"content"`
	Page       *int      `json:"page,omitempty"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Status constants shared by Contract and Comparison
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ClauseTypeUnknown is the fallback tag for clauses the extractor could not
// place in the fixed vocabulary.
const ClauseTypeUnknown = "unknown"

// ClauseTypes is the fixed clause-type vocabulary.
var ClauseTypes = []string{
	"confidentiality",
	"indemnification",
	"termination",
	"limitation_of_liability",
	"payment_terms",
	"intellectual_property",
	"governing_law",
	"dispute_resolution",
	"warranty",
	"assignment",
	"force_majeure",
	"non_compete",
	"non_solicitation",
	"insurance",
	"audit_rights",
	ClauseTypeUnknown,
}

// NormalizeClauseType maps an extractor-reported type onto the vocabulary,
// falling back to "unknown".
func NormalizeClauseType(t string) string {
	for _, known := range ClauseTypes {
		if t == known {
			return t
		}
	}
	return ClauseTypeUnknown
}
