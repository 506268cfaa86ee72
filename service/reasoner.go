package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CaseMark/contract-clause-comparator/config"
	"github.com/CaseMark/contract-clause-comparator/model"
)

// ExtractedClause is one clause candidate reported by the reasoning service.
type ExtractedClause struct {
	Type       string  `json:"type"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Page       *int    `json:"page,omitempty"`
	Confidence float64 `json:"confidence"`
}

// SemanticMatch pairs a source clause id with a target clause id.
type SemanticMatch struct {
	SourceClauseID string  `json:"source_clause_id"`
	TargetClauseID string  `json:"target_clause_id"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason,omitempty"`
}

// SemanticMatchResult is the raw (possibly incomplete) match set returned by
// the reasoning service.
type SemanticMatchResult struct {
	Matches         []SemanticMatch `json:"matches"`
	UnmatchedSource []string        `json:"unmatched_source"`
	UnmatchedTarget []string        `json:"unmatched_target"`
}

// RiskAnalysis is the reasoning service's judgment of one changed clause pair.
type RiskAnalysis struct {
	RiskScore           int      `json:"risk_score"`
	RiskFactors         []string `json:"risk_factors"`
	DeviationPercentage float64  `json:"deviation_percentage"`
	Summary             string   `json:"summary"`
}

// ClauseFinding is the per-clause result sheet handed to summary and tag
// generation.
type ClauseFinding struct {
	ClauseType  string `json:"clause_type"`
	Status      string `json:"status"`
	RiskScore   *int   `json:"risk_score,omitempty"`
	DiffSummary string `json:"diff_summary,omitempty"`
}

// Reasoner is the capability interface over the external text-generation
// service. Calls may be slow, rate-limited and non-deterministic in content;
// everything around them stays deterministic.
type Reasoner interface {
	ExtractClauses(ctx context.Context, text string) ([]ExtractedClause, error)
	MatchClauses(ctx context.Context, source, target []model.Clause) (*SemanticMatchResult, error)
	AnalyzeClauseRisk(ctx context.Context, sourceText, targetText, clauseType string) (*RiskAnalysis, error)
	GenerateComparisonSummary(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) (string, error)
	GenerateSemanticTags(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) ([]string, error)
}

// ReasonerService is the HTTP implementation of Reasoner.
type ReasonerService struct {
	config     *config.ReasonerConfig
	httpClient *http.Client
}

func NewReasonerService(cfg *config.ReasonerConfig) *ReasonerService {
	return &ReasonerService{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// reasonerEnvelope is the common response wrapper of the reasoning API.
type reasonerEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type extractRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Seed  string `json:"seed,omitempty"`
}

type matchRequest struct {
	SourceClauses []model.Clause `json:"source_clauses"`
	TargetClauses []model.Clause `json:"target_clauses"`
	Model         string         `json:"model,omitempty"`
	Seed          string         `json:"seed,omitempty"`
}

type riskRequest struct {
	SourceText string `json:"source_text"`
	TargetText string `json:"target_text"`
	ClauseType string `json:"clause_type"`
	Model      string `json:"model,omitempty"`
	Seed       string `json:"seed,omitempty"`
}

type summaryRequest struct {
	SourceLabel string          `json:"source_label"`
	TargetLabel string          `json:"target_label"`
	Findings    []ClauseFinding `json:"findings"`
	Model       string          `json:"model,omitempty"`
	Seed        string          `json:"seed,omitempty"`
}

// ExtractClauses asks the reasoning service to segment a contract text into
// typed clauses.
func (s *ReasonerService) ExtractClauses(ctx context.Context, text string) ([]ExtractedClause, error) {
	req := extractRequest{Text: text, Model: s.config.Model, Seed: s.config.Seed}

	var clauses []ExtractedClause
	if err := s.post(ctx, "/v1/clauses/extract", req, &clauses); err != nil {
		return nil, fmt.Errorf("extract clauses: %w", err)
	}
	return clauses, nil
}

// MatchClauses asks the reasoning service to pair source clauses with target
// clauses. The result may be incomplete; the Matcher repairs it.
func (s *ReasonerService) MatchClauses(ctx context.Context, source, target []model.Clause) (*SemanticMatchResult, error) {
	req := matchRequest{SourceClauses: source, TargetClauses: target, Model: s.config.Model, Seed: s.config.Seed}

	var result SemanticMatchResult
	if err := s.post(ctx, "/v1/clauses/match", req, &result); err != nil {
		return nil, fmt.Errorf("match clauses: %w", err)
	}
	return &result, nil
}

// AnalyzeClauseRisk asks the reasoning service to score the legal risk of one
// changed clause pair.
func (s *ReasonerService) AnalyzeClauseRisk(ctx context.Context, sourceText, targetText, clauseType string) (*RiskAnalysis, error) {
	req := riskRequest{SourceText: sourceText, TargetText: targetText, ClauseType: clauseType, Model: s.config.Model, Seed: s.config.Seed}

	var result RiskAnalysis
	if err := s.post(ctx, "/v1/clauses/risk", req, &result); err != nil {
		return nil, fmt.Errorf("analyze clause risk: %w", err)
	}
	if result.RiskScore < 0 {
		result.RiskScore = 0
	}
	if result.RiskScore > 100 {
		result.RiskScore = 100
	}
	return &result, nil
}

// GenerateComparisonSummary produces the executive summary text.
func (s *ReasonerService) GenerateComparisonSummary(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) (string, error) {
	req := summaryRequest{SourceLabel: sourceLabel, TargetLabel: targetLabel, Findings: findings, Model: s.config.Model, Seed: s.config.Seed}

	var result struct {
		Summary string `json:"summary"`
	}
	if err := s.post(ctx, "/v1/comparisons/summary", req, &result); err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return result.Summary, nil
}

// GenerateSemanticTags produces short semantic tags for the comparison.
func (s *ReasonerService) GenerateSemanticTags(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) ([]string, error) {
	req := summaryRequest{SourceLabel: sourceLabel, TargetLabel: targetLabel, Findings: findings, Model: s.config.Model, Seed: s.config.Seed}

	var result struct {
		Tags []string `json:"tags"`
	}
	if err := s.post(ctx, "/v1/comparisons/tags", req, &result); err != nil {
		return nil, fmt.Errorf("generate tags: %w", err)
	}
	return result.Tags, nil
}

func (s *ReasonerService) post(ctx context.Context, path string, payload any, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reasoner API status %d: %s", resp.StatusCode, string(body))
	}

	var envelope reasonerEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}

	if envelope.Code != 0 {
		return fmt.Errorf("reasoner API error: %s", envelope.Message)
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}

	return nil
}
