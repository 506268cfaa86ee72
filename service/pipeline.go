package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CaseMark/contract-clause-comparator/config"
	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/CaseMark/contract-clause-comparator/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// ComparisonService owns the end-to-end orchestration of one comparison:
// extraction, matching, classification, risk analysis, aggregation, summary
// and the final batch write. One comparison id is processed by exactly one
// run; the creating handler is the single entry point.
type ComparisonService struct {
	store           *Store
	reasoner        Reasoner
	matcher         *Matcher
	riskConcurrency int
}

func NewComparisonService(store *Store, reasoner Reasoner, cfg *config.CompareConfig) *ComparisonService {
	concurrency := cfg.RiskConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &ComparisonService{
		store:           store,
		reasoner:        reasoner,
		matcher:         NewMatcher(reasoner),
		riskConcurrency: concurrency,
	}
}

// Start launches the detached background run for a freshly created
// processing comparison. The caller returns immediately; the run ends in a
// terminal state on its own.
func (s *ComparisonService) Start(comparison *model.Comparison) {
	go s.run(comparison)
}

func (s *ComparisonService) run(comparison *model.Comparison) {
	// Detached from the request: the creating call has already returned.
	ctx := context.WithValue(context.Background(), logger.ComparisonKey, comparison.ID)
	ctx = context.WithValue(ctx, logger.OrganizationKey, comparison.Organization)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "comparison run panicked", "panic", r)
			s.fail(ctx, comparison, false, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	logger.Info(ctx, "comparison run started",
		"source_contract_id", comparison.SourceContractID,
		"target_contract_id", comparison.TargetContractID,
	)

	if err := s.process(ctx, comparison); err != nil {
		logger.Error(ctx, "comparison run failed", "error", err)
		return
	}

	logger.Info(ctx, "comparison run completed", "duration_ms", time.Since(start).Milliseconds())
}

func (s *ComparisonService) process(ctx context.Context, comparison *model.Comparison) error {
	source, target, err := s.loadContracts(comparison)
	if err != nil {
		s.fail(ctx, comparison, false, err.Error())
		return err
	}

	// (a) Clause extraction for both contracts, concurrently. Failure here is
	// fatal to the run and fails the contracts themselves.
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.extractContractClauses(egctx, source) })
	eg.Go(func() error { return s.extractContractClauses(egctx, target) })
	if err := eg.Wait(); err != nil {
		s.fail(ctx, comparison, true, err.Error())
		return err
	}

	sourceClauses, err := s.store.GetClauses(source.ID)
	if err != nil {
		s.fail(ctx, comparison, false, err.Error())
		return err
	}
	targetClauses, err := s.store.GetClauses(target.ID)
	if err != nil {
		s.fail(ctx, comparison, false, err.Error())
		return err
	}

	// (b) Matching. A semantic-matcher outage degrades to the type-keyed
	// fallback inside Match, it never fails the run.
	matchResult := s.matcher.Match(ctx, sourceClauses, targetClauses)
	logger.Info(ctx, "clauses matched",
		"matched", len(matchResult.Matches),
		"unmatched_source", len(matchResult.UnmatchedSource),
		"unmatched_target", len(matchResult.UnmatchedTarget),
	)

	// (c)+(d) Classification and fan-out risk analysis.
	rows := s.analyzeClausePairs(ctx, comparison.ID, sourceClauses, targetClauses, matchResult)

	// (e) Aggregate every resolved risk score.
	var scores []int
	for _, row := range rows {
		if row.RiskScore != nil {
			scores = append(scores, *row.RiskScore)
		}
	}
	overall := AggregateRiskScores(scores)
	comparison.OverallRiskScore = &overall

	// (f) Summary and tags, concurrently. Failures degrade to empty fields.
	findings := buildFindings(rows)
	summary, tags := s.generateNarrative(ctx, source.Name, target.Name, findings)
	comparison.Summary = summary
	if len(tags) > 0 {
		if data, err := json.Marshal(tags); err == nil {
			comparison.Tags = datatypes.JSON(data)
		}
	}

	if err := s.store.CompleteComparison(comparison, rows); err != nil {
		s.fail(ctx, comparison, false, err.Error())
		return err
	}
	return nil
}

func (s *ComparisonService) loadContracts(comparison *model.Comparison) (*model.Contract, *model.Contract, error) {
	source, err := s.store.GetContract(comparison.SourceContractID)
	if err != nil {
		return nil, nil, fmt.Errorf("load source contract: %w", err)
	}
	target, err := s.store.GetContract(comparison.TargetContractID)
	if err != nil {
		return nil, nil, fmt.Errorf("load target contract: %w", err)
	}
	if source == nil || target == nil {
		return nil, nil, fmt.Errorf("comparison references a missing contract")
	}
	return source, target, nil
}

// extractContractClauses runs the external extraction for one contract and
// replaces its clause set with the deduplicated result.
func (s *ComparisonService) extractContractClauses(ctx context.Context, contract *model.Contract) error {
	extracted, err := s.reasoner.ExtractClauses(ctx, NormalizeText(contract.RawText))
	if err != nil {
		return fmt.Errorf("extract clauses for contract %s: %w", contract.ID, err)
	}

	clauses := make([]model.Clause, 0, len(extracted))
	for _, e := range extracted {
		confidence := e.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		clauses = append(clauses, model.Clause{
			ID:         uuid.New().String(),
			ContractID: contract.ID,
			Type:       model.NormalizeClauseType(e.Type),
			Title:      e.Title,
			Content:    e.Content,
			Page:       e.Page,
			Confidence: confidence,
			CreatedAt:  time.Now(),
		})
	}

	deduped := DeduplicateClauses(clauses)
	logger.Info(ctx, "clauses extracted",
		"contract_id", contract.ID,
		"extracted", len(clauses),
		"kept", len(deduped),
	)

	if err := s.store.ReplaceClauses(contract.ID, deduped); err != nil {
		return fmt.Errorf("store clauses for contract %s: %w", contract.ID, err)
	}
	return nil
}

// analyzeClausePairs classifies every matched pair and fans out the risk
// analysis calls for changed pairs. A single failed risk call falls back to
// the documented default score, it never fails the run.
func (s *ComparisonService) analyzeClausePairs(ctx context.Context, comparisonID string, sourceClauses, targetClauses []model.Clause, match MatchResult) []model.ClauseComparison {
	sourceByID := clausesByID(sourceClauses)
	targetByID := clausesByID(targetClauses)

	rows := make([]model.ClauseComparison, 0, len(match.Matches)+len(match.UnmatchedSource)+len(match.UnmatchedTarget))

	type riskTask struct {
		rowIndex int
		source   model.Clause
		target   model.Clause
	}
	var tasks []riskTask

	for _, pair := range match.Matches {
		sc := sourceByID[pair.SourceID]
		tc := targetByID[pair.TargetID]
		classification := ClassifyChange(sc.Content, tc.Content)

		sourceID, targetID := sc.ID, tc.ID
		row := model.ClauseComparison{
			ID:             uuid.New().String(),
			ComparisonID:   comparisonID,
			SourceClauseID: &sourceID,
			TargetClauseID: &targetID,
			ClauseType:     sc.Type,
			Status:         classification.Status,
			DeviationPct:   classification.ChangeRatio * 100,
			CreatedAt:      time.Now(),
		}

		switch classification.Status {
		case model.ChangeIdentical:
			row.DiffSummary = "No changes detected."
		default:
			row.DiffSummary = fmt.Sprintf("Clause text changed by %.0f%% (%s).", classification.ChangeRatio*100, pair.Reason)
			tasks = append(tasks, riskTask{rowIndex: len(rows), source: sc, target: tc})
		}

		rows = append(rows, row)
	}

	// Fan out the external risk calls; each task writes its own row index.
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.riskConcurrency)
	for _, task := range tasks {
		task := task
		eg.Go(func() error {
			row := &rows[task.rowIndex]
			analysis, err := s.reasoner.AnalyzeClauseRisk(egctx, task.source.Content, task.target.Content, task.source.Type)
			if err != nil {
				logger.Warn(egctx, "risk analysis failed, using fallback score",
					"clause_type", task.source.Type,
					"error", err,
				)
				fallback := FallbackRiskScore(row.Status)
				row.RiskScore = &fallback
				return nil
			}

			score := analysis.RiskScore
			row.RiskScore = &score
			if analysis.DeviationPercentage > 0 {
				row.DeviationPct = analysis.DeviationPercentage
			}
			if analysis.Summary != "" {
				row.DiffSummary = analysis.Summary
			}
			if len(analysis.RiskFactors) > 0 {
				if data, err := json.Marshal(analysis.RiskFactors); err == nil {
					row.RiskFactors = datatypes.JSON(data)
				}
			}
			return nil
		})
	}
	// Goroutines above only ever return nil; Wait is for joining.
	_ = eg.Wait()

	for _, id := range match.UnmatchedSource {
		sc := sourceByID[id]
		sourceID := sc.ID
		score := RiskScoreUnmatched
		rows = append(rows, model.ClauseComparison{
			ID:             uuid.New().String(),
			ComparisonID:   comparisonID,
			SourceClauseID: &sourceID,
			ClauseType:     sc.Type,
			Status:         model.ChangeMissing,
			RiskScore:      &score,
			DeviationPct:   100,
			DiffSummary:    "Clause present in the source contract but absent from the target.",
			CreatedAt:      time.Now(),
		})
	}

	for _, id := range match.UnmatchedTarget {
		tc := targetByID[id]
		targetID := tc.ID
		score := RiskScoreUnmatched
		rows = append(rows, model.ClauseComparison{
			ID:             uuid.New().String(),
			ComparisonID:   comparisonID,
			TargetClauseID: &targetID,
			ClauseType:     tc.Type,
			Status:         model.ChangeAdded,
			RiskScore:      &score,
			DeviationPct:   100,
			DiffSummary:    "Clause added in the target contract with no counterpart in the source.",
			CreatedAt:      time.Now(),
		})
	}

	return rows
}

// generateNarrative runs summary and tag generation concurrently. Either
// call failing leaves the corresponding field empty.
func (s *ComparisonService) generateNarrative(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) (string, []string) {
	var summary string
	var tags []string

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		text, err := s.reasoner.GenerateComparisonSummary(egctx, sourceLabel, targetLabel, findings)
		if err != nil {
			logger.Warn(egctx, "summary generation failed", "error", err)
			return nil
		}
		summary = text
		return nil
	})
	eg.Go(func() error {
		generated, err := s.reasoner.GenerateSemanticTags(egctx, sourceLabel, targetLabel, findings)
		if err != nil {
			logger.Warn(egctx, "tag generation failed", "error", err)
			return nil
		}
		tags = generated
		return nil
	})
	_ = eg.Wait()

	return summary, tags
}

func buildFindings(rows []model.ClauseComparison) []ClauseFinding {
	findings := make([]ClauseFinding, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, ClauseFinding{
			ClauseType:  row.ClauseType,
			Status:      row.Status,
			RiskScore:   row.RiskScore,
			DiffSummary: row.DiffSummary,
		})
	}
	return findings
}

// fail transitions the comparison to failed. When extraction had not yet
// completed, the underlying contracts are failed too.
func (s *ComparisonService) fail(ctx context.Context, comparison *model.Comparison, failContracts bool, errMsg string) {
	if err := s.store.FailComparison(comparison.ID, errMsg); err != nil {
		logger.Error(ctx, "failed to record comparison failure", "error", err)
	}
	if failContracts {
		for _, id := range []string{comparison.SourceContractID, comparison.TargetContractID} {
			if err := s.store.UpdateContractStatus(id, model.StatusFailed, "clause extraction failed"); err != nil {
				logger.Error(ctx, "failed to mark contract failed", "contract_id", id, "error", err)
			}
		}
	}
}
