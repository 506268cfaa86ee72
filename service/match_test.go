package service

import (
	"context"
	"errors"
	"testing"

	"github.com/CaseMark/contract-clause-comparator/model"
)

// fakeReasoner implements Reasoner for tests. Behaviour per call is
// configurable through function fields; nil fields return zero values.
type fakeReasoner struct {
	extractFn func(ctx context.Context, text string) ([]ExtractedClause, error)
	matchFn   func(ctx context.Context, source, target []model.Clause) (*SemanticMatchResult, error)
	riskFn    func(ctx context.Context, sourceText, targetText, clauseType string) (*RiskAnalysis, error)
	summaryFn func(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) (string, error)
	tagsFn    func(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) ([]string, error)
}

func (f *fakeReasoner) ExtractClauses(ctx context.Context, text string) ([]ExtractedClause, error) {
	if f.extractFn != nil {
		return f.extractFn(ctx, text)
	}
	return nil, nil
}

func (f *fakeReasoner) MatchClauses(ctx context.Context, source, target []model.Clause) (*SemanticMatchResult, error) {
	if f.matchFn != nil {
		return f.matchFn(ctx, source, target)
	}
	return &SemanticMatchResult{}, nil
}

func (f *fakeReasoner) AnalyzeClauseRisk(ctx context.Context, sourceText, targetText, clauseType string) (*RiskAnalysis, error) {
	if f.riskFn != nil {
		return f.riskFn(ctx, sourceText, targetText, clauseType)
	}
	return &RiskAnalysis{RiskScore: 40}, nil
}

func (f *fakeReasoner) GenerateComparisonSummary(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) (string, error) {
	if f.summaryFn != nil {
		return f.summaryFn(ctx, sourceLabel, targetLabel, findings)
	}
	return "", nil
}

func (f *fakeReasoner) GenerateSemanticTags(ctx context.Context, sourceLabel, targetLabel string, findings []ClauseFinding) ([]string, error) {
	if f.tagsFn != nil {
		return f.tagsFn(ctx, sourceLabel, targetLabel, findings)
	}
	return nil, nil
}

func matchClause(id, clauseType, title string) model.Clause {
	return model.Clause{ID: id, Type: clauseType, Title: title, Content: "content of " + id}
}

// assertPartition checks the matcher guarantee: every id lands in exactly one
// output category.
func assertPartition(t *testing.T, result MatchResult, source, target []model.Clause) {
	t.Helper()

	seenSource := make(map[string]int)
	seenTarget := make(map[string]int)
	for _, m := range result.Matches {
		seenSource[m.SourceID]++
		seenTarget[m.TargetID]++
	}
	for _, id := range result.UnmatchedSource {
		seenSource[id]++
	}
	for _, id := range result.UnmatchedTarget {
		seenTarget[id]++
	}

	for _, c := range source {
		if seenSource[c.ID] != 1 {
			t.Errorf("Source clause %s appears %d times in the partition", c.ID, seenSource[c.ID])
		}
	}
	for _, c := range target {
		if seenTarget[c.ID] != 1 {
			t.Errorf("Target clause %s appears %d times in the partition", c.ID, seenTarget[c.ID])
		}
	}
	if len(seenSource) != len(source) || len(seenTarget) != len(target) {
		t.Errorf("Partition references unknown ids: %d/%d source, %d/%d target",
			len(seenSource), len(source), len(seenTarget), len(target))
	}
}

func TestMatchUsesSemanticResult(t *testing.T) {
	source := []model.Clause{matchClause("s1", "termination", ""), matchClause("s2", "warranty", "")}
	target := []model.Clause{matchClause("t1", "termination", ""), matchClause("t2", "indemnification", "")}

	matcher := NewMatcher(&fakeReasoner{
		matchFn: func(ctx context.Context, src, tgt []model.Clause) (*SemanticMatchResult, error) {
			return &SemanticMatchResult{
				Matches: []SemanticMatch{{SourceClauseID: "s1", TargetClauseID: "t1", Confidence: 0.95, Reason: "same provision"}},
			}, nil
		},
	})

	result := matcher.Match(context.Background(), source, target)
	assertPartition(t, result, source, target)

	if len(result.Matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(result.Matches))
	}
	if result.Matches[0].Confidence != 0.95 {
		t.Errorf("Expected semantic confidence preserved, got %f", result.Matches[0].Confidence)
	}
	if len(result.UnmatchedSource) != 1 || result.UnmatchedSource[0] != "s2" {
		t.Errorf("Expected s2 unmatched, got %v", result.UnmatchedSource)
	}
	if len(result.UnmatchedTarget) != 1 || result.UnmatchedTarget[0] != "t2" {
		t.Errorf("Expected t2 unmatched, got %v", result.UnmatchedTarget)
	}
}

func TestMatchFallbackByType(t *testing.T) {
	// The semantic matcher returns zero matches; a shared clause type must
	// still pair via the repair pass at the fixed fallback confidence.
	source := []model.Clause{matchClause("s1", "confidentiality", "")}
	target := []model.Clause{matchClause("t1", "confidentiality", "")}

	matcher := NewMatcher(&fakeReasoner{
		matchFn: func(ctx context.Context, src, tgt []model.Clause) (*SemanticMatchResult, error) {
			return &SemanticMatchResult{}, nil
		},
	})

	result := matcher.Match(context.Background(), source, target)
	assertPartition(t, result, source, target)

	if len(result.Matches) != 1 {
		t.Fatalf("Expected fallback match, got %d matches", len(result.Matches))
	}
	if result.Matches[0].Confidence != FallbackMatchConfidence {
		t.Errorf("Expected confidence %.1f, got %f", FallbackMatchConfidence, result.Matches[0].Confidence)
	}
	if result.Matches[0].Reason == "" {
		t.Error("Expected a reason naming the fallback rule")
	}
}

func TestMatchFallbackByTitle(t *testing.T) {
	source := []model.Clause{matchClause("s1", "unknown", "Section: Governing Law")}
	target := []model.Clause{matchClause("t1", "governing_law", "GOVERNING LAW")}

	matcher := NewMatcher(&fakeReasoner{
		matchFn: func(ctx context.Context, src, tgt []model.Clause) (*SemanticMatchResult, error) {
			return &SemanticMatchResult{}, nil
		},
	})

	result := matcher.Match(context.Background(), source, target)
	assertPartition(t, result, source, target)

	if len(result.Matches) != 1 {
		t.Fatalf("Expected title fallback match, got %d matches", len(result.Matches))
	}
	if result.Matches[0].SourceID != "s1" || result.Matches[0].TargetID != "t1" {
		t.Errorf("Unexpected pairing: %+v", result.Matches[0])
	}
}

func TestMatchSemanticFailureUsesTypeKeyedFallback(t *testing.T) {
	source := []model.Clause{
		matchClause("s1", "termination", ""),
		matchClause("s2", "warranty", ""),
	}
	target := []model.Clause{
		matchClause("t1", "termination", ""),
		matchClause("t2", "payment_terms", ""),
	}

	matcher := NewMatcher(&fakeReasoner{
		matchFn: func(ctx context.Context, src, tgt []model.Clause) (*SemanticMatchResult, error) {
			return nil, errors.New("upstream timeout")
		},
	})

	result := matcher.Match(context.Background(), source, target)
	assertPartition(t, result, source, target)

	if len(result.Matches) != 1 {
		t.Fatalf("Expected 1 type-keyed match, got %d", len(result.Matches))
	}
	if result.Matches[0].SourceID != "s1" || result.Matches[0].TargetID != "t1" {
		t.Errorf("Expected termination clauses paired, got %+v", result.Matches[0])
	}
	if len(result.UnmatchedSource) != 1 || result.UnmatchedSource[0] != "s2" {
		t.Errorf("Expected s2 missing, got %v", result.UnmatchedSource)
	}
	if len(result.UnmatchedTarget) != 1 || result.UnmatchedTarget[0] != "t2" {
		t.Errorf("Expected t2 added, got %v", result.UnmatchedTarget)
	}
}

func TestMatchIgnoresBogusSemanticIDs(t *testing.T) {
	source := []model.Clause{matchClause("s1", "termination", "")}
	target := []model.Clause{matchClause("t1", "termination", "")}

	matcher := NewMatcher(&fakeReasoner{
		matchFn: func(ctx context.Context, src, tgt []model.Clause) (*SemanticMatchResult, error) {
			return &SemanticMatchResult{
				Matches: []SemanticMatch{
					{SourceClauseID: "nonexistent", TargetClauseID: "t1", Confidence: 0.9},
				},
			}, nil
		},
	})

	result := matcher.Match(context.Background(), source, target)
	assertPartition(t, result, source, target)

	// The bogus match is discarded and the repair pass pairs s1 with t1.
	if len(result.Matches) != 1 {
		t.Fatalf("Expected 1 repaired match, got %d", len(result.Matches))
	}
	if result.Matches[0].Confidence != FallbackMatchConfidence {
		t.Errorf("Expected fallback confidence, got %f", result.Matches[0].Confidence)
	}
}

func TestMatchEmptyInputs(t *testing.T) {
	matcher := NewMatcher(&fakeReasoner{})

	result := matcher.Match(context.Background(), nil, nil)
	if len(result.Matches) != 0 || len(result.UnmatchedSource) != 0 || len(result.UnmatchedTarget) != 0 {
		t.Errorf("Expected empty result for empty inputs, got %+v", result)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Section 12 — Governing Law", "12governinglaw"},
		{"ARTICLE IV: Indemnification", "ivindemnification"},
		{"Clause 3.1 (Payment)", "31payment"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeTitle(tt.input); got != tt.expected {
			t.Errorf("normalizeTitle(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
