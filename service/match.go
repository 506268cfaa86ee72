package service

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/CaseMark/contract-clause-comparator/pkg/logger"
)

// FallbackMatchConfidence is assigned to pairs produced by the deterministic
// repair pass rather than the semantic matcher.
const FallbackMatchConfidence = 0.7

// ClausePair is one matched source/target pair with its provenance.
type ClausePair struct {
	SourceID   string
	TargetID   string
	Confidence float64
	Reason     string
}

// MatchResult partitions every clause id into exactly one of matched,
// unmatched-source or unmatched-target.
type MatchResult struct {
	Matches         []ClausePair
	UnmatchedSource []string
	UnmatchedTarget []string
}

// Matcher pairs source clauses with target clauses. The external semantic
// matcher is the primary strategy; a deterministic repair pass fills its gaps,
// and a pure type-keyed pass replaces it entirely when the call fails.
type Matcher struct {
	reasoner Reasoner
}

func NewMatcher(reasoner Reasoner) *Matcher {
	return &Matcher{reasoner: reasoner}
}

// Match pairs sourceClauses with targetClauses. Both lists are processed in
// (type, id) order so the result is reproducible for a given input.
func (m *Matcher) Match(ctx context.Context, sourceClauses, targetClauses []model.Clause) MatchResult {
	source := sortedByTypeID(sourceClauses)
	target := sortedByTypeID(targetClauses)

	semantic, err := m.reasoner.MatchClauses(ctx, source, target)
	if err != nil {
		logger.Warn(ctx, "semantic matcher unavailable, using type-keyed fallback", "error", err)
		return matchByType(source, target)
	}

	return repairMatches(source, target, semantic)
}

// repairMatches takes the semantic matcher's (possibly incomplete) output and
// fills gaps deterministically: first by identical declared type, then by
// normalized title equality. Each fallback pair gets a fixed lower confidence
// and a reason naming the rule that fired.
func repairMatches(source, target []model.Clause, semantic *SemanticMatchResult) MatchResult {
	sourceByID := clausesByID(source)
	targetByID := clausesByID(target)

	var result MatchResult
	matchedSource := make(map[string]bool)
	matchedTarget := make(map[string]bool)

	// Keep only semantic matches that reference real, unconsumed clauses.
	for _, sm := range semantic.Matches {
		if _, ok := sourceByID[sm.SourceClauseID]; !ok {
			continue
		}
		if _, ok := targetByID[sm.TargetClauseID]; !ok {
			continue
		}
		if matchedSource[sm.SourceClauseID] || matchedTarget[sm.TargetClauseID] {
			continue
		}
		matchedSource[sm.SourceClauseID] = true
		matchedTarget[sm.TargetClauseID] = true
		reason := sm.Reason
		if reason == "" {
			reason = "semantic match"
		}
		result.Matches = append(result.Matches, ClausePair{
			SourceID:   sm.SourceClauseID,
			TargetID:   sm.TargetClauseID,
			Confidence: sm.Confidence,
			Reason:     reason,
		})
	}

	// Repair pass over source clauses the semantic matcher skipped.
	for _, sc := range source {
		if matchedSource[sc.ID] {
			continue
		}

		if tc, ok := firstUnmatchedTarget(target, matchedTarget, func(c model.Clause) bool {
			return c.Type == sc.Type
		}); ok {
			matchedSource[sc.ID] = true
			matchedTarget[tc.ID] = true
			result.Matches = append(result.Matches, ClausePair{
				SourceID:   sc.ID,
				TargetID:   tc.ID,
				Confidence: FallbackMatchConfidence,
				Reason:     "fallback: identical clause type " + sc.Type,
			})
			continue
		}

		srcTitle := normalizeTitle(sc.Title)
		if srcTitle != "" {
			if tc, ok := firstUnmatchedTarget(target, matchedTarget, func(c model.Clause) bool {
				return normalizeTitle(c.Title) == srcTitle
			}); ok {
				matchedSource[sc.ID] = true
				matchedTarget[tc.ID] = true
				result.Matches = append(result.Matches, ClausePair{
					SourceID:   sc.ID,
					TargetID:   tc.ID,
					Confidence: FallbackMatchConfidence,
					Reason:     "fallback: matching title " + sc.Title,
				})
			}
		}
	}

	for _, sc := range source {
		if !matchedSource[sc.ID] {
			result.UnmatchedSource = append(result.UnmatchedSource, sc.ID)
		}
	}
	for _, tc := range target {
		if !matchedTarget[tc.ID] {
			result.UnmatchedTarget = append(result.UnmatchedTarget, tc.ID)
		}
	}

	return result
}

// matchByType is the full deterministic fallback used when the semantic call
// fails outright: clauses sharing a declared type are paired in sorted order,
// the rest are unmatched.
func matchByType(source, target []model.Clause) MatchResult {
	var result MatchResult

	targetsByType := make(map[string][]model.Clause)
	for _, tc := range target {
		targetsByType[tc.Type] = append(targetsByType[tc.Type], tc)
	}

	consumed := make(map[string]bool)
	for _, sc := range source {
		candidates := targetsByType[sc.Type]
		paired := false
		for _, tc := range candidates {
			if consumed[tc.ID] {
				continue
			}
			consumed[tc.ID] = true
			paired = true
			result.Matches = append(result.Matches, ClausePair{
				SourceID:   sc.ID,
				TargetID:   tc.ID,
				Confidence: FallbackMatchConfidence,
				Reason:     "type-keyed match: " + sc.Type,
			})
			break
		}
		if !paired {
			result.UnmatchedSource = append(result.UnmatchedSource, sc.ID)
		}
	}

	for _, tc := range target {
		if !consumed[tc.ID] {
			result.UnmatchedTarget = append(result.UnmatchedTarget, tc.ID)
		}
	}

	return result
}

func firstUnmatchedTarget(target []model.Clause, matched map[string]bool, pred func(model.Clause) bool) (model.Clause, bool) {
	for _, tc := range target {
		if matched[tc.ID] {
			continue
		}
		if pred(tc) {
			return tc, true
		}
	}
	return model.Clause{}, false
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeTitle lower-cases a clause title, strips the structural tokens
// "section", "article" and "clause", and removes everything non-alphanumeric.
func normalizeTitle(title string) string {
	t := strings.ToLower(title)
	for _, token := range []string{"section", "article", "clause"} {
		t = strings.ReplaceAll(t, token, "")
	}
	return nonAlnumRe.ReplaceAllString(t, "")
}

func sortedByTypeID(clauses []model.Clause) []model.Clause {
	out := make([]model.Clause, len(clauses))
	copy(out, clauses)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clausesByID(clauses []model.Clause) map[string]model.Clause {
	byID := make(map[string]model.Clause, len(clauses))
	for _, c := range clauses {
		byID[c.ID] = c
	}
	return byID
}
