package service

import (
	"sort"
	"strings"

	"github.com/CaseMark/contract-clause-comparator/model"
)

const (
	fingerprintLen  = 500
	duplicatePrefix = 200
	sameTypePrefix  = 300
)

// DeduplicateClauses removes duplicate and near-duplicate extracted clauses.
// Candidates are scanned in descending confidence order (original index breaks
// ties) so the best extraction of each clause survives. A candidate is a
// duplicate when the first 200 characters of its normalized content match an
// already-kept clause, or when a clause of the same type was kept and the
// first 300 characters match that clause. Two clauses of the same declared
// type whose content genuinely differs are both kept. The result is sorted by
// clause type for deterministic downstream ordering.
func DeduplicateClauses(clauses []model.Clause) []model.Clause {
	ordered := make([]model.Clause, len(clauses))
	copy(ordered, clauses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})

	var kept []model.Clause
	var keptFingerprints []string
	typeFingerprint := make(map[string]string)

	for _, clause := range ordered {
		fp := clauseFingerprint(clause.Content)

		if isDuplicate(fp, clause.Type, keptFingerprints, typeFingerprint) {
			continue
		}

		kept = append(kept, clause)
		keptFingerprints = append(keptFingerprints, fp)
		if _, seen := typeFingerprint[clause.Type]; !seen {
			typeFingerprint[clause.Type] = fp
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Type != kept[j].Type {
			return kept[i].Type < kept[j].Type
		}
		return kept[i].ID < kept[j].ID
	})

	return kept
}

func isDuplicate(fp, clauseType string, keptFingerprints []string, typeFingerprint map[string]string) bool {
	for _, seen := range keptFingerprints {
		if samePrefix(fp, seen, duplicatePrefix) {
			return true
		}
	}
	if seen, ok := typeFingerprint[clauseType]; ok {
		if samePrefix(fp, seen, sameTypePrefix) {
			return true
		}
	}
	return false
}

// clauseFingerprint is the normalized, lower-cased content truncated to the
// first 500 characters.
func clauseFingerprint(content string) string {
	fp := strings.ToLower(NormalizeText(content))
	if len(fp) > fingerprintLen {
		fp = fp[:fingerprintLen]
	}
	return fp
}

func samePrefix(a, b string, n int) bool {
	if len(a) > n {
		a = a[:n]
	}
	if len(b) > n {
		b = b[:n]
	}
	return a == b
}
