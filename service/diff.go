package service

import (
	"strings"

	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// SignificantChangeRatio is the inclusive threshold above which a matched
// pair is labelled significant_change.
const SignificantChangeRatio = 0.20

// ChangeClassification is the mechanical diff verdict for a matched clause
// pair.
type ChangeClassification struct {
	Status      string
	ChangeRatio float64
}

// ClassifyChange normalizes both texts and computes a word-level change
// ratio: the character length of inserted and deleted segments over the
// character length of all segments. Identical normalized texts short-circuit
// to identical with ratio 0.
func ClassifyChange(sourceText, targetText string) ChangeClassification {
	source := NormalizeText(sourceText)
	target := NormalizeText(targetText)

	if source == target {
		return ChangeClassification{Status: model.ChangeIdentical, ChangeRatio: 0}
	}

	ratio := wordChangeRatio(source, target)
	return ChangeClassification{Status: statusForRatio(ratio), ChangeRatio: ratio}
}

func statusForRatio(ratio float64) string {
	if ratio >= SignificantChangeRatio {
		return model.ChangeSignificant
	}
	return model.ChangeMinor
}

// wordChangeRatio diffs at word granularity by remapping whitespace-delimited
// words onto single runes, the same technique diffmatchpatch uses for its
// line mode, then measuring segment lengths in characters of the original
// word text.
func wordChangeRatio(source, target string) float64 {
	sourceWords := strings.Fields(source)
	targetWords := strings.Fields(target)

	vocab := make(map[string]rune)
	sourceRunes := wordsToRunes(sourceWords, vocab)
	targetRunes := wordsToRunes(targetWords, vocab)
	words := make([]string, len(vocab)+1)
	for w, r := range vocab {
		words[r] = w
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(sourceRunes, targetRunes, false)

	var changed, total int
	for _, d := range diffs {
		length := 0
		for _, r := range d.Text {
			length += len(words[r])
		}
		total += length
		if d.Type != diffmatchpatch.DiffEqual {
			changed += length
		}
	}

	if total == 0 {
		return 0
	}
	return float64(changed) / float64(total)
}

func wordsToRunes(words []string, vocab map[string]rune) []rune {
	runes := make([]rune, 0, len(words))
	for _, w := range words {
		r, ok := vocab[w]
		if !ok {
			// rune 0 is reserved so vocab indexes stay 1-based
			r = rune(len(vocab) + 1)
			vocab[w] = r
		}
		runes = append(runes, r)
	}
	return runes
}
