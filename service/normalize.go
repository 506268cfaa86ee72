package service

import (
	"regexp"
	"strings"
)

var (
	lineEndingRe    = regexp.MustCompile(`\r\n?`)
	horizontalWSRe  = regexp.MustCompile(`[ \t\f\v]+`)
	blankRunRe      = regexp.MustCompile(`\n{3,}`)
	lineEdgeSpaceRe = regexp.MustCompile(`(?m)^ +| +$`)
)

// NormalizeText canonicalizes contract or clause text so that comparisons are
// stable regardless of source formatting. It is idempotent:
// NormalizeText(NormalizeText(x)) == NormalizeText(x).
//
// Rules, in order: unify line endings to \n, collapse runs of horizontal
// whitespace to a single space, trim each line, collapse three-or-more
// newlines to two, trim the whole result. Line trimming runs before the
// blank-run collapse so whitespace-only lines count as blank.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}

	text = lineEndingRe.ReplaceAllString(text, "\n")
	text = horizontalWSRe.ReplaceAllString(text, " ")
	text = lineEdgeSpaceRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
