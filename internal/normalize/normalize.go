package normalize

import (
	"regexp"
	"strings"
)

var (
	pageNumberRe  = regexp.MustCompile(`\n\s*\d+\s*\n`)
	pageOfRe      = regexp.MustCompile(`(?i)\n\s*Page\s+\d+\s+of\s+\d+\s*\n`)
	hyphenBreakRe = regexp.MustCompile(`-\s*\n\s*`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n(\s*\n)+`)
	inlineSpaceRe = regexp.MustCompile(`[ \t]+`)
)

// Clean strips extraction noise from document text while preserving line
// structure for clause splitting: page numbers, "Page X of Y" footers,
// hyphenated line breaks, runs of blank lines, and repeated inline whitespace.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = pageOfRe.ReplaceAllString(text, "\n")
	text = pageNumberRe.ReplaceAllString(text, "\n")
	text = hyphenBreakRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = inlineSpaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Flatten collapses all whitespace to single spaces. Pattern matching in the
// detector and risk rules runs against flattened text.
func Flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
