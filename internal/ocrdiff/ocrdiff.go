// Package ocrdiff extracts the "genuinely new" portion of a follow-up OCR
// capture of the same document, by comparing it line-by-line and
// word-by-word against the document's existing stored text.
package ocrdiff

import "strings"

// SignificanceThreshold is the minimum length, in characters, that the
// extracted new text must reach to be considered significant.
const SignificanceThreshold = 50

// minLineLength is the shortest trimmed line length considered meaningful;
// shorter lines (stray OCR noise, single words) are never treated as new
// content on their own.
const minLineLength = 10

// overlapThreshold is the fraction of a candidate line's tokens that may
// already appear in the existing text before the line is considered "not
// new".
const overlapThreshold = 0.80

// ExtractNew returns the portion of incoming that is genuinely new relative
// to existing: lines long enough to matter, not verbatim present in
// existing, and not mostly composed of words already seen in existing.
func ExtractNew(existing, incoming string) string {
	existingLines := lineSet(existing)
	existingWords := wordSet(existing)

	var kept []string
	for _, line := range strings.Split(incoming, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < minLineLength {
			continue
		}
		if existingLines[trimmed] {
			continue
		}
		if overlapFraction(trimmed, existingWords) >= overlapThreshold {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}

// Significant reports whether newText clears the significance threshold.
func Significant(newText string) bool {
	return len(newText) >= SignificanceThreshold
}

func lineSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) >= minLineLength {
			set[trimmed] = true
		}
	}
	return set
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		set[word] = true
	}
	return set
}

func overlapFraction(line string, existingWords map[string]bool) float64 {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return 0
	}
	present := 0
	for _, tok := range tokens {
		if existingWords[tok] {
			present++
		}
	}
	return float64(present) / float64(len(tokens))
}
