// Package chunker splits document text into an ordered sequence of chunks,
// either by sliding a fixed-size word window (word-mode) or by accumulating
// whole lines up to a size budget (tabular-mode). Both modes are
// deterministic: the same input and config always produce the same chunks.
package chunker

import "strings"

// Config controls chunk sizing. A Config with MaxTokens <= 0 (including the
// zero Config) is replaced by DefaultConfig in Chunk.
type Config struct {
	// MaxTokens is the maximum words per chunk. Default 1024.
	MaxTokens int
	// OverlapTokens is the overlap, in words, between consecutive word-mode
	// chunks. Default 100.
	OverlapTokens int
}

// DefaultConfig returns the spec's default chunk sizing.
func DefaultConfig() Config {
	return Config{MaxTokens: 1024, OverlapTokens: 100}
}

// Chunk splits text into zero or more ordered text fragments. Empty or
// whitespace-only content yields zero chunks; the caller is responsible for
// rejecting such payloads before chunking (the server does this at the
// protocol boundary).
func Chunk(text string, cfg Config) []string {
	if cfg.MaxTokens <= 0 {
		cfg = DefaultConfig()
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if isTabular(text) {
		return chunkTabular(text, cfg.MaxTokens)
	}
	return chunkWords(text, cfg.MaxTokens, cfg.OverlapTokens)
}

// isTabular reports whether content looks like tab-delimited tabular data:
// of the first 10 non-empty lines, at least 2 contain a tab character.
func isTabular(text string) bool {
	lines := strings.Split(text, "\n")
	checked, tabbed := 0, 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		checked++
		if strings.Contains(line, "\t") {
			tabbed++
		}
		if checked == 10 {
			break
		}
	}
	return tabbed >= 2
}

// chunkWords implements word-mode chunking. If the whole text fits within
// maxTokens words, it is returned byte-preserving as a single chunk.
// Otherwise a sliding window of width maxTokens, step
// maxTokens-overlapTokens, is swept across the word sequence; each window's
// words are rejoined with single spaces.
func chunkWords(text string, maxTokens, overlapTokens int) []string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return []string{text}
	}

	step := maxTokens - overlapTokens
	if step <= 0 {
		step = maxTokens
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// chunkTabular accumulates whole lines into a chunk until adding another
// line would exceed maxTokens words, then emits the chunk and carries over
// as overlap the last up-to-3 lines that, together with the next line, still
// fit within maxTokens. A single line that
// alone exceeds maxTokens is kept intact in its own chunk (the only case a
// chunk may exceed maxTokens).
func chunkTabular(text string, maxTokens int) []string {
	lines := strings.Split(text, "\n")

	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, "\n"))
	}

	carryOver := func(nextWords int) {
		n := len(current)
		if n > 3 {
			n = 3
		}
		carried := current[len(current)-n:]
		// Drop the oldest carried lines until the overlap plus the next line
		// fits, so carried lines never push a chunk over maxTokens.
		for len(carried) > 0 && wordCount(carried)+nextWords > maxTokens {
			carried = carried[1:]
		}
		current = append([]string{}, carried...)
		currentWords = wordCount(current)
	}

	for _, line := range lines {
		lw := len(strings.Fields(line))
		if len(current) > 0 && currentWords+lw > maxTokens {
			// A chunk holding nothing but a single line that already
			// overflows maxTokens on its own is the oversized-line case:
			// it stays intact in its own chunk, so it must not also be
			// carried into the next one.
			oversizedSingleLine := len(current) == 1 && currentWords > maxTokens
			flush()
			if oversizedSingleLine {
				current = nil
				currentWords = 0
			} else {
				carryOver(lw)
			}
		}
		current = append(current, line)
		currentWords += lw
	}
	flush()

	return chunks
}

func wordCount(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(strings.Fields(l))
	}
	return n
}
