package textclean

import (
	"regexp"
	"strings"
)

var wordTokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// dedupeRepeatedWords collapses immediate word repetitions ("the the"
// -> "the"), preserving "no no" as a correction cue. Ported from a
// backreference-based regex (`\b(\w+)(\s+\1)+\b`), which RE2 can't
// express; this scans word-token spans and merges runs by hand.
func dedupeRepeatedWords(text string) string {
	spans := wordTokenRe.FindAllStringIndex(text, -1)
	if len(spans) < 2 {
		return text
	}

	drop := make([]bool, len(spans))
	i := 0
	for i < len(spans) {
		j := i + 1
		word := strings.ToLower(text[spans[i][0]:spans[i][1]])
		for j < len(spans) {
			gap := text[spans[j-1][1]:spans[j][0]]
			if strings.TrimSpace(gap) != "" {
				break
			}
			next := strings.ToLower(text[spans[j][0]:spans[j][1]])
			if next != word {
				break
			}
			j++
		}
		if j-i >= 2 && word != "no" {
			for k := i + 1; k < j; k++ {
				drop[k] = true
			}
		}
		i = j
	}

	var b strings.Builder
	last := 0
	for idx, sp := range spans {
		if !drop[idx] {
			continue
		}
		// Drop this token and the whitespace gap immediately before it.
		gapStart := spans[idx-1][1]
		b.WriteString(text[last:gapStart])
		last = sp[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

var tagTokenRe = regexp.MustCompile(`@[A-Za-z_][A-Za-z0-9_.:-]*`)

// dedupeRepeatedTags collapses immediately repeated identical @tags,
// e.g. "@foo.py @foo.py" -> "@foo.py". Ported from a backreference
// regex for the same RE2 limitation as dedupeRepeatedWords.
func dedupeRepeatedTags(text string) string {
	spans := tagTokenRe.FindAllStringIndex(text, -1)
	if len(spans) < 2 {
		return text
	}
	drop := make([]bool, len(spans))
	for i := 1; i < len(spans); i++ {
		gap := text[spans[i-1][1]:spans[i][0]]
		if strings.TrimSpace(gap) != "" {
			continue
		}
		if text[spans[i-1][0]:spans[i-1][1]] == text[spans[i][0]:spans[i][1]] {
			drop[i] = true
		}
	}
	var b strings.Builder
	last := 0
	for idx, sp := range spans {
		if !drop[idx] {
			continue
		}
		gapStart := spans[idx-1][1]
		b.WriteString(text[last:gapStart])
		last = sp[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// splitOnTerminators splits text after whitespace that immediately
// follows one of the terminator runes, keeping the terminator attached
// to the preceding piece -- equivalent to the original's lookbehind
// split regexes.
func splitOnTerminators(text string, terminators string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	isTerm := func(r rune) bool { return strings.ContainsRune(terminators, r) }

	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if isTerm(runes[i]) && i+1 < len(runes) && isSpace(runes[i+1]) {
			out = append(out, string(runes[start:i+1]))
			j := i + 1
			for j < len(runes) && isSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	out = append(out, string(runes[start:]))
	return out
}

func collapseRepeatedClauses(text string) string {
	chunks := splitOnTerminators(text, ".!?;:")
	if chunks == nil {
		return text
	}
	var out []string
	prevNorm := ""
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		body := strings.TrimSpace(strings.TrimRight(chunk, ".!?;:"))
		if body == "" {
			continue
		}
		norm := strings.ToLower(strings.Join(strings.Fields(body), " "))
		wordCount := len(strings.Fields(norm))
		if norm == prevNorm && wordCount >= 3 {
			continue
		}
		if prevNorm != "" && wordCount >= 6 && strings.HasSuffix(prevNorm, norm) {
			continue
		}
		out = append(out, chunk)
		prevNorm = norm
	}
	if len(out) == 0 {
		return text
	}
	return strings.Join(out, " ")
}

func dedupeAdjacentSentences(text string) string {
	raw := splitOnTerminators(text, ".!?")
	var chunks []string
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) < 2 {
		return text
	}
	var out []string
	prevNorm := ""
	for _, chunk := range chunks {
		norm := normalizeFragment(chunk)
		if norm != "" && norm == prevNorm && len(strings.Fields(norm)) >= 6 {
			continue
		}
		out = append(out, chunk)
		prevNorm = norm
	}
	if len(out) == 0 {
		return text
	}
	return strings.Join(out, " ")
}

func pruneLowInformationFragments(text string) string {
	raw := splitOnTerminators(text, ",.!?;:")
	var chunks []string
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) < 2 {
		return text
	}

	normalized := make([]string, len(chunks))
	nonLow := 0
	for i, c := range chunks {
		normalized[i] = normalizeFragment(c)
		if !isLowInfoFragment(normalized[i]) {
			nonLow++
		}
	}
	if nonLow == 0 {
		return chunks[0]
	}

	var out []string
	previousNorm := ""
	for i, chunk := range chunks {
		norm := normalized[i]
		if norm == "" {
			continue
		}
		if isLowInfoFragment(norm) {
			continue
		}
		if norm == previousNorm {
			continue
		}
		out = append(out, chunk)
		previousNorm = norm
	}
	if len(out) == 0 {
		return chunks[0]
	}
	return strings.Join(out, " ")
}

func normalizeFragment(text string) string {
	stripped := trimEdgePunctRe.ReplaceAllString(strings.ToLower(text), "")
	return strings.Join(strings.Fields(stripped), " ")
}

func isLowInfoFragment(normalized string) bool {
	return lowInfoFragmentRe.MatchString(normalized)
}
