package textclean

import (
	"sort"
	"strings"
)

var strongReplaceCues = map[string]bool{
	"no no": true, "no wait": true, "wait no": true, "i mean": true,
	"i meant": true, "rather": true, "correction": true,
	"scratch that": true, "never mind": true, "never mind that": true,
	"let me rephrase": true,
}
var weakReplaceCues = map[string]bool{"sorry": true}

// Clean applies the full deterministic cleanup pipeline: filler
// removal, self-correction, clause/sentence dedup, low-information
// pruning, optional file/symbol tagging, and readability
// normalization. dictionary entries are applied longest-key-first,
// case-insensitive.
func Clean(text string, dictionary map[string]string, programmerMode bool) string {
	return clean(text, dictionary, programmerMode, true)
}

// CleanConservative skips self-correction rewriting and clause
// collapsing; used as the completeness-preserving fallback in
// internal/pipeline's PreserveCompleteness per spec.md §4.6.
func CleanConservative(text string, dictionary map[string]string, programmerMode bool) string {
	return clean(text, dictionary, programmerMode, false)
}

// HasFillerWords reports whether text contains disfluency markers
// (um, uh, basically, you know, ...) that the regex cleanup pass
// strips. Used by the pipeline's refinement gate to force LLM
// refinement on filler-heavy raw transcripts even when the cleaned
// text already looks short and complete.
func HasFillerWords(text string) bool {
	for _, p := range fillerRemove {
		if p.MatchString(text) {
			return true
		}
	}
	return fillerReplaceSpace.MatchString(text) || yeahFillerRe.MatchString(text)
}

func clean(text string, dictionary map[string]string, programmerMode bool, fullCorrections bool) string {
	for _, p := range fillerRemove {
		text = p.ReplaceAllString(text, "")
	}
	text = leadingDiscourse.ReplaceAllString(text, "")
	text = inlineDiscourseRe.ReplaceAllString(text, " ")
	text = hesitationChainRe.ReplaceAllString(text, "maybe")
	text = yeahFillerRe.ReplaceAllString(text, " ")
	text = fillerReplaceSpace.ReplaceAllString(text, " ")
	text = dedupeRepeatedWords(text)
	text = normalizeSpokenAcronyms(text)

	if len(dictionary) > 0 {
		text = applyDictionary(text, dictionary)
	}

	if fullCorrections {
		text = applySelfCorrections(text)
		text = collapseRepeatedClauses(text)
	}
	text = dedupeAdjacentSentences(text)
	text = pruneLowInformationFragments(text)
	if programmerMode {
		text = tagFileMentions(text)
		text = tagSymbolMentions(text)
	}
	text = normalizeReadability(text)

	text = strings.Join(strings.Fields(text), " ")
	text = collapseSpaceBeforePunctuation(text)
	text = strings.TrimRight(text, ", ")
	text = strings.TrimLeft(text, ", ")
	return strings.TrimSpace(text)
}

// applyDictionary replaces dictionary keys in text, longest key first,
// case-insensitively, mirroring the original's re.sub(re.escape(wrong), ...).
func applyDictionary(text string, dictionary map[string]string) string {
	keys := make([]string, 0, len(dictionary))
	for k := range dictionary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, wrong := range keys {
		right := dictionary[wrong]
		text = replaceCaseInsensitive(text, wrong, right)
	}
	return text
}

func replaceCaseInsensitive(text, old, new string) string {
	if old == "" {
		return text
	}
	lowerText := strings.ToLower(text)
	lowerOld := strings.ToLower(old)

	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(lowerText[i:], lowerOld)
		if idx < 0 {
			b.WriteString(text[i:])
			break
		}
		b.WriteString(text[i : i+idx])
		b.WriteString(new)
		i += idx + len(old)
	}
	return b.String()
}

// collapseSpaceBeforePunctuation removes whitespace before .,!?;: and
// collapses a trailing comma right before terminal punctuation.
func collapseSpaceBeforePunctuation(text string) string {
	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == ' ' && i+1 < len(runes) && isPunct(runes[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	out = strings.NewReplacer(",.", ".", ",!", "!", ",?", "?").Replace(out)
	return out
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}

// splitSentences splits on whitespace that follows a terminal
// punctuation mark, keeping the punctuation attached to the preceding
// sentence -- equivalent to the original's lookbehind split
// `(?<=[.!?])\s+`.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if (runes[i] == '.' || runes[i] == '!' || runes[i] == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
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

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func applySelfCorrections(text string) string {
	sentences := splitSentences(text)
	var out []string
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if m := inlineCorrection.FindStringSubmatch(sentence); m != nil {
			prefix := strings.TrimSpace(m[1])
			cue := normalizeCue(m[2])
			replacement := strings.Trim(m[3], " ,.-")
			if shouldReplacePrevious(cue, prefix, replacement) {
				out = append(out, mergeWithPrevious(prefix, replacement))
			} else {
				out = append(out, ensureTerminalPunctuation(prefix), ensureTerminalPunctuation(replacement))
			}
			continue
		}
		if m := correctionPrefix.FindStringSubmatchIndex(sentence); m != nil {
			cue := normalizeCue(sentence[m[2]:m[3]])
			replacement := strings.Trim(sentence[m[1]:], " ,.-")
			if replacement == "" {
				continue
			}
			if len(out) > 0 && shouldReplacePrevious(cue, out[len(out)-1], replacement) {
				out[len(out)-1] = mergeWithPrevious(out[len(out)-1], replacement)
			} else {
				out = append(out, ensureTerminalPunctuation(replacement))
			}
			continue
		}
		out = append(out, sentence)
	}
	return strings.Join(out, " ")
}

func normalizeCue(cue string) string {
	cue = strings.ToLower(strings.TrimSpace(cue))
	cue = strings.ReplaceAll(cue, ",", " ")
	return strings.Join(strings.Fields(cue), " ")
}

func shouldReplacePrevious(cue, previous, replacement string) bool {
	if strongReplaceCues[cue] {
		return true
	}
	if weakReplaceCues[cue] {
		looksLikeEdit := verbToTarget.MatchString(previous) ||
			verbTrailingToken.MatchString(previous) ||
			actionStartRe.MatchString(previous)
		if looksLikeEdit && len(strings.Fields(replacement)) <= 10 {
			return true
		}
	}
	return false
}

func ensureTerminalPunctuation(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "!") || strings.HasSuffix(text, "?") {
		return text
	}
	return text + "."
}

func mergeWithPrevious(previous, replacement string) string {
	previous = strings.TrimSpace(leadingDiscourse.ReplaceAllString(previous, ""))
	replacement = strings.TrimSpace(leadingDiscourse.ReplaceAllString(replacement, ""))
	replacement = strings.TrimRight(replacement, ".!?")
	for {
		stripped := strings.Trim(correctionPrefix.ReplaceAllString(replacement, ""), " ,.-")
		if stripped == replacement {
			break
		}
		replacement = stripped
	}

	if m := verbTargetOfApp.FindStringSubmatch(previous); m != nil {
		prefix, suffix, punctuation := m[1], m[3], m[4]
		rep := replacement
		if strings.HasSuffix(strings.ToLower(rep), "of the app") {
			rep = strings.TrimSpace(rep[:len(rep)-len("of the app")])
		}
		if rep != "" {
			article := "the "
			if hasArticlePrefix(rep) {
				article = ""
			}
			punct := punctuation
			if punct == "" {
				punct = "."
			}
			return prefix + article + rep + suffix + punct
		}
	}

	if m := verbToTarget.FindStringSubmatch(previous); m != nil && replacement != "" {
		prefix, punctuation := m[1], m[3]
		punct := punctuation
		if punct == "" {
			punct = "."
		}
		return prefix + replacement + punct
	}

	if m := verbTrailingToken.FindStringSubmatch(previous); m != nil && replacement != "" {
		prefix, punctuation := m[1], m[3]
		punct := punctuation
		if punct == "" {
			punct = "."
		}
		return prefix + replacement + punct
	}

	if m := verbOpenEnd.FindStringSubmatch(previous); m != nil && replacement != "" {
		prefix := strings.TrimSpace(m[1])
		return prefix + " " + replacement + "."
	}

	if am := actionClauseRe.FindStringSubmatch(previous); am != nil && actionStartRe.MatchString(replacement) {
		head := strings.TrimSpace(am[1])
		clause := strings.TrimRight(strings.TrimSpace(am[2]), ".!?")
		replacementClause := strings.TrimRight(replacement, ".!?")
		if im := intentPrefixRe.FindStringSubmatch(clause); im != nil && !intentPrefixRe.MatchString(replacementClause) {
			replacementClause = strings.TrimSpace(im[1]) + " " + replacementClause
		}
		merged := strings.TrimSpace(head + " " + replacementClause)
		return merged + "."
	}

	return ensureTerminalPunctuation(replacement)
}

func hasArticlePrefix(s string) bool {
	lower := strings.ToLower(s)
	for _, a := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(lower, a) {
			return true
		}
	}
	return lower == "the" || lower == "a" || lower == "an"
}
