package textclean

import (
	"strings"
)

// normalizeReadability trims a dangling trailing conjunction, inserts
// sentence breaks the speech stream ran together, untangles an
// embedded "should" question, fixes "i" capitalization, capitalizes
// each sentence start, and adds a closing period to long unpunctuated
// output. Ported from _normalize_readability.
func normalizeReadability(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}

	text = trailingConjunctionRe.ReplaceAllString(text, "")
	text = missingSentenceBreakRe.ReplaceAllString(text, "$1. $2")
	text = embeddedShouldQuestionRe.ReplaceAllStringFunc(text, func(whole string) string {
		m := embeddedShouldQuestionRe.FindStringSubmatch(whole)
		target := strings.TrimSpace(m[1])
		return "if I ask should " + target + "? " + m[2]
	})

	text = iContractionRe.ReplaceAllString(text, "I$1")
	text = replaceStandaloneI(text)

	text = capitalizeSentenceStarts(text)

	text = strings.TrimSpace(text)
	if text != "" {
		words := strings.Fields(text)
		if len(words) >= 8 && !terminalPunctRe.MatchString(text) {
			text += "."
		}
	}
	return text
}

// replaceStandaloneI uppercases the pronoun "i" wherever it stands
// alone as a word, leaving contractions (already handled above) and
// other words containing "i" untouched.
func replaceStandaloneI(text string) string {
	matches := standaloneIRe.FindAllStringIndex(text, -1)
	if matches == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		b.WriteString("I")
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// capitalizeSentenceStarts uppercases the first letter of each
// sentence. Ported from _LEADING_LOWER_RE, which relied on a
// lookbehind for the preceding sentence boundary; this instead splits
// on the same boundary explicitly via splitSentences.
func capitalizeSentenceStarts(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return text
	}
	for i, s := range sentences {
		trimmed := strings.TrimLeft(s, " \t")
		lead := len(s) - len(trimmed)
		if trimmed == "" {
			continue
		}
		r := []rune(trimmed)
		r[0] = upperRune(r[0])
		sentences[i] = s[:lead] + string(r)
	}
	return strings.Join(sentences, " ")
}

func upperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// normalizeSpokenAcronyms rewrites spoken-out "jay ess"/"j.s"/"tea
// ess"/"t.s" into "JS"/"TS", and "<word> chess" mishearings into
// "<word>.js", when nearby context suggests a programming acronym.
// Ported from _normalize_spoken_acronyms.
func normalizeSpokenAcronyms(text string) string {
	text = replaceGuarded(text, jsHomophoneRe, func(t string, start int) bool {
		return !nearJSContext(t, start)
	}, func(m []int, t string) string {
		word := t[m[2]:m[3]]
		return word + ".js"
	})

	text = replaceGuarded(text, spelledJSRe, func(t string, start int) bool {
		return !nearJSContext(t, start)
	}, func(m []int, t string) string {
		return "JS"
	})

	text = replaceGuarded(text, spelledTSRe, func(t string, start int) bool {
		return !nearJSContext(t, start)
	}, func(m []int, t string) string {
		return "TS"
	})

	return text
}

func nearJSContext(text string, pos int) bool {
	lo := pos - 40
	if lo < 0 {
		lo = 0
	}
	hi := pos + 40
	if hi > len(text) {
		hi = len(text)
	}
	window := strings.ToLower(text[lo:hi])
	for _, w := range strings.FieldsFunc(window, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if jsContextHints[w] {
			return true
		}
	}
	return false
}
