package textclean

import (
	"regexp"
	"strings"
	"unicode"
)

// precedingByteBlocksTag reports whether the byte immediately before pos
// is a word character or '@' -- the original's negative lookbehind
// `(?<![\w@])` that RE2 can't express directly.
func precedingByteBlocksTag(text string, pos int) bool {
	if pos <= 0 {
		return false
	}
	r := []rune(text[:pos])
	if len(r) == 0 {
		return false
	}
	last := r[len(r)-1]
	return last == '@' || unicode.IsLetter(last) || unicode.IsDigit(last) || last == '_'
}

// replaceGuarded walks all matches of re left to right, applying build
// to each match's submatch-index slice to get its replacement, unless
// skip(text, start) reports the match should pass through unchanged.
func replaceGuarded(text string, re *regexp.Regexp, skip func(text string, start int) bool, build func(m []int, text string) string) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start < last {
			continue
		}
		if skip != nil && skip(text, start) {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(build(m, text))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

func normalizeConnectorBase(base string) string {
	r := strings.NewReplacer(
		" underscore ", "_", " under score ", "_",
		" dash ", "-", " hyphen ", "-",
	)
	return strings.Join(strings.Fields(r.Replace(strings.ToLower(base))), "")
}

// tagFileMentions wraps recognized file-name mentions (explicit,
// spoken "dot", or bare "<name> file") in an @tag, then repairs
// artifacts left by tagging adjacent fragments separately. Ported from
// _tag_file_mentions; several steps relied on negative lookbehind,
// emulated here with precedingByteBlocksTag.
func tagFileMentions(text string) string {
	text = replaceGuarded(text, spokenComplexFileRe, nil, func(m []int, t string) string {
		base := normalizeConnectorBase(t[m[2]:m[3]])
		ext := strings.ToLower(t[m[4]:m[5]])
		return "@" + base + "." + ext
	})

	text = replaceGuarded(text, spokenDotFileRe, nil, func(m []int, t string) string {
		base := t[m[2]:m[3]]
		ext := strings.ToLower(t[m[4]:m[5]])
		return "@" + base + "." + ext
	})

	text = replaceGuarded(text, explicitFileRe, func(t string, start int) bool {
		return precedingByteBlocksTag(t, start)
	}, func(m []int, t string) string {
		matched := t[m[0]:m[1]]
		trimmed := strings.TrimSuffix(matched, " file")
		trimmed = strings.TrimSuffix(trimmed, " File")
		return "@" + trimmed
	})

	text = replaceGuarded(text, bareFileRe, func(t string, start int) bool {
		if precedingByteBlocksTag(t, start) {
			return true
		}
		return false
	}, func(m []int, t string) string {
		base := t[m[2]:m[3]]
		firstTok := strings.ToLower(strings.Fields(base)[0])
		if bareFileStartBlock[firstTok] || genericFileBases[firstTok] {
			return t[m[0]:m[1]]
		}
		return "@" + base
	})

	text = duplicateFileTagRe.ReplaceAllString(text, "@")

	text = fragmentedTagRe.ReplaceAllString(text, "@$1$2$3")

	text = replaceGuarded(text, spokenFragmentedTagRe, func(t string, start int) bool {
		return precedingByteBlocksTag(t, start)
	}, func(m []int, t string) string {
		base := t[m[2]:m[3]]
		connector := strings.ToLower(t[m[4]:m[5]])
		sep := "_"
		if connector == "dash" || connector == "hyphen" {
			sep = "-"
		}
		rest := t[m[6]:m[7]]
		return "@" + base + sep + rest
	})

	text = verbPrefixTagFileRe.ReplaceAllStringFunc(text, func(whole string) string {
		m := verbPrefixTagFileRe.FindStringSubmatch(whole)
		verb, det, base, rest := m[1], m[2], m[3], m[4]
		return verb + " " + det + "@" + base + rest
	})

	protected := taggedJSListRe.FindAllStringIndex(text, -1)
	text = replaceGuarded(text, loneExtensionTagRe, func(t string, start int) bool {
		if start > 0 && unicode.IsLetter(rune(t[start-1])) {
			return true
		}
		return withinAny(protected, start)
	}, func(m []int, t string) string {
		return ""
	})

	return text
}

func withinAny(spans [][]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// tagSymbolMentions wraps "<verb> the function/class/... <name>"
// mentions in an @tag and collapses any resulting duplicate adjacent
// tags. Ported from _tag_symbol_mentions; the duplicate-collapse step
// replaces a backreference regex with dedupeRepeatedTags.
func tagSymbolMentions(text string) string {
	text = symbolMentionRe.ReplaceAllStringFunc(text, func(whole string) string {
		m := symbolMentionRe.FindStringSubmatch(whole)
		verb, kind, name := m[1], m[2], m[3]
		if genericSymbols[strings.ToLower(name)] {
			return whole
		}
		if symbolFileExtRe.MatchString(name) {
			return whole
		}
		return verb + " " + kind + " @" + name
	})
	return dedupeRepeatedTags(text)
}
