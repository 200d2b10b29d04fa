// Package textclean is a deterministic, pure text→text cleanup pipeline:
// filler removal, self-correction rewriting, file/symbol tagging,
// deduplication, and readability normalization. Ported from
// original_source/app/transcription/text_cleaner.py.
//
// Go's regexp package (RE2) supports neither lookaround assertions nor
// backreferences, both of which the original's patterns lean on. Where
// the original uses `(?<!...)`/`(?=...)` this port matches the wider
// pattern and checks the surrounding bytes by hand; where it uses `\1`
// this port scans tokens manually instead of regex-substituting. The
// observable behavior is preserved; only the mechanism differs.
package textclean

import "regexp"

var fillerRemove = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(um+|uh+|hmm+|hm+|ah+|eh+|er+|oh+)\b`),
	regexp.MustCompile(`(?i)\b(so yeah|and yeah|yeah so|right so)\b[.,]?`),
}

var fillerReplaceSpace = regexp.MustCompile(`(?i),?\s*\b(you know|sort of|kind of|basically|literally)\b\s*,?`)
var inlineDiscourseRe = regexp.MustCompile(`(?i)\b(?:we can see|you can see|we'?ll see|let'?s see)\b`)
var hesitationChainRe = regexp.MustCompile(`(?i)\b(?:i don't know|i do not know)\s+(?:yeah\s+)?maybe\b`)
var yeahFillerRe = regexp.MustCompile(`(?i)\b(?:yeah|yep)\b`)

var leadingDiscourse = regexp.MustCompile(`(?i)^\s*(?:(?:okay|ok|well|so)\s*,?\s*)+`)

var correctionPrefix = regexp.MustCompile(`(?i)^\s*(no\s*,\s*no|no\s+no|sorry|rather|correction|i mean|i meant|wait no|no wait|scratch that|never mind(?: that)?|let me rephrase)\b[\s,:-]*`)
var inlineCorrection = regexp.MustCompile(`(?i)^(.+?)\s*(?:,\s*|\s+)(sorry|rather|i mean|i meant|no wait|wait no|no\s*,?\s*no|scratch that|never mind(?: that)?|let me rephrase)\b[\s,:-]*(.+)$`)

var verbTargetOfApp = regexp.MustCompile(`(?i)^(.*?\b(?:change|update|modify|refactor|improve|fix)\b\s+)(?:the\s+)?(.+?)(\s+of\s+the\s+app)([.!?]?)$`)
var verbToTarget = regexp.MustCompile(`(?i)^(.*?\b(?:change|set|switch|rename|call|use|move)\b\s+(?:it|this|that|the\s+\w+)?\s*to\s+)(.+?)([.!?]?)$`)
var verbTrailingToken = regexp.MustCompile(`(?i)^(.*?\b(?:call|name|rename|select|choose)\b\s+(?:the\s+\w+\s+)?)([A-Za-z0-9_.:-]+)([.!?]?)$`)
var verbOpenEnd = regexp.MustCompile(`(?i)^(.*?\b(?:use|call|name|rename|set|switch|move)\b)\s*$`)
var actionClauseRe = regexp.MustCompile(`(?i)^(.*?)((?:i\s+(?:want|need)\s+to\s+)?(?:change|update|modify|refactor|improve|fix|rename|move|set|switch|use|call)\b.+)$`)
var intentPrefixRe = regexp.MustCompile(`(?i)^(i\s+(?:want|need)\s+to)\s+(.+)$`)
var actionStartRe = regexp.MustCompile(`(?i)^(?:i\s+(?:want|need)\s+to\s+)?(?:change|update|modify|refactor|improve|fix|rename|move|set|switch|use|call)\b`)

var fileExts = []string{
	"py", "js", "jsx", "ts", "tsx", "java", "go", "rs", "rb", "php", "swift",
	"kt", "c", "h", "hpp", "cpp", "m", "mm", "cs", "json", "yaml", "yml",
	"toml", "ini", "env", "md", "txt", "sql", "sh", "bash", "zsh", "html",
	"htm", "css", "scss", "vue", "dmg",
}

var fileExtSet = func() map[string]bool {
	m := make(map[string]bool, len(fileExts))
	for _, e := range fileExts {
		m[e] = true
	}
	return m
}()

var fileExtAlt = joinAlt(fileExts)

func joinAlt(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += "|"
		}
		out += s
	}
	return out
}

// explicitFileRe matches the body of an explicit name.ext mention;
// callers must additionally verify the byte before the match is not a
// word char or '@' (the original's negative lookbehind).
var explicitFileRe = regexp.MustCompile(`(?i)[A-Za-z0-9][A-Za-z0-9_./-]*\.(?:` + fileExtAlt + `)\b(?:\s+file\b)?`)

var spokenDotFileRe = regexp.MustCompile(`(?i)([A-Za-z0-9][A-Za-z0-9_-]*)\s+dot\s+(` + fileExtAlt + `)\b(?:\s+file\b)?`)
var spokenComplexFileRe = regexp.MustCompile(`(?i)([A-Za-z0-9][A-Za-z0-9_-]*(?:\s+(?:underscore|under score|dash|hyphen)\s+[A-Za-z0-9][A-Za-z0-9_-]*)+)\s+dot\s+(` + fileExtAlt + `)\b(?:\s+file\b)?`)

var duplicateFileTagRe = regexp.MustCompile(`@\s*@\s*`)

var bareFileStartBlock = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true, "my": true,
	"your": true, "our": true, "their": true, "open": true, "close": true,
	"read": true, "write": true, "save": true, "edit": true, "modify": true,
	"update": true, "change": true, "fix": true, "move": true, "rename": true,
	"create": true, "delete": true, "remove": true, "use": true, "call": true,
	"set": true, "switch": true, "want": true, "need": true, "have": true,
	"is": true, "are": true, "was": true, "were": true, "please": true,
	"just": true, "to": true,
}

// bareFileRe matches "<base> file"; callers verify the preceding byte
// isn't '@'/word, and that base's first token isn't in bareFileStartBlock.
var bareFileRe = regexp.MustCompile(`(?i)([A-Za-z][A-Za-z0-9_-]*(?:\s+[A-Za-z0-9_-]+)?)\s+file\b`)

var genericFileBases = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true, "it": true,
	"my": true, "your": true, "our": true, "their": true,
}

var fragmentedTagRe = regexp.MustCompile(`@([A-Za-z0-9_-]+)([-_])@([A-Za-z0-9_-]+\.(?:` + fileExtAlt + `))\b`)

// spokenFragmentedTagRe: callers verify the preceding byte isn't '@'/word.
var spokenFragmentedTagRe = regexp.MustCompile(`(?i)([A-Za-z0-9_-]+)\s+(underscore|under score|dash|hyphen)\s+@([A-Za-z0-9_-]+\.(?:` + fileExtAlt + `))\b`)

var verbPrefixTagFileRe = regexp.MustCompile(`(?i)\b(rename|update|modify|edit|open|create|delete|move|copy)\s+((?:(?:the|this|that)\s+)?(?:file\s+)?)?([A-Za-z0-9_-]{2,})\s+@([A-Za-z0-9_-]+\.(?:` + fileExtAlt + `))\b`)

// loneExtensionTagRe: callers verify the preceding byte isn't a word char.
var loneExtensionTagRe = regexp.MustCompile(`(?i)@(` + fileExtAlt + `)\b`)

var frameworkFileTokens = map[string]bool{
	"next.js": true, "node.js": true, "react.js": true, "plate.js": true,
	"vue.js": true, "nuxt.js": true, "solid.js": true, "svelte.js": true,
	"express.js": true,
}

var taggedJSListRe = regexp.MustCompile(`(?i)(\b(?:terms?|libraries|frameworks?)\s+like\s+)(@[A-Za-z0-9_-]+\.(?:js|jsx|ts|tsx)\b(?:\s*,\s*@[A-Za-z0-9_-]+\.(?:js|jsx|ts|tsx)\b)*(?:\s+and\s+@[A-Za-z0-9_-]+\.(?:js|jsx|ts|tsx)\b)?)`)

var jsContextHints = map[string]bool{
	"next": true, "react": true, "node": true, "express": true, "nest": true,
	"vite": true, "vue": true, "nuxt": true, "remix": true, "solid": true,
	"plate": true,
}
var jsHomophoneRe = regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z0-9_-]*)\s+chess\b`)
var spelledJSRe = regexp.MustCompile(`(?i)\b(jay\s+ess|j\s*\.?\s*s)\b`)
var spelledTSRe = regexp.MustCompile(`(?i)\b(tea\s+ess|t\s*\.?\s*s)\b`)

var symbolMentionRe = regexp.MustCompile(`(?i)\b(update|modify|refactor|fix|rename|call|use|create|open|check|test)\s+(?:the\s+)?(function|method|class|module|variable|interface|type)\s+([A-Za-z_][A-Za-z0-9_.:-]{1,64})\b`)
var symbolFileExtRe = regexp.MustCompile(`(?i)\.(?:` + fileExtAlt + `)$`)
var genericSymbols = map[string]bool{
	"code": true, "file": true, "app": true, "function": true, "class": true,
	"module": true, "variable": true, "type": true, "interface": true,
}

var clauseSplitRe = regexp.MustCompile(`[.!?;:]\s+`)
var softClauseSplitRe = regexp.MustCompile(`[,.!?;:]\s+`)

var lowInfoFragmentRe = regexp.MustCompile(`(?i)^(?:okay|ok|yeah|right|you know|i mean|let'?s see|we can see|you can see|we'?ll see|i guess|i don't know|i do not know)$`)
var trimEdgePunctRe = regexp.MustCompile(`^[\s,;:.!?-]+|[\s,;:.!?-]+$`)

var iContractionRe = regexp.MustCompile(`(?i)\bi(['’](?:m|d|ll|ve|re|s)\b)`)
var standaloneIRe = regexp.MustCompile(`(?i)\bi\b`)
var terminalPunctRe = regexp.MustCompile(`[.!?]["')\]]?$`)
var trailingConjunctionRe = regexp.MustCompile(`(?i)\b(?:and|or|but|so|because|then)\b\s*$`)
var missingSentenceBreakRe = regexp.MustCompile(`([a-z0-9])\s+((?:The|Then|And|But)\s+[A-Z]?[a-z])`)
var embeddedShouldQuestionRe = regexp.MustCompile(`(?i)\bif\s+i\s+ask\s+should\s+(.+?)\s+(keep it as a question\b)`)
