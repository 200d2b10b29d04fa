package pipeline

import (
	"regexp"
	"strings"

	"github.com/voiceflow-go/dictation-core/internal/refiner"
	"github.com/voiceflow-go/dictation-core/internal/stt"
	"github.com/voiceflow-go/dictation-core/internal/textclean"
)

const (
	minRefineWords       = 4
	hardCapRefineWords   = 60
	longRefineWords      = 24
	multiSentenceWords   = 16
	longTerminatedWords  = 40
	veryShortRefineWords = 10
	shortTerminatedWords = 14
	elseRefineWords      = 22

	truncationRatioThreshold   = 0.6
	truncationMinWordDrop      = 8
	completenessRatioThreshold = 0.55
)

var correctionCueRe = regexp.MustCompile(`(?i)\b(sorry|i mean|i meant|actually|no wait|wait no|scratch that|` +
	`never mind|let me rephrase|correction|rather)\b`)

var complexTextRe = regexp.MustCompile(`(?i)[,:;]|\b(and|but|because|then)\b`)

var sentenceEndRe = regexp.MustCompile(`[.!?]+`)

// ShouldRefine gates whether cleaned text is worth an LLM refinement
// call. rawText (the pre-cleanup transcript) is optional -- pass ""
// when unavailable; when present, filler words or a correction cue in
// it can force refinement even if cleaned already looks short and
// complete. Mirrors the ordered guard list the dictation pipeline
// evaluates before spending a refinement call: short-circuits on
// length and question-shape first, then correction/disfluency cues,
// then a cascade of length/punctuation heuristics tuned so short,
// well-punctuated, or already-long text skips the LLM round trip.
func ShouldRefine(cleaned, rawText string) bool {
	words := strings.Fields(cleaned)
	wordCount := len(words)

	if wordCount < minRefineWords {
		return false
	}
	if wordCount >= hardCapRefineWords {
		return false
	}
	if refiner.LooksLikeQuestion(cleaned) {
		return false
	}
	if correctionCueRe.MatchString(cleaned) || (rawText != "" && correctionCueRe.MatchString(rawText)) {
		return true
	}
	if rawText != "" && textclean.HasFillerWords(rawText) && wordCount < longRefineWords {
		return true
	}
	if wordCount >= longRefineWords {
		return false
	}
	if sentenceCount(cleaned) >= 2 && wordCount >= multiSentenceWords {
		return false
	}
	if wordCount >= longTerminatedWords && endsWithTerminator(cleaned) {
		return false
	}
	if wordCount <= veryShortRefineWords {
		return false
	}
	if wordCount < shortTerminatedWords && endsWithTerminator(cleaned) {
		return false
	}
	complex := complexTextRe.MatchString(cleaned)
	terminated := endsWithTerminator(cleaned)
	if !complex && terminated && wordCount < longRefineWords {
		return false
	}
	if complex && !terminated {
		return true
	}
	return wordCount >= elseRefineWords && !terminated
}

func sentenceCount(text string) int {
	return len(sentenceEndRe.FindAllString(strings.TrimSpace(text), -1))
}

func endsWithTerminator(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return last == '.' || last == '!' || last == '?'
}

// IsSuspiciouslyShortRefinement reports whether candidate dropped so
// much content relative to source that it looks like an LLM
// truncation rather than a legitimate disfluency trim.
func IsSuspiciouslyShortRefinement(source, candidate string) bool {
	sourceWords := len(strings.Fields(source))
	candidateWords := len(strings.Fields(candidate))
	if sourceWords == 0 {
		return false
	}
	ratio := float64(candidateWords) / float64(sourceWords)
	return ratio < truncationRatioThreshold && sourceWords-candidateWords >= truncationMinWordDrop
}

// PreserveCompleteness falls back to a conservative re-clean of the
// raw transcript when the regex/LLM pipeline dropped too much content
// (cleaned text under completenessRatioThreshold of raw word count),
// since an over-aggressive clean or refinement is worse than a looser
// but more complete transcript.
func PreserveCompleteness(raw, cleaned string, dictionary map[string]string, programmerMode bool) string {
	rawWords := len(strings.Fields(raw))
	cleanedWords := len(strings.Fields(cleaned))
	if rawWords == 0 {
		return cleaned
	}
	ratio := float64(cleanedWords) / float64(rawWords)
	if ratio >= completenessRatioThreshold {
		return cleaned
	}
	fallback := textclean.CleanConservative(raw, dictionary, programmerMode)
	if len(strings.Fields(fallback)) > cleanedWords {
		return fallback
	}
	return cleaned
}

// FindTokenOverlap finds the largest n such that the last n tokens of
// left match the first n tokens of right, for stitching chunk
// transcripts where a word on the boundary was transcribed slightly
// differently each pass. Delegates to stt.FindTokenOverlap, the
// implementation actually exercised by long-audio transcription, so
// the gate and the transcriber never diverge on what counts as an
// overlap.
func FindTokenOverlap(left, right []string) int {
	return stt.FindTokenOverlap(left, right)
}
