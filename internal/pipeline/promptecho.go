package pipeline

import "strings"

// hallucinationPhrases are known whisper.cpp hallucinations on
// silent or near-silent audio -- stock filler the model emits when it
// has nothing to transcribe. A transcript that, once trimmed of
// surrounding punctuation, matches one of these exactly is treated as
// no speech rather than real content.
var hallucinationPhrases = map[string]bool{
	"thank you":          true,
	"thanks":             true,
	"thanks for watching": true,
	"please subscribe":   true,
	"bye":                true,
	"goodbye":            true,
	"you":                true,
}

// promptEchoFragments are clauses from buildPrompt's initial_prompt
// text (internal/stt); whisper.cpp occasionally echoes prompt clauses
// back on ambiguous audio instead of transcribing it.
var promptEchoFragments = []string{
	"transcribe clearly with natural punctuation",
	"this is a software development dictation in english or german",
	"die folgende aufnahme stammt aus einer softwareentwicklungssitzung",
	"bitte klar und korrekt transkribieren",
	"the following is a clean, well-punctuated transcription from a software development session",
}

// maxPromptEchoWords bounds prompt-echo detection to short transcripts.
const maxPromptEchoWords = 15

func normalizeForBlocklist(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(t, ".!? ")
}

// IsHallucination reports whether raw is one of the known empty-audio
// hallucination phrases, in its entirety.
func IsHallucination(raw string) bool {
	return hallucinationPhrases[normalizeForBlocklist(raw)]
}

// IsPromptEcho reports whether raw is the model echoing the
// initial_prompt back instead of transcribing real speech: a transcript
// of fewer than maxPromptEchoWords words that contains one of
// promptEchoFragments.
func IsPromptEcho(raw string) bool {
	norm := normalizeForBlocklist(raw)
	if len(strings.Fields(norm)) >= maxPromptEchoWords {
		return false
	}
	for _, f := range promptEchoFragments {
		if strings.Contains(norm, f) {
			return true
		}
	}
	return false
}
