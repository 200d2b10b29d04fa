package textclean

import (
	"strings"
	"testing"
)

func TestCleanRemovesFillers(t *testing.T) {
	got := Clean("um so I want to, uh, you know, fix the bug", nil, false)
	for _, filler := range []string{"um", "uh", "you know"} {
		if strings.Contains(strings.ToLower(got), filler) {
			t.Errorf("Clean(...) = %q, still contains filler %q", got, filler)
		}
	}
}

func TestCleanSelfCorrection(t *testing.T) {
	got := Clean("Deploy to staging, no wait, deploy to production.", nil, false)
	if strings.Contains(strings.ToLower(got), "staging") {
		t.Errorf("Clean(...) = %q, expected corrected text to drop the retracted clause", got)
	}
	if !strings.Contains(strings.ToLower(got), "production") {
		t.Errorf("Clean(...) = %q, expected corrected text to keep the replacement", got)
	}
}

func TestCleanPreservesQuestions(t *testing.T) {
	got := Clean("Should I use a mutex here?", nil, false)
	if !strings.HasSuffix(strings.TrimSpace(got), "?") {
		t.Errorf("Clean(...) = %q, expected a preserved question mark", got)
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"um so I want to, uh, fix the bug in main.py",
		"Deploy to staging, no wait, deploy to production.",
		"the the quick brown fox fox jumps over the the lazy dog",
	}
	for _, in := range inputs {
		once := Clean(in, nil, true)
		twice := Clean(once, nil, true)
		if once != twice {
			t.Errorf("Clean not idempotent for %q:\n  once:  %q\n  twice: %q", in, once, twice)
		}
	}
}

func TestCleanDedupesRepeatedWords(t *testing.T) {
	got := Clean("the the quick brown fox fox jumps", nil, false)
	if strings.Contains(got, "the the") || strings.Contains(got, "fox fox") {
		t.Errorf("Clean(...) = %q, expected repeated words collapsed", got)
	}
}

func TestCleanKeepsNoNo(t *testing.T) {
	got := dedupeRepeatedWords("no no I meant the other file")
	if !strings.Contains(got, "no no") {
		t.Errorf("dedupeRepeatedWords(...) = %q, expected correction cue \"no no\" preserved", got)
	}
}

func TestCleanAppliesDictionary(t *testing.T) {
	dict := map[string]string{"lama index": "LlamaIndex"}
	got := Clean("I used lama index for retrieval", dict, false)
	if !strings.Contains(got, "LlamaIndex") {
		t.Errorf("Clean(...) = %q, expected dictionary substitution applied", got)
	}
}

func TestCleanTagsFileMentions(t *testing.T) {
	got := Clean("open main.py and fix the bug", nil, true)
	if !strings.Contains(got, "@main.py") {
		t.Errorf("Clean(...) = %q, expected main.py tagged as @main.py", got)
	}
}

func TestCleanConservativeSkipsCorrections(t *testing.T) {
	got := CleanConservative("Deploy to staging, no wait, deploy to production.", nil, false)
	if !strings.Contains(strings.ToLower(got), "staging") {
		t.Errorf("CleanConservative(...) = %q, expected retracted clause preserved", got)
	}
}
