package stt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitForLongTranscriptionSingleChunkWhenShort(t *testing.T) {
	audio := make([]float32, sampleRate*10)
	chunks := SplitForLongTranscription(audio)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for short audio, got %d", len(chunks))
	}
}

func TestSplitForLongTranscriptionSingleChunkUnder75Seconds(t *testing.T) {
	audio := make([]float32, sampleRate*60) // under the 75s chunking trigger
	chunks := SplitForLongTranscription(audio)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for 60s audio, got %d", len(chunks))
	}
}

func TestSplitForLongTranscriptionMultipleChunksWhenLong(t *testing.T) {
	audio := make([]float32, sampleRate*190) // 3m10s
	chunks := SplitForLongTranscription(audio)
	if len(chunks) <= 1 {
		t.Fatalf("expected multiple chunks for 190s audio, got %d", len(chunks))
	}
	expected := int(42.0 * sampleRate)
	if diff := abs(len(chunks[0]) - expected); diff > 8000 {
		t.Errorf("first chunk size = %d, want within 8000 of %d", len(chunks[0]), expected)
	}
	last := chunks[len(chunks)-1]
	if len(last) < int(minTailChunkSeconds*sampleRate) {
		t.Errorf("last chunk size = %d, want >= %d", len(last), int(minTailChunkSeconds*sampleRate))
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestMergeTranscriptPartsRemovesOverlap(t *testing.T) {
	merged := MergeTranscriptParts([]string{
		"we should update the parser module and run tests before merge",
		"and run tests before merge then deploy to staging",
	})
	lower := strings.ToLower(merged)
	if !strings.Contains(lower, "deploy to staging") {
		t.Errorf("MergeTranscriptParts(...) = %q, expected tail content kept", merged)
	}
	if strings.Count(lower, "and run tests before merge") != 1 {
		t.Errorf("MergeTranscriptParts(...) = %q, expected overlap collapsed to one copy", merged)
	}
}

func TestIsTailCovered(t *testing.T) {
	full := "we shipped to staging and validated smoke tests then fixed two bugs before final rollout this morning"
	tail := "fixed two bugs before final rollout this morning"
	if !IsTailCovered(full, tail) {
		t.Errorf("IsTailCovered(...) = false, want true")
	}
	if IsTailCovered(full, "completely new information never mentioned") {
		t.Errorf("IsTailCovered(...) = true for novel tail, want false")
	}
}

func TestTrimSilenceForDecodeReducesSizeWithoutCuttingSpeech(t *testing.T) {
	speech := make([]float32, sampleRate)
	for i := range speech {
		speech[i] = 0.02
	}
	trailing := make([]float32, sampleRate*2)
	audio := append(append([]float32(nil), speech...), trailing...)

	trimmed, changed := TrimSilenceForDecode(audio, 0.01)
	if !changed {
		t.Fatalf("expected TrimSilenceForDecode to report a change")
	}
	if len(trimmed) >= len(audio) {
		t.Errorf("trimmed length %d not smaller than original %d", len(trimmed), len(audio))
	}
	if len(trimmed) < len(speech) {
		t.Errorf("trimmed length %d cut into speech (want >= %d)", len(trimmed), len(speech))
	}
}

func TestTrimSilenceForDecodeLeavesAllSilenceUnchanged(t *testing.T) {
	audio := make([]float32, sampleRate*1.5)
	_, changed := TrimSilenceForDecode(audio, 0.01)
	if changed {
		t.Errorf("expected no change for all-silence audio")
	}
}

func TestTemperatureScheduleForShortAudioIsSinglePass(t *testing.T) {
	got := temperatureScheduleFor(sampleRate * 10) // 10s
	if len(got) != 1 || got[0] != 0.0 {
		t.Errorf("temperatureScheduleFor(10s) = %v, want [0.0]", got)
	}
}

func TestTemperatureScheduleForMediumAudioHasTwoTiers(t *testing.T) {
	got := temperatureScheduleFor(sampleRate * 30) // 30s
	if len(got) != 2 {
		t.Errorf("temperatureScheduleFor(30s) = %v, want 2 tiers", got)
	}
}

func TestTemperatureScheduleForLongAudioHasThreeTiers(t *testing.T) {
	got := temperatureScheduleFor(sampleRate * 60) // 60s
	if len(got) != 3 || got[2] != 0.4 {
		t.Errorf("temperatureScheduleFor(60s) = %v, want 3 tiers ending at 0.4", got)
	}
}

func TestLooksLikeDecodeFailureFlagsRepetitiveOutput(t *testing.T) {
	repetitive := strings.Repeat("the the the the ", 40)
	if !looksLikeDecodeFailure(repetitive) {
		t.Error("expected repetitive output to look like a decode failure")
	}
}

func TestLooksLikeDecodeFailureAllowsNaturalText(t *testing.T) {
	natural := "we should update the parser module and run the tests before merging this branch"
	if looksLikeDecodeFailure(natural) {
		t.Error("expected natural text not to look like a decode failure")
	}
}

func TestLooksLikeDecodeFailureAllowsEmptyOutput(t *testing.T) {
	if looksLikeDecodeFailure("") {
		t.Error("empty output should not be flagged, there is nothing a retry could improve")
	}
}

func TestFindTokenOverlapPrefersExactMatch(t *testing.T) {
	left := strings.Fields("the quick brown fox jumps over the lazy dog")
	right := strings.Fields("over the lazy dog and then runs away")
	if got := FindTokenOverlap(left, right); got != 4 {
		t.Errorf("FindTokenOverlap(...) = %d, want 4", got)
	}
}

func TestFindTokenOverlapToleratesMinorDifferences(t *testing.T) {
	left := strings.Fields("alpha bravo charlie delta echo foxtrot golf hotel")
	right := strings.Fields("alpha bravo charlie delta echo foxtrox golf hotel india juliet")
	if got := FindTokenOverlap(left, right); got != 8 {
		t.Errorf("FindTokenOverlap(...) = %d, want 8", got)
	}
}

func TestAppendTailPassSkipsAlreadyCoveredContent(t *testing.T) {
	merged := "we shipped to staging and validated smoke tests then fixed two bugs before final rollout this morning"
	tail := "fixed two bugs before final rollout this morning"
	if got := appendTailPass(merged, tail); got != merged {
		t.Errorf("appendTailPass(...) = %q, want unchanged merged text", got)
	}
}

func TestAppendTailPassAddsNovelContent(t *testing.T) {
	merged := "we shipped to staging and validated smoke tests"
	tail := "completely new information never mentioned before now"
	got := appendTailPass(merged, tail)
	if !strings.Contains(got, "completely new information") {
		t.Errorf("appendTailPass(...) = %q, want novel tail content appended", got)
	}
}

func TestFallbackModelsPrefersCachedPrimaryWhenMaxAccuracyUncached(t *testing.T) {
	dir := t.TempDir()
	primaryPath := filepath.Join(dir, "primary.bin")
	if err := os.WriteFile(primaryPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(
		Model{Name: "primary", Path: primaryPath},
		Model{Name: "max-accuracy", Path: filepath.Join(dir, "max-accuracy.bin")}, // never written, uncached
		Model{Name: "safe-fallback", Path: filepath.Join(dir, "safe.bin")},
		"en",
	)

	got := e.FallbackModels(true)
	if len(got) < 2 || got[0].Name != "primary" || got[1].Name != "max-accuracy" {
		t.Errorf("FallbackModels(true) = %+v, want primary first then max-accuracy", got)
	}
}

func TestFallbackModelsDeduplicatesActiveAndPrimary(t *testing.T) {
	e := NewEngine(
		Model{Name: "primary", Path: "/models/primary.bin"},
		Model{Name: "max-accuracy", Path: "/models/max.bin"},
		Model{Name: "safe-fallback", Path: "/models/safe.bin"},
		"en",
	)

	got := e.FallbackModels(false)
	if len(got) != 3 {
		t.Errorf("FallbackModels(false) = %+v, want 3 deduplicated candidates (active starts as primary)", got)
	}
}
