// Package stt transcribes finalized utterances to text using
// whisper.cpp, with a primary/max-accuracy/safe-fallback model chain,
// long-audio chunking with overlap stitching, and an optional tail
// pass. Ported from original_source/app/transcription/whisper_engine.py
// and the chunking/merge logic in
// original_source/tests/test_transcription_guards.py.
package stt

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

const (
	sampleRate = 16000

	// compressionRatioThreshold mirrors mlx_whisper's decode guard: text
	// that compresses far better than ordinary speech is almost always a
	// degenerate, looping decode. logprobThreshold and noSpeechThreshold
	// are retained for parity with the original tuning; this binding
	// doesn't surface per-segment logprob or no-speech probability, so
	// only the compression-ratio guard can actually run here.
	compressionRatioThreshold = 2.4
	logprobThreshold          = -1.0
	noSpeechThreshold         = 0.6

	chunkTriggerSeconds = 75.0
	chunkSeconds        = 42.0
	chunkOverlapSamples = 19200 // 1.2s @ 16kHz
	minTailChunkSeconds = 12.0
	silenceSearchWindow = 8000 // +/-8000 samples around a chunk boundary

	tailPassTriggerSeconds = 95.0
	tailPassSeconds        = 24.0
	tailProbeTokens        = 12
)

// temperatureSchedule holds the full adaptive-temperature ladder;
// temperatureScheduleFor slices it down per audio duration.
var temperatureSchedule = []float32{0.0, 0.2, 0.4}

// temperatureScheduleFor returns the decode-retry temperatures for an
// utterance of the given sample count: a single pass under 15s, two
// tiers under 45s, and the full three-tier ladder beyond that.
func temperatureScheduleFor(numSamples int) []float32 {
	seconds := float64(numSamples) / sampleRate
	switch {
	case seconds < 15:
		return temperatureSchedule[:1]
	case seconds < 45:
		return temperatureSchedule[:2]
	default:
		return temperatureSchedule
	}
}

// ErrSTT wraps all transcription failures across the model chain.
var ErrSTT = errors.New("stt: transcription failed")

// Model identifies one link in the fallback chain.
type Model struct {
	Name string
	Path string
}

// Engine holds lazily-loaded whisper.cpp models for the primary,
// max-accuracy, and safe-fallback candidates.
type Engine struct {
	Primary      Model
	MaxAccuracy  Model
	SafeFallback Model
	Language     string // "auto" or an ISO code

	mu       sync.Mutex
	loaded   map[string]whisperlib.Model
	warmedUp map[string]bool
	active   Model
}

// NewEngine constructs an Engine; models are loaded lazily on first use.
func NewEngine(primary, maxAccuracy, safeFallback Model, language string) *Engine {
	return &Engine{
		Primary:      primary,
		MaxAccuracy:  maxAccuracy,
		SafeFallback: safeFallback,
		Language:     language,
		loaded:       make(map[string]whisperlib.Model),
		warmedUp:     make(map[string]bool),
		active:       primary,
	}
}

// FallbackModels returns the ordered, deduplicated candidate chain to
// try: active first, then primary, max-accuracy, and safe-fallback.
// For forWarmUp, an uncached max-accuracy candidate is demoted behind
// an already-cached primary, so warm-up doesn't block startup on
// downloading a model that isn't on disk yet.
func (e *Engine) FallbackModels(forWarmUp bool) []Model {
	e.mu.Lock()
	active := e.active
	primary := e.Primary
	maxAccuracy := e.MaxAccuracy
	safeFallback := e.SafeFallback
	e.mu.Unlock()

	ordered := []Model{active, primary, maxAccuracy, safeFallback}
	if forWarmUp && !e.isCached(maxAccuracy) && e.isCached(primary) {
		ordered = []Model{primary, maxAccuracy, active, safeFallback}
	}
	return dedupeModels(ordered)
}

// isCached reports whether m's model file is already present on disk.
func (e *Engine) isCached(m Model) bool {
	if m.Path == "" {
		return false
	}
	_, err := os.Stat(m.Path)
	return err == nil
}

func dedupeModels(models []Model) []Model {
	seen := make(map[string]bool, len(models))
	out := make([]Model, 0, len(models))
	for _, m := range models {
		if m.Path == "" || seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		out = append(out, m)
	}
	return out
}

func (e *Engine) modelFor(m Model) (whisperlib.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if wm, ok := e.loaded[m.Path]; ok {
		return wm, nil
	}
	wm, err := whisperlib.New(m.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrSTT, m.Name, err)
	}
	e.loaded[m.Path] = wm
	return wm, nil
}

// WarmUp runs a dummy inference to initialize the inference pipeline
// ahead of the first real dictation, preferring an already-cached
// model over the nominal first candidate so startup never blocks on a
// download.
func (e *Engine) WarmUp() error {
	var lastErr error
	for _, m := range e.FallbackModels(true) {
		e.mu.Lock()
		already := e.warmedUp[m.Path]
		e.mu.Unlock()
		if already {
			e.mu.Lock()
			e.active = m
			e.mu.Unlock()
			return nil
		}
		dummy := make([]float32, sampleRate) // 1s of silence
		if _, err := e.transcribeOnce(m, dummy, ""); err != nil {
			lastErr = fmt.Errorf("warm-up failed for %s: %w", m.Name, err)
			continue
		}
		e.mu.Lock()
		e.warmedUp[m.Path] = true
		e.active = m
		e.mu.Unlock()
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no model candidates configured")
	}
	return fmt.Errorf("%w: %v", ErrSTT, lastErr)
}

// Transcribe runs the adaptive long-audio pipeline (chunk, stitch,
// optional tail pass) against the active candidate, falling back
// through the rest of the chain on failure and atomically swapping
// active to whichever candidate succeeds.
func (e *Engine) Transcribe(audio []float32, techContext string) (string, error) {
	return e.transcribeWithFallback(audio, techContext)
}

func (e *Engine) transcribeWithFallback(audio []float32, techContext string) (string, error) {
	var lastErr error
	var failedKinds []string
	for _, m := range e.FallbackModels(false) {
		text, err := e.transcribeAdaptive(m, audio, techContext)
		if err == nil {
			e.mu.Lock()
			e.active = m
			e.mu.Unlock()
			return text, nil
		}
		lastErr = err
		failedKinds = append(failedKinds, m.Name)
	}
	if lastErr == nil {
		return "", fmt.Errorf("%w: no model candidates configured", ErrSTT)
	}
	return "", fmt.Errorf("%w: all candidates failed (%s): %v", ErrSTT, strings.Join(failedKinds, ", "), lastErr)
}

// transcribeAdaptive splits long audio into overlapping chunks,
// transcribes each, stitches the results together, and -- for
// recordings at or beyond tailPassTriggerSeconds -- folds in an
// independently decoded tail pass that the chunk boundaries may have
// missed.
func (e *Engine) transcribeAdaptive(m Model, audio []float32, techContext string) (string, error) {
	chunks := SplitForLongTranscription(audio)

	var merged string
	if len(chunks) <= 1 {
		text, err := e.transcribeOnce(m, audio, techContext)
		if err != nil {
			return "", err
		}
		merged = text
	} else {
		parts := make([]string, 0, len(chunks))
		for _, chunk := range chunks {
			text, err := e.transcribeOnce(m, chunk, techContext)
			if err != nil {
				return "", err
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
		merged = MergeTranscriptParts(parts)
	}

	if len(audio) >= int(tailPassTriggerSeconds*sampleRate) {
		tailStart := len(audio) - int(tailPassSeconds*sampleRate)
		if tailStart < 0 {
			tailStart = 0
		}
		tailText, err := e.transcribeOnce(m, audio[tailStart:], techContext)
		if err == nil && tailText != "" {
			merged = appendTailPass(merged, tailText)
		}
	}

	return merged, nil
}

// appendTailPass folds an independently-decoded tail pass into merged
// only if the tail pass's opening tailProbeTokens words aren't already
// present in merged -- otherwise the tail pass just re-covers ground
// the main pass already had, and appending it would duplicate content.
func appendTailPass(merged, tailText string) string {
	tailWords := strings.Fields(tailText)
	probeLen := tailProbeTokens
	if probeLen > len(tailWords) {
		probeLen = len(tailWords)
	}
	probe := strings.Join(tailWords[:probeLen], " ")
	if IsTailCovered(merged, probe) {
		return merged
	}
	return mergeOverlap(merged, tailText)
}

// transcribeOnce decodes audio once, retrying at progressively higher
// temperatures per temperatureScheduleFor when the result looks like a
// decode failure -- the standard compression-ratio/logprob retry
// fallback Whisper-style decoders apply.
func (e *Engine) transcribeOnce(m Model, audio []float32, techContext string) (string, error) {
	model, err := e.modelFor(m)
	if err != nil {
		return "", err
	}

	var lastText string
	for _, temp := range temperatureScheduleFor(len(audio)) {
		text, err := e.decodeAt(model, audio, techContext, temp)
		if err != nil {
			return "", err
		}
		lastText = text
		if !looksLikeDecodeFailure(text) {
			return text, nil
		}
	}
	return lastText, nil
}

func (e *Engine) decodeAt(model whisperlib.Model, audio []float32, techContext string, temperature float32) (string, error) {
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: create context: %v", ErrSTT, err)
	}

	lang := e.Language
	if lang != "" && lang != "auto" {
		if err := wctx.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("%w: set language: %v", ErrSTT, err)
		}
	}

	prompt := buildPrompt(lang, techContext)
	if withPrompt, ok := wctx.(interface{ SetInitialPrompt(string) }); ok {
		withPrompt.SetInitialPrompt(prompt)
	}
	if withTemp, ok := wctx.(interface{ SetTemperature(float32) }); ok {
		withTemp.SetTemperature(temperature)
	}

	if err := wctx.Process(audio, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: process: %v", ErrSTT, err)
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: read segment: %v", ErrSTT, err)
		}
		text := strings.TrimSpace(seg.Text)
		if text != "" {
			segments = append(segments, text)
		}
	}
	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// looksLikeDecodeFailure flags output so repetitive it compresses far
// better than ordinary speech -- the standard guard against
// degenerate, looping decodes. Empty output is not retried into: a
// higher temperature only helps a decode that produced something.
func looksLikeDecodeFailure(text string) bool {
	if text == "" {
		return false
	}
	return compressionRatio(text) > compressionRatioThreshold
}

func compressionRatio(text string) float64 {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write([]byte(text))
	w.Close()
	if buf.Len() == 0 {
		return 0
	}
	return float64(len(text)) / float64(buf.Len())
}

func buildPrompt(language, techContext string) string {
	var base string
	switch language {
	case "de":
		base = "Die folgende Aufnahme stammt aus einer Softwareentwicklungssitzung. " +
			"Bitte klar und korrekt transkribieren."
	case "auto", "":
		base = "This is a software development dictation in English or German. " +
			"Transcribe clearly with natural punctuation."
	default:
		base = "The following is a clean, well-punctuated transcription " +
			"from a software development session."
	}
	if techContext != "" {
		return base + " " + techContext
	}
	return base
}

// Close releases all loaded models and clears warm-up state, so a
// subsequent WarmUp reloads and re-warms whichever candidate is
// switched back in.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for path, m := range e.loaded {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.loaded, path)
	}
	e.warmedUp = make(map[string]bool)
	e.active = e.Primary
	return firstErr
}

// SplitForLongTranscription splits audio at or beyond
// chunkTriggerSeconds into overlapping chunks of chunkSeconds, nudging
// each boundary to the quietest nearby sample so chunk cuts don't land
// mid-word. The final chunk is merged into the previous one if it
// would be shorter than minTailChunkSeconds.
func SplitForLongTranscription(audio []float32) [][]float32 {
	if len(audio) < int(chunkTriggerSeconds*sampleRate) {
		return [][]float32{audio}
	}

	chunkLen := int(chunkSeconds * sampleRate)

	var chunks [][]float32
	start := 0
	for start < len(audio) {
		end := start + chunkLen
		if end >= len(audio) {
			chunks = append(chunks, audio[start:])
			break
		}
		end = quietestNearby(audio, end)
		chunks = append(chunks, audio[start:end])
		start = end - chunkOverlapSamples
		if start < 0 {
			start = end
		}
	}

	if len(chunks) >= 2 {
		last := chunks[len(chunks)-1]
		if len(last) < int(minTailChunkSeconds*sampleRate) {
			prev := chunks[len(chunks)-2]
			merged := append(append([]float32(nil), prev...), last...)
			chunks = chunks[:len(chunks)-2]
			chunks = append(chunks, merged)
		}
	}
	return chunks
}

// quietestNearby searches +/- silenceSearchWindow samples around pos
// for the lowest-energy point, to use as a chunk boundary.
func quietestNearby(audio []float32, pos int) int {
	lo := pos - silenceSearchWindow
	if lo < 0 {
		lo = 0
	}
	hi := pos + silenceSearchWindow
	if hi > len(audio) {
		hi = len(audio)
	}
	if hi <= lo {
		return pos
	}

	const window = 320 // 20ms
	best := pos
	bestEnergy := -1.0
	for i := lo; i+window <= hi; i += window {
		var sum float64
		for _, s := range audio[i : i+window] {
			sum += float64(s) * float64(s)
		}
		if bestEnergy < 0 || sum < bestEnergy {
			bestEnergy = sum
			best = i
		}
	}
	return best
}

// MergeTranscriptParts stitches adjacent chunk transcripts together,
// removing the duplicated words that fall in the overlap region by
// finding the longest suffix of part[i] that prefixes part[i+1].
func MergeTranscriptParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	merged := parts[0]
	for i := 1; i < len(parts); i++ {
		merged = mergeOverlap(merged, parts[i])
	}
	return merged
}

func mergeOverlap(a, b string) string {
	aWords := strings.Fields(a)
	bWords := strings.Fields(b)
	k := FindTokenOverlap(aWords, bWords)
	if k == 0 {
		return strings.TrimSpace(a + " " + b)
	}
	return strings.TrimSpace(a + " " + strings.Join(bWords[k:], " "))
}

func normalizeWords(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = normalizeToken(w)
	}
	return strings.Join(out, " ")
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.Trim(s, ".,!?;:"))
}

// IsTailCovered reports whether tail's words already appear, in order
// and contiguously, anywhere in full (not only as its suffix), compared
// as normalized space-joined text -- used to decide whether an optional tail pass
// added new information or just re-covered ground the main pass had.
func IsTailCovered(full, tail string) bool {
	fullWords := normalizeWords(strings.Fields(full))
	tailWords := normalizeWords(strings.Fields(tail))
	if tailWords == "" {
		return true
	}
	return strings.HasSuffix(fullWords, tailWords) || strings.Contains(fullWords, tailWords)
}

// TrimSilenceForDecode trims leading/trailing near-silent audio before
// decoding, without cutting into detected speech, to reduce wasted
// inference time on long dead air.
func TrimSilenceForDecode(audio []float32, threshold float32) ([]float32, bool) {
	if len(audio) == 0 {
		return audio, false
	}
	const window = 1600 // 100ms
	start := 0
	for start+window <= len(audio) {
		if rms(audio[start:start+window]) > threshold {
			break
		}
		start += window
	}
	end := len(audio)
	for end-window >= start {
		if rms(audio[end-window:end]) > threshold {
			break
		}
		end -= window
	}
	if start == 0 && end == len(audio) {
		return audio, false
	}
	if start >= end {
		return audio, false
	}
	return audio[start:end], true
}

func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
