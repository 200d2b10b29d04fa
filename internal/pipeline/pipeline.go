// Package pipeline coordinates the six-stage dictation pipeline:
// silence trim, VAD gate, speech-to-text, hallucination/prompt-echo
// filtering, deterministic cleanup, and optional LLM refinement.
// Grounded on original_source/tests/test_transcription_guards.py
// (the authoritative source for the guard thresholds -- the older
// original_source/app/transcription/__init__.py snapshot is missing
// several of the guards the tests exercise) and structured after the
// teacher's pkg/orchestrator/managed_stream.go staged-pipeline shape.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/voiceflow-go/dictation-core/internal/dictionary"
	"github.com/voiceflow-go/dictation-core/internal/stt"
	"github.com/voiceflow-go/dictation-core/internal/textclean"
)

const (
	silenceTrimThreshold = 0.01
	vadChunkSize         = 512
)

// sttEngine is the narrow surface Pipeline needs from *stt.Engine.
type sttEngine interface {
	Transcribe(audio []float32, techContext string) (string, error)
}

// vadDetector is the narrow surface Pipeline needs from *vad.Detector.
type vadDetector interface {
	SpeechProbability(ctx context.Context, chunk []float32) (float32, error)
}

// TextRefiner is the narrow surface Pipeline needs from
// *refiner.TextRefiner. Exported so callers can hold a nil TextRefiner
// interface value (fast cleanup mode) without the typed-nil-pointer
// trap of passing a nil *refiner.TextRefiner through an unexported
// interface parameter.
type TextRefiner interface {
	Refine(ctx context.Context, text string, vocabulary map[string]string) (string, error)
}

// modelManager is the narrow surface Pipeline needs from
// *modelmgr.Manager, to ensure the right model is hot before each
// STT/refiner call without Pipeline knowing anything about load/unload
// hooks itself.
type modelManager interface {
	PrepareForDictation()
	PrepareForRefinement()
}

// Pipeline runs one utterance through transcription, cleanup, and
// optional refinement. A Pipeline is safe for concurrent use:
// ProgrammerMode is stored in an atomic.Bool so a hotkey-driven
// auto-mode-switch goroutine can flip it while Process runs.
type Pipeline struct {
	STT          sttEngine
	VAD          vadDetector
	Refiner      TextRefiner // nil in fast cleanup mode
	Dictionary   *dictionary.Dictionary
	VADThreshold float32

	// Models is optional; when set, PrepareForDictation/PrepareForRefinement
	// are called around the STT/refiner use sites so only one model
	// family is ever loaded at a time.
	Models modelManager

	programmerMode atomic.Bool
}

// New constructs a Pipeline. refiner may be nil for fast cleanup mode,
// which skips LLM refinement entirely. vadThreshold of 0 defaults to 0.5.
func New(sttEngine sttEngine, vad vadDetector, refiner TextRefiner, dict *dictionary.Dictionary, programmerMode bool, vadThreshold float32) *Pipeline {
	if vadThreshold == 0 {
		vadThreshold = 0.5
	}
	p := &Pipeline{
		STT:          sttEngine,
		VAD:          vad,
		Refiner:      refiner,
		Dictionary:   dict,
		VADThreshold: vadThreshold,
	}
	p.programmerMode.Store(programmerMode)
	return p
}

// ProgrammerMode reports whether programmer-mode cleanup is currently active.
func (p *Pipeline) ProgrammerMode() bool {
	return p.programmerMode.Load()
}

// SetProgrammerMode flips programmer-mode cleanup, safe to call
// concurrently with Process (e.g. from an auto-mode-switch triggered
// by the frontmost app changing).
func (p *Pipeline) SetProgrammerMode(v bool) {
	p.programmerMode.Store(v)
}

// Process runs the full pipeline over one utterance of 16kHz mono
// float32 audio and returns the finalized text, or "" if no speech
// was detected or the transcript was a known hallucination/prompt echo.
func (p *Pipeline) Process(ctx context.Context, audio []float32) (string, error) {
	trimmed, _ := stt.TrimSilenceForDecode(audio, silenceTrimThreshold)

	if !p.hasSpeech(ctx, trimmed) {
		return "", nil
	}

	techContext := ""
	var terms map[string]string
	if p.Dictionary != nil {
		techContext = p.Dictionary.GetWhisperContext()
		terms = p.Dictionary.GetAllTerms()
	}

	if p.Models != nil {
		p.Models.PrepareForDictation()
	}
	raw, err := p.STT.Transcribe(trimmed, techContext)
	if err != nil {
		return "", fmt.Errorf("pipeline: transcribe: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if IsHallucination(raw) || IsPromptEcho(raw) {
		return "", nil
	}

	programmerMode := p.ProgrammerMode()
	cleaned := textclean.Clean(raw, terms, programmerMode)

	if p.Refiner != nil && ShouldRefine(cleaned, raw) {
		if p.Models != nil {
			p.Models.PrepareForRefinement()
		}
		refined, err := p.Refiner.Refine(ctx, cleaned, terms)
		if err == nil {
			refined = strings.TrimSpace(refined)
			if refined != "" && !IsSuspiciouslyShortRefinement(cleaned, refined) {
				cleaned = refined
			}
		}
	}

	return PreserveCompleteness(raw, cleaned, terms, programmerMode), nil
}

// hasSpeech runs the VAD model over fixed-size chunks and reports
// whether any chunk's speech probability clears VADThreshold.
func (p *Pipeline) hasSpeech(ctx context.Context, audio []float32) bool {
	if p.VAD == nil {
		return true
	}
	for i := 0; i+vadChunkSize <= len(audio); i += vadChunkSize {
		prob, err := p.VAD.SpeechProbability(ctx, audio[i:i+vadChunkSize])
		if err != nil {
			continue
		}
		if prob > p.VADThreshold {
			return true
		}
	}
	return false
}
