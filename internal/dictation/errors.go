// Package dictation owns the recording lifecycle: hotkey events in,
// clipboard paste out. Grounded on spec.md section 4.9 directly (no
// original_source equivalent file -- VoiceFlowApp in the Python app is
// a monolithic Qt controller, not a standalone coordinator module) and
// on the teacher's pkg/orchestrator package for its
// guard-then-dispatch-to-worker-goroutine shape.
package dictation

import "errors"

// Error kinds from spec.md §7. These are sentinel values, not types --
// callers wrap them with fmt.Errorf("%w: %v", ErrX, cause) and compare
// with errors.Is.
var (
	// ErrDevice covers microphone open/stop failures. Not recoverable
	// locally; the coordinator reports it to the signal hub.
	ErrDevice = errors.New("audio device error")

	// ErrVADModel covers VAD load/inference failures. Fatal to the
	// current utterance.
	ErrVADModel = errors.New("vad model error")

	// ErrSTT covers a single STT candidate's transcription failure.
	// Recovered via the fallback chain; surfaced only when every
	// candidate has failed.
	ErrSTT = errors.New("speech-to-text error")

	// ErrRefiner covers a single refiner call failure. Always
	// recovered by keeping the deterministic clean; never user-visible.
	ErrRefiner = errors.New("refiner error")

	// ErrPaste covers TextInserter failures. The text remains on the
	// clipboard.
	ErrPaste = errors.New("paste error")

	// ErrAccessibilityRequired means the OS accessibility trust probe
	// failed. Paste is skipped; text stays on the clipboard.
	ErrAccessibilityRequired = errors.New("accessibility permission required")

	// ErrConfigCorruption means the config file failed to parse.
	// Recovered by falling back to defaults and rewriting the file.
	ErrConfigCorruption = errors.New("config file corrupted")

	// ErrModelIntegrity means a model file failed its pinned SHA-256
	// check. Not recoverable; refuse to use the model.
	ErrModelIntegrity = errors.New("model integrity check failed")
)
