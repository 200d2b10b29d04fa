package dictation

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voiceflow-go/dictation-core/internal/audio"
	"github.com/voiceflow-go/dictation-core/internal/config"
)

const (
	minRecordingDuration = 300 * time.Millisecond
	silenceRMSFloor      = 0.003
	appSwitchSettle      = 150 * time.Millisecond
)

// audioCapture is the narrow surface Coordinator needs from
// *audio.AudioCapture.
type audioCapture interface {
	Start(ctx context.Context) error
	Stop(trailingMs int) []float32
	Drain()
}

// transcriptionPipeline is the narrow surface Coordinator needs from
// *pipeline.Pipeline.
type transcriptionPipeline interface {
	Process(ctx context.Context, audio []float32) (string, error)
}

// textInserter is the narrow surface Coordinator needs from
// *inserter.TextInserter.
type textInserter interface {
	Insert(text string, restoreClipboard bool) error
}

// frontmostApp is the narrow surface Coordinator needs from
// *platform.linuxFrontmostApp (via platform.FrontmostApp).
type frontmostApp interface {
	ActiveWindow() (pid int, appName, wmClass string, err error)
	Remember(pid int)
	Activate(pid int) error
}

// configStore is the narrow surface Coordinator needs from
// *config.Store, for reading and persisting an auto-switched
// transcription mode.
type configStore interface {
	Current() config.Config
	Update(config.Config) error
}

// modeSwitcher is the narrow surface Coordinator needs from
// *pipeline.Pipeline, to flip programmer mode without restarting the
// daemon.
type modeSwitcher interface {
	SetProgrammerMode(bool)
}

// signals is the narrow surface Coordinator needs from
// *signalhub.Hub, for UI state transitions.
type signals interface {
	EmitRecordingStarted()
	EmitRecordingStopped()
	EmitTranscriptionComplete(text string)
	EmitError(title, message string)
}

// Logger is the narrow surface Coordinator needs for diagnostics.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Coordinator owns one recording-through-paste cycle at a time. Wire
// its On* methods as a hotkey.Listener's onRecordingStart/onRecordingStop
// callbacks.
type Coordinator struct {
	Capture          audioCapture
	Pipeline         transcriptionPipeline
	Inserter         textInserter
	FrontmostApp     frontmostApp
	Signals          signals // may be nil
	Logger           Logger  // may be nil
	RestoreClipboard bool
	DebugAudioDir    string // if set, each processed utterance is dumped here as WAV

	// ConfigStore and ModeSwitcher are optional; when both are set and
	// the config's AutoModeSwitch is on, OnRecordingStart infers
	// programmer mode from the frontmost app and flips it live.
	ConfigStore  configStore
	ModeSwitcher modeSwitcher

	processing     atomic.Bool
	mu             sync.Mutex
	recordingStart time.Time
	targetPID      int
}

// New constructs a Coordinator. signals and logger may be nil.
func New(capture audioCapture, pipeline transcriptionPipeline, inserter textInserter, frontmost frontmostApp, sig signals, logger Logger, restoreClipboard bool) *Coordinator {
	return &Coordinator{
		Capture:          capture,
		Pipeline:         pipeline,
		Inserter:         inserter,
		FrontmostApp:     frontmost,
		Signals:          sig,
		Logger:           logger,
		RestoreClipboard: restoreClipboard,
	}
}

// OnRecordingStart begins capturing audio. It drops the request if a
// previous transcription is still processing (spec.md 4.9's guard),
// remembers the frontmost application so it can be restored after
// paste, and transitions the UI to "Recording".
func (c *Coordinator) OnRecordingStart() {
	if c.processing.Load() {
		c.logWarn("dictation: dropping recording start, previous transcription still processing")
		return
	}

	if c.FrontmostApp != nil {
		if pid, appName, wmClass, err := c.FrontmostApp.ActiveWindow(); err == nil {
			c.mu.Lock()
			c.targetPID = pid
			c.mu.Unlock()
			c.FrontmostApp.Remember(pid)
			c.maybeSwitchMode(appName, wmClass)
		}
	}

	c.Capture.Drain()
	if err := c.Capture.Start(context.Background()); err != nil {
		c.logError("dictation: failed to start audio capture", "error", err)
		if c.Signals != nil {
			c.Signals.EmitError("Microphone unavailable", err.Error())
		}
		return
	}

	c.mu.Lock()
	c.recordingStart = time.Now()
	c.mu.Unlock()

	if c.Signals != nil {
		c.Signals.EmitRecordingStarted()
	}
}

// OnRecordingStop stops capture and, unless cancelled or the audio
// fails the duration/silence guards, hands the waveform to the
// pipeline on a worker goroutine. processing is already held by the
// time this returns if a pipeline run was dispatched; it is released
// only once paste completes (or is skipped).
func (c *Coordinator) OnRecordingStop(cancelled bool) {
	samples := c.Capture.Stop(defaultTrailingMs)

	if c.Signals != nil {
		c.Signals.EmitRecordingStopped()
	}

	if cancelled {
		return
	}

	c.mu.Lock()
	duration := time.Since(c.recordingStart)
	c.mu.Unlock()

	if duration < minRecordingDuration {
		c.logInfo("dictation: discarding recording shorter than the minimum duration", "duration", duration)
		return
	}
	if computeRMS(samples) < silenceRMSFloor {
		c.logInfo("dictation: discarding silent recording")
		return
	}

	if !c.processing.CompareAndSwap(false, true) {
		c.logWarn("dictation: dropping recording stop, a transcription is already in flight")
		return
	}

	go c.runPipeline(samples)
}

const defaultTrailingMs = 400

func (c *Coordinator) runPipeline(samples []float32) {
	defer c.processing.Store(false)

	c.dumpDebugAudio(samples)

	text, err := c.Pipeline.Process(context.Background(), samples)
	if err != nil {
		c.logError("dictation: pipeline failed", "error", err)
		if c.Signals != nil {
			c.Signals.EmitError("Dictation failed", err.Error())
		}
		return
	}
	if text == "" {
		return
	}

	if c.Signals != nil {
		c.Signals.EmitTranscriptionComplete(text)
	}

	c.reactivateTarget()
	time.Sleep(appSwitchSettle)

	if err := c.Inserter.Insert(text, c.RestoreClipboard); err != nil {
		c.logWarn("dictation: paste failed, text left on clipboard", "error", err)
		if c.Signals != nil {
			c.Signals.EmitError("Paste failed", err.Error())
		}
	}
}

// reactivateTarget restores focus to the app pid remembered at
// recording-start, retrying once if it still isn't frontmost
// afterward, per spec.md section 4.9.
func (c *Coordinator) reactivateTarget() {
	if c.FrontmostApp == nil {
		return
	}
	c.mu.Lock()
	pid := c.targetPID
	c.mu.Unlock()
	if pid == 0 {
		return
	}
	if err := c.FrontmostApp.Activate(pid); err != nil {
		// retry once
		_ = c.FrontmostApp.Activate(pid)
		return
	}
	if active, _, _, err := c.FrontmostApp.ActiveWindow(); err == nil && active != pid {
		_ = c.FrontmostApp.Activate(pid)
	}
}

// maybeSwitchMode infers the desired transcription mode from the
// frontmost app's name/WM class and flips the live pipeline and
// persisted config when it differs from the current one. No-ops
// unless both ConfigStore and ModeSwitcher are wired and the config
// has AutoModeSwitch enabled.
func (c *Coordinator) maybeSwitchMode(appName, wmClass string) {
	if c.ConfigStore == nil || c.ModeSwitcher == nil {
		return
	}
	cfg := c.ConfigStore.Current()
	if !cfg.AutoModeSwitch {
		return
	}
	desired := InferTranscriptionMode(appName, wmClass, cfg.ProgrammerApps)
	if desired == cfg.TranscriptionMode {
		return
	}
	c.ModeSwitcher.SetProgrammerMode(desired == config.ModeProgrammer)
	cfg.TranscriptionMode = desired
	if err := c.ConfigStore.Update(cfg); err != nil {
		c.logWarn("dictation: failed to persist auto-switched transcription mode", "error", err)
	} else {
		c.logInfo("dictation: auto-switched transcription mode", "mode", desired, "app", appName)
	}
}

// dumpDebugAudio writes the utterance to DebugAudioDir as a WAV file,
// named by recording start time, when debug dumping is enabled.
func (c *Coordinator) dumpDebugAudio(samples []float32) {
	if c.DebugAudioDir == "" {
		return
	}
	c.mu.Lock()
	start := c.recordingStart
	c.mu.Unlock()

	name := fmt.Sprintf("utterance-%d.wav", start.UnixNano())
	path := filepath.Join(c.DebugAudioDir, name)
	if err := os.WriteFile(path, audio.EncodeWAV(samples, audio.SampleRate), 0o644); err != nil {
		c.logWarn("dictation: failed to write debug audio dump", "error", err, "path", path)
	}
}

func computeRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func (c *Coordinator) logInfo(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Info(msg, args...)
	}
}

func (c *Coordinator) logWarn(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Warn(msg, args...)
	}
}

func (c *Coordinator) logError(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Error(msg, args...)
	}
}
