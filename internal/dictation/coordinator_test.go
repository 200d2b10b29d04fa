package dictation

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voiceflow-go/dictation-core/internal/config"
)

type fakeCapture struct {
	mu       sync.Mutex
	started  bool
	stopWith []float32
	drains   int
}

func (f *fakeCapture) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeCapture) Stop(trailingMs int) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return f.stopWith
}

func (f *fakeCapture) Drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
}

type fakePipeline struct {
	text string
	err  error
	// calls is incremented synchronously so tests can poll it.
	mu    sync.Mutex
	calls int
}

func (f *fakePipeline) Process(ctx context.Context, audio []float32) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.text, f.err
}

func (f *fakePipeline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeInserter struct {
	mu      sync.Mutex
	inserts []string
	err     error
}

func (f *fakeInserter) Insert(text string, restoreClipboard bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, text)
	return f.err
}

func (f *fakeInserter) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserts)
}

type fakeFrontmost struct {
	pid      int
	appName  string
	wmClass  string
	activate []int
}

func (f *fakeFrontmost) ActiveWindow() (int, string, string, error) {
	return f.pid, f.appName, f.wmClass, nil
}
func (f *fakeFrontmost) Remember(pid int) { f.pid = pid }
func (f *fakeFrontmost) Activate(pid int) error {
	f.activate = append(f.activate, pid)
	return nil
}

type fakeConfigStore struct {
	mu  sync.Mutex
	cfg config.Config
}

func (f *fakeConfigStore) Current() config.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeConfigStore) Update(cfg config.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}

type fakeModeSwitcher struct {
	mu    sync.Mutex
	calls []bool
}

func (f *fakeModeSwitcher) SetProgrammerMode(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, v)
}

func (f *fakeModeSwitcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func loudAudio(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.5
		} else {
			out[i] = -0.5
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestRecordingStartDrainsAndStartsCapture(t *testing.T) {
	capture := &fakeCapture{}
	c := New(capture, &fakePipeline{}, &fakeInserter{}, &fakeFrontmost{}, nil, nil, true)

	c.OnRecordingStart()

	if capture.drains != 1 {
		t.Errorf("drains = %d, want 1", capture.drains)
	}
	if !capture.started {
		t.Error("capture not started")
	}
}

func TestRecordingStopDropsSilentAudio(t *testing.T) {
	capture := &fakeCapture{stopWith: make([]float32, 16000)} // all zero, silent
	pipeline := &fakePipeline{text: "should not run"}
	c := New(capture, pipeline, &fakeInserter{}, &fakeFrontmost{}, nil, nil, true)

	c.OnRecordingStart()
	time.Sleep(400 * time.Millisecond) // exceed min recording duration
	c.OnRecordingStop(false)

	time.Sleep(50 * time.Millisecond)
	if pipeline.callCount() != 0 {
		t.Errorf("pipeline called %d times, want 0 for silent audio", pipeline.callCount())
	}
}

func TestRecordingStopDropsTooShortRecording(t *testing.T) {
	capture := &fakeCapture{stopWith: loudAudio(16000)}
	pipeline := &fakePipeline{text: "should not run"}
	c := New(capture, pipeline, &fakeInserter{}, &fakeFrontmost{}, nil, nil, true)

	c.OnRecordingStart()
	c.OnRecordingStop(false) // immediately, under the 300ms floor

	time.Sleep(50 * time.Millisecond)
	if pipeline.callCount() != 0 {
		t.Errorf("pipeline called %d times, want 0 for a too-short recording", pipeline.callCount())
	}
}

func TestRecordingStopCancelledSkipsPipeline(t *testing.T) {
	capture := &fakeCapture{stopWith: loudAudio(16000)}
	pipeline := &fakePipeline{text: "should not run"}
	c := New(capture, pipeline, &fakeInserter{}, &fakeFrontmost{}, nil, nil, true)

	c.OnRecordingStart()
	time.Sleep(400 * time.Millisecond)
	c.OnRecordingStop(true)

	time.Sleep(50 * time.Millisecond)
	if pipeline.callCount() != 0 {
		t.Errorf("pipeline called %d times, want 0 for a cancelled recording", pipeline.callCount())
	}
}

func TestRecordingStopRunsPipelineAndInserts(t *testing.T) {
	capture := &fakeCapture{stopWith: loudAudio(16000)}
	pipeline := &fakePipeline{text: "update the config file"}
	insert := &fakeInserter{}
	c := New(capture, pipeline, insert, &fakeFrontmost{}, nil, nil, true)

	c.OnRecordingStart()
	time.Sleep(400 * time.Millisecond)
	c.OnRecordingStop(false)

	waitFor(t, func() bool { return insert.insertCount() == 1 })
	insert.mu.Lock()
	got := insert.inserts[0]
	insert.mu.Unlock()
	if got != "update the config file" {
		t.Errorf("inserted %q, want %q", got, "update the config file")
	}
}

func TestDropsRecordingStartWhileProcessing(t *testing.T) {
	capture := &fakeCapture{stopWith: loudAudio(16000)}
	pipeline := &slowPipeline{delay: 200 * time.Millisecond}
	c := New(capture, pipeline, &fakeInserter{}, &fakeFrontmost{}, nil, nil, true)

	c.OnRecordingStart()
	time.Sleep(400 * time.Millisecond)
	c.OnRecordingStop(false) // dispatches a slow pipeline run in the background

	// A second start while the first transcription is still processing
	// must be dropped rather than starting a concurrent capture.
	c.OnRecordingStart()
	if capture.drains != 1 {
		t.Errorf("drains = %d, want 1 (second start should have been dropped)", capture.drains)
	}
}

type slowPipeline struct {
	delay time.Duration
}

func (s *slowPipeline) Process(ctx context.Context, audio []float32) (string, error) {
	time.Sleep(s.delay)
	return "done", nil
}

func TestDebugAudioDirDumpsProcessedUtterance(t *testing.T) {
	dir := t.TempDir()
	capture := &fakeCapture{stopWith: loudAudio(16000)}
	pipeline := &fakePipeline{text: "hello world"}
	insert := &fakeInserter{}
	c := New(capture, pipeline, insert, &fakeFrontmost{}, nil, nil, true)
	c.DebugAudioDir = dir

	c.OnRecordingStart()
	time.Sleep(400 * time.Millisecond)
	c.OnRecordingStop(false)

	waitFor(t, func() bool { return insert.insertCount() == 1 })

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading debug dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".wav" {
		t.Errorf("dumped file %q is not a .wav", entries[0].Name())
	}
}

func TestRecordingStartActivatesTargetAtStop(t *testing.T) {
	capture := &fakeCapture{stopWith: loudAudio(16000)}
	pipeline := &fakePipeline{text: "hello world"}
	insert := &fakeInserter{}
	frontmost := &fakeFrontmost{pid: 4242}
	c := New(capture, pipeline, insert, frontmost, nil, nil, true)

	c.OnRecordingStart()
	time.Sleep(400 * time.Millisecond)
	c.OnRecordingStop(false)

	waitFor(t, func() bool { return insert.insertCount() == 1 })
	if len(frontmost.activate) == 0 || frontmost.activate[0] != 4242 {
		t.Errorf("activate calls = %v, want the remembered pid 4242 reactivated", frontmost.activate)
	}
}

func TestAutoModeSwitchFlipsProgrammerModeForCodingApp(t *testing.T) {
	capture := &fakeCapture{}
	store := &fakeConfigStore{cfg: config.Config{
		AutoModeSwitch:    true,
		TranscriptionMode: config.ModeNormal,
		ProgrammerApps:    []string{"terminal", "codex"},
	}}
	switcher := &fakeModeSwitcher{}
	frontmost := &fakeFrontmost{appName: "iTerm2", wmClass: "iterm2"}
	c := New(capture, &fakePipeline{}, &fakeInserter{}, frontmost, nil, nil, true)
	c.ConfigStore = store
	c.ModeSwitcher = switcher

	c.OnRecordingStart()

	if switcher.callCount() != 1 {
		t.Fatalf("SetProgrammerMode calls = %d, want 1", switcher.callCount())
	}
	if store.Current().TranscriptionMode != config.ModeProgrammer {
		t.Errorf("persisted mode = %q, want %q", store.Current().TranscriptionMode, config.ModeProgrammer)
	}
}

func TestAutoModeSwitchNoopWhenDisabled(t *testing.T) {
	capture := &fakeCapture{}
	store := &fakeConfigStore{cfg: config.Config{
		AutoModeSwitch:    false,
		TranscriptionMode: config.ModeNormal,
		ProgrammerApps:    []string{"terminal"},
	}}
	switcher := &fakeModeSwitcher{}
	frontmost := &fakeFrontmost{appName: "Terminal", wmClass: "terminal"}
	c := New(capture, &fakePipeline{}, &fakeInserter{}, frontmost, nil, nil, true)
	c.ConfigStore = store
	c.ModeSwitcher = switcher

	c.OnRecordingStart()

	if switcher.callCount() != 0 {
		t.Errorf("SetProgrammerMode calls = %d, want 0 when auto_mode_switch is disabled", switcher.callCount())
	}
	if store.Current().TranscriptionMode != config.ModeNormal {
		t.Errorf("persisted mode = %q, want unchanged %q", store.Current().TranscriptionMode, config.ModeNormal)
	}
}

func TestAutoModeSwitchNoopForNonCodingApp(t *testing.T) {
	capture := &fakeCapture{}
	store := &fakeConfigStore{cfg: config.Config{
		AutoModeSwitch:    true,
		TranscriptionMode: config.ModeNormal,
		ProgrammerApps:    []string{"terminal", "codex"},
	}}
	switcher := &fakeModeSwitcher{}
	frontmost := &fakeFrontmost{appName: "Notes", wmClass: "notes"}
	c := New(capture, &fakePipeline{}, &fakeInserter{}, frontmost, nil, nil, true)
	c.ConfigStore = store
	c.ModeSwitcher = switcher

	c.OnRecordingStart()

	if switcher.callCount() != 0 {
		t.Errorf("SetProgrammerMode calls = %d, want 0 for a non-coding app", switcher.callCount())
	}
}
