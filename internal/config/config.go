// Package config loads and persists the dictation core's user-facing
// settings: the enumerated options from spec.md §3, plus the
// auto-mode-switch and deprecated-model migration behavior carried over
// from the original implementation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultSTTModel             = "ggml-large-v3-turbo"
	DefaultMaxAccuracySTTModel  = "ggml-large-v3"
	DefaultSafeFallbackSTTModel = "ggml-base"
	DefaultRefinerModel         = "qwen2.5:1.5b-instruct"
	DefaultLanguage             = "en"
)

// deprecatedModelAliases maps retired model identifiers to their
// current replacement. Loading a config that references one of these
// rewrites it and persists the migration, mirroring config.py's
// handling of deprecated whisper_model values.
var deprecatedModelAliases = map[string]string{
	"ggml-large-v2": DefaultSTTModel,
}

// deprecatedCleanupModeAliases mirrors the original's mode renames;
// normalize applies it to TranscriptionMode.
var deprecatedCleanupModeAliases = map[string]string{
	"general":         "normal",
	"english_german":  "auto",
}

// RecordingMode is push-to-talk or toggle (spec.md §3).
type RecordingMode string

const (
	RecordingPushToTalk RecordingMode = "push_to_talk"
	RecordingToggle     RecordingMode = "toggle"
)

// CleanupMode selects how aggressively the pipeline post-processes text.
type CleanupMode string

const (
	CleanupFast        CleanupMode = "fast"
	CleanupStandard    CleanupMode = "standard"
	CleanupMaxAccuracy CleanupMode = "max_accuracy"
)

// TranscriptionMode toggles programmer-only tagging and vocab hints.
type TranscriptionMode string

const (
	ModeNormal     TranscriptionMode = "normal"
	ModeProgrammer TranscriptionMode = "programmer"
)

// Config is the full set of enumerated options from spec.md §3, plus
// the auto_mode_switch / programmer_apps supplement from
// test_mode_inference.py.
type Config struct {
	RecordingMode      RecordingMode     `json:"recording_mode"`
	Hotkey             string            `json:"hotkey"`
	SilenceDurationMs  int               `json:"silence_duration_ms"`
	VADThreshold       float64           `json:"vad_threshold"`
	STTModel           string            `json:"stt_model"`
	MaxAccuracySTTModel string           `json:"max_accuracy_stt_model"`
	Language           string            `json:"language"`
	CleanupMode        CleanupMode       `json:"cleanup_mode"`
	RefinerModel       string            `json:"refiner_model"`
	RestoreClipboard   bool              `json:"restore_clipboard"`
	DictionaryPath     string            `json:"dictionary_path"`
	TranscriptionMode  TranscriptionMode `json:"transcription_mode"`
	AutoModeSwitch     bool              `json:"auto_mode_switch"`
	ProgrammerApps     []string          `json:"programmer_apps"`
	MinHoldMs          int               `json:"min_hold_ms"`
}

// Default returns the baked-in defaults. transcription_mode defaults to
// "programmer", matching the newer original behavior confirmed by
// test_mode_inference.py / test_stt_resilience.py (not the older
// "normal" default seen in the stale config.py snapshot).
func Default(supportDir string) Config {
	return Config{
		RecordingMode:       RecordingPushToTalk,
		Hotkey:              "right_cmd",
		SilenceDurationMs:   700,
		VADThreshold:        0.5,
		STTModel:            DefaultSTTModel,
		MaxAccuracySTTModel: DefaultMaxAccuracySTTModel,
		Language:            DefaultLanguage,
		CleanupMode:         CleanupStandard,
		RefinerModel:        DefaultRefinerModel,
		RestoreClipboard:    true,
		DictionaryPath:      filepath.Join(supportDir, "dictionary.json"),
		TranscriptionMode:   ModeProgrammer,
		AutoModeSwitch:      true,
		ProgrammerApps:      []string{"Terminal", "iTerm2", "Code", "Xcode"},
		MinHoldMs:           200,
	}
}

func (c *Config) normalize(supportDir string) (migrated bool) {
	if c.DictionaryPath == "" {
		c.DictionaryPath = filepath.Join(supportDir, "dictionary.json")
	}
	if repl, ok := deprecatedModelAliases[c.STTModel]; ok {
		c.STTModel = repl
		migrated = true
	}
	if c.STTModel == "" {
		c.STTModel = DefaultSTTModel
		migrated = true
	}
	if repl, ok := deprecatedModelAliases[c.MaxAccuracySTTModel]; ok {
		c.MaxAccuracySTTModel = repl
		migrated = true
	}
	if c.MaxAccuracySTTModel == "" {
		c.MaxAccuracySTTModel = DefaultMaxAccuracySTTModel
		migrated = true
	}
	if repl, ok := deprecatedCleanupModeAliases[string(c.TranscriptionMode)]; ok {
		c.TranscriptionMode = TranscriptionMode(repl)
		migrated = true
	}
	if c.RefinerModel == "" {
		c.RefinerModel = DefaultRefinerModel
		migrated = true
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
		migrated = true
	}
	return migrated
}

// Store owns a config file on disk, with fsnotify-driven hot reload so
// an external settings UI can edit the file without restarting the
// daemon.
type Store struct {
	mu         sync.RWMutex
	path       string
	supportDir string
	current    Config
	watcher    *fsnotify.Watcher
	onChange   func(Config)
}

// Open loads the config at path, creating it with defaults if absent,
// recovering to defaults if corrupted (ErrConfigCorruption-equivalent
// behavior), and persisting any alias migrations.
func Open(path string) (*Store, error) {
	supportDir := filepath.Dir(path)
	if err := os.MkdirAll(supportDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create support dir: %w", err)
	}

	s := &Store{path: path, supportDir: supportDir}

	cfg, corrupted, err := load(path, supportDir)
	if err != nil {
		return nil, err
	}
	s.current = cfg
	if corrupted {
		if err := s.save(cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func load(path, supportDir string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default(supportDir)
		cfg.normalize(supportDir)
		return cfg, true, nil
	}
	if err != nil {
		return Config{}, false, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(supportDir), true, nil
	}

	migrated := cfg.normalize(supportDir)
	return cfg, migrated, nil
}

func (s *Store) save(cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// Current returns a copy of the in-memory config.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the in-memory config and persists it.
func (s *Store) Update(cfg Config) error {
	s.mu.Lock()
	cfg.normalize(s.supportDir)
	s.current = cfg
	s.mu.Unlock()
	return s.save(cfg)
}

// Watch starts an fsnotify watch on the config file; onChange is
// invoked (from the watcher goroutine) after each external write that
// parses successfully. Watch is idempotent-safe to call once.
func (s *Store) Watch(onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("config: watch dir: %w", err)
	}
	s.watcher = w
	s.onChange = onChange

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, _, err := load(s.path, s.supportDir)
				if err != nil {
					continue
				}
				s.mu.Lock()
				s.current = cfg
				s.mu.Unlock()
				if s.onChange != nil {
					s.onChange(cfg)
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Close stops the watcher, if running.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
