package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	cfg := store.Current()
	if cfg.TranscriptionMode != ModeProgrammer {
		t.Errorf("default transcription mode = %q, want %q", cfg.TranscriptionMode, ModeProgrammer)
	}
	if cfg.STTModel != DefaultSTTModel {
		t.Errorf("default stt model = %q, want %q", cfg.STTModel, DefaultSTTModel)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be written: %v", err)
	}
}

func TestOpenMigratesDeprecatedModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	raw := map[string]any{
		"stt_model": "ggml-large-v2",
	}
	data, _ := json.Marshal(raw)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	cfg := store.Current()
	if cfg.STTModel != DefaultSTTModel {
		t.Errorf("expected migration to %q, got %q", DefaultSTTModel, cfg.STTModel)
	}

	persisted, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk Config
	if err := json.Unmarshal(persisted, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.STTModel != DefaultSTTModel {
		t.Errorf("migration not persisted: %q", onDisk.STTModel)
	}
}

func TestOpenRecoversFromCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	cfg := store.Current()
	if cfg.RecordingMode != RecordingPushToTalk {
		t.Errorf("expected default recording mode after corruption recovery, got %q", cfg.RecordingMode)
	}
}

func TestUpdatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := store.Current()
	cfg.Hotkey = "left_ctrl"
	if err := store.Update(cfg); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.Current().Hotkey != "left_ctrl" {
		t.Errorf("hotkey not persisted, got %q", reopened.Current().Hotkey)
	}
}
