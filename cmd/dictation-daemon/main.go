// Command dictation-daemon runs the background dictation service: a
// global hotkey starts/stops recording, audio is transcribed and
// refined, and the result is pasted into the frontmost application.
// Grounded on the teacher's cmd/agent/main.go for its env-var-driven,
// godotenv-then-wire-everything-then-block-on-signals shape, adapted
// from a cloud STT/LLM/TTS voice agent to this local dictation stack;
// command-line flags are added via github.com/spf13/cobra, which the
// teacher's single-binary cmd/agent never needed.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	xhotkey "golang.design/x/hotkey"

	"github.com/voiceflow-go/dictation-core/internal/audio"
	"github.com/voiceflow-go/dictation-core/internal/config"
	"github.com/voiceflow-go/dictation-core/internal/dictation"
	"github.com/voiceflow-go/dictation-core/internal/dictionary"
	"github.com/voiceflow-go/dictation-core/internal/hotkey"
	"github.com/voiceflow-go/dictation-core/internal/inserter"
	"github.com/voiceflow-go/dictation-core/internal/metrics"
	"github.com/voiceflow-go/dictation-core/internal/modelmgr"
	"github.com/voiceflow-go/dictation-core/internal/pipeline"
	"github.com/voiceflow-go/dictation-core/internal/platform"
	"github.com/voiceflow-go/dictation-core/internal/refiner"
	"github.com/voiceflow-go/dictation-core/internal/signalhub"
	"github.com/voiceflow-go/dictation-core/internal/stt"
	"github.com/voiceflow-go/dictation-core/internal/vad"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath    string
		httpAddr      string
		envFile       string
		debugAudioDir string
	)

	cmd := &cobra.Command{
		Use:   "dictation-daemon",
		Short: "Runs the dictation hotkey daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, httpAddr, envFile, debugAudioDir)
		},
	}

	supportDir, _ := os.UserConfigDir()
	if supportDir != "" {
		supportDir = filepath.Join(supportDir, "dictation-core")
	}

	cmd.Flags().StringVar(&configPath, "config", filepath.Join(supportDir, "config.json"), "path to the config file")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "127.0.0.1:8743", "address for the metrics/signal WebSocket server")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "path to an optional .env file")
	cmd.Flags().StringVar(&debugAudioDir, "debug-audio-dir", "", "if set, dump every processed utterance here as a WAV file")

	return cmd
}

func run(configPath, httpAddr, envFile, debugAudioDir string) error {
	if err := godotenv.Load(envFile); err != nil {
		slog.Info("no .env file found, using system environment variables", "path", envFile)
	}

	logger := slog.Default()

	store, err := config.Open(configPath)
	if err != nil {
		return fmt.Errorf("dictation-daemon: opening config: %w", err)
	}
	defer store.Close()
	cfg := store.Current()

	dict, err := dictionary.Load(cfg.DictionaryPath, "")
	if err != nil {
		logger.Warn("dictation-daemon: loading dictionary, starting empty", "error", err)
		dict = dictionary.New()
	}

	hub := signalhub.New(logger)
	recorder := metrics.New()
	if err := recorder.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("dictation-daemon: registering metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/signals", hub.Handler)
	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("dictation-daemon: http server failed", "error", err)
		}
	}()
	defer httpServer.Close()

	sttEngine := stt.NewEngine(
		stt.Model{Name: cfg.STTModel},
		stt.Model{Name: cfg.MaxAccuracySTTModel},
		stt.Model{Name: "ggml-base"},
		cfg.Language,
	)

	vadCfg := vad.DefaultConfig()
	vadCfg.Threshold = float32(cfg.VADThreshold)
	vadCfg.SilenceDurationMs = cfg.SilenceDurationMs
	vadDetector := vad.New(vadCfg)
	defer vadDetector.Close()

	models := modelmgr.New(hub)
	models.Register(modelmgr.SlotSTT, modelmgr.Hooks{
		Load: func() {
			if err := sttEngine.WarmUp(); err != nil {
				logger.Warn("dictation-daemon: stt warm-up failed", "error", err)
			}
		},
		Unload: func() {
			if err := sttEngine.Close(); err != nil {
				logger.Warn("dictation-daemon: stt unload failed", "error", err)
			}
		},
	})

	// textRefiner stays a nil interface value (not a typed-nil pointer)
	// when refinement is unavailable, so pipeline.Pipeline's own
	// "p.Refiner != nil" guard works correctly.
	var textRefiner pipeline.TextRefiner
	if cfg.CleanupMode != config.CleanupFast {
		tr, err := refiner.New("", cfg.RefinerModel)
		if err != nil {
			logger.Warn("dictation-daemon: refiner unavailable, falling back to deterministic cleanup only", "error", err)
		} else {
			textRefiner = tr
			models.Register(modelmgr.SlotRefiner, modelmgr.Hooks{
				Load: func() {
					if err := tr.WarmUp(context.Background()); err != nil {
						logger.Warn("dictation-daemon: refiner warm-up failed", "error", err)
					}
				},
				Unload: func() {
					if err := tr.Unload(context.Background()); err != nil {
						logger.Warn("dictation-daemon: refiner unload failed", "error", err)
					}
				},
			})
		}
	}

	programmerMode := cfg.TranscriptionMode == config.ModeProgrammer
	pipe := pipeline.New(sttEngine, vadDetector, textRefiner, dict, programmerMode, float32(cfg.VADThreshold))
	pipe.Models = models

	capture := audio.New()

	ti := inserter.New(clipboardAdapter{}, pasterAdapter{probe: platform.NewAccessibilityProbe()})

	frontmost := platform.NewFrontmostApp()

	coordinator := dictation.New(capture, pipe, ti, frontmost, hub, slogAdapter{logger}, cfg.RestoreClipboard)
	coordinator.DebugAudioDir = debugAudioDir
	coordinator.ConfigStore = store
	coordinator.ModeSwitcher = pipe

	listener := hotkey.New(
		hotkeyModeFor(cfg.RecordingMode),
		cfg.MinHoldMs,
		300,
		coordinator.OnRecordingStart,
		coordinator.OnRecordingStop,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mods, key := resolveHotkey(cfg.Hotkey)
	globalHotkey := xhotkey.New(mods, key)
	if err := globalHotkey.Register(); err != nil {
		logger.Error("dictation-daemon: failed to register global hotkey, recording will not start", "hotkey", cfg.Hotkey, "error", err)
	} else {
		defer globalHotkey.Unregister()
		go pumpHotkeyEvents(ctx, globalHotkey, listener)
	}

	logger.Info("dictation-daemon started", "hotkey", cfg.Hotkey, "mode", cfg.RecordingMode, "http_addr", httpAddr)
	<-ctx.Done()
	logger.Info("dictation-daemon shutting down")
	return nil
}

func hotkeyModeFor(mode config.RecordingMode) hotkey.Mode {
	if mode == config.RecordingToggle {
		return hotkey.ModeToggle
	}
	return hotkey.ModePushToTalk
}

// resolveHotkey maps a config.Config.Hotkey name to the modifier/key
// combination golang.design/x/hotkey registers as a global hotkey.
// Unrecognized names fall back to the right_cmd default.
func resolveHotkey(name string) ([]xhotkey.Modifier, xhotkey.Key) {
	switch name {
	case "right_option", "right_alt":
		return []xhotkey.Modifier{xhotkey.ModOption}, xhotkey.Key(0)
	case "right_shift":
		return []xhotkey.Modifier{xhotkey.ModShift}, xhotkey.Key(0)
	case "right_ctrl", "right_control":
		return []xhotkey.Modifier{xhotkey.ModCtrl}, xhotkey.Key(0)
	case "f13":
		return nil, xhotkey.KeyF13
	case "f14":
		return nil, xhotkey.KeyF14
	default: // "right_cmd" and anything unrecognized
		return []xhotkey.Modifier{xhotkey.ModCmd}, xhotkey.Key(0)
	}
}

// pumpHotkeyEvents forwards hk's Keydown/Keyup channel events into
// listener's HandlePress/HandleRelease until ctx is cancelled, the
// thin adapter listener.go's doc comment describes as living in this
// package.
func pumpHotkeyEvents(ctx context.Context, hk *xhotkey.Hotkey, listener *hotkey.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Keydown():
			listener.HandlePress()
		case <-hk.Keyup():
			listener.HandleRelease()
		}
	}
}

// clipboardAdapter satisfies inserter.Clipboard over
// github.com/atotto/clipboard's package-level functions.
type clipboardAdapter struct{}

func (clipboardAdapter) ReadAll() (string, error) { return clipboard.ReadAll() }
func (clipboardAdapter) WriteAll(text string) error { return clipboard.WriteAll(text) }

// pasterAdapter satisfies inserter.Paster using the platform
// accessibility probe. SimulatePaste sends no keystroke: it returns
// nil without acting, so TextInserter carries on as if the paste had
// happened. Synthesizing the paste keystroke is compositor-specific
// (X11/Wayland); this adapter is the seam a platform build tag would
// fill in.
type pasterAdapter struct {
	probe platform.AccessibilityProbe
}

func (p pasterAdapter) AccessibilityTrusted() bool { return p.probe.Trusted() }
func (p pasterAdapter) SimulatePaste() error       { return nil }

// slogAdapter satisfies dictation.Logger over *slog.Logger, whose
// Info/Warn/Error methods already match the interface's signature.
type slogAdapter struct {
	*slog.Logger
}
