// Package signalhub broadcasts dictation lifecycle events to local
// WebSocket subscribers (the menu-bar UI, a companion app) without any
// backend package importing UI code. Grounded on
// original_source/app/core/signals.py's AppSignals: the named Qt
// signals there (recording_started, transcription_complete,
// model_loading, status_changed, error_occurred, ...) become a fixed
// set of typed Go event constructors broadcast as JSON over
// github.com/coder/websocket connections, reusing the teacher's
// pkg/providers/tts/lokutor.go connection-management idiom (mutex
// guarding the live connection set, drop-and-continue on a write
// error) but as a broadcast server instead of a single dial-out client.
package signalhub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Event is one broadcast message. Kind names mirror AppSignals'
// signal names so a subscriber ported from the Qt app recognizes them
// immediately.
type Event struct {
	Kind string `json:"kind"`
	// Payload fields are optional per Kind; zero values are omitted.
	Text     string  `json:"text,omitempty"`
	Model    string  `json:"model,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Mode     string  `json:"mode,omitempty"`
	Title    string  `json:"title,omitempty"`
	Message  string  `json:"message,omitempty"`
}

const (
	KindRecordingStarted         = "recording_started"
	KindRecordingStopped         = "recording_stopped"
	KindTranscriptionComplete    = "transcription_complete"
	KindModelLoading             = "model_loading"
	KindModelLoaded              = "model_loaded"
	KindModelDownloadProgress    = "model_download_progress"
	KindHotkeyChanged            = "hotkey_changed"
	KindLanguageChanged          = "language_changed"
	KindAccuracyChanged          = "accuracy_changed"
	KindTranscriptionModeChanged = "transcription_mode_changed"
	KindStatusChanged            = "status_changed"
	KindErrorOccurred            = "error_occurred"
)

// Hub accepts WebSocket subscribers on Handler and fans out Events
// broadcast via its typed Emit* methods. A Hub owns no network
// listener itself -- the caller mounts Handler on an *http.ServeMux.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New constructs a Hub. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Handler upgrades incoming requests to WebSocket connections and
// registers them as broadcast subscribers until the connection closes.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("signalhub: accept failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return // client disconnected; subscribers never send us anything meaningful
		}
	}
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, c := range conns {
		if err := wsjson.Write(ctx, c, ev); err != nil {
			h.logger.Warn("signalhub: dropping unresponsive subscriber", "error", err)
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			c.Close(websocket.StatusAbnormalClosure, "write failed")
		}
	}
}

func (h *Hub) EmitRecordingStarted() { h.broadcast(Event{Kind: KindRecordingStarted}) }
func (h *Hub) EmitRecordingStopped() { h.broadcast(Event{Kind: KindRecordingStopped}) }

func (h *Hub) EmitTranscriptionComplete(text string) {
	h.broadcast(Event{Kind: KindTranscriptionComplete, Text: text})
}

func (h *Hub) EmitModelLoading(model string) {
	h.broadcast(Event{Kind: KindModelLoading, Model: model})
}

func (h *Hub) EmitModelLoaded(model string) {
	h.broadcast(Event{Kind: KindModelLoaded, Model: model})
}

func (h *Hub) EmitModelDownloadProgress(model string, progress float64) {
	h.broadcast(Event{Kind: KindModelDownloadProgress, Model: model, Progress: progress})
}

func (h *Hub) EmitHotkeyChanged(key string) {
	h.broadcast(Event{Kind: KindHotkeyChanged, Text: key})
}

func (h *Hub) EmitLanguageChanged(language string) {
	h.broadcast(Event{Kind: KindLanguageChanged, Text: language})
}

func (h *Hub) EmitAccuracyChanged(cleanupMode string) {
	h.broadcast(Event{Kind: KindAccuracyChanged, Mode: cleanupMode})
}

func (h *Hub) EmitTranscriptionModeChanged(mode string) {
	h.broadcast(Event{Kind: KindTranscriptionModeChanged, Mode: mode})
}

func (h *Hub) EmitStatusChanged(status string) {
	h.broadcast(Event{Kind: KindStatusChanged, Text: status})
}

func (h *Hub) EmitError(title, message string) {
	h.broadcast(Event{Kind: KindErrorOccurred, Title: title, Message: message})
}

// SubscriberCount reports the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
