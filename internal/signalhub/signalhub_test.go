package signalhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestHubBroadcastsToSubscriber(t *testing.T) {
	hub := New(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial(...) error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}

	hub.EmitTranscriptionComplete("hello world")

	var got Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("Read(...) error = %v", err)
	}
	if got.Kind != KindTranscriptionComplete || got.Text != "hello world" {
		t.Errorf("got %+v, want kind=%s text=%q", got, KindTranscriptionComplete, "hello world")
	}
}

func TestHubDropsDisconnectedSubscriber(t *testing.T) {
	hub := New(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial(...) error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close(websocket.StatusNormalClosure, "")

	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0 after subscriber disconnect", hub.SubscriberCount())
	}
}

func TestEmitMultipleKinds(t *testing.T) {
	hub := New(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial(...) error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	hub.EmitRecordingStarted()
	var started Event
	if err := wsjson.Read(ctx, conn, &started); err != nil {
		t.Fatalf("Read(...) error = %v", err)
	}
	if started.Kind != KindRecordingStarted {
		t.Errorf("Kind = %q, want %q", started.Kind, KindRecordingStarted)
	}

	hub.EmitError("Dictation failed", "device disconnected")
	var errEvt Event
	if err := wsjson.Read(ctx, conn, &errEvt); err != nil {
		t.Fatalf("Read(...) error = %v", err)
	}
	if errEvt.Kind != KindErrorOccurred || errEvt.Title != "Dictation failed" || errEvt.Message != "device disconnected" {
		t.Errorf("got %+v, want error_occurred with title/message set", errEvt)
	}
}
