package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestWSTranscriber_FullUtteranceLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")
		ctx := r.Context()

		var begin map[string]interface{}
		if err := wsjson.Read(ctx, conn, &begin); err != nil {
			return
		}
		if begin["type"] != "begin" {
			t.Errorf("expected first message type 'begin', got %v", begin["type"])
		}

		var audio map[string]interface{}
		if err := wsjson.Read(ctx, conn, &audio); err != nil {
			return
		}
		if audio["type"] != "audio" {
			t.Errorf("expected second message type 'audio', got %v", audio["type"])
		}

		var finalize map[string]interface{}
		if err := wsjson.Read(ctx, conn, &finalize); err != nil {
			return
		}
		if finalize["type"] != "finalize" {
			t.Errorf("expected third message type 'finalize', got %v", finalize["type"])
		}

		wsjson.Write(ctx, conn, wsServerMessage{Type: "final", Text: "hello world"})
	}))
	defer server.Close()

	endpoint := "ws://" + strings.TrimPrefix(server.URL, "http://")
	tr := NewWSTranscriber(endpoint, "test-key")
	ctx := context.Background()

	if err := tr.BeginUtterance(ctx, 1); err != nil {
		t.Fatalf("BeginUtterance: %v", err)
	}
	if _, err := tr.Feed(ctx, make([]int16, 512)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	final, err := tr.Finalize(ctx)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if final.Text != "hello world" {
		t.Errorf("expected transcript %q, got %q", "hello world", final.Text)
	}
}

func TestWSTranscriber_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")
		ctx := r.Context()

		var begin map[string]interface{}
		wsjson.Read(ctx, conn, &begin)
		var finalize map[string]interface{}
		wsjson.Read(ctx, conn, &finalize)

		wsjson.Write(ctx, conn, wsServerMessage{Type: "error", Error: "model overloaded"})
	}))
	defer server.Close()

	endpoint := "ws://" + strings.TrimPrefix(server.URL, "http://")
	tr := NewWSTranscriber(endpoint, "test-key")
	ctx := context.Background()

	if err := tr.BeginUtterance(ctx, 1); err != nil {
		t.Fatalf("BeginUtterance: %v", err)
	}
	if _, err := tr.Finalize(ctx); err == nil {
		t.Fatal("expected an error from a server error message")
	}
}

func TestWSTranscriber_FeedBeforeBeginErrors(t *testing.T) {
	tr := NewWSTranscriber("ws://example.invalid", "key")
	if _, err := tr.Feed(context.Background(), make([]int16, 512)); err == nil {
		t.Fatal("expected an error feeding before BeginUtterance")
	}
}

func TestWSTranscriber_ResetClosesConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")
		var begin map[string]interface{}
		wsjson.Read(r.Context(), conn, &begin)
	}))
	defer server.Close()

	endpoint := "ws://" + strings.TrimPrefix(server.URL, "http://")
	tr := NewWSTranscriber(endpoint, "test-key")
	ctx := context.Background()

	if err := tr.BeginUtterance(ctx, 1); err != nil {
		t.Fatalf("BeginUtterance: %v", err)
	}
	if err := tr.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if tr.conn != nil {
		t.Error("expected connection to be cleared after Reset")
	}
}
