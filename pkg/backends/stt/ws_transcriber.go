// Package stt implements coldvox.Transcriber over two kinds of remote
// speech-to-text service: a websocket streaming adapter (grounded on the
// teacher's lokutor TTS websocket client) and a batch HTTP/JSON adapter
// (grounded on its Deepgram/AssemblyAI STT clients). Neither talks to a
// local ML model; the engine-internal details stay a remote collaborator.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// WSTranscriber streams PCM frames to a websocket STT service and relays
// partial/final results. One instance drives at most one utterance at a
// time, mirroring the Transcriber trait's contract.
type WSTranscriber struct {
	url    string
	apiKey string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSTranscriber builds a transcriber against a websocket endpoint (e.g.
// wss://host/v1/stream) authenticated with apiKey.
func NewWSTranscriber(endpoint, apiKey string) *WSTranscriber {
	return &WSTranscriber{url: endpoint, apiKey: apiKey}
}

type wsBeginMessage struct {
	Type        string `json:"type"`
	UtteranceID uint64 `json:"utterance_id"`
	SampleRate  int    `json:"sample_rate"`
}

type wsAudioMessage struct {
	Type   string `json:"type"`
	Pcm16  []int16 `json:"pcm16"`
}

type wsFinalizeMessage struct {
	Type string `json:"type"`
}

type wsServerMessage struct {
	Type        string          `json:"type"` // "partial" | "final" | "error"
	Text        string          `json:"text"`
	WordTimings []wsWordTiming  `json:"word_timings,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type wsWordTiming struct {
	Word       string  `json:"word"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

func (t *WSTranscriber) connect(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}

	u, err := url.Parse(t.url)
	if err != nil {
		return nil, fmt.Errorf("stt: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", t.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("stt: dial: %w", err)
	}
	t.conn = conn
	return conn, nil
}

// BeginUtterance opens (or reuses) the websocket connection and sends a
// begin marker.
func (t *WSTranscriber) BeginUtterance(ctx context.Context, utteranceID uint64) error {
	conn, err := t.connect(ctx)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, wsBeginMessage{Type: "begin", UtteranceID: utteranceID, SampleRate: coldvox.SampleRateHz}); err != nil {
		t.dropConn()
		return fmt.Errorf("stt: begin: %w", err)
	}
	return nil
}

// Feed sends one frame's samples. It does not read from the connection, so
// it never returns a partial result.
func (t *WSTranscriber) Feed(ctx context.Context, samples []int16) (*coldvox.PartialEvent, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("stt: feed called before begin")
	}

	if err := wsjson.Write(ctx, conn, wsAudioMessage{Type: "audio", Pcm16: samples}); err != nil {
		t.dropConn()
		return nil, fmt.Errorf("stt: feed: %w", err)
	}
	return nil, nil
}

// Finalize signals end-of-utterance and blocks for the final transcript.
func (t *WSTranscriber) Finalize(ctx context.Context) (coldvox.FinalEvent, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return coldvox.FinalEvent{}, fmt.Errorf("stt: finalize called before begin")
	}

	if err := wsjson.Write(ctx, conn, wsFinalizeMessage{Type: "finalize"}); err != nil {
		t.dropConn()
		return coldvox.FinalEvent{}, fmt.Errorf("stt: finalize: %w", err)
	}

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			t.dropConn()
			return coldvox.FinalEvent{}, fmt.Errorf("stt: read: %w", err)
		}
		var msg wsServerMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "final":
			return coldvox.FinalEvent{Text: msg.Text, WordTimings: toWordTimings(msg.WordTimings)}, nil
		case "error":
			return coldvox.FinalEvent{}, fmt.Errorf("stt: server error: %s", msg.Error)
		}
	}
}

// Reset closes the connection so the next BeginUtterance starts fresh.
func (t *WSTranscriber) Reset(ctx context.Context) error {
	t.dropConn()
	return nil
}

func (t *WSTranscriber) dropConn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
	}
}

func toWordTimings(in []wsWordTiming) []coldvox.WordTiming {
	if in == nil {
		return nil
	}
	out := make([]coldvox.WordTiming, len(in))
	for i, w := range in {
		out[i] = coldvox.WordTiming{Word: w.Word, StartMs: w.StartMs, EndMs: w.EndMs, Confidence: w.Confidence}
	}
	return out
}
