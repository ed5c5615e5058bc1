package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// BatchTranscriber accumulates fed PCM across an utterance and submits it
// all at once from Finalize, for STT APIs (Deepgram/AssemblyAI-style) that
// take one request per audio clip rather than a streaming protocol. Feed
// never returns a partial (WSTranscriber's Feed does not either).
type BatchTranscriber struct {
	client     *http.Client
	endpoint   string
	apiKey     string
	authHeader string // header name, e.g. "Authorization"
	authPrefix string // value prefix, e.g. "Token "

	buf []int16
}

// NewBatchTranscriber builds a transcriber against a batch HTTP endpoint.
// authHeader/authPrefix let callers match each provider's convention (e.g.
// Deepgram's "Authorization: Token <key>" vs AssemblyAI's "Authorization:
// <key>").
func NewBatchTranscriber(client *http.Client, endpoint, apiKey, authHeader, authPrefix string) *BatchTranscriber {
	if client == nil {
		client = http.DefaultClient
	}
	return &BatchTranscriber{
		client:     client,
		endpoint:   endpoint,
		apiKey:     apiKey,
		authHeader: authHeader,
		authPrefix: authPrefix,
	}
}

// BeginUtterance resets the accumulation buffer.
func (b *BatchTranscriber) BeginUtterance(ctx context.Context, utteranceID uint64) error {
	b.buf = b.buf[:0]
	return nil
}

// Feed appends samples to the pending clip. No request is made until
// Finalize; batch APIs have nothing useful to say about a partial clip.
func (b *BatchTranscriber) Feed(ctx context.Context, samples []int16) (*coldvox.PartialEvent, error) {
	b.buf = append(b.buf, samples...)
	return nil, nil
}

// Finalize submits the accumulated clip as a single WAV-encoded request and
// parses the provider's JSON transcript response.
func (b *BatchTranscriber) Finalize(ctx context.Context) (coldvox.FinalEvent, error) {
	body := encodeWav(b.buf, coldvox.SampleRateHz)

	u, err := url.Parse(b.endpoint)
	if err != nil {
		return coldvox.FinalEvent{}, fmt.Errorf("stt: parse endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return coldvox.FinalEvent{}, fmt.Errorf("stt: build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set(b.authHeader, b.authPrefix+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return coldvox.FinalEvent{}, fmt.Errorf("stt: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return coldvox.FinalEvent{}, fmt.Errorf("stt: provider returned %d: %s", resp.StatusCode, string(errBody))
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
					Words      []struct {
						Word       string  `json:"word"`
						Start      float64 `json:"start"`
						End        float64 `json:"end"`
						Confidence float64 `json:"confidence"`
					} `json:"words"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return coldvox.FinalEvent{}, fmt.Errorf("stt: decode response: %w", err)
	}
	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return coldvox.FinalEvent{}, nil
	}

	alt := parsed.Results.Channels[0].Alternatives[0]
	timings := make([]coldvox.WordTiming, len(alt.Words))
	for i, w := range alt.Words {
		timings[i] = coldvox.WordTiming{
			Word:       w.Word,
			StartMs:    int64(w.Start * 1000),
			EndMs:      int64(w.End * 1000),
			Confidence: w.Confidence,
		}
	}
	return coldvox.FinalEvent{Text: alt.Transcript, WordTimings: timings}, nil
}

// Reset drops any partially-accumulated clip.
func (b *BatchTranscriber) Reset(ctx context.Context) error {
	b.buf = b.buf[:0]
	return nil
}

// encodeWav wraps mono 16-bit PCM samples in a minimal RIFF/WAVE header.
func encodeWav(samples []int16, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
