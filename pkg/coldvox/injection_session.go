package coldvox

import (
	"strings"
	"time"
)

// sentenceTerminators are the punctuation marks that trigger
// ReadyToInject without waiting for the silence timeout.
var sentenceTerminators = []byte{'.', '!', '?'}

// InjectionSession accumulates Final transcriptions into a single buffer
// and decides when that buffer is ready to hand to the strategy manager.
// Not safe for concurrent use.
type InjectionSession struct {
	state InjectionSessionState

	silenceTimeout time.Duration
	maxBufferSize  int
}

// NewInjectionSession builds a session using cfg's silence_timeout_ms and
// max_buffer_size.
func NewInjectionSession(cfg Config) *InjectionSession {
	return &InjectionSession{
		state:          InjectionSessionState{Kind: SessionIdle},
		silenceTimeout: cfg.SilenceTimeout,
		maxBufferSize:  cfg.MaxBufferSize,
	}
}

// State returns a snapshot of the current session state.
func (s *InjectionSession) State() InjectionSessionState { return s.state }

// OnFinal appends text from a Final transcription event, joining with a
// single space unless text starts with punctuation. Returns true if the
// buffer became ready to inject as a direct result (max size or
// terminating punctuation); the silence-timeout trigger is evaluated
// separately via CheckTimeout since it depends on wall-clock elapsed time,
// not on receiving another Final.
func (s *InjectionSession) OnFinal(text string, now time.Time) bool {
	if text == "" {
		return false
	}
	switch s.state.Kind {
	case SessionIdle:
		s.state = InjectionSessionState{
			Kind:         SessionBuffering,
			Text:         text,
			FirstArrival: now,
			LastArrival:  now,
		}
	case SessionBuffering, SessionReadyToInject:
		if s.state.Kind == SessionReadyToInject {
			// Caller hasn't drained yet but new text already arrived;
			// still must not drop it — fold it into a fresh buffering
			// cycle once the previous one is consumed. Treat as append
			// for now; Consume() resets to Idle before this can recur in
			// practice since the strategy manager drains promptly.
			s.state.Kind = SessionBuffering
		}
		s.state.Text = join(s.state.Text, text)
		s.state.LastArrival = now
	}

	if len(s.state.Text) >= s.maxBufferSize {
		s.state.Kind = SessionReadyToInject
		return true
	}
	if endsWithTerminator(s.state.Text) {
		s.state.Kind = SessionReadyToInject
		return true
	}
	return false
}

// CheckTimeout evaluates the silence_timeout_ms trigger: if the session is
// Buffering and now - LastArrival >= silence_timeout, it becomes
// ReadyToInject. A silenceTimeout of 0 means "immediate" — any Buffering
// state not already resolved by size/punctuation becomes ready the next
// time this is checked (callers typically check right after OnFinal
// returns false).
func (s *InjectionSession) CheckTimeout(now time.Time) bool {
	if s.state.Kind != SessionBuffering {
		return false
	}
	if now.Sub(s.state.LastArrival) >= s.silenceTimeout {
		s.state.Kind = SessionReadyToInject
		return true
	}
	return false
}

// Consume hands the buffered text to the caller (the strategy manager) and
// resets to Idle, regardless of whether injection ultimately succeeds —
// the invariant is that the buffer is either injected or surfaced as an
// error before the transition, not that this method waits for that
// outcome.
func (s *InjectionSession) Consume() string {
	text := s.state.Text
	s.state = InjectionSessionState{Kind: SessionIdle}
	return text
}

func join(existing, next string) string {
	if existing == "" {
		return next
	}
	if startsWithPunctuation(next) {
		return existing + next
	}
	return existing + " " + next
}

func startsWithPunctuation(s string) bool {
	if s == "" {
		return false
	}
	r := s[0]
	return strings.ContainsRune(",.!?;:)]}", rune(r))
}

func endsWithTerminator(s string) bool {
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	for _, t := range sentenceTerminators {
		if last == t {
			return true
		}
	}
	return false
}
