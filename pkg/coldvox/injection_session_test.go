package coldvox

import (
	"testing"
	"time"
)

func sessionTestConfig() Config {
	cfg := DefaultConfig()
	cfg.SilenceTimeout = 200 * time.Millisecond
	cfg.MaxBufferSize = 50
	return cfg
}

func TestInjectionSession_IdleToBufferingOnFirstFinal(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	now := time.Now()
	ready := s.OnFinal("hello", now)
	if ready {
		t.Fatal("did not expect readiness on short first final")
	}
	if s.State().Kind != SessionBuffering {
		t.Fatalf("expected Buffering, got %v", s.State().Kind)
	}
	if s.State().Text != "hello" {
		t.Fatalf("expected buffered text 'hello', got %q", s.State().Text)
	}
}

func TestInjectionSession_AppendsWithSpaceJoin(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	now := time.Now()
	s.OnFinal("hello", now)
	s.OnFinal("world", now.Add(10*time.Millisecond))
	if s.State().Text != "hello world" {
		t.Fatalf("expected 'hello world', got %q", s.State().Text)
	}
}

func TestInjectionSession_PunctuationJoinsWithoutSpace(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	now := time.Now()
	s.OnFinal("hello", now)
	s.OnFinal(", world", now.Add(10*time.Millisecond))
	if s.State().Text != "hello, world" {
		t.Fatalf("expected 'hello, world', got %q", s.State().Text)
	}
}

func TestInjectionSession_TerminatingPunctuationTriggersReady(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	now := time.Now()
	ready := s.OnFinal("is this ready?", now)
	if !ready {
		t.Fatal("expected readiness after terminating punctuation")
	}
	if s.State().Kind != SessionReadyToInject {
		t.Fatalf("expected ReadyToInject, got %v", s.State().Kind)
	}
}

func TestInjectionSession_MaxBufferSizeTriggersReady(t *testing.T) {
	cfg := sessionTestConfig()
	cfg.MaxBufferSize = 10
	s := NewInjectionSession(cfg)
	ready := s.OnFinal("this text exceeds ten characters", time.Now())
	if !ready {
		t.Fatal("expected readiness once buffer exceeds max_buffer_size")
	}
}

func TestInjectionSession_SilenceTimeoutTriggersReady(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	now := time.Now()
	s.OnFinal("hello", now)
	if s.CheckTimeout(now.Add(50 * time.Millisecond)) {
		t.Fatal("did not expect timeout before silence_timeout_ms elapsed")
	}
	if !s.CheckTimeout(now.Add(250 * time.Millisecond)) {
		t.Fatal("expected timeout after silence_timeout_ms elapsed")
	}
}

func TestInjectionSession_ConsumeResetsToIdle(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	s.OnFinal("hello?", time.Now())
	text := s.Consume()
	if text != "hello?" {
		t.Fatalf("expected consumed text 'hello?', got %q", text)
	}
	if s.State().Kind != SessionIdle {
		t.Fatalf("expected Idle after Consume, got %v", s.State().Kind)
	}
}

func TestInjectionSession_NoFinalSilentlyDiscarded(t *testing.T) {
	s := NewInjectionSession(sessionTestConfig())
	now := time.Now()
	s.OnFinal("part one.", now) // triggers ready
	// A new Final arrives before the strategy manager consumes.
	s.OnFinal("part two", now.Add(5*time.Millisecond))
	text := s.Consume()
	if text != "part one. part two" {
		t.Fatalf("expected both finals folded into the buffer, got %q", text)
	}
}
