// Package metrics exposes the pipeline's counters as Prometheus collectors,
// the way the pack's service-shaped repos (glyphoxa, livekit-agents-go)
// stand up a client_golang registry rather than logging raw numbers.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter the pipeline updates. Passing a nil *Metrics
// to Pipeline.SetMetrics disables reporting entirely; all increment methods
// on a nil *Metrics are no-ops.
type Metrics struct {
	FramesCaptured   prometheus.Counter
	FramesDropped    prometheus.Counter
	WatchdogRestarts prometheus.Counter
	VadSpeechEvents  *prometheus.CounterVec // labeled by event type
	InjectionAttempt *prometheus.CounterVec // labeled by method, outcome
}

// New builds a Metrics registered against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coldvox",
			Name:      "frames_captured_total",
			Help:      "Audio frames captured from the input device.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coldvox",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped due to broadcast lag.",
		}),
		WatchdogRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coldvox",
			Name:      "watchdog_restarts_total",
			Help:      "Capture restarts triggered by the watchdog.",
		}),
		VadSpeechEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coldvox",
			Name:      "vad_speech_events_total",
			Help:      "VAD SpeechStart/SpeechEnd transitions.",
		}, []string{"event"}),
		InjectionAttempt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coldvox",
			Name:      "injection_attempts_total",
			Help:      "Injection attempts by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	reg.MustRegister(m.FramesCaptured, m.FramesDropped, m.WatchdogRestarts, m.VadSpeechEvents, m.InjectionAttempt)
	return m
}

func (m *Metrics) captured() {
	if m != nil {
		m.FramesCaptured.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) restarted() {
	if m != nil {
		m.WatchdogRestarts.Inc()
	}
}

func (m *Metrics) speechEvent(kind string) {
	if m != nil {
		m.VadSpeechEvents.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) injectionAttempt(method, outcome string) {
	if m != nil {
		m.InjectionAttempt.WithLabelValues(method, outcome).Inc()
	}
}

// FramesCapturedInc increments the captured-frames counter; safe on a nil
// receiver.
func (m *Metrics) FramesCapturedInc() { m.captured() }

// FramesDroppedInc increments the dropped-frames counter; safe on a nil
// receiver.
func (m *Metrics) FramesDroppedInc() { m.dropped() }

// WatchdogRestartInc increments the watchdog-restart counter; safe on a nil
// receiver.
func (m *Metrics) WatchdogRestartInc() { m.restarted() }

// SpeechEventInc increments the VAD speech-event counter for kind
// ("speech_start" or "speech_end"); safe on a nil receiver.
func (m *Metrics) SpeechEventInc(kind string) { m.speechEvent(kind) }

// InjectionAttemptInc increments the injection-attempt counter for method
// and outcome ("success" or "failure"); safe on a nil receiver.
func (m *Metrics) InjectionAttemptInc(method, outcome string) { m.injectionAttempt(method, outcome) }
