package coldvox

import "math"

// Detector scores one AudioFrame's probability of containing speech. The
// default ML-backed implementation lives in pkg/backends/vad (Silero, via
// onnxruntime, behind a build tag); EnergyDetector below is the
// always-available fallback.
type Detector interface {
	Detect(frame AudioFrame) (probability float64, err error)
}

// vadState enumerates the hysteresis state machine's variants.
type vadState int

const (
	stateSilence vadState = iota
	statePendingSpeech
	stateSpeech
	statePendingSilence
)

// VAD runs the speech/silence hysteresis state machine over a stream of
// frames from a single detector. It is not safe for concurrent use; one
// instance is owned by one consumer task.
type VAD struct {
	detector Detector

	onsetThreshold    float64
	offsetThreshold   float64
	minSpeechUs       int64
	minSilenceUs      int64
	speechDebounceUs  int64
	silenceDebounceUs int64

	state vadState

	// pendingSince is the timestamp the current Pending* state began being
	// continuously satisfied. firstCrossingUs is the timestamp of the frame
	// that first crossed the threshold — emitted as the event time once the
	// debounce/min-duration elapses, not the time the transition completes.
	pendingSince    int64
	firstCrossingUs int64

	// reversedSince is nonzero while we're inside a Pending* state but the
	// condition has flipped back; it tracks how long the reversal has been
	// sustained so speech/silence debounce can distinguish a blip from a
	// genuine abort.
	reversedSince int64
	reversing     bool
}

// NewVAD builds a VAD instance against cfg's VAD parameters.
func NewVAD(detector Detector, cfg Config) *VAD {
	return &VAD{
		detector:          detector,
		onsetThreshold:    cfg.OnsetThreshold,
		offsetThreshold:   cfg.OffsetThreshold,
		minSpeechUs:       int64(cfg.MinSpeechMs) * 1000,
		minSilenceUs:      int64(cfg.MinSilenceMs) * 1000,
		speechDebounceUs:  int64(cfg.SpeechDebounceMs) * 1000,
		silenceDebounceUs: int64(cfg.SilenceDebounceMs) * 1000,
		state:             stateSilence,
	}
}

// Process scores frame and advances the state machine, returning an event
// if this frame caused a state transition (or nil, for the common case of
// no transition).
func (v *VAD) Process(frame AudioFrame) (*VadEvent, error) {
	prob, err := v.detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	ts := frame.TimestampUs

	switch v.state {
	case stateSilence:
		if prob >= v.onsetThreshold {
			v.state = statePendingSpeech
			v.pendingSince = ts
			v.firstCrossingUs = ts
			v.reversing = false
		}
		return nil, nil

	case statePendingSpeech:
		if prob >= v.onsetThreshold {
			v.reversing = false
			if ts-v.pendingSince >= v.minSpeechUs {
				v.state = stateSpeech
				return &VadEvent{Type: SpeechStart, TimestampUs: v.firstCrossingUs, Probability: prob}, nil
			}
			return nil, nil
		}
		// Condition reversed.
		if !v.reversing {
			v.reversing = true
			v.reversedSince = ts
		}
		if ts-v.reversedSince >= v.speechDebounceUs {
			v.state = stateSilence
			v.reversing = false
		}
		return nil, nil

	case stateSpeech:
		if prob < v.offsetThreshold {
			v.state = statePendingSilence
			v.pendingSince = ts
			v.firstCrossingUs = ts
			v.reversing = false
		}
		return nil, nil

	case statePendingSilence:
		if prob < v.offsetThreshold {
			v.reversing = false
			if ts-v.pendingSince >= v.minSilenceUs {
				v.state = stateSilence
				return &VadEvent{Type: SpeechEnd, TimestampUs: v.firstCrossingUs, Probability: prob}, nil
			}
			return nil, nil
		}
		if !v.reversing {
			v.reversing = true
			v.reversedSince = ts
		}
		if ts-v.reversedSince >= v.silenceDebounceUs {
			v.state = stateSpeech
			v.reversing = false
		}
		return nil, nil
	}
	return nil, nil
}

// InSpeech reports whether the state machine currently considers speech
// active (Speech or PendingSilence, since PendingSilence hasn't yet
// confirmed silence).
func (v *VAD) InSpeech() bool {
	return v.state == stateSpeech || v.state == statePendingSilence
}

// Shutdown synthesizes a SpeechEnd if the stream is cut off mid-utterance,
// satisfying the invariant that every SpeechStart has an eventual
// SpeechEnd. lastTs is the timestamp of the last frame seen.
func (v *VAD) Shutdown(lastTs int64) *VadEvent {
	if v.state == stateSpeech || v.state == statePendingSilence {
		v.state = stateSilence
		return &VadEvent{Type: SpeechEnd, TimestampUs: lastTs}
	}
	return nil
}

// EnergyDetector is the always-available fallback detector: RMS energy
// normalized against a running peak, so it adapts to input gain instead of
// relying on a fixed absolute scale.
type EnergyDetector struct {
	peak float64
}

// NewEnergyDetector builds an EnergyDetector with no prior history.
func NewEnergyDetector() *EnergyDetector {
	return &EnergyDetector{peak: 1.0}
}

// Detect computes normalized RMS energy as the speech probability proxy.
func (d *EnergyDetector) Detect(frame AudioFrame) (float64, error) {
	if len(frame.Samples) == 0 {
		return 0, nil
	}
	var sumSq float64
	for _, s := range frame.Samples {
		v := float64(s)
		sumSq += v * v
	}
	rms := math.Sqrt(sumSq / float64(len(frame.Samples)))
	if rms > d.peak {
		d.peak = rms
	} else {
		// Slow decay so a loud transient doesn't permanently desensitize
		// the detector.
		d.peak *= 0.999
	}
	if d.peak == 0 {
		return 0, nil
	}
	prob := rms / d.peak
	if prob > 1 {
		prob = 1
	}
	return prob, nil
}
