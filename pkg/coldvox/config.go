package coldvox

import "time"

// Config enumerates every option the core recognizes. Loading it from a
// file or flags is an ambient concern handled in internal/config; the core
// only ever sees the resolved struct.
type Config struct {
	// Audio
	DevicePreferred string
	OverflowPolicy  OverflowPolicy

	// Chunker
	FrameSamples      int
	OutputRateHz      int
	ResamplerQuality  ResamplerQuality
	BroadcastCapacity int

	// VAD
	OnsetThreshold   float64
	OffsetThreshold  float64
	MinSpeechMs      int
	MinSilenceMs     int
	SpeechDebounceMs int
	SilenceDebounceMs int

	// Watchdog
	NoDataTimeout  time.Duration
	BackoffInitial time.Duration
	BackoffFactor  float64
	BackoffMax     time.Duration

	// Injection
	MaxTotalLatency     time.Duration
	PerMethodTimeout    time.Duration
	ConfirmTimeout      time.Duration
	SilenceTimeout      time.Duration
	MaxBufferSize       int
	MinSuccessRate      float64
	MinSampleSize       int
	CooldownInitial     time.Duration
	CooldownBackoff     float64
	CooldownMax         time.Duration
	FocusEnforcement    FocusEnforcement
	RedactLogs          bool
	AppAllowlist        []string
	AppBlocklist        []string
	FocusTTL            time.Duration
	CooldownResetStreak int // consecutive successes before cooldown resets to initial
}

// ResamplerQuality selects the chunker's resampling filter length.
type ResamplerQuality int

const (
	ResampleFast ResamplerQuality = iota
	ResampleBalanced
	ResampleQuality
)

// DefaultConfig returns the pipeline's out-of-the-box defaults.
func DefaultConfig() Config {
	return Config{
		DevicePreferred: "",
		OverflowPolicy:  DropOldest,

		FrameSamples:      FrameSamples,
		OutputRateHz:       SampleRateHz,
		ResamplerQuality:  ResampleBalanced,
		BroadcastCapacity: 200,

		OnsetThreshold:    0.5,
		OffsetThreshold:   0.3,
		MinSpeechMs:       250,
		MinSilenceMs:      100,
		SpeechDebounceMs:  0,
		SilenceDebounceMs: 0,

		NoDataTimeout:  5 * time.Second,
		BackoffInitial: 250 * time.Millisecond,
		BackoffFactor:  2.0,
		BackoffMax:     10 * time.Second,

		MaxTotalLatency:     800 * time.Millisecond,
		PerMethodTimeout:    250 * time.Millisecond,
		ConfirmTimeout:      75 * time.Millisecond,
		SilenceTimeout:      0,
		MaxBufferSize:       5000,
		MinSuccessRate:      0.3,
		MinSampleSize:       5,
		CooldownInitial:     10 * time.Second,
		CooldownBackoff:     2.0,
		CooldownMax:         300 * time.Second,
		FocusEnforcement:    Strict,
		RedactLogs:          true,
		FocusTTL:            200 * time.Millisecond,
		CooldownResetStreak: 2,
	}
}
