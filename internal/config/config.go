// Package config loads coldvox.Config from a YAML file overlaid with
// command-line flags: library defaults, then file, then flags, each
// overriding the last.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// fileConfig mirrors coldvox.Config with yaml tags and millisecond/float
// fields for the options that are durations or enums in the core, since
// those don't round-trip through yaml.v3 directly.
type fileConfig struct {
	DevicePreferred string `yaml:"device_preferred"`
	OverflowPolicy  string `yaml:"overflow_policy"`

	FrameSamples      int    `yaml:"frame_samples"`
	OutputRateHz      int    `yaml:"output_rate_hz"`
	ResamplerQuality  string `yaml:"resampler_quality"`
	BroadcastCapacity int    `yaml:"broadcast_capacity"`

	OnsetThreshold    float64 `yaml:"onset_threshold"`
	OffsetThreshold   float64 `yaml:"offset_threshold"`
	MinSpeechMs       int     `yaml:"min_speech_ms"`
	MinSilenceMs      int     `yaml:"min_silence_ms"`
	SpeechDebounceMs  int     `yaml:"speech_debounce_ms"`
	SilenceDebounceMs int     `yaml:"silence_debounce_ms"`

	NoDataTimeoutMs  int     `yaml:"no_data_timeout_ms"`
	BackoffInitialMs int     `yaml:"backoff_initial_ms"`
	BackoffFactor    float64 `yaml:"backoff_factor"`
	BackoffMaxMs     int     `yaml:"backoff_max_ms"`

	MaxTotalLatencyMs   int      `yaml:"max_total_latency_ms"`
	PerMethodTimeoutMs  int      `yaml:"per_method_timeout_ms"`
	ConfirmTimeoutMs    int      `yaml:"confirm_timeout_ms"`
	SilenceTimeoutMs    int      `yaml:"silence_timeout_ms"`
	MaxBufferSize       int      `yaml:"max_buffer_size"`
	MinSuccessRate      float64  `yaml:"min_success_rate"`
	MinSampleSize       int      `yaml:"min_sample_size"`
	CooldownInitialMs   int      `yaml:"cooldown_initial_ms"`
	CooldownBackoff     float64  `yaml:"cooldown_backoff_factor"`
	CooldownMaxMs       int      `yaml:"cooldown_max_ms"`
	FocusEnforcement    string   `yaml:"focus_enforcement"`
	RedactLogs          *bool    `yaml:"redact_logs"`
	AppAllowlist        []string `yaml:"app_allowlist"`
	AppBlocklist        []string `yaml:"app_blocklist"`
	FocusTTLMs          int      `yaml:"focus_ttl_ms"`
	CooldownResetStreak int      `yaml:"cooldown_reset_streak"`

	LogLevel string `yaml:"log_level"`
}

// Flags exposes the subset of options a CLI invocation commonly overrides.
type Flags struct {
	ConfigPath string
	Device     string
	LogLevel   string
	Onset      float64
	Offset     float64
}

// RegisterFlags binds Flags to fs using spf13/pflag.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "path to a YAML config file")
	fs.StringVar(&f.Device, "device", "", "preferred capture device name")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.Float64Var(&f.Onset, "vad-onset", 0, "override VAD onset threshold (0 = use default/file)")
	fs.Float64Var(&f.Offset, "vad-offset", 0, "override VAD offset threshold (0 = use default/file)")
	return f
}

// Load builds a coldvox.Config starting from coldvox.DefaultConfig(),
// overlaying path (if non-empty) and then flags. Returns the resolved
// config plus the requested log level (config/flags don't live in
// coldvox.Config since logging is an ambient concern, not a pipeline one).
func Load(path string, flags *Flags) (coldvox.Config, string, error) {
	cfg := coldvox.DefaultConfig()
	logLevel := "info"

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, logLevel, fmt.Errorf("config: read %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return cfg, logLevel, fmt.Errorf("config: parse %s: %w", path, err)
		}
		applyFile(&cfg, &logLevel, fc)
	}

	if flags != nil {
		if flags.Device != "" {
			cfg.DevicePreferred = flags.Device
		}
		if flags.LogLevel != "" {
			logLevel = flags.LogLevel
		}
		if flags.Onset != 0 {
			cfg.OnsetThreshold = flags.Onset
		}
		if flags.Offset != 0 {
			cfg.OffsetThreshold = flags.Offset
		}
	}

	return cfg, logLevel, nil
}

func applyFile(cfg *coldvox.Config, logLevel *string, fc fileConfig) {
	if fc.DevicePreferred != "" {
		cfg.DevicePreferred = fc.DevicePreferred
	}
	if p, ok := parseOverflowPolicy(fc.OverflowPolicy); ok {
		cfg.OverflowPolicy = p
	}
	if fc.FrameSamples > 0 {
		cfg.FrameSamples = fc.FrameSamples
	}
	if fc.OutputRateHz > 0 {
		cfg.OutputRateHz = fc.OutputRateHz
	}
	if q, ok := parseResamplerQuality(fc.ResamplerQuality); ok {
		cfg.ResamplerQuality = q
	}
	if fc.BroadcastCapacity > 0 {
		cfg.BroadcastCapacity = fc.BroadcastCapacity
	}
	if fc.OnsetThreshold > 0 {
		cfg.OnsetThreshold = fc.OnsetThreshold
	}
	if fc.OffsetThreshold > 0 {
		cfg.OffsetThreshold = fc.OffsetThreshold
	}
	if fc.MinSpeechMs > 0 {
		cfg.MinSpeechMs = fc.MinSpeechMs
	}
	if fc.MinSilenceMs > 0 {
		cfg.MinSilenceMs = fc.MinSilenceMs
	}
	cfg.SpeechDebounceMs = fc.SpeechDebounceMs
	cfg.SilenceDebounceMs = fc.SilenceDebounceMs

	if fc.NoDataTimeoutMs > 0 {
		cfg.NoDataTimeout = time.Duration(fc.NoDataTimeoutMs) * time.Millisecond
	}
	if fc.BackoffInitialMs > 0 {
		cfg.BackoffInitial = time.Duration(fc.BackoffInitialMs) * time.Millisecond
	}
	if fc.BackoffFactor > 0 {
		cfg.BackoffFactor = fc.BackoffFactor
	}
	if fc.BackoffMaxMs > 0 {
		cfg.BackoffMax = time.Duration(fc.BackoffMaxMs) * time.Millisecond
	}

	if fc.MaxTotalLatencyMs > 0 {
		cfg.MaxTotalLatency = time.Duration(fc.MaxTotalLatencyMs) * time.Millisecond
	}
	if fc.PerMethodTimeoutMs > 0 {
		cfg.PerMethodTimeout = time.Duration(fc.PerMethodTimeoutMs) * time.Millisecond
	}
	if fc.ConfirmTimeoutMs > 0 {
		cfg.ConfirmTimeout = time.Duration(fc.ConfirmTimeoutMs) * time.Millisecond
	}
	cfg.SilenceTimeout = time.Duration(fc.SilenceTimeoutMs) * time.Millisecond
	if fc.MaxBufferSize > 0 {
		cfg.MaxBufferSize = fc.MaxBufferSize
	}
	if fc.MinSuccessRate > 0 {
		cfg.MinSuccessRate = fc.MinSuccessRate
	}
	if fc.MinSampleSize > 0 {
		cfg.MinSampleSize = fc.MinSampleSize
	}
	if fc.CooldownInitialMs > 0 {
		cfg.CooldownInitial = time.Duration(fc.CooldownInitialMs) * time.Millisecond
	}
	if fc.CooldownBackoff > 0 {
		cfg.CooldownBackoff = fc.CooldownBackoff
	}
	if fc.CooldownMaxMs > 0 {
		cfg.CooldownMax = time.Duration(fc.CooldownMaxMs) * time.Millisecond
	}
	if e, ok := parseFocusEnforcement(fc.FocusEnforcement); ok {
		cfg.FocusEnforcement = e
	}
	if fc.RedactLogs != nil {
		cfg.RedactLogs = *fc.RedactLogs
	}
	if len(fc.AppAllowlist) > 0 {
		cfg.AppAllowlist = fc.AppAllowlist
	}
	if len(fc.AppBlocklist) > 0 {
		cfg.AppBlocklist = fc.AppBlocklist
	}
	if fc.FocusTTLMs > 0 {
		cfg.FocusTTL = time.Duration(fc.FocusTTLMs) * time.Millisecond
	}
	if fc.CooldownResetStreak > 0 {
		cfg.CooldownResetStreak = fc.CooldownResetStreak
	}
	if fc.LogLevel != "" {
		*logLevel = fc.LogLevel
	}
}

func parseOverflowPolicy(s string) (coldvox.OverflowPolicy, bool) {
	switch s {
	case "drop_oldest":
		return coldvox.DropOldest, true
	case "drop_newest":
		return coldvox.DropNewest, true
	case "block":
		return coldvox.Block, true
	default:
		return 0, false
	}
}

func parseResamplerQuality(s string) (coldvox.ResamplerQuality, bool) {
	switch s {
	case "fast":
		return coldvox.ResampleFast, true
	case "balanced":
		return coldvox.ResampleBalanced, true
	case "quality":
		return coldvox.ResampleQuality, true
	default:
		return 0, false
	}
}

func parseFocusEnforcement(s string) (coldvox.FocusEnforcement, bool) {
	switch s {
	case "strict":
		return coldvox.Strict, true
	case "permissive":
		return coldvox.Permissive, true
	default:
		return 0, false
	}
}
