// Package vad provides coldvox.Detector implementations: a Silero VAD v5
// ONNX model run through onnxruntime_go (behind the "silero" build tag,
// mirroring the plugin engine's native/stub split), and the package
// otherwise offers coldvox.NewEnergyDetector as its always-available
// fallback.
package vad

import "errors"

// ErrNativeUnavailable indicates the package was built without -tags silero.
var ErrNativeUnavailable = errors.New("vad: silero backend not available (build without -tags silero)")

// ExpectedSampleRate is the only rate Silero VAD v5 accepts.
const ExpectedSampleRate = 16000

// ErrWrongSampleRate reports a frame not sampled at ExpectedSampleRate.
// SileroDetector.Detect does not return it: an AudioFrame carries no sample
// rate, so Detect checks only the frame length, and the chunker always
// resamples to coldvox.SampleRateHz.
var ErrWrongSampleRate = errors.New("vad: frame is not sampled at 16kHz")
