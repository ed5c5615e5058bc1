//go:build !silero

package vad

import "github.com/coldvox/coldvox/pkg/coldvox"

// NativeAvailable reports that no native engine is compiled in.
func NativeAvailable() bool { return false }

// NewSileroDetector is unavailable without -tags silero.
func NewSileroDetector(modelData []byte, libPath string) (interface{}, error) {
	return nil, ErrNativeUnavailable
}

// NewBestDetector always falls back to the energy detector in a build
// without -tags silero, regardless of modelData/libPath.
func NewBestDetector(modelData []byte, libPath string) (coldvox.Detector, error) {
	return coldvox.NewEnergyDetector(), nil
}
