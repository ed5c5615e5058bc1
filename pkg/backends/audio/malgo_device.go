// Package audio implements coldvox.Device over gen2brain/malgo. Capture-only:
// there is no playback path to echo-cancel against.
package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// MalgoDevice is a coldvox.Device backed by a single malgo capture-only
// stream. One instance is reused across Start/Stop cycles so the watchdog
// can restart capture without re-enumerating devices each time.
type MalgoDevice struct {
	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	format  coldvox.DeviceFormat
	sampleRateHint int
}

// NewMalgoDevice builds a device that requests sampleRateHint (commonly
// the device's native rate, e.g. 44100 or 48000) and downstream-converts
// via the core's chunker/resampler.
func NewMalgoDevice(sampleRateHint int) *MalgoDevice {
	if sampleRateHint <= 0 {
		sampleRateHint = 48000
	}
	return &MalgoDevice{sampleRateHint: sampleRateHint}
}

// Open initializes the malgo context and negotiates a capture-only
// device. When preferred is non-empty it is matched against capture device
// names by substring, but the match is not kept: Start always opens the
// default capture device.
func (d *MalgoDevice) Open(preferred string) (coldvox.DeviceFormat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return coldvox.DeviceFormat{}, fmt.Errorf("malgo: init context: %w", err)
	}
	d.mctx = mctx

	if preferred != "" {
		if id, ok := findCaptureDevice(mctx, preferred); ok {
			deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
			deviceConfig.Capture.Format = malgo.FormatS16
			deviceConfig.Capture.Channels = 1
			deviceConfig.SampleRate = uint32(d.sampleRateHint)
			deviceConfig.Capture.DeviceID = id.Pointer()
			d.format = coldvox.DeviceFormat{SampleRate: d.sampleRateHint, Channels: 1, Format: coldvox.FormatI16}
			return d.format, nil
		}
	}

	d.format = coldvox.DeviceFormat{SampleRate: d.sampleRateHint, Channels: 1, Format: coldvox.FormatI16}
	return d.format, nil
}

func findCaptureDevice(mctx *malgo.AllocatedContext, preferred string) (malgo.DeviceID, bool) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, false
	}
	for _, info := range infos {
		if containsFold(info.Name(), preferred) {
			full, err := mctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
			if err == nil {
				return full.ID, true
			}
			return info.ID, true
		}
	}
	return malgo.DeviceID{}, false
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	hl, nl := []rune(haystack), []rune(needle)
	lowerAll := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r = r - 'A' + 'a'
			}
			out[i] = r
		}
		return out
	}
	hl, nl = lowerAll(hl), lowerAll(nl)
	h, n := string(hl), string(nl)
	for i := 0; i+len(n) <= len(h); i++ {
		if h[i:i+len(n)] == n {
			return true
		}
	}
	return false
}

// Start begins the capture-only malgo device, forwarding every callback
// batch's raw S16 bytes to onSamples.
func (d *MalgoDevice) Start(onSamples func(raw []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(d.format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(d.mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_ []byte, pInput []byte, _ uint32) {
			if len(pInput) > 0 {
				onSamples(pInput)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("malgo: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("malgo: start device: %w", err)
	}
	d.device = device
	return nil
}

// Stop uninitializes the device and context. Idempotent.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.mctx != nil {
		d.mctx.Uninit()
		d.mctx.Free()
		d.mctx = nil
	}
	return nil
}
