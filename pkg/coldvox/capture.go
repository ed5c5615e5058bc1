package coldvox

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// SampleFormat enumerates the native sample encodings a Device may report;
// anything other than I16 is converted via saturating scale before it
// reaches the ring buffer.
type SampleFormat int

const (
	FormatI16 SampleFormat = iota
	FormatF32
	FormatU16
	FormatU8
	FormatI8
)

// DeviceFormat is the negotiated capture format.
type DeviceFormat struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

// Device is the hardware/OS boundary the capture thread drives. The
// concrete malgo-backed implementation lives in pkg/backends/audio; Device
// is deliberately push-based (onSamples is invoked by the device's own
// real-time callback) rather than pull-based, mirroring how OS audio APIs
// actually deliver data.
type Device interface {
	// Open selects a device (by name if preferred is non-empty, else the
	// default) and negotiates a format, preferring I16 mono at 16kHz.
	Open(preferred string) (DeviceFormat, error)

	// Start begins delivering callback batches to onSamples on the
	// device's own thread until Stop is called. onSamples must never
	// block for long — it only converts and pushes into the ring buffer.
	Start(onSamples func(raw []byte)) error

	// Stop halts delivery and releases the device. Idempotent.
	Stop() error
}

// CaptureThread owns a Device and the ring buffer's writer half
// exclusively. It does not classify device errors: Device has no error
// callback, so a device that fails simply stops calling back, which shows
// up only as a stale LastDataAt in Stats for the watchdog's liveness
// timeout.
type CaptureThread struct {
	ring   *RingBuffer
	logger Logger

	mu      sync.Mutex
	device  Device
	format  DeviceFormat
	running bool

	framesCaptured atomic.Int64
	framesDropped  atomic.Int64
	reconnects     atomic.Int64
	lastDataAtNano atomic.Int64
}

// NewCaptureThread builds a capture thread writing into ring.
func NewCaptureThread(ring *RingBuffer, logger Logger) *CaptureThread {
	if logger == nil {
		logger = NoOpLogger{}
	}
	return &CaptureThread{ring: ring, logger: logger}
}

// Start opens device, negotiates format, and begins pushing converted i16
// samples into the ring buffer. Returns DeviceOpenError-wrapping errors on
// failure to open or on a zero reported sample rate.
func (c *CaptureThread) Start(device Device, preferred string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format, err := device.Open(preferred)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceOpenFailed, err)
	}
	if format.SampleRate == 0 {
		return fmt.Errorf("%w: device reported sample rate 0", ErrDeviceOpenFailed)
	}

	c.device = device
	c.format = format
	c.running = true
	c.lastDataAtNano.Store(time.Now().UnixNano())

	if err := device.Start(c.onSamples); err != nil {
		c.running = false
		return fmt.Errorf("%w: %v", ErrDeviceStream, err)
	}
	return nil
}

// Stop signals the device to stop and releases it. Idempotent.
func (c *CaptureThread) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.device == nil {
		return nil
	}
	c.running = false
	return c.device.Stop()
}

// Format returns the negotiated device format.
func (c *CaptureThread) Format() DeviceFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Stats returns a snapshot of capture counters.
func (c *CaptureThread) Stats() CaptureStats {
	return CaptureStats{
		FramesCaptured: c.framesCaptured.Load(),
		FramesDropped:  c.framesDropped.Load(),
		Reconnects:     c.reconnects.Load(),
		LastDataAt:     time.Unix(0, c.lastDataAtNano.Load()),
	}
}

// onSamples runs on the device's own callback thread: it must never
// block. An empty buffer is ignored outright (it does not update
// last_data_at, per the edge-case contract).
func (c *CaptureThread) onSamples(raw []byte) {
	if len(raw) == 0 {
		return
	}
	c.mu.Lock()
	format := c.format
	c.mu.Unlock()

	samples := convertToI16(raw, format.Format)
	if len(samples) == 0 {
		return
	}

	written := c.ring.Push(samples)
	c.framesCaptured.Add(int64(written))
	if dropped := len(samples) - written; dropped > 0 {
		c.framesDropped.Add(int64(dropped))
	}
	c.lastDataAtNano.Store(time.Now().UnixNano())
}

// convertToI16 saturating-scales raw bytes of the given format into i16
// samples; I16 input is a straight reinterpret (little-endian).
func convertToI16(raw []byte, format SampleFormat) []int16 {
	switch format {
	case FormatI16:
		out := make([]int16, len(raw)/2)
		for i := range out {
			out[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
		}
		return out
	case FormatF32:
		out := make([]int16, len(raw)/4)
		for i := range out {
			bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
			f := math.Float32frombits(bits)
			out[i] = saturateF32ToI16(f)
		}
		return out
	case FormatU16:
		out := make([]int16, len(raw)/2)
		for i := range out {
			u := uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
			out[i] = int16(int32(u) - 32768)
		}
		return out
	case FormatU8:
		out := make([]int16, len(raw))
		for i, b := range raw {
			out[i] = int16((int32(b) - 128) * 256)
		}
		return out
	case FormatI8:
		out := make([]int16, len(raw))
		for i, b := range raw {
			out[i] = int16(int8(b)) * 256
		}
		return out
	default:
		return nil
	}
}

func saturateF32ToI16(f float32) int16 {
	v := float64(f) * 32767.0
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Handle adapts CaptureThread to the Watchdog's CaptureController
// interface, re-opening the same device on every restart.
type Handle struct {
	thread   *CaptureThread
	device   Device
	preferred string
}

// NewHandle builds a Handle the watchdog can Start/Stop.
func NewHandle(ring *RingBuffer, device Device, preferred string, logger Logger) *Handle {
	return &Handle{thread: NewCaptureThread(ring, logger), device: device, preferred: preferred}
}

func (h *Handle) Start(ctx context.Context) error {
	return h.thread.Start(h.device, h.preferred)
}

func (h *Handle) Stop() {
	h.thread.Stop()
}

func (h *Handle) Stats() CaptureStats {
	return h.thread.Stats()
}
