package coldvox

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

type fakeDevice struct {
	format   DeviceFormat
	openErr  error
	started  func(onSamples func(raw []byte))
	stopped  bool
}

func (f *fakeDevice) Open(preferred string) (DeviceFormat, error) {
	if f.openErr != nil {
		return DeviceFormat{}, f.openErr
	}
	return f.format, nil
}

func (f *fakeDevice) Start(onSamples func(raw []byte)) error {
	if f.started != nil {
		f.started(onSamples)
	}
	return nil
}

func (f *fakeDevice) Stop() error {
	f.stopped = true
	return nil
}

func TestCaptureThread_OpenFailurePropagatesAsDeviceOpenError(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("no device")}
	ct := NewCaptureThread(NewRingBuffer(1024, DropOldest), nil)
	err := ct.Start(dev, "")
	if !errors.Is(err, ErrDeviceOpenFailed) {
		t.Fatalf("expected ErrDeviceOpenFailed, got %v", err)
	}
}

func TestCaptureThread_ZeroSampleRateIsDeviceOpenError(t *testing.T) {
	dev := &fakeDevice{format: DeviceFormat{SampleRate: 0, Channels: 1, Format: FormatI16}}
	ct := NewCaptureThread(NewRingBuffer(1024, DropOldest), nil)
	err := ct.Start(dev, "")
	if !errors.Is(err, ErrDeviceOpenFailed) {
		t.Fatalf("expected ErrDeviceOpenFailed for zero sample rate, got %v", err)
	}
}

func TestCaptureThread_PushesI16SamplesIntoRing(t *testing.T) {
	ring := NewRingBuffer(1024, DropOldest)
	var captured func(raw []byte)
	dev := &fakeDevice{
		format: DeviceFormat{SampleRate: 16000, Channels: 1, Format: FormatI16},
		started: func(onSamples func(raw []byte)) {
			captured = onSamples
		},
	}
	ct := NewCaptureThread(ring, nil)
	if err := ct.Start(dev, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	raw := make([]byte, 8)
	binary.LittleEndian.PutUint16(raw[0:2], uint16(int16(100)))
	binary.LittleEndian.PutUint16(raw[2:4], uint16(int16(-100)))
	binary.LittleEndian.PutUint16(raw[4:6], uint16(int16(200)))
	binary.LittleEndian.PutUint16(raw[6:8], uint16(int16(-200)))
	captured(raw)

	out := make([]int16, 4)
	n := ring.Pop(out)
	if n != 4 {
		t.Fatalf("expected 4 samples in ring, got %d", n)
	}
	want := []int16{100, -100, 200, -200}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sample %d: want %d got %d", i, want[i], out[i])
		}
	}

	stats := ct.Stats()
	if stats.FramesCaptured != 4 {
		t.Fatalf("expected 4 frames captured, got %d", stats.FramesCaptured)
	}
}

func TestCaptureThread_EmptyBufferIgnored(t *testing.T) {
	ring := NewRingBuffer(1024, DropOldest)
	var captured func(raw []byte)
	dev := &fakeDevice{
		format:  DeviceFormat{SampleRate: 16000, Channels: 1, Format: FormatI16},
		started: func(onSamples func(raw []byte)) { captured = onSamples },
	}
	ct := NewCaptureThread(ring, nil)
	if err := ct.Start(dev, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	before := ct.Stats().LastDataAt
	captured(nil)
	after := ct.Stats().LastDataAt
	if !before.Equal(after) {
		t.Fatal("expected last_data_at unchanged on empty buffer")
	}
}

func TestConvertToI16_F32Saturates(t *testing.T) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(2.0)) // out of [-1,1] range
	out := convertToI16(buf, FormatF32)
	if out[0] != 32767 {
		t.Fatalf("expected saturation to 32767, got %d", out[0])
	}
}

func TestHandle_SatisfiesCaptureController(t *testing.T) {
	dev := &fakeDevice{format: DeviceFormat{SampleRate: 16000, Channels: 1, Format: FormatI16}}
	h := NewHandle(NewRingBuffer(256, DropOldest), dev, "", nil)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.Stop()
	if !dev.stopped {
		t.Fatal("expected device Stop called")
	}
	_ = h.Stats()
}
