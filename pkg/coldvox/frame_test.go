package coldvox

import (
	"context"
	"testing"
	"time"
)

func TestFrameReader_WaitsForMinSamples(t *testing.T) {
	r := NewRingBuffer(4096, DropOldest)
	fr := NewFrameReader(r, 16000, time.Millisecond)

	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Push(make([]int16, 512))
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := fr.ReadFrame(ctx, 512)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(f.Samples) < 512 {
		t.Fatalf("expected at least 512 samples, got %d", len(f.Samples))
	}
	<-done
}

func TestFrameReader_TimestampsAreMonotonic(t *testing.T) {
	r := NewRingBuffer(4096, DropOldest)
	fr := NewFrameReader(r, 16000, time.Millisecond)

	r.Push(make([]int16, 512))
	r.Push(make([]int16, 512))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f1, err := fr.ReadFrame(ctx, 512)
	if err != nil {
		t.Fatalf("ReadFrame 1: %v", err)
	}
	f2, err := fr.ReadFrame(ctx, 512)
	if err != nil {
		t.Fatalf("ReadFrame 2: %v", err)
	}
	if f2.TimestampUs <= f1.TimestampUs {
		t.Fatalf("expected monotonic timestamps, got %d then %d", f1.TimestampUs, f2.TimestampUs)
	}
	if f2.SampleIndex <= f1.SampleIndex {
		t.Fatalf("expected monotonic sample index, got %d then %d", f1.SampleIndex, f2.SampleIndex)
	}
}

func TestFrameReader_ContextCancellation(t *testing.T) {
	r := NewRingBuffer(64, DropOldest)
	fr := NewFrameReader(r, 16000, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := fr.ReadFrame(ctx, 512); err == nil {
		t.Fatal("expected error when samples never arrive before deadline")
	}
}

func TestFrameReader_ResetOnRecoveryZeroesSampleIndex(t *testing.T) {
	r := NewRingBuffer(4096, DropOldest)
	fr := NewFrameReader(r, 16000, time.Millisecond)

	r.Push(make([]int16, 512))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := fr.ReadFrame(ctx, 512); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	fr.ResetOnRecovery()

	r.Push(make([]int16, 512))
	f, err := fr.ReadFrame(ctx, 512)
	if err != nil {
		t.Fatalf("ReadFrame after reset: %v", err)
	}
	if f.SampleIndex != 0 {
		t.Fatalf("expected sample index reset to 0, got %d", f.SampleIndex)
	}
}
