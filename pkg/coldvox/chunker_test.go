package coldvox

import (
	"context"
	"testing"
	"time"
)

func TestChunker_EmitsFixedSizeFrames(t *testing.T) {
	b := NewBroadcaster(10)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	c := NewChunker(1, NewLinearResampler(SampleRateHz, SampleRateHz), b, FrameSamples, nil)

	samples := make([]int16, FrameSamples*2+100)
	for i := range samples {
		samples[i] = int16(i)
	}
	published := c.Feed(Frame{Samples: samples})
	if published != 2 {
		t.Fatalf("expected 2 complete frames, got %d", published)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for want := 0; want < 2; want++ {
		f, lag, err := sub.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if lag != 0 {
			t.Fatalf("unexpected lag %d", lag)
		}
		if len(f.Samples) != FrameSamples {
			t.Fatalf("frame %d: expected %d samples, got %d", want, FrameSamples, len(f.Samples))
		}
	}
}

func TestChunker_DownmixesStereoToMono(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	c := NewChunker(2, NewLinearResampler(SampleRateHz, SampleRateHz), b, 2, nil)

	// Interleaved stereo: (10,20) (30,40) -> mono (15, 35)
	c.Feed(Frame{Samples: []int16{10, 20, 30, 40}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, _, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if f.Samples[0] != 15 || f.Samples[1] != 35 {
		t.Fatalf("unexpected downmix result: %v", f.Samples)
	}
}

func TestChunker_DrainFlushesPartialFrame(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	c := NewChunker(1, NewLinearResampler(SampleRateHz, SampleRateHz), b, FrameSamples, nil)
	c.Feed(Frame{Samples: make([]int16, 100)})

	if !c.Drain() {
		t.Fatal("expected Drain to flush the partial accumulation")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, _, err := sub.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if len(f.Samples) != 100 {
		t.Fatalf("expected drained frame of 100 samples, got %d", len(f.Samples))
	}

	if c.Drain() {
		t.Fatal("expected second Drain on empty accumulator to report nothing to flush")
	}
}
