package coldvox

import (
	"context"
	"time"
)

// Source is the minimal read side the frame reader needs: a non-blocking
// drain of whatever samples are currently available. RingBuffer satisfies
// this directly.
type Source interface {
	Pop(dst []int16) int
}

// Frame is a variable-sized, device-native-rate read from the ring buffer,
// tagged with a monotonic timestamp derived from cumulative sample count.
type Frame struct {
	Samples     []int16
	TimestampUs int64
	SampleIndex int64
}

// FrameReader drains a Source into variable-sized Frames tagged with
// monotonic timestamps. It owns the reader half of the ring buffer
// exclusively; nothing else may call Pop on the same Source concurrently.
type FrameReader struct {
	src        Source
	deviceRate int

	sampleIndex int64
	pollEvery   time.Duration
}

// NewFrameReader builds a reader over src at deviceRate Hz. pollEvery
// controls how often ReadFrame rechecks for new samples while waiting for
// minSamples to accumulate; it has no bearing on correctness, only latency.
func NewFrameReader(src Source, deviceRate int, pollEvery time.Duration) *FrameReader {
	if pollEvery <= 0 {
		pollEvery = 2 * time.Millisecond
	}
	return &FrameReader{src: src, deviceRate: deviceRate, pollEvery: pollEvery}
}

// ReadFrame blocks (via ctx, not a dedicated thread) until at least
// minSamples are available, or returns ctx.Err() if ctx is done first. Each
// Pop reads up to minSamples, so a frame assembled from several Pops may
// contain more than minSamples.
func (f *FrameReader) ReadFrame(ctx context.Context, minSamples int) (Frame, error) {
	buf := make([]int16, 0, minSamples)
	scratch := make([]int16, minSamples)

	ticker := time.NewTicker(f.pollEvery)
	defer ticker.Stop()

	for {
		n := f.src.Pop(scratch)
		if n > 0 {
			buf = append(buf, scratch[:n]...)
		}
		if len(buf) >= minSamples {
			return f.tag(buf), nil
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *FrameReader) tag(samples []int16) Frame {
	idx := f.sampleIndex
	f.sampleIndex += int64(len(samples))
	return Frame{
		Samples:     samples,
		TimestampUs: idx * 1_000_000 / int64(f.deviceRate),
		SampleIndex: idx,
	}
}

// ResetOnRecovery handles a CaptureRecovered marker: the device restarted,
// so sample counting resumes from zero and timestamps after the boundary
// start again at zero. Timestamps are monotonic only within one capture
// session.
func (f *FrameReader) ResetOnRecovery() {
	f.sampleIndex = 0
}
