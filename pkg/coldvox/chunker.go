package coldvox

import "context"

// Chunker downmixes and resamples device-native frames into fixed-size
// 512-sample 16kHz mono AudioFrames and fans them out over a Broadcaster.
// It owns its own accumulation buffer exclusively; Run must not be called
// concurrently from more than one goroutine.
type Chunker struct {
	deviceChannels int
	resampler      Resampler
	broadcast      *Broadcaster
	frameSamples   int

	acc         []int16
	sampleIndex int64
	logger      Logger
}

// NewChunker builds a chunker that downmixes deviceChannels-wide frames,
// resamples them with r, and publishes fixed frameSamples-sized AudioFrames
// onto b.
func NewChunker(deviceChannels int, r Resampler, b *Broadcaster, frameSamples int, logger Logger) *Chunker {
	if logger == nil {
		logger = NoOpLogger{}
	}
	if frameSamples <= 0 {
		frameSamples = FrameSamples
	}
	return &Chunker{
		deviceChannels: deviceChannels,
		resampler:      r,
		broadcast:      b,
		frameSamples:   frameSamples,
		logger:         logger,
	}
}

// Feed consumes one device-native Frame: downmix, resample, accumulate,
// and publish every complete frameSamples-sized AudioFrame it produces.
// Returns the number of AudioFrames published.
func (c *Chunker) Feed(f Frame) int {
	mono := Downmix(f.Samples, c.deviceChannels)
	resampled := c.resampler.Process(mono)
	c.acc = append(c.acc, resampled...)

	published := 0
	for len(c.acc) >= c.frameSamples {
		chunk := make([]int16, c.frameSamples)
		copy(chunk, c.acc[:c.frameSamples])
		c.acc = c.acc[c.frameSamples:]

		idx := c.sampleIndex
		c.sampleIndex += int64(c.frameSamples)
		c.broadcast.Publish(AudioFrame{
			Samples:     chunk,
			TimestampUs: idx * 1_000_000 / int64(SampleRateHz),
			SampleIndex: idx,
		})
		published++
	}
	return published
}

// Drain flushes any remaining accumulated samples as a final, possibly
// short, AudioFrame — used on graceful shutdown so the last partial chunk
// isn't silently discarded. Returns false if there was nothing to drain.
func (c *Chunker) Drain() bool {
	if len(c.acc) == 0 {
		return false
	}
	idx := c.sampleIndex
	c.sampleIndex += int64(len(c.acc))
	c.broadcast.Publish(AudioFrame{
		Samples:     c.acc,
		TimestampUs: idx * 1_000_000 / int64(SampleRateHz),
		SampleIndex: idx,
	})
	c.acc = nil
	return true
}

// Reset clears accumulation state and the resampler's filter tail, used
// after a capture recovery boundary.
func (c *Chunker) Reset() {
	c.acc = nil
	c.sampleIndex = 0
	c.resampler.Reset()
}

// Run drives Feed from a FrameReader until ctx is cancelled, reading
// device-native frames of at least minSamples at a time.
func (c *Chunker) Run(ctx context.Context, reader *FrameReader, minSamples int) error {
	for {
		f, err := reader.ReadFrame(ctx, minSamples)
		if err != nil {
			return err
		}
		c.Feed(f)
	}
}
