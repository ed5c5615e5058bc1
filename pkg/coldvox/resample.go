package coldvox

// Resampler converts a mono i16 stream at one sample rate to another. The
// concrete implementation in pkg/backends/audio wraps
// github.com/tphakala/go-audio-resampler; this interface exists so the
// chunker can be tested with a trivial stand-in that doesn't actually
// change the sample rate.
type Resampler interface {
	// Process consumes in and returns as many resampled output samples as
	// are currently available. Implementations may buffer a filter tail
	// internally, so output length does not need to track input length
	// 1:1 on every call.
	Process(in []int16) []int16

	// Reset clears any internal filter state, used after a recovery
	// boundary so the resampler doesn't blend pre- and post-restart audio.
	Reset()
}

// linearResampler is a minimal stand-in used by tests and as a last-resort
// fallback: linear interpolation between samples. It trades accuracy for
// having zero dependencies, which is fine for unit tests but not for the
// real pipeline (pkg/backends/audio.NewLibResampler wraps the real
// filter-based resampler for that).
type linearResampler struct {
	inRate, outRate int
	pos             float64 // fractional input-sample position of the next output sample
	prev            int16
	havePrev        bool
}

// NewLinearResampler builds a Resampler that is correct but not
// high-quality; used for ResampleFast and as the default when no native
// resampler is wired in.
func NewLinearResampler(inRate, outRate int) Resampler {
	return &linearResampler{inRate: inRate, outRate: outRate}
}

func (r *linearResampler) Process(in []int16) []int16 {
	if r.inRate == r.outRate {
		return append([]int16(nil), in...)
	}
	if len(in) == 0 {
		return nil
	}

	step := float64(r.inRate) / float64(r.outRate)
	var out []int16
	idx := 0
	for {
		// pos is relative to the start of `in`, offset by whatever
		// fraction carried over from the previous call.
		if !r.havePrev {
			r.prev = in[0]
			r.havePrev = true
		}
		for r.pos < float64(len(in)) {
			i := int(r.pos)
			frac := r.pos - float64(i)
			var a, b int16
			if i == 0 {
				a = r.prev
			} else {
				a = in[i-1]
			}
			if i < len(in) {
				b = in[i]
			} else {
				b = in[len(in)-1]
			}
			v := float64(a) + frac*float64(b-a)
			out = append(out, int16(v))
			r.pos += step
			idx++
		}
		break
	}
	r.pos -= float64(len(in))
	r.prev = in[len(in)-1]
	return out
}

func (r *linearResampler) Reset() {
	r.pos = 0
	r.havePrev = false
}

// Downmix averages interleaved multi-channel i16 samples into mono.
// channels must be >= 1; a channels == 1 input is returned unchanged
// (copied, not aliased).
func Downmix(interleaved []int16, channels int) []int16 {
	if channels <= 1 {
		return append([]int16(nil), interleaved...)
	}
	frames := len(interleaved) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += int32(interleaved[base+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}
