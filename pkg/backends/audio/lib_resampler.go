package audio

import (
	resampler "github.com/tphakala/go-audio-resampler"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

// LibResampler wraps github.com/tphakala/go-audio-resampler's fractional-
// phase filter, used for the Balanced/Quality presets; ResampleFast stays
// on coldvox.NewLinearResampler since a filter's extra cost buys it
// nothing at that quality tier.
type LibResampler struct {
	r        *resampler.Resampler
	inRate   int
	outRate  int
}

// NewLibResampler builds a LibResampler at the given quality preset.
func NewLibResampler(inRate, outRate int, quality coldvox.ResamplerQuality) *LibResampler {
	return &LibResampler{
		r:       resampler.New(resampler.Config{InputRate: inRate, OutputRate: outRate, Quality: filterQuality(quality)}),
		inRate:  inRate,
		outRate: outRate,
	}
}

func filterQuality(q coldvox.ResamplerQuality) resampler.Quality {
	switch q {
	case coldvox.ResampleQuality:
		return resampler.QualityHigh
	default:
		return resampler.QualityMedium
	}
}

// Process resamples in to the target rate using the filter's internal
// state, which carries over between calls so frame boundaries don't
// introduce discontinuities.
func (l *LibResampler) Process(in []int16) []int16 {
	return l.r.Process(in)
}

// Reset clears the filter's internal tail, used after a capture recovery
// boundary so pre- and post-restart audio never blend.
func (l *LibResampler) Reset() {
	l.r.Reset()
}
