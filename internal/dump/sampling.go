package dump

import "math/rand"

// SamplingShift is the fixed-point precision of the sampling gate: a
// probability is stored as an integer numerator over 1<<SamplingShift.
const SamplingShift = 28

const samplingMask = 1<<SamplingShift - 1

// sampler is a fixed-point Bernoulli gate. Storing the probability as an
// integer fraction of a power of two keeps repeated draws bit-exact for a
// given seed on every platform.
type sampler struct {
	prob uint32
	rng  *rand.Rand
}

func newSampler(prob float64, seed int64) *sampler {
	return &sampler{prob: probToFixed(prob), rng: rand.New(rand.NewSource(seed))}
}

// probToFixed converts a [0,1] probability to its fixed-point numerator.
// Conversion happens once at configuration time; all sampling decisions use
// integer arithmetic only.
func probToFixed(p float64) uint32 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1 << SamplingShift
	}
	return uint32(p*(1<<SamplingShift) + 0.5)
}

// fixedToProb reports the probability actually in effect after fixed-point
// rounding.
func fixedToProb(prob uint32) float64 {
	return float64(prob) / (1 << SamplingShift)
}

// Accept draws one Bernoulli sample. Probabilities of exactly zero or one
// are decided without consuming entropy, so a disabled gate never perturbs
// the random stream.
func (s *sampler) Accept() bool {
	if s.prob >= 1<<SamplingShift {
		return true
	}
	if s.prob == 0 {
		return false
	}
	return uint32(s.rng.Int63())&samplingMask < s.prob
}
