// SPDX-License-Identifier: MIT
package dsp

import "math"

// directForm1 keeps the two-sample input and output history of one channel.
type directForm1 struct {
	x1, x2 float64
	y1, y2 float64
}

func (s *directForm1) next(c BiquadCoefficients, x float64) float64 {
	y := c.B[0]*x + c.B[1]*s.x1 + c.B[2]*s.x2 - c.A[1]*s.y1 - c.A[2]*s.y2
	s.x2, s.x1 = s.x1, x
	s.y2, s.y1 = s.y1, y
	return y
}

// Filter applies c to interleaved samples with the given channel count and
// returns a new slice. Each channel runs its own causal pass in time order
// starting from zero history. A channel count below 1 is treated as mono, and a
// trailing partial frame is filtered with the channels it has.
func Filter(c BiquadCoefficients, samples []float64, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	out := make([]float64, len(samples))
	state := make([]directForm1, channels)
	for i, x := range samples {
		out[i] = state[i%channels].next(c, x)
	}
	return out
}

// Quantize rounds samples to the nearest integer representable at bitDepth,
// saturating at the format's limits. It works in place and returns samples.
// A bitDepth of zero or less leaves floating samples untouched.
func Quantize(samples []float64, bitDepth int) []float64 {
	if bitDepth <= 0 {
		return samples
	}
	lo, hi := IntRange(bitDepth)
	for i, v := range samples {
		switch {
		case math.IsNaN(v):
			samples[i] = 0
		case v <= lo:
			samples[i] = lo
		case v >= hi:
			samples[i] = hi
		default:
			samples[i] = math.Round(v)
		}
	}
	return samples
}

// IntRange returns the smallest and largest sample value for signed integer
// PCM of the given width.
func IntRange(bitDepth int) (lo, hi float64) {
	full := math.Ldexp(1, bitDepth-1)
	return -full, full - 1
}
