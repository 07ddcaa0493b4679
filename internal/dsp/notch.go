// SPDX-License-Identifier: MIT
/*
Package dsp designs and applies the second-order IIR notch used by the
notched music therapy path.

The coefficients come from algo-dsp's RBJ notch design:

	w0    = 2*pi*f0/fs
	alpha = sin(w0) / (2*Q)
	b     = [1, -2*cos(w0), 1] / (1 + alpha)
	a     = [1, -2*cos(w0) / (1 + alpha), (1 - alpha) / (1 + alpha)]

All functions are pure; nothing in this package holds state between calls.
*/
package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// ErrInvalidFilterSpec is returned when a FilterSpec is outside the range the
// notch design is defined for.
var ErrInvalidFilterSpec = errors.New("invalid filter spec")

// FilterSpec describes the notch to design.
type FilterSpec struct {
	CenterFrequencyHz float64 // Notch center, must lie strictly inside (0, SampleRateHz/2).
	QualityFactor     float64 // Notch narrowness, higher is narrower.
	SampleRateHz      int     // Sample rate of the signal the filter runs on.
}

// Validate reports whether the spec can be designed.
func (s FilterSpec) Validate() error {
	if s.SampleRateHz <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFilterSpec, s.SampleRateHz)
	}
	nyquist := float64(s.SampleRateHz) / 2
	if math.IsNaN(s.CenterFrequencyHz) || s.CenterFrequencyHz <= 0 || s.CenterFrequencyHz >= nyquist {
		return fmt.Errorf("%w: center frequency %g Hz outside (0, %g) Hz", ErrInvalidFilterSpec, s.CenterFrequencyHz, nyquist)
	}
	if math.IsNaN(s.QualityFactor) || math.IsInf(s.QualityFactor, 0) || s.QualityFactor <= 0 {
		return fmt.Errorf("%w: quality factor must be positive and finite, got %g", ErrInvalidFilterSpec, s.QualityFactor)
	}
	return nil
}

// BiquadCoefficients holds the transfer function of one second-order section.
// B is the feed-forward numerator and A the feedback denominator, A[0] == 1.
type BiquadCoefficients struct {
	B [3]float64
	A [3]float64
}

// String renders the coefficients the way the design command prints them.
func (c BiquadCoefficients) String() string {
	return fmt.Sprintf("b=[%.12g %.12g %.12g] a=[%.12g %.12g %.12g]",
		c.B[0], c.B[1], c.B[2], c.A[0], c.A[1], c.A[2])
}

// Design computes the notch biquad for spec.
func Design(spec FilterSpec) (BiquadCoefficients, error) {
	if err := spec.Validate(); err != nil {
		return BiquadCoefficients{}, err
	}

	c := design.Notch(spec.CenterFrequencyHz, spec.QualityFactor, float64(spec.SampleRateHz))
	return BiquadCoefficients{
		B: [3]float64{c.B0, c.B1, c.B2},
		A: [3]float64{1, c.A1, c.A2},
	}, nil
}
