// SPDX-License-Identifier: MIT
package dsp

import (
	"fmt"
	"math"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesignReferenceCoefficients(t *testing.T) {
	coeffs, err := Design(FilterSpec{CenterFrequencyHz: 1000, QualityFactor: 30, SampleRateHz: 44100})
	require.NoError(t, err)

	w0 := 2 * math.Pi * 1000 / 44100
	alpha := math.Sin(w0) / 60
	a0 := 1 + alpha
	want := BiquadCoefficients{
		B: [3]float64{1 / a0, -2 * math.Cos(w0) / a0, 1 / a0},
		A: [3]float64{1, -2 * math.Cos(w0) / a0, (1 - alpha) / a0},
	}

	for i := range 3 {
		assert.InDelta(t, want.B[i], coeffs.B[i], 1e-9, "b[%d]", i)
		assert.InDelta(t, want.A[i], coeffs.A[i], 1e-9, "a[%d]", i)
	}
	assert.Equal(t, 1.0, coeffs.A[0])
}

func TestDesignMatchesRBJNotch(t *testing.T) {
	specs := []FilterSpec{
		{CenterFrequencyHz: 1000, QualityFactor: 30, SampleRateHz: 44100},
		{CenterFrequencyHz: 4000, QualityFactor: 2, SampleRateHz: 48000},
		{CenterFrequencyHz: 22049.9, QualityFactor: 0.7, SampleRateHz: 44100},
		{CenterFrequencyHz: 250, QualityFactor: 100, SampleRateHz: 8000},
	}

	for _, spec := range specs {
		t.Run(fmt.Sprintf("%g/%g/%d", spec.CenterFrequencyHz, spec.QualityFactor, spec.SampleRateHz), func(t *testing.T) {
			got, err := Design(spec)
			require.NoError(t, err)

			want := design.Notch(spec.CenterFrequencyHz, spec.QualityFactor, float64(spec.SampleRateHz))
			assert.Equal(t, [3]float64{want.B0, want.B1, want.B2}, got.B)
			assert.Equal(t, [3]float64{1, want.A1, want.A2}, got.A)
		})
	}
}

func TestDesignShape(t *testing.T) {
	coeffs, err := Design(FilterSpec{CenterFrequencyHz: 4000, QualityFactor: 5, SampleRateHz: 48000})
	require.NoError(t, err)

	// Symmetric numerator with b1 == a1 is what puts the zeros on the unit circle.
	assert.Equal(t, coeffs.B[0], coeffs.B[2])
	assert.Equal(t, coeffs.B[1], coeffs.A[1])

	// Unity gain at DC and at Nyquist.
	dc := (coeffs.B[0] + coeffs.B[1] + coeffs.B[2]) / (coeffs.A[0] + coeffs.A[1] + coeffs.A[2])
	ny := (coeffs.B[0] - coeffs.B[1] + coeffs.B[2]) / (coeffs.A[0] - coeffs.A[1] + coeffs.A[2])
	assert.InDelta(t, 1.0, dc, 1e-12)
	assert.InDelta(t, 1.0, ny, 1e-12)

	// Poles inside the unit circle.
	assert.Less(t, math.Abs(coeffs.A[2]), 1.0)
}

func TestDesignDeterministic(t *testing.T) {
	spec := FilterSpec{CenterFrequencyHz: 3150.5, QualityFactor: 12.25, SampleRateHz: 96000}
	first, err := Design(spec)
	require.NoError(t, err)
	for range 100 {
		again, err := Design(spec)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestDesignNyquistBoundary(t *testing.T) {
	const fs = 44100
	nyquist := float64(fs) / 2

	tests := []struct {
		name    string
		freq    float64
		wantErr bool
	}{
		{"just below Nyquist", nyquist - 1e-6, false},
		{"one hertz below Nyquist", nyquist - 1, false},
		{"at Nyquist", nyquist, true},
		{"above Nyquist", nyquist + 1, true},
		{"far above Nyquist", 100000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coeffs, err := Design(FilterSpec{CenterFrequencyHz: tt.freq, QualityFactor: 30, SampleRateHz: fs})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFilterSpec)
				assert.Equal(t, BiquadCoefficients{}, coeffs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1.0, coeffs.A[0])
		})
	}
}

func TestDesignRejectsInvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec FilterSpec
	}{
		{"zero sample rate", FilterSpec{CenterFrequencyHz: 1000, QualityFactor: 30, SampleRateHz: 0}},
		{"negative sample rate", FilterSpec{CenterFrequencyHz: 1000, QualityFactor: 30, SampleRateHz: -44100}},
		{"zero frequency", FilterSpec{CenterFrequencyHz: 0, QualityFactor: 30, SampleRateHz: 44100}},
		{"negative frequency", FilterSpec{CenterFrequencyHz: -1000, QualityFactor: 30, SampleRateHz: 44100}},
		{"NaN frequency", FilterSpec{CenterFrequencyHz: math.NaN(), QualityFactor: 30, SampleRateHz: 44100}},
		{"zero Q", FilterSpec{CenterFrequencyHz: 1000, QualityFactor: 0, SampleRateHz: 44100}},
		{"negative Q", FilterSpec{CenterFrequencyHz: 1000, QualityFactor: -2, SampleRateHz: 44100}},
		{"infinite Q", FilterSpec{CenterFrequencyHz: 1000, QualityFactor: math.Inf(1), SampleRateHz: 44100}},
		{"NaN Q", FilterSpec{CenterFrequencyHz: 1000, QualityFactor: math.NaN(), SampleRateHz: 44100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Design(tt.spec)
			require.ErrorIs(t, err, ErrInvalidFilterSpec)
		})
	}
}

func BenchmarkDesign(b *testing.B) {
	spec := FilterSpec{CenterFrequencyHz: 1000, QualityFactor: 30, SampleRateHz: 44100}
	b.ReportAllocs()
	for b.Loop() {
		_, _ = Design(spec)
	}
}
