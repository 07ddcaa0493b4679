// SPDX-License-Identifier: MIT
//
// Package testutil provides signal generators and measurements shared by the
// package tests.
package testutil

import "math"

// GenerateSineWave returns size samples of a sine at frequency with the given
// peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GeneratePCMSine returns a sine rounded to integer PCM values. fraction is
// the peak as a share of full scale for bitDepth.
func GeneratePCMSine(size int, sampleRate, frequency float64, bitDepth int, fraction float64) []float64 {
	full := math.Ldexp(1, bitDepth-1) - 1
	buffer := GenerateSineWave(size, sampleRate, frequency, full*fraction)
	for i, v := range buffer {
		buffer[i] = math.Round(v)
	}
	return buffer
}

// GenerateComplexWave mixes a 440 Hz fundamental with two harmonics, peaking
// near amplitude.
func GenerateComplexWave(size int, sampleRate, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = signal * amplitude
	}
	return buffer
}

// Interleave merges equally sized channel slices into one interleaved slice.
func Interleave(channels ...[]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	out := make([]float64, 0, n*len(channels))
	for i := range n {
		for _, ch := range channels {
			out = append(out, ch[i])
		}
	}
	return out
}

// Channel extracts one channel from interleaved samples.
func Channel(samples []float64, channels, index int) []float64 {
	out := make([]float64, 0, len(samples)/channels)
	for i := index; i < len(samples); i += channels {
		out = append(out, samples[i])
	}
	return out
}

// RMS returns the root mean square of s.
func RMS(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(s)))
}

// DB converts an amplitude ratio to decibels.
func DB(ratio float64) float64 {
	return 20 * math.Log10(ratio)
}
