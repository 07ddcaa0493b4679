// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Nuttall
)

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// applyWindow windows seq in place.
func applyWindow(seq []float64, windowType WindowFunc) {
	switch windowType {
	case BartlettHann:
		window.BartlettHann(seq)
	case Blackman:
		window.Blackman(seq)
	case BlackmanNuttall:
		window.BlackmanNuttall(seq)
	case Hamming:
		window.Hamming(seq)
	case Nuttall:
		window.Nuttall(seq)
	default:
		window.Hann(seq)
	}
}

// Spectrum is the magnitude spectrum of one windowed block of samples.
type Spectrum struct {
	SampleRate float64
	Size       int       // Number of time-domain points transformed.
	Magnitudes []float64 // Size/2 + 1 bins, DC first.
}

// NewSpectrum windows a copy of samples and computes its magnitude spectrum.
func NewSpectrum(samples []float64, sampleRate float64, windowType WindowFunc) (*Spectrum, error) {
	if len(samples) < 2 {
		return nil, fmt.Errorf("spectrum needs at least 2 samples, got %d", len(samples))
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	seq := append([]float64(nil), samples...)
	applyWindow(seq, windowType)

	fft := fourier.NewFFT(len(seq))
	coeffs := fft.Coefficients(nil, seq)
	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = cmplx.Abs(c)
	}

	return &Spectrum{SampleRate: sampleRate, Size: len(seq), Magnitudes: mags}, nil
}

// FrequencyForBin returns the center frequency (Hz) of bin i, or 0 when i is
// out of range.
func (s *Spectrum) FrequencyForBin(i int) float64 {
	if i < 0 || i >= len(s.Magnitudes) {
		return 0
	}
	return float64(i) * s.SampleRate / float64(s.Size)
}

// BinForFrequency returns the bin closest to freq, clamped to the spectrum.
func (s *Spectrum) BinForFrequency(freq float64) int {
	bin := int(math.Round(freq * float64(s.Size) / s.SampleRate))
	return max(0, min(bin, len(s.Magnitudes)-1))
}

// PeakBinNear returns the bin with the largest magnitude within width bins
// of freq. Ties go to the lower bin.
func (s *Spectrum) PeakBinNear(freq float64, width int) int {
	center := s.BinForFrequency(freq)
	lo := max(0, center-width)
	hi := min(len(s.Magnitudes)-1, center+width)
	peak := lo
	for i := lo + 1; i <= hi; i++ {
		if s.Magnitudes[i] > s.Magnitudes[peak] {
			peak = i
		}
	}
	return peak
}

// PeakNear returns the largest magnitude within width bins of freq.
func (s *Spectrum) PeakNear(freq float64, width int) float64 {
	return s.Magnitudes[s.PeakBinNear(freq, width)]
}
