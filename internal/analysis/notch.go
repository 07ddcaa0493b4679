// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/tphakala/simd/f64"

	applog "tinnitus/internal/log"
	"tinnitus/internal/therapy"
)

const (
	// MaxFrames caps the analysis block taken from the end of a buffer.
	MaxFrames = 1 << 16

	// PeakSearchBins is the half-width of the window searched around the
	// notch frequency.
	PeakSearchBins = 2

	magnitudeFloor = 1e-12
)

// ErrNoEnergy is returned when the source has nothing to attenuate at the
// requested frequency.
var ErrNoEnergy = errors.New("no energy at analysis frequency")

// NotchDepth reports how far (dB, positive = attenuated) the spectrum of
// after sits below that of before near freqHz. Both buffers are mixed down to
// mono, normalized, and the trailing MaxFrames frames are compared so filter
// warm-up is excluded where the input is long enough.
func NotchDepth(before, after *therapy.PcmBuffer, freqHz float64, windowType WindowFunc) (float64, error) {
	if before == nil || after == nil {
		return 0, errors.New("notch depth needs two buffers")
	}
	if before.SampleRate != after.SampleRate {
		return 0, fmt.Errorf("sample rate mismatch: %d Hz vs %d Hz", before.SampleRate, after.SampleRate)
	}

	mb, ma := tail(Mixdown(before)), tail(Mixdown(after))
	sb, err := NewSpectrum(mb, float64(before.SampleRate), windowType)
	if err != nil {
		return 0, err
	}
	sa, err := NewSpectrum(ma, float64(after.SampleRate), windowType)
	if err != nil {
		return 0, err
	}

	bin := sb.PeakBinNear(freqHz, PeakSearchBins)
	pb := sb.Magnitudes[bin]
	if pb <= magnitudeFloor {
		return 0, fmt.Errorf("%w: %.1f Hz", ErrNoEnergy, freqHz)
	}
	pa := max(sa.PeakNear(freqHz, PeakSearchBins), magnitudeFloor)
	depth := 20 * math.Log10(pb/pa)

	applog.Debugw("Analysis: Notch depth",
		"frequency_hz", freqHz,
		"peak_hz", fmt.Sprintf("%.1f", sb.FrequencyForBin(bin)),
		"rms_before", fmt.Sprintf("%.4f", RMS(mb)),
		"rms_after", fmt.Sprintf("%.4f", RMS(ma)),
		"depth_db", fmt.Sprintf("%.1f", depth))
	return depth, nil
}

// Mixdown averages the channels of buf into one normalized [-1, 1] channel.
func Mixdown(buf *therapy.PcmBuffer) []float64 {
	channels := max(buf.Channels, 1)
	frames := len(buf.Samples) / channels
	scale := 1.0 / float64(channels)
	if buf.BitDepth > 0 {
		scale /= math.Ldexp(1, buf.BitDepth-1)
	}

	mono := make([]float64, frames)
	for i := range mono {
		sum := 0.0
		for _, s := range buf.Samples[i*channels : (i+1)*channels] {
			sum += s
		}
		mono[i] = sum * scale
	}
	return mono
}

// RMS returns the root mean square of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(f64.DotProduct(samples, samples) / float64(len(samples)))
}

func tail(samples []float64) []float64 {
	if len(samples) > MaxFrames {
		return samples[len(samples)-MaxFrames:]
	}
	return samples
}
