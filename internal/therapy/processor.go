// SPDX-License-Identifier: MIT
/*
Package therapy turns a decoded PCM buffer into the therapy output for one
request.

Two modes exist:
  - Notched music therapy removes a narrow band around the notch frequency
    with a second-order IIR notch (see package dsp).
  - Tinnitus retraining therapy is an identity transform. The tinnitus
    frequency travels with the request for reporting only.

Process is safe for concurrent use. It keeps no state between calls and never
writes to the input buffer.
*/
package therapy

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"tinnitus/internal/dsp"
)

var (
	// ErrUnsupportedTherapyMode is returned for a Mode other than the two known ones.
	ErrUnsupportedTherapyMode = errors.New("unsupported therapy mode")

	// ErrUnreadableAudio marks input that could not be decoded or carries no usable format.
	ErrUnreadableAudio = errors.New("unreadable audio")

	// ErrInvalidSourcePath is returned when a source path names no file.
	ErrInvalidSourcePath = errors.New("invalid source path")
)

// Mode selects the transformation applied to a file.
type Mode string

const (
	NotchedMusicTherapy       Mode = "notched-music"
	TinnitusRetrainingTherapy Mode = "tinnitus-retraining"
)

// ParseMode accepts the canonical mode names, their display names and the
// short aliases used on the command line.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notched-music", "notched music therapy", "notched", "nmt":
		return NotchedMusicTherapy, nil
	case "tinnitus-retraining", "tinnitus retraining therapy", "retraining", "trt":
		return TinnitusRetrainingTherapy, nil
	default:
		return Mode(s), fmt.Errorf("%w: %q", ErrUnsupportedTherapyMode, s)
	}
}

// DisplayName returns the human-readable name shown in reports.
func (m Mode) DisplayName() string {
	switch m {
	case NotchedMusicTherapy:
		return "Notched Music Therapy"
	case TinnitusRetrainingTherapy:
		return "Tinnitus Retraining Therapy"
	default:
		return string(m)
	}
}

// suffix is appended to the source stem to build the output name.
func (m Mode) suffix() (string, bool) {
	switch m {
	case NotchedMusicTherapy:
		return "_filtered", true
	case TinnitusRetrainingTherapy:
		return "_processed", true
	default:
		return "", false
	}
}

// PcmBuffer is decoded, interleaved audio.
//
// With BitDepth > 0 the samples are signed integer PCM values of that width
// held exactly in float64. With BitDepth == 0 they are floating samples
// nominally in [-1, 1].
type PcmBuffer struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    []float64
}

// Frames returns the number of sample frames in the buffer.
func (b *PcmBuffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

func (b *PcmBuffer) validate() error {
	switch {
	case b == nil:
		return fmt.Errorf("%w: no buffer", ErrUnreadableAudio)
	case b.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrUnreadableAudio, b.SampleRate)
	case b.Channels <= 0:
		return fmt.Errorf("%w: channel count %d", ErrUnreadableAudio, b.Channels)
	case len(b.Samples)%b.Channels != 0:
		return fmt.Errorf("%w: %d samples do not fill %d-channel frames", ErrUnreadableAudio, len(b.Samples), b.Channels)
	case b.BitDepth < 0 || b.BitDepth > 32:
		return fmt.Errorf("%w: bit depth %d", ErrUnreadableAudio, b.BitDepth)
	}
	return nil
}

// ProcessingRequest is built once per submitted file and never changed
// afterwards.
type ProcessingRequest struct {
	SourcePath          string
	Mode                Mode
	NotchFrequencyHz    float64 // Required for NotchedMusicTherapy.
	QualityFactor       float64 // Required for NotchedMusicTherapy.
	TinnitusFrequencyHz float64 // Informational, used by TinnitusRetrainingTherapy reports.
}

// FilterSpec returns the notch specification the request asks for at the
// given sample rate.
func (r ProcessingRequest) FilterSpec(sampleRate int) dsp.FilterSpec {
	return dsp.FilterSpec{
		CenterFrequencyHz: r.NotchFrequencyHz,
		QualityFactor:     r.QualityFactor,
		SampleRateHz:      sampleRate,
	}
}

// ProcessingResult is the output for one request.
type ProcessingResult struct {
	OutputName string
	Buffer     *PcmBuffer
}

// OutputName derives the output file name for source under mode. Only the
// base name of source is used; the suffix goes before the extension. A
// leading dot does not start an extension, so ".hidden" becomes
// ".hidden_filtered".
func OutputName(source string, mode Mode) (string, error) {
	suffix, ok := mode.suffix()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTherapyMode, mode)
	}
	base := filepath.Base(source)
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidSourcePath, source)
	}
	ext := filepath.Ext(base)
	if ext == base {
		ext = ""
	}
	return strings.TrimSuffix(base, ext) + suffix + ext, nil
}

// Process applies the request's therapy to input.
func Process(req ProcessingRequest, input *PcmBuffer) (*ProcessingResult, error) {
	name, err := OutputName(req.SourcePath, req.Mode)
	if err != nil {
		return nil, err
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	var samples []float64
	switch req.Mode {
	case NotchedMusicTherapy:
		coeffs, err := dsp.Design(req.FilterSpec(input.SampleRate))
		if err != nil {
			return nil, err
		}
		samples = dsp.Quantize(dsp.Filter(coeffs, input.Samples, input.Channels), input.BitDepth)
	case TinnitusRetrainingTherapy:
		samples = append([]float64(nil), input.Samples...)
		if samples == nil {
			samples = []float64{}
		}
	}

	return &ProcessingResult{
		OutputName: name,
		Buffer: &PcmBuffer{
			SampleRate: input.SampleRate,
			Channels:   input.Channels,
			BitDepth:   input.BitDepth,
			Samples:    samples,
		},
	}, nil
}
