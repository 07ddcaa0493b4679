// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"tinnitus/internal/dsp"
	applog "tinnitus/internal/log"
	"tinnitus/internal/therapy"
)

const (
	wavFormatPCM = 1 // WAVE_FORMAT_PCM

	// floatExportBitDepth is used when a floating buffer has to be written.
	floatExportBitDepth = 16
)

// WAVCodec reads and writes uncompressed PCM WAV files. It satisfies the
// runner's Decoder and Encoder.
type WAVCodec struct{}

// Decode reads the whole file at path into an interleaved buffer. Anything
// that is not 16, 24 or 32-bit integer PCM WAV fails with
// therapy.ErrUnreadableAudio.
func (WAVCodec) Decode(path string) (*therapy.PcmBuffer, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" && ext != ".wave" {
		return nil, fmt.Errorf("%w: %s: unsupported container %q", therapy.ErrUnreadableAudio, path, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", therapy.ErrUnreadableAudio, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s: invalid WAV file", therapy.ErrUnreadableAudio, path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: %s: WAV format %d is not integer PCM", therapy.ErrUnreadableAudio, path, dec.WavAudioFormat)
	}
	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %s: unsupported bit depth %d", therapy.ErrUnreadableAudio, path, bitDepth)
	}

	ib, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", therapy.ErrUnreadableAudio, path, err)
	}

	buf := FromIntBuffer(ib, bitDepth)
	applog.Debugf("WAVCodec: Decoded %s (%d Hz, %d ch, %d-bit, %d frames)",
		path, buf.SampleRate, buf.Channels, buf.BitDepth, buf.Frames())
	return buf, nil
}

// Encode writes buf to path as PCM WAV at the buffer's bit depth. Floating
// buffers are written as 16-bit. A partially written file is removed on error.
func (WAVCodec) Encode(path string, buf *therapy.PcmBuffer) (err error) {
	if buf == nil || buf.SampleRate <= 0 || buf.Channels <= 0 {
		return errors.New("encode: buffer has no usable format")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	ib := ToIntBuffer(buf)
	enc := wav.NewEncoder(file, buf.SampleRate, ib.SourceBitDepth, buf.Channels, wavFormatPCM)
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	return nil
}

// FromIntBuffer converts a go-audio buffer into a therapy buffer.
func FromIntBuffer(ib *audio.IntBuffer, bitDepth int) *therapy.PcmBuffer {
	samples := make([]float64, len(ib.Data))
	for i, v := range ib.Data {
		samples[i] = float64(v)
	}
	return &therapy.PcmBuffer{
		SampleRate: ib.Format.SampleRate,
		Channels:   ib.Format.NumChannels,
		BitDepth:   bitDepth,
		Samples:    samples,
	}
}

// ToIntBuffer converts a therapy buffer into a go-audio buffer. Floating
// samples are scaled to 16-bit full scale and clamped.
func ToIntBuffer(buf *therapy.PcmBuffer) *audio.IntBuffer {
	bitDepth := buf.BitDepth
	samples := buf.Samples
	if bitDepth <= 0 {
		bitDepth = floatExportBitDepth
		_, hi := dsp.IntRange(bitDepth)
		samples = make([]float64, len(buf.Samples))
		for i, v := range buf.Samples {
			samples[i] = v * hi
		}
		dsp.Quantize(samples, bitDepth)
	}

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: buf.Channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}
