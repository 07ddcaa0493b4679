// SPDX-License-Identifier: MIT
package therapy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinnitus/internal/dsp"
	"tinnitus/internal/testutil"
)

func notchRequest(path string) ProcessingRequest {
	return ProcessingRequest{
		SourcePath:       path,
		Mode:             NotchedMusicTherapy,
		NotchFrequencyHz: 1000,
		QualityFactor:    30,
	}
}

func monoSine(rate int, freq float64) *PcmBuffer {
	return &PcmBuffer{
		SampleRate: rate,
		Channels:   1,
		BitDepth:   16,
		Samples:    testutil.GeneratePCMSine(rate, float64(rate), freq, 16, 0.5),
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"notched-music", NotchedMusicTherapy, false},
		{"Notched Music Therapy", NotchedMusicTherapy, false},
		{" NMT ", NotchedMusicTherapy, false},
		{"tinnitus-retraining", TinnitusRetrainingTherapy, false},
		{"Tinnitus Retraining Therapy", TinnitusRetrainingTherapy, false},
		{"trt", TinnitusRetrainingTherapy, false},
		{"Foo", Mode("Foo"), true},
		{"", Mode(""), true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedTherapyMode)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Notched Music Therapy", NotchedMusicTherapy.DisplayName())
	assert.Equal(t, "Tinnitus Retraining Therapy", TinnitusRetrainingTherapy.DisplayName())
	assert.Equal(t, "Foo", Mode("Foo").DisplayName())
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		source string
		mode   Mode
		want   string
	}{
		{"song.wav", NotchedMusicTherapy, "song_filtered.wav"},
		{"song.wav", TinnitusRetrainingTherapy, "song_processed.wav"},
		{"/music/album/track 01.wav", NotchedMusicTherapy, "track 01_filtered.wav"},
		{"archive.tar.wav", TinnitusRetrainingTherapy, "archive.tar_processed.wav"},
		{"noext", NotchedMusicTherapy, "noext_filtered"},
		{".hidden", NotchedMusicTherapy, ".hidden_filtered"},
		{"/home/me/.hidden", TinnitusRetrainingTherapy, ".hidden_processed"},
		{".hidden.wav", NotchedMusicTherapy, ".hidden_filtered.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := OutputName(tt.source, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := OutputName("song.wav", Mode("Foo"))
	assert.ErrorIs(t, err, ErrUnsupportedTherapyMode)

	for _, source := range []string{"", ".", "..", "/", "music/.."} {
		got, err := OutputName(source, NotchedMusicTherapy)
		assert.ErrorIs(t, err, ErrInvalidSourcePath, "source %q", source)
		assert.Empty(t, got)
	}
}

func TestProcessNotchedMusic(t *testing.T) {
	in := monoSine(44100, 1000)
	orig := append([]float64(nil), in.Samples...)

	res, err := Process(notchRequest("song.wav"), in)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "song_filtered.wav", res.OutputName)
	assert.Equal(t, in.SampleRate, res.Buffer.SampleRate)
	assert.Equal(t, in.Channels, res.Buffer.Channels)
	assert.Equal(t, in.BitDepth, res.Buffer.BitDepth)
	require.Len(t, res.Buffer.Samples, len(in.Samples))
	assert.Equal(t, orig, in.Samples, "input must not be modified")

	half := len(in.Samples) / 2
	drop := testutil.DB(testutil.RMS(res.Buffer.Samples[half:]) / testutil.RMS(in.Samples[half:]))
	assert.Less(t, drop, -10.0)

	for i, v := range res.Buffer.Samples {
		require.Equal(t, float64(int64(v)), v, "sample %d not integral", i)
	}
}

func TestProcessNotchedMatchesDSP(t *testing.T) {
	in := &PcmBuffer{
		SampleRate: 48000,
		Channels:   2,
		BitDepth:   24,
		Samples: testutil.Interleave(
			testutil.GeneratePCMSine(4800, 48000, 4000, 24, 0.5),
			testutil.GeneratePCMSine(4800, 48000, 300, 24, 0.5),
		),
	}
	req := ProcessingRequest{SourcePath: "a.wav", Mode: NotchedMusicTherapy, NotchFrequencyHz: 4000, QualityFactor: 10}

	res, err := Process(req, in)
	require.NoError(t, err)

	c, err := dsp.Design(req.FilterSpec(in.SampleRate))
	require.NoError(t, err)
	want := dsp.Quantize(dsp.Filter(c, in.Samples, 2), 24)
	assert.Equal(t, want, res.Buffer.Samples)
}

func TestProcessFloatingInputIsNotQuantized(t *testing.T) {
	in := &PcmBuffer{SampleRate: 44100, Channels: 1, Samples: testutil.GenerateSineWave(1024, 44100, 1000, 0.3)}
	res, err := Process(notchRequest("f.wav"), in)
	require.NoError(t, err)

	c, err := dsp.Design(dsp.FilterSpec{CenterFrequencyHz: 1000, QualityFactor: 30, SampleRateHz: 44100})
	require.NoError(t, err)
	assert.Equal(t, dsp.Filter(c, in.Samples, 1), res.Buffer.Samples)
}

func TestProcessRetrainingIsIdentity(t *testing.T) {
	inputs := []*PcmBuffer{
		monoSine(8000, 440),
		{SampleRate: 44100, Channels: 2, BitDepth: 24, Samples: []float64{-8388608, 8388607, 0, 1}},
		{SampleRate: 22050, Channels: 1, Samples: []float64{0.25, -1, 1}},
		{SampleRate: 44100, Channels: 1, BitDepth: 16},
	}

	for _, in := range inputs {
		req := ProcessingRequest{SourcePath: "song.wav", Mode: TinnitusRetrainingTherapy, TinnitusFrequencyHz: 4000}
		res, err := Process(req, in)
		require.NoError(t, err)
		assert.Equal(t, "song_processed.wav", res.OutputName)
		require.NotNil(t, res.Buffer.Samples)
		assert.Equal(t, len(in.Samples), len(res.Buffer.Samples))
		for i := range in.Samples {
			assert.Equal(t, in.Samples[i], res.Buffer.Samples[i])
		}

		if len(in.Samples) > 0 {
			res.Buffer.Samples[0] = 42
			assert.NotEqual(t, 42.0, in.Samples[0], "result must not alias input")
		}
	}
}

func TestProcessUnsupportedMode(t *testing.T) {
	res, err := Process(ProcessingRequest{SourcePath: "song.wav", Mode: "Foo"}, monoSine(8000, 440))
	assert.ErrorIs(t, err, ErrUnsupportedTherapyMode)
	assert.Nil(t, res)
}

func TestProcessUnreadableInput(t *testing.T) {
	tests := []struct {
		name string
		in   *PcmBuffer
	}{
		{"nil buffer", nil},
		{"zero sample rate", &PcmBuffer{Channels: 1, BitDepth: 16, Samples: []float64{1}}},
		{"zero channels", &PcmBuffer{SampleRate: 8000, BitDepth: 16, Samples: []float64{1}}},
		{"partial frame", &PcmBuffer{SampleRate: 8000, Channels: 2, BitDepth: 16, Samples: []float64{1, 2, 3}}},
		{"bad bit depth", &PcmBuffer{SampleRate: 8000, Channels: 1, BitDepth: 64, Samples: []float64{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Process(notchRequest("song.wav"), tt.in)
			assert.ErrorIs(t, err, ErrUnreadableAudio)
			assert.Nil(t, res)
		})
	}
}

func TestProcessInvalidFilterSpec(t *testing.T) {
	req := notchRequest("song.wav")
	req.NotchFrequencyHz = 5000
	res, err := Process(req, monoSine(8000, 440))
	assert.ErrorIs(t, err, dsp.ErrInvalidFilterSpec)
	assert.Nil(t, res)

	req = notchRequest("song.wav")
	req.QualityFactor = 0
	_, err = Process(req, monoSine(8000, 440))
	assert.ErrorIs(t, err, dsp.ErrInvalidFilterSpec)
}

func TestFrames(t *testing.T) {
	assert.Equal(t, 0, (*PcmBuffer)(nil).Frames())
	assert.Equal(t, 0, (&PcmBuffer{}).Frames())
	assert.Equal(t, 3, (&PcmBuffer{Channels: 2, Samples: make([]float64, 6)}).Frames())
}

func BenchmarkProcessNotched(b *testing.B) {
	in := monoSine(44100, 1000)
	req := notchRequest("bench.wav")
	for b.Loop() {
		if _, err := Process(req, in); err != nil {
			b.Fatal(err)
		}
	}
}
