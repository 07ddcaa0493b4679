// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
	"github.com/tphakala/simd/f64"

	applog "tinnitus/internal/log"
	"tinnitus/internal/therapy"
)

// DefaultFramesPerBuffer balances callback rate against latency.
const DefaultFramesPerBuffer = 512

// Player plays WAV files on a PortAudio output device.
type Player struct {
	DeviceID        int
	FramesPerBuffer int
}

// NewPlayer creates a player for deviceID (DefaultDeviceID for the host
// default).
func NewPlayer(deviceID, framesPerBuffer int) *Player {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &Player{DeviceID: deviceID, FramesPerBuffer: framesPerBuffer}
}

// Play decodes path and plays it to the end or until ctx is done.
func (p *Player) Play(ctx context.Context, path string) error {
	buf, err := WAVCodec{}.Decode(path)
	if err != nil {
		return err
	}
	applog.Infof("Player: Playing %s", path)
	return p.PlayBuffer(ctx, buf)
}

// PlayBuffer plays buf to the end or until ctx is done.
func (p *Player) PlayBuffer(ctx context.Context, buf *therapy.PcmBuffer) error {
	if err := Initialize(); err != nil {
		return err
	}
	defer Terminate()

	device, err := OutputDevice(p.DeviceID)
	if err != nil {
		return err
	}
	if buf.Channels > device.MaxOutputChannels {
		return fmt.Errorf("device %s supports %d channels, file has %d", device.Name, device.MaxOutputChannels, buf.Channels)
	}

	pb := newPlayback(buf)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: buf.Channels,
			Latency:  device.DefaultHighOutputLatency,
		},
		FramesPerBuffer: p.FramesPerBuffer,
		SampleRate:      float64(buf.SampleRate),
	}

	stream, err := portaudio.OpenStream(params, pb.fill)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	select {
	case <-pb.done:
	case <-ctx.Done():
	}

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop output stream: %w", err)
	}
	return ctx.Err()
}

// playback feeds pre-converted samples to the PortAudio callback.
type playback struct {
	samples  []float32
	pos      int
	done     chan struct{}
	finished bool
}

func newPlayback(buf *therapy.PcmBuffer) *playback {
	normalized := Normalize(buf)
	samples := make([]float32, len(normalized))
	for i, v := range normalized {
		samples[i] = float32(v)
	}
	pb := &playback{samples: samples, done: make(chan struct{})}
	if len(samples) == 0 {
		pb.finish()
	}
	return pb
}

// fill runs on the PortAudio callback thread. No allocations.
func (pb *playback) fill(out []float32) {
	n := copy(out, pb.samples[pb.pos:])
	pb.pos += n
	clear(out[n:])
	if pb.pos >= len(pb.samples) {
		pb.finish()
	}
}

// finish is only called from newPlayback and the callback thread.
func (pb *playback) finish() {
	if !pb.finished {
		pb.finished = true
		close(pb.done)
	}
}

// Normalize returns the buffer's samples scaled to [-1, 1]. Floating buffers
// are copied unchanged.
func Normalize(buf *therapy.PcmBuffer) []float64 {
	out := make([]float64, len(buf.Samples))
	if len(out) == 0 {
		return out
	}
	if buf.BitDepth <= 0 {
		copy(out, buf.Samples)
		return out
	}
	f64.Scale(out, buf.Samples, 1/math.Ldexp(1, buf.BitDepth-1))
	return out
}
