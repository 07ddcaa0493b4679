// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"tinnitus/internal/analysis"
	"tinnitus/internal/audio"
	"tinnitus/internal/config"
	"tinnitus/internal/dsp"
	applog "tinnitus/internal/log"
	"tinnitus/internal/therapy"
	"tinnitus/internal/transport"
	"tinnitus/internal/tui"
)

// ErrBatchFailed is returned when at least one file of a batch failed.
var ErrBatchFailed = errors.New("some files failed")

// Execute runs the parsed command. Output meant for the user goes to out.
func Execute(ctx context.Context, options *Options, out io.Writer) error {
	switch options.Command {
	case CommandHelp:
		return nil
	case CommandDesign:
		return runDesign(options, out)
	}

	cfg, err := options.LoadConfig()
	if err != nil {
		return err
	}
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	switch options.Command {
	case CommandDevices:
		return runDevices(out)
	case CommandPlay:
		return runPlay(ctx, cfg, options.Files)
	case CommandWatch:
		return runWatch(ctx, cfg.Transport.UDPTargetAddress, out)
	case CommandProcess:
		return runProcess(ctx, cfg, options, out)
	default:
		return fmt.Errorf("unknown command %q", options.Command)
	}
}

func runDesign(options *Options, out io.Writer) error {
	spec := dsp.FilterSpec{
		CenterFrequencyHz: options.DesignNotchFrequencyHz,
		QualityFactor:     options.DesignQualityFactor,
		SampleRateHz:      options.DesignSampleRateHz,
	}
	c, err := dsp.Design(spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Notch %.1f Hz, Q %g, %d Hz\n", spec.CenterFrequencyHz, spec.QualityFactor, spec.SampleRateHz)
	fmt.Fprintln(out, c)
	return nil
}

func runDevices(out io.Writer) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	devices, err := audio.OutputDevices()
	if err != nil {
		return err
	}
	printDevices(out, devices)
	return nil
}

func printDevices(out io.Writer, devices []audio.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No audio output devices found.")
		return
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefaultOutput {
			marker = "*"
		}
		fmt.Fprintf(out, "%s [%d] %s\n", marker, d.ID, d.Name)
		fmt.Fprintf(out, "    Output channels: %d, Default sample rate: %.0f Hz\n", d.MaxOutputChannels, d.DefaultSampleRate)
	}
}

func runPlay(ctx context.Context, cfg *config.Config, files []string) error {
	player := audio.NewPlayer(cfg.Playback.OutputDevice, cfg.Playback.FramesPerBuffer)
	for _, f := range files {
		if err := player.Play(ctx, f); err != nil {
			return fmt.Errorf("failed to play %s: %w", f, err)
		}
	}
	return nil
}

func runWatch(ctx context.Context, address string, out io.Writer) error {
	recv, err := transport.ListenUDP(address)
	if err != nil {
		return err
	}
	defer recv.Close()

	fmt.Fprintf(out, "Listening on %s, Ctrl+C to stop\n", recv.Addr())
	return recv.Receive(ctx, func(seq uint32, sent time.Time, ev transport.Event) {
		printEvent(out, seq, sent, ev)
	})
}

func printEvent(out io.Writer, seq uint32, sent time.Time, ev transport.Event) {
	line := fmt.Sprintf("%s #%d %-9s %s", sent.Local().Format(time.TimeOnly), seq, ev.Status, ev.SourcePath)
	switch {
	case ev.Error != "":
		line += ": " + ev.Error
	case ev.OutputPath != "":
		line += " -> " + ev.OutputPath
	}
	if ev.NotchDepthDB != 0 {
		line += fmt.Sprintf(" (notch depth %.1f dB)", ev.NotchDepthDB)
	}
	fmt.Fprintln(out, line)
}

func runProcess(ctx context.Context, cfg *config.Config, options *Options, out io.Writer) error {
	reqs := make([]therapy.ProcessingRequest, 0, len(options.Files))
	for _, f := range options.Files {
		req, err := cfg.Request(f)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}

	publishers := transport.Multi{transport.NewLoggingPublisher()}
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketPublisher(cfg.Transport.WebSocketAddress)
		if err := ws.Start(); err != nil {
			return err
		}
		publishers = append(publishers, ws)
	}
	if cfg.Transport.UDPEnabled {
		udp, err := transport.NewUDPPublisher(cfg.Transport.UDPTargetAddress)
		if err != nil {
			publishers.Close()
			return err
		}
		publishers = append(publishers, udp)
	}
	defer func() {
		if err := publishers.Close(); err != nil {
			applog.Warnf("Transport: Close failed: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner, err := newRunner(cfg, publishers)
	if err != nil {
		return err
	}

	var outcomes []therapy.Outcome
	if options.TUI {
		// The view owns the terminal while it runs.
		applog.SetOutput(io.Discard)
		err := tui.RunProgress(options.Files, cancel, func(view transport.Publisher) {
			runner.Publisher = append(publishers, view)
			outcomes = runner.Run(ctx, reqs)
		})
		applog.SetOutput(os.Stderr)
		if err != nil {
			return err
		}
	} else {
		outcomes = runner.Run(ctx, reqs)
	}

	failed := printOutcomes(out, outcomes)

	if cfg.Playback.Enabled && ctx.Err() == nil {
		var played []string
		for _, o := range outcomes {
			if o.Err == nil {
				played = append(played, o.OutputPath)
			}
		}
		if err := runPlay(ctx, cfg, played); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrBatchFailed, failed, len(outcomes))
	}
	return nil
}

func newRunner(cfg *config.Config, pub transport.Publisher) (*therapy.Runner, error) {
	codec := audio.WAVCodec{}
	r := therapy.NewRunner(codec, codec, pub, cfg.Processing.OutputDir, cfg.Processing.Workers)
	if cfg.Processing.Report {
		window, err := analysis.ParseWindowFunc(cfg.Analysis.Window)
		if err != nil {
			return nil, err
		}
		r.Report = func(before, after *therapy.PcmBuffer, freqHz float64) (float64, error) {
			return analysis.NotchDepth(before, after, freqHz, window)
		}
	}
	return r, nil
}

func printOutcomes(out io.Writer, outcomes []therapy.Outcome) (failed int) {
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", o.Request.SourcePath, o.Err)
			continue
		}
		line := fmt.Sprintf("OK   %s -> %s", o.Request.SourcePath, o.OutputPath)
		if o.NotchDepthDB != 0 {
			line += fmt.Sprintf(" (notch depth %.1f dB)", o.NotchDepthDB)
		}
		fmt.Fprintln(out, line)
	}
	return failed
}
