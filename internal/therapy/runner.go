// SPDX-License-Identifier: MIT
package therapy

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	applog "tinnitus/internal/log"
	"tinnitus/internal/transport"
)

// Decoder reads an audio file into a PCM buffer.
type Decoder interface {
	Decode(path string) (*PcmBuffer, error)
}

// Encoder writes a PCM buffer to path.
type Encoder interface {
	Encode(path string, buf *PcmBuffer) error
}

// ReportFunc measures the effect of processing, returning the attenuation in
// dB at freqHz.
type ReportFunc func(before, after *PcmBuffer, freqHz float64) (float64, error)

// Outcome is what happened to one file of a batch.
type Outcome struct {
	TaskID       string
	Request      ProcessingRequest
	OutputPath   string
	Result       *ProcessingResult
	NotchDepthDB float64
	Err          error
}

// Runner processes batches of files: decode, Process, encode, publish.
type Runner struct {
	Decoder   Decoder
	Encoder   Encoder
	Publisher transport.Publisher // Optional.
	Report    ReportFunc          // Optional, notched requests only.
	OutputDir string
	Workers   int // <= 0 means runtime.NumCPU().

	now func() time.Time
}

// NewRunner returns a Runner writing to outputDir.
func NewRunner(dec Decoder, enc Encoder, pub transport.Publisher, outputDir string, workers int) *Runner {
	return &Runner{
		Decoder:   dec,
		Encoder:   enc,
		Publisher: pub,
		OutputDir: outputDir,
		Workers:   workers,
	}
}

// Run processes reqs with bounded concurrency and returns one Outcome per
// request, in the order given. A failing file never stops the others. Once
// ctx is done, files that have not started are skipped with ctx's error.
func (r *Runner) Run(ctx context.Context, reqs []ProcessingRequest) []Outcome {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	applog.Infow("Runner: Starting batch", "files", len(reqs), "workers", workers)

	outcomes := make([]Outcome, len(reqs))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i] = r.runOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	applog.Infow("Runner: Batch finished", "files", len(reqs), "failed", failed)
	return outcomes
}

func (r *Runner) runOne(ctx context.Context, req ProcessingRequest) Outcome {
	if err := ctx.Err(); err != nil {
		return r.fail(failedTask(req, err), err)
	}

	input, err := r.Decoder.Decode(req.SourcePath)
	if err != nil {
		return r.fail(failedTask(req, err), err)
	}

	t := Submit(req, input)
	out := Outcome{TaskID: t.ID, Request: req}
	r.publish(r.event(t, transport.StatusStarted, &out))

	// A started pass finishes even when ctx ends.
	out.Result, out.Err = t.Wait(context.WithoutCancel(ctx))
	if out.Err == nil {
		out.OutputPath = filepath.Join(r.OutputDir, out.Result.OutputName)
		if err := r.Encoder.Encode(out.OutputPath, out.Result.Buffer); err != nil {
			out.Err = fmt.Errorf("failed to write %s: %w", out.OutputPath, err)
		}
	}
	if out.Err != nil {
		return r.fail(t, out.Err)
	}

	if r.Report != nil && req.Mode == NotchedMusicTherapy {
		depth, err := r.Report(input, out.Result.Buffer, req.NotchFrequencyHz)
		if err != nil {
			applog.Warnw("Runner: Notch depth unavailable", "source", req.SourcePath, "error", err)
		} else {
			out.NotchDepthDB = depth
			applog.Infow("Runner: Notch depth", "source", req.SourcePath, "frequency_hz", req.NotchFrequencyHz, "depth_db", fmt.Sprintf("%.1f", depth))
		}
	}

	r.publish(r.event(t, transport.StatusCompleted, &out))
	return out
}

// fail records t as failed with err.
func (r *Runner) fail(t *Task, err error) Outcome {
	out := Outcome{TaskID: t.ID, Request: t.Request, Err: err}
	applog.Errorw("Runner: Processing failed", "task", t.ID, "source", t.Request.SourcePath, "error", err)
	r.publish(r.event(t, transport.StatusFailed, &out))
	return out
}

func (r *Runner) event(t *Task, status transport.Status, out *Outcome) transport.Event {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	ev := transport.Event{
		TaskID:              t.ID,
		Status:              status,
		SourcePath:          t.Request.SourcePath,
		Mode:                t.Request.Mode.DisplayName(),
		TinnitusFrequencyHz: t.Request.TinnitusFrequencyHz,
		OutputPath:          out.OutputPath,
		NotchDepthDB:        out.NotchDepthDB,
		Time:                now().UTC(),
	}
	if t.Request.Mode == NotchedMusicTherapy {
		ev.NotchFrequencyHz = t.Request.NotchFrequencyHz
		ev.QualityFactor = t.Request.QualityFactor
	}
	if out.Result != nil {
		ev.OutputName = out.Result.OutputName
	}
	if out.Err != nil {
		ev.Error = out.Err.Error()
	}
	return ev
}

func (r *Runner) publish(ev transport.Event) {
	if r.Publisher == nil {
		return
	}
	if err := r.Publisher.Publish(ev); err != nil {
		applog.Warnw("Runner: Publish failed", "task", ev.TaskID, "status", ev.Status, "error", err)
	}
}
