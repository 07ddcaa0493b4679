// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"time"
)

// Status is the lifecycle state reported for one file.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event describes one step of processing a file. A completed event carries
// the full metadata record for the operation.
type Event struct {
	TaskID              string    `json:"task_id"`
	Status              Status    `json:"status"`
	SourcePath          string    `json:"source_path"`
	Mode                string    `json:"therapy_type"`
	NotchFrequencyHz    float64   `json:"notch_frequency_hz,omitempty"`
	QualityFactor       float64   `json:"quality_factor,omitempty"`
	TinnitusFrequencyHz float64   `json:"tinnitus_frequency_hz,omitempty"`
	OutputName          string    `json:"output_name,omitempty"`
	OutputPath          string    `json:"output_path,omitempty"`
	NotchDepthDB        float64   `json:"notch_depth_db,omitempty"`
	Error               string    `json:"error,omitempty"`
	Time                time.Time `json:"time"`
}

// Publisher receives processing events. Implementations must be safe for
// concurrent use; events for different files may arrive interleaved.
type Publisher interface {
	Publish(ev Event) error
	Close() error
}

// Multi fans events out to several publishers. Every publisher sees every
// event even if an earlier one fails.
type Multi []Publisher

func (m Multi) Publish(ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Publisher = Multi(nil)
