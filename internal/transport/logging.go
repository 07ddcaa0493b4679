// SPDX-License-Identifier: MIT
package transport

import (
	applog "tinnitus/internal/log"
)

// LoggingPublisher writes every event to the application log. Completed
// events are the processing records, so they are logged at INFO.
type LoggingPublisher struct{}

// NewLoggingPublisher creates a new LoggingPublisher instance.
func NewLoggingPublisher() *LoggingPublisher {
	applog.Debugf("Transport: Using LoggingPublisher")
	return &LoggingPublisher{}
}

// Publish logs ev. It never fails.
func (lp *LoggingPublisher) Publish(ev Event) error {
	switch ev.Status {
	case StatusFailed:
		applog.Errorw("Record: failed", "task", ev.TaskID, "source", ev.SourcePath,
			"therapy", ev.Mode, "error", ev.Error)
	case StatusCompleted:
		applog.Infow("Record: completed", "task", ev.TaskID, "source", ev.SourcePath,
			"therapy", ev.Mode, "notch_hz", ev.NotchFrequencyHz, "q", ev.QualityFactor,
			"tinnitus_hz", ev.TinnitusFrequencyHz, "output", ev.OutputPath)
	default:
		applog.Debugw("Record: "+string(ev.Status), "task", ev.TaskID, "source", ev.SourcePath)
	}
	return nil
}

// Close is a no-op for LoggingPublisher.
func (lp *LoggingPublisher) Close() error {
	return nil
}

var _ Publisher = (*LoggingPublisher)(nil)
